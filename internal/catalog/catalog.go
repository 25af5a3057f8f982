// Package catalog implements the rule catalog (part of the data model in
// spec.md §3): a name-indexed collection of parsed check trees, plus the
// default-rule resolution used when a lookup misses, and the bounded
// recursion guard used when a "rule:" check references another entry.
package catalog

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"

	"github.com/garenchan/policy/internal/domain/check"
	"github.com/garenchan/policy/internal/parser"
)

// DefaultMaxRecursionDepth bounds "rule:" reference chains (spec.md §9,
// "Open question: recursion safety in rule: chains"). The Python original
// this spec was distilled from does not guard against cycles at all; a
// self-referential catalog would loop forever. This port adds a bounded
// depth, failing closed past the bound, while leaving non-cyclic chains
// of reasonable length unaffected.
const DefaultMaxRecursionDepth = 32

// Catalog is an immutable, name-indexed collection of parsed check trees
// plus an optional default rule. A zero-value default rule means unset.
// Once built, a Catalog is never mutated -- the enforcer replaces the
// whole catalog reference on reload rather than editing one in place, so
// concurrent readers always see either the old or a fully-installed new
// catalog.
type Catalog struct {
	rules       map[string]check.Check
	names       []string // sorted, for deterministic rendering
	defaultRule any      // nil, string (a rule name), or check.Check
	maxDepth    int
}

// Option configures a Catalog built by New, FromRuleStrings, or LoadJSON.
type Option func(*Catalog)

// WithDefaultRule sets the catalog's default rule. Accepts nil (unset), a
// string (the name of another rule in the catalog), or a check.Check
// (a pre-built node evaluated directly on a miss).
func WithDefaultRule(rule any) Option {
	return func(c *Catalog) { c.defaultRule = rule }
}

// WithMaxRecursionDepth overrides DefaultMaxRecursionDepth.
func WithMaxRecursionDepth(depth int) Option {
	return func(c *Catalog) { c.maxDepth = depth }
}

// New builds a Catalog directly from already-parsed rules.
func New(rules map[string]check.Check, opts ...Option) *Catalog {
	c := &Catalog{
		rules:    make(map[string]check.Check, len(rules)),
		maxDepth: DefaultMaxRecursionDepth,
	}
	names := make([]string, 0, len(rules))
	for name := range rules {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		c.rules[name] = rules[name]
		c.names = append(c.names, name)
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Empty reports whether the catalog has no rules. An enforcer treats an
// empty catalog as fail-closed regardless of the default rule, matching
// spec.md §4.5 step 2.
func (c *Catalog) Empty() bool {
	return c == nil || len(c.rules) == 0
}

// Len returns the number of rules in the catalog.
func (c *Catalog) Len() int {
	if c == nil {
		return 0
	}
	return len(c.rules)
}

// Lookup resolves name to a check tree, consulting the default rule on a
// miss. It implements the Python original's Rules.__missing__ semantics:
// an unset default fails; a pre-built check.Check default is returned
// directly; a string default must itself be present in the catalog (it is
// not resolved recursively through another layer of defaulting) or the
// lookup fails.
func (c *Catalog) Lookup(name string) (check.Check, bool) {
	if ch, ok := c.rules[name]; ok {
		return ch, true
	}
	switch d := c.defaultRule.(type) {
	case nil:
		return nil, false
	case check.Check:
		return d, true
	case string:
		if d == "" {
			return nil, false
		}
		ch, ok := c.rules[d]
		return ch, ok
	default:
		return nil, false
	}
}

// Resolver returns a check.RuleResolver bound to this catalog, with
// recursion depth tracked as an immutable value (see boundResolver) so
// that concurrent evaluators never share mutable state.
func (c *Catalog) Resolver() check.RuleResolver {
	return boundResolver{catalog: c, maxDepth: c.maxDepth}
}

// boundResolver implements check.RuleResolver against a Catalog. depth is
// copied (not shared) on every recursive Resolve, so it behaves exactly
// like call-stack depth: sibling "rule:" references in the same And/Or do
// not compound, only genuine reference chains do.
type boundResolver struct {
	catalog  *Catalog
	depth    int
	maxDepth int
}

func (r boundResolver) Resolve(name string) (check.Check, check.RuleResolver, bool) {
	if r.depth >= r.maxDepth {
		return nil, nil, false
	}
	c, ok := r.catalog.Lookup(name)
	if !ok {
		return nil, nil, false
	}
	return c, boundResolver{catalog: r.catalog, depth: r.depth + 1, maxDepth: r.maxDepth}, true
}

// FromRuleStrings parses every value of rules (rule name -> DSL string)
// through registry and assembles a Catalog. When raiseError is true, the
// first rule that fails to parse is returned as an error and no Catalog is
// built; otherwise the failure compiles to check.False (fail-closed) and
// parsing continues for the rest of the catalog. onInvalid, if not nil, is
// called for every failure that fails closed this way, with the offending
// base check or rule string -- the enforcer uses this to drive a
// parse-error counter; it is never called when raiseError is true, since
// that path returns an error instead.
func FromRuleStrings(rules map[string]string, registry *check.Registry, raiseError bool, logger *slog.Logger, onInvalid func(rule string), opts ...Option) (*Catalog, error) {
	parsed := make(map[string]check.Check, len(rules))
	p := parser.New(registry, raiseError, logger, parser.WithOnInvalid(onInvalid))

	for name, rule := range rules {
		c, err := p.Parse(rule)
		if err != nil {
			return nil, fmt.Errorf("rule %q: %w", name, err)
		}
		parsed[name] = c
	}

	return New(parsed, opts...), nil
}

// policyDocument is the JSON shape of a policy file: rule name -> DSL
// string.
type policyDocument map[string]string

// LoadJSON decodes data as a JSON object mapping rule names to DSL
// strings and parses each value, matching spec.md §6 ("Policy file
// format"). JSON decoding errors are returned verbatim; JSON parsing
// itself is treated as a black box per spec.md §1.
func LoadJSON(data []byte, registry *check.Registry, raiseError bool, logger *slog.Logger, onInvalid func(rule string), opts ...Option) (*Catalog, error) {
	var doc policyDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode policy document: %w", err)
	}
	return FromRuleStrings(doc, registry, raiseError, logger, onInvalid, opts...)
}

// Merge combines c with incoming, with incoming's entries overwriting any
// same-named rule in c (a plain dict-update, matching the Python
// original's non-overwrite load path), and returns a new Catalog. c's
// default rule and recursion limit are preserved.
func (c *Catalog) Merge(incoming *Catalog) *Catalog {
	merged := make(map[string]check.Check, len(c.rules)+len(incoming.rules))
	for name, ch := range c.rules {
		merged[name] = ch
	}
	for name, ch := range incoming.rules {
		merged[name] = ch
	}
	return New(merged, WithDefaultRule(c.defaultRule), WithMaxRecursionDepth(c.maxDepth))
}

// MarshalJSON renders the catalog back to its policy-file form: each
// rule's canonical string rendering, except check.True which renders as
// the empty string so that LoadJSON(MarshalJSON(c)) round-trips through
// the "empty rule means always accept" rule rather than the literal "@"
// spelling. This matches the Python original's Rules.__str__.
func (c *Catalog) MarshalJSON() ([]byte, error) {
	out := make(map[string]string, len(c.rules))
	for name, ch := range c.rules {
		if _, ok := ch.(check.True); ok {
			out[name] = ""
			continue
		}
		out[name] = ch.String()
	}
	return json.Marshal(out)
}

// Names returns the catalog's rule names in sorted order.
func (c *Catalog) Names() []string {
	names := make([]string, len(c.names))
	copy(names, c.names)
	return names
}

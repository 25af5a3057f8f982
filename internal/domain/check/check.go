// Package check implements the small algebra of policy check nodes (C2)
// and the base-check registry (C3) described by the rule engine's check
// model: constants, logical combinators, and dispatched base checks of
// the form "kind:match".
package check

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
)

// RuleResolver resolves a named rule to its check tree, allowing the
// "rule:NAME" base check to recurse into other entries of a catalog
// without the check package depending on the catalog/enforcer package.
// Resolve returns, alongside the resolved check, the RuleResolver to use
// for evaluating it -- this lets an implementation track recursion depth
// as an immutable value threaded through the call chain (see
// internal/catalog), with no shared mutable state and therefore no lock
// needed to guard it.
type RuleResolver interface {
	// Resolve looks up a rule by name. ok is false if the name is absent
	// or if the resolver refuses further recursion (e.g. a depth limit).
	Resolve(name string) (c Check, nested RuleResolver, ok bool)
}

// Check is a node in the evaluable policy expression tree. Every variant
// supports a canonical string rendering and evaluation against a target,
// a credential, and a resolver used to follow "rule:" references.
type Check interface {
	fmt.Stringer
	// Eval reports whether the check passes for (target, cred).
	Eval(target, cred Attributes, resolver RuleResolver) bool
}

// False always evaluates to false. Its canonical rendering is "!".
type False struct{}

func (False) String() string { return "!" }

func (False) Eval(Attributes, Attributes, RuleResolver) bool { return false }

// True always evaluates to true. Its canonical rendering is "@".
// An empty rule string parses to True -- explicit "empty policy is open".
type True struct{}

func (True) String() string { return "@" }

func (True) Eval(Attributes, Attributes, RuleResolver) bool { return true }

// Base is a leaf check of the form "kind:match", dispatched through the
// registry at evaluation time. The concrete evaluation behavior for the
// three built-in kinds ("rule", "role", and the generic wildcard) lives
// in registry.go; Base itself only carries the two strings and renders
// "kind:match".
type Base struct {
	Kind  string
	Match string
	// eval is populated by the registry's factories; it is not part of
	// the node's identity (two Base values with the same Kind/Match are
	// semantically equal regardless of which factory produced them).
	eval func(kind, match string, target, cred Attributes, resolver RuleResolver) bool
}

func (b *Base) String() string { return b.Kind + ":" + b.Match }

func (b *Base) Eval(target, cred Attributes, resolver RuleResolver) bool {
	if b.eval == nil {
		return false
	}
	return b.eval(b.Kind, b.Match, target, cred, resolver)
}

// Not inverts the result of a single wrapped check.
type Not struct {
	Rule Check
}

func (n *Not) String() string { return "not " + n.Rule.String() }

func (n *Not) Eval(target, cred Attributes, resolver RuleResolver) bool {
	return !n.Rule.Eval(target, cred, resolver)
}

// And is the logical conjunction of two or more checks, short-circuiting
// on the first false. Invariant: len(Rules) >= 2 at rest; the parser is
// the only caller permitted to grow Rules via Append while reducing.
type And struct {
	Rules []Check
}

func NewAnd(rules ...Check) *And { return &And{Rules: rules} }

func (a *And) String() string {
	parts := make([]string, len(a.Rules))
	for i, r := range a.Rules {
		parts[i] = r.String()
	}
	return "(" + strings.Join(parts, " and ") + ")"
}

func (a *And) Eval(target, cred Attributes, resolver RuleResolver) bool {
	for _, r := range a.Rules {
		if !r.Eval(target, cred, resolver) {
			return false
		}
	}
	return true
}

// Append adds another rule to the conjunction, used only by the parser
// while reducing the token stream; the tree is frozen before a catalog
// is installed for readers.
func (a *And) Append(rule Check) *And {
	a.Rules = append(a.Rules, rule)
	return a
}

// Or is the logical disjunction of two or more checks, short-circuiting
// on the first true.
type Or struct {
	Rules []Check
}

func NewOr(rules ...Check) *Or { return &Or{Rules: rules} }

func (o *Or) String() string {
	parts := make([]string, len(o.Rules))
	for i, r := range o.Rules {
		parts[i] = r.String()
	}
	return "(" + strings.Join(parts, " or ") + ")"
}

func (o *Or) Eval(target, cred Attributes, resolver RuleResolver) bool {
	for _, r := range o.Rules {
		if r.Eval(target, cred, resolver) {
			return true
		}
	}
	return false
}

// Append adds another rule to the disjunction.
func (o *Or) Append(rule Check) *Or {
	o.Rules = append(o.Rules, rule)
	return o
}

// PopLast removes and returns the last disjunct, used by the parser's
// "or_expr and check" reduction to implement the A or (B and C) precedence
// fix: it needs to pull B back out of the disjunction to fold it into a
// new conjunction with C.
func (o *Or) PopLast() Check {
	n := len(o.Rules)
	last := o.Rules[n-1]
	o.Rules = o.Rules[:n-1]
	return last
}

// Stringify renders a value the way the generic and role checks compare
// it against an interpolated match string: slices/maps/bools/numbers all
// fall back to fmt's default formatting, which is sufficient since both
// sides of every comparison run through the same function.
func Stringify(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case fmt.Stringer:
		return val.String()
	default:
		return fmt.Sprintf("%v", v)
	}
}

// decodeLiteral mirrors Python's ast.literal_eval for the small set of
// literal forms the generic check's "kind" may take when it is not a
// dotted attribute path: integers, floats, booleans, null, quoted
// strings, and bracketed lists. ok is false when kind is not a literal,
// signalling the caller to fall back to dotted-path credential lookup.
func decodeLiteral(kind string) (value any, ok bool) {
	s := strings.TrimSpace(kind)
	if s == "" {
		return nil, false
	}

	switch s {
	case "True", "true":
		return true, true
	case "False", "false":
		return false, true
	case "None", "null":
		return nil, true
	}

	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n, true
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f, true
	}

	if len(s) >= 2 {
		first, last := s[0], s[len(s)-1]
		if (first == '"' && last == '"') || (first == '\'' && last == '\'') {
			return s[1 : len(s)-1], true
		}
		if first == '[' && last == ']' {
			return decodeLiteralList(s[1 : len(s)-1])
		}
	}

	return nil, false
}

// decodeLiteralList decodes the comma-separated interior of a bracketed
// literal list. Elements are trimmed and decoded individually; any
// element that is not itself a valid literal fails the whole list.
func decodeLiteralList(interior string) ([]any, bool) {
	interior = strings.TrimSpace(interior)
	if interior == "" {
		return []any{}, true
	}
	parts := strings.Split(interior, ",")
	out := make([]any, 0, len(parts))
	for _, p := range parts {
		v, ok := decodeLiteral(strings.TrimSpace(p))
		if !ok {
			return nil, false
		}
		out = append(out, v)
	}
	return out, true
}

// findInObject walks pathSegments into value with mapping-first semantics,
// recursing into every element whenever a segment (the last one included)
// resolves to an iterable of non-string values (list-of-records matching), and
// comparing the terminal value's string form against match.
func findInObject(value any, pathSegments []string, match string) bool {
	if len(pathSegments) == 0 {
		return match == Stringify(value)
	}

	key, rest := pathSegments[0], pathSegments[1:]
	next, ok := Wrap(value).Get(key)
	if !ok {
		return false
	}

	if isNonStringIterable(next) {
		rv := reflect.ValueOf(next)
		for i := 0; i < rv.Len(); i++ {
			if findInObject(rv.Index(i).Interface(), rest, match) {
				return true
			}
		}
		return false
	}

	return findInObject(next, rest, match)
}

// isNonStringIterable reports whether v is a slice or array whose element
// type is not byte, matching Python's "Iterable but not str/bytes" guard.
func isNonStringIterable(v any) bool {
	if v == nil {
		return false
	}
	switch v.(type) {
	case string, []byte:
		return false
	}
	rv := reflect.ValueOf(v)
	return rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array
}

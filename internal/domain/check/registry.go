package check

import (
	"reflect"
	"strings"
	"sync"
)

// Factory builds a base Check node for a given "kind:match" pair. Factories
// are what the registry dispatches to once the parser has split a base
// check's "kind" from its "match".
type Factory func(kind, match string) Check

// Registry is a name-indexed table of base-check factories (C3). There is
// no global instance: each Enforcer (and each ParseRule call) uses its own
// unless one is shared explicitly via WithRegistry. Registration is additive; a later Register call for the same kind
// overwrites the earlier one. The wildcard factory (registered via
// RegisterWildcard) stands in for any kind with no specific factory,
// mirroring the Python original's `registered_checks[None]` entry.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
	wildcard  Factory
}

// NewRegistry returns a Registry pre-populated with the three built-in
// base checks: "rule", "role", and the generic wildcard.
func NewRegistry() *Registry {
	r := &Registry{factories: make(map[string]Factory)}
	r.Register("rule", NewRuleCheck)
	r.Register("role", NewRoleCheck)
	r.RegisterWildcard(NewGenericCheck)
	return r
}

// Register installs (or overwrites) the factory for kind.
func (r *Registry) Register(kind string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[kind] = f
}

// RegisterWildcard installs (or overwrites) the fallback factory used when
// no factory is registered for a given kind.
func (r *Registry) RegisterWildcard(f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.wildcard = f
}

// Build dispatches to the factory registered for kind, falling back to the
// wildcard factory. ok is false when neither is present, signalling the
// parser to raise InvalidRule or fail closed per its configured policy.
func (r *Registry) Build(kind, match string) (Check, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if f, ok := r.factories[kind]; ok {
		return f(kind, match), true
	}
	if r.wildcard != nil {
		return r.wildcard(kind, match), true
	}
	return nil, false
}

// NewRuleCheck builds the "rule:NAME" base check: it resolves NAME in the
// enforcer's catalog and evaluates that tree with the same (target, cred).
// An absent name evaluates to false (fail-closed); recursion is permitted
// and is depth-limited by the resolver, not here.
func NewRuleCheck(kind, match string) Check {
	return &Base{Kind: kind, Match: match, eval: evalRule}
}

func evalRule(_ string, match string, target, cred Attributes, resolver RuleResolver) bool {
	c, nested, ok := resolver.Resolve(match)
	if !ok {
		return false
	}
	return c.Eval(target, cred, nested)
}

// roleAttribute is the credential field inspected by the "role:" check.
const roleAttribute = "roles"

// NewRoleCheck builds the "role:R" base check: R is a format string whose
// "%(key)s" placeholders are filled from the target, then compared
// case-insensitively against the credential's "roles" list.
func NewRoleCheck(kind, match string) Check {
	return &Base{Kind: kind, Match: match, eval: evalRole}
}

func evalRole(_ string, match string, target, cred Attributes, _ RuleResolver) bool {
	interpolated, ok := interpolate(match, target)
	if !ok {
		return false
	}

	rolesVal, ok := cred.Get(roleAttribute)
	if !ok {
		return false
	}
	roles, ok := toStringSlice(rolesVal)
	if !ok {
		return false
	}

	for _, role := range roles {
		if strings.EqualFold(role, interpolated) {
			return true
		}
	}
	return false
}

// NewGenericCheck builds the wildcard base check used for any kind with no
// dedicated factory: "tenant:%(tenant_id)s", "True:%(user.enabled)s",
// "user.id.startswith:%(prefix)s" (as a dotted credential path), etc.
func NewGenericCheck(kind, match string) Check {
	return &Base{Kind: kind, Match: match, eval: evalGeneric}
}

func evalGeneric(kind string, match string, target, cred Attributes, _ RuleResolver) bool {
	interpolated, ok := interpolate(match, target)
	if !ok {
		return false
	}

	if literal, ok := decodeLiteral(kind); ok {
		return interpolated == Stringify(literal)
	}

	segments := strings.Split(kind, ".")
	return findInObject(cred, segments, interpolated)
}

// toStringSlice coerces a credential's roles value -- typically []string
// or []any containing strings -- into a plain []string.
func toStringSlice(v any) ([]string, bool) {
	switch val := v.(type) {
	case []string:
		return val, true
	case []any:
		out := make([]string, 0, len(val))
		for _, e := range val {
			s, ok := e.(string)
			if !ok {
				return nil, false
			}
			out = append(out, s)
		}
		return out, true
	}

	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	out := make([]string, 0, rv.Len())
	for i := 0; i < rv.Len(); i++ {
		s, ok := rv.Index(i).Interface().(string)
		if !ok {
			return nil, false
		}
		out = append(out, s)
	}
	return out, true
}

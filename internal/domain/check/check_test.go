package check

import "testing"

type staticResolver map[string]Check

func (r staticResolver) Resolve(name string) (Check, RuleResolver, bool) {
	c, ok := r[name]
	return c, r, ok
}

func TestFalseTrue(t *testing.T) {
	if (False{}).Eval(nil, nil, nil) {
		t.Error("False should never evaluate true")
	}
	if !(True{}).Eval(nil, nil, nil) {
		t.Error("True should always evaluate true")
	}
	if (False{}).String() != "!" {
		t.Errorf("False.String() = %q, want %q", (False{}).String(), "!")
	}
	if (True{}).String() != "@" {
		t.Errorf("True.String() = %q, want %q", (True{}).String(), "@")
	}
}

func TestNot(t *testing.T) {
	n := &Not{Rule: True{}}
	if n.Eval(nil, nil, nil) {
		t.Error("not true should be false")
	}
	if n.String() != "not @" {
		t.Errorf("String() = %q", n.String())
	}
}

// countingCheck records how many times Eval was called, to verify
// short-circuiting.
type countingCheck struct {
	result bool
	calls  *int
}

func (c countingCheck) String() string { return "counting" }
func (c countingCheck) Eval(Attributes, Attributes, RuleResolver) bool {
	*c.calls++
	return c.result
}

func TestAndShortCircuits(t *testing.T) {
	calls := 0
	and := NewAnd(countingCheck{result: false, calls: &calls}, countingCheck{result: true, calls: &calls})
	if and.Eval(nil, nil, nil) {
		t.Error("And with a false member should evaluate false")
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1 (short-circuit after first false)", calls)
	}
}

func TestOrShortCircuits(t *testing.T) {
	calls := 0
	or := NewOr(countingCheck{result: true, calls: &calls}, countingCheck{result: false, calls: &calls})
	if !or.Eval(nil, nil, nil) {
		t.Error("Or with a true member should evaluate true")
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1 (short-circuit after first true)", calls)
	}
}

func TestOrPopLast(t *testing.T) {
	a, b := True{}, False{}
	or := NewOr(a, b)
	last := or.PopLast()
	if last != Check(b) {
		t.Errorf("PopLast() = %v, want %v", last, b)
	}
	if len(or.Rules) != 1 {
		t.Errorf("len(Rules) = %d, want 1", len(or.Rules))
	}
}

func TestBaseStringAndEval(t *testing.T) {
	b := &Base{Kind: "role", Match: "admin", eval: func(kind, match string, _, _ Attributes, _ RuleResolver) bool {
		return kind == "role" && match == "admin"
	}}
	if b.String() != "role:admin" {
		t.Errorf("String() = %q", b.String())
	}
	if !b.Eval(nil, nil, nil) {
		t.Error("Eval should dispatch to the registered eval func")
	}
}

func TestBaseNilEvalFailsClosed(t *testing.T) {
	b := &Base{Kind: "x", Match: "y"}
	if b.Eval(nil, nil, nil) {
		t.Error("a Base with no eval func must fail closed")
	}
}

func TestRuleResolverRecursion(t *testing.T) {
	resolver := staticResolver{
		"admin": True{},
	}
	ruleCheck := &Base{Kind: "rule", Match: "admin", eval: func(_ string, match string, target, cred Attributes, r RuleResolver) bool {
		c, nested, ok := r.Resolve(match)
		if !ok {
			return false
		}
		return c.Eval(target, cred, nested)
	}}
	if !ruleCheck.Eval(nil, nil, resolver) {
		t.Error("rule:admin should resolve to True and evaluate true")
	}

	missing := &Base{Kind: "rule", Match: "nope", eval: ruleCheck.eval}
	if missing.Eval(nil, nil, resolver) {
		t.Error("a missing rule reference must fail closed")
	}
}

func TestWrapMap(t *testing.T) {
	a := Wrap(map[string]any{"name": "lily"})
	v, ok := a.Get("name")
	if !ok || v != "lily" {
		t.Errorf("Get(name) = %v, %v, want lily, true", v, ok)
	}
	if _, ok := a.Get("missing"); ok {
		t.Error("Get(missing) should report false")
	}
}

func TestWrapStruct(t *testing.T) {
	type user struct {
		Name string
		Age  int
	}
	a := Wrap(user{Name: "kate", Age: 30})
	if v, ok := a.Get("Name"); !ok || v != "kate" {
		t.Errorf("Get(Name) = %v, %v", v, ok)
	}
	if v, ok := a.Get("age"); !ok || v != 30 {
		t.Errorf("Get(age) (case-insensitive) = %v, %v", v, ok)
	}
}

func TestFindInObjectDottedPath(t *testing.T) {
	cred := map[string]any{
		"user": map[string]any{
			"id": "u-1",
		},
	}
	if !findInObject(cred, []string{"user", "id"}, "u-1") {
		t.Error("expected dotted path user.id to find u-1")
	}
	if findInObject(cred, []string{"user", "id"}, "u-2") {
		t.Error("expected dotted path user.id not to find u-2")
	}
}

func TestFindInObjectListOfRecords(t *testing.T) {
	cred := map[string]any{
		"articles": []any{
			map[string]any{"owner": "kate"},
			map[string]any{"owner": "lily"},
		},
	}
	if !findInObject(cred, []string{"articles", "owner"}, "lily") {
		t.Error("expected list-of-records match to find lily among article owners")
	}
}

func TestDecodeLiteral(t *testing.T) {
	cases := []struct {
		in   string
		want any
		ok   bool
	}{
		{"True", true, true},
		{"False", false, true},
		{"None", nil, true},
		{"42", int64(42), true},
		{"3.14", 3.14, true},
		{`"hi"`, "hi", true},
		{"'hi'", "hi", true},
		{"[1, 2]", []any{int64(1), int64(2)}, true},
		{"not_a_literal", nil, false},
	}
	for _, tc := range cases {
		got, ok := decodeLiteral(tc.in)
		if ok != tc.ok {
			t.Errorf("decodeLiteral(%q) ok = %v, want %v", tc.in, ok, tc.ok)
			continue
		}
		if !ok {
			continue
		}
		if list, isList := got.([]any); isList {
			wantList := tc.want.([]any)
			if len(list) != len(wantList) {
				t.Errorf("decodeLiteral(%q) = %v, want %v", tc.in, got, tc.want)
			}
			continue
		}
		if got != tc.want {
			t.Errorf("decodeLiteral(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

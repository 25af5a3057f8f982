package enforcer

import (
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/goleak"
)

const testPolicyJSON = `{
  "admin":       "role:admin",
  "user:create": "rule:admin",
  "owner":       "user_id:%(user_id)s",
  "article:delete": "rule:admin or rule:owner",
  "deny_all":    "!",
  "always":      ""
}`

func writeTestPolicy(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "policy.json")
	if err := os.WriteFile(path, []byte(testPolicyJSON), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

var (
	credLily    = map[string]any{"roles": []string{"admin"}}
	credKate    = map[string]any{"roles": []string{"user"}, "user_id": "K"}
	articleKate = map[string]any{"user_id": "K"}
	emptyTarget = map[string]any{}
)

func TestScenarios(t *testing.T) {
	e := NewEnforcer(writeTestPolicy(t))

	cases := []struct {
		name   string
		rule   string
		target any
		cred   any
		want   bool
	}{
		{"S1", "user:create", emptyTarget, credLily, true},
		{"S2", "user:create", emptyTarget, credKate, false},
		{"S3", "article:delete", articleKate, credKate, true},
		{"S4", "article:delete", articleKate, credLily, true},
		{"S5", "deny_all", emptyTarget, credLily, false},
		{"S6", "always", emptyTarget, credKate, true},
		{"S7", "no_such_rule", emptyTarget, credLily, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := e.Enforce(tc.rule, tc.target, tc.cred)
			if err != nil {
				t.Fatalf("Enforce(%q): unexpected error: %v", tc.rule, err)
			}
			if got != tc.want {
				t.Errorf("Enforce(%q) = %v, want %v", tc.rule, got, tc.want)
			}
		})
	}
}

func TestEmptyPolicyAdmitsNothing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.json")
	if err := os.WriteFile(path, []byte(`{}`), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	e := NewEnforcer(path)
	got, err := e.Enforce("anything", map[string]any{}, map[string]any{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got {
		t.Error("an empty policy file must fail closed, not admit")
	}
}

func TestRaiseErrorOnDenial(t *testing.T) {
	e := NewEnforcer(writeTestPolicy(t), WithRaiseError(true))
	_, err := e.Enforce("deny_all", emptyTarget, credLily)
	if err == nil {
		t.Fatal("expected a *PolicyNotAuthorized error on denial")
	}
	if _, ok := err.(*PolicyNotAuthorized); !ok {
		t.Errorf("err = %v (%T), want *PolicyNotAuthorized", err, err)
	}
}

func TestRaiseErrorOnAllowIsNil(t *testing.T) {
	e := NewEnforcer(writeTestPolicy(t), WithRaiseError(true))
	got, err := e.Enforce("always", emptyTarget, credLily)
	if err != nil {
		t.Fatalf("unexpected error on allow: %v", err)
	}
	if !got {
		t.Error("expected allow")
	}
}

func TestLoadOnceReadsFileOnce(t *testing.T) {
	path := writeTestPolicy(t)
	e := NewEnforcer(path)

	var wg sync.WaitGroup
	const n = 50
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			if _, err := e.Enforce("always", emptyTarget, credLily); err != nil {
				t.Errorf("Enforce: %v", err)
			}
		}()
	}
	wg.Wait()

	if e.Generation() == "" {
		t.Error("expected a non-empty generation after the first load")
	}

	// Change the file and advance its mtime: a load-once enforcer must not
	// read it again, so the installed catalog's generation stays the same.
	gen := e.Generation()
	if err := os.WriteFile(path, []byte(`{"always": "!"}`), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	future := time.Now().Add(time.Second)
	if err := os.Chtimes(path, future, future); err != nil {
		t.Fatalf("Chtimes: %v", err)
	}
	if _, err := e.Enforce("always", emptyTarget, credLily); err != nil {
		t.Fatalf("Enforce: %v", err)
	}
	if e.Generation() != gen {
		t.Error("a load-once enforcer re-read the policy file after its first load")
	}
}

func TestConcurrentEnforceNoGoroutineLeak(t *testing.T) {
	defer goleak.VerifyNone(t)

	e := NewEnforcer(writeTestPolicy(t))

	var wg sync.WaitGroup
	var allowed, denied int64
	const n = 100
	wg.Add(n)
	for i := 0; i < n; i++ {
		i := i
		go func() {
			defer wg.Done()
			cred := credLily
			if i%2 == 0 {
				cred = credKate
			}
			got, err := e.Enforce("user:create", emptyTarget, cred)
			if err != nil {
				t.Errorf("Enforce: %v", err)
				return
			}
			if got {
				atomic.AddInt64(&allowed, 1)
			} else {
				atomic.AddInt64(&denied, 1)
			}
		}()
	}
	wg.Wait()

	if allowed == 0 || denied == 0 {
		t.Errorf("allowed=%d denied=%d, expected a mix (admin roles allow, user roles deny)", allowed, denied)
	}
}

func TestOwnerInterpolation(t *testing.T) {
	e := NewEnforcer(writeTestPolicy(t))
	got, err := e.Enforce("owner", articleKate, credKate)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !got {
		t.Error("expected owner check to match when target.user_id equals cred.user_id")
	}

	got, err = e.Enforce("owner", map[string]any{"user_id": "someone-else"}, credKate)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got {
		t.Error("expected owner check to fail when user ids differ")
	}
}

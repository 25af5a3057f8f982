package enforcer

import "fmt"

// PolicyNotAuthorized is returned by Enforce when raiseError is configured
// and the rule evaluates to false: the caller asked to be told about a
// denial as an error rather than reading the bool result.
type PolicyNotAuthorized struct {
	Rule   string
	Target any
	Cred   any
}

func (e *PolicyNotAuthorized) Error() string {
	return fmt.Sprintf("%v on %v by %v disallowed by policy", e.Rule, e.Target, e.Cred)
}

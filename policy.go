// Package policy implements a small role-based policy enforcement engine:
// rules are written in a compact boolean-expression DSL ("role:admin or
// rule:owner"), stored in a JSON policy file, and evaluated against a
// target and a set of credentials to decide whether an action is
// authorized.
//
// Quick start:
//
//	e := policy.NewEnforcer("policy.json", policy.WithRaiseError(true))
//	allowed, err := e.Enforce("user:create", target, creds)
//	if err != nil {
//	    var denied *policy.PolicyNotAuthorized
//	    if errors.As(err, &denied) {
//	        fmt.Printf("denied: %s\n", denied.Error())
//	    }
//	}
package policy

import (
	"github.com/garenchan/policy/internal/config"
	"github.com/garenchan/policy/internal/domain/check"
	"github.com/garenchan/policy/internal/enforcer"
	"github.com/garenchan/policy/internal/metrics"
	"github.com/garenchan/policy/internal/parser"
)

// Enforcer loads and enforces policy rules from a JSON policy file. See
// internal/enforcer for the implementation.
type Enforcer = enforcer.Enforcer

// Option configures an Enforcer built by NewEnforcer.
type Option = enforcer.Option

// Check is a node in an evaluable policy expression tree, as produced by
// ParseRule or stored in a loaded policy file.
type Check = check.Check

// Attributes is the uniform access interface Enforce wraps targets and
// credentials in, supporting both map[string]any and arbitrary structs.
type Attributes = check.Attributes

// Metrics holds the Prometheus instrumentation an Enforcer can record to.
type Metrics = metrics.Metrics

// PolicyNotAuthorized is returned by Enforce when the enforcer is
// configured with WithRaiseError(true) and the rule evaluates to false.
type PolicyNotAuthorized = enforcer.PolicyNotAuthorized

// InvalidRuleError is returned by ParseRule (and, internally, by a loaded
// policy file's rules) when a rule string is malformed and the parser is
// configured to raise rather than fail closed.
type InvalidRuleError = parser.InvalidRuleError

// EnforcerConfig is the on-disk/environment configuration for an
// Enforcer, loaded separately from the policy file itself.
type EnforcerConfig = config.EnforcerConfig

var (
	NewEnforcer           = enforcer.NewEnforcer
	WithInitialRules      = enforcer.WithInitialRules
	WithDefaultRule       = enforcer.WithDefaultRule
	WithRaiseError        = enforcer.WithRaiseError
	WithLoadOnce          = enforcer.WithLoadOnce
	WithRegistry          = enforcer.WithRegistry
	WithLogger            = enforcer.WithLogger
	WithMetrics           = enforcer.WithMetrics
	WithMaxRecursionDepth = enforcer.WithMaxRecursionDepth

	NewMetrics  = metrics.NewMetrics
	NewRegistry = check.NewRegistry

	LoadConfig = config.LoadConfig
	InitViper  = config.InitViper
)

// ParseRule parses a single rule string, written in the policy DSL, into a
// Check tree without needing a full Enforcer. raiseError controls whether
// a malformed rule returns an *InvalidRuleError or silently parses to an
// always-deny check.
func ParseRule(rule string, raiseError bool) (Check, error) {
	return parser.New(check.NewRegistry(), raiseError, nil).Parse(rule)
}

// NewEnforcerFromConfig builds an Enforcer from an already-loaded
// EnforcerConfig, applying any additional options (e.g. WithMetrics,
// WithLogger) on top of the config-derived settings.
func NewEnforcerFromConfig(cfg *EnforcerConfig, opts ...Option) *Enforcer {
	base := []Option{
		WithRaiseError(cfg.RaiseError),
		WithLoadOnce(!cfg.ReloadOnChange),
		WithMaxRecursionDepth(cfg.MaxRuleRecursionDepth),
	}
	if cfg.DefaultRuleName != "" {
		base = append(base, WithDefaultRule(cfg.DefaultRuleName))
	}
	return NewEnforcer(cfg.PolicyFile, append(base, opts...)...)
}

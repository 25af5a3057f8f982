// Package config provides configuration loading for the policy enforcer:
// everything needed to construct an enforcer.Enforcer short of the policy
// file's own contents.
package config

// EnforcerConfig is the on-disk/environment configuration for an
// Enforcer, distinct from the policy file itself (the rule catalog).
type EnforcerConfig struct {
	// PolicyFile is the path to the JSON policy file enforced at runtime.
	PolicyFile string `mapstructure:"policy_file" validate:"required"`

	// DefaultRuleName names the rule consulted when an enforced rule name
	// is missing from the catalog. Empty means no default (fail closed).
	DefaultRuleName string `mapstructure:"default_rule"`

	// RaiseError, when true, makes Enforce return a *PolicyNotAuthorized
	// error on denial instead of (false, nil), and makes rule parsing
	// raise instead of failing closed to an always-deny check.
	RaiseError bool `mapstructure:"raise_error"`

	// ReloadOnChange, when true, makes every Enforce call re-check the
	// policy file's mtime and reload on change. The default, false,
	// matches the enforcer's normal load-once behavior: the file is read
	// exactly once per process. Phrased as an opt-in rather than a
	// load_once flag defaulting to true, since a bool's Go zero value
	// would otherwise collide with that intended default.
	ReloadOnChange bool `mapstructure:"reload_on_change"`

	// MaxRuleRecursionDepth bounds "rule:" reference chains.
	MaxRuleRecursionDepth int `mapstructure:"max_rule_recursion_depth" validate:"gte=1"`

	// LogLevel names a level for the enforcer's structured logger: one of
	// "debug", "info", "warn", "error". It is defaulted and validated here;
	// NewEnforcerFromConfig does not apply it to any logger.
	LogLevel string `mapstructure:"log_level" validate:"omitempty,oneof=debug info warn error"`

	// MetricsEnabled signals that the caller should attach Prometheus
	// instrumentation via WithMetrics; the registry to register against is
	// the caller's choice and is not itself part of this config.
	MetricsEnabled bool `mapstructure:"metrics_enabled"`
}

// SetDefaults fills in zero-valued optional fields with their defaults.
// Called after Viper unmarshals the file/env layer and before validation,
// so that a config file need only mention what it overrides.
func (c *EnforcerConfig) SetDefaults() {
	if c.MaxRuleRecursionDepth == 0 {
		c.MaxRuleRecursionDepth = 32
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}

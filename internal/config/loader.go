package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/spf13/viper"
)

// InitViper initializes Viper with the configuration file and environment
// variables. If configFile is empty, it searches for policy-enforcer.yaml
// / .yml in standard locations. The search requires an explicit YAML
// extension to avoid matching a same-named binary, which Viper's built-in
// SetConfigName would otherwise match.
func InitViper(configFile string) {
	if configFile != "" {
		viper.SetConfigFile(configFile)
	} else if found := findConfigFile(); found != "" {
		viper.SetConfigFile(found)
	} else {
		viper.SetConfigName("policy-enforcer")
		viper.SetConfigType("yaml")
	}

	// Environment variable support: POLICY_ENFORCER_POLICY_FILE, etc.
	viper.SetEnvPrefix("POLICY_ENFORCER")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	bindNestedEnvKeys()
}

// findConfigFile searches standard locations for a policy-enforcer config
// file with an explicit YAML extension.
func findConfigFile() string {
	home, _ := os.UserHomeDir()
	paths := []string{
		".",
		filepath.Join(home, ".policy-enforcer"),
	}
	if runtime.GOOS == "windows" {
		if pd := os.Getenv("ProgramData"); pd != "" {
			paths = append(paths, filepath.Join(pd, "policy-enforcer"))
		}
	} else {
		paths = append(paths, "/etc/policy-enforcer")
	}
	return findConfigFileInPaths(paths)
}

func findConfigFileInPaths(paths []string) string {
	for _, dir := range paths {
		for _, ext := range []string{".yaml", ".yml"} {
			path := filepath.Join(dir, "policy-enforcer"+ext)
			if _, err := os.Stat(path); err == nil {
				return path
			}
		}
	}
	return ""
}

// bindNestedEnvKeys binds every EnforcerConfig key for environment
// variable support, e.g. POLICY_ENFORCER_MAX_RULE_RECURSION_DEPTH
// overrides max_rule_recursion_depth.
func bindNestedEnvKeys() {
	_ = viper.BindEnv("policy_file")
	_ = viper.BindEnv("default_rule")
	_ = viper.BindEnv("raise_error")
	_ = viper.BindEnv("reload_on_change")
	_ = viper.BindEnv("max_rule_recursion_depth")
	_ = viper.BindEnv("log_level")
	_ = viper.BindEnv("metrics_enabled")
}

// LoadConfig reads the configuration file, applies environment overrides,
// sets defaults, and validates the result.
func LoadConfig() (*EnforcerConfig, error) {
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found -- continue with env vars only.
	}

	var cfg EnforcerConfig
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.SetDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// ConfigFileUsed returns the path to the configuration file that was
// loaded, or the empty string if none was found (env vars only mode).
func ConfigFileUsed() string {
	return viper.ConfigFileUsed()
}

package config

import (
	"context"
	stderrors "errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/rs/zerolog"
	"github.com/spf13/viper"

	"github.com/patchwright/patchwright/internal/errors"
)

// newViperInstance creates a new Viper instance with standard Patchwright
// configuration. This includes the environment variable prefix
// (PATCHWRIGHT_), key replacer, and defaults.
func newViperInstance() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("PATCHWRIGHT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// setDefaults configures all default values on the Viper instance.
// These defaults match the values from DefaultConfig().
// IMPORTANT: Keys must match the YAML tag names exactly for proper mapping.
func setDefaults(v *viper.Viper) {
	defaults := DefaultConfig()

	// Synthesis defaults
	v.SetDefault("synthesis.endpoint", defaults.Synthesis.Endpoint)
	v.SetDefault("synthesis.api_key_env_var", defaults.Synthesis.APIKeyEnvVar)
	v.SetDefault("synthesis.default_model", defaults.Synthesis.DefaultModel)
	v.SetDefault("synthesis.fallback_model", defaults.Synthesis.FallbackModel)
	v.SetDefault("synthesis.timeout", defaults.Synthesis.Timeout.String())
	v.SetDefault("synthesis.max_retries", defaults.Synthesis.MaxRetries)

	// Sandbox defaults
	v.SetDefault("sandbox.endpoint", defaults.Sandbox.Endpoint)
	v.SetDefault("sandbox.headless", defaults.Sandbox.Headless)
	v.SetDefault("sandbox.browser_type", defaults.Sandbox.BrowserType)
	v.SetDefault("sandbox.default_timeout_ms", defaults.Sandbox.DefaultTimeoutMS)

	// Repair defaults
	v.SetDefault("repair.max_repair_attempts", defaults.Repair.MaxRepairAttempts)
	v.SetDefault("repair.auto_heal", defaults.Repair.AutoHeal)
	v.SetDefault("repair.confidence_threshold", defaults.Repair.ConfidenceThreshold)
	v.SetDefault("repair.run_deadline", defaults.Repair.RunDeadline.String())

	// Budget defaults
	v.SetDefault("budget.max_cost_per_run", defaults.Budget.MaxCostPerRun)
	v.SetDefault("budget.daily_budget", defaults.Budget.DailyBudget)

	v.SetDefault("data_dir", "")
}

// viperDecoderOption returns the decoder options for Viper unmarshal.
// This configures mapstructure to handle time.Duration conversion from strings.
func viperDecoderOption() viper.DecoderConfigOption {
	return viper.DecodeHook(
		mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
		),
	)
}

// isConfigNotFoundError returns true if the error is a viper config file not
// found error.
func isConfigNotFoundError(err error) bool {
	if err == nil {
		return false
	}
	var configNotFoundErr viper.ConfigFileNotFoundError
	return stderrors.As(err, &configNotFoundErr)
}

// unmarshalAndValidate unmarshals viper config into Config and validates it.
func unmarshalAndValidate(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg, viperDecoderOption()); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal config")
	}
	if err := Validate(&cfg); err != nil {
		return nil, errors.Wrap(err, "invalid configuration")
	}
	return &cfg, nil
}

// Load reads configuration from all available sources with proper precedence.
// Configuration is loaded in the following order (highest precedence first):
//  1. Environment variables (PATCHWRIGHT_* prefix)
//  2. Project config (.patchwright/config.yaml)
//  3. Global config (~/.patchwright/config.yaml)
//  4. Built-in defaults
//
// For CLI flag overrides, use LoadWithOverrides instead.
//
// The function returns an error only for actual configuration problems,
// not for missing config files (which are expected in many scenarios).
func Load(ctx context.Context) (*Config, error) {
	v := newViperInstance()

	// Global config provides user-wide defaults (lower precedence)
	if err := loadGlobalConfig(v); err != nil {
		return nil, err
	}

	// Project config merges over global (higher precedence)
	if err := loadProjectConfig(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viperDecoderOption()); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal config")
	}

	logger := zerolog.Ctx(ctx).With().Str("component", "config").Logger()
	logger.Debug().
		Str("synthesis.default_model", cfg.Synthesis.DefaultModel).
		Int("repair.max_repair_attempts", cfg.Repair.MaxRepairAttempts).
		Float64("budget.daily_budget", cfg.Budget.DailyBudget).
		Msg("configuration loaded and unmarshaled")

	if err := Validate(&cfg); err != nil {
		return nil, errors.Wrap(err, "invalid configuration")
	}

	return &cfg, nil
}

// loadGlobalConfig attempts to load the global config file
// (~/.patchwright/config.yaml). Returns nil if the file doesn't exist or
// the home directory cannot be determined.
func loadGlobalConfig(v *viper.Viper) error {
	globalConfigPath, ok := getGlobalConfigPathIfExists()
	if !ok {
		return nil
	}

	v.SetConfigFile(globalConfigPath)
	if err := v.ReadInConfig(); err != nil && !isConfigNotFoundError(err) {
		return errors.Wrap(err, "failed to read global config file")
	}
	return nil
}

// getGlobalConfigPathIfExists returns the global config path if it exists.
func getGlobalConfigPathIfExists() (string, bool) {
	globalDir, err := GlobalConfigDir()
	if err != nil {
		return "", false
	}

	globalConfigPath := filepath.Join(globalDir, "config.yaml")
	if _, err := os.Stat(globalConfigPath); err != nil {
		return "", false
	}

	return globalConfigPath, true
}

// loadProjectConfig attempts to load the project config file
// (.patchwright/config.yaml). Returns nil if the file doesn't exist.
func loadProjectConfig(v *viper.Viper) error {
	projectConfigPath := ProjectConfigPath()
	if !fileExists(projectConfigPath) {
		return nil
	}

	v.SetConfigFile(projectConfigPath)
	if err := v.MergeInConfig(); err != nil && !isConfigNotFoundError(err) {
		return errors.Wrap(err, "failed to read project config file")
	}
	return nil
}

// fileExists returns true if the file at path exists.
func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// LoadWithOverrides loads configuration and applies CLI flag overrides.
// The overrides parameter contains values from CLI flags which have the
// highest precedence in the configuration hierarchy.
//
// Only non-zero values in overrides are applied. Zero values are ignored
// to allow partial overrides. Boolean fields cannot be overridden to false
// through this function; CLI implementations handle changed bool flags
// directly.
func LoadWithOverrides(ctx context.Context, overrides *Config) (*Config, error) {
	cfg, err := Load(ctx)
	if err != nil {
		return nil, err
	}

	if overrides != nil {
		applyOverrides(cfg, overrides)
	}

	// Re-validate after applying overrides
	if err := Validate(cfg); err != nil {
		return nil, errors.Wrap(err, "invalid configuration after overrides")
	}

	return cfg, nil
}

// LoadFromPath loads configuration from one specific file path.
// This is primarily intended for testing.
func LoadFromPath(path string) (*Config, error) {
	v := newViperInstance()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		if isConfigNotFoundError(err) {
			return nil, errors.ErrConfigNotFound
		}
		return nil, errors.Wrap(err, "failed to read config file")
	}
	return unmarshalAndValidate(v)
}

// applyOverrides merges non-zero override values into the config.
func applyOverrides(cfg, overrides *Config) {
	if overrides.Synthesis.Endpoint != "" {
		cfg.Synthesis.Endpoint = overrides.Synthesis.Endpoint
	}
	if overrides.Synthesis.DefaultModel != "" {
		cfg.Synthesis.DefaultModel = overrides.Synthesis.DefaultModel
	}
	if overrides.Synthesis.FallbackModel != "" {
		cfg.Synthesis.FallbackModel = overrides.Synthesis.FallbackModel
	}
	if overrides.Synthesis.Timeout != 0 {
		cfg.Synthesis.Timeout = overrides.Synthesis.Timeout
	}
	if overrides.Sandbox.Endpoint != "" {
		cfg.Sandbox.Endpoint = overrides.Sandbox.Endpoint
	}
	if overrides.Sandbox.BrowserType != "" {
		cfg.Sandbox.BrowserType = overrides.Sandbox.BrowserType
	}
	if overrides.Sandbox.DefaultTimeoutMS != 0 {
		cfg.Sandbox.DefaultTimeoutMS = overrides.Sandbox.DefaultTimeoutMS
	}
	if overrides.Repair.MaxRepairAttempts != 0 {
		cfg.Repair.MaxRepairAttempts = overrides.Repair.MaxRepairAttempts
	}
	if overrides.Repair.RunDeadline != 0 {
		cfg.Repair.RunDeadline = overrides.Repair.RunDeadline
	}
	if overrides.Budget.MaxCostPerRun != 0 {
		cfg.Budget.MaxCostPerRun = overrides.Budget.MaxCostPerRun
	}
	if overrides.Budget.DailyBudget != 0 {
		cfg.Budget.DailyBudget = overrides.Budget.DailyBudget
	}
	if overrides.DataDir != "" {
		cfg.DataDir = overrides.DataDir
	}
}

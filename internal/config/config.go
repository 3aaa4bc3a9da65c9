// Package config provides configuration management for Patchwright with layered precedence.
//
// Configuration sources are loaded in the following order (highest precedence first):
//  1. CLI flags (passed via LoadWithOverrides)
//  2. Environment variables (PATCHWRIGHT_* prefix)
//  3. Project config (.patchwright/config.yaml)
//  4. Global config (~/.patchwright/config.yaml)
//  5. Built-in defaults
//
// Each higher level completely overrides the lower level for the same key.
//
// IMPORTANT: This package may import internal/constants and internal/errors,
// but MUST NOT import internal/domain or other internal packages.
package config

import "time"

// Config is the root configuration structure for Patchwright.
// It contains all configuration sections for the application.
type Config struct {
	// Synthesis contains settings for the script synthesis service.
	Synthesis SynthesisConfig `yaml:"synthesis" mapstructure:"synthesis"`

	// Sandbox contains settings for the execution sandbox service.
	Sandbox SandboxConfig `yaml:"sandbox" mapstructure:"sandbox"`

	// Repair contains settings for the adaptive repair loop.
	Repair RepairConfig `yaml:"repair" mapstructure:"repair"`

	// Budget contains cost ceilings for runs and daily spend.
	Budget BudgetConfig `yaml:"budget" mapstructure:"budget"`

	// DataDir overrides the directory for run state and the cost ledger.
	// Empty means ~/.patchwright.
	DataDir string `yaml:"data_dir" mapstructure:"data_dir"`
}

// SynthesisConfig contains settings for the script synthesis adapter.
type SynthesisConfig struct {
	// Endpoint is the base URL of the synthesis service
	// (OpenRouter-compatible chat completions API).
	Endpoint string `yaml:"endpoint" mapstructure:"endpoint"`

	// APIKeyEnvVar names the environment variable holding the API key.
	// This keeps API keys out of config files.
	// Default: "OPENROUTER_API_KEY"
	APIKeyEnvVar string `yaml:"api_key_env_var" mapstructure:"api_key_env_var"`

	// DefaultModel is the model used for generation and repair.
	DefaultModel string `yaml:"default_model" mapstructure:"default_model"`

	// FallbackModel is tried when the default model fails with a
	// non-recoverable synthesis error. Empty disables fallback.
	FallbackModel string `yaml:"fallback_model" mapstructure:"fallback_model"`

	// Timeout is the maximum duration for one synthesis call.
	Timeout time.Duration `yaml:"timeout" mapstructure:"timeout"`

	// MaxRetries is the number of network-level retries for transient
	// synthesis failures. Retries never create extra script versions.
	MaxRetries int `yaml:"max_retries" mapstructure:"max_retries"`
}

// SandboxConfig contains settings for the execution sandbox adapter.
type SandboxConfig struct {
	// Endpoint is the base URL of the execution sandbox service.
	Endpoint string `yaml:"endpoint" mapstructure:"endpoint"`

	// Headless controls whether the browser runs headless.
	// Default: true
	Headless bool `yaml:"headless" mapstructure:"headless"`

	// BrowserType selects the browser engine (chromium, firefox, webkit).
	BrowserType string `yaml:"browser_type" mapstructure:"browser_type"`

	// DefaultTimeoutMS is the per-attempt script timeout in milliseconds.
	DefaultTimeoutMS int `yaml:"default_timeout_ms" mapstructure:"default_timeout_ms"`
}

// RepairConfig contains settings for the adaptive repair loop.
type RepairConfig struct {
	// MaxRepairAttempts is the number of repair attempts after the initial
	// attempt. Must be >= 0.
	MaxRepairAttempts int `yaml:"max_repair_attempts" mapstructure:"max_repair_attempts"`

	// AutoHeal enables automatic repair on failures.
	// Default: true
	AutoHeal bool `yaml:"auto_heal" mapstructure:"auto_heal"`

	// ConfidenceThreshold is the minimum diagnosis confidence treated as a
	// usable repair signal. Tunable policy; the mandatory stop bounds are
	// unaffected by this value.
	ConfidenceThreshold float64 `yaml:"confidence_threshold" mapstructure:"confidence_threshold"`

	// RunDeadline bounds a whole run's wall-clock time.
	RunDeadline time.Duration `yaml:"run_deadline" mapstructure:"run_deadline"`
}

// BudgetConfig contains cost ceilings in USD.
type BudgetConfig struct {
	// MaxCostPerRun caps the spend of a single run.
	MaxCostPerRun float64 `yaml:"max_cost_per_run" mapstructure:"max_cost_per_run"`

	// DailyBudget caps total spend per UTC calendar day across all runs.
	DailyBudget float64 `yaml:"daily_budget" mapstructure:"daily_budget"`
}

package config

import (
	"github.com/patchwright/patchwright/internal/constants"
)

// DefaultConfig returns a new Config with sensible default values.
// These defaults are used as the base layer that can be overridden by
// config files, environment variables, and CLI flags.
func DefaultConfig() *Config {
	return &Config{
		Synthesis: SynthesisConfig{
			// Endpoint: OpenRouter's chat completions API is the default
			// synthesis backend; any compatible endpoint works.
			Endpoint: "https://openrouter.ai/api/v1",

			// APIKeyEnvVar: keeps the key out of config files.
			APIKeyEnvVar: "OPENROUTER_API_KEY",

			// DefaultModel: balance of capability and cost for script
			// generation. Override for harder pages.
			DefaultModel: constants.DefaultModel,

			// FallbackModel: tried when the default model can't produce a
			// usable script.
			FallbackModel: constants.DefaultFallbackModel,

			Timeout:    constants.DefaultSynthesisTimeout,
			MaxRetries: constants.DefaultSynthesisRetries,
		},
		Sandbox: SandboxConfig{
			// Endpoint: empty means the CLI must be pointed at a sandbox
			// explicitly; there is no safe default execution target.
			Endpoint: "",

			// Headless: true because most deployments have no display.
			Headless: true,

			BrowserType:      constants.DefaultBrowserType,
			DefaultTimeoutMS: constants.DefaultExecutionTimeoutMS,
		},
		Repair: RepairConfig{
			MaxRepairAttempts:   constants.DefaultMaxRepairAttempts,
			AutoHeal:            true,
			ConfidenceThreshold: constants.DefaultConfidenceThreshold,
			RunDeadline:         constants.DefaultRunDeadline,
		},
		Budget: BudgetConfig{
			MaxCostPerRun: constants.DefaultMaxCostPerRun,
			DailyBudget:   constants.DefaultDailyBudget,
		},
	}
}

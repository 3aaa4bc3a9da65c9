package config

import (
	"net/url"

	"github.com/patchwright/patchwright/internal/errors"
)

// Validate checks the configuration for invalid or inconsistent values.
// It returns an error describing the first validation failure found.
//
// Validation rules:
//   - synthesis endpoint must be an absolute URL; timeout positive
//   - sandbox timeout must be positive; browser type recognized
//   - max_repair_attempts must be >= 0
//   - confidence threshold must be within [0, 1]
//   - budget ceilings must be positive
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.ErrConfigNil
	}

	if err := validateSynthesisConfig(&cfg.Synthesis); err != nil {
		return err
	}
	if err := validateSandboxConfig(&cfg.Sandbox); err != nil {
		return err
	}
	if err := validateRepairConfig(&cfg.Repair); err != nil {
		return err
	}
	return validateBudgetConfig(&cfg.Budget)
}

// validateSynthesisConfig checks synthesis-specific configuration values.
func validateSynthesisConfig(cfg *SynthesisConfig) error {
	if cfg.Endpoint == "" {
		return errors.Wrap(errors.ErrConfigInvalid,
			"synthesis.endpoint must not be empty")
	}
	if u, err := url.Parse(cfg.Endpoint); err != nil || u.Scheme == "" || u.Host == "" {
		return errors.Wrapf(errors.ErrConfigInvalid,
			"synthesis.endpoint %q is not an absolute URL", cfg.Endpoint)
	}
	if cfg.Timeout <= 0 {
		return errors.Wrapf(errors.ErrConfigInvalid,
			"synthesis.timeout must be positive, got %s", cfg.Timeout)
	}
	if cfg.MaxRetries < 0 {
		return errors.Wrapf(errors.ErrConfigInvalid,
			"synthesis.max_retries must be >= 0, got %d", cfg.MaxRetries)
	}
	if cfg.DefaultModel == "" {
		return errors.Wrap(errors.ErrConfigInvalid,
			"synthesis.default_model must not be empty")
	}
	return nil
}

// validateSandboxConfig checks sandbox-specific configuration values.
func validateSandboxConfig(cfg *SandboxConfig) error {
	if cfg.DefaultTimeoutMS <= 0 {
		return errors.Wrapf(errors.ErrConfigInvalid,
			"sandbox.default_timeout_ms must be positive, got %d", cfg.DefaultTimeoutMS)
	}

	switch cfg.BrowserType {
	case "chromium", "firefox", "webkit":
	default:
		return errors.Wrapf(errors.ErrConfigInvalid,
			"sandbox.browser_type must be chromium, firefox, or webkit, got %q", cfg.BrowserType)
	}
	return nil
}

// validateRepairConfig checks repair-loop configuration values.
func validateRepairConfig(cfg *RepairConfig) error {
	if cfg.MaxRepairAttempts < 0 {
		return errors.Wrapf(errors.ErrConfigInvalid,
			"repair.max_repair_attempts must be >= 0, got %d", cfg.MaxRepairAttempts)
	}
	if cfg.ConfidenceThreshold < 0 || cfg.ConfidenceThreshold > 1 {
		return errors.Wrapf(errors.ErrConfigInvalid,
			"repair.confidence_threshold must be within [0, 1], got %g", cfg.ConfidenceThreshold)
	}
	if cfg.RunDeadline <= 0 {
		return errors.Wrapf(errors.ErrConfigInvalid,
			"repair.run_deadline must be positive, got %s", cfg.RunDeadline)
	}
	return nil
}

// validateBudgetConfig checks budget ceilings.
func validateBudgetConfig(cfg *BudgetConfig) error {
	if cfg.MaxCostPerRun <= 0 {
		return errors.Wrapf(errors.ErrConfigInvalid,
			"budget.max_cost_per_run must be positive, got %g", cfg.MaxCostPerRun)
	}
	if cfg.DailyBudget <= 0 {
		return errors.Wrapf(errors.ErrConfigInvalid,
			"budget.daily_budget must be positive, got %g", cfg.DailyBudget)
	}
	return nil
}

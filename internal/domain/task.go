// Package domain provides shared domain types for the Patchwright repair loop.
// These types are used across all internal packages to ensure consistent data structures.
//
// This package follows strict import rules:
//   - CAN import: internal/constants, internal/errors, standard library
//   - MUST NOT import: any other internal packages
//
// All JSON field names use snake_case per architecture requirements.
package domain

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/patchwright/patchwright/internal/constants"
	pwerrors "github.com/patchwright/patchwright/internal/errors"
)

// Task is a natural-language browser automation request.
// A task is validated when a run starts and is immutable thereafter.
//
// Example JSON representation:
//
//	{
//	    "description": "Log in and verify the dashboard loads",
//	    "target_url": "https://example.com/login",
//	    "config": {...}
//	}
type Task struct {
	// Description is the natural-language statement of what to automate.
	Description string `json:"description"`

	// TargetURL is the starting URL for the automation, if any.
	TargetURL string `json:"target_url,omitempty"`

	// Config holds per-task execution and repair settings.
	Config TaskConfig `json:"config"`
}

// TaskConfig holds configuration options for a single run.
// Zero values are replaced with defaults by ApplyDefaults.
type TaskConfig struct {
	// Headless controls whether the sandbox runs the browser headless.
	Headless bool `json:"headless"`

	// BrowserType selects the browser engine (chromium, firefox, webkit).
	BrowserType string `json:"browser_type,omitempty"`

	// TimeoutMS is the per-attempt script execution timeout in milliseconds.
	TimeoutMS int `json:"timeout_ms,omitempty"`

	// MaxRepairAttempts is the number of repair attempts after the initial
	// attempt. Must be >= 0. A run executes at most MaxRepairAttempts+1
	// attempts.
	MaxRepairAttempts int `json:"max_repair_attempts"`

	// AutoHeal enables automatic repair on failures. When false, the run
	// stops after the first failed attempt.
	AutoHeal bool `json:"auto_heal"`

	// RunDeadline bounds the whole run's wall-clock time, independent of
	// the per-attempt timeout. Zero means the default deadline.
	RunDeadline time.Duration `json:"run_deadline,omitempty"`
}

// ApplyDefaults fills in zero-valued configuration fields.
func (c *TaskConfig) ApplyDefaults() {
	if c.BrowserType == "" {
		c.BrowserType = constants.DefaultBrowserType
	}
	if c.TimeoutMS == 0 {
		c.TimeoutMS = constants.DefaultExecutionTimeoutMS
	}
	if c.RunDeadline == 0 {
		c.RunDeadline = constants.DefaultRunDeadline
	}
}

// Validate checks the task for configuration faults.
// Validation happens at run initialization, before any cost is incurred,
// and returns errors wrapped with ErrInvalidTask.
func (t *Task) Validate() error {
	if strings.TrimSpace(t.Description) == "" {
		return fmt.Errorf("%w: description %w", pwerrors.ErrInvalidTask, pwerrors.ErrEmptyValue)
	}
	if t.TargetURL != "" {
		u, err := url.Parse(t.TargetURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("%w: target_url %q is not an absolute URL", pwerrors.ErrInvalidTask, t.TargetURL)
		}
	}
	if t.Config.MaxRepairAttempts < 0 {
		return fmt.Errorf("%w: max_repair_attempts must be >= 0, got %d",
			pwerrors.ErrInvalidTask, t.Config.MaxRepairAttempts)
	}
	if t.Config.TimeoutMS < 0 {
		return fmt.Errorf("%w: timeout_ms must be >= 0, got %d",
			pwerrors.ErrInvalidTask, t.Config.TimeoutMS)
	}
	return nil
}

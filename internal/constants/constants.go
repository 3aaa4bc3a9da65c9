// Package constants provides centralized constants for Patchwright.
//
// This package defines statuses, defaults, and paths shared across the
// application. It MUST NOT import any other internal packages.
package constants

import "time"

// Application identity constants.
const (
	// AppName is the application name used in logs and user-facing output.
	AppName = "patchwright"

	// PatchwrightHome is the directory name for configuration and state,
	// relative to the user's home directory (global) or the project root.
	PatchwrightHome = ".patchwright"
)

// Synthesis defaults.
const (
	// DefaultModel is the model used for script synthesis and repair.
	// Chosen for the balance of capability and cost.
	DefaultModel = "anthropic/claude-3.5-haiku"

	// DefaultFallbackModel is tried when the default model fails with a
	// non-recoverable synthesis error.
	DefaultFallbackModel = "openai/gpt-4o-mini"

	// DefaultSynthesisTimeout is the maximum duration for one synthesis call.
	DefaultSynthesisTimeout = 2 * time.Minute

	// DefaultSynthesisRetries is the number of network-level retries for a
	// transient synthesis failure. Each successful response still yields
	// exactly one new script version.
	DefaultSynthesisRetries = 2
)

// Execution defaults.
const (
	// DefaultBrowserType is the browser engine requested from the sandbox.
	DefaultBrowserType = "chromium"

	// DefaultExecutionTimeoutMS is the per-attempt script timeout in
	// milliseconds, matching the sandbox wire format.
	DefaultExecutionTimeoutMS = 30000

	// DefaultRunDeadline bounds a whole run's wall-clock time, independent
	// of the per-attempt timeout.
	DefaultRunDeadline = 15 * time.Minute
)

// Repair defaults.
const (
	// DefaultMaxRepairAttempts is the number of repair attempts after the
	// initial attempt. A run therefore executes at most N+1 attempts.
	DefaultMaxRepairAttempts = 3

	// DefaultConfidenceThreshold is the minimum classifier confidence for a
	// diagnosis to be considered a usable repair signal. Tunable policy,
	// not a hard bound.
	DefaultConfidenceThreshold = 0.5
)

// Budget defaults, in USD.
const (
	// DefaultMaxCostPerRun caps the spend of a single run.
	DefaultMaxCostPerRun = 0.50

	// DefaultDailyBudget caps total spend per UTC calendar day across runs.
	DefaultDailyBudget = 5.00

	// DefaultCostEstimate is reserved before a synthesis call when no
	// better estimate is available.
	DefaultCostEstimate = 0.01
)

// Logging constants.
const (
	// LogsDir is the directory name where log files are stored.
	LogsDir = "logs"

	// CLILogFileName is the name of the global CLI log file.
	CLILogFileName = "patchwright.log"

	// LogMaxSizeMB is the maximum size of a log file before rotation.
	LogMaxSizeMB = 10

	// LogMaxBackups is the number of rotated log files to keep.
	LogMaxBackups = 3

	// LogMaxAgeDays is the maximum age of a rotated log file in days.
	LogMaxAgeDays = 30

	// LogCompress enables gzip compression of rotated log files.
	LogCompress = true
)

// RunSchemaVersion tracks the persisted run file format.
// Increment when making breaking changes to the run JSON structure.
const RunSchemaVersion = 1

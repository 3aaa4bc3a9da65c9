// Package errors provides centralized error handling for Patchwright.
//
// This package defines sentinel errors used for programmatic error categorization
// throughout the application. All error types can be checked using errors.Is().
//
// IMPORTANT: This package MUST NOT import any other internal packages.
// Only standard library imports are allowed.
package errors

import "errors"

// Sentinel errors for error categorization.
// These allow callers to check error types with errors.Is().
// All errors use lowercase descriptions per Go conventions.
var (
	// ErrInvalidTask indicates that a task failed validation at run
	// initialization, before any cost was incurred.
	ErrInvalidTask = errors.New("invalid task")

	// ErrInvalidTransition indicates an attempted state machine transition
	// that is not permitted by the transition table.
	ErrInvalidTransition = errors.New("invalid state transition")

	// ErrRunFinalized indicates an operation on a run whose final status
	// has already been set. A run is finalized exactly once.
	ErrRunFinalized = errors.New("run already finalized")

	// ErrBudgetExceeded indicates the cost ledger denied a reservation
	// because it would exceed the per-run or daily ceiling.
	ErrBudgetExceeded = errors.New("budget exceeded")

	// ErrSynthesis indicates the script synthesis service failed to produce
	// a script (infrastructure fault, not a script-execution failure).
	ErrSynthesis = errors.New("script synthesis failed")

	// ErrSandbox indicates the execution sandbox itself faulted
	// (infrastructure fault, not a script-execution failure).
	ErrSandbox = errors.New("execution sandbox failed")

	// ErrConfigNil indicates that a nil config was passed to validation.
	ErrConfigNil = errors.New("config is nil")

	// ErrConfigInvalid indicates an invalid configuration value.
	ErrConfigInvalid = errors.New("invalid configuration")

	// ErrConfigNotFound indicates that the configuration file was not found.
	ErrConfigNotFound = errors.New("config file not found")

	// ErrEmptyValue indicates that a required value was empty.
	ErrEmptyValue = errors.New("value cannot be empty")

	// ErrRunNotFound indicates a run ID that does not exist in the store.
	ErrRunNotFound = errors.New("run not found")

	// ErrRunExists indicates an attempt to create a run that already exists.
	ErrRunExists = errors.New("run already exists")

	// ErrNoFallbackModels indicates the synthesis fallback chain is empty.
	ErrNoFallbackModels = errors.New("no fallback models available")

	// ErrInvalidOutputFormat indicates an invalid output format was specified.
	ErrInvalidOutputFormat = errors.New("invalid output format")

	// ErrLedgerClosed indicates an operation on a closed cost ledger store.
	ErrLedgerClosed = errors.New("ledger store closed")
)

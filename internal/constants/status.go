package constants

// RunStatus represents the terminal outcome of a run.
// Status values use snake_case for JSON serialization compatibility.
type RunStatus string

// Run status constants define the valid final states of a run.
// A run is finalized exactly once; Pending and Running are the only
// non-terminal values.
const (
	// RunStatusPending indicates a run has been created but not yet started.
	RunStatusPending RunStatus = "pending"

	// RunStatusRunning indicates the attempt loop is actively executing.
	RunStatusRunning RunStatus = "running"

	// RunStatusSucceeded indicates an attempt's execution completed successfully.
	RunStatusSucceeded RunStatus = "succeeded"

	// RunStatusFailed indicates the run stopped without success and without
	// hitting a budget or attempt ceiling (e.g., auto-heal disabled).
	RunStatusFailed RunStatus = "failed"

	// RunStatusBudgetExhausted indicates the cost ledger denied a reservation.
	// This is fatal to the run and never retried.
	RunStatusBudgetExhausted RunStatus = "budget_exhausted"

	// RunStatusAttemptLimitExhausted indicates the configured repair attempt
	// ceiling was reached (initial attempt + N repairs).
	RunStatusAttemptLimitExhausted RunStatus = "attempt_limit_exhausted"

	// RunStatusUnrecoverable indicates the repair planner gave up because two
	// consecutive failures could not be classified.
	RunStatusUnrecoverable RunStatus = "unrecoverable"

	// RunStatusAborted indicates an external cancellation signal stopped the
	// run while an external call was in flight.
	RunStatusAborted RunStatus = "aborted"
)

// String returns the string representation of the RunStatus.
// This implements fmt.Stringer for convenient logging and debugging.
func (s RunStatus) String() string {
	return string(s)
}

// RunState represents a state of the attempt state machine that drives a run.
// States are distinct from RunStatus: a state describes where the loop is,
// a status describes how the run ended.
type RunState string

// Run state constants define the states of the attempt loop:
//
//	Init → Generating
//	Generating → Executing, Diagnosing, Stopped
//	Executing → Succeeded, Diagnosing, Stopped
//	Diagnosing → Repairing, Stopped
//	Repairing → Generating, Stopped
//
// Succeeded and Stopped are terminal.
const (
	// StateInit validates the task and initializes the run with empty history.
	StateInit RunState = "init"

	// StateGenerating requests a script from the synthesis adapter.
	// Budget reservation happens on entry; denial transitions to Stopped.
	StateGenerating RunState = "generating"

	// StateExecuting runs the script artifact in the execution sandbox.
	StateExecuting RunState = "executing"

	// StateDiagnosing classifies the failure trace into a diagnosis.
	StateDiagnosing RunState = "diagnosing"

	// StateRepairing consults the repair planner for a retry decision.
	StateRepairing RunState = "repairing"

	// StateSucceeded is the terminal state for a successful execution.
	StateSucceeded RunState = "succeeded"

	// StateStopped is the terminal state for any non-success outcome.
	StateStopped RunState = "stopped"
)

// String returns the string representation of the RunState.
func (s RunState) String() string {
	return string(s)
}

// ErrorCategory classifies why a script execution failed.
// The set is closed and enumerable; classifier rules map raw error signals
// onto exactly one category.
type ErrorCategory string

// Error category constants define the closed classification set.
const (
	// CategorySelectorNotFound indicates an element selector could not locate
	// its target on the page.
	CategorySelectorNotFound ErrorCategory = "selector_not_found"

	// CategoryTimeout indicates an operation exceeded its time limit.
	CategoryTimeout ErrorCategory = "timeout"

	// CategoryNavigationFailure indicates page navigation failed
	// (bad URL, aborted load, HTTP error page).
	CategoryNavigationFailure ErrorCategory = "navigation_failure"

	// CategoryAssertionFailure indicates a script assertion did not hold.
	CategoryAssertionFailure ErrorCategory = "assertion_failure"

	// CategoryScriptRuntimeError indicates the script itself raised a
	// runtime error (syntax, reference, type errors).
	CategoryScriptRuntimeError ErrorCategory = "script_runtime_error"

	// CategoryNetworkError indicates connectivity or DNS resolution failure.
	CategoryNetworkError ErrorCategory = "network_error"

	// CategoryUnknown is the fallback when no classifier rule matches.
	// Carries confidence 0.0.
	CategoryUnknown ErrorCategory = "unknown"
)

// String returns the string representation of the ErrorCategory.
func (c ErrorCategory) String() string {
	return string(c)
}

// ValidCategories returns the closed set of error categories.
// The returned slice is a copy; callers may modify it freely.
func ValidCategories() []ErrorCategory {
	return []ErrorCategory{
		CategorySelectorNotFound,
		CategoryTimeout,
		CategoryNavigationFailure,
		CategoryAssertionFailure,
		CategoryScriptRuntimeError,
		CategoryNetworkError,
		CategoryUnknown,
	}
}

package domain

import (
	"time"

	"github.com/patchwright/patchwright/internal/constants"
)

// Attempt is one generate-execute-(diagnose) cycle within a run.
// Attempts form an ordered, append-only sequence; they are never deleted
// or reordered.
type Attempt struct {
	// Ordinal is the 1-based position within the run. Ordinals are
	// contiguous: the Nth appended attempt has ordinal N.
	Ordinal int `json:"ordinal"`

	// Script is the artifact that ran in this attempt.
	Script ScriptArtifact `json:"script"`

	// Trace is the execution outcome.
	Trace ExecutionTrace `json:"trace"`

	// Diagnosis is the failure classification. Nil for successful attempts.
	Diagnosis *Diagnosis `json:"diagnosis,omitempty"`

	// Cost is the total spend incurred at this step in USD:
	// generation plus diagnosis plus repair planning, as applicable.
	Cost float64 `json:"cost"`
}

// Transition records a single state machine transition for the audit trail.
type Transition struct {
	// From is the state before the transition.
	From constants.RunState `json:"from"`

	// To is the state after the transition.
	To constants.RunState `json:"to"`

	// Timestamp is when the transition occurred (UTC).
	Timestamp time.Time `json:"timestamp"`

	// Reason is an optional explanation for the transition.
	Reason string `json:"reason,omitempty"`
}

// Run is one end-to-end automation attempt for a single task, spanning one
// or more attempts. A run is created when automation starts, finalized
// exactly once when the loop terminates, and immutable thereafter.
//
// Invariants:
//   - TotalCost equals the sum of all attempt costs.
//   - Attempt ordinals are contiguous starting at 1.
//   - Status is set to a terminal value exactly once.
type Run struct {
	// ID is the unique run identifier.
	// Format: run-YYYYMMDD-HHMMSS-xxxxxxxx
	ID string `json:"id"`

	// Task is the immutable automation request driving this run.
	Task Task `json:"task"`

	// Attempts is the ordered, append-only attempt history.
	Attempts []Attempt `json:"attempts"`

	// State is the current state machine state.
	State constants.RunState `json:"state"`

	// Status is the run outcome. Pending/Running until finalized.
	Status constants.RunStatus `json:"status"`

	// StopReason explains why a stopped run stopped, in the planner's terms.
	StopReason string `json:"stop_reason,omitempty"`

	// TotalCost is the accumulated spend across all attempts in USD.
	TotalCost float64 `json:"total_cost"`

	// Transitions is the state machine audit trail.
	Transitions []Transition `json:"transitions"`

	// CreatedAt is when the run was created.
	CreatedAt time.Time `json:"created_at"`

	// CompletedAt is when the run was finalized (nil until then).
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	// SchemaVersion indicates the version of the Run struct schema.
	SchemaVersion int `json:"schema_version"`
}

// Finalized reports whether the run's final status has been set.
func (r *Run) Finalized() bool {
	switch r.Status {
	case constants.RunStatusPending, constants.RunStatusRunning:
		return false
	default:
		return true
	}
}

// LatestAttempt returns the most recent attempt, or nil if there are none.
func (r *Run) LatestAttempt() *Attempt {
	if len(r.Attempts) == 0 {
		return nil
	}
	return &r.Attempts[len(r.Attempts)-1]
}

// CurrentVersion returns the version of the most recently generated script,
// or 0 when no script has been generated yet.
func (r *Run) CurrentVersion() int {
	if a := r.LatestAttempt(); a != nil {
		return a.Script.Version
	}
	return 0
}

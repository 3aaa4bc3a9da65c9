// Package run drives the end-to-end automation loop: generate a script,
// execute it, diagnose failures, plan repairs, and repeat until the run
// succeeds or a stop bound fires.
//
// This file implements the run state machine, which enforces valid state
// transitions and maintains an audit trail of all state changes.
//
// Import rules:
//   - CAN import: internal/constants, internal/domain, internal/errors,
//     internal/budget, internal/diagnose, internal/repair, internal/synth,
//     internal/sandbox, internal/clock, std lib
//   - MUST NOT import: internal/cli
package run

import (
	"context"
	"fmt"
	"time"

	"github.com/patchwright/patchwright/internal/constants"
	"github.com/patchwright/patchwright/internal/ctxutil"
	"github.com/patchwright/patchwright/internal/domain"
	pwerrors "github.com/patchwright/patchwright/internal/errors"
)

// ValidTransitions defines all allowed state transitions in the run lifecycle.
// Format: from_state -> []to_states
//
// The state machine follows this flow:
//
//	Init → Generating, Stopped
//	Generating → Executing, Diagnosing, Stopped
//	Executing → Succeeded, Diagnosing, Stopped
//	Diagnosing → Repairing, Stopped
//	Repairing → Generating, Stopped
//
// Generating → Diagnosing covers synthesis infrastructure faults, which are
// recorded as unclassifiable attempts and fed to the planner like any other
// failure. Stopped is reachable from every non-terminal state so budget
// denial and cancellation can end the run wherever they strike.
//
//nolint:gochecknoglobals // Exported for testing and read-only lookup table
var ValidTransitions = map[constants.RunState][]constants.RunState{
	constants.StateInit: {constants.StateGenerating, constants.StateStopped},
	constants.StateGenerating: {
		constants.StateExecuting,
		constants.StateDiagnosing,
		constants.StateStopped,
	},
	constants.StateExecuting: {
		constants.StateSucceeded,
		constants.StateDiagnosing,
		constants.StateStopped,
	},
	constants.StateDiagnosing: {constants.StateRepairing, constants.StateStopped},
	constants.StateRepairing:  {constants.StateGenerating, constants.StateStopped},
}

// terminalStates defines states where no further transitions are allowed.
// Terminal states are those NOT present as keys in ValidTransitions.
//
//nolint:gochecknoglobals // Read-only lookup table for terminal state checks
var terminalStates = map[constants.RunState]bool{
	constants.StateSucceeded: true,
	constants.StateStopped:   true,
}

// IsValidTransition checks if a transition from one state to another is allowed.
// Returns false for transitions from terminal states or to the same state.
func IsValidTransition(from, to constants.RunState) bool {
	if from == to {
		return false
	}

	validTargets, exists := ValidTransitions[from]
	if !exists {
		return false // Terminal state or unknown state
	}
	for _, target := range validTargets {
		if target == to {
			return true
		}
	}
	return false
}

// IsTerminalState returns true for states where no further transitions are
// allowed. Terminal states: Succeeded, Stopped.
func IsTerminalState(state constants.RunState) bool {
	return terminalStates[state]
}

// Transition validates and applies a state transition to the run, stamping
// the audit record with now. The caller supplies the time so transitions are
// clocked by the orchestrator's clock rather than the wall clock directly.
// The caller is responsible for persisting the updated run.
//
// Returns an error if:
//   - ctx is canceled
//   - run is nil or already finalized
//   - The transition is invalid (returns wrapped ErrInvalidTransition)
func Transition(ctx context.Context, r *domain.Run, to constants.RunState, reason string, now time.Time) error {
	if err := ctxutil.Canceled(ctx); err != nil {
		return err
	}

	if r == nil {
		return fmt.Errorf("%w: run is nil", pwerrors.ErrInvalidTransition)
	}
	if r.Finalized() {
		return fmt.Errorf("%w: run %s is finalized", pwerrors.ErrRunFinalized, r.ID)
	}

	from := r.State
	if !IsValidTransition(from, to) {
		return fmt.Errorf("%w: cannot transition from %s to %s",
			pwerrors.ErrInvalidTransition, from, to)
	}

	r.Transitions = append(r.Transitions, domain.Transition{
		From:      from,
		To:        to,
		Timestamp: now,
		Reason:    reason,
	})
	r.State = to

	return nil
}

// Finalize sets the run's terminal status exactly once, stamping the
// completion time with now. A second finalization attempt returns
// ErrRunFinalized.
func Finalize(r *domain.Run, status constants.RunStatus, stopReason string, now time.Time) error {
	if r == nil {
		return fmt.Errorf("%w: run is nil", pwerrors.ErrRunFinalized)
	}
	if r.Finalized() {
		return fmt.Errorf("%w: run %s already has status %s", pwerrors.ErrRunFinalized, r.ID, r.Status)
	}

	r.Status = status
	r.StopReason = stopReason
	r.CompletedAt = &now

	return nil
}

package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/patchwright/patchwright/internal/constants"
)

// TestRunFinalized verifies that only terminal statuses count as finalized.
func TestRunFinalized(t *testing.T) {
	tests := []struct {
		status    constants.RunStatus
		finalized bool
	}{
		{constants.RunStatusPending, false},
		{constants.RunStatusRunning, false},
		{constants.RunStatusSucceeded, true},
		{constants.RunStatusFailed, true},
		{constants.RunStatusBudgetExhausted, true},
		{constants.RunStatusAttemptLimitExhausted, true},
		{constants.RunStatusUnrecoverable, true},
		{constants.RunStatusAborted, true},
	}

	for _, tt := range tests {
		t.Run(tt.status.String(), func(t *testing.T) {
			r := &Run{Status: tt.status}
			assert.Equal(t, tt.finalized, r.Finalized())
		})
	}
}

// TestRunLatestAttempt verifies attempt accessors on empty and populated runs.
func TestRunLatestAttempt(t *testing.T) {
	t.Run("empty run", func(t *testing.T) {
		r := &Run{}
		assert.Nil(t, r.LatestAttempt())
		assert.Equal(t, 0, r.CurrentVersion())
	})

	t.Run("returns last attempt", func(t *testing.T) {
		r := &Run{
			Attempts: []Attempt{
				{Ordinal: 1, Script: ScriptArtifact{Version: 1}},
				{Ordinal: 2, Script: ScriptArtifact{Version: 2}},
			},
		}
		latest := r.LatestAttempt()
		require.NotNil(t, latest)
		assert.Equal(t, 2, latest.Ordinal)
		assert.Equal(t, 2, r.CurrentVersion())
	})
}

// TestNewRunResult verifies the consumer-facing projection: attempt
// summaries in order, total cost carried over, and artifact handles
// collected across attempts.
func TestNewRunResult(t *testing.T) {
	diagnosis := &Diagnosis{Category: constants.CategorySelectorNotFound}
	r := &Run{
		ID:         "run-20260829-120000-deadbeef",
		Status:     constants.RunStatusSucceeded,
		StopReason: "",
		TotalCost:  0.05,
		Attempts: []Attempt{
			{
				Ordinal:   1,
				Script:    ScriptArtifact{Version: 1},
				Trace:     TraceFailure("waiting for selector", []string{"shot-1.png"}),
				Diagnosis: diagnosis,
				Cost:      0.02,
			},
			{
				Ordinal: 2,
				Script:  ScriptArtifact{Version: 2},
				Trace: ExecutionTrace{
					Status:          TraceStatusSuccess,
					ArtifactHandles: []string{"shot-2.png", "video-2.webm"},
				},
				Cost: 0.03,
			},
		},
	}

	result := NewRunResult(r)

	assert.Equal(t, r.ID, result.RunID)
	assert.Equal(t, constants.RunStatusSucceeded, result.FinalStatus)
	assert.InDelta(t, 0.05, result.TotalCost, 1e-9)

	require.Len(t, result.Attempts, 2)
	assert.Equal(t, 1, result.Attempts[0].Ordinal)
	assert.Equal(t, constants.CategorySelectorNotFound, result.Attempts[0].DiagnosisCategory)
	assert.Equal(t, TraceStatusFailure, result.Attempts[0].Status)
	assert.Equal(t, 2, result.Attempts[1].ScriptVersion)
	assert.Empty(t, result.Attempts[1].DiagnosisCategory)

	assert.Equal(t, []string{"shot-1.png", "shot-2.png", "video-2.webm"}, result.ArtifactHandles)
}

// TraceFailure builds a failed trace for tests.
func TraceFailure(message string, handles []string) ExecutionTrace {
	return ExecutionTrace{
		Status:          TraceStatusFailure,
		ArtifactHandles: handles,
		Error:           &ErrorSignal{Message: message, FailingStep: -1},
	}
}

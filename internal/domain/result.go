package domain

import "github.com/patchwright/patchwright/internal/constants"

// AttemptSummary is the consumer-facing projection of one attempt.
type AttemptSummary struct {
	// Ordinal is the 1-based attempt position.
	Ordinal int `json:"ordinal"`

	// ScriptVersion is the version of the script that ran.
	ScriptVersion int `json:"script_version"`

	// Status is the trace status (success or failure).
	Status string `json:"status"`

	// DiagnosisCategory is the classified category for failed attempts.
	DiagnosisCategory constants.ErrorCategory `json:"diagnosis_category,omitempty"`

	// Cost is the attempt's spend in USD.
	Cost float64 `json:"cost"`
}

// RunResult is the consumer-facing view of a finalized run.
// It always carries a terminal status explaining why the run stopped,
// never a raw error.
type RunResult struct {
	// RunID identifies the run this result belongs to.
	RunID string `json:"run_id"`

	// FinalStatus is the run's terminal status.
	FinalStatus constants.RunStatus `json:"final_status"`

	// StopReason is the planner's stop reason, when the run stopped.
	StopReason string `json:"stop_reason,omitempty"`

	// TotalCost is the run's accumulated spend in USD.
	TotalCost float64 `json:"total_cost"`

	// Attempts summarizes the attempt history in order.
	Attempts []AttemptSummary `json:"attempts"`

	// ArtifactHandles are the opaque blob references collected across
	// all attempts (screenshots, video, logs).
	ArtifactHandles []string `json:"artifact_handles,omitempty"`
}

// NewRunResult projects a run into its consumer-facing result.
func NewRunResult(run *Run) *RunResult {
	result := &RunResult{
		RunID:       run.ID,
		FinalStatus: run.Status,
		StopReason:  run.StopReason,
		TotalCost:   run.TotalCost,
		Attempts:    make([]AttemptSummary, 0, len(run.Attempts)),
	}

	for _, a := range run.Attempts {
		summary := AttemptSummary{
			Ordinal:       a.Ordinal,
			ScriptVersion: a.Script.Version,
			Status:        a.Trace.Status,
			Cost:          a.Cost,
		}
		if a.Diagnosis != nil {
			summary.DiagnosisCategory = a.Diagnosis.Category
		}
		result.Attempts = append(result.Attempts, summary)
		result.ArtifactHandles = append(result.ArtifactHandles, a.Trace.ArtifactHandles...)
	}

	return result
}

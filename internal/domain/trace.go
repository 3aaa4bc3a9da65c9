package domain

import "time"

// Trace status values for ExecutionTrace.Status.
const (
	// TraceStatusSuccess indicates the script completed all steps.
	TraceStatusSuccess = "success"

	// TraceStatusFailure indicates the script failed; ErrorSignal is set.
	TraceStatusFailure = "failure"
)

// ErrorSignal is the raw failure evidence returned by the sandbox.
// It is the sole input to error classification.
type ErrorSignal struct {
	// Message is the raw error message from the failing script.
	Message string `json:"message"`

	// Stack is an optional stack-like trace, if the sandbox captured one.
	Stack string `json:"stack,omitempty"`

	// FailingStep is the zero-based index of the failing script step,
	// or -1 when unknown.
	FailingStep int `json:"failing_step"`
}

// ExecutionTrace is the outcome of running one ScriptArtifact in the sandbox.
// Traces are immutable once recorded.
type ExecutionTrace struct {
	// Status is TraceStatusSuccess or TraceStatusFailure.
	Status string `json:"status"`

	// Logs are the structured log lines captured during execution.
	Logs []string `json:"logs,omitempty"`

	// ArtifactHandles are opaque references to screenshots, video, and
	// other blobs held by the sandbox. They are never dereferenced here.
	ArtifactHandles []string `json:"artifact_handles,omitempty"`

	// Duration is the wall-clock execution time.
	Duration time.Duration `json:"duration"`

	// Error carries the raw failure signal. Nil on success.
	Error *ErrorSignal `json:"error,omitempty"`
}

// Failed reports whether the trace represents a failed execution.
func (t *ExecutionTrace) Failed() bool {
	return t.Status == TraceStatusFailure
}

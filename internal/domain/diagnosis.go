package domain

import (
	"time"

	"github.com/patchwright/patchwright/internal/constants"
)

// Diagnosis is the typed classification of a failed execution.
// It is derived solely from an ExecutionTrace and never mutated after
// creation; classifying the same trace twice yields an identical diagnosis.
type Diagnosis struct {
	// Category is the classified error category from the closed set.
	Category constants.ErrorCategory `json:"category"`

	// Summary is a human-readable root-cause statement.
	Summary string `json:"summary"`

	// Confidence is the classifier's confidence in [0.0, 1.0].
	// Pattern-based matches carry >= 0.7; the unknown fallback carries 0.0.
	Confidence float64 `json:"confidence"`

	// FixHint is the suggested-fix text passed to the repair request.
	FixHint string `json:"fix_hint,omitempty"`

	// DiagnosedAt is when the classification was produced.
	DiagnosedAt time.Time `json:"diagnosed_at"`
}

// Unclassified reports whether the diagnosis fell through to the
// unknown category.
func (d *Diagnosis) Unclassified() bool {
	return d.Category == constants.CategoryUnknown
}

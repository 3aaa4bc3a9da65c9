// Package run provides the automation run lifecycle for patchwright.
package run

import (
	"time"

	"github.com/patchwright/patchwright/internal/constants"
)

// Metrics collects metrics about run and attempt execution.
// Implementations can send these to monitoring systems like Prometheus,
// StatsD, or custom observability platforms.
type Metrics interface {
	// RunStarted is called when a new run begins execution.
	RunStarted(runID string)

	// RunCompleted is called when a run finalizes.
	RunCompleted(runID string, duration time.Duration, status constants.RunStatus, totalCost float64)

	// AttemptExecuted is called after each attempt completes.
	AttemptExecuted(runID string, ordinal int, duration time.Duration, success bool, cost float64)

	// FailureDiagnosed is called after each failure classification.
	FailureDiagnosed(runID string, category constants.ErrorCategory, confidence float64)

	// BudgetDenied is called when the cost ledger denies a reservation.
	BudgetDenied(runID string, estimate float64)
}

// NoopMetrics is a no-op implementation of Metrics for default behavior.
// Use this when metrics collection is not needed.
type NoopMetrics struct{}

// Ensure NoopMetrics implements Metrics interface.
var _ Metrics = (*NoopMetrics)(nil)

// RunStarted implements Metrics.
func (NoopMetrics) RunStarted(string) {}

// RunCompleted implements Metrics.
func (NoopMetrics) RunCompleted(string, time.Duration, constants.RunStatus, float64) {}

// AttemptExecuted implements Metrics.
func (NoopMetrics) AttemptExecuted(string, int, time.Duration, bool, float64) {}

// FailureDiagnosed implements Metrics.
func (NoopMetrics) FailureDiagnosed(string, constants.ErrorCategory, float64) {}

// BudgetDenied implements Metrics.
func (NoopMetrics) BudgetDenied(string, float64) {}

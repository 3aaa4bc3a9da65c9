package repair

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/patchwright/patchwright/internal/constants"
	"github.com/patchwright/patchwright/internal/domain"
)

func failedAttempt(ordinal, version int, category constants.ErrorCategory, message string) domain.Attempt {
	return domain.Attempt{
		Ordinal: ordinal,
		Script:  domain.ScriptArtifact{Version: version},
		Trace: domain.ExecutionTrace{
			Status: domain.TraceStatusFailure,
			Error:  &domain.ErrorSignal{Message: message, FailingStep: -1},
		},
		Diagnosis: &domain.Diagnosis{
			Category:   category,
			Summary:    "summary for " + string(category),
			Confidence: 0.8,
		},
	}
}

func defaultPlannerConfig() Config {
	return Config{
		MaxRepairAttempts:   3,
		AutoHeal:            true,
		ConfidenceThreshold: 0.5,
	}
}

// TestPlan_AutoHealDisabled verifies the first stop bound: with auto-heal
// off, no repair is ever authorized regardless of remaining attempts.
func TestPlan_AutoHealDisabled(t *testing.T) {
	cfg := defaultPlannerConfig()
	cfg.AutoHeal = false
	planner := NewPlanner(cfg)

	history := []domain.Attempt{
		failedAttempt(1, 1, constants.CategorySelectorNotFound, "waiting for selector"),
	}
	decision := planner.Plan(history, history[0].Diagnosis)

	assert.False(t, decision.Retry)
	assert.Equal(t, StopAutoHealDisabled, decision.Reason)
	assert.Equal(t, constants.RunStatusFailed, decision.Reason.RunStatus())
}

// TestPlan_AttemptCeiling verifies the second stop bound: a run executes at
// most MaxRepairAttempts+1 attempts.
func TestPlan_AttemptCeiling(t *testing.T) {
	tests := []struct {
		name        string
		maxRepairs  int
		attempts    int
		expectRetry bool
	}{
		{"zero repairs stops after first attempt", 0, 1, false},
		{"one repair left", 1, 1, true},
		{"one repair exhausted", 1, 2, false},
		{"three repairs, second attempt", 3, 2, true},
		{"three repairs exhausted", 3, 4, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultPlannerConfig()
			cfg.MaxRepairAttempts = tt.maxRepairs
			planner := NewPlanner(cfg)

			history := make([]domain.Attempt, 0, tt.attempts)
			for i := 1; i <= tt.attempts; i++ {
				history = append(history, failedAttempt(i, i, constants.CategoryTimeout, "timed out"))
			}
			decision := planner.Plan(history, history[len(history)-1].Diagnosis)

			assert.Equal(t, tt.expectRetry, decision.Retry)
			if !tt.expectRetry {
				assert.Equal(t, StopAttemptLimitExhausted, decision.Reason)
				assert.Equal(t, constants.RunStatusAttemptLimitExhausted, decision.Reason.RunStatus())
			}
		})
	}
}

// TestPlan_ConsecutiveUnknown verifies the third stop bound: two
// unclassifiable failures in a row end the run as unrecoverable.
func TestPlan_ConsecutiveUnknown(t *testing.T) {
	planner := NewPlanner(defaultPlannerConfig())

	t.Run("two consecutive unknowns stop", func(t *testing.T) {
		history := []domain.Attempt{
			failedAttempt(1, 1, constants.CategoryUnknown, "???"),
			failedAttempt(2, 2, constants.CategoryUnknown, "???"),
		}
		decision := planner.Plan(history, history[1].Diagnosis)

		assert.False(t, decision.Retry)
		assert.Equal(t, StopUnrecoverable, decision.Reason)
		assert.Equal(t, constants.RunStatusUnrecoverable, decision.Reason.RunStatus())
	})

	t.Run("single unknown retries", func(t *testing.T) {
		history := []domain.Attempt{
			failedAttempt(1, 1, constants.CategoryUnknown, "???"),
		}
		decision := planner.Plan(history, history[0].Diagnosis)

		assert.True(t, decision.Retry)
	})

	t.Run("unknown after classified failure retries", func(t *testing.T) {
		history := []domain.Attempt{
			failedAttempt(1, 1, constants.CategorySelectorNotFound, "waiting for selector"),
			failedAttempt(2, 2, constants.CategoryUnknown, "???"),
		}
		decision := planner.Plan(history, history[1].Diagnosis)

		assert.True(t, decision.Retry)
	})

	t.Run("non-adjacent unknowns retry", func(t *testing.T) {
		history := []domain.Attempt{
			failedAttempt(1, 1, constants.CategoryUnknown, "???"),
			failedAttempt(2, 2, constants.CategoryTimeout, "timed out"),
			failedAttempt(3, 3, constants.CategoryUnknown, "???"),
		}
		decision := planner.Plan(history, history[2].Diagnosis)

		assert.True(t, decision.Retry)
	})
}

// TestPlan_StopBoundOrder verifies that auto-heal wins over the attempt
// ceiling when both would fire.
func TestPlan_StopBoundOrder(t *testing.T) {
	cfg := defaultPlannerConfig()
	cfg.AutoHeal = false
	cfg.MaxRepairAttempts = 0
	planner := NewPlanner(cfg)

	history := []domain.Attempt{
		failedAttempt(1, 1, constants.CategoryTimeout, "timed out"),
	}
	decision := planner.Plan(history, history[0].Diagnosis)

	assert.Equal(t, StopAutoHealDisabled, decision.Reason)
}

// TestPlan_HintContents verifies the repair hint carries the diagnosis and
// the recent-failure list.
func TestPlan_HintContents(t *testing.T) {
	planner := NewPlanner(defaultPlannerConfig())

	history := []domain.Attempt{
		failedAttempt(1, 1, constants.CategorySelectorNotFound, `waiting for selector "#login"`),
		failedAttempt(2, 2, constants.CategorySelectorNotFound, `waiting for selector "button.login"`),
	}
	latest := history[1].Diagnosis
	latest.FixHint = "try a role-based selector"

	decision := planner.Plan(history, latest)
	require.True(t, decision.Retry)

	assert.Contains(t, decision.Hint, "Failure category: selector_not_found")
	assert.Contains(t, decision.Hint, "Root cause:")
	assert.Contains(t, decision.Hint, "try a role-based selector")
	assert.Contains(t, decision.Hint, "do not repeat these fixes")
	assert.Contains(t, decision.Hint, "attempt 1 (script v1")
	assert.Contains(t, decision.Hint, "attempt 2 (script v2")
}

// TestPlan_LowConfidenceNote verifies the hint flags diagnoses below the
// confidence threshold.
func TestPlan_LowConfidenceNote(t *testing.T) {
	planner := NewPlanner(defaultPlannerConfig())

	attempt := failedAttempt(1, 1, constants.CategoryTimeout, "timed out")
	attempt.Diagnosis.Confidence = 0.2
	decision := planner.Plan([]domain.Attempt{attempt}, attempt.Diagnosis)

	require.True(t, decision.Retry)
	assert.Contains(t, decision.Hint, "confidence is low")
}

// TestCondense verifies long raw messages are truncated and whitespace is
// collapsed.
func TestCondense(t *testing.T) {
	long := strings.Repeat("selector  not\nfound ", 30)
	out := condense(long)

	assert.LessOrEqual(t, len(out), 203)
	assert.True(t, strings.HasSuffix(out, "..."))
	assert.NotContains(t, out, "\n")
}

// Package repair decides whether and how a failed run attempts another repair.
//
// The planner is a policy over the run's attempt history and the latest
// diagnosis. Confidence thresholds and the repeat-failure window are
// configuration-tunable, but the three stop conditions (auto-heal disabled,
// attempt ceiling, consecutive unclassifiable failures) are mandatory safety
// bounds and always enforced.
//
// Import rules:
//   - CAN import: internal/constants, internal/domain, std lib
//   - MUST NOT import: internal/run, internal/synth, internal/sandbox
package repair

import (
	"fmt"
	"strings"

	"github.com/patchwright/patchwright/internal/constants"
	"github.com/patchwright/patchwright/internal/domain"
)

// StopReason explains why the planner refused another repair attempt.
type StopReason string

// Stop reasons produced by the planner.
const (
	// StopAutoHealDisabled means repair was turned off in the task config.
	StopAutoHealDisabled StopReason = "auto_heal_disabled"

	// StopAttemptLimitExhausted means the run used its initial attempt plus
	// all configured repair attempts.
	StopAttemptLimitExhausted StopReason = "attempt_limit_exhausted"

	// StopUnrecoverable means the last two failures could not be classified.
	// Repairing without a diagnosis signal is assumed non-convergent.
	StopUnrecoverable StopReason = "unrecoverable"
)

// String returns the string representation of the StopReason.
func (r StopReason) String() string {
	return string(r)
}

// RunStatus maps a stop reason to the run's terminal status.
func (r StopReason) RunStatus() constants.RunStatus {
	switch r {
	case StopAttemptLimitExhausted:
		return constants.RunStatusAttemptLimitExhausted
	case StopUnrecoverable:
		return constants.RunStatusUnrecoverable
	case StopAutoHealDisabled:
		return constants.RunStatusFailed
	}
	return constants.RunStatusFailed
}

// Decision is the planner's verdict for one failed attempt.
// Exactly one of Retry or Stop applies.
type Decision struct {
	// Retry is true when another repair attempt is authorized.
	Retry bool

	// Hint is the repair context handed to script synthesis. Set only
	// when Retry is true.
	Hint string

	// Reason explains the stop. Set only when Retry is false.
	Reason StopReason
}

// Config holds the tunable planner policy knobs.
type Config struct {
	// MaxRepairAttempts is the repair ceiling after the initial attempt.
	MaxRepairAttempts int

	// AutoHeal enables repair at all.
	AutoHeal bool

	// ConfidenceThreshold marks a diagnosis as a weak signal when its
	// confidence falls below it. Weak signals still authorize a retry;
	// the hint flags them so synthesis treats the prior fix as suspect.
	ConfidenceThreshold float64

	// RepeatWindow is how many recent failing attempts are condensed into
	// the repair hint so synthesis avoids repeating prior fixes.
	// Zero means the default of 2.
	RepeatWindow int
}

// Planner evaluates the repair policy.
type Planner struct {
	cfg Config
}

// NewPlanner creates a planner with the given policy configuration.
func NewPlanner(cfg Config) *Planner {
	if cfg.RepeatWindow <= 0 {
		cfg.RepeatWindow = 2
	}
	return &Planner{cfg: cfg}
}

// Plan decides whether to authorize another repair attempt.
//
// The mandatory stop bounds are evaluated in order:
//  1. auto-heal disabled
//  2. attempt ceiling reached (initial attempt + N repairs)
//  3. two consecutive unclassifiable failures
//
// Otherwise the decision is a retry carrying a repair hint built from the
// latest diagnosis plus a condensed reference to recent failing attempts.
func (p *Planner) Plan(history []domain.Attempt, latest *domain.Diagnosis) Decision {
	if !p.cfg.AutoHeal {
		return Decision{Reason: StopAutoHealDisabled}
	}

	if len(history) >= p.cfg.MaxRepairAttempts+1 {
		return Decision{Reason: StopAttemptLimitExhausted}
	}

	if p.consecutiveUnknown(history, latest) {
		return Decision{Reason: StopUnrecoverable}
	}

	return Decision{
		Retry: true,
		Hint:  p.buildHint(history, latest),
	}
}

// consecutiveUnknown reports whether the latest diagnosis and the one on the
// immediately preceding attempt are both unclassifiable.
func (p *Planner) consecutiveUnknown(history []domain.Attempt, latest *domain.Diagnosis) bool {
	if latest == nil || !latest.Unclassified() {
		return false
	}
	if len(history) < 2 {
		return false
	}
	prev := history[len(history)-2].Diagnosis
	return prev != nil && prev.Unclassified()
}

// buildHint assembles the repair context handed to script synthesis.
// It carries the diagnosis category, root cause, and fix hint, plus a
// condensed reference to the most recent failing attempts so synthesis
// does not repeat a fix that already failed.
func (p *Planner) buildHint(history []domain.Attempt, latest *domain.Diagnosis) string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("Failure category: %s\n", latest.Category))
	sb.WriteString(fmt.Sprintf("Root cause: %s\n", latest.Summary))
	if latest.FixHint != "" {
		sb.WriteString(fmt.Sprintf("Suggested fix: %s\n", latest.FixHint))
	}
	if latest.Confidence < p.cfg.ConfidenceThreshold {
		sb.WriteString("Note: the diagnosis confidence is low; re-examine the whole failing step rather than applying a narrow fix.\n")
	}

	failures := recentFailures(history, p.cfg.RepeatWindow)
	if len(failures) > 0 {
		sb.WriteString("\nPrevious failing attempts (do not repeat these fixes):\n")
		for _, a := range failures {
			category := constants.CategoryUnknown
			if a.Diagnosis != nil {
				category = a.Diagnosis.Category
			}
			message := ""
			if a.Trace.Error != nil {
				message = a.Trace.Error.Message
			}
			sb.WriteString(fmt.Sprintf("- attempt %d (script v%d, %s): %s\n",
				a.Ordinal, a.Script.Version, category, condense(message)))
		}
	}

	return sb.String()
}

// recentFailures returns up to window failing attempts, newest last.
func recentFailures(history []domain.Attempt, window int) []domain.Attempt {
	failures := make([]domain.Attempt, 0, window)
	for i := len(history) - 1; i >= 0 && len(failures) < window; i-- {
		if history[i].Trace.Failed() {
			failures = append(failures, history[i])
		}
	}
	// Reverse into chronological order
	for i, j := 0, len(failures)-1; i < j; i, j = i+1, j-1 {
		failures[i], failures[j] = failures[j], failures[i]
	}
	return failures
}

// condense truncates a raw error message for inclusion in a hint.
func condense(message string) string {
	const maxLen = 200
	message = strings.Join(strings.Fields(message), " ")
	if len(message) > maxLen {
		return message[:maxLen] + "..."
	}
	return message
}

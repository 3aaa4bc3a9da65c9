// Package diagnose classifies failed execution traces into typed diagnoses.
package diagnose

import (
	"time"

	"github.com/patchwright/patchwright/internal/clock"
	"github.com/patchwright/patchwright/internal/constants"
	"github.com/patchwright/patchwright/internal/domain"
)

// unknownSummary is the root-cause statement for unclassifiable failures.
const unknownSummary = "the failure did not match any known error pattern"

// Classifier is a deterministic, side-effect-free mapping from an execution
// trace to a diagnosis. Classifying the same trace twice yields an identical
// diagnosis (category, confidence, summary).
type Classifier struct {
	rules []Rule
	clock clock.Clock
}

// ClassifierOption configures a Classifier.
type ClassifierOption func(*Classifier)

// WithRules replaces the default rule list. Order is significant:
// the first matching rule wins.
func WithRules(rules []Rule) ClassifierOption {
	return func(c *Classifier) {
		c.rules = rules
	}
}

// WithClassifierClock sets the clock used for the DiagnosedAt timestamp.
func WithClassifierClock(clk clock.Clock) ClassifierOption {
	return func(c *Classifier) {
		c.clock = clk
	}
}

// NewClassifier creates a classifier with the default ordered rule list.
func NewClassifier(opts ...ClassifierOption) *Classifier {
	c := &Classifier{
		rules: DefaultRules(),
		clock: clock.RealClock{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Classify maps a failed execution trace to a diagnosis.
//
// Policy: walk the ordered rules against the raw error message; the first
// matching rule wins. If no rule matches but the trace's duration reached
// the configured per-attempt timeout, the failure is a timeout. Otherwise
// the category is unknown with confidence 0.0.
//
// Successful traces classify as unknown; callers only classify failures.
func (c *Classifier) Classify(trace *domain.ExecutionTrace, timeoutMS int) domain.Diagnosis {
	now := c.clock.Now().UTC()

	message := ""
	if trace.Error != nil {
		message = trace.Error.Message
	}

	for _, rule := range c.rules {
		if rule.Pattern.MatchString(message) {
			return domain.Diagnosis{
				Category:    rule.Category,
				Summary:     rule.Summary,
				Confidence:  rule.Confidence,
				FixHint:     rule.FixHint,
				DiagnosedAt: now,
			}
		}
	}

	// No pattern matched; a trace that ran up to the configured timeout is a
	// timeout even when the sandbox reported no recognizable message.
	if timeoutMS > 0 && trace.Duration >= time.Duration(timeoutMS)*time.Millisecond {
		return domain.Diagnosis{
			Category:    constants.CategoryTimeout,
			Summary:     "execution reached the configured per-attempt timeout",
			Confidence:  0.7,
			FixHint:     "increase the per-attempt timeout or reduce the number of script steps",
			DiagnosedAt: now,
		}
	}

	return domain.Diagnosis{
		Category:    constants.CategoryUnknown,
		Summary:     unknownSummary,
		Confidence:  0.0,
		DiagnosedAt: now,
	}
}

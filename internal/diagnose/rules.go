// Package diagnose classifies failed execution traces into typed diagnoses.
//
// This file defines the ordered rule list. Classification walks the rules in
// slice order and the first matching rule wins; that order is the complete
// tie-break policy. Rules can be replaced or extended without touching the
// orchestrator.
//
// Import rules:
//   - CAN import: internal/constants, internal/domain, std lib
//   - MUST NOT import: internal/run, internal/synth, internal/sandbox
package diagnose

import (
	"regexp"

	"github.com/patchwright/patchwright/internal/constants"
)

// Rule maps raw error-signal text onto one error category.
type Rule struct {
	// Name identifies the rule in logs.
	Name string

	// Pattern is matched against the error signal's message.
	Pattern *regexp.Regexp

	// Category is the classification produced on match.
	Category constants.ErrorCategory

	// Confidence is the diagnosis confidence for this rule's matches.
	// Pattern rules carry >= 0.7.
	Confidence float64

	// Summary is the root-cause statement for this category.
	Summary string

	// FixHint is the suggested-fix text passed into the repair request.
	FixHint string
}

// DefaultRules returns the built-in ordered rule list.
//
// Order matters: a "waiting for selector ... timeout exceeded" message must
// classify as selector_not_found, so the selector rule precedes the timeout
// rule. The returned slice is a fresh copy; callers may reorder or extend it.
func DefaultRules() []Rule {
	return []Rule{
		{
			Name:       "selector",
			Pattern:    regexp.MustCompile(`(?i)waiting for selector|waiting for locator|locator\([^)]*\).*not found|element (?:not found|does not exist)|no node found|no element matches|could not find element|failed to find element|strict mode violation`),
			Category:   constants.CategorySelectorNotFound,
			Confidence: 0.85,
			Summary:    "an element selector could not locate its target on the page",
			FixHint:    "try an alternative selector (text content, role, or CSS), add an explicit wait for the element, and check whether the target sits inside an iframe or shadow DOM",
		},
		{
			Name:       "navigation",
			Pattern:    regexp.MustCompile(`(?i)navigation failed|navigating to .* failed|err_aborted|err_failed|frame was detached|invalid url|http error 4\d\d|http error 5\d\d`),
			Category:   constants.CategoryNavigationFailure,
			Confidence: 0.8,
			Summary:    "page navigation did not complete",
			FixHint:    "verify the target URL, wait for the load event before interacting, and handle redirects or interstitial pages",
		},
		{
			Name:       "assertion",
			Pattern:    regexp.MustCompile(`(?i)assertion (failed|error)|expect\(.*\)|expected .* (but got|received|to be)`),
			Category:   constants.CategoryAssertionFailure,
			Confidence: 0.8,
			Summary:    "a script assertion did not hold against the page state",
			FixHint:    "re-check the expected value against the live page, and make sure the page has settled before asserting",
		},
		{
			Name:       "network",
			Pattern:    regexp.MustCompile(`(?i)net::err_|econnrefused|econnreset|connection refused|dns|name not resolved|unreachable|socket hang up`),
			Category:   constants.CategoryNetworkError,
			Confidence: 0.9,
			Summary:    "network connectivity or DNS resolution failed",
			FixHint:    "verify the URL is reachable, and add retry logic around requests that may fail transiently",
		},
		{
			Name:       "script_runtime",
			Pattern:    regexp.MustCompile(`(?i)referenceerror|typeerror|syntaxerror|rangeerror|is not defined|is not a function|cannot read propert`),
			Category:   constants.CategoryScriptRuntimeError,
			Confidence: 0.75,
			Summary:    "the script raised a runtime error",
			FixHint:    "fix the failing expression; check for null page objects and variables used before assignment",
		},
		{
			Name:       "timeout",
			Pattern:    regexp.MustCompile(`(?i)timed out|timeout .*exceeded|exceeded .*timeout|timeout of \d+ms`),
			Category:   constants.CategoryTimeout,
			Confidence: 0.8,
			Summary:    "an operation exceeded its time limit",
			FixHint:    "increase the step timeout, wait for network idle before interacting, and avoid fixed sleeps",
		},
	}
}

// Package sandbox talks to the browser execution service that runs
// generated scripts in an isolated environment.
//
// The executor never interprets failures. A script that ran and failed
// comes back as a trace with a failed status and an error signal; only
// faults reaching the service itself (network errors, malformed responses)
// surface as Go errors, wrapped with ErrSandbox.
//
// Import rules: may import domain, config, errors, and logging. Must not
// import run, repair, or budget.
package sandbox

import (
	"context"
	"time"

	"github.com/patchwright/patchwright/internal/domain"
)

// Request describes one script execution.
type Request struct {
	// Script is the automation script to execute.
	Script string

	// Headless controls whether the browser renders a window.
	Headless bool

	// BrowserType selects the browser engine (chromium, firefox, webkit).
	BrowserType string

	// TimeoutMS bounds the script's wall-clock runtime in milliseconds.
	TimeoutMS int
}

// Executor runs a script and reports what happened.
//
// Execute returns a trace for every run that reached the browser, including
// failed ones. An error return means the execution service itself was
// unreachable or misbehaved and no trustworthy trace exists.
type Executor interface {
	Execute(ctx context.Context, req *Request) (*domain.ExecutionTrace, error)
}

// timeoutTrace builds the trace reported when the executor had to cut the
// script off itself because the service never answered within the bound.
func timeoutTrace(timeoutMS int, elapsed time.Duration) *domain.ExecutionTrace {
	return &domain.ExecutionTrace{
		Status:   domain.TraceStatusFailure,
		Duration: elapsed,
		Error: &domain.ErrorSignal{
			Message:     "execution exceeded timeout of " + formatMS(timeoutMS),
			FailingStep: -1,
		},
	}
}

func formatMS(ms int) string {
	return (time.Duration(ms) * time.Millisecond).String()
}

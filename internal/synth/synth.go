// Package synth provides the typed boundary to the script synthesis service.
//
// Synthesis turns a natural-language task (and, on repair, the prior script
// plus a repair hint) into an executable browser-automation script. The
// production implementation speaks an OpenRouter-compatible chat completions
// API; tests use mock synthesizers.
//
// Import rules:
//   - CAN import: internal/budget, internal/config, internal/constants,
//     internal/errors, internal/logging, std lib
//   - MUST NOT import: internal/run, internal/cli
package synth

import (
	"context"
	"fmt"
	"strings"
)

// Request contains the parameters for one synthesis call.
type Request struct {
	// Description is the natural-language automation task.
	Description string `json:"description"`

	// TargetURL is the starting URL, if any.
	TargetURL string `json:"target_url,omitempty"`

	// PriorScript is the previous script version when repairing.
	// Empty for initial generation.
	PriorScript string `json:"prior_script,omitempty"`

	// RepairHint is the planner-built repair context. Set only on repairs.
	RepairHint string `json:"repair_hint,omitempty"`

	// Model overrides the configured default model when non-empty.
	Model string `json:"model,omitempty"`
}

// Result is the outcome of a successful synthesis call.
// Each successful result yields exactly one new script artifact version.
type Result struct {
	// Script is the generated automation code.
	Script string `json:"script"`

	// Model is the model that actually produced the script
	// (may differ from the request after fallback).
	Model string `json:"model"`

	// PromptTokens and CompletionTokens are the reported token counts.
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`

	// EstimatedCost is the USD cost derived from the token counts.
	EstimatedCost float64 `json:"estimated_cost"`
}

// Synthesizer is the script synthesis boundary.
type Synthesizer interface {
	// Generate produces a script for the request. Infrastructure faults
	// (network, malformed responses) are returned as errors wrapped with
	// ErrSynthesis; they are never script-execution failures.
	Generate(ctx context.Context, req *Request) (*Result, error)
}

// systemPrompt instructs the model to emit a runnable Playwright script.
const systemPrompt = `You are a browser automation engineer. Generate a complete, runnable Playwright script in JavaScript for the given task. Respond with a single fenced code block containing only the script. Use resilient selectors, explicit waits, and assert the task's success condition at the end.`

// repairSystemPrompt is used when a prior script failed.
const repairSystemPrompt = `You are a browser automation engineer repairing a failed Playwright script. You will receive the original script, a failure diagnosis, and a history of prior failed fixes. Produce a corrected version of the whole script in a single fenced code block. Do not repeat fixes that already failed.`

// buildUserPrompt assembles the user message for a synthesis call.
func buildUserPrompt(req *Request) string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("Task: %s\n", req.Description))
	if req.TargetURL != "" {
		sb.WriteString(fmt.Sprintf("Starting URL: %s\n", req.TargetURL))
	}

	if req.PriorScript != "" {
		sb.WriteString("\nPrevious script:\n```javascript\n")
		sb.WriteString(req.PriorScript)
		sb.WriteString("\n```\n")
	}
	if req.RepairHint != "" {
		sb.WriteString("\nFailure context:\n")
		sb.WriteString(req.RepairHint)
	}

	return sb.String()
}

// selectSystemPrompt chooses the system prompt for the request.
func selectSystemPrompt(req *Request) string {
	if req.PriorScript != "" {
		return repairSystemPrompt
	}
	return systemPrompt
}

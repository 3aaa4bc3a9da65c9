package domain

import "time"

// ScriptArtifact is one generated version of the automation script.
// Versions start at 1 and increase monotonically with each repair.
// An artifact is immutable once produced.
type ScriptArtifact struct {
	// Code is the generated automation script.
	Code string `json:"code"`

	// Version is the monotonically increasing script version, starting at 1.
	Version int `json:"version"`

	// Model is the synthesis model that produced this artifact.
	Model string `json:"model"`

	// PromptTokens and CompletionTokens are the token counts reported by
	// the synthesis service for this generation.
	PromptTokens     int `json:"prompt_tokens,omitempty"`
	CompletionTokens int `json:"completion_tokens,omitempty"`

	// Cost is the synthesis cost of this artifact in USD.
	Cost float64 `json:"cost"`

	// RepairSummary is the diagnosis summary that drove this version.
	// Empty for the initial (version 1) artifact.
	RepairSummary string `json:"repair_summary,omitempty"`

	// GeneratedAt is when the artifact was produced.
	GeneratedAt time.Time `json:"generated_at"`
}

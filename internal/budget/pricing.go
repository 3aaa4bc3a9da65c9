package budget

// modelPricing maps model identifiers to per-million-token prices in USD.
// Unknown models fall back to defaultPricing, which is intentionally on the
// expensive side so estimates err toward denial rather than overspend.
var modelPricing = map[string]struct{ Input, Output float64 }{ //nolint:gochecknoglobals // Read-only pricing table
	"anthropic/claude-3.5-haiku":  {Input: 0.25, Output: 1.25},
	"anthropic/claude-3.5-sonnet": {Input: 3.00, Output: 15.00},
	"openai/gpt-4o-mini":          {Input: 0.15, Output: 0.60},
	"openai/gpt-4o":               {Input: 2.50, Output: 10.00},
}

// defaultPricing is used for models missing from the table.
var defaultPricing = struct{ Input, Output float64 }{Input: 3.00, Output: 15.00} //nolint:gochecknoglobals // Read-only fallback

// Cost calculates the USD cost of a synthesis call from its token counts.
func Cost(model string, promptTokens, completionTokens int) float64 {
	pricing, ok := modelPricing[model]
	if !ok {
		pricing = defaultPricing
	}
	inputCost := float64(promptTokens) / 1_000_000 * pricing.Input
	outputCost := float64(completionTokens) / 1_000_000 * pricing.Output
	return inputCost + outputCost
}

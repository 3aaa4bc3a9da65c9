package synth

import (
	"context"

	"github.com/rs/zerolog"

	pwerrors "github.com/patchwright/patchwright/internal/errors"
)

// FallbackSynthesizer tries models in order until one produces a script.
// A later model is only consulted when the earlier one failed after its own
// retries; cancellation stops the chain immediately.
type FallbackSynthesizer struct {
	inner  Synthesizer
	models []string
	logger zerolog.Logger
}

// NewFallbackSynthesizer wraps a Synthesizer with a model fallback chain.
// Empty entries are skipped; at least one model is required.
func NewFallbackSynthesizer(inner Synthesizer, models []string, logger zerolog.Logger) (*FallbackSynthesizer, error) {
	chain := make([]string, 0, len(models))
	for _, m := range models {
		if m != "" {
			chain = append(chain, m)
		}
	}
	if len(chain) == 0 {
		return nil, pwerrors.ErrNoFallbackModels
	}

	return &FallbackSynthesizer{
		inner:  inner,
		models: chain,
		logger: logger,
	}, nil
}

// Generate runs the request through each model in the chain until one
// succeeds. The returned result records which model actually produced the
// script so billing matches the model used.
func (f *FallbackSynthesizer) Generate(ctx context.Context, req *Request) (*Result, error) {
	var lastErr error
	for i, model := range f.models {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		attempt := *req
		attempt.Model = model
		result, err := f.inner.Generate(ctx, &attempt)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if i < len(f.models)-1 {
			f.logger.Warn().
				Err(err).
				Str("model", model).
				Str("next_model", f.models[i+1]).
				Msg("model failed, falling back")
		}
	}

	return nil, lastErr
}

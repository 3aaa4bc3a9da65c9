package synth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/patchwright/patchwright/internal/budget"
	"github.com/patchwright/patchwright/internal/config"
	pwerrors "github.com/patchwright/patchwright/internal/errors"
	"github.com/patchwright/patchwright/internal/logging"
)

// maxResponseBytes bounds synthesis response bodies.
const maxResponseBytes = 4 << 20

// codeFencePattern extracts the script from a fenced code block.
var codeFencePattern = regexp.MustCompile("(?s)```(?:javascript|js)?\\s*\n(.*?)```")

// chatRequest is the OpenRouter-compatible chat completions request body.
type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// chatResponse is the subset of the chat completions response we consume.
type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Client is the production Synthesizer speaking an OpenRouter-compatible
// chat completions API over HTTP.
type Client struct {
	cfg        config.SynthesisConfig
	httpClient *http.Client
	apiKey     string
	logger     zerolog.Logger
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient overrides the HTTP client (for testing).
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithLogger sets the logger for synthesis calls.
func WithLogger(logger zerolog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// NewClient creates a synthesis client from configuration.
// The API key is read from the configured environment variable so keys
// never live in config files.
func NewClient(cfg config.SynthesisConfig, opts ...ClientOption) *Client {
	c := &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		apiKey:     os.Getenv(cfg.APIKeyEnvVar),
		logger:     zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Generate produces a script for the request, retrying transient network
// failures up to the configured retry count. Retries never create extra
// script versions; the caller sees at most one successful result.
func (c *Client) Generate(ctx context.Context, req *Request) (*Result, error) {
	model := req.Model
	if model == "" {
		model = c.cfg.DefaultModel
	}

	var lastErr error
	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(attempt) * time.Second
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
			c.logger.Debug().
				Int("retry", attempt).
				Str("model", model).
				Msg("retrying synthesis call")
		}

		result, err := c.generateOnce(ctx, req, model)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if !isRetryable(err) {
			return nil, err
		}
	}

	return nil, lastErr
}

// generateOnce performs a single synthesis HTTP call.
func (c *Client) generateOnce(ctx context.Context, req *Request, model string) (*Result, error) {
	body, err := json.Marshal(chatRequest{
		Model: model,
		Messages: []chatMessage{
			{Role: "system", Content: selectSystemPrompt(req)},
			{Role: "user", Content: buildUserPrompt(req)},
		},
		Temperature: temperatureFor(req),
		MaxTokens:   2000,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to encode request: %s", pwerrors.ErrSynthesis, err.Error())
	}

	url := strings.TrimRight(c.cfg.Endpoint, "/") + "/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: %s", pwerrors.ErrSynthesis, err.Error())
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		// Preserve context errors so cancellation is distinguishable from
		// infrastructure faults.
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %s", pwerrors.ErrSynthesis, logging.FilterSensitiveValue(err.Error()))
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read response: %s", pwerrors.ErrSynthesis, err.Error())
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d: %s",
			pwerrors.ErrSynthesis, resp.StatusCode, logging.FilterSensitiveValue(truncate(string(data), 200)))
	}

	var parsed chatResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("%w: failed to parse json response: %s", pwerrors.ErrSynthesis, err.Error())
	}
	if parsed.Error != nil {
		return nil, fmt.Errorf("%w: %s", pwerrors.ErrSynthesis, parsed.Error.Message)
	}
	if len(parsed.Choices) == 0 {
		return nil, fmt.Errorf("%w: empty response", pwerrors.ErrSynthesis)
	}

	script := extractScript(parsed.Choices[0].Message.Content)
	if strings.TrimSpace(script) == "" {
		return nil, fmt.Errorf("%w: response contained no script", pwerrors.ErrSynthesis)
	}

	result := &Result{
		Script:           script,
		Model:            model,
		PromptTokens:     parsed.Usage.PromptTokens,
		CompletionTokens: parsed.Usage.CompletionTokens,
		EstimatedCost:    budget.Cost(model, parsed.Usage.PromptTokens, parsed.Usage.CompletionTokens),
	}

	c.logger.Info().
		Str("model", model).
		Int("prompt_tokens", result.PromptTokens).
		Int("completion_tokens", result.CompletionTokens).
		Float64("cost_usd", result.EstimatedCost).
		Int64("duration_ms", time.Since(start).Milliseconds()).
		Msg("script synthesized")

	return result, nil
}

// temperatureFor picks the sampling temperature: repairs run slightly hotter
// so the model explores alternatives to the failed approach.
func temperatureFor(req *Request) float64 {
	if req.PriorScript != "" {
		return 0.4
	}
	return 0.2
}

// extractScript pulls the script out of a fenced code block, falling back to
// the raw content when the model skipped the fence. The longest block wins
// when the response contains several. A fenced block keeps its trailing
// newline so the stored script ends the way the model wrote it.
func extractScript(content string) string {
	matches := codeFencePattern.FindAllStringSubmatch(content, -1)
	if len(matches) == 0 {
		return strings.TrimSpace(content)
	}

	longest := ""
	for _, m := range matches {
		if len(m[1]) > len(longest) {
			longest = m[1]
		}
	}
	return longest
}

// truncate shortens a string for error messages.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

package synth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/patchwright/patchwright/internal/config"
	pwerrors "github.com/patchwright/patchwright/internal/errors"
)

// chatCompletionBody is the wire shape served by the test synthesis server.
func chatCompletionBody(content string, promptTokens, completionTokens int) string {
	resp := map[string]any{
		"choices": []map[string]any{
			{"message": map[string]any{"role": "assistant", "content": content}},
		},
		"usage": map[string]any{
			"prompt_tokens":     promptTokens,
			"completion_tokens": completionTokens,
		},
	}
	data, _ := json.Marshal(resp)
	return string(data)
}

// newTestClient builds a Client pointed at the given server.
func newTestClient(t *testing.T, serverURL string, maxRetries int) *Client {
	t.Helper()
	return NewClient(config.SynthesisConfig{
		Endpoint:     serverURL,
		APIKeyEnvVar: "PATCHWRIGHT_TEST_API_KEY",
		DefaultModel: "anthropic/claude-3.5-haiku",
		Timeout:      5 * time.Second,
		MaxRetries:   maxRetries,
	})
}

// TestClient_Generate verifies a successful synthesis call returns the
// extracted script with token-derived cost.
func TestClient_Generate(t *testing.T) {
	var gotAuth string
	var gotBody chatRequest

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/chat/completions", r.URL.Path)
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))

		content := "Here is the script:\n```javascript\nawait page.goto('https://example.com');\n```"
		_, _ = w.Write([]byte(chatCompletionBody(content, 500, 300)))
	}))
	defer server.Close()

	t.Setenv("PATCHWRIGHT_TEST_API_KEY", "sk-or-v1-test-key")
	client := newTestClient(t, server.URL, 0)

	result, err := client.Generate(context.Background(), &Request{
		Description: "open the homepage",
		TargetURL:   "https://example.com",
	})
	require.NoError(t, err)

	assert.Equal(t, "await page.goto('https://example.com');\n", result.Script)
	assert.Equal(t, "anthropic/claude-3.5-haiku", result.Model)
	assert.Equal(t, 500, result.PromptTokens)
	assert.Equal(t, 300, result.CompletionTokens)
	assert.Greater(t, result.EstimatedCost, 0.0)

	assert.Equal(t, "Bearer sk-or-v1-test-key", gotAuth)
	assert.Equal(t, "anthropic/claude-3.5-haiku", gotBody.Model)
	require.Len(t, gotBody.Messages, 2)
	assert.Equal(t, "system", gotBody.Messages[0].Role)
	assert.Equal(t, "user", gotBody.Messages[1].Role)
	assert.Contains(t, gotBody.Messages[1].Content, "open the homepage")
	assert.InDelta(t, 0.2, gotBody.Temperature, 1e-9, "initial generation runs cool")
}

// TestClient_GenerateRepairTemperature verifies repairs run hotter than
// initial generation.
func TestClient_GenerateRepairTemperature(t *testing.T) {
	var gotBody chatRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		_, _ = w.Write([]byte(chatCompletionBody("```js\nawait page.reload();\n```", 100, 50)))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL, 0)
	_, err := client.Generate(context.Background(), &Request{
		Description: "open the homepage",
		PriorScript: "await page.goto('https://example.com');",
		RepairHint:  "Failure category: selector_not_found",
	})
	require.NoError(t, err)

	assert.InDelta(t, 0.4, gotBody.Temperature, 1e-9)
	assert.Contains(t, gotBody.Messages[0].Content, "repairing a failed")
	assert.Contains(t, gotBody.Messages[1].Content, "selector_not_found")
}

// TestClient_GenerateRetriesTransientFailures verifies a 503 is retried and
// the second call succeeds.
func TestClient_GenerateRetriesTransientFailures(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			http.Error(w, "service unavailable", http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(chatCompletionBody("```js\nawait page.reload();\n```", 100, 50)))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL, 2)
	result, err := client.Generate(context.Background(), &Request{Description: "reload the page"})
	require.NoError(t, err)
	assert.NotEmpty(t, result.Script)
	assert.Equal(t, int32(2), calls.Load())
}

// TestClient_GenerateNonRetryableStops verifies a 401 fails immediately
// without burning retries.
func TestClient_GenerateNonRetryableStops(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		http.Error(w, `{"error":{"message":"invalid api key"}}`, http.StatusUnauthorized)
	}))
	defer server.Close()

	client := newTestClient(t, server.URL, 3)
	_, err := client.Generate(context.Background(), &Request{Description: "anything"})
	require.Error(t, err)
	assert.ErrorIs(t, err, pwerrors.ErrSynthesis)
	assert.Equal(t, int32(1), calls.Load())
}

// TestClient_GenerateExhaustsRetries verifies persistent 500s surface the
// last error after all retries.
func TestClient_GenerateExhaustsRetries(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}))
	defer server.Close()

	client := newTestClient(t, server.URL, 1)
	_, err := client.Generate(context.Background(), &Request{Description: "anything"})
	require.Error(t, err)
	assert.ErrorIs(t, err, pwerrors.ErrSynthesis)
	assert.Equal(t, int32(2), calls.Load(), "initial call plus one retry")
}

// TestClient_GenerateEmptyResponse verifies a response with no choices is a
// synthesis fault.
func TestClient_GenerateEmptyResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[]}`))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL, 0)
	_, err := client.Generate(context.Background(), &Request{Description: "anything"})
	require.Error(t, err)
	assert.ErrorIs(t, err, pwerrors.ErrSynthesis)
	assert.Contains(t, err.Error(), "empty response")
}

// TestClient_GenerateNoScript verifies blank content is rejected.
func TestClient_GenerateNoScript(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(chatCompletionBody("   ", 10, 1)))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL, 0)
	_, err := client.Generate(context.Background(), &Request{Description: "anything"})
	require.Error(t, err)
	assert.ErrorIs(t, err, pwerrors.ErrSynthesis)
}

// TestClient_GenerateCanceledContext verifies cancellation surfaces as the
// context error, not a synthesis fault.
func TestClient_GenerateCanceledContext(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	client := newTestClient(t, server.URL, 3)

	done := make(chan error, 1)
	go func() {
		_, err := client.Generate(ctx, &Request{Description: "anything"})
		done <- err
	}()
	cancel()

	select {
	case err := <-done:
		require.Error(t, err)
		assert.ErrorIs(t, err, context.Canceled)
		assert.NotErrorIs(t, err, pwerrors.ErrSynthesis)
	case <-time.After(5 * time.Second):
		t.Fatal("Generate did not return after cancellation")
	}
}

// TestExtractScript tests fenced code block extraction.
func TestExtractScript(t *testing.T) {
	tests := []struct {
		name     string
		content  string
		expected string
	}{
		{
			name:     "javascript fence",
			content:  "```javascript\nawait page.goto('a');\n```",
			expected: "await page.goto('a');\n",
		},
		{
			name:     "js fence",
			content:  "```js\nawait page.goto('b');\n```",
			expected: "await page.goto('b');\n",
		},
		{
			name:     "bare fence",
			content:  "```\nawait page.goto('c');\n```",
			expected: "await page.goto('c');\n",
		},
		{
			name:     "prose around the fence",
			content:  "Here you go:\n```javascript\nawait page.goto('d');\n```\nLet me know!",
			expected: "await page.goto('d');\n",
		},
		{
			name:     "longest block wins",
			content:  "```js\nshort();\n```\nand then\n```js\nconst a = 1;\nconst b = 2;\nawait page.goto('e');\n```",
			expected: "const a = 1;\nconst b = 2;\nawait page.goto('e');\n",
		},
		{
			name:     "no fence falls back to raw content",
			content:  "await page.goto('f');",
			expected: "await page.goto('f');",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, extractScript(tt.content))
		})
	}
}

// TestIsRetryable tests transient error detection.
func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		retryable bool
	}{
		{"nil error", nil, false},
		{"rate limit", errors.New("status 429: rate limit exceeded"), true},
		{"server error", errors.New("status 500: internal error"), true},
		{"bad gateway", errors.New("status 502: bad gateway"), true},
		{"service unavailable", errors.New("status 503: unavailable"), true},
		{"gateway timeout", errors.New("status 504: timeout"), true},
		{"connection refused", errors.New("dial tcp: connection refused"), true},
		{"connection reset", errors.New("read tcp: connection reset by peer"), true},
		{"io timeout", errors.New("read tcp: i/o timeout"), true},
		{"unauthorized", errors.New("status 401: invalid api key"), false},
		{"bad request", errors.New("status 400: model not found"), false},
		{"context canceled", context.Canceled, false},
		{"deadline exceeded", context.DeadlineExceeded, false},
		{"wrapped context canceled", fmt.Errorf("call failed: %w", context.Canceled), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.retryable, isRetryable(tt.err))
		})
	}
}

// TestBuildUserPrompt verifies repair context reaches the prompt.
func TestBuildUserPrompt(t *testing.T) {
	t.Run("initial generation", func(t *testing.T) {
		prompt := buildUserPrompt(&Request{
			Description: "log in to the portal",
			TargetURL:   "https://example.com/login",
		})
		assert.Contains(t, prompt, "log in to the portal")
		assert.Contains(t, prompt, "https://example.com/login")
		assert.NotContains(t, prompt, "Previous script")
	})

	t.Run("repair", func(t *testing.T) {
		prompt := buildUserPrompt(&Request{
			Description: "log in to the portal",
			PriorScript: "await page.click('#old-login');",
			RepairHint:  "Failure category: selector_not_found",
		})
		assert.Contains(t, prompt, "await page.click('#old-login');")
		assert.Contains(t, prompt, "selector_not_found")
	})
}

// TestSelectSystemPrompt verifies the repair prompt is used only when a
// prior script exists.
func TestSelectSystemPrompt(t *testing.T) {
	assert.Equal(t, systemPrompt, selectSystemPrompt(&Request{Description: "x"}))
	assert.Equal(t, repairSystemPrompt, selectSystemPrompt(&Request{
		Description: "x",
		PriorScript: "await page.reload();",
	}))
}

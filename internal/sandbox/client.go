package sandbox

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/patchwright/patchwright/internal/config"
	"github.com/patchwright/patchwright/internal/domain"
	pwerrors "github.com/patchwright/patchwright/internal/errors"
)

// maxResponseBytes bounds execution response bodies. Traces can carry a lot
// of console output, so the limit is generous.
const maxResponseBytes = 16 << 20

// graceMS is added to the client-side deadline so the service gets a chance
// to report its own timeout before the client cuts the connection.
const graceMS = 5000

// executeRequest is the wire request to the execution service.
type executeRequest struct {
	Script      string `json:"script"`
	Headless    bool   `json:"headless"`
	BrowserType string `json:"browser_type"`
	TimeoutMS   int    `json:"timeout_ms"`
}

// executeResponse is the wire response from the execution service.
type executeResponse struct {
	Status          string   `json:"status"`
	Logs            []string `json:"logs"`
	ArtifactHandles []string `json:"artifact_handles"`
	DurationMS      int64    `json:"duration_ms"`
	Error           *struct {
		Message     string `json:"message"`
		Stack       string `json:"stack"`
		FailingStep *int   `json:"failing_step"`
	} `json:"error"`
}

// Client is the production Executor speaking HTTP to the execution service.
type Client struct {
	cfg        config.SandboxConfig
	httpClient *http.Client
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

// WithLogger sets the logger for execution calls.
func WithLogger(logger zerolog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// NewClient creates an execution client from configuration. The HTTP client
// carries no timeout of its own; each call derives a deadline from the
// script's timeout.
func NewClient(cfg config.SandboxConfig, opts ...ClientOption) *Client {
	c := &Client{
		cfg:        cfg,
		httpClient: &http.Client{},
		logger:     zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Execute runs the script and returns its trace. A script failure is not an
// error; only service-level faults are. When the service itself stops
// answering past the script timeout, a synthetic timeout trace is returned
// so the failure still flows through diagnosis.
func (c *Client) Execute(ctx context.Context, req *Request) (*domain.ExecutionTrace, error) {
	timeoutMS := req.TimeoutMS
	if timeoutMS <= 0 {
		timeoutMS = c.cfg.DefaultTimeoutMS
	}
	browserType := req.BrowserType
	if browserType == "" {
		browserType = c.cfg.BrowserType
	}

	body, err := json.Marshal(executeRequest{
		Script:      req.Script,
		Headless:    req.Headless,
		BrowserType: browserType,
		TimeoutMS:   timeoutMS,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to encode request: %s", pwerrors.ErrSandbox, err.Error())
	}

	deadline := time.Duration(timeoutMS+graceMS) * time.Millisecond
	callCtx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	url := strings.TrimRight(c.cfg.Endpoint, "/") + "/execute"
	httpReq, err := http.NewRequestWithContext(callCtx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: %s", pwerrors.ErrSandbox, err.Error())
	}
	httpReq.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		// The parent context ending means the run is being torn down, not
		// that the script timed out.
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if callCtx.Err() == context.DeadlineExceeded {
			c.logger.Warn().
				Int("timeout_ms", timeoutMS).
				Msg("execution service did not answer within the script deadline")
			return timeoutTrace(timeoutMS, time.Since(start)), nil
		}
		return nil, fmt.Errorf("%w: %s", pwerrors.ErrSandbox, err.Error())
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read response: %s", pwerrors.ErrSandbox, err.Error())
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d: %s", pwerrors.ErrSandbox, resp.StatusCode, truncate(string(data), 200))
	}

	var parsed executeResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("%w: failed to parse response: %s", pwerrors.ErrSandbox, err.Error())
	}

	trace := traceFromResponse(&parsed)
	c.logger.Debug().
		Str("status", trace.Status).
		Int64("duration_ms", trace.Duration.Milliseconds()).
		Int("log_lines", len(trace.Logs)).
		Msg("script executed")

	return trace, nil
}

// traceFromResponse converts the wire response into the domain trace.
// A failed response with no error payload still gets an error signal so
// diagnosis always has something to classify.
func traceFromResponse(resp *executeResponse) *domain.ExecutionTrace {
	trace := &domain.ExecutionTrace{
		Status:          resp.Status,
		Logs:            resp.Logs,
		ArtifactHandles: resp.ArtifactHandles,
		Duration:        time.Duration(resp.DurationMS) * time.Millisecond,
	}
	if trace.Status != domain.TraceStatusSuccess {
		trace.Status = domain.TraceStatusFailure
	}

	if resp.Error != nil {
		step := -1
		if resp.Error.FailingStep != nil {
			step = *resp.Error.FailingStep
		}
		trace.Error = &domain.ErrorSignal{
			Message:     resp.Error.Message,
			Stack:       resp.Error.Stack,
			FailingStep: step,
		}
	} else if trace.Failed() {
		trace.Error = &domain.ErrorSignal{
			Message:     "execution failed without an error report",
			FailingStep: -1,
		}
	}

	return trace
}

// truncate shortens a string for error messages.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

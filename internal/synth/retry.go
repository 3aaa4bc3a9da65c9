package synth

import (
	"context"
	"errors"
	"strings"
)

// retryablePatterns are substrings of error messages that indicate a
// transient fault worth retrying. Provider-specific wording varies, so
// matching stays loose.
var retryablePatterns = []string{
	"rate limit",
	"rate_limit",
	"too many requests",
	"status 429",
	"status 500",
	"status 502",
	"status 503",
	"status 504",
	"overloaded",
	"connection refused",
	"connection reset",
	"broken pipe",
	"no such host",
	"tls handshake",
	"unexpected eof",
	"i/o timeout",
}

// isRetryable reports whether a synthesis error is transient. Cancellation
// is never retryable; the run is being torn down.
func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	msg := strings.ToLower(err.Error())
	for _, pattern := range retryablePatterns {
		if strings.Contains(msg, pattern) {
			return true
		}
	}

	return false
}

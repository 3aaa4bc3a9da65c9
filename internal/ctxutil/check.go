// Package ctxutil provides small context helpers shared across packages.
package ctxutil

import "context"

// Canceled reports whether ctx is already done, returning its error
// (context.Canceled or context.DeadlineExceeded) or nil. Store, ledger, and
// state-machine entry points call it before starting work so a canceled
// operation fails fast instead of touching disk or budget state.
func Canceled(ctx context.Context) error {
	return ctx.Err()
}

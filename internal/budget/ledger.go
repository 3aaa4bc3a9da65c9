// Package budget provides the cost ledger for Patchwright.
//
// This file implements the ledger itself: per-run and daily spend tracking
// with reserve-then-commit semantics. A reservation is taken before any paid
// external call; only after the call returns is the actual cost committed.
// A denied reservation is observable as ErrBudgetExceeded so the orchestrator
// can finalize the run as budget_exhausted rather than conflating it with a
// diagnosis-driven stop.
package budget

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/patchwright/patchwright/internal/clock"
	"github.com/patchwright/patchwright/internal/ctxutil"
	pwerrors "github.com/patchwright/patchwright/internal/errors"
)

// DailyLedger is the process-wide daily spend tracker shared across
// concurrent runs. Reservations are held in memory; committed spend is
// persisted through the DailyStore so it survives restarts within a day.
//
// Reserve-then-commit: a reservation counts against the ceiling until it is
// committed or released, so concurrent reservations can never overshoot the
// daily ceiling.
type DailyLedger struct {
	mu       sync.Mutex
	store    DailyStore
	ceiling  float64
	reserved float64
	clock    clock.Clock
	logger   zerolog.Logger
}

// DailyLedgerOption configures a DailyLedger.
type DailyLedgerOption func(*DailyLedger)

// WithClock sets the clock used for day-key derivation (for testing).
func WithClock(c clock.Clock) DailyLedgerOption {
	return func(l *DailyLedger) {
		l.clock = c
	}
}

// WithLedgerLogger sets the logger for ledger operations.
func WithLedgerLogger(logger zerolog.Logger) DailyLedgerOption {
	return func(l *DailyLedger) {
		l.logger = logger
	}
}

// NewDailyLedger creates a daily ledger over the given durable store with the
// given daily ceiling in USD.
func NewDailyLedger(store DailyStore, dailyCeiling float64, opts ...DailyLedgerOption) *DailyLedger {
	l := &DailyLedger{
		store:   store,
		ceiling: dailyCeiling,
		clock:   clock.RealClock{},
		logger:  zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// reserve attempts to set aside estimate against today's ceiling.
// Returns false without error when the ceiling would be exceeded.
func (l *DailyLedger) reserve(ctx context.Context, estimate float64) (bool, error) {
	if err := ctxutil.Canceled(ctx); err != nil {
		return false, err
	}
	if estimate < 0 {
		return false, fmt.Errorf("estimate must be non-negative, got %g: %w",
			estimate, pwerrors.ErrBudgetExceeded)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	day := DayKey(l.clock.Now())
	committed, err := l.store.Spend(ctx, day)
	if err != nil {
		return false, err
	}

	if committed+l.reserved+estimate > l.ceiling {
		l.logger.Warn().
			Str("day", day).
			Float64("committed", committed).
			Float64("reserved", l.reserved).
			Float64("estimate", estimate).
			Float64("ceiling", l.ceiling).
			Msg("daily budget reservation denied")
		return false, nil
	}

	l.reserved += estimate
	return true, nil
}

// commit replaces a reservation of estimate with the actual spend.
func (l *DailyLedger) commit(ctx context.Context, estimate, actual float64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.reserved -= estimate
	if l.reserved < 0 {
		l.reserved = 0
	}

	day := DayKey(l.clock.Now())
	total, err := l.store.Add(ctx, day, actual)
	if err != nil {
		return err
	}

	l.logger.Debug().
		Str("day", day).
		Float64("actual", actual).
		Float64("daily_total", total).
		Msg("spend committed")
	return nil
}

// release drops a reservation without committing any spend.
// Used when a reserved call was canceled and its result discarded.
func (l *DailyLedger) release(estimate float64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.reserved -= estimate
	if l.reserved < 0 {
		l.reserved = 0
	}
}

// DailySpend returns today's committed spend.
func (l *DailyLedger) DailySpend(ctx context.Context) (float64, error) {
	return l.store.Spend(ctx, DayKey(l.clock.Now()))
}

// Ledger tracks spend for a single run against both the per-run ceiling and
// the shared daily ledger. A Ledger is private to one run's orchestrator and
// needs no cross-run synchronization beyond what DailyLedger provides.
type Ledger struct {
	daily         *DailyLedger
	perRunCeiling float64
	runSpend      float64
	runReserved   float64
}

// NewLedger creates a per-run ledger bound to the shared daily ledger.
func NewLedger(daily *DailyLedger, perRunCeiling float64) *Ledger {
	return &Ledger{
		daily:         daily,
		perRunCeiling: perRunCeiling,
	}
}

// Reservation represents a successful budget reservation. It must be
// resolved exactly once: Commit after the paid call returns, or Release
// when the call was canceled and no cost may be billed.
type Reservation struct {
	ledger   *Ledger
	estimate float64
	resolved bool
}

// Reserve checks both ceilings and sets aside the estimated cost.
// Returns (nil, nil) when the reservation is denied: denial is a budget
// fault, not an error, and must stop the run as budget_exhausted.
func (l *Ledger) Reserve(ctx context.Context, estimate float64) (*Reservation, error) {
	if l.runSpend+l.runReserved+estimate > l.perRunCeiling {
		return nil, nil
	}

	ok, err := l.daily.reserve(ctx, estimate)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}

	l.runReserved += estimate
	return &Reservation{ledger: l, estimate: estimate}, nil
}

// Commit records the actual spend for a reserved call.
func (r *Reservation) Commit(ctx context.Context, actual float64) error {
	if r.resolved {
		return nil
	}
	r.resolved = true

	l := r.ledger
	l.runReserved -= r.estimate
	if l.runReserved < 0 {
		l.runReserved = 0
	}
	l.runSpend += actual

	return l.daily.commit(ctx, r.estimate, actual)
}

// Release drops the reservation without billing.
// No cost is recorded for work whose result was discarded.
func (r *Reservation) Release() {
	if r.resolved {
		return
	}
	r.resolved = true

	l := r.ledger
	l.runReserved -= r.estimate
	if l.runReserved < 0 {
		l.runReserved = 0
	}
	l.daily.release(r.estimate)
}

// RunSpend returns the committed spend of this run.
func (l *Ledger) RunSpend() float64 {
	return l.runSpend
}

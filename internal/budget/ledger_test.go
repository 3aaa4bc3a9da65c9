package budget

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fixedClock returns a constant instant for deterministic day keys.
type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

func newTestLedger(t *testing.T, dailyCeiling, perRunCeiling float64) (*DailyLedger, *Ledger) {
	t.Helper()
	daily := NewDailyLedger(NewMemoryStore(), dailyCeiling)
	return daily, NewLedger(daily, perRunCeiling)
}

// TestReserve_CommitRecordsActualSpend verifies the reserve-then-commit
// flow: the estimate is held, the actual cost is what gets recorded.
func TestReserve_CommitRecordsActualSpend(t *testing.T) {
	ctx := context.Background()
	daily, ledger := newTestLedger(t, 5.00, 0.50)

	reservation, err := ledger.Reserve(ctx, 0.01)
	require.NoError(t, err)
	require.NotNil(t, reservation)

	require.NoError(t, reservation.Commit(ctx, 0.03))

	assert.InDelta(t, 0.03, ledger.RunSpend(), 1e-9)
	spend, err := daily.DailySpend(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 0.03, spend, 1e-9)
}

// TestReserve_CanceledContext verifies a canceled context fails the
// reservation before any budget state is touched.
func TestReserve_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, ledger := newTestLedger(t, 5.00, 0.50)

	reservation, err := ledger.Reserve(ctx, 0.01)
	require.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, reservation)

	live, err := ledger.Reserve(context.Background(), 0.01)
	require.NoError(t, err)
	assert.NotNil(t, live, "a failed reservation must not hold budget")
}

// TestReserve_DenialIsNotAnError verifies that a denied reservation returns
// (nil, nil): denial is a budget outcome, not a fault.
func TestReserve_DenialIsNotAnError(t *testing.T) {
	ctx := context.Background()

	t.Run("per-run ceiling", func(t *testing.T) {
		_, ledger := newTestLedger(t, 100.0, 0.05)

		reservation, err := ledger.Reserve(ctx, 0.01)
		require.NoError(t, err)
		require.NotNil(t, reservation)
		require.NoError(t, reservation.Commit(ctx, 0.05))

		denied, err := ledger.Reserve(ctx, 0.01)
		require.NoError(t, err)
		assert.Nil(t, denied)
	})

	t.Run("daily ceiling", func(t *testing.T) {
		daily, ledger := newTestLedger(t, 0.02, 100.0)
		_ = daily

		reservation, err := ledger.Reserve(ctx, 0.01)
		require.NoError(t, err)
		require.NotNil(t, reservation)
		require.NoError(t, reservation.Commit(ctx, 0.02))

		denied, err := ledger.Reserve(ctx, 0.01)
		require.NoError(t, err)
		assert.Nil(t, denied)
	})
}

// TestReserve_HeldReservationCountsAgainstCeiling verifies that an
// unresolved reservation blocks further reservations that would overshoot.
func TestReserve_HeldReservationCountsAgainstCeiling(t *testing.T) {
	ctx := context.Background()
	_, ledger := newTestLedger(t, 5.00, 0.02)

	first, err := ledger.Reserve(ctx, 0.015)
	require.NoError(t, err)
	require.NotNil(t, first)

	second, err := ledger.Reserve(ctx, 0.015)
	require.NoError(t, err)
	assert.Nil(t, second, "held reservation must count against the per-run ceiling")

	first.Release()

	third, err := ledger.Reserve(ctx, 0.015)
	require.NoError(t, err)
	assert.NotNil(t, third, "released reservation must free the headroom")
}

// TestReservation_ReleaseBillsNothing verifies canceled work is never billed.
func TestReservation_ReleaseBillsNothing(t *testing.T) {
	ctx := context.Background()
	daily, ledger := newTestLedger(t, 5.00, 0.50)

	reservation, err := ledger.Reserve(ctx, 0.01)
	require.NoError(t, err)
	require.NotNil(t, reservation)

	reservation.Release()

	assert.Zero(t, ledger.RunSpend())
	spend, err := daily.DailySpend(ctx)
	require.NoError(t, err)
	assert.Zero(t, spend)
}

// TestReservation_ResolvedOnce verifies a reservation resolves exactly once.
func TestReservation_ResolvedOnce(t *testing.T) {
	ctx := context.Background()
	daily, ledger := newTestLedger(t, 5.00, 0.50)

	reservation, err := ledger.Reserve(ctx, 0.01)
	require.NoError(t, err)
	require.NotNil(t, reservation)

	require.NoError(t, reservation.Commit(ctx, 0.02))
	// Second resolution is a no-op
	require.NoError(t, reservation.Commit(ctx, 0.02))
	reservation.Release()

	spend, err := daily.DailySpend(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 0.02, spend, 1e-9)
	assert.InDelta(t, 0.02, ledger.RunSpend(), 1e-9)
}

// TestReserve_NegativeEstimate verifies invalid estimates are rejected.
func TestReserve_NegativeEstimate(t *testing.T) {
	_, ledger := newTestLedger(t, 5.00, 0.50)

	_, err := ledger.Reserve(context.Background(), -0.01)
	require.Error(t, err)
}

// TestDailyLedger_SharedAcrossRuns verifies multiple per-run ledgers draw
// down the same daily ceiling.
func TestDailyLedger_SharedAcrossRuns(t *testing.T) {
	ctx := context.Background()
	daily := NewDailyLedger(NewMemoryStore(), 0.05)
	first := NewLedger(daily, 1.00)
	second := NewLedger(daily, 1.00)

	reservation, err := first.Reserve(ctx, 0.01)
	require.NoError(t, err)
	require.NotNil(t, reservation)
	require.NoError(t, reservation.Commit(ctx, 0.04))

	denied, err := second.Reserve(ctx, 0.02)
	require.NoError(t, err)
	assert.Nil(t, denied, "daily spend from another run must count")

	allowed, err := second.Reserve(ctx, 0.01)
	require.NoError(t, err)
	assert.NotNil(t, allowed)
}

// TestDailyLedger_DayBoundary verifies the spend counter keys on the UTC
// calendar day: a new day starts from zero.
func TestDailyLedger_DayBoundary(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	yesterday := fixedClock{t: time.Date(2026, 8, 28, 23, 59, 0, 0, time.UTC)}
	daily := NewDailyLedger(store, 0.05, WithClock(yesterday))
	ledger := NewLedger(daily, 1.00)

	reservation, err := ledger.Reserve(ctx, 0.01)
	require.NoError(t, err)
	require.NotNil(t, reservation)
	require.NoError(t, reservation.Commit(ctx, 0.05))

	denied, err := ledger.Reserve(ctx, 0.01)
	require.NoError(t, err)
	require.Nil(t, denied)

	// Same store, next UTC day: the ceiling is fresh.
	today := fixedClock{t: time.Date(2026, 8, 29, 0, 1, 0, 0, time.UTC)}
	freshDaily := NewDailyLedger(store, 0.05, WithClock(today))
	freshLedger := NewLedger(freshDaily, 1.00)

	allowed, err := freshLedger.Reserve(ctx, 0.01)
	require.NoError(t, err)
	assert.NotNil(t, allowed)
}

// TestDailyLedger_ConcurrentReservations verifies reservations never
// overshoot the daily ceiling under concurrency.
func TestDailyLedger_ConcurrentReservations(t *testing.T) {
	ctx := context.Background()
	daily := NewDailyLedger(NewMemoryStore(), 0.10)

	const workers = 50
	var granted sync.Map
	var wg sync.WaitGroup

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			ledger := NewLedger(daily, 1.00)
			reservation, err := ledger.Reserve(ctx, 0.01)
			if err == nil && reservation != nil {
				granted.Store(id, reservation)
			}
		}(i)
	}
	wg.Wait()

	count := 0
	granted.Range(func(_, value any) bool {
		count++
		require.NoError(t, value.(*Reservation).Commit(ctx, 0.01))
		return true
	})

	assert.LessOrEqual(t, count, 10, "grants must never exceed ceiling/estimate")
	spend, err := daily.DailySpend(ctx)
	require.NoError(t, err)
	assert.LessOrEqual(t, spend, 0.10+1e-9)
}

// TestDayKey verifies UTC normalization of day keys.
func TestDayKey(t *testing.T) {
	est := time.FixedZone("EST", -5*3600)

	tests := []struct {
		name string
		t    time.Time
		key  string
	}{
		{"utc midnight", time.Date(2026, 8, 29, 0, 0, 0, 0, time.UTC), "2026-08-29"},
		{"late evening est is next utc day", time.Date(2026, 8, 28, 22, 0, 0, 0, est), "2026-08-29"},
		{"morning est same utc day", time.Date(2026, 8, 29, 9, 0, 0, 0, est), "2026-08-29"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.key, DayKey(tt.t))
		})
	}
}

// TestCost verifies per-million-token pricing, including the fallback for
// unknown models.
func TestCost(t *testing.T) {
	tests := []struct {
		name             string
		model            string
		prompt, complete int
		want             float64
	}{
		{"haiku", "anthropic/claude-3.5-haiku", 1_000_000, 1_000_000, 0.25 + 1.25},
		{"gpt-4o-mini", "openai/gpt-4o-mini", 2_000_000, 500_000, 0.30 + 0.30},
		{"zero tokens", "anthropic/claude-3.5-haiku", 0, 0, 0},
		{"unknown model uses expensive fallback", "mystery/model", 1_000_000, 0, 3.00},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, Cost(tt.model, tt.prompt, tt.complete), 1e-9)
		})
	}
}

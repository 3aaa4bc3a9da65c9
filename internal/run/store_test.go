package run

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/patchwright/patchwright/internal/constants"
	"github.com/patchwright/patchwright/internal/domain"
	pwerrors "github.com/patchwright/patchwright/internal/errors"
)

// newTestStore creates a FileStore rooted at a temp directory.
func newTestStore(t *testing.T) *FileStore {
	t.Helper()
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	return store
}

// newTestRun builds a minimal run for persistence tests.
func newTestRun(id string) *domain.Run {
	return &domain.Run{
		ID:        id,
		State:     constants.StateInit,
		Status:    constants.RunStatusRunning,
		CreatedAt: time.Now().UTC(),
		Task: domain.Task{
			Description: "log into the staging portal",
			TargetURL:   "https://staging.example.com/login",
		},
	}
}

// TestFileStore_CreateAndGet verifies a created run round-trips through disk.
func TestFileStore_CreateAndGet(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	r := newTestRun("run-20260829-120000-deadbeef")
	require.NoError(t, store.Create(ctx, r))

	got, err := store.Get(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, r.ID, got.ID)
	assert.Equal(t, constants.StateInit, got.State)
	assert.Equal(t, constants.RunStatusRunning, got.Status)
	assert.Equal(t, "log into the staging portal", got.Task.Description)
	assert.Equal(t, constants.RunSchemaVersion, got.SchemaVersion)
}

// TestFileStore_CreateDuplicate verifies duplicate IDs are rejected.
func TestFileStore_CreateDuplicate(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	r := newTestRun("run-20260829-120000-deadbeef")
	require.NoError(t, store.Create(ctx, r))

	err := store.Create(ctx, newTestRun(r.ID))
	require.Error(t, err)
	assert.ErrorIs(t, err, pwerrors.ErrRunExists)
}

// TestFileStore_CreateValidation tests input validation on Create.
func TestFileStore_CreateValidation(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	t.Run("nil run", func(t *testing.T) {
		err := store.Create(ctx, nil)
		assert.ErrorIs(t, err, pwerrors.ErrEmptyValue)
	})

	t.Run("empty run ID", func(t *testing.T) {
		err := store.Create(ctx, newTestRun(""))
		assert.ErrorIs(t, err, pwerrors.ErrEmptyValue)
	})
}

// TestFileStore_GetNotFound verifies missing runs return ErrRunNotFound.
func TestFileStore_GetNotFound(t *testing.T) {
	store := newTestStore(t)

	_, err := store.Get(context.Background(), "run-20260101-000000-00000000")
	require.Error(t, err)
	assert.ErrorIs(t, err, pwerrors.ErrRunNotFound)
}

// TestFileStore_Update verifies state changes persist across reads.
func TestFileStore_Update(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	r := newTestRun("run-20260829-120000-deadbeef")
	require.NoError(t, store.Create(ctx, r))

	r.State = constants.StateGenerating
	r.TotalCost = 0.0125
	require.NoError(t, store.Update(ctx, r))

	got, err := store.Get(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, constants.StateGenerating, got.State)
	assert.InDelta(t, 0.0125, got.TotalCost, 1e-9)
}

// TestFileStore_UpdateNotFound verifies updating a missing run fails.
func TestFileStore_UpdateNotFound(t *testing.T) {
	store := newTestStore(t)

	err := store.Update(context.Background(), newTestRun("run-20260101-000000-00000000"))
	assert.ErrorIs(t, err, pwerrors.ErrRunNotFound)
}

// TestFileStore_List verifies listing returns runs newest first and skips
// non-run directories.
func TestFileStore_List(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	older := newTestRun("run-20260828-090000-aaaaaaaa")
	older.CreatedAt = time.Now().UTC().Add(-time.Hour)
	newer := newTestRun("run-20260829-120000-bbbbbbbb")

	require.NoError(t, store.Create(ctx, older))
	require.NoError(t, store.Create(ctx, newer))

	// Stray directory that is not a run
	require.NoError(t, os.MkdirAll(filepath.Join(store.runsDir(), "not-a-run"), 0o750))

	runs, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, newer.ID, runs[0].ID)
	assert.Equal(t, older.ID, runs[1].ID)
}

// TestFileStore_ListEmpty verifies an empty store lists zero runs.
func TestFileStore_ListEmpty(t *testing.T) {
	store := newTestStore(t)

	runs, err := store.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, runs)
}

// TestFileStore_Delete verifies a run and its artifacts are removed.
func TestFileStore_Delete(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	r := newTestRun("run-20260829-120000-deadbeef")
	require.NoError(t, store.Create(ctx, r))
	require.NoError(t, store.SaveScript(ctx, r.ID, 1, "await page.goto('https://example.com');"))

	require.NoError(t, store.Delete(ctx, r.ID))

	_, err := store.Get(ctx, r.ID)
	assert.ErrorIs(t, err, pwerrors.ErrRunNotFound)

	_, err = store.GetScript(ctx, r.ID, 1)
	assert.ErrorIs(t, err, pwerrors.ErrRunNotFound)
}

// TestFileStore_Scripts verifies versioned script artifacts round-trip.
func TestFileStore_Scripts(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	r := newTestRun("run-20260829-120000-deadbeef")
	require.NoError(t, store.Create(ctx, r))

	v1 := "await page.goto('https://example.com');"
	v2 := "await page.goto('https://example.com');\nawait page.click('#login');"
	require.NoError(t, store.SaveScript(ctx, r.ID, 1, v1))
	require.NoError(t, store.SaveScript(ctx, r.ID, 2, v2))

	got1, err := store.GetScript(ctx, r.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, v1, got1)

	got2, err := store.GetScript(ctx, r.ID, 2)
	require.NoError(t, err)
	assert.Equal(t, v2, got2)
}

// TestFileStore_SaveScriptValidation tests input validation on SaveScript.
func TestFileStore_SaveScriptValidation(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	r := newTestRun("run-20260829-120000-deadbeef")
	require.NoError(t, store.Create(ctx, r))

	t.Run("version below one", func(t *testing.T) {
		err := store.SaveScript(ctx, r.ID, 0, "code")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "version must be >= 1")
	})

	t.Run("missing run", func(t *testing.T) {
		err := store.SaveScript(ctx, "run-20260101-000000-00000000", 1, "code")
		assert.ErrorIs(t, err, pwerrors.ErrRunNotFound)
	})
}

// TestFileStore_CanceledContext verifies context cancellation short-circuits
// all operations.
func TestFileStore_CanceledContext(t *testing.T) {
	store := newTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, store.Create(ctx, newTestRun("run-20260829-120000-deadbeef")), context.Canceled)
	_, err := store.Get(ctx, "run-20260829-120000-deadbeef")
	assert.ErrorIs(t, err, context.Canceled)
	_, err = store.List(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.ErrorIs(t, store.Delete(ctx, "run-20260829-120000-deadbeef"), context.Canceled)
}

// TestGenerateRunID verifies generated IDs match the expected layout and
// stay unique.
func TestGenerateRunID(t *testing.T) {
	seen := make(map[string]struct{})
	for range 50 {
		id := GenerateRunID()
		assert.Regexp(t, validRunIDRegex, id)
		_, dup := seen[id]
		assert.False(t, dup, "run ID %s generated twice", id)
		seen[id] = struct{}{}
	}
}

// Package run provides run persistence for patchwright.
// This file implements the storage layer for run state files,
// with atomic writes and file locking for data integrity.
package run

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/patchwright/patchwright/internal/constants"
	"github.com/patchwright/patchwright/internal/ctxutil"
	"github.com/patchwright/patchwright/internal/domain"
	pwerrors "github.com/patchwright/patchwright/internal/errors"
)

// LockTimeout is the maximum duration to wait for acquiring a file lock.
const LockTimeout = 5 * time.Second

// Directory and file permission constants.
const (
	dirPerm  = 0o750 // Secure directory permissions
	filePerm = 0o600 // Secure file permissions
)

// runFileName is the state file inside each run directory.
const runFileName = "run.json"

// scriptsDirName holds the versioned script artifacts for a run.
const scriptsDirName = "scripts"

// validRunIDRegex matches valid run IDs (run-YYYYMMDD-HHMMSS-xxxxxxxx).
var validRunIDRegex = regexp.MustCompile(`^run-\d{8}-\d{6}-[0-9a-f]{8}$`)

// Store defines the interface for run persistence operations.
type Store interface {
	// Create creates a new run. Returns ErrRunExists if the ID is taken.
	Create(ctx context.Context, r *domain.Run) error

	// Get retrieves a run by ID. Returns ErrRunNotFound if missing.
	Get(ctx context.Context, runID string) (*domain.Run, error)

	// Update saves the current run state (atomic write).
	Update(ctx context.Context, r *domain.Run) error

	// List returns all runs, sorted by creation time (newest first).
	List(ctx context.Context) ([]*domain.Run, error)

	// Delete removes a run and all its script artifacts.
	Delete(ctx context.Context, runID string) error

	// SaveScript persists one versioned script artifact for the run.
	SaveScript(ctx context.Context, runID string, version int, code string) error

	// GetScript retrieves a versioned script artifact.
	GetScript(ctx context.Context, runID string, version int) (string, error)
}

// FileStore implements Store using the local filesystem. Each run lives in
// its own directory under <dataDir>/runs with the state file and a scripts
// subdirectory of versioned artifacts.
type FileStore struct {
	dataDir string // Usually ~/.patchwright
}

// NewFileStore creates a new FileStore rooted at the given data directory.
// If dataDir is empty, uses the default ~/.patchwright directory.
func NewFileStore(dataDir string) (*FileStore, error) {
	if dataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get user home directory: %w", err)
		}
		dataDir = filepath.Join(home, constants.PatchwrightHome)
	}
	return &FileStore{dataDir: dataDir}, nil
}

// Create creates a new run on disk.
func (s *FileStore) Create(ctx context.Context, r *domain.Run) error {
	if err := ctxutil.Canceled(ctx); err != nil {
		return err
	}

	if r == nil {
		return fmt.Errorf("failed to create run: run %w", pwerrors.ErrEmptyValue)
	}
	if r.ID == "" {
		return fmt.Errorf("failed to create run: run ID %w", pwerrors.ErrEmptyValue)
	}

	runDir := s.runDir(r.ID)
	if _, err := os.Stat(runDir); err == nil {
		return fmt.Errorf("failed to create run '%s': %w", r.ID, pwerrors.ErrRunExists)
	}
	if err := os.MkdirAll(runDir, dirPerm); err != nil {
		return fmt.Errorf("failed to create run directory: %w", err)
	}

	r.SchemaVersion = constants.RunSchemaVersion

	lockFile, err := s.acquireLock(ctx, r.ID)
	if err != nil {
		_ = os.RemoveAll(runDir)
		return fmt.Errorf("failed to create run '%s': %w", r.ID, err)
	}
	defer func() { _ = s.releaseLock(lockFile) }()

	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		_ = os.RemoveAll(runDir)
		return fmt.Errorf("failed to create run '%s': %w", r.ID, err)
	}

	if err := atomicWrite(s.runFilePath(r.ID), data); err != nil {
		_ = os.RemoveAll(runDir)
		return fmt.Errorf("failed to create run '%s': %w", r.ID, err)
	}

	return nil
}

// Get retrieves a run by ID.
func (s *FileStore) Get(ctx context.Context, runID string) (*domain.Run, error) {
	if err := ctxutil.Canceled(ctx); err != nil {
		return nil, err
	}

	if runID == "" {
		return nil, fmt.Errorf("failed to get run: run ID %w", pwerrors.ErrEmptyValue)
	}

	runDir := s.runDir(runID)
	if _, err := os.Stat(runDir); os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to get run '%s': %w", runID, pwerrors.ErrRunNotFound)
	}

	lockFile, err := s.acquireLock(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to get run '%s': %w", runID, err)
	}
	defer func() { _ = s.releaseLock(lockFile) }()

	data, err := os.ReadFile(s.runFilePath(runID)) //#nosec G304 -- path is validated and constructed from trusted base
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to get run '%s': %w", runID, pwerrors.ErrRunNotFound)
		}
		return nil, fmt.Errorf("failed to read run '%s': %w", runID, err)
	}

	var r domain.Run
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("failed to parse run '%s': corrupted state file: %w", runID, err)
	}

	return &r, nil
}

// Update saves the current run state (atomic write).
func (s *FileStore) Update(ctx context.Context, r *domain.Run) error {
	if err := ctxutil.Canceled(ctx); err != nil {
		return err
	}

	if r == nil {
		return fmt.Errorf("failed to update run: run %w", pwerrors.ErrEmptyValue)
	}
	if r.ID == "" {
		return fmt.Errorf("failed to update run: run ID %w", pwerrors.ErrEmptyValue)
	}

	runDir := s.runDir(r.ID)
	if _, err := os.Stat(runDir); os.IsNotExist(err) {
		return fmt.Errorf("failed to update run '%s': %w", r.ID, pwerrors.ErrRunNotFound)
	}

	lockFile, err := s.acquireLock(ctx, r.ID)
	if err != nil {
		return fmt.Errorf("failed to update run '%s': %w", r.ID, err)
	}
	defer func() { _ = s.releaseLock(lockFile) }()

	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to update run '%s': %w", r.ID, err)
	}

	if err := atomicWrite(s.runFilePath(r.ID), data); err != nil {
		return fmt.Errorf("failed to update run '%s': %w", r.ID, err)
	}

	return nil
}

// List returns all runs, sorted by creation time (newest first).
func (s *FileStore) List(ctx context.Context) ([]*domain.Run, error) {
	if err := ctxutil.Canceled(ctx); err != nil {
		return nil, err
	}

	runsDir := s.runsDir()
	if _, err := os.Stat(runsDir); os.IsNotExist(err) {
		return []*domain.Run{}, nil
	}

	entries, err := os.ReadDir(runsDir)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}

	runs := make([]*domain.Run, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		if !validRunIDRegex.MatchString(entry.Name()) {
			continue
		}

		if err := ctxutil.Canceled(ctx); err != nil {
			return nil, err
		}

		r, err := s.Get(ctx, entry.Name())
		if err != nil {
			// Skip directories without a valid run.json
			continue
		}
		runs = append(runs, r)
	}

	sort.Slice(runs, func(i, j int) bool {
		return runs[i].CreatedAt.After(runs[j].CreatedAt)
	})

	return runs, nil
}

// Delete removes a run and all its script artifacts.
func (s *FileStore) Delete(ctx context.Context, runID string) error {
	if err := ctxutil.Canceled(ctx); err != nil {
		return err
	}

	if runID == "" {
		return fmt.Errorf("failed to delete run: run ID %w", pwerrors.ErrEmptyValue)
	}

	runDir := s.runDir(runID)
	if _, err := os.Stat(runDir); os.IsNotExist(err) {
		return fmt.Errorf("failed to delete run '%s': %w", runID, pwerrors.ErrRunNotFound)
	}

	lockFile, err := s.acquireLock(ctx, runID)
	if err != nil {
		return fmt.Errorf("failed to delete run '%s': %w", runID, err)
	}
	// Release before removal since the lock file is inside the run directory
	_ = s.releaseLock(lockFile)

	if err := os.RemoveAll(runDir); err != nil {
		return fmt.Errorf("failed to delete run '%s': %w", runID, err)
	}

	return nil
}

// SaveScript persists one versioned script artifact for the run.
func (s *FileStore) SaveScript(ctx context.Context, runID string, version int, code string) error {
	if err := ctxutil.Canceled(ctx); err != nil {
		return err
	}

	if runID == "" {
		return fmt.Errorf("failed to save script: run ID %w", pwerrors.ErrEmptyValue)
	}
	if version < 1 {
		return fmt.Errorf("failed to save script: version must be >= 1, got %d", version)
	}

	runDir := s.runDir(runID)
	if _, err := os.Stat(runDir); os.IsNotExist(err) {
		return fmt.Errorf("failed to save script: run '%s' %w", runID, pwerrors.ErrRunNotFound)
	}

	scriptsDir := s.scriptsDir(runID)
	if err := os.MkdirAll(scriptsDir, dirPerm); err != nil {
		return fmt.Errorf("failed to create scripts directory: %w", err)
	}

	if err := atomicWrite(s.scriptPath(runID, version), []byte(code)); err != nil {
		return fmt.Errorf("failed to save script v%d: %w", version, err)
	}

	return nil
}

// GetScript retrieves a versioned script artifact.
func (s *FileStore) GetScript(ctx context.Context, runID string, version int) (string, error) {
	if err := ctxutil.Canceled(ctx); err != nil {
		return "", err
	}

	if runID == "" {
		return "", fmt.Errorf("failed to get script: run ID %w", pwerrors.ErrEmptyValue)
	}

	data, err := os.ReadFile(s.scriptPath(runID, version)) //#nosec G304 -- path is constructed internally
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("failed to get script v%d for run '%s': %w", version, runID, pwerrors.ErrRunNotFound)
		}
		return "", fmt.Errorf("failed to read script v%d: %w", version, err)
	}

	return string(data), nil
}

// Helper methods for path construction

// runsDir returns the path to the runs directory.
func (s *FileStore) runsDir() string {
	return filepath.Join(s.dataDir, "runs")
}

// runDir returns the path to a specific run's directory.
func (s *FileStore) runDir(runID string) string {
	return filepath.Join(s.runsDir(), runID)
}

// runFilePath returns the path to a run's JSON state file.
func (s *FileStore) runFilePath(runID string) string {
	return filepath.Join(s.runDir(runID), runFileName)
}

// scriptsDir returns the path to a run's scripts directory.
func (s *FileStore) scriptsDir(runID string) string {
	return filepath.Join(s.runDir(runID), scriptsDirName)
}

// scriptPath returns the path to a versioned script artifact.
func (s *FileStore) scriptPath(runID string, version int) string {
	return filepath.Join(s.scriptsDir(runID), fmt.Sprintf("script.v%d.js", version))
}

// lockFilePath returns the path to a run's lock file.
func (s *FileStore) lockFilePath(runID string) string {
	return filepath.Join(s.runDir(runID), runFileName+".lock")
}

// acquireLock acquires an exclusive file lock for the run.
// It respects context cancellation during the lock acquisition retry loop.
func (s *FileStore) acquireLock(ctx context.Context, runID string) (*os.File, error) {
	lockPath := s.lockFilePath(runID)

	runDir := s.runDir(runID)
	if err := os.MkdirAll(runDir, dirPerm); err != nil {
		return nil, fmt.Errorf("failed to create lock directory: %w", err)
	}

	f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, filePerm) //#nosec G302,G304 -- lock file needs write access, path is constructed from validated name
	if err != nil {
		return nil, fmt.Errorf("failed to open lock file: %w", err)
	}

	deadline := time.Now().Add(LockTimeout)
	for {
		if err := ctxutil.Canceled(ctx); err != nil {
			_ = f.Close()
			return nil, err
		}

		// LOCK_EX = exclusive lock, LOCK_NB = non-blocking
		err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB)
		if err == nil {
			return f, nil
		}

		if time.Now().After(deadline) {
			_ = f.Close()
			return nil, fmt.Errorf("failed to acquire lock on run '%s' within %s", runID, LockTimeout)
		}

		time.Sleep(50 * time.Millisecond)
	}
}

// releaseLock releases a file lock.
func (s *FileStore) releaseLock(f *os.File) error {
	if f == nil {
		return nil
	}

	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_UN); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to release lock: %w", err)
	}

	return f.Close()
}

// atomicWrite writes data to a file atomically using write-then-rename.
// Uses filePerm (0o600) for secure file permissions.
func atomicWrite(path string, data []byte) error {
	tmpPath := path + ".tmp"
	f, err := os.OpenFile(tmpPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, filePerm) //#nosec G304 -- path is constructed internally
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}

	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to write data: %w", err)
	}

	// Sync before rename so the data is on disk when the name flips
	if err := f.Sync(); err != nil {
		_ = f.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to sync file: %w", err)
	}

	if err := f.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to close file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to rename file: %w", err)
	}

	return nil
}

// GenerateRunID generates a run ID with format run-YYYYMMDD-HHMMSS-xxxxxxxx.
// The random suffix keeps IDs unique even within the same second.
func GenerateRunID() string {
	now := time.Now().UTC()
	return fmt.Sprintf("run-%s-%s-%s",
		now.Format("20060102"),
		now.Format("150405"),
		uuid.NewString()[:8])
}

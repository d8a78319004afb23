package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/gofrs/flock"
)

const (
	stateFileName     = "state.json"
	lockFileName      = "state.lock"
	checkpointDirName = "checkpoints"

	checkpointPrefix     = "checkpoint_"
	checkpointTimeFormat = "20060102_150405"

	// maxCheckpoints bounds the retained snapshot files; older ones are
	// deleted oldest-first after each checkpoint creation.
	maxCheckpoints = 10

	defaultLockTimeout = 5 * time.Second
	defaultLockRetry   = 100 * time.Millisecond
)

// =============================================================================
// Store
// =============================================================================

// Store is a file-backed document store with single-writer transactions.
// Cross-process mutual exclusion relies on an OS advisory lock on a
// dedicated lock file, so only cooperating processes are excluded.
type Store struct {
	dir           string
	statePath     string
	lockPath      string
	checkpointDir string
	logger        *slog.Logger

	now         func() time.Time
	lockTimeout time.Duration
	lockRetry   time.Duration
}

// New opens the store in dir, creating the directory tree and the initial
// document when missing. A nil logger falls back to slog.Default().
func New(dir string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Store{
		dir:           dir,
		statePath:     filepath.Join(dir, stateFileName),
		lockPath:      filepath.Join(dir, lockFileName),
		checkpointDir: filepath.Join(dir, checkpointDirName),
		logger:        logger,
		now:           time.Now,
		lockTimeout:   defaultLockTimeout,
		lockRetry:     defaultLockRetry,
	}

	if err := os.MkdirAll(s.checkpointDir, 0o755); err != nil {
		return nil, fmt.Errorf("create state directory: %w", err)
	}

	if _, err := os.Stat(s.statePath); errors.Is(err, fs.ErrNotExist) {
		if werr := s.write(NewDocument(s.now())); werr != nil {
			return nil, fmt.Errorf("initialize state: %w", werr)
		}
		s.logger.Info("initialized platform state", "path", s.statePath)
	} else if err != nil {
		return nil, fmt.Errorf("stat state file: %w", err)
	}

	return s, nil
}

// =============================================================================
// Read / Write
// =============================================================================

// Read returns the current document. The second result reports that the
// backing file was missing or unparseable and the store rebuilt it from the
// default document; that recovery is deliberate behavior, not an error.
func (s *Store) Read() (*Document, bool, error) {
	return s.read()
}

func (s *Store) read() (*Document, bool, error) {
	data, err := os.ReadFile(s.statePath)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		s.logger.Warn("state file missing, reinitializing", "path", s.statePath)
	case err != nil:
		return nil, false, fmt.Errorf("read state file: %w", err)
	default:
		var doc Document
		uerr := json.Unmarshal(data, &doc)
		if uerr == nil {
			return &doc, false, nil
		}
		s.logger.Warn("state file corrupted, reinitializing", "path", s.statePath, "error", uerr)
	}

	doc := NewDocument(s.now())
	if err := s.write(doc); err != nil {
		return nil, false, fmt.Errorf("reinitialize state: %w", err)
	}
	return doc, true, nil
}

// write publishes doc with a temp-file-and-rename so readers never observe
// a partially written document. The root last_updated is refreshed as part
// of the same write.
func (s *Store) write(doc *Document) error {
	doc.LastUpdated = s.now()

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}

	tmp, err := os.CreateTemp(s.dir, stateFileName+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp state file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write temp state file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close temp state file: %w", err)
	}
	if err := os.Rename(tmpPath, s.statePath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("publish state file: %w", err)
	}
	return nil
}

// =============================================================================
// Transactions
// =============================================================================

// Update runs fn inside an exclusive transaction: lock, read, checkpoint,
// mutate, write back. The lock is acquired with non-blocking attempts every
// lockRetry until lockTimeout elapses; a timeout returns ErrLockTimeout with
// nothing mutated. If fn or the write-back fails, the document is restored
// from the checkpoint taken at the start and the original error is returned.
// The lock is released on every exit path.
func (s *Store) Update(ctx context.Context, fn func(*Document) error) error {
	fl := flock.New(s.lockPath)

	lockCtx, cancel := context.WithTimeout(ctx, s.lockTimeout)
	defer cancel()

	locked, err := fl.TryLockContext(lockCtx, s.lockRetry)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("acquire state lock: %w", ErrLockTimeout)
		}
		return fmt.Errorf("acquire state lock: %w", err)
	}
	if !locked {
		return fmt.Errorf("acquire state lock: %w", ErrLockTimeout)
	}
	defer func() {
		if uerr := fl.Unlock(); uerr != nil {
			s.logger.Warn("release state lock", "error", uerr)
		}
	}()

	doc, _, err := s.read()
	if err != nil {
		return err
	}

	checkpointID, err := s.CreateCheckpoint(doc)
	if err != nil {
		return err
	}

	if err := fn(doc); err != nil {
		s.rollback(checkpointID, err)
		return err
	}

	if err := s.write(doc); err != nil {
		s.rollback(checkpointID, err)
		return err
	}

	s.logger.Debug("state transaction completed", "checkpoint", checkpointID)
	return nil
}

// rollback restores the pre-transaction checkpoint. A restore failure is
// logged so it never masks the error that triggered the rollback.
func (s *Store) rollback(checkpointID string, cause error) {
	s.logger.Error("state transaction failed, rolling back",
		"checkpoint", checkpointID,
		"error", cause,
	)
	if err := s.RestoreCheckpoint(checkpointID); err != nil {
		s.logger.Error("checkpoint restore failed", "checkpoint", checkpointID, "error", err)
	}
}

// =============================================================================
// Checkpoints
// =============================================================================

// CreateCheckpoint snapshots doc to a timestamp-named file and returns the
// checkpoint id. Ids have second granularity; a second snapshot within the
// same second overwrites the first. After writing, snapshots beyond the
// newest maxCheckpoints are deleted.
func (s *Store) CreateCheckpoint(doc *Document) (string, error) {
	id := s.now().Format(checkpointTimeFormat)

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode checkpoint: %w", err)
	}
	if err := os.WriteFile(s.checkpointPath(id), data, 0o644); err != nil {
		return "", fmt.Errorf("write checkpoint %s: %w", id, err)
	}

	if err := s.pruneCheckpoints(); err != nil {
		return "", err
	}
	return id, nil
}

// RestoreCheckpoint replaces the live document with the named snapshot.
func (s *Store) RestoreCheckpoint(id string) error {
	data, err := os.ReadFile(s.checkpointPath(id))
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("checkpoint %s: %w", id, ErrCheckpointNotFound)
	}
	if err != nil {
		return fmt.Errorf("read checkpoint %s: %w", id, err)
	}

	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("decode checkpoint %s: %w", id, err)
	}
	if err := s.write(&doc); err != nil {
		return err
	}

	s.logger.Info("restored state from checkpoint", "checkpoint", id)
	return nil
}

// ListCheckpoints returns retained checkpoint ids in filename order, which
// is chronological given the fixed-width timestamp format.
func (s *Store) ListCheckpoints() ([]string, error) {
	entries, err := os.ReadDir(s.checkpointDir)
	if err != nil {
		return nil, fmt.Errorf("list checkpoints: %w", err)
	}

	var ids []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, checkpointPrefix) || !strings.HasSuffix(name, ".json") {
			continue
		}
		ids = append(ids, strings.TrimSuffix(strings.TrimPrefix(name, checkpointPrefix), ".json"))
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *Store) pruneCheckpoints() error {
	ids, err := s.ListCheckpoints()
	if err != nil {
		return err
	}
	if len(ids) <= maxCheckpoints {
		return nil
	}
	for _, id := range ids[:len(ids)-maxCheckpoints] {
		if err := os.Remove(s.checkpointPath(id)); err != nil {
			return fmt.Errorf("remove old checkpoint %s: %w", id, err)
		}
	}
	return nil
}

func (s *Store) checkpointPath(id string) string {
	return filepath.Join(s.checkpointDir, checkpointPrefix+id+".json")
}

// =============================================================================
// Status Operations
// =============================================================================

// GetServiceState returns the recorded state for a service. The second
// result is false when the service has no record.
func (s *Store) GetServiceState(name string) (ServiceState, bool, error) {
	doc, _, err := s.read()
	if err != nil {
		return ServiceState{}, false, err
	}
	st, ok := doc.Services[name]
	return st, ok, nil
}

// UpdateServiceState inserts or replaces the record for a service inside a
// transaction, stamping the record's last_updated. Records for other
// services are preserved.
func (s *Store) UpdateServiceState(ctx context.Context, name string, st ServiceState) error {
	if name == "" {
		return errors.New("service name is required")
	}
	return s.Update(ctx, func(doc *Document) error {
		if doc.Services == nil {
			doc.Services = make(map[string]ServiceState)
		}
		st.LastUpdated = s.now()
		doc.Services[name] = st
		return nil
	})
}

// GetPlatformStatus returns the platform status, or StatusUnknown when the
// document carries none.
func (s *Store) GetPlatformStatus() (Status, error) {
	doc, _, err := s.read()
	if err != nil {
		return StatusUnknown, err
	}
	if doc.Platform.Status == "" {
		return StatusUnknown, nil
	}
	return doc.Platform.Status, nil
}

// SetPlatformStatus sets platform.status inside a transaction and refreshes
// platform.last_updated.
func (s *Store) SetPlatformStatus(ctx context.Context, status Status) error {
	return s.Update(ctx, func(doc *Document) error {
		doc.Platform.Status = status
		doc.Platform.LastUpdated = s.now()
		return nil
	})
}

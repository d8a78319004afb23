package state

import "errors"

// =============================================================================
// Error Types
// =============================================================================

var (
	// ErrLockTimeout is returned when the exclusive state lock cannot be
	// acquired within the lock timeout. Nothing has been mutated.
	ErrLockTimeout = errors.New("state lock acquisition timed out")

	// ErrCheckpointNotFound is returned when a restore names a checkpoint
	// with no snapshot file.
	ErrCheckpointNotFound = errors.New("checkpoint not found")
)

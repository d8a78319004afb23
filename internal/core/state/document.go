// Package state implements the transactional platform state store.
//
// The store persists a single JSON document describing platform and
// per-service status. All mutations go through Update, which serializes
// writers with an OS advisory file lock, snapshots the document to a
// checkpoint before applying the mutation, and restores that checkpoint
// if the mutation fails.
package state

import "time"

// SchemaVersion tags the persisted document layout.
const SchemaVersion = "2.0.0"

// =============================================================================
// Status
// =============================================================================

// Status describes platform or service lifecycle state. The constants cover
// the states the CLI writes; callers may record custom values.
type Status string

const (
	StatusNotInitialized Status = "not_initialized"
	StatusInitialized    Status = "initialized"
	StatusRunning        Status = "running"
	StatusStopped        Status = "stopped"
	StatusUnknown        Status = "unknown"
)

// =============================================================================
// Document Types
// =============================================================================

// Document is the persisted root object.
type Document struct {
	Version     string                  `json:"version"`
	CreatedAt   time.Time               `json:"created_at"`
	Platform    PlatformState           `json:"platform"`
	Services    map[string]ServiceState `json:"services"`
	Checkpoints []string                `json:"checkpoints"`

	// LastUpdated is refreshed by the write path on every persisted write.
	LastUpdated time.Time `json:"last_updated"`
}

// PlatformState tracks platform-wide lifecycle state.
type PlatformState struct {
	Status      Status    `json:"status"`
	Environment string    `json:"environment,omitempty"`
	LastUpdated time.Time `json:"last_updated"`
}

// ServiceState is the per-service status record. All fields except
// LastUpdated are optional; LastUpdated is stamped by UpdateServiceState.
type ServiceState struct {
	Status      Status   `json:"status,omitempty"`
	Image       string   `json:"image,omitempty"`
	ContainerID string   `json:"container_id,omitempty"`
	Ports       []string `json:"ports,omitempty"`
	Health      string   `json:"health,omitempty"`
	Message     string   `json:"message,omitempty"`

	LastUpdated time.Time `json:"last_updated"`
}

// NewDocument returns the default document written on first initialization.
func NewDocument(now time.Time) *Document {
	return &Document{
		Version:   SchemaVersion,
		CreatedAt: now,
		Platform: PlatformState{
			Status:      StatusNotInitialized,
			LastUpdated: now,
		},
		Services:    make(map[string]ServiceState),
		Checkpoints: []string{},
	}
}

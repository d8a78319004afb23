// Package docker provides a Docker client for observing compose-managed
// containers and provisioning the platform network, volumes, and images.
package docker

import (
	"time"
)

// =============================================================================
// Container Info
// =============================================================================

// ContainerStatus represents the container status.
type ContainerStatus string

const (
	ContainerStatusCreated    ContainerStatus = "created"
	ContainerStatusRunning    ContainerStatus = "running"
	ContainerStatusPaused     ContainerStatus = "paused"
	ContainerStatusRestarting ContainerStatus = "restarting"
	ContainerStatusRemoving   ContainerStatus = "removing"
	ContainerStatusExited     ContainerStatus = "exited"
	ContainerStatusDead       ContainerStatus = "dead"
)

// PortBinding defines a port mapping.
type PortBinding struct {
	ContainerPort int
	HostPort      int    // 0 for auto-assign
	Protocol      string // "tcp" or "udp"
	HostIP        string // "" for 0.0.0.0
}

// ContainerInfo contains information about a container.
type ContainerInfo struct {
	ID           string
	Name         string
	Image        string
	Status       ContainerStatus
	State        string // "running", "exited", "created", etc.
	Health       string // "healthy", "unhealthy", "starting", ""
	RestartCount int    // populated by inspect, zero in list results
	CreatedAt    time.Time
	StartedAt    *time.Time
	FinishedAt   *time.Time
	Ports        []PortBinding
	Labels       map[string]string
	ExitCode     int
}

// =============================================================================
// Network Types
// =============================================================================

// NetworkSpec defines the specification for ensuring a network exists.
type NetworkSpec struct {
	Name   string
	Driver string // "bridge" by default
	Subnet string // optional fixed subnet, e.g. "172.28.0.0/16"
	Labels map[string]string
}

// =============================================================================
// Volume Types
// =============================================================================

// VolumeSpec defines the specification for ensuring a volume exists.
type VolumeSpec struct {
	Name   string
	Driver string
	Labels map[string]string
}

// =============================================================================
// Options
// =============================================================================

// ListOptions defines options for listing containers.
type ListOptions struct {
	All     bool              // Include stopped containers
	Filters map[string]string // e.g., {"label": "com.docker.compose.project=datastack"}
}

// PullOptions defines options for pulling images.
type PullOptions struct {
	Platform string // e.g., "linux/amd64"
}

// =============================================================================
// System Info
// =============================================================================

// SystemInfo summarizes the Docker daemon and the host it runs on.
type SystemInfo struct {
	ServerVersion     string
	OperatingSystem   string
	OSType            string
	Architecture      string
	NCPU              int
	MemTotalMB        int64
	Containers        int
	ContainersRunning int
}

// =============================================================================
// Client Interface
// =============================================================================

// Client defines the Docker client interface.
type Client interface {
	// Container observation
	ListContainers(opts ListOptions) ([]ContainerInfo, error)
	InspectContainer(containerID string) (*ContainerInfo, error)
	ProjectContainers(project string) ([]ContainerInfo, error)

	// Network operations
	EnsureNetwork(spec NetworkSpec) (networkID string, err error)
	RemoveNetwork(name string) error

	// Volume operations
	EnsureVolume(spec VolumeSpec) (volumeName string, err error)
	RemoveVolume(volumeName string, force bool) error

	// Image operations
	PullImage(image string, opts PullOptions) error
	ImageExists(image string) (bool, error)

	// Health operations
	Ping() error
	Info() (*SystemInfo, error)
	Close() error
}

// =============================================================================
// Label Constants
// =============================================================================

const (
	// Labels docker compose stamps on the containers it manages.
	LabelComposeProject = "com.docker.compose.project"
	LabelComposeService = "com.docker.compose.service"

	// Labels stamped on resources this platform provisions.
	LabelManaged     = "com.datastack.managed"
	LabelEnvironment = "com.datastack.environment"
)

// Package stack assembles the platform status view and derives the
// interpolation environment for the compose spec. Pure functions only;
// container observations come in from the shell layer.
package stack

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/artpar/datastack/internal/config"
	"github.com/artpar/datastack/internal/core/compose"
	"github.com/artpar/datastack/internal/core/monitoring"
	"github.com/artpar/datastack/internal/core/state"
)

// =============================================================================
// Types
// =============================================================================

// ContainerObservation is what the shell layer reports about one container.
type ContainerObservation struct {
	Service  string // compose service name from container labels
	ID       string
	Name     string
	Image    string
	State    string // running, exited, paused, restarting, dead
	Health   string // healthy, unhealthy, starting, or empty
	Restarts int
	Ports    []string // host bindings, e.g. "0.0.0.0:5432->5432/tcp"
}

// ServiceStatus is the per-service row of the status view.
type ServiceStatus struct {
	Name        string                  `json:"name"`
	Image       string                  `json:"image,omitempty"`
	State       string                  `json:"state"`
	Health      monitoring.HealthStatus `json:"health"`
	Ports       []string                `json:"ports,omitempty"`
	ContainerID string                  `json:"container_id,omitempty"`
	Message     string                  `json:"message,omitempty"`
	LastUpdated time.Time               `json:"last_updated,omitzero"`
}

// PlatformStatus is the header of the status view.
type PlatformStatus struct {
	Name        string                  `json:"name"`
	Environment string                  `json:"environment"`
	Status      state.Status            `json:"status"`
	Health      monitoring.HealthStatus `json:"health"`
	LastUpdated time.Time               `json:"last_updated,omitzero"`
}

// StackStatus is the full status view of the platform.
type StackStatus struct {
	Platform PlatformStatus  `json:"platform"`
	Services []ServiceStatus `json:"services"`
}

// ServiceStateMissing marks an enabled service with no container.
const ServiceStateMissing = "missing"

// =============================================================================
// Service Selection
// =============================================================================

// SelectServices resolves which compose services an operation targets.
// With no explicit request it returns the enabled services from config;
// explicit names are honored even for disabled services but must exist
// in the compose spec.
func SelectServices(cfg *config.Config, spec *compose.ParsedSpec, requested []string) ([]string, error) {
	defined := make(map[string]bool, len(spec.Services))
	for _, svc := range spec.Services {
		defined[svc.Name] = true
	}

	if len(requested) == 0 {
		var selected []string
		for _, name := range cfg.EnabledServices() {
			if !defined[name] {
				return nil, fmt.Errorf("enabled service %q is not defined in the compose spec", name)
			}
			selected = append(selected, name)
		}
		return selected, nil
	}

	seen := make(map[string]bool, len(requested))
	var selected []string
	for _, name := range requested {
		if !defined[name] {
			return nil, fmt.Errorf("unknown service %q, defined services: %s",
				name, strings.Join(sortedNames(defined), ", "))
		}
		if seen[name] {
			continue
		}
		seen[name] = true
		selected = append(selected, name)
	}
	sort.Strings(selected)
	return selected, nil
}

func sortedNames(set map[string]bool) []string {
	names := make([]string, 0, len(set))
	for name := range set {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// =============================================================================
// Compose Environment Derivation
// =============================================================================

// ComposeEnvironment derives the interpolation environment for the compose
// spec from config. Each service contributes <NAME>_PORT, <NAME>_UI_PORT,
// <NAME>_MEMORY, and <NAME>_CPUS variables; unset ports are omitted so the
// spec's ${VAR:-default} fallbacks apply.
func ComposeEnvironment(cfg *config.Config) map[string]string {
	env := map[string]string{
		"PLATFORM_NAME":        cfg.Platform.Name,
		"PLATFORM_ENVIRONMENT": cfg.Platform.Environment,
	}

	for name, svc := range cfg.Services {
		prefix := envPrefix(name)
		if svc.Port != 0 {
			env[prefix+"_PORT"] = strconv.Itoa(svc.Port)
		}
		if svc.UIPort != 0 {
			env[prefix+"_UI_PORT"] = strconv.Itoa(svc.UIPort)
		}
		if svc.Memory != "" {
			env[prefix+"_MEMORY"] = svc.Memory
		}
		if svc.CPUs != 0 {
			env[prefix+"_CPUS"] = strconv.FormatFloat(svc.CPUs, 'f', -1, 64)
		}
	}

	return env
}

// envPrefix maps a service name to its variable prefix: "postgresql" ->
// "POSTGRESQL". Hyphens become underscores to stay valid variable names.
func envPrefix(service string) string {
	return strings.ToUpper(strings.ReplaceAll(service, "-", "_"))
}

// =============================================================================
// Status View Assembly
// =============================================================================

// BuildStatus merges config, the persisted state document, the parsed
// compose spec, and live container observations into a status view.
func BuildStatus(cfg *config.Config, doc *state.Document, spec *compose.ParsedSpec, observed []ContainerObservation) StackStatus {
	byService := make(map[string]ContainerObservation, len(observed))
	for _, obs := range observed {
		byService[obs.Service] = obs
	}

	images := make(map[string]string, len(spec.Services))
	for _, svc := range spec.Services {
		images[svc.Name] = svc.Image
	}

	var services []ServiceStatus
	var healths []monitoring.HealthStatus
	for _, name := range cfg.EnabledServices() {
		row := ServiceStatus{Name: name, Image: images[name]}
		if tracked, ok := doc.Services[name]; ok {
			row.Message = tracked.Message
			row.LastUpdated = tracked.LastUpdated
		}

		if obs, ok := byService[name]; ok {
			row.State = obs.State
			row.Health = monitoring.DetermineServiceHealth(obs.State, healthPtr(obs.Health), obs.Restarts)
			row.Ports = obs.Ports
			row.ContainerID = ShortID(obs.ID)
			if obs.Image != "" {
				row.Image = obs.Image
			}
		} else {
			row.State = ServiceStateMissing
			row.Health = monitoring.HealthUnknown
			if row.Message == "" {
				row.Message = monitoring.ServiceEventMessage(monitoring.EventServiceMissing, name)
			}
		}

		services = append(services, row)
		healths = append(healths, row.Health)
	}

	return StackStatus{
		Platform: PlatformStatus{
			Name:        cfg.Platform.Name,
			Environment: cfg.Platform.Environment,
			Status:      doc.Platform.Status,
			Health:      monitoring.AggregateStackHealth(healths),
			LastUpdated: doc.Platform.LastUpdated,
		},
		Services: services,
	}
}

func healthPtr(health string) *string {
	if health == "" {
		return nil
	}
	return &health
}

// StateFromContainer maps a container state to the persisted service status.
func StateFromContainer(containerState string) state.Status {
	if containerState == "running" {
		return state.StatusRunning
	}
	return state.StatusStopped
}

// ShortID trims a container ID to the familiar 12-character form.
func ShortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}

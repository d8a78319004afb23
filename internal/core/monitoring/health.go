// Package monitoring provides pure functions for service health logic.
// This package contains NO I/O.
package monitoring

// =============================================================================
// Types
// =============================================================================

// HealthStatus represents the health of a service or of the whole stack.
type HealthStatus string

const (
	HealthHealthy   HealthStatus = "healthy"
	HealthStarting  HealthStatus = "starting"
	HealthDegraded  HealthStatus = "degraded"
	HealthUnhealthy HealthStatus = "unhealthy"
	HealthUnknown   HealthStatus = "unknown"
)

// ServiceEventType identifies lifecycle events worth recording on a service.
type ServiceEventType string

const (
	EventServiceStarted   ServiceEventType = "started"
	EventServiceStopped   ServiceEventType = "stopped"
	EventServiceDied      ServiceEventType = "died"
	EventServiceUnhealthy ServiceEventType = "unhealthy"
	EventServiceMissing   ServiceEventType = "missing"
)

// =============================================================================
// Health Aggregation (Pure Functions)
// =============================================================================

// AggregateStackHealth determines overall stack health from service health values.
func AggregateStackHealth(services []HealthStatus) HealthStatus {
	if len(services) == 0 {
		return HealthUnknown
	}

	unhealthy := 0
	degraded := 0

	for _, h := range services {
		switch h {
		case HealthUnhealthy:
			unhealthy++
		case HealthDegraded, HealthStarting:
			degraded++
		case HealthUnknown:
			// Unknown services count as degraded
			degraded++
		}
	}

	// All unhealthy = unhealthy
	if unhealthy == len(services) {
		return HealthUnhealthy
	}
	// Any unhealthy or degraded = degraded
	if unhealthy > 0 || degraded > 0 {
		return HealthDegraded
	}
	// All healthy = healthy
	return HealthHealthy
}

// DetermineServiceHealth maps a container observation to a health status.
//
// Parameters:
// - status: container status (running, stopped, paused, restarting, exited)
// - healthCheck: Docker health check result if available (healthy, unhealthy, starting)
// - restarts: number of restarts since container creation
func DetermineServiceHealth(status string, healthCheck *string, restarts int) HealthStatus {
	// Non-running containers are unhealthy
	if status != "running" {
		return HealthUnhealthy
	}

	// If Docker health check reports unhealthy
	if healthCheck != nil && *healthCheck == "unhealthy" {
		return HealthUnhealthy
	}

	// Many restarts indicate instability
	if restarts > 3 {
		return HealthDegraded
	}

	// Health check still warming up
	if healthCheck != nil && *healthCheck == "starting" {
		return HealthStarting
	}

	return HealthHealthy
}

// =============================================================================
// Event Message Generation (Pure Functions)
// =============================================================================

// ServiceEventMessage generates a human-readable message for service events.
func ServiceEventMessage(eventType ServiceEventType, serviceName string) string {
	switch eventType {
	case EventServiceStarted:
		return "Service " + serviceName + " started successfully"
	case EventServiceStopped:
		return "Service " + serviceName + " stopped"
	case EventServiceDied:
		return "Service " + serviceName + " exited unexpectedly"
	case EventServiceUnhealthy:
		return "Service " + serviceName + " health check failed"
	case EventServiceMissing:
		return "Service " + serviceName + " has no container"
	default:
		return "Service " + serviceName + " event: " + string(eventType)
	}
}

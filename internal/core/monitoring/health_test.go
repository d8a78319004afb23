package monitoring

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

// =============================================================================
// AggregateStackHealth Tests
// =============================================================================

func TestAggregateStackHealth_AllHealthy(t *testing.T) {
	result := AggregateStackHealth([]HealthStatus{HealthHealthy, HealthHealthy})

	assert.Equal(t, HealthHealthy, result)
}

func TestAggregateStackHealth_OneUnhealthy(t *testing.T) {
	result := AggregateStackHealth([]HealthStatus{HealthHealthy, HealthUnhealthy})

	assert.Equal(t, HealthDegraded, result)
}

func TestAggregateStackHealth_AllUnhealthy(t *testing.T) {
	result := AggregateStackHealth([]HealthStatus{HealthUnhealthy, HealthUnhealthy})

	assert.Equal(t, HealthUnhealthy, result)
}

func TestAggregateStackHealth_MixedStatus(t *testing.T) {
	tests := []struct {
		name     string
		services []HealthStatus
		expected HealthStatus
	}{
		{
			name:     "one degraded",
			services: []HealthStatus{HealthHealthy, HealthDegraded},
			expected: HealthDegraded,
		},
		{
			name:     "unhealthy and degraded",
			services: []HealthStatus{HealthUnhealthy, HealthDegraded, HealthHealthy},
			expected: HealthDegraded,
		},
		{
			name:     "one unknown",
			services: []HealthStatus{HealthHealthy, HealthUnknown},
			expected: HealthDegraded,
		},
		{
			name:     "one starting",
			services: []HealthStatus{HealthHealthy, HealthStarting},
			expected: HealthDegraded,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := AggregateStackHealth(tt.services)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestAggregateStackHealth_EmptyServices(t *testing.T) {
	result := AggregateStackHealth(nil)

	assert.Equal(t, HealthUnknown, result)
}

func TestAggregateStackHealth_SingleService(t *testing.T) {
	tests := []struct {
		name     string
		health   HealthStatus
		expected HealthStatus
	}{
		{"healthy", HealthHealthy, HealthHealthy},
		{"unhealthy", HealthUnhealthy, HealthUnhealthy},
		{"degraded", HealthDegraded, HealthDegraded},
		{"unknown", HealthUnknown, HealthDegraded},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := AggregateStackHealth([]HealthStatus{tt.health})
			assert.Equal(t, tt.expected, result)
		})
	}
}

// =============================================================================
// DetermineServiceHealth Tests
// =============================================================================

func TestDetermineServiceHealth_Running(t *testing.T) {
	result := DetermineServiceHealth("running", nil, 0)

	assert.Equal(t, HealthHealthy, result)
}

func TestDetermineServiceHealth_Stopped(t *testing.T) {
	tests := []string{"stopped", "exited", "paused", "dead", "restarting"}

	for _, status := range tests {
		t.Run(status, func(t *testing.T) {
			result := DetermineServiceHealth(status, nil, 0)
			assert.Equal(t, HealthUnhealthy, result)
		})
	}
}

func TestDetermineServiceHealth_HighRestarts(t *testing.T) {
	tests := []struct {
		restarts int
		expected HealthStatus
	}{
		{0, HealthHealthy},
		{1, HealthHealthy},
		{3, HealthHealthy},
		{4, HealthDegraded},
		{10, HealthDegraded},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("restarts=%d", tt.restarts), func(t *testing.T) {
			result := DetermineServiceHealth("running", nil, tt.restarts)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestDetermineServiceHealth_UnhealthyCheck(t *testing.T) {
	unhealthy := "unhealthy"
	result := DetermineServiceHealth("running", &unhealthy, 0)

	assert.Equal(t, HealthUnhealthy, result)
}

func TestDetermineServiceHealth_HealthyCheck(t *testing.T) {
	healthy := "healthy"
	result := DetermineServiceHealth("running", &healthy, 0)

	assert.Equal(t, HealthHealthy, result)
}

func TestDetermineServiceHealth_StartingCheck(t *testing.T) {
	starting := "starting"
	result := DetermineServiceHealth("running", &starting, 0)

	assert.Equal(t, HealthStarting, result)
}

func TestDetermineServiceHealth_CombinedFactors(t *testing.T) {
	// Unhealthy check takes precedence over restarts
	unhealthy := "unhealthy"
	result := DetermineServiceHealth("running", &unhealthy, 10)
	assert.Equal(t, HealthUnhealthy, result)

	// Non-running status takes precedence over everything
	result = DetermineServiceHealth("stopped", &unhealthy, 10)
	assert.Equal(t, HealthUnhealthy, result)

	// High restarts still counted when healthy otherwise
	healthy := "healthy"
	result = DetermineServiceHealth("running", &healthy, 5)
	assert.Equal(t, HealthDegraded, result)
}

// =============================================================================
// ServiceEventMessage Tests
// =============================================================================

func TestServiceEventMessage(t *testing.T) {
	tests := []struct {
		eventType ServiceEventType
		service   string
		expected  string
	}{
		{EventServiceStarted, "postgresql", "Service postgresql started successfully"},
		{EventServiceStopped, "airflow", "Service airflow stopped"},
		{EventServiceDied, "spark", "Service spark exited unexpectedly"},
		{EventServiceUnhealthy, "jupyter", "Service jupyter health check failed"},
		{EventServiceMissing, "dbt", "Service dbt has no container"},
	}

	for _, tt := range tests {
		t.Run(string(tt.eventType), func(t *testing.T) {
			result := ServiceEventMessage(tt.eventType, tt.service)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestServiceEventMessage_UnknownType(t *testing.T) {
	result := ServiceEventMessage("unknown_event", "pgadmin")
	assert.Contains(t, result, "Service pgadmin")
	assert.Contains(t, result, "unknown_event")
}

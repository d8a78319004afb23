package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// Config Loading Tests
// =============================================================================

func TestLoadConfig_DefaultValues(t *testing.T) {
	clearEnv(t)

	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, "datastack", cfg.Platform.Name)
	assert.Equal(t, "2.0.0", cfg.Platform.Version)
	assert.Equal(t, "development", cfg.Platform.Environment)
	assert.Equal(t, "8G", cfg.Resources.MemoryLimit)
	assert.Equal(t, 4.0, cfg.Resources.CPULimit)
	assert.Equal(t, "datastack", cfg.Compose.ProjectName)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format)

	// Home defaults under the user home directory
	home, err := os.UserHomeDir()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, ".datastack"), cfg.Home)
	assert.Equal(t, filepath.Join(cfg.Home, "docker-compose.yaml"), cfg.Compose.File)
}

func TestLoadConfig_DefaultServices(t *testing.T) {
	clearEnv(t)

	cfg, err := LoadConfig("")
	require.NoError(t, err)

	require.Len(t, cfg.Services, 6)

	pg, ok := cfg.Services["postgresql"]
	require.True(t, ok)
	assert.True(t, pg.Enabled)
	assert.Equal(t, 5432, pg.Port)
	assert.Equal(t, "2G", pg.Memory)
	assert.Equal(t, 1.0, pg.CPUs)

	spark, ok := cfg.Services["spark"]
	require.True(t, ok)
	assert.Equal(t, 7077, spark.Port)
	assert.Equal(t, 8082, spark.UIPort)
	assert.Equal(t, "4G", spark.Memory)
	assert.Equal(t, 2.0, spark.CPUs)

	dbt, ok := cfg.Services["dbt"]
	require.True(t, ok)
	assert.Zero(t, dbt.Port, "dbt exposes no host port")
	assert.Equal(t, "1G", dbt.Memory)
}

func TestLoadConfig_FromFile(t *testing.T) {
	clearEnv(t)

	configContent := `
platform:
  name: "warehouse"
  environment: "production"

home: "/srv/datastack"

resources:
  memory_limit: "16G"
  cpu_limit: 8

services:
  postgresql:
    enabled: true
    port: 15432
    memory: "4G"
    cpus: 2.0

log:
  level: "debug"
  format: "json"
`
	tmpFile := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(tmpFile, []byte(configContent), 0644))

	cfg, err := LoadConfig(tmpFile)
	require.NoError(t, err)

	assert.Equal(t, "warehouse", cfg.Platform.Name)
	assert.Equal(t, "production", cfg.Platform.Environment)
	assert.Equal(t, "/srv/datastack", cfg.Home)
	assert.Equal(t, "16G", cfg.Resources.MemoryLimit)
	assert.Equal(t, 8.0, cfg.Resources.CPULimit)
	assert.Equal(t, 15432, cfg.Services["postgresql"].Port)
	assert.Equal(t, "4G", cfg.Services["postgresql"].Memory)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)

	// Compose file follows the configured home
	assert.Equal(t, "/srv/datastack/docker-compose.yaml", cfg.Compose.File)
}

func TestLoadConfig_EnvironmentOverride(t *testing.T) {
	clearEnv(t)

	t.Setenv("DATASTACK_PLATFORM_ENVIRONMENT", "custom")
	t.Setenv("DATASTACK_HOME", "/opt/stack")
	t.Setenv("DATASTACK_LOG_LEVEL", "warn")
	t.Setenv("DATASTACK_SERVICES_POSTGRESQL_PORT", "15432")

	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, "custom", cfg.Platform.Environment)
	assert.Equal(t, "/opt/stack", cfg.Home)
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, 15432, cfg.Services["postgresql"].Port)
}

func TestLoadConfig_FileNotFound_UsesDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := LoadConfig("/nonexistent/path/config.yaml")
	require.NoError(t, err) // Should not error, just use defaults

	assert.Equal(t, "datastack", cfg.Platform.Name)
}

func TestLoadConfig_InvalidFile(t *testing.T) {
	clearEnv(t)

	tmpFile := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(tmpFile, []byte("invalid: yaml: content: [[["), 0644))

	_, err := LoadConfig(tmpFile)
	assert.Error(t, err)
}

// =============================================================================
// Validation Tests
// =============================================================================

func TestConfig_Validate_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.NoError(t, cfg.Validate())
}

func TestConfig_Validate_BadEnvironment(t *testing.T) {
	clearEnv(t)

	cfg, err := LoadConfig("")
	require.NoError(t, err)
	cfg.Platform.Environment = "staging"

	err = cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "staging")
}

func TestConfig_Validate_BadServiceMemory(t *testing.T) {
	clearEnv(t)

	cfg, err := LoadConfig("")
	require.NoError(t, err)
	svc := cfg.Services["jupyter"]
	svc.Memory = "2GB"
	cfg.Services["jupyter"] = svc

	err = cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "jupyter")
	assert.Contains(t, err.Error(), "2GB")
}

func TestConfig_Validate_PortCollision(t *testing.T) {
	clearEnv(t)

	cfg, err := LoadConfig("")
	require.NoError(t, err)
	svc := cfg.Services["pgadmin"]
	svc.Port = 8080 // collides with airflow
	cfg.Services["pgadmin"] = svc

	err = cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "8080")
}

func TestConfig_Validate_DisabledServiceMayCollide(t *testing.T) {
	clearEnv(t)

	cfg, err := LoadConfig("")
	require.NoError(t, err)
	svc := cfg.Services["pgadmin"]
	svc.Port = 8080
	svc.Enabled = false
	cfg.Services["pgadmin"] = svc

	assert.NoError(t, cfg.Validate())
}

func TestConfig_CheckResourceBudget_DefaultsOversubscribe(t *testing.T) {
	clearEnv(t)

	cfg, err := LoadConfig("")
	require.NoError(t, err)

	// The stock service set intentionally oversubscribes the budget,
	// so this is advisory and must not fail Validate.
	result := cfg.CheckResourceBudget()
	assert.False(t, result.Allowed)
	assert.NoError(t, cfg.Validate())
}

func TestConfig_CheckResourceBudget_WithinBudget(t *testing.T) {
	clearEnv(t)

	cfg, err := LoadConfig("")
	require.NoError(t, err)
	cfg.Resources.CPULimit = 8.0
	cfg.Resources.MemoryLimit = "16G"

	result := cfg.CheckResourceBudget()
	assert.True(t, result.Allowed, result.Reason)
}

func TestConfig_EnabledServices(t *testing.T) {
	clearEnv(t)

	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, []string{"airflow", "dbt", "jupyter", "pgadmin", "postgresql", "spark"}, cfg.EnabledServices())

	svc := cfg.Services["pgadmin"]
	svc.Enabled = false
	cfg.Services["pgadmin"] = svc
	assert.NotContains(t, cfg.EnabledServices(), "pgadmin")
}

func TestServiceConfig_HostPorts(t *testing.T) {
	assert.Equal(t, []int{7077, 8082}, ServiceConfig{Port: 7077, UIPort: 8082}.HostPorts())
	assert.Equal(t, []int{5432}, ServiceConfig{Port: 5432}.HostPorts())
	assert.Empty(t, ServiceConfig{}.HostPorts())
}

// =============================================================================
// Test Helpers
// =============================================================================

func clearEnv(t *testing.T) {
	t.Helper()
	envVars := []string{
		"DATASTACK_HOME",
		"DATASTACK_PLATFORM_NAME",
		"DATASTACK_PLATFORM_ENVIRONMENT",
		"DATASTACK_LOG_LEVEL",
		"DATASTACK_LOG_FORMAT",
		"DATASTACK_SERVICES_POSTGRESQL_PORT",
	}
	for _, v := range envVars {
		os.Unsetenv(v)
	}
}

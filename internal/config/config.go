// Package config loads and validates datastack configuration from
// defaults, an optional YAML file, and DATASTACK_* environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/viper"

	"github.com/artpar/datastack/internal/core/limits"
)

// =============================================================================
// Config Types
// =============================================================================

// Config holds all application configuration. The yaml tags shape the
// default config file written at init.
type Config struct {
	Platform  PlatformConfig           `mapstructure:"platform" yaml:"platform"`
	Home      string                   `mapstructure:"home" yaml:"home,omitempty"`
	Docker    DockerConfig             `mapstructure:"docker" yaml:"docker,omitempty"`
	Compose   ComposeConfig            `mapstructure:"compose" yaml:"compose"`
	Resources ResourcesConfig          `mapstructure:"resources" yaml:"resources"`
	Services  map[string]ServiceConfig `mapstructure:"services" yaml:"services"`
	Log       LogConfig                `mapstructure:"log" yaml:"log"`
}

// PlatformConfig identifies the platform installation.
type PlatformConfig struct {
	Name        string `mapstructure:"name" yaml:"name"`
	Version     string `mapstructure:"version" yaml:"version"`
	Environment string `mapstructure:"environment" yaml:"environment"`
}

// DockerConfig holds Docker client configuration.
type DockerConfig struct {
	// Host overrides the Docker daemon address. Empty means the client
	// resolves it from the environment (DOCKER_HOST, default socket).
	Host string `mapstructure:"host" yaml:"host,omitempty"`
}

// ComposeConfig holds Compose project configuration.
type ComposeConfig struct {
	ProjectName string `mapstructure:"project_name" yaml:"project_name"`
	File        string `mapstructure:"file" yaml:"file,omitempty"`
}

// ResourcesConfig holds the platform-wide resource budget.
type ResourcesConfig struct {
	MemoryLimit string  `mapstructure:"memory_limit" yaml:"memory_limit"`
	CPULimit    float64 `mapstructure:"cpu_limit" yaml:"cpu_limit"`
}

// ServiceConfig holds per-service settings.
type ServiceConfig struct {
	Enabled bool    `mapstructure:"enabled" yaml:"enabled"`
	Port    int     `mapstructure:"port" yaml:"port,omitempty"`
	UIPort  int     `mapstructure:"ui_port" yaml:"ui_port,omitempty"`
	Memory  string  `mapstructure:"memory" yaml:"memory"`
	CPUs    float64 `mapstructure:"cpus" yaml:"cpus"`
}

// HostPorts returns the host ports this service claims, skipping unset ones.
func (c ServiceConfig) HostPorts() []int {
	var ports []int
	if c.Port != 0 {
		ports = append(ports, c.Port)
	}
	if c.UIPort != 0 {
		ports = append(ports, c.UIPort)
	}
	return ports
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
	File   string `mapstructure:"file" yaml:"file,omitempty"`
}

// =============================================================================
// Config Loading
// =============================================================================

// LoadConfig loads configuration from defaults, an optional file, and environment.
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()

	// Set defaults
	v.SetDefault("platform.name", "datastack")
	v.SetDefault("platform.version", "2.0.0")
	v.SetDefault("platform.environment", "development")
	v.SetDefault("home", "")
	v.SetDefault("docker.host", "")
	v.SetDefault("compose.project_name", "datastack")
	v.SetDefault("compose.file", "")
	v.SetDefault("resources.memory_limit", "8G")
	v.SetDefault("resources.cpu_limit", 4.0)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("log.file", "")

	// Service defaults
	v.SetDefault("services.postgresql.enabled", true)
	v.SetDefault("services.postgresql.port", 5432)
	v.SetDefault("services.postgresql.memory", "2G")
	v.SetDefault("services.postgresql.cpus", 1.0)

	v.SetDefault("services.airflow.enabled", true)
	v.SetDefault("services.airflow.port", 8080)
	v.SetDefault("services.airflow.memory", "2G")
	v.SetDefault("services.airflow.cpus", 1.0)

	v.SetDefault("services.spark.enabled", true)
	v.SetDefault("services.spark.port", 7077)
	v.SetDefault("services.spark.ui_port", 8082)
	v.SetDefault("services.spark.memory", "4G")
	v.SetDefault("services.spark.cpus", 2.0)

	v.SetDefault("services.jupyter.enabled", true)
	v.SetDefault("services.jupyter.port", 8888)
	v.SetDefault("services.jupyter.memory", "2G")
	v.SetDefault("services.jupyter.cpus", 1.0)

	v.SetDefault("services.dbt.enabled", true)
	v.SetDefault("services.dbt.memory", "1G")
	v.SetDefault("services.dbt.cpus", 0.5)

	v.SetDefault("services.pgadmin.enabled", true)
	v.SetDefault("services.pgadmin.port", 8081)
	v.SetDefault("services.pgadmin.memory", "512M")
	v.SetDefault("services.pgadmin.cpus", 0.5)

	// Load from file if provided
	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			// Only return error if file was explicitly specified and is invalid
			if _, ok := err.(viper.ConfigParseError); ok {
				return nil, fmt.Errorf("failed to parse config file: %w", err)
			}
			// File not found is OK, we'll use defaults
		}
	}

	// Enable environment variable overrides
	v.SetEnvPrefix("DATASTACK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Unmarshal config
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Resolve the workspace root and compose file path
	if cfg.Home == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to resolve home directory: %w", err)
		}
		cfg.Home = filepath.Join(home, ".datastack")
	}
	if cfg.Compose.File == "" {
		cfg.Compose.File = filepath.Join(cfg.Home, "docker-compose.yaml")
	}

	return &cfg, nil
}

// =============================================================================
// Validation
// =============================================================================

// Validate checks the configuration shape: environment enum, memory limit
// strings, cpu allocations, and host port sanity. The platform resource
// budget is advisory and checked separately via CheckResourceBudget.
func (c *Config) Validate() error {
	if result := limits.ValidateEnvironment(c.Platform.Environment); !result.Ok() {
		return result.Error()
	}
	if result := limits.ValidateMemoryString(c.Resources.MemoryLimit); !result.Ok() {
		return result.Error()
	}

	names := make([]string, 0, len(c.Services))
	for name := range c.Services {
		names = append(names, name)
	}
	sort.Strings(names)

	enabledPorts := make(map[string][]int)
	for _, name := range names {
		svc := c.Services[name]
		if result := limits.ValidateMemoryString(svc.Memory); !result.Ok() {
			return fmt.Errorf("service %s: %w", name, result.Error())
		}
		if result := limits.ValidateCPUCores(svc.CPUs); !result.Ok() {
			return fmt.Errorf("service %s: %w", name, result.Error())
		}
		for _, port := range svc.HostPorts() {
			if result := limits.ValidatePort(port); !result.Ok() {
				return fmt.Errorf("service %s: %w", name, result.Error())
			}
		}
		if svc.Enabled {
			enabledPorts[name] = svc.HostPorts()
		}
	}

	if result := limits.ValidateUniquePorts(enabledPorts); !result.Ok() {
		return result.Error()
	}

	return nil
}

// CheckResourceBudget compares the combined allocations of enabled services
// against the platform budget. Exceeding the budget is allowed (the stock
// service set oversubscribes it), so callers surface the result as a warning.
func (c *Config) CheckResourceBudget() limits.ValidationResult {
	budgetMemory, err := limits.ParseMemoryMB(c.Resources.MemoryLimit)
	if err != nil {
		return limits.ValidationResult{Allowed: false, Reason: err.Error()}
	}

	services, err := c.ServiceResourceRequests()
	if err != nil {
		return limits.ValidationResult{Allowed: false, Reason: err.Error()}
	}

	budget := limits.Budget{CPUCores: c.Resources.CPULimit, MemoryMB: budgetMemory}
	return limits.ValidateResourceBudget(budget, services)
}

// ServiceResourceRequests returns the per-service allocations of enabled
// services, for budget and host capacity checks.
func (c *Config) ServiceResourceRequests() ([]limits.ServiceResources, error) {
	var services []limits.ServiceResources
	for _, name := range c.EnabledServices() {
		svc := c.Services[name]
		memoryMB, err := limits.ParseMemoryMB(svc.Memory)
		if err != nil {
			return nil, fmt.Errorf("service %s: %w", name, err)
		}
		services = append(services, limits.ServiceResources{
			Name:     name,
			CPUCores: svc.CPUs,
			MemoryMB: memoryMB,
		})
	}
	return services, nil
}

// EnabledServices returns the names of enabled services in sorted order.
func (c *Config) EnabledServices() []string {
	var names []string
	for name, svc := range c.Services {
		if svc.Enabled {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

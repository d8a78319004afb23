// Package limits provides resource and configuration limit validation.
// All functions are pure (no I/O).
package limits

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
)

// =============================================================================
// Types
// =============================================================================

// ValidationResult represents the outcome of a limit validation check.
type ValidationResult struct {
	// Allowed indicates whether the configuration is permitted within limits
	Allowed bool

	// Reason explains why the configuration was rejected (empty if Allowed is true)
	Reason string
}

// ServiceResources represents the compute resources one service requests.
type ServiceResources struct {
	Name     string
	CPUCores float64
	MemoryMB int64
}

// Budget represents the platform-wide resource budget services must fit in.
type Budget struct {
	CPUCores float64
	MemoryMB int64
}

// memoryPattern matches memory limit strings such as "512M", "2G", "256K".
var memoryPattern = regexp.MustCompile(`^([0-9]+)([GMK])$`)

// validEnvironments are the deployment environments the platform accepts.
var validEnvironments = []string{"development", "production", "custom"}

// =============================================================================
// Validation Functions
// =============================================================================

// ValidateEnvironment checks that the environment name is one of the
// accepted deployment environments.
func ValidateEnvironment(environment string) ValidationResult {
	for _, valid := range validEnvironments {
		if environment == valid {
			return ValidationResult{Allowed: true}
		}
	}
	return ValidationResult{
		Allowed: false,
		Reason:  fmt.Sprintf("environment '%s' must be one of %v", environment, validEnvironments),
	}
}

// ValidateMemoryString checks that a memory limit uses the <number><G|M|K> form.
func ValidateMemoryString(memory string) ValidationResult {
	if !memoryPattern.MatchString(memory) {
		return ValidationResult{
			Allowed: false,
			Reason:  fmt.Sprintf("memory limit '%s' must match <number><G|M|K>, e.g. 2G or 512M", memory),
		}
	}
	return ValidationResult{Allowed: true}
}

// ParseMemoryMB converts a memory limit string to megabytes.
// Kilobyte values round up to at least 1 MB.
func ParseMemoryMB(memory string) (int64, error) {
	m := memoryPattern.FindStringSubmatch(memory)
	if m == nil {
		return 0, fmt.Errorf("invalid memory limit %q", memory)
	}
	value, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid memory limit %q: %w", memory, err)
	}
	switch m[2] {
	case "G":
		return value * 1024, nil
	case "M":
		return value, nil
	default: // K
		return (value + 1023) / 1024, nil
	}
}

// ValidatePort checks that a host port is within the valid TCP range.
func ValidatePort(port int) ValidationResult {
	if port < 1 || port > 65535 {
		return ValidationResult{
			Allowed: false,
			Reason:  fmt.Sprintf("port %d out of range 1-65535", port),
		}
	}
	return ValidationResult{Allowed: true}
}

// ValidateCPUCores checks that a CPU allocation is positive.
func ValidateCPUCores(cores float64) ValidationResult {
	if cores <= 0 {
		return ValidationResult{
			Allowed: false,
			Reason:  fmt.Sprintf("cpu allocation %.2f must be greater than zero", cores),
		}
	}
	return ValidationResult{Allowed: true}
}

// ValidateUniquePorts checks that no two services claim the same host port.
func ValidateUniquePorts(servicePorts map[string][]int) ValidationResult {
	names := make([]string, 0, len(servicePorts))
	for name := range servicePorts {
		names = append(names, name)
	}
	sort.Strings(names)

	claimed := make(map[int]string)
	for _, name := range names {
		for _, port := range servicePorts[name] {
			if port == 0 {
				continue
			}
			if other, ok := claimed[port]; ok {
				return ValidationResult{
					Allowed: false,
					Reason:  fmt.Sprintf("port %d claimed by both '%s' and '%s'", port, other, name),
				}
			}
			claimed[port] = name
		}
	}
	return ValidationResult{Allowed: true}
}

// ValidateResourceBudget checks that the combined service allocations
// fit within the platform budget.
func ValidateResourceBudget(budget Budget, services []ServiceResources) ValidationResult {
	var totalCPU float64
	var totalMemory int64
	for _, svc := range services {
		totalCPU += svc.CPUCores
		totalMemory += svc.MemoryMB
	}

	if totalCPU > budget.CPUCores {
		return ValidationResult{
			Allowed: false,
			Reason:  fmt.Sprintf("CPU budget would be exceeded: %.1f/%.1f cores", totalCPU, budget.CPUCores),
		}
	}

	if totalMemory > budget.MemoryMB {
		return ValidationResult{
			Allowed: false,
			Reason:  fmt.Sprintf("memory budget would be exceeded: %d/%d MB", totalMemory, budget.MemoryMB),
		}
	}

	return ValidationResult{Allowed: true}
}

// =============================================================================
// Convenience Methods
// =============================================================================

// Ok returns true if the validation passed.
func (r ValidationResult) Ok() bool {
	return r.Allowed
}

// Error returns the reason as an error if validation failed, nil otherwise.
func (r ValidationResult) Error() error {
	if r.Allowed {
		return nil
	}
	return fmt.Errorf("invalid configuration: %s", r.Reason)
}

// Package workspace bootstraps the per-user platform directory: the
// directory tree, a default config file, generated credentials in .env,
// and the embedded compose asset. Ensure functions are idempotent and
// never overwrite user edits unless forced.
package workspace

import (
	"crypto/rand"
	_ "embed"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/artpar/datastack/internal/config"
)

const (
	// DefaultNetworkName is the Docker name of the platform network the
	// compose asset declares as external.
	DefaultNetworkName = "datastack_network"

	// DefaultNetworkSubnet is the address pool used when init creates the
	// platform network.
	DefaultNetworkSubnet = "172.28.0.0/16"
)

//go:embed assets/docker-compose.yaml
var composeAsset string

// =============================================================================
// Directory Tree
// =============================================================================

// Ensure creates the workspace directory tree.
func Ensure(paths Paths) error {
	for _, dir := range []string{paths.Home, paths.StateDir, paths.LogsDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create workspace directory %s: %w", dir, err)
		}
	}
	return nil
}

// writeFileOnce writes content to path unless the file already exists.
// force overwrites. Reports whether the file was written.
func writeFileOnce(path string, content []byte, perm os.FileMode, force bool) (bool, error) {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return false, nil
		} else if !errors.Is(err, fs.ErrNotExist) {
			return false, err
		}
	}
	if err := os.WriteFile(path, content, perm); err != nil {
		return false, err
	}
	return true, nil
}

// =============================================================================
// Compose Asset
// =============================================================================

// EnsureComposeFile writes the embedded compose definition when missing.
func EnsureComposeFile(paths Paths, force bool) (bool, error) {
	wrote, err := writeFileOnce(paths.ComposeFile, []byte(composeAsset), 0o644, force)
	if err != nil {
		return false, fmt.Errorf("write compose file: %w", err)
	}
	return wrote, nil
}

// =============================================================================
// Config File
// =============================================================================

// EnsureConfigFile writes cfg as the workspace config when missing. Home
// and the compose file path are derived at load time and left out of the
// written file.
func EnsureConfigFile(paths Paths, cfg *config.Config, force bool) (bool, error) {
	out := *cfg
	out.Home = ""
	out.Compose.File = ""

	data, err := yaml.Marshal(&out)
	if err != nil {
		return false, fmt.Errorf("marshal config: %w", err)
	}

	wrote, werr := writeFileOnce(paths.ConfigFile, data, 0o644, force)
	if werr != nil {
		return false, fmt.Errorf("write config file: %w", werr)
	}
	return wrote, nil
}

// =============================================================================
// Credentials
// =============================================================================

// GenerateSecrets produces fresh credentials for the services that need
// them. Every value is generated, never defaulted.
func GenerateSecrets() (map[string]string, error) {
	postgres, err := randomHex(16)
	if err != nil {
		return nil, err
	}
	airflow, err := randomHex(16)
	if err != nil {
		return nil, err
	}
	pgadmin, err := randomHex(12)
	if err != nil {
		return nil, err
	}

	return map[string]string{
		"POSTGRES_PASSWORD":  postgres,
		"AIRFLOW_SECRET_KEY": airflow,
		"PGADMIN_PASSWORD":   pgadmin,
		"JUPYTER_TOKEN":      uuid.New().String(),
	}, nil
}

func randomHex(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("read random bytes: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// EnsureEnvFile generates credentials into the .env file when missing.
// force regenerates, invalidating the previous credentials.
func EnsureEnvFile(paths Paths, force bool) (bool, error) {
	if !force {
		if _, err := os.Stat(paths.EnvFile); err == nil {
			return false, nil
		} else if !errors.Is(err, fs.ErrNotExist) {
			return false, fmt.Errorf("stat env file: %w", err)
		}
	}

	secrets, err := GenerateSecrets()
	if err != nil {
		return false, err
	}
	if err := godotenv.Write(secrets, paths.EnvFile); err != nil {
		return false, fmt.Errorf("write env file: %w", err)
	}
	if err := os.Chmod(paths.EnvFile, 0o600); err != nil {
		return false, fmt.Errorf("restrict env file permissions: %w", err)
	}
	return true, nil
}

// ReadEnvFile loads the stored credentials. A missing file yields an
// empty map so callers can merge unconditionally.
func ReadEnvFile(paths Paths) (map[string]string, error) {
	env, err := godotenv.Read(paths.EnvFile)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return map[string]string{}, nil
		}
		return nil, fmt.Errorf("read env file: %w", err)
	}
	return env, nil
}

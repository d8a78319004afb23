// Package e2e exercises the datastack workspace end to end: bootstrap,
// state transactions, journal recording, and (when a daemon is present)
// Docker provisioning.
package e2e

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/artpar/datastack/internal/config"
	"github.com/artpar/datastack/internal/core/state"
	"github.com/artpar/datastack/internal/shell/docker"
	"github.com/artpar/datastack/internal/shell/workspace"
)

// testPrefix identifies Docker resources created by this suite so stale
// runs can be cleaned up by name.
const testPrefix = "datastack-e2e-"

// newTestWorkspace bootstraps a full workspace under a temp home and
// returns its paths alongside the loaded config.
func newTestWorkspace(t *testing.T) (workspace.Paths, *config.Config) {
	t.Helper()

	home := t.TempDir()
	paths := workspace.DerivePaths(home)
	require.NoError(t, workspace.Ensure(paths))

	cfg, err := config.LoadConfig("")
	require.NoError(t, err)
	cfg.Home = home
	cfg.Compose.File = paths.ComposeFile
	require.NoError(t, cfg.Validate())

	return paths, cfg
}

// newTestStore opens the state store of a test workspace.
func newTestStore(t *testing.T, paths workspace.Paths) *state.Store {
	t.Helper()
	s, err := state.New(paths.StateDir, slog.New(slog.DiscardHandler))
	require.NoError(t, err)
	return s
}

// skipIfNoDocker returns a connected client or skips the test.
func skipIfNoDocker(t *testing.T) *docker.DockerClient {
	t.Helper()
	cli, err := docker.NewDockerClient("")
	if err != nil {
		t.Skip("Docker not available:", err)
	}
	if err := cli.Ping(); err != nil {
		cli.Close()
		t.Skip("Docker not reachable:", err)
	}
	return cli
}

func cleanupNetwork(t *testing.T, cli *docker.DockerClient, name string) {
	t.Helper()
	cli.RemoveNetwork(name)
}

func cleanupVolume(t *testing.T, cli *docker.DockerClient, name string) {
	t.Helper()
	cli.RemoveVolume(name, true)
}

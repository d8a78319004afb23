package e2e

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/artpar/datastack/internal/core/compose"
	"github.com/artpar/datastack/internal/core/stack"
	"github.com/artpar/datastack/internal/core/state"
	"github.com/artpar/datastack/internal/shell/journal"
	"github.com/artpar/datastack/internal/shell/workspace"
)

// =============================================================================
// Workspace Bootstrap
// =============================================================================

// TestE2E_WorkspaceBootstrap verifies init's file scaffolding: config,
// credentials, and the compose asset land on disk and survive a re-run.
func TestE2E_WorkspaceBootstrap(t *testing.T) {
	paths, cfg := newTestWorkspace(t)

	wroteConfig, err := workspace.EnsureConfigFile(paths, cfg, false)
	require.NoError(t, err)
	assert.True(t, wroteConfig)

	wroteEnv, err := workspace.EnsureEnvFile(paths, false)
	require.NoError(t, err)
	assert.True(t, wroteEnv)

	wroteCompose, err := workspace.EnsureComposeFile(paths, false)
	require.NoError(t, err)
	assert.True(t, wroteCompose)

	// Credentials are private to the user.
	info, err := os.Stat(paths.EnvFile)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	// A second init keeps every file.
	wroteConfig, err = workspace.EnsureConfigFile(paths, cfg, false)
	require.NoError(t, err)
	assert.False(t, wroteConfig)
	wroteEnv, err = workspace.EnsureEnvFile(paths, false)
	require.NoError(t, err)
	assert.False(t, wroteEnv)
	wroteCompose, err = workspace.EnsureComposeFile(paths, false)
	require.NoError(t, err)
	assert.False(t, wroteCompose)
}

// TestE2E_ComposeAssetParses proves the embedded compose definition is
// valid under the interpolation environment a real run would build.
func TestE2E_ComposeAssetParses(t *testing.T) {
	paths, cfg := newTestWorkspace(t)

	_, err := workspace.EnsureComposeFile(paths, false)
	require.NoError(t, err)
	_, err = workspace.EnsureEnvFile(paths, false)
	require.NoError(t, err)

	env := stack.ComposeEnvironment(cfg)
	secrets, err := workspace.ReadEnvFile(paths)
	require.NoError(t, err)
	for k, v := range secrets {
		env[k] = v
	}

	raw, err := os.ReadFile(paths.ComposeFile)
	require.NoError(t, err)

	spec, err := compose.ParseComposeSpec(string(raw), env)
	require.NoError(t, err)

	// Every enabled service in the default config must be defined.
	for _, name := range cfg.EnabledServices() {
		_, err := compose.FindService(spec, name)
		require.NoError(t, err, "service %s missing from compose asset", name)
	}

	// Nothing should interpolate to empty once secrets are merged.
	assert.Empty(t, compose.UnboundVariables(string(raw), env))

	// The platform network and per-service data volumes are declared.
	require.NotEmpty(t, spec.Networks)
	assert.Equal(t, workspace.DefaultNetworkName, spec.Networks[0].Name)
	assert.NotEmpty(t, spec.Volumes)
}

// =============================================================================
// State Lifecycle
// =============================================================================

// TestE2E_StateLifecycle walks the store through the init/start/stop
// sequence the CLI performs and checks what each step persisted.
func TestE2E_StateLifecycle(t *testing.T) {
	paths, cfg := newTestWorkspace(t)
	store := newTestStore(t, paths)
	ctx := context.Background()

	status, err := store.GetPlatformStatus()
	require.NoError(t, err)
	assert.Equal(t, state.StatusNotInitialized, status)

	// init
	require.NoError(t, store.Update(ctx, func(doc *state.Document) error {
		doc.Platform.Status = state.StatusInitialized
		doc.Platform.Environment = cfg.Platform.Environment
		doc.Platform.LastUpdated = time.Now().UTC()
		return nil
	}))

	status, err = store.GetPlatformStatus()
	require.NoError(t, err)
	assert.Equal(t, state.StatusInitialized, status)

	// start
	now := time.Now().UTC()
	require.NoError(t, store.Update(ctx, func(doc *state.Document) error {
		doc.Platform.Status = state.StatusRunning
		doc.Platform.LastUpdated = now
		for _, name := range cfg.EnabledServices() {
			doc.Services[name] = state.ServiceState{Status: state.StatusRunning, LastUpdated: now}
		}
		return nil
	}))

	pg, ok, err := store.GetServiceState("postgresql")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, state.StatusRunning, pg.Status)
	assert.False(t, pg.LastUpdated.IsZero())

	// a failing transaction rolls the running stack state back
	boom := errors.New("daemon went away")
	err = store.Update(ctx, func(doc *state.Document) error {
		doc.Platform.Status = state.StatusStopped
		for name := range doc.Services {
			delete(doc.Services, name)
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	doc, recovered, err := store.Read()
	require.NoError(t, err)
	assert.False(t, recovered)
	assert.Equal(t, state.StatusRunning, doc.Platform.Status)
	assert.Len(t, doc.Services, len(cfg.EnabledServices()))

	// stop
	require.NoError(t, store.Update(ctx, func(doc *state.Document) error {
		doc.Platform.Status = state.StatusStopped
		for name, st := range doc.Services {
			st.Status = state.StatusStopped
			doc.Services[name] = st
		}
		return nil
	}))

	status, err = store.GetPlatformStatus()
	require.NoError(t, err)
	assert.Equal(t, state.StatusStopped, status)

	// every transaction left a checkpoint behind
	ids, err := store.ListCheckpoints()
	require.NoError(t, err)
	assert.NotEmpty(t, ids)
}

// TestE2E_StateSurvivesReopen simulates separate CLI invocations sharing
// one workspace.
func TestE2E_StateSurvivesReopen(t *testing.T) {
	paths, _ := newTestWorkspace(t)
	ctx := context.Background()

	first := newTestStore(t, paths)
	require.NoError(t, first.SetPlatformStatus(ctx, state.StatusInitialized))
	require.NoError(t, first.UpdateServiceState(ctx, "jupyter", state.ServiceState{
		Status: state.StatusRunning,
		Image:  "jupyter/pyspark-notebook:latest",
	}))

	second := newTestStore(t, paths)
	status, err := second.GetPlatformStatus()
	require.NoError(t, err)
	assert.Equal(t, state.StatusInitialized, status)

	st, ok, err := second.GetServiceState("jupyter")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "jupyter/pyspark-notebook:latest", st.Image)
}

// =============================================================================
// Journal
// =============================================================================

// TestE2E_JournalRecordsOperations verifies command outcomes land in the
// history database newest first.
func TestE2E_JournalRecordsOperations(t *testing.T) {
	paths, _ := newTestWorkspace(t)

	j, err := journal.Open(paths.JournalFile, nil)
	require.NoError(t, err)
	defer j.Close()

	ctx := context.Background()
	require.NoError(t, j.Record(ctx, journal.Entry{Command: "init", Outcome: journal.OutcomeSuccess}))
	require.NoError(t, j.Record(ctx, journal.Entry{
		Command:   "start",
		Arguments: "postgresql",
		Outcome:   journal.OutcomeError,
		Detail:    "docker compose up: exit status 1",
	}))

	entries, err := j.List(ctx, journal.ListOptions{})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "start", entries[0].Command)
	assert.Equal(t, journal.OutcomeError, entries[0].Outcome)
	assert.Equal(t, "init", entries[1].Command)
	assert.NotEmpty(t, entries[0].ReferenceID)
	assert.False(t, entries[0].FinishedAt.IsZero())
}

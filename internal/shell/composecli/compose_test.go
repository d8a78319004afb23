package composecli

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeScript(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755))
	return path
}

func testRunner(bin []string, opts Options) *Runner {
	if opts.Stdout == nil {
		opts.Stdout = io.Discard
	}
	if opts.Stderr == nil {
		opts.Stderr = io.Discard
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	return newRunnerWithBinary(bin, opts)
}

// =============================================================================
// Binary Discovery Tests
// =============================================================================

func TestFindComposeBinary_PrefersPlugin(t *testing.T) {
	dir := t.TempDir()
	docker := writeScript(t, dir, "docker", "exit 0")
	writeScript(t, dir, "docker-compose", "exit 0")
	t.Setenv("PATH", dir)

	bin, err := findComposeBinary()
	require.NoError(t, err)
	assert.Equal(t, []string{docker, "compose"}, bin)
}

func TestFindComposeBinary_FallsBackToLegacy(t *testing.T) {
	dir := t.TempDir()
	writeScript(t, dir, "docker", "exit 1")
	legacy := writeScript(t, dir, "docker-compose", "exit 0")
	t.Setenv("PATH", dir)

	bin, err := findComposeBinary()
	require.NoError(t, err)
	assert.Equal(t, []string{legacy}, bin)
}

func TestFindComposeBinary_NotFound(t *testing.T) {
	t.Setenv("PATH", t.TempDir())

	_, err := findComposeBinary()
	assert.ErrorIs(t, err, ErrComposeNotFound)
}

// =============================================================================
// Argument Assembly Tests
// =============================================================================

func TestArgv(t *testing.T) {
	r := &Runner{
		bin:         []string{"/usr/bin/docker", "compose"},
		projectName: "datastack",
		composeFile: "/home/u/.datastack/docker-compose.yaml",
		projectDir:  "/home/u/.datastack",
	}

	argv := r.argv("up", "-d", "postgresql")
	assert.Equal(t, []string{
		"/usr/bin/docker", "compose",
		"-p", "datastack",
		"-f", "/home/u/.datastack/docker-compose.yaml",
		"--project-directory", "/home/u/.datastack",
		"up", "-d", "postgresql",
	}, argv)
}

func TestUpArgs(t *testing.T) {
	assert.Equal(t, []string{"up", "-d"}, upArgs(nil))
	assert.Equal(t, []string{"up", "-d", "postgresql", "airflow"}, upArgs([]string{"postgresql", "airflow"}))
}

func TestStopArgs(t *testing.T) {
	assert.Equal(t, []string{"stop"}, stopArgs(nil))
	assert.Equal(t, []string{"stop", "spark"}, stopArgs([]string{"spark"}))
}

func TestDownArgs(t *testing.T) {
	assert.Equal(t, []string{"down"}, downArgs(false))
	assert.Equal(t, []string{"down", "--volumes"}, downArgs(true))
}

func TestLogsArgs(t *testing.T) {
	assert.Equal(t, []string{"logs", "--tail", "100"}, logsArgs(nil, false, 100))
	assert.Equal(t, []string{"logs", "--follow"}, logsArgs(nil, true, 0))
	assert.Equal(t, []string{"logs", "--tail", "50", "--follow", "jupyter"}, logsArgs([]string{"jupyter"}, true, 50))
}

func TestNewRunnerWithBinary_Defaults(t *testing.T) {
	r := newRunnerWithBinary([]string{"docker", "compose"}, Options{
		ProjectName: "datastack",
		ComposeFile: "/tmp/ws/docker-compose.yaml",
	})

	assert.Equal(t, "/tmp/ws", r.projectDir)
	assert.Equal(t, os.Stdout, r.stdout)
	assert.Equal(t, os.Stderr, r.stderr)
	assert.NotNil(t, r.logger)
}

// =============================================================================
// Execution Tests
// =============================================================================

func TestRun_StreamsStdout(t *testing.T) {
	dir := t.TempDir()
	script := writeScript(t, dir, "compose-ok", `echo "invoked: $@"`)

	var out bytes.Buffer
	r := testRunner([]string{script}, Options{
		ProjectName: "datastack",
		ComposeFile: filepath.Join(dir, "docker-compose.yaml"),
		Stdout:      &out,
	})

	err := r.Up(context.Background(), []string{"postgresql"})
	require.NoError(t, err)

	assert.Contains(t, out.String(), "-p datastack")
	assert.Contains(t, out.String(), "up -d postgresql")
}

func TestRun_PassesInterpolationEnv(t *testing.T) {
	dir := t.TempDir()
	script := writeScript(t, dir, "compose-env", `echo "port=$POSTGRESQL_PORT"`)

	var out bytes.Buffer
	r := testRunner([]string{script}, Options{
		ProjectName: "datastack",
		ComposeFile: filepath.Join(dir, "docker-compose.yaml"),
		Env:         map[string]string{"POSTGRESQL_PORT": "15432"},
		Stdout:      &out,
	})

	err := r.Up(context.Background(), nil)
	require.NoError(t, err)
	assert.Contains(t, out.String(), "port=15432")
}

func TestRun_WrapsStderrInError(t *testing.T) {
	dir := t.TempDir()
	script := writeScript(t, dir, "compose-fail", `echo "no such service: mongodb" >&2
exit 1`)

	r := testRunner([]string{script}, Options{
		ProjectName: "datastack",
		ComposeFile: filepath.Join(dir, "docker-compose.yaml"),
	})

	err := r.Up(context.Background(), []string{"mongodb"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "docker compose up")
	assert.Contains(t, err.Error(), "no such service: mongodb")
}

func TestRun_ContextCancelKillsChild(t *testing.T) {
	dir := t.TempDir()
	script := writeScript(t, dir, "compose-slow", "sleep 5")

	r := testRunner([]string{script}, Options{
		ProjectName: "datastack",
		ComposeFile: filepath.Join(dir, "docker-compose.yaml"),
	})

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := r.Logs(ctx, nil, true, 0)
	require.Error(t, err)
	assert.Less(t, time.Since(start), 2*time.Second)
}

package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/artpar/datastack/internal/config"
	"github.com/artpar/datastack/internal/core/compose"
	"github.com/artpar/datastack/internal/core/stack"
	"github.com/artpar/datastack/internal/core/state"
	"github.com/artpar/datastack/internal/shell/composecli"
	"github.com/artpar/datastack/internal/shell/docker"
	"github.com/artpar/datastack/internal/shell/journal"
	"github.com/artpar/datastack/internal/shell/workspace"
	"github.com/artpar/datastack/internal/term"
)

// app carries the dependencies every command shares. Heavier handles
// (docker client, journal, state store) open per command.
type app struct {
	cfg     *config.Config
	paths   workspace.Paths
	logger  *slog.Logger
	printer *term.Printer
}

// newApp resolves the workspace, loads config, and builds the logger.
// Home resolution order: --home flag (or DATASTACK_HOME), then the home
// recorded in the config file, then ~/.datastack.
func newApp() (*app, error) {
	home := cli.Home
	if home == "" {
		userHome, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("resolve home directory: %w", err)
		}
		home = filepath.Join(userHome, ".datastack")
	}
	paths := workspace.DerivePaths(home)

	configPath := cli.Config
	if configPath == "" {
		configPath = paths.ConfigFile
	}

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, err
	}

	if cli.Home != "" {
		cfg.Home = home
		cfg.Compose.File = paths.ComposeFile
	} else if cfg.Home != home {
		// The config file points the workspace elsewhere.
		home = cfg.Home
		paths = workspace.DerivePaths(home)
	}

	if cli.LogLevel != "" {
		cfg.Log.Level = cli.LogLevel
	}
	if cli.LogFormat != "" {
		cfg.Log.Format = cli.LogFormat
	}
	if cli.Debug {
		cfg.Log.Level = "debug"
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger, err := config.SetupLogger(cfg)
	if err != nil {
		return nil, err
	}
	slog.SetDefault(logger)

	return &app{
		cfg:     cfg,
		paths:   paths,
		logger:  logger,
		printer: term.NewPrinter(os.Stdout),
	}, nil
}

// signalContext cancels on Ctrl-C or SIGTERM so compose subprocesses and
// image pulls shut down cleanly.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// =============================================================================
// Shared Dependencies
// =============================================================================

func (a *app) openStore() (*state.Store, error) {
	return state.New(a.paths.StateDir, a.logger)
}

// dockerClient connects to the daemon and verifies it is reachable.
func (a *app) dockerClient() (*docker.DockerClient, error) {
	client, err := docker.NewDockerClient(a.cfg.Docker.Host)
	if err != nil {
		return nil, err
	}
	if err := client.Ping(); err != nil {
		client.Close()
		return nil, err
	}
	return client, nil
}

// composeRunner builds the compose invoker with the interpolation env.
func (a *app) composeRunner(env map[string]string) (*composecli.Runner, error) {
	return composecli.NewRunner(composecli.Options{
		ProjectName: a.cfg.Compose.ProjectName,
		ComposeFile: a.cfg.Compose.File,
		ProjectDir:  a.cfg.Home,
		Env:         env,
		Logger:      a.logger,
	})
}

// composeEnvironment merges stored credentials over the config-derived
// interpolation variables.
func (a *app) composeEnvironment() (map[string]string, error) {
	env := stack.ComposeEnvironment(a.cfg)
	secrets, err := workspace.ReadEnvFile(a.paths)
	if err != nil {
		return nil, err
	}
	for key, val := range secrets {
		env[key] = val
	}
	return env, nil
}

// parseComposeFile loads the workspace compose file with the full
// interpolation environment and warns about variables that would
// interpolate to empty strings.
func (a *app) parseComposeFile() (*compose.ParsedSpec, map[string]string, error) {
	env, err := a.composeEnvironment()
	if err != nil {
		return nil, nil, err
	}

	raw, err := os.ReadFile(a.cfg.Compose.File)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil, fmt.Errorf("compose file %s not found (run 'datastack init' first)", a.cfg.Compose.File)
		}
		return nil, nil, fmt.Errorf("read compose file: %w", err)
	}

	spec, err := compose.ParseComposeSpec(string(raw), env)
	if err != nil {
		return nil, nil, err
	}

	if unbound := compose.UnboundVariables(string(raw), env); len(unbound) > 0 {
		a.printer.Warnf("Variables without a value or default: %s", strings.Join(unbound, ", "))
	}
	return spec, env, nil
}

// pullServiceImages pulls the images of the named services, or of every
// service when names is empty.
func (a *app) pullServiceImages(ctx context.Context, client *docker.DockerClient, spec *compose.ParsedSpec, names []string) error {
	want := make(map[string]bool, len(names))
	for _, name := range names {
		want[name] = true
	}

	seen := make(map[string]bool)
	var images []string
	for _, svc := range spec.Services {
		if len(want) > 0 && !want[svc.Name] {
			continue
		}
		if svc.Image == "" || seen[svc.Image] {
			continue
		}
		seen[svc.Image] = true
		images = append(images, svc.Image)
	}
	if len(images) == 0 {
		return nil
	}

	a.printer.Printf("Pulling %d images", len(images))
	return docker.PullImages(ctx, client, a.logger, images, docker.DefaultPullConcurrency)
}

// =============================================================================
// Journal Recording
// =============================================================================

// finish records the command outcome in the journal. Failures are logged
// and swallowed; history never breaks the command it records.
func (a *app) finish(started time.Time, command, arguments string, err error) {
	outcome := journal.OutcomeSuccess
	detail := ""
	if err != nil {
		outcome = journal.OutcomeError
		detail = err.Error()
	}

	j, openErr := journal.Open(a.paths.JournalFile, a.logger)
	if openErr != nil {
		a.logger.Warn("journal unavailable", "error", openErr)
		return
	}
	defer j.Close()

	entry := journal.Entry{
		Command:    command,
		Arguments:  arguments,
		Outcome:    outcome,
		Detail:     detail,
		StartedAt:  started,
		FinishedAt: time.Now(),
	}
	if recordErr := j.Record(context.Background(), entry); recordErr != nil {
		a.logger.Warn("journal record failed", "command", command, "error", recordErr)
	}
}

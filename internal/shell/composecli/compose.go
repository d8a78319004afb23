// Package composecli shells out to docker compose for container lifecycle.
// Provisioning and observation go through the Docker SDK; creating, stopping
// and removing the stack's containers is delegated to compose so that what
// this tool starts stays manageable with plain compose commands.
package composecli

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"syscall"
	"time"
)

// ErrComposeNotFound indicates neither the docker compose plugin nor the
// legacy docker-compose binary is installed.
var ErrComposeNotFound = errors.New("docker compose not found")

// Options configure a Runner.
type Options struct {
	ProjectName string
	ComposeFile string
	ProjectDir  string            // directory holding .env; defaults to the compose file's directory
	Env         map[string]string // extra interpolation variables for the child process
	Stdout      io.Writer         // defaults to os.Stdout
	Stderr      io.Writer         // defaults to os.Stderr
	Logger      *slog.Logger
}

// Runner invokes docker compose against a single project and compose file.
type Runner struct {
	bin         []string // {"docker", "compose"} or {"docker-compose"}
	projectName string
	composeFile string
	projectDir  string
	env         map[string]string
	stdout      io.Writer
	stderr      io.Writer
	logger      *slog.Logger
}

// NewRunner locates the compose binary and builds a runner.
func NewRunner(opts Options) (*Runner, error) {
	bin, err := findComposeBinary()
	if err != nil {
		return nil, err
	}
	return newRunnerWithBinary(bin, opts), nil
}

func newRunnerWithBinary(bin []string, opts Options) *Runner {
	projectDir := opts.ProjectDir
	if projectDir == "" && opts.ComposeFile != "" {
		projectDir = filepath.Dir(opts.ComposeFile)
	}

	stdout := opts.Stdout
	if stdout == nil {
		stdout = os.Stdout
	}
	stderr := opts.Stderr
	if stderr == nil {
		stderr = os.Stderr
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Runner{
		bin:         bin,
		projectName: opts.ProjectName,
		composeFile: opts.ComposeFile,
		projectDir:  projectDir,
		env:         opts.Env,
		stdout:      stdout,
		stderr:      stderr,
		logger:      logger.With("component", "compose"),
	}
}

// findComposeBinary prefers the compose v2 plugin over the legacy binary.
func findComposeBinary() ([]string, error) {
	if path, err := exec.LookPath("docker"); err == nil {
		probe := exec.Command(path, "compose", "version")
		probe.Stdout = io.Discard
		probe.Stderr = io.Discard
		if probe.Run() == nil {
			return []string{path, "compose"}, nil
		}
	}

	if path, err := exec.LookPath("docker-compose"); err == nil {
		return []string{path}, nil
	}

	return nil, ErrComposeNotFound
}

// =============================================================================
// Commands
// =============================================================================

// Up creates and starts services in detached mode.
func (r *Runner) Up(ctx context.Context, services []string) error {
	return r.run(ctx, r.stdout, upArgs(services)...)
}

// Stop stops services without removing their containers.
func (r *Runner) Stop(ctx context.Context, services []string) error {
	return r.run(ctx, r.stdout, stopArgs(services)...)
}

// Down stops and removes the project's containers and its default network.
// With removeVolumes it also removes named volumes declared in the compose
// file (externally created volumes are untouched).
func (r *Runner) Down(ctx context.Context, removeVolumes bool) error {
	return r.run(ctx, r.stdout, downArgs(removeVolumes)...)
}

// Logs streams service logs to stdout.
func (r *Runner) Logs(ctx context.Context, services []string, follow bool, tail int) error {
	return r.run(ctx, r.stdout, logsArgs(services, follow, tail)...)
}

func upArgs(services []string) []string {
	return append([]string{"up", "-d"}, services...)
}

func stopArgs(services []string) []string {
	return append([]string{"stop"}, services...)
}

func downArgs(removeVolumes bool) []string {
	args := []string{"down"}
	if removeVolumes {
		args = append(args, "--volumes")
	}
	return args
}

func logsArgs(services []string, follow bool, tail int) []string {
	args := []string{"logs"}
	if tail > 0 {
		args = append(args, "--tail", strconv.Itoa(tail))
	}
	if follow {
		args = append(args, "--follow")
	}
	return append(args, services...)
}

// =============================================================================
// Execution
// =============================================================================

// argv assembles the full command line for a compose subcommand.
func (r *Runner) argv(sub ...string) []string {
	argv := append([]string{}, r.bin...)
	argv = append(argv, "-p", r.projectName, "-f", r.composeFile)
	if r.projectDir != "" {
		argv = append(argv, "--project-directory", r.projectDir)
	}
	return append(argv, sub...)
}

func (r *Runner) run(ctx context.Context, stdout io.Writer, sub ...string) error {
	argv := r.argv(sub...)
	r.logger.Debug("running compose command", "command", strings.Join(argv, " "))

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = r.projectDir
	cmd.Env = r.childEnv()
	cmd.Stdout = stdout

	// compose spawns its own children, which inherit our output pipes.
	// Run the tree as one process group and kill the group on cancel,
	// otherwise Run blocks until every descendant lets go of the pipes.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		err := syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
		if errors.Is(err, syscall.ESRCH) {
			return os.ErrProcessDone
		}
		return err
	}
	cmd.WaitDelay = time.Second

	// Stream progress live and keep a copy for error context
	var stderr bytes.Buffer
	cmd.Stderr = io.MultiWriter(r.stderr, &stderr)

	if err := cmd.Run(); err != nil {
		if output := strings.TrimSpace(stderr.String()); output != "" {
			return fmt.Errorf("docker compose %s: %w: %s", sub[0], err, output)
		}
		return fmt.Errorf("docker compose %s: %w", sub[0], err)
	}
	return nil
}

// childEnv extends the process environment with the interpolation variables,
// in sorted order so invocations are reproducible.
func (r *Runner) childEnv() []string {
	env := os.Environ()

	keys := make([]string, 0, len(r.env))
	for k := range r.env {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		env = append(env, k+"="+r.env[k])
	}
	return env
}

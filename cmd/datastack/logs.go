package main

import (
	"github.com/artpar/datastack/internal/core/compose"
)

// LogsCmd streams docker compose logs to stdout.
type LogsCmd struct {
	Services []string `arg:"" optional:"" help:"Services to show (default: all)"`
	Follow   bool     `short:"f" help:"Follow log output"`
	Tail     int      `help:"Number of trailing lines per service" default:"100"`
}

func (c *LogsCmd) Run(a *app) error {
	ctx, cancel := signalContext()
	defer cancel()

	spec, env, err := a.parseComposeFile()
	if err != nil {
		return err
	}
	for _, name := range c.Services {
		if _, err := compose.FindService(spec, name); err != nil {
			return err
		}
	}

	runner, err := a.composeRunner(env)
	if err != nil {
		return err
	}
	if err := runner.Logs(ctx, c.Services, c.Follow, c.Tail); err != nil {
		// Ctrl-C ends a follow, it is not an error.
		if ctx.Err() != nil {
			return nil
		}
		return err
	}
	return nil
}

// Package main provides the datastack binary that operates a local
// data-engineering stack on Docker.
//
// Usage:
//
//	datastack <command> [flags]
//
// Commands:
//
//	init     - Prepare the workspace and provision Docker resources
//	start    - Start the stack or selected services
//	stop     - Stop the stack or selected services
//	status   - Show platform and service status
//	logs     - Stream service logs
//	state    - Inspect or restore the platform state document
//	history  - Show recorded operations
package main

import (
	"fmt"
	"os"

	"github.com/alecthomas/kong"
	"github.com/fatih/color"
)

// Version information (set by build flags)
var (
	Version   = "2.0.0"
	BuildTime = "unknown"
)

// cli is the root command tree. Global flags apply to every subcommand.
var cli struct {
	Config    string           `short:"c" help:"Config file path (default: <home>/config.yaml)" type:"path"`
	Home      string           `help:"Workspace directory (default: ~/.datastack)" env:"DATASTACK_HOME" type:"path"`
	Debug     bool             `help:"Force debug logging"`
	LogLevel  string           `help:"Log level: debug, info, warn, or error"`
	LogFormat string           `help:"Log format: text or json"`
	Version   kong.VersionFlag `help:"Show version and exit"`

	Init    InitCmd    `cmd:"" help:"Prepare the workspace and provision Docker resources"`
	Start   StartCmd   `cmd:"" help:"Start the stack or selected services"`
	Stop    StopCmd    `cmd:"" help:"Stop the stack or selected services"`
	Status  StatusCmd  `cmd:"" help:"Show platform and service status"`
	Logs    LogsCmd    `cmd:"" help:"Stream service logs"`
	State   StateCmd   `cmd:"" help:"Inspect or restore the platform state document"`
	History HistoryCmd `cmd:"" help:"Show recorded operations"`
}

func main() {
	ctx := kong.Parse(&cli,
		kong.Name("datastack"),
		kong.Description("Operate a local data-engineering stack (PostgreSQL, Airflow, Spark, Jupyter, dbt, pgAdmin) on Docker Compose."),
		kong.UsageOnError(),
		kong.Vars{"version": fmt.Sprintf("datastack %s (built %s)", Version, BuildTime)},
	)

	a, err := newApp()
	if err == nil {
		err = ctx.Run(a)
	}
	if err != nil {
		if a != nil && cli.Debug {
			a.logger.Error("command failed", "command", ctx.Command(), "error", err)
		}
		color.Red("Error: %v", err)
		os.Exit(1)
	}
}

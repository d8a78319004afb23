package main

import (
	"strings"

	"github.com/artpar/datastack/internal/core/compose"
	"github.com/artpar/datastack/internal/core/stack"
	"github.com/artpar/datastack/internal/shell/docker"
	"github.com/artpar/datastack/internal/term"
)

// StatusCmd renders the platform status view. It degrades gracefully: a
// missing compose file or unreachable daemon narrows the view instead of
// failing the command.
type StatusCmd struct {
	JSON bool `help:"Emit machine-readable JSON"`
}

func (c *StatusCmd) Run(a *app) error {
	store, err := a.openStore()
	if err != nil {
		return err
	}
	doc, recovered, err := store.Read()
	if err != nil {
		return err
	}
	if recovered {
		a.printer.Warnf("State document was missing or corrupt; reinitialized to defaults")
	}

	spec := &compose.ParsedSpec{}
	if parsed, _, parseErr := a.parseComposeFile(); parseErr == nil {
		spec = parsed
	} else {
		a.logger.Debug("compose file unavailable for status", "error", parseErr)
	}

	var observed []stack.ContainerObservation
	client, err := a.dockerClient()
	if err != nil {
		a.printer.Warnf("Docker daemon unreachable; live container state unavailable")
	} else {
		defer client.Close()
		containers, listErr := client.ProjectContainers(a.cfg.Compose.ProjectName)
		if listErr != nil {
			return listErr
		}
		observed = docker.Observations(containers)
	}

	view := stack.BuildStatus(a.cfg, doc, spec, observed)

	if c.JSON {
		return a.printer.JSON(view)
	}
	renderStatus(a.printer, view)
	return nil
}

// renderStatus writes the human-readable status view.
func renderStatus(p *term.Printer, view stack.StackStatus) {
	p.Headerf("%s (%s)", view.Platform.Name, view.Platform.Environment)
	p.Printf("Status: %s   Health: %s   Updated: %s",
		view.Platform.Status, view.Platform.Health, term.FormatTime(view.Platform.LastUpdated))
	p.Printf("")
	p.Table([]string{"SERVICE", "STATE", "HEALTH", "PORTS", "CONTAINER", "UPDATED"}, statusRows(view.Services))
}

// statusRows flattens service statuses for the table renderer.
func statusRows(services []stack.ServiceStatus) [][]string {
	rows := make([][]string, 0, len(services))
	for _, svc := range services {
		ports := strings.Join(svc.Ports, ", ")
		if ports == "" {
			ports = "-"
		}
		container := svc.ContainerID
		if container == "" {
			container = "-"
		}
		rows = append(rows, []string{
			svc.Name,
			svc.State,
			string(svc.Health),
			term.Truncate(ports, 40),
			container,
			term.FormatTime(svc.LastUpdated),
		})
	}
	return rows
}

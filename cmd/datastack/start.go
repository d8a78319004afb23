package main

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/artpar/datastack/internal/core/compose"
	"github.com/artpar/datastack/internal/core/stack"
	"github.com/artpar/datastack/internal/core/state"
	"github.com/artpar/datastack/internal/shell/docker"
)

// StartCmd brings services up with docker compose.
type StartCmd struct {
	Services []string `arg:"" optional:"" help:"Services to start (default: all enabled)"`
	Pull     bool     `help:"Pull images before starting"`
}

func (c *StartCmd) Run(a *app) error {
	started := time.Now()
	err := c.run(a)
	a.finish(started, "start", c.arguments(), err)
	return err
}

func (c *StartCmd) arguments() string {
	args := append([]string{}, c.Services...)
	if c.Pull {
		args = append(args, "--pull")
	}
	return strings.Join(args, " ")
}

func (c *StartCmd) run(a *app) error {
	ctx, cancel := signalContext()
	defer cancel()

	spec, env, err := a.parseComposeFile()
	if err != nil {
		return err
	}

	services, err := stack.SelectServices(a.cfg, spec, c.Services)
	if err != nil {
		return err
	}
	if len(services) == 0 {
		return errors.New("no services enabled; enable services in config.yaml or name them explicitly")
	}

	client, err := a.dockerClient()
	if err != nil {
		return err
	}
	defer client.Close()

	containers, err := client.ProjectContainers(a.cfg.Compose.ProjectName)
	if err != nil {
		return err
	}
	running := make(map[string]bool)
	for _, obs := range docker.Observations(containers) {
		if obs.State == "running" {
			running[obs.Service] = true
		}
	}

	if err := checkPortsFree(spec, services, running); err != nil {
		return err
	}

	if result := a.cfg.CheckResourceBudget(); !result.Ok() {
		a.printer.Warnf("Configured services exceed the resource budget: %s", result.Reason)
	}

	if c.Pull {
		if err := a.pullServiceImages(ctx, client, spec, services); err != nil {
			return err
		}
	}

	runner, err := a.composeRunner(env)
	if err != nil {
		return err
	}
	a.printer.Printf("Starting services: %s", strings.Join(services, ", "))
	if err := runner.Up(ctx, services); err != nil {
		return err
	}

	// Observe what actually came up before persisting.
	containers, err = client.ProjectContainers(a.cfg.Compose.ProjectName)
	if err != nil {
		return err
	}
	byService := make(map[string]stack.ContainerObservation)
	for _, obs := range docker.Observations(containers) {
		byService[obs.Service] = obs
	}

	store, err := a.openStore()
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	err = store.Update(ctx, func(doc *state.Document) error {
		doc.Platform.Status = state.StatusRunning
		doc.Platform.Environment = a.cfg.Platform.Environment
		doc.Platform.LastUpdated = now

		for _, name := range services {
			st := state.ServiceState{Status: state.StatusRunning, LastUpdated: now}
			if svc, findErr := compose.FindService(spec, name); findErr == nil {
				st.Image = svc.Image
			}
			if obs, ok := byService[name]; ok {
				st.Status = stack.StateFromContainer(obs.State)
				st.ContainerID = stack.ShortID(obs.ID)
				st.Ports = obs.Ports
				st.Health = obs.Health
				if obs.Image != "" {
					st.Image = obs.Image
				}
			}
			doc.Services[name] = st
		}
		return nil
	})
	if err != nil {
		return err
	}

	a.printer.Successf("Started %d services", len(services))
	a.printer.Printf("Run 'datastack status' to check health")
	return nil
}

// checkPortsFree probes the published host ports of the services about to
// start. Services already running own their ports and are skipped.
func checkPortsFree(spec *compose.ParsedSpec, services []string, running map[string]bool) error {
	var conflicts []string
	for _, name := range services {
		if running[name] {
			continue
		}
		svc, err := compose.FindService(spec, name)
		if err != nil {
			continue
		}
		for _, port := range svc.Ports {
			if port.Published == 0 {
				continue
			}
			if port.Protocol != "" && port.Protocol != "tcp" {
				continue
			}
			addr := net.JoinHostPort(port.HostIP, strconv.Itoa(int(port.Published)))
			ln, err := net.Listen("tcp", addr)
			if err != nil {
				conflicts = append(conflicts, fmt.Sprintf("%d (%s)", port.Published, name))
				continue
			}
			ln.Close()
		}
	}
	if len(conflicts) > 0 {
		return fmt.Errorf("host ports already in use: %s", strings.Join(conflicts, ", "))
	}
	return nil
}

package main

import (
	"errors"
	"strings"
	"time"

	"github.com/artpar/datastack/internal/core/compose"
	"github.com/artpar/datastack/internal/core/stack"
	"github.com/artpar/datastack/internal/core/state"
	"github.com/artpar/datastack/internal/shell/docker"
	"github.com/artpar/datastack/internal/term"
)

// StopCmd stops services, optionally removing containers and the
// provisioned resources.
type StopCmd struct {
	Services []string `arg:"" optional:"" help:"Services to stop (default: all)"`
	Down     bool     `help:"Remove containers instead of just stopping them"`
	Volumes  bool     `help:"With --down, also remove compose-declared volumes"`
	Destroy  bool     `help:"Remove containers plus the provisioned network and data volumes"`
}

func (c *StopCmd) Run(a *app) error {
	started := time.Now()
	err := c.run(a)
	a.finish(started, "stop", c.arguments(), err)
	return err
}

func (c *StopCmd) arguments() string {
	args := append([]string{}, c.Services...)
	if c.Down {
		args = append(args, "--down")
	}
	if c.Volumes {
		args = append(args, "--volumes")
	}
	if c.Destroy {
		args = append(args, "--destroy")
	}
	return strings.Join(args, " ")
}

func (c *StopCmd) run(a *app) error {
	ctx, cancel := signalContext()
	defer cancel()

	if (c.Down || c.Destroy) && len(c.Services) > 0 {
		return errors.New("--down and --destroy apply to the whole stack, not named services")
	}
	if c.Volumes && !c.Down && !c.Destroy {
		return errors.New("--volumes requires --down")
	}

	spec, env, err := a.parseComposeFile()
	if err != nil {
		return err
	}
	if len(c.Services) > 0 {
		if _, err := stack.SelectServices(a.cfg, spec, c.Services); err != nil {
			return err
		}
	}

	runner, err := a.composeRunner(env)
	if err != nil {
		return err
	}

	if c.Down || c.Destroy {
		a.printer.Printf("Removing stack containers")
		if err := runner.Down(ctx, c.Volumes); err != nil {
			return err
		}
	} else {
		if len(c.Services) > 0 {
			a.printer.Printf("Stopping services: %s", strings.Join(c.Services, ", "))
		} else {
			a.printer.Printf("Stopping all services")
		}
		if err := runner.Stop(ctx, c.Services); err != nil {
			return err
		}
	}

	if c.Destroy {
		client, err := a.dockerClient()
		if err != nil {
			return err
		}
		err = destroyResources(a.printer, client, spec)
		client.Close()
		if err != nil {
			return err
		}
	}

	store, err := a.openStore()
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	fullStop := len(c.Services) == 0
	err = store.Update(ctx, func(doc *state.Document) error {
		if fullStop {
			for name, st := range doc.Services {
				markStopped(&st, now)
				doc.Services[name] = st
			}
			doc.Platform.Status = state.StatusStopped
			doc.Platform.LastUpdated = now
			return nil
		}
		for _, name := range c.Services {
			st := doc.Services[name]
			markStopped(&st, now)
			doc.Services[name] = st
		}
		return nil
	})
	if err != nil {
		return err
	}

	switch {
	case c.Destroy:
		a.printer.Successf("Stack destroyed")
	case c.Down:
		a.printer.Successf("Stack removed")
	case fullStop:
		a.printer.Successf("Stack stopped")
	default:
		a.printer.Successf("Stopped %d services", len(c.Services))
	}
	return nil
}

func markStopped(st *state.ServiceState, now time.Time) {
	st.Status = state.StatusStopped
	st.ContainerID = ""
	st.Health = ""
	st.LastUpdated = now
}

// resourceRemover is the slice of the docker client destroy needs.
type resourceRemover interface {
	RemoveVolume(name string, force bool) error
	RemoveNetwork(name string) error
}

// destroyResources removes the external network and data volumes that init
// provisioned. Resources already gone are skipped silently.
func destroyResources(p *term.Printer, client resourceRemover, spec *compose.ParsedSpec) error {
	for _, volume := range spec.Volumes {
		err := client.RemoveVolume(volume.Name, true)
		if errors.Is(err, docker.ErrVolumeNotFound) {
			continue
		}
		if err != nil {
			return err
		}
		p.Printf("Volume %s removed", volume.Name)
	}
	for _, network := range spec.Networks {
		err := client.RemoveNetwork(network.Name)
		if errors.Is(err, docker.ErrNetworkNotFound) {
			continue
		}
		if err != nil {
			return err
		}
		p.Printf("Network %s removed", network.Name)
	}

	p.Warnf("Provisioned network and data volumes removed; data is gone")
	return nil
}

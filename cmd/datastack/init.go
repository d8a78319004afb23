package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/artpar/datastack/internal/core/compose"
	"github.com/artpar/datastack/internal/core/state"
	"github.com/artpar/datastack/internal/shell/docker"
	"github.com/artpar/datastack/internal/shell/workspace"
)

// InitCmd prepares the workspace and provisions shared Docker resources.
type InitCmd struct {
	Force bool `help:"Overwrite the config file, compose file, and credentials"`
	Pull  bool `help:"Pull all service images after provisioning"`
}

func (c *InitCmd) Run(a *app) error {
	started := time.Now()
	err := c.run(a)
	a.finish(started, "init", c.arguments(), err)
	return err
}

func (c *InitCmd) arguments() string {
	var args []string
	if c.Force {
		args = append(args, "--force")
	}
	if c.Pull {
		args = append(args, "--pull")
	}
	return strings.Join(args, " ")
}

func (c *InitCmd) run(a *app) error {
	ctx, cancel := signalContext()
	defer cancel()

	if err := workspace.Ensure(a.paths); err != nil {
		return err
	}

	wroteConfig, err := workspace.EnsureConfigFile(a.paths, a.cfg, c.Force)
	if err != nil {
		return err
	}
	reportFile(a, "Config file", a.paths.ConfigFile, wroteConfig)

	wroteEnv, err := workspace.EnsureEnvFile(a.paths, c.Force)
	if err != nil {
		return err
	}
	if wroteEnv {
		a.printer.Successf("Generated credentials in %s", a.paths.EnvFile)
	} else {
		a.printer.Printf("Credentials kept at %s", a.paths.EnvFile)
	}

	wroteCompose, err := workspace.EnsureComposeFile(a.paths, c.Force)
	if err != nil {
		return err
	}
	reportFile(a, "Compose file", a.paths.ComposeFile, wroteCompose)

	client, err := a.dockerClient()
	if err != nil {
		return err
	}
	defer client.Close()

	info, err := client.Info()
	if err != nil {
		return err
	}
	a.logger.Info("docker daemon reachable",
		"version", info.ServerVersion,
		"os", info.OperatingSystem,
		"cpus", info.NCPU,
		"memory_mb", info.MemTotalMB,
	)

	spec, _, err := a.parseComposeFile()
	if err != nil {
		return err
	}

	if warning, exceeded := hostCapacityWarning(info, compose.CalculateResources(spec)); exceeded {
		a.printer.Warnf("%s", warning)
	}

	labels := map[string]string{
		docker.LabelManaged:     "true",
		docker.LabelEnvironment: a.cfg.Platform.Environment,
	}

	for _, network := range spec.Networks {
		netSpec := docker.NetworkSpec{
			Name:   network.Name,
			Driver: network.Driver,
			Labels: labels,
		}
		if network.Name == workspace.DefaultNetworkName {
			netSpec.Subnet = workspace.DefaultNetworkSubnet
		}
		if _, err := client.EnsureNetwork(netSpec); err != nil {
			return err
		}
		a.printer.Printf("Network %s ready", network.Name)
	}

	for _, volume := range spec.Volumes {
		volSpec := docker.VolumeSpec{
			Name:   volume.Name,
			Driver: volume.Driver,
			Labels: labels,
		}
		if _, err := client.EnsureVolume(volSpec); err != nil {
			return err
		}
		a.printer.Printf("Volume %s ready", volume.Name)
	}

	if c.Pull {
		if err := a.pullServiceImages(ctx, client, spec, nil); err != nil {
			return err
		}
	}

	store, err := a.openStore()
	if err != nil {
		return err
	}
	err = store.Update(ctx, func(doc *state.Document) error {
		// Re-running init never demotes a running platform.
		if doc.Platform.Status != state.StatusRunning {
			doc.Platform.Status = state.StatusInitialized
		}
		doc.Platform.Environment = a.cfg.Platform.Environment
		doc.Platform.LastUpdated = time.Now().UTC()
		return nil
	})
	if err != nil {
		return err
	}

	a.printer.Successf("Workspace initialized at %s", a.cfg.Home)
	a.printer.Printf("Run 'datastack start' to bring the stack up")
	return nil
}

// hostCapacityWarning compares the compose spec's resource totals against
// what the daemon's host offers. Oversubscription is allowed; the result
// is surfaced as a warning only.
func hostCapacityWarning(info *docker.SystemInfo, totals compose.TotalResources) (string, bool) {
	if totals.CPUCores > float64(info.NCPU) {
		return fmt.Sprintf("Stack may exceed host capacity: %.1f CPU cores required, host has %d", totals.CPUCores, info.NCPU), true
	}
	if totals.MemoryMB > info.MemTotalMB {
		return fmt.Sprintf("Stack may exceed host capacity: %d MB memory required, host has %d MB", totals.MemoryMB, info.MemTotalMB), true
	}
	return "", false
}

func reportFile(a *app, label, path string, wrote bool) {
	if wrote {
		a.printer.Successf("%s written to %s", label, path)
	} else {
		a.printer.Printf("%s kept at %s", label, path)
	}
}

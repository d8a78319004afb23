package docker

import (
	"fmt"
	"sort"

	"github.com/artpar/datastack/internal/core/stack"
)

// Observations converts inspected containers into the service-keyed
// observations the status view consumes. Containers without a compose
// service label are skipped.
func Observations(containers []ContainerInfo) []stack.ContainerObservation {
	obs := make([]stack.ContainerObservation, 0, len(containers))
	for i := range containers {
		c := &containers[i]
		service := c.Labels[LabelComposeService]
		if service == "" {
			continue
		}
		obs = append(obs, stack.ContainerObservation{
			Service:  service,
			ID:       c.ID,
			Name:     c.Name,
			Image:    c.Image,
			State:    c.State,
			Health:   c.Health,
			Restarts: c.RestartCount,
			Ports:    FormatPorts(c.Ports),
		})
	}
	sort.Slice(obs, func(i, j int) bool { return obs[i].Service < obs[j].Service })
	return obs
}

// FormatPorts renders port bindings docker-ps style, deduplicated and sorted.
// Published ports render as "hostIP:host->container/proto", unpublished ones
// as "container/proto".
func FormatPorts(ports []PortBinding) []string {
	seen := make(map[string]struct{}, len(ports))
	out := make([]string, 0, len(ports))
	for _, p := range ports {
		proto := p.Protocol
		if proto == "" {
			proto = "tcp"
		}

		var s string
		if p.HostPort != 0 {
			hostIP := p.HostIP
			if hostIP == "" {
				hostIP = "0.0.0.0"
			}
			s = fmt.Sprintf("%s:%d->%d/%s", hostIP, p.HostPort, p.ContainerPort, proto)
		} else {
			s = fmt.Sprintf("%d/%s", p.ContainerPort, proto)
		}

		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

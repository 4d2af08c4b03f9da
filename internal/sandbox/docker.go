// Package sandbox provides the isolated execution environment attached to an
// agent controller. The control layer only ever creates a sandbox and closes
// it; execution inside the container belongs to the agent runtime.
package sandbox

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Runtime creates sandbox containers for agent sessions.
type Runtime struct {
	client   *client.Client
	image    string
	cpuLimit string
	memLimit string
}

func NewRuntime(host, image, cpuLimit, memLimit string) (*Runtime, error) {
	c, err := client.NewClientWithOpts(
		client.WithHost(host),
		client.WithAPIVersionNegotiation(),
	)
	if err != nil {
		return nil, fmt.Errorf("sandbox.NewRuntime: %w", err)
	}

	return &Runtime{
		client:   c,
		image:    image,
		cpuLimit: cpuLimit,
		memLimit: memLimit,
	}, nil
}

// Create starts a network-isolated container for the session and returns the
// sandbox handle that owns it.
func (r *Runtime) Create(ctx context.Context, sid uuid.UUID) (*Sandbox, error) {
	memLimit, err := parseMemoryLimit(r.memLimit)
	if err != nil {
		return nil, fmt.Errorf("sandbox.Runtime.Create: %w", err)
	}

	cpuQuota, err := parseCPULimit(r.cpuLimit)
	if err != nil {
		return nil, fmt.Errorf("sandbox.Runtime.Create: %w", err)
	}

	cfg := &container.Config{
		Image: r.image,
		Env:   []string{"AGENTD_SESSION_ID=" + sid.String()},
		Cmd:   []string{"sleep", "infinity"},
	}

	hostCfg := &container.HostConfig{
		Resources: container.Resources{
			Memory:   memLimit,
			CPUQuota: cpuQuota,
		},
		NetworkMode: "none",
	}

	name := "agentd-sandbox-" + sid.String()

	resp, err := r.client.ContainerCreate(ctx, cfg, hostCfg, &network.NetworkingConfig{}, nil, name)
	if err != nil {
		return nil, fmt.Errorf("sandbox.Runtime.Create: %w", err)
	}

	err = r.client.ContainerStart(ctx, resp.ID, container.StartOptions{})
	if err != nil {
		removeErr := r.client.ContainerRemove(ctx, resp.ID, container.RemoveOptions{Force: true})
		if removeErr != nil {
			log.Error().Err(removeErr).Str("container_id", resp.ID).Msg("sandbox: failed to remove container after start failure")
		}
		return nil, fmt.Errorf("sandbox.Runtime.Create: start: %w", err)
	}

	return &Sandbox{client: r.client, containerID: resp.ID}, nil
}

// Close closes the Docker client.
func (r *Runtime) Close() error {
	err := r.client.Close()
	if err != nil {
		return fmt.Errorf("sandbox.Runtime.Close: %w", err)
	}
	return nil
}

// Sandbox is one session's container. Closing it stops and removes the
// container; Close is idempotent.
type Sandbox struct {
	client      *client.Client
	containerID string

	once sync.Once
	err  error
}

// ContainerID returns the backing container's ID.
func (s *Sandbox) ContainerID() string { return s.containerID }

func (s *Sandbox) Close(ctx context.Context) error {
	s.once.Do(func() {
		timeout := 10 // seconds
		err := s.client.ContainerStop(ctx, s.containerID, container.StopOptions{Timeout: &timeout})
		if err != nil {
			log.Warn().Err(err).Str("container_id", s.containerID).Msg("sandbox: stop failed, forcing removal")
		}

		err = s.client.ContainerRemove(ctx, s.containerID, container.RemoveOptions{Force: true})
		if err != nil {
			s.err = fmt.Errorf("sandbox.Sandbox.Close: remove: %w", err)
		}
	})
	return s.err
}

// parseMemoryLimit converts values like "512m" or "2g" to bytes.
func parseMemoryLimit(limit string) (int64, error) {
	if limit == "" {
		return 0, nil
	}

	limit = strings.ToLower(strings.TrimSpace(limit))

	multiplier := int64(1)
	switch {
	case strings.HasSuffix(limit, "g"):
		multiplier = 1 << 30
		limit = strings.TrimSuffix(limit, "g")
	case strings.HasSuffix(limit, "m"):
		multiplier = 1 << 20
		limit = strings.TrimSuffix(limit, "m")
	case strings.HasSuffix(limit, "k"):
		multiplier = 1 << 10
		limit = strings.TrimSuffix(limit, "k")
	}

	n, err := strconv.ParseInt(limit, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid memory limit %q: %w", limit, err)
	}

	return n * multiplier, nil
}

// parseCPULimit converts a CPU count like "2" or "0.5" to a CFS quota
// against the default 100ms period.
func parseCPULimit(limit string) (int64, error) {
	if limit == "" {
		return 0, nil
	}

	cpus, err := strconv.ParseFloat(strings.TrimSpace(limit), 64)
	if err != nil {
		return 0, fmt.Errorf("invalid cpu limit %q: %w", limit, err)
	}

	const cfsPeriod = 100000
	return int64(cpus * cfsPeriod), nil
}

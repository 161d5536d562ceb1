package container

import (
	"context"
	"fmt"
	"sync"

	"github.com/docker/go-connections/nat"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// Testcontainers runs the engine through testcontainers-go. The host port
// is chosen by Docker; the mapped port is reported in Container.HostPort.
type Testcontainers struct {
	mu      sync.Mutex
	running map[string]testcontainers.Container
}

// NewTestcontainers creates an empty backend.
func NewTestcontainers() *Testcontainers {
	return &Testcontainers{running: make(map[string]testcontainers.Container)}
}

// Run starts the image and waits for its admin API to answer.
func (t *Testcontainers) Run(ctx context.Context, spec RunSpec) (Container, error) {
	if err := spec.Validate(); err != nil {
		return Container{}, err
	}

	exposed := nat.Port(fmt.Sprintf("%d/tcp", spec.ContainerPort))
	req := testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        spec.Image,
			ExposedPorts: []string{string(exposed)},
			WaitingFor:   wait.ForHTTP("/__admin/mappings").WithPort(exposed),
		},
		Started: true,
	}

	ctr, err := testcontainers.GenericContainer(ctx, req)
	if err != nil {
		if ctr != nil {
			_ = ctr.Terminate(context.WithoutCancel(ctx))
		}
		return Container{}, fmt.Errorf("starting %s: %w", spec.Image, err)
	}

	mapped, err := ctr.MappedPort(ctx, exposed)
	if err != nil {
		_ = ctr.Terminate(context.WithoutCancel(ctx))
		return Container{}, fmt.Errorf("resolving mapped port: %w", err)
	}

	id := ctr.GetContainerID()
	t.mu.Lock()
	t.running[id] = ctr
	t.mu.Unlock()

	return Container{ID: id, HostPort: mapped.Int()}, nil
}

// Stop terminates a container started by Run.
func (t *Testcontainers) Stop(ctx context.Context, id string) (string, error) {
	t.mu.Lock()
	ctr, ok := t.running[id]
	delete(t.running, id)
	t.mu.Unlock()

	if !ok {
		return "", fmt.Errorf("container not found: %s", id)
	}
	if err := ctr.Terminate(ctx); err != nil {
		return "", fmt.Errorf("terminating %s: %w", id, err)
	}
	return id, nil
}

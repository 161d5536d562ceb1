// Package container starts and stops the containerized mock engine.
package container

import (
	"context"
	"fmt"
)

// Runtime names accepted by NewRuntime.
const (
	RuntimeDocker         = "docker"
	RuntimePodman         = "podman"
	RuntimeTestcontainers = "testcontainers"
)

// RunSpec describes one detached container publishing a single port.
type RunSpec struct {
	Image         string
	HostPort      int
	ContainerPort int
}

// Container identifies a started container and the host port it answers on.
type Container struct {
	ID       string
	HostPort int
}

// Runtime runs and stops containers.
type Runtime interface {
	Run(ctx context.Context, spec RunSpec) (Container, error)
	// Stop stops the container and returns whatever the runtime printed.
	Stop(ctx context.Context, id string) (string, error)
}

// NewRuntime returns the backend registered under name.
func NewRuntime(name string) (Runtime, error) {
	switch name {
	case RuntimeDocker, RuntimePodman:
		return &CLI{Binary: name}, nil
	case RuntimeTestcontainers:
		return NewTestcontainers(), nil
	default:
		return nil, fmt.Errorf("unknown container runtime %q", name)
	}
}

// Validate checks the spec before anything is executed.
func (s RunSpec) Validate() error {
	if err := ValidateImage(s.Image); err != nil {
		return fmt.Errorf("invalid image: %w", err)
	}
	if err := ValidatePort(s.ContainerPort); err != nil {
		return fmt.Errorf("invalid container port: %w", err)
	}
	return nil
}

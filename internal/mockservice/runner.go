// Package mockservice starts and stops the mock engine, either in-process or
// as a container.
package mockservice

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/btouchard/tunnelmock/internal/admin"
	"github.com/btouchard/tunnelmock/internal/container"
	"github.com/btouchard/tunnelmock/internal/engine"
	"github.com/btouchard/tunnelmock/internal/poll"
)

// ErrStartupTimeout is returned when a containerized engine never became healthy.
var ErrStartupTimeout = errors.New("mock service did not become healthy")

const (
	defaultImage          = "wiremock/wiremock:latest"
	defaultContainerPort  = 8080
	defaultHealthInterval = 10 * time.Second
	defaultStartupTimeout = time.Minute
)

// Handle is a started mock service. Port is authoritative: for runtimes that
// choose their own host port it differs from the requested one.
type Handle struct {
	Mode        Mode
	Port        int
	ContainerID string

	mu     sync.Mutex
	state  State
	server *engine.Server
}

// URL is the local base URL of the engine.
func (h *Handle) URL() string {
	return fmt.Sprintf("http://localhost:%d", h.Port)
}

// State reports the lifecycle state.
func (h *Handle) State() State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// Options configure a Runner.
type Options struct {
	Mode       Mode
	Templating bool
	// BindHost is the interface the local engine listens on; empty means all.
	BindHost       string
	Image          string
	ContainerPort  int
	HealthInterval time.Duration
	StartupTimeout time.Duration
	Runtime        container.Runtime
	Logger         *slog.Logger
}

// Runner starts mock services in one mode.
type Runner struct {
	opts   Options
	logger *slog.Logger
}

// NewRunner creates a Runner, filling unset options with defaults.
func NewRunner(opts Options) *Runner {
	if opts.Image == "" {
		opts.Image = defaultImage
	}
	if opts.ContainerPort == 0 {
		opts.ContainerPort = defaultContainerPort
	}
	if opts.HealthInterval <= 0 {
		opts.HealthInterval = defaultHealthInterval
	}
	if opts.StartupTimeout <= 0 {
		opts.StartupTimeout = defaultStartupTimeout
	}
	if opts.Runtime == nil {
		opts.Runtime = &container.CLI{Binary: container.RuntimeDocker}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{opts: opts, logger: logger}
}

// Mode returns the mode this runner starts services in.
func (r *Runner) Mode() Mode {
	return r.opts.Mode
}

// Start launches the engine on port and returns once it accepts admin calls.
func (r *Runner) Start(ctx context.Context, port int) (*Handle, error) {
	switch r.opts.Mode {
	case ModeLocal:
		return r.startLocal(port)
	case ModeContainerized:
		return r.startContainer(ctx, port)
	default:
		return nil, fmt.Errorf("unsupported mode %s", r.opts.Mode)
	}
}

func (r *Runner) startLocal(port int) (*Handle, error) {
	eng := engine.New(engine.Options{
		Templating: r.opts.Templating,
		Logger:     r.logger.With("component", "engine"),
	})

	srv, err := eng.Listen(fmt.Sprintf("%s:%d", r.opts.BindHost, port))
	if err != nil {
		return nil, fmt.Errorf("starting local engine: %w", err)
	}

	r.logger.Info("mock engine started", "mode", ModeLocal.String(), "port", port)
	return &Handle{Mode: ModeLocal, Port: port, state: StateRunning, server: srv}, nil
}

func (r *Runner) startContainer(ctx context.Context, port int) (*Handle, error) {
	ctr, err := r.opts.Runtime.Run(ctx, container.RunSpec{
		Image:         r.opts.Image,
		HostPort:      port,
		ContainerPort: r.opts.ContainerPort,
	})
	if err != nil {
		return nil, fmt.Errorf("starting container: %w", err)
	}

	h := &Handle{Mode: ModeContainerized, Port: ctr.HostPort, ContainerID: ctr.ID, state: StateStarting}
	r.logger.Info("mock container started", "container_id", ctr.ID, "port", h.Port, "image", r.opts.Image)

	client := admin.New(h.URL(), admin.WithTimeout(r.opts.HealthInterval))
	err = poll.Until(ctx, r.opts.HealthInterval, r.opts.StartupTimeout, client.Healthy)
	if err != nil {
		// Never hand back a half-started container.
		_ = r.Stop(context.WithoutCancel(ctx), h)
		if errors.Is(err, poll.ErrTimeout) {
			return nil, fmt.Errorf("%w: %w", ErrStartupTimeout, err)
		}
		return nil, err
	}

	h.mu.Lock()
	h.state = StateRunning
	h.mu.Unlock()

	r.logger.Info("mock container healthy", "container_id", ctr.ID, "port", h.Port)
	return h, nil
}

// Stop shuts the service down. It is best-effort: failures are logged and
// returned, and stopping an already stopped handle is a no-op.
func (r *Runner) Stop(ctx context.Context, h *Handle) error {
	if h == nil {
		return nil
	}

	h.mu.Lock()
	if h.state == StateStopped {
		h.mu.Unlock()
		return nil
	}
	h.state = StateStopped
	h.mu.Unlock()

	switch h.Mode {
	case ModeLocal:
		if h.server == nil {
			return nil
		}
		if err := h.server.Shutdown(ctx); err != nil {
			r.logger.Warn("stopping local engine failed", "port", h.Port, "error", err)
			return fmt.Errorf("stopping local engine: %w", err)
		}
		r.logger.Info("mock engine stopped", "port", h.Port)
		return nil

	case ModeContainerized:
		out, err := r.opts.Runtime.Stop(ctx, h.ContainerID)
		logOutput(r.logger, h.ContainerID, out)
		if err != nil {
			r.logger.Warn("stopping mock container failed", "container_id", h.ContainerID, "error", err)
			return fmt.Errorf("stopping container %s: %w", h.ContainerID, err)
		}
		r.logger.Info("mock container stopped", "container_id", h.ContainerID)
		return nil
	}
	return nil
}

func logOutput(logger *slog.Logger, id, out string) {
	scanner := bufio.NewScanner(strings.NewReader(out))
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			logger.Info("container stop output", "container_id", id, "line", line)
		}
	}
}

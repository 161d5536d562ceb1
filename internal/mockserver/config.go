package mockserver

import (
	"fmt"
	"log/slog"
	"math/rand/v2"

	"github.com/btouchard/tunnelmock/internal/config"
	"github.com/btouchard/tunnelmock/internal/container"
	"github.com/btouchard/tunnelmock/internal/mockservice"
	"github.com/btouchard/tunnelmock/internal/notify"
	"github.com/btouchard/tunnelmock/internal/port"
	"github.com/btouchard/tunnelmock/internal/tunnel"
)

// OptionsFromConfig builds the allocator, runner and supervisor described by
// cfg. rnd seeds both port and provider choice; nil seeds from the clock.
func OptionsFromConfig(cfg *config.Config, rnd *rand.Rand, notifier notify.Notifier, logger *slog.Logger) (Options, error) {
	if logger == nil {
		logger = slog.Default()
	}

	mode, err := mockservice.ParseMode(cfg.Mock.Mode)
	if err != nil {
		return Options{}, err
	}

	runnerOpts := mockservice.Options{
		Mode:           mode,
		Templating:     cfg.Mock.Templating,
		Image:          cfg.Mock.Image,
		ContainerPort:  cfg.Mock.ContainerPort,
		HealthInterval: cfg.Mock.HealthInterval,
		StartupTimeout: cfg.Mock.StartupTimeout,
		Logger:         logger,
	}
	if mode == mockservice.ModeContainerized {
		rt, err := container.NewRuntime(cfg.Container.Runtime)
		if err != nil {
			return Options{}, err
		}
		runnerOpts.Runtime = rt
	}

	ngrokEnabled := cfg.Tunnel.Ngrok.AuthToken != ""
	registry, err := tunnel.NewRegistry(cfg.Tunnel.Providers, ngrokEnabled)
	if err != nil {
		return Options{}, fmt.Errorf("tunnel providers: %w", err)
	}

	supervisor := tunnel.NewSupervisor(tunnel.SupervisorOptions{
		Registry:     registry,
		MaxAttempts:  cfg.Tunnel.MaxAttempts,
		OpenTimeout:  cfg.Tunnel.OpenTimeout,
		ProbeTimeout: cfg.Tunnel.ProbeTimeout,
		ExitTimeout:  cfg.Tunnel.ExitTimeout,
		Ngrok: tunnel.NgrokOptions{
			AuthToken: cfg.Tunnel.Ngrok.AuthToken,
			Domain:    cfg.Tunnel.Ngrok.Domain,
		},
		Rand:     rnd,
		Notifier: notifier,
		Logger:   logger,
	})

	return Options{
		Allocator:      port.NewAllocator(cfg.Mock.PortMin, cfg.Mock.PortMax, cfg.Mock.PortAttempts, rnd),
		Runner:         mockservice.NewRunner(runnerOpts),
		Tunnels:        supervisor,
		EventsInterval: cfg.Events.PollInterval,
		EventsTimeout:  cfg.Events.Timeout,
		Notifier:       notifier,
		Logger:         logger,
	}, nil
}

package tunnel

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/btouchard/tunnelmock/internal/admin"
	"github.com/btouchard/tunnelmock/internal/notify"
)

const (
	defaultMaxAttempts  = 5
	defaultOpenTimeout  = time.Minute
	defaultProbeTimeout = 15 * time.Second
)

// OpenFunc opens a session for one provider.
type OpenFunc func(ctx context.Context, port int, p Provider) (Session, error)

// ProbeFunc checks that a public URL reaches the mock engine.
type ProbeFunc func(ctx context.Context, publicURL string) error

// SupervisorOptions configure a Supervisor. Zero values get defaults.
type SupervisorOptions struct {
	Registry     Registry
	MaxAttempts  int
	OpenTimeout  time.Duration
	ProbeTimeout time.Duration
	ExitTimeout  time.Duration
	Ngrok        NgrokOptions
	Rand         *rand.Rand
	Notifier     notify.Notifier
	Logger       *slog.Logger

	// Open and Probe replace the process launcher and the HTTP probe.
	Open  OpenFunc
	Probe ProbeFunc
}

// Supervisor establishes a working tunnel, retrying across random providers.
type Supervisor struct {
	opts   SupervisorOptions
	logger *slog.Logger
}

// NewSupervisor creates a Supervisor.
func NewSupervisor(opts SupervisorOptions) *Supervisor {
	if len(opts.Registry) == 0 {
		opts.Registry = Registry{LocalTunnel, LocalhostRun, Pinggy, Serveo}
	}
	if opts.MaxAttempts < 1 {
		opts.MaxAttempts = defaultMaxAttempts
	}
	if opts.OpenTimeout <= 0 {
		opts.OpenTimeout = defaultOpenTimeout
	}
	if opts.ProbeTimeout <= 0 {
		opts.ProbeTimeout = defaultProbeTimeout
	}
	if opts.ExitTimeout <= 0 {
		opts.ExitTimeout = defaultExitTimeout
	}
	if opts.Rand == nil {
		seed := uint64(time.Now().UnixNano())
		opts.Rand = rand.New(rand.NewPCG(seed, seed>>32))
	}
	if opts.Notifier == nil {
		opts.Notifier = notify.NewHub()
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Supervisor{opts: opts, logger: logger}
	if s.opts.Open == nil {
		s.opts.Open = s.open
	}
	if s.opts.Probe == nil {
		s.opts.Probe = s.probe
	}
	return s
}

// Establish returns a session whose public URL answers the mock admin API.
// Attempts are sequential; each picks a random provider.
func (s *Supervisor) Establish(ctx context.Context, port int) (Session, error) {
	var provider Provider
	started := time.Now()

	session, err := Retry(ctx, s.opts.MaxAttempts, Attempt[Session]{
		Create: func(ctx context.Context, n int) (Session, error) {
			provider = s.opts.Registry.Pick(s.opts.Rand)
			s.logger.Info("opening tunnel", "provider", provider.String(), "port", port, "attempt", n)
			s.notify(notify.Event{Type: notify.TunnelAttempt, Provider: provider.String(), Port: port, Attempt: n})

			openCtx, cancel := context.WithTimeout(ctx, s.opts.OpenTimeout)
			defer cancel()
			session, err := s.opts.Open(openCtx, port, provider)
			if err != nil && ctx.Err() == nil && openCtx.Err() != nil {
				err = fmt.Errorf("%w: no public URL within %s", ErrOutputExhausted, s.opts.OpenTimeout)
			}
			return session, err
		},
		Validate: func(ctx context.Context, session Session) error {
			return s.opts.Probe(ctx, session.PublicURL())
		},
		Discard: func(session Session) {
			if err := session.CloseContext(context.WithoutCancel(ctx)); err != nil {
				s.logger.Warn("closing rejected tunnel failed", "provider", session.Provider(), "error", err)
			}
		},
		OnFailure: func(n int, err error) {
			s.logger.Warn("tunnel attempt failed", "provider", provider.String(), "port", port, "attempt", n, "error", err)
			s.notify(notify.Event{Type: notify.TunnelFailed, Provider: provider.String(), Port: port, Attempt: n, Message: err.Error()})
		},
	})
	if err != nil {
		s.notify(notify.Event{Type: notify.TunnelUnavailable, Port: port, Attempt: s.opts.MaxAttempts, Message: err.Error(), Duration: time.Since(started)})
		return nil, err
	}

	s.logger.Info("tunnel established", "provider", session.Provider(), "public_url", session.PublicURL(), "port", port)
	s.notify(notify.Event{
		Type:      notify.TunnelEstablished,
		Provider:  session.Provider(),
		Port:      port,
		PublicURL: session.PublicURL(),
		Duration:  time.Since(started),
	})
	return session, nil
}

// Registry returns the providers this supervisor picks from.
func (s *Supervisor) Registry() Registry {
	return s.opts.Registry
}

func (s *Supervisor) open(ctx context.Context, port int, p Provider) (Session, error) {
	if p == Ngrok {
		opts := s.opts.Ngrok
		opts.Logger = s.logger
		session, err := OpenNgrok(ctx, port, opts)
		if err != nil {
			return nil, err
		}
		return session, nil
	}

	session, err := Open(ctx, port, p.Descriptor(), SessionOptions{ExitTimeout: s.opts.ExitTimeout, Logger: s.logger})
	if err != nil {
		return nil, err
	}
	return session, nil
}

// probe requires a 2xx from {publicURL}/__admin/mappings.
func (s *Supervisor) probe(ctx context.Context, publicURL string) error {
	client := admin.New(publicURL, admin.WithInsecureTLS(), admin.WithTimeout(s.opts.ProbeTimeout))
	code, err := client.HealthCheck(ctx)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrProbeFailure, err)
	}
	if code < 200 || code >= 300 {
		return fmt.Errorf("%w: %s answered %d", ErrProbeFailure, publicURL, code)
	}
	return nil
}

func (s *Supervisor) notify(event notify.Event) {
	s.opts.Notifier.Notify(event)
}

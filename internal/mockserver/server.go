// Package mockserver ties a mock engine and a public tunnel together: it
// allocates a port, starts the engine, exposes it and tears both down.
package mockserver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/btouchard/tunnelmock/internal/admin"
	"github.com/btouchard/tunnelmock/internal/mockservice"
	"github.com/btouchard/tunnelmock/internal/notify"
	"github.com/btouchard/tunnelmock/internal/poll"
	"github.com/btouchard/tunnelmock/internal/stub"
	"github.com/btouchard/tunnelmock/internal/tunnel"
)

const (
	defaultEventsInterval = 3 * time.Second
	defaultEventsTimeout  = 30 * time.Second
	stopTimeout           = 30 * time.Second
)

// PortAllocator picks the local port for the engine.
type PortAllocator interface {
	Allocate() (int, error)
}

// ServiceRunner starts and stops the engine.
type ServiceRunner interface {
	Mode() mockservice.Mode
	Start(ctx context.Context, port int) (*mockservice.Handle, error)
	Stop(ctx context.Context, h *mockservice.Handle) error
}

// TunnelEstablisher opens a verified public tunnel to a port.
type TunnelEstablisher interface {
	Establish(ctx context.Context, port int) (tunnel.Session, error)
}

// Options wire a Server. Allocator, Runner and Tunnels are required.
type Options struct {
	Allocator PortAllocator
	Runner    ServiceRunner
	Tunnels   TunnelEstablisher

	EventsInterval time.Duration
	EventsTimeout  time.Duration
	Notifier       notify.Notifier
	Logger         *slog.Logger
}

// Server is a running mock engine reachable through a public tunnel.
type Server struct {
	opts    Options
	logger  *slog.Logger
	handle  *mockservice.Handle
	session tunnel.Session
	client  *admin.Client

	closeOnce sync.Once
	closeErr  error
}

// Open allocates a port, starts the engine, establishes a tunnel and
// installs the baseline stubs. On any failure everything started so far is
// stopped and no Server is returned.
func Open(ctx context.Context, opts Options) (*Server, error) {
	if opts.Allocator == nil || opts.Runner == nil || opts.Tunnels == nil {
		return nil, errors.New("mockserver: allocator, runner and tunnels are required")
	}
	if opts.EventsInterval <= 0 {
		opts.EventsInterval = defaultEventsInterval
	}
	if opts.EventsTimeout <= 0 {
		opts.EventsTimeout = defaultEventsTimeout
	}
	if opts.Notifier == nil {
		opts.Notifier = notify.NewHub()
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	port, err := opts.Allocator.Allocate()
	if err != nil {
		return nil, fmt.Errorf("allocating port: %w", err)
	}

	handle, err := opts.Runner.Start(ctx, port)
	if err != nil {
		return nil, fmt.Errorf("starting mock service: %w", err)
	}

	s := &Server{
		opts:   opts,
		logger: logger.With("port", handle.Port),
		handle: handle,
		client: admin.New(handle.URL()),
	}

	session, err := opts.Tunnels.Establish(ctx, handle.Port)
	if err != nil {
		s.stopService()
		return nil, fmt.Errorf("establishing tunnel: %w", err)
	}
	s.session = session

	if err := s.installBaseline(ctx); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("installing baseline stubs: %w", err)
	}

	s.logger.Info("mock server ready",
		"mode", handle.Mode.String(),
		"provider", session.Provider(),
		"public_url", session.PublicURL(),
		"local_url", handle.URL())
	return s, nil
}

// baselineStubs are installed on every new server.
func baselineStubs() ([]stub.Definition, error) {
	specs := []stub.Options{
		{URL: "/default", Method: http.MethodPost, Body: `{"default":true,"success":true}`},
		{URL: "/foo", Method: http.MethodPost},
		{URLPattern: "/bar.*", Method: http.MethodPost},
	}
	defs := make([]stub.Definition, 0, len(specs))
	for _, o := range specs {
		def, err := stub.Build(o)
		if err != nil {
			return nil, err
		}
		defs = append(defs, def)
	}
	return defs, nil
}

func (s *Server) installBaseline(ctx context.Context) error {
	defs, err := baselineStubs()
	if err != nil {
		return err
	}
	for _, def := range defs {
		if _, err := s.client.CreateStub(ctx, def); err != nil {
			return err
		}
	}
	return nil
}

// PublicURL is the tunnel URL external callers use.
func (s *Server) PublicURL() string { return s.session.PublicURL() }

// LocalURL is the engine's localhost base URL.
func (s *Server) LocalURL() string { return s.handle.URL() }

// Port is the local engine port.
func (s *Server) Port() int { return s.handle.Port }

// Mode reports where the engine runs.
func (s *Server) Mode() mockservice.Mode { return s.handle.Mode }

// Provider names the relay serving PublicURL.
func (s *Server) Provider() string { return s.session.Provider() }

// Admin returns the client bound to the local engine.
func (s *Server) Admin() *admin.Client { return s.client }

// ManageMockEndpoint installs a stub given as raw admin API JSON.
func (s *Server) ManageMockEndpoint(ctx context.Context, stubJSON string) error {
	if _, err := s.client.CreateStubJSON(ctx, []byte(stubJSON)); err != nil {
		return err
	}
	return nil
}

// CreateStub installs a built stub definition.
func (s *Server) CreateStub(ctx context.Context, def stub.Definition) error {
	if _, err := s.client.CreateStub(ctx, def); err != nil {
		return err
	}
	return nil
}

// AllEvents returns every captured request, newest first.
func (s *Server) AllEvents(ctx context.Context) ([]admin.CapturedRequest, error) {
	return s.client.ListRequests(ctx)
}

// EndpointEvents waits until at least one captured request's URL contains
// substring and returns the bodies of all such requests. It gives up with
// poll.ErrTimeout after the configured events timeout.
func (s *Server) EndpointEvents(ctx context.Context, substring string) ([]string, error) {
	return poll.Value(ctx, s.opts.EventsInterval, s.opts.EventsTimeout, func(ctx context.Context) ([]string, error) {
		reqs, err := s.client.ListRequests(ctx)
		if err != nil {
			return nil, err
		}
		var bodies []string
		for _, r := range reqs {
			if strings.Contains(r.URL, substring) {
				bodies = append(bodies, r.Body)
			}
		}
		if len(bodies) == 0 {
			return nil, fmt.Errorf("no request to %q captured yet", substring)
		}
		return bodies, nil
	})
}

// CleanAllEvents clears the captured request journal.
func (s *Server) CleanAllEvents(ctx context.Context) error {
	return s.client.ClearRequests(ctx)
}

// Close closes the tunnel, then stops the engine. It is idempotent; later
// calls return the first result.
func (s *Server) Close() error {
	return s.CloseContext(context.Background())
}

// CloseContext is Close bounded by ctx. Teardown still completes when ctx
// is cancelled.
func (s *Server) CloseContext(ctx context.Context) error {
	s.closeOnce.Do(func() {
		var errs []error
		if s.session != nil {
			if err := s.session.CloseContext(ctx); err != nil {
				errs = append(errs, fmt.Errorf("closing tunnel: %w", err))
			}
			s.opts.Notifier.Notify(notify.Event{
				Type:      notify.TunnelClosed,
				Provider:  s.session.Provider(),
				Port:      s.handle.Port,
				PublicURL: s.session.PublicURL(),
			})
		}
		s.stopService()
		s.closeErr = errors.Join(errs...)
	})
	return s.closeErr
}

// stopService is best-effort: the runner already logs failures.
func (s *Server) stopService() {
	ctx, cancel := context.WithTimeout(context.Background(), stopTimeout)
	defer cancel()
	_ = s.opts.Runner.Stop(ctx, s.handle)
}

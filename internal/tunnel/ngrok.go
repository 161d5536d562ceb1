package tunnel

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"
	"sync"
	"time"

	ngroklib "golang.ngrok.com/ngrok"
	ngrokconfig "golang.ngrok.com/ngrok/config"
)

// NgrokOptions configure the ngrok relay.
type NgrokOptions struct {
	AuthToken string
	// Domain is a reserved domain (paid plans); empty picks a random one.
	Domain string
	Logger *slog.Logger
}

// NgrokSession forwards an ngrok endpoint to the local port through an
// in-process reverse proxy.
type NgrokSession struct {
	port     int
	url      string
	listener net.Listener
	server   *http.Server
	served   chan struct{}
	logger   *slog.Logger

	mu    sync.Mutex
	state State
}

// OpenNgrok creates an ngrok HTTPS endpoint forwarding to localhost:port.
func OpenNgrok(ctx context.Context, port int, opts NgrokOptions) (*NgrokSession, error) {
	if opts.AuthToken == "" {
		return nil, fmt.Errorf("ngrok auth token is required (set tunnel.ngrok.authtoken in config or TUNNELMOCK_NGROK_AUTHTOKEN env var)")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("provider", Ngrok.String(), "port", port)

	var endpoint ngrokconfig.Tunnel
	if opts.Domain != "" {
		endpoint = ngrokconfig.HTTPEndpoint(ngrokconfig.WithDomain(opts.Domain))
		logger.Debug("using fixed ngrok domain", "domain", opts.Domain)
	} else {
		endpoint = ngrokconfig.HTTPEndpoint()
	}

	listener, err := listenNgrok(ctx, endpoint, opts.AuthToken)
	if err != nil {
		return nil, err
	}

	publicURL := listener.Addr().String()
	if !strings.HasPrefix(publicURL, "http://") && !strings.HasPrefix(publicURL, "https://") {
		publicURL = "https://" + publicURL
	}

	target := &url.URL{Scheme: "http", Host: fmt.Sprintf("localhost:%d", port)}
	s := &NgrokSession{
		port:     port,
		url:      publicURL,
		listener: listener,
		server: &http.Server{
			Handler:           httputil.NewSingleHostReverseProxy(target),
			ReadHeaderTimeout: 10 * time.Second,
		},
		served: make(chan struct{}),
		logger: logger,
		state:  StateActive,
	}

	go func() {
		defer close(s.served)
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("ngrok proxy stopped", "error", err)
		}
	}()

	logger.Info("tunnel opened", "public_url", publicURL)
	return s, nil
}

// PublicURL implements Session.
func (n *NgrokSession) PublicURL() string { return n.url }

// Provider implements Session.
func (n *NgrokSession) Provider() string { return Ngrok.String() }

// Close implements Session.
func (n *NgrokSession) Close() error {
	return n.CloseContext(context.Background())
}

// CloseContext implements Session.
func (n *NgrokSession) CloseContext(ctx context.Context) error {
	n.mu.Lock()
	if n.state == StateClosed {
		n.mu.Unlock()
		return nil
	}
	n.state = StateClosed
	n.mu.Unlock()

	err := n.server.Shutdown(ctx)
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		_ = n.server.Close()
	}
	select {
	case <-n.served:
	case <-ctx.Done():
	}
	if cerr := n.listener.Close(); cerr != nil && err == nil && !errors.Is(cerr, net.ErrClosed) {
		err = fmt.Errorf("closing ngrok endpoint: %w", cerr)
	}

	n.logger.Info("tunnel closed", "public_url", n.url)
	return err
}

type ngrokResult struct {
	listener ngroklib.Tunnel
	err      error
}

// listenNgrok dials ngrok with a context that outlives ctx, so the endpoint
// stays up after the caller's open deadline is released. Cancelling ctx
// still abandons the dial; a listener that arrives late is closed.
func listenNgrok(ctx context.Context, endpoint ngrokconfig.Tunnel, authToken string) (ngroklib.Tunnel, error) {
	done := make(chan ngrokResult, 1)
	go func() {
		l, err := ngroklib.Listen(context.WithoutCancel(ctx), endpoint, ngroklib.WithAuthtoken(authToken))
		done <- ngrokResult{listener: l, err: err}
	}()

	select {
	case res := <-done:
		if res.err != nil {
			return nil, fmt.Errorf("%w: creating ngrok endpoint: %w", ErrSpawnFailure, res.err)
		}
		return res.listener, nil
	case <-ctx.Done():
		go func() {
			if res := <-done; res.err == nil {
				_ = res.listener.Close()
			}
		}()
		return nil, ctx.Err()
	}
}

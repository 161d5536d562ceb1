package tunnel

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

const defaultExitTimeout = 10 * time.Second

// SessionOptions tune process sessions.
type SessionOptions struct {
	// ExitTimeout bounds the wait for the process after it is killed.
	ExitTimeout time.Duration
	Logger      *slog.Logger
}

// ProcessSession is a tunnel backed by a relay child process.
type ProcessSession struct {
	desc        Descriptor
	port        int
	url         string
	proc        *Process
	exitTimeout time.Duration
	logger      *slog.Logger

	mu    sync.Mutex
	state State
}

// Open spawns the relay for port and blocks until it prints its public URL.
// Lines that do not match the descriptor's pattern are skipped. If ctx is
// cancelled first the process is killed and the context error returned.
func Open(ctx context.Context, port int, d Descriptor, opts SessionOptions) (*ProcessSession, error) {
	if len(d.Command) == 0 {
		return nil, fmt.Errorf("%w: provider %s has no command", ErrSpawnFailure, d.Name)
	}
	if opts.ExitTimeout <= 0 {
		opts.ExitTimeout = defaultExitTimeout
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("provider", d.Name, "port", port)

	s, err := startSession(port, d, opts.ExitTimeout, logger)
	if err != nil {
		return nil, err
	}
	if err := s.awaitURL(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func startSession(port int, d Descriptor, exitTimeout time.Duration, logger *slog.Logger) (*ProcessSession, error) {
	proc, err := StartProcess(d.Argv(port), logger)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSpawnFailure, err)
	}
	return &ProcessSession{
		desc:        d,
		port:        port,
		proc:        proc,
		exitTimeout: exitTimeout,
		logger:      logger,
		state:       StateStarting,
	}, nil
}

// awaitURL scans stdout for the public URL. On success the rest of stdout is
// drained in the background; on failure the process is terminated and the
// session left in StateFailed.
func (s *ProcessSession) awaitURL(ctx context.Context) error {
	scanDone := make(chan struct{})
	watcherDone := make(chan struct{})
	go func() {
		defer close(watcherDone)
		select {
		case <-ctx.Done():
			s.proc.Kill()
		case <-scanDone:
		}
	}()

	url, found := s.scanForURL()
	close(scanDone)
	<-watcherDone

	if found && ctx.Err() == nil {
		s.url = url
		s.setState(StateActive)
		go s.proc.DrainStdout()
		s.logger.Info("tunnel opened", "public_url", url)
		return nil
	}

	if err := s.shutdown(context.WithoutCancel(ctx), StateFailed); err != nil {
		s.logger.Warn("tunnel cleanup failed", "error", err)
	}

	switch {
	case ctx.Err() != nil:
		return ctx.Err()
	case s.proc.Err() != nil:
		return fmt.Errorf("%w: reading output: %w", ErrSpawnFailure, s.proc.Err())
	default:
		return fmt.Errorf("%w (provider %s)", ErrOutputExhausted, s.desc.Name)
	}
}

func (s *ProcessSession) scanForURL() (string, bool) {
	for {
		line, ok := s.proc.NextLine()
		if !ok {
			return "", false
		}
		if url, ok := s.desc.ExtractURL(line); ok {
			return url, true
		}
		s.logger.Debug("tunnel output", "line", line)
	}
}

// PublicURL implements Session.
func (s *ProcessSession) PublicURL() string { return s.url }

// Provider implements Session.
func (s *ProcessSession) Provider() string { return s.desc.Name }

// Port is the local port being forwarded.
func (s *ProcessSession) Port() int { return s.port }

// State reports the lifecycle state.
func (s *ProcessSession) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Close implements Session.
func (s *ProcessSession) Close() error {
	return s.CloseContext(context.Background())
}

// CloseContext implements Session. The process is killed and waited for at
// most the exit timeout. Later calls return nil.
func (s *ProcessSession) CloseContext(ctx context.Context) error {
	return s.shutdown(ctx, StateClosed)
}

func (s *ProcessSession) shutdown(ctx context.Context, final State) error {
	s.mu.Lock()
	if s.state == StateClosed || s.state == StateFailed {
		s.mu.Unlock()
		return nil
	}
	s.state = final
	s.mu.Unlock()

	err := s.proc.Terminate(ctx, s.exitTimeout)
	if s.url != "" {
		s.logger.Info("tunnel closed", "public_url", s.url)
	}
	return err
}

func (s *ProcessSession) setState(state State) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

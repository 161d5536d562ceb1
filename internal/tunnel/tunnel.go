// Package tunnel exposes a local port through a public HTTPS relay.
package tunnel

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrSpawnFailure is returned when the relay process cannot be started or read.
	ErrSpawnFailure = errors.New("tunnel process failed")
	// ErrOutputExhausted is returned when the relay exits without announcing a URL.
	ErrOutputExhausted = errors.New("tunnel output ended without a public URL")
	// ErrProbeFailure is returned when the public URL does not reach the mock engine.
	ErrProbeFailure = errors.New("tunnel probe failed")
	// ErrTunnelUnavailable is returned when every establishment attempt failed.
	ErrTunnelUnavailable = errors.New("no tunnel could be established")
	// ErrExitTimeout is returned when the relay process outlives the close timeout.
	ErrExitTimeout = errors.New("tunnel process did not exit")
)

// Session is an open tunnel.
type Session interface {
	// PublicURL is the HTTPS URL forwarding to the local port.
	PublicURL() string
	// Provider names the relay.
	Provider() string
	// Close releases the tunnel. It is idempotent.
	Close() error
	// CloseContext is Close bounded by ctx. Cleanup completes even when ctx
	// is cancelled; the cancellation is returned.
	CloseContext(ctx context.Context) error
}

// State is the lifecycle state of a Session.
type State int

const (
	StateStarting State = iota
	StateActive
	StateClosed
	// StateFailed is terminal: the relay never produced a usable URL.
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateStarting:
		return "starting"
	case StateActive:
		return "active"
	case StateClosed:
		return "closed"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

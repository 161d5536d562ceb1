// Package port picks local TCP ports for the mock engine.
package port

import (
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net"
	"strconv"
	"sync"
	"time"
)

// ErrPortExhausted is returned when no candidate in the range could be bound.
var ErrPortExhausted = errors.New("no bindable port found")

// Allocator picks a random port in [Min, Max) and confirms it is bindable by
// opening and immediately closing a listener on it.
//
// The returned port can be taken by another process between the check and
// the caller's own bind. That race is accepted.
type Allocator struct {
	Min         int
	Max         int
	MaxAttempts int
	Host        string

	mu  sync.Mutex
	rnd *rand.Rand
}

// NewAllocator creates an Allocator for [minPort, maxPort) using rnd as its
// randomness source. A nil rnd is seeded from the clock.
func NewAllocator(minPort, maxPort, maxAttempts int, rnd *rand.Rand) *Allocator {
	if rnd == nil {
		seed := uint64(time.Now().UnixNano())
		rnd = rand.New(rand.NewPCG(seed, seed>>32))
	}
	if maxAttempts < 1 {
		maxAttempts = 100
	}
	return &Allocator{
		Min:         minPort,
		Max:         maxPort,
		MaxAttempts: maxAttempts,
		Host:        "127.0.0.1",
		rnd:         rnd,
	}
}

// Allocate returns a port that was bindable at the time of the call.
func (a *Allocator) Allocate() (int, error) {
	if a.Min < 1 || a.Max > 65536 || a.Min >= a.Max {
		return 0, fmt.Errorf("invalid port range %d-%d", a.Min, a.Max)
	}

	var lastErr error
	for attempt := 1; attempt <= a.MaxAttempts; attempt++ {
		candidate := a.candidate()
		if err := probe(a.Host, candidate); err != nil {
			slog.Debug("port candidate unavailable", "port", candidate, "attempt", attempt, "error", err)
			lastErr = err
			continue
		}
		return candidate, nil
	}

	return 0, fmt.Errorf("%w after %d attempts in range %d-%d: %w",
		ErrPortExhausted, a.MaxAttempts, a.Min, a.Max, lastErr)
}

func (a *Allocator) candidate() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.Min + a.rnd.IntN(a.Max-a.Min)
}

func probe(host string, port int) error {
	ln, err := net.Listen("tcp", net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		return err
	}
	return ln.Close()
}

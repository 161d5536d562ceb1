package port

import (
	"math/rand/v2"
	"net"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestAllocate_ReturnsPortInRange(t *testing.T) {
	t.Parallel()

	a := NewAllocator(20000, 21000, 50, rand.New(rand.NewPCG(1, 2)))

	p, err := a.Allocate()
	require.NoError(t, err)
	assert.GreaterOrEqual(t, p, 20000)
	assert.Less(t, p, 21000)
}

func TestAllocate_FreshPortIsBindable(t *testing.T) {
	t.Parallel()

	rapid.Check(t, func(rt *rapid.T) {
		seed := rapid.Uint64().Draw(rt, "seed")
		a := NewAllocator(30000, 40000, 100, rand.New(rand.NewPCG(seed, seed^0x5bd1e995)))

		p, err := a.Allocate()
		if err != nil {
			rt.Fatalf("allocate: %v", err)
		}

		ln, err := net.Listen("tcp", net.JoinHostPort("127.0.0.1", strconv.Itoa(p)))
		if err != nil {
			rt.Fatalf("port %d not bindable after allocation: %v", p, err)
		}
		_ = ln.Close()
	})
}

func TestAllocate_WhenOnlyPortTaken_ReturnsExhausted(t *testing.T) {
	t.Parallel()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer func() { _ = ln.Close() }()

	taken := ln.Addr().(*net.TCPAddr).Port
	a := NewAllocator(taken, taken+1, 5, nil)

	_, err = a.Allocate()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrPortExhausted)
	assert.Contains(t, err.Error(), "after 5 attempts")
}

func TestAllocate_WhenRangeInvalid_ReturnsError(t *testing.T) {
	t.Parallel()

	a := NewAllocator(9000, 8000, 5, nil)

	_, err := a.Allocate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid port range")
}

func TestAllocate_SameSeed_SameFirstCandidate(t *testing.T) {
	t.Parallel()

	a := NewAllocator(40000, 50000, 1, rand.New(rand.NewPCG(7, 7)))
	b := NewAllocator(40000, 50000, 1, rand.New(rand.NewPCG(7, 7)))

	assert.Equal(t, a.candidate(), b.candidate())
}

func TestNewAllocator_DefaultsAttempts(t *testing.T) {
	t.Parallel()

	a := NewAllocator(8000, 9000, 0, nil)
	assert.Equal(t, 100, a.MaxAttempts)
	assert.Equal(t, "127.0.0.1", a.Host)
}

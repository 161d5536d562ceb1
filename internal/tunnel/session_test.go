package tunnel

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fakeURLPattern = regexp.MustCompile(`url is: (https://[\w\-.]+)`)

// fakeRelay writes a shell script standing in for a relay client. The
// script receives the port as $1.
func fakeRelay(t *testing.T, body string) Descriptor {
	t.Helper()
	path := filepath.Join(t.TempDir(), "relay")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755))
	return Descriptor{
		Name:       "fake",
		Command:    []string{path, PortPlaceholder},
		URLPattern: fakeURLPattern,
	}
}

func TestOpen_SkipsNoiseUntilURL(t *testing.T) {
	t.Parallel()

	for _, noise := range []int{0, 1, 25} {
		t.Run(fmt.Sprintf("%d noise lines", noise), func(t *testing.T) {
			t.Parallel()
			var b strings.Builder
			for i := range noise {
				fmt.Fprintf(&b, "echo 'connecting %d'\n", i)
			}
			b.WriteString("echo \"url is: https://p$1.example.dev\"\nexec sleep 30\n")
			d := fakeRelay(t, b.String())

			s, err := Open(context.Background(), 8123, d, SessionOptions{ExitTimeout: 5 * time.Second})
			require.NoError(t, err)
			t.Cleanup(func() { _ = s.Close() })

			assert.Equal(t, "https://p8123.example.dev", s.PublicURL())
			assert.Equal(t, "fake", s.Provider())
			assert.Equal(t, StateActive, s.State())
		})
	}
}

func TestOpen_WhenOutputEndsWithoutURL_ReturnsOutputExhausted(t *testing.T) {
	t.Parallel()
	d := fakeRelay(t, "echo 'connection refused'\nexit 1\n")

	_, err := Open(context.Background(), 8123, d, SessionOptions{})
	assert.ErrorIs(t, err, ErrOutputExhausted)
}

func TestOpen_WhenBinaryMissing_ReturnsSpawnFailure(t *testing.T) {
	t.Parallel()
	d := Descriptor{Name: "missing", Command: []string{"/nonexistent/relay-client"}, URLPattern: fakeURLPattern}

	_, err := Open(context.Background(), 8123, d, SessionOptions{})
	assert.ErrorIs(t, err, ErrSpawnFailure)
}

func TestOpen_WhenNoCommand_ReturnsSpawnFailure(t *testing.T) {
	t.Parallel()

	_, err := Open(context.Background(), 8123, Ngrok.Descriptor(), SessionOptions{})
	assert.ErrorIs(t, err, ErrSpawnFailure)
}

func TestOpen_WhenContextCancelledDuringScan_KillsProcess(t *testing.T) {
	t.Parallel()
	d := fakeRelay(t, "echo 'waiting'\nexec sleep 30\n")

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := Open(ctx, 8123, d, SessionOptions{ExitTimeout: 5 * time.Second})

	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 10*time.Second)
}

func TestClose_IsIdempotent(t *testing.T) {
	t.Parallel()
	d := fakeRelay(t, "echo \"url is: https://x.example.dev\"\nexec sleep 30\n")

	s, err := Open(context.Background(), 8123, d, SessionOptions{ExitTimeout: 5 * time.Second})
	require.NoError(t, err)

	require.NoError(t, s.Close())
	assert.Equal(t, StateClosed, s.State())
	assert.NoError(t, s.Close())
	assert.NoError(t, s.CloseContext(context.Background()))
}

func TestClose_TerminatesProcess(t *testing.T) {
	t.Parallel()
	marker := filepath.Join(t.TempDir(), "alive")
	d := fakeRelay(t, "echo \"url is: https://x.example.dev\"\nwhile true; do touch "+marker+"; sleep 0.05; done\n")

	s, err := Open(context.Background(), 8123, d, SessionOptions{ExitTimeout: 5 * time.Second})
	require.NoError(t, err)
	require.NoError(t, s.Close())

	_ = os.Remove(marker)
	time.Sleep(200 * time.Millisecond)
	assert.NoFileExists(t, marker)
}

func TestCloseContext_WhenAlreadyCancelled_StillCloses(t *testing.T) {
	t.Parallel()
	d := fakeRelay(t, "echo \"url is: https://x.example.dev\"\nexec sleep 30\n")

	s, err := Open(context.Background(), 8123, d, SessionOptions{ExitTimeout: 5 * time.Second})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = s.CloseContext(ctx)
	if err != nil {
		assert.ErrorIs(t, err, context.Canceled)
	}
	assert.Equal(t, StateClosed, s.State())
	assert.NoError(t, s.Close())
}

func TestOpen_WhenRelayKeepsWritingAfterURL_DoesNotBlockIt(t *testing.T) {
	t.Parallel()

	marker := filepath.Join(t.TempDir(), "done")
	d := fakeRelay(t, "echo \"url is: https://p$1.example.dev\"\n"+
		"i=0\n"+
		"while [ $i -lt 3000 ]; do\n"+
		"  echo \"GET /forwarded/request/path/padding/padding/padding/padding/ 200 $i\"\n"+
		"  i=$((i+1))\n"+
		"done\n"+
		"touch '"+marker+"'\n"+
		"exec sleep 30\n")

	s, err := Open(context.Background(), 8123, d, SessionOptions{ExitTimeout: 5 * time.Second})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	assert.Eventually(t, func() bool {
		_, err := os.Stat(marker)
		return err == nil
	}, 5*time.Second, 20*time.Millisecond)
	assert.Equal(t, StateActive, s.State())
}

func TestAwaitURL_WhenOutputEndsWithoutURL_LeavesSessionFailed(t *testing.T) {
	t.Parallel()
	d := fakeRelay(t, "echo 'connection refused'\nexit 1\n")

	s, err := startSession(8123, d, 5*time.Second, slog.Default())
	require.NoError(t, err)

	err = s.awaitURL(context.Background())
	require.ErrorIs(t, err, ErrOutputExhausted)
	assert.Equal(t, StateFailed, s.State())

	require.NoError(t, s.Close())
	assert.Equal(t, StateFailed, s.State())
}

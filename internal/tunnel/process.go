package tunnel

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"sync"
	"time"
)

// Process is a child process whose stdout is consumed line by line.
// Stderr is drained in the background and logged at debug level.
type Process struct {
	cmd    *exec.Cmd
	stdout *bufio.Scanner
	logger *slog.Logger

	killOnce sync.Once
	waitOnce sync.Once
	exited   chan struct{}
	waitErr  error
}

// StartProcess spawns argv. It does not tie the process to a context: the
// caller terminates it explicitly.
func StartProcess(argv []string, logger *slog.Logger) (*Process, error) {
	if len(argv) == 0 {
		return nil, errors.New("empty command")
	}
	if logger == nil {
		logger = slog.Default()
	}

	cmd := exec.Command(argv[0], argv[1:]...) //nolint:gosec // argv comes from the provider catalog
	configureProcess(cmd)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("creating stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("creating stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("starting %s: %w", argv[0], err)
	}

	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	p := &Process{
		cmd:    cmd,
		stdout: scanner,
		logger: logger.With("pid", cmd.Process.Pid),
		exited: make(chan struct{}),
	}
	go p.drainStderr(stderr)

	p.logger.Debug("process started", "command", argv[0])
	return p, nil
}

// NextLine returns the next stdout line. ok is false once output is exhausted;
// Err then reports whether that was a read failure.
func (p *Process) NextLine() (line string, ok bool) {
	if !p.stdout.Scan() {
		return "", false
	}
	return p.stdout.Text(), true
}

// Err returns the stdout read error, if any.
func (p *Process) Err() error {
	return p.stdout.Err()
}

// Pid returns the process id.
func (p *Process) Pid() int {
	return p.cmd.Process.Pid
}

// Kill forcibly stops the process. Safe to call more than once.
func (p *Process) Kill() {
	p.killOnce.Do(func() {
		killProcess(p.cmd)
	})
}

// Terminate kills the process and waits for it to exit, at most timeout.
// A cancelled ctx also ends the wait; the process is reaped in the
// background either way.
func (p *Process) Terminate(ctx context.Context, timeout time.Duration) error {
	p.Kill()
	p.startWait()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-p.exited:
		return nil
	case <-timer.C:
		return fmt.Errorf("%w after %s", ErrExitTimeout, timeout)
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Process) startWait() {
	p.waitOnce.Do(func() {
		go func() {
			p.waitErr = p.cmd.Wait()
			p.logger.Debug("process exited", "error", p.waitErr)
			close(p.exited)
		}()
	})
}

// DrainStdout logs the remaining stdout lines until the stream ends, so a
// chatty child never blocks on a full pipe. It must be the only reader left.
func (p *Process) DrainStdout() {
	for {
		line, ok := p.NextLine()
		if !ok {
			return
		}
		p.logger.Debug("process stdout", "line", line)
	}
}

func (p *Process) drainStderr(r io.Reader) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		p.logger.Debug("process stderr", "line", scanner.Text())
	}
}

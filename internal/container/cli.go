package container

import (
	"context"
	"fmt"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
)

var (
	// Image references: registry/name:tag, lowercase.
	imagePattern = regexp.MustCompile(`^[a-z0-9][a-z0-9._:/@-]*[a-z0-9]$|^[a-z0-9]$`)

	portInUseRe = regexp.MustCompile(`:(\d+): bind: address already in use`)
)

// PortInUseError indicates the runtime could not bind the requested host port.
type PortInUseError struct {
	Port   int
	Output string
	Err    error
}

func (e *PortInUseError) Error() string {
	if e.Port > 0 {
		return fmt.Sprintf("host port %d already in use: %v", e.Port, e.Err)
	}
	return fmt.Sprintf("host port already in use: %v", e.Err)
}

func (e *PortInUseError) Unwrap() error {
	return e.Err
}

// ValidateImage rejects image references that could be read as flags or
// contain shell metacharacters.
func ValidateImage(image string) error {
	if image == "" {
		return fmt.Errorf("image cannot be empty")
	}
	if len(image) > 255 {
		return fmt.Errorf("image too long (max 255 chars)")
	}
	if !imagePattern.MatchString(image) {
		return fmt.Errorf("image contains invalid characters: %s", image)
	}
	return nil
}

// ValidatePort validates port numbers.
func ValidatePort(port int) error {
	if port < 1 || port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", port)
	}
	return nil
}

// CLI drives the docker or podman command line.
type CLI struct {
	// Binary is the executable name or path, "docker" or "podman".
	Binary string
}

func buildRunArgs(spec RunSpec) []string {
	return []string{
		"run", "-d", "--rm",
		"-p", fmt.Sprintf("%d:%d", spec.HostPort, spec.ContainerPort),
		spec.Image,
	}
}

// Run starts a detached, self-removing container.
func (c *CLI) Run(ctx context.Context, spec RunSpec) (Container, error) {
	if err := spec.Validate(); err != nil {
		return Container{}, err
	}
	if err := ValidatePort(spec.HostPort); err != nil {
		return Container{}, fmt.Errorf("invalid host port: %w", err)
	}

	cmd := exec.CommandContext(ctx, c.Binary, buildRunArgs(spec)...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		outStr := string(output)
		if strings.Contains(outStr, "address already in use") {
			port := spec.HostPort
			if match := portInUseRe.FindStringSubmatch(outStr); len(match) == 2 {
				if parsed, perr := strconv.Atoi(match[1]); perr == nil {
					port = parsed
				}
			}
			return Container{}, &PortInUseError{Port: port, Output: outStr, Err: fmt.Errorf("%s run failed: %w", c.Binary, err)}
		}
		return Container{}, fmt.Errorf("%s run failed: %w, output: %s", c.Binary, err, strings.TrimSpace(outStr))
	}

	// Pull progress may precede the id; the id is the last hex line.
	lines := strings.Split(strings.TrimSpace(string(output)), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimSpace(lines[i])
		if isValidContainerID(line) {
			return Container{ID: line, HostPort: spec.HostPort}, nil
		}
	}

	return Container{}, fmt.Errorf("could not extract container ID from output: %s", strings.TrimSpace(string(output)))
}

// Stop stops a container by id and returns the command output.
func (c *CLI) Stop(ctx context.Context, id string) (string, error) {
	if !isValidContainerID(id) {
		return "", fmt.Errorf("invalid container ID format: %s", id)
	}

	cmd := exec.CommandContext(ctx, c.Binary, "stop", id)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return string(output), fmt.Errorf("%s stop failed: %w", c.Binary, err)
	}
	return string(output), nil
}

func isValidContainerID(id string) bool {
	// Full ids are 64 hex chars; short ids are at least 12.
	if len(id) < 12 || len(id) > 64 {
		return false
	}
	for _, r := range id {
		if !((r >= '0' && r <= '9') || (r >= 'a' && r <= 'f') || (r >= 'A' && r <= 'F')) {
			return false
		}
	}
	return true
}

package mockservice

import (
	"fmt"
	"strings"
)

// Mode selects where the mock engine runs.
type Mode int

const (
	// ModeLocal runs the engine in-process.
	ModeLocal Mode = iota
	// ModeContainerized runs the engine image through a container runtime.
	ModeContainerized
)

func (m Mode) String() string {
	switch m {
	case ModeLocal:
		return "local"
	case ModeContainerized:
		return "container"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// ParseMode maps a configuration value to a Mode.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "local", "":
		return ModeLocal, nil
	case "container", "containerized", "docker":
		return ModeContainerized, nil
	default:
		return 0, fmt.Errorf("unknown mock mode %q (want local or container)", s)
	}
}

// State is the lifecycle state of a Handle.
type State int

const (
	StateStarting State = iota
	StateRunning
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

package config

import "time"

// Config is the root configuration for tunnelmock.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Mock      MockConfig      `yaml:"mock"`
	Container ContainerConfig `yaml:"container"`
	Tunnel    TunnelConfig    `yaml:"tunnel"`
	Events    EventsConfig    `yaml:"events"`
	Database  DatabaseConfig  `yaml:"database"`
	MCP       MCPConfig       `yaml:"mcp"`
}

type ServerConfig struct {
	LogLevel string `yaml:"log_level"`
	LogFile  string `yaml:"log_file"`
	DataDir  string `yaml:"data_dir"`
}

// MockConfig selects where the mock engine runs and how its port is chosen.
type MockConfig struct {
	// Mode is "local" (in-process engine) or "container".
	Mode           string        `yaml:"mode"`
	Templating     bool          `yaml:"templating"`
	PortMin        int           `yaml:"port_min"`
	PortMax        int           `yaml:"port_max"`
	PortAttempts   int           `yaml:"port_attempts"`
	Image          string        `yaml:"image"`
	ContainerPort  int           `yaml:"container_port"`
	HealthInterval time.Duration `yaml:"health_interval"`
	StartupTimeout time.Duration `yaml:"startup_timeout"`
}

type ContainerConfig struct {
	// Runtime is "docker", "podman" or "testcontainers".
	Runtime string `yaml:"runtime"`
}

type TunnelConfig struct {
	MaxAttempts  int           `yaml:"max_attempts"`
	Providers    []string      `yaml:"providers"`
	OpenTimeout  time.Duration `yaml:"open_timeout"`
	ProbeTimeout time.Duration `yaml:"probe_timeout"`
	ExitTimeout  time.Duration `yaml:"exit_timeout"`
	Ngrok        NgrokConfig   `yaml:"ngrok"`
}

type NgrokConfig struct {
	AuthToken string `yaml:"authtoken"`
	Domain    string `yaml:"domain"`
}

type EventsConfig struct {
	PollInterval time.Duration `yaml:"poll_interval"`
	Timeout      time.Duration `yaml:"timeout"`
}

type DatabaseConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

type MCPConfig struct {
	Enabled bool   `yaml:"enabled"`
	Host    string `yaml:"host"`
	Port    int    `yaml:"port"`
	Token   string `yaml:"token"`
}

// Defaults returns a Config with sensible default values.
func Defaults() *Config {
	return &Config{
		Server: ServerConfig{
			LogLevel: "info",
			DataDir:  "~/.config/tunnelmock",
		},
		Mock: MockConfig{
			Mode:           "local",
			Templating:     true,
			PortMin:        8000,
			PortMax:        9000,
			PortAttempts:   100,
			Image:          "wiremock/wiremock:latest",
			ContainerPort:  8080,
			HealthInterval: 10 * time.Second,
			StartupTimeout: time.Minute,
		},
		Container: ContainerConfig{
			Runtime: "docker",
		},
		Tunnel: TunnelConfig{
			MaxAttempts:  5,
			Providers:    []string{"localtunnel", "localhost.run", "pinggy", "serveo"},
			OpenTimeout:  time.Minute,
			ProbeTimeout: 15 * time.Second,
			ExitTimeout:  10 * time.Second,
		},
		Events: EventsConfig{
			PollInterval: 3 * time.Second,
			Timeout:      30 * time.Second,
		},
		Database: DatabaseConfig{
			Enabled: true,
			Path:    "~/.config/tunnelmock/tunnelmock.db",
		},
		MCP: MCPConfig{
			Host: "127.0.0.1",
			Port: 8421,
		},
	}
}

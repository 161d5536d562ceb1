package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

var (
	validModes    = []string{"local", "container"}
	validRuntimes = []string{"docker", "podman", "testcontainers"}
)

// searchPaths returns the ordered list of config file locations to try.
func searchPaths() []string {
	paths := []string{
		"/etc/tunnelmock/tunnelmock.yaml",
	}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "tunnelmock", "tunnelmock.yaml"))
	}

	paths = append(paths, "tunnelmock.yaml")

	if envPath := os.Getenv("TUNNELMOCK_CONFIG"); envPath != "" {
		paths = append(paths, envPath)
	}

	return paths
}

// Load reads configuration from YAML files and environment variables.
// Files are loaded in order (each overrides the previous):
// /etc/tunnelmock/tunnelmock.yaml < ~/.config/tunnelmock/tunnelmock.yaml < ./tunnelmock.yaml < $TUNNELMOCK_CONFIG
func Load() (*Config, error) {
	cfg := Defaults()

	for _, path := range searchPaths() {
		if err := loadFile(cfg, path); err != nil {
			return nil, fmt.Errorf("loading config %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// LoadFromFile reads configuration from a specific file path.
func LoadFromFile(path string) (*Config, error) {
	cfg := Defaults()

	if err := loadFile(cfg, path); err != nil {
		return nil, fmt.Errorf("loading config %s: %w", path, err)
	}

	applyEnvOverrides(cfg)

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables have higher priority than YAML config values.
func applyEnvOverrides(cfg *Config) {
	if mode := os.Getenv("TUNNELMOCK_MODE"); mode != "" {
		cfg.Mock.Mode = mode
	}
	if token := os.Getenv("TUNNELMOCK_NGROK_AUTHTOKEN"); token != "" {
		cfg.Tunnel.Ngrok.AuthToken = token
	}
	if token := os.Getenv("TUNNELMOCK_MCP_TOKEN"); token != "" {
		cfg.MCP.Token = token
	}
}

func loadFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path) //nolint:gosec // path comes from trusted config search paths
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading file: %w", err)
	}

	slog.Debug("loading config file", "path", path)

	expanded := os.ExpandEnv(string(data))

	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return fmt.Errorf("parsing YAML: %w", err)
	}

	return nil
}

// ExpandHome replaces a leading ~ with the user's home directory.
func ExpandHome(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[1:])
}

func validate(cfg *Config) error {
	cfg.Mock.Mode = strings.ToLower(strings.TrimSpace(cfg.Mock.Mode))
	if !slices.Contains(validModes, cfg.Mock.Mode) {
		return fmt.Errorf("mock.mode must be one of %v, got %q", validModes, cfg.Mock.Mode)
	}

	if cfg.Mock.PortMin < 1 || cfg.Mock.PortMax > 65536 || cfg.Mock.PortMin >= cfg.Mock.PortMax {
		return fmt.Errorf("mock.port_min/port_max must form a range within 1-65535, got %d-%d",
			cfg.Mock.PortMin, cfg.Mock.PortMax)
	}

	if cfg.Mock.PortAttempts < 1 {
		return fmt.Errorf("mock.port_attempts must be at least 1")
	}

	if cfg.Mock.Mode == "container" {
		if cfg.Mock.Image == "" {
			return fmt.Errorf("mock.image is required in container mode")
		}
		if !slices.Contains(validRuntimes, cfg.Container.Runtime) {
			return fmt.Errorf("container.runtime must be one of %v, got %q", validRuntimes, cfg.Container.Runtime)
		}
		if cfg.Mock.HealthInterval <= 0 || cfg.Mock.StartupTimeout < cfg.Mock.HealthInterval {
			return fmt.Errorf("mock.startup_timeout must be at least mock.health_interval")
		}
	}

	if cfg.Tunnel.MaxAttempts < 1 {
		return fmt.Errorf("tunnel.max_attempts must be at least 1")
	}

	if len(cfg.Tunnel.Providers) == 0 {
		return fmt.Errorf("tunnel.providers must list at least one provider")
	}

	if cfg.MCP.Enabled && (cfg.MCP.Port < 1 || cfg.MCP.Port > 65535) {
		return fmt.Errorf("mcp.port must be between 1 and 65535, got %d", cfg.MCP.Port)
	}

	if cfg.MCP.Host == "0.0.0.0" {
		return fmt.Errorf("mcp.host must not be 0.0.0.0; the MCP endpoint listens on localhost only")
	}

	if cfg.Events.PollInterval <= 0 || cfg.Events.Timeout <= 0 {
		return fmt.Errorf("events.poll_interval and events.timeout must be positive")
	}

	cfg.Server.DataDir = ExpandHome(cfg.Server.DataDir)
	cfg.Database.Path = ExpandHome(cfg.Database.Path)

	return nil
}

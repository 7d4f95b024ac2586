// Package config loads the realtime client configuration from YAML.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration for the realtime client.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Auth    AuthConfig    `yaml:"auth"`
	Polling PollingConfig `yaml:"polling"`
	Logging LoggingConfig `yaml:"logging"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// ServerConfig locates the platform endpoints.
type ServerConfig struct {
	// URL is the realtime endpoint base, e.g. "wss://example.com".
	URL string `yaml:"url"`
	// APIBaseURL is the REST collaborator base, e.g. "https://example.com/api".
	APIBaseURL string `yaml:"api_base_url"`
}

// AuthConfig locates the session token.
type AuthConfig struct {
	// TokenFile is the path the host application writes the session token to.
	TokenFile string `yaml:"token_file"`
	// Token holds a literal token; takes precedence over TokenFile when set.
	Token string `yaml:"token"`
}

// PollingConfig carries the fallback poll cadences.
type PollingConfig struct {
	Messages      time.Duration `yaml:"messages"`
	OnlineStatus  time.Duration `yaml:"online_status"`
	Notifications time.Duration `yaml:"notifications"`
	Rooms         time.Duration `yaml:"rooms"`
	Liveness      time.Duration `yaml:"liveness"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json or text
}

// MetricsConfig controls the optional Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
}

// Default returns the configuration used when no file is provided. The poll
// cadences match the product's observed values: messages every 3s, presence
// every 5s, rooms every 8s, notifications every 10s, liveness check every 2s.
func Default() Config {
	return Config{
		Polling: PollingConfig{
			Messages:      3 * time.Second,
			OnlineStatus:  5 * time.Second,
			Notifications: 10 * time.Second,
			Rooms:         8 * time.Second,
			Liveness:      2 * time.Second,
		},
		Logging: LoggingConfig{Level: "info", Format: "text"},
		Metrics: MetricsConfig{Listen: "127.0.0.1:9311"},
	}
}

// Load reads a YAML config file, expanding $VAR references from the
// environment, and fills unset fields with defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("config: read %s: %w", path, err)
	}
	expanded := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return cfg, fmt.Errorf("config: parse %s: %w", path, err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	def := Default()
	if c.Polling.Messages <= 0 {
		c.Polling.Messages = def.Polling.Messages
	}
	if c.Polling.OnlineStatus <= 0 {
		c.Polling.OnlineStatus = def.Polling.OnlineStatus
	}
	if c.Polling.Notifications <= 0 {
		c.Polling.Notifications = def.Polling.Notifications
	}
	if c.Polling.Rooms <= 0 {
		c.Polling.Rooms = def.Polling.Rooms
	}
	if c.Polling.Liveness <= 0 {
		c.Polling.Liveness = def.Polling.Liveness
	}
	if c.Logging.Level == "" {
		c.Logging.Level = def.Logging.Level
	}
	if c.Logging.Format == "" {
		c.Logging.Format = def.Logging.Format
	}
	if c.Metrics.Listen == "" {
		c.Metrics.Listen = def.Metrics.Listen
	}
}

func (c *Config) validate() error {
	if strings.TrimSpace(c.Server.URL) == "" {
		return fmt.Errorf("config: server.url is required")
	}
	if strings.TrimSpace(c.Server.APIBaseURL) == "" {
		return fmt.Errorf("config: server.api_base_url is required")
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: unknown logging.level %q", c.Logging.Level)
	}
	return nil
}

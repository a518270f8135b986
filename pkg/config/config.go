// Package config provides configuration file support for bit.
package config

import (
	"fmt"
	"os"
	"os/user"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// FileName is the config file name inside the .bit directory.
const FileName = "config.yaml"

// Config represents the bit configuration.
type Config struct {
	// User is the acting uid stamped on every action and commit.
	User string `yaml:"user"`
	// Mode is only read by init; the repository's stored mode wins afterwards.
	Mode          string          `yaml:"mode"`
	RemoteURL     string          `yaml:"remote_url,omitempty"`
	BindAddress   string          `yaml:"bind_address,omitempty"`
	CommitMessage string          `yaml:"commit_message"`
	Signing       SigningConfig   `yaml:"signing"`
	Auth          AuthConfig      `yaml:"auth"`
	Logging       LoggingConfig   `yaml:"logging"`
	Webhooks      []WebhookConfig `yaml:"webhooks,omitempty"`
	Metrics       MetricsConfig   `yaml:"metrics"`
	Transport     TransportConfig `yaml:"transport"`
}

// SigningConfig selects how remote signatures are produced and checked.
type SigningConfig struct {
	Scheme string `yaml:"scheme"` // digest, ed25519
	// KeyFile holds the server's private key seed (server mode).
	KeyFile string `yaml:"key_file,omitempty"`
	// PublicKey is the server's hex public key (client modes).
	PublicKey string `yaml:"public_key,omitempty"`
}

// AuthConfig configures bearer-token auth between clients and the server.
type AuthConfig struct {
	Secret   string        `yaml:"secret,omitempty"`
	TokenTTL time.Duration `yaml:"token_ttl"`
}

// LoggingConfig configures logging behavior.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // json, text
}

// WebhookConfig is one notification endpoint.
type WebhookConfig struct {
	URL    string   `yaml:"url"`
	Secret string   `yaml:"secret,omitempty"`
	Events []string `yaml:"events,omitempty"`
}

// MetricsConfig toggles the Prometheus endpoint on the server.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

// TransportConfig bounds network calls.
type TransportConfig struct {
	Timeout time.Duration `yaml:"timeout"`
	Retries int           `yaml:"retries"`

	// AllowedOrigins enables CORS on the server for browser clients.
	AllowedOrigins []string `yaml:"allowed_origins,omitempty"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		User:          defaultUser(),
		Mode:          "local",
		CommitMessage: "{user} {datetime}",
		Signing:       SigningConfig{Scheme: "digest"},
		Auth:          AuthConfig{TokenTTL: 24 * time.Hour},
		Logging: LoggingConfig{
			Level:  "warn",
			Format: "text",
		},
		Metrics:   MetricsConfig{Enabled: true},
		Transport: TransportConfig{Timeout: 30 * time.Second, Retries: 2},
	}
}

func defaultUser() string {
	if u := os.Getenv("BIT_USER"); u != "" {
		return u
	}
	if u, err := user.Current(); err == nil && u.Username != "" {
		return u.Username
	}
	return "unknown"
}

// Path returns the config file location for a repository.
func Path(repoRoot string) string {
	return filepath.Join(repoRoot, ".bit", FileName)
}

// Load loads configuration from .bit/config.yaml.
// Returns default config if file doesn't exist.
func Load(repoRoot string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(Path(repoRoot))
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// Save writes configuration to .bit/config.yaml.
func Save(repoRoot string, cfg *Config) error {
	cfgPath := Path(repoRoot)

	if err := os.MkdirAll(filepath.Dir(cfgPath), 0755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	// The file may carry the auth secret.
	if err := os.WriteFile(cfgPath, data, 0600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}

	return nil
}

// Validate checks enumerations and required pairs.
func (c *Config) Validate() error {
	if c.User == "" {
		return fmt.Errorf("user must not be empty")
	}
	switch c.Mode {
	case "", "local":
	case "remote":
		if c.RemoteURL == "" {
			return fmt.Errorf("mode remote needs remote_url")
		}
	case "server":
		if c.BindAddress == "" {
			return fmt.Errorf("mode server needs bind_address")
		}
	default:
		return fmt.Errorf("unknown mode %q", c.Mode)
	}
	switch c.Signing.Scheme {
	case "", "digest", "ed25519":
	default:
		return fmt.Errorf("unknown signing scheme %q", c.Signing.Scheme)
	}
	switch c.Logging.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log level %q", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "", "json", "text":
	default:
		return fmt.Errorf("unknown log format %q", c.Logging.Format)
	}
	for i, w := range c.Webhooks {
		if w.URL == "" {
			return fmt.Errorf("webhook %d has no url", i)
		}
	}
	if c.Auth.TokenTTL < 0 || c.Transport.Timeout < 0 || c.Transport.Retries < 0 {
		return fmt.Errorf("durations and retries must not be negative")
	}
	return nil
}

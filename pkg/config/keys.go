package config

import (
	"fmt"
	"strconv"
	"time"
)

type accessor struct {
	get func(c *Config) string
	set func(c *Config, v string) error
}

func stringKey(field func(c *Config) *string) accessor {
	return accessor{
		get: func(c *Config) string { return *field(c) },
		set: func(c *Config, v string) error { *field(c) = v; return nil },
	}
}

func durationKey(field func(c *Config) *time.Duration) accessor {
	return accessor{
		get: func(c *Config) string { return field(c).String() },
		set: func(c *Config, v string) error {
			d, err := time.ParseDuration(v)
			if err != nil {
				return fmt.Errorf("invalid duration %q: %w", v, err)
			}
			*field(c) = d
			return nil
		},
	}
}

// keys are the settable dotted paths. mode, remote_url and bind_address are
// left out: the role of a repository is fixed at init.
var keys = map[string]accessor{
	"user":               stringKey(func(c *Config) *string { return &c.User }),
	"commit_message":     stringKey(func(c *Config) *string { return &c.CommitMessage }),
	"signing.scheme":     stringKey(func(c *Config) *string { return &c.Signing.Scheme }),
	"signing.key_file":   stringKey(func(c *Config) *string { return &c.Signing.KeyFile }),
	"signing.public_key": stringKey(func(c *Config) *string { return &c.Signing.PublicKey }),
	"auth.secret":        stringKey(func(c *Config) *string { return &c.Auth.Secret }),
	"auth.token_ttl":     durationKey(func(c *Config) *time.Duration { return &c.Auth.TokenTTL }),
	"logging.level":      stringKey(func(c *Config) *string { return &c.Logging.Level }),
	"logging.format":     stringKey(func(c *Config) *string { return &c.Logging.Format }),
	"transport.timeout":  durationKey(func(c *Config) *time.Duration { return &c.Transport.Timeout }),
	"metrics.enabled": {
		get: func(c *Config) string { return strconv.FormatBool(c.Metrics.Enabled) },
		set: func(c *Config, v string) error {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("invalid bool %q", v)
			}
			c.Metrics.Enabled = b
			return nil
		},
	},
	"transport.retries": {
		get: func(c *Config) string { return strconv.Itoa(c.Transport.Retries) },
		set: func(c *Config, v string) error {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("invalid count %q", v)
			}
			c.Transport.Retries = n
			return nil
		},
	},
}

// Keys returns the settable configuration keys.
func Keys() []string {
	return []string{
		"user", "commit_message",
		"signing.scheme", "signing.key_file", "signing.public_key",
		"auth.secret", "auth.token_ttl",
		"logging.level", "logging.format",
		"metrics.enabled",
		"transport.timeout", "transport.retries",
	}
}

// Get returns the value of key as text.
func (c *Config) Get(key string) (string, error) {
	a, ok := keys[key]
	if !ok {
		return "", fmt.Errorf("unknown config key %q", key)
	}
	return a.get(c), nil
}

// Set parses value into key. The config is validated afterwards and left
// unchanged when the new value is rejected.
func (c *Config) Set(key, value string) error {
	a, ok := keys[key]
	if !ok {
		return fmt.Errorf("unknown config key %q", key)
	}
	next := *c
	if err := a.set(&next, value); err != nil {
		return err
	}
	if err := next.Validate(); err != nil {
		return err
	}
	*c = next
	return nil
}

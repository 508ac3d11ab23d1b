// Package config loads server configuration from an optional YAML file
// with environment-variable overrides on top.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration that unmarshals from YAML strings like "90s".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("config: invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the standard-library duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// UserSeed preloads one entry in the user directory.
type UserSeed struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

// Config holds all server settings.
type Config struct {
	ListenAddr     string     `yaml:"listen_addr"`
	RedisAddr      string     `yaml:"redis_addr"`
	AuthSecret     string     `yaml:"auth_secret"`
	MaxConns       int        `yaml:"max_conns"`
	IdleTimeout    Duration   `yaml:"idle_timeout"`
	SendRateLimit  int        `yaml:"send_rate_limit"`
	SendRateWindow Duration   `yaml:"send_rate_window"`
	Users          []UserSeed `yaml:"users"`
}

// Default returns the configuration used when nothing is specified.
func Default() Config {
	return Config{
		ListenAddr:     ":8080",
		SendRateLimit:  30,
		SendRateWindow: Duration(time.Minute),
	}
}

// Load reads the YAML file at path (skipped when path is empty or the
// file does not exist) and applies environment overrides.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return cfg, fmt.Errorf("config: read %s: %w", path, err)
			}
		} else if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// applyEnv overrides fields from environment variables.
func (c *Config) applyEnv() error {
	if v := os.Getenv("LISTEN_ADDR"); v != "" {
		c.ListenAddr = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.RedisAddr = v
	}
	if v := os.Getenv("AUTH_SECRET"); v != "" {
		c.AuthSecret = v
	}
	if v := os.Getenv("MAX_CONNS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("config: invalid MAX_CONNS %q: %w", v, err)
		}
		c.MaxConns = n
	}
	if v := os.Getenv("IDLE_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("config: invalid IDLE_TIMEOUT %q: %w", v, err)
		}
		c.IdleTimeout = Duration(d)
	}
	if v := os.Getenv("SEND_RATE_LIMIT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("config: invalid SEND_RATE_LIMIT %q: %w", v, err)
		}
		c.SendRateLimit = n
	}
	if v := os.Getenv("SEND_RATE_WINDOW"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("config: invalid SEND_RATE_WINDOW %q: %w", v, err)
		}
		c.SendRateWindow = Duration(d)
	}
	return nil
}

package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Defaults for the tunables recognized by the configuration surface.
const (
	DefaultSessionTTLMinutes = 5
	DefaultPollIntervalMs    = 2000
)

// Config holds the kiosk configuration, loaded from a YAML file with
// flag/env overrides applied by the CLI layer.
type Config struct {
	// BackendURL is the base URL of the hosted backend project.
	BackendURL string `yaml:"backendUrl"`

	// BackendKey is the anonymous API key used for all backend requests.
	BackendKey string `yaml:"backendKey"`

	// PortalURL is the public web host encoded into QR login URLs. The
	// phone submits the scanned session id back through this portal.
	PortalURL string `yaml:"portalUrl"`

	// SessionTTLMinutes is the QR session expiry passed to the backend
	// when a session is created.
	SessionTTLMinutes int `yaml:"sessionTtlMinutes"`

	// PollIntervalMs is the QR status polling period.
	PollIntervalMs int `yaml:"pollIntervalMs"`

	// StateDir overrides the directory holding the persisted auth
	// record. Empty means ~/.arena-kiosk.
	StateDir string `yaml:"stateDir"`
}

// Default returns a Config with all tunables at their defaults.
func Default() Config {
	return Config{
		SessionTTLMinutes: DefaultSessionTTLMinutes,
		PollIntervalMs:    DefaultPollIntervalMs,
	}
}

// Load reads a YAML config file and applies defaults for any tunable
// left unset. A missing file is not an error; callers supply the
// connection settings via flags in that case.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyDefaults()

	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.SessionTTLMinutes <= 0 {
		c.SessionTTLMinutes = DefaultSessionTTLMinutes
	}
	if c.PollIntervalMs <= 0 {
		c.PollIntervalMs = DefaultPollIntervalMs
	}
}

// Validate checks the settings a backend connection requires.
func (c *Config) Validate() error {
	if c.BackendURL == "" {
		return fmt.Errorf("backend URL is required")
	}
	if c.BackendKey == "" {
		return fmt.Errorf("backend key is required")
	}
	if c.PortalURL == "" {
		return fmt.Errorf("portal URL is required")
	}
	return nil
}

// SessionTTL returns the QR session expiry as a duration.
func (c *Config) SessionTTL() time.Duration {
	return time.Duration(c.SessionTTLMinutes) * time.Minute
}

// PollInterval returns the polling period as a duration.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalMs) * time.Millisecond
}

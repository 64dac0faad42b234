// Package config defines eleel's configuration surface: defaults,
// validation, and YAML/env/flag loading with flag > env > file precedence.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v2"
)

// ClientSecret is a named JWT secret accepted on the client (follower)
// endpoint, keyed by the "id" claim of the presented token.
type ClientSecret struct {
	ID     string `yaml:"id"`
	Secret string `yaml:"secret"`
}

// Config holds all configuration for an eleel process.
type Config struct {
	// ListenAddr is the HTTP listen address serving both "/" and "/canonical".
	ListenAddr string `yaml:"listen_addr"`

	// EngineURL is the execution engine's Engine-API endpoint.
	EngineURL string `yaml:"engine_url"`

	// ControllerSecret authenticates requests on the "/canonical" endpoint.
	ControllerSecret string `yaml:"controller_secret"`

	// ClientSecrets authenticate requests on the "/" endpoint, one per
	// named consensus-layer follower.
	ClientSecrets []ClientSecret `yaml:"client_secrets"`

	// FcuCachePolicy selects Exact, Loose, or HeadOnly matching.
	FcuCachePolicy string `yaml:"fcu_cache_policy"`
	FcuCacheSize   int    `yaml:"fcu_cache_size"`

	NewPayloadCacheSize     int    `yaml:"new_payload_cache_size"`
	NewPayloadRecencyCutoff uint64 `yaml:"new_payload_recency_cutoff"`

	PayloadCacheSize int `yaml:"payload_cache_size"`

	FcuWaitMillis        int `yaml:"fcu_wait_millis"`
	NewPayloadWaitMillis int `yaml:"new_payload_wait_millis"`

	LogLevel string `yaml:"log_level"`
	LogFile  string `yaml:"log_file"`
	Verbosity int    `yaml:"verbosity"`

	MetricsEnabled bool   `yaml:"metrics_enabled"`
	MetricsAddr    string `yaml:"metrics_addr"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		ListenAddr:              ":8552",
		EngineURL:               "http://127.0.0.1:8551",
		FcuCachePolicy:          "loose",
		FcuCacheSize:            64,
		NewPayloadCacheSize:     64,
		NewPayloadRecencyCutoff: 64,
		PayloadCacheSize:        64,
		FcuWaitMillis:           1000,
		NewPayloadWaitMillis:    2000,
		LogLevel:                "info",
		Verbosity:               3,
		MetricsAddr:             ":9552",
	}
}

// Validate checks configuration values for correctness.
func (c *Config) Validate() error {
	if c.ListenAddr == "" {
		return fmt.Errorf("config: listen_addr must not be empty")
	}
	if c.EngineURL == "" {
		return fmt.Errorf("config: engine_url must not be empty")
	}
	if c.ControllerSecret == "" {
		return fmt.Errorf("config: controller_secret must not be empty")
	}
	if len(c.ClientSecrets) == 0 {
		return fmt.Errorf("config: at least one client secret is required")
	}
	switch c.FcuCachePolicy {
	case "exact", "loose", "head_only":
	default:
		return fmt.Errorf("config: unknown fcu_cache_policy %q", c.FcuCachePolicy)
	}
	if c.FcuCacheSize <= 0 || c.NewPayloadCacheSize <= 0 || c.PayloadCacheSize <= 0 {
		return fmt.Errorf("config: cache sizes must be positive")
	}
	if c.Verbosity < 0 || c.Verbosity > 5 {
		return fmt.Errorf("config: verbosity must be 0-5, got %d", c.Verbosity)
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: unknown log level %q", c.LogLevel)
	}
	return nil
}

// LoadFile parses a YAML config file into a Config, starting from defaults.
func LoadFile(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, nil
}

// ApplyEnv overlays environment variables onto cfg, for the subset of
// options operators most commonly need to set per-deployment rather than
// per-file.
func ApplyEnv(cfg *Config) {
	if v := os.Getenv("ELEEL_ENGINE_URL"); v != "" {
		cfg.EngineURL = v
	}
	if v := os.Getenv("ELEEL_LISTEN_ADDR"); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv("ELEEL_CONTROLLER_SECRET"); v != "" {
		cfg.ControllerSecret = v
	}
}

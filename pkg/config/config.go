// Package config assembles the dispatcher configuration from environment
// variables. Values are read once at startup; there is no runtime reload.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config is the umbrella configuration object returned by Load and passed
// to every component at startup.
type Config struct {
	HTTP     HTTPConfig
	Database DatabaseConfig
	Broker   BrokerConfig
	Dispatch DispatchConfig
}

// HTTPConfig holds the collaborator API settings.
type HTTPConfig struct {
	// Port the gin server listens on.
	Port string
}

// DatabaseConfig holds the SQLite settings.
type DatabaseConfig struct {
	// Path to the database file. ":memory:" is valid and used by tests.
	Path string
}

// BrokerConfig holds the MQTT connection settings.
type BrokerConfig struct {
	Host     string
	Port     int
	ClientID string

	// TopicRoot is the first segment of every cell topic,
	// e.g. "disp" → disp/cmd/1, disp/evt/+, ...
	TopicRoot string

	// ConnectTimeout bounds the initial broker connection attempt. On
	// timeout the dispatcher falls back to a no-op publisher.
	ConnectTimeout time.Duration
}

// DispatchConfig controls the dispatch decision and its periodic triggers.
type DispatchConfig struct {
	// ReadyMaxAge is the staleness bound on node_status.last_seen. A node
	// whose last state message is older than this never counts as ready.
	ReadyMaxAge time.Duration

	// ReadyDebounce is the minimum time a node's ready flag must have held
	// its current value before the node counts as ready. Guards against
	// dispatching into a transient ready pulse.
	ReadyDebounce time.Duration

	// WatchdogInterval is the poll period of the readiness watchdog that
	// re-drives dispatch if a triggering edge was missed.
	WatchdogInterval time.Duration

	// StartupDispatchDelay is how long after process start the one-shot
	// initial dispatch fires, giving retained node state time to arrive.
	StartupDispatchDelay time.Duration

	// GracefulShutdownTimeout bounds the drain of the watchdog and broker
	// on shutdown.
	GracefulShutdownTimeout time.Duration
}

// Load reads the full configuration from the environment, applying defaults
// for anything unset, and validates it.
func Load() (*Config, error) {
	brokerPort, err := strconv.Atoi(getEnvOrDefault("MQTT_PORT", "1883"))
	if err != nil {
		return nil, fmt.Errorf("invalid MQTT_PORT: %w", err)
	}

	cfg := &Config{
		HTTP: HTTPConfig{
			Port: getEnvOrDefault("HTTP_PORT", "8080"),
		},
		Database: DatabaseConfig{
			Path: getEnvOrDefault("DB_PATH", "data/dispatcher.db"),
		},
		Broker: BrokerConfig{
			Host:           getEnvOrDefault("MQTT_BROKER", "127.0.0.1"),
			Port:           brokerPort,
			ClientID:       getEnvOrDefault("MQTT_CLIENT_ID", "pillcell-dispatcher"),
			TopicRoot:      getEnvOrDefault("TOPIC_ROOT", "disp"),
			ConnectTimeout: 5 * time.Second,
		},
		Dispatch: DefaultDispatchConfig(),
	}

	if v := os.Getenv("READY_MAX_AGE"); v != "" {
		if cfg.Dispatch.ReadyMaxAge, err = time.ParseDuration(v); err != nil {
			return nil, fmt.Errorf("invalid READY_MAX_AGE: %w", err)
		}
	}
	if v := os.Getenv("READY_DEBOUNCE"); v != "" {
		if cfg.Dispatch.ReadyDebounce, err = time.ParseDuration(v); err != nil {
			return nil, fmt.Errorf("invalid READY_DEBOUNCE: %w", err)
		}
	}
	if v := os.Getenv("WATCHDOG_INTERVAL"); v != "" {
		if cfg.Dispatch.WatchdogInterval, err = time.ParseDuration(v); err != nil {
			return nil, fmt.Errorf("invalid WATCHDOG_INTERVAL: %w", err)
		}
	}
	if v := os.Getenv("STARTUP_DISPATCH_DELAY"); v != "" {
		if cfg.Dispatch.StartupDispatchDelay, err = time.ParseDuration(v); err != nil {
			return nil, fmt.Errorf("invalid STARTUP_DISPATCH_DELAY: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// DefaultDispatchConfig returns the built-in dispatch timing defaults.
func DefaultDispatchConfig() DispatchConfig {
	return DispatchConfig{
		ReadyMaxAge:             10 * time.Second,
		ReadyDebounce:           500 * time.Millisecond,
		WatchdogInterval:        2 * time.Second,
		StartupDispatchDelay:    3 * time.Second,
		GracefulShutdownTimeout: 10 * time.Second,
	}
}

// Validate checks cross-field constraints that env parsing cannot.
func (c *Config) Validate() error {
	if c.Broker.Host == "" {
		return fmt.Errorf("broker host must not be empty")
	}
	if c.Broker.Port <= 0 || c.Broker.Port > 65535 {
		return fmt.Errorf("broker port %d out of range", c.Broker.Port)
	}
	if c.Broker.TopicRoot == "" {
		return fmt.Errorf("topic root must not be empty")
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database path must not be empty")
	}
	if c.Dispatch.ReadyMaxAge <= 0 {
		return fmt.Errorf("ready max age must be positive")
	}
	if c.Dispatch.ReadyDebounce < 0 {
		return fmt.Errorf("ready debounce must not be negative")
	}
	if c.Dispatch.WatchdogInterval <= 0 {
		return fmt.Errorf("watchdog interval must be positive")
	}
	return nil
}

func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

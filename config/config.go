// Package config holds the TOML configuration for the postale server.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Config is the root configuration, decoded from a TOML file.
type Config struct {
	Server  ServerConfig  `toml:"server"`
	Storage StorageConfig `toml:"storage"`
	Relay   RelayConfig   `toml:"relay"`
	Metrics MetricsConfig `toml:"metrics"`
	Logging LoggingConfig `toml:"logging"`
}

// ServerConfig holds the listener and mail domain settings.
type ServerConfig struct {
	Addr        string `toml:"addr"`         // Listen address (e.g., ":14300")
	Hostname    string `toml:"hostname"`     // Server hostname used in logs
	LocalDomain string `toml:"local_domain"` // Mail domain of local accounts (e.g., "campus.example.com")
}

// StorageConfig selects and configures the mailbox store backend.
type StorageConfig struct {
	Driver     string `toml:"driver"`      // "fs" (default) or "sqlite"
	DataDir    string `toml:"data_dir"`    // Root mail-data directory for the fs backend
	SQLitePath string `toml:"sqlite_path"` // Database file for the sqlite backend
}

// RelayConfig defines the external SMTP relay used for non-local mail.
type RelayConfig struct {
	Host        string `toml:"host"`         // Relay address (e.g., "smtp.example.com:587"); empty disables relaying
	Timeout     string `toml:"timeout"`      // Overall time bound for one relay attempt (default: "10s")
	TLS         bool   `toml:"tls"`          // Use direct TLS
	UseStartTLS bool   `toml:"use_starttls"` // Use STARTTLS instead of direct TLS
	TLSVerify   bool   `toml:"tls_verify"`   // Verify relay TLS certificates
	Username    string `toml:"username"`     // SASL PLAIN credentials (optional)
	Password    string `toml:"password"`
}

// MetricsConfig controls the optional Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `toml:"enabled"`
	Addr    string `toml:"addr"` // HTTP listen address (e.g., "localhost:9090")
}

// LoggingConfig controls log output, format and level.
type LoggingConfig struct {
	Output string `toml:"output"` // "stderr", "stdout", "syslog" or a file path
	Format string `toml:"format"` // "console" or "json"
	Level  string `toml:"level"`  // "debug", "info", "warn" or "error"
}

// NewDefaultConfig returns the application defaults, applied before the
// TOML file and command-line flags are layered on top.
func NewDefaultConfig() Config {
	hostname, _ := os.Hostname()
	return Config{
		Server: ServerConfig{
			Addr:        ":14300",
			Hostname:    hostname,
			LocalDomain: "campus.example.com",
		},
		Storage: StorageConfig{
			Driver:     "fs",
			DataDir:    "./maildata",
			SQLitePath: "./maildata.db",
		},
		Relay: RelayConfig{
			Timeout:   "10s",
			TLSVerify: true,
		},
		Metrics: MetricsConfig{
			Addr: "localhost:9090",
		},
		Logging: LoggingConfig{
			Output: "stderr",
			Format: "console",
			Level:  "info",
		},
	}
}

// Load decodes the TOML file at path over cfg. A missing file is not an
// error: the defaults stand.
func Load(path string, cfg *Config) error {
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

// Validate checks the configuration for values the server cannot start with.
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr must not be empty")
	}
	if c.Server.LocalDomain == "" {
		return fmt.Errorf("server.local_domain must not be empty")
	}
	switch c.Storage.Driver {
	case "fs":
		if c.Storage.DataDir == "" {
			return fmt.Errorf("storage.data_dir must not be empty for the fs driver")
		}
	case "sqlite":
		if c.Storage.SQLitePath == "" {
			return fmt.Errorf("storage.sqlite_path must not be empty for the sqlite driver")
		}
	default:
		return fmt.Errorf("unsupported storage driver: %s", c.Storage.Driver)
	}
	if _, err := c.Relay.GetTimeout(); err != nil {
		return fmt.Errorf("invalid relay.timeout: %w", err)
	}
	if c.Metrics.Enabled && c.Metrics.Addr == "" {
		return fmt.Errorf("metrics.addr must not be empty when metrics are enabled")
	}
	return nil
}

// IsConfigured returns true if an external relay host is set.
func (r *RelayConfig) IsConfigured() bool {
	return strings.TrimSpace(r.Host) != ""
}

// GetTimeout parses the relay timeout, defaulting to 10 seconds.
func (r *RelayConfig) GetTimeout() (time.Duration, error) {
	if r.Timeout == "" {
		return 10 * time.Second, nil
	}
	return time.ParseDuration(r.Timeout)
}

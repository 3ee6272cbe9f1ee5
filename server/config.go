package main

import (
	"fmt"
	"os"
	"strings"

	"lockwatch/common/config"
)

// Config represents the server configuration
type Config struct {
	Server   ServerConfig          `toml:"server"`
	Database config.DatabaseConfig `toml:"database"`
	Logging  config.LoggingConfig  `toml:"logging"`
}

// ServerConfig holds server-specific settings
type ServerConfig struct {
	HTTPPort        int    `toml:"http_port"`
	BindAddress     string `toml:"bind_address"` // Default: 0.0.0.0 for all interfaces
	MinAgentVersion string `toml:"min_agent_version"`
	// BrowseTTLMinutes is how long an unanswered directory-listing
	// request stays pending before it expires
	BrowseTTLMinutes int `toml:"browse_ttl_minutes"`
	// MissingAfterMinutes marks a device missing when it has not
	// reported for this long; 0 disables the sweep
	MissingAfterMinutes int `toml:"missing_after_minutes"`
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			HTTPPort:            9090,
			BindAddress:         "0.0.0.0",
			MinAgentVersion:     "",
			BrowseTTLMinutes:    15,
			MissingAfterMinutes: 0,
		},
		Database: config.DatabaseConfig{
			Path: "", // Empty = use platform default
		},
		Logging: config.LoggingConfig{
			Level: "info",
		},
	}
}

// LoadConfig loads configuration from TOML file with environment
// variable overrides
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	if _, err := os.Stat(configPath); err == nil {
		if err := config.LoadTOML(configPath, cfg); err != nil {
			return nil, err
		}
	}

	if val := os.Getenv("SERVER_HTTP_PORT"); val != "" {
		var port int
		if _, err := fmt.Sscanf(val, "%d", &port); err == nil {
			cfg.Server.HTTPPort = port
		}
	}
	if val := os.Getenv("BIND_ADDRESS"); val != "" {
		cfg.Server.BindAddress = val
	}
	if val := os.Getenv("MIN_AGENT_VERSION"); val != "" {
		cfg.Server.MinAgentVersion = val
	}
	if val := os.Getenv("BROWSE_TTL_MINUTES"); val != "" {
		var v int
		if _, err := fmt.Sscanf(val, "%d", &v); err == nil {
			cfg.Server.BrowseTTLMinutes = v
		}
	}
	if val := os.Getenv("MISSING_AFTER_MINUTES"); val != "" {
		var v int
		if _, err := fmt.Sscanf(val, "%d", &v); err == nil {
			cfg.Server.MissingAfterMinutes = v
		}
	}

	// Check prefixed first, then generic
	if val := os.Getenv("SERVER_LOG_LEVEL"); val != "" {
		cfg.Logging.Level = strings.ToLower(val)
	} else if val := os.Getenv("LOG_LEVEL"); val != "" {
		cfg.Logging.Level = strings.ToLower(val)
	}

	config.ApplyDatabaseEnvOverrides(&cfg.Database, "SERVER")

	return cfg, nil
}

// WriteDefaultConfig writes a default configuration file
func WriteDefaultConfig(configPath string) error {
	return config.WriteDefaultTOML(configPath, DefaultConfig())
}

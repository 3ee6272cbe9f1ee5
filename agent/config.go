package main

import (
	"os"
	"strconv"
	"strings"

	"lockwatch/common/config"
)

// AgentConfig represents the agent configuration
type AgentConfig struct {
	Server    ServerConnectionConfig `toml:"server"`
	Discovery DiscoveryConfig        `toml:"discovery"`
	Wipe      WipeConfig             `toml:"wipe"`
	Database  config.DatabaseConfig  `toml:"database"`
	Logging   config.LoggingConfig   `toml:"logging"`
}

// ServerConnectionConfig holds server polling settings
type ServerConnectionConfig struct {
	URL                 string `toml:"url"`
	PollIntervalSeconds int    `toml:"poll_interval_seconds"`
	TimeoutSeconds      int    `toml:"timeout_seconds"`
}

// DiscoveryConfig holds the loopback endpoint settings
type DiscoveryConfig struct {
	Port int `toml:"port"`
}

// WipeConfig holds remote-wipe settings. ApprovedFolders is the
// owner-curated allowlist; only paths inside it may ever be deleted.
type WipeConfig struct {
	ApprovedFolders []string `toml:"approved_folders"`
	ReportEvery     int      `toml:"report_every_files"`
}

// DefaultAgentConfig returns agent configuration with sensible defaults
func DefaultAgentConfig() *AgentConfig {
	return &AgentConfig{
		Server: ServerConnectionConfig{
			URL:                 "",
			PollIntervalSeconds: 5,
			TimeoutSeconds:      15,
		},
		Discovery: DiscoveryConfig{
			Port: 9123,
		},
		Wipe: WipeConfig{
			ApprovedFolders: []string{},
			ReportEvery:     25,
		},
		Database: config.DatabaseConfig{
			Path: "", // Will use default platform-specific path
		},
		Logging: config.LoggingConfig{
			Level: "info",
		},
	}
}

// LoadAgentConfig loads configuration from TOML file with environment
// variable overrides. Returns an error if the config file does not
// exist or cannot be parsed.
func LoadAgentConfig(configPath string) (*AgentConfig, error) {
	cfg := DefaultAgentConfig()

	if _, err := os.Stat(configPath); err != nil {
		return nil, err
	}
	if err := config.LoadTOML(configPath, cfg); err != nil {
		return nil, err
	}

	if val := os.Getenv("SERVER_URL"); val != "" {
		cfg.Server.URL = val
	}
	if val := os.Getenv("POLL_INTERVAL_SECONDS"); val != "" {
		if interval, err := strconv.Atoi(val); err == nil {
			cfg.Server.PollIntervalSeconds = interval
		}
	}
	if val := os.Getenv("DISCOVERY_PORT"); val != "" {
		if port, err := strconv.Atoi(val); err == nil {
			cfg.Discovery.Port = port
		}
	}
	if val := os.Getenv("APPROVED_FOLDERS"); val != "" {
		paths := []string{}
		for _, p := range strings.Split(val, string(os.PathListSeparator)) {
			p = strings.TrimSpace(p)
			if p != "" {
				paths = append(paths, p)
			}
		}
		cfg.Wipe.ApprovedFolders = paths
	}

	config.ApplyDatabaseEnvOverrides(&cfg.Database, "AGENT")
	config.ApplyLoggingEnvOverrides(&cfg.Logging)

	return cfg, nil
}

// WriteDefaultAgentConfig writes a default agent configuration file
func WriteDefaultAgentConfig(configPath string) error {
	return config.WriteDefaultTOML(configPath, DefaultAgentConfig())
}

// Package config provides shared configuration utilities for LockWatch components
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/BurntSushi/toml"
)

// FindConfigFile searches for a config file in multiple platform-appropriate locations.
// Returns the path and data if found, or an error if not found in any location.
func FindConfigFile(filename string, component string) (string, []byte, error) {
	searchPaths := GetConfigSearchPaths(filename, component)

	for _, path := range searchPaths {
		if data, err := os.ReadFile(path); err == nil {
			return path, data, nil
		}
	}

	return "", nil, fmt.Errorf("%s not found in any search path", filename)
}

// GetConfigSearchPaths returns an ordered list of paths to search for config files.
// component should be "agent" or "server".
func GetConfigSearchPaths(filename string, component string) []string {
	var searchPaths []string

	// 1. Component-specific system directory (highest priority for services)
	switch runtime.GOOS {
	case "windows":
		searchPaths = append(searchPaths, filepath.Join(os.Getenv("ProgramData"), "LockWatch", component, filename))
	case "darwin":
		searchPaths = append(searchPaths, filepath.Join("/Library/Application Support", "LockWatch", component, filename))
	default: // Linux and other Unix-like
		searchPaths = append(searchPaths, filepath.Join("/etc/lockwatch", component, filename))
	}

	// 2. User-specific config directory
	if homeDir, err := os.UserHomeDir(); err == nil {
		switch runtime.GOOS {
		case "windows":
			searchPaths = append(searchPaths, filepath.Join(homeDir, "AppData", "Local", "LockWatch", component, filename))
		case "darwin":
			searchPaths = append(searchPaths, filepath.Join(homeDir, "Library", "Application Support", "LockWatch", component, filename))
		default:
			searchPaths = append(searchPaths, filepath.Join(homeDir, ".config", "lockwatch", component, filename))
		}
	}

	// 3. Executable directory
	if exePath, err := os.Executable(); err == nil {
		searchPaths = append(searchPaths, filepath.Join(filepath.Dir(exePath), filename))
	}

	// 4. Current working directory (lowest priority)
	searchPaths = append(searchPaths, filepath.Join(".", filename))

	return searchPaths
}

// GetDataDirectory returns the appropriate directory for storing application data.
// When running as a service, returns the system-wide directory; interactively,
// the user-specific directory.
func GetDataDirectory(component string, isService bool) (string, error) {
	var dataDir string

	if isService {
		switch runtime.GOOS {
		case "windows":
			dataDir = filepath.Join(os.Getenv("ProgramData"), "LockWatch", component)
		default: // darwin, Linux
			dataDir = filepath.Join("/var/lib/lockwatch", component)
		}
	} else {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("could not get user home directory: %w", err)
		}

		switch runtime.GOOS {
		case "windows":
			dataDir = filepath.Join(homeDir, "AppData", "Local", "LockWatch", component)
		case "darwin":
			dataDir = filepath.Join(homeDir, "Library", "Application Support", "LockWatch", component)
		default:
			dataDir = filepath.Join(homeDir, ".local", "share", "lockwatch", component)
		}
	}

	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create data directory: %w", err)
	}

	return dataDir, nil
}

// GetLogDirectory returns the appropriate directory for storing logs
func GetLogDirectory(component string, isService bool) (string, error) {
	var logDir string

	if isService {
		switch runtime.GOOS {
		case "windows":
			logDir = filepath.Join(os.Getenv("ProgramData"), "LockWatch", component, "logs")
		default:
			logDir = filepath.Join("/var/log/lockwatch", component)
		}
	} else {
		logDir = "logs"
	}

	if err := os.MkdirAll(logDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create log directory: %w", err)
	}

	return logDir, nil
}

// WriteDefaultTOML writes a default TOML configuration file with the provided structure
func WriteDefaultTOML(configPath string, config interface{}) error {
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	file, err := os.Create(configPath)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer file.Close()

	encoder := toml.NewEncoder(file)
	if err := encoder.Encode(config); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// LoadTOML loads a TOML configuration file into the provided structure
func LoadTOML(configPath string, config interface{}) error {
	if _, err := os.Stat(configPath); err != nil {
		return fmt.Errorf("config file not found: %w", err)
	}

	if _, err := toml.DecodeFile(configPath, config); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// Common configuration structs that both agent and server use

// DatabaseConfig holds database settings. Driver selects the backend:
// "sqlite" (default, file path in Path) or "postgres" (DSN or discrete fields).
type DatabaseConfig struct {
	Driver              string `toml:"driver"`
	Path                string `toml:"path"`
	DSN                 string `toml:"dsn"`
	Host                string `toml:"host"`
	Port                int    `toml:"port"`
	User                string `toml:"user"`
	Password            string `toml:"password"`
	Name                string `toml:"name"`
	SSLMode             string `toml:"ssl_mode"`
	MaxOpenConns        int    `toml:"max_open_conns"`
	MaxIdleConns        int    `toml:"max_idle_conns"`
	ConnMaxLifetimeSecs int    `toml:"conn_max_lifetime_seconds"`
}

// EffectiveDriver returns the configured driver, defaulting to sqlite
func (c *DatabaseConfig) EffectiveDriver() string {
	if c.Driver == "" {
		return "sqlite"
	}
	return strings.ToLower(c.Driver)
}

// BuildDSN builds a connection string for the configured driver. For SQLite
// this is the file path; for PostgreSQL it prefers an explicit DSN and falls
// back to assembling one from the discrete fields.
func (c *DatabaseConfig) BuildDSN() string {
	switch c.EffectiveDriver() {
	case "postgres", "postgresql":
		if c.DSN != "" {
			return c.DSN
		}
		host := c.Host
		if host == "" {
			host = "localhost"
		}
		port := c.Port
		if port == 0 {
			port = 5432
		}
		sslMode := c.SSLMode
		if sslMode == "" {
			sslMode = "disable"
		}
		dsn := fmt.Sprintf("host=%s port=%d dbname=%s sslmode=%s", host, port, c.Name, sslMode)
		if c.User != "" {
			dsn += " user=" + c.User
		}
		if c.Password != "" {
			dsn += " password=" + c.Password
		}
		return dsn
	default:
		if c.DSN != "" {
			return c.DSN
		}
		return c.Path
	}
}

// LoggingConfig holds logging settings
type LoggingConfig struct {
	Level string `toml:"level"`
}

// ApplyDatabaseEnvOverrides applies environment variable overrides. prefix
// scopes the variables per component, e.g. "AGENT" reads AGENT_DB_PATH.
func ApplyDatabaseEnvOverrides(cfg *DatabaseConfig, prefix string) {
	lookup := func(key string) string {
		if prefix != "" {
			if val := os.Getenv(prefix + "_" + key); val != "" {
				return val
			}
		}
		return os.Getenv(key)
	}

	if val := lookup("DB_DRIVER"); val != "" {
		cfg.Driver = val
	}
	if val := lookup("DB_PATH"); val != "" {
		cfg.Path = val
	}
	if val := lookup("DB_DSN"); val != "" {
		cfg.DSN = val
	}
	if val := lookup("DB_HOST"); val != "" {
		cfg.Host = val
	}
	if val := lookup("DB_USER"); val != "" {
		cfg.User = val
	}
	if val := lookup("DB_PASSWORD"); val != "" {
		cfg.Password = val
	}
	if val := lookup("DB_NAME"); val != "" {
		cfg.Name = val
	}
}

// ApplyLoggingEnvOverrides applies logging environment variable overrides
func ApplyLoggingEnvOverrides(cfg *LoggingConfig) {
	if val := os.Getenv("LOG_LEVEL"); val != "" {
		cfg.Level = val
	}
}

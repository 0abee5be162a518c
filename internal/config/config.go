package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultCountry is the region assumed for phone numbers that carry no country code.
const DefaultCountry = "US"

var (
	// ErrInvalidCountryCode is returned when a region is not two upper-case letters.
	ErrInvalidCountryCode = errors.New("invalid country code (must be 2 characters; e.g. GB for Great Britain)")
	// ErrNoDefaultBackupDir is returned on platforms without a known backup location.
	ErrNoDefaultBackupDir = errors.New("can't guess the location of your backups; please specify a path with --backup-dir")
)

var countryPattern = regexp.MustCompile(`^[A-Z]{2}$`)

// Config represents the msgextract configuration
type Config struct {
	Country      string `yaml:"country,omitempty"`
	BackupDir    string `yaml:"backup_dir,omitempty"`
	SQLiteDriver string `yaml:"sqlite_driver,omitempty"`
	Timezone     string `yaml:"timezone,omitempty"`
	LogLevel     string `yaml:"log_level,omitempty"`
}

// GetConfigDir returns the XDG-compliant config directory
func GetConfigDir() (string, error) {
	// Explicit override (useful for tests and portable installs)
	if override := os.Getenv("MSGEXTRACT_CONFIG_DIR"); override != "" {
		return override, nil
	}

	var base string
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		base = xdg
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		base = filepath.Join(home, ".config")
	}
	return filepath.Join(base, "msgextract"), nil
}

// DefaultBackupDir returns the platform backup root used by iTunes / Finder.
func DefaultBackupDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return defaultBackupDirFor(runtime.GOOS, home)
}

func defaultBackupDirFor(goos, home string) (string, error) {
	switch goos {
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", "MobileSync", "Backup"), nil
	case "windows":
		return filepath.Join(home, "AppData", "Roaming", "Apple Computer", "MobileSync", "Backup"), nil
	}
	return "", ErrNoDefaultBackupDir
}

// ValidateCountry checks a two-letter region code such as US or GB.
func ValidateCountry(code string) error {
	if !countryPattern.MatchString(code) {
		return fmt.Errorf("%w: %q", ErrInvalidCountryCode, code)
	}
	return nil
}

// Load loads config from the config file
func Load() (*Config, error) {
	configDir, err := GetConfigDir()
	if err != nil {
		return nil, err
	}

	configPath := filepath.Join(configDir, "config.yaml")

	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			// Return default config
			cfg := &Config{}
			cfg.applyDefaults()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.applyDefaults()

	if err := ValidateCountry(cfg.Country); err != nil {
		return nil, fmt.Errorf("config %s: %w", configPath, err)
	}
	switch cfg.SQLiteDriver {
	case "sqlite", "sqlite3":
	default:
		return nil, fmt.Errorf("config %s: unknown sqlite_driver %q", configPath, cfg.SQLiteDriver)
	}
	if _, err := cfg.Location(); err != nil {
		return nil, fmt.Errorf("config %s: %w", configPath, err)
	}

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	c.Country = strings.ToUpper(strings.TrimSpace(c.Country))
	if c.Country == "" {
		c.Country = DefaultCountry
	}
	if c.SQLiteDriver == "" {
		c.SQLiteDriver = "sqlite"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}

// Location resolves the configured timezone; empty means the machine's local zone.
func (c *Config) Location() (*time.Location, error) {
	if strings.TrimSpace(c.Timezone) == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("failed to load timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// ResolveBackupDir picks the backup root: explicit override, then config, then platform default.
func (c *Config) ResolveBackupDir(override string) (string, error) {
	if override != "" {
		return override, nil
	}
	if c.BackupDir != "" {
		return c.BackupDir, nil
	}
	return DefaultBackupDir()
}

// Save saves the config to the config file
func (c *Config) Save() error {
	configDir, err := GetConfigDir()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	configPath := filepath.Join(configDir, "config.yaml")

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

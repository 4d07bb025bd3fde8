package storage

import (
	"encoding/json"
	"errors"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Storage backends selectable in the config.
const (
	BackendSQLite = "sqlite"
	BackendJSON   = "json"
)

const defaultFetchInterval = 60 * time.Second

// Config holds application configuration.
type Config struct {
	Backend       string `json:"backend"`
	DataDir       string `json:"dataDir"`
	LegacyPath    string `json:"legacyPath"`
	SyncURL       string `json:"syncURL"`
	DeviceName    string `json:"deviceName"`
	FetchInterval string `json:"fetchInterval"`
	LogFile       string `json:"logFile"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	dataDir := "."
	if dir, err := defaultDataDir(); err == nil {
		dataDir = dir
	}
	deviceName, err := os.Hostname()
	if err != nil || deviceName == "" {
		deviceName = "bm"
	}
	return Config{
		Backend:       BackendSQLite,
		DataDir:       dataDir,
		LegacyPath:    filepath.Join(dataDir, "legacy-bookmarks.json"),
		SyncURL:       "http://127.0.0.1:8080",
		DeviceName:    deviceName,
		FetchInterval: defaultFetchInterval.String(),
	}
}

// LoadConfig reads config from the JSON file.
// Creates the file with defaults if it doesn't exist. BM_* environment
// variables override file values.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			config := DefaultConfig()
			// Non-fatal: return defaults even if save fails
			_ = SaveConfig(path, &config)
			config.applyEnv()
			return &config, nil
		}
		return nil, err
	}

	var config Config
	if err := json.Unmarshal(data, &config); err != nil {
		return nil, err
	}

	// Apply defaults for missing fields
	defaults := DefaultConfig()
	if config.Backend == "" {
		config.Backend = defaults.Backend
	}
	if config.DataDir == "" {
		config.DataDir = defaults.DataDir
	}
	if config.LegacyPath == "" {
		config.LegacyPath = filepath.Join(config.DataDir, "legacy-bookmarks.json")
	}
	if config.SyncURL == "" {
		config.SyncURL = defaults.SyncURL
	}
	if config.DeviceName == "" {
		config.DeviceName = defaults.DeviceName
	}
	if config.FetchInterval == "" {
		config.FetchInterval = defaults.FetchInterval
	}

	config.applyEnv()
	return &config, nil
}

// SaveConfig writes config to the JSON file.
// Creates the directory if it doesn't exist.
func SaveConfig(path string, config *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(config, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

func (c *Config) applyEnv() {
	overrides := map[string]*string{
		"BM_BACKEND":        &c.Backend,
		"BM_DATA_DIR":       &c.DataDir,
		"BM_LEGACY_PATH":    &c.LegacyPath,
		"BM_SYNC_URL":       &c.SyncURL,
		"BM_DEVICE_NAME":    &c.DeviceName,
		"BM_FETCH_INTERVAL": &c.FetchInterval,
		"BM_LOG_FILE":       &c.LogFile,
	}
	for name, field := range overrides {
		if value := strings.TrimSpace(os.Getenv(name)); value != "" {
			*field = value
		}
	}
}

// Interval returns the periodic fetch interval, falling back to 60s.
func (c *Config) Interval() time.Duration {
	d, err := time.ParseDuration(c.FetchInterval)
	if err != nil || d <= 0 {
		if c.FetchInterval != "" {
			log.Printf("invalid fetchInterval=%q, using fallback %s", c.FetchInterval, defaultFetchInterval)
		}
		return defaultFetchInterval
	}
	return d
}

// TreePath returns the bookmark storage file for the configured backend.
func (c *Config) TreePath() string {
	if c.Backend == BackendJSON {
		return filepath.Join(c.DataDir, "bookmarks.json")
	}
	return filepath.Join(c.DataDir, "bookmarks.db")
}

// SettingsPath returns the metadata file used by the JSON backend.
func (c *Config) SettingsPath() string {
	return filepath.Join(c.DataDir, "settings.json")
}

// OutboxPath returns the file backing the outbound event queue.
func (c *Config) OutboxPath() string {
	return filepath.Join(c.DataDir, "outbox.json")
}

// DefaultConfigFilePath returns the default config path: ~/.config/bm/config.json
func DefaultConfigFilePath() (string, error) {
	dir, err := defaultDataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.json"), nil
}

func defaultDataDir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, ".config", "bm"), nil
}

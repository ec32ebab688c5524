package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// HolidayConfig selects the external holiday calendar source for the
// month overlay. Source is "api" (public-holiday HTTP API), "ics"
// (subscribed ICS feed) or "none".
type HolidayConfig struct {
	Source  string `yaml:"source"`
	Country string `yaml:"country"`
	ICSURL  string `yaml:"ics_url,omitempty"`
}

// Config is the top-level client configuration.
type Config struct {
	// AuthURL is the base URL of the hosted authentication service.
	AuthURL string `yaml:"auth_url"`

	// StoreURL is the WebSocket endpoint of the hosted document store.
	StoreURL string `yaml:"store_url"`

	// APIKey is sent with every auth request, identifying this deployment.
	APIKey string `yaml:"api_key"`

	// DBPath is the local SQLite file holding persisted session state.
	DBPath string `yaml:"db_path"`

	// Timezone is the IANA zone used for "today" highlighting.
	Timezone string `yaml:"timezone"`

	// RefreshCron schedules the daily re-render and holiday cache refresh.
	RefreshCron string `yaml:"refresh"`

	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	Holidays HolidayConfig `yaml:"holidays"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		AuthURL:     "https://auth.example.org",
		StoreURL:    "wss://store.example.org/v1/stream",
		DBPath:      "exocal.db",
		Timezone:    "Local",
		RefreshCron: "0 0 * * *",
		LogLevel:    "info",
		LogFormat:   "text",
		Holidays: HolidayConfig{
			Source:  "none",
			Country: "US",
		},
	}
}

// Normalize fills missing values with defaults so partially filled config
// files from older versions still behave.
func (c *Config) Normalize() {
	def := DefaultConfig()
	if c.AuthURL == "" {
		c.AuthURL = def.AuthURL
	}
	if c.StoreURL == "" {
		c.StoreURL = def.StoreURL
	}
	if c.DBPath == "" {
		c.DBPath = def.DBPath
	}
	if c.Timezone == "" {
		c.Timezone = def.Timezone
	}
	if c.RefreshCron == "" {
		c.RefreshCron = def.RefreshCron
	}
	if c.LogLevel == "" {
		c.LogLevel = def.LogLevel
	}
	if c.LogFormat == "" {
		c.LogFormat = def.LogFormat
	}
	switch c.Holidays.Source {
	case "api", "ics", "none":
	default:
		c.Holidays.Source = "none"
	}
	if c.Holidays.Country == "" {
		c.Holidays.Country = def.Holidays.Country
	}
}

// Load reads the YAML config at path. On first run (file missing) it writes
// a default config with 0600 permissions and returns it.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				return cfg, err
			}
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.Normalize()
	return &cfg, nil
}

// Save writes cfg to path atomically (temp file + rename) with 0600
// permissions, creating the parent directory if needed.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".exocal-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

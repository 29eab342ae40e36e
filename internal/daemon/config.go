// Package daemon manages the shapeq runtime lifecycle and configuration.
package daemon

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/tutu-network/shapeq/internal/domain"
	"github.com/tutu-network/shapeq/internal/infra/catalog"
	"github.com/tutu-network/shapeq/internal/infra/observability"
)

// Config holds all daemon configuration.
type Config struct {
	API       APIConfig       `toml:"api"`
	Delay     DelayConfig     `toml:"delay"`
	Backend   BackendConfig   `toml:"backend"`
	Logging   LoggingConfig   `toml:"logging"`
	Telemetry TelemetryConfig `toml:"telemetry"`
	Journal   JournalConfig   `toml:"journal"`
	Catalog   []CatalogEntry  `toml:"catalog,omitempty"`
}

// APIConfig controls the scheduler control API.
type APIConfig struct {
	Host        string   `toml:"host"`
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
}

// DelayConfig controls the delay simulation service.
type DelayConfig struct {
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	AllowedOrigin string `toml:"allowed_origin"`
	// Embedded runs the delay service inside `shapeq serve`.
	Embedded bool `toml:"embedded"`
}

// BackendConfig tells the sequential scheduler where the delay service is.
type BackendConfig struct {
	BaseURL string `toml:"base_url"`
	Origin  string `toml:"origin"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	Level     string   `toml:"level"`
	Format    string   `toml:"format"`
	Outputs   []string `toml:"outputs"`
	File      string   `toml:"file"`
	MaxSizeMB int      `toml:"max_size_mb"`
	MaxFiles  int      `toml:"max_files"`
}

// TelemetryConfig controls metrics exposure.
type TelemetryConfig struct {
	Prometheus bool `toml:"prometheus"`
}

// JournalConfig controls the in-memory session journal.
type JournalConfig struct {
	Enabled bool `toml:"enabled"`
}

// CatalogEntry overrides one kind of the built-in catalog.
type CatalogEntry struct {
	Kind     string `toml:"kind"`
	Label    string `toml:"label"`
	Duration string `toml:"duration"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		API: APIConfig{
			Host:        "127.0.0.1",
			Port:        7878,
			CORSOrigins: []string{"*"},
		},
		Delay: DelayConfig{
			Host:          "127.0.0.1",
			Port:          3001,
			AllowedOrigin: "http://localhost:5173",
			Embedded:      true,
		},
		Backend: BackendConfig{
			BaseURL: "http://127.0.0.1:3001",
			Origin:  "http://localhost:5173",
		},
		Logging: LoggingConfig{
			Level:     "info",
			Format:    "text",
			Outputs:   []string{"stderr"},
			File:      filepath.Join(shapeqHome(), "shapeq.log"),
			MaxSizeMB: 50,
			MaxFiles:  5,
		},
		Telemetry: TelemetryConfig{Prometheus: true},
		Journal:   JournalConfig{Enabled: true},
	}
}

// LoadConfig reads config from ~/.shapeq/config.toml, falling back to defaults.
func LoadConfig() (Config, error) {
	return LoadConfigFile(ConfigPath())
}

// LoadConfigFile reads config from path, falling back to defaults when the
// file does not exist.
func LoadConfigFile(path string) (Config, error) {
	cfg := DefaultConfig()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil // No config file yet, use defaults
	}

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// SaveConfig writes the config to ~/.shapeq/config.toml.
func SaveConfig(cfg Config) error {
	path := ConfigPath()
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	encoder := toml.NewEncoder(f)
	return encoder.Encode(cfg)
}

// BuildCatalog returns the configured catalog: the built-in table unless
// [[catalog]] entries replace it.
func (c Config) BuildCatalog() (*catalog.Catalog, error) {
	if len(c.Catalog) == 0 {
		return catalog.Default(), nil
	}
	entries := make([]catalog.Entry, 0, len(c.Catalog))
	for _, e := range c.Catalog {
		d, err := time.ParseDuration(e.Duration)
		if err != nil {
			return nil, fmt.Errorf("%w: kind %q duration %q: %v", domain.ErrInvalidCatalog, e.Kind, e.Duration, err)
		}
		entries = append(entries, catalog.Entry{
			Kind:            domain.TaskKind(e.Kind),
			Label:           e.Label,
			ServiceDuration: d,
		})
	}
	return catalog.New(entries)
}

// LogConfig converts [logging] for the observability package.
func (c Config) LogConfig() observability.LogConfig {
	return observability.LogConfig{
		Level:     c.Logging.Level,
		Format:    c.Logging.Format,
		Outputs:   c.Logging.Outputs,
		File:      c.Logging.File,
		MaxSizeMB: c.Logging.MaxSizeMB,
		MaxFiles:  c.Logging.MaxFiles,
	}
}

// shapeqHome returns the shapeq data directory.
func shapeqHome() string {
	if env := os.Getenv("SHAPEQ_HOME"); env != "" {
		return env
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".shapeq")
}

// ShapeqHome is exported for use by other packages.
func ShapeqHome() string {
	return shapeqHome()
}

// ConfigPath returns the config file location.
func ConfigPath() string {
	return filepath.Join(shapeqHome(), "config.toml")
}

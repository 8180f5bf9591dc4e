package shared

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/adrg/xdg"
)

//go:embed config.example.toml
var exampleConf []byte

const (
	appName           = "cadence"
	dbFileName        = "library.db"
	defaultSchema     = "library"
	defaultCancelWait = time.Second
)

// Config represents the application configuration loaded from a TOML file.
type Config struct {
	Database     DatabaseConfig     `toml:"database"`
	Library      LibraryConfig      `toml:"library"`
	Transactions TransactionsConfig `toml:"transactions"`
	Log          LogConfig          `toml:"log"`
	Metrics      MetricsConfig      `toml:"metrics"`
}

// DatabaseConfig contains database connection settings.
type DatabaseConfig struct {
	Path         string `toml:"path"`           // Empty resolves to the XDG data directory
	Schema       string `toml:"schema"`         // Which USE block of the bootstrap script applies
	BusyTimeout  int    `toml:"busy_timeout"`   // Milliseconds
	MaxOpenConns int    `toml:"max_open_conns"` // Upper bound on worker connections
	MaxIdleConns int    `toml:"max_idle_conns"`
}

// LibraryConfig contains settings for the managed library tree and imports.
type LibraryConfig struct {
	Root         string   `toml:"root"`
	CopyOnImport bool     `toml:"copy_on_import"`
	Extensions   []string `toml:"extensions"`
	ScanRate     float64  `toml:"scan_rate"` // Files per second, 0 is unlimited
}

// TransactionsConfig contains transaction engine settings.
type TransactionsConfig struct {
	CancelGrace string `toml:"cancel_grace"`
}

// LogConfig contains logger settings.
type LogConfig struct {
	Level string `toml:"level"`
}

// MetricsConfig contains the optional prometheus listener.
type MetricsConfig struct {
	Addr string `toml:"addr"`
}

// LoadConfig reads and parses a TOML configuration file from the specified path.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := toml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// DefaultConfig returns a Config with sensible defaults loaded from the embedded example config.
func DefaultConfig() *Config {
	var config Config
	if err := toml.Unmarshal(exampleConf, &config); err != nil {
		panic(fmt.Sprintf("failed to parse embedded default config: %v", err))
	}
	return &config
}

// CreateConfigFile creates a config.toml file at the specified path using the embedded example config.
func CreateConfigFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := os.WriteFile(path, exampleConf, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Validate checks values that cannot be defaulted silently.
func (c *Config) Validate() error {
	if c.Library.ScanRate < 0 {
		return fmt.Errorf("%w: library.scan_rate must not be negative", ErrInvalidConfig)
	}
	if c.Transactions.CancelGrace != "" {
		if _, err := time.ParseDuration(c.Transactions.CancelGrace); err != nil {
			return fmt.Errorf("%w: transactions.cancel_grace: %v", ErrInvalidConfig, err)
		}
	}
	return nil
}

// DatabasePath returns the configured database path, falling back to the XDG data directory.
func (c *Config) DatabasePath() (string, error) {
	if c.Database.Path != "" {
		return c.Database.Path, nil
	}
	return xdg.DataFile(filepath.Join(appName, dbFileName))
}

// SchemaName returns the bootstrap schema block to apply.
func (c *Config) SchemaName() string {
	if c.Database.Schema == "" {
		return defaultSchema
	}
	return c.Database.Schema
}

// CancelGrace returns how long a canceled transaction has to exit on its own.
func (c *Config) CancelGrace() time.Duration {
	d, err := time.ParseDuration(c.Transactions.CancelGrace)
	if err != nil || d <= 0 {
		return defaultCancelWait
	}
	return d
}

// LibraryRoot returns the managed library root, falling back to the XDG music directory.
func (c *Config) LibraryRoot() string {
	if c.Library.Root != "" {
		return c.Library.Root
	}
	return filepath.Join(xdg.UserDirs.Music, appName)
}

// ExtensionSet returns the configured audio extensions as a lowercase lookup set, with leading dots.
func (c *Config) ExtensionSet() map[string]struct{} {
	set := make(map[string]struct{}, len(c.Library.Extensions))
	for _, ext := range c.Library.Extensions {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		set[ext] = struct{}{}
	}
	return set
}

// Package config handles configuration loading, validation, and management for imecore.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
)

// Version is the current configuration schema version.
const Version = 1

// Config holds the complete input method configuration.
type Config struct {
	// Version is the configuration schema version.
	Version int `toml:"version" json:"version" yaml:"version"`

	// Engine configures key handling and the editing session.
	Engine EngineConfig `toml:"engine" json:"engine" yaml:"engine"`

	// Dictionary configures the code tables.
	Dictionary DictionaryConfig `toml:"dictionary" json:"dictionary" yaml:"dictionary"`

	// UserDict configures the learned phrase store.
	UserDict UserDictConfig `toml:"userdict" json:"userdict" yaml:"userdict"`

	// Filters configures candidate filters.
	Filters FiltersConfig `toml:"filters" json:"filters" yaml:"filters"`

	// Logging configuration.
	Logging LoggingConfig `toml:"logging" json:"logging" yaml:"logging"`

	// IBus configures the IBus bridge.
	IBus IBusConfig `toml:"ibus" json:"ibus" yaml:"ibus"`

	// mu protects concurrent access to the config.
	mu sync.RWMutex `toml:"-" json:"-" yaml:"-"`
}

// EngineConfig holds editing behavior.
type EngineConfig struct {
	// PageSize is the number of candidates per menu page.
	PageSize int `toml:"page_size" json:"page_size" yaml:"page_size"`

	// AutoCommit commits as soon as the last segment is selected.
	AutoCommit bool `toml:"auto_commit" json:"auto_commit" yaml:"auto_commit"`

	// SoftCursor shows a caret symbol inside the preedit.
	SoftCursor bool `toml:"soft_cursor" json:"soft_cursor" yaml:"soft_cursor"`

	// Options are session options set when a session starts.
	Options map[string]bool `toml:"options" json:"options" yaml:"options"`
}

// DictionaryConfig holds code table settings.
type DictionaryConfig struct {
	// Tables are code table files, loaded in order.
	Tables []string `toml:"tables" json:"tables" yaml:"tables"`

	// CompletionLimit caps completion candidates per segment; 0 disables
	// completion.
	CompletionLimit int `toml:"completion_limit" json:"completion_limit" yaml:"completion_limit"`
}

// UserDictConfig holds user dictionary settings.
type UserDictConfig struct {
	// Enabled turns learning and user candidates on.
	Enabled bool `toml:"enabled" json:"enabled" yaml:"enabled"`

	// Path is the SQLite database file.
	Path string `toml:"path" json:"path" yaml:"path"`

	// CacheTTLSec is the lookup cache lifetime in seconds.
	CacheTTLSec int `toml:"cache_ttl_sec" json:"cache_ttl_sec" yaml:"cache_ttl_sec"`

	// Boost is added to learned phrase weights.
	Boost float64 `toml:"boost" json:"boost" yaml:"boost"`
}

// FiltersConfig holds candidate filter settings.
type FiltersConfig struct {
	// Uniquify merges candidates with the same text.
	Uniquify bool `toml:"uniquify" json:"uniquify" yaml:"uniquify"`

	// Width converts candidate text between full and half width.
	Width WidthFilterConfig `toml:"width" json:"width" yaml:"width"`

	// Convert rewrites candidate text through a phrase map.
	Convert ConvertFilterConfig `toml:"convert" json:"convert" yaml:"convert"`
}

// WidthFilterConfig configures width conversion.
type WidthFilterConfig struct {
	Enabled bool `toml:"enabled" json:"enabled" yaml:"enabled"`

	// Mode is "full", "half" or "fold".
	Mode string `toml:"mode" json:"mode" yaml:"mode"`

	// Option is the session option gating the filter.
	Option string `toml:"option" json:"option" yaml:"option"`
}

// ConvertFilterConfig configures phrase map conversion.
type ConvertFilterConfig struct {
	Enabled bool `toml:"enabled" json:"enabled" yaml:"enabled"`

	// MapPath is the phrase map file.
	MapPath string `toml:"map_path" json:"map_path" yaml:"map_path"`

	// Option is the session option gating the filter.
	Option string `toml:"option" json:"option" yaml:"option"`

	// Tips is "none", "char" or "all".
	Tips string `toml:"tips" json:"tips" yaml:"tips"`

	ShowInComment  bool     `toml:"show_in_comment" json:"show_in_comment" yaml:"show_in_comment"`
	InheritComment bool     `toml:"inherit_comment" json:"inherit_comment" yaml:"inherit_comment"`
	ExcludedTypes  []string `toml:"excluded_types" json:"excluded_types" yaml:"excluded_types"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	// Level is the minimum log level: "debug", "info", "warn", "error".
	Level string `toml:"level" json:"level" yaml:"level"`

	// Format is the log format: "text" or "json".
	Format string `toml:"format" json:"format" yaml:"format"`

	// Output is "stdout", "stderr", "file" or "both".
	Output string `toml:"output" json:"output" yaml:"output"`

	// FilePath is the log file path.
	FilePath string `toml:"file_path" json:"file_path" yaml:"file_path"`

	// MaxSizeMB is the maximum log file size before rotation.
	MaxSizeMB int `toml:"max_size_mb" json:"max_size_mb" yaml:"max_size_mb"`

	// MaxBackups is the number of rotated files to keep.
	MaxBackups int `toml:"max_backups" json:"max_backups" yaml:"max_backups"`

	// MaxAgeDays is the maximum age of rotated files.
	MaxAgeDays int `toml:"max_age_days" json:"max_age_days" yaml:"max_age_days"`

	// Compress gzips rotated files.
	Compress bool `toml:"compress" json:"compress" yaml:"compress"`
}

// IBusConfig holds IBus bridge settings.
type IBusConfig struct {
	// BusName is the well-known D-Bus name to request.
	BusName string `toml:"bus_name" json:"bus_name" yaml:"bus_name"`

	// EngineName is the engine name registered with IBus.
	EngineName string `toml:"engine_name" json:"engine_name" yaml:"engine_name"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	dir := DataDir()

	return &Config{
		Version: Version,
		Engine: EngineConfig{
			PageSize:   5,
			AutoCommit: true,
			SoftCursor: false,
			Options:    map[string]bool{},
		},
		Dictionary: DictionaryConfig{
			Tables:          []string{},
			CompletionLimit: 50,
		},
		UserDict: UserDictConfig{
			Enabled:     true,
			Path:        filepath.Join(dir, "user.db"),
			CacheTTLSec: 300,
			Boost:       100,
		},
		Filters: FiltersConfig{
			Uniquify: true,
			Width: WidthFilterConfig{
				Enabled: false,
				Mode:    "full",
				Option:  "full_shape",
			},
			Convert: ConvertFilterConfig{
				Enabled:       false,
				Option:        "convert",
				Tips:          "none",
				ExcludedTypes: []string{},
			},
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "text",
			Output:     "stderr",
			FilePath:   filepath.Join(PlatformLogDir(), "imecore.log"),
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 30,
			Compress:   true,
		},
		IBus: IBusConfig{
			BusName:    "org.freedesktop.IBus.Imecore",
			EngineName: "imecore",
		},
	}
}

// ConfigPath returns the default configuration file path.
func ConfigPath() string {
	return filepath.Join(PlatformConfigDir(), "config.toml")
}

// DataDir returns the base data directory.
// IMECORE_DATA_DIR overrides the platform default.
func DataDir() string {
	if envDir := os.Getenv("IMECORE_DATA_DIR"); envDir != "" {
		return envDir
	}
	return PlatformDataDir()
}

// Load reads configuration from path, or from ConfigPath when path is
// empty. A missing file yields the defaults. The format follows the file
// extension; unknown extensions are auto-detected.
func Load(path string) (*Config, error) {
	if path == "" {
		path = ConfigPath()
	}
	cfg, err := loadConfigFromFile(path)
	if err != nil {
		return nil, err
	}
	cfg.ApplyEnvOverrides()
	return cfg, nil
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	return ValidateConfig(c)
}

// EnsureDirectories creates the directories the configuration points at.
func (c *Config) EnsureDirectories() error {
	dirs := []string{filepath.Dir(c.UserDict.Path)}
	if c.Logging.Output == "file" || c.Logging.Output == "both" {
		dirs = append(dirs, filepath.Dir(c.Logging.FilePath))
	}
	for _, dir := range dirs {
		if dir == "" || dir == "." {
			continue
		}
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	return nil
}

// ApplyEnvOverrides applies environment variable overrides.
// Variables are prefixed with IMECORE_.
func (c *Config) ApplyEnvOverrides() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if v := os.Getenv("IMECORE_TABLES"); v != "" {
		c.Dictionary.Tables = filepath.SplitList(v)
	}
	if v := os.Getenv("IMECORE_USERDICT_PATH"); v != "" {
		c.UserDict.Path = v
	}
	if v := os.Getenv("IMECORE_PAGE_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Engine.PageSize = n
		}
	}
	if v := os.Getenv("IMECORE_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("IMECORE_LOG_PATH"); v != "" {
		c.Logging.FilePath = v
	}
}

// Clone returns a deep copy of the configuration.
func (c *Config) Clone() *Config {
	c.mu.RLock()
	defer c.mu.RUnlock()

	clone := &Config{
		Version:    c.Version,
		Engine:     c.Engine,
		Dictionary: c.Dictionary,
		UserDict:   c.UserDict,
		Filters:    c.Filters,
		Logging:    c.Logging,
		IBus:       c.IBus,
	}
	clone.Engine.Options = make(map[string]bool, len(c.Engine.Options))
	for k, v := range c.Engine.Options {
		clone.Engine.Options[k] = v
	}
	clone.Dictionary.Tables = append([]string{}, c.Dictionary.Tables...)
	clone.Filters.Convert.ExcludedTypes = append([]string{}, c.Filters.Convert.ExcludedTypes...)
	return clone
}

// String renders the configuration as TOML.
func (c *Config) String() string {
	data, err := encodeTOML(c)
	if err != nil {
		return fmt.Sprintf("config: %v", err)
	}
	return string(data)
}

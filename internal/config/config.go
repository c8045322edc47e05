// Package config provides configuration structures and defaults for graveldoc.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/MikhailWahib/graveldoc/internal/storage"
)

// MaxDocumentSizeLimit is the largest accepted max_document_size. The stored
// JSON encoding of a document can be several times its measured size (six
// bytes per one-byte bool or control character), and it must stay within
// one storage field.
const MaxDocumentSizeLimit = storage.MaxFieldLength / 8

const (
	defaultMaxMemtableSize   = 32 * 1024 * 1024
	defaultMaxTablesPerTier  = 4
	defaultIndexInterval     = 16
	defaultWALFlushThreshold = 64 * 1024
	defaultWALFlushInterval  = 10 * time.Millisecond
	defaultMaxDocumentSize   = 1 << 20
	defaultMaxNestingDepth   = 16
	defaultLogLevel          = "warn"
	defaultLogFormat         = "json"
)

// Config holds the tunable parameters for storage, document limits and logging.
type Config struct {
	MaxMemtableSize   int           `yaml:"max_memtable_size"`
	MaxTablesPerTier  int           `yaml:"max_tables_per_tier"`
	IndexInterval     int           `yaml:"index_interval"`
	WALFlushThreshold int           `yaml:"wal_flush_threshold"`
	WALFlushInterval  time.Duration `yaml:"wal_flush_interval"`

	// MaxDocumentSize is the largest document, system fields included, that
	// may be written.
	MaxDocumentSize int `yaml:"max_document_size"`
	// MaxNestingDepth bounds how deeply arrays and objects may nest.
	MaxNestingDepth int `yaml:"max_nesting_depth"`

	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
}

// DefaultConfig returns a Config struct populated with default values.
func DefaultConfig() *Config {
	return &Config{
		MaxMemtableSize:   defaultMaxMemtableSize,
		MaxTablesPerTier:  defaultMaxTablesPerTier,
		IndexInterval:     defaultIndexInterval,
		WALFlushThreshold: defaultWALFlushThreshold,
		WALFlushInterval:  defaultWALFlushInterval,
		MaxDocumentSize:   defaultMaxDocumentSize,
		MaxNestingDepth:   defaultMaxNestingDepth,
		LogLevel:          defaultLogLevel,
		LogFormat:         defaultLogFormat,
	}
}

// FillDefaults sets any zero-value fields in the Config to their default values.
func (c *Config) FillDefaults() {
	def := DefaultConfig()
	if c.MaxMemtableSize == 0 {
		c.MaxMemtableSize = def.MaxMemtableSize
	}
	if c.MaxTablesPerTier == 0 {
		c.MaxTablesPerTier = def.MaxTablesPerTier
	}
	if c.IndexInterval == 0 {
		c.IndexInterval = def.IndexInterval
	}
	if c.WALFlushThreshold == 0 {
		c.WALFlushThreshold = def.WALFlushThreshold
	}
	if c.WALFlushInterval == 0 {
		c.WALFlushInterval = def.WALFlushInterval
	}
	if c.MaxDocumentSize == 0 {
		c.MaxDocumentSize = def.MaxDocumentSize
	}
	if c.MaxNestingDepth == 0 {
		c.MaxNestingDepth = def.MaxNestingDepth
	}
	if c.LogLevel == "" {
		c.LogLevel = def.LogLevel
	}
	if c.LogFormat == "" {
		c.LogFormat = def.LogFormat
	}
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error
	if c.MaxMemtableSize < 0 {
		errs = append(errs, fmt.Errorf("max_memtable_size must not be negative"))
	}
	if c.MaxTablesPerTier < 1 {
		errs = append(errs, fmt.Errorf("max_tables_per_tier must be at least 1"))
	}
	if c.IndexInterval < 1 {
		errs = append(errs, fmt.Errorf("index_interval must be at least 1"))
	}
	if c.WALFlushThreshold < 0 {
		errs = append(errs, fmt.Errorf("wal_flush_threshold must not be negative"))
	}
	if c.WALFlushInterval < 0 {
		errs = append(errs, fmt.Errorf("wal_flush_interval must not be negative"))
	}
	if c.MaxDocumentSize < 1 {
		errs = append(errs, fmt.Errorf("max_document_size must be positive"))
	}
	if c.MaxDocumentSize > MaxDocumentSizeLimit {
		errs = append(errs, fmt.Errorf("max_document_size must not exceed %d", MaxDocumentSizeLimit))
	}
	if c.MaxNestingDepth < 1 {
		errs = append(errs, fmt.Errorf("max_nesting_depth must be positive"))
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error", "disabled":
	default:
		errs = append(errs, fmt.Errorf("log_level %q is not one of debug, info, warn, error, disabled", c.LogLevel))
	}
	switch c.LogFormat {
	case "json", "console":
	default:
		errs = append(errs, fmt.Errorf("log_format %q is not one of json, console", c.LogFormat))
	}
	return errors.Join(errs...)
}

// Load reads a YAML config file. Settings missing from the file take their
// default values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid config file: %w", err)
	}
	cfg.FillDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config file %s: %w", path, err)
	}
	return &cfg, nil
}

package config

import (
	"strings"

	"github.com/cockroachdb/errors"
)

// Config is the full process configuration (JSON or YAML).
type Config struct {
	Logging        LoggingConfig        `json:"logging" yaml:"logging"`
	ChannelLogging ChannelLoggingConfig `json:"channel_logging" yaml:"channel_logging"`
	Storage        *StorageConfig       `json:"storage,omitempty" yaml:"storage"`
}

// LoggingConfig controls the process-wide diagnostic logger.
//
// Example:
//
//	"logging": { "level": "INFO", "file": "./logs/botlog.log" }
type LoggingConfig struct {
	Level  string `json:"level" yaml:"level"`
	File   string `json:"file,omitempty" yaml:"file"`     // empty: console
	Format string `json:"format,omitempty" yaml:"format"` // empty: default pattern
}

// ChannelLoggingConfig controls per-channel activity logs.
//
// With db=true, records go to the storage backend (and are silently dropped if
// storage is disabled). Otherwise they go to <dir>/<channel>/log.txt.
type ChannelLoggingConfig struct {
	Dir string `json:"dir" yaml:"dir"`
	DB  bool   `json:"db" yaml:"db"`
}

// StorageConfig controls the optional persistence layer.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./data/botlog.db" }
type StorageConfig struct {
	Driver      string   `json:"driver" yaml:"driver"`
	Path        string   `json:"path,omitempty" yaml:"path"` // sqlite
	DSN         string   `json:"dsn,omitempty" yaml:"dsn"`   // postgres (do not log)
	BusyTimeout Duration `json:"busy_timeout,omitempty" yaml:"busy_timeout"`
}

const (
	DefaultLogLevel      = "INFO"
	DefaultChannelLogDir = "./logs/channels"
)

// ApplyDefaults fills omitted fields in place.
func (c *Config) ApplyDefaults() {
	if strings.TrimSpace(c.Logging.Level) == "" {
		c.Logging.Level = DefaultLogLevel
	}
	if strings.TrimSpace(c.ChannelLogging.Dir) == "" {
		c.ChannelLogging.Dir = DefaultChannelLogDir
	}
}

// Validate reports configuration errors that would otherwise surface later.
func (c *Config) Validate() error {
	switch strings.ToUpper(strings.TrimSpace(c.Logging.Level)) {
	case "", "TRACE", "DEBUG", "INFO", "WARN", "WARNING", "ERROR", "CRITICAL", "FATAL":
	default:
		return errors.Newf("logging.level: unknown level %q", c.Logging.Level)
	}
	if c.Storage != nil {
		switch strings.ToLower(strings.TrimSpace(c.Storage.Driver)) {
		case "", "none":
		case "sqlite", "sqlite3":
			if strings.TrimSpace(c.Storage.Path) == "" {
				return errors.New("storage.path is required for sqlite")
			}
		case "postgres", "postgresql":
			if strings.TrimSpace(c.Storage.DSN) == "" {
				return errors.New("storage.dsn is required for postgres")
			}
		default:
			return errors.Newf("storage.driver: unknown driver %q", c.Storage.Driver)
		}
		if c.Storage.BusyTimeout < 0 {
			return errors.New("storage.busy_timeout must be >= 0")
		}
	}
	return nil
}

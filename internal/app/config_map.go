package app

import (
	"strings"
	"time"

	"github.com/cockroachdb/errors"

	"botlog/internal/chanlog"
	"botlog/internal/config"
	"botlog/internal/storage"
	logx "botlog/pkg/logx"
)

func mapLogConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:  cfg.Logging.Level,
		File:   strings.TrimSpace(cfg.Logging.File),
		Format: cfg.Logging.Format,
	}
}

func mapChannelConfig(cfg *config.Config) chanlog.Config {
	return chanlog.Config{
		Dir: strings.TrimSpace(cfg.ChannelLogging.Dir),
		DB:  cfg.ChannelLogging.DB,
	}
}

// MapStorageConfig converts the storage section. The bool is false when
// storage is disabled.
func MapStorageConfig(cfg *config.Config) (storage.Config, bool, error) {
	if cfg == nil || cfg.Storage == nil {
		return storage.Config{}, false, nil
	}
	sc := cfg.Storage
	driver := strings.ToLower(strings.TrimSpace(sc.Driver))
	switch driver {
	case "", "none":
		return storage.Config{}, false, nil
	case "sqlite", "sqlite3":
		busy := sc.BusyTimeout.OrDefault(time.Second)
		return storage.Config{Driver: driver, Path: strings.TrimSpace(sc.Path), BusyTimeout: busy}, true, nil
	case "postgres", "postgresql":
		return storage.Config{Driver: driver, DSN: strings.TrimSpace(sc.DSN)}, true, nil
	default:
		return storage.Config{}, false, errors.Newf("unknown storage.driver: %s", sc.Driver)
	}
}

package config

import (
	"strings"

	logx "botlog/pkg/logx"
)

// SummarizeConfigChange returns a compact list of changed sections and safe
// structured fields for logging (never includes the storage DSN).
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 3)
	attrs := make([]logx.Field, 0, 8)

	if oldCfg.Logging != newCfg.Logging {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.file_set", strings.TrimSpace(newCfg.Logging.File) != ""),
			logx.Bool("logging.format_set", strings.TrimSpace(newCfg.Logging.Format) != ""),
		)
	}

	if oldCfg.ChannelLogging != newCfg.ChannelLogging {
		changed = append(changed, "channel_logging")
		attrs = append(attrs,
			logx.String("channel_logging.dir", newCfg.ChannelLogging.Dir),
			logx.Bool("channel_logging.db", newCfg.ChannelLogging.DB),
		)
	}

	if derefStorage(oldCfg.Storage) != derefStorage(newCfg.Storage) {
		changed = append(changed, "storage")
		attrs = append(attrs, logx.String("storage.driver", derefStorage(newCfg.Storage).Driver))
	}

	return changed, attrs
}

func derefStorage(s *StorageConfig) StorageConfig {
	if s == nil {
		return StorageConfig{}
	}
	return *s
}

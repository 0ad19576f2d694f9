package configs

import (
	"time"

	"github.com/spf13/viper"
)

const (
	DefaultAutoSyncOnOpen     = true
	DefaultTrashRetentionDays = 30
	DefaultTrashPurgeCron     = "0 3 * * *"
	DefaultHealthProbeCron    = "* * * * *"
	DefaultProbeTimeout       = 3 * time.Second
)

// SyncConfig 同步引擎配置.
type SyncConfig struct {
	// AutoSyncOnOpen 在线状态下打开文件时自动拉取其归属链到本地库.
	AutoSyncOnOpen  bool          `mapstructure:"auto_sync_on_open"`
	HealthProbeCron string        `mapstructure:"health_probe_cron"`
	ProbeTimeout    time.Duration `mapstructure:"probe_timeout"`
}

// TrashConfig 回收站配置.
type TrashConfig struct {
	RetentionDays int    `mapstructure:"retention_days" rule:"min=1"`
	PurgeCron     string `mapstructure:"purge_cron"     rule:"required"`
}

// Retention 返回保留时长.
func (c *TrashConfig) Retention() time.Duration {
	days := c.RetentionDays
	if days <= 0 {
		days = DefaultTrashRetentionDays
	}

	return time.Duration(days) * 24 * time.Hour
}

func (c *SyncConfig) setDefaults(v *viper.Viper) {
	v.SetDefault("sync.auto_sync_on_open", DefaultAutoSyncOnOpen)
	v.SetDefault("sync.health_probe_cron", DefaultHealthProbeCron)
	v.SetDefault("sync.probe_timeout", DefaultProbeTimeout)
}

func (c *TrashConfig) setDefaults(v *viper.Viper) {
	v.SetDefault("trash.retention_days", DefaultTrashRetentionDays)
	v.SetDefault("trash.purge_cron", DefaultTrashPurgeCron)
}

package configs

import (
	"github.com/spf13/viper"
)

const (
	DefaultLocalPath        = "data/tmvault-local.db" // 本地库文件路径
	DefaultLocalBusyTimeout = 5000                    // SQLite busy_timeout（毫秒）
)

// LocalStoreConfig 本地库（嵌入式 SQLite，单进程单写者）配置.
type LocalStoreConfig struct {
	// Path 数据库文件路径，":memory:" 表示内存库.
	Path          string `mapstructure:"path"            rule:"required"`
	BusyTimeoutMS int    `mapstructure:"busy_timeout_ms" rule:"min=0"`
}

func (c *LocalStoreConfig) setDefaults(v *viper.Viper) {
	v.SetDefault("local.path", DefaultLocalPath)
	v.SetDefault("local.busy_timeout_ms", DefaultLocalBusyTimeout)
}

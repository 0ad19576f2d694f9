package configs

import (
	"github.com/spf13/viper"
)

const (
	DefaultMaxActivePerScope = 0  // 0 表示不限制
	DefaultMaxFolderDepth    = 64 // 文件夹链最大深度
)

// TMConfig 翻译记忆库配置.
type TMConfig struct {
	// MaxActivePerScope 每个作用域同时激活的 TM 上限，0 表示不限制.
	MaxActivePerScope int `mapstructure:"max_active_per_scope" rule:"min=0"`
	// MaxFolderDepth 解析文件夹链时的最大深度.
	MaxFolderDepth int `mapstructure:"max_folder_depth" rule:"min=1"`
}

func (c *TMConfig) setDefaults(v *viper.Viper) {
	v.SetDefault("tm.max_active_per_scope", DefaultMaxActivePerScope)
	v.SetDefault("tm.max_folder_depth", DefaultMaxFolderDepth)
}

package configs

import "github.com/spf13/viper"

// EventsConfig 控制事件发布的开关（全局与分主题）。
type EventsConfig struct {
	Enabled  bool `mapstructure:"enabled"`  // 总开关
	Presence bool `mapstructure:"presence"` // 锁与在线状态事件
	Sync     bool `mapstructure:"sync"`     // 同步完成与冲突事件
}

func (c *EventsConfig) setDefaults(v *viper.Viper) {
	v.SetDefault("events.enabled", true)
	v.SetDefault("events.presence", true)
	v.SetDefault("events.sync", true)
}

package configs

import "github.com/spf13/viper"

const (
	// 默认速率限制配置.
	DefaultRateLimitEnabled = false
	DefaultRateLimitRPS     = 50.0
	DefaultRateLimitBurst   = 100
	DefaultRateLimitKey     = "user"
	DefaultSyncRPS          = 2.0
	DefaultSyncBurst        = 5
)

// RateLimitConfig 速率限制配置.
type RateLimitConfig struct {
	Enabled bool    `mapstructure:"enabled"`
	RPS     float64 `mapstructure:"rps"   rule:"gte=0"` // 每秒允许的请求数
	Burst   int     `mapstructure:"burst" rule:"gte=0"` // 突发容量
	// Key 选择限流维度：global、ip、user（会话用户）、session（会话 id）、header:Header-Name
	Key string `mapstructure:"key"`
	// SyncRPS /sync 下接口单独的速率，0 表示与普通接口共用
	SyncRPS   float64 `mapstructure:"sync_rps"   rule:"gte=0"`
	SyncBurst int     `mapstructure:"sync_burst" rule:"gte=0"`
}

func (c *RateLimitConfig) setDefaults(v *viper.Viper) {
	v.SetDefault("rate_limit.enabled", DefaultRateLimitEnabled)
	v.SetDefault("rate_limit.rps", DefaultRateLimitRPS)
	v.SetDefault("rate_limit.burst", DefaultRateLimitBurst)
	v.SetDefault("rate_limit.key", DefaultRateLimitKey)
	v.SetDefault("rate_limit.sync_rps", DefaultSyncRPS)
	v.SetDefault("rate_limit.sync_burst", DefaultSyncBurst)
}

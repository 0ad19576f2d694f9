package configs

import (
	"time"

	"github.com/spf13/viper"
)

const (
	DefaultLockTTL       = 2 * time.Minute // 记录锁默认过期时间
	DefaultLockSweepCron = "* * * * *"     // 每分钟清理过期锁
	DefaultLockKeyPrefix = "tv.lock."
	DefaultHeartbeatTTL  = 45 * time.Second // 在线状态心跳过期时间
)

// LocksConfig 中心库记录锁配置.
type LocksConfig struct {
	// TTL 锁自动过期时间，用于回收崩溃或断线会话持有的锁.
	TTL       time.Duration `mapstructure:"ttl"        rule:"gt=0"`
	SweepCron string        `mapstructure:"sweep_cron" rule:"required"`
	KeyPrefix string        `mapstructure:"key_prefix"`
}

// PresenceConfig 在线状态配置.
type PresenceConfig struct {
	HeartbeatTTL time.Duration `mapstructure:"heartbeat_ttl" rule:"gt=0"`
}

func (c *LocksConfig) setDefaults(v *viper.Viper) {
	v.SetDefault("locks.ttl", DefaultLockTTL)
	v.SetDefault("locks.sweep_cron", DefaultLockSweepCron)
	v.SetDefault("locks.key_prefix", DefaultLockKeyPrefix)
}

func (c *PresenceConfig) setDefaults(v *viper.Viper) {
	v.SetDefault("presence.heartbeat_ttl", DefaultHeartbeatTTL)
}

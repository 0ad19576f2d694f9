package configs

import (
	"github.com/spf13/viper"
)

const (
	DefaultKVBucket        = "tmvault-locks"
	DefaultGroupcacheName  = "tmvault-presence"
	DefaultGroupcacheBytes = 64 << 20
)

// KVConfig 键值存储配置，承载记录锁与在线心跳.
//
// memory 与 groupcache 的写入只在本进程可见，多实例部署时锁必须放在 redis 或 nats.
type KVConfig struct {
	Type       string             `mapstructure:"type"       rule:"oneof=memory redis nats groupcache"`
	Redis      RedisKVConfig      `mapstructure:"redis"`
	NATS       NATSKVConfig       `mapstructure:"nats"`
	Groupcache GroupcacheKVConfig `mapstructure:"groupcache"`
}

// Shared 报告锁是否能被其他实例看到.
func (c *KVConfig) Shared() bool {
	return c.Type == "redis" || c.Type == "nats"
}

type RedisKVConfig struct {
	Addr     string `mapstructure:"addr"     rule:"hostname_port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"       rule:"min=0,max=15"`
}

// NATSKVConfig JetStream KV 桶，桶的 TTL 由锁的过期时间决定.
type NATSKVConfig struct {
	URL      string `mapstructure:"url"      rule:"hostname_port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Bucket   string `mapstructure:"bucket"   rule:"required"`
}

// GroupcacheKVConfig 只读回源经由 Peers，写入留在本地.
type GroupcacheKVConfig struct {
	Name       string   `mapstructure:"name"        rule:"required"`
	CacheBytes int64    `mapstructure:"cache_bytes" rule:"min=1048576"`
	Peers      []string `mapstructure:"peers"`
	Self       string   `mapstructure:"self"        rule:"omitempty,url"`
}

func (c *KVConfig) setDefaults(v *viper.Viper) {
	v.SetDefault("kv.type", "memory")

	v.SetDefault("kv.redis.addr", "localhost:6379")
	v.SetDefault("kv.redis.db", 0)

	v.SetDefault("kv.nats.url", "localhost:4222")
	v.SetDefault("kv.nats.bucket", DefaultKVBucket)

	v.SetDefault("kv.groupcache.name", DefaultGroupcacheName)
	v.SetDefault("kv.groupcache.cache_bytes", DefaultGroupcacheBytes)
	v.SetDefault("kv.groupcache.self", "http://localhost:8080")
}

package configs

import (
	"time"

	"github.com/spf13/viper"
)

// MQType 消息队列类型.
type MQType string

const (
	MQTypeNATS      MQType = "nats"
	MQTypeRedis     MQType = "redis"
	MQTypeGoChannel MQType = "gochannel" // 进程内 pub/sub，单机与测试使用

	DefaultMQURL           = "localhost:4222"
	DefaultMQClientID      = "tmvault"
	DefaultMaxReconnects   = 5
	DefaultReconnectWait   = 5 // 秒
	DefaultMaxPingsOut     = 3
	DefaultPingInterval    = 20    // 秒
	DefaultBufferSize      = 32768 // 断线期间缓存的字节数
	DefaultSubscribers     = 1
	DefaultAckWait         = 30 * time.Second
	DefaultReconnectJitter = 100 * time.Millisecond
)

// MQConfig 消息队列配置.
//
// 队列承载锁与在线事件（每个服务实例的推送 Hub 都要收到全部事件）以及同步与回收站通知.
// 多实例部署使用 nats 或 redis；gochannel 只在进程内可见.
type MQConfig struct {
	Type   MQType         `mapstructure:"type"   rule:"oneof=nats redis gochannel"`
	Common MQCommonConfig `mapstructure:"common"`
	NATS   MQNATSConfig   `mapstructure:"nats"`
	Redis  MQRedisConfig  `mapstructure:"redis"`
}

// MQCommonConfig 连接参数.
type MQCommonConfig struct {
	URL             string        `mapstructure:"url"             rule:"hostname_port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	ClientID        string        `mapstructure:"client_id"`
	MaxReconnects   int           `mapstructure:"max_reconnects"  rule:"min=0,max=100"`
	ReconnectWait   int           `mapstructure:"reconnect_wait"  rule:"min=1,max=300"`
	ReconnectJitter time.Duration `mapstructure:"reconnect_jitter"`
	// StrictConnect 为 true 时启动期连接失败直接报错，否则后台重试.
	StrictConnect bool `mapstructure:"strict_connect"`
	MaxPingsOut   int  `mapstructure:"max_pings_out"   rule:"min=1,max=10"`
	PingInterval  int  `mapstructure:"ping_interval"   rule:"min=1,max=300"`
	BufferSize    int  `mapstructure:"buffer_size"     rule:"min=1024,max=1048576"`
	// Subscribers 每个主题的并发订阅者数量.
	Subscribers int `mapstructure:"subscribers" rule:"min=1,max=100"`
	// EnableMetrics 开启后在 Endpoint 上暴露 watermill 的 Prometheus 指标.
	EnableMetrics bool   `mapstructure:"enable_metrics"`
	Endpoint      string `mapstructure:"endpoint"`
}

// MQNATSConfig NATS 配置.
//
// 在线事件是瞬时的，默认不开 JetStream；LoadBalance 会让同一事件只投递给一个实例，
// 只有在不使用在线推送时才应开启.
type MQNATSConfig struct {
	JetStreamEnabled       bool          `mapstructure:"jetstream_enabled"`
	SubjectPrefix          string        `mapstructure:"subject_prefix"`
	JetStreamAutoProvision bool          `mapstructure:"jetstream_auto_provision"`
	JetStreamTrackMsgID    bool          `mapstructure:"jetstream_track_msg_id"`
	JetStreamAckAsync      bool          `mapstructure:"jetstream_ack_async"`
	JetStreamDurablePrefix string        `mapstructure:"jetstream_durable_prefix"`
	AckWait                time.Duration `mapstructure:"ack_wait"`
	JWT                    string        `mapstructure:"jwt"`
	NKey                   string        `mapstructure:"nkey"`
	ClusterURLs            []string      `mapstructure:"cluster_urls"`
	LoadBalance            bool          `mapstructure:"load_balance"`
}

// MQRedisConfig Redis Pub/Sub 配置.
type MQRedisConfig struct {
	Addr     string `mapstructure:"addr"     rule:"hostname_port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"       rule:"min=0,max=15"`
}

func (c *MQConfig) setDefaults(v *viper.Viper) {
	v.SetDefault("mq.type", MQTypeGoChannel)

	v.SetDefault("mq.common.url", DefaultMQURL)
	v.SetDefault("mq.common.client_id", DefaultMQClientID)
	v.SetDefault("mq.common.max_reconnects", DefaultMaxReconnects)
	v.SetDefault("mq.common.reconnect_wait", DefaultReconnectWait)
	v.SetDefault("mq.common.reconnect_jitter", DefaultReconnectJitter)
	v.SetDefault("mq.common.strict_connect", false)
	v.SetDefault("mq.common.max_pings_out", DefaultMaxPingsOut)
	v.SetDefault("mq.common.ping_interval", DefaultPingInterval)
	v.SetDefault("mq.common.buffer_size", DefaultBufferSize)
	v.SetDefault("mq.common.subscribers", DefaultSubscribers)
	v.SetDefault("mq.common.enable_metrics", false)
	v.SetDefault("mq.common.endpoint", ":9092")

	v.SetDefault("mq.nats.jetstream_enabled", false)
	v.SetDefault("mq.nats.subject_prefix", "tmvault.")
	v.SetDefault("mq.nats.jetstream_auto_provision", true)
	v.SetDefault("mq.nats.jetstream_track_msg_id", true)
	v.SetDefault("mq.nats.jetstream_ack_async", false)
	v.SetDefault("mq.nats.jetstream_durable_prefix", "tmvault")
	v.SetDefault("mq.nats.ack_wait", DefaultAckWait)
	v.SetDefault("mq.nats.load_balance", false)

	v.SetDefault("mq.redis.addr", "localhost:6379")
	v.SetDefault("mq.redis.db", 0)
}

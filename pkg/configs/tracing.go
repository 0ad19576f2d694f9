package configs

import (
	"time"

	"github.com/spf13/viper"
)

// 导出器类型.
const (
	ExporterOTLPHTTP = "otlp-http"
	ExporterOTLPGRPC = "otlp-grpc"
	ExporterZipkin   = "zipkin"
)

// TracingConfig 链路追踪配置；span 覆盖 HTTP 请求、同步运行、定时任务以及经由队列的事件.
type TracingConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	ServiceName    string        `mapstructure:"service_name"`
	ServiceVersion string        `mapstructure:"service_version"`
	ExporterType   string        `mapstructure:"exporter_type" rule:"oneof=otlp-http otlp-grpc zipkin"`
	Endpoint       string        `mapstructure:"endpoint"`
	SampleRate     float64       `mapstructure:"sample_rate"   rule:"min=0,max=1"`
	BatchTimeout   time.Duration `mapstructure:"batch_timeout"`
	MaxBatchSize   int           `mapstructure:"max_batch_size"`
	MaxQueueSize   int           `mapstructure:"max_queue_size"`
	// ResourceLabels 附加到每个 span 的资源属性，例如 deployment.environment.
	ResourceLabels map[string]string `mapstructure:"resource_labels"`
}

func (c *TracingConfig) setDefaults(v *viper.Viper) {
	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.service_name", AppName)
	v.SetDefault("tracing.service_version", AppVersion)
	v.SetDefault("tracing.exporter_type", ExporterOTLPHTTP)
	v.SetDefault("tracing.endpoint", "http://localhost:4318")
	v.SetDefault("tracing.sample_rate", 1.0)
	v.SetDefault("tracing.batch_timeout", 5*time.Second)
	v.SetDefault("tracing.max_batch_size", 512)
	v.SetDefault("tracing.max_queue_size", 2048)
}

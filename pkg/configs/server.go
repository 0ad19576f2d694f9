package configs

import (
	"strconv"
	"time"

	"github.com/spf13/viper"
)

const (
	DefaultPort            = 8080
	DefaultHost            = "0.0.0.0"
	DefaultReloadConfig    = true
	DefaultDebug           = false
	DefaultTimeout         = 30
	DefaultShutdownTimeout = 10 * time.Second
)

// ServerConfig HTTP 服务配置.
type ServerConfig struct {
	Port         int    `mapstructure:"port"          rule:"min=1,max=65535"`
	Host         string `mapstructure:"host"          rule:"ip"`
	ReloadConfig bool   `mapstructure:"reload_config"`
	Debug        bool   `mapstructure:"debug"`
	// Timeout 读取请求头的超时，单位秒.
	Timeout int `mapstructure:"timeout" rule:"min=1,max=300"`
	// ShutdownTimeout 优雅关闭等待进行中请求与同步的最长时间.
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	// CORSOrigins 允许的跨域来源，为空表示全部允许.
	CORSOrigins []string `mapstructure:"cors_origins"`
}

// GetTimeoutDuration 返回超时时间作为time.Duration.
func (s *ServerConfig) GetTimeoutDuration() time.Duration {
	return time.Duration(s.Timeout) * time.Second
}

// Addr 监听地址.
func (s *ServerConfig) Addr() string {
	return s.Host + ":" + strconv.Itoa(s.Port)
}

func (s *ServerConfig) setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", DefaultPort)
	v.SetDefault("server.host", DefaultHost)
	v.SetDefault("server.reload_config", DefaultReloadConfig)
	v.SetDefault("server.debug", DefaultDebug)
	v.SetDefault("server.timeout", DefaultTimeout)
	v.SetDefault("server.shutdown_timeout", DefaultShutdownTimeout)
}

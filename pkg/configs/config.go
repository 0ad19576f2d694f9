// Package configs 管理应用程序配置，包括中心库、本地库、KV、消息队列与同步相关的配置信息.
// configs 包支持多种配置格式（YAML、JSON、TOML、dotenv）并启用热重载.
//
// Example:
//
//	import "path/to/configs"
//
//	err := configs.InitConfig("./")
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	config := configs.GetConfig()
//	fmt.Println(config.Server.Port)
//
// Example accessing Central DB config:
//
//	config := configs.GetConfig()
//	dsn := config.Central.GetDSN()
//	fmt.Println("DSN:", dsn)
//
// Example accessing lock config:
//
//	ttl := configs.GetConfig().Locks.TTL
//	fmt.Println("lock ttl:", ttl)
package configs

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// AppVersion 当前应用版本.
const AppVersion = "0.1.0"

// AppName 应用名称，用于日志、指标与事件 producer.
const AppName = "tmvault"

type (
	// AppConfig 全局应用程序配置.
	AppConfig struct {
		Central        DBConfig             `mapstructure:"central"`         // 中心库（多用户）数据库配置
		Local          LocalStoreConfig     `mapstructure:"local"`           // 本地库（单用户嵌入式）配置
		KV             KVConfig             `mapstructure:"kv"`              // 锁与在线状态使用的 KV 配置
		MQ             MQConfig             `mapstructure:"mq"`              // 事件推送消息队列配置
		Server         ServerConfig         `mapstructure:"server"`          // 服务器配置
		Log            LogConfig            `mapstructure:"log"`             // 日志相关配置
		Metrics        MetricsConfig        `mapstructure:"metrics"`         // 监控指标配置
		Tracing        TracingConfig        `mapstructure:"tracing"`         // 分布式追踪配置
		Auth           AuthConfig           `mapstructure:"auth"`            // 身份认证配置
		RateLimit      RateLimitConfig      `mapstructure:"rate_limit"`      // 限流配置
		CircuitBreaker CircuitBreakerConfig `mapstructure:"circuit_breaker"` // 熔断配置
		Events         EventsConfig         `mapstructure:"events"`          // 事件开关
		Locks          LocksConfig          `mapstructure:"locks"`           // 记录锁配置
		Presence       PresenceConfig       `mapstructure:"presence"`        // 在线状态配置
		TM             TMConfig             `mapstructure:"tm"`              // 翻译记忆库配置
		Sync           SyncConfig           `mapstructure:"sync"`            // 同步引擎配置
		Trash          TrashConfig          `mapstructure:"trash"`           // 回收站配置
	}
)

var (
	// globalConfig 全局配置实例.
	globalConfig AppConfig
	// appViper 全局 Viper 实例.
	appViper *viper.Viper
)

// InitConfig 加载应用程序配置，支持多种格式(yaml、json、toml、dotenv)并启用热重载.
// path 为空或不存在配置文件时仅使用默认值与环境变量.
func InitConfig(path string) error {
	appViper = viper.New()
	// 设置默认值
	setAllDefaults(appViper)

	found := false

	// 检查path是否是文件
	if info, err := os.Stat(path); err == nil && !info.IsDir() {
		// 是文件，使用SetConfigFile，Viper会自动检测类型
		appViper.SetConfigFile(path)

		found = true
	} else if path != "" {
		exts := []string{"yaml", "yml", "json", "toml", "env", "dotenv"}

		for _, dir := range []string{path, filepath.Join(path, "configs")} {
			for _, ext := range exts {
				cfg := filepath.Join(dir, "config."+ext)
				if _, err := os.Stat(cfg); err == nil {
					appViper.SetConfigFile(cfg)

					found = true

					break
				}
			}

			if found {
				break
			}
		}
	}

	appViper.SetEnvPrefix("TMVAULT")
	appViper.AutomaticEnv()

	if found {
		// 读取配置
		if err := appViper.ReadInConfig(); err != nil {
			return fmt.Errorf("failed to read config: %w", err)
		}
	}

	// 解析到全局配置
	if err := appViper.Unmarshal(&globalConfig); err != nil {
		return fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if found {
		reloadConfigs(appViper, globalConfig.Server.ReloadConfig)
	}

	return nil
}

// setAllDefaults 设置所有配置的默认值.
func setAllDefaults(v *viper.Viper) {
	var (
		serverConfig   ServerConfig
		centralConfig  DBConfig
		localConfig    LocalStoreConfig
		kvConfig       KVConfig
		mqConfig       MQConfig
		logConfig      LogConfig
		metricsConfig  MetricsConfig
		tracingConfig  TracingConfig
		authConfig     AuthConfig
		rateConfig     RateLimitConfig
		cbConfig       CircuitBreakerConfig
		eventsConfig   EventsConfig
		locksConfig    LocksConfig
		presenceConfig PresenceConfig
		tmConfig       TMConfig
		syncConfig     SyncConfig
		trashConfig    TrashConfig
	)

	serverConfig.setDefaults(v)
	centralConfig.setDefaults(v, "central")
	localConfig.setDefaults(v)
	kvConfig.setDefaults(v)
	mqConfig.setDefaults(v)
	logConfig.setDefaults(v)
	metricsConfig.setDefaults(v)
	tracingConfig.setDefaults(v)
	authConfig.setDefaults(v)
	rateConfig.setDefaults(v)
	cbConfig.setDefaults(v)
	eventsConfig.setDefaults(v)
	locksConfig.setDefaults(v)
	presenceConfig.setDefaults(v)
	tmConfig.setDefaults(v)
	syncConfig.setDefaults(v)
	trashConfig.setDefaults(v)
}

func reloadConfigs(v *viper.Viper, isHotReload bool) {
	if !isHotReload {
		return
	}
	// 启用配置热重载
	v.OnConfigChange(func(e fsnotify.Event) {
		fmt.Println("Config file changed:", e.Name)
		fmt.Println("Reloading configuration...")

		if err := v.Unmarshal(&globalConfig); err != nil {
			fmt.Printf("Error reloading config: %v\n", err)
		}
	})
	v.WatchConfig()
}

// GetConfig 返回全局配置实例.
func GetConfig() *AppConfig {
	return &globalConfig
}

// GetViper 返回全局 Viper 实例.
func GetViper() *viper.Viper {
	return appViper
}

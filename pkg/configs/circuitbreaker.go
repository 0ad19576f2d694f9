package configs

import "github.com/spf13/viper"

const (
	DefaultCBEnabled           = false
	DefaultCBFailureRate       = 0.5
	DefaultCBMinRequests       = 20
	DefaultCBIntervalSeconds   = 60
	DefaultCBTimeoutSeconds    = 30
	DefaultCBMaxRequestsInHalf = 5
	DefaultCBCentralTripAfter  = 3
)

// CircuitBreakerConfig 熔断配置.
//
// 有两个熔断器：HTTP 层按失败比例熔断整个 API（Enabled 控制），
// 仓储工厂按连续失败次数熔断中心库，后者始终开启，打开期间 connected 会话收到 StoreUnavailable.
type CircuitBreakerConfig struct {
	Enabled           bool    `mapstructure:"enabled"`
	FailureRate       float64 `mapstructure:"failure_rate"         rule:"gte=0,lte=1"`
	MinRequests       uint32  `mapstructure:"min_requests"`
	IntervalSeconds   int     `mapstructure:"interval_seconds"`
	TimeoutSeconds    int     `mapstructure:"timeout_seconds"      rule:"gte=0"`
	MaxRequestsInHalf uint32  `mapstructure:"max_requests_in_half"`
	// CentralTripAfter 中心库连续失败多少次后熔断.
	CentralTripAfter uint32 `mapstructure:"central_trip_after"`
}

func (c *CircuitBreakerConfig) setDefaults(v *viper.Viper) {
	v.SetDefault("circuit_breaker.enabled", DefaultCBEnabled)
	v.SetDefault("circuit_breaker.failure_rate", DefaultCBFailureRate)
	v.SetDefault("circuit_breaker.min_requests", DefaultCBMinRequests)
	v.SetDefault("circuit_breaker.interval_seconds", DefaultCBIntervalSeconds)
	v.SetDefault("circuit_breaker.timeout_seconds", DefaultCBTimeoutSeconds)
	v.SetDefault("circuit_breaker.max_requests_in_half", DefaultCBMaxRequestsInHalf)
	v.SetDefault("circuit_breaker.central_trip_after", DefaultCBCentralTripAfter)
}

package configs

import "github.com/spf13/viper"

// AuthConfig 身份来源配置.
//
// 服务部署在 oauth2-proxy 之后，身份取自代理注入的请求头，按 IdentityHeaders 的顺序取第一个非空值.
// Enabled 为 false 时不拒绝匿名请求，只适合单机使用.
type AuthConfig struct {
	Enabled         bool     `mapstructure:"enabled"`
	IdentityHeaders []string `mapstructure:"identity_headers"`
	// SkipPaths 不校验身份的路径前缀.
	SkipPaths []string `mapstructure:"skip_paths"`
	// DevAllowQuery 允许 ?user= 作为身份，便于本地调试.
	DevAllowQuery bool `mapstructure:"dev_allow_query"`
}

func (c *AuthConfig) setDefaults(v *viper.Viper) {
	v.SetDefault("auth.enabled", false)
	v.SetDefault("auth.identity_headers", []string{"X-Auth-Request-Email", "X-Forwarded-Email"})
	v.SetDefault("auth.dev_allow_query", false)
	v.SetDefault("auth.skip_paths", []string{
		"/metrics",
		"/debug/pprof",
		"/api/v1/health",
	})
}

// Package middleware 提供 gin 中间件：认证、会话、限流、熔断、缓存、指标与追踪.
package middleware

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/yeisme/tmvault/pkg/configs"
)

// CORSMiddleware CORS中间件；server.cors_origins 为空时允许所有来源.
// 会话头需要显式放行，浏览器客户端才能读取服务端生成的会话 id.
func CORSMiddleware(cfg configs.ServerConfig) gin.HandlerFunc {
	config := cors.DefaultConfig()

	if len(cfg.CORSOrigins) == 0 {
		config.AllowAllOrigins = true
	} else {
		config.AllowOrigins = cfg.CORSOrigins
	}

	config.AllowWebSockets = true
	config.AddAllowHeaders(HeaderSessionID, HeaderSessionMode, HeaderRole)
	config.AddExposeHeaders(HeaderSessionID, "Retry-After", "X-Cache")

	return cors.New(config)
}

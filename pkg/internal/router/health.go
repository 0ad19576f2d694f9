package router

import (
	"github.com/gin-gonic/gin"

	"github.com/yeisme/tmvault/pkg/internal/handle"
)

// RegisterHealthCheckRoute 注册健康检查路由.
func RegisterHealthCheckRoute(g *gin.RouterGroup, mw ...gin.HandlerFunc) {
	healthRoutes := g.Group("/health", mw...)
	{
		healthRoutes.GET("", handle.Health)
		healthRoutes.GET("/central", handle.HealthCentral)
		healthRoutes.GET("/local", handle.HealthLocal)
		healthRoutes.GET("/kv", handle.HealthKV)
		healthRoutes.GET("/mq", handle.HealthMQ)
	}
}

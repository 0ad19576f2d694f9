// Package router 管理路由配置，将处理器绑定到 gin 路由组.
package router

import (
	"github.com/gin-gonic/gin"
)

// RegisterAll 注册 /api/v1 下的全部业务路由，healthMW 只作用于健康检查.
func RegisterAll(g *gin.RouterGroup, healthMW ...gin.HandlerFunc) {
	RegisterHealthCheckRoute(g, healthMW...)
	RegisterHierarchyRoutes(g)
	RegisterFileRoutes(g)
	RegisterTMRoutes(g)
	RegisterSyncRoutes(g)
	RegisterTrashRoutes(g)
	RegisterAdminRoutes(g)
	RegisterSchedulerRoutes(g)
}

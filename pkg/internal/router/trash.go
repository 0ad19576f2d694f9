package router

import (
	"github.com/gin-gonic/gin"

	"github.com/yeisme/tmvault/pkg/internal/handle"
	"github.com/yeisme/tmvault/pkg/middleware"
)

// RegisterTrashRoutes 注册回收站相关路由.
func RegisterTrashRoutes(g *gin.RouterGroup) {
	trashRoutes := g.Group("/trash")
	{
		trashRoutes.GET("", handle.ListTrash)
		trashRoutes.GET("/:id", handle.GetTrash)
		trashRoutes.POST("/:id/restore", handle.RestoreTrash)
		trashRoutes.DELETE("/:id", handle.PurgeTrash)

		// 清理全部过期条目，跨两个存储
		trashRoutes.POST("/purge", middleware.RequireMinRole(middleware.RoleAdmin), handle.PurgeExpiredTrash)
	}
}

// RegisterAdminRoutes 注册能力授予路由，仅管理员可修改.
func RegisterAdminRoutes(g *gin.RouterGroup) {
	caps := g.Group("/capabilities")
	{
		caps.GET("", handle.ListCapabilities)
		caps.POST("", middleware.RequireMinRole(middleware.RoleAdmin), handle.GrantCapability)
		caps.DELETE("/:user/:name", middleware.RequireMinRole(middleware.RoleAdmin), handle.RevokeCapability)
	}
}

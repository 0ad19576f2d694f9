package router

import (
	"github.com/gin-gonic/gin"

	"github.com/yeisme/tmvault/pkg/internal/handle"
	"github.com/yeisme/tmvault/pkg/middleware"
)

// RegisterSchedulerRoutes 注册后台任务管理路由，变更操作需要管理员角色.
func RegisterSchedulerRoutes(g *gin.RouterGroup) {
	s := g.Group("/scheduler")
	s.GET("/jobs", handle.SchedulerJobs)
	s.GET("/jobs/:name", handle.SchedulerJob)
	s.GET("/queue/waiting", handle.SchedulerQueueWaiting)

	admin := s.Group("", middleware.RequireMinRole(middleware.RoleAdmin))
	admin.POST("/jobs/:name/run", handle.SchedulerRunJob)
	admin.DELETE("/jobs/:name", handle.SchedulerRemoveJob)
	admin.POST("/jobs/stop", handle.SchedulerStopJobs)
}

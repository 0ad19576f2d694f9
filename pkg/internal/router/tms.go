package router

import (
	"github.com/gin-gonic/gin"

	"github.com/yeisme/tmvault/pkg/internal/handle"
)

// RegisterTMRoutes 注册翻译记忆库路由.
func RegisterTMRoutes(g *gin.RouterGroup) {
	tms := g.Group("/tms")
	{
		tms.GET("", handle.ListTMs)
		tms.POST("", handle.CreateTM)

		tm := tms.Group("/:id")
		{
			tm.GET("", handle.GetTM)
			tm.PATCH("", handle.UpdateTM)
			tm.DELETE("", handle.DeleteTM)
			tm.GET("/entries", handle.ListTMEntries)
			tm.POST("/entries", handle.AddTMEntries)
			tm.GET("/assignment", handle.GetTMAssignment)
			tm.POST("/assign", handle.AssignTM)
			tm.POST("/unassign", handle.UnassignTM)
			tm.POST("/activate", handle.ActivateTM)
			tm.POST("/deactivate", handle.DeactivateTM)
		}
	}
}

package router

import (
	"github.com/gin-gonic/gin"

	"github.com/yeisme/tmvault/pkg/internal/handle"
)

// RegisterFileRoutes 注册文件、行、锁、在线状态与 QA 路由.
func RegisterFileRoutes(g *gin.RouterGroup) {
	files := g.Group("/files")
	{
		files.GET("", handle.ListFiles)
		files.POST("", handle.CreateFile)

		file := files.Group("/:id")
		{
			file.GET("", handle.GetFile)
			file.PATCH("", handle.UpdateFile)
			file.DELETE("", handle.DeleteFile)

			// ===== 行 =====
			file.GET("/rows", handle.ListRows)
			file.POST("/rows", handle.CreateRow)
			file.POST("/rows/batch", handle.CreateRowsBatch)

			// ===== TM 解析 =====
			file.GET("/tms", handle.FileTMs)
			file.GET("/match", handle.MatchFile)
			file.POST("/register-tm", handle.RegisterTM)

			// ===== 打开、锁与在线状态 =====
			file.GET("/open", handle.OpenFile)
			file.DELETE("/open", handle.CloseFile)
			file.GET("/viewers", handle.FileViewers)
			file.GET("/presence/ws", handle.FilePresence)
			file.GET("/lock", handle.GetFileLock)
			file.POST("/lock", handle.LockFile)
			file.DELETE("/lock", handle.UnlockFile)
		}
	}

	rows := g.Group("/rows/:id")
	{
		rows.GET("", handle.GetRow)
		rows.PATCH("", handle.UpdateRow)
		rows.DELETE("", handle.DeleteRow)
		rows.GET("/lock", handle.GetRowLock)
		rows.POST("/lock", handle.LockRow)
		rows.DELETE("/lock", handle.UnlockRow)
	}

	qa := g.Group("/qa")
	{
		qa.GET("", handle.ListQA)
		qa.POST("", handle.CreateQA)
		qa.POST("/:id/resolve", handle.ResolveQA)
		qa.DELETE("/:id", handle.DeleteQA)
	}

	g.GET("/locks", handle.ListLocks)
}

package router

import (
	"github.com/gin-gonic/gin"

	"github.com/yeisme/tmvault/pkg/internal/handle"
)

// RegisterSyncRoutes 注册同步路由.
func RegisterSyncRoutes(g *gin.RouterGroup) {
	s := g.Group("/sync")
	{
		s.POST("/files/:id/download", handle.SyncDownloadFile)
		s.POST("/files/:id/upload", handle.SyncUploadFile)
		s.POST("/files/:id/merge", handle.SyncMergeFile)
		s.POST("/files/:id/reassign", handle.SyncReassign)
		s.POST("/files/:id/local-only", handle.SyncLocalOnly)

		s.POST("/folders/:id/download", handle.SyncDownloadFolder)
		s.POST("/folders/:id/upload", handle.SyncUploadFolder)

		s.POST("/tms/:id/download", handle.SyncDownloadTM)
		s.POST("/tms/:id/upload", handle.SyncUploadTM)

		s.GET("/status/:entity/:key", handle.SyncStatus)
	}
}

package router

import (
	"github.com/gin-gonic/gin"

	"github.com/yeisme/tmvault/pkg/internal/handle"
)

// RegisterHierarchyRoutes 注册平台、项目与文件夹路由.
func RegisterHierarchyRoutes(g *gin.RouterGroup) {
	platforms := g.Group("/platforms")
	{
		platforms.GET("", handle.ListPlatforms)
		platforms.POST("", handle.CreatePlatform)
		platforms.GET("/:id", handle.GetPlatform)
		platforms.PATCH("/:id", handle.UpdatePlatform)
		platforms.DELETE("/:id", handle.DeletePlatform)
	}

	projects := g.Group("/projects")
	{
		projects.GET("", handle.ListProjects)
		projects.POST("", handle.CreateProject)
		projects.GET("/:id", handle.GetProject)
		projects.PATCH("/:id", handle.UpdateProject)
		projects.DELETE("/:id", handle.DeleteProject)
	}

	folders := g.Group("/folders")
	{
		folders.GET("", handle.ListFolders)
		folders.POST("", handle.CreateFolder)
		folders.GET("/:id", handle.GetFolder)
		folders.GET("/:id/path", handle.FolderPath)
		folders.PATCH("/:id", handle.UpdateFolder)
		folders.DELETE("/:id", handle.DeleteFolder)
	}
}

package handle

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yeisme/tmvault/pkg/internal/domain"
	"github.com/yeisme/tmvault/pkg/internal/service"
	"github.com/yeisme/tmvault/pkg/internal/types"
)

// ListPlatforms GET /platforms.
func ListPlatforms(c *gin.Context) {
	var q types.PlatformQuery
	if !bindQuery(c, &q) {
		return
	}

	ctx := c.Request.Context()
	items, err := service.NewHierarchyService(ctx).ListPlatforms(ctx, q.Filter())
	list(c, items, err)
}

// GetPlatform GET /platforms/:id.
func GetPlatform(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}

	ctx := c.Request.Context()
	p, err := service.NewHierarchyService(ctx).GetPlatform(ctx, id)
	reply(c, http.StatusOK, p, err)
}

// CreatePlatform POST /platforms.
func CreatePlatform(c *gin.Context) {
	var in domain.PlatformInput
	if !bindJSON(c, &in) {
		return
	}

	ctx := c.Request.Context()
	p, err := service.NewHierarchyService(ctx).CreatePlatform(ctx, in)
	reply(c, http.StatusCreated, p, err)
}

// UpdatePlatform PATCH /platforms/:id.
func UpdatePlatform(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}

	var patch domain.PlatformPatch
	if !bindJSON(c, &patch) {
		return
	}

	ctx := c.Request.Context()
	p, err := service.NewHierarchyService(ctx).UpdatePlatform(ctx, id, patch)
	reply(c, http.StatusOK, p, err)
}

// DeletePlatform DELETE /platforms/:id，项目进入 Unassigned 池.
func DeletePlatform(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}

	ctx := c.Request.Context()
	noContent(c, service.NewHierarchyService(ctx).DeletePlatform(ctx, id))
}

// ListProjects GET /projects.
func ListProjects(c *gin.Context) {
	var q types.ProjectQuery
	if !bindQuery(c, &q) {
		return
	}

	ctx := c.Request.Context()
	items, err := service.NewHierarchyService(ctx).ListProjects(ctx, q.Filter())
	list(c, items, err)
}

// GetProject GET /projects/:id.
func GetProject(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}

	ctx := c.Request.Context()
	p, err := service.NewHierarchyService(ctx).GetProject(ctx, id)
	reply(c, http.StatusOK, p, err)
}

// CreateProject POST /projects.
func CreateProject(c *gin.Context) {
	var in domain.ProjectInput
	if !bindJSON(c, &in) {
		return
	}

	ctx := c.Request.Context()
	p, err := service.NewHierarchyService(ctx).CreateProject(ctx, in)
	reply(c, http.StatusCreated, p, err)
}

// UpdateProject PATCH /projects/:id.
func UpdateProject(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}

	var patch domain.ProjectPatch
	if !bindJSON(c, &patch) {
		return
	}

	ctx := c.Request.Context()
	p, err := service.NewHierarchyService(ctx).UpdateProject(ctx, id, patch)
	reply(c, http.StatusOK, p, err)
}

// DeleteProject DELETE /projects/:id.
func DeleteProject(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}

	ctx := c.Request.Context()
	noContent(c, service.NewHierarchyService(ctx).DeleteProject(ctx, id))
}

// ListFolders GET /folders.
func ListFolders(c *gin.Context) {
	var q types.FolderQuery
	if !bindQuery(c, &q) {
		return
	}

	ctx := c.Request.Context()
	items, err := service.NewHierarchyService(ctx).ListFolders(ctx, q.Filter())
	list(c, items, err)
}

// GetFolder GET /folders/:id.
func GetFolder(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}

	ctx := c.Request.Context()
	f, err := service.NewHierarchyService(ctx).GetFolder(ctx, id)
	reply(c, http.StatusOK, f, err)
}

// FolderPath GET /folders/:id/path.
func FolderPath(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}

	ctx := c.Request.Context()
	items, err := service.NewHierarchyService(ctx).FolderPath(ctx, id)
	list(c, items, err)
}

// CreateFolder POST /folders.
func CreateFolder(c *gin.Context) {
	var in domain.FolderInput
	if !bindJSON(c, &in) {
		return
	}

	ctx := c.Request.Context()
	f, err := service.NewHierarchyService(ctx).CreateFolder(ctx, in)
	reply(c, http.StatusCreated, f, err)
}

// UpdateFolder PATCH /folders/:id.
func UpdateFolder(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}

	var patch domain.FolderPatch
	if !bindJSON(c, &patch) {
		return
	}

	ctx := c.Request.Context()
	f, err := service.NewHierarchyService(ctx).UpdateFolder(ctx, id, patch)
	reply(c, http.StatusOK, f, err)
}

// DeleteFolder DELETE /folders/:id，子树进入回收站.
func DeleteFolder(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}

	ctx := c.Request.Context()
	noContent(c, service.NewHierarchyService(ctx).DeleteFolder(ctx, id))
}

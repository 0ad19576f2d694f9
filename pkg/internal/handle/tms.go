package handle

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yeisme/tmvault/pkg/internal/domain"
	"github.com/yeisme/tmvault/pkg/internal/service"
	"github.com/yeisme/tmvault/pkg/internal/types"
)

// ListTMs GET /tms.
func ListTMs(c *gin.Context) {
	var q types.TMQuery
	if !bindQuery(c, &q) {
		return
	}

	ctx := c.Request.Context()
	items, err := service.NewTMService(ctx).List(ctx, q.Filter())
	list(c, items, err)
}

// GetTM GET /tms/:id.
func GetTM(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}

	ctx := c.Request.Context()
	tm, err := service.NewTMService(ctx).Get(ctx, id)
	reply(c, http.StatusOK, tm, err)
}

// CreateTM POST /tms.
func CreateTM(c *gin.Context) {
	var in domain.TMInput
	if !bindJSON(c, &in) {
		return
	}

	ctx := c.Request.Context()
	tm, err := service.NewTMService(ctx).Create(ctx, in)
	reply(c, http.StatusCreated, tm, err)
}

// UpdateTM PATCH /tms/:id.
func UpdateTM(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}

	var patch domain.TMPatch
	if !bindJSON(c, &patch) {
		return
	}

	ctx := c.Request.Context()
	tm, err := service.NewTMService(ctx).Update(ctx, id, patch)
	reply(c, http.StatusOK, tm, err)
}

// DeleteTM DELETE /tms/:id.
func DeleteTM(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}

	ctx := c.Request.Context()
	noContent(c, service.NewTMService(ctx).Delete(ctx, id))
}

// ListTMEntries GET /tms/:id/entries.
func ListTMEntries(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}

	ctx := c.Request.Context()
	items, err := service.NewTMService(ctx).Entries(ctx, id)
	list(c, items, err)
}

// AddTMEntries POST /tms/:id/entries.
func AddTMEntries(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}

	var req types.EntriesRequest
	if !bindJSON(c, &req) {
		return
	}

	ctx := c.Request.Context()
	items, err := service.NewTMService(ctx).AddEntries(ctx, id, req.Entries)
	if err != nil {
		fail(c, err)
		return
	}

	c.JSON(http.StatusCreated, types.NewList(items))
}

// RegisterTM POST /files/:id/register-tm 以文件中已翻译的行创建 TM.
func RegisterTM(c *gin.Context) {
	fileID, ok := paramID(c, "id")
	if !ok {
		return
	}

	var in domain.RegisterTMInput
	if !bindJSON(c, &in) {
		return
	}

	ctx := c.Request.Context()
	tm, err := service.NewTMService(ctx).RegisterFromFile(ctx, fileID, in)
	reply(c, http.StatusCreated, tm, err)
}

// GetTMAssignment GET /tms/:id/assignment.
func GetTMAssignment(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}

	ctx := c.Request.Context()
	a, err := service.NewTMService(ctx).Assignment(ctx, id)
	reply(c, http.StatusOK, a, err)
}

// AssignTM POST /tms/:id/assign，请求体必须恰好设置一个作用域.
func AssignTM(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}

	var scope domain.Scope
	if !bindJSON(c, &scope) {
		return
	}

	ctx := c.Request.Context()
	a, err := service.NewTMService(ctx).Assign(ctx, id, scope)
	reply(c, http.StatusOK, a, err)
}

// UnassignTM POST /tms/:id/unassign.
func UnassignTM(c *gin.Context) {
	assignment(c, (*service.TMService).Unassign)
}

// ActivateTM POST /tms/:id/activate.
func ActivateTM(c *gin.Context) {
	assignment(c, (*service.TMService).Activate)
}

// DeactivateTM POST /tms/:id/deactivate.
func DeactivateTM(c *gin.Context) {
	assignment(c, (*service.TMService).Deactivate)
}

func assignment(c *gin.Context, op func(*service.TMService, context.Context, int64) (*domain.TMAssignment, error)) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}

	ctx := c.Request.Context()
	a, err := op(service.NewTMService(ctx), ctx, id)
	reply(c, http.StatusOK, a, err)
}

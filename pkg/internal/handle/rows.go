package handle

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yeisme/tmvault/pkg/internal/domain"
	"github.com/yeisme/tmvault/pkg/internal/service"
	"github.com/yeisme/tmvault/pkg/internal/types"
)

// ListRows GET /files/:id/rows.
func ListRows(c *gin.Context) {
	fileID, ok := paramID(c, "id")
	if !ok {
		return
	}

	var q types.RowQuery
	if !bindQuery(c, &q) {
		return
	}

	ctx := c.Request.Context()
	items, err := service.NewRowService(ctx).List(ctx, q.Filter(fileID))
	list(c, items, err)
}

// CreateRow POST /files/:id/rows.
func CreateRow(c *gin.Context) {
	fileID, ok := paramID(c, "id")
	if !ok {
		return
	}

	var in domain.RowInput
	if !bindJSON(c, &in) {
		return
	}

	in.FileID = fileID

	ctx := c.Request.Context()
	r, err := service.NewRowService(ctx).Create(ctx, in)
	reply(c, http.StatusCreated, r, err)
}

// CreateRowsBatch POST /files/:id/rows/batch，全部成功或全部失败.
func CreateRowsBatch(c *gin.Context) {
	fileID, ok := paramID(c, "id")
	if !ok {
		return
	}

	var req types.BatchRowsRequest
	if !bindJSON(c, &req) {
		return
	}

	for i := range req.Rows {
		req.Rows[i].FileID = fileID
	}

	ctx := c.Request.Context()
	rows, err := service.NewRowService(ctx).CreateBatch(ctx, fileID, req.Rows)
	if err != nil {
		fail(c, err)
		return
	}

	c.JSON(http.StatusCreated, types.NewList(rows))
}

// GetRow GET /rows/:id.
func GetRow(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}

	ctx := c.Request.Context()
	r, err := service.NewRowService(ctx).Get(ctx, id)
	reply(c, http.StatusOK, r, err)
}

// UpdateRow PATCH /rows/:id；中心库上需要持有行锁或文件锁.
func UpdateRow(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}

	var patch domain.RowPatch
	if !bindJSON(c, &patch) {
		return
	}

	ctx := c.Request.Context()
	r, err := service.NewRowService(ctx).Update(ctx, id, patch)
	reply(c, http.StatusOK, r, err)
}

// DeleteRow DELETE /rows/:id.
func DeleteRow(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}

	ctx := c.Request.Context()
	noContent(c, service.NewRowService(ctx).Delete(ctx, id))
}

// ListQA GET /qa.
func ListQA(c *gin.Context) {
	var q types.QAQuery
	if !bindQuery(c, &q) {
		return
	}

	ctx := c.Request.Context()
	items, err := service.NewRowService(ctx).ListQA(ctx, q.Filter())
	list(c, items, err)
}

// CreateQA POST /qa，由外部检查器写入.
func CreateQA(c *gin.Context) {
	var in domain.QAInput
	if !bindJSON(c, &in) {
		return
	}

	ctx := c.Request.Context()
	r, err := service.NewRowService(ctx).CreateQA(ctx, in)
	reply(c, http.StatusCreated, r, err)
}

// ResolveQA POST /qa/:id/resolve.
func ResolveQA(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}

	ctx := c.Request.Context()
	r, err := service.NewRowService(ctx).ResolveQA(ctx, id)
	reply(c, http.StatusOK, r, err)
}

// DeleteQA DELETE /qa/:id.
func DeleteQA(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}

	ctx := c.Request.Context()
	noContent(c, service.NewRowService(ctx).DeleteQA(ctx, id))
}

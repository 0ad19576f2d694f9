package handle

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	ctxPkg "github.com/yeisme/tmvault/pkg/context"
	"github.com/yeisme/tmvault/pkg/internal/domain"
	"github.com/yeisme/tmvault/pkg/internal/service"
	"github.com/yeisme/tmvault/pkg/internal/types"
)

// ListTrash GET /trash.
func ListTrash(c *gin.Context) {
	var q types.TrashQuery
	if !bindQuery(c, &q) {
		return
	}

	ctx := c.Request.Context()
	items, err := service.NewTrashService(ctx).List(ctx, q.Filter())
	list(c, items, err)
}

// GetTrash GET /trash/:id.
func GetTrash(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}

	ctx := c.Request.Context()
	item, err := service.NewTrashService(ctx).Get(ctx, id)
	reply(c, http.StatusOK, item, err)
}

// RestoreTrash POST /trash/:id/restore.
func RestoreTrash(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}

	ctx := c.Request.Context()
	item, err := service.NewTrashService(ctx).Restore(ctx, id)
	reply(c, http.StatusOK, item, err)
}

// PurgeTrash DELETE /trash/:id 永久删除.
func PurgeTrash(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}

	ctx := c.Request.Context()
	noContent(c, service.NewTrashService(ctx).Purge(ctx, id))
}

// PurgeExpiredTrash POST /trash/purge 立即清理两个存储中的过期条目.
func PurgeExpiredTrash(c *gin.Context) {
	mgr := ctxPkg.GetManager(c.Request.Context())
	if mgr == nil {
		fail(c, domain.Unavailable("storage", nil))
		return
	}

	c.JSON(http.StatusOK, types.NewList(service.PurgeExpired(c.Request.Context(), mgr, time.Now().UTC())))
}

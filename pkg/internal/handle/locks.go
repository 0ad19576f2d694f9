package handle

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yeisme/tmvault/pkg/internal/domain"
	"github.com/yeisme/tmvault/pkg/internal/service"
	"github.com/yeisme/tmvault/pkg/internal/types"
)

// LockFile POST /files/:id/lock.
func LockFile(c *gin.Context) { acquire(c, domain.FileRef) }

// UnlockFile DELETE /files/:id/lock.
func UnlockFile(c *gin.Context) { release(c, domain.FileRef) }

// GetFileLock GET /files/:id/lock.
func GetFileLock(c *gin.Context) { current(c, domain.FileRef) }

// LockRow POST /rows/:id/lock.
func LockRow(c *gin.Context) { acquire(c, domain.RowRef) }

// UnlockRow DELETE /rows/:id/lock.
func UnlockRow(c *gin.Context) { release(c, domain.RowRef) }

// GetRowLock GET /rows/:id/lock.
func GetRowLock(c *gin.Context) { current(c, domain.RowRef) }

// ListLocks GET /locks.
func ListLocks(c *gin.Context) {
	ctx := c.Request.Context()
	items, err := service.NewLockService(ctx).List(ctx)
	list(c, items, err)
}

func acquire(c *gin.Context, ref func(int64) domain.RecordRef) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}

	ctx := c.Request.Context()
	l, err := service.NewLockService(ctx).Acquire(ctx, ref(id))
	reply(c, http.StatusOK, l, err)
}

func release(c *gin.Context, ref func(int64) domain.RecordRef) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}

	ctx := c.Request.Context()
	err := service.NewLockService(ctx).Release(ctx, ref(id))
	reply(c, http.StatusOK, types.ActionResponse{Affected: 1, Message: "lock released"}, err)
}

func current(c *gin.Context, ref func(int64) domain.RecordRef) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}

	ctx := c.Request.Context()
	l, err := service.NewLockService(ctx).Get(ctx, ref(id))
	reply(c, http.StatusOK, l, err)
}

package handle

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yeisme/tmvault/pkg/internal/service"
	"github.com/yeisme/tmvault/pkg/internal/syncer"
	"github.com/yeisme/tmvault/pkg/internal/types"
)

type syncOp func(*service.SyncService, context.Context, int64) (*syncer.Report, error)

// transfer 执行一次同步；冲突以通知形式出现在 200 响应中.
// 取消时仍返回已完成部分的报告.
func transfer(op syncOp) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := paramID(c, "id")
		if !ok {
			return
		}

		ctx := c.Request.Context()

		report, err := op(service.NewSyncService(ctx), ctx, id)
		if err != nil && (report == nil || !report.Cancelled) {
			fail(c, err)
			return
		}

		c.JSON(http.StatusOK, report)
	}
}

// 同步路由：中心库 id 用于 download，本地 id 用于 upload 与 merge.
var (
	SyncDownloadFile   = transfer((*service.SyncService).DownloadFile)
	SyncUploadFile     = transfer((*service.SyncService).UploadFile)
	SyncMergeFile      = transfer((*service.SyncService).MergeFile)
	SyncDownloadFolder = transfer((*service.SyncService).DownloadFolder)
	SyncUploadFolder   = transfer((*service.SyncService).UploadFolder)
	SyncDownloadTM     = transfer((*service.SyncService).DownloadTM)
	SyncUploadTM       = transfer((*service.SyncService).UploadTM)
)

// SyncStatus GET /sync/status/:entity/:key.
func SyncStatus(c *gin.Context) {
	ctx := c.Request.Context()
	meta, err := service.NewSyncService(ctx).Status(ctx, c.Param("entity"), c.Param("key"))
	reply(c, http.StatusOK, meta, err)
}

// SyncReassign POST /sync/files/:id/reassign 为 orphaned 文件指定新的归属.
func SyncReassign(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}

	var req types.ReassignRequest
	if !bindJSON(c, &req) {
		return
	}

	ctx := c.Request.Context()
	f, err := service.NewSyncService(ctx).Reassign(ctx, id, req.ProjectID, req.FolderID)
	reply(c, http.StatusOK, f, err)
}

// SyncLocalOnly POST /sync/files/:id/local-only.
func SyncLocalOnly(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}

	ctx := c.Request.Context()
	f, err := service.NewSyncService(ctx).ConvertToLocalOnly(ctx, id)
	reply(c, http.StatusOK, f, err)
}

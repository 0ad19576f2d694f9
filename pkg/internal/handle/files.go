package handle

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yeisme/tmvault/pkg/internal/domain"
	"github.com/yeisme/tmvault/pkg/internal/service"
	"github.com/yeisme/tmvault/pkg/internal/types"
	"github.com/yeisme/tmvault/pkg/log"
)

// ListFiles GET /files.
func ListFiles(c *gin.Context) {
	var q types.FileQuery
	if !bindQuery(c, &q) {
		return
	}

	ctx := c.Request.Context()
	items, err := service.NewFileService(ctx).List(ctx, q.Filter())
	list(c, items, err)
}

// GetFile GET /files/:id.
func GetFile(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}

	ctx := c.Request.Context()
	f, err := service.NewFileService(ctx).Get(ctx, id)
	reply(c, http.StatusOK, f, err)
}

// CreateFile POST /files.
func CreateFile(c *gin.Context) {
	var in domain.FileInput
	if !bindJSON(c, &in) {
		return
	}

	ctx := c.Request.Context()
	f, err := service.NewFileService(ctx).Create(ctx, in)
	reply(c, http.StatusCreated, f, err)
}

// UpdateFile PATCH /files/:id，synced 文件变为 modified.
func UpdateFile(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}

	var patch domain.FilePatch
	if !bindJSON(c, &patch) {
		return
	}

	ctx := c.Request.Context()
	f, err := service.NewFileService(ctx).Update(ctx, id, patch)
	reply(c, http.StatusOK, f, err)
}

// DeleteFile DELETE /files/:id.
func DeleteFile(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}

	ctx := c.Request.Context()
	noContent(c, service.NewFileService(ctx).Delete(ctx, id))
}

// FileTMs GET /files/:id/tms 返回按层级排列的生效 TM.
func FileTMs(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}

	ctx := c.Request.Context()
	items, err := service.NewFileService(ctx).TMs(ctx, id)
	list(c, items, err)
}

// MatchFile GET /files/:id/match?source=.
func MatchFile(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}

	var q types.MatchQuery
	if !bindQuery(c, &q) {
		return
	}

	ctx := c.Request.Context()
	items, err := service.NewFileService(ctx).Match(ctx, id, q.Source)
	list(c, items, err)
}

// OpenFile GET /files/:id/open：自动同步、解析 TM 并加入在线列表.
func OpenFile(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}

	ctx := c.Request.Context()
	res, err := service.NewFileService(ctx).Open(ctx, id)
	reply(c, http.StatusOK, res, err)
}

// CloseFile DELETE /files/:id/open.
func CloseFile(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}

	ctx := c.Request.Context()
	noContent(c, service.NewFileService(ctx).Close(ctx, id))
}

// FileViewers GET /files/:id/viewers.
func FileViewers(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}

	ctx := c.Request.Context()
	items, err := service.NewFileService(ctx).Viewers(ctx, id)
	list(c, items, err)
}

// FilePresence GET /files/:id/presence/ws 订阅文件的锁与在线事件.
func FilePresence(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}

	err := service.NewFileService(c.Request.Context()).Watch(c.Writer, c.Request, id)
	if err == nil {
		return
	}

	// 升级之后连接已被接管，只能记录日志
	if c.Writer.Written() {
		l := log.Logger()
		l.Warn().Err(err).Int64("file_id", id).Msg("presence websocket closed with error")

		return
	}

	fail(c, err)
}

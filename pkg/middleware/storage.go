package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yeisme/tmvault/pkg/context"
	"github.com/yeisme/tmvault/pkg/internal/domain"
	"github.com/yeisme/tmvault/pkg/internal/storage"
)

// StorageMiddleware 将存储 Manager 注入请求上下文；Manager 未初始化时直接返回 503.
func StorageMiddleware(manager *storage.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		if manager == nil || manager.Factory == nil {
			abort(c, http.StatusServiceUnavailable, domain.KindStoreUnavailable, "storage is not initialized")
			return
		}

		c.Request = c.Request.WithContext(context.WithStorageManager(c.Request.Context(), manager))
		c.Next()
	}
}

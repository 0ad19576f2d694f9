package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/yeisme/tmvault/pkg/internal/domain"
	"github.com/yeisme/tmvault/pkg/internal/types"
)

// 中间件层的错误类别，领域层不会产生.
const (
	KindUnauthorized domain.Kind = "unauthorized"
	KindRateLimited  domain.Kind = "rate_limited"
)

// abort 以与处理器一致的 {"error": {"kind", "reason"}} 结构终止请求.
func abort(c *gin.Context, status int, kind domain.Kind, reason string) {
	c.AbortWithStatusJSON(status, types.ErrorBody{Error: types.ErrorDetail{Kind: kind, Reason: reason}})
}

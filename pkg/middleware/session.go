package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/yeisme/tmvault/pkg/configs"
	"github.com/yeisme/tmvault/pkg/internal/session"
)

// 会话相关请求头.
const (
	HeaderAuthEmail      = "X-Auth-Request-Email"
	HeaderForwardedEmail = "X-Forwarded-Email"
	HeaderSessionID      = "X-Session-ID"
	HeaderSessionMode    = "X-Session-Mode"
)

// SessionMiddleware 从认证代理注入的请求头构造会话并写入 request context.
// 缺少 X-Session-ID 时生成新的 id 并通过响应头返回，客户端后续请求应带上它.
func SessionMiddleware(conf configs.AuthConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		s := session.New(
			strings.TrimSpace(c.GetHeader(HeaderSessionID)),
			identity(c, conf),
			session.ParseMode(c.GetHeader(HeaderSessionMode)),
		)

		c.Header(HeaderSessionID, s.ID)
		c.Request = c.Request.WithContext(session.With(c.Request.Context(), s))
		c.Next()
	}
}

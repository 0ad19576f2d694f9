package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/yeisme/tmvault/pkg/configs"
)

// AuthMiddleware 拒绝没有身份的请求，auth.skip_paths 中的路径前缀除外.
// 身份本身由 SessionMiddleware 写入会话.
func AuthMiddleware(conf configs.AuthConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !conf.Enabled || isSkippedPath(c.Request.URL.Path, conf.SkipPaths) {
			c.Next()
			return
		}

		if identity(c, conf) == "" {
			abort(c, http.StatusUnauthorized, KindUnauthorized, "missing "+HeaderAuthEmail)
			return
		}

		c.Next()
	}
}

// identity 按 auth.identity_headers 的顺序取请求方身份，未配置时使用 oauth2-proxy 的默认头.
func identity(c *gin.Context, conf configs.AuthConfig) string {
	headers := conf.IdentityHeaders
	if len(headers) == 0 {
		headers = []string{HeaderAuthEmail, HeaderForwardedEmail}
	}

	for _, h := range headers {
		if v := strings.TrimSpace(c.GetHeader(h)); v != "" {
			return v
		}
	}

	if conf.DevAllowQuery {
		return strings.TrimSpace(c.Query("user"))
	}

	return ""
}

func isSkippedPath(path string, skips []string) bool {
	for _, p := range skips {
		if p = strings.TrimSpace(p); p != "" && strings.HasPrefix(path, p) {
			return true
		}
	}

	return false
}

package middleware

import (
	"bytes"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	appcache "github.com/yeisme/tmvault/pkg/cache"
	"github.com/yeisme/tmvault/pkg/internal/session"
	"github.com/yeisme/tmvault/pkg/log"
)

// CacheConfig 响应缓存配置.
type CacheConfig struct {
	Cache  *appcache.Cache
	TTL    time.Duration
	Prefix string
	// PerUser 为 true 时键中包含会话用户，用于带权限差异的响应.
	PerUser bool
}

// DefaultCacheConfig 返回只缓存 GET 200 响应、TTL 为 30s 的配置.
func DefaultCacheConfig(c *appcache.Cache) CacheConfig {
	return CacheConfig{Cache: c, TTL: 30 * time.Second, Prefix: "tv.http."}
}

// cachedResponse 缓存在 KV 中的响应.
type cachedResponse struct {
	Status      int    `json:"status"`
	ContentType string `json:"content_type"`
	Body        []byte `json:"body"`
}

type captureWriter struct {
	gin.ResponseWriter
	buf bytes.Buffer
}

func (w *captureWriter) Write(b []byte) (int, error) {
	w.buf.Write(b)
	return w.ResponseWriter.Write(b)
}

func (w *captureWriter) WriteString(s string) (int, error) {
	w.buf.WriteString(s)
	return w.ResponseWriter.WriteString(s)
}

// CacheMiddleware 按连接模式缓存 GET 响应；中心库与本地库的结果不能共用一个键.
// 请求带 Cache-Control: no-cache 时绕过缓存.
func CacheMiddleware(cfg CacheConfig) gin.HandlerFunc {
	logger := log.Component("cache")

	return func(c *gin.Context) {
		if cfg.Cache == nil || cfg.TTL <= 0 || c.Request.Method != http.MethodGet ||
			strings.Contains(c.GetHeader("Cache-Control"), "no-cache") {
			c.Next()
			return
		}

		key := cacheKey(c, cfg)
		ctx := c.Request.Context()

		if hit, err := appcache.Get[cachedResponse](ctx, cfg.Cache, key); err == nil {
			c.Header("X-Cache", "HIT")
			c.Data(hit.Status, hit.ContentType, hit.Body)
			c.Abort()

			return
		}

		w := &captureWriter{ResponseWriter: c.Writer}
		c.Writer = w
		c.Header("X-Cache", "MISS")

		c.Next()

		if w.Status() != http.StatusOK || len(c.Errors) > 0 {
			return
		}

		entry := cachedResponse{
			Status:      w.Status(),
			ContentType: w.Header().Get("Content-Type"),
			Body:        w.buf.Bytes(),
		}

		if err := appcache.Set(ctx, cfg.Cache, key, entry, cfg.TTL); err != nil {
			logger.Warn().Err(err).Str("key", key).Msg("store cached response")
		}
	}
}

func cacheKey(c *gin.Context, cfg CacheConfig) string {
	s := session.From(c.Request.Context())

	var b strings.Builder

	b.WriteString(cfg.Prefix)
	b.WriteString(string(s.Mode))
	b.WriteByte('.')

	if cfg.PerUser {
		b.WriteString(s.User)
		b.WriteByte('.')
	}

	b.WriteString(c.Request.URL.Path)

	if q := c.Request.URL.RawQuery; q != "" {
		b.WriteByte('?')
		b.WriteString(q)
	}

	return b.String()
}

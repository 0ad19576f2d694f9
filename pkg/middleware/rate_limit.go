package middleware

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/yeisme/tmvault/pkg/configs"
	"github.com/yeisme/tmvault/pkg/internal/session"
)

const limiterIdleTTL = 10 * time.Minute

// limiterSet 按键维护令牌桶，闲置超过 limiterIdleTTL 的条目在下次清理时移除.
type limiterSet struct {
	mu       sync.Mutex
	rps      rate.Limit
	burst    int
	entries  map[string]*limiterEntry
	lastScan time.Time
}

type limiterEntry struct {
	l    *rate.Limiter
	seen time.Time
}

func newLimiterSet(rps float64, burst int) *limiterSet {
	if burst <= 0 {
		burst = int(rps) + 1
	}

	return &limiterSet{rps: rate.Limit(rps), burst: burst, entries: map[string]*limiterEntry{}}
}

func (s *limiterSet) allow(key string, now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if now.Sub(s.lastScan) > limiterIdleTTL {
		for k, e := range s.entries {
			if now.Sub(e.seen) > limiterIdleTTL {
				delete(s.entries, k)
			}
		}

		s.lastScan = now
	}

	e, ok := s.entries[key]
	if !ok {
		e = &limiterEntry{l: rate.NewLimiter(s.rps, s.burst)}
		s.entries[key] = e
	}

	e.seen = now

	return e.l.AllowN(now, 1)
}

// RateLimitMiddleware 返回一个基于配置的限流中间件.
// 同步接口另有一组更严格的令牌桶，避免批量同步挤占普通读写.
func RateLimitMiddleware(cfg configs.RateLimitConfig) gin.HandlerFunc {
	if !cfg.Enabled || cfg.RPS <= 0 {
		return func(c *gin.Context) { c.Next() }
	}

	general := newLimiterSet(cfg.RPS, cfg.Burst)

	var syncSet *limiterSet
	if cfg.SyncRPS > 0 {
		syncSet = newLimiterSet(cfg.SyncRPS, cfg.SyncBurst)
	}

	keyOf := limitKey(strings.ToLower(strings.TrimSpace(cfg.Key)))

	return func(c *gin.Context) {
		key := keyOf(c)
		now := time.Now()

		set := general
		if syncSet != nil && strings.Contains(c.Request.URL.Path, "/sync/") {
			set = syncSet
		}

		if !set.allow(key, now) {
			c.Header("Retry-After", "1")
			abort(c, http.StatusTooManyRequests, KindRateLimited, "too many requests for "+key)

			return
		}

		c.Next()
	}
}

// limitKey 选择限流维度：global、ip、user、session 或 header:Name.
func limitKey(mode string) func(*gin.Context) string {
	switch {
	case mode == "" || mode == "global":
		return func(*gin.Context) string { return "global" }
	case mode == "user":
		return func(c *gin.Context) string {
			if u := session.From(c.Request.Context()).User; u != "" {
				return "user:" + u
			}

			return "ip:" + clientIP(c)
		}
	case mode == "session":
		return func(c *gin.Context) string {
			if id := c.GetHeader(HeaderSessionID); id != "" {
				return "session:" + id
			}

			return "ip:" + clientIP(c)
		}
	case strings.HasPrefix(mode, "header:"):
		h := strings.TrimPrefix(mode, "header:")

		return func(c *gin.Context) string {
			if v := c.GetHeader(h); v != "" {
				return h + ":" + v
			}

			return "ip:" + clientIP(c)
		}
	default:
		return func(c *gin.Context) string { return "ip:" + clientIP(c) }
	}
}

func clientIP(c *gin.Context) string {
	if ip := c.ClientIP(); ip != "" {
		return ip
	}

	if host, _, err := net.SplitHostPort(c.Request.RemoteAddr); err == nil {
		return host
	}

	return c.Request.RemoteAddr
}

package handle

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	ctxPkg "github.com/yeisme/tmvault/pkg/context"
)

const timeout = 2 * time.Second

func unhealthy(c *gin.Context, component, msg string) {
	c.JSON(http.StatusServiceUnavailable, gin.H{"component": component, "status": "unhealthy", "error": msg})
}

// Health 汇总状态：本地库必须可用，中心库状态取自熔断器.
func Health(c *gin.Context) {
	mgr := ctxPkg.GetManager(c.Request.Context())
	if mgr == nil || mgr.Factory == nil {
		unhealthy(c, "storage", "storage manager not initialized")
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), timeout)
	defer cancel()

	status := http.StatusOK
	body := gin.H{"status": "ok", "central": mgr.Factory.State()}

	if mgr.Central == nil {
		body["central"] = "not configured"
	}

	if err := mgr.Local.DB().PingContext(ctx); err != nil {
		status = http.StatusServiceUnavailable
		body["status"] = "unhealthy"
		body["local"] = err.Error()
	} else {
		body["local"] = "ok"
	}

	c.JSON(status, body)
}

// HealthCentral 中心库健康检查，经熔断器探测.
func HealthCentral(c *gin.Context) {
	mgr := ctxPkg.GetManager(c.Request.Context())
	if mgr == nil || mgr.Factory == nil {
		unhealthy(c, "central", "storage manager not initialized")
		return
	}

	if err := mgr.Factory.Probe(c.Request.Context()); err != nil {
		unhealthy(c, "central", err.Error())
		return
	}

	c.JSON(http.StatusOK, gin.H{"component": "central", "status": "ok", "breaker": mgr.Factory.State()})
}

// HealthLocal 本地库健康检查.
func HealthLocal(c *gin.Context) {
	mgr := ctxPkg.GetManager(c.Request.Context())
	if mgr == nil || mgr.Local == nil {
		unhealthy(c, "local", "local store not initialized")
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), timeout)
	defer cancel()

	if err := mgr.Local.DB().PingContext(ctx); err != nil {
		unhealthy(c, "local", err.Error())
		return
	}

	c.JSON(http.StatusOK, gin.H{"component": "local", "status": "ok"})
}

// HealthKV 锁与在线状态使用的 KV 健康检查.
func HealthKV(c *gin.Context) {
	kvc := ctxPkg.GetKVClient(c.Request.Context())
	if kvc == nil {
		unhealthy(c, "kv", "kv client not initialized")
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), timeout)
	defer cancel()

	if _, err := kvc.Exists(ctx, "tv.health"); err != nil {
		unhealthy(c, "kv", err.Error())
		return
	}

	c.JSON(http.StatusOK, gin.H{"component": "kv", "status": "ok"})
}

// HealthMQ 消息队列健康检查.
func HealthMQ(c *gin.Context) {
	mqc := ctxPkg.GetMQClient(c.Request.Context())
	if mqc == nil { // publisher 与 subscriber 初始化在 New 中, 判空即可
		unhealthy(c, "mq", "mq client not initialized")
		return
	}

	c.JSON(http.StatusOK, gin.H{"component": "mq", "status": "ok", "type": mqc.Type()})
}

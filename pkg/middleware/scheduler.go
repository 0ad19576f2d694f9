package middleware

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/yeisme/tmvault/pkg/scheduler"
)

type schedulerKey struct{}

// SchedulerMiddleware 注入后台任务调度器，供任务管理接口使用.
func SchedulerMiddleware(sched *scheduler.Scheduler) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request = c.Request.WithContext(context.WithValue(c.Request.Context(), schedulerKey{}, sched))
		c.Next()
	}
}

// GetScheduler 取出调度器；CLI 等未注入的场景返回 nil.
func GetScheduler(c *gin.Context) *scheduler.Scheduler {
	sched, _ := c.Request.Context().Value(schedulerKey{}).(*scheduler.Scheduler)
	return sched
}

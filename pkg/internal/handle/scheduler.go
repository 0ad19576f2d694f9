package handle

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yeisme/tmvault/pkg/internal/domain"
	"github.com/yeisme/tmvault/pkg/internal/types"
	"github.com/yeisme/tmvault/pkg/middleware"
	"github.com/yeisme/tmvault/pkg/scheduler"
)

// schedulerOf 取出调度器，未启用时写入 503.
func schedulerOf(c *gin.Context) (*scheduler.Scheduler, bool) {
	sched := middleware.GetScheduler(c)
	if sched == nil {
		fail(c, domain.Unavailable("scheduler", errors.New("scheduler is not running")))
		return nil, false
	}

	return sched, true
}

// jobErr 将调度器错误映射为领域错误.
func jobErr(name string, err error) error {
	if errors.Is(err, scheduler.ErrJobNotFound) {
		return domain.NotFound("job", name)
	}

	return err
}

// SchedulerJobs 列出后台任务及其最近一次执行结果.
func SchedulerJobs(c *gin.Context) {
	if sched, ok := schedulerOf(c); ok {
		list(c, sched.GetJobInfos(), nil)
	}
}

// SchedulerJob 返回单个任务信息.
func SchedulerJob(c *gin.Context) {
	sched, ok := schedulerOf(c)
	if !ok {
		return
	}

	name := c.Param("name")
	info, err := sched.GetJobInfoByName(name)
	reply(c, http.StatusOK, info, jobErr(name, err))
}

// SchedulerRunJob 立即触发一次任务，执行是异步的.
func SchedulerRunJob(c *gin.Context) {
	sched, ok := schedulerOf(c)
	if !ok {
		return
	}

	name := c.Param("name")
	err := jobErr(name, sched.RunNow(name))
	reply(c, http.StatusAccepted, types.ActionResponse{Affected: 1, Message: "job " + name + " triggered"}, err)
}

// SchedulerRemoveJob 按名称移除任务，直到下次启动前不再执行.
func SchedulerRemoveJob(c *gin.Context) {
	sched, ok := schedulerOf(c)
	if !ok {
		return
	}

	name := c.Param("name")
	noContent(c, jobErr(name, sched.RemoveJobByName(name)))
}

// SchedulerStopJobs 停止触发所有任务.
func SchedulerStopJobs(c *gin.Context) {
	sched, ok := schedulerOf(c)
	if !ok {
		return
	}

	n := len(sched.GetJobInfos())
	reply(c, http.StatusOK, types.ActionResponse{Affected: n, Message: "jobs stopped"}, sched.StopJobs())
}

// SchedulerQueueWaiting 返回队列中等待执行的任务数.
func SchedulerQueueWaiting(c *gin.Context) {
	if sched, ok := schedulerOf(c); ok {
		c.JSON(http.StatusOK, gin.H{"waiting": sched.JobsWaitingInQueue()})
	}
}

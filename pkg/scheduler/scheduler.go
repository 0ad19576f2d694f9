// Package scheduler 基于 gocron/v2 运行后台维护任务，记录每个任务的执行状态、指标与追踪.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/yeisme/tmvault/pkg/log"
	"github.com/yeisme/tmvault/pkg/metrics"
	"github.com/yeisme/tmvault/pkg/tracing"
)

// ErrJobNotFound 指定名称的任务不存在.
var ErrJobNotFound = errors.New("job not found")

// JobStatus 表示任务的状态类型.
type JobStatus string

const (
	StatusScheduled JobStatus = "scheduled"
	StatusRunning   JobStatus = "running"
	StatusError     JobStatus = "error"
)

// Func 任务函数，返回的错误记录到任务状态中.
type Func func(ctx context.Context) error

// JobInfo 任务的执行信息.
type JobInfo struct {
	ID          string        `json:"id"`
	Name        string        `json:"name"`
	CronExpr    string        `json:"cron_expr"`
	NextRun     time.Time     `json:"next_run"`
	LastRun     time.Time     `json:"last_run,omitzero"`
	LastSuccess time.Time     `json:"last_success,omitzero"`
	LastElapsed time.Duration `json:"last_elapsed"`
	Runs        int           `json:"runs"`
	Status      JobStatus     `json:"status"`
	Error       string        `json:"error,omitempty"`
}

type entry struct {
	job  gocron.Job
	info JobInfo
}

// Scheduler 调度器.
type Scheduler struct {
	cron   gocron.Scheduler
	mu     sync.RWMutex
	jobs   map[string]*entry
	logger zerolog.Logger
}

// NewScheduler 创建调度器，需调用 Start 才开始触发.
func NewScheduler() (*Scheduler, error) {
	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, err
	}

	return &Scheduler{
		cron:   s,
		jobs:   make(map[string]*entry),
		logger: log.Component("scheduler"),
	}, nil
}

// AddCron 按 cron 表达式注册任务；同一任务不会重叠执行，上一次未结束时本次跳过.
func (s *Scheduler) AddCron(name, cronExpr string, fn Func, ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.jobs[name]; ok {
		return fmt.Errorf("job %s already exists", name)
	}

	j, err := s.cron.NewJob(
		gocron.CronJob(cronExpr, false),
		gocron.NewTask(func(ctx context.Context) { s.run(ctx, name, fn) }, ctx),
		gocron.WithName(name),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return fmt.Errorf("job %s: %w", name, err)
	}

	next, _ := j.NextRun()
	s.jobs[name] = &entry{job: j, info: JobInfo{
		ID:       j.ID().String(),
		Name:     name,
		CronExpr: cronExpr,
		NextRun:  next,
		Status:   StatusScheduled,
	}}

	s.logger.Info().Str("job", name).Str("cron", cronExpr).Msg("job registered")

	return nil
}

// run 执行一次任务并记录结果，任务 panic 视为失败.
func (s *Scheduler) run(ctx context.Context, name string, fn Func) {
	ctx, span := tracing.StartSpan(ctx, "job "+name)
	defer span.End()

	span.SetAttributes(attribute.String("job.name", name))

	start := time.Now()
	s.update(name, func(i *JobInfo) {
		i.Status = StatusRunning
		i.LastRun = start
	})

	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("panic: %v", r)
			}
		}()

		return fn(ctx)
	}()

	elapsed := time.Since(start)
	result := "ok"

	if err != nil {
		result = "error"

		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.logger.Error().Err(err).Str("job", name).Dur("elapsed", elapsed).Msg("job failed")
	} else {
		s.logger.Debug().Str("job", name).Dur("elapsed", elapsed).Msg("job finished")
	}

	metrics.JobRuns.WithLabelValues(name, result).Inc()
	metrics.JobDuration.WithLabelValues(name).Observe(elapsed.Seconds())

	s.update(name, func(i *JobInfo) {
		i.Runs++
		i.LastElapsed = elapsed
		i.Status = StatusScheduled
		i.Error = ""

		if err != nil {
			i.Status = StatusError
			i.Error = err.Error()

			return
		}

		i.LastSuccess = time.Now()
	})
}

func (s *Scheduler) update(name string, fn func(*JobInfo)) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.jobs[name]; ok {
		fn(&e.info)
	}
}

// RunNow 立即触发一次任务，不影响原有计划.
func (s *Scheduler) RunNow(name string) error {
	s.mu.RLock()
	e, ok := s.jobs[name]
	s.mu.RUnlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrJobNotFound, name)
	}

	return e.job.RunNow()
}

// RemoveJobByName 通过名称移除任务.
func (s *Scheduler) RemoveJobByName(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.jobs[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrJobNotFound, name)
	}

	if err := s.cron.RemoveJob(e.job.ID()); err != nil {
		return err
	}

	delete(s.jobs, name)
	s.logger.Info().Str("job", name).Msg("job removed")

	return nil
}

// GetJobByName 通过名称获取任务.
func (s *Scheduler) GetJobByName(name string) (gocron.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.jobs[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, name)
	}

	return e.job, nil
}

// GetJobInfoByName 通过名称获取任务信息.
func (s *Scheduler) GetJobInfoByName(name string) (JobInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.jobs[name]
	if !ok {
		return JobInfo{}, fmt.Errorf("%w: %s", ErrJobNotFound, name)
	}

	return s.snapshot(e), nil
}

// GetJobInfos 返回所有任务信息，按名称排序.
func (s *Scheduler) GetJobInfos() []JobInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]JobInfo, 0, len(s.jobs))
	for _, e := range s.jobs {
		out = append(out, s.snapshot(e))
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })

	return out
}

func (s *Scheduler) snapshot(e *entry) JobInfo {
	info := e.info
	if next, err := e.job.NextRun(); err == nil {
		info.NextRun = next
	}

	return info
}

// Start 启动调度器.
func (s *Scheduler) Start() {
	s.logger.Info().Int("jobs", len(s.GetJobInfos())).Msg("scheduler started")
	s.cron.Start()
}

// StopJobs 停止触发所有任务，已在运行的任务会执行完.
func (s *Scheduler) StopJobs() error {
	return s.cron.StopJobs()
}

// JobsWaitingInQueue 等待执行的任务数.
func (s *Scheduler) JobsWaitingInQueue() int {
	return s.cron.JobsWaitingInQueue()
}

// Shutdown 停止调度器并等待运行中的任务结束.
func (s *Scheduler) Shutdown() error {
	return s.cron.Shutdown()
}

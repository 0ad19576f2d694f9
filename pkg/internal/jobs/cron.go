// Package jobs 负责注册与实现业务定时任务（基于 scheduler）。
package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/yeisme/tmvault/pkg/configs"
	ctxPkg "github.com/yeisme/tmvault/pkg/context"
	"github.com/yeisme/tmvault/pkg/internal/service"
	"github.com/yeisme/tmvault/pkg/internal/storage"
	"github.com/yeisme/tmvault/pkg/log"
	"github.com/yeisme/tmvault/pkg/scheduler"
)

// RegisterCronJobs 配置业务定时任务：
//   - 回收站过期条目清理，按 trash.purge_cron 执行
//   - 过期记录锁回收，按 locks.sweep_cron 执行
//   - 中心库健康探测，按 sync.health_probe_cron 执行，探测失败时断路器保持打开
func RegisterCronJobs(sched *scheduler.Scheduler, mgr *storage.Manager, cfg *configs.AppConfig) error {
	if sched == nil {
		return fmt.Errorf("scheduler is nil")
	}

	if mgr == nil {
		return fmt.Errorf("storage manager is nil")
	}

	// 将 storage manager 注入到 context，便于 service 使用
	baseCtx := ctxPkg.WithStorageManager(context.Background(), mgr)

	if err := sched.AddCron(JobTrashPurge, cfg.Trash.PurgeCron, func(ctx context.Context) error {
		return runTrashPurge(ctx, mgr)
	}, baseCtx); err != nil {
		return fmt.Errorf("register %s: %w", JobTrashPurge, err)
	}

	if err := sched.AddCron(JobLockSweep, cfg.Locks.SweepCron, func(ctx context.Context) error {
		return runLockSweep(ctx, mgr)
	}, baseCtx); err != nil {
		return fmt.Errorf("register %s: %w", JobLockSweep, err)
	}

	if cfg.Sync.HealthProbeCron == "" {
		return nil
	}

	if err := sched.AddCron(JobCentralProbe, cfg.Sync.HealthProbeCron, func(ctx context.Context) error {
		runCentralProbe(ctx, mgr)
		return nil
	}, baseCtx); err != nil {
		return fmt.Errorf("register %s: %w", JobCentralProbe, err)
	}

	return nil
}

// runTrashPurge 清理两个存储中超过保留期的回收站条目；任一存储失败时任务记为失败.
func runTrashPurge(ctx context.Context, mgr *storage.Manager) error {
	l := log.Logger().With().Str("job", JobTrashPurge).Logger()

	var (
		purged int
		errs   []error
	)

	for _, res := range service.PurgeExpired(ctx, mgr, time.Now().UTC()) {
		purged += res.Purged

		if res.Error != "" {
			errs = append(errs, fmt.Errorf("%s: %s", res.Store, res.Error))
		}
	}

	l.Debug().Int("purged", purged).Msg("trash purge finished")

	return errors.Join(errs...)
}

// runLockSweep 删除已过期的记录锁并广播释放事件.
func runLockSweep(ctx context.Context, mgr *storage.Manager) error {
	n, err := mgr.Locks.Sweep(ctx)
	if err != nil {
		return fmt.Errorf("sweep locks: %w", err)
	}

	if n > 0 {
		l := log.Logger().With().Str("job", JobLockSweep).Logger()
		l.Info().Int("expired", n).Msg("swept expired locks")
	}

	return nil
}

// runCentralProbe 探测中心库，结果反馈到工厂的断路器.
func runCentralProbe(ctx context.Context, mgr *storage.Manager) {
	l := log.Logger().With().Str("job", JobCentralProbe).Logger()

	if err := mgr.Factory.Probe(ctx); err != nil {
		l.Warn().Err(err).Str("state", mgr.Factory.State()).Msg("central store unreachable")
		return
	}

	l.Debug().Str("state", mgr.Factory.State()).Msg("central store reachable")
}

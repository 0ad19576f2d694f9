package jobs_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/yeisme/tmvault/pkg/configs"
	"github.com/yeisme/tmvault/pkg/internal/jobs"
	"github.com/yeisme/tmvault/pkg/internal/storage"
	"github.com/yeisme/tmvault/pkg/scheduler"
)

func newConfig(t *testing.T) *configs.AppConfig {
	t.Helper()

	return &configs.AppConfig{
		// 中心库指向不存在的驱动，只启用本地库
		Central:  configs.DBConfig{Type: configs.DBType("oracle"), DSN: "unused"},
		Local:    configs.LocalStoreConfig{Path: filepath.Join(t.TempDir(), "local.db")},
		KV:       configs.KVConfig{Type: "memory"},
		MQ:       configs.MQConfig{Type: configs.MQTypeGoChannel},
		Locks:    configs.LocksConfig{TTL: time.Minute, SweepCron: configs.DefaultLockSweepCron},
		Presence: configs.PresenceConfig{HeartbeatTTL: time.Minute},
		TM:       configs.TMConfig{MaxFolderDepth: configs.DefaultMaxFolderDepth},
		Sync:     configs.SyncConfig{HealthProbeCron: configs.DefaultHealthProbeCron},
		Trash:    configs.TrashConfig{RetentionDays: 1, PurgeCron: configs.DefaultTrashPurgeCron},
	}
}

// TestRegisterCronJobs 测试三个任务都注册到调度器.
func TestRegisterCronJobs(t *testing.T) {
	cfg := newConfig(t)

	mgr, err := storage.New(context.Background(), cfg)
	if err != nil {
		t.Fatalf("new storage manager: %v", err)
	}

	t.Cleanup(func() { _ = mgr.Close() })

	if mgr.Central != nil {
		t.Fatal("central store should be unavailable")
	}

	sched, err := scheduler.NewScheduler()
	if err != nil {
		t.Fatalf("new scheduler: %v", err)
	}

	t.Cleanup(func() { _ = sched.Shutdown() })

	if err := jobs.RegisterCronJobs(sched, mgr, cfg); err != nil {
		t.Fatalf("register: %v", err)
	}

	for _, name := range []string{jobs.JobTrashPurge, jobs.JobLockSweep, jobs.JobCentralProbe} {
		if _, err := sched.GetJobByName(name); err != nil {
			t.Errorf("job %s not registered: %v", name, err)
		}
	}
}

// TestRegisterCronJobsNil 测试缺少依赖时返回错误.
func TestRegisterCronJobsNil(t *testing.T) {
	if err := jobs.RegisterCronJobs(nil, nil, newConfig(t)); err == nil {
		t.Error("expected error for nil scheduler")
	}
}

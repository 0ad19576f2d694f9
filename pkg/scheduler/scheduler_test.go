package scheduler_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/yeisme/tmvault/pkg/scheduler"
)

// yearly 只在每年一月一日触发，测试中不会自然执行.
const yearly = "0 0 1 1 *"

func newScheduler(t *testing.T) *scheduler.Scheduler {
	t.Helper()

	s, err := scheduler.NewScheduler()
	if err != nil {
		t.Fatalf("new scheduler: %v", err)
	}

	t.Cleanup(func() { _ = s.Shutdown() })

	return s
}

// waitRuns 等待任务执行次数达到 n.
func waitRuns(t *testing.T, s *scheduler.Scheduler, name string, n int) scheduler.JobInfo {
	t.Helper()

	deadline := time.Now().Add(5 * time.Second)

	for time.Now().Before(deadline) {
		info, err := s.GetJobInfoByName(name)
		if err != nil {
			t.Fatalf("job info: %v", err)
		}

		if info.Runs >= n && info.Status != scheduler.StatusRunning {
			return info
		}

		time.Sleep(10 * time.Millisecond)
	}

	t.Fatalf("job %s did not run %d times", name, n)

	return scheduler.JobInfo{}
}

// TestRunNow 测试手动触发任务并记录成功时间.
func TestRunNow(t *testing.T) {
	s := newScheduler(t)

	var calls atomic.Int32

	err := s.AddCron("count", yearly, func(context.Context) error {
		calls.Add(1)
		return nil
	}, context.Background())
	if err != nil {
		t.Fatalf("add cron: %v", err)
	}

	s.Start()

	if err := s.RunNow("count"); err != nil {
		t.Fatalf("run now: %v", err)
	}

	info := waitRuns(t, s, "count", 1)

	if info.Status != scheduler.StatusScheduled {
		t.Errorf("status = %s, want %s", info.Status, scheduler.StatusScheduled)
	}

	if info.LastSuccess.IsZero() {
		t.Error("last success not recorded")
	}

	if calls.Load() != 1 {
		t.Errorf("calls = %d, want 1", calls.Load())
	}
}

// TestJobFailure 测试任务返回错误或 panic 时记为失败.
func TestJobFailure(t *testing.T) {
	s := newScheduler(t)

	_ = s.AddCron("fail", yearly, func(context.Context) error { return errors.New("boom") }, context.Background())
	_ = s.AddCron("panic", yearly, func(context.Context) error { panic("oops") }, context.Background())

	s.Start()

	for _, name := range []string{"fail", "panic"} {
		if err := s.RunNow(name); err != nil {
			t.Fatalf("run %s: %v", name, err)
		}

		info := waitRuns(t, s, name, 1)
		if info.Status != scheduler.StatusError || info.Error == "" {
			t.Errorf("%s: status = %s, error = %q", name, info.Status, info.Error)
		}
	}
}

// TestDuplicateAndMissing 测试重名注册与不存在的任务.
func TestDuplicateAndMissing(t *testing.T) {
	s := newScheduler(t)
	noop := func(context.Context) error { return nil }

	if err := s.AddCron("a", yearly, noop, context.Background()); err != nil {
		t.Fatalf("add: %v", err)
	}

	if err := s.AddCron("a", yearly, noop, context.Background()); err == nil {
		t.Error("expected duplicate name error")
	}

	if err := s.AddCron("bad", "not a cron", noop, context.Background()); err == nil {
		t.Error("expected invalid cron error")
	}

	if err := s.RunNow("missing"); !errors.Is(err, scheduler.ErrJobNotFound) {
		t.Errorf("run missing = %v, want ErrJobNotFound", err)
	}

	if err := s.RemoveJobByName("a"); err != nil {
		t.Fatalf("remove: %v", err)
	}

	if got := s.GetJobInfos(); len(got) != 0 {
		t.Errorf("jobs after remove = %d, want 0", len(got))
	}
}

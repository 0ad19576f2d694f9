package local_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/yeisme/tmvault/pkg/internal/domain"
	"github.com/yeisme/tmvault/pkg/internal/repo"
	"github.com/yeisme/tmvault/pkg/internal/repo/repotest"
	"github.com/yeisme/tmvault/pkg/internal/storage/local"
)

func openStore(t *testing.T, opts ...local.Option) *local.Store {
	t.Helper()

	s, err := local.Open(context.Background(), local.DSN(":memory:", 0), opts...)
	if err != nil {
		t.Fatalf("open local store: %v", err)
	}

	t.Cleanup(func() { _ = s.Close() })

	return s
}

// TestContract 本地库运行仓储契约套件.
func TestContract(t *testing.T) {
	repotest.Run(t, func(t *testing.T, cfg repotest.Config) *repo.Bundle {
		return openStore(t,
			local.WithClock(cfg.Clock),
			local.WithMaxActivePerScope(cfg.MaxActivePerScope),
			local.WithRetention(cfg.Retention),
		).Bundle()
	})
}

// TestMigrationVersion 测试嵌入迁移执行到最新版本.
func TestMigrationVersion(t *testing.T) {
	s := openStore(t)

	v, err := s.MigrationVersion(context.Background())
	if err != nil {
		t.Fatalf("migration version: %v", err)
	}

	if v < 1 {
		t.Errorf("migration version = %d, want >= 1", v)
	}

	// 重复迁移是幂等的
	if err := s.Migrate(context.Background()); err != nil {
		t.Errorf("second migrate: %v", err)
	}
}

// TestFileBacked 测试文件库重新打开后数据仍在.
func TestFileBacked(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "vault.db")

	s, err := local.Open(ctx, local.DSN(path, 1000))
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	p, err := s.Bundle().Platforms.Create(ctx, domain.PlatformInput{Name: "persisted"})
	if err != nil {
		t.Fatalf("create platform: %v", err)
	}

	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	s, err = local.Open(ctx, local.DSN(path, 1000))
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s.Close()

	got, err := s.Bundle().Platforms.GetBySyncKey(ctx, p.SyncKey)
	if err != nil {
		t.Fatalf("get after reopen: %v", err)
	}

	if got.Name != "persisted" {
		t.Errorf("name = %q", got.Name)
	}
}

// TestDSN 测试连接串生成.
func TestDSN(t *testing.T) {
	if got := local.DSN(":memory:", 250); got != ":memory:?_pragma=busy_timeout(250)" {
		t.Errorf("memory dsn = %q", got)
	}

	if got := local.DSN("/tmp/a.db", 0); got != "file:/tmp/a.db?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)" {
		t.Errorf("file dsn = %q", got)
	}
}

// TestAssignmentScopeCheck 测试表级约束拒绝同时指向多个层级的分配记录.
func TestAssignmentScopeCheck(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	const insert = `INSERT INTO tm_assignments (tm_id, platform_id, project_id, folder_id, is_active, assigned_by, assigned_at)
		VALUES (?, ?, ?, ?, 0, 'ana', 0)`

	if _, err := s.DB().ExecContext(ctx, insert, 1, 10, 20, nil); err == nil {
		t.Error("two scope pointers should violate the check constraint")
	}

	if _, err := s.DB().ExecContext(ctx, insert, 2, nil, 20, nil); err != nil {
		t.Errorf("single scope pointer: %v", err)
	}

	if _, err := s.DB().ExecContext(ctx, insert, 3, nil, nil, nil); err != nil {
		t.Errorf("unassigned row: %v", err)
	}
}

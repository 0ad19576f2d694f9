package central_test

import (
	"context"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/yeisme/tmvault/pkg/internal/domain"
	"github.com/yeisme/tmvault/pkg/internal/model"
	"github.com/yeisme/tmvault/pkg/internal/presence"
	"github.com/yeisme/tmvault/pkg/internal/repo"
	"github.com/yeisme/tmvault/pkg/internal/repo/repotest"
	"github.com/yeisme/tmvault/pkg/internal/storage/central"
	"github.com/yeisme/tmvault/pkg/internal/storage/kv"
)

// openDB 打开内存 SQLite.
func openDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("open gorm: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}

	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	return db
}

// openStore 打开内存 SQLite 上的中心库.
func openStore(t *testing.T, opts ...central.Option) *central.Store {
	t.Helper()

	return openStoreOn(t, openDB(t), opts...)
}

func openStoreOn(t *testing.T, db *gorm.DB, opts ...central.Option) *central.Store {
	t.Helper()

	s := central.New(db, opts...)
	if err := s.Migrate(context.Background()); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	return s
}

// TestContract 中心库运行仓储契约套件.
func TestContract(t *testing.T) {
	repotest.Run(t, func(t *testing.T, cfg repotest.Config) *repo.Bundle {
		s := openStore(t,
			central.WithClock(cfg.Clock),
			central.WithMaxActivePerScope(cfg.MaxActivePerScope),
			central.WithRetention(cfg.Retention),
		)

		return s.Bundle("test-session")
	})
}

// fakeLocks 只认可 holders 中记录的 (ref, session).
type fakeLocks struct {
	holders map[string]string
}

func (f *fakeLocks) Check(_ context.Context, ref domain.RecordRef, sessionID string) error {
	if f.holders[ref.String()] == sessionID {
		return nil
	}

	return domain.Locked(ref.Entity, "lock not held by session")
}

func (f *fakeLocks) CheckFree(_ context.Context, fileID int64, sessionID string) error {
	if held, ok := f.holders[domain.FileRef(fileID).String()]; ok && held != sessionID {
		return domain.Locked(domain.EntityFile, "file locked by another session")
	}

	return nil
}

// TestLockChecks 测试文件与行写操作的锁校验.
func TestLockChecks(t *testing.T) {
	ctx := context.Background()
	locks := &fakeLocks{holders: map[string]string{}}
	s := openStore(t, central.WithLockChecker(locks))

	owner := s.Bundle("s1")
	other := s.Bundle("s2")

	tr := repotest.Seed(t, unlocked(t, s, locks, "seed"))

	name := "locked.xlsx"

	if _, err := owner.Files.Update(ctx, tr.File.ID, domain.FilePatch{Name: &name}); domain.KindOf(err) != domain.KindLocked {
		t.Fatalf("update without lock: expected Locked, got %v", err)
	}

	locks.holders[domain.FileRef(tr.File.ID).String()] = "s1"

	if _, err := owner.Files.Update(ctx, tr.File.ID, domain.FilePatch{Name: &name}); err != nil {
		t.Fatalf("update with lock: %v", err)
	}

	if _, err := other.Files.Update(ctx, tr.File.ID, domain.FilePatch{Name: &name}); domain.KindOf(err) != domain.KindLocked {
		t.Errorf("update by other session: expected Locked, got %v", err)
	}

	if _, err := other.Rows.Create(ctx, domain.RowInput{FileID: tr.File.ID, RowNum: 9, Source: "x"}); domain.KindOf(err) != domain.KindLocked {
		t.Errorf("row create by other session: expected Locked, got %v", err)
	}

	if _, err := owner.Rows.CreateBatch(ctx, tr.File.ID, []domain.RowInput{{RowNum: 9, Source: "x"}}); err != nil {
		t.Errorf("row batch with file lock: %v", err)
	}

	target := "t"

	// 行锁或文件锁任一即可
	if _, err := owner.Rows.Update(ctx, tr.Rows[0].ID, domain.RowPatch{Target: &target}); err != nil {
		t.Errorf("row update with file lock: %v", err)
	}

	locks.holders[domain.RowRef(tr.Rows[1].ID).String()] = "s2"

	if _, err := other.Rows.Update(ctx, tr.Rows[1].ID, domain.RowPatch{Target: &target}); err != nil {
		t.Errorf("row update with row lock: %v", err)
	}

	if _, err := other.Rows.Update(ctx, tr.Rows[2].ID, domain.RowPatch{Target: &target}); domain.KindOf(err) != domain.KindLocked {
		t.Errorf("row update without either lock: expected Locked, got %v", err)
	}

	// 同步写入路径不校验锁
	f := *tr.File
	f.Name = "sync.xlsx"

	if _, err := other.Files.Upsert(ctx, f); err != nil {
		t.Errorf("upsert is not lock-checked: %v", err)
	}

	if _, err := other.Files.Relocate(ctx, tr.File.ID, tr.Project.ID, nil); domain.KindOf(err) != domain.KindLocked {
		t.Errorf("relocate by other session: expected Locked, got %v", err)
	}

	if err := other.Files.Delete(ctx, tr.File.ID); domain.KindOf(err) != domain.KindLocked {
		t.Errorf("delete by other session: expected Locked, got %v", err)
	}

	if err := owner.Files.Delete(ctx, tr.File.ID); err != nil {
		t.Errorf("delete by lock holder: %v", err)
	}
}

// lockedStore 在同一个库上返回不校验锁的种子数据与接入真实锁管理器的中心库.
func lockedStore(t *testing.T) (*repotest.Tree, *central.Store, *presence.LockManager) {
	t.Helper()

	db := openDB(t)
	tr := repotest.Seed(t, openStoreOn(t, db).Bundle("seed"))

	locks := presence.NewLockManager(kv.NewMemoryKVWithClock(time.Now), nil)

	return tr, openStoreOn(t, db, central.WithLockChecker(locks)), locks
}

// TestRowAndFileLocksExclude 测试行锁与所属文件锁不能被不同会话同时持有.
func TestRowAndFileLocksExclude(t *testing.T) {
	ctx := context.Background()
	tr, s, locks := lockedStore(t)

	alice := presence.Holder{SessionID: "s-alice", User: "alice", FileID: tr.File.ID}
	bob := presence.Holder{SessionID: "s-bob", User: "bob", FileID: tr.File.ID}
	row := tr.Rows[0].ID

	if _, err := locks.Acquire(ctx, domain.RowRef(row), alice); err != nil {
		t.Fatalf("alice row lock: %v", err)
	}

	if _, err := locks.Acquire(ctx, domain.FileRef(tr.File.ID), bob); domain.KindOf(err) != domain.KindLocked {
		t.Fatalf("bob file lock over alice's row: expected Locked, got %v", err)
	}

	mine, theirs := "alice-edit", "bob-edit"

	if _, err := s.Bundle(bob.SessionID).Rows.Update(ctx, row, domain.RowPatch{Target: &theirs}); domain.KindOf(err) != domain.KindLocked {
		t.Errorf("bob row write: expected Locked, got %v", err)
	}

	if _, err := s.Bundle(alice.SessionID).Rows.Update(ctx, row, domain.RowPatch{Target: &mine}); err != nil {
		t.Fatalf("alice row write: %v", err)
	}

	if err := locks.Release(ctx, domain.RowRef(row), alice); err != nil {
		t.Fatalf("release: %v", err)
	}

	if _, err := locks.Acquire(ctx, domain.FileRef(tr.File.ID), bob); err != nil {
		t.Fatalf("bob file lock after release: %v", err)
	}

	if _, err := locks.Acquire(ctx, domain.RowRef(tr.Rows[1].ID), alice); domain.KindOf(err) != domain.KindLocked {
		t.Errorf("alice row lock under bob's file: expected Locked, got %v", err)
	}

	// 同一会话可以同时持有文件锁与其中的行锁
	if _, err := locks.Acquire(ctx, domain.RowRef(tr.Rows[1].ID), bob); err != nil {
		t.Errorf("bob row lock under own file: %v", err)
	}

	got, err := s.Bundle("reader").Rows.Get(ctx, row)
	if err != nil {
		t.Fatalf("get row: %v", err)
	}

	if got.Target != mine {
		t.Errorf("target = %q, want %q", got.Target, mine)
	}
}

// TestSubtreeDeleteRespectsLocks 测试删除文件夹或项目时不能带走其他会话锁住的文件.
func TestSubtreeDeleteRespectsLocks(t *testing.T) {
	ctx := context.Background()
	tr, s, locks := lockedStore(t)

	alice := presence.Holder{SessionID: "s-alice", User: "alice"}

	if _, err := locks.Acquire(ctx, domain.RowRef(tr.Rows[2].ID), presence.Holder{SessionID: "s-alice", User: "alice", FileID: tr.File.ID}); err != nil {
		t.Fatalf("row lock: %v", err)
	}

	other := s.Bundle("s-bob")

	if err := other.Folders.Delete(ctx, tr.Folder.ID); domain.KindOf(err) != domain.KindLocked {
		t.Errorf("folder delete over a locked row: expected Locked, got %v", err)
	}

	if err := locks.Release(ctx, domain.RowRef(tr.Rows[2].ID), alice); err != nil {
		t.Fatalf("release row: %v", err)
	}

	if _, err := locks.Acquire(ctx, domain.FileRef(tr.File.ID), alice); err != nil {
		t.Fatalf("file lock: %v", err)
	}

	if err := other.Projects.Delete(ctx, tr.Project.ID); domain.KindOf(err) != domain.KindLocked {
		t.Errorf("project delete over a locked file: expected Locked, got %v", err)
	}

	if _, err := other.Files.Get(ctx, tr.File.ID); err != nil {
		t.Fatalf("file should survive rejected deletes: %v", err)
	}

	if err := s.Bundle(alice.SessionID).Folders.Delete(ctx, tr.Folder.ID); err != nil {
		t.Errorf("folder delete by lock holder: %v", err)
	}
}

// unlocked 返回一个在种子数据写入期间放行所有文件锁的仓储集合.
func unlocked(t *testing.T, s *central.Store, locks *fakeLocks, session string) *repo.Bundle {
	t.Helper()

	b := s.Bundle(session)
	b.Rows = &seedRows{RowRepository: b.Rows, locks: locks, session: session}

	return b
}

// seedRows 写入行前临时为会话登记文件锁.
type seedRows struct {
	repo.RowRepository
	locks   *fakeLocks
	session string
}

func (r *seedRows) CreateBatch(ctx context.Context, fileID int64, in []domain.RowInput) ([]domain.Row, error) {
	key := domain.FileRef(fileID).String()
	r.locks.holders[key] = r.session

	defer delete(r.locks.holders, key)

	return r.RowRepository.CreateBatch(ctx, fileID, in)
}

// TestAssignmentScopeCheck 测试表级约束拒绝同时指向多个层级的分配记录.
func TestAssignmentScopeCheck(t *testing.T) {
	db := openDB(t)
	openStoreOn(t, db)

	platform, project := int64(10), int64(20)
	now := time.Now().UTC()

	bad := &model.TMAssignment{TMID: 1, PlatformID: &platform, ProjectID: &project, AssignedAt: now}
	if err := db.Create(bad).Error; err == nil {
		t.Error("two scope pointers should violate the check constraint")
	}

	ok := &model.TMAssignment{TMID: 2, ProjectID: &project, AssignedAt: now}
	if err := db.Create(ok).Error; err != nil {
		t.Errorf("single scope pointer: %v", err)
	}
}

package repotest_test

import (
	"context"
	"reflect"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/yeisme/tmvault/pkg/internal/domain"
	"github.com/yeisme/tmvault/pkg/internal/repo"
	"github.com/yeisme/tmvault/pkg/internal/repo/repotest"
	"github.com/yeisme/tmvault/pkg/internal/storage/central"
	"github.com/yeisme/tmvault/pkg/internal/storage/local"
)

func centralBundle(t *testing.T, clock *repotest.Clock) *repo.Bundle {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatalf("open gorm: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}

	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	s := central.New(db, central.WithClock(clock.Now))
	if err := s.Migrate(context.Background()); err != nil {
		t.Fatalf("migrate central: %v", err)
	}

	return s.Bundle("parity")
}

func localBundle(t *testing.T, clock *repotest.Clock) *repo.Bundle {
	t.Helper()

	s, err := local.Open(context.Background(), local.DSN(":memory:", 0), local.WithClock(clock.Now))
	if err != nil {
		t.Fatalf("open local: %v", err)
	}

	t.Cleanup(func() { _ = s.Close() })

	return s.Bundle()
}

// snapshot 一次脚本执行后两个存储中可比较的状态.
type snapshot struct {
	Platforms   []domain.Platform
	Projects    []domain.Project
	Folders     []domain.Folder
	Files       []domain.File
	Rows        []domain.Row
	TMs         []domain.TranslationMemory
	Entries     []domain.TMEntry
	Assignments []domain.TMAssignment
	Trash       []domain.TrashItem
	Errors      []domain.Kind
}

// script 对仓储集合执行固定操作序列，并收集结果.
func script(t *testing.T, b *repo.Bundle, clock *repotest.Clock) snapshot {
	t.Helper()

	ctx := context.Background()
	tr := repotest.Seed(t, b)

	var snap snapshot

	record := func(err error) {
		if err == nil {
			snap.Errors = append(snap.Errors, "")

			return
		}

		snap.Errors = append(snap.Errors, domain.KindOf(err))
	}

	clock.Advance(time.Minute)

	_, err := b.Folders.Create(ctx, domain.FolderInput{ProjectID: tr.Project.ID, Name: "ui"})
	record(err)

	record(b.Rows.Delete(ctx, tr.Rows[0].ID))

	tm, err := b.TMs.RegisterFromFile(ctx, tr.File.ID, domain.RegisterTMInput{Name: "reg"})
	record(err)

	_, err = b.TMs.Assign(ctx, tm.ID, domain.FolderScope(tr.Folder.ID), "ana")
	record(err)

	_, err = b.TMs.Activate(ctx, tm.ID)
	record(err)

	_, err = b.TMs.Assign(ctx, tm.ID, domain.Scope{ProjectID: &tr.Project.ID, FolderID: &tr.Folder.ID}, "ana")
	record(err)

	record(b.Files.SetSyncStatus(ctx, tr.File.ID, domain.SyncStatusSynced))

	target := "さようなら"
	_, err = b.Rows.Update(ctx, tr.Rows[1].ID, domain.RowPatch{Target: &target})
	record(err)

	clock.Advance(time.Minute)
	record(b.Folders.Delete(ctx, tr.Child.ID))

	ps, err := b.Platforms.GetAll(ctx, domain.PlatformFilter{})
	record(err)

	projects, err := b.Projects.GetAll(ctx, domain.ProjectFilter{})
	record(err)

	folders, err := b.Folders.GetAll(ctx, domain.FolderFilter{})
	record(err)

	files, err := b.Files.GetAll(ctx, domain.FileFilter{})
	record(err)

	tms, err := b.TMs.GetAll(ctx, domain.TMFilter{})
	record(err)

	entries, err := b.TMs.Entries(ctx, tm.ID)
	record(err)

	a, err := b.TMs.GetAssignment(ctx, tm.ID)
	record(err)

	trash, err := b.Trash.GetAll(ctx, domain.TrashFilter{})
	record(err)

	rows, err := b.Rows.GetAll(ctx, domain.RowFilter{FileID: tr.File.ID})
	record(err)

	snap.Platforms, snap.Projects, snap.Folders, snap.Files = ps, projects, folders, files
	snap.TMs, snap.Entries, snap.Rows, snap.Trash = tms, entries, rows, trash
	snap.Assignments = []domain.TMAssignment{*a}

	return normalize(snap)
}

// normalize 清除 id、sync key 与快照字节，其余字段逐一比较.
func normalize(s snapshot) snapshot {
	for i := range s.Platforms {
		s.Platforms[i].ID, s.Platforms[i].SyncKey = 0, ""
	}

	for i := range s.Projects {
		s.Projects[i].ID, s.Projects[i].SyncKey, s.Projects[i].PlatformID = 0, "", nil
	}

	for i := range s.Folders {
		s.Folders[i].ID, s.Folders[i].SyncKey, s.Folders[i].ProjectID, s.Folders[i].ParentID = 0, "", 0, nil
	}

	for i := range s.Files {
		s.Files[i].ID, s.Files[i].SyncKey, s.Files[i].ProjectID, s.Files[i].FolderID = 0, "", 0, nil
	}

	for i := range s.Rows {
		s.Rows[i].ID, s.Rows[i].SyncKey, s.Rows[i].FileID = 0, "", 0
	}

	for i := range s.TMs {
		s.TMs[i].ID, s.TMs[i].SyncKey = 0, ""
	}

	for i := range s.Entries {
		s.Entries[i].ID, s.Entries[i].SyncKey, s.Entries[i].TMID = 0, "", 0
	}

	for i := range s.Assignments {
		s.Assignments[i].TMID = 0
	}

	for i := range s.Trash {
		s.Trash[i].ID, s.Trash[i].EntitySyncKey, s.Trash[i].ProjectID, s.Trash[i].Snapshot = 0, "", nil, nil
	}

	return s
}

// TestAdapterParity 测试两个适配器对同一脚本产生逐字段相同的结果.
func TestAdapterParity(t *testing.T) {
	cc, lc := repotest.NewClock(), repotest.NewClock()

	got := script(t, centralBundle(t, cc), cc)
	want := script(t, localBundle(t, lc), lc)

	if !reflect.DeepEqual(got, want) {
		t.Fatalf("adapters diverged:\ncentral: %+v\nlocal:   %+v", got, want)
	}

	if got.Errors[0] != domain.KindConflict || got.Errors[1] != domain.KindInvalidTransition ||
		got.Errors[5] != domain.KindScopeConflict {
		t.Errorf("unexpected error kinds: %v", got.Errors)
	}
}

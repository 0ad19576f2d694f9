package repotest

import (
	"context"
	"testing"
	"time"

	"github.com/yeisme/tmvault/pkg/internal/domain"
)

func testPlatforms(t *testing.T, newBundle NewBundle) {
	ctx := context.Background()
	b, _ := fresh(t, newBundle)

	empty, err := b.Platforms.GetAll(ctx, domain.PlatformFilter{})
	mustNoErr(t, err, "list empty platforms")

	if empty == nil || len(empty) != 0 {
		t.Fatalf("expected empty non-nil slice, got %#v", empty)
	}

	_, err = b.Platforms.Create(ctx, domain.PlatformInput{})
	expectKind(t, err, domain.ErrValidation)

	p, err := b.Platforms.Create(ctx, domain.PlatformInput{Name: "web", Owner: "ana"})
	mustNoErr(t, err, "create platform")

	if p.ID == 0 || p.SyncKey == "" {
		t.Fatalf("platform id/sync key not assigned: %+v", p)
	}

	_, err = b.Platforms.Create(ctx, domain.PlatformInput{Name: "desktop", Owner: "bo"})
	mustNoErr(t, err, "create second platform")

	owned, err := b.Platforms.GetAll(ctx, domain.PlatformFilter{Owner: "ana"})
	mustNoErr(t, err, "filter platforms")

	if len(owned) != 1 || owned[0].Name != "web" {
		t.Fatalf("owner filter returned %+v", owned)
	}

	name := "web-v2"

	updated, err := b.Platforms.Update(ctx, p.ID, domain.PlatformPatch{Name: &name})
	mustNoErr(t, err, "update platform")

	if updated.Name != name || updated.SyncKey != p.SyncKey {
		t.Errorf("update result %+v", updated)
	}

	byKey, err := b.Platforms.GetBySyncKey(ctx, p.SyncKey)
	mustNoErr(t, err, "get platform by sync key")

	if byKey.ID != p.ID {
		t.Errorf("sync key lookup returned id %d, want %d", byKey.ID, p.ID)
	}

	_, err = b.Platforms.Update(ctx, 9999, domain.PlatformPatch{Name: &name})
	expectKind(t, err, domain.ErrNotFound)

	proj, err := b.Projects.Create(ctx, domain.ProjectInput{PlatformID: &p.ID, Name: "site"})
	mustNoErr(t, err, "create project")

	mustNoErr(t, b.Platforms.Delete(ctx, p.ID), "delete platform")

	_, err = b.Platforms.Get(ctx, p.ID)
	expectKind(t, err, domain.ErrNotFound)

	got, err := b.Projects.Get(ctx, proj.ID)
	mustNoErr(t, err, "project survives platform delete")

	if got.PlatformID != nil {
		t.Errorf("project still points at deleted platform %d", *got.PlatformID)
	}

	pool, err := b.Projects.GetAll(ctx, domain.ProjectFilter{Unassigned: true})
	mustNoErr(t, err, "list unassigned projects")

	if len(pool) != 1 || pool[0].ID != proj.ID {
		t.Errorf("unassigned pool = %+v", pool)
	}

	expectKind(t, b.Platforms.Delete(ctx, p.ID), domain.ErrNotFound)
}

func testPlatformDeleteUnassigns(t *testing.T, newBundle NewBundle) {
	ctx := context.Background()
	b, _ := fresh(t, newBundle)

	p, err := b.Platforms.Create(ctx, domain.PlatformInput{Name: "games"})
	mustNoErr(t, err, "create platform")

	tm, err := b.TMs.Create(ctx, domain.TMInput{Name: "glossary", SourceLang: "en", TargetLang: "de"})
	mustNoErr(t, err, "create tm")

	_, err = b.TMs.Assign(ctx, tm.ID, domain.PlatformScope(p.ID), "ana")
	mustNoErr(t, err, "assign tm")

	_, err = b.TMs.Activate(ctx, tm.ID)
	mustNoErr(t, err, "activate tm")

	mustNoErr(t, b.Platforms.Delete(ctx, p.ID), "delete platform")

	a, err := b.TMs.GetAssignment(ctx, tm.ID)
	mustNoErr(t, err, "get assignment")

	if !a.Scope.IsUnassigned() || a.IsActive {
		t.Fatalf("assignment after platform delete = %+v", a)
	}
}

func testProjects(t *testing.T, newBundle NewBundle) {
	ctx := context.Background()
	b, _ := fresh(t, newBundle)

	missing := int64(4242)

	_, err := b.Projects.Create(ctx, domain.ProjectInput{PlatformID: &missing, Name: "ghost"})
	expectKind(t, err, domain.ErrNotFound)

	tr := Seed(t, b)

	list, err := b.Projects.GetAll(ctx, domain.ProjectFilter{PlatformID: &tr.Platform.ID})
	mustNoErr(t, err, "list platform projects")

	if len(list) != 1 || list[0].ID != tr.Project.ID {
		t.Fatalf("platform filter returned %+v", list)
	}

	moved, err := b.Projects.Update(ctx, tr.Project.ID, domain.ProjectPatch{ClearPlatform: true})
	mustNoErr(t, err, "clear platform")

	if moved.PlatformID != nil {
		t.Errorf("platform not cleared: %+v", moved)
	}

	mustNoErr(t, b.Projects.Delete(ctx, tr.Project.ID), "delete project")

	for _, check := range []error{
		func() error { _, err := b.Projects.Get(ctx, tr.Project.ID); return err }(),
		func() error { _, err := b.Folders.Get(ctx, tr.Child.ID); return err }(),
		func() error { _, err := b.Files.Get(ctx, tr.File.ID); return err }(),
		func() error { _, err := b.Rows.Get(ctx, tr.Rows[0].ID); return err }(),
	} {
		expectKind(t, check, domain.ErrNotFound)
	}

	items, err := b.Trash.GetAll(ctx, domain.TrashFilter{EntityType: domain.EntityProject})
	mustNoErr(t, err, "list trash")

	if len(items) != 1 || items[0].EntitySyncKey != tr.Project.SyncKey || items[0].Name != "app" {
		t.Fatalf("trash after project delete = %+v", items)
	}
}

func testFolders(t *testing.T, newBundle NewBundle) {
	ctx := context.Background()
	b, _ := fresh(t, newBundle)
	tr := Seed(t, b)

	_, err := b.Folders.Create(ctx, domain.FolderInput{ProjectID: tr.Project.ID, Name: "ui"})
	expectKind(t, err, domain.ErrConflict)

	// 同名但父不同允许
	_, err = b.Folders.Create(ctx, domain.FolderInput{ProjectID: tr.Project.ID, ParentID: &tr.Folder.ID, Name: "ui"})
	mustNoErr(t, err, "same name under different parent")

	other, err := b.Projects.Create(ctx, domain.ProjectInput{Name: "other"})
	mustNoErr(t, err, "create other project")

	_, err = b.Folders.Create(ctx, domain.FolderInput{ProjectID: other.ID, ParentID: &tr.Folder.ID, Name: "x"})
	expectKind(t, err, domain.ErrValidation)

	chain, err := b.Folders.Ancestors(ctx, tr.Child.ID)
	mustNoErr(t, err, "ancestors")

	if len(chain) != 2 || chain[0].ID != tr.Child.ID || chain[1].ID != tr.Folder.ID {
		t.Fatalf("ancestors = %+v", chain)
	}

	roots, err := b.Folders.GetAll(ctx, domain.FolderFilter{ProjectID: &tr.Project.ID, RootOnly: true})
	mustNoErr(t, err, "root folders")

	if len(roots) != 1 || roots[0].ID != tr.Folder.ID {
		t.Fatalf("root folders = %+v", roots)
	}

	mustNoErr(t, b.Folders.Delete(ctx, tr.Folder.ID), "delete folder subtree")

	_, err = b.Files.Get(ctx, tr.File.ID)
	expectKind(t, err, domain.ErrNotFound)

	has, err := b.Trash.ContainsSyncKey(ctx, tr.File.SyncKey)
	mustNoErr(t, err, "trash contains")

	if !has {
		t.Errorf("trash does not list file sync key after folder delete")
	}
}

func testFolderCycle(t *testing.T, newBundle NewBundle) {
	ctx := context.Background()
	b, _ := fresh(t, newBundle)
	tr := Seed(t, b)

	_, err := b.Folders.Update(ctx, tr.Folder.ID, domain.FolderPatch{ParentID: &tr.Child.ID})
	expectKind(t, err, domain.ErrValidation)

	_, err = b.Folders.Update(ctx, tr.Folder.ID, domain.FolderPatch{ParentID: &tr.Folder.ID})
	expectKind(t, err, domain.ErrValidation)

	moved, err := b.Folders.Update(ctx, tr.Child.ID, domain.FolderPatch{MoveToRoot: true})
	mustNoErr(t, err, "move to root")

	if moved.ParentID != nil {
		t.Errorf("child still has parent %d", *moved.ParentID)
	}
}

func testFiles(t *testing.T, newBundle NewBundle) {
	ctx := context.Background()
	b, _ := fresh(t, newBundle)
	tr := Seed(t, b)

	if tr.File.SyncStatus != domain.SyncStatusLocal {
		t.Errorf("new file status = %q, want local", tr.File.SyncStatus)
	}

	if tr.File.RowCount != 3 {
		t.Errorf("row count = %d, want 3", tr.File.RowCount)
	}

	_, err := b.Files.Create(ctx, domain.FileInput{ProjectID: tr.Project.ID, FolderID: &tr.Child.ID, Name: "strings.xlsx"})
	expectKind(t, err, domain.ErrConflict)

	_, err = b.Files.Create(ctx, domain.FileInput{ProjectID: tr.Project.ID, Name: "bad", SourceLang: "not a tag!"})
	expectKind(t, err, domain.ErrValidation)

	mustNoErr(t, b.Files.SetSyncStatus(ctx, tr.File.ID, domain.SyncStatusSynced), "mark synced")

	name := "renamed.xlsx"

	f, err := b.Files.Update(ctx, tr.File.ID, domain.FilePatch{Name: &name, MoveToRoot: true})
	mustNoErr(t, err, "update file")

	if f.SyncStatus != domain.SyncStatusModified {
		t.Errorf("patched synced file status = %q, want modified", f.SyncStatus)
	}

	if f.FolderID != nil {
		t.Errorf("file not moved to root")
	}

	roots, err := b.Files.GetAll(ctx, domain.FileFilter{ProjectID: &tr.Project.ID, RootOnly: true})
	mustNoErr(t, err, "root files")

	if len(roots) != 1 {
		t.Errorf("root files = %+v", roots)
	}

	expectKind(t, b.Files.SetSyncStatus(ctx, tr.File.ID, "bogus"), domain.ErrValidation)
	expectKind(t, b.Files.SetSyncStatus(ctx, 9999, domain.SyncStatusSynced), domain.ErrNotFound)

	mustNoErr(t, b.Files.Delete(ctx, tr.File.ID), "delete file")

	rows, err := b.Rows.GetAll(ctx, domain.RowFilter{FileID: tr.File.ID})
	mustNoErr(t, err, "rows of deleted file")

	if len(rows) != 0 {
		t.Errorf("rows survived file delete: %d", len(rows))
	}
}

func testRows(t *testing.T, newBundle NewBundle) {
	ctx := context.Background()
	b, _ := fresh(t, newBundle)
	tr := Seed(t, b)

	if tr.Rows[0].Status != domain.RowStatusPending {
		t.Errorf("default row status = %q", tr.Rows[0].Status)
	}

	mustNoErr(t, b.Files.SetSyncStatus(ctx, tr.File.ID, domain.SyncStatusSynced), "mark synced")

	target := "さようなら"
	status := domain.RowStatusTranslated

	row, err := b.Rows.Update(ctx, tr.Rows[1].ID, domain.RowPatch{Target: &target, Status: &status})
	mustNoErr(t, err, "update row")

	if row.Target != target || row.Status != status {
		t.Errorf("row after update = %+v", row)
	}

	f, err := b.Files.Get(ctx, tr.File.ID)
	mustNoErr(t, err, "get file")

	if f.SyncStatus != domain.SyncStatusModified {
		t.Errorf("row edit left file %q, want modified", f.SyncStatus)
	}

	expectKind(t, b.Rows.Delete(ctx, tr.Rows[0].ID), domain.ErrInvalidTransition)

	translated, err := b.Rows.GetAll(ctx, domain.RowFilter{FileID: tr.File.ID, Status: domain.RowStatusTranslated})
	mustNoErr(t, err, "filter rows")

	if len(translated) != 1 || translated[0].ID != tr.Rows[1].ID {
		t.Errorf("status filter = %+v", translated)
	}

	page, err := b.Rows.GetAll(ctx, domain.RowFilter{FileID: tr.File.ID, Offset: 1, Limit: 1})
	mustNoErr(t, err, "page rows")

	if len(page) != 1 || page[0].RowNum != 2 {
		t.Errorf("page = %+v", page)
	}

	tail, err := b.Rows.GetAll(ctx, domain.RowFilter{FileID: tr.File.ID, Offset: 2})
	mustNoErr(t, err, "offset without limit")

	if len(tail) != 1 || tail[0].RowNum != 3 {
		t.Errorf("offset tail = %+v", tail)
	}

	_, err = b.Rows.GetAll(ctx, domain.RowFilter{})
	expectKind(t, err, domain.ErrValidation)
}

func testRowsBatchAtomic(t *testing.T, newBundle NewBundle) {
	ctx := context.Background()
	b, _ := fresh(t, newBundle)
	tr := Seed(t, b)

	_, err := b.Rows.CreateBatch(ctx, tr.File.ID, []domain.RowInput{
		{RowNum: 4, Source: "ok"},
		{RowNum: 5, Source: "bad", Status: "unknown"},
	})
	expectKind(t, err, domain.ErrValidation)

	f, err := b.Files.Get(ctx, tr.File.ID)
	mustNoErr(t, err, "get file")

	if f.RowCount != 3 {
		t.Errorf("row count after failed batch = %d, want 3", f.RowCount)
	}

	_, err = b.Rows.CreateBatch(ctx, 9999, []domain.RowInput{{RowNum: 1, Source: "x"}})
	expectKind(t, err, domain.ErrNotFound)
}

func testOrphanedFile(t *testing.T, newBundle NewBundle) {
	ctx := context.Background()
	b, _ := fresh(t, newBundle)
	tr := Seed(t, b)

	mustNoErr(t, b.Files.SetSyncStatus(ctx, tr.File.ID, domain.SyncStatusOrphaned), "orphan file")

	name := "x"

	_, err := b.Files.Update(ctx, tr.File.ID, domain.FilePatch{Name: &name})
	expectKind(t, err, domain.ErrInvalidTransition)

	expectKind(t, b.Files.Delete(ctx, tr.File.ID), domain.ErrInvalidTransition)

	_, err = b.Rows.Create(ctx, domain.RowInput{FileID: tr.File.ID, RowNum: 9, Source: "new"})
	expectKind(t, err, domain.ErrInvalidTransition)

	_, err = b.Rows.Update(ctx, tr.Rows[0].ID, domain.RowPatch{Target: &name})
	expectKind(t, err, domain.ErrInvalidTransition)

	f, err := b.Files.Relocate(ctx, tr.File.ID, tr.Project.ID, &tr.Folder.ID)
	mustNoErr(t, err, "relocate orphaned file")

	if f.FolderID == nil || *f.FolderID != tr.Folder.ID {
		t.Errorf("relocate result = %+v", f)
	}
}

func testSyncWritePaths(t *testing.T, newBundle NewBundle) {
	ctx := context.Background()
	b, clock := fresh(t, newBundle)
	tr := Seed(t, b)

	mustNoErr(t, b.Files.SetSyncStatus(ctx, tr.File.ID, domain.SyncStatusSynced), "mark synced")

	stamp := clock.Now().Add(-24 * time.Hour)

	in := *tr.File
	in.Name = "upserted.xlsx"
	in.UpdatedAt = stamp

	f, err := b.Files.Upsert(ctx, in)
	mustNoErr(t, err, "upsert file")

	if f.ID != tr.File.ID || f.SyncStatus != domain.SyncStatusSynced || f.RowCount != 3 {
		t.Errorf("upsert changed identity or status: %+v", f)
	}

	if !f.UpdatedAt.Equal(stamp) {
		t.Errorf("upsert did not keep updated_at: %v", f.UpdatedAt)
	}

	row := tr.Rows[0]
	row.Target = "やあ"

	r, err := b.Rows.Upsert(ctx, row)
	mustNoErr(t, err, "upsert row")

	if r.ID != row.ID || r.Target != "やあ" {
		t.Errorf("row upsert = %+v", r)
	}

	f, err = b.Files.Get(ctx, tr.File.ID)
	mustNoErr(t, err, "get file")

	if f.SyncStatus != domain.SyncStatusSynced {
		t.Errorf("sync write path flipped status to %q", f.SyncStatus)
	}

	_, err = b.Files.Upsert(ctx, domain.File{ProjectID: tr.Project.ID, Name: "nokey"})
	expectKind(t, err, domain.ErrValidation)

	other, err := b.Files.Create(ctx, domain.FileInput{ProjectID: tr.Project.ID, Name: "other.csv"})
	mustNoErr(t, err, "create other file")

	stolen := tr.Rows[1]
	stolen.FileID = other.ID

	_, err = b.Rows.Upsert(ctx, stolen)
	expectKind(t, err, domain.ErrConflict)
}

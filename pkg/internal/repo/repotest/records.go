package repotest

import (
	"context"
	"testing"
	"time"

	"github.com/yeisme/tmvault/pkg/internal/domain"
)

func testTrashRestore(t *testing.T, newBundle NewBundle) {
	ctx := context.Background()
	b, _ := fresh(t, newBundle)
	tr := Seed(t, b)

	tm, err := b.TMs.Create(ctx, domain.TMInput{Name: "proj tm", SourceLang: "en", TargetLang: "ja"})
	mustNoErr(t, err, "create tm")

	_, err = b.TMs.AddEntries(ctx, tm.ID, []domain.TMEntryInput{{Source: "a", Target: "b"}})
	mustNoErr(t, err, "add entry")

	_, err = b.TMs.Assign(ctx, tm.ID, domain.PlatformScope(tr.Platform.ID), "ana")
	mustNoErr(t, err, "assign")

	_, err = b.TMs.Activate(ctx, tm.ID)
	mustNoErr(t, err, "activate")

	mustNoErr(t, b.Projects.Delete(ctx, tr.Project.ID), "delete project")
	mustNoErr(t, b.TMs.Delete(ctx, tm.ID), "delete tm")

	items, err := b.Trash.GetAll(ctx, domain.TrashFilter{})
	mustNoErr(t, err, "list trash")

	if len(items) != 2 {
		t.Fatalf("trash items = %d, want 2", len(items))
	}

	for _, item := range items {
		if !item.ExpiresAt.After(item.DeletedAt) {
			t.Errorf("trash item %d expires at %v, deleted at %v", item.ID, item.ExpiresAt, item.DeletedAt)
		}

		_, err := b.Trash.Restore(ctx, item.ID)
		mustNoErr(t, err, "restore "+item.EntityType)
	}

	p, err := b.Projects.GetBySyncKey(ctx, tr.Project.SyncKey)
	mustNoErr(t, err, "restored project")

	if p.PlatformID == nil || *p.PlatformID != tr.Platform.ID {
		t.Errorf("restored project lost its platform: %+v", p)
	}

	child, err := b.Folders.GetBySyncKey(ctx, tr.Child.SyncKey)
	mustNoErr(t, err, "restored child folder")

	parent, err := b.Folders.GetBySyncKey(ctx, tr.Folder.SyncKey)
	mustNoErr(t, err, "restored parent folder")

	if child.ParentID == nil || *child.ParentID != parent.ID || child.ProjectID != p.ID {
		t.Errorf("restored folder tree broken: child %+v parent %+v", child, parent)
	}

	f, err := b.Files.GetBySyncKey(ctx, tr.File.SyncKey)
	mustNoErr(t, err, "restored file")

	if f.FolderID == nil || *f.FolderID != child.ID || f.RowCount != 3 {
		t.Errorf("restored file = %+v", f)
	}

	rows, err := b.Rows.GetAll(ctx, domain.RowFilter{FileID: f.ID})
	mustNoErr(t, err, "restored rows")

	if len(rows) != 3 || rows[0].SyncKey != tr.Rows[0].SyncKey || rows[2].Target != "保存" {
		t.Errorf("restored rows = %+v", rows)
	}

	restored, err := b.TMs.GetBySyncKey(ctx, tm.SyncKey)
	mustNoErr(t, err, "restored tm")

	if restored.EntryCount != 1 {
		t.Errorf("restored entry count = %d", restored.EntryCount)
	}

	a, err := b.TMs.GetAssignment(ctx, restored.ID)
	mustNoErr(t, err, "restored assignment")

	if a.Scope.PlatformID == nil || *a.Scope.PlatformID != tr.Platform.ID || !a.IsActive {
		t.Errorf("restored assignment = %+v", a)
	}

	left, err := b.Trash.GetAll(ctx, domain.TrashFilter{})
	mustNoErr(t, err, "list trash")

	if len(left) != 0 {
		t.Errorf("restore left %d trash items", len(left))
	}

	has, err := b.Trash.ContainsSyncKey(ctx, tr.File.SyncKey)
	mustNoErr(t, err, "trash contains")

	if has {
		t.Errorf("restored file key still listed in trash")
	}
}

func testTrashRestoreConflict(t *testing.T, newBundle NewBundle) {
	ctx := context.Background()
	b, _ := fresh(t, newBundle)
	tr := Seed(t, b)

	mustNoErr(t, b.Files.Delete(ctx, tr.File.ID), "delete file")

	items, err := b.Trash.GetAll(ctx, domain.TrashFilter{EntityType: domain.EntityFile})
	mustNoErr(t, err, "list trash")

	if len(items) != 1 || items[0].ProjectID == nil || *items[0].ProjectID != tr.Project.ID {
		t.Fatalf("file trash items = %+v", items)
	}

	// 同步写入占用原 sync key
	_, err = b.Files.Upsert(ctx, domain.File{SyncKey: tr.File.SyncKey, ProjectID: tr.Project.ID, Name: "again.xlsx"})
	mustNoErr(t, err, "upsert same key")

	_, err = b.Trash.Restore(ctx, items[0].ID)
	expectKind(t, err, domain.ErrConflict)

	// 失败的恢复不消耗条目
	if _, err := b.Trash.Get(ctx, items[0].ID); err != nil {
		t.Fatalf("trash item gone after failed restore: %v", err)
	}

	mustNoErr(t, b.Folders.Delete(ctx, tr.Folder.ID), "delete folder")
	mustNoErr(t, b.Projects.Delete(ctx, tr.Project.ID), "delete project")

	folders, err := b.Trash.GetAll(ctx, domain.TrashFilter{EntityType: domain.EntityFolder})
	mustNoErr(t, err, "list folder trash")

	if len(folders) != 1 {
		t.Fatalf("folder trash items = %d", len(folders))
	}

	_, err = b.Trash.Restore(ctx, folders[0].ID)
	expectKind(t, err, domain.ErrNotFound)
}

func testTrashPurge(t *testing.T, newBundle NewBundle) {
	ctx := context.Background()
	clock := NewClock()
	b := newBundle(t, Config{Clock: clock.Now, Retention: time.Hour})
	tr := Seed(t, b)

	mustNoErr(t, b.Files.Delete(ctx, tr.File.ID), "delete file")

	clock.Advance(30 * time.Minute)
	mustNoErr(t, b.Folders.Delete(ctx, tr.Folder.ID), "delete folder")

	n, err := b.Trash.PurgeExpired(ctx, clock.Now())
	mustNoErr(t, err, "purge nothing")

	if n != 0 {
		t.Fatalf("purged %d before expiry", n)
	}

	clock.Advance(45 * time.Minute)

	due := clock.Now()

	expiring, err := b.Trash.GetAll(ctx, domain.TrashFilter{ExpiresBy: &due})
	mustNoErr(t, err, "list expiring")

	if len(expiring) != 1 || expiring[0].EntityType != domain.EntityFile {
		t.Fatalf("expiring = %+v", expiring)
	}

	n, err = b.Trash.PurgeExpired(ctx, due)
	mustNoErr(t, err, "purge expired")

	if n != 1 {
		t.Errorf("purged %d, want 1", n)
	}

	rest, err := b.Trash.GetAll(ctx, domain.TrashFilter{})
	mustNoErr(t, err, "list trash")

	if len(rest) != 1 {
		t.Fatalf("remaining trash = %d", len(rest))
	}

	mustNoErr(t, b.Trash.Purge(ctx, rest[0].ID), "purge by id")
	expectKind(t, b.Trash.Purge(ctx, rest[0].ID), domain.ErrNotFound)
}

func testQAResults(t *testing.T, newBundle NewBundle) {
	ctx := context.Background()
	b, _ := fresh(t, newBundle)
	tr := Seed(t, b)

	_, err := b.QA.Create(ctx, domain.QAInput{RowID: tr.Rows[0].ID, CheckType: "length", Severity: "fatal"})
	expectKind(t, err, domain.ErrValidation)

	_, err = b.QA.Create(ctx, domain.QAInput{RowID: 9999, CheckType: "length", Severity: domain.SeverityInfo})
	expectKind(t, err, domain.ErrNotFound)

	q, err := b.QA.Create(ctx, domain.QAInput{
		RowID:     tr.Rows[1].ID,
		CheckType: "empty_target",
		Severity:  domain.SeverityError,
		Message:   "target is empty",
	})
	mustNoErr(t, err, "create qa")

	if q.FileID != tr.File.ID || q.Resolved {
		t.Fatalf("qa result = %+v", q)
	}

	_, err = b.QA.Create(ctx, domain.QAInput{RowID: tr.Rows[1].ID, CheckType: "tags", Severity: domain.SeverityWarning})
	mustNoErr(t, err, "create second qa")

	warn := domain.SeverityWarning

	q, err = b.QA.Update(ctx, q.ID, domain.QAPatch{Severity: &warn})
	mustNoErr(t, err, "update qa")

	if q.Severity != warn {
		t.Errorf("severity = %q", q.Severity)
	}

	q, err = b.QA.Resolve(ctx, q.ID)
	mustNoErr(t, err, "resolve")

	if !q.Resolved {
		t.Errorf("resolve did not set resolved")
	}

	open, err := b.QA.GetAll(ctx, domain.QAFilter{FileID: &tr.File.ID, Unresolved: true})
	mustNoErr(t, err, "unresolved qa")

	if len(open) != 1 || open[0].CheckType != "tags" {
		t.Errorf("unresolved = %+v", open)
	}

	n, err := b.QA.DeleteForRow(ctx, tr.Rows[1].ID)
	mustNoErr(t, err, "delete for row")

	if n != 2 {
		t.Errorf("deleted %d qa results, want 2", n)
	}

	expectKind(t, b.QA.Delete(ctx, q.ID), domain.ErrNotFound)

	_, err = b.QA.Resolve(ctx, q.ID)
	expectKind(t, err, domain.ErrNotFound)
}

func testCapabilities(t *testing.T, newBundle NewBundle) {
	ctx := context.Background()
	b, _ := fresh(t, newBundle)

	_, err := b.Capabilities.Grant(ctx, domain.CapabilityInput{User: "ana", Name: "fly"})
	expectKind(t, err, domain.ErrValidation)

	c, err := b.Capabilities.Grant(ctx, domain.CapabilityInput{User: "ana", Name: domain.CapManageTM, GrantedBy: "root"})
	mustNoErr(t, err, "grant")

	again, err := b.Capabilities.Grant(ctx, domain.CapabilityInput{User: "ana", Name: domain.CapManageTM, GrantedBy: "other"})
	mustNoErr(t, err, "grant twice")

	if again.ID != c.ID || again.GrantedBy != "root" {
		t.Errorf("second grant = %+v, want existing %+v", again, c)
	}

	_, err = b.Capabilities.Grant(ctx, domain.CapabilityInput{User: "ana", Name: domain.CapDeleteProject})
	mustNoErr(t, err, "grant delete_project")

	all, err := b.Capabilities.GetAll(ctx, "ana")
	mustNoErr(t, err, "list capabilities")

	if len(all) != 2 || all[0].Name != domain.CapDeleteProject || all[1].Name != domain.CapManageTM {
		t.Errorf("capabilities = %+v", all)
	}

	ok, err := b.Capabilities.Has(ctx, "ana", domain.CapManageTM)
	mustNoErr(t, err, "has")

	if !ok {
		t.Errorf("Has returned false for granted capability")
	}

	mustNoErr(t, b.Capabilities.Revoke(ctx, "ana", domain.CapManageTM), "revoke")
	expectKind(t, b.Capabilities.Revoke(ctx, "ana", domain.CapManageTM), domain.ErrNotFound)

	ok, err = b.Capabilities.Has(ctx, "ana", domain.CapManageTM)
	mustNoErr(t, err, "has after revoke")

	if ok {
		t.Errorf("Has returned true after revoke")
	}
}

func testSyncMetadata(t *testing.T, newBundle NewBundle) {
	ctx := context.Background()
	b, clock := fresh(t, newBundle)

	_, err := b.SyncMeta.Get(ctx, domain.EntityFile, "missing")
	expectKind(t, err, domain.ErrNotFound)

	_, err = b.SyncMeta.Put(ctx, domain.SyncMetadata{EntityType: domain.EntityFile})
	expectKind(t, err, domain.ErrValidation)

	at := clock.Now()

	m, err := b.SyncMeta.Put(ctx, domain.SyncMetadata{
		EntityType:     domain.EntityFile,
		SyncKey:        "k1",
		LocalHash:      "aa",
		RemoteHash:     "aa",
		LastSyncAt:     &at,
		Direction:      domain.DirectionDownload,
		ConflictStatus: domain.ConflictNone,
		State:          domain.StateSynced,
	})
	mustNoErr(t, err, "put")

	if m.UpdatedAt.IsZero() {
		t.Errorf("put did not stamp updated_at")
	}

	_, err = b.SyncMeta.Put(ctx, domain.SyncMetadata{EntityType: domain.EntityRow, SyncKey: "k1", State: domain.StateModified})
	mustNoErr(t, err, "put row meta")

	m.LocalHash = "bb"
	m.State = domain.StateModified

	_, err = b.SyncMeta.Put(ctx, *m)
	mustNoErr(t, err, "overwrite")

	got, err := b.SyncMeta.Get(ctx, domain.EntityFile, "k1")
	mustNoErr(t, err, "get")

	if got.LocalHash != "bb" || got.RemoteHash != "aa" || got.LastSyncAt == nil || !got.LastSyncAt.Equal(at) {
		t.Errorf("meta after overwrite = %+v", got)
	}

	modified, err := b.SyncMeta.GetAll(ctx, domain.SyncMetadataFilter{State: domain.StateModified})
	mustNoErr(t, err, "filter by state")

	if len(modified) != 2 || modified[0].EntityType != domain.EntityFile {
		t.Errorf("modified meta = %+v", modified)
	}

	mustNoErr(t, b.SyncMeta.Delete(ctx, domain.EntityFile, "k1"), "delete")
	mustNoErr(t, b.SyncMeta.Delete(ctx, domain.EntityFile, "k1"), "delete twice")

	_, err = b.SyncMeta.Get(ctx, domain.EntityFile, "k1")
	expectKind(t, err, domain.ErrNotFound)
}

package repotest

import (
	"context"
	"testing"

	"github.com/yeisme/tmvault/pkg/internal/domain"
)

func testTMEntries(t *testing.T, newBundle NewBundle) {
	ctx := context.Background()
	b, _ := fresh(t, newBundle)
	tr := Seed(t, b)

	_, err := b.TMs.Create(ctx, domain.TMInput{Name: "bad", SourceLang: "en"})
	expectKind(t, err, domain.ErrValidation)

	first, err := b.TMs.Create(ctx, domain.TMInput{Name: "first", SourceLang: "en", TargetLang: "ja"})
	mustNoErr(t, err, "create tm")

	second, err := b.TMs.RegisterFromFile(ctx, tr.File.ID, domain.RegisterTMInput{Name: "from file", Owner: "ana"})
	mustNoErr(t, err, "register from file")

	if second.EntryCount != 2 || second.SourceLang != "en" || second.TargetLang != "ja" {
		t.Fatalf("registered tm = %+v", second)
	}

	entries, err := b.TMs.Entries(ctx, second.ID)
	mustNoErr(t, err, "entries")

	if len(entries) != 2 || entries[0].Source != "Hello" || entries[1].Source != "Save" {
		t.Fatalf("registered entries = %+v", entries)
	}

	added, err := b.TMs.AddEntries(ctx, first.ID, []domain.TMEntryInput{
		{Source: "Save", Target: "保存する"},
		{Source: "Save", Target: "セーブ"},
	})
	mustNoErr(t, err, "add entries")

	if len(added) != 2 || added[0].SyncKey == "" {
		t.Fatalf("added entries = %+v", added)
	}

	_, err = b.TMs.AddEntries(ctx, first.ID, []domain.TMEntryInput{{Source: ""}})
	expectKind(t, err, domain.ErrValidation)

	_, err = b.TMs.AddEntries(ctx, 9999, []domain.TMEntryInput{{Source: "x"}})
	expectKind(t, err, domain.ErrNotFound)

	got, err := b.TMs.Get(ctx, first.ID)
	mustNoErr(t, err, "get tm")

	if got.EntryCount != 2 {
		t.Errorf("entry count = %d, want 2", got.EntryCount)
	}

	hits, err := b.TMs.SearchEntries(ctx, []int64{second.ID, first.ID}, "Save")
	mustNoErr(t, err, "search entries")

	if len(hits) != 3 || hits[0].TMID != second.ID || hits[1].TMID != first.ID || hits[2].Target != "セーブ" {
		t.Fatalf("search order = %+v", hits)
	}

	none, err := b.TMs.SearchEntries(ctx, nil, "Save")
	mustNoErr(t, err, "search without tms")

	if none == nil || len(none) != 0 {
		t.Errorf("search without tms = %#v", none)
	}

	n, err := b.TMs.UpsertEntries(ctx, first.ID, []domain.TMEntry{
		added[0],
		{SyncKey: domain.NewSyncKey(added[0].CreatedAt), Source: "Open", Target: "開く"},
		{Source: "no key"},
	})
	mustNoErr(t, err, "upsert entries")

	if n != 1 {
		t.Errorf("upsert entries added %d, want 1", n)
	}

	desc := "shared"

	updated, err := b.TMs.Update(ctx, first.ID, domain.TMPatch{Description: &desc})
	mustNoErr(t, err, "update tm")

	if updated.Description != desc || updated.EntryCount != 3 {
		t.Errorf("updated tm = %+v", updated)
	}

	free, err := b.TMs.GetAll(ctx, domain.TMFilter{Unassigned: true})
	mustNoErr(t, err, "unassigned tms")

	if len(free) != 2 {
		t.Errorf("unassigned tms = %d, want 2", len(free))
	}

	_, err = b.TMs.Assign(ctx, first.ID, domain.ProjectScope(tr.Project.ID), "ana")
	mustNoErr(t, err, "assign")

	free, err = b.TMs.GetAll(ctx, domain.TMFilter{Unassigned: true})
	mustNoErr(t, err, "unassigned tms")

	if len(free) != 1 || free[0].ID != second.ID {
		t.Errorf("unassigned tms after assign = %+v", free)
	}

	mustNoErr(t, b.TMs.Delete(ctx, first.ID), "delete tm")

	_, err = b.TMs.Entries(ctx, first.ID)
	expectKind(t, err, domain.ErrNotFound)
}

func testTMScope(t *testing.T, newBundle NewBundle) {
	ctx := context.Background()
	b, _ := fresh(t, newBundle)
	tr := Seed(t, b)

	tm, err := b.TMs.Create(ctx, domain.TMInput{Name: "scoped", SourceLang: "en", TargetLang: "ja"})
	mustNoErr(t, err, "create tm")

	a, err := b.TMs.GetAssignment(ctx, tm.ID)
	mustNoErr(t, err, "assignment of fresh tm")

	if !a.Scope.IsUnassigned() || a.IsActive {
		t.Fatalf("fresh tm assignment = %+v", a)
	}

	_, err = b.TMs.Activate(ctx, tm.ID)
	expectKind(t, err, domain.ErrInvalidTransition)

	_, err = b.TMs.Assign(ctx, tm.ID, domain.Scope{ProjectID: &tr.Project.ID, FolderID: &tr.Folder.ID}, "ana")
	expectKind(t, err, domain.ErrScopeConflict)

	_, err = b.TMs.Assign(ctx, tm.ID, domain.Scope{}, "ana")
	expectKind(t, err, domain.ErrValidation)

	missing := int64(777)

	_, err = b.TMs.Assign(ctx, tm.ID, domain.FolderScope(missing), "ana")
	expectKind(t, err, domain.ErrNotFound)

	a, err = b.TMs.Assign(ctx, tm.ID, domain.FolderScope(tr.Folder.ID), "ana")
	mustNoErr(t, err, "assign folder")

	if a.Scope.Level() != domain.ScopeFolder || a.IsActive || a.AssignedBy != "ana" {
		t.Fatalf("folder assignment = %+v", a)
	}

	a, err = b.TMs.Activate(ctx, tm.ID)
	mustNoErr(t, err, "activate")

	if !a.IsActive {
		t.Fatalf("activate did not set is_active")
	}

	active, err := b.TMs.ActiveForScope(ctx, domain.FolderScope(tr.Folder.ID))
	mustNoErr(t, err, "active for scope")

	if len(active) != 1 || active[0].TM.ID != tm.ID {
		t.Fatalf("active for folder = %+v", active)
	}

	// 重新分配到项目时原作用域失效
	a, err = b.TMs.Assign(ctx, tm.ID, domain.ProjectScope(tr.Project.ID), "bo")
	mustNoErr(t, err, "reassign to project")

	if a.Scope.FolderID != nil || a.Scope.ProjectID == nil || a.IsActive {
		t.Fatalf("reassigned = %+v", a)
	}

	active, err = b.TMs.ActiveForScope(ctx, domain.FolderScope(tr.Folder.ID))
	mustNoErr(t, err, "active for old scope")

	if len(active) != 0 {
		t.Errorf("old scope still active: %+v", active)
	}

	_, err = b.TMs.ActiveForScope(ctx, domain.Scope{ProjectID: &tr.Project.ID, PlatformID: &tr.Platform.ID})
	expectKind(t, err, domain.ErrScopeConflict)

	a, err = b.TMs.Deactivate(ctx, tm.ID)
	mustNoErr(t, err, "deactivate")

	if a.IsActive {
		t.Errorf("deactivate left tm active")
	}

	a, err = b.TMs.Unassign(ctx, tm.ID)
	mustNoErr(t, err, "unassign")

	if !a.Scope.IsUnassigned() {
		t.Errorf("unassign left scope %+v", a.Scope)
	}
}

func testTMActivateCap(t *testing.T, newBundle NewBundle) {
	ctx := context.Background()
	clock := NewClock()
	b := newBundle(t, Config{Clock: clock.Now, MaxActivePerScope: 1})
	tr := Seed(t, b)

	ids := make([]int64, 0, 2)

	for _, name := range []string{"a", "b"} {
		tm, err := b.TMs.Create(ctx, domain.TMInput{Name: name, SourceLang: "en", TargetLang: "ja"})
		mustNoErr(t, err, "create tm")

		_, err = b.TMs.Assign(ctx, tm.ID, domain.ProjectScope(tr.Project.ID), "ana")
		mustNoErr(t, err, "assign")

		ids = append(ids, tm.ID)
	}

	_, err := b.TMs.Activate(ctx, ids[0])
	mustNoErr(t, err, "activate first")

	// 已激活时再次激活不受上限影响
	_, err = b.TMs.Activate(ctx, ids[0])
	mustNoErr(t, err, "re-activate first")

	_, err = b.TMs.Activate(ctx, ids[1])
	expectKind(t, err, domain.ErrInvalidTransition)

	_, err = b.TMs.Deactivate(ctx, ids[0])
	mustNoErr(t, err, "deactivate first")

	_, err = b.TMs.Activate(ctx, ids[1])
	mustNoErr(t, err, "activate second after slot freed")
}

func testOrphanProtection(t *testing.T, newBundle NewBundle) {
	ctx := context.Background()
	b, _ := fresh(t, newBundle)
	tr := Seed(t, b)

	scopes := []domain.Scope{domain.ProjectScope(tr.Project.ID), domain.FolderScope(tr.Child.ID)}
	ids := make([]int64, 0, len(scopes))

	for _, scope := range scopes {
		tm, err := b.TMs.Create(ctx, domain.TMInput{Name: string(scope.Level()), SourceLang: "en", TargetLang: "ja"})
		mustNoErr(t, err, "create tm")

		_, err = b.TMs.Assign(ctx, tm.ID, scope, "ana")
		mustNoErr(t, err, "assign")

		_, err = b.TMs.Activate(ctx, tm.ID)
		mustNoErr(t, err, "activate")

		ids = append(ids, tm.ID)
	}

	mustNoErr(t, b.Folders.Delete(ctx, tr.Folder.ID), "delete folder")

	a, err := b.TMs.GetAssignment(ctx, ids[1])
	mustNoErr(t, err, "folder tm assignment")

	if !a.Scope.IsUnassigned() || a.IsActive {
		t.Errorf("folder tm not unassigned after subtree delete: %+v", a)
	}

	a, err = b.TMs.GetAssignment(ctx, ids[0])
	mustNoErr(t, err, "project tm assignment")

	if a.Scope.ProjectID == nil || !a.IsActive {
		t.Errorf("project tm changed by folder delete: %+v", a)
	}

	mustNoErr(t, b.Projects.Delete(ctx, tr.Project.ID), "delete project")

	a, err = b.TMs.GetAssignment(ctx, ids[0])
	mustNoErr(t, err, "project tm assignment")

	if !a.Scope.IsUnassigned() || a.IsActive {
		t.Errorf("project tm not unassigned after project delete: %+v", a)
	}

	// TM 本身不随作用域删除
	if _, err := b.TMs.Get(ctx, ids[0]); err != nil {
		t.Errorf("tm deleted with its scope: %v", err)
	}
}

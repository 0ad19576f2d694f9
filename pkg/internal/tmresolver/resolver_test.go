package tmresolver_test

import (
	"context"
	"errors"
	"testing"

	"github.com/yeisme/tmvault/pkg/internal/domain"
	"github.com/yeisme/tmvault/pkg/internal/repo"
	"github.com/yeisme/tmvault/pkg/internal/repo/repotest"
	"github.com/yeisme/tmvault/pkg/internal/storage/local"
	"github.com/yeisme/tmvault/pkg/internal/tmresolver"
)

func newBundle(t *testing.T) *repo.Bundle {
	t.Helper()

	clock := repotest.NewClock()

	s, err := local.Open(context.Background(), local.DSN(":memory:", 0), local.WithClock(clock.Now))
	if err != nil {
		t.Fatalf("open local: %v", err)
	}

	t.Cleanup(func() { _ = s.Close() })

	return s.Bundle()
}

// assignTM 创建 TM 并分配到作用域，active 为 true 时激活.
func assignTM(t *testing.T, b *repo.Bundle, name string, scope domain.Scope, active bool, entries ...domain.TMEntryInput) *domain.TranslationMemory {
	t.Helper()

	ctx := context.Background()

	tm, err := b.TMs.Create(ctx, domain.TMInput{Name: name, SourceLang: "en", TargetLang: "ja"})
	if err != nil {
		t.Fatalf("create tm %s: %v", name, err)
	}

	if len(entries) > 0 {
		if _, err := b.TMs.AddEntries(ctx, tm.ID, entries); err != nil {
			t.Fatalf("add entries %s: %v", name, err)
		}
	}

	if _, err := b.TMs.Assign(ctx, tm.ID, scope, "ana"); err != nil {
		t.Fatalf("assign %s: %v", name, err)
	}

	if active {
		if _, err := b.TMs.Activate(ctx, tm.ID); err != nil {
			t.Fatalf("activate %s: %v", name, err)
		}
	}

	return tm
}

// TestResolveOrder 测试解析顺序为 最近文件夹 → 祖先文件夹 → 项目 → 平台，且只包含激活的分配.
func TestResolveOrder(t *testing.T) {
	b := newBundle(t)
	tr := repotest.Seed(t, b)

	platform := assignTM(t, b, "platform", domain.PlatformScope(tr.Platform.ID), true)
	project := assignTM(t, b, "project", domain.ProjectScope(tr.Project.ID), true)
	parent := assignTM(t, b, "ui", domain.FolderScope(tr.Folder.ID), true)
	child := assignTM(t, b, "dialogs", domain.FolderScope(tr.Child.ID), true)
	assignTM(t, b, "inactive", domain.FolderScope(tr.Child.ID), false)

	got, err := tmresolver.New(b).Resolve(context.Background(), tr.File.ID)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}

	want := []struct {
		id    int64
		level domain.ScopeLevel
		depth int
	}{
		{child.ID, domain.ScopeFolder, 0},
		{parent.ID, domain.ScopeFolder, 1},
		{project.ID, domain.ScopeProject, 0},
		{platform.ID, domain.ScopePlatform, 0},
	}

	if len(got) != len(want) {
		t.Fatalf("expected %d TMs, got %d: %+v", len(want), len(got), got)
	}

	for i, w := range want {
		if got[i].TM.ID != w.id || got[i].Level != w.level || got[i].Depth != w.depth {
			t.Errorf("position %d: expected tm %d %s/%d, got tm %d %s/%d",
				i, w.id, w.level, w.depth, got[i].TM.ID, got[i].Level, got[i].Depth)
		}

		if !got[i].Assignment.IsActive {
			t.Errorf("position %d: expected active assignment", i)
		}
	}
}

// TestResolveSkipsMissingScopes 测试无文件夹的文件跳过文件夹层级，无平台的项目跳过平台层级.
func TestResolveSkipsMissingScopes(t *testing.T) {
	b := newBundle(t)
	ctx := context.Background()

	project, err := b.Projects.Create(ctx, domain.ProjectInput{Name: "loose"})
	if err != nil {
		t.Fatalf("create project: %v", err)
	}

	file, err := b.Files.Create(ctx, domain.FileInput{ProjectID: project.ID, Name: "root.csv"})
	if err != nil {
		t.Fatalf("create file: %v", err)
	}

	tm := assignTM(t, b, "project", domain.ProjectScope(project.ID), true)

	got, err := tmresolver.New(b).Resolve(ctx, file.ID)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}

	if len(got) != 1 || got[0].TM.ID != tm.ID || got[0].Level != domain.ScopeProject {
		t.Fatalf("expected only project TM, got %+v", got)
	}
}

// TestResolveNotCached 测试每次调用都重新读取分配.
func TestResolveNotCached(t *testing.T) {
	b := newBundle(t)
	tr := repotest.Seed(t, b)
	r := tmresolver.New(b)
	ctx := context.Background()

	tm := assignTM(t, b, "project", domain.ProjectScope(tr.Project.ID), true)

	got, err := r.Resolve(ctx, tr.File.ID)
	if err != nil || len(got) != 1 {
		t.Fatalf("first resolve: %v %+v", err, got)
	}

	if _, err := b.TMs.Deactivate(ctx, tm.ID); err != nil {
		t.Fatalf("deactivate: %v", err)
	}

	got, err = r.Resolve(ctx, tr.File.ID)
	if err != nil {
		t.Fatalf("second resolve: %v", err)
	}

	if len(got) != 0 {
		t.Fatalf("expected no TMs after deactivate, got %+v", got)
	}
}

// TestResolveMaxDepth 测试文件夹链超过上限时返回校验错误.
func TestResolveMaxDepth(t *testing.T) {
	b := newBundle(t)
	tr := repotest.Seed(t, b)

	_, err := tmresolver.New(b, tmresolver.WithMaxDepth(1)).Resolve(context.Background(), tr.File.ID)
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

// TestResolveMissingFile 测试文件不存在时返回 NotFound.
func TestResolveMissingFile(t *testing.T) {
	b := newBundle(t)

	_, err := tmresolver.New(b).Resolve(context.Background(), 999)
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

// TestMatch 测试候选按优先级返回并去除重复的 (source, target).
func TestMatch(t *testing.T) {
	b := newBundle(t)
	tr := repotest.Seed(t, b)

	assignTM(t, b, "project", domain.ProjectScope(tr.Project.ID), true,
		domain.TMEntryInput{Source: "Save", Target: "保存"},
		domain.TMEntryInput{Source: "Save", Target: "セーブ"},
	)
	assignTM(t, b, "dialogs", domain.FolderScope(tr.Child.ID), true,
		domain.TMEntryInput{Source: "Save", Target: "保存"},
		domain.TMEntryInput{Source: "Cancel", Target: "キャンセル"},
	)

	got, err := tmresolver.New(b).Match(context.Background(), tr.File.ID, "Save")
	if err != nil {
		t.Fatalf("match: %v", err)
	}

	if len(got) != 2 {
		t.Fatalf("expected 2 candidates, got %+v", got)
	}

	if got[0].Target != "保存" || got[0].Level != domain.ScopeFolder || got[0].TMName != "dialogs" {
		t.Errorf("expected folder TM first, got %+v", got[0])
	}

	if got[1].Target != "セーブ" || got[1].Level != domain.ScopeProject {
		t.Errorf("expected project candidate second, got %+v", got[1])
	}
}

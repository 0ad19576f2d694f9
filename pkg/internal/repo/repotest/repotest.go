// Package repotest 是仓储接口的契约测试套件，中心库与本地库适配器运行同一组用例.
package repotest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/yeisme/tmvault/pkg/internal/domain"
	"github.com/yeisme/tmvault/pkg/internal/repo"
)

// Config 每个用例创建仓储集合时使用的参数.
type Config struct {
	Clock             domain.Clock
	MaxActivePerScope int
	Retention         time.Duration
}

// NewBundle 为单个用例创建全新的空存储.
type NewBundle func(t *testing.T, cfg Config) *repo.Bundle

// Clock 可手动推进的测试时钟.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

// NewClock 从固定时间开始.
func NewClock() *Clock {
	return &Clock{now: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)}
}

// Now 返回当前时间.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.now
}

// Advance 推进时钟.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// Run 运行全部契约用例.
func Run(t *testing.T, newBundle NewBundle) {
	cases := []struct {
		name string
		fn   func(t *testing.T, newBundle NewBundle)
	}{
		{"Platforms", testPlatforms},
		{"PlatformDeleteUnassignsTMs", testPlatformDeleteUnassigns},
		{"Projects", testProjects},
		{"Folders", testFolders},
		{"FolderCycle", testFolderCycle},
		{"Files", testFiles},
		{"Rows", testRows},
		{"RowsBatchAtomic", testRowsBatchAtomic},
		{"OrphanedFileIsReadOnly", testOrphanedFile},
		{"SyncWritePaths", testSyncWritePaths},
		{"TMEntries", testTMEntries},
		{"TMScopeExclusivity", testTMScope},
		{"TMActivateCap", testTMActivateCap},
		{"OrphanProtection", testOrphanProtection},
		{"TrashRestore", testTrashRestore},
		{"TrashRestoreConflict", testTrashRestoreConflict},
		{"TrashPurge", testTrashPurge},
		{"QAResults", testQAResults},
		{"Capabilities", testCapabilities},
		{"SyncMetadata", testSyncMetadata},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) { c.fn(t, newBundle) })
	}
}

func fresh(t *testing.T, newBundle NewBundle) (*repo.Bundle, *Clock) {
	t.Helper()

	clock := NewClock()

	return newBundle(t, Config{Clock: clock.Now}), clock
}

// expectKind 断言错误类别.
func expectKind(t *testing.T, err error, want *domain.Error) {
	t.Helper()

	if err == nil {
		t.Fatalf("expected %s error, got nil", want.Kind)
	}

	if !errors.Is(err, want) {
		t.Fatalf("expected %s error, got %v", want.Kind, err)
	}
}

func mustNoErr(t *testing.T, err error, what string) {
	t.Helper()

	if err != nil {
		t.Fatalf("%s: %v", what, err)
	}
}

// Tree 一组常用的测试数据.
type Tree struct {
	Platform *domain.Platform
	Project  *domain.Project
	Folder   *domain.Folder
	Child    *domain.Folder
	File     *domain.File
	Rows     []domain.Row
}

// Seed 创建 平台/项目/文件夹/子文件夹/文件/三行 的层级.
func Seed(t *testing.T, b *repo.Bundle) *Tree {
	t.Helper()

	ctx := context.Background()
	tr := &Tree{}

	var err error

	tr.Platform, err = b.Platforms.Create(ctx, domain.PlatformInput{Name: "mobile", Owner: "ana"})
	mustNoErr(t, err, "create platform")

	tr.Project, err = b.Projects.Create(ctx, domain.ProjectInput{PlatformID: &tr.Platform.ID, Name: "app", Owner: "ana"})
	mustNoErr(t, err, "create project")

	tr.Folder, err = b.Folders.Create(ctx, domain.FolderInput{ProjectID: tr.Project.ID, Name: "ui"})
	mustNoErr(t, err, "create folder")

	tr.Child, err = b.Folders.Create(ctx, domain.FolderInput{ProjectID: tr.Project.ID, ParentID: &tr.Folder.ID, Name: "dialogs"})
	mustNoErr(t, err, "create child folder")

	tr.File, err = b.Files.Create(ctx, domain.FileInput{
		ProjectID:  tr.Project.ID,
		FolderID:   &tr.Child.ID,
		Name:       "strings.xlsx",
		Format:     "xlsx",
		SourceLang: "en",
		TargetLang: "ja",
	})
	mustNoErr(t, err, "create file")

	tr.Rows, err = b.Rows.CreateBatch(ctx, tr.File.ID, []domain.RowInput{
		{RowNum: 1, Source: "Hello", Target: "こんにちは", StringID: "hello"},
		{RowNum: 2, Source: "Bye", Target: "", StringID: "bye"},
		{RowNum: 3, Source: "Save", Target: "保存", StringID: "save"},
	})
	mustNoErr(t, err, "create rows")

	tr.File, err = b.Files.Get(ctx, tr.File.ID)
	mustNoErr(t, err, "reload file")

	return tr
}

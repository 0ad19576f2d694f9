package syncer_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/yeisme/tmvault/pkg/internal/domain"
	"github.com/yeisme/tmvault/pkg/internal/presence"
	"github.com/yeisme/tmvault/pkg/internal/repo"
	"github.com/yeisme/tmvault/pkg/internal/repo/repotest"
	"github.com/yeisme/tmvault/pkg/internal/storage/central"
	"github.com/yeisme/tmvault/pkg/internal/storage/kv"
	"github.com/yeisme/tmvault/pkg/internal/storage/local"
	"github.com/yeisme/tmvault/pkg/internal/syncer"
	"github.com/yeisme/tmvault/pkg/queue"
)

type env struct {
	central *repo.Bundle
	local   *repo.Bundle
	clock   *repotest.Clock
}

func newEnv(t *testing.T) *env {
	t.Helper()

	clock := repotest.NewClock()

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

	cs := central.New(db, central.WithClock(clock.Now))
	if err := cs.Migrate(context.Background()); err != nil {
		t.Fatalf("migrate central: %v", err)
	}

	ls, err := local.Open(context.Background(), local.DSN(":memory:", 0), local.WithClock(clock.Now))
	if err != nil {
		t.Fatalf("open local: %v", err)
	}

	t.Cleanup(func() { _ = ls.Close() })

	return &env{central: cs.Bundle("sync-test"), local: ls.Bundle(), clock: clock}
}

func (e *env) engine(opts ...syncer.Option) *syncer.Engine {
	return syncer.NewEngine(e.central, e.local, append([]syncer.Option{syncer.WithClock(e.clock.Now)}, opts...)...)
}

func localFile(t *testing.T, b *repo.Bundle, key string) *domain.File {
	t.Helper()

	f, err := b.Files.GetBySyncKey(context.Background(), key)
	if err != nil {
		t.Fatalf("local file %s: %v", key, err)
	}

	return f
}

func rowsOf(t *testing.T, b *repo.Bundle, fileID int64) []domain.Row {
	t.Helper()

	rows, err := b.Rows.GetAll(context.Background(), domain.RowFilter{FileID: fileID})
	if err != nil {
		t.Fatalf("rows: %v", err)
	}

	return rows
}

// TestDownloadIdempotent 测试下载建立完整父链，且重复下载不产生新的写入.
func TestDownloadIdempotent(t *testing.T) {
	env := newEnv(t)
	tr := repotest.Seed(t, env.central)
	eng := env.engine()
	ctx := context.Background()

	rep, err := eng.DownloadFile(ctx, tr.File.ID)
	if err != nil {
		t.Fatalf("download: %v", err)
	}

	if rep.Synced != 1 || len(rep.Items) != 1 || rep.Items[0].Action != syncer.ActionPull || rep.Items[0].Rows != 3 {
		t.Fatalf("unexpected first report: %+v", rep)
	}

	lf := localFile(t, env.local, tr.File.SyncKey)
	if lf.SyncStatus != domain.SyncStatusSynced {
		t.Errorf("expected synced local file, got %s", lf.SyncStatus)
	}

	if _, err := env.local.Platforms.GetBySyncKey(ctx, tr.Platform.SyncKey); err != nil {
		t.Errorf("platform not pulled: %v", err)
	}

	chain, err := env.local.Folders.Ancestors(ctx, *lf.FolderID)
	if err != nil {
		t.Fatalf("local ancestors: %v", err)
	}

	if len(chain) != 2 || chain[0].SyncKey != tr.Child.SyncKey || chain[1].SyncKey != tr.Folder.SyncKey {
		t.Errorf("folder chain not preserved: %+v", chain)
	}

	rows := rowsOf(t, env.local, lf.ID)
	if len(rows) != 3 || rows[0].Target != "こんにちは" {
		t.Fatalf("unexpected local rows: %+v", rows)
	}

	env.clock.Advance(time.Minute)

	rep, err = eng.DownloadFile(ctx, tr.File.ID)
	if err != nil {
		t.Fatalf("second download: %v", err)
	}

	if rep.Items[0].Action != "" || rep.Items[0].Rows != 0 || rep.Items[0].Outcome != syncer.OutcomeSynced {
		t.Fatalf("second download should be a no-op, got %+v", rep.Items[0])
	}

	again := rowsOf(t, env.local, lf.ID)
	if len(again) != 3 || !again[0].UpdatedAt.Equal(rows[0].UpdatedAt) {
		t.Fatalf("second download rewrote rows: %+v", again)
	}
}

// TestUploadNewFile 测试上传本地新文件时在中心库创建父链与行.
func TestUploadNewFile(t *testing.T) {
	env := newEnv(t)
	tr := repotest.Seed(t, env.local)
	ctx := context.Background()

	rep, err := env.engine().UploadFile(ctx, tr.File.ID)
	if err != nil {
		t.Fatalf("upload: %v", err)
	}

	if rep.Items[0].Action != syncer.ActionPush || rep.Items[0].Rows != 3 {
		t.Fatalf("unexpected report: %+v", rep.Items[0])
	}

	cf, err := env.central.Files.GetBySyncKey(ctx, tr.File.SyncKey)
	if err != nil {
		t.Fatalf("central file: %v", err)
	}

	if cf.SyncStatus != domain.SyncStatusSynced {
		t.Errorf("expected synced central file, got %s", cf.SyncStatus)
	}

	cp, err := env.central.Projects.GetBySyncKey(ctx, tr.Project.SyncKey)
	if err != nil || cp.PlatformID == nil {
		t.Fatalf("central project missing platform: %+v %v", cp, err)
	}

	if n := len(rowsOf(t, env.central, cf.ID)); n != 3 {
		t.Errorf("expected 3 central rows, got %d", n)
	}

	if lf := localFile(t, env.local, tr.File.SyncKey); lf.SyncStatus != domain.SyncStatusSynced {
		t.Errorf("expected synced local file, got %s", lf.SyncStatus)
	}

	meta, err := env.engine().Status(ctx, domain.EntityFile, tr.File.SyncKey)
	if err != nil {
		t.Fatalf("status: %v", err)
	}

	if meta.State != domain.StateSynced || meta.LastSyncAt == nil || meta.Direction != domain.DirectionUpload {
		t.Errorf("unexpected metadata: %+v", meta)
	}
}

// downloaded 在中心库建立数据并下载到本地.
func downloaded(t *testing.T, env *env) (*repotest.Tree, *domain.File) {
	t.Helper()

	tr := repotest.Seed(t, env.central)
	if _, err := env.engine().DownloadFile(context.Background(), tr.File.ID); err != nil {
		t.Fatalf("download: %v", err)
	}

	return tr, localFile(t, env.local, tr.File.SyncKey)
}

func editRow(t *testing.T, b *repo.Bundle, fileID int64, key, target string) {
	t.Helper()

	row, err := b.Rows.GetBySyncKey(context.Background(), fileID, key)
	if err != nil {
		t.Fatalf("row %s: %v", key, err)
	}

	if _, err := b.Rows.Update(context.Background(), row.ID, domain.RowPatch{Target: &target}); err != nil {
		t.Fatalf("update row: %v", err)
	}
}

func targetOf(t *testing.T, b *repo.Bundle, fileID int64, key string) string {
	t.Helper()

	row, err := b.Rows.GetBySyncKey(context.Background(), fileID, key)
	if err != nil {
		t.Fatalf("row %s: %v", key, err)
	}

	return row.Target
}

// TestLastWriteWins 测试双方修改时后写者胜，时间相同时本地胜.
func TestLastWriteWins(t *testing.T) {
	cases := []struct {
		name       string
		localFirst bool
		tie        bool
		winner     string
		want       string
	}{
		{"local later", false, false, "local", "local"},
		{"remote later", true, false, "remote", "remote"},
		{"tie goes to local", false, true, "local", "local"},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			env := newEnv(t)
			tr, lf := downloaded(t, env)
			key := tr.Rows[0].SyncKey

			edit := func(who string) {
				if !c.tie {
					env.clock.Advance(time.Minute)
				}

				if who == "local" {
					editRow(t, env.local, lf.ID, key, "local")
				} else {
					editRow(t, env.central, tr.File.ID, key, "remote")
				}
			}

			if c.localFirst {
				edit("local")
				edit("remote")
			} else {
				edit("remote")
				edit("local")
			}

			rep, err := env.engine().MergeFile(context.Background(), lf.ID)
			if err != nil {
				t.Fatalf("merge: %v", err)
			}

			if len(rep.Conflicts) != 1 {
				t.Fatalf("expected one conflict, got %+v", rep.Conflicts)
			}

			n := rep.Conflicts[0]
			if n.Winner != c.winner || !n.Applied || n.SyncKey != key || n.LosingHash == "" {
				t.Errorf("unexpected notice: %+v", n)
			}

			if got := targetOf(t, env.local, lf.ID, key); got != c.want {
				t.Errorf("local target: expected %q, got %q", c.want, got)
			}

			if got := targetOf(t, env.central, tr.File.ID, key); got != c.want {
				t.Errorf("central target: expected %q, got %q", c.want, got)
			}

			meta, err := env.local.SyncMeta.Get(context.Background(), domain.EntityRow, key)
			if err != nil {
				t.Fatalf("row meta: %v", err)
			}

			if meta.LosingHash != n.LosingHash || meta.State != domain.StateSynced {
				t.Errorf("unexpected row metadata: %+v", meta)
			}
		})
	}
}

// TestConflictWinnerOnReadOnlySide 测试下载模式下本地胜出时保持原样并标记为 modified，之后上传生效.
func TestConflictWinnerOnReadOnlySide(t *testing.T) {
	env := newEnv(t)
	tr, lf := downloaded(t, env)
	key := tr.Rows[2].SyncKey
	ctx := context.Background()

	env.clock.Advance(time.Minute)
	editRow(t, env.central, tr.File.ID, key, "remote")
	env.clock.Advance(time.Minute)
	editRow(t, env.local, lf.ID, key, "local")

	eng := env.engine()

	rep, err := eng.DownloadFile(ctx, tr.File.ID)
	if err != nil {
		t.Fatalf("download: %v", err)
	}

	if len(rep.Conflicts) != 1 || rep.Conflicts[0].Applied || rep.Conflicts[0].Winner != "local" {
		t.Fatalf("unexpected conflicts: %+v", rep.Conflicts)
	}

	if got := targetOf(t, env.central, tr.File.ID, key); got != "remote" {
		t.Errorf("download must not write central, got %q", got)
	}

	if got := localFile(t, env.local, tr.File.SyncKey); got.SyncStatus != domain.SyncStatusModified {
		t.Errorf("expected modified local file, got %s", got.SyncStatus)
	}

	rep, err = eng.UploadFile(ctx, lf.ID)
	if err != nil {
		t.Fatalf("upload: %v", err)
	}

	if len(rep.Conflicts) != 0 {
		t.Errorf("upload should not conflict again: %+v", rep.Conflicts)
	}

	if got := targetOf(t, env.central, tr.File.ID, key); got != "local" {
		t.Errorf("expected local winner uploaded, got %q", got)
	}

	if got := localFile(t, env.local, tr.File.SyncKey); got.SyncStatus != domain.SyncStatusSynced {
		t.Errorf("expected synced after upload, got %s", got.SyncStatus)
	}
}

// TestConflictPublished 测试冲突通过 tv.sync.conflict 发布.
func TestConflictPublished(t *testing.T) {
	env := newEnv(t)
	tr, lf := downloaded(t, env)
	key := tr.Rows[0].SyncKey

	pubsub := gochannel.NewGoChannel(gochannel.Config{Persistent: true}, watermill.NopLogger{})
	t.Cleanup(func() { _ = pubsub.Close() })

	env.clock.Advance(time.Minute)
	editRow(t, env.local, lf.ID, key, "local")
	env.clock.Advance(time.Minute)
	editRow(t, env.central, tr.File.ID, key, "remote")

	if _, err := env.engine(syncer.WithPublisher(pubsub)).MergeFile(context.Background(), lf.ID); err != nil {
		t.Fatalf("merge: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	msgs, err := pubsub.Subscribe(ctx, queue.TopicSyncConflict)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	select {
	case msg := <-msgs:
		msg.Ack()

		ev, err := queue.ParseSyncConflict(msg)
		if err != nil {
			t.Fatalf("parse: %v", err)
		}

		if ev.Payload.SyncKey != key || ev.Payload.Winner != "remote" || ev.Payload.Direction != string(domain.DirectionMerge) {
			t.Errorf("unexpected payload: %+v", ev.Payload)
		}
	case <-ctx.Done():
		t.Fatal("no conflict event published")
	}
}

// TestNoDeletePropagation 测试删除不会跨存储传播：本地回收站中的文件不再下载，中心库删除使本地文件 orphaned.
func TestNoDeletePropagation(t *testing.T) {
	env := newEnv(t)
	tr, lf := downloaded(t, env)
	ctx := context.Background()
	eng := env.engine()

	if err := env.local.Files.Delete(ctx, lf.ID); err != nil {
		t.Fatalf("local delete: %v", err)
	}

	rep, err := eng.DownloadFile(ctx, tr.File.ID)
	if err != nil {
		t.Fatalf("download: %v", err)
	}

	if rep.Items[0].Outcome != syncer.OutcomeSkipped || !strings.Contains(rep.Items[0].Reason, "trash") {
		t.Fatalf("expected skipped by local trash, got %+v", rep.Items[0])
	}

	if _, err := env.central.Files.Get(ctx, tr.File.ID); err != nil {
		t.Fatalf("central file must survive local delete: %v", err)
	}
}

// TestOrphanedFile 测试中心库删除后本地文件变为只读，重新分配或转为本地文件后可写.
func TestOrphanedFile(t *testing.T) {
	env := newEnv(t)
	tr, lf := downloaded(t, env)
	ctx := context.Background()
	eng := env.engine()

	if err := env.central.Files.Delete(ctx, tr.File.ID); err != nil {
		t.Fatalf("central delete: %v", err)
	}

	rep, err := eng.MergeFile(ctx, lf.ID)
	if err != nil {
		t.Fatalf("merge: %v", err)
	}

	if rep.Orphaned != 1 {
		t.Fatalf("expected orphaned file, got %+v", rep)
	}

	orphan := localFile(t, env.local, tr.File.SyncKey)
	if orphan.SyncStatus != domain.SyncStatusOrphaned {
		t.Fatalf("expected orphaned status, got %s", orphan.SyncStatus)
	}

	name := "renamed"
	if _, err := env.local.Files.Update(ctx, orphan.ID, domain.FilePatch{Name: &name}); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("expected orphaned file to reject writes, got %v", err)
	}

	rep, err = eng.MergeFile(ctx, lf.ID)
	if err != nil || rep.Items[0].Outcome != syncer.OutcomeSkipped {
		t.Fatalf("expected orphaned file skipped by sync, got %+v %v", rep, err)
	}

	project, err := env.local.Projects.Create(ctx, domain.ProjectInput{Name: "rescue"})
	if err != nil {
		t.Fatalf("create project: %v", err)
	}

	moved, err := eng.Reassign(ctx, orphan.ID, project.ID, nil)
	if err != nil {
		t.Fatalf("reassign: %v", err)
	}

	if moved.SyncStatus != domain.SyncStatusModified || moved.ProjectID != project.ID {
		t.Fatalf("unexpected reassigned file: %+v", moved)
	}

	if _, err := env.local.Files.Update(ctx, moved.ID, domain.FilePatch{Name: &name}); err != nil {
		t.Fatalf("reassigned file should be writable: %v", err)
	}

	if _, err := eng.Reassign(ctx, moved.ID, project.ID, nil); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("expected reassign of non-orphaned file to fail, got %v", err)
	}

	converted, err := eng.ConvertToLocalOnly(ctx, moved.ID)
	if err != nil {
		t.Fatalf("convert: %v", err)
	}

	if converted.SyncStatus != domain.SyncStatusLocal {
		t.Errorf("expected local status, got %s", converted.SyncStatus)
	}

	meta, err := eng.Status(ctx, domain.EntityFile, tr.File.SyncKey)
	if err != nil || meta.State != domain.StateLocalOnly || meta.LastSyncAt != nil {
		t.Errorf("unexpected metadata after convert: %+v %v", meta, err)
	}

	rep, err = eng.UploadFile(ctx, converted.ID)
	if err != nil {
		t.Fatalf("upload: %v", err)
	}

	if rep.Items[0].Outcome != syncer.OutcomeSkipped || !strings.Contains(rep.Items[0].Reason, "central trash") {
		t.Errorf("expected upload blocked by central trash, got %+v", rep.Items[0])
	}
}

// TestLockedFileSkipped 测试其他会话持有文件锁时上传跳过该文件.
func TestLockedFileSkipped(t *testing.T) {
	env := newEnv(t)
	tr, lf := downloaded(t, env)
	ctx := context.Background()

	locks := presence.NewLockManager(kv.NewMemoryKVWithClock(env.clock.Now), nil, presence.WithClock(env.clock.Now))

	other := presence.Holder{SessionID: "other", User: "bob", FileID: tr.File.ID}
	if _, err := locks.Acquire(ctx, domain.FileRef(tr.File.ID), other); err != nil {
		t.Fatalf("acquire: %v", err)
	}

	env.clock.Advance(time.Second)
	editRow(t, env.local, lf.ID, tr.Rows[0].SyncKey, "local")

	eng := env.engine(syncer.WithLocker(locks), syncer.WithHolder("sync-session", "ana"))

	rep, err := eng.UploadFile(ctx, lf.ID)
	if err != nil {
		t.Fatalf("upload: %v", err)
	}

	if rep.Skipped != 1 || !strings.Contains(rep.Items[0].Reason, "lock") {
		t.Fatalf("expected skipped by lock, got %+v", rep.Items[0])
	}

	if got := targetOf(t, env.central, tr.File.ID, tr.Rows[0].SyncKey); got == "local" {
		t.Fatal("locked file was written")
	}

	if err := locks.Release(ctx, domain.FileRef(tr.File.ID), other); err != nil {
		t.Fatalf("release: %v", err)
	}

	if _, err := eng.UploadFile(ctx, lf.ID); err != nil {
		t.Fatalf("upload after release: %v", err)
	}

	if got := targetOf(t, env.central, tr.File.ID, tr.Rows[0].SyncKey); got != "local" {
		t.Fatalf("expected upload after release, got %q", got)
	}

	if _, err := locks.Get(ctx, domain.FileRef(tr.File.ID)); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("sync lock should be released, got %v", err)
	}
}

// TestFolderCancel 测试取消后已完成的文件保持 synced，报告标记 Cancelled.
func TestFolderCancel(t *testing.T) {
	env := newEnv(t)
	tr := repotest.Seed(t, env.central)

	second, err := env.central.Files.Create(context.Background(), domain.FileInput{
		ProjectID: tr.Project.ID,
		FolderID:  &tr.Child.ID,
		Name:      "menus.xlsx",
	})
	if err != nil {
		t.Fatalf("create file: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pubsub := gochannel.NewGoChannel(gochannel.Config{Persistent: true}, watermill.NopLogger{})
	t.Cleanup(func() { _ = pubsub.Close() })

	eng := env.engine(syncer.WithPublisher(pubsub), syncer.WithProgress(func(syncer.Item) { cancel() }))

	rep, err := eng.DownloadFolder(ctx, tr.Folder.ID)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}

	if rep == nil || !rep.Cancelled || len(rep.Items) != 1 {
		t.Fatalf("unexpected report: %+v", rep)
	}

	first := localFile(t, env.local, rep.Items[0].SyncKey)
	if first.SyncStatus != domain.SyncStatusSynced {
		t.Errorf("completed file should stay synced, got %s", first.SyncStatus)
	}

	other := tr.File.SyncKey
	if rep.Items[0].SyncKey == other {
		other = second.SyncKey
	}

	if _, err := env.local.Files.GetBySyncKey(context.Background(), other); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("cancelled file should not be transferred, got %v", err)
	}

	if _, err := env.local.Folders.GetBySyncKey(context.Background(), tr.Child.SyncKey); err != nil {
		t.Errorf("subfolder should be created before files: %v", err)
	}

	wait, stop := context.WithTimeout(context.Background(), 2*time.Second)
	defer stop()

	msgs, err := pubsub.Subscribe(wait, queue.TopicSyncCompleted)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	select {
	case msg := <-msgs:
		msg.Ack()

		ev, err := queue.ParseWatermillMessage[queue.SyncCompletedPayload](msg)
		if err != nil {
			t.Fatalf("parse: %v", err)
		}

		if !ev.Payload.Cancelled || ev.Payload.Synced != 1 {
			t.Errorf("unexpected completion payload: %+v", ev.Payload)
		}
	case <-wait.Done():
		t.Fatal("cancelled sync should still publish completion")
	}
}

// TestUploadFolder 测试上传整个文件夹子树.
func TestUploadFolder(t *testing.T) {
	env := newEnv(t)
	tr := repotest.Seed(t, env.local)

	rep, err := env.engine().UploadFolder(context.Background(), tr.Folder.ID)
	if err != nil {
		t.Fatalf("upload folder: %v", err)
	}

	if rep.Synced != 1 || rep.Cancelled {
		t.Fatalf("unexpected report: %+v", rep)
	}

	if _, err := env.central.Folders.GetBySyncKey(context.Background(), tr.Child.SyncKey); err != nil {
		t.Fatalf("child folder not uploaded: %v", err)
	}
}

// TestOnFileOpen 测试并发打开同一文件只产生一份本地副本.
func TestOnFileOpen(t *testing.T) {
	env := newEnv(t)
	tr := repotest.Seed(t, env.central)
	eng := env.engine()

	var wg sync.WaitGroup

	errs := make(chan error, 4)

	for range 4 {
		wg.Add(1)

		go func() {
			defer wg.Done()

			if _, err := eng.OnFileOpen(context.Background(), tr.File.ID); err != nil {
				errs <- err
			}
		}()
	}

	wg.Wait()
	close(errs)

	for err := range errs {
		t.Fatalf("open: %v", err)
	}

	lf := localFile(t, env.local, tr.File.SyncKey)
	if n := len(rowsOf(t, env.local, lf.ID)); n != 3 {
		t.Fatalf("expected 3 rows, got %d", n)
	}
}

// TestTMSync 测试 TM 记录与条目双向追加.
func TestTMSync(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()
	eng := env.engine()

	ct, err := env.central.TMs.Create(ctx, domain.TMInput{Name: "glossary", SourceLang: "en", TargetLang: "ja"})
	if err != nil {
		t.Fatalf("create tm: %v", err)
	}

	if _, err := env.central.TMs.AddEntries(ctx, ct.ID, []domain.TMEntryInput{
		{Source: "Save", Target: "保存"},
		{Source: "Open", Target: "開く"},
	}); err != nil {
		t.Fatalf("add entries: %v", err)
	}

	rep, err := eng.DownloadTM(ctx, ct.ID)
	if err != nil {
		t.Fatalf("download tm: %v", err)
	}

	if rep.Items[0].Entries != 2 || rep.Items[0].Action != syncer.ActionPull {
		t.Fatalf("unexpected report: %+v", rep.Items[0])
	}

	lt, err := env.local.TMs.GetBySyncKey(ctx, ct.SyncKey)
	if err != nil {
		t.Fatalf("local tm: %v", err)
	}

	if _, err := env.local.TMs.AddEntries(ctx, lt.ID, []domain.TMEntryInput{{Source: "Close", Target: "閉じる"}}); err != nil {
		t.Fatalf("add local entry: %v", err)
	}

	rep, err = eng.UploadTM(ctx, lt.ID)
	if err != nil {
		t.Fatalf("upload tm: %v", err)
	}

	if rep.Items[0].Entries != 1 {
		t.Fatalf("expected one entry pushed, got %+v", rep.Items[0])
	}

	entries, err := env.central.TMs.Entries(ctx, ct.ID)
	if err != nil {
		t.Fatalf("entries: %v", err)
	}

	if len(entries) != 3 {
		t.Fatalf("expected 3 central entries, got %d", len(entries))
	}

	rep, err = eng.DownloadTM(ctx, ct.ID)
	if err != nil || rep.Items[0].Entries != 0 {
		t.Fatalf("expected idempotent download, got %+v %v", rep, err)
	}
}

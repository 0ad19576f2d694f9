// Package syncer 在中心库与本地库之间按 sync key 传输记录.
//
// 决策依据本地库中每个实体的 SyncMetadata：上次同步时双方的内容哈希.
// 传输只做按 sync key 的追加式 upsert，从不传播删除；删除只存在于各自的回收站.
// 双方都修改时按 UpdatedAt 后写者胜（相同时本地胜），冲突以通知形式写入报告而不是返回错误.
package syncer

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/yeisme/tmvault/pkg/internal/domain"
	"github.com/yeisme/tmvault/pkg/internal/presence"
	"github.com/yeisme/tmvault/pkg/internal/repo"
)

// Locker 在写中心库期间持有文件锁，presence.LockManager 实现该接口.
type Locker interface {
	Acquire(ctx context.Context, ref domain.RecordRef, holder presence.Holder) (*presence.Lock, error)
	Release(ctx context.Context, ref domain.RecordRef, holder presence.Holder) error
}

// Outcome 单个实体在一次同步后的结果.
type Outcome string

const (
	OutcomeNone     Outcome = "none"
	OutcomeSynced   Outcome = "synced"
	OutcomeModified Outcome = "modified"
	OutcomeSkipped  Outcome = "skipped"
	OutcomeOrphaned Outcome = "orphaned"
)

// 传输动作.
const (
	ActionPull = "pull"
	ActionPush = "push"
)

// Item 报告中一个文件或 TM 的结果.
type Item struct {
	Entity  string  `json:"entity"`
	SyncKey string  `json:"sync_key"`
	Name    string  `json:"name"`
	Outcome Outcome `json:"outcome"`
	Action  string  `json:"action,omitempty"`
	Reason  string  `json:"reason,omitempty"`
	Rows    int     `json:"rows,omitempty"`
	Entries int     `json:"entries,omitempty"`
}

// ConflictNotice 双方修改时的裁决记录.
type ConflictNotice struct {
	Entity          string    `json:"entity"`
	SyncKey         string    `json:"sync_key"`
	Name            string    `json:"name"`
	Winner          string    `json:"winner"` // local | remote
	LosingHash      string    `json:"losing_hash"`
	LocalUpdatedAt  time.Time `json:"local_updated_at"`
	RemoteUpdatedAt time.Time `json:"remote_updated_at"`
	// Applied 为 false 表示胜出方位于本次不可写的一侧，保持原样.
	Applied bool `json:"applied"`
}

// Report 一次同步操作的汇总，部分完成也是合法结果.
type Report struct {
	Operation string           `json:"operation"`
	Direction domain.Direction `json:"direction"`
	Items     []Item           `json:"items"`
	Conflicts []ConflictNotice `json:"conflicts"`
	Synced    int              `json:"synced"`
	Modified  int              `json:"modified"`
	Skipped   int              `json:"skipped"`
	Orphaned  int              `json:"orphaned"`
	Cancelled bool             `json:"cancelled"`
}

func (r *Report) add(it Item) {
	r.Items = append(r.Items, it)

	switch it.Outcome {
	case OutcomeSynced:
		r.Synced++
	case OutcomeModified:
		r.Modified++
	case OutcomeSkipped:
		r.Skipped++
	case OutcomeOrphaned:
		r.Orphaned++
	}
}

// Engine 同步引擎.
type Engine struct {
	central *repo.Bundle
	local   *repo.Bundle

	locker   Locker
	holder   presence.Holder
	pub      message.Publisher
	clock    domain.Clock
	progress func(Item)

	group singleflight.Group
}

// Option 配置 Engine.
type Option func(*Engine)

// WithLocker 写中心库文件前获取文件锁.
func WithLocker(l Locker) Option {
	return func(e *Engine) { e.locker = l }
}

// WithHolder 设置加锁使用的会话身份.
func WithHolder(sessionID, user string) Option {
	return func(e *Engine) {
		e.holder.SessionID = sessionID
		e.holder.User = user
	}
}

// WithPublisher 发布冲突与完成事件.
func WithPublisher(pub message.Publisher) Option {
	return func(e *Engine) { e.pub = pub }
}

// WithClock 注入时钟.
func WithClock(c domain.Clock) Option {
	return func(e *Engine) { e.clock = c }
}

// WithProgress 每处理完一个文件或 TM 调用一次.
func WithProgress(fn func(Item)) Option {
	return func(e *Engine) { e.progress = fn }
}

// NewEngine 创建同步引擎，central 与 local 分别绑定两个存储.
func NewEngine(central, local *repo.Bundle, opts ...Option) *Engine {
	e := &Engine{
		central: central,
		local:   local,
		clock:   domain.SystemClock,
		holder:  presence.Holder{SessionID: "sync-" + uuid.NewString(), User: "sync"},
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// DownloadFile 将中心库文件及其行拉到本地库.
func (e *Engine) DownloadFile(ctx context.Context, centralFileID int64) (*Report, error) {
	r := e.newRun(domain.DirectionDownload, "download-file")

	cf, err := e.central.Files.Get(ctx, centralFileID)
	if err != nil {
		return nil, err
	}

	lf, err := lookup(e.local.Files.GetBySyncKey(ctx, cf.SyncKey))
	if err != nil {
		return nil, err
	}

	return r.one(ctx, cf.SyncKey, func(ctx context.Context) (Item, error) { return r.syncFile(ctx, lf, cf) })
}

// UploadFile 将本地文件及其行推送到中心库.
func (e *Engine) UploadFile(ctx context.Context, localFileID int64) (*Report, error) {
	return e.localFile(ctx, domain.DirectionUpload, "upload-file", localFileID)
}

// MergeFile 双向同步本地文件.
func (e *Engine) MergeFile(ctx context.Context, localFileID int64) (*Report, error) {
	return e.localFile(ctx, domain.DirectionMerge, "merge-file", localFileID)
}

func (e *Engine) localFile(ctx context.Context, dir domain.Direction, op string, localFileID int64) (*Report, error) {
	r := e.newRun(dir, op)

	lf, err := e.local.Files.Get(ctx, localFileID)
	if err != nil {
		return nil, err
	}

	cf, err := lookup(e.central.Files.GetBySyncKey(ctx, lf.SyncKey))
	if err != nil {
		return nil, err
	}

	return r.one(ctx, lf.SyncKey, func(ctx context.Context) (Item, error) { return r.syncFile(ctx, lf, cf) })
}

// OnFileOpen 打开文件时自动下载，同一文件的并发调用共享一次同步.
func (e *Engine) OnFileOpen(ctx context.Context, centralFileID int64) (*Report, error) {
	v, err, _ := e.group.Do(strconv.FormatInt(centralFileID, 10), func() (any, error) {
		return e.DownloadFile(ctx, centralFileID)
	})
	if err != nil {
		return nil, err
	}

	return v.(*Report), nil
}

// Status 返回实体的同步元数据.
func (e *Engine) Status(ctx context.Context, entityType, key string) (*domain.SyncMetadata, error) {
	return e.local.SyncMeta.Get(ctx, entityType, key)
}

// Reassign 将 orphaned 文件移到新的本地项目/文件夹，并恢复为待上传状态.
func (e *Engine) Reassign(ctx context.Context, localFileID, projectID int64, folderID *int64) (*domain.File, error) {
	f, err := e.local.Files.Get(ctx, localFileID)
	if err != nil {
		return nil, err
	}

	if f.SyncStatus != domain.SyncStatusOrphaned {
		return nil, domain.InvalidTransition(domain.EntityFile, "file %d is %s; only orphaned files can be reassigned", f.ID, f.SyncStatus)
	}

	if _, err := e.local.Files.Relocate(ctx, f.ID, projectID, folderID); err != nil {
		return nil, err
	}

	if err := e.local.Files.SetSyncStatus(ctx, f.ID, domain.SyncStatusModified); err != nil {
		return nil, err
	}

	meta, err := lookup(e.local.SyncMeta.Get(ctx, domain.EntityFile, f.SyncKey))
	if err != nil {
		return nil, err
	}

	if meta != nil {
		meta.State = domain.StateModified
		if _, err := e.local.SyncMeta.Put(ctx, *meta); err != nil {
			return nil, err
		}
	}

	return e.local.Files.Get(ctx, f.ID)
}

// ConvertToLocalOnly 解除文件与中心库的关联，之后的上传视为新文件.
func (e *Engine) ConvertToLocalOnly(ctx context.Context, localFileID int64) (*domain.File, error) {
	f, err := e.local.Files.Get(ctx, localFileID)
	if err != nil {
		return nil, err
	}

	rows, err := e.local.Rows.GetAll(ctx, domain.RowFilter{FileID: f.ID})
	if err != nil {
		return nil, err
	}

	for _, row := range rows {
		if err := e.local.SyncMeta.Delete(ctx, domain.EntityRow, row.SyncKey); err != nil && domain.KindOf(err) != domain.KindNotFound {
			return nil, err
		}
	}

	meta := domain.SyncMetadata{
		EntityType:     domain.EntityFile,
		SyncKey:        f.SyncKey,
		ConflictStatus: domain.ConflictNone,
		State:          domain.StateLocalOnly,
	}
	if _, err := e.local.SyncMeta.Put(ctx, meta); err != nil {
		return nil, err
	}

	if err := e.local.Files.SetSyncStatus(ctx, f.ID, domain.SyncStatusLocal); err != nil {
		return nil, err
	}

	return e.local.Files.Get(ctx, f.ID)
}

// lookup 将 NotFound 转换为 nil 结果.
func lookup[T any](v *T, err error) (*T, error) {
	if err != nil {
		if domain.KindOf(err) == domain.KindNotFound {
			return nil, nil
		}

		return nil, err
	}

	return v, nil
}

// lockFile 获取中心库文件锁，返回释放函数.
func (e *Engine) lockFile(ctx context.Context, centralFileID int64) (func(), error) {
	if e.locker == nil {
		return func() {}, nil
	}

	ref := domain.FileRef(centralFileID)
	holder := e.holder
	holder.FileID = centralFileID

	if _, err := e.locker.Acquire(ctx, ref, holder); err != nil {
		return nil, err
	}

	return func() {
		// 同步结束后即使调用方已取消也要释放锁
		if err := e.locker.Release(context.WithoutCancel(ctx), ref, holder); err != nil {
			logger(ctx).Warn().Err(err).Str("ref", ref.String()).Msg("release sync lock failed")
		}
	}, nil
}

func describe(entity, key string) string {
	return fmt.Sprintf("%s %s", entity, key)
}

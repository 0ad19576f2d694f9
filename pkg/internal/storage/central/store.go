// Package central 是基于 GORM 的中心库仓储适配器.
//
// 多用户共享，写文件与行之前通过 LockChecker 校验记录锁；
// 同一个 Store 可按会话生成多份仓储集合，锁校验以会话为单位.
package central

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/yeisme/tmvault/pkg/internal/domain"
	"github.com/yeisme/tmvault/pkg/internal/model"
	"github.com/yeisme/tmvault/pkg/internal/repo"
)

const (
	defaultRetention      = 30 * 24 * time.Hour
	defaultMaxFolderDepth = 64
)

// LockChecker 校验会话是否持有记录锁，由 presence.LockManager 实现.
type LockChecker interface {
	Check(ctx context.Context, ref domain.RecordRef, sessionID string) error
	// CheckFree 文件或其中的行被其他会话锁住时返回 Locked.
	CheckFree(ctx context.Context, fileID int64, sessionID string) error
}

// Store 中心库.
type Store struct {
	db             *gorm.DB
	clock          domain.Clock
	locks          LockChecker
	maxActive      int
	maxFolderDepth int
	retention      time.Duration
}

// Option 配置 Store.
type Option func(*Store)

// WithClock 注入时钟.
func WithClock(c domain.Clock) Option {
	return func(s *Store) { s.clock = c }
}

// WithLockChecker 启用写前锁校验.
func WithLockChecker(l LockChecker) Option {
	return func(s *Store) { s.locks = l }
}

// WithMaxActivePerScope 设置单个作用域的激活 TM 上限，0 表示不限.
func WithMaxActivePerScope(n int) Option {
	return func(s *Store) { s.maxActive = n }
}

// WithMaxFolderDepth 设置文件夹链遍历上限.
func WithMaxFolderDepth(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.maxFolderDepth = n
		}
	}
}

// WithRetention 设置回收站保留时长.
func WithRetention(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.retention = d
		}
	}
}

// New 基于已打开的 GORM 连接创建中心库.
func New(db *gorm.DB, opts ...Option) *Store {
	s := &Store{
		db:             db,
		clock:          domain.SystemClock,
		maxFolderDepth: defaultMaxFolderDepth,
		retention:      defaultRetention,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Migrate 自动迁移全部表.
func (s *Store) Migrate(ctx context.Context) error {
	return s.db.WithContext(ctx).AutoMigrate(model.All()...)
}

// Ping 检查数据库连接.
func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return domain.Unavailable(string(repo.StoreCentral), err)
	}

	if err := sqlDB.PingContext(ctx); err != nil {
		return domain.Unavailable(string(repo.StoreCentral), err)
	}

	return nil
}

// Bundle 返回绑定到会话的仓储集合，文件与行的写操作以该会话校验锁.
func (s *Store) Bundle(sessionID string) *repo.Bundle {
	return &repo.Bundle{
		Store:        repo.StoreCentral,
		Platforms:    &platformRepo{s: s},
		Projects:     &projectRepo{s: s, session: sessionID},
		Folders:      &folderRepo{s: s, session: sessionID},
		Files:        &fileRepo{s: s, session: sessionID},
		Rows:         &rowRepo{s: s, session: sessionID},
		TMs:          &tmRepo{s: s},
		QA:           &qaRepo{s: s},
		Trash:        &trashRepo{s: s},
		Capabilities: &capabilityRepo{s: s},
		SyncMeta:     &syncMetaRepo{s: s},
	}
}

func (s *Store) now() time.Time {
	return s.clock().UTC().Truncate(time.Microsecond)
}

func (s *Store) conn(ctx context.Context) *gorm.DB {
	return s.db.WithContext(ctx)
}

// checkLock 任一引用被该会话持有即通过.
func (s *Store) checkLock(ctx context.Context, session string, refs ...domain.RecordRef) error {
	if s.locks == nil {
		return nil
	}

	var first error

	for _, ref := range refs {
		err := s.locks.Check(ctx, ref, session)
		if err == nil {
			return nil
		}

		if first == nil {
			first = err
		}
	}

	return first
}

// checkFree 删除子树前确认其中的文件没有被其他会话锁住.
func (s *Store) checkFree(ctx context.Context, session string, fileIDs []int64) error {
	if s.locks == nil {
		return nil
	}

	for _, id := range fileIDs {
		if err := s.locks.CheckFree(ctx, id, session); err != nil {
			return err
		}
	}

	return nil
}

// translate 把驱动错误转换为领域错误.
func translate(entity string, err error) error {
	if err == nil {
		return nil
	}

	var de *domain.Error
	if errors.As(err, &de) {
		return err
	}

	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	case errors.Is(err, gorm.ErrRecordNotFound):
		return domain.NotFound(entity, "record")
	case errors.Is(err, gorm.ErrDuplicatedKey), isUniqueViolation(err):
		return &domain.Error{Kind: domain.KindConflict, Entity: entity, Reason: "duplicate key", Err: err}
	default:
		return domain.Internal(entity, err)
	}
}

func isUniqueViolation(err error) bool {
	msg := strings.ToLower(err.Error())

	return strings.Contains(msg, "unique constraint failed") ||
		strings.Contains(msg, "duplicate key") ||
		strings.Contains(msg, "duplicate entry")
}

// first 按主键读取，不存在时返回带 id 的 NotFound.
func first[T any](tx *gorm.DB, entity string, id int64) (*T, error) {
	var m T
	if err := tx.First(&m, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.NotFound(entity, id)
		}

		return nil, translate(entity, err)
	}

	return &m, nil
}

// firstWhere 按条件读取单条记录.
func firstWhere[T any](tx *gorm.DB, entity string, key any, query string, args ...any) (*T, error) {
	var m T
	if err := tx.Where(query, args...).Take(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.NotFound(entity, key)
		}

		return nil, translate(entity, err)
	}

	return &m, nil
}

func exists[T any](tx *gorm.DB, query string, args ...any) (bool, error) {
	var n int64
	if err := tx.Model(new(T)).Where(query, args...).Count(&n).Error; err != nil {
		return false, err
	}

	return n > 0, nil
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}

	u := t.UTC().Truncate(time.Microsecond)

	return &u
}

func orNow(t, now time.Time) time.Time {
	if t.IsZero() {
		return now
	}

	return t.UTC().Truncate(time.Microsecond)
}

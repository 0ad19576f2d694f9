// Package local 是嵌入式 SQLite 本地库的仓储适配器，基于 database/sql 与 squirrel.
//
// 单用户单写者：所有写操作经过一把互斥锁并在事务中执行，连接池只保留一个连接.
// 表结构由 goose 迁移管理，迁移文件嵌入二进制.
package local

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "github.com/glebarez/go-sqlite" // 注册 "sqlite" 驱动

	"github.com/yeisme/tmvault/pkg/internal/domain"
	"github.com/yeisme/tmvault/pkg/internal/repo"
)

const (
	driverName            = "sqlite"
	defaultRetention      = 30 * 24 * time.Hour
	defaultMaxFolderDepth = 64
	defaultBusyTimeoutMS  = 5000
)

// querier 由 *sql.DB 与 *sql.Tx 共同实现.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store 本地库.
type Store struct {
	db *sql.DB
	mu sync.Mutex
	sq sq.StatementBuilderType

	clock          domain.Clock
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

// DSN 根据路径生成 glebarez/go-sqlite 连接串，path 为 ":memory:" 时使用内存库.
func DSN(path string, busyTimeoutMS int) string {
	if busyTimeoutMS <= 0 {
		busyTimeoutMS = defaultBusyTimeoutMS
	}

	pragmas := fmt.Sprintf("_pragma=busy_timeout(%d)", busyTimeoutMS)
	if path == ":memory:" {
		return ":memory:?" + pragmas
	}

	return "file:" + path + "?" + pragmas + "&_pragma=journal_mode(WAL)"
}

// Open 打开本地库并执行迁移.
func Open(ctx context.Context, dsn string, opts ...Option) (*Store, error) {
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open local store: %w", err)
	}

	// 单写者
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()

		return nil, fmt.Errorf("ping local store: %w", err)
	}

	s := New(db, opts...)
	if err := s.Migrate(ctx); err != nil {
		_ = db.Close()

		return nil, err
	}

	return s, nil
}

// New 基于已打开的连接创建本地库，不执行迁移.
func New(db *sql.DB, opts ...Option) *Store {
	s := &Store{
		db:             db,
		sq:             sq.StatementBuilder,
		clock:          domain.SystemClock,
		maxFolderDepth: defaultMaxFolderDepth,
		retention:      defaultRetention,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// DB 返回底层连接.
func (s *Store) DB() *sql.DB { return s.db }

// Close 关闭连接.
func (s *Store) Close() error { return s.db.Close() }

// Bundle 返回本地库的仓储集合.
func (s *Store) Bundle() *repo.Bundle {
	return &repo.Bundle{
		Store:        repo.StoreLocal,
		Platforms:    &platformRepo{s: s},
		Projects:     &projectRepo{s: s},
		Folders:      &folderRepo{s: s},
		Files:        &fileRepo{s: s},
		Rows:         &rowRepo{s: s},
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

// write 在写锁与事务中执行 fn；fn 内只能使用传入的 tx.
func (s *Store) write(ctx context.Context, fn func(tx querier) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	if err := fn(tx); err != nil {
		_ = tx.Rollback()

		return err
	}

	return tx.Commit()
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
	case errors.Is(err, sql.ErrNoRows):
		return domain.NotFound(entity, "record")
	case strings.Contains(strings.ToLower(err.Error()), "unique constraint failed"):
		return &domain.Error{Kind: domain.KindConflict, Entity: entity, Reason: "duplicate key", Err: err}
	default:
		return domain.Internal(entity, err)
	}
}

func exec(ctx context.Context, q querier, b sq.Sqlizer) (sql.Result, error) {
	query, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build statement: %w", err)
	}

	return q.ExecContext(ctx, query, args...)
}

// insert 执行插入并返回自增 id.
func insert(ctx context.Context, q querier, b sq.InsertBuilder) (int64, error) {
	res, err := exec(ctx, q, b)
	if err != nil {
		return 0, err
	}

	return res.LastInsertId()
}

// affected 执行语句并返回影响行数.
func affected(ctx context.Context, q querier, b sq.Sqlizer) (int64, error) {
	res, err := exec(ctx, q, b)
	if err != nil {
		return 0, err
	}

	return res.RowsAffected()
}

type scanner interface {
	Scan(dest ...any) error
}

// one 读取单条记录，不存在时返回带 key 的 NotFound.
func one[T any](ctx context.Context, q querier, b sq.SelectBuilder, scan func(scanner) (*T, error), entity string, key any) (*T, error) {
	query, args, err := b.Limit(1).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	out, err := scan(q.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.NotFound(entity, key)
		}

		return nil, translate(entity, err)
	}

	return out, nil
}

// all 读取多条记录，无结果时返回非 nil 空切片.
func all[T any](ctx context.Context, q querier, b sq.SelectBuilder, scan func(scanner) (*T, error)) ([]T, error) {
	query, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]T, 0)

	for rows.Next() {
		v, err := scan(rows)
		if err != nil {
			return nil, err
		}

		out = append(out, *v)
	}

	return out, rows.Err()
}

func count(ctx context.Context, q querier, table string, where any) (int64, error) {
	query, args, err := sq.Select("COUNT(*)").From(table).Where(where).ToSql()
	if err != nil {
		return 0, fmt.Errorf("build query: %w", err)
	}

	var n int64
	if err := q.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, err
	}

	return n, nil
}

func exists(ctx context.Context, q querier, table string, where any) (bool, error) {
	n, err := count(ctx, q, table, where)

	return n > 0, err
}

func nanos(t time.Time) int64 { return t.UTC().UnixNano() }

func fromNanos(n int64) time.Time { return time.Unix(0, n).UTC() }

func nullInt(p *int64) any {
	if p == nil {
		return nil
	}

	return *p
}

func intPtr(n sql.NullInt64) *int64 {
	if !n.Valid {
		return nil
	}

	v := n.Int64

	return &v
}

func nullNanos(t *time.Time) any {
	if t == nil {
		return nil
	}

	return nanos(*t)
}

func timePtr(n sql.NullInt64) *time.Time {
	if !n.Valid {
		return nil
	}

	t := fromNanos(n.Int64)

	return &t
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}

	v := t.UTC().Truncate(time.Microsecond)

	return &v
}

func orNow(t, now time.Time) time.Time {
	if t.IsZero() {
		return now
	}

	return t.UTC().Truncate(time.Microsecond)
}

// eqOrNull 对可空列生成等值或 IS NULL 条件.
func eqOrNull(col string, v *int64) sq.Sqlizer {
	if v == nil {
		return sq.Eq{col: nil}
	}

	return sq.Eq{col: *v}
}

// Package presence 实现中心库的协作层：记录级咨询锁、文件查看者与 WebSocket 推送.
//
// 锁记录保存在 KV 中（SetNX 获取、DeleteIfEquals 释放），过期时间由注入时钟判定，
// 所以崩溃或断线会话持有的锁在 TTL 后可被其他会话接管.
// 锁与在线变化以 queue.PresenceEvent 发布到 tv.presence.file.<id>.
package presence

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/bytedance/sonic"
	"github.com/google/uuid"

	"github.com/yeisme/tmvault/pkg/configs"
	"github.com/yeisme/tmvault/pkg/internal/domain"
	"github.com/yeisme/tmvault/pkg/internal/storage/kv"
	nlog "github.com/yeisme/tmvault/pkg/log"
	"github.com/yeisme/tmvault/pkg/metrics"
	"github.com/yeisme/tmvault/pkg/queue"
)

// entityLock 锁错误使用的实体名.
const entityLock = "lock"

// maxAcquireAttempts 与过期锁/并发释放竞争时的重试次数.
const maxAcquireAttempts = 3

// Holder 锁或在线状态的持有者.
// FileID 是记录所属文件，用于事件路由；文件锁可留空.
type Holder struct {
	SessionID string `json:"session_id"`
	User      string `json:"user"`
	FileID    int64  `json:"file_id,omitempty"`
}

// Lock KV 中保存的锁记录.
type Lock struct {
	Ref        domain.RecordRef `json:"ref"`
	FileID     int64            `json:"file_id"`
	SessionID  string           `json:"session_id"`
	User       string           `json:"user"`
	Token      string           `json:"token"`
	AcquiredAt time.Time        `json:"acquired_at"`
	ExpiresAt  time.Time        `json:"expires_at"`
}

// Live 报告锁在 now 时刻是否仍有效.
func (l *Lock) Live(now time.Time) bool { return now.Before(l.ExpiresAt) }

// LockManager 基于 KV 的记录锁管理器，实现 central.LockChecker.
type LockManager struct {
	kv     kv.KVStore
	pub    message.Publisher
	ttl    time.Duration
	prefix string
	clock  domain.Clock
}

// LockOption 配置 LockManager.
type LockOption func(*LockManager)

// WithTTL 设置锁过期时间.
func WithTTL(d time.Duration) LockOption {
	return func(m *LockManager) {
		if d > 0 {
			m.ttl = d
		}
	}
}

// WithKeyPrefix 设置 KV 键前缀.
func WithKeyPrefix(p string) LockOption {
	return func(m *LockManager) {
		if p != "" {
			m.prefix = p
		}
	}
}

// WithClock 注入时钟.
func WithClock(c domain.Clock) LockOption {
	return func(m *LockManager) { m.clock = c }
}

// NewLockManager 创建锁管理器；pub 为 nil 时不发布事件.
func NewLockManager(store kv.KVStore, pub message.Publisher, opts ...LockOption) *LockManager {
	m := &LockManager{
		kv:     store,
		pub:    pub,
		ttl:    configs.DefaultLockTTL,
		prefix: configs.DefaultLockKeyPrefix,
		clock:  domain.SystemClock,
	}

	for _, opt := range opts {
		opt(m)
	}

	return m
}

// TTL 返回锁过期时间.
func (m *LockManager) TTL() time.Duration { return m.ttl }

func (m *LockManager) key(ref domain.RecordRef) string {
	return m.prefix + ref.Entity + "." + strconv.FormatInt(ref.ID, 10)
}

// parseKey 从键还原记录引用.
func (m *LockManager) parseKey(key string) (domain.RecordRef, bool) {
	rest, ok := strings.CutPrefix(key, m.prefix)
	if !ok {
		return domain.RecordRef{}, false
	}

	entity, id, ok := strings.Cut(rest, ".")
	if !ok {
		return domain.RecordRef{}, false
	}

	n, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return domain.RecordRef{}, false
	}

	return domain.RecordRef{Entity: entity, ID: n}, true
}

// load 读取锁原始值与解码结果，不存在时返回 nil.
func (m *LockManager) load(ctx context.Context, ref domain.RecordRef) ([]byte, *Lock, error) {
	raw, err := m.kv.Get(ctx, m.key(ref))
	if errors.Is(err, kv.ErrNotFound) {
		return nil, nil, nil
	}

	if err != nil {
		return nil, nil, domain.Unavailable("kv", err)
	}

	var l Lock
	if err := sonic.Unmarshal(raw, &l); err != nil {
		return nil, nil, fmt.Errorf("decode lock %s: %w", ref, err)
	}

	return raw, &l, nil
}

func (m *LockManager) now() time.Time {
	return m.clock().UTC().Truncate(time.Millisecond)
}

// Acquire 获取记录锁.
// 同一会话重复获取会刷新 TTL；其他会话持有有效锁时返回 Locked；过期锁被接管.
func (m *LockManager) Acquire(ctx context.Context, ref domain.RecordRef, holder Holder) (*Lock, error) {
	if holder.SessionID == "" {
		return nil, domain.Invalidf(entityLock, "session id is required")
	}

	key := m.key(ref)
	file := fileOf(ref, holder)

	if err := m.crossCheck(ctx, ref, file, holder.SessionID); err != nil {
		return nil, err
	}

	for attempt := 0; attempt < maxAcquireAttempts; attempt++ {
		now := m.now()
		next := &Lock{
			Ref:        ref,
			FileID:     file,
			SessionID:  holder.SessionID,
			User:       holder.User,
			Token:      uuid.NewString(),
			AcquiredAt: now,
			ExpiresAt:  now.Add(m.ttl),
		}

		raw, cur, err := m.load(ctx, ref)
		if err != nil {
			return nil, err
		}

		renew := cur != nil && cur.SessionID == holder.SessionID && cur.Live(now)

		if cur != nil {
			if !renew && cur.Live(now) {
				metrics.LockContention.WithLabelValues(ref.Entity).Inc()

				return nil, domain.Locked(ref.Entity, fmt.Sprintf("%s is locked by %s", ref, cur.User))
			}

			if renew {
				next.Token, next.AcquiredAt = cur.Token, cur.AcquiredAt
			}

			ok, err := m.kv.DeleteIfEquals(ctx, key, raw)
			if err != nil {
				return nil, domain.Unavailable("kv", err)
			}

			if !ok {
				continue
			}

			if !renew {
				m.publishReleased(ctx, cur, queue.ReleaseReasonExpired)
			}
		}

		data, err := sonic.Marshal(next)
		if err != nil {
			return nil, fmt.Errorf("encode lock: %w", err)
		}

		// 后端保留到 2×TTL，Sweep 才能看到过期锁并发布 expired
		ok, err := m.kv.SetNX(ctx, key, data, 2*m.ttl)
		if err != nil {
			return nil, domain.Unavailable("kv", err)
		}

		if !ok {
			continue
		}

		// 与另一层级的并发获取竞争时双方都退让
		if !renew {
			if err := m.crossCheck(ctx, ref, file, holder.SessionID); err != nil {
				if _, derr := m.kv.DeleteIfEquals(ctx, key, data); derr != nil {
					return nil, domain.Unavailable("kv", derr)
				}

				return nil, err
			}

			m.publish(ctx, next, queue.EventLockAcquired, "")
		}

		return next, nil
	}

	metrics.LockContention.WithLabelValues(ref.Entity).Inc()

	return nil, domain.Locked(ref.Entity, fmt.Sprintf("%s is contended", ref))
}

// Release 释放记录锁，仅持有者可释放；锁不存在或已过期视为成功.
func (m *LockManager) Release(ctx context.Context, ref domain.RecordRef, holder Holder) error {
	raw, cur, err := m.load(ctx, ref)
	if err != nil || cur == nil {
		return err
	}

	now := m.now()
	if cur.SessionID != holder.SessionID && cur.Live(now) {
		return domain.Locked(ref.Entity, fmt.Sprintf("%s is locked by %s", ref, cur.User))
	}

	ok, err := m.kv.DeleteIfEquals(ctx, m.key(ref), raw)
	if err != nil {
		return domain.Unavailable("kv", err)
	}

	if ok {
		reason := queue.ReleaseReasonReleased
		if !cur.Live(now) {
			reason = queue.ReleaseReasonExpired
		}

		m.publishReleased(ctx, cur, reason)
	}

	return nil
}

// Check 只有该会话持有有效锁时返回 nil.
func (m *LockManager) Check(ctx context.Context, ref domain.RecordRef, sessionID string) error {
	_, cur, err := m.load(ctx, ref)
	if err != nil {
		return err
	}

	switch {
	case cur == nil:
		return domain.Locked(ref.Entity, fmt.Sprintf("%s lock is not held", ref))
	case !cur.Live(m.now()):
		return domain.Locked(ref.Entity, fmt.Sprintf("%s lock expired", ref))
	case cur.SessionID != sessionID:
		return domain.Locked(ref.Entity, fmt.Sprintf("%s is locked by %s", ref, cur.User))
	}

	return nil
}

// crossCheck 文件锁与行锁互斥：行锁要求所属文件未被其他会话锁住，
// 文件锁要求文件内没有其他会话的行锁.
func (m *LockManager) crossCheck(ctx context.Context, ref domain.RecordRef, fileID int64, sessionID string) error {
	switch ref.Entity {
	case domain.EntityRow:
		if fileID == 0 {
			return nil
		}

		return m.otherFileLock(ctx, fileID, sessionID)
	case domain.EntityFile:
		return m.otherRowLocks(ctx, ref.ID, sessionID)
	}

	return nil
}

func (m *LockManager) otherFileLock(ctx context.Context, fileID int64, sessionID string) error {
	ref := domain.FileRef(fileID)

	_, cur, err := m.load(ctx, ref)
	if err != nil {
		return err
	}

	if cur != nil && cur.Live(m.now()) && cur.SessionID != sessionID {
		metrics.LockContention.WithLabelValues(ref.Entity).Inc()

		return domain.Locked(ref.Entity, fmt.Sprintf("%s is locked by %s", ref, cur.User))
	}

	return nil
}

func (m *LockManager) otherRowLocks(ctx context.Context, fileID int64, sessionID string) error {
	keys, err := m.kv.Keys(ctx, m.prefix+domain.EntityRow+".*")
	if err != nil {
		return domain.Unavailable("kv", err)
	}

	now := m.now()

	for _, key := range keys {
		ref, ok := m.parseKey(key)
		if !ok {
			continue
		}

		_, cur, err := m.load(ctx, ref)
		if err != nil {
			return err
		}

		if cur != nil && cur.FileID == fileID && cur.Live(now) && cur.SessionID != sessionID {
			metrics.LockContention.WithLabelValues(domain.EntityFile).Inc()

			return domain.Locked(domain.EntityFile, fmt.Sprintf("%s has %s locked by %s", domain.FileRef(fileID), ref, cur.User))
		}
	}

	return nil
}

// CheckFree 其他会话持有文件锁或文件内的行锁时返回 Locked，删除整棵子树前使用.
func (m *LockManager) CheckFree(ctx context.Context, fileID int64, sessionID string) error {
	if err := m.otherFileLock(ctx, fileID, sessionID); err != nil {
		return err
	}

	return m.otherRowLocks(ctx, fileID, sessionID)
}

// Get 返回当前有效锁.
func (m *LockManager) Get(ctx context.Context, ref domain.RecordRef) (*Lock, error) {
	_, cur, err := m.load(ctx, ref)
	if err != nil {
		return nil, err
	}

	if cur == nil || !cur.Live(m.now()) {
		return nil, domain.NotFound(entityLock, ref.String())
	}

	return cur, nil
}

// List 返回全部有效锁.
func (m *LockManager) List(ctx context.Context) ([]*Lock, error) {
	keys, err := m.kv.Keys(ctx, m.prefix+"*")
	if err != nil {
		return nil, domain.Unavailable("kv", err)
	}

	out := make([]*Lock, 0, len(keys))
	now := m.now()

	for _, key := range keys {
		ref, ok := m.parseKey(key)
		if !ok {
			continue
		}

		_, cur, err := m.load(ctx, ref)
		if err != nil {
			return nil, err
		}

		if cur != nil && cur.Live(now) {
			out = append(out, cur)
		}
	}

	return out, nil
}

// Sweep 删除过期锁并发布 lock-released（expired），返回删除数量.
func (m *LockManager) Sweep(ctx context.Context) (int, error) {
	keys, err := m.kv.Keys(ctx, m.prefix+"*")
	if err != nil {
		return 0, domain.Unavailable("kv", err)
	}

	now := m.now()
	swept := 0

	for _, key := range keys {
		if err := ctx.Err(); err != nil {
			return swept, err
		}

		ref, ok := m.parseKey(key)
		if !ok {
			continue
		}

		raw, cur, err := m.load(ctx, ref)
		if err != nil {
			nlog.Logger().Warn().Err(err).Str("key", key).Msg("skip unreadable lock")
			continue
		}

		if cur == nil || cur.Live(now) {
			continue
		}

		deleted, err := m.kv.DeleteIfEquals(ctx, key, raw)
		if err != nil {
			return swept, domain.Unavailable("kv", err)
		}

		if deleted {
			swept++

			m.publishReleased(ctx, cur, queue.ReleaseReasonExpired)
		}
	}

	return swept, nil
}

func fileOf(ref domain.RecordRef, holder Holder) int64 {
	if holder.FileID != 0 {
		return holder.FileID
	}

	if ref.Entity == domain.EntityFile {
		return ref.ID
	}

	return 0
}

func (m *LockManager) publishReleased(ctx context.Context, l *Lock, reason string) {
	m.publish(ctx, l, queue.EventLockReleased, reason)
}

// publish 发布锁事件；没有文件归属的锁不发布.
func (m *LockManager) publish(ctx context.Context, l *Lock, eventType, reason string) {
	if l.FileID == 0 {
		return
	}

	expires := l.ExpiresAt

	ev := queue.PresenceEvent{
		Type:      eventType,
		FileID:    l.FileID,
		Entity:    l.Ref.Entity,
		RecordID:  l.Ref.ID,
		SessionID: l.SessionID,
		User:      l.User,
		Reason:    reason,
	}
	if eventType == queue.EventLockAcquired {
		ev.ExpiresAt = &expires
	}

	if err := queue.PublishPresence(m.pub, ev, queue.WithProducer(configs.AppName), queue.WithSpan(ctx)); err != nil {
		nlog.Logger().Warn().Err(err).Str("ref", l.Ref.String()).Str("event", eventType).Msg("publish lock event failed")
	}
}

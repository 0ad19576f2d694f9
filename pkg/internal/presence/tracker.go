package presence

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/yeisme/tmvault/pkg/cache"
	"github.com/yeisme/tmvault/pkg/configs"
	"github.com/yeisme/tmvault/pkg/internal/domain"
	"github.com/yeisme/tmvault/pkg/internal/storage/kv"
	nlog "github.com/yeisme/tmvault/pkg/log"
	"github.com/yeisme/tmvault/pkg/queue"
)

const viewerPrefix = "tv.viewer."

// Viewer 正在查看某文件的会话.
type Viewer struct {
	FileID    int64     `json:"file_id"`
	SessionID string    `json:"session_id"`
	User      string    `json:"user"`
	JoinedAt  time.Time `json:"joined_at"`
	SeenAt    time.Time `json:"seen_at"`
}

// Tracker 记录文件查看者，每个查看者是一个带心跳 TTL 的缓存键.
type Tracker struct {
	cache *cache.Cache
	pub   message.Publisher
	ttl   time.Duration
	clock domain.Clock
}

// TrackerOption 配置 Tracker.
type TrackerOption func(*Tracker)

// WithHeartbeatTTL 设置心跳过期时间.
func WithHeartbeatTTL(d time.Duration) TrackerOption {
	return func(t *Tracker) {
		if d > 0 {
			t.ttl = d
		}
	}
}

// WithTrackerClock 注入时钟.
func WithTrackerClock(c domain.Clock) TrackerOption {
	return func(t *Tracker) { t.clock = c }
}

// NewTracker 创建查看者记录器.
func NewTracker(c *cache.Cache, pub message.Publisher, opts ...TrackerOption) *Tracker {
	t := &Tracker{cache: c, pub: pub, ttl: configs.DefaultHeartbeatTTL, clock: domain.SystemClock}
	for _, opt := range opts {
		opt(t)
	}

	return t
}

func viewerKey(fileID int64, sessionID string) string {
	return viewerPrefix + strconv.FormatInt(fileID, 10) + "." + sessionID
}

// Join 登记或刷新查看者；首次登记发布 presence/joined.
func (t *Tracker) Join(ctx context.Context, fileID int64, holder Holder) (Viewer, error) {
	if holder.SessionID == "" {
		return Viewer{}, domain.Invalidf("viewer", "session id is required")
	}

	now := t.clock().UTC()
	key := viewerKey(fileID, holder.SessionID)

	v, err := cache.Get[Viewer](ctx, t.cache, key)
	joined := errors.Is(err, kv.ErrNotFound)

	if err != nil && !joined {
		return Viewer{}, domain.Unavailable("kv", err)
	}

	if joined {
		v = Viewer{FileID: fileID, SessionID: holder.SessionID, User: holder.User, JoinedAt: now}
	}

	v.SeenAt = now

	if err := cache.Set(ctx, t.cache, key, v, t.ttl); err != nil {
		return Viewer{}, domain.Unavailable("kv", err)
	}

	if joined {
		t.publish(ctx, v, queue.PresenceJoined)
	}

	return v, nil
}

// Leave 移除查看者；存在时发布 presence/left.
func (t *Tracker) Leave(ctx context.Context, fileID int64, sessionID string) error {
	key := viewerKey(fileID, sessionID)

	v, err := cache.Get[Viewer](ctx, t.cache, key)
	if errors.Is(err, kv.ErrNotFound) {
		return nil
	}

	if err != nil {
		return domain.Unavailable("kv", err)
	}

	if err := t.cache.Delete(ctx, key); err != nil {
		return domain.Unavailable("kv", err)
	}

	t.publish(ctx, v, queue.PresenceLeft)

	return nil
}

// Viewers 返回文件当前的查看者.
func (t *Tracker) Viewers(ctx context.Context, fileID int64) ([]Viewer, error) {
	out, err := cache.List[Viewer](ctx, t.cache, viewerPrefix+strconv.FormatInt(fileID, 10)+".*")
	if err != nil {
		return nil, domain.Unavailable("kv", err)
	}

	return out, nil
}

// Forget 清空文件的在线列表，文件被删除时使用.
func (t *Tracker) Forget(ctx context.Context, fileID int64) error {
	if err := t.cache.Clear(ctx, viewerPrefix+strconv.FormatInt(fileID, 10)+".*"); err != nil {
		return domain.Unavailable("kv", err)
	}

	return nil
}

func (t *Tracker) publish(ctx context.Context, v Viewer, action string) {
	ev := queue.PresenceEvent{
		Type:      queue.EventPresence,
		FileID:    v.FileID,
		SessionID: v.SessionID,
		User:      v.User,
		Action:    action,
	}

	if err := queue.PublishPresence(t.pub, ev, queue.WithProducer(configs.AppName), queue.WithSpan(ctx)); err != nil {
		nlog.Logger().Warn().Err(err).Int64("file_id", v.FileID).Str("action", action).Msg("publish presence failed")
	}
}

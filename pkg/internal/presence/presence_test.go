package presence_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/gorilla/websocket"

	"github.com/yeisme/tmvault/pkg/cache"
	"github.com/yeisme/tmvault/pkg/internal/domain"
	"github.com/yeisme/tmvault/pkg/internal/presence"
	"github.com/yeisme/tmvault/pkg/internal/storage/kv"
	"github.com/yeisme/tmvault/pkg/queue"
)

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func newClock() *testClock {
	return &testClock{t: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type fixture struct {
	locks   *presence.LockManager
	tracker *presence.Tracker
	ps      *gochannel.GoChannel
	clock   *testClock
}

// newFixture KV 使用真实时间保留记录，锁过期由测试时钟判定.
func newFixture(t *testing.T) *fixture {
	t.Helper()

	clock := newClock()
	store := kv.NewMemoryKVWithClock(time.Now)
	ps := gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: 64, Persistent: true}, watermill.NopLogger{})

	t.Cleanup(func() { _ = ps.Close() })

	return &fixture{
		locks:   presence.NewLockManager(store, ps, presence.WithTTL(2*time.Minute), presence.WithClock(clock.Now)),
		tracker: presence.NewTracker(cache.NewCache(store), ps, presence.WithTrackerClock(clock.Now)),
		ps:      ps,
		clock:   clock,
	}
}

// events 订阅文件主题并收集前 n 条事件.
func (f *fixture) events(t *testing.T, fileID int64, n int) []queue.PresenceEvent {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	ch, err := f.ps.Subscribe(ctx, queue.PresenceTopic(fileID))
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	out := make([]queue.PresenceEvent, 0, n)

	for len(out) < n {
		select {
		case m := <-ch:
			env, err := queue.ParsePresence(m)
			if err != nil {
				t.Fatalf("parse: %v", err)
			}

			m.Ack()

			out = append(out, env.Payload)
		case <-ctx.Done():
			t.Fatalf("timed out after %d of %d events", len(out), n)
		}
	}

	return out
}

var (
	alice = presence.Holder{SessionID: "s-alice", User: "alice@example.com"}
	bob   = presence.Holder{SessionID: "s-bob", User: "bob@example.com"}
)

// TestAcquireContract 测试锁的获取、重入与冲突.
func TestAcquireContract(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ref := domain.FileRef(7)

	l, err := f.locks.Acquire(ctx, ref, alice)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}

	if l.FileID != 7 || l.SessionID != alice.SessionID || l.Token == "" {
		t.Fatalf("unexpected lock %+v", l)
	}

	if err := f.locks.Check(ctx, ref, alice.SessionID); err != nil {
		t.Fatalf("owner check: %v", err)
	}

	if _, err := f.locks.Acquire(ctx, ref, bob); !errors.Is(err, domain.ErrLocked) {
		t.Fatalf("expected Locked for second session, got %v", err)
	}

	if err := f.locks.Check(ctx, ref, bob.SessionID); !errors.Is(err, domain.ErrLocked) {
		t.Fatalf("expected Locked check for non-owner, got %v", err)
	}

	f.clock.Advance(time.Minute)

	again, err := f.locks.Acquire(ctx, ref, alice)
	if err != nil {
		t.Fatalf("re-entrant acquire: %v", err)
	}

	if again.Token != l.Token || !again.AcquiredAt.Equal(l.AcquiredAt) {
		t.Errorf("refresh should keep token and acquired_at")
	}

	if !again.ExpiresAt.After(l.ExpiresAt) {
		t.Errorf("refresh should extend expiry: %v <= %v", again.ExpiresAt, l.ExpiresAt)
	}
}

// TestReleaseOwnerOnly 测试只有持有者能释放.
func TestReleaseOwnerOnly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ref := domain.RowRef(3)
	holder := alice
	holder.FileID = 7

	if _, err := f.locks.Acquire(ctx, ref, holder); err != nil {
		t.Fatalf("acquire: %v", err)
	}

	if err := f.locks.Release(ctx, ref, bob); !errors.Is(err, domain.ErrLocked) {
		t.Fatalf("expected Locked for non-owner release, got %v", err)
	}

	if err := f.locks.Release(ctx, ref, holder); err != nil {
		t.Fatalf("release: %v", err)
	}

	if _, err := f.locks.Get(ctx, ref); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected NotFound after release, got %v", err)
	}

	if err := f.locks.Release(ctx, ref, holder); err != nil {
		t.Fatalf("second release should be a no-op: %v", err)
	}

	evs := f.events(t, 7, 2)
	if evs[0].Type != queue.EventLockAcquired || evs[0].Entity != domain.EntityRow || evs[0].RecordID != 3 {
		t.Errorf("unexpected first event %+v", evs[0])
	}

	if evs[1].Type != queue.EventLockReleased || evs[1].Reason != queue.ReleaseReasonReleased {
		t.Errorf("unexpected second event %+v", evs[1])
	}
}

// TestLockLevelsExclude 测试文件锁与其中的行锁互斥，过期的行锁不再阻挡.
func TestLockLevelsExclude(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	rowHolder := alice
	rowHolder.FileID = 4

	if _, err := f.locks.Acquire(ctx, domain.RowRef(40), rowHolder); err != nil {
		t.Fatalf("row lock: %v", err)
	}

	if _, err := f.locks.Acquire(ctx, domain.FileRef(4), bob); !errors.Is(err, domain.ErrLocked) {
		t.Fatalf("file lock over another session's row: expected Locked, got %v", err)
	}

	if err := f.locks.CheckFree(ctx, 4, bob.SessionID); !errors.Is(err, domain.ErrLocked) {
		t.Errorf("CheckFree for bob: expected Locked, got %v", err)
	}

	if err := f.locks.CheckFree(ctx, 4, alice.SessionID); err != nil {
		t.Errorf("CheckFree for the holder: %v", err)
	}

	if _, err := f.locks.Acquire(ctx, domain.FileRef(5), bob); err != nil {
		t.Errorf("lock on an unrelated file: %v", err)
	}

	f.clock.Advance(3 * time.Minute)

	if _, err := f.locks.Acquire(ctx, domain.FileRef(4), bob); err != nil {
		t.Fatalf("file lock after row lock expired: %v", err)
	}

	if _, err := f.locks.Acquire(ctx, domain.RowRef(41), rowHolder); !errors.Is(err, domain.ErrLocked) {
		t.Errorf("row lock under another session's file: expected Locked, got %v", err)
	}
}

// TestExpiredLockTakenOver 测试过期锁被其他会话接管.
func TestExpiredLockTakenOver(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ref := domain.FileRef(9)

	if _, err := f.locks.Acquire(ctx, ref, alice); err != nil {
		t.Fatalf("acquire: %v", err)
	}

	f.clock.Advance(2 * time.Minute)

	if err := f.locks.Check(ctx, ref, alice.SessionID); !errors.Is(err, domain.ErrLocked) {
		t.Fatalf("expired lock must fail check, got %v", err)
	}

	l, err := f.locks.Acquire(ctx, ref, bob)
	if err != nil {
		t.Fatalf("takeover: %v", err)
	}

	if l.SessionID != bob.SessionID {
		t.Fatalf("expected bob to hold the lock, got %s", l.SessionID)
	}

	evs := f.events(t, 9, 3)
	if evs[1].Type != queue.EventLockReleased || evs[1].Reason != queue.ReleaseReasonExpired || evs[1].SessionID != alice.SessionID {
		t.Errorf("expected expired release for alice, got %+v", evs[1])
	}

	if evs[2].Type != queue.EventLockAcquired || evs[2].SessionID != bob.SessionID {
		t.Errorf("expected bob acquire, got %+v", evs[2])
	}
}

// TestSweep 测试清理过期锁.
func TestSweep(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, _ = f.locks.Acquire(ctx, domain.FileRef(1), alice)
	f.clock.Advance(time.Minute)
	_, _ = f.locks.Acquire(ctx, domain.FileRef(2), bob)
	f.clock.Advance(90 * time.Second)

	n, err := f.locks.Sweep(ctx)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}

	if n != 1 {
		t.Fatalf("expected 1 swept lock, got %d", n)
	}

	live, err := f.locks.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}

	if len(live) != 1 || live[0].Ref != domain.FileRef(2) {
		t.Fatalf("unexpected live locks %+v", live)
	}

	evs := f.events(t, 1, 2)
	if evs[1].Type != queue.EventLockReleased || evs[1].Reason != queue.ReleaseReasonExpired {
		t.Errorf("expected expired release, got %+v", evs[1])
	}
}

// TestConcurrentAcquire 测试并发获取只有一个会话成功.
func TestConcurrentAcquire(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ref := domain.FileRef(11)

	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		owners = map[string]bool{}
	)

	for i := 0; i < 16; i++ {
		wg.Add(1)

		go func(i int) {
			defer wg.Done()

			h := presence.Holder{SessionID: "s" + strings.Repeat("x", i+1)}
			if _, err := f.locks.Acquire(ctx, ref, h); err == nil {
				mu.Lock()
				owners[h.SessionID] = true
				mu.Unlock()
			}
		}(i)
	}

	wg.Wait()

	if len(owners) != 1 {
		t.Fatalf("expected exactly one owner, got %d", len(owners))
	}
}

// TestTracker 测试查看者登记、刷新与离开.
func TestTracker(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.tracker.Join(ctx, 5, alice)
	if err != nil {
		t.Fatalf("join: %v", err)
	}

	f.clock.Advance(10 * time.Second)

	again, err := f.tracker.Join(ctx, 5, alice)
	if err != nil {
		t.Fatalf("heartbeat: %v", err)
	}

	if !again.JoinedAt.Equal(first.JoinedAt) || !again.SeenAt.After(first.SeenAt) {
		t.Errorf("heartbeat should keep joined_at and bump seen_at")
	}

	_, _ = f.tracker.Join(ctx, 5, bob)

	viewers, err := f.tracker.Viewers(ctx, 5)
	if err != nil {
		t.Fatalf("viewers: %v", err)
	}

	if len(viewers) != 2 {
		t.Fatalf("expected 2 viewers, got %+v", viewers)
	}

	if err := f.tracker.Leave(ctx, 5, alice.SessionID); err != nil {
		t.Fatalf("leave: %v", err)
	}

	viewers, _ = f.tracker.Viewers(ctx, 5)
	if len(viewers) != 1 || viewers[0].SessionID != bob.SessionID {
		t.Fatalf("expected only bob, got %+v", viewers)
	}

	evs := f.events(t, 5, 3)
	want := []string{queue.PresenceJoined, queue.PresenceJoined, queue.PresenceLeft}

	for i, ev := range evs {
		if ev.Type != queue.EventPresence || ev.Action != want[i] {
			t.Errorf("event %d: got %s/%s, want presence/%s", i, ev.Type, ev.Action, want[i])
		}
	}
}

// TestTrackerForget 测试清空一个文件的在线列表不影响其他文件.
func TestTrackerForget(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, _ = f.tracker.Join(ctx, 7, alice)
	_, _ = f.tracker.Join(ctx, 7, bob)
	_, _ = f.tracker.Join(ctx, 8, alice)

	if err := f.tracker.Forget(ctx, 7); err != nil {
		t.Fatalf("forget: %v", err)
	}

	if viewers, _ := f.tracker.Viewers(ctx, 7); len(viewers) != 0 {
		t.Errorf("file 7 viewers = %+v, want none", viewers)
	}

	if viewers, _ := f.tracker.Viewers(ctx, 8); len(viewers) != 1 {
		t.Errorf("file 8 viewers = %d, want 1", len(viewers))
	}
}

// TestHubFanOut 测试 WebSocket 客户端收到文件事件.
func TestHubFanOut(t *testing.T) {
	f := newFixture(t)
	hub := presence.NewHub(f.ps)

	defer hub.Close()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = hub.Serve(w, r, 21, alice)
	}))
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	if _, err := f.locks.Acquire(context.Background(), domain.FileRef(21), bob); err != nil {
		t.Fatalf("acquire: %v", err)
	}

	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}

	env, err := queue.ParsePresence(message.NewMessage("x", data))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	if env.Payload.Type != queue.EventLockAcquired || env.Payload.SessionID != bob.SessionID {
		t.Fatalf("unexpected event %+v", env.Payload)
	}
}

// TestHubDropsTopicAfterEviction 测试慢客户端全部被断开后主题订阅随之释放.
func TestHubDropsTopicAfterEviction(t *testing.T) {
	f := newFixture(t)
	hub := presence.NewHub(f.ps)

	defer hub.Close()

	if err := hub.AttachStalled(31); err != nil {
		t.Fatalf("attach: %v", err)
	}

	if hub.Topics() != 1 || hub.Clients(31) != 1 {
		t.Fatalf("topics = %d clients = %d, want 1 and 1", hub.Topics(), hub.Clients(31))
	}

	if _, err := f.locks.Acquire(context.Background(), domain.FileRef(31), bob); err != nil {
		t.Fatalf("acquire: %v", err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for hub.Topics() != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("topic still subscribed after slow client eviction, clients = %d", hub.Clients(31))
		}

		time.Sleep(10 * time.Millisecond)
	}

	if hub.Clients(31) != 0 {
		t.Errorf("clients = %d, want 0", hub.Clients(31))
	}
}

package cache_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/yeisme/tmvault/pkg/cache"
	"github.com/yeisme/tmvault/pkg/internal/storage/kv"
)

type viewer struct {
	SessionID string    `json:"session_id"`
	User      string    `json:"user"`
	SeenAt    time.Time `json:"seen_at"`
}

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func newCache() (*cache.Cache, *clock) {
	clk := &clock{t: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)}
	return cache.NewCache(kv.NewMemoryKVWithClock(clk.now)), clk
}

// TestGetSet 测试泛型读写.
func TestGetSet(t *testing.T) {
	c, clk := newCache()
	ctx := context.Background()

	if _, err := cache.Get[viewer](ctx, c, "missing"); !errors.Is(err, kv.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	v := viewer{SessionID: "s1", User: "alice@example.com", SeenAt: clk.t}
	if err := cache.Set(ctx, c, "tv.viewer.1.s1", v, 0); err != nil {
		t.Fatalf("set: %v", err)
	}

	got, err := cache.Get[viewer](ctx, c, "tv.viewer.1.s1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}

	if got.SessionID != v.SessionID || got.User != v.User || !got.SeenAt.Equal(v.SeenAt) {
		t.Errorf("got %+v, want %+v", got, v)
	}
}

// TestListSkipsExpired 测试按前缀列出时跳过过期值.
func TestListSkipsExpired(t *testing.T) {
	c, clk := newCache()
	ctx := context.Background()

	_ = cache.Set(ctx, c, "tv.viewer.1.s2", viewer{SessionID: "s2"}, time.Minute)
	_ = cache.Set(ctx, c, "tv.viewer.1.s1", viewer{SessionID: "s1"}, 10*time.Second)
	_ = cache.Set(ctx, c, "tv.viewer.2.s3", viewer{SessionID: "s3"}, time.Minute)

	all, err := cache.List[viewer](ctx, c, "tv.viewer.1.*")
	if err != nil {
		t.Fatalf("list: %v", err)
	}

	if len(all) != 2 || all[0].SessionID != "s1" || all[1].SessionID != "s2" {
		t.Fatalf("unexpected viewers: %+v", all)
	}

	clk.t = clk.t.Add(30 * time.Second)

	all, _ = cache.List[viewer](ctx, c, "tv.viewer.1.*")
	if len(all) != 1 || all[0].SessionID != "s2" {
		t.Fatalf("expected only s2 after expiry, got %+v", all)
	}
}

// TestClear 测试按模式清空.
func TestClear(t *testing.T) {
	c, _ := newCache()
	ctx := context.Background()

	_ = cache.Set(ctx, c, "tv.viewer.1.a", 1, 0)
	_ = cache.Set(ctx, c, "tv.lock.file.1", 2, 0)

	if err := c.Clear(ctx, "tv.viewer.*"); err != nil {
		t.Fatalf("clear: %v", err)
	}

	if ok, _ := c.Exists(ctx, "tv.viewer.1.a"); ok {
		t.Errorf("viewer key should be cleared")
	}

	if ok, _ := c.Exists(ctx, "tv.lock.file.1"); !ok {
		t.Errorf("lock key should remain")
	}
}

package kv_test

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/yeisme/tmvault/pkg/configs"
	"github.com/yeisme/tmvault/pkg/internal/storage/kv"
)

type fakeNow struct {
	mu sync.Mutex
	t  time.Time
}

func (f *fakeNow) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.t
}

func (f *fakeNow) Advance(d time.Duration) {
	f.mu.Lock()
	f.t = f.t.Add(d)
	f.mu.Unlock()
}

// TestMemoryTTL 测试内存实现的过期.
func TestMemoryTTL(t *testing.T) {
	ctx := context.Background()
	clock := &fakeNow{t: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)}
	store := kv.NewMemoryKVWithClock(clock.Now)

	if err := store.Set(ctx, "a", []byte("1"), time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}

	if err := store.Set(ctx, "b", []byte("2"), 0); err != nil {
		t.Fatalf("set: %v", err)
	}

	clock.Advance(59 * time.Second)

	if ok, _ := store.Exists(ctx, "a"); !ok {
		t.Fatalf("a expired too early")
	}

	clock.Advance(time.Second)

	if _, err := store.Get(ctx, "a"); !errors.Is(err, kv.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	keys, _ := store.Keys(ctx, "")
	if len(keys) != 1 || keys[0] != "b" {
		t.Fatalf("unexpected keys: %v", keys)
	}
}

// TestSetNX 测试仅在不存在时写入.
func TestSetNX(t *testing.T) {
	ctx := context.Background()
	clock := &fakeNow{t: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)}
	store := kv.NewMemoryKVWithClock(clock.Now)

	ok, err := store.SetNX(ctx, "lock", []byte("s1"), time.Minute)
	if err != nil || !ok {
		t.Fatalf("first setnx: ok=%v err=%v", ok, err)
	}

	if ok, _ = store.SetNX(ctx, "lock", []byte("s2"), time.Minute); ok {
		t.Fatalf("second setnx should fail while held")
	}

	clock.Advance(time.Minute)

	if ok, _ = store.SetNX(ctx, "lock", []byte("s2"), time.Minute); !ok {
		t.Fatalf("setnx should succeed after expiry")
	}

	v, _ := store.Get(ctx, "lock")
	if string(v) != "s2" {
		t.Fatalf("got %q, want s2", v)
	}
}

// TestSetNXConcurrent 测试并发获取只有一个成功.
func TestSetNXConcurrent(t *testing.T) {
	ctx := context.Background()
	store := kv.NewMemoryKVWithClock(time.Now)

	var (
		wg  sync.WaitGroup
		mu  sync.Mutex
		won int
	)

	for i := 0; i < 32; i++ {
		wg.Add(1)

		go func() {
			defer wg.Done()

			if ok, _ := store.SetNX(ctx, "lock", []byte("x"), time.Minute); ok {
				mu.Lock()
				won++
				mu.Unlock()
			}
		}()
	}

	wg.Wait()

	if won != 1 {
		t.Fatalf("expected exactly one winner, got %d", won)
	}
}

// TestDeleteIfEquals 测试比较删除.
func TestDeleteIfEquals(t *testing.T) {
	ctx := context.Background()
	store := kv.NewMemoryKVWithClock(time.Now)

	_ = store.Set(ctx, "lock", []byte("s1"), 0)

	if ok, _ := store.DeleteIfEquals(ctx, "lock", []byte("s2")); ok {
		t.Fatalf("deleted with wrong value")
	}

	if ok, _ := store.DeleteIfEquals(ctx, "lock", []byte("s1")); !ok {
		t.Fatalf("expected delete")
	}

	if ok, _ := store.Exists(ctx, "lock"); ok {
		t.Fatalf("key still exists")
	}

	if ok, _ := store.DeleteIfEquals(ctx, "lock", []byte("s1")); ok {
		t.Fatalf("delete of missing key should report false")
	}
}

// TestKeysPattern 测试 glob 匹配.
func TestKeysPattern(t *testing.T) {
	ctx := context.Background()
	store := kv.NewMemoryKVWithClock(time.Now)

	for _, k := range []string{"lock:file:1", "lock:row:2", "presence:file:1"} {
		_ = store.Set(ctx, k, []byte("v"), 0)
	}

	keys, err := store.Keys(ctx, "lock:*")
	if err != nil {
		t.Fatalf("keys: %v", err)
	}

	sort.Strings(keys)

	if len(keys) != 2 || keys[0] != "lock:file:1" || keys[1] != "lock:row:2" {
		t.Fatalf("unexpected keys: %v", keys)
	}
}

// TestGroupcacheLocalAuthority 测试删除后不会读到旧值.
func TestGroupcacheLocalAuthority(t *testing.T) {
	ctx := context.Background()
	cfg := &configs.GroupcacheKVConfig{Name: "test-authority", CacheBytes: 1 << 20}

	store, err := kv.NewKVStore(ctx, kv.KVTypeGroupcache, cfg)
	if err != nil {
		t.Fatalf("create groupcache kv: %v", err)
	}

	_ = store.Set(ctx, "k", []byte("v1"), 0)

	if v, err := store.Get(ctx, "k"); err != nil || string(v) != "v1" {
		t.Fatalf("get: %q %v", v, err)
	}

	_ = store.Delete(ctx, "k")

	if _, err := store.Get(ctx, "k"); !errors.Is(err, kv.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}

	if ok, _ := store.SetNX(ctx, "k", []byte("v2"), 0); !ok {
		t.Fatalf("setnx after delete should succeed")
	}
}

// TestNewKVClient 测试按配置选择实现.
func TestNewKVClient(t *testing.T) {
	cfg := &configs.KVConfig{Type: "memory"}

	c, err := kv.NewKVClient(context.Background(), cfg)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	defer c.Close()

	if _, err := kv.NewKVClient(context.Background(), &configs.KVConfig{Type: "etcd"}); err == nil {
		t.Fatalf("expected error for unknown type")
	}
}

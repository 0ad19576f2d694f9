package kv_test

import (
	"context"
	"fmt"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/yeisme/tmvault/pkg/configs"
	"github.com/yeisme/tmvault/pkg/internal/storage/kv"
)

// benchStore 按名称打开后端；外部服务需通过环境变量显式开启.
func benchStore(b *testing.B, kind kv.KVType) kv.KVStore {
	b.Helper()

	var cfg any

	switch kind {
	case kv.KVTypeGroupcache:
		cfg = &configs.GroupcacheKVConfig{Name: "bench-groupcache", CacheBytes: 32 << 20, Self: "http://127.0.0.1:0"}
	case kv.KVTypeRedis:
		addr := os.Getenv("REDIS_ADDR")
		if os.Getenv("ENABLE_REDIS_BENCH") == "" {
			b.Skip("set ENABLE_REDIS_BENCH=1 to enable")
		}

		if addr == "" {
			addr = "127.0.0.1:6379"
		}

		cfg = &configs.RedisKVConfig{Addr: addr}
	case kv.KVTypeNATS:
		url := os.Getenv("NATS_URL")
		if os.Getenv("ENABLE_NATS_BENCH") == "" {
			b.Skip("set ENABLE_NATS_BENCH=1 to enable")
		}

		if url == "" {
			url = "nats://127.0.0.1:4222"
		}

		cfg = &configs.NATSKVConfig{URL: url, Bucket: "bench-kv"}
	}

	store, err := kv.NewKVStore(context.Background(), kind, cfg)
	if err != nil {
		b.Skipf("%s not available: %v", kind, err)
	}

	b.Cleanup(func() { _ = store.Close() })

	return store
}

func BenchmarkMemoryKV(b *testing.B) {
	store := benchStore(b, kv.KVTypeMemory)
	benchLockCycle(b, store)
	benchHeartbeat(b, store)
}

func BenchmarkGroupcacheKV(b *testing.B) {
	benchHeartbeat(b, benchStore(b, kv.KVTypeGroupcache))
}

func BenchmarkRedisKV(b *testing.B) {
	store := benchStore(b, kv.KVTypeRedis)
	benchLockCycle(b, store)
	benchHeartbeat(b, store)
}

func BenchmarkNATSKV(b *testing.B) {
	store := benchStore(b, kv.KVTypeNATS)
	benchLockCycle(b, store)
	benchHeartbeat(b, store)
}

// benchLockCycle 模拟记录锁：SetNX 获取，持有者匹配时删除.
func benchLockCycle(b *testing.B, store kv.KVStore) {
	ctx := context.Background()
	owner := []byte(`{"session_id":"bench","user":"bench@example.com"}`)

	b.Run("lock-cycle", func(b *testing.B) {
		b.ReportAllocs()

		for i := 0; b.Loop(); i++ {
			key := fmt.Sprintf("tv-lock-row-%d", i%64)
			if ok, err := store.SetNX(ctx, key, owner, 2*time.Minute); err != nil || !ok {
				b.Fatalf("setnx failed: ok=%v err=%v", ok, err)
			}

			if ok, err := store.DeleteIfEquals(ctx, key, owner); err != nil || !ok {
				b.Fatalf("delete-if-equals failed: ok=%v err=%v", ok, err)
			}
		}
	})

	b.Run("lock-contention", func(b *testing.B) {
		var ctr atomic.Uint64

		b.RunParallel(func(pb *testing.PB) {
			for pb.Next() {
				key := fmt.Sprintf("tv-lock-file-%d", ctr.Add(1)%8)
				if ok, err := store.SetNX(ctx, key, owner, time.Second); err != nil {
					b.Fatalf("setnx failed: %v", err)
				} else if ok {
					_, _ = store.DeleteIfEquals(ctx, key, owner)
				}
			}
		})
	})
}

// benchHeartbeat 模拟查看者心跳：刷新带 TTL 的键.
func benchHeartbeat(b *testing.B, store kv.KVStore) {
	ctx := context.Background()
	viewer := []byte(`{"file_id":42,"session_id":"s","user":"u"}`)

	b.Run("heartbeat", func(b *testing.B) {
		b.ReportAllocs()

		for i := 0; b.Loop(); i++ {
			key := fmt.Sprintf("tv-viewer-42-s%d", i%32)
			if err := store.Set(ctx, key, viewer, 45*time.Second); err != nil {
				b.Fatalf("set failed: %v", err)
			}

			if _, err := store.Get(ctx, key); err != nil {
				b.Fatalf("get failed: %v", err)
			}
		}
	})
}

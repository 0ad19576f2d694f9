package kv

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/golang/groupcache"

	"github.com/yeisme/tmvault/pkg/configs"
)

// GroupcacheKV 基于 Groupcache 的 KV 实现.
//
// 本节点写入的键以本地 map 为准；只有本地不存在的键才经过缓存组向对等节点读取.
type GroupcacheKV struct {
	cache *groupcache.Group
	peers *groupcache.HTTPPool
	local *MemoryKV
}

// groupcacheGetter 实现 groupcache.Getter 接口.
type groupcacheGetter struct {
	kv *GroupcacheKV
}

func (g *groupcacheGetter) Get(ctx context.Context, key string, dest groupcache.Sink) error {
	value, err := g.kv.local.Get(ctx, key)
	if err != nil {
		return err
	}

	if err := dest.SetBytes(value); err != nil {
		return fmt.Errorf("failed to set bytes to sink: %w", err)
	}

	return nil
}

// NewGroupcacheKV 创建 Groupcache KV 实例.
func NewGroupcacheKV(_ context.Context, config any) (KVStore, error) {
	gcConfig, ok := config.(*configs.GroupcacheKVConfig)
	if !ok {
		return nil, fmt.Errorf("invalid Groupcache config")
	}

	kv := &GroupcacheKV{local: NewMemoryKVWithClock(time.Now)}

	// 同名的 group 只能注册一次
	kv.cache = groupcache.GetGroup(gcConfig.Name)
	if kv.cache == nil {
		kv.cache = groupcache.NewGroup(gcConfig.Name, gcConfig.CacheBytes, &groupcacheGetter{kv: kv})
	}

	if len(gcConfig.Peers) > 0 {
		kv.peers = groupcache.NewHTTPPoolOpts(gcConfig.Self, &groupcache.HTTPPoolOptions{})
		kv.peers.Set(gcConfig.Peers...)
	}

	return kv, nil
}

// Get 获取键的值.
func (g *GroupcacheKV) Get(ctx context.Context, key string) ([]byte, error) {
	if value, err := g.local.Get(ctx, key); err == nil {
		return value, nil
	}

	if g.peers == nil {
		return nil, notFound(key)
	}

	var data []byte
	if err := g.cache.Get(ctx, key, groupcache.AllocatingByteSliceSink(&data)); err != nil {
		return nil, notFound(key)
	}

	return bytes.Clone(data), nil
}

// Set 设置键的值.
func (g *GroupcacheKV) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return g.local.Set(ctx, key, value, ttl)
}

// SetNX 键不存在时写入.
func (g *GroupcacheKV) SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	return g.local.SetNX(ctx, key, value, ttl)
}

// Delete 删除键.
func (g *GroupcacheKV) Delete(ctx context.Context, key string) error {
	return g.local.Delete(ctx, key)
}

// DeleteIfEquals 值相等时删除.
func (g *GroupcacheKV) DeleteIfEquals(ctx context.Context, key string, value []byte) (bool, error) {
	return g.local.DeleteIfEquals(ctx, key, value)
}

// Exists 检查键是否存在.
func (g *GroupcacheKV) Exists(ctx context.Context, key string) (bool, error) {
	return g.local.Exists(ctx, key)
}

// Keys 获取匹配的键.
func (g *GroupcacheKV) Keys(ctx context.Context, pattern string) ([]string, error) {
	return g.local.Keys(ctx, pattern)
}

// Close 关闭缓存.
func (g *GroupcacheKV) Close() error {
	return nil
}

func init() {
	RegisterKVFactory(KVTypeGroupcache, NewGroupcacheKV)
}

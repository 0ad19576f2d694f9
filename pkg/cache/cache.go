// Package cache 提供基于键值存储的泛型缓存实现.
//
// 底层使用 sonic 做 JSON 编解码，TTL 由 KV 实现负责.
// 在线状态（presence）把每个查看者记录为一个带心跳 TTL 的键，通过 List 按前缀读取.
//
// 基本用法:
//
//	c := cache.NewCache(kvStore)
//	err := cache.Set(ctx, c, "tv.viewer.42.s1", viewer, 45*time.Second)
//	v, err := cache.Get[Viewer](ctx, c, "tv.viewer.42.s1")
//	all, err := cache.List[Viewer](ctx, c, "tv.viewer.42.*")
//
// 错误处理:
//   - 未命中时返回底层 KV 的错误，可用 errors.Is(err, kv.ErrNotFound) 判断
//   - 序列化/反序列化错误会被包装并返回
package cache

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/bytedance/sonic"

	"github.com/yeisme/tmvault/pkg/internal/storage/kv"
)

// Cache 基于KV存储的缓存实现.
type Cache struct {
	kvStore kv.KVStore
}

// NewCache 创建一个新的缓存实例.
func NewCache(kvStore kv.KVStore) *Cache {
	return &Cache{
		kvStore: kvStore,
	}
}

// Get 泛型获取缓存值.
func Get[T any](ctx context.Context, c *Cache, key string) (T, error) {
	var zero T

	data, err := c.kvStore.Get(ctx, key)
	if err != nil {
		return zero, err
	}

	var value T
	if err := sonic.Unmarshal(data, &value); err != nil {
		return zero, fmt.Errorf("failed to unmarshal cache value: %w", err)
	}

	return value, nil
}

// Set 泛型设置缓存值.
func Set[T any](ctx context.Context, c *Cache, key string, value T, ttl time.Duration) error {
	data, err := sonic.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal cache value: %w", err)
	}

	return c.kvStore.Set(ctx, key, data, ttl)
}

// List 返回匹配模式的全部值，按键排序；读取期间过期的键会被跳过.
func List[T any](ctx context.Context, c *Cache, pattern string) ([]T, error) {
	keys, err := c.kvStore.Keys(ctx, pattern)
	if err != nil {
		return nil, err
	}

	sort.Strings(keys)

	out := make([]T, 0, len(keys))

	for _, key := range keys {
		v, err := Get[T](ctx, c, key)
		if errors.Is(err, kv.ErrNotFound) {
			continue
		}

		if err != nil {
			return nil, err
		}

		out = append(out, v)
	}

	return out, nil
}

// Delete 删除缓存键.
func (c *Cache) Delete(ctx context.Context, key string) error {
	return c.kvStore.Delete(ctx, key)
}

// Exists 检查缓存键是否存在.
func (c *Cache) Exists(ctx context.Context, key string) (bool, error) {
	return c.kvStore.Exists(ctx, key)
}

// Clear 删除匹配模式的键.
func (c *Cache) Clear(ctx context.Context, pattern string) error {
	keys, err := c.kvStore.Keys(ctx, pattern)
	if err != nil {
		return err
	}

	for _, key := range keys {
		if delErr := c.kvStore.Delete(ctx, key); delErr != nil {
			return delErr
		}
	}

	return nil
}

package kv

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/yeisme/tmvault/pkg/configs"
)

// NATSKV 基于 NATS KV 的 KV 实现，TTL 以值包装的方式按键生效.
type NATSKV struct {
	kv     nats.KeyValue
	bucket string
	conn   *nats.Conn
}

// NewNATSKV 创建 NATS KV 实例.
func NewNATSKV(_ context.Context, config any) (KVStore, error) {
	natsConfig, ok := config.(*configs.NATSKVConfig)
	if !ok {
		return nil, fmt.Errorf("invalid NATS config")
	}

	opts := []nats.Option{}
	if natsConfig.User != "" {
		opts = append(opts, nats.UserInfo(natsConfig.User, natsConfig.Password))
	}

	nc, err := nats.Connect(natsConfig.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	kv, err := js.CreateKeyValue(&nats.KeyValueConfig{Bucket: natsConfig.Bucket})
	if err != nil {
		// bucket 已存在
		kv, err = js.KeyValue(natsConfig.Bucket)
		if err != nil {
			nc.Close()
			return nil, fmt.Errorf("failed to create/get KV bucket: %w", err)
		}
	}

	return &NATSKV{kv: kv, bucket: natsConfig.Bucket, conn: nc}, nil
}

// live 读取未过期的条目；过期或不存在时返回 nil 条目.
func (n *NATSKV) live(key string) (nats.KeyValueEntry, []byte, error) {
	entry, err := n.kv.Get(key)
	if errors.Is(err, nats.ErrKeyNotFound) {
		return nil, nil, nil
	}

	if err != nil {
		return nil, nil, fmt.Errorf("failed to get key: %w", err)
	}

	val, expired, err := decodeWithTTL(entry.Value(), time.Now())
	if err != nil {
		return nil, nil, err
	}

	if expired {
		_ = n.kv.Delete(key, nats.LastRevision(entry.Revision()))
		return nil, nil, nil
	}

	return entry, val, nil
}

// Get 获取键的值.
func (n *NATSKV) Get(_ context.Context, key string) ([]byte, error) {
	entry, val, err := n.live(key)
	if err != nil {
		return nil, err
	}

	if entry == nil {
		return nil, notFound(key)
	}

	return val, nil
}

// Set 设置键的值.
func (n *NATSKV) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	encoded, err := encodeWithTTL(value, ttl, time.Now())
	if err != nil {
		return err
	}

	if _, err = n.kv.Put(key, encoded); err != nil {
		return fmt.Errorf("failed to set key: %w", err)
	}

	return nil
}

// SetNX 键不存在时写入；过期值按修订号覆盖.
func (n *NATSKV) SetNX(_ context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	encoded, err := encodeWithTTL(value, ttl, time.Now())
	if err != nil {
		return false, err
	}

	_, err = n.kv.Create(key, encoded)
	if err == nil {
		return true, nil
	}

	if !errors.Is(err, nats.ErrKeyExists) {
		return false, fmt.Errorf("failed to create key: %w", err)
	}

	entry, err := n.kv.Get(key)
	if err != nil {
		return false, fmt.Errorf("failed to get key: %w", err)
	}

	_, expired, err := decodeWithTTL(entry.Value(), time.Now())
	if err != nil || !expired {
		return false, err
	}

	if _, err = n.kv.Update(key, encoded, entry.Revision()); err != nil {
		// 并发写入者抢先
		return false, nil
	}

	return true, nil
}

// Delete 删除键.
func (n *NATSKV) Delete(_ context.Context, key string) error {
	if err := n.kv.Delete(key); err != nil {
		return fmt.Errorf("failed to delete key: %w", err)
	}

	return nil
}

// DeleteIfEquals 值相等时按修订号删除.
func (n *NATSKV) DeleteIfEquals(_ context.Context, key string, value []byte) (bool, error) {
	entry, val, err := n.live(key)
	if err != nil || entry == nil || !bytes.Equal(val, value) {
		return false, err
	}

	if err := n.kv.Delete(key, nats.LastRevision(entry.Revision())); err != nil {
		return false, nil
	}

	return true, nil
}

// Exists 检查键是否存在.
func (n *NATSKV) Exists(_ context.Context, key string) (bool, error) {
	entry, _, err := n.live(key)

	return entry != nil, err
}

// Keys 获取匹配的键.
func (n *NATSKV) Keys(_ context.Context, pattern string) ([]string, error) {
	keys, err := n.kv.Keys()
	if errors.Is(err, nats.ErrNoKeysFound) {
		return []string{}, nil
	}

	if err != nil {
		return nil, fmt.Errorf("failed to get keys: %w", err)
	}

	result := make([]string, 0, len(keys))

	for _, key := range keys {
		if !matchKey(pattern, key) {
			continue
		}

		if entry, _, err := n.live(key); err == nil && entry != nil {
			result = append(result, key)
		}
	}

	return result, nil
}

// Close 关闭 NATS 连接.
func (n *NATSKV) Close() error {
	n.conn.Close()
	return nil
}

func init() {
	RegisterKVFactory(KVTypeNATS, NewNATSKV)
}

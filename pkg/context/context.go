// Package context 在 context.Context 中传递存储资源，HTTP 请求、命令行与定时任务共用同一套取值方式.
package context

import (
	"context"

	"github.com/yeisme/tmvault/pkg/internal/storage"
	kvc "github.com/yeisme/tmvault/pkg/internal/storage/kv"
	mqc "github.com/yeisme/tmvault/pkg/internal/storage/mq"
)

// WithStorageManager 将 Manager 存储到 context 中.
func WithStorageManager(ctx context.Context, mgr *storage.Manager) context.Context {
	return storage.WithManager(ctx, mgr)
}

// GetManager 从 context 中获取 Manager.
func GetManager(ctx context.Context) *storage.Manager {
	return storage.ManagerFrom(ctx)
}

// GetMQClient 从 context 中获取 MQ 客户端.
func GetMQClient(ctx context.Context) *mqc.Client {
	if mgr := GetManager(ctx); mgr != nil {
		return mgr.GetMQClient()
	}

	return nil
}

// GetKVClient 从 context 中获取 KV 客户端.
func GetKVClient(ctx context.Context) *kvc.Client {
	if mgr := GetManager(ctx); mgr != nil {
		return mgr.GetKVClient()
	}

	return nil
}

package service

import (
	"context"
	"time"

	"github.com/yeisme/tmvault/pkg/configs"
	"github.com/yeisme/tmvault/pkg/internal/domain"
	"github.com/yeisme/tmvault/pkg/internal/repo"
	"github.com/yeisme/tmvault/pkg/internal/storage"
	nlog "github.com/yeisme/tmvault/pkg/log"
	"github.com/yeisme/tmvault/pkg/queue"
)

// TrashService 提供回收站能力；条目只属于各自的存储，从不镜像.
type TrashService struct{ base }

// NewTrashService 从 context 创建服务.
func NewTrashService(c context.Context) *TrashService {
	return &TrashService{newBase(c)}
}

func (t *TrashService) List(ctx context.Context, f domain.TrashFilter) ([]domain.TrashItem, error) {
	return call(ctx, t.base, func(r *repo.Bundle) ([]domain.TrashItem, error) { return r.Trash.GetAll(ctx, f) })
}

func (t *TrashService) Get(ctx context.Context, id int64) (*domain.TrashItem, error) {
	return call(ctx, t.base, func(r *repo.Bundle) (*domain.TrashItem, error) { return r.Trash.Get(ctx, id) })
}

// Restore 以原 sync key 重建快照中的记录.
func (t *TrashService) Restore(ctx context.Context, id int64) (*domain.TrashItem, error) {
	return call(ctx, t.base, func(r *repo.Bundle) (*domain.TrashItem, error) { return r.Trash.Restore(ctx, id) })
}

// Purge 永久删除单个条目，中心库上需要 purge_trash 能力.
func (t *TrashService) Purge(ctx context.Context, id int64) error {
	return exec(ctx, t.base, func(r *repo.Bundle) error {
		if err := t.require(ctx, r, domain.CapPurgeTrash); err != nil {
			return err
		}

		return r.Trash.Purge(ctx, id)
	})
}

// PurgeResult 一个存储的清理结果.
type PurgeResult struct {
	Store  repo.StoreKind `json:"store"`
	Purged int            `json:"purged"`
	Error  string         `json:"error,omitempty"`
}

// PurgeExpired 清理两个存储中已过期的条目，一个存储失败不影响另一个.
// 由定时任务与命令行调用，不依赖会话.
func PurgeExpired(ctx context.Context, mgr *storage.Manager, now time.Time) []PurgeResult {
	l := nlog.Component("trash")

	var bundles []*repo.Bundle

	if b, err := mgr.Factory.Central("trash-purge"); err == nil {
		bundles = append(bundles, b)
	} else {
		l.Warn().Err(err).Msg("skip central trash purge")
	}

	if b, err := mgr.Factory.Local(); err == nil {
		bundles = append(bundles, b)
	}

	results := make([]PurgeResult, 0, len(bundles))

	for _, b := range bundles {
		res := PurgeResult{Store: b.Store}

		n, err := b.Trash.PurgeExpired(ctx, now)
		if err != nil {
			res.Error = err.Error()
			l.Error().Err(err).Str("store", string(b.Store)).Msg("trash purge failed")
			results = append(results, res)

			continue
		}

		res.Purged = n
		results = append(results, res)

		l.Info().Str("store", string(b.Store)).Int("purged", n).Msg("trash purged")

		payload := queue.TrashPurgedPayload{Store: string(b.Store), Purged: n, Before: now}
		if err := queue.PublishTrashPurged(mgr.EventPublisher(), payload, queue.WithProducer(configs.AppName)); err != nil {
			l.Warn().Err(err).Msg("publish trash purged failed")
		}
	}

	return results
}

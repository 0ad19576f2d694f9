package central

import (
	"context"

	"gorm.io/gorm"

	"github.com/yeisme/tmvault/pkg/internal/domain"
	"github.com/yeisme/tmvault/pkg/internal/model"
)

type syncMetaRepo struct {
	s *Store
}

func (r *syncMetaRepo) Get(ctx context.Context, entityType, key string) (*domain.SyncMetadata, error) {
	m, err := firstWhere[model.SyncMetadata](r.s.conn(ctx), domain.EntitySyncMetadata, entityType+"/"+key,
		"entity_type = ? AND sync_key = ?", entityType, key)
	if err != nil {
		return nil, err
	}

	return toSyncMetadata(m), nil
}

func (r *syncMetaRepo) GetAll(ctx context.Context, filter domain.SyncMetadataFilter) ([]domain.SyncMetadata, error) {
	q := r.s.conn(ctx).Model(&model.SyncMetadata{})
	if filter.EntityType != "" {
		q = q.Where("entity_type = ?", filter.EntityType)
	}

	if filter.State != "" {
		q = q.Where("state = ?", string(filter.State))
	}

	var ms []model.SyncMetadata
	if err := q.Order("id").Find(&ms).Error; err != nil {
		return nil, translate(domain.EntitySyncMetadata, err)
	}

	return mapSlice(ms, toSyncMetadata), nil
}

// Put 按 (entity_type, sync_key) 插入或覆盖.
func (r *syncMetaRepo) Put(ctx context.Context, meta domain.SyncMetadata) (*domain.SyncMetadata, error) {
	if meta.EntityType == "" || meta.SyncKey == "" {
		return nil, domain.Invalidf(domain.EntitySyncMetadata, "entity type and sync key are required")
	}

	var out *model.SyncMetadata

	err := r.s.conn(ctx).Transaction(func(tx *gorm.DB) error {
		m, err := firstWhere[model.SyncMetadata](tx, domain.EntitySyncMetadata, meta.SyncKey,
			"entity_type = ? AND sync_key = ?", meta.EntityType, meta.SyncKey)
		if err != nil && domain.KindOf(err) != domain.KindNotFound {
			return err
		}

		if m == nil {
			m = &model.SyncMetadata{EntityType: meta.EntityType, SyncKey: meta.SyncKey}
		}

		m.LocalHash = meta.LocalHash
		m.RemoteHash = meta.RemoteHash
		m.LosingHash = meta.LosingHash
		m.LastSyncAt = utcPtr(meta.LastSyncAt)
		m.Direction = string(meta.Direction)
		m.ConflictStatus = string(meta.ConflictStatus)
		m.State = string(meta.State)
		m.UpdatedAt = r.s.now()
		out = m

		return tx.Save(m).Error
	})
	if err != nil {
		return nil, translate(domain.EntitySyncMetadata, err)
	}

	return toSyncMetadata(out), nil
}

// Delete 幂等，记录不存在时不报错.
func (r *syncMetaRepo) Delete(ctx context.Context, entityType, key string) error {
	err := r.s.conn(ctx).Where("entity_type = ? AND sync_key = ?", entityType, key).Delete(&model.SyncMetadata{}).Error

	return translate(domain.EntitySyncMetadata, err)
}

package central

import (
	"context"

	"gorm.io/gorm"

	"github.com/yeisme/tmvault/pkg/internal/domain"
	"github.com/yeisme/tmvault/pkg/internal/model"
)

type platformRepo struct {
	s *Store
}

func (r *platformRepo) Get(ctx context.Context, id int64) (*domain.Platform, error) {
	m, err := first[model.Platform](r.s.conn(ctx), domain.EntityPlatform, id)
	if err != nil {
		return nil, err
	}

	return toPlatform(m), nil
}

func (r *platformRepo) GetAll(ctx context.Context, filter domain.PlatformFilter) ([]domain.Platform, error) {
	q := r.s.conn(ctx).Model(&model.Platform{})
	if filter.Owner != "" {
		q = q.Where("owner = ?", filter.Owner)
	}

	var ms []model.Platform
	if err := q.Order("id").Find(&ms).Error; err != nil {
		return nil, translate(domain.EntityPlatform, err)
	}

	return mapSlice(ms, toPlatform), nil
}

func (r *platformRepo) Create(ctx context.Context, in domain.PlatformInput) (*domain.Platform, error) {
	if err := domain.Validate(domain.EntityPlatform, in); err != nil {
		return nil, err
	}

	now := r.s.now()
	m := &model.Platform{
		SyncKey:     domain.NewSyncKey(now),
		Name:        in.Name,
		Owner:       in.Owner,
		Description: in.Description,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := r.s.conn(ctx).Create(m).Error; err != nil {
		return nil, translate(domain.EntityPlatform, err)
	}

	return toPlatform(m), nil
}

func (r *platformRepo) Update(ctx context.Context, id int64, patch domain.PlatformPatch) (*domain.Platform, error) {
	if err := domain.Validate(domain.EntityPlatform, patch); err != nil {
		return nil, err
	}

	var out *model.Platform

	err := r.s.conn(ctx).Transaction(func(tx *gorm.DB) error {
		m, err := first[model.Platform](tx, domain.EntityPlatform, id)
		if err != nil {
			return err
		}

		if patch.Name != nil {
			m.Name = *patch.Name
		}

		if patch.Owner != nil {
			m.Owner = *patch.Owner
		}

		if patch.Description != nil {
			m.Description = *patch.Description
		}

		m.UpdatedAt = r.s.now()
		out = m

		return tx.Save(m).Error
	})
	if err != nil {
		return nil, translate(domain.EntityPlatform, err)
	}

	return toPlatform(out), nil
}

func (r *platformRepo) Delete(ctx context.Context, id int64) error {
	now := r.s.now()

	err := r.s.conn(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := first[model.Platform](tx, domain.EntityPlatform, id); err != nil {
			return err
		}

		// 项目回到 Unassigned 池
		if err := tx.Model(&model.Project{}).
			Where("platform_id = ?", id).
			Updates(map[string]any{"platform_id": nil, "updated_at": now}).Error; err != nil {
			return err
		}

		if err := unassignWhere(tx, "platform_id = ?", id); err != nil {
			return err
		}

		return tx.Delete(&model.Platform{}, id).Error
	})

	return translate(domain.EntityPlatform, err)
}

func (r *platformRepo) GetBySyncKey(ctx context.Context, key string) (*domain.Platform, error) {
	m, err := firstWhere[model.Platform](r.s.conn(ctx), domain.EntityPlatform, key, "sync_key = ?", key)
	if err != nil {
		return nil, err
	}

	return toPlatform(m), nil
}

func (r *platformRepo) Upsert(ctx context.Context, p domain.Platform) (*domain.Platform, error) {
	if p.SyncKey == "" {
		return nil, domain.Invalidf(domain.EntityPlatform, "sync key is required")
	}

	now := r.s.now()

	var out *model.Platform

	err := r.s.conn(ctx).Transaction(func(tx *gorm.DB) error {
		m, err := firstWhere[model.Platform](tx, domain.EntityPlatform, p.SyncKey, "sync_key = ?", p.SyncKey)
		if err != nil && domain.KindOf(err) != domain.KindNotFound {
			return err
		}

		if m == nil {
			m = &model.Platform{SyncKey: p.SyncKey, CreatedAt: orNow(p.CreatedAt, now)}
		}

		m.Name = p.Name
		m.Owner = p.Owner
		m.Description = p.Description
		m.UpdatedAt = orNow(p.UpdatedAt, now)
		out = m

		return tx.Save(m).Error
	})
	if err != nil {
		return nil, translate(domain.EntityPlatform, err)
	}

	return toPlatform(out), nil
}

// unassignWhere 将匹配条件的 TM 分配改为未分配且停用.
func unassignWhere(tx *gorm.DB, query string, args ...any) error {
	return tx.Model(&model.TMAssignment{}).
		Where(query, args...).
		Updates(map[string]any{
			"platform_id": nil,
			"project_id":  nil,
			"folder_id":   nil,
			"is_active":   false,
		}).Error
}

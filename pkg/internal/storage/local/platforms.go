package local

import (
	"context"

	sq "github.com/Masterminds/squirrel"

	"github.com/yeisme/tmvault/pkg/internal/domain"
)

type platformRepo struct {
	s *Store
}

func (r *platformRepo) selectPlatforms() sq.SelectBuilder {
	return r.s.sq.Select(platformCols...).From(tablePlatforms)
}

func (r *platformRepo) get(ctx context.Context, q querier, id int64) (*domain.Platform, error) {
	return one(ctx, q, r.selectPlatforms().Where(sq.Eq{"id": id}), scanPlatform, domain.EntityPlatform, id)
}

func (r *platformRepo) Get(ctx context.Context, id int64) (*domain.Platform, error) {
	return r.get(ctx, r.s.db, id)
}

func (r *platformRepo) GetAll(ctx context.Context, filter domain.PlatformFilter) ([]domain.Platform, error) {
	b := r.selectPlatforms()
	if filter.Owner != "" {
		b = b.Where(sq.Eq{"owner": filter.Owner})
	}

	out, err := all(ctx, r.s.db, b.OrderBy("id"), scanPlatform)

	return out, translate(domain.EntityPlatform, err)
}

func (r *platformRepo) Create(ctx context.Context, in domain.PlatformInput) (*domain.Platform, error) {
	if err := domain.Validate(domain.EntityPlatform, in); err != nil {
		return nil, err
	}

	now := r.s.now()
	p := &domain.Platform{
		SyncKey:     domain.NewSyncKey(now),
		Name:        in.Name,
		Owner:       in.Owner,
		Description: in.Description,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	err := r.s.write(ctx, func(tx querier) error {
		id, err := r.insert(ctx, tx, p)
		p.ID = id

		return err
	})
	if err != nil {
		return nil, translate(domain.EntityPlatform, err)
	}

	return p, nil
}

func (r *platformRepo) insert(ctx context.Context, tx querier, p *domain.Platform) (int64, error) {
	return insert(ctx, tx, r.s.sq.Insert(tablePlatforms).
		Columns("sync_key", "name", "owner", "description", "created_at", "updated_at").
		Values(p.SyncKey, p.Name, p.Owner, p.Description, nanos(p.CreatedAt), nanos(p.UpdatedAt)))
}

func (r *platformRepo) save(ctx context.Context, tx querier, p *domain.Platform) error {
	_, err := exec(ctx, tx, r.s.sq.Update(tablePlatforms).SetMap(map[string]any{
		"name":        p.Name,
		"owner":       p.Owner,
		"description": p.Description,
		"updated_at":  nanos(p.UpdatedAt),
	}).Where(sq.Eq{"id": p.ID}))

	return err
}

func (r *platformRepo) Update(ctx context.Context, id int64, patch domain.PlatformPatch) (*domain.Platform, error) {
	if err := domain.Validate(domain.EntityPlatform, patch); err != nil {
		return nil, err
	}

	var out *domain.Platform

	err := r.s.write(ctx, func(tx querier) error {
		p, err := r.get(ctx, tx, id)
		if err != nil {
			return err
		}

		if patch.Name != nil {
			p.Name = *patch.Name
		}

		if patch.Owner != nil {
			p.Owner = *patch.Owner
		}

		if patch.Description != nil {
			p.Description = *patch.Description
		}

		p.UpdatedAt = r.s.now()
		out = p

		return r.save(ctx, tx, p)
	})
	if err != nil {
		return nil, translate(domain.EntityPlatform, err)
	}

	return out, nil
}

func (r *platformRepo) Delete(ctx context.Context, id int64) error {
	now := r.s.now()

	err := r.s.write(ctx, func(tx querier) error {
		if _, err := r.get(ctx, tx, id); err != nil {
			return err
		}

		// 项目回到 Unassigned 池
		if _, err := exec(ctx, tx, r.s.sq.Update(tableProjects).
			Set("platform_id", nil).
			Set("updated_at", nanos(now)).
			Where(sq.Eq{"platform_id": id})); err != nil {
			return err
		}

		if err := r.s.unassignWhere(ctx, tx, sq.Eq{"platform_id": id}); err != nil {
			return err
		}

		_, err := exec(ctx, tx, r.s.sq.Delete(tablePlatforms).Where(sq.Eq{"id": id}))

		return err
	})

	return translate(domain.EntityPlatform, err)
}

func (r *platformRepo) GetBySyncKey(ctx context.Context, key string) (*domain.Platform, error) {
	return one(ctx, r.s.db, r.selectPlatforms().Where(sq.Eq{"sync_key": key}), scanPlatform, domain.EntityPlatform, key)
}

func (r *platformRepo) Upsert(ctx context.Context, p domain.Platform) (*domain.Platform, error) {
	if p.SyncKey == "" {
		return nil, domain.Invalidf(domain.EntityPlatform, "sync key is required")
	}

	now := r.s.now()

	var out *domain.Platform

	err := r.s.write(ctx, func(tx querier) error {
		cur, err := one(ctx, tx, r.selectPlatforms().Where(sq.Eq{"sync_key": p.SyncKey}), scanPlatform, domain.EntityPlatform, p.SyncKey)
		if err != nil && domain.KindOf(err) != domain.KindNotFound {
			return err
		}

		next := &domain.Platform{
			SyncKey:     p.SyncKey,
			Name:        p.Name,
			Owner:       p.Owner,
			Description: p.Description,
			CreatedAt:   orNow(p.CreatedAt, now),
			UpdatedAt:   orNow(p.UpdatedAt, now),
		}
		out = next

		if cur == nil {
			next.ID, err = r.insert(ctx, tx, next)

			return err
		}

		next.ID, next.CreatedAt = cur.ID, cur.CreatedAt

		return r.save(ctx, tx, next)
	})
	if err != nil {
		return nil, translate(domain.EntityPlatform, err)
	}

	return out, nil
}

// unassignWhere 将匹配条件的 TM 分配改为未分配且停用.
func (s *Store) unassignWhere(ctx context.Context, tx querier, where sq.Sqlizer) error {
	_, err := exec(ctx, tx, s.sq.Update(tableAssignments).SetMap(map[string]any{
		"platform_id": nil,
		"project_id":  nil,
		"folder_id":   nil,
		"is_active":   false,
	}).Where(where))

	return err
}

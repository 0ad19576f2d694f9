package local

import (
	"context"

	sq "github.com/Masterminds/squirrel"

	"github.com/yeisme/tmvault/pkg/internal/domain"
	"github.com/yeisme/tmvault/pkg/internal/session"
)

type projectRepo struct {
	s *Store
}

func selectProjects(s *Store) sq.SelectBuilder {
	return s.sq.Select(projectCols...).From(tableProjects)
}

func getProject(ctx context.Context, s *Store, q querier, id int64) (*domain.Project, error) {
	return one(ctx, q, selectProjects(s).Where(sq.Eq{"id": id}), scanProject, domain.EntityProject, id)
}

func (r *projectRepo) Get(ctx context.Context, id int64) (*domain.Project, error) {
	return getProject(ctx, r.s, r.s.db, id)
}

func (r *projectRepo) GetAll(ctx context.Context, filter domain.ProjectFilter) ([]domain.Project, error) {
	b := selectProjects(r.s)

	switch {
	case filter.Unassigned:
		b = b.Where(sq.Eq{"platform_id": nil})
	case filter.PlatformID != nil:
		b = b.Where(sq.Eq{"platform_id": *filter.PlatformID})
	}

	if filter.Owner != "" {
		b = b.Where(sq.Eq{"owner": filter.Owner})
	}

	out, err := all(ctx, r.s.db, b.OrderBy("id"), scanProject)

	return out, translate(domain.EntityProject, err)
}

func (r *projectRepo) Create(ctx context.Context, in domain.ProjectInput) (*domain.Project, error) {
	if err := domain.Validate(domain.EntityProject, in); err != nil {
		return nil, err
	}

	now := r.s.now()
	p := &domain.Project{
		SyncKey:     domain.NewSyncKey(now),
		PlatformID:  in.PlatformID,
		Name:        in.Name,
		Owner:       in.Owner,
		Description: in.Description,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	err := r.s.write(ctx, func(tx querier) error {
		if err := r.checkPlatform(ctx, tx, in.PlatformID); err != nil {
			return err
		}

		id, err := r.insert(ctx, tx, p)
		p.ID = id

		return err
	})
	if err != nil {
		return nil, translate(domain.EntityProject, err)
	}

	return p, nil
}

func (r *projectRepo) checkPlatform(ctx context.Context, tx querier, id *int64) error {
	if id == nil {
		return nil
	}

	_, err := (&platformRepo{s: r.s}).get(ctx, tx, *id)

	return err
}

func (r *projectRepo) insert(ctx context.Context, tx querier, p *domain.Project) (int64, error) {
	return insert(ctx, tx, r.s.sq.Insert(tableProjects).
		Columns("sync_key", "platform_id", "name", "owner", "description", "created_at", "updated_at").
		Values(p.SyncKey, nullInt(p.PlatformID), p.Name, p.Owner, p.Description, nanos(p.CreatedAt), nanos(p.UpdatedAt)))
}

func (r *projectRepo) save(ctx context.Context, tx querier, p *domain.Project) error {
	_, err := exec(ctx, tx, r.s.sq.Update(tableProjects).SetMap(map[string]any{
		"platform_id": nullInt(p.PlatformID),
		"name":        p.Name,
		"owner":       p.Owner,
		"description": p.Description,
		"updated_at":  nanos(p.UpdatedAt),
	}).Where(sq.Eq{"id": p.ID}))

	return err
}

func (r *projectRepo) Update(ctx context.Context, id int64, patch domain.ProjectPatch) (*domain.Project, error) {
	if err := domain.Validate(domain.EntityProject, patch); err != nil {
		return nil, err
	}

	var out *domain.Project

	err := r.s.write(ctx, func(tx querier) error {
		p, err := getProject(ctx, r.s, tx, id)
		if err != nil {
			return err
		}

		if patch.Name != nil {
			p.Name = *patch.Name
		}

		if patch.Description != nil {
			p.Description = *patch.Description
		}

		switch {
		case patch.ClearPlatform:
			p.PlatformID = nil
		case patch.PlatformID != nil:
			if err := r.checkPlatform(ctx, tx, patch.PlatformID); err != nil {
				return err
			}

			p.PlatformID = patch.PlatformID
		}

		p.UpdatedAt = r.s.now()
		out = p

		return r.save(ctx, tx, p)
	})
	if err != nil {
		return nil, translate(domain.EntityProject, err)
	}

	return out, nil
}

// Delete 将项目、文件夹、文件与行写入一条回收站记录后删除.
func (r *projectRepo) Delete(ctx context.Context, id int64) error {
	now := r.s.now()
	actor := session.Actor(ctx)

	err := r.s.write(ctx, func(tx querier) error {
		p, err := getProject(ctx, r.s, tx, id)
		if err != nil {
			return err
		}

		roots, err := all(ctx, tx, selectFolders(r.s).
			Where(sq.Eq{"project_id": id, "parent_id": nil}).OrderBy("id"), scanFolder)
		if err != nil {
			return err
		}

		folders, err := r.s.collectFolders(ctx, tx, roots)
		if err != nil {
			return err
		}

		files, err := all(ctx, tx, selectFiles(r.s).Where(sq.Eq{"project_id": id}).OrderBy("id"), scanFile)
		if err != nil {
			return err
		}

		snap := &domain.Snapshot{Project: p, Folders: folders}
		if snap.Files, err = r.s.fileSnapshots(ctx, tx, files); err != nil {
			return err
		}

		if err := r.s.putTrash(ctx, tx, domain.EntityProject, p.SyncKey, p.Name, &p.ID, actor, now, snap); err != nil {
			return err
		}

		if err := r.s.unassignWhere(ctx, tx, sq.Eq{"project_id": id}); err != nil {
			return err
		}

		if ids := folderIDs(folders); len(ids) > 0 {
			if err := r.s.unassignWhere(ctx, tx, sq.Eq{"folder_id": ids}); err != nil {
				return err
			}
		}

		if err := r.s.removeFiles(ctx, tx, fileIDs(files)); err != nil {
			return err
		}

		if _, err := exec(ctx, tx, r.s.sq.Delete(tableFolders).Where(sq.Eq{"project_id": id})); err != nil {
			return err
		}

		_, err = exec(ctx, tx, r.s.sq.Delete(tableProjects).Where(sq.Eq{"id": id}))

		return err
	})

	return translate(domain.EntityProject, err)
}

func (r *projectRepo) GetBySyncKey(ctx context.Context, key string) (*domain.Project, error) {
	return one(ctx, r.s.db, selectProjects(r.s).Where(sq.Eq{"sync_key": key}), scanProject, domain.EntityProject, key)
}

func (r *projectRepo) Upsert(ctx context.Context, p domain.Project) (*domain.Project, error) {
	if p.SyncKey == "" {
		return nil, domain.Invalidf(domain.EntityProject, "sync key is required")
	}

	now := r.s.now()

	var out *domain.Project

	err := r.s.write(ctx, func(tx querier) error {
		if err := r.checkPlatform(ctx, tx, p.PlatformID); err != nil {
			return err
		}

		cur, err := one(ctx, tx, selectProjects(r.s).Where(sq.Eq{"sync_key": p.SyncKey}), scanProject, domain.EntityProject, p.SyncKey)
		if err != nil && domain.KindOf(err) != domain.KindNotFound {
			return err
		}

		next := &domain.Project{
			SyncKey:     p.SyncKey,
			PlatformID:  p.PlatformID,
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
		return nil, translate(domain.EntityProject, err)
	}

	return out, nil
}

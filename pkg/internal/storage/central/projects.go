package central

import (
	"context"

	"gorm.io/gorm"

	"github.com/yeisme/tmvault/pkg/internal/domain"
	"github.com/yeisme/tmvault/pkg/internal/model"
	"github.com/yeisme/tmvault/pkg/internal/session"
)

type projectRepo struct {
	s       *Store
	session string
}

func (r *projectRepo) Get(ctx context.Context, id int64) (*domain.Project, error) {
	m, err := first[model.Project](r.s.conn(ctx), domain.EntityProject, id)
	if err != nil {
		return nil, err
	}

	return toProject(m), nil
}

func (r *projectRepo) GetAll(ctx context.Context, filter domain.ProjectFilter) ([]domain.Project, error) {
	q := r.s.conn(ctx).Model(&model.Project{})

	switch {
	case filter.Unassigned:
		q = q.Where("platform_id IS NULL")
	case filter.PlatformID != nil:
		q = q.Where("platform_id = ?", *filter.PlatformID)
	}

	if filter.Owner != "" {
		q = q.Where("owner = ?", filter.Owner)
	}

	var ms []model.Project
	if err := q.Order("id").Find(&ms).Error; err != nil {
		return nil, translate(domain.EntityProject, err)
	}

	return mapSlice(ms, toProject), nil
}

func (r *projectRepo) Create(ctx context.Context, in domain.ProjectInput) (*domain.Project, error) {
	if err := domain.Validate(domain.EntityProject, in); err != nil {
		return nil, err
	}

	now := r.s.now()
	m := &model.Project{
		SyncKey:     domain.NewSyncKey(now),
		PlatformID:  in.PlatformID,
		Name:        in.Name,
		Owner:       in.Owner,
		Description: in.Description,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	err := r.s.conn(ctx).Transaction(func(tx *gorm.DB) error {
		if in.PlatformID != nil {
			if _, err := first[model.Platform](tx, domain.EntityPlatform, *in.PlatformID); err != nil {
				return err
			}
		}

		return tx.Create(m).Error
	})
	if err != nil {
		return nil, translate(domain.EntityProject, err)
	}

	return toProject(m), nil
}

func (r *projectRepo) Update(ctx context.Context, id int64, patch domain.ProjectPatch) (*domain.Project, error) {
	if err := domain.Validate(domain.EntityProject, patch); err != nil {
		return nil, err
	}

	var out *model.Project

	err := r.s.conn(ctx).Transaction(func(tx *gorm.DB) error {
		m, err := first[model.Project](tx, domain.EntityProject, id)
		if err != nil {
			return err
		}

		if patch.Name != nil {
			m.Name = *patch.Name
		}

		if patch.Description != nil {
			m.Description = *patch.Description
		}

		switch {
		case patch.ClearPlatform:
			m.PlatformID = nil
		case patch.PlatformID != nil:
			if _, err := first[model.Platform](tx, domain.EntityPlatform, *patch.PlatformID); err != nil {
				return err
			}

			m.PlatformID = patch.PlatformID
		}

		m.UpdatedAt = r.s.now()
		out = m

		return tx.Save(m).Error
	})
	if err != nil {
		return nil, translate(domain.EntityProject, err)
	}

	return toProject(out), nil
}

// Delete 将项目、文件夹、文件与行写入一条回收站记录后删除.
func (r *projectRepo) Delete(ctx context.Context, id int64) error {
	now := r.s.now()
	actor := session.Actor(ctx)

	err := r.s.conn(ctx).Transaction(func(tx *gorm.DB) error {
		p, err := first[model.Project](tx, domain.EntityProject, id)
		if err != nil {
			return err
		}

		var roots []model.Folder
		if err := tx.Where("project_id = ? AND parent_id IS NULL", id).Order("id").Find(&roots).Error; err != nil {
			return err
		}

		folders, err := collectFolders(tx, roots)
		if err != nil {
			return err
		}

		var files []model.File
		if err := tx.Where("project_id = ?", id).Order("id").Find(&files).Error; err != nil {
			return err
		}

		snap := &domain.Snapshot{Project: toProject(p), Folders: mapSlice(folders, toFolder)}
		if snap.Files, err = fileSnapshots(tx, files); err != nil {
			return err
		}

		if err := r.s.putTrash(tx, domain.EntityProject, p.SyncKey, p.Name, &p.ID, actor, now, snap); err != nil {
			return err
		}

		folderIDs := modelIDs(folders, func(f *model.Folder) int64 { return f.ID })
		if err := unassignWhere(tx, "project_id = ?", id); err != nil {
			return err
		}

		if len(folderIDs) > 0 {
			if err := unassignWhere(tx, "folder_id IN ?", folderIDs); err != nil {
				return err
			}
		}

		fileIDs := modelIDs(files, func(f *model.File) int64 { return f.ID })
		if err := r.s.checkFree(ctx, r.session, fileIDs); err != nil {
			return err
		}

		if err := removeFiles(tx, fileIDs); err != nil {
			return err
		}

		if err := tx.Where("project_id = ?", id).Delete(&model.Folder{}).Error; err != nil {
			return err
		}

		return tx.Delete(&model.Project{}, id).Error
	})

	return translate(domain.EntityProject, err)
}

func (r *projectRepo) GetBySyncKey(ctx context.Context, key string) (*domain.Project, error) {
	m, err := firstWhere[model.Project](r.s.conn(ctx), domain.EntityProject, key, "sync_key = ?", key)
	if err != nil {
		return nil, err
	}

	return toProject(m), nil
}

func (r *projectRepo) Upsert(ctx context.Context, p domain.Project) (*domain.Project, error) {
	if p.SyncKey == "" {
		return nil, domain.Invalidf(domain.EntityProject, "sync key is required")
	}

	now := r.s.now()

	var out *model.Project

	err := r.s.conn(ctx).Transaction(func(tx *gorm.DB) error {
		if p.PlatformID != nil {
			if _, err := first[model.Platform](tx, domain.EntityPlatform, *p.PlatformID); err != nil {
				return err
			}
		}

		m, err := firstWhere[model.Project](tx, domain.EntityProject, p.SyncKey, "sync_key = ?", p.SyncKey)
		if err != nil && domain.KindOf(err) != domain.KindNotFound {
			return err
		}

		if m == nil {
			m = &model.Project{SyncKey: p.SyncKey, CreatedAt: orNow(p.CreatedAt, now)}
		}

		m.PlatformID = p.PlatformID
		m.Name = p.Name
		m.Owner = p.Owner
		m.Description = p.Description
		m.UpdatedAt = orNow(p.UpdatedAt, now)
		out = m

		return tx.Save(m).Error
	})
	if err != nil {
		return nil, translate(domain.EntityProject, err)
	}

	return toProject(out), nil
}

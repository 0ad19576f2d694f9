package central

import (
	"context"

	"gorm.io/gorm"

	"github.com/yeisme/tmvault/pkg/internal/domain"
	"github.com/yeisme/tmvault/pkg/internal/model"
	"github.com/yeisme/tmvault/pkg/internal/session"
)

type folderRepo struct {
	s       *Store
	session string
}

func (r *folderRepo) Get(ctx context.Context, id int64) (*domain.Folder, error) {
	m, err := first[model.Folder](r.s.conn(ctx), domain.EntityFolder, id)
	if err != nil {
		return nil, err
	}

	return toFolder(m), nil
}

func (r *folderRepo) GetAll(ctx context.Context, filter domain.FolderFilter) ([]domain.Folder, error) {
	q := r.s.conn(ctx).Model(&model.Folder{})
	if filter.ProjectID != nil {
		q = q.Where("project_id = ?", *filter.ProjectID)
	}

	switch {
	case filter.RootOnly:
		q = q.Where("parent_id IS NULL")
	case filter.ParentID != nil:
		q = q.Where("parent_id = ?", *filter.ParentID)
	}

	var ms []model.Folder
	if err := q.Order("id").Find(&ms).Error; err != nil {
		return nil, translate(domain.EntityFolder, err)
	}

	return mapSlice(ms, toFolder), nil
}

func (r *folderRepo) Create(ctx context.Context, in domain.FolderInput) (*domain.Folder, error) {
	if err := domain.Validate(domain.EntityFolder, in); err != nil {
		return nil, err
	}

	now := r.s.now()
	m := &model.Folder{
		SyncKey:   domain.NewSyncKey(now),
		ProjectID: in.ProjectID,
		ParentID:  in.ParentID,
		Name:      in.Name,
		CreatedAt: now,
		UpdatedAt: now,
	}

	err := r.s.conn(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := first[model.Project](tx, domain.EntityProject, in.ProjectID); err != nil {
			return err
		}

		if err := checkParent(tx, in.ProjectID, in.ParentID, 0); err != nil {
			return err
		}

		if err := checkFolderName(tx, in.ProjectID, in.ParentID, in.Name, 0); err != nil {
			return err
		}

		return tx.Create(m).Error
	})
	if err != nil {
		return nil, translate(domain.EntityFolder, err)
	}

	return toFolder(m), nil
}

func (r *folderRepo) Update(ctx context.Context, id int64, patch domain.FolderPatch) (*domain.Folder, error) {
	if err := domain.Validate(domain.EntityFolder, patch); err != nil {
		return nil, err
	}

	var out *model.Folder

	err := r.s.conn(ctx).Transaction(func(tx *gorm.DB) error {
		m, err := first[model.Folder](tx, domain.EntityFolder, id)
		if err != nil {
			return err
		}

		switch {
		case patch.MoveToRoot:
			m.ParentID = nil
		case patch.ParentID != nil:
			if err := checkParent(tx, m.ProjectID, patch.ParentID, id); err != nil {
				return err
			}

			if err := r.checkNotDescendant(tx, id, *patch.ParentID); err != nil {
				return err
			}

			m.ParentID = patch.ParentID
		}

		if patch.Name != nil {
			m.Name = *patch.Name
		}

		if err := checkFolderName(tx, m.ProjectID, m.ParentID, m.Name, id); err != nil {
			return err
		}

		m.UpdatedAt = r.s.now()
		out = m

		return tx.Save(m).Error
	})
	if err != nil {
		return nil, translate(domain.EntityFolder, err)
	}

	return toFolder(out), nil
}

// Delete 将文件夹子树及其文件写入回收站.
func (r *folderRepo) Delete(ctx context.Context, id int64) error {
	now := r.s.now()
	actor := session.Actor(ctx)

	err := r.s.conn(ctx).Transaction(func(tx *gorm.DB) error {
		root, err := first[model.Folder](tx, domain.EntityFolder, id)
		if err != nil {
			return err
		}

		folders, err := collectFolders(tx, []model.Folder{*root})
		if err != nil {
			return err
		}

		folderIDs := modelIDs(folders, func(f *model.Folder) int64 { return f.ID })

		var files []model.File
		if err := tx.Where("folder_id IN ?", folderIDs).Order("id").Find(&files).Error; err != nil {
			return err
		}

		snap := &domain.Snapshot{Folders: mapSlice(folders, toFolder)}
		if snap.Files, err = fileSnapshots(tx, files); err != nil {
			return err
		}

		if err := r.s.putTrash(tx, domain.EntityFolder, root.SyncKey, root.Name, &root.ProjectID, actor, now, snap); err != nil {
			return err
		}

		if err := unassignWhere(tx, "folder_id IN ?", folderIDs); err != nil {
			return err
		}

		fileIDs := modelIDs(files, func(f *model.File) int64 { return f.ID })
		if err := r.s.checkFree(ctx, r.session, fileIDs); err != nil {
			return err
		}

		if err := removeFiles(tx, fileIDs); err != nil {
			return err
		}

		return tx.Where("id IN ?", folderIDs).Delete(&model.Folder{}).Error
	})

	return translate(domain.EntityFolder, err)
}

func (r *folderRepo) Ancestors(ctx context.Context, id int64) ([]domain.Folder, error) {
	db := r.s.conn(ctx)

	chain := make([]domain.Folder, 0, 4)
	next := &id

	for next != nil {
		if len(chain) >= r.s.maxFolderDepth {
			return nil, domain.Invalidf(domain.EntityFolder, "folder chain of %d deeper than %d", id, r.s.maxFolderDepth)
		}

		m, err := first[model.Folder](db, domain.EntityFolder, *next)
		if err != nil {
			return nil, err
		}

		chain = append(chain, *toFolder(m))
		next = m.ParentID
	}

	return chain, nil
}

func (r *folderRepo) GetBySyncKey(ctx context.Context, key string) (*domain.Folder, error) {
	m, err := firstWhere[model.Folder](r.s.conn(ctx), domain.EntityFolder, key, "sync_key = ?", key)
	if err != nil {
		return nil, err
	}

	return toFolder(m), nil
}

func (r *folderRepo) Upsert(ctx context.Context, f domain.Folder) (*domain.Folder, error) {
	if f.SyncKey == "" {
		return nil, domain.Invalidf(domain.EntityFolder, "sync key is required")
	}

	now := r.s.now()

	var out *model.Folder

	err := r.s.conn(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := first[model.Project](tx, domain.EntityProject, f.ProjectID); err != nil {
			return err
		}

		m, err := firstWhere[model.Folder](tx, domain.EntityFolder, f.SyncKey, "sync_key = ?", f.SyncKey)
		if err != nil && domain.KindOf(err) != domain.KindNotFound {
			return err
		}

		var selfID int64
		if m != nil {
			selfID = m.ID
		}

		if err := checkParent(tx, f.ProjectID, f.ParentID, selfID); err != nil {
			return err
		}

		if m == nil {
			m = &model.Folder{SyncKey: f.SyncKey, CreatedAt: orNow(f.CreatedAt, now)}
		}

		m.ProjectID = f.ProjectID
		m.ParentID = f.ParentID
		m.Name = f.Name
		m.UpdatedAt = orNow(f.UpdatedAt, now)
		out = m

		return tx.Save(m).Error
	})
	if err != nil {
		return nil, translate(domain.EntityFolder, err)
	}

	return toFolder(out), nil
}

// checkNotDescendant 拒绝把文件夹移到自身子树下.
func (r *folderRepo) checkNotDescendant(tx *gorm.DB, id, parentID int64) error {
	next := &parentID

	for depth := 0; next != nil; depth++ {
		if *next == id {
			return domain.Invalidf(domain.EntityFolder, "folder %d cannot be moved under its own subtree", id)
		}

		if depth >= r.s.maxFolderDepth {
			return domain.Invalidf(domain.EntityFolder, "folder chain deeper than %d", r.s.maxFolderDepth)
		}

		m, err := first[model.Folder](tx, domain.EntityFolder, *next)
		if err != nil {
			return err
		}

		next = m.ParentID
	}

	return nil
}

// checkParent 校验父文件夹存在且属于同一项目.
func checkParent(tx *gorm.DB, projectID int64, parentID *int64, selfID int64) error {
	if parentID == nil {
		return nil
	}

	if *parentID == selfID {
		return domain.Invalidf(domain.EntityFolder, "folder cannot be its own parent")
	}

	parent, err := first[model.Folder](tx, domain.EntityFolder, *parentID)
	if err != nil {
		return err
	}

	if parent.ProjectID != projectID {
		return domain.Invalidf(domain.EntityFolder, "parent folder %d belongs to another project", *parentID)
	}

	return nil
}

// checkFolderName 同一父级下名称唯一.
func checkFolderName(tx *gorm.DB, projectID int64, parentID *int64, name string, selfID int64) error {
	q := tx.Model(&model.Folder{}).Where("project_id = ? AND name = ? AND id <> ?", projectID, name, selfID)
	if parentID == nil {
		q = q.Where("parent_id IS NULL")
	} else {
		q = q.Where("parent_id = ?", *parentID)
	}

	var n int64
	if err := q.Count(&n).Error; err != nil {
		return err
	}

	if n > 0 {
		return domain.Conflict(domain.EntityFolder, "folder "+name+" already exists")
	}

	return nil
}

// collectFolders 广度优先收集子树，父在前.
func collectFolders(tx *gorm.DB, roots []model.Folder) ([]model.Folder, error) {
	out := append([]model.Folder(nil), roots...)
	frontier := modelIDs(roots, func(f *model.Folder) int64 { return f.ID })

	for len(frontier) > 0 {
		var children []model.Folder
		if err := tx.Where("parent_id IN ?", frontier).Order("id").Find(&children).Error; err != nil {
			return nil, err
		}

		out = append(out, children...)
		frontier = modelIDs(children, func(f *model.Folder) int64 { return f.ID })
	}

	return out, nil
}

func modelIDs[M any](ms []M, id func(*M) int64) []int64 {
	out := make([]int64, 0, len(ms))
	for i := range ms {
		out = append(out, id(&ms[i]))
	}

	return out
}

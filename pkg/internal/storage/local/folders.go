package local

import (
	"context"

	sq "github.com/Masterminds/squirrel"

	"github.com/yeisme/tmvault/pkg/internal/domain"
	"github.com/yeisme/tmvault/pkg/internal/session"
)

type folderRepo struct {
	s *Store
}

func selectFolders(s *Store) sq.SelectBuilder {
	return s.sq.Select(folderCols...).From(tableFolders)
}

func getFolder(ctx context.Context, s *Store, q querier, id int64) (*domain.Folder, error) {
	return one(ctx, q, selectFolders(s).Where(sq.Eq{"id": id}), scanFolder, domain.EntityFolder, id)
}

func (r *folderRepo) Get(ctx context.Context, id int64) (*domain.Folder, error) {
	return getFolder(ctx, r.s, r.s.db, id)
}

func (r *folderRepo) GetAll(ctx context.Context, filter domain.FolderFilter) ([]domain.Folder, error) {
	b := selectFolders(r.s)
	if filter.ProjectID != nil {
		b = b.Where(sq.Eq{"project_id": *filter.ProjectID})
	}

	switch {
	case filter.RootOnly:
		b = b.Where(sq.Eq{"parent_id": nil})
	case filter.ParentID != nil:
		b = b.Where(sq.Eq{"parent_id": *filter.ParentID})
	}

	out, err := all(ctx, r.s.db, b.OrderBy("id"), scanFolder)

	return out, translate(domain.EntityFolder, err)
}

func (r *folderRepo) Create(ctx context.Context, in domain.FolderInput) (*domain.Folder, error) {
	if err := domain.Validate(domain.EntityFolder, in); err != nil {
		return nil, err
	}

	now := r.s.now()
	f := &domain.Folder{
		SyncKey:   domain.NewSyncKey(now),
		ProjectID: in.ProjectID,
		ParentID:  in.ParentID,
		Name:      in.Name,
		CreatedAt: now,
		UpdatedAt: now,
	}

	err := r.s.write(ctx, func(tx querier) error {
		if _, err := getProject(ctx, r.s, tx, in.ProjectID); err != nil {
			return err
		}

		if err := r.s.checkParent(ctx, tx, in.ProjectID, in.ParentID, 0); err != nil {
			return err
		}

		if err := r.s.checkFolderName(ctx, tx, in.ProjectID, in.ParentID, in.Name, 0); err != nil {
			return err
		}

		id, err := r.insert(ctx, tx, f)
		f.ID = id

		return err
	})
	if err != nil {
		return nil, translate(domain.EntityFolder, err)
	}

	return f, nil
}

func (r *folderRepo) insert(ctx context.Context, tx querier, f *domain.Folder) (int64, error) {
	return insert(ctx, tx, r.s.sq.Insert(tableFolders).
		Columns("sync_key", "project_id", "parent_id", "name", "created_at", "updated_at").
		Values(f.SyncKey, f.ProjectID, nullInt(f.ParentID), f.Name, nanos(f.CreatedAt), nanos(f.UpdatedAt)))
}

func (r *folderRepo) save(ctx context.Context, tx querier, f *domain.Folder) error {
	_, err := exec(ctx, tx, r.s.sq.Update(tableFolders).SetMap(map[string]any{
		"project_id": f.ProjectID,
		"parent_id":  nullInt(f.ParentID),
		"name":       f.Name,
		"updated_at": nanos(f.UpdatedAt),
	}).Where(sq.Eq{"id": f.ID}))

	return err
}

func (r *folderRepo) Update(ctx context.Context, id int64, patch domain.FolderPatch) (*domain.Folder, error) {
	if err := domain.Validate(domain.EntityFolder, patch); err != nil {
		return nil, err
	}

	var out *domain.Folder

	err := r.s.write(ctx, func(tx querier) error {
		f, err := getFolder(ctx, r.s, tx, id)
		if err != nil {
			return err
		}

		switch {
		case patch.MoveToRoot:
			f.ParentID = nil
		case patch.ParentID != nil:
			if err := r.s.checkParent(ctx, tx, f.ProjectID, patch.ParentID, id); err != nil {
				return err
			}

			if err := r.checkNotDescendant(ctx, tx, id, *patch.ParentID); err != nil {
				return err
			}

			f.ParentID = patch.ParentID
		}

		if patch.Name != nil {
			f.Name = *patch.Name
		}

		if err := r.s.checkFolderName(ctx, tx, f.ProjectID, f.ParentID, f.Name, id); err != nil {
			return err
		}

		f.UpdatedAt = r.s.now()
		out = f

		return r.save(ctx, tx, f)
	})
	if err != nil {
		return nil, translate(domain.EntityFolder, err)
	}

	return out, nil
}

// Delete 将文件夹子树及其文件写入回收站.
func (r *folderRepo) Delete(ctx context.Context, id int64) error {
	now := r.s.now()
	actor := session.Actor(ctx)

	err := r.s.write(ctx, func(tx querier) error {
		root, err := getFolder(ctx, r.s, tx, id)
		if err != nil {
			return err
		}

		folders, err := r.s.collectFolders(ctx, tx, []domain.Folder{*root})
		if err != nil {
			return err
		}

		ids := folderIDs(folders)

		files, err := all(ctx, tx, selectFiles(r.s).Where(sq.Eq{"folder_id": ids}).OrderBy("id"), scanFile)
		if err != nil {
			return err
		}

		snap := &domain.Snapshot{Folders: folders}
		if snap.Files, err = r.s.fileSnapshots(ctx, tx, files); err != nil {
			return err
		}

		if err := r.s.putTrash(ctx, tx, domain.EntityFolder, root.SyncKey, root.Name, &root.ProjectID, actor, now, snap); err != nil {
			return err
		}

		if err := r.s.unassignWhere(ctx, tx, sq.Eq{"folder_id": ids}); err != nil {
			return err
		}

		if err := r.s.removeFiles(ctx, tx, fileIDs(files)); err != nil {
			return err
		}

		_, err = exec(ctx, tx, r.s.sq.Delete(tableFolders).Where(sq.Eq{"id": ids}))

		return err
	})

	return translate(domain.EntityFolder, err)
}

func (r *folderRepo) Ancestors(ctx context.Context, id int64) ([]domain.Folder, error) {
	chain := make([]domain.Folder, 0, 4)
	next := &id

	for next != nil {
		if len(chain) >= r.s.maxFolderDepth {
			return nil, domain.Invalidf(domain.EntityFolder, "folder chain of %d deeper than %d", id, r.s.maxFolderDepth)
		}

		f, err := getFolder(ctx, r.s, r.s.db, *next)
		if err != nil {
			return nil, err
		}

		chain = append(chain, *f)
		next = f.ParentID
	}

	return chain, nil
}

func (r *folderRepo) GetBySyncKey(ctx context.Context, key string) (*domain.Folder, error) {
	return one(ctx, r.s.db, selectFolders(r.s).Where(sq.Eq{"sync_key": key}), scanFolder, domain.EntityFolder, key)
}

func (r *folderRepo) Upsert(ctx context.Context, f domain.Folder) (*domain.Folder, error) {
	if f.SyncKey == "" {
		return nil, domain.Invalidf(domain.EntityFolder, "sync key is required")
	}

	now := r.s.now()

	var out *domain.Folder

	err := r.s.write(ctx, func(tx querier) error {
		if _, err := getProject(ctx, r.s, tx, f.ProjectID); err != nil {
			return err
		}

		cur, err := one(ctx, tx, selectFolders(r.s).Where(sq.Eq{"sync_key": f.SyncKey}), scanFolder, domain.EntityFolder, f.SyncKey)
		if err != nil && domain.KindOf(err) != domain.KindNotFound {
			return err
		}

		var selfID int64
		if cur != nil {
			selfID = cur.ID
		}

		if err := r.s.checkParent(ctx, tx, f.ProjectID, f.ParentID, selfID); err != nil {
			return err
		}

		next := &domain.Folder{
			SyncKey:   f.SyncKey,
			ProjectID: f.ProjectID,
			ParentID:  f.ParentID,
			Name:      f.Name,
			CreatedAt: orNow(f.CreatedAt, now),
			UpdatedAt: orNow(f.UpdatedAt, now),
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
		return nil, translate(domain.EntityFolder, err)
	}

	return out, nil
}

// checkNotDescendant 拒绝把文件夹移到自身子树下.
func (r *folderRepo) checkNotDescendant(ctx context.Context, tx querier, id, parentID int64) error {
	next := &parentID

	for depth := 0; next != nil; depth++ {
		if *next == id {
			return domain.Invalidf(domain.EntityFolder, "folder %d cannot be moved under its own subtree", id)
		}

		if depth >= r.s.maxFolderDepth {
			return domain.Invalidf(domain.EntityFolder, "folder chain deeper than %d", r.s.maxFolderDepth)
		}

		f, err := getFolder(ctx, r.s, tx, *next)
		if err != nil {
			return err
		}

		next = f.ParentID
	}

	return nil
}

// checkParent 校验父文件夹存在且属于同一项目.
func (s *Store) checkParent(ctx context.Context, tx querier, projectID int64, parentID *int64, selfID int64) error {
	if parentID == nil {
		return nil
	}

	if *parentID == selfID {
		return domain.Invalidf(domain.EntityFolder, "folder cannot be its own parent")
	}

	parent, err := getFolder(ctx, s, tx, *parentID)
	if err != nil {
		return err
	}

	if parent.ProjectID != projectID {
		return domain.Invalidf(domain.EntityFolder, "parent folder %d belongs to another project", *parentID)
	}

	return nil
}

// checkFolderName 同一父级下名称唯一.
func (s *Store) checkFolderName(ctx context.Context, tx querier, projectID int64, parentID *int64, name string, selfID int64) error {
	ok, err := exists(ctx, tx, tableFolders, sq.And{
		sq.Eq{"project_id": projectID, "name": name},
		sq.NotEq{"id": selfID},
		eqOrNull("parent_id", parentID),
	})
	if err != nil {
		return err
	}

	if ok {
		return domain.Conflict(domain.EntityFolder, "folder "+name+" already exists")
	}

	return nil
}

// collectFolders 广度优先收集子树，父在前.
func (s *Store) collectFolders(ctx context.Context, tx querier, roots []domain.Folder) ([]domain.Folder, error) {
	out := append([]domain.Folder(nil), roots...)
	frontier := folderIDs(roots)

	for len(frontier) > 0 {
		children, err := all(ctx, tx, selectFolders(s).Where(sq.Eq{"parent_id": frontier}).OrderBy("id"), scanFolder)
		if err != nil {
			return nil, err
		}

		out = append(out, children...)
		frontier = folderIDs(children)
	}

	return out, nil
}

func folderIDs(fs []domain.Folder) []int64 {
	out := make([]int64, 0, len(fs))
	for _, f := range fs {
		out = append(out, f.ID)
	}

	return out
}

package local

import (
	"context"

	sq "github.com/Masterminds/squirrel"

	"github.com/yeisme/tmvault/pkg/internal/domain"
	"github.com/yeisme/tmvault/pkg/internal/session"
)

type fileRepo struct {
	s *Store
}

func selectFiles(s *Store) sq.SelectBuilder {
	return s.sq.Select(fileCols...).From(tableFiles)
}

func getFile(ctx context.Context, s *Store, q querier, id int64) (*domain.File, error) {
	return one(ctx, q, selectFiles(s).Where(sq.Eq{"id": id}), scanFile, domain.EntityFile, id)
}

func (r *fileRepo) Get(ctx context.Context, id int64) (*domain.File, error) {
	return getFile(ctx, r.s, r.s.db, id)
}

func (r *fileRepo) GetAll(ctx context.Context, filter domain.FileFilter) ([]domain.File, error) {
	b := selectFiles(r.s)
	if filter.ProjectID != nil {
		b = b.Where(sq.Eq{"project_id": *filter.ProjectID})
	}

	switch {
	case filter.RootOnly:
		b = b.Where(sq.Eq{"folder_id": nil})
	case filter.FolderID != nil:
		b = b.Where(sq.Eq{"folder_id": *filter.FolderID})
	}

	if filter.SyncStatus != "" {
		b = b.Where(sq.Eq{"sync_status": string(filter.SyncStatus)})
	}

	out, err := all(ctx, r.s.db, b.OrderBy("id"), scanFile)

	return out, translate(domain.EntityFile, err)
}

func (r *fileRepo) Create(ctx context.Context, in domain.FileInput) (*domain.File, error) {
	if err := domain.Validate(domain.EntityFile, in); err != nil {
		return nil, err
	}

	now := r.s.now()
	f := &domain.File{
		SyncKey:    domain.NewSyncKey(now),
		ProjectID:  in.ProjectID,
		FolderID:   in.FolderID,
		Name:       in.Name,
		Format:     in.Format,
		SourceLang: in.SourceLang,
		TargetLang: in.TargetLang,
		SyncStatus: domain.SyncStatusLocal,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	err := r.s.write(ctx, func(tx querier) error {
		if _, err := getProject(ctx, r.s, tx, in.ProjectID); err != nil {
			return err
		}

		if err := r.s.checkFileFolder(ctx, tx, in.ProjectID, in.FolderID); err != nil {
			return err
		}

		if err := r.s.checkFileName(ctx, tx, in.ProjectID, in.FolderID, in.Name, 0); err != nil {
			return err
		}

		id, err := r.s.insertFile(ctx, tx, f)
		f.ID = id

		return err
	})
	if err != nil {
		return nil, translate(domain.EntityFile, err)
	}

	return f, nil
}

func (s *Store) insertFile(ctx context.Context, tx querier, f *domain.File) (int64, error) {
	return insert(ctx, tx, s.sq.Insert(tableFiles).
		Columns("sync_key", "project_id", "folder_id", "name", "format", "source_lang", "target_lang",
			"row_count", "sync_status", "created_at", "updated_at").
		Values(f.SyncKey, f.ProjectID, nullInt(f.FolderID), f.Name, f.Format, f.SourceLang, f.TargetLang,
			f.RowCount, string(f.SyncStatus), nanos(f.CreatedAt), nanos(f.UpdatedAt)))
}

// saveFile 写回可编辑字段，row_count 只通过增量维护.
func (s *Store) saveFile(ctx context.Context, tx querier, f *domain.File) error {
	_, err := exec(ctx, tx, s.sq.Update(tableFiles).SetMap(map[string]any{
		"project_id":  f.ProjectID,
		"folder_id":   nullInt(f.FolderID),
		"name":        f.Name,
		"format":      f.Format,
		"source_lang": f.SourceLang,
		"target_lang": f.TargetLang,
		"sync_status": string(f.SyncStatus),
		"updated_at":  nanos(f.UpdatedAt),
	}).Where(sq.Eq{"id": f.ID}))

	return err
}

func (r *fileRepo) Update(ctx context.Context, id int64, patch domain.FilePatch) (*domain.File, error) {
	if err := domain.Validate(domain.EntityFile, patch); err != nil {
		return nil, err
	}

	var out *domain.File

	err := r.s.write(ctx, func(tx querier) error {
		f, err := r.s.writableFile(ctx, tx, id)
		if err != nil {
			return err
		}

		switch {
		case patch.MoveToRoot:
			f.FolderID = nil
		case patch.FolderID != nil:
			if err := r.s.checkFileFolder(ctx, tx, f.ProjectID, patch.FolderID); err != nil {
				return err
			}

			f.FolderID = patch.FolderID
		}

		if patch.Name != nil {
			f.Name = *patch.Name
		}

		if patch.Format != nil {
			f.Format = *patch.Format
		}

		if patch.SourceLang != nil {
			f.SourceLang = *patch.SourceLang
		}

		if patch.TargetLang != nil {
			f.TargetLang = *patch.TargetLang
		}

		if err := r.s.checkFileName(ctx, tx, f.ProjectID, f.FolderID, f.Name, id); err != nil {
			return err
		}

		if f.SyncStatus == domain.SyncStatusSynced {
			f.SyncStatus = domain.SyncStatusModified
		}

		f.UpdatedAt = r.s.now()
		out = f

		return r.s.saveFile(ctx, tx, f)
	})
	if err != nil {
		return nil, translate(domain.EntityFile, err)
	}

	return out, nil
}

// Delete 将文件与行写入回收站，QA 结果随文件删除.
func (r *fileRepo) Delete(ctx context.Context, id int64) error {
	now := r.s.now()
	actor := session.Actor(ctx)

	err := r.s.write(ctx, func(tx querier) error {
		f, err := r.s.writableFile(ctx, tx, id)
		if err != nil {
			return err
		}

		snap := &domain.Snapshot{}
		if snap.Files, err = r.s.fileSnapshots(ctx, tx, []domain.File{*f}); err != nil {
			return err
		}

		if err := r.s.putTrash(ctx, tx, domain.EntityFile, f.SyncKey, f.Name, &f.ProjectID, actor, now, snap); err != nil {
			return err
		}

		return r.s.removeFiles(ctx, tx, []int64{id})
	})

	return translate(domain.EntityFile, err)
}

func (r *fileRepo) GetBySyncKey(ctx context.Context, key string) (*domain.File, error) {
	return one(ctx, r.s.db, selectFiles(r.s).Where(sq.Eq{"sync_key": key}), scanFile, domain.EntityFile, key)
}

// Upsert 插入时 row_count 从 0 开始，更新时保留同步状态与行数.
func (r *fileRepo) Upsert(ctx context.Context, f domain.File) (*domain.File, error) {
	if f.SyncKey == "" {
		return nil, domain.Invalidf(domain.EntityFile, "sync key is required")
	}

	now := r.s.now()

	var out *domain.File

	err := r.s.write(ctx, func(tx querier) error {
		if _, err := getProject(ctx, r.s, tx, f.ProjectID); err != nil {
			return err
		}

		if err := r.s.checkFileFolder(ctx, tx, f.ProjectID, f.FolderID); err != nil {
			return err
		}

		cur, err := one(ctx, tx, selectFiles(r.s).Where(sq.Eq{"sync_key": f.SyncKey}), scanFile, domain.EntityFile, f.SyncKey)
		if err != nil && domain.KindOf(err) != domain.KindNotFound {
			return err
		}

		next := &domain.File{
			SyncKey:    f.SyncKey,
			ProjectID:  f.ProjectID,
			FolderID:   f.FolderID,
			Name:       f.Name,
			Format:     f.Format,
			SourceLang: f.SourceLang,
			TargetLang: f.TargetLang,
			SyncStatus: f.SyncStatus,
			CreatedAt:  orNow(f.CreatedAt, now),
			UpdatedAt:  orNow(f.UpdatedAt, now),
		}
		out = next

		if cur == nil {
			if next.SyncStatus == "" {
				next.SyncStatus = domain.SyncStatusLocal
			}

			next.ID, err = r.s.insertFile(ctx, tx, next)

			return err
		}

		next.ID, next.CreatedAt = cur.ID, cur.CreatedAt
		next.SyncStatus, next.RowCount = cur.SyncStatus, cur.RowCount

		return r.s.saveFile(ctx, tx, next)
	})
	if err != nil {
		return nil, translate(domain.EntityFile, err)
	}

	return out, nil
}

func (r *fileRepo) SetSyncStatus(ctx context.Context, id int64, status domain.SyncStatus) error {
	if !validSyncStatus(status) {
		return domain.Invalidf(domain.EntityFile, "unknown sync status %q", status)
	}

	err := r.s.write(ctx, func(tx querier) error {
		n, err := affected(ctx, tx, r.s.sq.Update(tableFiles).Set("sync_status", string(status)).Where(sq.Eq{"id": id}))
		if err != nil {
			return err
		}

		if n == 0 {
			return domain.NotFound(domain.EntityFile, id)
		}

		return nil
	})

	return translate(domain.EntityFile, err)
}

func (r *fileRepo) Relocate(ctx context.Context, id, projectID int64, folderID *int64) (*domain.File, error) {
	var out *domain.File

	err := r.s.write(ctx, func(tx querier) error {
		f, err := getFile(ctx, r.s, tx, id)
		if err != nil {
			return err
		}

		if _, err := getProject(ctx, r.s, tx, projectID); err != nil {
			return err
		}

		if err := r.s.checkFileFolder(ctx, tx, projectID, folderID); err != nil {
			return err
		}

		f.ProjectID = projectID
		f.FolderID = folderID
		f.UpdatedAt = r.s.now()
		out = f

		return r.s.saveFile(ctx, tx, f)
	})
	if err != nil {
		return nil, translate(domain.EntityFile, err)
	}

	return out, nil
}

func validSyncStatus(s domain.SyncStatus) bool {
	switch s {
	case domain.SyncStatusLocal, domain.SyncStatusSynced, domain.SyncStatusModified, domain.SyncStatusOrphaned:
		return true
	default:
		return false
	}
}

// writableFile 读取文件，orphaned 文件返回 InvalidTransition.
func (s *Store) writableFile(ctx context.Context, tx querier, id int64) (*domain.File, error) {
	f, err := getFile(ctx, s, tx, id)
	if err != nil {
		return nil, err
	}

	if f.SyncStatus == domain.SyncStatusOrphaned {
		return nil, domain.InvalidTransition(domain.EntityFile, "file %d is orphaned; reassign or convert it to local-only first", id)
	}

	return f, nil
}

// markModified 行变更后把 synced 文件标记为 modified.
func (s *Store) markModified(ctx context.Context, tx querier, fileID int64) error {
	_, err := exec(ctx, tx, s.sq.Update(tableFiles).
		Set("sync_status", string(domain.SyncStatusModified)).
		Where(sq.Eq{"id": fileID, "sync_status": string(domain.SyncStatusSynced)}))

	return err
}

func (s *Store) addRowCount(ctx context.Context, tx querier, fileID int64, n int) error {
	_, err := exec(ctx, tx, s.sq.Update(tableFiles).
		Set("row_count", sq.Expr("row_count + ?", n)).
		Where(sq.Eq{"id": fileID}))

	return err
}

func (s *Store) checkFileFolder(ctx context.Context, tx querier, projectID int64, folderID *int64) error {
	if folderID == nil {
		return nil
	}

	f, err := getFolder(ctx, s, tx, *folderID)
	if err != nil {
		return err
	}

	if f.ProjectID != projectID {
		return domain.Invalidf(domain.EntityFile, "folder %d belongs to another project", *folderID)
	}

	return nil
}

// checkFileName 同一目录下文件名唯一.
func (s *Store) checkFileName(ctx context.Context, tx querier, projectID int64, folderID *int64, name string, selfID int64) error {
	ok, err := exists(ctx, tx, tableFiles, sq.And{
		sq.Eq{"project_id": projectID, "name": name},
		sq.NotEq{"id": selfID},
		eqOrNull("folder_id", folderID),
	})
	if err != nil {
		return err
	}

	if ok {
		return domain.Conflict(domain.EntityFile, "file "+name+" already exists")
	}

	return nil
}

// fileSnapshots 读取文件及其按 row_num 排序的行.
func (s *Store) fileSnapshots(ctx context.Context, tx querier, files []domain.File) ([]domain.FileSnapshot, error) {
	out := make([]domain.FileSnapshot, 0, len(files))

	for _, f := range files {
		rows, err := all(ctx, tx, selectRows(s).Where(sq.Eq{"file_id": f.ID}).OrderBy("row_num", "id"), scanRow)
		if err != nil {
			return nil, err
		}

		out = append(out, domain.FileSnapshot{File: f, Rows: rows})
	}

	return out, nil
}

// removeFiles 删除文件及其行与 QA 结果.
func (s *Store) removeFiles(ctx context.Context, tx querier, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}

	if _, err := exec(ctx, tx, s.sq.Delete(tableQAResults).Where(sq.Eq{"file_id": ids})); err != nil {
		return err
	}

	if _, err := exec(ctx, tx, s.sq.Delete(tableRows).Where(sq.Eq{"file_id": ids})); err != nil {
		return err
	}

	_, err := exec(ctx, tx, s.sq.Delete(tableFiles).Where(sq.Eq{"id": ids}))

	return err
}

func fileIDs(fs []domain.File) []int64 {
	out := make([]int64, 0, len(fs))
	for _, f := range fs {
		out = append(out, f.ID)
	}

	return out
}

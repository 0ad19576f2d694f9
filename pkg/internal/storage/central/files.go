package central

import (
	"context"

	"gorm.io/gorm"

	"github.com/yeisme/tmvault/pkg/internal/domain"
	"github.com/yeisme/tmvault/pkg/internal/model"
	"github.com/yeisme/tmvault/pkg/internal/session"
)

type fileRepo struct {
	s       *Store
	session string
}

func (r *fileRepo) Get(ctx context.Context, id int64) (*domain.File, error) {
	m, err := first[model.File](r.s.conn(ctx), domain.EntityFile, id)
	if err != nil {
		return nil, err
	}

	return toFile(m), nil
}

func (r *fileRepo) GetAll(ctx context.Context, filter domain.FileFilter) ([]domain.File, error) {
	q := r.s.conn(ctx).Model(&model.File{})
	if filter.ProjectID != nil {
		q = q.Where("project_id = ?", *filter.ProjectID)
	}

	switch {
	case filter.RootOnly:
		q = q.Where("folder_id IS NULL")
	case filter.FolderID != nil:
		q = q.Where("folder_id = ?", *filter.FolderID)
	}

	if filter.SyncStatus != "" {
		q = q.Where("sync_status = ?", string(filter.SyncStatus))
	}

	var ms []model.File
	if err := q.Order("id").Find(&ms).Error; err != nil {
		return nil, translate(domain.EntityFile, err)
	}

	return mapSlice(ms, toFile), nil
}

func (r *fileRepo) Create(ctx context.Context, in domain.FileInput) (*domain.File, error) {
	if err := domain.Validate(domain.EntityFile, in); err != nil {
		return nil, err
	}

	now := r.s.now()
	m := &model.File{
		SyncKey:    domain.NewSyncKey(now),
		ProjectID:  in.ProjectID,
		FolderID:   in.FolderID,
		Name:       in.Name,
		Format:     in.Format,
		SourceLang: in.SourceLang,
		TargetLang: in.TargetLang,
		SyncStatus: string(domain.SyncStatusLocal),
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	err := r.s.conn(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := first[model.Project](tx, domain.EntityProject, in.ProjectID); err != nil {
			return err
		}

		if err := checkFileFolder(tx, in.ProjectID, in.FolderID); err != nil {
			return err
		}

		if err := checkFileName(tx, in.ProjectID, in.FolderID, in.Name, 0); err != nil {
			return err
		}

		return tx.Create(m).Error
	})
	if err != nil {
		return nil, translate(domain.EntityFile, err)
	}

	return toFile(m), nil
}

func (r *fileRepo) Update(ctx context.Context, id int64, patch domain.FilePatch) (*domain.File, error) {
	if err := domain.Validate(domain.EntityFile, patch); err != nil {
		return nil, err
	}

	if err := r.s.checkLock(ctx, r.session, domain.FileRef(id)); err != nil {
		return nil, err
	}

	var out *model.File

	err := r.s.conn(ctx).Transaction(func(tx *gorm.DB) error {
		m, err := writableFile(tx, id)
		if err != nil {
			return err
		}

		switch {
		case patch.MoveToRoot:
			m.FolderID = nil
		case patch.FolderID != nil:
			if err := checkFileFolder(tx, m.ProjectID, patch.FolderID); err != nil {
				return err
			}

			m.FolderID = patch.FolderID
		}

		if patch.Name != nil {
			m.Name = *patch.Name
		}

		if patch.Format != nil {
			m.Format = *patch.Format
		}

		if patch.SourceLang != nil {
			m.SourceLang = *patch.SourceLang
		}

		if patch.TargetLang != nil {
			m.TargetLang = *patch.TargetLang
		}

		if err := checkFileName(tx, m.ProjectID, m.FolderID, m.Name, id); err != nil {
			return err
		}

		if m.SyncStatus == string(domain.SyncStatusSynced) {
			m.SyncStatus = string(domain.SyncStatusModified)
		}

		m.UpdatedAt = r.s.now()
		out = m

		return tx.Save(m).Error
	})
	if err != nil {
		return nil, translate(domain.EntityFile, err)
	}

	return toFile(out), nil
}

// Delete 将文件与行写入回收站，QA 结果随文件删除.
func (r *fileRepo) Delete(ctx context.Context, id int64) error {
	if err := r.s.checkLock(ctx, r.session, domain.FileRef(id)); err != nil {
		return err
	}

	now := r.s.now()
	actor := session.Actor(ctx)

	err := r.s.conn(ctx).Transaction(func(tx *gorm.DB) error {
		m, err := writableFile(tx, id)
		if err != nil {
			return err
		}

		snap := &domain.Snapshot{}
		if snap.Files, err = fileSnapshots(tx, []model.File{*m}); err != nil {
			return err
		}

		if err := r.s.putTrash(tx, domain.EntityFile, m.SyncKey, m.Name, &m.ProjectID, actor, now, snap); err != nil {
			return err
		}

		return removeFiles(tx, []int64{id})
	})

	return translate(domain.EntityFile, err)
}

func (r *fileRepo) GetBySyncKey(ctx context.Context, key string) (*domain.File, error) {
	m, err := firstWhere[model.File](r.s.conn(ctx), domain.EntityFile, key, "sync_key = ?", key)
	if err != nil {
		return nil, err
	}

	return toFile(m), nil
}

// Upsert 插入时 row_count 从 0 开始，更新时保留同步状态与行数.
func (r *fileRepo) Upsert(ctx context.Context, f domain.File) (*domain.File, error) {
	if f.SyncKey == "" {
		return nil, domain.Invalidf(domain.EntityFile, "sync key is required")
	}

	now := r.s.now()

	var out *model.File

	err := r.s.conn(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := first[model.Project](tx, domain.EntityProject, f.ProjectID); err != nil {
			return err
		}

		if err := checkFileFolder(tx, f.ProjectID, f.FolderID); err != nil {
			return err
		}

		m, err := firstWhere[model.File](tx, domain.EntityFile, f.SyncKey, "sync_key = ?", f.SyncKey)
		if err != nil && domain.KindOf(err) != domain.KindNotFound {
			return err
		}

		if m == nil {
			status := f.SyncStatus
			if status == "" {
				status = domain.SyncStatusLocal
			}

			m = &model.File{SyncKey: f.SyncKey, SyncStatus: string(status), CreatedAt: orNow(f.CreatedAt, now)}
		}

		m.ProjectID = f.ProjectID
		m.FolderID = f.FolderID
		m.Name = f.Name
		m.Format = f.Format
		m.SourceLang = f.SourceLang
		m.TargetLang = f.TargetLang
		m.UpdatedAt = orNow(f.UpdatedAt, now)
		out = m

		return tx.Save(m).Error
	})
	if err != nil {
		return nil, translate(domain.EntityFile, err)
	}

	return toFile(out), nil
}

func (r *fileRepo) SetSyncStatus(ctx context.Context, id int64, status domain.SyncStatus) error {
	if !validSyncStatus(status) {
		return domain.Invalidf(domain.EntityFile, "unknown sync status %q", status)
	}

	res := r.s.conn(ctx).Model(&model.File{}).Where("id = ?", id).Update("sync_status", string(status))
	if res.Error != nil {
		return translate(domain.EntityFile, res.Error)
	}

	if res.RowsAffected == 0 {
		return domain.NotFound(domain.EntityFile, id)
	}

	return nil
}

func (r *fileRepo) Relocate(ctx context.Context, id, projectID int64, folderID *int64) (*domain.File, error) {
	if err := r.s.checkLock(ctx, r.session, domain.FileRef(id)); err != nil {
		return nil, err
	}

	var out *model.File

	err := r.s.conn(ctx).Transaction(func(tx *gorm.DB) error {
		m, err := first[model.File](tx, domain.EntityFile, id)
		if err != nil {
			return err
		}

		if _, err := first[model.Project](tx, domain.EntityProject, projectID); err != nil {
			return err
		}

		if err := checkFileFolder(tx, projectID, folderID); err != nil {
			return err
		}

		m.ProjectID = projectID
		m.FolderID = folderID
		m.UpdatedAt = r.s.now()
		out = m

		return tx.Save(m).Error
	})
	if err != nil {
		return nil, translate(domain.EntityFile, err)
	}

	return toFile(out), nil
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
func writableFile(tx *gorm.DB, id int64) (*model.File, error) {
	m, err := first[model.File](tx, domain.EntityFile, id)
	if err != nil {
		return nil, err
	}

	if m.SyncStatus == string(domain.SyncStatusOrphaned) {
		return nil, domain.InvalidTransition(domain.EntityFile, "file %d is orphaned; reassign or convert it to local-only first", id)
	}

	return m, nil
}

// markModified 行变更后把 synced 文件标记为 modified.
func markModified(tx *gorm.DB, fileID int64) error {
	return tx.Model(&model.File{}).
		Where("id = ? AND sync_status = ?", fileID, string(domain.SyncStatusSynced)).
		Update("sync_status", string(domain.SyncStatusModified)).Error
}

func checkFileFolder(tx *gorm.DB, projectID int64, folderID *int64) error {
	if folderID == nil {
		return nil
	}

	f, err := first[model.Folder](tx, domain.EntityFolder, *folderID)
	if err != nil {
		return err
	}

	if f.ProjectID != projectID {
		return domain.Invalidf(domain.EntityFile, "folder %d belongs to another project", *folderID)
	}

	return nil
}

// checkFileName 同一目录下文件名唯一.
func checkFileName(tx *gorm.DB, projectID int64, folderID *int64, name string, selfID int64) error {
	q := tx.Model(&model.File{}).Where("project_id = ? AND name = ? AND id <> ?", projectID, name, selfID)
	if folderID == nil {
		q = q.Where("folder_id IS NULL")
	} else {
		q = q.Where("folder_id = ?", *folderID)
	}

	var n int64
	if err := q.Count(&n).Error; err != nil {
		return err
	}

	if n > 0 {
		return domain.Conflict(domain.EntityFile, "file "+name+" already exists")
	}

	return nil
}

// fileSnapshots 读取文件及其按 row_num 排序的行.
func fileSnapshots(tx *gorm.DB, files []model.File) ([]domain.FileSnapshot, error) {
	out := make([]domain.FileSnapshot, 0, len(files))

	for i := range files {
		var rows []model.Row
		if err := tx.Where("file_id = ?", files[i].ID).Order("row_num, id").Find(&rows).Error; err != nil {
			return nil, err
		}

		out = append(out, domain.FileSnapshot{File: *toFile(&files[i]), Rows: mapSlice(rows, toRow)})
	}

	return out, nil
}

// removeFiles 删除文件及其行与 QA 结果.
func removeFiles(tx *gorm.DB, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}

	if err := tx.Where("file_id IN ?", ids).Delete(&model.QAResult{}).Error; err != nil {
		return err
	}

	if err := tx.Where("file_id IN ?", ids).Delete(&model.Row{}).Error; err != nil {
		return err
	}

	return tx.Where("id IN ?", ids).Delete(&model.File{}).Error
}

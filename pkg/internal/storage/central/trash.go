package central

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"gorm.io/gorm"

	"github.com/yeisme/tmvault/pkg/internal/domain"
	"github.com/yeisme/tmvault/pkg/internal/model"
)

type trashRepo struct {
	s *Store
}

// putTrash 在当前事务中写入一条回收站记录.
func (s *Store) putTrash(tx *gorm.DB, entityType, key, name string, projectID *int64, actor string, now time.Time, snap *domain.Snapshot) error {
	data, err := sonic.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode trash snapshot: %w", err)
	}

	return tx.Create(&model.TrashItem{
		EntityType:    entityType,
		EntitySyncKey: key,
		Name:          name,
		ProjectID:     projectID,
		DeletedBy:     actor,
		DeletedAt:     now,
		ExpiresAt:     now.Add(s.retention),
		SyncKeys:      " " + strings.Join(snap.SyncKeys(), " ") + " ",
		Snapshot:      data,
	}).Error
}

func (r *trashRepo) Get(ctx context.Context, id int64) (*domain.TrashItem, error) {
	m, err := first[model.TrashItem](r.s.conn(ctx), domain.EntityTrash, id)
	if err != nil {
		return nil, err
	}

	return toTrashItem(m), nil
}

func (r *trashRepo) GetAll(ctx context.Context, filter domain.TrashFilter) ([]domain.TrashItem, error) {
	q := r.s.conn(ctx).Model(&model.TrashItem{})
	if filter.EntityType != "" {
		q = q.Where("entity_type = ?", filter.EntityType)
	}

	if filter.DeletedBy != "" {
		q = q.Where("deleted_by = ?", filter.DeletedBy)
	}

	if filter.ExpiresBy != nil {
		q = q.Where("expires_at <= ?", filter.ExpiresBy.UTC())
	}

	var ms []model.TrashItem
	if err := q.Order("id").Find(&ms).Error; err != nil {
		return nil, translate(domain.EntityTrash, err)
	}

	return mapSlice(ms, toTrashItem), nil
}

// Restore 以新 id 重建快照；原 sync key 已存在时返回 Conflict.
func (r *trashRepo) Restore(ctx context.Context, id int64) (*domain.TrashItem, error) {
	var out *model.TrashItem

	err := r.s.conn(ctx).Transaction(func(tx *gorm.DB) error {
		item, err := first[model.TrashItem](tx, domain.EntityTrash, id)
		if err != nil {
			return err
		}

		var snap domain.Snapshot
		if err := sonic.Unmarshal(item.Snapshot, &snap); err != nil {
			return domain.Internal(domain.EntityTrash, fmt.Errorf("decode snapshot %d: %w", id, err))
		}

		rs := &restorer{tx: tx, s: r.s, folders: map[int64]int64{}}
		if err := rs.restore(item.EntityType, &snap); err != nil {
			return err
		}

		out = item

		return tx.Delete(&model.TrashItem{}, id).Error
	})
	if err != nil {
		return nil, translate(domain.EntityTrash, err)
	}

	return toTrashItem(out), nil
}

func (r *trashRepo) Purge(ctx context.Context, id int64) error {
	res := r.s.conn(ctx).Delete(&model.TrashItem{}, id)
	if res.Error != nil {
		return translate(domain.EntityTrash, res.Error)
	}

	if res.RowsAffected == 0 {
		return domain.NotFound(domain.EntityTrash, id)
	}

	return nil
}

func (r *trashRepo) PurgeExpired(ctx context.Context, now time.Time) (int, error) {
	res := r.s.conn(ctx).Where("expires_at <= ?", now.UTC()).Delete(&model.TrashItem{})
	if res.Error != nil {
		return 0, translate(domain.EntityTrash, res.Error)
	}

	return int(res.RowsAffected), nil
}

func (r *trashRepo) ContainsSyncKey(ctx context.Context, key string) (bool, error) {
	if key == "" {
		return false, nil
	}

	ok, err := exists[model.TrashItem](r.s.conn(ctx), "sync_keys LIKE ?", "% "+key+" %")
	if err != nil {
		return false, translate(domain.EntityTrash, err)
	}

	return ok, nil
}

// restorer 在一个事务内按父在前的顺序重建快照，并记录旧 id 到新 id 的映射.
type restorer struct {
	tx      *gorm.DB
	s       *Store
	folders map[int64]int64
}

func (rs *restorer) restore(entityType string, snap *domain.Snapshot) error {
	switch entityType {
	case domain.EntityProject:
		if snap.Project == nil {
			return domain.Internal(domain.EntityTrash, fmt.Errorf("project snapshot is empty"))
		}

		projectID, err := rs.project(snap.Project)
		if err != nil {
			return err
		}

		return rs.tree(projectID, snap)
	case domain.EntityFolder, domain.EntityFile:
		projectID := snapshotProject(snap)
		if _, err := first[model.Project](rs.tx, domain.EntityProject, projectID); err != nil {
			return err
		}

		return rs.tree(projectID, snap)
	case domain.EntityTM:
		if snap.TM == nil {
			return domain.Internal(domain.EntityTrash, fmt.Errorf("tm snapshot is empty"))
		}

		return rs.tm(snap.TM)
	default:
		return domain.Invalidf(domain.EntityTrash, "unknown trash entity type %q", entityType)
	}
}

func snapshotProject(snap *domain.Snapshot) int64 {
	if len(snap.Folders) > 0 {
		return snap.Folders[0].ProjectID
	}

	if len(snap.Files) > 0 {
		return snap.Files[0].File.ProjectID
	}

	return 0
}

func (rs *restorer) ensureFree(entity string, key string, probe any) error {
	var n int64
	if err := rs.tx.Model(probe).Where("sync_key = ?", key).Count(&n).Error; err != nil {
		return err
	}

	if n > 0 {
		return domain.Conflict(entity, "sync key "+key+" already exists")
	}

	return nil
}

// project 恢复项目；原平台已删除时进入 Unassigned 池.
func (rs *restorer) project(p *domain.Project) (int64, error) {
	if err := rs.ensureFree(domain.EntityProject, p.SyncKey, &model.Project{}); err != nil {
		return 0, err
	}

	platformID := p.PlatformID
	if platformID != nil {
		ok, err := exists[model.Platform](rs.tx, "id = ?", *platformID)
		if err != nil {
			return 0, err
		}

		if !ok {
			platformID = nil
		}
	}

	m := &model.Project{
		SyncKey:     p.SyncKey,
		PlatformID:  platformID,
		Name:        p.Name,
		Owner:       p.Owner,
		Description: p.Description,
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
	}
	if err := rs.tx.Create(m).Error; err != nil {
		return 0, err
	}

	return m.ID, nil
}

// tree 恢复文件夹与文件；父文件夹不存在时挂到项目根.
func (rs *restorer) tree(projectID int64, snap *domain.Snapshot) error {
	for _, f := range snap.Folders {
		if err := rs.ensureFree(domain.EntityFolder, f.SyncKey, &model.Folder{}); err != nil {
			return err
		}

		parentID, err := rs.folderRef(projectID, f.ParentID)
		if err != nil {
			return err
		}

		m := &model.Folder{
			SyncKey:   f.SyncKey,
			ProjectID: projectID,
			ParentID:  parentID,
			Name:      f.Name,
			CreatedAt: f.CreatedAt,
			UpdatedAt: f.UpdatedAt,
		}
		if err := rs.tx.Create(m).Error; err != nil {
			return err
		}

		rs.folders[f.ID] = m.ID
	}

	for _, fs := range snap.Files {
		if err := rs.file(projectID, &fs); err != nil {
			return err
		}
	}

	return nil
}

// folderRef 把快照中的文件夹 id 映射到当前库：优先使用本次恢复的新 id，其次使用仍存在的原文件夹.
func (rs *restorer) folderRef(projectID int64, old *int64) (*int64, error) {
	if old == nil {
		return nil, nil
	}

	if id, ok := rs.folders[*old]; ok {
		return &id, nil
	}

	ok, err := exists[model.Folder](rs.tx, "id = ? AND project_id = ?", *old, projectID)
	if err != nil {
		return nil, err
	}

	if !ok {
		return nil, nil
	}

	id := *old

	return &id, nil
}

func (rs *restorer) file(projectID int64, fs *domain.FileSnapshot) error {
	f := fs.File
	if err := rs.ensureFree(domain.EntityFile, f.SyncKey, &model.File{}); err != nil {
		return err
	}

	folderID, err := rs.folderRef(projectID, f.FolderID)
	if err != nil {
		return err
	}

	m := &model.File{
		SyncKey:    f.SyncKey,
		ProjectID:  projectID,
		FolderID:   folderID,
		Name:       f.Name,
		Format:     f.Format,
		SourceLang: f.SourceLang,
		TargetLang: f.TargetLang,
		RowCount:   len(fs.Rows),
		SyncStatus: string(f.SyncStatus),
		CreatedAt:  f.CreatedAt,
		UpdatedAt:  f.UpdatedAt,
	}
	if err := rs.tx.Create(m).Error; err != nil {
		return err
	}

	if len(fs.Rows) == 0 {
		return nil
	}

	rows := make([]model.Row, 0, len(fs.Rows))
	for _, row := range fs.Rows {
		rows = append(rows, model.Row{
			SyncKey:   row.SyncKey,
			FileID:    m.ID,
			RowNum:    row.RowNum,
			Source:    row.Source,
			Target:    row.Target,
			StringID:  row.StringID,
			Status:    string(row.Status),
			Memo:      row.Memo,
			CreatedAt: row.CreatedAt,
			UpdatedAt: row.UpdatedAt,
		})
	}

	return rs.tx.CreateInBatches(&rows, 500).Error
}

// tm 恢复 TM 与条目；原作用域不存在时分配回到未分配状态.
func (rs *restorer) tm(snap *domain.TMSnapshot) error {
	t := snap.TM
	if err := rs.ensureFree(domain.EntityTM, t.SyncKey, &model.TranslationMemory{}); err != nil {
		return err
	}

	m := &model.TranslationMemory{
		SyncKey:     t.SyncKey,
		Name:        t.Name,
		SourceLang:  t.SourceLang,
		TargetLang:  t.TargetLang,
		Owner:       t.Owner,
		Description: t.Description,
		EntryCount:  len(snap.Entries),
		CreatedAt:   t.CreatedAt,
		UpdatedAt:   t.UpdatedAt,
	}
	if err := rs.tx.Create(m).Error; err != nil {
		return err
	}

	if len(snap.Entries) > 0 {
		entries := make([]model.TMEntry, 0, len(snap.Entries))
		for _, e := range snap.Entries {
			entries = append(entries, model.TMEntry{
				SyncKey:   e.SyncKey,
				TMID:      m.ID,
				Source:    e.Source,
				Target:    e.Target,
				CreatedAt: e.CreatedAt,
			})
		}

		if err := rs.tx.CreateInBatches(&entries, 500).Error; err != nil {
			return err
		}
	}

	if snap.Assignment == nil {
		return nil
	}

	a := &model.TMAssignment{
		TMID:       m.ID,
		AssignedBy: snap.Assignment.AssignedBy,
		AssignedAt: snap.Assignment.AssignedAt,
	}

	scope := snap.Assignment.Scope
	if scope.Count() == 1 {
		if err := scopeExists(rs.tx, scope); err == nil {
			a.PlatformID, a.ProjectID, a.FolderID = scope.PlatformID, scope.ProjectID, scope.FolderID
			a.IsActive = snap.Assignment.IsActive && rs.underCap(scope)
		} else if domain.KindOf(err) != domain.KindNotFound {
			return err
		}
	}

	return rs.tx.Create(a).Error
}

func (rs *restorer) underCap(scope domain.Scope) bool {
	if rs.s.maxActive <= 0 {
		return true
	}

	col, id := scopeColumn(scope)

	var n int64
	if err := rs.tx.Model(&model.TMAssignment{}).Where(col+" = ? AND is_active = ?", id, true).Count(&n).Error; err != nil {
		return false
	}

	return int(n) < rs.s.maxActive
}

package local

import (
	"context"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/bytedance/sonic"

	"github.com/yeisme/tmvault/pkg/internal/domain"
)

type trashRepo struct {
	s *Store
}

func selectTrash(s *Store) sq.SelectBuilder {
	return s.sq.Select(trashCols...).From(tableTrash)
}

// putTrash 在当前事务中写入一条回收站记录.
func (s *Store) putTrash(ctx context.Context, tx querier, entityType, key, name string, projectID *int64, actor string, now time.Time, snap *domain.Snapshot) error {
	data, err := sonic.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode trash snapshot: %w", err)
	}

	_, err = exec(ctx, tx, s.sq.Insert(tableTrash).
		Columns("entity_type", "entity_sync_key", "name", "project_id", "deleted_by", "deleted_at", "expires_at", "sync_keys", "snapshot").
		Values(entityType, key, name, nullInt(projectID), actor, nanos(now), nanos(now.Add(s.retention)),
			" "+strings.Join(snap.SyncKeys(), " ")+" ", data))

	return err
}

func (r *trashRepo) Get(ctx context.Context, id int64) (*domain.TrashItem, error) {
	return one(ctx, r.s.db, selectTrash(r.s).Where(sq.Eq{"id": id}), scanTrashItem, domain.EntityTrash, id)
}

func (r *trashRepo) GetAll(ctx context.Context, filter domain.TrashFilter) ([]domain.TrashItem, error) {
	b := selectTrash(r.s)
	if filter.EntityType != "" {
		b = b.Where(sq.Eq{"entity_type": filter.EntityType})
	}

	if filter.DeletedBy != "" {
		b = b.Where(sq.Eq{"deleted_by": filter.DeletedBy})
	}

	if filter.ExpiresBy != nil {
		b = b.Where(sq.LtOrEq{"expires_at": nanos(*filter.ExpiresBy)})
	}

	out, err := all(ctx, r.s.db, b.OrderBy("id"), scanTrashItem)

	return out, translate(domain.EntityTrash, err)
}

// Restore 以新 id 重建快照；原 sync key 已存在时返回 Conflict.
func (r *trashRepo) Restore(ctx context.Context, id int64) (*domain.TrashItem, error) {
	var out *domain.TrashItem

	err := r.s.write(ctx, func(tx querier) error {
		item, err := one(ctx, tx, selectTrash(r.s).Where(sq.Eq{"id": id}), scanTrashItem, domain.EntityTrash, id)
		if err != nil {
			return err
		}

		var snap domain.Snapshot
		if err := sonic.Unmarshal(item.Snapshot, &snap); err != nil {
			return domain.Internal(domain.EntityTrash, fmt.Errorf("decode snapshot %d: %w", id, err))
		}

		rs := &restorer{ctx: ctx, tx: tx, s: r.s, folders: map[int64]int64{}}
		if err := rs.restore(item.EntityType, &snap); err != nil {
			return err
		}

		out = item
		_, err = exec(ctx, tx, r.s.sq.Delete(tableTrash).Where(sq.Eq{"id": id}))

		return err
	})
	if err != nil {
		return nil, translate(domain.EntityTrash, err)
	}

	return out, nil
}

func (r *trashRepo) Purge(ctx context.Context, id int64) error {
	var n int64

	err := r.s.write(ctx, func(tx querier) error {
		var err error
		n, err = affected(ctx, tx, r.s.sq.Delete(tableTrash).Where(sq.Eq{"id": id}))

		return err
	})
	if err != nil {
		return translate(domain.EntityTrash, err)
	}

	if n == 0 {
		return domain.NotFound(domain.EntityTrash, id)
	}

	return nil
}

func (r *trashRepo) PurgeExpired(ctx context.Context, now time.Time) (int, error) {
	var n int64

	err := r.s.write(ctx, func(tx querier) error {
		var err error
		n, err = affected(ctx, tx, r.s.sq.Delete(tableTrash).Where(sq.LtOrEq{"expires_at": nanos(now)}))

		return err
	})
	if err != nil {
		return 0, translate(domain.EntityTrash, err)
	}

	return int(n), nil
}

func (r *trashRepo) ContainsSyncKey(ctx context.Context, key string) (bool, error) {
	if key == "" {
		return false, nil
	}

	ok, err := exists(ctx, r.s.db, tableTrash, sq.Like{"sync_keys": "% " + key + " %"})
	if err != nil {
		return false, translate(domain.EntityTrash, err)
	}

	return ok, nil
}

// restorer 在一个事务内按父在前的顺序重建快照，并记录旧 id 到新 id 的映射.
type restorer struct {
	ctx     context.Context
	tx      querier
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
		if _, err := getProject(rs.ctx, rs.s, rs.tx, projectID); err != nil {
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

func (rs *restorer) ensureFree(entity, table, key string) error {
	taken, err := exists(rs.ctx, rs.tx, table, sq.Eq{"sync_key": key})
	if err != nil {
		return err
	}

	if taken {
		return domain.Conflict(entity, "sync key "+key+" already exists")
	}

	return nil
}

// project 恢复项目；原平台已删除时进入 Unassigned 池.
func (rs *restorer) project(p *domain.Project) (int64, error) {
	if err := rs.ensureFree(domain.EntityProject, tableProjects, p.SyncKey); err != nil {
		return 0, err
	}

	platformID := p.PlatformID
	if platformID != nil {
		ok, err := exists(rs.ctx, rs.tx, tablePlatforms, sq.Eq{"id": *platformID})
		if err != nil {
			return 0, err
		}

		if !ok {
			platformID = nil
		}
	}

	next := &domain.Project{
		SyncKey:     p.SyncKey,
		PlatformID:  platformID,
		Name:        p.Name,
		Owner:       p.Owner,
		Description: p.Description,
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
	}

	return (&projectRepo{s: rs.s}).insert(rs.ctx, rs.tx, next)
}

// tree 恢复文件夹与文件；父文件夹不存在时挂到项目根.
func (rs *restorer) tree(projectID int64, snap *domain.Snapshot) error {
	folders := &folderRepo{s: rs.s}

	for _, f := range snap.Folders {
		if err := rs.ensureFree(domain.EntityFolder, tableFolders, f.SyncKey); err != nil {
			return err
		}

		parentID, err := rs.folderRef(projectID, f.ParentID)
		if err != nil {
			return err
		}

		id, err := folders.insert(rs.ctx, rs.tx, &domain.Folder{
			SyncKey:   f.SyncKey,
			ProjectID: projectID,
			ParentID:  parentID,
			Name:      f.Name,
			CreatedAt: f.CreatedAt,
			UpdatedAt: f.UpdatedAt,
		})
		if err != nil {
			return err
		}

		rs.folders[f.ID] = id
	}

	for i := range snap.Files {
		if err := rs.file(projectID, &snap.Files[i]); err != nil {
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

	ok, err := exists(rs.ctx, rs.tx, tableFolders, sq.Eq{"id": *old, "project_id": projectID})
	if err != nil || !ok {
		return nil, err
	}

	id := *old

	return &id, nil
}

func (rs *restorer) file(projectID int64, fs *domain.FileSnapshot) error {
	f := fs.File
	if err := rs.ensureFree(domain.EntityFile, tableFiles, f.SyncKey); err != nil {
		return err
	}

	folderID, err := rs.folderRef(projectID, f.FolderID)
	if err != nil {
		return err
	}

	fileID, err := rs.s.insertFile(rs.ctx, rs.tx, &domain.File{
		SyncKey:    f.SyncKey,
		ProjectID:  projectID,
		FolderID:   folderID,
		Name:       f.Name,
		Format:     f.Format,
		SourceLang: f.SourceLang,
		TargetLang: f.TargetLang,
		RowCount:   len(fs.Rows),
		SyncStatus: f.SyncStatus,
		CreatedAt:  f.CreatedAt,
		UpdatedAt:  f.UpdatedAt,
	})
	if err != nil {
		return err
	}

	for _, row := range fs.Rows {
		row.ID = 0
		row.FileID = fileID

		if _, err := rs.s.insertRow(rs.ctx, rs.tx, &row); err != nil {
			return err
		}
	}

	return nil
}

// tm 恢复 TM 与条目；原作用域不存在时分配回到未分配状态.
func (rs *restorer) tm(snap *domain.TMSnapshot) error {
	t := snap.TM
	if err := rs.ensureFree(domain.EntityTM, tableTMs, t.SyncKey); err != nil {
		return err
	}

	next := &domain.TranslationMemory{
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

	tmID, err := (&tmRepo{s: rs.s}).insert(rs.ctx, rs.tx, next)
	if err != nil {
		return err
	}

	for _, e := range snap.Entries {
		if _, err := exec(rs.ctx, rs.tx, rs.s.sq.Insert(tableTMEntries).
			Columns("sync_key", "tm_id", "source", "target", "created_at").
			Values(e.SyncKey, tmID, e.Source, e.Target, nanos(e.CreatedAt))); err != nil {
			return err
		}
	}

	if snap.Assignment == nil {
		return nil
	}

	a := &domain.TMAssignment{
		TMID:       tmID,
		AssignedBy: snap.Assignment.AssignedBy,
		AssignedAt: snap.Assignment.AssignedAt,
	}

	scope := snap.Assignment.Scope
	if scope.Count() == 1 {
		if err := rs.s.scopeExists(rs.ctx, rs.tx, scope); err == nil {
			a.Scope = scope
			a.IsActive = snap.Assignment.IsActive && rs.underCap(scope)
		} else if domain.KindOf(err) != domain.KindNotFound {
			return err
		}
	}

	return rs.s.putAssignment(rs.ctx, rs.tx, a)
}

func (rs *restorer) underCap(scope domain.Scope) bool {
	if rs.s.maxActive <= 0 {
		return true
	}

	col, id := scopeColumn(scope)

	n, err := count(rs.ctx, rs.tx, tableAssignments, sq.Eq{col: id, "is_active": true})
	if err != nil {
		return false
	}

	return int(n) < rs.s.maxActive
}

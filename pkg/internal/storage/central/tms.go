package central

import (
	"context"
	"sort"
	"time"

	"gorm.io/gorm"

	"github.com/yeisme/tmvault/pkg/internal/domain"
	"github.com/yeisme/tmvault/pkg/internal/model"
	"github.com/yeisme/tmvault/pkg/internal/session"
)

type tmRepo struct {
	s *Store
}

func (r *tmRepo) Get(ctx context.Context, id int64) (*domain.TranslationMemory, error) {
	m, err := first[model.TranslationMemory](r.s.conn(ctx), domain.EntityTM, id)
	if err != nil {
		return nil, err
	}

	return toTM(m), nil
}

func (r *tmRepo) GetAll(ctx context.Context, filter domain.TMFilter) ([]domain.TranslationMemory, error) {
	q := r.s.conn(ctx).Model(&model.TranslationMemory{})
	if filter.Owner != "" {
		q = q.Where("owner = ?", filter.Owner)
	}

	if filter.SourceLang != "" {
		q = q.Where("source_lang = ?", filter.SourceLang)
	}

	if filter.TargetLang != "" {
		q = q.Where("target_lang = ?", filter.TargetLang)
	}

	if filter.Unassigned {
		assigned := r.s.conn(ctx).Model(&model.TMAssignment{}).Select("tm_id").
			Where("platform_id IS NOT NULL OR project_id IS NOT NULL OR folder_id IS NOT NULL")
		q = q.Where("id NOT IN (?)", assigned)
	}

	var ms []model.TranslationMemory
	if err := q.Order("id").Find(&ms).Error; err != nil {
		return nil, translate(domain.EntityTM, err)
	}

	return mapSlice(ms, toTM), nil
}

func (r *tmRepo) Create(ctx context.Context, in domain.TMInput) (*domain.TranslationMemory, error) {
	if err := domain.Validate(domain.EntityTM, in); err != nil {
		return nil, err
	}

	now := r.s.now()
	m := &model.TranslationMemory{
		SyncKey:     domain.NewSyncKey(now),
		Name:        in.Name,
		SourceLang:  in.SourceLang,
		TargetLang:  in.TargetLang,
		Owner:       in.Owner,
		Description: in.Description,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := r.s.conn(ctx).Create(m).Error; err != nil {
		return nil, translate(domain.EntityTM, err)
	}

	return toTM(m), nil
}

func (r *tmRepo) Update(ctx context.Context, id int64, patch domain.TMPatch) (*domain.TranslationMemory, error) {
	if err := domain.Validate(domain.EntityTM, patch); err != nil {
		return nil, err
	}

	var out *model.TranslationMemory

	err := r.s.conn(ctx).Transaction(func(tx *gorm.DB) error {
		m, err := first[model.TranslationMemory](tx, domain.EntityTM, id)
		if err != nil {
			return err
		}

		if patch.Name != nil {
			m.Name = *patch.Name
		}

		if patch.Description != nil {
			m.Description = *patch.Description
		}

		m.UpdatedAt = r.s.now()
		out = m

		return tx.Save(m).Error
	})
	if err != nil {
		return nil, translate(domain.EntityTM, err)
	}

	return toTM(out), nil
}

// Delete 将 TM、条目与分配写入回收站.
func (r *tmRepo) Delete(ctx context.Context, id int64) error {
	now := r.s.now()
	actor := session.Actor(ctx)

	err := r.s.conn(ctx).Transaction(func(tx *gorm.DB) error {
		m, err := first[model.TranslationMemory](tx, domain.EntityTM, id)
		if err != nil {
			return err
		}

		var entries []model.TMEntry
		if err := tx.Where("tm_id = ?", id).Order("id").Find(&entries).Error; err != nil {
			return err
		}

		snap := &domain.Snapshot{TM: &domain.TMSnapshot{TM: *toTM(m), Entries: mapSlice(entries, toTMEntry)}}

		a, err := findAssignment(tx, id)
		if err != nil {
			return err
		}

		if a != nil {
			snap.TM.Assignment = toAssignment(a)
		}

		if err := r.s.putTrash(tx, domain.EntityTM, m.SyncKey, m.Name, nil, actor, now, snap); err != nil {
			return err
		}

		if err := tx.Where("tm_id = ?", id).Delete(&model.TMEntry{}).Error; err != nil {
			return err
		}

		if err := tx.Where("tm_id = ?", id).Delete(&model.TMAssignment{}).Error; err != nil {
			return err
		}

		return tx.Delete(&model.TranslationMemory{}, id).Error
	})

	return translate(domain.EntityTM, err)
}

func (r *tmRepo) AddEntries(ctx context.Context, tmID int64, in []domain.TMEntryInput) ([]domain.TMEntry, error) {
	for i := range in {
		if err := domain.Validate(domain.EntityTMEntry, in[i]); err != nil {
			return nil, err
		}
	}

	now := r.s.now()
	ms := make([]model.TMEntry, 0, len(in))

	for _, e := range in {
		ms = append(ms, model.TMEntry{
			SyncKey:   domain.NewSyncKey(now),
			TMID:      tmID,
			Source:    e.Source,
			Target:    e.Target,
			CreatedAt: now,
		})
	}

	err := r.s.conn(ctx).Transaction(func(tx *gorm.DB) error {
		return insertEntries(tx, tmID, ms, now)
	})
	if err != nil {
		return nil, translate(domain.EntityTMEntry, err)
	}

	return mapSlice(ms, toTMEntry), nil
}

func (r *tmRepo) Entries(ctx context.Context, tmID int64) ([]domain.TMEntry, error) {
	db := r.s.conn(ctx)
	if _, err := first[model.TranslationMemory](db, domain.EntityTM, tmID); err != nil {
		return nil, err
	}

	var ms []model.TMEntry
	if err := db.Where("tm_id = ?", tmID).Order("id").Find(&ms).Error; err != nil {
		return nil, translate(domain.EntityTMEntry, err)
	}

	return mapSlice(ms, toTMEntry), nil
}

func (r *tmRepo) SearchEntries(ctx context.Context, tmIDs []int64, source string) ([]domain.TMEntry, error) {
	if len(tmIDs) == 0 {
		return []domain.TMEntry{}, nil
	}

	var ms []model.TMEntry
	if err := r.s.conn(ctx).Where("tm_id IN ? AND source = ?", tmIDs, source).Order("id").Find(&ms).Error; err != nil {
		return nil, translate(domain.EntityTMEntry, err)
	}

	out := mapSlice(ms, toTMEntry)
	sortByTMOrder(out, tmIDs)

	return out, nil
}

func (r *tmRepo) RegisterFromFile(ctx context.Context, fileID int64, in domain.RegisterTMInput) (*domain.TranslationMemory, error) {
	if err := domain.Validate(domain.EntityTM, in); err != nil {
		return nil, err
	}

	now := r.s.now()

	var out *model.TranslationMemory

	err := r.s.conn(ctx).Transaction(func(tx *gorm.DB) error {
		f, err := first[model.File](tx, domain.EntityFile, fileID)
		if err != nil {
			return err
		}

		if f.SourceLang == "" || f.TargetLang == "" {
			return domain.Invalidf(domain.EntityTM, "file %d has no source/target language", fileID)
		}

		m := &model.TranslationMemory{
			SyncKey:     domain.NewSyncKey(now),
			Name:        in.Name,
			SourceLang:  f.SourceLang,
			TargetLang:  f.TargetLang,
			Owner:       in.Owner,
			Description: in.Description,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := tx.Create(m).Error; err != nil {
			return err
		}

		var rows []model.Row
		if err := tx.Where("file_id = ? AND target <> ''", fileID).Order("row_num, id").Find(&rows).Error; err != nil {
			return err
		}

		entries := make([]model.TMEntry, 0, len(rows))
		for _, row := range rows {
			entries = append(entries, model.TMEntry{
				SyncKey:   domain.NewSyncKey(now),
				TMID:      m.ID,
				Source:    row.Source,
				Target:    row.Target,
				CreatedAt: now,
			})
		}

		if err := insertEntries(tx, m.ID, entries, now); err != nil {
			return err
		}

		m.EntryCount = len(entries)
		out = m

		return nil
	})
	if err != nil {
		return nil, translate(domain.EntityTM, err)
	}

	return toTM(out), nil
}

func (r *tmRepo) Assign(ctx context.Context, tmID int64, scope domain.Scope, by string) (*domain.TMAssignment, error) {
	switch scope.Count() {
	case 0:
		return nil, domain.Invalidf(domain.EntityTMAssignment, "scope has no target; use Unassign")
	case 1:
	default:
		return nil, domain.ScopeConflict("a TM can be assigned to exactly one scope")
	}

	var out *model.TMAssignment

	err := r.s.conn(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := first[model.TranslationMemory](tx, domain.EntityTM, tmID); err != nil {
			return err
		}

		if err := scopeExists(tx, scope); err != nil {
			return err
		}

		a, err := findAssignment(tx, tmID)
		if err != nil {
			return err
		}

		if a == nil {
			a = &model.TMAssignment{TMID: tmID}
		}

		a.PlatformID = scope.PlatformID
		a.ProjectID = scope.ProjectID
		a.FolderID = scope.FolderID
		a.IsActive = false
		a.AssignedBy = by
		a.AssignedAt = r.s.now()
		out = a

		return tx.Save(a).Error
	})
	if err != nil {
		return nil, translate(domain.EntityTMAssignment, err)
	}

	return toAssignment(out), nil
}

func (r *tmRepo) Unassign(ctx context.Context, tmID int64) (*domain.TMAssignment, error) {
	var out *model.TMAssignment

	err := r.s.conn(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := first[model.TranslationMemory](tx, domain.EntityTM, tmID); err != nil {
			return err
		}

		a, err := findAssignment(tx, tmID)
		if err != nil {
			return err
		}

		if a == nil {
			a = &model.TMAssignment{TMID: tmID, AssignedAt: r.s.now()}
		}

		a.PlatformID, a.ProjectID, a.FolderID = nil, nil, nil
		a.IsActive = false
		out = a

		return tx.Save(a).Error
	})
	if err != nil {
		return nil, translate(domain.EntityTMAssignment, err)
	}

	return toAssignment(out), nil
}

func (r *tmRepo) Activate(ctx context.Context, tmID int64) (*domain.TMAssignment, error) {
	var out *model.TMAssignment

	err := r.s.conn(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := first[model.TranslationMemory](tx, domain.EntityTM, tmID); err != nil {
			return err
		}

		a, err := findAssignment(tx, tmID)
		if err != nil {
			return err
		}

		if a == nil || (a.PlatformID == nil && a.ProjectID == nil && a.FolderID == nil) {
			return domain.InvalidTransition(domain.EntityTMAssignment, "TM %d is unassigned and cannot be activated", tmID)
		}

		out = a
		if a.IsActive {
			return nil
		}

		if r.s.maxActive > 0 {
			col, id := scopeColumn(domain.Scope{PlatformID: a.PlatformID, ProjectID: a.ProjectID, FolderID: a.FolderID})

			var n int64
			if err := tx.Model(&model.TMAssignment{}).
				Where(col+" = ? AND is_active = ? AND tm_id <> ?", id, true, tmID).
				Count(&n).Error; err != nil {
				return err
			}

			if int(n) >= r.s.maxActive {
				return domain.InvalidTransition(domain.EntityTMAssignment, "scope already has %d active TMs", n)
			}
		}

		a.IsActive = true

		return tx.Save(a).Error
	})
	if err != nil {
		return nil, translate(domain.EntityTMAssignment, err)
	}

	return toAssignment(out), nil
}

func (r *tmRepo) Deactivate(ctx context.Context, tmID int64) (*domain.TMAssignment, error) {
	var out *model.TMAssignment

	err := r.s.conn(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := first[model.TranslationMemory](tx, domain.EntityTM, tmID); err != nil {
			return err
		}

		a, err := findAssignment(tx, tmID)
		if err != nil {
			return err
		}

		if a == nil {
			out = &model.TMAssignment{TMID: tmID}

			return nil
		}

		a.IsActive = false
		out = a

		return tx.Save(a).Error
	})
	if err != nil {
		return nil, translate(domain.EntityTMAssignment, err)
	}

	return toAssignment(out), nil
}

// GetAssignment 没有分配记录时返回未分配的零值.
func (r *tmRepo) GetAssignment(ctx context.Context, tmID int64) (*domain.TMAssignment, error) {
	db := r.s.conn(ctx)
	if _, err := first[model.TranslationMemory](db, domain.EntityTM, tmID); err != nil {
		return nil, err
	}

	a, err := findAssignment(db, tmID)
	if err != nil {
		return nil, translate(domain.EntityTMAssignment, err)
	}

	if a == nil {
		return &domain.TMAssignment{TMID: tmID}, nil
	}

	return toAssignment(a), nil
}

func (r *tmRepo) ActiveForScope(ctx context.Context, scope domain.Scope) ([]domain.ActiveTM, error) {
	switch scope.Count() {
	case 0:
		return nil, domain.Invalidf(domain.EntityTMAssignment, "scope has no target")
	case 1:
	default:
		return nil, domain.ScopeConflict("lookup must name exactly one scope")
	}

	db := r.s.conn(ctx)
	col, id := scopeColumn(scope)

	var as []model.TMAssignment
	if err := db.Where(col+" = ? AND is_active = ?", id, true).Order("tm_id").Find(&as).Error; err != nil {
		return nil, translate(domain.EntityTMAssignment, err)
	}

	out := make([]domain.ActiveTM, 0, len(as))
	if len(as) == 0 {
		return out, nil
	}

	var tms []model.TranslationMemory
	if err := db.Where("id IN ?", modelIDs(as, func(a *model.TMAssignment) int64 { return a.TMID })).Find(&tms).Error; err != nil {
		return nil, translate(domain.EntityTM, err)
	}

	byID := make(map[int64]*model.TranslationMemory, len(tms))
	for i := range tms {
		byID[tms[i].ID] = &tms[i]
	}

	for i := range as {
		tm, ok := byID[as[i].TMID]
		if !ok {
			continue
		}

		out = append(out, domain.ActiveTM{TM: *toTM(tm), Assignment: *toAssignment(&as[i])})
	}

	return out, nil
}

func (r *tmRepo) GetBySyncKey(ctx context.Context, key string) (*domain.TranslationMemory, error) {
	m, err := firstWhere[model.TranslationMemory](r.s.conn(ctx), domain.EntityTM, key, "sync_key = ?", key)
	if err != nil {
		return nil, err
	}

	return toTM(m), nil
}

// Upsert 写入 TM 本身，entry_count 由条目写入维护.
func (r *tmRepo) Upsert(ctx context.Context, tm domain.TranslationMemory) (*domain.TranslationMemory, error) {
	if tm.SyncKey == "" {
		return nil, domain.Invalidf(domain.EntityTM, "sync key is required")
	}

	now := r.s.now()

	var out *model.TranslationMemory

	err := r.s.conn(ctx).Transaction(func(tx *gorm.DB) error {
		m, err := firstWhere[model.TranslationMemory](tx, domain.EntityTM, tm.SyncKey, "sync_key = ?", tm.SyncKey)
		if err != nil && domain.KindOf(err) != domain.KindNotFound {
			return err
		}

		if m == nil {
			m = &model.TranslationMemory{SyncKey: tm.SyncKey, CreatedAt: orNow(tm.CreatedAt, now)}
		}

		m.Name = tm.Name
		m.SourceLang = tm.SourceLang
		m.TargetLang = tm.TargetLang
		m.Owner = tm.Owner
		m.Description = tm.Description
		m.UpdatedAt = orNow(tm.UpdatedAt, now)
		out = m

		return tx.Save(m).Error
	})
	if err != nil {
		return nil, translate(domain.EntityTM, err)
	}

	return toTM(out), nil
}

func (r *tmRepo) UpsertEntries(ctx context.Context, tmID int64, entries []domain.TMEntry) (int, error) {
	now := r.s.now()
	added := 0

	err := r.s.conn(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := first[model.TranslationMemory](tx, domain.EntityTM, tmID); err != nil {
			return err
		}

		keys := make([]string, 0, len(entries))
		for _, e := range entries {
			keys = append(keys, e.SyncKey)
		}

		var existing []string
		if len(keys) > 0 {
			if err := tx.Model(&model.TMEntry{}).Where("sync_key IN ?", keys).Pluck("sync_key", &existing).Error; err != nil {
				return err
			}
		}

		seen := make(map[string]bool, len(existing))
		for _, k := range existing {
			seen[k] = true
		}

		ms := make([]model.TMEntry, 0, len(entries))
		for _, e := range entries {
			if e.SyncKey == "" || seen[e.SyncKey] {
				continue
			}

			seen[e.SyncKey] = true
			ms = append(ms, model.TMEntry{
				SyncKey:   e.SyncKey,
				TMID:      tmID,
				Source:    e.Source,
				Target:    e.Target,
				CreatedAt: orNow(e.CreatedAt, now),
			})
		}

		added = len(ms)

		return insertEntries(tx, tmID, ms, now)
	})
	if err != nil {
		return 0, translate(domain.EntityTMEntry, err)
	}

	return added, nil
}

// insertEntries 写入条目并累加 entry_count，TM 不存在时返回 NotFound.
func insertEntries(tx *gorm.DB, tmID int64, ms []model.TMEntry, now time.Time) error {
	if _, err := first[model.TranslationMemory](tx, domain.EntityTM, tmID); err != nil {
		return err
	}

	if len(ms) == 0 {
		return nil
	}

	if err := tx.CreateInBatches(&ms, 500).Error; err != nil {
		return err
	}

	return tx.Model(&model.TranslationMemory{}).Where("id = ?", tmID).
		Updates(map[string]any{"entry_count": gorm.Expr("entry_count + ?", len(ms)), "updated_at": now}).Error
}

func findAssignment(tx *gorm.DB, tmID int64) (*model.TMAssignment, error) {
	var as []model.TMAssignment
	if err := tx.Where("tm_id = ?", tmID).Limit(1).Find(&as).Error; err != nil {
		return nil, err
	}

	if len(as) == 0 {
		return nil, nil
	}

	return &as[0], nil
}

// scopeColumn 返回单指针作用域对应的列与 id.
func scopeColumn(s domain.Scope) (string, int64) {
	switch {
	case s.FolderID != nil:
		return "folder_id", *s.FolderID
	case s.ProjectID != nil:
		return "project_id", *s.ProjectID
	case s.PlatformID != nil:
		return "platform_id", *s.PlatformID
	default:
		return "", 0
	}
}

func scopeExists(tx *gorm.DB, s domain.Scope) error {
	var err error

	switch {
	case s.FolderID != nil:
		_, err = first[model.Folder](tx, domain.EntityFolder, *s.FolderID)
	case s.ProjectID != nil:
		_, err = first[model.Project](tx, domain.EntityProject, *s.ProjectID)
	case s.PlatformID != nil:
		_, err = first[model.Platform](tx, domain.EntityPlatform, *s.PlatformID)
	}

	return err
}

// sortByTMOrder 按 tmIDs 中的位置稳定排序.
func sortByTMOrder(entries []domain.TMEntry, tmIDs []int64) {
	pos := make(map[int64]int, len(tmIDs))
	for i, id := range tmIDs {
		if _, ok := pos[id]; !ok {
			pos[id] = i
		}
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return pos[entries[i].TMID] < pos[entries[j].TMID]
	})
}

package local

import (
	"context"
	"sort"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/yeisme/tmvault/pkg/internal/domain"
	"github.com/yeisme/tmvault/pkg/internal/session"
)

type tmRepo struct {
	s *Store
}

func selectTMs(s *Store) sq.SelectBuilder {
	return s.sq.Select(tmCols...).From(tableTMs)
}

func selectEntries(s *Store) sq.SelectBuilder {
	return s.sq.Select(tmEntryCols...).From(tableTMEntries)
}

func selectAssignments(s *Store) sq.SelectBuilder {
	return s.sq.Select(assignmentCols...).From(tableAssignments)
}

func getTM(ctx context.Context, s *Store, q querier, id int64) (*domain.TranslationMemory, error) {
	return one(ctx, q, selectTMs(s).Where(sq.Eq{"id": id}), scanTM, domain.EntityTM, id)
}

func (r *tmRepo) Get(ctx context.Context, id int64) (*domain.TranslationMemory, error) {
	return getTM(ctx, r.s, r.s.db, id)
}

func (r *tmRepo) GetAll(ctx context.Context, filter domain.TMFilter) ([]domain.TranslationMemory, error) {
	b := selectTMs(r.s)
	if filter.Owner != "" {
		b = b.Where(sq.Eq{"owner": filter.Owner})
	}

	if filter.SourceLang != "" {
		b = b.Where(sq.Eq{"source_lang": filter.SourceLang})
	}

	if filter.TargetLang != "" {
		b = b.Where(sq.Eq{"target_lang": filter.TargetLang})
	}

	if filter.Unassigned {
		b = b.Where("id NOT IN (SELECT tm_id FROM " + tableAssignments +
			" WHERE platform_id IS NOT NULL OR project_id IS NOT NULL OR folder_id IS NOT NULL)")
	}

	out, err := all(ctx, r.s.db, b.OrderBy("id"), scanTM)

	return out, translate(domain.EntityTM, err)
}

func (r *tmRepo) Create(ctx context.Context, in domain.TMInput) (*domain.TranslationMemory, error) {
	if err := domain.Validate(domain.EntityTM, in); err != nil {
		return nil, err
	}

	now := r.s.now()
	t := &domain.TranslationMemory{
		SyncKey:     domain.NewSyncKey(now),
		Name:        in.Name,
		SourceLang:  in.SourceLang,
		TargetLang:  in.TargetLang,
		Owner:       in.Owner,
		Description: in.Description,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	err := r.s.write(ctx, func(tx querier) error {
		id, err := r.insert(ctx, tx, t)
		t.ID = id

		return err
	})
	if err != nil {
		return nil, translate(domain.EntityTM, err)
	}

	return t, nil
}

func (r *tmRepo) insert(ctx context.Context, tx querier, t *domain.TranslationMemory) (int64, error) {
	return insert(ctx, tx, r.s.sq.Insert(tableTMs).
		Columns("sync_key", "name", "source_lang", "target_lang", "owner", "description", "entry_count", "created_at", "updated_at").
		Values(t.SyncKey, t.Name, t.SourceLang, t.TargetLang, t.Owner, t.Description, t.EntryCount,
			nanos(t.CreatedAt), nanos(t.UpdatedAt)))
}

func (r *tmRepo) save(ctx context.Context, tx querier, t *domain.TranslationMemory) error {
	_, err := exec(ctx, tx, r.s.sq.Update(tableTMs).SetMap(map[string]any{
		"name":        t.Name,
		"source_lang": t.SourceLang,
		"target_lang": t.TargetLang,
		"owner":       t.Owner,
		"description": t.Description,
		"updated_at":  nanos(t.UpdatedAt),
	}).Where(sq.Eq{"id": t.ID}))

	return err
}

func (r *tmRepo) Update(ctx context.Context, id int64, patch domain.TMPatch) (*domain.TranslationMemory, error) {
	if err := domain.Validate(domain.EntityTM, patch); err != nil {
		return nil, err
	}

	var out *domain.TranslationMemory

	err := r.s.write(ctx, func(tx querier) error {
		t, err := getTM(ctx, r.s, tx, id)
		if err != nil {
			return err
		}

		if patch.Name != nil {
			t.Name = *patch.Name
		}

		if patch.Description != nil {
			t.Description = *patch.Description
		}

		t.UpdatedAt = r.s.now()
		out = t

		return r.save(ctx, tx, t)
	})
	if err != nil {
		return nil, translate(domain.EntityTM, err)
	}

	return out, nil
}

// Delete 将 TM、条目与分配写入回收站.
func (r *tmRepo) Delete(ctx context.Context, id int64) error {
	now := r.s.now()
	actor := session.Actor(ctx)

	err := r.s.write(ctx, func(tx querier) error {
		t, err := getTM(ctx, r.s, tx, id)
		if err != nil {
			return err
		}

		entries, err := all(ctx, tx, selectEntries(r.s).Where(sq.Eq{"tm_id": id}).OrderBy("id"), scanTMEntry)
		if err != nil {
			return err
		}

		snap := &domain.Snapshot{TM: &domain.TMSnapshot{TM: *t, Entries: entries}}
		if snap.TM.Assignment, err = r.s.findAssignment(ctx, tx, id); err != nil {
			return err
		}

		if err := r.s.putTrash(ctx, tx, domain.EntityTM, t.SyncKey, t.Name, nil, actor, now, snap); err != nil {
			return err
		}

		for _, table := range []string{tableTMEntries, tableAssignments} {
			if _, err := exec(ctx, tx, r.s.sq.Delete(table).Where(sq.Eq{"tm_id": id})); err != nil {
				return err
			}
		}

		_, err = exec(ctx, tx, r.s.sq.Delete(tableTMs).Where(sq.Eq{"id": id}))

		return err
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
	out := make([]domain.TMEntry, 0, len(in))

	for _, e := range in {
		out = append(out, domain.TMEntry{
			SyncKey:   domain.NewSyncKey(now),
			TMID:      tmID,
			Source:    e.Source,
			Target:    e.Target,
			CreatedAt: now,
		})
	}

	err := r.s.write(ctx, func(tx querier) error {
		return r.s.insertEntries(ctx, tx, tmID, out, now)
	})
	if err != nil {
		return nil, translate(domain.EntityTMEntry, err)
	}

	return out, nil
}

func (r *tmRepo) Entries(ctx context.Context, tmID int64) ([]domain.TMEntry, error) {
	if _, err := getTM(ctx, r.s, r.s.db, tmID); err != nil {
		return nil, err
	}

	out, err := all(ctx, r.s.db, selectEntries(r.s).Where(sq.Eq{"tm_id": tmID}).OrderBy("id"), scanTMEntry)

	return out, translate(domain.EntityTMEntry, err)
}

func (r *tmRepo) SearchEntries(ctx context.Context, tmIDs []int64, source string) ([]domain.TMEntry, error) {
	if len(tmIDs) == 0 {
		return []domain.TMEntry{}, nil
	}

	out, err := all(ctx, r.s.db, selectEntries(r.s).
		Where(sq.Eq{"tm_id": tmIDs, "source": source}).OrderBy("id"), scanTMEntry)
	if err != nil {
		return nil, translate(domain.EntityTMEntry, err)
	}

	sortByTMOrder(out, tmIDs)

	return out, nil
}

func (r *tmRepo) RegisterFromFile(ctx context.Context, fileID int64, in domain.RegisterTMInput) (*domain.TranslationMemory, error) {
	if err := domain.Validate(domain.EntityTM, in); err != nil {
		return nil, err
	}

	now := r.s.now()

	var out *domain.TranslationMemory

	err := r.s.write(ctx, func(tx querier) error {
		f, err := getFile(ctx, r.s, tx, fileID)
		if err != nil {
			return err
		}

		if f.SourceLang == "" || f.TargetLang == "" {
			return domain.Invalidf(domain.EntityTM, "file %d has no source/target language", fileID)
		}

		t := &domain.TranslationMemory{
			SyncKey:     domain.NewSyncKey(now),
			Name:        in.Name,
			SourceLang:  f.SourceLang,
			TargetLang:  f.TargetLang,
			Owner:       in.Owner,
			Description: in.Description,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if t.ID, err = r.insert(ctx, tx, t); err != nil {
			return err
		}

		rows, err := all(ctx, tx, selectRows(r.s).
			Where(sq.And{sq.Eq{"file_id": fileID}, sq.NotEq{"target": ""}}).
			OrderBy("row_num", "id"), scanRow)
		if err != nil {
			return err
		}

		entries := make([]domain.TMEntry, 0, len(rows))
		for _, row := range rows {
			entries = append(entries, domain.TMEntry{
				SyncKey:   domain.NewSyncKey(now),
				TMID:      t.ID,
				Source:    row.Source,
				Target:    row.Target,
				CreatedAt: now,
			})
		}

		if err := r.s.insertEntries(ctx, tx, t.ID, entries, now); err != nil {
			return err
		}

		t.EntryCount = len(entries)
		out = t

		return nil
	})
	if err != nil {
		return nil, translate(domain.EntityTM, err)
	}

	return out, nil
}

func (r *tmRepo) Assign(ctx context.Context, tmID int64, scope domain.Scope, by string) (*domain.TMAssignment, error) {
	switch scope.Count() {
	case 0:
		return nil, domain.Invalidf(domain.EntityTMAssignment, "scope has no target; use Unassign")
	case 1:
	default:
		return nil, domain.ScopeConflict("a TM can be assigned to exactly one scope")
	}

	out := &domain.TMAssignment{TMID: tmID, Scope: scope, AssignedBy: by, AssignedAt: r.s.now()}

	err := r.s.write(ctx, func(tx querier) error {
		if _, err := getTM(ctx, r.s, tx, tmID); err != nil {
			return err
		}

		if err := r.s.scopeExists(ctx, tx, scope); err != nil {
			return err
		}

		return r.s.putAssignment(ctx, tx, out)
	})
	if err != nil {
		return nil, translate(domain.EntityTMAssignment, err)
	}

	return out, nil
}

func (r *tmRepo) Unassign(ctx context.Context, tmID int64) (*domain.TMAssignment, error) {
	var out *domain.TMAssignment

	err := r.s.write(ctx, func(tx querier) error {
		if _, err := getTM(ctx, r.s, tx, tmID); err != nil {
			return err
		}

		a, err := r.s.findAssignment(ctx, tx, tmID)
		if err != nil {
			return err
		}

		if a == nil {
			a = &domain.TMAssignment{TMID: tmID, AssignedAt: r.s.now()}
		}

		a.Scope = domain.Scope{}
		a.IsActive = false
		out = a

		return r.s.putAssignment(ctx, tx, a)
	})
	if err != nil {
		return nil, translate(domain.EntityTMAssignment, err)
	}

	return out, nil
}

func (r *tmRepo) Activate(ctx context.Context, tmID int64) (*domain.TMAssignment, error) {
	var out *domain.TMAssignment

	err := r.s.write(ctx, func(tx querier) error {
		if _, err := getTM(ctx, r.s, tx, tmID); err != nil {
			return err
		}

		a, err := r.s.findAssignment(ctx, tx, tmID)
		if err != nil {
			return err
		}

		if a == nil || a.Scope.IsUnassigned() {
			return domain.InvalidTransition(domain.EntityTMAssignment, "TM %d is unassigned and cannot be activated", tmID)
		}

		out = a
		if a.IsActive {
			return nil
		}

		if r.s.maxActive > 0 {
			col, id := scopeColumn(a.Scope)

			n, err := count(ctx, tx, tableAssignments, sq.And{
				sq.Eq{col: id, "is_active": true},
				sq.NotEq{"tm_id": tmID},
			})
			if err != nil {
				return err
			}

			if int(n) >= r.s.maxActive {
				return domain.InvalidTransition(domain.EntityTMAssignment, "scope already has %d active TMs", n)
			}
		}

		a.IsActive = true

		return r.s.putAssignment(ctx, tx, a)
	})
	if err != nil {
		return nil, translate(domain.EntityTMAssignment, err)
	}

	return out, nil
}

func (r *tmRepo) Deactivate(ctx context.Context, tmID int64) (*domain.TMAssignment, error) {
	var out *domain.TMAssignment

	err := r.s.write(ctx, func(tx querier) error {
		if _, err := getTM(ctx, r.s, tx, tmID); err != nil {
			return err
		}

		a, err := r.s.findAssignment(ctx, tx, tmID)
		if err != nil {
			return err
		}

		if a == nil {
			out = &domain.TMAssignment{TMID: tmID}

			return nil
		}

		a.IsActive = false
		out = a

		return r.s.putAssignment(ctx, tx, a)
	})
	if err != nil {
		return nil, translate(domain.EntityTMAssignment, err)
	}

	return out, nil
}

// GetAssignment 没有分配记录时返回未分配的零值.
func (r *tmRepo) GetAssignment(ctx context.Context, tmID int64) (*domain.TMAssignment, error) {
	if _, err := getTM(ctx, r.s, r.s.db, tmID); err != nil {
		return nil, err
	}

	a, err := r.s.findAssignment(ctx, r.s.db, tmID)
	if err != nil {
		return nil, translate(domain.EntityTMAssignment, err)
	}

	if a == nil {
		return &domain.TMAssignment{TMID: tmID}, nil
	}

	return a, nil
}

func (r *tmRepo) ActiveForScope(ctx context.Context, scope domain.Scope) ([]domain.ActiveTM, error) {
	switch scope.Count() {
	case 0:
		return nil, domain.Invalidf(domain.EntityTMAssignment, "scope has no target")
	case 1:
	default:
		return nil, domain.ScopeConflict("lookup must name exactly one scope")
	}

	col, id := scopeColumn(scope)

	as, err := all(ctx, r.s.db, selectAssignments(r.s).
		Where(sq.Eq{col: id, "is_active": true}).OrderBy("tm_id"), scanAssignment)
	if err != nil {
		return nil, translate(domain.EntityTMAssignment, err)
	}

	out := make([]domain.ActiveTM, 0, len(as))
	if len(as) == 0 {
		return out, nil
	}

	ids := make([]int64, 0, len(as))
	for _, a := range as {
		ids = append(ids, a.TMID)
	}

	tms, err := all(ctx, r.s.db, selectTMs(r.s).Where(sq.Eq{"id": ids}), scanTM)
	if err != nil {
		return nil, translate(domain.EntityTM, err)
	}

	byID := make(map[int64]domain.TranslationMemory, len(tms))
	for _, t := range tms {
		byID[t.ID] = t
	}

	for _, a := range as {
		t, ok := byID[a.TMID]
		if !ok {
			continue
		}

		out = append(out, domain.ActiveTM{TM: t, Assignment: a})
	}

	return out, nil
}

func (r *tmRepo) GetBySyncKey(ctx context.Context, key string) (*domain.TranslationMemory, error) {
	return one(ctx, r.s.db, selectTMs(r.s).Where(sq.Eq{"sync_key": key}), scanTM, domain.EntityTM, key)
}

// Upsert 写入 TM 本身，entry_count 由条目写入维护.
func (r *tmRepo) Upsert(ctx context.Context, t domain.TranslationMemory) (*domain.TranslationMemory, error) {
	if t.SyncKey == "" {
		return nil, domain.Invalidf(domain.EntityTM, "sync key is required")
	}

	now := r.s.now()

	var out *domain.TranslationMemory

	err := r.s.write(ctx, func(tx querier) error {
		cur, err := one(ctx, tx, selectTMs(r.s).Where(sq.Eq{"sync_key": t.SyncKey}), scanTM, domain.EntityTM, t.SyncKey)
		if err != nil && domain.KindOf(err) != domain.KindNotFound {
			return err
		}

		next := &domain.TranslationMemory{
			SyncKey:     t.SyncKey,
			Name:        t.Name,
			SourceLang:  t.SourceLang,
			TargetLang:  t.TargetLang,
			Owner:       t.Owner,
			Description: t.Description,
			CreatedAt:   orNow(t.CreatedAt, now),
			UpdatedAt:   orNow(t.UpdatedAt, now),
		}
		out = next

		if cur == nil {
			next.ID, err = r.insert(ctx, tx, next)

			return err
		}

		next.ID, next.CreatedAt, next.EntryCount = cur.ID, cur.CreatedAt, cur.EntryCount

		return r.save(ctx, tx, next)
	})
	if err != nil {
		return nil, translate(domain.EntityTM, err)
	}

	return out, nil
}

func (r *tmRepo) UpsertEntries(ctx context.Context, tmID int64, entries []domain.TMEntry) (int, error) {
	now := r.s.now()
	added := 0

	err := r.s.write(ctx, func(tx querier) error {
		if _, err := getTM(ctx, r.s, tx, tmID); err != nil {
			return err
		}

		keys := make([]string, 0, len(entries))
		for _, e := range entries {
			keys = append(keys, e.SyncKey)
		}

		seen := make(map[string]bool, len(keys))

		if len(keys) > 0 {
			existing, err := all(ctx, tx, selectEntries(r.s).Where(sq.Eq{"sync_key": keys}), scanTMEntry)
			if err != nil {
				return err
			}

			for _, e := range existing {
				seen[e.SyncKey] = true
			}
		}

		fresh := make([]domain.TMEntry, 0, len(entries))
		for _, e := range entries {
			if e.SyncKey == "" || seen[e.SyncKey] {
				continue
			}

			seen[e.SyncKey] = true
			fresh = append(fresh, domain.TMEntry{
				SyncKey:   e.SyncKey,
				TMID:      tmID,
				Source:    e.Source,
				Target:    e.Target,
				CreatedAt: orNow(e.CreatedAt, now),
			})
		}

		added = len(fresh)

		return r.s.insertEntries(ctx, tx, tmID, fresh, now)
	})
	if err != nil {
		return 0, translate(domain.EntityTMEntry, err)
	}

	return added, nil
}

// insertEntries 写入条目并累加 entry_count，TM 不存在时返回 NotFound.
func (s *Store) insertEntries(ctx context.Context, tx querier, tmID int64, entries []domain.TMEntry, now time.Time) error {
	if _, err := getTM(ctx, s, tx, tmID); err != nil {
		return err
	}

	if len(entries) == 0 {
		return nil
	}

	for i := range entries {
		id, err := insert(ctx, tx, s.sq.Insert(tableTMEntries).
			Columns("sync_key", "tm_id", "source", "target", "created_at").
			Values(entries[i].SyncKey, tmID, entries[i].Source, entries[i].Target, nanos(entries[i].CreatedAt)))
		if err != nil {
			return err
		}

		entries[i].ID = id
	}

	_, err := exec(ctx, tx, s.sq.Update(tableTMs).
		Set("entry_count", sq.Expr("entry_count + ?", len(entries))).
		Set("updated_at", nanos(now)).
		Where(sq.Eq{"id": tmID}))

	return err
}

func (s *Store) findAssignment(ctx context.Context, q querier, tmID int64) (*domain.TMAssignment, error) {
	as, err := all(ctx, q, selectAssignments(s).Where(sq.Eq{"tm_id": tmID}).Limit(1), scanAssignment)
	if err != nil {
		return nil, err
	}

	if len(as) == 0 {
		return nil, nil
	}

	return &as[0], nil
}

// putAssignment 按 tm_id 插入或覆盖分配记录.
func (s *Store) putAssignment(ctx context.Context, tx querier, a *domain.TMAssignment) error {
	_, err := exec(ctx, tx, s.sq.Insert(tableAssignments).
		Columns(assignmentCols...).
		Values(a.TMID, nullInt(a.Scope.PlatformID), nullInt(a.Scope.ProjectID), nullInt(a.Scope.FolderID),
			a.IsActive, a.AssignedBy, nanos(a.AssignedAt)).
		Suffix("ON CONFLICT(tm_id) DO UPDATE SET platform_id = excluded.platform_id, project_id = excluded.project_id, "+
			"folder_id = excluded.folder_id, is_active = excluded.is_active, assigned_by = excluded.assigned_by, "+
			"assigned_at = excluded.assigned_at"))

	return err
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

func (s *Store) scopeExists(ctx context.Context, q querier, scope domain.Scope) error {
	var err error

	switch {
	case scope.FolderID != nil:
		_, err = getFolder(ctx, s, q, *scope.FolderID)
	case scope.ProjectID != nil:
		_, err = getProject(ctx, s, q, *scope.ProjectID)
	case scope.PlatformID != nil:
		_, err = (&platformRepo{s: s}).get(ctx, q, *scope.PlatformID)
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

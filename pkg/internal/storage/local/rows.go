package local

import (
	"context"

	sq "github.com/Masterminds/squirrel"

	"github.com/yeisme/tmvault/pkg/internal/domain"
)

type rowRepo struct {
	s *Store
}

func selectRows(s *Store) sq.SelectBuilder {
	return s.sq.Select(rowCols...).From(tableRows)
}

func getRow(ctx context.Context, s *Store, q querier, id int64) (*domain.Row, error) {
	return one(ctx, q, selectRows(s).Where(sq.Eq{"id": id}), scanRow, domain.EntityRow, id)
}

func (r *rowRepo) Get(ctx context.Context, id int64) (*domain.Row, error) {
	return getRow(ctx, r.s, r.s.db, id)
}

func (r *rowRepo) GetAll(ctx context.Context, filter domain.RowFilter) ([]domain.Row, error) {
	if err := domain.Validate(domain.EntityRow, filter); err != nil {
		return nil, err
	}

	b := selectRows(r.s).Where(sq.Eq{"file_id": filter.FileID})
	if filter.Status != "" {
		b = b.Where(sq.Eq{"status": string(filter.Status)})
	}

	b = b.OrderBy("row_num", "id")

	// SQLite 的 OFFSET 必须跟在 LIMIT 之后
	switch {
	case filter.Limit > 0:
		b = b.Limit(uint64(filter.Limit))
	case filter.Offset > 0:
		b = b.Limit(uint64(1<<63 - 1))
	}

	if filter.Offset > 0 {
		b = b.Offset(uint64(filter.Offset))
	}

	out, err := all(ctx, r.s.db, b, scanRow)

	return out, translate(domain.EntityRow, err)
}

func (r *rowRepo) Create(ctx context.Context, in domain.RowInput) (*domain.Row, error) {
	rows, err := r.insert(ctx, in.FileID, []domain.RowInput{in})
	if err != nil {
		return nil, err
	}

	return &rows[0], nil
}

func (r *rowRepo) CreateBatch(ctx context.Context, fileID int64, in []domain.RowInput) ([]domain.Row, error) {
	return r.insert(ctx, fileID, in)
}

// insert 在一个事务内写入行并维护文件的 row_count.
func (r *rowRepo) insert(ctx context.Context, fileID int64, in []domain.RowInput) ([]domain.Row, error) {
	for i := range in {
		if in[i].FileID == 0 {
			in[i].FileID = fileID
		}

		if in[i].FileID != fileID {
			return nil, domain.Invalidf(domain.EntityRow, "row %d belongs to file %d, not %d", i, in[i].FileID, fileID)
		}

		if err := domain.Validate(domain.EntityRow, in[i]); err != nil {
			return nil, err
		}
	}

	now := r.s.now()
	out := make([]domain.Row, 0, len(in))

	for _, ri := range in {
		status := ri.Status
		if status == "" {
			status = domain.RowStatusPending
		}

		out = append(out, domain.Row{
			SyncKey:   domain.NewSyncKey(now),
			FileID:    fileID,
			RowNum:    ri.RowNum,
			Source:    ri.Source,
			Target:    ri.Target,
			StringID:  ri.StringID,
			Status:    status,
			Memo:      ri.Memo,
			CreatedAt: now,
			UpdatedAt: now,
		})
	}

	err := r.s.write(ctx, func(tx querier) error {
		if _, err := r.s.writableFile(ctx, tx, fileID); err != nil {
			return err
		}

		if len(out) == 0 {
			return nil
		}

		for i := range out {
			id, err := r.s.insertRow(ctx, tx, &out[i])
			if err != nil {
				return err
			}

			out[i].ID = id
		}

		if err := r.s.addRowCount(ctx, tx, fileID, len(out)); err != nil {
			return err
		}

		return r.s.markModified(ctx, tx, fileID)
	})
	if err != nil {
		return nil, translate(domain.EntityRow, err)
	}

	return out, nil
}

func (s *Store) insertRow(ctx context.Context, tx querier, row *domain.Row) (int64, error) {
	return insert(ctx, tx, s.sq.Insert(tableRows).
		Columns("sync_key", "file_id", "row_num", "source", "target", "string_id", "status", "memo", "created_at", "updated_at").
		Values(row.SyncKey, row.FileID, row.RowNum, row.Source, row.Target, row.StringID, string(row.Status), row.Memo,
			nanos(row.CreatedAt), nanos(row.UpdatedAt)))
}

func (s *Store) saveRow(ctx context.Context, tx querier, row *domain.Row) error {
	_, err := exec(ctx, tx, s.sq.Update(tableRows).SetMap(map[string]any{
		"file_id":    row.FileID,
		"row_num":    row.RowNum,
		"source":     row.Source,
		"target":     row.Target,
		"string_id":  row.StringID,
		"status":     string(row.Status),
		"memo":       row.Memo,
		"updated_at": nanos(row.UpdatedAt),
	}).Where(sq.Eq{"id": row.ID}))

	return err
}

func (r *rowRepo) Update(ctx context.Context, id int64, patch domain.RowPatch) (*domain.Row, error) {
	if err := domain.Validate(domain.EntityRow, patch); err != nil {
		return nil, err
	}

	var out *domain.Row

	err := r.s.write(ctx, func(tx querier) error {
		row, err := getRow(ctx, r.s, tx, id)
		if err != nil {
			return err
		}

		if _, err := r.s.writableFile(ctx, tx, row.FileID); err != nil {
			return err
		}

		if patch.RowNum != nil {
			row.RowNum = *patch.RowNum
		}

		if patch.Source != nil {
			row.Source = *patch.Source
		}

		if patch.Target != nil {
			row.Target = *patch.Target
		}

		if patch.StringID != nil {
			row.StringID = *patch.StringID
		}

		if patch.Status != nil {
			row.Status = *patch.Status
		}

		if patch.Memo != nil {
			row.Memo = *patch.Memo
		}

		row.UpdatedAt = r.s.now()
		out = row

		if err := r.s.saveRow(ctx, tx, row); err != nil {
			return err
		}

		return r.s.markModified(ctx, tx, row.FileID)
	})
	if err != nil {
		return nil, translate(domain.EntityRow, err)
	}

	return out, nil
}

// Delete 行不能单独删除.
func (r *rowRepo) Delete(_ context.Context, id int64) error {
	return domain.InvalidTransition(domain.EntityRow, "row %d cannot be deleted on its own; delete the file instead", id)
}

func (r *rowRepo) GetBySyncKey(ctx context.Context, fileID int64, key string) (*domain.Row, error) {
	return one(ctx, r.s.db, selectRows(r.s).Where(sq.Eq{"file_id": fileID, "sync_key": key}), scanRow, domain.EntityRow, key)
}

// Upsert 按 SyncKey 写入行，新行计入 row_count，不改变文件同步状态.
func (r *rowRepo) Upsert(ctx context.Context, row domain.Row) (*domain.Row, error) {
	if row.SyncKey == "" {
		return nil, domain.Invalidf(domain.EntityRow, "sync key is required")
	}

	now := r.s.now()

	var out *domain.Row

	err := r.s.write(ctx, func(tx querier) error {
		if _, err := getFile(ctx, r.s, tx, row.FileID); err != nil {
			return err
		}

		cur, err := one(ctx, tx, selectRows(r.s).Where(sq.Eq{"sync_key": row.SyncKey}), scanRow, domain.EntityRow, row.SyncKey)
		if err != nil && domain.KindOf(err) != domain.KindNotFound {
			return err
		}

		if cur != nil && cur.FileID != row.FileID {
			return domain.Conflict(domain.EntityRow, "sync key "+row.SyncKey+" belongs to another file")
		}

		status := row.Status
		if status == "" {
			status = domain.RowStatusPending
		}

		next := &domain.Row{
			SyncKey:   row.SyncKey,
			FileID:    row.FileID,
			RowNum:    row.RowNum,
			Source:    row.Source,
			Target:    row.Target,
			StringID:  row.StringID,
			Status:    status,
			Memo:      row.Memo,
			CreatedAt: orNow(row.CreatedAt, now),
			UpdatedAt: orNow(row.UpdatedAt, now),
		}
		out = next

		if cur != nil {
			next.ID, next.CreatedAt = cur.ID, cur.CreatedAt

			return r.s.saveRow(ctx, tx, next)
		}

		if next.ID, err = r.s.insertRow(ctx, tx, next); err != nil {
			return err
		}

		return r.s.addRowCount(ctx, tx, row.FileID, 1)
	})
	if err != nil {
		return nil, translate(domain.EntityRow, err)
	}

	return out, nil
}

package central

import (
	"context"

	"gorm.io/gorm"

	"github.com/yeisme/tmvault/pkg/internal/domain"
	"github.com/yeisme/tmvault/pkg/internal/model"
)

type rowRepo struct {
	s       *Store
	session string
}

func (r *rowRepo) Get(ctx context.Context, id int64) (*domain.Row, error) {
	m, err := first[model.Row](r.s.conn(ctx), domain.EntityRow, id)
	if err != nil {
		return nil, err
	}

	return toRow(m), nil
}

func (r *rowRepo) GetAll(ctx context.Context, filter domain.RowFilter) ([]domain.Row, error) {
	if err := domain.Validate(domain.EntityRow, filter); err != nil {
		return nil, err
	}

	q := r.s.conn(ctx).Model(&model.Row{}).Where("file_id = ?", filter.FileID)
	if filter.Status != "" {
		q = q.Where("status = ?", string(filter.Status))
	}

	if filter.Offset > 0 {
		q = q.Offset(filter.Offset)
	}

	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}

	var ms []model.Row
	if err := q.Order("row_num, id").Find(&ms).Error; err != nil {
		return nil, translate(domain.EntityRow, err)
	}

	return mapSlice(ms, toRow), nil
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

	if err := r.s.checkLock(ctx, r.session, domain.FileRef(fileID)); err != nil {
		return nil, err
	}

	now := r.s.now()
	ms := make([]model.Row, 0, len(in))

	for _, ri := range in {
		status := ri.Status
		if status == "" {
			status = domain.RowStatusPending
		}

		ms = append(ms, model.Row{
			SyncKey:   domain.NewSyncKey(now),
			FileID:    fileID,
			RowNum:    ri.RowNum,
			Source:    ri.Source,
			Target:    ri.Target,
			StringID:  ri.StringID,
			Status:    string(status),
			Memo:      ri.Memo,
			CreatedAt: now,
			UpdatedAt: now,
		})
	}

	err := r.s.conn(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := writableFile(tx, fileID); err != nil {
			return err
		}

		if len(ms) == 0 {
			return nil
		}

		if err := tx.CreateInBatches(&ms, 500).Error; err != nil {
			return err
		}

		if err := addRowCount(tx, fileID, len(ms)); err != nil {
			return err
		}

		return markModified(tx, fileID)
	})
	if err != nil {
		return nil, translate(domain.EntityRow, err)
	}

	return mapSlice(ms, toRow), nil
}

func (r *rowRepo) Update(ctx context.Context, id int64, patch domain.RowPatch) (*domain.Row, error) {
	if err := domain.Validate(domain.EntityRow, patch); err != nil {
		return nil, err
	}

	current, err := first[model.Row](r.s.conn(ctx), domain.EntityRow, id)
	if err != nil {
		return nil, err
	}

	if err := r.s.checkLock(ctx, r.session, domain.RowRef(id), domain.FileRef(current.FileID)); err != nil {
		return nil, err
	}

	var out *model.Row

	err = r.s.conn(ctx).Transaction(func(tx *gorm.DB) error {
		m, err := first[model.Row](tx, domain.EntityRow, id)
		if err != nil {
			return err
		}

		if _, err := writableFile(tx, m.FileID); err != nil {
			return err
		}

		if patch.RowNum != nil {
			m.RowNum = *patch.RowNum
		}

		if patch.Source != nil {
			m.Source = *patch.Source
		}

		if patch.Target != nil {
			m.Target = *patch.Target
		}

		if patch.StringID != nil {
			m.StringID = *patch.StringID
		}

		if patch.Status != nil {
			m.Status = string(*patch.Status)
		}

		if patch.Memo != nil {
			m.Memo = *patch.Memo
		}

		m.UpdatedAt = r.s.now()
		out = m

		if err := tx.Save(m).Error; err != nil {
			return err
		}

		return markModified(tx, m.FileID)
	})
	if err != nil {
		return nil, translate(domain.EntityRow, err)
	}

	return toRow(out), nil
}

// Delete 行不能单独删除.
func (r *rowRepo) Delete(_ context.Context, id int64) error {
	return domain.InvalidTransition(domain.EntityRow, "row %d cannot be deleted on its own; delete the file instead", id)
}

func (r *rowRepo) GetBySyncKey(ctx context.Context, fileID int64, key string) (*domain.Row, error) {
	m, err := firstWhere[model.Row](r.s.conn(ctx), domain.EntityRow, key, "file_id = ? AND sync_key = ?", fileID, key)
	if err != nil {
		return nil, err
	}

	return toRow(m), nil
}

// Upsert 按 SyncKey 写入行，新行计入 row_count，不改变文件同步状态.
func (r *rowRepo) Upsert(ctx context.Context, row domain.Row) (*domain.Row, error) {
	if row.SyncKey == "" {
		return nil, domain.Invalidf(domain.EntityRow, "sync key is required")
	}

	now := r.s.now()

	var out *model.Row

	err := r.s.conn(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := first[model.File](tx, domain.EntityFile, row.FileID); err != nil {
			return err
		}

		m, err := firstWhere[model.Row](tx, domain.EntityRow, row.SyncKey, "sync_key = ?", row.SyncKey)
		if err != nil && domain.KindOf(err) != domain.KindNotFound {
			return err
		}

		inserted := m == nil
		if inserted {
			m = &model.Row{SyncKey: row.SyncKey, CreatedAt: orNow(row.CreatedAt, now)}
		} else if m.FileID != row.FileID {
			return domain.Conflict(domain.EntityRow, "sync key "+row.SyncKey+" belongs to another file")
		}

		status := row.Status
		if status == "" {
			status = domain.RowStatusPending
		}

		m.FileID = row.FileID
		m.RowNum = row.RowNum
		m.Source = row.Source
		m.Target = row.Target
		m.StringID = row.StringID
		m.Status = string(status)
		m.Memo = row.Memo
		m.UpdatedAt = orNow(row.UpdatedAt, now)
		out = m

		if err := tx.Save(m).Error; err != nil {
			return err
		}

		if inserted {
			return addRowCount(tx, row.FileID, 1)
		}

		return nil
	})
	if err != nil {
		return nil, translate(domain.EntityRow, err)
	}

	return toRow(out), nil
}

func addRowCount(tx *gorm.DB, fileID int64, n int) error {
	return tx.Model(&model.File{}).Where("id = ?", fileID).
		Update("row_count", gorm.Expr("row_count + ?", n)).Error
}

package central

import (
	"context"

	"gorm.io/gorm"

	"github.com/yeisme/tmvault/pkg/internal/domain"
	"github.com/yeisme/tmvault/pkg/internal/model"
)

type qaRepo struct {
	s *Store
}

func (r *qaRepo) Get(ctx context.Context, id int64) (*domain.QAResult, error) {
	m, err := first[model.QAResult](r.s.conn(ctx), domain.EntityQAResult, id)
	if err != nil {
		return nil, err
	}

	return toQAResult(m), nil
}

func (r *qaRepo) GetAll(ctx context.Context, filter domain.QAFilter) ([]domain.QAResult, error) {
	q := r.s.conn(ctx).Model(&model.QAResult{})
	if filter.FileID != nil {
		q = q.Where("file_id = ?", *filter.FileID)
	}

	if filter.RowID != nil {
		q = q.Where("row_id = ?", *filter.RowID)
	}

	if filter.Unresolved {
		q = q.Where("resolved = ?", false)
	}

	var ms []model.QAResult
	if err := q.Order("id").Find(&ms).Error; err != nil {
		return nil, translate(domain.EntityQAResult, err)
	}

	return mapSlice(ms, toQAResult), nil
}

func (r *qaRepo) Create(ctx context.Context, in domain.QAInput) (*domain.QAResult, error) {
	if err := domain.Validate(domain.EntityQAResult, in); err != nil {
		return nil, err
	}

	now := r.s.now()

	var out *model.QAResult

	err := r.s.conn(ctx).Transaction(func(tx *gorm.DB) error {
		row, err := first[model.Row](tx, domain.EntityRow, in.RowID)
		if err != nil {
			return err
		}

		out = &model.QAResult{
			FileID:    row.FileID,
			RowID:     row.ID,
			CheckType: in.CheckType,
			Severity:  string(in.Severity),
			Message:   in.Message,
			CreatedAt: now,
			UpdatedAt: now,
		}

		return tx.Create(out).Error
	})
	if err != nil {
		return nil, translate(domain.EntityQAResult, err)
	}

	return toQAResult(out), nil
}

func (r *qaRepo) Update(ctx context.Context, id int64, patch domain.QAPatch) (*domain.QAResult, error) {
	if err := domain.Validate(domain.EntityQAResult, patch); err != nil {
		return nil, err
	}

	return r.modify(ctx, id, func(m *model.QAResult) {
		if patch.Severity != nil {
			m.Severity = string(*patch.Severity)
		}

		if patch.Message != nil {
			m.Message = *patch.Message
		}

		if patch.Resolved != nil {
			m.Resolved = *patch.Resolved
		}
	})
}

func (r *qaRepo) Resolve(ctx context.Context, id int64) (*domain.QAResult, error) {
	return r.modify(ctx, id, func(m *model.QAResult) { m.Resolved = true })
}

func (r *qaRepo) modify(ctx context.Context, id int64, apply func(*model.QAResult)) (*domain.QAResult, error) {
	var out *model.QAResult

	err := r.s.conn(ctx).Transaction(func(tx *gorm.DB) error {
		m, err := first[model.QAResult](tx, domain.EntityQAResult, id)
		if err != nil {
			return err
		}

		apply(m)
		m.UpdatedAt = r.s.now()
		out = m

		return tx.Save(m).Error
	})
	if err != nil {
		return nil, translate(domain.EntityQAResult, err)
	}

	return toQAResult(out), nil
}

func (r *qaRepo) Delete(ctx context.Context, id int64) error {
	res := r.s.conn(ctx).Delete(&model.QAResult{}, id)
	if res.Error != nil {
		return translate(domain.EntityQAResult, res.Error)
	}

	if res.RowsAffected == 0 {
		return domain.NotFound(domain.EntityQAResult, id)
	}

	return nil
}

func (r *qaRepo) DeleteForRow(ctx context.Context, rowID int64) (int, error) {
	res := r.s.conn(ctx).Where("row_id = ?", rowID).Delete(&model.QAResult{})
	if res.Error != nil {
		return 0, translate(domain.EntityQAResult, res.Error)
	}

	return int(res.RowsAffected), nil
}

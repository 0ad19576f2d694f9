package local

import (
	"context"

	sq "github.com/Masterminds/squirrel"

	"github.com/yeisme/tmvault/pkg/internal/domain"
)

type qaRepo struct {
	s *Store
}

func selectQA(s *Store) sq.SelectBuilder {
	return s.sq.Select(qaCols...).From(tableQAResults)
}

func (r *qaRepo) Get(ctx context.Context, id int64) (*domain.QAResult, error) {
	return one(ctx, r.s.db, selectQA(r.s).Where(sq.Eq{"id": id}), scanQAResult, domain.EntityQAResult, id)
}

func (r *qaRepo) GetAll(ctx context.Context, filter domain.QAFilter) ([]domain.QAResult, error) {
	b := selectQA(r.s)
	if filter.FileID != nil {
		b = b.Where(sq.Eq{"file_id": *filter.FileID})
	}

	if filter.RowID != nil {
		b = b.Where(sq.Eq{"row_id": *filter.RowID})
	}

	if filter.Unresolved {
		b = b.Where(sq.Eq{"resolved": false})
	}

	out, err := all(ctx, r.s.db, b.OrderBy("id"), scanQAResult)

	return out, translate(domain.EntityQAResult, err)
}

func (r *qaRepo) Create(ctx context.Context, in domain.QAInput) (*domain.QAResult, error) {
	if err := domain.Validate(domain.EntityQAResult, in); err != nil {
		return nil, err
	}

	now := r.s.now()

	var out *domain.QAResult

	err := r.s.write(ctx, func(tx querier) error {
		row, err := getRow(ctx, r.s, tx, in.RowID)
		if err != nil {
			return err
		}

		q := &domain.QAResult{
			FileID:    row.FileID,
			RowID:     row.ID,
			CheckType: in.CheckType,
			Severity:  in.Severity,
			Message:   in.Message,
			CreatedAt: now,
			UpdatedAt: now,
		}

		q.ID, err = insert(ctx, tx, r.s.sq.Insert(tableQAResults).
			Columns("file_id", "row_id", "check_type", "severity", "message", "resolved", "created_at", "updated_at").
			Values(q.FileID, q.RowID, q.CheckType, string(q.Severity), q.Message, false, nanos(now), nanos(now)))
		out = q

		return err
	})
	if err != nil {
		return nil, translate(domain.EntityQAResult, err)
	}

	return out, nil
}

func (r *qaRepo) Update(ctx context.Context, id int64, patch domain.QAPatch) (*domain.QAResult, error) {
	if err := domain.Validate(domain.EntityQAResult, patch); err != nil {
		return nil, err
	}

	return r.modify(ctx, id, func(q *domain.QAResult) {
		if patch.Severity != nil {
			q.Severity = *patch.Severity
		}

		if patch.Message != nil {
			q.Message = *patch.Message
		}

		if patch.Resolved != nil {
			q.Resolved = *patch.Resolved
		}
	})
}

func (r *qaRepo) Resolve(ctx context.Context, id int64) (*domain.QAResult, error) {
	return r.modify(ctx, id, func(q *domain.QAResult) { q.Resolved = true })
}

func (r *qaRepo) modify(ctx context.Context, id int64, apply func(*domain.QAResult)) (*domain.QAResult, error) {
	var out *domain.QAResult

	err := r.s.write(ctx, func(tx querier) error {
		q, err := one(ctx, tx, selectQA(r.s).Where(sq.Eq{"id": id}), scanQAResult, domain.EntityQAResult, id)
		if err != nil {
			return err
		}

		apply(q)
		q.UpdatedAt = r.s.now()
		out = q

		_, err = exec(ctx, tx, r.s.sq.Update(tableQAResults).SetMap(map[string]any{
			"severity":   string(q.Severity),
			"message":    q.Message,
			"resolved":   q.Resolved,
			"updated_at": nanos(q.UpdatedAt),
		}).Where(sq.Eq{"id": id}))

		return err
	})
	if err != nil {
		return nil, translate(domain.EntityQAResult, err)
	}

	return out, nil
}

func (r *qaRepo) Delete(ctx context.Context, id int64) error {
	var n int64

	err := r.s.write(ctx, func(tx querier) error {
		var err error
		n, err = affected(ctx, tx, r.s.sq.Delete(tableQAResults).Where(sq.Eq{"id": id}))

		return err
	})
	if err != nil {
		return translate(domain.EntityQAResult, err)
	}

	if n == 0 {
		return domain.NotFound(domain.EntityQAResult, id)
	}

	return nil
}

func (r *qaRepo) DeleteForRow(ctx context.Context, rowID int64) (int, error) {
	var n int64

	err := r.s.write(ctx, func(tx querier) error {
		var err error
		n, err = affected(ctx, tx, r.s.sq.Delete(tableQAResults).Where(sq.Eq{"row_id": rowID}))

		return err
	})
	if err != nil {
		return 0, translate(domain.EntityQAResult, err)
	}

	return int(n), nil
}

package service

import (
	"context"

	"github.com/yeisme/tmvault/pkg/internal/domain"
	"github.com/yeisme/tmvault/pkg/internal/repo"
)

// RowService 管理行与行上的 QA 结果.
type RowService struct{ base }

// NewRowService 从 context 创建服务.
func NewRowService(c context.Context) *RowService {
	return &RowService{newBase(c)}
}

func (s *RowService) List(ctx context.Context, f domain.RowFilter) ([]domain.Row, error) {
	return call(ctx, s.base, func(r *repo.Bundle) ([]domain.Row, error) { return r.Rows.GetAll(ctx, f) })
}

func (s *RowService) Get(ctx context.Context, id int64) (*domain.Row, error) {
	return call(ctx, s.base, func(r *repo.Bundle) (*domain.Row, error) { return r.Rows.Get(ctx, id) })
}

func (s *RowService) Create(ctx context.Context, in domain.RowInput) (*domain.Row, error) {
	return call(ctx, s.base, func(r *repo.Bundle) (*domain.Row, error) { return r.Rows.Create(ctx, in) })
}

// CreateBatch 批量导入，全部成功或全部失败.
func (s *RowService) CreateBatch(ctx context.Context, fileID int64, in []domain.RowInput) ([]domain.Row, error) {
	return call(ctx, s.base, func(r *repo.Bundle) ([]domain.Row, error) { return r.Rows.CreateBatch(ctx, fileID, in) })
}

func (s *RowService) Update(ctx context.Context, id int64, p domain.RowPatch) (*domain.Row, error) {
	return call(ctx, s.base, func(r *repo.Bundle) (*domain.Row, error) { return r.Rows.Update(ctx, id, p) })
}

// Delete 行只随文件删除，仓储总是拒绝.
func (s *RowService) Delete(ctx context.Context, id int64) error {
	return exec(ctx, s.base, func(r *repo.Bundle) error { return r.Rows.Delete(ctx, id) })
}

func (s *RowService) ListQA(ctx context.Context, f domain.QAFilter) ([]domain.QAResult, error) {
	return call(ctx, s.base, func(r *repo.Bundle) ([]domain.QAResult, error) { return r.QA.GetAll(ctx, f) })
}

func (s *RowService) CreateQA(ctx context.Context, in domain.QAInput) (*domain.QAResult, error) {
	return call(ctx, s.base, func(r *repo.Bundle) (*domain.QAResult, error) { return r.QA.Create(ctx, in) })
}

func (s *RowService) ResolveQA(ctx context.Context, id int64) (*domain.QAResult, error) {
	return call(ctx, s.base, func(r *repo.Bundle) (*domain.QAResult, error) { return r.QA.Resolve(ctx, id) })
}

func (s *RowService) DeleteQA(ctx context.Context, id int64) error {
	return exec(ctx, s.base, func(r *repo.Bundle) error { return r.QA.Delete(ctx, id) })
}

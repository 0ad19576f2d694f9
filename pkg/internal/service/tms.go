package service

import (
	"context"

	"github.com/yeisme/tmvault/pkg/internal/domain"
	"github.com/yeisme/tmvault/pkg/internal/repo"
)

// TMService 管理翻译记忆库、条目与作用域分配.
// 分配与激活在中心库上需要 manage_tm 能力.
type TMService struct{ base }

// NewTMService 从 context 创建服务.
func NewTMService(c context.Context) *TMService {
	return &TMService{newBase(c)}
}

func (s *TMService) List(ctx context.Context, f domain.TMFilter) ([]domain.TranslationMemory, error) {
	return call(ctx, s.base, func(r *repo.Bundle) ([]domain.TranslationMemory, error) { return r.TMs.GetAll(ctx, f) })
}

func (s *TMService) Get(ctx context.Context, id int64) (*domain.TranslationMemory, error) {
	return call(ctx, s.base, func(r *repo.Bundle) (*domain.TranslationMemory, error) { return r.TMs.Get(ctx, id) })
}

func (s *TMService) Create(ctx context.Context, in domain.TMInput) (*domain.TranslationMemory, error) {
	in.Owner = orActor(in.Owner, s.sess)

	return call(ctx, s.base, func(r *repo.Bundle) (*domain.TranslationMemory, error) { return r.TMs.Create(ctx, in) })
}

func (s *TMService) Update(ctx context.Context, id int64, p domain.TMPatch) (*domain.TranslationMemory, error) {
	return call(ctx, s.base, func(r *repo.Bundle) (*domain.TranslationMemory, error) { return r.TMs.Update(ctx, id, p) })
}

func (s *TMService) Delete(ctx context.Context, id int64) error {
	return exec(ctx, s.base, func(r *repo.Bundle) error {
		if err := s.require(ctx, r, domain.CapManageTM); err != nil {
			return err
		}

		return r.TMs.Delete(ctx, id)
	})
}

func (s *TMService) AddEntries(ctx context.Context, id int64, in []domain.TMEntryInput) ([]domain.TMEntry, error) {
	return call(ctx, s.base, func(r *repo.Bundle) ([]domain.TMEntry, error) { return r.TMs.AddEntries(ctx, id, in) })
}

func (s *TMService) Entries(ctx context.Context, id int64) ([]domain.TMEntry, error) {
	return call(ctx, s.base, func(r *repo.Bundle) ([]domain.TMEntry, error) { return r.TMs.Entries(ctx, id) })
}

// RegisterFromFile 以文件中已翻译的行创建 TM.
func (s *TMService) RegisterFromFile(ctx context.Context, fileID int64, in domain.RegisterTMInput) (*domain.TranslationMemory, error) {
	in.Owner = orActor(in.Owner, s.sess)

	return call(ctx, s.base, func(r *repo.Bundle) (*domain.TranslationMemory, error) {
		return r.TMs.RegisterFromFile(ctx, fileID, in)
	})
}

func (s *TMService) Assignment(ctx context.Context, id int64) (*domain.TMAssignment, error) {
	return call(ctx, s.base, func(r *repo.Bundle) (*domain.TMAssignment, error) { return r.TMs.GetAssignment(ctx, id) })
}

// Assign 将 TM 分配到恰好一个作用域，分配人记为会话用户.
func (s *TMService) Assign(ctx context.Context, id int64, scope domain.Scope) (*domain.TMAssignment, error) {
	return s.manage(ctx, func(r *repo.Bundle) (*domain.TMAssignment, error) { return r.TMs.Assign(ctx, id, scope, s.sess.User) })
}

func (s *TMService) Unassign(ctx context.Context, id int64) (*domain.TMAssignment, error) {
	return s.manage(ctx, func(r *repo.Bundle) (*domain.TMAssignment, error) { return r.TMs.Unassign(ctx, id) })
}

func (s *TMService) Activate(ctx context.Context, id int64) (*domain.TMAssignment, error) {
	return s.manage(ctx, func(r *repo.Bundle) (*domain.TMAssignment, error) { return r.TMs.Activate(ctx, id) })
}

func (s *TMService) Deactivate(ctx context.Context, id int64) (*domain.TMAssignment, error) {
	return s.manage(ctx, func(r *repo.Bundle) (*domain.TMAssignment, error) { return r.TMs.Deactivate(ctx, id) })
}

func (s *TMService) manage(ctx context.Context, fn func(r *repo.Bundle) (*domain.TMAssignment, error)) (*domain.TMAssignment, error) {
	return call(ctx, s.base, func(r *repo.Bundle) (*domain.TMAssignment, error) {
		if err := s.require(ctx, r, domain.CapManageTM); err != nil {
			return nil, err
		}

		return fn(r)
	})
}

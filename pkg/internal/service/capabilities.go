package service

import (
	"context"

	"github.com/yeisme/tmvault/pkg/internal/domain"
	"github.com/yeisme/tmvault/pkg/internal/repo"
)

// CapabilityService 授予与撤销用户能力.
type CapabilityService struct{ base }

// NewCapabilityService 从 context 创建服务.
func NewCapabilityService(c context.Context) *CapabilityService {
	return &CapabilityService{newBase(c)}
}

// Grant 授予人记为会话用户.
func (s *CapabilityService) Grant(ctx context.Context, in domain.CapabilityInput) (*domain.Capability, error) {
	in.GrantedBy = orActor(in.GrantedBy, s.sess)

	return call(ctx, s.base, func(r *repo.Bundle) (*domain.Capability, error) { return r.Capabilities.Grant(ctx, in) })
}

func (s *CapabilityService) Revoke(ctx context.Context, user, name string) error {
	return exec(ctx, s.base, func(r *repo.Bundle) error { return r.Capabilities.Revoke(ctx, user, name) })
}

func (s *CapabilityService) List(ctx context.Context, user string) ([]domain.Capability, error) {
	return call(ctx, s.base, func(r *repo.Bundle) ([]domain.Capability, error) { return r.Capabilities.GetAll(ctx, user) })
}

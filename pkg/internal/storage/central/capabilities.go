package central

import (
	"context"

	"gorm.io/gorm"

	"github.com/yeisme/tmvault/pkg/internal/domain"
	"github.com/yeisme/tmvault/pkg/internal/model"
)

type capabilityRepo struct {
	s *Store
}

// Grant 已授予时返回现有记录.
func (r *capabilityRepo) Grant(ctx context.Context, in domain.CapabilityInput) (*domain.Capability, error) {
	if err := domain.Validate(domain.EntityCapability, in); err != nil {
		return nil, err
	}

	var out *model.Capability

	err := r.s.conn(ctx).Transaction(func(tx *gorm.DB) error {
		var ms []model.Capability
		if err := tx.Where("user_name = ? AND name = ?", in.User, in.Name).Limit(1).Find(&ms).Error; err != nil {
			return err
		}

		if len(ms) > 0 {
			out = &ms[0]

			return nil
		}

		out = &model.Capability{User: in.User, Name: in.Name, GrantedBy: in.GrantedBy, GrantedAt: r.s.now()}

		return tx.Create(out).Error
	})
	if err != nil {
		return nil, translate(domain.EntityCapability, err)
	}

	return toCapability(out), nil
}

func (r *capabilityRepo) Revoke(ctx context.Context, user, name string) error {
	res := r.s.conn(ctx).Where("user_name = ? AND name = ?", user, name).Delete(&model.Capability{})
	if res.Error != nil {
		return translate(domain.EntityCapability, res.Error)
	}

	if res.RowsAffected == 0 {
		return domain.NotFound(domain.EntityCapability, user+"/"+name)
	}

	return nil
}

func (r *capabilityRepo) Has(ctx context.Context, user, name string) (bool, error) {
	ok, err := exists[model.Capability](r.s.conn(ctx), "user_name = ? AND name = ?", user, name)
	if err != nil {
		return false, translate(domain.EntityCapability, err)
	}

	return ok, nil
}

func (r *capabilityRepo) GetAll(ctx context.Context, user string) ([]domain.Capability, error) {
	var ms []model.Capability
	if err := r.s.conn(ctx).Where("user_name = ?", user).Order("name").Find(&ms).Error; err != nil {
		return nil, translate(domain.EntityCapability, err)
	}

	return mapSlice(ms, toCapability), nil
}

package local

import (
	"context"

	sq "github.com/Masterminds/squirrel"

	"github.com/yeisme/tmvault/pkg/internal/domain"
)

type capabilityRepo struct {
	s *Store
}

func selectCapabilities(s *Store) sq.SelectBuilder {
	return s.sq.Select(capabilityCols...).From(tableCapabilities)
}

// Grant 已授予时返回现有记录.
func (r *capabilityRepo) Grant(ctx context.Context, in domain.CapabilityInput) (*domain.Capability, error) {
	if err := domain.Validate(domain.EntityCapability, in); err != nil {
		return nil, err
	}

	var out *domain.Capability

	err := r.s.write(ctx, func(tx querier) error {
		cur, err := all(ctx, tx, selectCapabilities(r.s).
			Where(sq.Eq{"user_name": in.User, "name": in.Name}).Limit(1), scanCapability)
		if err != nil {
			return err
		}

		if len(cur) > 0 {
			out = &cur[0]

			return nil
		}

		c := &domain.Capability{User: in.User, Name: in.Name, GrantedBy: in.GrantedBy, GrantedAt: r.s.now()}
		c.ID, err = insert(ctx, tx, r.s.sq.Insert(tableCapabilities).
			Columns("user_name", "name", "granted_by", "granted_at").
			Values(c.User, c.Name, c.GrantedBy, nanos(c.GrantedAt)))
		out = c

		return err
	})
	if err != nil {
		return nil, translate(domain.EntityCapability, err)
	}

	return out, nil
}

func (r *capabilityRepo) Revoke(ctx context.Context, user, name string) error {
	var n int64

	err := r.s.write(ctx, func(tx querier) error {
		var err error
		n, err = affected(ctx, tx, r.s.sq.Delete(tableCapabilities).Where(sq.Eq{"user_name": user, "name": name}))

		return err
	})
	if err != nil {
		return translate(domain.EntityCapability, err)
	}

	if n == 0 {
		return domain.NotFound(domain.EntityCapability, user+"/"+name)
	}

	return nil
}

func (r *capabilityRepo) Has(ctx context.Context, user, name string) (bool, error) {
	ok, err := exists(ctx, r.s.db, tableCapabilities, sq.Eq{"user_name": user, "name": name})
	if err != nil {
		return false, translate(domain.EntityCapability, err)
	}

	return ok, nil
}

func (r *capabilityRepo) GetAll(ctx context.Context, user string) ([]domain.Capability, error) {
	out, err := all(ctx, r.s.db, selectCapabilities(r.s).Where(sq.Eq{"user_name": user}).OrderBy("name"), scanCapability)

	return out, translate(domain.EntityCapability, err)
}

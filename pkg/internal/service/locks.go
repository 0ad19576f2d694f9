package service

import (
	"context"

	"github.com/yeisme/tmvault/pkg/internal/domain"
	"github.com/yeisme/tmvault/pkg/internal/presence"
	"github.com/yeisme/tmvault/pkg/internal/repo"
)

// LockService 获取与释放中心库记录锁，本地库是单写者存储，不需要锁.
type LockService struct{ base }

// NewLockService 从 context 创建服务.
func NewLockService(c context.Context) *LockService {
	return &LockService{newBase(c)}
}

// holder 校验会话连接中心库，并确认记录存在.
func (s *LockService) holder(ctx context.Context, ref domain.RecordRef) (*presence.LockManager, presence.Holder, error) {
	h := presence.Holder{SessionID: s.sess.ID, User: s.sess.User}

	r, err := s.bundle(ctx)
	if err != nil {
		return nil, h, err
	}

	if r.Store != repo.StoreCentral || s.mgr.Locks == nil {
		return nil, h, domain.InvalidTransition(ref.Entity, "record locks exist only on the central store")
	}

	switch ref.Entity {
	case domain.EntityFile:
		if _, err := r.Files.Get(ctx, ref.ID); err != nil {
			return nil, h, err
		}

		h.FileID = ref.ID
	case domain.EntityRow:
		row, err := r.Rows.Get(ctx, ref.ID)
		if err != nil {
			return nil, h, err
		}

		h.FileID = row.FileID
	default:
		return nil, h, domain.Invalidf("lock", "unsupported entity %q", ref.Entity)
	}

	return s.mgr.Locks, h, nil
}

// Acquire 获取锁；同一会话重复获取会刷新 TTL.
func (s *LockService) Acquire(ctx context.Context, ref domain.RecordRef) (*presence.Lock, error) {
	m, h, err := s.holder(ctx, ref)
	if err != nil {
		return nil, err
	}

	return m.Acquire(ctx, ref, h)
}

// Release 只有持有者可以释放.
func (s *LockService) Release(ctx context.Context, ref domain.RecordRef) error {
	m, h, err := s.holder(ctx, ref)
	if err != nil {
		return err
	}

	return m.Release(ctx, ref, h)
}

// Get 返回记录当前的锁，没有锁时返回 NotFound.
func (s *LockService) Get(ctx context.Context, ref domain.RecordRef) (*presence.Lock, error) {
	m, _, err := s.holder(ctx, ref)
	if err != nil {
		return nil, err
	}

	return m.Get(ctx, ref)
}

// List 返回全部锁，包括尚未清理的过期锁.
func (s *LockService) List(ctx context.Context) ([]*presence.Lock, error) {
	if s.mgr == nil || s.mgr.Locks == nil {
		return []*presence.Lock{}, nil
	}

	return s.mgr.Locks.List(ctx)
}

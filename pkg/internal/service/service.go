// Package service 实现 HTTP 与命令行调用的业务操作.
//
// 每个服务从 context 取得存储管理器与会话，按会话的连接模式选择中心库或本地库，
// 再在其上组合层级解析、同步引擎与在线状态.
package service

import (
	"context"
	"errors"

	ctxPkg "github.com/yeisme/tmvault/pkg/context"
	"github.com/yeisme/tmvault/pkg/internal/domain"
	"github.com/yeisme/tmvault/pkg/internal/repo"
	"github.com/yeisme/tmvault/pkg/internal/session"
	"github.com/yeisme/tmvault/pkg/internal/storage"
)

type base struct {
	mgr  *storage.Manager
	sess session.Session
}

func newBase(c context.Context) base {
	return base{mgr: ctxPkg.GetManager(c), sess: session.From(c)}
}

// ready 检查 context 中是否注入了存储管理器.
func (b base) ready() error {
	if b.mgr == nil || b.mgr.Factory == nil {
		return domain.Unavailable("storage", errors.New("storage manager not initialized"))
	}

	return nil
}

// bundle 返回会话对应的仓储集合.
func (b base) bundle(ctx context.Context) (*repo.Bundle, error) {
	if err := b.ready(); err != nil {
		return nil, err
	}

	return b.mgr.Factory.For(ctx, b.sess)
}

// require 在中心库上校验会话用户的能力；本地库是单用户存储，不做校验.
func (b base) require(ctx context.Context, r *repo.Bundle, capability string) error {
	if r.Store != repo.StoreCentral {
		return nil
	}

	ok, err := r.Capabilities.Has(ctx, b.sess.User, capability)
	if err != nil {
		return err
	}

	if !ok {
		return domain.Forbidden(capability, b.sess.User)
	}

	return nil
}

// call 取得仓储集合后执行 fn.
func call[T any](ctx context.Context, b base, fn func(r *repo.Bundle) (T, error)) (T, error) {
	r, err := b.bundle(ctx)
	if err != nil {
		var zero T
		return zero, err
	}

	return fn(r)
}

// exec 与 call 相同，用于只返回错误的操作.
func exec(ctx context.Context, b base, fn func(r *repo.Bundle) error) error {
	r, err := b.bundle(ctx)
	if err != nil {
		return err
	}

	return fn(r)
}

// orActor 为空时使用会话用户.
func orActor(v string, s session.Session) string {
	if v != "" {
		return v
	}

	return s.User
}

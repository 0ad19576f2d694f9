// Package factory 按会话的连接模式返回绑定到中心库或本地库的仓储集合.
//
// For 没有副作用；中心库是否可用由熔断器状态决定，只有 Probe 会访问数据库.
package factory

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker"

	"github.com/yeisme/tmvault/pkg/configs"
	"github.com/yeisme/tmvault/pkg/internal/domain"
	"github.com/yeisme/tmvault/pkg/internal/repo"
	"github.com/yeisme/tmvault/pkg/internal/session"
	nlog "github.com/yeisme/tmvault/pkg/log"
)

// 连续失败达到该次数后熔断.
const defaultTripAfter = 3

// CentralStore 中心库，按会话生成仓储集合.
type CentralStore interface {
	Bundle(sessionID string) *repo.Bundle
	Ping(ctx context.Context) error
}

// LocalStore 本地库.
type LocalStore interface {
	Bundle() *repo.Bundle
}

// Factory 仓储工厂.
type Factory struct {
	central      CentralStore
	local        LocalStore
	breaker      *gobreaker.CircuitBreaker
	probeTimeout time.Duration
}

// Option 配置 Factory.
type Option func(*settings)

type settings struct {
	breaker      gobreaker.Settings
	probeTimeout time.Duration
}

// WithBreakerConfig 使用熔断配置中的打开时长与半开并发数.
func WithBreakerConfig(cfg configs.CircuitBreakerConfig) Option {
	return func(s *settings) {
		if cfg.TimeoutSeconds > 0 {
			s.breaker.Timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
		}

		if cfg.MaxRequestsInHalf > 0 {
			s.breaker.MaxRequests = cfg.MaxRequestsInHalf
		}
	}
}

// WithTripAfter 设置连续失败多少次后熔断.
func WithTripAfter(n uint32) Option {
	return func(s *settings) {
		if n == 0 {
			return
		}

		s.breaker.ReadyToTrip = func(c gobreaker.Counts) bool { return c.ConsecutiveFailures >= n }
	}
}

// WithProbeTimeout 设置探测超时.
func WithProbeTimeout(d time.Duration) Option {
	return func(s *settings) {
		if d > 0 {
			s.probeTimeout = d
		}
	}
}

// New 创建工厂；central 或 local 可以为 nil，表示未配置.
func New(central CentralStore, local LocalStore, opts ...Option) *Factory {
	st := settings{
		breaker: gobreaker.Settings{
			Name:        string(repo.StoreCentral),
			MaxRequests: 1,
			Timeout:     time.Duration(configs.DefaultCBTimeoutSeconds) * time.Second,
			ReadyToTrip: func(c gobreaker.Counts) bool { return c.ConsecutiveFailures >= defaultTripAfter },
			OnStateChange: func(name string, from, to gobreaker.State) {
				nlog.Logger().Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("central store breaker state changed")
			},
		},
		probeTimeout: configs.DefaultProbeTimeout,
	}

	for _, opt := range opts {
		opt(&st)
	}

	return &Factory{
		central:      central,
		local:        local,
		breaker:      gobreaker.NewCircuitBreaker(st.breaker),
		probeTimeout: st.probeTimeout,
	}
}

// For 返回会话对应的仓储集合：connected 绑定中心库，其余一律本地库.
func (f *Factory) For(_ context.Context, s session.Session) (*repo.Bundle, error) {
	if s.Mode == session.ModeConnected {
		return f.Central(s.ID)
	}

	return f.Local()
}

// Central 返回绑定到会话的中心库仓储集合.
func (f *Factory) Central(sessionID string) (*repo.Bundle, error) {
	if f.central == nil {
		return nil, domain.Unavailable(string(repo.StoreCentral), errors.New("central store is not configured"))
	}

	if f.breaker.State() == gobreaker.StateOpen {
		return nil, domain.Unavailable(string(repo.StoreCentral), gobreaker.ErrOpenState)
	}

	return f.central.Bundle(sessionID), nil
}

// Local 返回本地库仓储集合.
func (f *Factory) Local() (*repo.Bundle, error) {
	if f.local == nil {
		return nil, domain.Unavailable(string(repo.StoreLocal), errors.New("local store is not configured"))
	}

	return f.local.Bundle(), nil
}

// Probe 经熔断器探测中心库，由定时任务调用.
func (f *Factory) Probe(ctx context.Context) error {
	if f.central == nil {
		return domain.Unavailable(string(repo.StoreCentral), errors.New("central store is not configured"))
	}

	_, err := f.breaker.Execute(func() (any, error) {
		pctx, cancel := context.WithTimeout(ctx, f.probeTimeout)
		defer cancel()

		return nil, f.central.Ping(pctx)
	})
	if err == nil {
		return nil
	}

	var de *domain.Error
	if errors.As(err, &de) {
		return de
	}

	return domain.Unavailable(string(repo.StoreCentral), err)
}

// State 返回中心库熔断器状态.
func (f *Factory) State() string {
	return f.breaker.State().String()
}

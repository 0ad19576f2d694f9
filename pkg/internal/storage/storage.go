// Package storage 聚合运行期的存储资源：中心库、本地库、KV、消息队列，以及建立在它们之上的仓储工厂与记录锁.
//
// Example:
//
// 初始化
//
//	 ctx := context.Background()
//	 mgr, err := storage.Init(ctx)
//
//		if err != nil {
//		    // 处理错误
//		}
//
// 按会话获取仓储集合
//
//	bundle, err := mgr.Factory.For(ctx, session.From(ctx))
package storage

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/yeisme/tmvault/pkg/cache"
	"github.com/yeisme/tmvault/pkg/configs"
	"github.com/yeisme/tmvault/pkg/internal/factory"
	"github.com/yeisme/tmvault/pkg/internal/presence"
	"github.com/yeisme/tmvault/pkg/internal/storage/central"
	dbc "github.com/yeisme/tmvault/pkg/internal/storage/db"
	kvc "github.com/yeisme/tmvault/pkg/internal/storage/kv"
	"github.com/yeisme/tmvault/pkg/internal/storage/local"
	mqc "github.com/yeisme/tmvault/pkg/internal/storage/mq"
	"github.com/yeisme/tmvault/pkg/internal/syncer"
	nlog "github.com/yeisme/tmvault/pkg/log"
)

// Manager 聚合所有存储资源.
type Manager struct {
	DB      *dbc.Client // 中心库连接，未配置或不可达时为 nil
	Central *central.Store
	Local   *local.Store
	KV      *kvc.Client
	MQ      *mqc.Client

	Factory *factory.Factory
	Locks   *presence.LockManager
	Tracker *presence.Tracker
	Hub     *presence.Hub
	// AutoSync 打开文件时自动拉取使用的共享引擎，同一文件的并发请求合并为一次.
	AutoSync *syncer.Engine

	events configs.EventsConfig
}

const autoSyncSession = "auto-sync"

var (
	mgr     *Manager
	mgrOnce sync.Once
	mgrErr  error
)

// Init 初始化默认存储，使用全局配置.重复调用只返回已初始化实例.
func Init(ctx context.Context) (*Manager, error) {
	mgrOnce.Do(func() {
		mgr, mgrErr = New(ctx, configs.GetConfig())
		if mgrErr == nil {
			nlog.Logger().Info().Msg("storage manager initialized")
		}
	})

	return mgr, mgrErr
}

// New 按配置创建 Manager；中心库连接失败不算错误，工厂会报告 StoreUnavailable.
func New(ctx context.Context, cfg *configs.AppConfig) (*Manager, error) {
	m := &Manager{events: cfg.Events}

	kv, err := kvc.NewKVClient(ctx, &cfg.KV)
	if err != nil {
		return nil, fmt.Errorf("init kv: %w", err)
	}

	m.KV = kv

	if !cfg.KV.Shared() && cfg.MQ.Type != configs.MQTypeGoChannel {
		nlog.Logger().Warn().Str("kv", cfg.KV.Type).Str("mq", string(cfg.MQ.Type)).
			Msg("record locks are process-local while events are shared; other instances will not see them")
	}

	mq, err := mqc.New(ctx, &cfg.MQ)
	if err != nil {
		_ = m.Close()
		return nil, fmt.Errorf("init mq: %w", err)
	}

	m.MQ = mq

	m.Locks = presence.NewLockManager(kv, m.publisher(cfg.Events.Presence),
		presence.WithTTL(cfg.Locks.TTL),
		presence.WithKeyPrefix(cfg.Locks.KeyPrefix),
	)
	m.Tracker = presence.NewTracker(cache.NewCache(kv), m.publisher(cfg.Events.Presence),
		presence.WithHeartbeatTTL(cfg.Presence.HeartbeatTTL),
	)
	m.Hub = presence.NewHub(mq.Subscriber(), presence.WithTracker(m.Tracker))

	ls, err := local.Open(ctx, local.DSN(cfg.Local.Path, cfg.Local.BusyTimeoutMS),
		local.WithMaxActivePerScope(cfg.TM.MaxActivePerScope),
		local.WithMaxFolderDepth(cfg.TM.MaxFolderDepth),
		local.WithRetention(cfg.Trash.Retention()),
	)
	if err != nil {
		_ = m.Close()
		return nil, fmt.Errorf("open local store: %w", err)
	}

	m.Local = ls

	if db, err := dbc.New(ctx, &cfg.Central); err != nil {
		nlog.Logger().Warn().Err(err).Msg("central store unreachable, serving local store only")
	} else {
		m.DB = db
		m.Central = central.New(db.GetDB(),
			central.WithLockChecker(m.Locks),
			central.WithMaxActivePerScope(cfg.TM.MaxActivePerScope),
			central.WithMaxFolderDepth(cfg.TM.MaxFolderDepth),
			central.WithRetention(cfg.Trash.Retention()),
		)

		if err := m.Central.Migrate(ctx); err != nil {
			_ = m.Close()
			return nil, fmt.Errorf("migrate central store: %w", err)
		}

		m.AutoSync = syncer.NewEngine(m.Central.Bundle(autoSyncSession), m.Local.Bundle(),
			syncer.WithLocker(m.Locks),
			syncer.WithHolder(autoSyncSession, autoSyncSession),
			syncer.WithPublisher(m.SyncPublisher()),
		)
	}

	var cs factory.CentralStore
	if m.Central != nil {
		cs = m.Central
	}

	m.Factory = factory.New(cs, m.Local,
		factory.WithBreakerConfig(cfg.CircuitBreaker),
		factory.WithTripAfter(cfg.CircuitBreaker.CentralTripAfter),
		factory.WithProbeTimeout(cfg.Sync.ProbeTimeout),
	)

	return m, nil
}

// EventPublisher 返回通用事件的发布者，受总开关控制.
func (m *Manager) EventPublisher() message.Publisher {
	return m.publisher(true)
}

// SyncPublisher 返回同步事件的发布者，关闭时为 nil.
func (m *Manager) SyncPublisher() message.Publisher {
	return m.publisher(m.events.Sync)
}

// publisher 事件开关关闭时返回 nil，下游组件据此跳过发布.
func (m *Manager) publisher(enabled bool) message.Publisher {
	if m.MQ == nil || !m.events.Enabled || !enabled {
		return nil
	}

	return m.MQ.Publisher()
}

// Close 按创建的逆序释放资源.
func (m *Manager) Close() error {
	var errs []error

	if m.Hub != nil {
		errs = append(errs, m.Hub.Close())
	}

	if m.DB != nil {
		errs = append(errs, m.DB.Close())
	}

	if m.Local != nil {
		errs = append(errs, m.Local.Close())
	}

	if m.MQ != nil {
		errs = append(errs, m.MQ.Close())
	}

	if m.KV != nil {
		errs = append(errs, m.KV.Close())
	}

	return errors.Join(errs...)
}

// GetKVClient 获取 KV 客户端.
func (m *Manager) GetKVClient() *kvc.Client {
	return m.KV
}

// GetMQClient 获取 MQ 客户端.
func (m *Manager) GetMQClient() *mqc.Client {
	return m.MQ
}

// Package app 提供应用程序的初始化和配置功能.
package app

import (
	contextPkg "context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/yeisme/tmvault/pkg/cache"
	"github.com/yeisme/tmvault/pkg/configs"
	"github.com/yeisme/tmvault/pkg/internal/jobs"
	"github.com/yeisme/tmvault/pkg/internal/router"
	"github.com/yeisme/tmvault/pkg/internal/storage"
	"github.com/yeisme/tmvault/pkg/log"
	"github.com/yeisme/tmvault/pkg/metrics"
	"github.com/yeisme/tmvault/pkg/middleware"
	"github.com/yeisme/tmvault/pkg/scheduler"
	"github.com/yeisme/tmvault/pkg/tracing"
)

const healthCacheTTL = 5 * time.Second

// App HTTP 服务及其依赖.
type App struct {
	Engine  *gin.Engine
	Manager *storage.Manager
	Sched   *scheduler.Scheduler

	config *configs.AppConfig
	server *http.Server
}

// NewApp 初始化配置、日志、追踪、指标与存储，并装配路由和定时任务.
func NewApp(configPath string) (*App, error) {
	ctx := contextPkg.Background()

	// 初始化配置
	if err := configs.InitConfig(configPath); err != nil {
		return nil, fmt.Errorf("init config: %w", err)
	}

	config := configs.GetConfig()

	log.Init()

	// 初始化追踪
	if err := tracing.InitTracer(config.Tracing); err != nil {
		return nil, fmt.Errorf("init tracing: %w", err)
	}

	// 初始化监控
	if err := metrics.InitMetrics(config.Metrics); err != nil {
		return nil, fmt.Errorf("init metrics: %w", err)
	}

	manager, err := storage.Init(ctx)
	if err != nil {
		return nil, fmt.Errorf("init storage: %w", err)
	}

	sched, err := scheduler.NewScheduler()
	if err != nil {
		_ = manager.Close()
		return nil, fmt.Errorf("init scheduler: %w", err)
	}

	if err := jobs.RegisterCronJobs(sched, manager, config); err != nil {
		_ = manager.Close()
		return nil, err
	}

	l := log.Logger()
	gin.DefaultWriter = log.NewGinWriter(l, zerolog.InfoLevel)
	gin.DefaultErrorWriter = log.NewGinWriter(l, zerolog.ErrorLevel)

	engine := gin.New()
	engine.Use(
		gin.Recovery(),
		middleware.GinLoggerMiddleware(),
		middleware.CORSMiddleware(config.Server),
		// websocket 需要劫持连接，不能经过 gzip writer
		gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPathsRegexs([]string{`/presence/ws$`})),
		middleware.TracingMiddleware(),
		middleware.PrometheusMiddleware(),
	)

	v1 := engine.Group("/api/v1",
		middleware.AuthMiddleware(config.Auth),
		middleware.SessionMiddleware(config.Auth),
		middleware.RoleMiddleware(),
		middleware.RateLimitMiddleware(config.RateLimit),
		middleware.CircuitBreakerMiddleware(config.CircuitBreaker),
		middleware.StorageMiddleware(manager),
		middleware.SchedulerMiddleware(sched),
	)

	healthCache := middleware.DefaultCacheConfig(cache.NewCache(manager.KV))
	healthCache.TTL = healthCacheTTL

	router.RegisterAll(v1, middleware.CacheMiddleware(healthCache))

	if config.Metrics.Enabled {
		if err := metrics.StartMetricsServer(config.Metrics, engine); err != nil {
			return nil, fmt.Errorf("start metrics: %w", err)
		}
	}

	return &App{
		Engine:  engine,
		Manager: manager,
		Sched:   sched,
		config:  config,
	}, nil
}

// Run 启动定时任务并阻塞监听，直到 ctx 结束后优雅关闭.
func (a *App) Run(ctx contextPkg.Context) error {
	a.server = &http.Server{
		Addr:              a.config.Server.Addr(),
		Handler:           a.Engine,
		ReadHeaderTimeout: a.config.Server.GetTimeoutDuration(),
	}

	a.Sched.Start()

	errCh := make(chan error, 1)

	go func() {
		log.Logger().Info().Str("addr", a.server.Addr).Msg("http server listening")

		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}

		close(errCh)
	}()

	select {
	case err := <-errCh:
		_ = a.shutdown()
		return err
	case <-ctx.Done():
	}

	return a.shutdown()
}

// shutdown 先停止接收请求，再释放调度器、追踪与存储.
func (a *App) shutdown() error {
	grace := a.config.Server.ShutdownTimeout
	if grace <= 0 {
		grace = configs.DefaultShutdownTimeout
	}

	ctx, cancel := contextPkg.WithTimeout(contextPkg.Background(), grace)
	defer cancel()

	var errs []error

	if a.server != nil {
		errs = append(errs, a.server.Shutdown(ctx))
	}

	errs = append(errs,
		a.Sched.Shutdown(),
		tracing.ShutdownTracer(ctx),
		a.Manager.Close(),
	)

	log.Logger().Info().Msg("server stopped")

	return errors.Join(errs...)
}

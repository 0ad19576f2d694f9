// Package metrics 提供监控指标功能.
// 支持Prometheus标准，收集应用和系统指标.
//
// Example:
//
//	import "github.com/yeisme/tmvault/pkg/metrics"
//
//	err := metrics.InitMetrics(config.Metrics)
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	// 记录指标
//	metrics.RequestCounter.WithLabelValues("GET", "/api/v1/files/:id", "200").Inc()
//	metrics.SyncTransfers.WithLabelValues("download", "file", "synced").Inc()
package metrics

import (
	"fmt"
	"net"
	"net/http"
	_ "net/http/pprof" // 自动注册pprof端点
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/yeisme/tmvault/pkg/configs"
)

// 全局指标变量.
var (
	// RequestCounter HTTP请求计数器.
	RequestCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	// RequestDuration HTTP请求持续时间.
	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)

	// PresenceConnections 当前打开的在线状态 WebSocket 连接数.
	PresenceConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "tmvault",
			Name:      "presence_connections",
			Help:      "Open presence websocket connections",
		},
	)

	// SyncTransfers 同步引擎按方向、实体与结果统计的条目数.
	SyncTransfers = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tmvault",
			Name:      "sync_entities_total",
			Help:      "Entities processed by the sync engine",
		},
		[]string{"direction", "entity", "outcome"},
	)

	// SyncConflicts 双方修改的冲突次数，按胜出方统计.
	SyncConflicts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tmvault",
			Name:      "sync_conflicts_total",
			Help:      "Sync conflicts resolved by last-write-wins",
		},
		[]string{"entity", "winner"},
	)

	// LockContention 获取记录锁被拒绝的次数.
	LockContention = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tmvault",
			Name:      "lock_contention_total",
			Help:      "Lock acquisitions rejected because another session holds the lock",
		},
		[]string{"entity"},
	)

	// ResolverLatency TM 层级解析耗时.
	ResolverLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "tmvault",
			Name:      "tm_resolve_duration_seconds",
			Help:      "TM hierarchy resolution latency",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	// JobRuns 后台任务执行次数，按结果统计.
	JobRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tmvault",
			Name:      "job_runs_total",
			Help:      "Scheduled job executions",
		},
		[]string{"job", "result"},
	)

	// JobDuration 后台任务耗时.
	JobDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "tmvault",
			Name:      "job_duration_seconds",
			Help:      "Scheduled job duration",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"job"},
	)

	// registry Prometheus注册表.
	registry = prometheus.NewRegistry()
	initOnce sync.Once
)

// InitMetrics 初始化Metrics，重复调用只注册一次.
func InitMetrics(config configs.MetricsConfig) error {
	if !config.Enabled {
		return nil
	}

	initOnce.Do(func() {
		reg := prometheus.WrapRegistererWith(config.Labels, registry)

		// 运行时指标只从本注册表输出，避免与默认注册表重复
		prometheus.Unregister(collectors.NewGoCollector())
		prometheus.Unregister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

		// 注册标准收集器
		if config.RuntimeMetrics {
			reg.MustRegister(
				collectors.NewGoCollector(),
				collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
			)
		}

		reg.MustRegister(RequestCounter, RequestDuration, PresenceConnections)
		reg.MustRegister(SyncTransfers, SyncConflicts, LockContention, ResolverLatency)
		reg.MustRegister(JobRuns, JobDuration)
	})

	return nil
}

// StartMetricsServer 暴露 /metrics；config.Endpoint 为空时挂在 engine 上，否则单独监听该地址.
func StartMetricsServer(config configs.MetricsConfig, engine *gin.Engine) error {
	if !config.Enabled {
		return nil
	}

	// 默认注册表中有 GORM 插件的连接池指标
	handler := promhttp.HandlerFor(prometheus.Gatherers{registry, prometheus.DefaultGatherer}, promhttp.HandlerOpts{})

	if config.Endpoint == "" {
		engine.GET("/metrics", gin.WrapH(handler))

		if config.Pprof {
			engine.GET("/debug/pprof/*any", gin.WrapH(http.DefaultServeMux))
		}

		return nil
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", handler)

	if config.Pprof {
		mux.Handle("/debug/pprof/", http.DefaultServeMux)
	}

	ln, err := net.Listen("tcp", config.Endpoint)
	if err != nil {
		return fmt.Errorf("listen metrics %s: %w", config.Endpoint, err)
	}

	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() { _ = srv.Serve(ln) }()

	return nil
}

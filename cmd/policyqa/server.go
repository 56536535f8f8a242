package main

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/BaSui01/policyqa/api/handlers"
	"github.com/BaSui01/policyqa/config"
	"github.com/BaSui01/policyqa/internal/metrics"
	"github.com/BaSui01/policyqa/internal/server"
	"github.com/BaSui01/policyqa/policy"
	"github.com/BaSui01/policyqa/types"
)

// =============================================================================
// 🖥️ Server
// =============================================================================

// Server 托管 API 端口、Metrics 端口以及投递目录监听
type Server struct {
	cfg       *config.Config
	app       *App
	collector *metrics.Collector
	logger    *zap.Logger
}

// NewServer 创建服务器
func NewServer(cfg *config.Config, app *App, collector *metrics.Collector, logger *zap.Logger) *Server {
	return &Server{
		cfg:       cfg,
		app:       app,
		collector: collector,
		logger:    logger,
	}
}

// Handler 构建 API 路由与中间件链。ctx 控制限流器后台清理的生命周期。
func (s *Server) Handler(ctx context.Context) http.Handler {
	mux := http.NewServeMux()

	// 健康检查端点
	health := handlers.NewHealthHandler(s.logger)
	for _, check := range s.app.HealthChecks() {
		health.RegisterCheck(check)
	}
	mux.HandleFunc("GET /health", health.HandleHealth)
	mux.HandleFunc("GET /healthz", health.HandleHealthz)
	mux.HandleFunc("GET /ready", health.HandleReady)
	mux.HandleFunc("GET /version", health.HandleVersion(Version, BuildTime, GitCommit))

	// 政策 API
	handlers.NewPolicyHandler(s.app.Service, s.logger).Register(mux)

	chain := []Middleware{
		Recovery(s.logger),
		RequestID(),
		OTelTracing(),
		SecurityHeaders(),
		RequestLogger(s.logger),
	}
	if s.collector != nil {
		chain = append(chain, MetricsMiddleware(s.collector))
	}
	chain = append(chain,
		CORS(s.cfg.Server.CORSAllowedOrigins),
		RateLimiter(ctx, s.cfg.Server.RateLimitRPS, s.cfg.Server.RateLimitBurst, s.logger),
	)
	return Chain(mux, chain...)
}

// MetricsHandler 独立端口上的 /metrics
func (s *Server) MetricsHandler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", promhttp.Handler())
	return mux
}

// Run 启动所有组件并阻塞到 ctx 结束；任一服务器异常退出都会触发整体关闭
func (s *Server) Run(ctx context.Context) error {
	// 预热：已有持久化索引时启动即就绪，失败只记录，状态接口会继续报告
	if ok, err := s.app.Index.Load(ctx); err != nil {
		s.logger.Error("failed to load persisted index", zap.Error(err))
	} else if !ok {
		s.logger.Info("no persisted index yet, waiting for ingestion")
	}

	g, gctx := errgroup.WithContext(ctx)

	api := server.NewManager("api", s.Handler(gctx), server.ConfigFrom(s.cfg.Server, s.cfg.Server.HTTPPort), s.logger)
	g.Go(func() error { return api.Run(gctx) })

	if s.cfg.Server.MetricsPort > 0 {
		ms := server.NewManager("metrics", s.MetricsHandler(), server.ConfigFrom(s.cfg.Server, s.cfg.Server.MetricsPort), s.logger)
		g.Go(func() error { return ms.Run(gctx) })
	}

	g.Go(func() error {
		s.app.RunPoolStats(gctx)
		return nil
	})

	if s.cfg.Inbox.Enabled {
		watcher := policy.NewInboxWatcher(s.app.Service, s.cfg.Inbox.Dir, s.cfg.Inbox.Debounce, s.logger,
			policy.WithInboxCallback(s.logInboxEvent))
		g.Go(func() error {
			if s.cfg.Inbox.IndexOnStart {
				if err := watcher.Scan(gctx); err != nil {
					s.logger.Warn("initial inbox scan failed", zap.String("dir", s.cfg.Inbox.Dir), zap.Error(err))
				}
			}
			return watcher.Run(gctx)
		})
	}

	s.logger.Info("policyqa started",
		zap.Int("http_port", s.cfg.Server.HTTPPort),
		zap.Int("metrics_port", s.cfg.Server.MetricsPort),
		zap.String("index_store", s.cfg.Index.Store),
		zap.Bool("inbox_enabled", s.cfg.Inbox.Enabled),
	)

	err := g.Wait()
	s.logger.Info("graceful shutdown completed")
	return err
}

func (s *Server) logInboxEvent(ev policy.InboxEvent) {
	if ev.Err != nil {
		s.logger.Warn("inbox ingestion failed",
			zap.String("path", ev.Path),
			zap.String("code", string(types.GetErrorCode(ev.Err))),
			zap.Error(ev.Err))
		return
	}
	s.logger.Info("inbox document indexed",
		zap.String("path", ev.Path),
		zap.String("title", ev.Result.Title),
		zap.Int("chunks", ev.Result.Chunks))
}

package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/BaSui01/policyqa/api/handlers"
	"github.com/BaSui01/policyqa/config"
	"github.com/BaSui01/policyqa/internal/cache"
	"github.com/BaSui01/policyqa/internal/database"
	"github.com/BaSui01/policyqa/internal/metrics"
	"github.com/BaSui01/policyqa/llm"
	"github.com/BaSui01/policyqa/llm/circuitbreaker"
	"github.com/BaSui01/policyqa/llm/embedding"
	"github.com/BaSui01/policyqa/llm/tokenizer"
	"github.com/BaSui01/policyqa/policy"
	"github.com/BaSui01/policyqa/rag"
	"github.com/BaSui01/policyqa/types"
)

// =============================================================================
// 🧩 组件组装
// =============================================================================

const (
	poolStatsInterval = 15 * time.Second
	sqlTxRetries      = 3
)

// App 组装完成的政策问答核心及其外部依赖
type App struct {
	Service *policy.Service
	Index   *rag.IndexManager
	Cache   *cache.Manager        // 未启用嵌入缓存时为 nil
	Pool    *database.PoolManager // file 存储时为 nil

	cfg       *config.Config
	collector *metrics.Collector
	closers   []func() error
	logger    *zap.Logger
}

// NewApp 按配置组装所有组件。collector 为 nil 时不接入指标（CLI 子命令）。
func NewApp(ctx context.Context, cfg *config.Config, collector *metrics.Collector, logger *zap.Logger) (_ *App, err error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	app := &App{
		cfg:       cfg,
		collector: collector,
		logger:    logger,
	}
	defer func() {
		if err != nil {
			_ = app.Close()
		}
	}()

	embedder, err := app.buildEmbedder()
	if err != nil {
		return nil, err
	}

	store, err := app.buildStore(ctx)
	if err != nil {
		return nil, err
	}

	var (
		indexOpts []rag.IndexManagerOption
		ragOpts   []rag.RAGOption
		svcOpts   []policy.ServiceOption
	)
	if collector != nil {
		indexOpts = append(indexOpts, rag.WithIndexObserver(collector))
		ragOpts = append(ragOpts, rag.WithAnswerObserver(collector))
		svcOpts = append(svcOpts, policy.WithIngestionObserver(collector))
	}

	app.Index = rag.NewIndexManager(store, logger, indexOpts...)

	splitter, err := rag.NewRecursiveSplitter(rag.ChunkingConfig{
		ChunkSize:    cfg.Chunking.ChunkSize,
		ChunkOverlap: cfg.Chunking.ChunkOverlap,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("create splitter: %w", err)
	}

	gen := app.buildGenerator()
	synthesizer := rag.NewAnswerSynthesizer(gen, tokenizer.ForModel(cfg.LLM.Model, logger), rag.SynthesizerConfig{
		Model:           cfg.LLM.Model,
		Temperature:     float32(cfg.LLM.Temperature),
		MaxTokens:       cfg.LLM.MaxTokens,
		MaxPromptTokens: cfg.LLM.MaxPromptTokens,
	}, logger)

	pipeline := rag.NewConversationalRAG(
		app.Index,
		rag.NewQueryReformulator(gen, cfg.LLM.Model, logger),
		rag.NewRetriever(embedder, app.Index, cfg.Retrieval.TopK, logger),
		synthesizer,
		logger,
		ragOpts...,
	)

	app.Service, err = policy.NewService(policy.Components{
		Index:    app.Index,
		RAG:      pipeline,
		Splitter: splitter,
		Embedder: embedder,
		Store:    cfg.Index.Store,
	}, logger, svcOpts...)
	if err != nil {
		return nil, err
	}
	return app, nil
}

// buildEmbedder OpenAI 兼容嵌入 → 超时/重试 → 可选 Redis 缓存
func (a *App) buildEmbedder() (embedding.Provider, error) {
	ec := a.cfg.Embedding
	guard := llm.NewCallGuard("embedding", providerName(ec.Provider), ec.Model, ec.Timeout, ec.MaxRetries, a.logger).
		WithBreaker(a.newBreaker("embedding"))
	if a.collector != nil {
		guard.WithObserver(a.collector)
	}
	var provider embedding.Provider = embedding.NewResilientProvider(
		embedding.NewOpenAIProvider(embedding.OpenAIConfigFrom(ec)), guard)

	if !ec.CacheEnabled {
		return provider, nil
	}

	cm, err := cache.NewManager(cache.ConfigFrom(a.cfg.Redis, ec.CacheTTL), a.logger)
	if err != nil {
		// 缓存只是加速手段，不可用时直接访问嵌入服务
		a.logger.Warn("embedding cache unavailable, continuing without it", zap.Error(err))
		return provider, nil
	}
	a.Cache = cm
	a.closers = append(a.closers, cm.Close)

	cached := embedding.NewCachedProvider(provider, cm, ec.CacheTTL, a.logger)
	if a.collector != nil {
		cached.WithObserver(a.collector)
	}
	return cached, nil
}

func (a *App) buildGenerator() llm.Provider {
	lc := a.cfg.LLM
	guard := llm.NewCallGuard("generation", providerName(lc.Provider), lc.Model, lc.Timeout, lc.MaxRetries, a.logger).
		WithBreaker(a.newBreaker("generation"))
	if a.collector != nil {
		guard.WithObserver(a.collector)
	}
	return llm.NewResilientProvider(llm.NewOpenAIProvider(llm.OpenAIConfig{
		ProviderName: lc.Provider,
		APIKey:       lc.APIKey,
		BaseURL:      lc.BaseURL,
		Model:        lc.Model,
		Timeout:      lc.Timeout,
	}, a.logger), guard)
}

func (a *App) newBreaker(kind string) *circuitbreaker.Breaker {
	cfg := circuitbreaker.DefaultConfig()
	cfg.OnStateChange = func(from, to circuitbreaker.State) {
		a.logger.Info("circuit state changed",
			zap.String("kind", kind),
			zap.Stringer("from", from),
			zap.Stringer("to", to))
	}
	return circuitbreaker.New(kind, cfg, a.logger)
}

func (a *App) buildStore(ctx context.Context) (rag.IndexStore, error) {
	ic := a.cfg.Index
	switch ic.Store {
	case config.StoreFile:
		return rag.NewFileStore(ic.Dir, ic.Name, a.logger), nil

	case config.StoreSQL:
		db, err := database.Open(ic.Database, a.logger)
		if err != nil {
			return nil, types.NewError(types.ErrStorageUnavailable, "open index database").WithCause(err)
		}
		pool, err := database.NewPoolManager(db, database.PoolConfigFrom(ic.Database), a.logger)
		if err != nil {
			if sqlDB, dbErr := db.DB(); dbErr == nil {
				_ = sqlDB.Close()
			}
			return nil, fmt.Errorf("create connection pool: %w", err)
		}
		a.Pool = pool
		a.closers = append(a.closers, pool.Close)

		location := ic.Database.Driver + ":" + ic.Database.Name
		return rag.NewSQLStore(ctx, pool.DB(), ic.Name, location, a.logger,
			rag.WithTxRunner(func(ctx context.Context, fn func(tx *gorm.DB) error) error {
				// sqlite 在 CLI 与服务同时写入时可能返回 database is locked
				return pool.WithTransactionRetry(ctx, sqlTxRetries, fn)
			}))

	default:
		return nil, fmt.Errorf("unsupported index store %q", ic.Store)
	}
}

// HealthChecks 返回 /ready 使用的依赖检查
func (a *App) HealthChecks() []handlers.HealthCheck {
	checks := []handlers.HealthCheck{a.Index}
	if a.Cache != nil {
		checks = append(checks, a.Cache)
	}
	if a.Pool != nil {
		checks = append(checks, a.Pool)
	}
	return checks
}

// RunPoolStats 周期性上报连接池状态，直到 ctx 结束
func (a *App) RunPoolStats(ctx context.Context) {
	if a.Pool == nil || a.collector == nil {
		return
	}
	driver := a.cfg.Index.Database.Driver
	ticker := time.NewTicker(poolStatsInterval)
	defer ticker.Stop()
	for {
		stats := a.Pool.Stats()
		a.collector.RecordDBConnections(driver, stats.OpenConnections, stats.Idle)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Close 按创建的逆序释放外部连接
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

func providerName(name string) string {
	if name == "" {
		return "openai"
	}
	return name
}

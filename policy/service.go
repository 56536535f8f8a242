package policy

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/BaSui01/policyqa/rag"
	"github.com/BaSui01/policyqa/rag/loader"
	"github.com/BaSui01/policyqa/types"
)

var tracer = otel.Tracer("github.com/BaSui01/policyqa/policy")

// 摄入结果（指标标签）
const (
	IngestIndexed = "indexed"
	IngestFailed  = "failed"
)

// IngestionObserver 接收每个文档的摄入结果（用于指标）
type IngestionObserver interface {
	ObserveIngestion(outcome string, chunks int, duration time.Duration)
}

// IndexResult 单个文档的摄入结果
type IndexResult struct {
	Title      string `json:"title"`
	SourcePath string `json:"source_path"`
	Chunks     int    `json:"chunks"`
}

// BulkResult 目录批量摄入的汇总
type BulkResult struct {
	Indexed     int      `json:"indexed"`
	Failed      []string `json:"failed"`
	TotalChunks int      `json:"total_chunks"`
}

// Status 索引状态报告，任何状态下都可获取
type Status struct {
	Indexed      bool   `json:"indexed"`
	TotalVectors int    `json:"total_vectors"`
	Location     string `json:"location"`
	Dimension    int    `json:"dimension"`
	Store        string `json:"store"`
	State        string `json:"state"`
	Error        string `json:"error,omitempty"`
}

// Components 组装 Service 所需的组件
type Components struct {
	Index    *rag.IndexManager
	RAG      *rag.ConversationalRAG
	Splitter *rag.RecursiveSplitter
	Embedder rag.Embedder
	// Loaders 为 nil 时使用内置的 txt / md / pdf 加载器
	Loaders *loader.LoaderRegistry
	// Store 存储后端名称，仅用于状态报告
	Store string
}

// Service 政策问答核心的对外操作：摄入、问答、状态与推荐问题
type Service struct {
	index    *rag.IndexManager
	rag      *rag.ConversationalRAG
	splitter *rag.RecursiveSplitter
	embedder rag.Embedder
	loaders  *loader.LoaderRegistry
	store    string
	observer IngestionObserver
	logger   *zap.Logger
}

// ServiceOption 配置 Service
type ServiceOption func(*Service)

// WithIngestionObserver 设置摄入观察者
func WithIngestionObserver(o IngestionObserver) ServiceOption {
	return func(s *Service) {
		s.observer = o
	}
}

// NewService 创建服务
func NewService(c Components, logger *zap.Logger, opts ...ServiceOption) (*Service, error) {
	if c.Index == nil || c.RAG == nil || c.Splitter == nil || c.Embedder == nil {
		return nil, fmt.Errorf("policy service requires index, rag pipeline, splitter and embedder")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if c.Loaders == nil {
		c.Loaders = loader.NewLoaderRegistry()
	}
	s := &Service{
		index:    c.Index,
		rag:      c.RAG,
		splitter: c.Splitter,
		embedder: c.Embedder,
		loaders:  c.Loaders,
		store:    c.Store,
		logger:   logger.With(zap.String("component", "policy_service")),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Supports reports whether path has a loadable extension.
func (s *Service) Supports(path string) bool {
	return s.loaders.Supports(path)
}

// =============================================================================
// 📥 摄入
// =============================================================================

// IndexDocument 加载、切分、嵌入并追加一个政策文件。title 为空时从文件推断。
// 任何一步失败都返回 INGESTION_FAILURE，索引保持调用前的状态。
func (s *Service) IndexDocument(ctx context.Context, path, title string) (result *IndexResult, err error) {
	start := time.Now()
	name := filepath.Base(path)

	ctx, span := tracer.Start(ctx, "policy.IndexDocument")
	span.SetAttributes(attribute.String("file", name))
	defer func() {
		outcome, chunks := IngestIndexed, 0
		if err != nil {
			outcome = IngestFailed
			span.RecordError(err)
			span.SetStatus(codes.Error, "ingestion failed")
			s.logger.Warn("document ingestion failed",
				zap.String("file", name),
				zap.Error(err))
		} else {
			chunks = result.Chunks
			span.SetAttributes(attribute.Int("chunks", chunks))
		}
		span.End()
		if s.observer != nil {
			s.observer.ObserveIngestion(outcome, chunks, time.Since(start))
		}
	}()

	doc, err := s.loaders.Load(ctx, path, title)
	if err != nil {
		return nil, types.NewIngestionError(name, err)
	}

	chunks := s.splitter.ChunkDocument(doc)
	if len(chunks) == 0 {
		return nil, types.NewIngestionError(name, fmt.Errorf("document produced no chunks"))
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	vectors, err := s.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, types.NewIngestionError(name, fmt.Errorf("embed chunks: %w", err))
	}

	if err := s.index.BuildOrAppend(ctx, chunks, vectors); err != nil {
		return nil, types.NewIngestionError(name, err)
	}

	s.logger.Info("document indexed",
		zap.String("file", name),
		zap.String("title", doc.Title),
		zap.Int("chunks", len(chunks)),
		zap.Int("total_vectors", s.index.Stats().TotalVectors),
		zap.Duration("elapsed", time.Since(start)))

	return &IndexResult{
		Title:      doc.Title,
		SourcePath: path,
		Chunks:     len(chunks),
	}, nil
}

// IndexDirectory 逐个摄入目录下的文件（不递归，跳过隐藏文件），按文件名排序。
// 单个文件失败不影响其余文件，失败的文件名记录在 Failed 中。
func (s *Service) IndexDirectory(ctx context.Context, dir string) (*BulkResult, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read policy directory: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	result := &BulkResult{Failed: []string{}}
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		res, err := s.IndexDocument(ctx, filepath.Join(dir, name), "")
		if err != nil {
			result.Failed = append(result.Failed, name)
			continue
		}
		result.Indexed++
		result.TotalChunks += res.Chunks
	}

	s.logger.Info("policy directory indexed",
		zap.String("dir", dir),
		zap.Int("indexed", result.Indexed),
		zap.Strings("failed", result.Failed),
		zap.Int("total_chunks", result.TotalChunks))
	return result, nil
}

// =============================================================================
// 💬 问答与状态
// =============================================================================

// Ask 回答一个问题
func (s *Service) Ask(ctx context.Context, question string, history []types.Turn) (*rag.Answer, error) {
	return s.rag.Answer(ctx, question, history)
}

// Status 报告索引规模与位置。尚未加载时先尝试加载已持久化的索引。
func (s *Service) Status(ctx context.Context) Status {
	var loadErr error
	if err := s.rag.EnsureReady(ctx); err != nil && !types.IsErrorCode(err, types.ErrIndexNotReady) {
		loadErr = err
	}

	stats := s.index.Stats()
	st := Status{
		Indexed:      stats.Indexed,
		TotalVectors: stats.TotalVectors,
		Location:     stats.Location,
		Dimension:    stats.Dimension,
		Store:        s.store,
		State:        stats.State,
	}
	if loadErr != nil {
		st.Error = loadErr.Error()
	}
	return st
}

var suggestions = []string{
	"How many casual leaves do I get per year?",
	"What is the work from home policy?",
	"How do I claim travel expenses?",
	"What is the notice period for resignation?",
	"Can unused leave be carried over to next year?",
	"What are the core working hours?",
}

// Suggestions 推荐问题（静态列表）
func (s *Service) Suggestions() []string {
	out := make([]string, len(suggestions))
	copy(out, suggestions)
	return out
}

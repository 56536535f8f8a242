package rag

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

// DefaultTopK 默认检索条数
const DefaultTopK = 4

// Retriever 嵌入查询并在索引上做 top-k 余弦检索
type Retriever struct {
	embedder Embedder
	index    VectorSearcher
	topK     int
	logger   *zap.Logger
}

// NewRetriever 创建检索器，topK <= 0 时使用 DefaultTopK
func NewRetriever(embedder Embedder, index VectorSearcher, topK int, logger *zap.Logger) *Retriever {
	if topK <= 0 {
		topK = DefaultTopK
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Retriever{
		embedder: embedder,
		index:    index,
		topK:     topK,
		logger:   logger.With(zap.String("component", "retriever")),
	}
}

// TopK 返回配置的检索条数
func (r *Retriever) TopK() int { return r.topK }

// Retrieve 使用配置的 topK 检索
func (r *Retriever) Retrieve(ctx context.Context, query string) ([]RetrievalResult, error) {
	return r.RetrieveK(ctx, query, r.topK)
}

// RetrieveK 返回至多 k 条结果，按相似度非递增排序。索引为空时返回空结果。
func (r *Retriever) RetrieveK(ctx context.Context, query string, k int) ([]RetrievalResult, error) {
	ctx, span := tracer.Start(ctx, "rag.Retrieve")
	defer span.End()
	span.SetAttributes(attribute.Int("k", k))

	if k <= 0 || r.index.Stats().TotalVectors == 0 {
		return []RetrievalResult{}, nil
	}

	vec, err := r.embedder.EmbedQuery(ctx, query)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "embed query")
		return nil, err
	}

	results, err := r.index.Search(vec, k)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "search")
		return nil, fmt.Errorf("search index: %w", err)
	}

	span.SetAttributes(attribute.Int("results", len(results)))
	r.logger.Debug("retrieved chunks",
		zap.Int("k", k),
		zap.Int("results", len(results)))
	return results, nil
}

package rag

import (
	"context"

	"go.opentelemetry.io/otel"

	"github.com/BaSui01/policyqa/llm"
)

var tracer = otel.Tracer("github.com/BaSui01/policyqa/rag")

// Embedder 把文本映射为固定维度的向量（embedding.Provider 满足此接口）
type Embedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float64, error)
	EmbedDocuments(ctx context.Context, texts []string) ([][]float64, error)
}

// Generator 文本生成能力，改写与答案合成共用（llm.Provider 满足此接口）
type Generator interface {
	Completion(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error)
}

// VectorSearcher 只读检索视图（IndexManager 满足此接口）
type VectorSearcher interface {
	Search(query []float64, k int) ([]RetrievalResult, error)
	Stats() IndexStats
}

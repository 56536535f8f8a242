package embedding

import (
	"context"

	"github.com/BaSui01/policyqa/llm"
)

// ResilientProvider 为嵌入 Provider 增加单次超时与有界重试
type ResilientProvider struct {
	Provider
	guard *llm.CallGuard
}

// NewResilientProvider 包装 Provider
func NewResilientProvider(inner Provider, guard *llm.CallGuard) *ResilientProvider {
	return &ResilientProvider{Provider: inner, guard: guard}
}

// Embed 实现 Provider.Embed
func (r *ResilientProvider) Embed(ctx context.Context, req *EmbeddingRequest) (*EmbeddingResponse, error) {
	return llm.Invoke(ctx, r.guard, func(ctx context.Context) (*EmbeddingResponse, error) {
		return r.Provider.Embed(ctx, req)
	})
}

// EmbedQuery 实现 Provider.EmbedQuery
func (r *ResilientProvider) EmbedQuery(ctx context.Context, query string) ([]float64, error) {
	return llm.Invoke(ctx, r.guard, func(ctx context.Context) ([]float64, error) {
		return r.Provider.EmbedQuery(ctx, query)
	})
}

// EmbedDocuments 实现 Provider.EmbedDocuments
func (r *ResilientProvider) EmbedDocuments(ctx context.Context, documents []string) ([][]float64, error) {
	return llm.Invoke(ctx, r.guard, func(ctx context.Context) ([][]float64, error) {
		return r.Provider.EmbedDocuments(ctx, documents)
	})
}

package mocks

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"sync"
	"unicode"
)

// DefaultEmbeddingDimension HashEmbedder 默认维度
const DefaultEmbeddingDimension = 256

// HashEmbedder 确定性的词袋哈希嵌入器。
//
// 文本被切成小写词（去掉复数 s），每个词哈希到一个维度，结果做 L2 归一化，
// 因此共享词越多余弦相似度越高。支持按子串注入错误。
type HashEmbedder struct {
	dim int

	mu      sync.Mutex
	err     error
	failOn  string
	calls   int
	embedded int
}

// NewHashEmbedder 创建嵌入器，dim <= 0 时使用 DefaultEmbeddingDimension
func NewHashEmbedder(dim int) *HashEmbedder {
	if dim <= 0 {
		dim = DefaultEmbeddingDimension
	}
	return &HashEmbedder{dim: dim}
}

// WithError 所有调用返回 err
func (h *HashEmbedder) WithError(err error) *HashEmbedder {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.err = err
	return h
}

// FailOn 输入包含 substr 时返回 err
func (h *HashEmbedder) FailOn(substr string, err error) *HashEmbedder {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.failOn = substr
	h.err = err
	return h
}

// Calls 返回调用次数
func (h *HashEmbedder) Calls() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.calls
}

// EmbeddedTexts 返回累计嵌入的文本数
func (h *HashEmbedder) EmbeddedTexts() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.embedded
}

func (h *HashEmbedder) check(ctx context.Context, texts []string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.calls++
	if h.err != nil {
		if h.failOn == "" {
			return h.err
		}
		for _, t := range texts {
			if strings.Contains(t, h.failOn) {
				return h.err
			}
		}
	}
	h.embedded += len(texts)
	return nil
}

// EmbedQuery 实现 rag.Embedder
func (h *HashEmbedder) EmbedQuery(ctx context.Context, text string) ([]float64, error) {
	if err := h.check(ctx, []string{text}); err != nil {
		return nil, err
	}
	return h.Vector(text), nil
}

// EmbedDocuments 实现 rag.Embedder
func (h *HashEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float64, error) {
	if err := h.check(ctx, texts); err != nil {
		return nil, err
	}
	out := make([][]float64, len(texts))
	for i, t := range texts {
		out[i] = h.Vector(t)
	}
	return out, nil
}

// Name 实现 embedding.Provider 的元信息方法
func (h *HashEmbedder) Name() string      { return "hash" }
func (h *HashEmbedder) Model() string     { return "hash-bow" }
func (h *HashEmbedder) Dimensions() int   { return h.dim }
func (h *HashEmbedder) MaxBatchSize() int { return 1024 }

// Vector 计算文本的嵌入（纯函数）
func (h *HashEmbedder) Vector(text string) []float64 {
	vec := make([]float64, h.dim)
	for _, w := range Words(text) {
		f := fnv.New32a()
		_, _ = f.Write([]byte(w))
		vec[f.Sum32()%uint32(h.dim)] += 1
	}
	var norm float64
	for _, v := range vec {
		norm += v * v
	}
	if norm == 0 {
		// 空文本：固定的单位向量
		vec[0] = 1
		return vec
	}
	norm = math.Sqrt(norm)
	for i := range vec {
		vec[i] /= norm
	}
	return vec
}

// Words 把文本切成小写词并做极简词干化（leaves -> leave, days -> day）
func Words(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	out := fields[:0]
	for _, f := range fields {
		if len(f) > 3 && strings.HasSuffix(f, "s") && !strings.HasSuffix(f, "ss") {
			f = strings.TrimSuffix(f, "s")
		}
		out = append(out, f)
	}
	return out
}

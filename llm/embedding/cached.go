package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/policyqa/types"
)

// VectorCache 是 CachedProvider 依赖的键值缓存（由 internal/cache.Manager 实现）
type VectorCache interface {
	GetMany(ctx context.Context, keys []string) ([]string, []bool, error)
	SetMany(ctx context.Context, kv map[string]string, ttl time.Duration) error
}

// CacheObserver 接收每次批量查找的命中统计
type CacheObserver interface {
	ObserveCacheLookup(cache string, hits, misses int)
}

// CachedProvider 以 (模型, 文本) 为键缓存嵌入向量.
//
// 缓存故障只记录日志并回退到底层 Provider。
type CachedProvider struct {
	Provider
	cache    VectorCache
	ttl      time.Duration
	logger   *zap.Logger
	observer CacheObserver
}

// NewCachedProvider 包装 Provider
func NewCachedProvider(inner Provider, cache VectorCache, ttl time.Duration, logger *zap.Logger) *CachedProvider {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CachedProvider{
		Provider: inner,
		cache:    cache,
		ttl:      ttl,
		logger:   logger.With(zap.String("component", "embedding_cache")),
	}
}

// WithObserver 设置命中统计观察者
func (c *CachedProvider) WithObserver(o CacheObserver) *CachedProvider {
	c.observer = o
	return c
}

// CacheKey 返回文本在指定模型下的缓存键
func CacheKey(model string, dims int, text string) string {
	sum := sha256.Sum256([]byte(text))
	key := "emb:" + model + ":"
	if dims > 0 {
		key += strconv.Itoa(dims) + ":"
	}
	return key + hex.EncodeToString(sum[:])
}

// EmbedQuery 实现 Provider.EmbedQuery
func (c *CachedProvider) EmbedQuery(ctx context.Context, query string) ([]float64, error) {
	vecs, err := c.lookupOrEmbed(ctx, []string{query}, func(ctx context.Context, misses []string) ([][]float64, error) {
		v, err := c.Provider.EmbedQuery(ctx, misses[0])
		if err != nil {
			return nil, err
		}
		return [][]float64{v}, nil
	})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedDocuments 实现 Provider.EmbedDocuments
func (c *CachedProvider) EmbedDocuments(ctx context.Context, documents []string) ([][]float64, error) {
	if len(documents) == 0 {
		return [][]float64{}, nil
	}
	return c.lookupOrEmbed(ctx, documents, c.Provider.EmbedDocuments)
}

func (c *CachedProvider) lookupOrEmbed(
	ctx context.Context,
	texts []string,
	embed func(context.Context, []string) ([][]float64, error),
) ([][]float64, error) {
	keys := make([]string, len(texts))
	for i, t := range texts {
		keys[i] = CacheKey(c.Model(), c.Dimensions(), t)
	}

	out := make([][]float64, len(texts))
	values, hit, err := c.cache.GetMany(ctx, keys)
	if err != nil {
		c.logger.Warn("embedding cache read failed", zap.Error(err))
		hit = make([]bool, len(texts))
	}

	var missIdx []int
	var missTexts []string
	for i := range texts {
		if hit[i] {
			var v []float64
			if jerr := json.Unmarshal([]byte(values[i]), &v); jerr == nil && len(v) > 0 {
				out[i] = v
				continue
			}
		}
		missIdx = append(missIdx, i)
		missTexts = append(missTexts, texts[i])
	}

	if c.observer != nil {
		c.observer.ObserveCacheLookup("embedding", len(texts)-len(missTexts), len(missTexts))
	}
	if len(missTexts) == 0 {
		return out, nil
	}

	vecs, err := embed(ctx, missTexts)
	if err != nil {
		return nil, err
	}
	if len(vecs) != len(missTexts) {
		return nil, types.NewError(types.ErrUpstreamError,
			fmt.Sprintf("expected %d embeddings, got %d", len(missTexts), len(vecs))).
			WithRetryable(true).
			WithProvider(c.Name())
	}

	toStore := make(map[string]string, len(vecs))
	for j, i := range missIdx {
		out[i] = vecs[j]
		if data, jerr := json.Marshal(vecs[j]); jerr == nil {
			toStore[keys[i]] = string(data)
		}
	}
	if err := c.cache.SetMany(ctx, toStore, c.ttl); err != nil {
		c.logger.Warn("embedding cache write failed", zap.Error(err))
	}

	c.logger.Debug("embedding cache lookup",
		zap.Int("hits", len(texts)-len(missTexts)),
		zap.Int("misses", len(missTexts)))
	return out, nil
}

package embedding

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/policyqa/internal/cache"
	"github.com/BaSui01/policyqa/types"
)

// countingProvider 记录每次底层嵌入的文本
type countingProvider struct {
	mu       sync.Mutex
	embedded []string
	fail     error
}

func (p *countingProvider) Embed(ctx context.Context, req *EmbeddingRequest) (*EmbeddingResponse, error) {
	vecs, err := p.EmbedDocuments(ctx, req.Input)
	if err != nil {
		return nil, err
	}
	resp := &EmbeddingResponse{Provider: p.Name(), Model: p.Model()}
	for i, v := range vecs {
		resp.Embeddings = append(resp.Embeddings, EmbeddingData{Index: i, Embedding: v})
	}
	return resp, nil
}

func (p *countingProvider) EmbedQuery(ctx context.Context, q string) ([]float64, error) {
	vecs, err := p.EmbedDocuments(ctx, []string{q})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (p *countingProvider) EmbedDocuments(_ context.Context, docs []string) ([][]float64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail != nil {
		return nil, p.fail
	}
	out := make([][]float64, len(docs))
	for i, d := range docs {
		p.embedded = append(p.embedded, d)
		out[i] = []float64{float64(len(d)), 0.5}
	}
	return out, nil
}

func (p *countingProvider) Name() string      { return "counting" }
func (p *countingProvider) Model() string     { return "count-v1" }
func (p *countingProvider) Dimensions() int   { return 2 }
func (p *countingProvider) MaxBatchSize() int { return 16 }

func newRedisCache(t *testing.T) (*miniredis.Miniredis, *cache.Manager) {
	t.Helper()
	mr := miniredis.RunT(t)
	cfg := cache.DefaultConfig()
	cfg.Addr = mr.Addr()
	cfg.HealthCheckInterval = 0
	m, err := cache.NewManager(cfg, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close() })
	return mr, m
}

func TestCachedProvider_EmbedDocumentsUsesCache(t *testing.T) {
	_, rc := newRedisCache(t)
	inner := &countingProvider{}
	cp := NewCachedProvider(inner, rc, time.Hour, zap.NewNop())
	ctx := context.Background()

	first, err := cp.EmbedDocuments(ctx, []string{"vacation", "remote work"})
	require.NoError(t, err)
	assert.Equal(t, [][]float64{{8, 0.5}, {11, 0.5}}, first)

	second, err := cp.EmbedDocuments(ctx, []string{"remote work", "expenses", "vacation"})
	require.NoError(t, err)
	assert.Equal(t, [][]float64{{11, 0.5}, {8, 0.5}, {8, 0.5}}, second)

	// 只有 "expenses" 是新文本
	assert.Equal(t, []string{"vacation", "remote work", "expenses"}, inner.embedded)
}

func TestCachedProvider_EmbedQuery(t *testing.T) {
	mr, rc := newRedisCache(t)
	inner := &countingProvider{}
	cp := NewCachedProvider(inner, rc, time.Hour, nil)
	ctx := context.Background()

	v1, err := cp.EmbedQuery(ctx, "how many days?")
	require.NoError(t, err)
	v2, err := cp.EmbedQuery(ctx, "how many days?")
	require.NoError(t, err)

	assert.Equal(t, v1, v2)
	assert.Len(t, inner.embedded, 1)
	assert.True(t, mr.Exists("policyqa:"+CacheKey("count-v1", 2, "how many days?")))
	assert.Equal(t, time.Hour, mr.TTL("policyqa:"+CacheKey("count-v1", 2, "how many days?")))
}

func TestCachedProvider_CacheDownFallsBack(t *testing.T) {
	mr, rc := newRedisCache(t)
	inner := &countingProvider{}
	cp := NewCachedProvider(inner, rc, time.Hour, nil)

	mr.SetError("ERR cache offline")

	vecs, err := cp.EmbedDocuments(context.Background(), []string{"a", "bb"})
	require.NoError(t, err)
	assert.Equal(t, [][]float64{{1, 0.5}, {2, 0.5}}, vecs)
}

func TestCachedProvider_CorruptEntryReembedded(t *testing.T) {
	_, rc := newRedisCache(t)
	inner := &countingProvider{}
	cp := NewCachedProvider(inner, rc, time.Hour, nil)
	ctx := context.Background()

	require.NoError(t, rc.Set(ctx, CacheKey("count-v1", 2, "x"), "garbage", time.Hour))

	v, err := cp.EmbedQuery(ctx, "x")
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 0.5}, v)
	assert.Equal(t, []string{"x"}, inner.embedded)
}

func TestCachedProvider_PropagatesEmbedError(t *testing.T) {
	_, rc := newRedisCache(t)
	boom := errors.New("boom")
	cp := NewCachedProvider(&countingProvider{fail: boom}, rc, time.Hour, nil)

	_, err := cp.EmbedDocuments(context.Background(), []string{"a"})
	assert.ErrorIs(t, err, boom)

	vecs, err := cp.EmbedDocuments(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, vecs)
}

// shortProvider 返回的向量比请求的文本少一条
type shortProvider struct{ countingProvider }

func (p *shortProvider) EmbedDocuments(ctx context.Context, docs []string) ([][]float64, error) {
	vecs, err := p.countingProvider.EmbedDocuments(ctx, docs)
	if err != nil || len(vecs) == 0 {
		return vecs, err
	}
	return vecs[:len(vecs)-1], nil
}

func TestCachedProvider_ShortUpstreamResponse(t *testing.T) {
	_, rc := newRedisCache(t)
	cp := NewCachedProvider(&shortProvider{}, rc, time.Hour, nil)
	ctx := context.Background()

	_, err := cp.EmbedDocuments(ctx, []string{"vacation", "remote work"})
	require.Error(t, err)
	assert.True(t, types.IsErrorCode(err, types.ErrUpstreamError))
	assert.Contains(t, err.Error(), "expected 2 embeddings, got 1")

	// 不完整的响应不会写入缓存
	values, hit, err := rc.GetMany(ctx, []string{CacheKey("count-v1", 2, "vacation")})
	require.NoError(t, err)
	assert.Equal(t, []bool{false}, hit)
	assert.Equal(t, []string{""}, values)
}

type lookupRecorder struct {
	hits, misses int
}

func (r *lookupRecorder) ObserveCacheLookup(_ string, hits, misses int) {
	r.hits += hits
	r.misses += misses
}

func TestCachedProvider_Observer(t *testing.T) {
	_, rc := newRedisCache(t)
	rec := &lookupRecorder{}
	cp := NewCachedProvider(&countingProvider{}, rc, time.Hour, nil).WithObserver(rec)
	ctx := context.Background()

	_, err := cp.EmbedDocuments(ctx, []string{"a", "b"})
	require.NoError(t, err)
	_, err = cp.EmbedDocuments(ctx, []string{"a", "c"})
	require.NoError(t, err)

	assert.Equal(t, 1, rec.hits)
	assert.Equal(t, 3, rec.misses)
}

func TestCacheKey(t *testing.T) {
	assert.NotEqual(t, CacheKey("m1", 0, "t"), CacheKey("m2", 0, "t"))
	assert.NotEqual(t, CacheKey("m1", 256, "t"), CacheKey("m1", 512, "t"))
	assert.Equal(t, CacheKey("m1", 0, "t"), CacheKey("m1", 0, "t"))
}

package embedding

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/policyqa/types"
)

// --- ChooseModel ---

func TestChooseModel(t *testing.T) {
	assert.Equal(t, "req-model", ChooseModel("req-model", "default", "fallback"))
	assert.Equal(t, "default", ChooseModel("", "default", "fallback"))
	assert.Equal(t, "fallback", ChooseModel("", "", "fallback"))
}

// --- BaseProvider ---

func TestNewBaseProvider(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		bp := NewBaseProvider(BaseConfig{
			Name:    "test",
			BaseURL: "http://example.com/",
		})
		assert.Equal(t, "test", bp.Name())
		assert.Equal(t, 100, bp.MaxBatchSize())
		assert.Equal(t, "http://example.com", bp.baseURL)
		assert.Nil(t, bp.limiter)
	})

	t.Run("custom values", func(t *testing.T) {
		bp := NewBaseProvider(BaseConfig{
			Name:       "custom",
			BaseURL:    "http://api.test",
			Model:      "m",
			Dimensions: 512,
			MaxBatch:   50,
			RateLimit:  5,
			Timeout:    10 * time.Second,
		})
		assert.Equal(t, 512, bp.Dimensions())
		assert.Equal(t, 50, bp.MaxBatchSize())
		assert.Equal(t, "m", bp.Model())
		require.NotNil(t, bp.limiter)
		assert.Equal(t, 5, bp.limiter.Burst())
	})
}

func TestBaseProviderDoRequest(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "POST", r.Method)
			assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
			assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
			_, _ = w.Write([]byte(`{"ok":true}`))
		}))
		defer srv.Close()

		bp := NewBaseProvider(BaseConfig{Name: "test", BaseURL: srv.URL, RateLimit: 100})
		body, err := bp.DoRequest(context.Background(), "POST", "/embed", map[string]string{"q": "hello"}, map[string]string{
			"Authorization": "Bearer test-key",
		})
		require.NoError(t, err)
		assert.Contains(t, string(body), `"ok":true`)
	})

	t.Run("HTTP error mapped", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":{"message":"invalid key"}}`))
		}))
		defer srv.Close()

		bp := NewBaseProvider(BaseConfig{Name: "test", BaseURL: srv.URL})
		_, err := bp.DoRequest(context.Background(), "POST", "/embed", nil, nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid key")
		assert.True(t, types.IsErrorCode(err, types.ErrUnauthorized))
		assert.False(t, types.IsRetryable(err))
	})

	t.Run("server error retryable", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		}))
		defer srv.Close()

		bp := NewBaseProvider(BaseConfig{Name: "test", BaseURL: srv.URL})
		_, err := bp.DoRequest(context.Background(), "POST", "/embed", nil, nil)
		assert.True(t, types.IsRetryable(err))
	})
}

// --- BaseProvider.EmbedQuery / EmbedDocuments ---

func TestBaseProviderEmbedQueryAndDocuments(t *testing.T) {
	var calls atomic.Int32
	mockEmbed := func(ctx context.Context, req *EmbeddingRequest) (*EmbeddingResponse, error) {
		calls.Add(1)
		embeddings := make([]EmbeddingData, len(req.Input))
		// 逆序返回，验证按 Index 重排
		for i := range req.Input {
			j := len(req.Input) - 1 - i
			embeddings[i] = EmbeddingData{Index: j, Embedding: []float64{float64(len(req.Input[j]))}}
		}
		return &EmbeddingResponse{Embeddings: embeddings}, nil
	}

	bp := NewBaseProvider(BaseConfig{Name: "test", BaseURL: "http://unused", MaxBatch: 2})

	t.Run("EmbedQuery", func(t *testing.T) {
		vec, err := bp.EmbedQuery(context.Background(), "hello", mockEmbed)
		require.NoError(t, err)
		assert.Equal(t, []float64{5}, vec)
	})

	t.Run("EmbedDocuments batches and keeps order", func(t *testing.T) {
		calls.Store(0)
		vecs, err := bp.EmbedDocuments(context.Background(), []string{"a", "bb", "ccc", "dddd", "eeeee"}, mockEmbed)
		require.NoError(t, err)
		assert.Equal(t, [][]float64{{1}, {2}, {3}, {4}, {5}}, vecs)
		assert.Equal(t, int32(3), calls.Load())
	})

	t.Run("count mismatch", func(t *testing.T) {
		short := func(ctx context.Context, req *EmbeddingRequest) (*EmbeddingResponse, error) {
			return &EmbeddingResponse{Embeddings: []EmbeddingData{{Embedding: []float64{1}}}}, nil
		}
		_, err := bp.EmbedDocuments(context.Background(), []string{"a", "b"}, short)
		assert.True(t, types.IsRetryable(err))
	})

	t.Run("EmbedQuery empty response", func(t *testing.T) {
		emptyEmbed := func(ctx context.Context, req *EmbeddingRequest) (*EmbeddingResponse, error) {
			return &EmbeddingResponse{Embeddings: nil}, nil
		}
		_, err := bp.EmbedQuery(context.Background(), "hello", emptyEmbed)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "no embeddings")
	})
}

// --- OpenAI Provider ---

func newOpenAITestServer(t *testing.T, handler http.HandlerFunc) (*httptest.Server, *OpenAIProvider) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	p := NewOpenAIProvider(OpenAIConfig{
		APIKey:  "test-key",
		BaseURL: srv.URL,
		Model:   "text-embedding-3-small",
	})
	return srv, p
}

func writeEmbeddings(w http.ResponseWriter, input []string) {
	resp := openAIEmbedResponse{Object: "list", Model: "text-embedding-3-small"}
	for i, s := range input {
		resp.Data = append(resp.Data, struct {
			Object    string    `json:"object"`
			Index     int       `json:"index"`
			Embedding []float64 `json:"embedding"`
		}{Object: "embedding", Index: i, Embedding: []float64{float64(len(s)), 1}})
	}
	resp.Usage.PromptTokens = len(input)
	resp.Usage.TotalTokens = len(input)
	_ = json.NewEncoder(w).Encode(resp)
}

func TestOpenAIProviderEmbed(t *testing.T) {
	_, p := newOpenAITestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/embeddings", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req openAIEmbedRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "text-embedding-3-small", req.Model)
		assert.Equal(t, "float", req.EncodingFormat)
		writeEmbeddings(w, req.Input)
	})

	resp, err := p.Embed(context.Background(), &EmbeddingRequest{
		Input: []string{"hello world"},
	})
	require.NoError(t, err)
	assert.Equal(t, "openai-embedding", resp.Provider)
	assert.Equal(t, "text-embedding-3-small", resp.Model)
	require.Len(t, resp.Embeddings, 1)
	assert.Equal(t, []float64{11, 1}, resp.Embeddings[0].Embedding)
	assert.Equal(t, 1, resp.Usage.PromptTokens)
}

func TestOpenAIProviderEmbedQueryAndDocuments(t *testing.T) {
	_, p := newOpenAITestServer(t, func(w http.ResponseWriter, r *http.Request) {
		var req openAIEmbedRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		writeEmbeddings(w, req.Input)
	})

	vec, err := p.EmbedQuery(context.Background(), "test query")
	require.NoError(t, err)
	assert.Equal(t, []float64{10, 1}, vec)

	vecs, err := p.EmbedDocuments(context.Background(), []string{"doc1", "document2"})
	require.NoError(t, err)
	assert.Equal(t, [][]float64{{4, 1}, {9, 1}}, vecs)
}

func TestOpenAIProviderMalformedResponse(t *testing.T) {
	_, p := newOpenAITestServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data": "nope"`))
	})

	_, err := p.EmbedQuery(context.Background(), "q")
	require.Error(t, err)
	assert.True(t, types.IsRetryable(err))
}

func TestOpenAIProviderDefaults(t *testing.T) {
	p := NewOpenAIProvider(OpenAIConfig{APIKey: "k"})
	assert.Equal(t, "openai-embedding", p.Name())
	assert.Equal(t, "text-embedding-3-small", p.Model())
	assert.Equal(t, 64, p.MaxBatchSize())
	assert.Equal(t, 0, p.Dimensions())
}

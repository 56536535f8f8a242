package metrics

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/BaSui01/policyqa/llm"
	"github.com/BaSui01/policyqa/llm/embedding"
	"github.com/BaSui01/policyqa/policy"
	"github.com/BaSui01/policyqa/rag"
)

var collectorNamespaceSeq uint64

func nextTestNamespace() string {
	seq := atomic.AddUint64(&collectorNamespaceSeq, 1)
	return fmt.Sprintf("test_%d", seq)
}

// 编译期检查：Collector 可直接注入各观察点
var (
	_ llm.CallObserver         = (*Collector)(nil)
	_ rag.AnswerObserver       = (*Collector)(nil)
	_ rag.IndexObserver        = (*Collector)(nil)
	_ policy.IngestionObserver = (*Collector)(nil)
	_ embedding.CacheObserver  = (*Collector)(nil)
)

// =============================================================================
// 🧪 Collector 测试
// =============================================================================

func TestCollector_RecordHTTPRequest(t *testing.T) {
	c := NewCollector(nextTestNamespace(), zap.NewNop())

	c.RecordHTTPRequest("POST", "/api/v1/policies/ask", 200, 100*time.Millisecond, 2048)
	c.RecordHTTPRequest("POST", "/api/v1/policies/ask", 200, 50*time.Millisecond, 1024)
	c.RecordHTTPRequest("POST", "/api/v1/policies/ask", 409, 5*time.Millisecond, 128)

	assert.Equal(t, float64(2), testutil.ToFloat64(c.httpRequestsTotal.WithLabelValues("POST", "/api/v1/policies/ask", "2xx")))
	assert.Equal(t, float64(1), testutil.ToFloat64(c.httpRequestsTotal.WithLabelValues("POST", "/api/v1/policies/ask", "4xx")))
}

func TestCollector_ObserveCall(t *testing.T) {
	c := NewCollector(nextTestNamespace(), zap.NewNop())

	c.ObserveCall("generation", "openai", "gpt-4o-mini", "success", 500*time.Millisecond)
	c.ObserveCall("embedding", "openai", "text-embedding-3-small", "error", time.Second)

	assert.Equal(t, float64(1), testutil.ToFloat64(c.capabilityCallsTotal.WithLabelValues("generation", "openai", "gpt-4o-mini", "success")))
	assert.Equal(t, float64(1), testutil.ToFloat64(c.capabilityCallsTotal.WithLabelValues("embedding", "openai", "text-embedding-3-small", "error")))
	assert.Equal(t, 2, testutil.CollectAndCount(c.capabilityCallDuration))
}

func TestCollector_RAGObservers(t *testing.T) {
	c := NewCollector(nextTestNamespace(), zap.NewNop())

	c.ObserveIndexSize(12)
	c.ObserveIndexSize(20)
	assert.Equal(t, float64(20), testutil.ToFloat64(c.indexVectors))

	c.ObserveAnswer(rag.OutcomeAnswered, 4, time.Second)
	c.ObserveAnswer(rag.OutcomeIndexNotReady, 0, time.Millisecond)
	assert.Equal(t, float64(1), testutil.ToFloat64(c.answersTotal.WithLabelValues(rag.OutcomeAnswered)))
	assert.Equal(t, float64(1), testutil.ToFloat64(c.answersTotal.WithLabelValues(rag.OutcomeIndexNotReady)))

	c.ObserveIngestion(policy.IngestIndexed, 8, time.Second)
	c.ObserveIngestion(policy.IngestFailed, 0, time.Millisecond)
	assert.Equal(t, float64(8), testutil.ToFloat64(c.ingestedChunks))
	assert.Equal(t, float64(1), testutil.ToFloat64(c.ingestionsTotal.WithLabelValues(policy.IngestFailed)))
}

func TestCollector_CacheLookup(t *testing.T) {
	c := NewCollector(nextTestNamespace(), zap.NewNop())

	c.ObserveCacheLookup("embedding", 3, 1)
	c.ObserveCacheLookup("embedding", 0, 2)

	assert.Equal(t, float64(3), testutil.ToFloat64(c.cacheHits.WithLabelValues("embedding")))
	assert.Equal(t, float64(3), testutil.ToFloat64(c.cacheMisses.WithLabelValues("embedding")))
}

func TestCollector_RecordDBConnections(t *testing.T) {
	c := NewCollector(nextTestNamespace(), zap.NewNop())

	c.RecordDBConnections("postgres", 10, 5)

	assert.Equal(t, float64(10), testutil.ToFloat64(c.dbConnectionsOpen.WithLabelValues("postgres")))
	assert.Equal(t, float64(5), testutil.ToFloat64(c.dbConnectionsIdle.WithLabelValues("postgres")))
}

func TestCollector_ConcurrentRecording(t *testing.T) {
	c := NewCollector(nextTestNamespace(), zap.NewNop())

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.RecordHTTPRequest("GET", "/api/v1/policies/status", 200, time.Millisecond, 64)
			c.ObserveCall("generation", "openai", "gpt-4o-mini", "success", time.Millisecond)
			c.ObserveCacheLookup("embedding", 1, 0)
		}()
	}
	wg.Wait()

	assert.Equal(t, float64(10), testutil.ToFloat64(c.httpRequestsTotal.WithLabelValues("GET", "/api/v1/policies/status", "2xx")))
	assert.Equal(t, float64(10), testutil.ToFloat64(c.cacheHits.WithLabelValues("embedding")))
}

func TestStatusClass(t *testing.T) {
	tests := map[int]string{
		200: "2xx",
		301: "3xx",
		422: "4xx",
		503: "5xx",
		0:   "unknown",
		999: "unknown",
	}
	for code, want := range tests {
		assert.Equal(t, want, statusClass(code), code)
	}
}

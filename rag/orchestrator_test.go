package rag

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/policyqa/testutil"
	"github.com/BaSui01/policyqa/testutil/fixtures"
	"github.com/BaSui01/policyqa/testutil/mocks"
	"github.com/BaSui01/policyqa/types"
)

type answerRecord struct {
	outcome   string
	retrieved int
}

type answerRecorder struct {
	mu      sync.Mutex
	records []answerRecord
}

func (r *answerRecorder) ObserveAnswer(outcome string, retrieved int, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, answerRecord{outcome: outcome, retrieved: retrieved})
}

func (r *answerRecorder) last() answerRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.records[len(r.records)-1]
}

type pipeline struct {
	rag      *ConversationalRAG
	index    *IndexManager
	embedder *mocks.HashEmbedder
	gen      *mocks.GroundedGenerator
	observed *answerRecorder
}

func newPipeline(t *testing.T, store IndexStore) *pipeline {
	t.Helper()
	p := &pipeline{
		index:    NewIndexManager(store, nil),
		embedder: mocks.NewHashEmbedder(0),
		gen:      mocks.NewGroundedGenerator(),
		observed: &answerRecorder{},
	}
	p.rag = NewConversationalRAG(
		p.index,
		NewQueryReformulator(p.gen, "", nil),
		NewRetriever(p.embedder, p.index, DefaultTopK, nil),
		NewAnswerSynthesizer(p.gen, nil, SynthesizerConfig{}, nil),
		nil,
		WithAnswerObserver(p.observed),
	)
	return p
}

func (p *pipeline) ingest(t *testing.T, docs ...Document) {
	t.Helper()
	splitter, err := NewRecursiveSplitter(DefaultChunkingConfig(), nil)
	require.NoError(t, err)
	for _, doc := range docs {
		chunks := splitter.ChunkDocument(doc)
		texts := make([]string, len(chunks))
		for i, c := range chunks {
			texts[i] = c.Text
		}
		vectors, err := p.embedder.EmbedDocuments(context.Background(), texts)
		require.NoError(t, err)
		require.NoError(t, p.index.BuildOrAppend(context.Background(), chunks, vectors))
	}
}

func TestAnswer_IndexNotReady(t *testing.T) {
	p := newPipeline(t, NewFileStore(t.TempDir(), "index", nil))

	_, err := p.rag.Answer(context.Background(), "How many casual leaves do I get?", nil)
	testutil.AssertErrorCode(t, err, types.ErrIndexNotReady)
	assert.Contains(t, err.Error(), types.IndexNotReadyMessage)
	assert.Equal(t, OutcomeIndexNotReady, p.observed.last().outcome)
	assert.Empty(t, p.gen.Requests())
}

func TestAnswer_CasualLeave(t *testing.T) {
	p := newPipeline(t, NewFileStore(t.TempDir(), "index", nil))
	p.ingest(t, policyDocs()...)

	ans, err := p.rag.Answer(context.Background(), "  How many casual leaves do I get?  ", nil)
	require.NoError(t, err)
	assert.Equal(t, "How many casual leaves do I get?", ans.Question)
	assert.Contains(t, ans.Text, "12")

	titles := make([]string, 0, len(ans.Sources))
	for _, s := range ans.Sources {
		titles = append(titles, s.PolicyTitle)
	}
	assert.Contains(t, titles, fixtures.LeavePolicyTitle)
	assert.LessOrEqual(t, len(ans.Sources), DefaultTopK)

	rec := p.observed.last()
	assert.Equal(t, OutcomeAnswered, rec.outcome)
	assert.Equal(t, len(ans.Sources), rec.retrieved)
}

func TestAnswer_UncoveredFollowUp(t *testing.T) {
	p := newPipeline(t, NewFileStore(t.TempDir(), "index", nil))
	p.ingest(t, policyDocs()[0])

	history := fixtures.CasualLeaveHistory()
	ans, err := p.rag.Answer(context.Background(), "What about sick leave?", history)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(ans.Text, "I don't know"), ans.Text)

	// 有历史时先改写，再合成
	reqs := p.gen.Requests()
	require.Len(t, reqs, 2)
	assert.Contains(t, reqs[0].Messages[0].Content, "standalone question")
	assert.Contains(t, reqs[1].Messages[0].Content, "Policy excerpts:")
}

func TestAnswer_ReformulatedQueryDrivesRetrieval(t *testing.T) {
	p := newPipeline(t, NewFileStore(t.TempDir(), "index", nil))
	p.ingest(t, policyDocs()...)
	p.gen.WithRewrite("And for hotels?", "How much hotel expense is reimbursed per night?")

	ans, err := p.rag.Answer(context.Background(), "And for hotels?", []types.Turn{
		types.UserTurn("Is economy airfare reimbursed?"),
		types.AssistantTurn("Yes, for flights under six hours."),
	})
	require.NoError(t, err)
	require.NotEmpty(t, ans.Sources)
	assert.Equal(t, fixtures.ExpenseTitle, ans.Sources[0].PolicyTitle)
	assert.Equal(t, "And for hotels?", ans.Question)
}

func TestAnswer_SourcesMatchRetrievedChunks(t *testing.T) {
	p := newPipeline(t, NewFileStore(t.TempDir(), "index", nil))
	long := fixtures.LeavePolicyText + "\n\n" + strings.Repeat("Leave requests are reviewed weekly. ", 40)
	p.ingest(t, Document{Title: fixtures.LeavePolicyTitle, SourcePath: "leave.txt", Text: long})

	ans, err := p.rag.Answer(context.Background(), "How are leave requests reviewed?", nil)
	require.NoError(t, err)
	require.NotEmpty(t, ans.Sources)

	results, err := p.rag.retriever.Retrieve(context.Background(), "How are leave requests reviewed?")
	require.NoError(t, err)
	assert.Equal(t, SourcesFrom(results), ans.Sources)
	for _, s := range ans.Sources {
		assert.LessOrEqual(t, len([]rune(s.Excerpt)), ExcerptLength+3)
	}
}

func TestAnswer_InvalidInput(t *testing.T) {
	p := newPipeline(t, NewFileStore(t.TempDir(), "index", nil))
	p.ingest(t, policyDocs()[0])

	_, err := p.rag.Answer(context.Background(), "   ", nil)
	testutil.AssertErrorCode(t, err, types.ErrInvalidRequest)
	assert.Equal(t, OutcomeInvalid, p.observed.last().outcome)

	_, err = p.rag.Answer(context.Background(), "q", []types.Turn{{Role: "system", Content: "x"}})
	testutil.AssertErrorCode(t, err, types.ErrInvalidRequest)
	assert.Contains(t, err.Error(), `unknown role "system"`)
}

func TestAnswer_TransientFailurePropagates(t *testing.T) {
	p := newPipeline(t, NewFileStore(t.TempDir(), "index", nil))
	p.ingest(t, policyDocs()[0])

	transient := types.NewTransientError("openai-embedding", "embedding capability unavailable", errors.New("503"))
	p.embedder.WithError(transient)

	_, err := p.rag.Answer(context.Background(), "How many casual leaves do I get?", nil)
	testutil.AssertErrorCode(t, err, types.ErrTransientFailure)
	assert.Equal(t, OutcomeError, p.observed.last().outcome)
}

func TestAnswer_CorruptIndex(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "index.json"), []byte("{"), 0o644))
	p := newPipeline(t, NewFileStore(dir, "index", nil))

	_, err := p.rag.Answer(context.Background(), "q", nil)
	testutil.AssertErrorCode(t, err, types.ErrCorruptIndex)
}

func TestAnswer_LoadsPersistedIndexOnce(t *testing.T) {
	dir := t.TempDir()
	seed := newPipeline(t, NewFileStore(dir, "index", nil))
	seed.ingest(t, policyDocs()...)

	p := newPipeline(t, NewFileStore(dir, "index", nil))
	require.False(t, p.index.Ready())

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ans, err := p.rag.Answer(context.Background(), "How many casual leaves do I get?", nil)
			if assert.NoError(t, err) {
				assert.Contains(t, ans.Text, "12")
			}
		}()
	}
	wg.Wait()
	assert.True(t, p.index.Ready())
	assert.Equal(t, seed.index.Stats().TotalVectors, p.index.Stats().TotalVectors)
}

// gatedStore 的 Load 阻塞到 release 关闭
type gatedStore struct {
	IndexStore
	started chan struct{}
	release chan struct{}
	once    sync.Once
	mu      sync.Mutex
	loads   int
}

func (s *gatedStore) Load(ctx context.Context) (*Snapshot, error) {
	s.mu.Lock()
	s.loads++
	s.mu.Unlock()
	s.once.Do(func() { close(s.started) })
	select {
	case <-s.release:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return s.IndexStore.Load(ctx)
}

func TestEnsureReady_CancelledCallerDoesNotFailOthers(t *testing.T) {
	dir := t.TempDir()
	seed := newPipeline(t, NewFileStore(dir, "index", nil))
	seed.ingest(t, policyDocs()...)

	store := &gatedStore{
		IndexStore: NewFileStore(dir, "index", nil),
		started:    make(chan struct{}),
		release:    make(chan struct{}),
	}
	p := newPipeline(t, store)

	ctxA, cancelA := context.WithCancel(context.Background())
	errA := make(chan error, 1)
	go func() { errA <- p.rag.EnsureReady(ctxA) }()
	<-store.started

	errB := make(chan error, 1)
	go func() { errB <- p.rag.EnsureReady(context.Background()) }()
	time.Sleep(20 * time.Millisecond)

	cancelA()
	select {
	case err := <-errA:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("cancelled caller did not return")
	}

	close(store.release)
	select {
	case err := <-errB:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("healthy caller did not return")
	}

	assert.True(t, p.index.Ready())
	assert.Equal(t, seed.index.Stats().TotalVectors, p.index.Stats().TotalVectors)
	store.mu.Lock()
	defer store.mu.Unlock()
	assert.Equal(t, 1, store.loads)
}

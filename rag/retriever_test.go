package rag

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/BaSui01/policyqa/testutil/fixtures"
	"github.com/BaSui01/policyqa/testutil/mocks"
)

// indexPolicies 把政策文本分块、嵌入并写入一个新的索引管理器
func indexPolicies(t *testing.T, embedder *mocks.HashEmbedder, docs ...Document) *IndexManager {
	t.Helper()
	splitter, err := NewRecursiveSplitter(DefaultChunkingConfig(), nil)
	require.NoError(t, err)
	m := NewIndexManager(NewFileStore(t.TempDir(), "index", nil), nil)
	for _, doc := range docs {
		chunks := splitter.ChunkDocument(doc)
		texts := make([]string, len(chunks))
		for i, c := range chunks {
			texts[i] = c.Text
		}
		vectors, err := embedder.EmbedDocuments(context.Background(), texts)
		require.NoError(t, err)
		require.NoError(t, m.BuildOrAppend(context.Background(), chunks, vectors))
	}
	return m
}

func policyDocs() []Document {
	return []Document{
		{Title: fixtures.LeavePolicyTitle, SourcePath: "leave.txt", Text: fixtures.LeavePolicyText},
		{Title: fixtures.RemoteWorkTitle, SourcePath: "remote.md", Text: fixtures.RemoteWorkText},
		{Title: fixtures.ExpenseTitle, SourcePath: "expense.txt", Text: fixtures.ExpenseText},
	}
}

func TestRetriever_RanksRelevantPolicyFirst(t *testing.T) {
	embedder := mocks.NewHashEmbedder(0)
	m := indexPolicies(t, embedder, policyDocs()...)
	r := NewRetriever(embedder, m, 2, nil)
	assert.Equal(t, 2, r.TopK())

	results, err := r.Retrieve(context.Background(), "How many casual leave days do employees get?")
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.LessOrEqual(t, len(results), 2)
	assert.Equal(t, fixtures.LeavePolicyTitle, results[0].Chunk.PolicyTitle)
	for i := 1; i < len(results); i++ {
		assert.GreaterOrEqual(t, results[i-1].Score, results[i].Score)
	}

	results, err = r.Retrieve(context.Background(), "hotel reimbursed per night")
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, fixtures.ExpenseTitle, results[0].Chunk.PolicyTitle)
}

func TestRetriever_DefaultTopK(t *testing.T) {
	r := NewRetriever(mocks.NewHashEmbedder(0), NewIndexManager(NewFileStore(t.TempDir(), "i", nil), nil), 0, nil)
	assert.Equal(t, DefaultTopK, r.TopK())
}

func TestRetriever_EmptyIndexSkipsEmbedding(t *testing.T) {
	embedder := mocks.NewHashEmbedder(0)
	r := NewRetriever(embedder, NewIndexManager(NewFileStore(t.TempDir(), "index", nil), nil), 4, nil)

	results, err := r.Retrieve(context.Background(), "anything")
	require.NoError(t, err)
	assert.Empty(t, results)
	assert.Equal(t, 0, embedder.Calls())
}

func TestRetriever_EmbeddingErrorPropagates(t *testing.T) {
	embedder := mocks.NewHashEmbedder(0)
	m := indexPolicies(t, embedder, policyDocs()[0])

	boom := errors.New("embedding offline")
	embedder.WithError(boom)
	_, err := NewRetriever(embedder, m, 4, nil).Retrieve(context.Background(), "leave")
	assert.ErrorIs(t, err, boom)
}

func TestRetriever_NonPositiveK(t *testing.T) {
	embedder := mocks.NewHashEmbedder(0)
	m := indexPolicies(t, embedder, policyDocs()...)
	results, err := NewRetriever(embedder, m, 4, nil).RetrieveK(context.Background(), "leave", 0)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestRetriever_AtMostKProperty(t *testing.T) {
	embedder := mocks.NewHashEmbedder(0)
	m := indexPolicies(t, embedder, policyDocs()...)
	total := m.Stats().TotalVectors
	r := NewRetriever(embedder, m, 4, nil)

	rapid.Check(t, func(rt *rapid.T) {
		k := rapid.IntRange(1, total+3).Draw(rt, "k")
		query := rapid.StringMatching(`[a-z ]{1,40}`).Draw(rt, "query")

		results, err := r.RetrieveK(context.Background(), query, k)
		if err != nil {
			rt.Fatalf("retrieve: %v", err)
		}
		want := k
		if total < want {
			want = total
		}
		if len(results) != want {
			rt.Fatalf("got %d results, want %d", len(results), want)
		}
		for i := 1; i < len(results); i++ {
			if results[i].Score > results[i-1].Score {
				rt.Fatalf("scores not sorted at %d", i)
			}
		}
	})
}

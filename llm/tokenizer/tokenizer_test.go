package tokenizer

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"pgregory.net/rapid"
)

func TestEstimatorTokenizer_CountTokens(t *testing.T) {
	e := NewEstimatorTokenizer("any", 0)
	assert.Equal(t, 4096, e.MaxTokens())
	assert.Equal(t, "estimator", e.Name())

	n, err := e.CountTokens("")
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	n, err = e.CountTokens("abcdefgh")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = e.CountTokens("年假政策")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = e.CountTokens("a")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestEstimatorTokenizer_CountMessages(t *testing.T) {
	e := NewEstimatorTokenizer("any", 0)
	n, err := e.CountMessages([]Message{
		{Role: "system", Content: "abcdefgh"},
		{Role: "user", Content: "abcd"},
	})
	require.NoError(t, err)
	// 2+4 + 1+4 + 3
	assert.Equal(t, 14, n)
}

func TestEstimatorTokenizer_Monotonic(t *testing.T) {
	e := NewEstimatorTokenizer("any", 0)
	rapid.Check(t, func(t *rapid.T) {
		a := rapid.String().Draw(t, "a")
		b := rapid.String().Draw(t, "b")
		na, _ := e.CountTokens(a)
		nab, _ := e.CountTokens(a + b)
		if nab < na {
			t.Fatalf("count(%q)=%d < count(%q)=%d", a+b, nab, a, na)
		}
	})
}

func TestNewTiktokenTokenizer_EncodingResolution(t *testing.T) {
	tests := []struct {
		model    string
		encoding string
		max      int
	}{
		{"gpt-4o-mini", "o200k_base", 128000},
		{"gpt-4o-2024-08-06", "o200k_base", 128000},
		{"gpt-4.1-mini", "o200k_base", 1047576},
		{"gpt-4-0613", "cl100k_base", 8192},
		{"llama3", "cl100k_base", 8192},
	}
	for _, tt := range tests {
		t.Run(tt.model, func(t *testing.T) {
			tk := NewTiktokenTokenizer(tt.model)
			assert.Equal(t, tt.encoding, tk.info.name)
			assert.Equal(t, tt.max, tk.MaxTokens())
			assert.Equal(t, "tiktoken["+tt.encoding+"]", tk.Name())
		})
	}
}

type brokenTokenizer struct{}

func (brokenTokenizer) CountTokens(string) (int, error) { return 0, errors.New("no bpe data") }
func (brokenTokenizer) CountMessages([]Message) (int, error) {
	return 0, errors.New("no bpe data")
}
func (brokenTokenizer) MaxTokens() int { return 777 }
func (brokenTokenizer) Name() string   { return "broken" }

func TestFallbackTokenizer_Degrades(t *testing.T) {
	f := &FallbackTokenizer{
		primary:  brokenTokenizer{},
		fallback: NewEstimatorTokenizer("m", 777),
		logger:   zap.NewNop(),
	}

	assert.Equal(t, "broken", f.Name())

	n, err := f.CountTokens("abcdefgh")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, "estimator", f.Name())
	assert.Equal(t, 777, f.MaxTokens())

	n, err = f.CountMessages([]Message{{Role: "user", Content: "abcd"}})
	require.NoError(t, err)
	assert.Equal(t, 8, n)
}

func TestForModel(t *testing.T) {
	f := ForModel("gpt-4o-mini", nil)
	assert.Equal(t, 128000, f.MaxTokens())
}

package rag

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/policyqa/llm"
	"github.com/BaSui01/policyqa/testutil/fixtures"
	"github.com/BaSui01/policyqa/testutil/mocks"
	"github.com/BaSui01/policyqa/types"
)

func TestReformulate_EmptyHistoryIsIdentity(t *testing.T) {
	gen := mocks.NewMockProvider().WithResponse("should not be used")
	r := NewQueryReformulator(gen, "gpt-4o-mini", nil)

	assert.Equal(t, "How many casual leaves do I get?", r.Reformulate(context.Background(), "How many casual leaves do I get?", nil))
	assert.Equal(t, 0, gen.CallCount())

	// 只有未知角色的历史等同于空历史
	r.Reformulate(context.Background(), "Q", []types.Turn{{Role: "system", Content: "x"}})
	assert.Equal(t, 0, gen.CallCount())
}

func TestReformulate_UsesHistory(t *testing.T) {
	gen := mocks.NewMockProvider().WithResponse("How many sick leave days do employees get?")
	r := NewQueryReformulator(gen, "gpt-4o-mini", nil)

	got := r.Reformulate(context.Background(), "What about sick leave?", fixtures.CasualLeaveHistory())
	assert.Equal(t, "How many sick leave days do employees get?", got)

	req := gen.LastRequest()
	require.NotNil(t, req)
	assert.Equal(t, "gpt-4o-mini", req.Model)
	assert.Zero(t, req.Temperature)
	require.Len(t, req.Messages, 2)
	assert.Equal(t, llm.RoleSystem, req.Messages[0].Role)
	assert.Contains(t, req.Messages[0].Content, "standalone question")
	assert.Contains(t, req.Messages[1].Content, "User: How many casual leaves do I get?")
	assert.Contains(t, req.Messages[1].Content, "Latest question: What about sick leave?")
}

func TestReformulate_FallsBackToQuestion(t *testing.T) {
	tests := []struct {
		name string
		gen  *mocks.MockProvider
	}{
		{name: "generation error", gen: mocks.NewMockProvider().WithError(errors.New("boom"))},
		{name: "blank rewrite", gen: mocks.NewMockProvider().WithResponse("   ")},
		{name: "quotes only", gen: mocks.NewMockProvider().WithResponse(`""`)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewQueryReformulator(tt.gen, "", nil)
			got := r.Reformulate(context.Background(), "What about sick leave?", fixtures.CasualLeaveHistory())
			assert.Equal(t, "What about sick leave?", got)
		})
	}
}

func TestCleanStandalone(t *testing.T) {
	tests := map[string]string{
		"How many sick days?":                        "How many sick days?",
		"  Standalone question: How many sick days?": "How many sick days?",
		`"How many sick days?"`:                      "How many sick days?",
		"Question: 'How many sick days?'":            "How many sick days?",
		"":                                           "",
	}
	for in, want := range tests {
		assert.Equal(t, want, cleanStandalone(in), "input %q", in)
	}
}

package rag

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/policyqa/llm"
	"github.com/BaSui01/policyqa/llm/tokenizer"
	"github.com/BaSui01/policyqa/testutil/fixtures"
	"github.com/BaSui01/policyqa/testutil/mocks"
	"github.com/BaSui01/policyqa/types"
)

func leaveResults() []RetrievalResult {
	return []RetrievalResult{{
		Chunk: Chunk{Text: fixtures.LeavePolicyText, PolicyTitle: fixtures.LeavePolicyTitle, SourcePath: "leave.txt"},
		Score: 0.9,
	}}
}

func TestSynthesize_GroundedAnswer(t *testing.T) {
	gen := mocks.NewGroundedGenerator()
	s := NewAnswerSynthesizer(gen, nil, SynthesizerConfig{Model: "gpt-4o-mini", MaxTokens: 512}, nil)

	text, err := s.Synthesize(context.Background(), "How many casual leaves do I get?", leaveResults(), nil)
	require.NoError(t, err)
	assert.Contains(t, text, "12")
	assert.Contains(t, text, fixtures.LeavePolicyTitle)

	reqs := gen.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, "gpt-4o-mini", reqs[0].Model)
	assert.Equal(t, 512, reqs[0].MaxTokens)
	assert.Contains(t, reqs[0].Messages[0].Content, "[1] Policy: Leave Policy 2025")
}

func TestSynthesize_MessageLayout(t *testing.T) {
	gen := mocks.NewMockProvider().WithResponse("ok")
	s := NewAnswerSynthesizer(gen, nil, SynthesizerConfig{}, nil)

	_, err := s.Synthesize(context.Background(), "And sick leave?", leaveResults(), fixtures.CasualLeaveHistory())
	require.NoError(t, err)

	msgs := gen.LastRequest().Messages
	require.Len(t, msgs, 4)
	assert.Equal(t, llm.RoleSystem, msgs[0].Role)
	assert.Equal(t, llm.RoleUser, msgs[1].Role)
	assert.Equal(t, llm.RoleAssistant, msgs[2].Role)
	assert.Equal(t, llm.UserMessage("And sick leave?"), msgs[3])
}

func TestSynthesize_BlankCompletionMeansNoAnswer(t *testing.T) {
	s := NewAnswerSynthesizer(mocks.NewMockProvider().WithResponse("  \n"), nil, SynthesizerConfig{}, nil)
	text, err := s.Synthesize(context.Background(), "q", leaveResults(), nil)
	require.NoError(t, err)
	assert.Equal(t, NoAnswerText, text)
}

func TestSynthesize_ErrorPropagates(t *testing.T) {
	boom := types.NewTransientError("mock", "generation capability unavailable", errors.New("503"))
	s := NewAnswerSynthesizer(mocks.NewMockProvider().WithError(boom), nil, SynthesizerConfig{}, nil)
	_, err := s.Synthesize(context.Background(), "q", leaveResults(), nil)
	assert.ErrorIs(t, err, boom)
}

func TestSynthesize_TrimsOldestHistoryToFitBudget(t *testing.T) {
	counter := tokenizer.NewEstimatorTokenizer("test", 0)
	long := strings.Repeat("abcd", 100) // 100 tokens + 4 overhead
	history := []types.Turn{
		types.UserTurn("first " + long[6:]),
		types.AssistantTurn("second" + long[6:]),
		types.UserTurn("third " + long[6:]),
	}

	unbounded := NewAnswerSynthesizer(nil, counter, SynthesizerConfig{}, nil)
	_, _, base := unbounded.buildMessages("q", leaveResults(), nil)
	_, _, full := unbounded.buildMessages("q", leaveResults(), history)
	require.Equal(t, base+3*104, full)

	s := NewAnswerSynthesizer(nil, counter, SynthesizerConfig{MaxPromptTokens: base + 104 + 50}, nil)
	msgs, dropped, tokens := s.buildMessages("q", leaveResults(), history)
	assert.Equal(t, 2, dropped)
	assert.LessOrEqual(t, tokens, base+104+50)
	require.Len(t, msgs, 3)
	assert.True(t, strings.HasPrefix(msgs[1].Content, "third"))

	// 预算小于系统提示时丢弃全部历史，但检索上下文保留
	tiny := NewAnswerSynthesizer(nil, counter, SynthesizerConfig{MaxPromptTokens: 1}, nil)
	msgs, dropped, _ = tiny.buildMessages("q", leaveResults(), history)
	assert.Equal(t, 3, dropped)
	require.Len(t, msgs, 2)
	assert.Contains(t, msgs[0].Content, fixtures.LeavePolicyText)
}

func TestHistoryMessages_SkipsUnknownRoles(t *testing.T) {
	msgs := historyMessages([]types.Turn{
		types.UserTurn("a"),
		{Role: "tool", Content: "b"},
		types.AssistantTurn("c"),
	})
	require.Len(t, msgs, 2)
	assert.Equal(t, llm.AssistantMessage("c"), msgs[1])
}

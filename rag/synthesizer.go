package rag

import (
	"context"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/BaSui01/policyqa/llm"
	"github.com/BaSui01/policyqa/llm/tokenizer"
	"github.com/BaSui01/policyqa/types"
)

// NoAnswerText 没有可用上下文时的固定回答
const NoAnswerText = "I don't know. None of the indexed policies cover this question."

const groundedSystemPrompt = `You are a company policy assistant. Answer the employee's question using ONLY the policy excerpts below.
- If the excerpts do not contain the answer, say "I don't know" and that the indexed policies do not cover it. Do not guess.
- Cite the specific policy by name (for example "According to the Leave Policy 2025, ...") where possible.
- Be concise.

Policy excerpts:
`

// SynthesizerConfig 答案合成参数
type SynthesizerConfig struct {
	Model       string
	Temperature float32
	MaxTokens   int
	// MaxPromptTokens 超出时从最早的历史轮次开始裁剪，0 表示不限制
	MaxPromptTokens int
}

// AnswerSynthesizer 基于检索到的片段生成有依据的答案
type AnswerSynthesizer struct {
	gen     Generator
	counter tokenizer.Tokenizer
	cfg     SynthesizerConfig
	logger  *zap.Logger
}

// NewAnswerSynthesizer 创建合成器，counter 为 nil 时不做 prompt 预算控制
func NewAnswerSynthesizer(gen Generator, counter tokenizer.Tokenizer, cfg SynthesizerConfig, logger *zap.Logger) *AnswerSynthesizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AnswerSynthesizer{
		gen:     gen,
		counter: counter,
		cfg:     cfg,
		logger:  logger.With(zap.String("component", "synthesizer")),
	}
}

// Synthesize 生成答案文本。模型返回空白时使用 NoAnswerText。
func (s *AnswerSynthesizer) Synthesize(ctx context.Context, question string, results []RetrievalResult, history []types.Turn) (string, error) {
	ctx, span := tracer.Start(ctx, "rag.Synthesize")
	defer span.End()
	span.SetAttributes(attribute.Int("context.chunks", len(results)))

	messages, dropped, promptTokens := s.buildMessages(question, results, history)
	span.SetAttributes(
		attribute.Int("history.dropped", dropped),
		attribute.Int("prompt.tokens", promptTokens),
	)
	if dropped > 0 {
		s.logger.Info("trimmed history to fit prompt budget",
			zap.Int("dropped_turns", dropped),
			zap.Int("prompt_tokens", promptTokens),
			zap.Int("max_prompt_tokens", s.cfg.MaxPromptTokens))
	}

	resp, err := s.gen.Completion(ctx, &llm.ChatRequest{
		Model:       s.cfg.Model,
		Messages:    messages,
		MaxTokens:   s.cfg.MaxTokens,
		Temperature: s.cfg.Temperature,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "generate")
		return "", err
	}

	text := strings.TrimSpace(resp.Content)
	if text == "" {
		return NoAnswerText, nil
	}
	s.logger.Debug("answer synthesized",
		zap.Int("prompt_tokens", promptTokens),
		zap.Int("completion_tokens", resp.Usage.CompletionTokens))
	return text, nil
}

// buildMessages 组装 system + 历史 + 问题；超出预算时丢弃最早的历史轮次，检索上下文不裁剪
func (s *AnswerSynthesizer) buildMessages(question string, results []RetrievalResult, history []types.Turn) ([]llm.Message, int, int) {
	system := llm.SystemMessage(groundedSystemPrompt + FormatContext(results))
	turns := historyMessages(history)

	assemble := func(h []llm.Message) []llm.Message {
		out := make([]llm.Message, 0, len(h)+2)
		out = append(out, system)
		out = append(out, h...)
		return append(out, llm.UserMessage(question))
	}

	messages := assemble(turns)
	if s.counter == nil {
		return messages, 0, 0
	}

	tokens := s.count(messages)
	dropped := 0
	for s.cfg.MaxPromptTokens > 0 && tokens > s.cfg.MaxPromptTokens && len(turns) > 0 {
		turns = turns[1:]
		dropped++
		messages = assemble(turns)
		tokens = s.count(messages)
	}
	return messages, dropped, tokens
}

func (s *AnswerSynthesizer) count(messages []llm.Message) int {
	tm := make([]tokenizer.Message, len(messages))
	for i, m := range messages {
		tm[i] = tokenizer.Message{Role: string(m.Role), Content: m.Content}
	}
	n, err := s.counter.CountMessages(tm)
	if err != nil {
		return 0
	}
	return n
}

func historyMessages(history []types.Turn) []llm.Message {
	out := make([]llm.Message, 0, len(history))
	for _, t := range history {
		switch t.Role {
		case types.RoleUser:
			out = append(out, llm.UserMessage(t.Content))
		case types.RoleAssistant:
			out = append(out, llm.AssistantMessage(t.Content))
		}
	}
	return out
}

package rag

import (
	"context"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/BaSui01/policyqa/llm"
	"github.com/BaSui01/policyqa/types"
)

const reformulateSystemPrompt = `Given a chat history and the latest user question, which might reference context in the chat history, rewrite the question as a standalone question that can be understood without the chat history.
- Resolve pronouns and ellipsis using the chat history.
- Keep the topic of the conversation (for example "leave", "travel", "expenses").
- Do NOT answer the question.
- Return only the rewritten question. If it is already standalone, return it unchanged.`

// QueryReformulator 把依赖上下文的追问改写为独立问题
type QueryReformulator struct {
	gen       Generator
	model     string
	maxTokens int
	logger    *zap.Logger
}

// NewQueryReformulator 创建改写器，model 为空时使用 Provider 默认模型
func NewQueryReformulator(gen Generator, model string, logger *zap.Logger) *QueryReformulator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &QueryReformulator{
		gen:       gen,
		model:     model,
		maxTokens: 256,
		logger:    logger.With(zap.String("component", "reformulator")),
	}
}

// Reformulate 返回独立问题。
// history 为空时原样返回 question，不调用生成能力；生成失败时退回原问题。
func (r *QueryReformulator) Reformulate(ctx context.Context, question string, history []types.Turn) string {
	rendered := types.FormatHistory(history)
	if rendered == "" {
		return question
	}

	ctx, span := tracer.Start(ctx, "rag.Reformulate")
	defer span.End()
	span.SetAttributes(attribute.Int("history.turns", len(history)))

	resp, err := r.gen.Completion(ctx, &llm.ChatRequest{
		Model: r.model,
		Messages: []llm.Message{
			llm.SystemMessage(reformulateSystemPrompt),
			llm.UserMessage("Chat history:\n" + rendered + "\n\nLatest question: " + question + "\n\nStandalone question:"),
		},
		MaxTokens:   r.maxTokens,
		Temperature: 0,
	})
	if err != nil {
		span.RecordError(err)
		span.SetAttributes(attribute.Bool("fallback", true))
		r.logger.Warn("reformulation failed, using raw question", zap.Error(err))
		return question
	}

	standalone := cleanStandalone(resp.Content)
	if standalone == "" {
		span.SetAttributes(attribute.Bool("fallback", true))
		return question
	}

	r.logger.Debug("question reformulated",
		zap.String("question", question),
		zap.String("standalone", standalone))
	return standalone
}

// cleanStandalone 去掉模型常见的前缀与包裹引号
func cleanStandalone(s string) string {
	s = strings.TrimSpace(s)
	for _, prefix := range []string{"Standalone question:", "standalone question:", "Question:"} {
		s = strings.TrimSpace(strings.TrimPrefix(s, prefix))
	}
	if len(s) >= 2 {
		if (s[0] == '"' && s[len(s)-1] == '"') || (s[0] == '\'' && s[len(s)-1] == '\'') {
			s = strings.TrimSpace(s[1 : len(s)-1])
		}
	}
	return s
}

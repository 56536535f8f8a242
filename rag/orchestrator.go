package rag

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/BaSui01/policyqa/types"
)

// 问答结果（指标标签）
const (
	OutcomeAnswered      = "answered"
	OutcomeNoContext     = "no_context"
	OutcomeIndexNotReady = "index_not_ready"
	OutcomeInvalid       = "invalid"
	OutcomeError         = "error"
)

// AnswerObserver 接收每次问答的结果（用于指标）
type AnswerObserver interface {
	ObserveAnswer(outcome string, retrieved int, duration time.Duration)
}

// ConversationalRAG 串联 改写 → 检索 → 合成 → 附加来源
type ConversationalRAG struct {
	index        *IndexManager
	reformulator *QueryReformulator
	retriever    *Retriever
	synthesizer  *AnswerSynthesizer
	observer     AnswerObserver
	logger       *zap.Logger

	loads singleflight.Group
}

// RAGOption 配置 ConversationalRAG
type RAGOption func(*ConversationalRAG)

// WithAnswerObserver 设置问答观察者
func WithAnswerObserver(o AnswerObserver) RAGOption {
	return func(c *ConversationalRAG) {
		c.observer = o
	}
}

// NewConversationalRAG 组装问答管线
func NewConversationalRAG(
	index *IndexManager,
	reformulator *QueryReformulator,
	retriever *Retriever,
	synthesizer *AnswerSynthesizer,
	logger *zap.Logger,
	opts ...RAGOption,
) *ConversationalRAG {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &ConversationalRAG{
		index:        index,
		reformulator: reformulator,
		retriever:    retriever,
		synthesizer:  synthesizer,
		logger:       logger.With(zap.String("component", "conversational_rag")),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// EnsureReady 索引未就绪时尝试加载一次（并发调用合并为一次加载）。
// 没有持久化索引时返回 INDEX_NOT_READY；持久化数据损坏时返回 CORRUPT_INDEX。
func (c *ConversationalRAG) EnsureReady(ctx context.Context) error {
	if c.index.Ready() {
		return nil
	}
	// 共享的加载不随任何单个调用方取消；每个调用方只等待自己的 ctx
	ch := c.loads.DoChan("load", func() (any, error) {
		return c.index.Load(context.WithoutCancel(ctx))
	})
	select {
	case <-ctx.Done():
		return ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return res.Err
		}
		if ok, _ := res.Val.(bool); !ok {
			return types.NewIndexNotReadyError()
		}
		return nil
	}
}

// Answer 回答一个问题。"I don't know" 是成功的答案，不是错误。
func (c *ConversationalRAG) Answer(ctx context.Context, question string, history []types.Turn) (answer *Answer, err error) {
	start := time.Now()
	outcome := OutcomeError
	retrieved := 0

	ctx, span := tracer.Start(ctx, "rag.Answer")
	defer func() {
		span.SetAttributes(
			attribute.String("outcome", outcome),
			attribute.Int("retrieved", retrieved),
		)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, outcome)
		}
		span.End()
		if c.observer != nil {
			c.observer.ObserveAnswer(outcome, retrieved, time.Since(start))
		}
	}()

	question = strings.TrimSpace(question)
	if question == "" {
		outcome = OutcomeInvalid
		return nil, types.NewInvalidRequestError("question must not be empty")
	}
	for i, t := range history {
		if !t.Role.Valid() {
			outcome = OutcomeInvalid
			return nil, types.NewInvalidRequestError(fmt.Sprintf("history turn %d has unknown role %q", i, t.Role))
		}
	}

	if err := c.EnsureReady(ctx); err != nil {
		if types.IsErrorCode(err, types.ErrIndexNotReady) {
			outcome = OutcomeIndexNotReady
		}
		return nil, err
	}

	standalone := c.reformulator.Reformulate(ctx, question, history)

	results, err := c.retriever.Retrieve(ctx, standalone)
	if err != nil {
		return nil, err
	}
	retrieved = len(results)

	if len(results) == 0 {
		outcome = OutcomeNoContext
		return &Answer{Text: NoAnswerText, Sources: []Source{}, Question: question}, nil
	}

	text, err := c.synthesizer.Synthesize(ctx, standalone, results, history)
	if err != nil {
		return nil, err
	}

	outcome = OutcomeAnswered
	c.logger.Info("question answered",
		zap.Int("history_turns", len(history)),
		zap.Bool("reformulated", standalone != question),
		zap.Int("sources", len(results)),
		zap.Duration("elapsed", time.Since(start)))

	return &Answer{
		Text:     text,
		Sources:  SourcesFrom(results),
		Question: question,
	}, nil
}

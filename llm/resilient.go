package llm

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/policyqa/llm/circuitbreaker"
	"github.com/BaSui01/policyqa/llm/retry"
	"github.com/BaSui01/policyqa/types"
)

// 调用状态（指标标签）
const (
	CallStatusOK        = "ok"
	CallStatusTransient = "transient"
	CallStatusError     = "error"
	CallStatusRejected  = "rejected"
)

// =============================================================================
// CallGuard：单次外部能力调用的超时 + 有界重试 + 观测
// =============================================================================

// CallGuard 包装一次外部能力调用：每次尝试独立超时，瞬时失败按策略重试，
// 最终的瞬时失败统一转换为 TRANSIENT_CAPABILITY_FAILURE。
type CallGuard struct {
	Kind     string // "generation" | "embedding"
	Provider string
	Model    string
	Timeout  time.Duration
	Retryer  retry.Retryer
	Breaker  *circuitbreaker.Breaker
	Observer CallObserver
	Logger   *zap.Logger
}

// NewCallGuard 创建 CallGuard，maxRetries 为额外重试次数
func NewCallGuard(kind, provider, model string, timeout time.Duration, maxRetries int, logger *zap.Logger) *CallGuard {
	if logger == nil {
		logger = zap.NewNop()
	}
	policy := retry.DefaultRetryPolicy()
	policy.MaxRetries = maxRetries
	policy.ShouldRetry = IsTransient
	return &CallGuard{
		Kind:     kind,
		Provider: provider,
		Model:    model,
		Timeout:  timeout,
		Retryer:  retry.NewBackoffRetryer(policy, logger),
		Logger:   logger,
	}
}

// WithObserver 设置指标观测器
func (g *CallGuard) WithObserver(o CallObserver) *CallGuard {
	g.Observer = o
	return g
}

// WithBreaker 设置熔断器；熔断期间调用直接以瞬时失败返回，不访问上游
func (g *CallGuard) WithBreaker(b *circuitbreaker.Breaker) *CallGuard {
	g.Breaker = b
	return g
}

// Invoke 在 CallGuard 的保护下执行 fn
func Invoke[T any](ctx context.Context, g *CallGuard, fn func(ctx context.Context) (T, error)) (T, error) {
	start := time.Now()

	if g.Breaker != nil {
		if err := g.Breaker.Allow(); err != nil {
			if g.Observer != nil {
				g.Observer.ObserveCall(g.Kind, g.Provider, g.Model, CallStatusRejected, time.Since(start))
			}
			var zero T
			return zero, types.NewTransientError(g.Provider, g.Kind+" capability unavailable", err)
		}
	}

	attempt := func() (T, error) {
		callCtx := ctx
		if g.Timeout > 0 {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithTimeout(ctx, g.Timeout)
			defer cancel()
		}
		v, err := fn(callCtx)
		if err != nil && ctx.Err() == nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) && !IsTransient(err) {
			// 单次调用超时，但底层返回了非超时错误（例如被取消的读取）
			err = types.NewError(types.ErrTimeout, "call timed out").
				WithCause(err).
				WithRetryable(true).
				WithProvider(g.Provider)
		}
		return v, err
	}

	var (
		v   T
		err error
	)
	if g.Retryer != nil {
		v, err = retry.DoWithResultTyped[T](g.Retryer, ctx, attempt)
	} else {
		v, err = attempt()
	}

	status := CallStatusOK
	if err != nil {
		status = CallStatusError
		if IsTransient(err) {
			status = CallStatusTransient
			err = types.NewTransientError(g.Provider, g.Kind+" capability unavailable", err)
		}
		g.Logger.Warn("capability call failed",
			zap.String("kind", g.Kind),
			zap.String("provider", g.Provider),
			zap.String("status", status),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err))
	}
	if g.Breaker != nil {
		// 重试耗尽后的瞬时失败已转换为可重试的 TRANSIENT 错误
		g.Breaker.Record(err)
	}
	if g.Observer != nil {
		g.Observer.ObserveCall(g.Kind, g.Provider, g.Model, status, time.Since(start))
	}
	return v, err
}

// =============================================================================
// ResilientProvider
// =============================================================================

// ResilientProvider 为生成 Provider 增加超时与有界重试
type ResilientProvider struct {
	provider Provider
	guard    *CallGuard
}

// NewResilientProvider 包装 Provider
func NewResilientProvider(provider Provider, guard *CallGuard) *ResilientProvider {
	return &ResilientProvider{provider: provider, guard: guard}
}

// Completion 实现 Provider.Completion
func (rp *ResilientProvider) Completion(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	return Invoke(ctx, rp.guard, func(ctx context.Context) (*ChatResponse, error) {
		return rp.provider.Completion(ctx, req)
	})
}

// Name 实现 Provider.Name
func (rp *ResilientProvider) Name() string {
	return rp.provider.Name()
}

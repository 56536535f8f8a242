package circuitbreaker

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/policyqa/types"
)

// State 熔断器状态
type State int

const (
	// StateClosed 正常放行
	StateClosed State = iota
	// StateOpen 熔断中，直接拒绝
	StateOpen
	// StateHalfOpen 试探性放行少量调用
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// Config 熔断器配置
type Config struct {
	// Threshold 连续失败次数阈值
	Threshold int

	// ResetTimeout Open → HalfOpen 的等待时间
	ResetTimeout time.Duration

	// HalfOpenMaxCalls 半开状态下同时放行的最大调用数
	HalfOpenMaxCalls int

	// IsFailure 判定错误是否计入失败，为空时只统计可重试错误
	IsFailure func(err error) bool

	// OnStateChange 状态变更回调（在独立 goroutine 中执行）
	OnStateChange func(from, to State)
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		Threshold:        5,
		ResetTimeout:     30 * time.Second,
		HalfOpenMaxCalls: 1,
	}
}

// Breaker 外部能力调用的熔断器.
//
// 调用方先 Allow，完成后以调用结果 Record；被拒绝的调用不需要 Record。
type Breaker struct {
	name   string
	config Config
	logger *zap.Logger
	now    func() time.Time

	mu           sync.Mutex
	state        State
	failures     int
	openedAt     time.Time
	halfOpenUsed int
}

// New 创建熔断器
func New(name string, config Config, logger *zap.Logger) *Breaker {
	def := DefaultConfig()
	if config.Threshold <= 0 {
		config.Threshold = def.Threshold
	}
	if config.ResetTimeout <= 0 {
		config.ResetTimeout = def.ResetTimeout
	}
	if config.HalfOpenMaxCalls <= 0 {
		config.HalfOpenMaxCalls = def.HalfOpenMaxCalls
	}
	if config.IsFailure == nil {
		config.IsFailure = types.IsRetryable
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Breaker{
		name:   name,
		config: config,
		logger: logger.With(zap.String("component", "circuit_breaker"), zap.String("breaker", name)),
		now:    time.Now,
	}
}

// Allow 判断是否放行本次调用。熔断中返回 SERVICE_UNAVAILABLE 错误。
func (b *Breaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateOpen:
		if b.now().Sub(b.openedAt) < b.config.ResetTimeout {
			return b.openError()
		}
		b.setState(StateHalfOpen)
		b.halfOpenUsed = 0
		fallthrough

	case StateHalfOpen:
		if b.halfOpenUsed >= b.config.HalfOpenMaxCalls {
			return b.openError()
		}
		b.halfOpenUsed++
	}
	return nil
}

// Record 记录一次已放行调用的结果
func (b *Breaker) Record(err error) {
	failed := err != nil && b.config.IsFailure(err)

	b.mu.Lock()
	defer b.mu.Unlock()

	if !failed {
		if b.state == StateHalfOpen {
			b.logger.Info("circuit closed after successful probe")
			b.setState(StateClosed)
		}
		b.failures = 0
		b.halfOpenUsed = 0
		return
	}

	b.failures++
	switch b.state {
	case StateClosed:
		if b.failures >= b.config.Threshold {
			b.logger.Warn("circuit opened",
				zap.Int("consecutive_failures", b.failures),
				zap.Duration("reset_timeout", b.config.ResetTimeout))
			b.open()
		}
	case StateHalfOpen:
		b.logger.Warn("probe failed, circuit re-opened")
		b.open()
	}
}

// State 当前状态；Open 且已过 ResetTimeout 时仍报告 open，直到下一次 Allow
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Reset 手动恢复为 closed
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures = 0
	b.halfOpenUsed = 0
	b.setState(StateClosed)
}

func (b *Breaker) open() {
	b.openedAt = b.now()
	b.halfOpenUsed = 0
	b.setState(StateOpen)
}

func (b *Breaker) setState(to State) {
	from := b.state
	if from == to {
		return
	}
	b.state = to
	if b.config.OnStateChange != nil {
		go b.config.OnStateChange(from, to)
	}
}

func (b *Breaker) openError() error {
	return types.NewError(types.ErrServiceUnavailable, b.name+" circuit is open").
		WithRetryable(true)
}

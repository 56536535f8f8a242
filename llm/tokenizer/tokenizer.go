package tokenizer

import (
	"sync"

	"go.uber.org/zap"
)

// Tokenizer 是统一的 token 计数接口.
type Tokenizer interface {
	// CountTokens 返回给定文本的 token 数.
	CountTokens(text string) (int, error)

	// CountMessages 返回消息列表的总 token 数,
	// 包括每条消息的开销（角色标记、分隔符等）。
	CountMessages(messages []Message) (int, error)

	// MaxTokens 返回模型的最大上下文长度.
	MaxTokens() int

	// Name 返回分词器的名称.
	Name() string
}

// Message 是一个轻量级消息结构, 由 tokenizer 包使用
// 以避免与 llm 包的循环依赖。
type Message struct {
	Role    string
	Content string
}

// =============================================================================
// FallbackTokenizer
// =============================================================================

// FallbackTokenizer 优先使用 tiktoken，编码表不可用时（例如离线环境
// 无法下载 BPE 数据）退回到字符估算器.
type FallbackTokenizer struct {
	primary  Tokenizer
	fallback Tokenizer
	logger   *zap.Logger

	mu     sync.Mutex
	failed bool
}

// ForModel 返回给定模型的计数器
func ForModel(model string, logger *zap.Logger) *FallbackTokenizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	primary := NewTiktokenTokenizer(model)
	return &FallbackTokenizer{
		primary:  primary,
		fallback: NewEstimatorTokenizer(model, primary.MaxTokens()),
		logger:   logger,
	}
}

func (f *FallbackTokenizer) active() Tokenizer {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failed {
		return f.fallback
	}
	return f.primary
}

func (f *FallbackTokenizer) degrade(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.failed {
		f.failed = true
		f.logger.Warn("tiktoken unavailable, using estimator", zap.Error(err))
	}
}

// CountTokens 实现 Tokenizer
func (f *FallbackTokenizer) CountTokens(text string) (int, error) {
	n, err := f.active().CountTokens(text)
	if err != nil {
		f.degrade(err)
		return f.fallback.CountTokens(text)
	}
	return n, nil
}

// CountMessages 实现 Tokenizer
func (f *FallbackTokenizer) CountMessages(messages []Message) (int, error) {
	n, err := f.active().CountMessages(messages)
	if err != nil {
		f.degrade(err)
		return f.fallback.CountMessages(messages)
	}
	return n, nil
}

// MaxTokens 实现 Tokenizer
func (f *FallbackTokenizer) MaxTokens() int { return f.primary.MaxTokens() }

// Name 实现 Tokenizer
func (f *FallbackTokenizer) Name() string { return f.active().Name() }

package tokenizer

import "unicode"

const (
	// 英文约 4 字符 / token，中日韩约 1.5 字符 / token
	latinCharsPerToken = 4.0
	cjkCharsPerToken   = 1.5

	// 每条消息的角色与分隔符开销、对话结尾开销
	perMessageOverhead = 4
	replyPrimeOverhead = 3

	defaultContextWindow = 4096
)

// EstimatorTokenizer 按字符类别估算 token 数，不依赖任何编码表
type EstimatorTokenizer struct {
	model     string
	maxTokens int
}

// NewEstimatorTokenizer 创建估算器；maxTokens <= 0 时取 4096
func NewEstimatorTokenizer(model string, maxTokens int) *EstimatorTokenizer {
	if maxTokens <= 0 {
		maxTokens = defaultContextWindow
	}
	return &EstimatorTokenizer{model: model, maxTokens: maxTokens}
}

// CountTokens 非空文本至少计 1
func (e *EstimatorTokenizer) CountTokens(text string) (int, error) {
	if text == "" {
		return 0, nil
	}
	var cjk, other int
	for _, r := range text {
		if isCJK(r) {
			cjk++
		} else {
			other++
		}
	}
	n := int(float64(cjk)/cjkCharsPerToken + float64(other)/latinCharsPerToken)
	return max(n, 1), nil
}

func (e *EstimatorTokenizer) CountMessages(messages []Message) (int, error) {
	total := replyPrimeOverhead
	for _, msg := range messages {
		n, err := e.CountTokens(msg.Content)
		if err != nil {
			return 0, err
		}
		total += n + perMessageOverhead
	}
	return total, nil
}

func (e *EstimatorTokenizer) MaxTokens() int { return e.maxTokens }

func (e *EstimatorTokenizer) Name() string { return "estimator" }

var cjkTables = []*unicode.RangeTable{unicode.Han, unicode.Hiragana, unicode.Katakana, unicode.Hangul}

func isCJK(r rune) bool {
	if r < 0x1100 {
		return false
	}
	// 全角标点与 CJK 符号
	if (r >= 0x3000 && r <= 0x303F) || (r >= 0xFF00 && r <= 0xFFEF) {
		return true
	}
	return unicode.In(r, cjkTables...)
}

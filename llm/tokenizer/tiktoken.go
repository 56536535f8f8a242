package tokenizer

import (
	"fmt"
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

type encodingInfo struct {
	name          string
	contextWindow int
}

var fallbackEncoding = encodingInfo{name: "cl100k_base", contextWindow: 8192}

// knownModels 模型名（或前缀）到编码的映射
var knownModels = map[string]encodingInfo{
	"gpt-4o":                 {"o200k_base", 128000},
	"gpt-4o-mini":            {"o200k_base", 128000},
	"gpt-4.1":                {"o200k_base", 1047576},
	"gpt-4-turbo":            {"cl100k_base", 128000},
	"gpt-4":                  {"cl100k_base", 8192},
	"gpt-3.5-turbo":          {"cl100k_base", 16385},
	"text-embedding-3-large": {"cl100k_base", 8191},
	"text-embedding-3-small": {"cl100k_base", 8191},
}

// lookupEncoding 精确匹配优先，其次最长前缀（gpt-4o-2024-08-06 → gpt-4o）
func lookupEncoding(model string) encodingInfo {
	if info, ok := knownModels[model]; ok {
		return info
	}
	info, longest := fallbackEncoding, 0
	for prefix, candidate := range knownModels {
		if len(prefix) > longest && strings.HasPrefix(model, prefix) {
			info, longest = candidate, len(prefix)
		}
	}
	return info
}

// TiktokenTokenizer OpenAI 系列模型的精确计数器，编码表在首次使用时加载
type TiktokenTokenizer struct {
	model string
	info  encodingInfo

	load    sync.Once
	enc     *tiktoken.Tiktoken
	loadErr error
}

// NewTiktokenTokenizer 未知模型使用 cl100k_base
func NewTiktokenTokenizer(model string) *TiktokenTokenizer {
	return &TiktokenTokenizer{model: model, info: lookupEncoding(model)}
}

func (t *TiktokenTokenizer) encoding() (*tiktoken.Tiktoken, error) {
	t.load.Do(func() {
		// 可能需要下载 BPE 数据，离线时失败
		t.enc, t.loadErr = tiktoken.GetEncoding(t.info.name)
		if t.loadErr != nil {
			t.loadErr = fmt.Errorf("load tiktoken encoding %s: %w", t.info.name, t.loadErr)
		}
	})
	return t.enc, t.loadErr
}

func (t *TiktokenTokenizer) CountTokens(text string) (int, error) {
	enc, err := t.encoding()
	if err != nil {
		return 0, err
	}
	return len(enc.Encode(text, nil, nil)), nil
}

// CountMessages 按 ChatML 计：每条消息 role + content + 4，结尾 +3
func (t *TiktokenTokenizer) CountMessages(messages []Message) (int, error) {
	enc, err := t.encoding()
	if err != nil {
		return 0, err
	}
	total := replyPrimeOverhead
	for _, msg := range messages {
		total += perMessageOverhead +
			len(enc.Encode(msg.Role, nil, nil)) +
			len(enc.Encode(msg.Content, nil, nil))
	}
	return total, nil
}

func (t *TiktokenTokenizer) MaxTokens() int { return t.info.contextWindow }

func (t *TiktokenTokenizer) Name() string { return "tiktoken[" + t.info.name + "]" }

package mocks

import (
	"context"
	"strings"
	"sync"

	"github.com/BaSui01/policyqa/llm"
)

// GroundedDontKnow GroundedGenerator 在上下文不含答案时的回复
const GroundedDontKnow = "I don't know. The indexed policies do not cover this question."

var stopWords = map[string]bool{
	"what": true, "about": true, "how": true, "many": true, "much": true,
	"do": true, "doe": true, "does": true, "i": true, "we": true, "get": true,
	"is": true, "are": true, "the": true, "a": true, "an": true, "of": true,
	"for": true, "to": true, "in": true, "on": true, "my": true, "me": true,
	"can": true, "there": true, "any": true, "you": true, "your": true,
	"our": true, "it": true, "and": true, "or": true, "with": true,
	"when": true, "which": true, "who": true, "should": true, "will": true,
	"be": true, "have": true, "has": true, "am": true,
}

// GroundedGenerator 是一个确定性的“有依据”生成器：
//   - 改写请求：返回预设改写，否则原样返回最新问题；
//   - 合成请求：在策略片段中寻找包含问题全部关键词的句子，
//     找到则引用该政策名称作答，否则回答 GroundedDontKnow。
type GroundedGenerator struct {
	mu       sync.Mutex
	rewrites map[string]string
	calls    []*llm.ChatRequest
}

// NewGroundedGenerator 创建生成器
func NewGroundedGenerator() *GroundedGenerator {
	return &GroundedGenerator{rewrites: map[string]string{}}
}

// WithRewrite 为某个追问预设独立问题
func (g *GroundedGenerator) WithRewrite(question, standalone string) *GroundedGenerator {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.rewrites[question] = standalone
	return g
}

// Requests 返回收到的请求
func (g *GroundedGenerator) Requests() []*llm.ChatRequest {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]*llm.ChatRequest(nil), g.calls...)
}

// Name 实现 llm.Provider
func (g *GroundedGenerator) Name() string { return "grounded-fake" }

// Completion 实现 llm.Provider
func (g *GroundedGenerator) Completion(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	g.mu.Lock()
	g.calls = append(g.calls, req)
	g.mu.Unlock()

	var system, lastUser string
	for _, m := range req.Messages {
		switch m.Role {
		case llm.RoleSystem:
			system = m.Content
		case llm.RoleUser:
			lastUser = m.Content
		}
	}

	var content string
	switch {
	case strings.Contains(system, "standalone question"):
		content = g.rewrite(lastUser)
	case strings.Contains(system, "Policy excerpts:"):
		content = answerFromExcerpts(system, lastUser)
	default:
		content = lastUser
	}

	return &llm.ChatResponse{
		Provider:     g.Name(),
		Model:        req.Model,
		Content:      content,
		FinishReason: "stop",
	}, nil
}

func (g *GroundedGenerator) rewrite(prompt string) string {
	q := prompt
	if i := strings.Index(q, "Latest question: "); i >= 0 {
		q = q[i+len("Latest question: "):]
	}
	if i := strings.Index(q, "\n\nStandalone question:"); i >= 0 {
		q = q[:i]
	}
	q = strings.TrimSpace(q)

	g.mu.Lock()
	defer g.mu.Unlock()
	if r, ok := g.rewrites[q]; ok {
		return r
	}
	return q
}

type excerpt struct {
	title string
	text  string
}

func parseExcerpts(system string) []excerpt {
	i := strings.Index(system, "Policy excerpts:")
	if i < 0 {
		return nil
	}
	var out []excerpt
	for _, line := range strings.Split(system[i+len("Policy excerpts:"):], "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "[") {
			if j := strings.Index(line, "] Policy: "); j > 0 {
				out = append(out, excerpt{title: line[j+len("] Policy: "):]})
				continue
			}
		}
		if len(out) > 0 {
			out[len(out)-1].text += " " + line
		}
	}
	return out
}

func keywords(question string) []string {
	var out []string
	for _, w := range Words(question) {
		if !stopWords[w] {
			out = append(out, w)
		}
	}
	return out
}

func answerFromExcerpts(system, question string) string {
	keys := keywords(question)
	if len(keys) == 0 {
		return GroundedDontKnow
	}
	for _, ex := range parseExcerpts(system) {
		for _, sentence := range strings.FieldsFunc(ex.text, func(r rune) bool { return r == '.' || r == '!' || r == '?' }) {
			set := map[string]bool{}
			for _, w := range Words(sentence) {
				set[w] = true
			}
			all := true
			for _, k := range keys {
				if !set[k] {
					all = false
					break
				}
			}
			if all {
				return "According to the " + ex.title + ", " + strings.TrimSpace(sentence) + "."
			}
		}
	}
	return GroundedDontKnow
}

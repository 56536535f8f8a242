package rag

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// ExcerptLength is the number of characters kept in a source excerpt.
const ExcerptLength = 200

// Document 一份上传的政策文件（原始文本只在摄入期间存在）
type Document struct {
	Title      string            `json:"title"`
	SourcePath string            `json:"source_path"`
	Text       string            `json:"-"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// Chunk 文档中的一段连续文本，检索的基本单位
type Chunk struct {
	Text          string `json:"text"`
	PolicyTitle   string `json:"policy_title"`
	SourcePath    string `json:"source_path"`
	SequenceIndex int    `json:"sequence_index"`
}

// Entry 索引中的一条记录：向量 + 块
type Entry struct {
	ID     string    `json:"id"`
	Vector []float64 `json:"vector"`
	Chunk  Chunk     `json:"chunk"`
}

// RetrievalResult 检索结果（按分数降序）
type RetrievalResult struct {
	Chunk Chunk   `json:"chunk"`
	Score float64 `json:"score"`
}

// Source 答案引用的政策片段
type Source struct {
	PolicyTitle string `json:"policy_title"`
	Excerpt     string `json:"excerpt"`
}

// Answer 一次问答的结果（不持久化）
type Answer struct {
	Text     string   `json:"answer"`
	Sources  []Source `json:"sources"`
	Question string   `json:"question"`
}

// Excerpt truncates text to ExcerptLength characters and appends "..." when it was longer.
func Excerpt(text string) string {
	if utf8.RuneCountInString(text) <= ExcerptLength {
		return text
	}
	runes := []rune(text)
	return string(runes[:ExcerptLength]) + "..."
}

// SourcesFrom builds one Source per retrieved chunk, in retrieval order.
func SourcesFrom(results []RetrievalResult) []Source {
	sources := make([]Source, 0, len(results))
	for _, r := range results {
		sources = append(sources, Source{
			PolicyTitle: r.Chunk.PolicyTitle,
			Excerpt:     Excerpt(r.Chunk.Text),
		})
	}
	return sources
}

// FormatContext renders retrieved chunks as numbered, titled blocks for a prompt.
func FormatContext(results []RetrievalResult) string {
	var b strings.Builder
	for i, r := range results {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "[%d] Policy: %s\n%s", i+1, r.Chunk.PolicyTitle, r.Chunk.Text)
	}
	return b.String()
}

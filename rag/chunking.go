package rag

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"
)

// DefaultSeparators 分隔符优先级：段落 > 行 > 单词 > 字符
var DefaultSeparators = []string{"\n\n", "\n", " ", ""}

// ChunkingConfig 分块配置（单位：字符）
type ChunkingConfig struct {
	ChunkSize    int `json:"chunk_size"`
	ChunkOverlap int `json:"chunk_overlap"`
}

// DefaultChunkingConfig 默认分块配置
func DefaultChunkingConfig() ChunkingConfig {
	return ChunkingConfig{
		ChunkSize:    1000,
		ChunkOverlap: 200,
	}
}

// Validate checks 0 <= overlap < size.
func (c ChunkingConfig) Validate() error {
	if c.ChunkSize <= 0 {
		return fmt.Errorf("chunk_size must be positive, got %d", c.ChunkSize)
	}
	if c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize {
		return fmt.Errorf("chunk_overlap must be in [0, %d), got %d", c.ChunkSize, c.ChunkOverlap)
	}
	return nil
}

// Split 递归切分文本，纯函数，相同输入总是得到相同输出
func Split(text string, chunkSize, chunkOverlap int) []string {
	s := &RecursiveSplitter{
		config:     ChunkingConfig{ChunkSize: chunkSize, ChunkOverlap: chunkOverlap},
		separators: DefaultSeparators,
	}
	return s.Split(text)
}

// =============================================================================
// RecursiveSplitter
// =============================================================================

// RecursiveSplitter 递归字符切分器
//
// 先按最高优先级分隔符切分，超过 ChunkSize 的片段再用下一级分隔符递归切分，
// 最后把小片段合并为不超过 ChunkSize 的窗口，相邻窗口保留不超过 ChunkOverlap 的重叠。
type RecursiveSplitter struct {
	config     ChunkingConfig
	separators []string
	logger     *zap.Logger
}

// NewRecursiveSplitter 创建切分器
func NewRecursiveSplitter(config ChunkingConfig, logger *zap.Logger) (*RecursiveSplitter, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RecursiveSplitter{
		config:     config,
		separators: DefaultSeparators,
		logger:     logger.With(zap.String("component", "chunker")),
	}, nil
}

// Config returns the splitter configuration.
func (s *RecursiveSplitter) Config() ChunkingConfig {
	return s.config
}

// Split 切分文本为有序的块文本序列
func (s *RecursiveSplitter) Split(text string) []string {
	return s.splitText(text, s.separators)
}

// ChunkDocument 切分文档并为每个块附上父文档信息
func (s *RecursiveSplitter) ChunkDocument(doc Document) []Chunk {
	texts := s.Split(doc.Text)
	chunks := make([]Chunk, len(texts))
	for i, t := range texts {
		chunks[i] = Chunk{
			Text:          t,
			PolicyTitle:   doc.Title,
			SourcePath:    doc.SourcePath,
			SequenceIndex: i,
		}
	}

	if s.logger != nil {
		s.logger.Debug("document chunked",
			zap.String("title", doc.Title),
			zap.Int("chunks", len(chunks)),
			zap.Int("chunk_size", s.config.ChunkSize),
			zap.Int("overlap", s.config.ChunkOverlap))
	}
	return chunks
}

// splitText 递归分割
func (s *RecursiveSplitter) splitText(text string, separators []string) []string {
	separator := ""
	var next []string
	for i, sep := range separators {
		if sep == "" {
			break
		}
		if strings.Contains(text, sep) {
			separator = sep
			next = separators[i+1:]
			break
		}
	}

	var (
		final []string
		good  []string
	)
	for _, piece := range splitKeepSeparator(text, separator) {
		if runeLen(piece) < s.config.ChunkSize {
			good = append(good, piece)
			continue
		}
		if len(good) > 0 {
			final = append(final, s.mergeSplits(good)...)
			good = nil
		}
		if len(next) == 0 {
			// 字符级切分后仍然过长，只可能是 ChunkSize == 1 的单字符
			if t := strings.TrimSpace(piece); t != "" {
				final = append(final, t)
			}
			continue
		}
		final = append(final, s.splitText(piece, next)...)
	}
	if len(good) > 0 {
		final = append(final, s.mergeSplits(good)...)
	}
	return final
}

// mergeSplits 把片段合并为窗口，并在窗口之间保留尾部重叠
func (s *RecursiveSplitter) mergeSplits(splits []string) []string {
	var (
		docs    []string
		current []string
		total   int
	)
	for _, piece := range splits {
		n := runeLen(piece)
		if total+n > s.config.ChunkSize && len(current) > 0 {
			if doc := strings.TrimSpace(strings.Join(current, "")); doc != "" {
				docs = append(docs, doc)
			}
			for len(current) > 0 && (total > s.config.ChunkOverlap || total+n > s.config.ChunkSize) {
				total -= runeLen(current[0])
				current = current[1:]
			}
		}
		current = append(current, piece)
		total += n
	}
	if doc := strings.TrimSpace(strings.Join(current, "")); doc != "" {
		docs = append(docs, doc)
	}
	return docs
}

// splitKeepSeparator 切分并把分隔符保留在后一个片段的开头；空分隔符按字符切分
func splitKeepSeparator(text, separator string) []string {
	if separator == "" {
		pieces := make([]string, 0, utf8.RuneCountInString(text))
		for _, r := range text {
			pieces = append(pieces, string(r))
		}
		return pieces
	}

	parts := strings.Split(text, separator)
	pieces := make([]string, 0, len(parts))
	for i, p := range parts {
		if i > 0 {
			p = separator + p
		}
		if p != "" {
			pieces = append(pieces, p)
		}
	}
	return pieces
}

func runeLen(s string) int {
	return utf8.RuneCountInString(s)
}

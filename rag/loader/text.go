package loader

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"unicode/utf8"

	"github.com/BaSui01/policyqa/rag"
)

// TextLoader loads plain text files as a single Document.
type TextLoader struct{}

// NewTextLoader creates a TextLoader.
func NewTextLoader() *TextLoader {
	return &TextLoader{}
}

// Load reads a UTF-8 text file. Binary content is rejected.
func (l *TextLoader) Load(ctx context.Context, path string) (rag.Document, error) {
	if err := ctx.Err(); err != nil {
		return rag.Document{}, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return rag.Document{}, fmt.Errorf("text loader: %w", err)
	}
	text, err := decodeText(data)
	if err != nil {
		return rag.Document{}, fmt.Errorf("text loader: %s: %w", path, err)
	}

	return rag.Document{
		SourcePath: path,
		Text:       text,
		Metadata:   metadata(path, "text/plain", "text"),
	}, nil
}

// SupportedTypes returns the extensions handled by TextLoader.
func (l *TextLoader) SupportedTypes() []string {
	return []string{".txt"}
}

// decodeText 去掉 UTF-8 BOM，拒绝含 NUL 或非法 UTF-8 的内容
func decodeText(data []byte) (string, error) {
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))
	if bytes.IndexByte(data, 0) >= 0 {
		return "", fmt.Errorf("binary content")
	}
	if !utf8.Valid(data) {
		return "", fmt.Errorf("invalid UTF-8")
	}
	return string(data), nil
}

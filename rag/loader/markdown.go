package loader

import (
	"context"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/BaSui01/policyqa/rag"
)

// MarkdownLoader loads Markdown files as a single Document.
//
// The title comes from a YAML front matter "title" key, or else the first
// ATX heading. Front matter is stripped from the text; headings are kept so
// chunk boundaries still follow the document structure.
type MarkdownLoader struct{}

// NewMarkdownLoader creates a MarkdownLoader.
func NewMarkdownLoader() *MarkdownLoader {
	return &MarkdownLoader{}
}

type frontMatter struct {
	Title string `yaml:"title"`
}

// Load reads a Markdown file.
func (l *MarkdownLoader) Load(ctx context.Context, path string) (rag.Document, error) {
	if err := ctx.Err(); err != nil {
		return rag.Document{}, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return rag.Document{}, fmt.Errorf("markdown loader: %w", err)
	}
	text, err := decodeText(data)
	if err != nil {
		return rag.Document{}, fmt.Errorf("markdown loader: %s: %w", path, err)
	}

	body, fm, err := splitFrontMatter(text)
	if err != nil {
		return rag.Document{}, fmt.Errorf("markdown loader: %s: front matter: %w", path, err)
	}

	title := strings.TrimSpace(fm.Title)
	if title == "" {
		title = firstHeading(body)
	}

	return rag.Document{
		Title:      title,
		SourcePath: path,
		Text:       strings.TrimSpace(body),
		Metadata:   metadata(path, "text/markdown", "markdown"),
	}, nil
}

// SupportedTypes returns the extensions handled by MarkdownLoader.
func (l *MarkdownLoader) SupportedTypes() []string {
	return []string{".md", ".markdown"}
}

// splitFrontMatter 拆出以 "---" 包围的 YAML 头
func splitFrontMatter(text string) (string, frontMatter, error) {
	var fm frontMatter
	normalized := strings.ReplaceAll(text, "\r\n", "\n")
	if !strings.HasPrefix(normalized, "---\n") {
		return text, fm, nil
	}
	rest := normalized[len("---\n"):]
	end := strings.Index(rest, "\n---")
	if end < 0 {
		return text, fm, nil
	}
	if err := yaml.Unmarshal([]byte(rest[:end]), &fm); err != nil {
		return "", fm, err
	}
	body := rest[end+len("\n---"):]
	return strings.TrimPrefix(body, "\n"), fm, nil
}

func firstHeading(text string) string {
	for _, line := range strings.Split(text, "\n") {
		if heading, _ := parseHeading(line); heading != "" {
			return heading
		}
	}
	return ""
}

// parseHeading detects ATX-style headings (# Heading).
// Returns the heading text and level (1-6), or ("", 0) if not a heading.
func parseHeading(line string) (heading string, level int) {
	trimmed := strings.TrimSpace(line)
	if !strings.HasPrefix(trimmed, "#") {
		return "", 0
	}
	for _, ch := range trimmed {
		if ch != '#' {
			break
		}
		level++
	}
	if level > 6 {
		return "", 0
	}
	rest := trimmed[level:]
	if rest != "" && rest[0] != ' ' && rest[0] != '\t' {
		return "", 0
	}
	heading = strings.TrimSpace(strings.TrimRight(strings.TrimSpace(rest), "#"))
	if heading == "" {
		return "", 0
	}
	return heading, level
}

package loader

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/BaSui01/policyqa/rag"
	"github.com/BaSui01/policyqa/types"
)

// DocumentLoader extracts the plain text of one policy file.
type DocumentLoader interface {
	// Load reads path and returns a Document whose Text is the extracted plain text.
	// Title is filled only when the format carries one (markdown front matter or heading).
	Load(ctx context.Context, path string) (rag.Document, error)

	// SupportedTypes returns the file extensions this loader handles (e.g. ".txt", ".md").
	SupportedTypes() []string
}

// LoaderRegistry routes Load calls to the appropriate DocumentLoader based on file extension.
type LoaderRegistry struct {
	mu      sync.RWMutex
	loaders map[string]DocumentLoader // extension (lowercase, with dot) -> loader
}

// NewLoaderRegistry creates a registry pre-populated with the built-in loaders.
func NewLoaderRegistry() *LoaderRegistry {
	r := &LoaderRegistry{
		loaders: make(map[string]DocumentLoader),
	}

	builtins := []DocumentLoader{
		NewTextLoader(),
		NewMarkdownLoader(),
		NewPDFLoader(),
	}
	for _, l := range builtins {
		for _, ext := range l.SupportedTypes() {
			r.loaders[strings.ToLower(ext)] = l
		}
	}

	return r
}

// Register adds or replaces a loader for the given file extension.
// ext should include the leading dot (e.g. ".html").
func (r *LoaderRegistry) Register(ext string, loader DocumentLoader) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.loaders[strings.ToLower(ext)] = loader
}

// Supports reports whether a loader is registered for path's extension.
func (r *LoaderRegistry) Supports(path string) bool {
	_, ok := r.lookup(path)
	return ok
}

func (r *LoaderRegistry) lookup(path string) (DocumentLoader, bool) {
	ext := strings.ToLower(filepath.Ext(path))
	r.mu.RLock()
	defer r.mu.RUnlock()
	l, ok := r.loaders[ext]
	return l, ok
}

// Load extracts the document at path.
//
// The title is chosen in order: the caller-supplied title, a title carried by the
// file itself, the file name without its extension. An unknown extension yields an
// UNSUPPORTED_FORMAT error; a file with no extractable text is an error too.
func (r *LoaderRegistry) Load(ctx context.Context, path, title string) (rag.Document, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if ext == "" {
		return rag.Document{}, types.NewError(types.ErrUnsupportedFormat,
			fmt.Sprintf("cannot determine file type for %q (no extension)", filepath.Base(path)))
	}

	l, ok := r.lookup(path)
	if !ok {
		return rag.Document{}, types.NewError(types.ErrUnsupportedFormat,
			fmt.Sprintf("no loader registered for extension %q", ext))
	}

	doc, err := l.Load(ctx, path)
	if err != nil {
		return rag.Document{}, err
	}
	if strings.TrimSpace(doc.Text) == "" {
		return rag.Document{}, fmt.Errorf("%s: no extractable text", filepath.Base(path))
	}

	doc.SourcePath = path
	if t := strings.TrimSpace(title); t != "" {
		doc.Title = t
	}
	if doc.Title == "" {
		doc.Title = TitleFromPath(path)
	}
	return doc, nil
}

// SupportedTypes returns all registered extensions, sorted.
func (r *LoaderRegistry) SupportedTypes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	exts := make([]string, 0, len(r.loaders))
	for ext := range r.loaders {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return exts
}

// TitleFromPath returns the file name without its extension.
func TitleFromPath(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func metadata(path, contentType, loader string) map[string]string {
	return map[string]string{
		"source_file":  filepath.Base(path),
		"content_type": contentType,
		"loader":       loader,
	}
}

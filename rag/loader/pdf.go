package loader

import (
	"bytes"
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/BaSui01/policyqa/rag"
)

// PDFLoader extracts the plain text layer of a PDF file.
// Scanned PDFs without a text layer yield no text and are rejected by the registry.
type PDFLoader struct{}

// NewPDFLoader creates a PDFLoader.
func NewPDFLoader() *PDFLoader {
	return &PDFLoader{}
}

// Load extracts the text of every page.
func (l *PDFLoader) Load(ctx context.Context, path string) (doc rag.Document, err error) {
	if err := ctx.Err(); err != nil {
		return rag.Document{}, err
	}

	// 解析器遇到损坏的交叉引用表会 panic
	defer func() {
		if r := recover(); r != nil {
			doc = rag.Document{}
			err = fmt.Errorf("pdf loader: %s: malformed pdf: %v", path, r)
		}
	}()

	f, reader, err := pdf.Open(path)
	if err != nil {
		return rag.Document{}, fmt.Errorf("pdf loader: %w", err)
	}
	defer f.Close()

	plain, err := reader.GetPlainText()
	if err != nil {
		return rag.Document{}, fmt.Errorf("pdf loader: %s: extract text: %w", path, err)
	}
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(plain); err != nil {
		return rag.Document{}, fmt.Errorf("pdf loader: %s: read text: %w", path, err)
	}

	meta := metadata(path, "application/pdf", "pdf")
	meta["pages"] = strconv.Itoa(reader.NumPage())

	return rag.Document{
		SourcePath: path,
		Text:       strings.TrimSpace(buf.String()),
		Metadata:   meta,
	}, nil
}

// SupportedTypes returns the extensions handled by PDFLoader.
func (l *PDFLoader) SupportedTypes() []string {
	return []string{".pdf"}
}

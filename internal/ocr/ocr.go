// Package ocr extracts text content from supplier PDF documents.
package ocr

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/meridien-distribution/catalog-cli/internal/config"
)

// Extractor extracts text content from PDF files.
type Extractor interface {
	ExtractText(ctx context.Context, pdfPath string) (string, error)
}

// NewExtractor creates an Extractor based on config.
func NewExtractor(cfg config.OCRConfig, mistralKey string) (Extractor, error) {
	switch cfg.Provider {
	case "local", "":
		return NewPdfToText(cfg.PdfToTextPath), nil
	case "mistral":
		if mistralKey == "" {
			return nil, eris.New("ocr: mistral provider requires mistral_api_key")
		}
		return NewMistralOCR(mistralKey, cfg.MistralModel), nil
	default:
		return nil, eris.Errorf("ocr: unknown provider %q", cfg.Provider)
	}
}

// minCharsPerPage is the threshold below which a page is assumed to be
// a scan with no embedded text layer.
const minCharsPerPage = 100

// PageCount counts pages in pdftotext output, which separates pages
// with form feeds.
func PageCount(text string) int {
	if strings.TrimSpace(text) == "" {
		return 0
	}
	return strings.Count(text, "\f") + 1
}

// IsLikelyScanned reports whether the extracted text is too sparse to
// have come from a text layer, which means the document should be
// routed through vision extraction instead.
func IsLikelyScanned(text string) bool {
	pages := PageCount(text)
	if pages == 0 {
		return true
	}
	content := strings.TrimSpace(strings.ReplaceAll(text, "\f", ""))
	return len(content)/pages < minCharsPerPage
}

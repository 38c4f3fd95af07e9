// Package pipeline orchestrates document processing: a supplier file
// goes in, canonical product records come out. Structured price lists
// are parsed directly; PDFs go through OCR and LLM field extraction.
package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/meridien-distribution/catalog-cli/internal/ingest"
	"github.com/meridien-distribution/catalog-cli/internal/merge"
	"github.com/meridien-distribution/catalog-cli/internal/model"
	"github.com/meridien-distribution/catalog-cli/internal/ocr"
	"github.com/meridien-distribution/catalog-cli/internal/store"
	"github.com/meridien-distribution/catalog-cli/pkg/llm"
)

// FieldExtractor abstracts LLM field extraction over document text.
// *llm.Extractor satisfies it.
type FieldExtractor interface {
	ExtractFields(ctx context.Context, text string) (*llm.Extraction, error)
}

// Pipeline turns supplier documents into product records.
type Pipeline struct {
	store     store.Store
	ocr       ocr.Extractor
	ocrBackup ocr.Extractor // used when local extraction finds no text layer
	extractor FieldExtractor
	policy    merge.Policy

	// Find-merge-upsert must not interleave: two documents carrying the
	// same default_code would otherwise both miss the lookup and create
	// duplicate records.
	mu sync.Mutex
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithOCRFallback sets a second extractor tried when the primary one
// returns text too sparse to have come from a real text layer. This is
// how scanned PDFs get routed to a vision-capable OCR provider.
func WithOCRFallback(ext ocr.Extractor) Option {
	return func(p *Pipeline) { p.ocrBackup = ext }
}

// New creates a Pipeline.
func New(st store.Store, ocrExt ocr.Extractor, extractor FieldExtractor, policy merge.Policy, opts ...Option) *Pipeline {
	p := &Pipeline{
		store:     st,
		ocr:       ocrExt,
		extractor: extractor,
		policy:    policy,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// FileResult reports one processed document.
type FileResult struct {
	Path       string   `json:"path"`
	ProductIDs []string `json:"product_ids"`
	Created    int      `json:"created"`
	Merged     int      `json:"merged"`
	Skipped    []int    `json:"skipped,omitempty"` // unusable price list rows
}

// FileError is a per-file failure inside a directory run. Partial
// failure is data, not a reason to abort the batch.
type FileError struct {
	Path string `json:"path"`
	Err  string `json:"error"`
}

// DirResult reports one directory run.
type DirResult struct {
	Results []FileResult `json:"results"`
	Failed  []FileError  `json:"failed,omitempty"`
}

// ProcessFile ingests one supplier document by extension. Supported:
// .pdf (OCR + LLM), .xlsx and .csv (structured parse).
func (p *Pipeline) ProcessFile(ctx context.Context, path string) (*FileResult, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf":
		return p.processPDF(ctx, path)
	case ".xlsx", ".csv":
		return p.processPriceList(ctx, path)
	default:
		return nil, eris.Errorf("pipeline: unsupported document type %q", filepath.Ext(path))
	}
}

func (p *Pipeline) processPDF(ctx context.Context, path string) (*FileResult, error) {
	text, err := p.ocr.ExtractText(ctx, path)
	if err != nil {
		return nil, err
	}

	kind := model.ExtractionText
	if ocr.IsLikelyScanned(text) {
		if p.ocrBackup == nil {
			return nil, eris.Errorf("pipeline: %s appears to be a scan with no text layer; configure a vision OCR provider", filepath.Base(path))
		}
		zap.L().Info("pipeline: sparse text layer, retrying with fallback OCR",
			zap.String("file", filepath.Base(path)),
		)
		text, err = p.ocrBackup.ExtractText(ctx, path)
		if err != nil {
			return nil, err
		}
		kind = model.ExtractionOCR
	}

	ex, err := p.extractor.ExtractFields(ctx, text)
	if err != nil {
		return nil, err
	}
	if ex.MultiProduct {
		zap.L().Warn("pipeline: document describes several products, only the dominant one was extracted",
			zap.String("file", filepath.Base(path)),
		)
	}

	result := &FileResult{Path: path}
	if err := p.upsertFields(ctx, result, filepath.Base(path), kind, ex.Fields, ex.Confidence); err != nil {
		return nil, err
	}

	zap.L().Info("pipeline: document processed",
		zap.String("file", filepath.Base(path)),
		zap.Int("pages", ocr.PageCount(text)),
		zap.Int("created", result.Created),
		zap.Int("merged", result.Merged),
	)
	return result, nil
}

func (p *Pipeline) processPriceList(ctx context.Context, path string) (*FileResult, error) {
	parsed, err := ingest.ParseFile(path)
	if err != nil {
		return nil, err
	}

	result := &FileResult{Path: path, Skipped: parsed.Skipped}
	for _, row := range parsed.Rows {
		if err := p.upsertFields(ctx, result, filepath.Base(path), model.ExtractionText, row.Fields, row.Confidence); err != nil {
			return nil, eris.Wrapf(err, "pipeline: row %d", row.Line)
		}
	}

	zap.L().Info("pipeline: price list processed",
		zap.String("file", filepath.Base(path)),
		zap.Int("rows", len(parsed.Rows)),
		zap.Int("skipped", len(parsed.Skipped)),
	)
	return result, nil
}

// upsertFields merges one extraction into the store, matching an
// existing record through the identity keys.
func (p *Pipeline) upsertFields(ctx context.Context, result *FileResult, originFile string, kind model.ExtractionKind, fields model.Fields, conf model.Confidence) error {
	if len(fields.PresentKeys()) == 0 {
		return eris.New("pipeline: extraction produced no fields")
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	existing, err := p.findExisting(ctx, &fields)
	if err != nil {
		return err
	}

	src := model.Source{
		SourceID:   "src_" + uuid.New().String()[:12],
		OriginFile: originFile,
		Kind:       kind,
		Confidence: meanConfidence(conf),
	}

	merged, err := merge.Merge(existing, fields, conf, src, p.policy, time.Now().UTC())
	if err != nil {
		return err
	}
	if err := p.store.UpsertProduct(ctx, merged); err != nil {
		return err
	}

	result.ProductIDs = append(result.ProductIDs, merged.ID)
	if existing == nil {
		result.Created++
	} else {
		result.Merged++
	}
	return nil
}

// findExisting looks the extraction up by each identity key it carries,
// in priority order. First hit wins.
func (p *Pipeline) findExisting(ctx context.Context, fields *model.Fields) (*model.ProductRecord, error) {
	for _, key := range model.KeyFields {
		a, _ := model.AccessorFor(key)
		ptr := *a.String(fields)
		if ptr == nil || strings.TrimSpace(*ptr) == "" {
			continue
		}
		rec, err := p.store.FindByKey(ctx, key, strings.TrimSpace(*ptr))
		if err != nil {
			return nil, err
		}
		if rec != nil {
			return rec, nil
		}
	}
	return nil, nil
}

func meanConfidence(conf model.Confidence) float64 {
	if len(conf) == 0 {
		return 0
	}
	var sum float64
	for _, c := range conf {
		sum += c
	}
	return sum / float64(len(conf))
}

// ProcessDir runs every supported document under a directory,
// recursively, in path order. A file that fails is recorded and the
// run moves on.
func (p *Pipeline) ProcessDir(ctx context.Context, dir string) (*DirResult, error) {
	var paths []string
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		switch strings.ToLower(filepath.Ext(path)) {
		case ".pdf", ".xlsx", ".csv":
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, eris.Wrapf(err, "pipeline: read %s", dir)
	}
	sort.Strings(paths)

	result := &DirResult{}
	for _, path := range paths {
		if ctx.Err() != nil {
			return result, eris.Wrap(ctx.Err(), "pipeline: run cancelled")
		}
		fr, err := p.ProcessFile(ctx, path)
		if err != nil {
			zap.L().Warn("pipeline: file failed",
				zap.String("file", filepath.Base(path)),
				zap.Error(err),
			)
			result.Failed = append(result.Failed, FileError{Path: path, Err: err.Error()})
			continue
		}
		result.Results = append(result.Results, *fr)
	}

	zap.L().Info("pipeline: directory processed",
		zap.String("dir", dir),
		zap.Int("ok", len(result.Results)),
		zap.Int("failed", len(result.Failed)),
	)
	return result, nil
}

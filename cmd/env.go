package main

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/meridien-distribution/catalog-cli/internal/merge"
	"github.com/meridien-distribution/catalog-cli/internal/ocr"
	"github.com/meridien-distribution/catalog-cli/internal/pipeline"
	"github.com/meridien-distribution/catalog-cli/internal/store"
	"github.com/meridien-distribution/catalog-cli/pkg/llm"
)

// openStore creates and migrates the configured store backend.
func openStore(ctx context.Context) (store.Store, error) {
	var (
		st  store.Store
		err error
	)
	switch cfg.Store.Driver {
	case "sqlite", "":
		st, err = store.NewSQLite(cfg.Store.DatabaseURL)
	case "postgres":
		st, err = store.NewPostgres(ctx, cfg.Store.DatabaseURL, nil)
	default:
		return nil, eris.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close()
		return nil, err
	}
	return st, nil
}

// mergePolicy loads the configured merge policy, or the default one
// when no policy file is set.
func mergePolicy() (merge.Policy, error) {
	if cfg.Merge.PolicyFile != "" {
		return merge.LoadPolicy(cfg.Merge.PolicyFile)
	}
	p := merge.DefaultPolicy()
	if cfg.Merge.DefaultConfidence > 0 {
		p.DefaultConfidence = cfg.Merge.DefaultConfidence
	}
	return p, nil
}

// newPipeline wires OCR, LLM extraction, and the store into a document
// pipeline. When the primary OCR provider is local and a Mistral key is
// configured, Mistral serves as the fallback for scanned documents.
func newPipeline(st store.Store) (*pipeline.Pipeline, error) {
	ocrExt, err := ocr.NewExtractor(cfg.OCR, cfg.OCR.MistralKey)
	if err != nil {
		return nil, err
	}

	extractor := llm.NewExtractor(llm.NewClient(cfg.Anthropic.Key), llm.ExtractorConfig{
		Model:             cfg.Anthropic.Model,
		MaxTokens:         int64(cfg.Anthropic.MaxTokens),
		ChunkChars:        cfg.Anthropic.ChunkChars,
		OverlapChars:      cfg.Anthropic.OverlapChars,
		RequestsPerMinute: cfg.Anthropic.RequestsPerMinute,
	})

	policy, err := mergePolicy()
	if err != nil {
		return nil, err
	}

	var opts []pipeline.Option
	if cfg.OCR.Provider != "mistral" && cfg.OCR.MistralKey != "" {
		opts = append(opts, pipeline.WithOCRFallback(
			ocr.NewMistralOCR(cfg.OCR.MistralKey, cfg.OCR.MistralModel),
		))
	}

	return pipeline.New(st, ocrExt, extractor, policy, opts...), nil
}

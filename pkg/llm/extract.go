package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/meridien-distribution/catalog-cli/internal/model"
)

const (
	// defaultChunkChars keeps each request comfortably inside the
	// context window for multi-page supplier catalogs.
	defaultChunkChars = 12000
	// defaultOverlapChars repeats the tail of one chunk at the head of
	// the next so products split across a chunk boundary are still seen
	// whole at least once.
	defaultOverlapChars = 800

	defaultMaxTokens = 4096
)

// ExtractorConfig tunes the extraction client.
type ExtractorConfig struct {
	Model        string
	MaxTokens    int64
	ChunkChars   int
	OverlapChars int
	// RequestsPerMinute throttles calls to the model API. Zero disables
	// throttling.
	RequestsPerMinute int
}

// Extractor turns raw document text into typed product fields.
type Extractor struct {
	client    Client
	model     string
	maxTokens int64
	chunk     int
	overlap   int
	limiter   *rate.Limiter
}

// NewExtractor creates an extractor over the given client.
func NewExtractor(client Client, cfg ExtractorConfig) *Extractor {
	if cfg.Model == "" {
		cfg.Model = "claude-sonnet-4-5-20250929"
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = defaultMaxTokens
	}
	if cfg.ChunkChars <= 0 {
		cfg.ChunkChars = defaultChunkChars
	}
	if cfg.OverlapChars < 0 || cfg.OverlapChars >= cfg.ChunkChars {
		cfg.OverlapChars = defaultOverlapChars
	}

	var limiter *rate.Limiter
	if cfg.RequestsPerMinute > 0 {
		limiter = rate.NewLimiter(rate.Limit(float64(cfg.RequestsPerMinute)/60.0), 1)
	}

	return &Extractor{
		client:    client,
		model:     cfg.Model,
		maxTokens: cfg.MaxTokens,
		chunk:     cfg.ChunkChars,
		overlap:   cfg.OverlapChars,
		limiter:   limiter,
	}
}

// Extraction is the result of structuring one document.
type Extraction struct {
	Fields     model.Fields
	Confidence model.Confidence
	// MultiProduct reports that the document appears to describe more
	// than one product, so the extracted fields cover only the dominant
	// one.
	MultiProduct bool
	Usage        TokenUsage
}

// ExtractFields runs the document text through the model chunk by
// chunk and merges the per-chunk results, keeping the highest-
// confidence value for each field.
func (e *Extractor) ExtractFields(ctx context.Context, text string) (*Extraction, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, eris.New("llm: empty document text")
	}

	chunks := chunkText(text, e.chunk, e.overlap)
	result := &Extraction{Confidence: make(model.Confidence)}

	for i, chunk := range chunks {
		if e.limiter != nil {
			if err := e.limiter.Wait(ctx); err != nil {
				return nil, eris.Wrap(err, "llm: rate limit wait")
			}
		}

		resp, err := e.client.CreateMessage(ctx, MessageRequest{
			Model:     e.model,
			MaxTokens: e.maxTokens,
			System:    extractionSystemPrompt(),
			Messages:  []Message{{Role: "user", Content: chunk}},
		})
		if err != nil {
			return nil, eris.Wrapf(err, "llm: extract chunk %d/%d", i+1, len(chunks))
		}
		result.Usage.InputTokens += resp.Usage.InputTokens
		result.Usage.OutputTokens += resp.Usage.OutputTokens

		parsed, err := ParseExtraction(resp.Text)
		if err != nil {
			zap.L().Warn("llm: unparseable chunk response",
				zap.Int("chunk", i+1),
				zap.Error(err),
			)
			continue
		}
		mergeChunk(result, parsed)
	}

	result.Usage.LogCost(e.model, "extract")
	return result, nil
}

// ExtractFromImage structures a scanned page via a vision request.
func (e *Extractor) ExtractFromImage(ctx context.Context, imageB64, mediaType string) (*Extraction, error) {
	if e.limiter != nil {
		if err := e.limiter.Wait(ctx); err != nil {
			return nil, eris.Wrap(err, "llm: rate limit wait")
		}
	}

	resp, err := e.client.CreateMessage(ctx, MessageRequest{
		Model:     e.model,
		MaxTokens: e.maxTokens,
		System:    extractionSystemPrompt(),
		Messages: []Message{{
			Role:      "user",
			Content:   "Extract the product data from this page.",
			ImageB64:  imageB64,
			MediaType: mediaType,
		}},
	})
	if err != nil {
		return nil, eris.Wrap(err, "llm: vision extract")
	}

	parsed, err := ParseExtraction(resp.Text)
	if err != nil {
		return nil, err
	}
	resp.Usage.LogCost(e.model, "vision_extract")
	parsed.Usage = resp.Usage
	return parsed, nil
}

// extractionSystemPrompt enumerates the field schema so the model
// answers in exactly the shape ParseExtraction expects.
func extractionSystemPrompt() string {
	var sb strings.Builder
	sb.WriteString("You extract product data from supplier documents for a distribution catalog.\n")
	sb.WriteString("Respond with a single JSON object. For each field you can determine, emit\n")
	sb.WriteString(`an entry of the form "field_key": {"value": <value>, "confidence": <0.0-1.0>}.` + "\n")
	sb.WriteString("Omit fields that are absent from the document. Never invent values.\n")
	sb.WriteString(`If the text covers more than one distinct product, extract the dominant one` + "\n")
	sb.WriteString(`and add "multi_product": {"value": true, "confidence": <0.0-1.0>}.` + "\n\n")
	sb.WriteString("Fields:\n")
	for _, a := range model.Schema() {
		kind := "string"
		if a.Kind == model.KindFloat {
			kind = "number"
		}
		fmt.Fprintf(&sb, "- %s (%s)\n", a.Key, kind)
	}
	return sb.String()
}

// ParseExtraction decodes a model response into typed fields. Literal
// "null"/"none"/"n/a" strings are treated as absent; numeric fields
// accept numbers or numeric strings. The reserved "multi_product" key
// sets the MultiProduct flag instead of a field.
func ParseExtraction(text string) (*Extraction, error) {
	cleaned := cleanJSON(text)

	var raw map[string]struct {
		Value      any     `json:"value"`
		Confidence float64 `json:"confidence"`
	}
	if err := json.Unmarshal([]byte(cleaned), &raw); err != nil {
		return nil, eris.Wrap(err, "llm: parse extraction")
	}

	result := &Extraction{Confidence: make(model.Confidence)}
	for key, entry := range raw {
		if key == "multi_product" {
			if flag, ok := entry.Value.(bool); ok {
				result.MultiProduct = flag
			}
			continue
		}

		a, ok := model.AccessorFor(model.FieldKey(key))
		if !ok {
			zap.L().Debug("llm: unknown field in response", zap.String("field", key))
			continue
		}

		switch a.Kind {
		case model.KindString:
			s, ok := coerceString(entry.Value)
			if !ok {
				continue
			}
			*a.String(&result.Fields) = &s
		case model.KindFloat:
			f, ok := coerceFloat(entry.Value)
			if !ok {
				continue
			}
			*a.Float(&result.Fields) = &f
		}
		result.Confidence[a.Key] = clamp01(entry.Confidence)
	}
	return result, nil
}

func coerceString(v any) (string, bool) {
	s, ok := v.(string)
	if !ok {
		return "", false
	}
	s = strings.TrimSpace(s)
	switch strings.ToLower(s) {
	case "", "null", "none", "n/a":
		return "", false
	}
	return s, true
}

func coerceFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case string:
		s := strings.TrimSpace(strings.ReplaceAll(n, ",", "."))
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, false
		}
		return f, true
	}
	return 0, false
}

func clamp01(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}

// mergeChunk keeps the highest-confidence value per field across
// chunk results.
func mergeChunk(dst, src *Extraction) {
	for _, a := range model.Schema() {
		if !a.Present(&src.Fields) {
			continue
		}
		if a.Present(&dst.Fields) && src.Confidence[a.Key] <= dst.Confidence[a.Key] {
			continue
		}
		a.Copy(&dst.Fields, &src.Fields)
		dst.Confidence[a.Key] = src.Confidence[a.Key]
	}
	dst.MultiProduct = dst.MultiProduct || src.MultiProduct
}

// chunkText splits text into chunks of at most size characters with
// the given overlap, preferring to break at a paragraph boundary and
// falling back to a sentence boundary.
func chunkText(text string, size, overlap int) []string {
	if len(text) <= size {
		return []string{text}
	}

	var chunks []string
	start := 0
	for start < len(text) {
		end := start + size
		if end >= len(text) {
			chunks = append(chunks, text[start:])
			break
		}

		cut := end
		window := text[start:end]
		if idx := strings.LastIndex(window, "\n\n"); idx > size/2 {
			cut = start + idx + 2
		} else if idx := strings.LastIndex(window, ". "); idx > size/2 {
			cut = start + idx + 2
		}

		chunks = append(chunks, text[start:cut])
		next := cut - overlap
		if next <= start {
			next = cut
		}
		start = next
	}
	return chunks
}

// cleanJSON strips markdown fences and extracts the JSON object from a
// model response.
func cleanJSON(text string) string {
	text = strings.TrimSpace(text)

	if strings.HasPrefix(text, "```json") {
		text = strings.TrimPrefix(text, "```json")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	} else if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	}

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start >= 0 && end > start {
		text = text[start : end+1]
	}

	return strings.TrimSpace(text)
}

package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridien-distribution/catalog-cli/internal/merge"
	"github.com/meridien-distribution/catalog-cli/internal/model"
	"github.com/meridien-distribution/catalog-cli/internal/store"
	"github.com/meridien-distribution/catalog-cli/pkg/llm"
)

// memStore is an in-memory store.Store for pipeline tests.
type memStore struct {
	products map[string]*model.ProductRecord
}

func newMemStore() *memStore {
	return &memStore{products: make(map[string]*model.ProductRecord)}
}

func (m *memStore) UpsertProduct(_ context.Context, p *model.ProductRecord) error {
	cp := *p
	m.products[p.ID] = &cp
	return nil
}

func (m *memStore) GetProduct(_ context.Context, id string) (*model.ProductRecord, error) {
	p, ok := m.products[id]
	if !ok {
		return nil, eris.Errorf("no product %s", id)
	}
	return p, nil
}

func (m *memStore) FindByKey(_ context.Context, key model.FieldKey, value string) (*model.ProductRecord, error) {
	a, _ := model.AccessorFor(key)
	for _, p := range m.products {
		if ptr := *a.String(&p.Fields); ptr != nil && strings.EqualFold(*ptr, value) {
			return p, nil
		}
	}
	return nil, nil
}

func (m *memStore) ListProducts(_ context.Context, _ store.ProductFilter) ([]model.ProductRecord, error) {
	var out []model.ProductRecord
	for _, p := range m.products {
		out = append(out, *p)
	}
	return out, nil
}

func (m *memStore) UpdateStatus(_ context.Context, id string, status model.Status) error {
	p, ok := m.products[id]
	if !ok {
		return eris.Errorf("no product %s", id)
	}
	p.Status = status
	return nil
}

func (m *memStore) CountByStatus(_ context.Context) (map[model.Status]int, error) {
	counts := make(map[model.Status]int)
	for _, p := range m.products {
		counts[p.Status]++
	}
	return counts, nil
}

func (m *memStore) ReplaceDescriptors(_ context.Context, _ []model.ERPDescriptor) error { return nil }
func (m *memStore) ListDescriptors(_ context.Context) ([]model.ERPDescriptor, error)   { return nil, nil }
func (m *memStore) LogOrphanImages(_ context.Context, _ []model.ImageRef) error        { return nil }
func (m *memStore) ListOrphanImages(_ context.Context, _ int) ([]model.ImageRef, error) {
	return nil, nil
}
func (m *memStore) Migrate(_ context.Context) error { return nil }
func (m *memStore) Close() error                    { return nil }

// fakeOCR returns canned text keyed by filename.
type fakeOCR struct {
	text  map[string]string
	calls int
}

func (f *fakeOCR) ExtractText(_ context.Context, path string) (string, error) {
	f.calls++
	text, ok := f.text[filepath.Base(path)]
	if !ok {
		return "", eris.Errorf("no text for %s", path)
	}
	return text, nil
}

// fakeLLM returns one canned extraction for any input.
type fakeLLM struct {
	extraction *llm.Extraction
	err        error
	lastText   string
}

func (f *fakeLLM) ExtractFields(_ context.Context, text string) (*llm.Extraction, error) {
	f.lastText = text
	if f.err != nil {
		return nil, f.err
	}
	return f.extraction, nil
}

func strPtr(s string) *string { return &s }

func denseText(code string) string {
	return "Fiche produit " + code + " " + strings.Repeat("caractéristiques techniques détaillées ", 20)
}

func extractionFor(code, name string) *llm.Extraction {
	return &llm.Extraction{
		Fields: model.Fields{
			DefaultCode: strPtr(code),
			Name:        strPtr(name),
		},
		Confidence: model.Confidence{
			model.FieldDefaultCode: 0.95,
			model.FieldName:        0.85,
		},
	}
}

func TestProcessFile_PDFCreatesProduct(t *testing.T) {
	t.Parallel()

	st := newMemStore()
	ocrExt := &fakeOCR{text: map[string]string{"catalog.pdf": denseText("PROD001")}}
	ext := &fakeLLM{extraction: extractionFor("PROD001", "Câble HDMI 2m")}
	p := New(st, ocrExt, ext, merge.DefaultPolicy())

	result, err := p.ProcessFile(context.Background(), "/data/documents/catalog.pdf")
	require.NoError(t, err)
	assert.Equal(t, 1, result.Created)
	assert.Equal(t, 0, result.Merged)
	require.Len(t, result.ProductIDs, 1)

	rec, err := st.GetProduct(context.Background(), result.ProductIDs[0])
	require.NoError(t, err)
	assert.Equal(t, "PROD001", *rec.Fields.DefaultCode)
	require.Len(t, rec.Sources, 1)
	assert.Equal(t, "catalog.pdf", rec.Sources[0].OriginFile)
	assert.Equal(t, model.ExtractionText, rec.Sources[0].Kind)
	assert.InDelta(t, 0.9, rec.Sources[0].Confidence, 0.001)
}

func TestProcessFile_SecondPassMergesByCode(t *testing.T) {
	t.Parallel()

	st := newMemStore()
	ocrExt := &fakeOCR{text: map[string]string{
		"a.pdf": denseText("PROD001"),
		"b.pdf": denseText("PROD001"),
	}}
	ext := &fakeLLM{extraction: extractionFor("PROD001", "Câble HDMI 2m")}
	p := New(st, ocrExt, ext, merge.DefaultPolicy())

	_, err := p.ProcessFile(context.Background(), "a.pdf")
	require.NoError(t, err)
	result, err := p.ProcessFile(context.Background(), "b.pdf")
	require.NoError(t, err)

	assert.Equal(t, 0, result.Created)
	assert.Equal(t, 1, result.Merged)
	assert.Len(t, st.products, 1)

	rec, err := st.GetProduct(context.Background(), result.ProductIDs[0])
	require.NoError(t, err)
	assert.Len(t, rec.Sources, 2)
	assert.Equal(t, model.StatusRaw, rec.Status) // same values, nothing changed
}

func TestProcessFile_ScannedRoutesToFallback(t *testing.T) {
	t.Parallel()

	st := newMemStore()
	primary := &fakeOCR{text: map[string]string{"scan.pdf": "p1\fp2"}} // sparse
	fallback := &fakeOCR{text: map[string]string{"scan.pdf": denseText("PROD002")}}
	ext := &fakeLLM{extraction: extractionFor("PROD002", "Souris sans fil")}
	p := New(st, primary, ext, merge.DefaultPolicy(), WithOCRFallback(fallback))

	result, err := p.ProcessFile(context.Background(), "scan.pdf")
	require.NoError(t, err)
	assert.Equal(t, 1, fallback.calls)
	assert.Equal(t, 1, result.Created)

	rec, err := st.GetProduct(context.Background(), result.ProductIDs[0])
	require.NoError(t, err)
	assert.Equal(t, model.ExtractionOCR, rec.Sources[0].Kind)
}

func TestProcessFile_ScannedWithoutFallbackFails(t *testing.T) {
	t.Parallel()

	st := newMemStore()
	primary := &fakeOCR{text: map[string]string{"scan.pdf": "p1\fp2"}}
	p := New(st, primary, &fakeLLM{}, merge.DefaultPolicy())

	_, err := p.ProcessFile(context.Background(), "scan.pdf")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "scan")
}

func TestProcessFile_PriceList(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "tarif.csv")
	content := "Référence;Désignation;Prix\nPROD001;Câble HDMI 2m;19,90\nPROD002;Souris sans fil;29,90\n;;\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	st := newMemStore()
	p := New(st, &fakeOCR{}, &fakeLLM{}, merge.DefaultPolicy())

	result, err := p.ProcessFile(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Created)
	assert.Equal(t, []int{4}, result.Skipped)
	assert.Len(t, st.products, 2)

	rec, err := st.FindByKey(context.Background(), model.FieldDefaultCode, "PROD001")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, 19.90, *rec.Fields.ListPrice)
	assert.Equal(t, 1.0, rec.Confidence[model.FieldListPrice])
}

func TestProcessFile_PriceListThenPDFMerges(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "tarif.csv")
	content := "Référence;Prix\nPROD001;19,90\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	st := newMemStore()
	ocrExt := &fakeOCR{text: map[string]string{"fiche.pdf": denseText("PROD001")}}
	ext := &fakeLLM{extraction: extractionFor("PROD001", "Câble HDMI 2m")}
	p := New(st, ocrExt, ext, merge.DefaultPolicy())

	_, err := p.ProcessFile(context.Background(), path)
	require.NoError(t, err)
	result, err := p.ProcessFile(context.Background(), "fiche.pdf")
	require.NoError(t, err)
	assert.Equal(t, 1, result.Merged)

	rec, err := st.GetProduct(context.Background(), result.ProductIDs[0])
	require.NoError(t, err)
	// Price list code has confidence 1.0, the LLM's 0.95 must not win.
	assert.Equal(t, 1.0, rec.Confidence[model.FieldDefaultCode])
	// Name was absent, the LLM fills it in and the record advances.
	assert.Equal(t, "Câble HDMI 2m", *rec.Fields.Name)
	assert.Equal(t, model.StatusEnriched, rec.Status)
}

func TestProcessFile_Unsupported(t *testing.T) {
	t.Parallel()

	p := New(newMemStore(), &fakeOCR{}, &fakeLLM{}, merge.DefaultPolicy())
	_, err := p.ProcessFile(context.Background(), "notes.txt")
	assert.Error(t, err)
}

func TestProcessDir_PartialFailure(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "tarif.csv"),
		[]byte("Référence;Prix\nPROD001;19,90\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.pdf"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644))

	st := newMemStore()
	p := New(st, &fakeOCR{}, &fakeLLM{}, merge.DefaultPolicy()) // no text for broken.pdf

	result, err := p.ProcessDir(context.Background(), dir)
	require.NoError(t, err)

	require.Len(t, result.Results, 1)
	assert.Equal(t, 1, result.Results[0].Created)
	require.Len(t, result.Failed, 1)
	assert.Contains(t, result.Failed[0].Path, "broken.pdf")
	assert.Len(t, st.products, 1) // notes.txt ignored entirely
}

package merge

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridien-distribution/catalog-cli/internal/model"
)

var mergeNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func strPtr(s string) *string { return &s }

func source(file string) model.Source {
	return model.Source{
		SourceID:   "src_" + file,
		OriginFile: file,
		Kind:       model.ExtractionText,
		Confidence: 0.9,
	}
}

func TestMerge_CreatesRecordWhenExistingNil(t *testing.T) {
	t.Parallel()

	rec, err := Merge(nil,
		model.Fields{Name: strPtr("Câble HDMI 2m"), DefaultCode: strPtr("PROD001")},
		model.Confidence{model.FieldName: 0.9, model.FieldDefaultCode: 0.95},
		source("catalog.pdf"), DefaultPolicy(), mergeNow)
	require.NoError(t, err)

	assert.NotEmpty(t, rec.ID)
	assert.Equal(t, model.StatusRaw, rec.Status)
	assert.Equal(t, "PROD001", *rec.Fields.DefaultCode)
	assert.Equal(t, 0.9, rec.Confidence[model.FieldName])
	require.Len(t, rec.Sources, 1)
	assert.Equal(t, mergeNow, rec.Sources[0].Timestamp)
	assert.ElementsMatch(t,
		[]model.FieldKey{model.FieldDefaultCode, model.FieldName},
		rec.Sources[0].Fields)
}

func TestMerge_HigherConfidenceReplaces(t *testing.T) {
	t.Parallel()

	existing := &model.ProductRecord{
		ID:         "p1",
		Fields:     model.Fields{Name: strPtr("cable hdmi")},
		Confidence: model.Confidence{model.FieldName: 0.6},
		Status:     model.StatusRaw,
	}

	rec, err := Merge(existing,
		model.Fields{Name: strPtr("Câble HDMI 2m haute vitesse")},
		model.Confidence{model.FieldName: 0.9},
		source("datasheet.pdf"), DefaultPolicy(), mergeNow)
	require.NoError(t, err)

	assert.Equal(t, "Câble HDMI 2m haute vitesse", *rec.Fields.Name)
	assert.Equal(t, 0.9, rec.Confidence[model.FieldName])
	assert.Equal(t, model.StatusEnriched, rec.Status)
	// Input record untouched.
	assert.Equal(t, "cable hdmi", *existing.Fields.Name)
	assert.Equal(t, 0.6, existing.Confidence[model.FieldName])
}

func TestMerge_LowerConfidenceKeepsIncumbent(t *testing.T) {
	t.Parallel()

	existing := &model.ProductRecord{
		ID:         "p1",
		Fields:     model.Fields{Name: strPtr("Câble HDMI 2m")},
		Confidence: model.Confidence{model.FieldName: 0.9},
	}

	rec, err := Merge(existing,
		model.Fields{Name: strPtr("cable")},
		model.Confidence{model.FieldName: 0.4},
		source("scan.pdf"), DefaultPolicy(), mergeNow)
	require.NoError(t, err)

	assert.Equal(t, "Câble HDMI 2m", *rec.Fields.Name)
	assert.Equal(t, 0.9, rec.Confidence[model.FieldName])
	require.Len(t, rec.Sources, 1) // provenance still appended
}

func TestMerge_TieKeepsIncumbent(t *testing.T) {
	t.Parallel()

	existing := &model.ProductRecord{
		ID:         "p1",
		Fields:     model.Fields{Name: strPtr("first value")},
		Confidence: model.Confidence{model.FieldName: 0.8},
	}

	rec, err := Merge(existing,
		model.Fields{Name: strPtr("second value")},
		model.Confidence{model.FieldName: 0.8},
		source("later.pdf"), DefaultPolicy(), mergeNow)
	require.NoError(t, err)

	assert.Equal(t, "first value", *rec.Fields.Name)
}

func TestMerge_IdempotentValuesStillGrowProvenance(t *testing.T) {
	t.Parallel()

	fields := model.Fields{Name: strPtr("Câble HDMI 2m")}
	conf := model.Confidence{model.FieldName: 0.9}

	rec, err := Merge(nil, fields, conf, source("catalog.pdf"), DefaultPolicy(), mergeNow)
	require.NoError(t, err)
	again, err := Merge(rec, fields, conf, source("catalog.pdf"), DefaultPolicy(), mergeNow.Add(time.Hour))
	require.NoError(t, err)

	assert.Equal(t, *rec.Fields.Name, *again.Fields.Name)
	assert.Equal(t, rec.Confidence, again.Confidence)
	assert.Len(t, again.Sources, 2)
}

func TestMerge_EmptyStringIsAbsent(t *testing.T) {
	t.Parallel()

	existing := &model.ProductRecord{
		ID:         "p1",
		Fields:     model.Fields{Name: strPtr("Câble HDMI 2m")},
		Confidence: model.Confidence{model.FieldName: 0.3},
	}

	rec, err := Merge(existing,
		model.Fields{Name: strPtr("  ")},
		model.Confidence{model.FieldName: 0.99},
		source("noise.pdf"), DefaultPolicy(), mergeNow)
	require.NoError(t, err)

	assert.Equal(t, "Câble HDMI 2m", *rec.Fields.Name)
	assert.Equal(t, 0.3, rec.Confidence[model.FieldName])
}

func TestMerge_MissingConfidenceUsesPolicy(t *testing.T) {
	t.Parallel()

	policy := Policy{
		DefaultConfidence: 0.5,
		FieldOverrides:    map[model.FieldKey]float64{model.FieldBarcode: 0.95},
	}

	rec, err := Merge(nil,
		model.Fields{Name: strPtr("produit"), Barcode: strPtr("3700123456789")},
		nil, source("catalog.pdf"), policy, mergeNow)
	require.NoError(t, err)

	assert.Equal(t, 0.5, rec.Confidence[model.FieldName])
	assert.Equal(t, 0.95, rec.Confidence[model.FieldBarcode])
}

func TestMerge_InvalidConfidenceFailsFast(t *testing.T) {
	t.Parallel()

	existing := &model.ProductRecord{ID: "p1", Confidence: model.Confidence{}}

	_, err := Merge(existing,
		model.Fields{Name: strPtr("x")},
		model.Confidence{model.FieldName: 1.3},
		source("bad.pdf"), DefaultPolicy(), mergeNow)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidConfidence)
	assert.Empty(t, existing.Sources)
}

func TestMerge_NumericFields(t *testing.T) {
	t.Parallel()

	w := 1.25
	rec, err := Merge(nil,
		model.Fields{WeightKG: &w},
		model.Confidence{model.FieldWeightKG: 0.7},
		source("specs.pdf"), DefaultPolicy(), mergeNow)
	require.NoError(t, err)

	require.NotNil(t, rec.Fields.WeightKG)
	assert.Equal(t, 1.25, *rec.Fields.WeightKG)
}

func TestPolicy_Validate(t *testing.T) {
	t.Parallel()

	bad := Policy{DefaultConfidence: 1.4}
	assert.Error(t, bad.validate())

	unknown := Policy{
		DefaultConfidence: 0.5,
		FieldOverrides:    map[model.FieldKey]float64{"no_such_field": 0.9},
	}
	assert.Error(t, unknown.validate())

	ok := Policy{
		DefaultConfidence: 0.5,
		FieldOverrides:    map[model.FieldKey]float64{model.FieldEAN: 0.9},
	}
	assert.NoError(t, ok.validate())
}

package images

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridien-distribution/catalog-cli/internal/model"
)

func strPtr(s string) *string { return &s }

func img(id, filename, ref string, seq int) model.ImageRef {
	return model.ImageRef{
		ID:            id,
		Filename:      filename,
		Reference:     ref,
		RefConfidence: 1.0,
		Seq:           seq,
	}
}

func TestBuildIndex_GroupsByReference(t *testing.T) {
	t.Parallel()

	ix, unresolved := BuildIndex([]model.ImageRef{
		img("1", "PROD001.jpg", "PROD001", 0),
		img("2", "PROD002.jpg", "PROD002", 1),
		img("3", "PROD001_side.jpg", "PROD001", 2),
		{ID: "4", Filename: "logo.jpg", Seq: 3},
	})

	assert.Equal(t, 2, ix.Len())
	require.Len(t, unresolved, 1)
	assert.Equal(t, "logo.jpg", unresolved[0].Filename)

	group, ok := ix.Claim("PROD001")
	require.True(t, ok)
	require.Len(t, group, 2)
	assert.Equal(t, "PROD001.jpg", group[0].Filename)
	assert.Equal(t, "PROD001_side.jpg", group[1].Filename)
}

func TestBuildIndex_OrderFollowsSeqNotSliceOrder(t *testing.T) {
	t.Parallel()

	// Completion order of parallel workers scrambled the slice; Seq
	// must restore discovery order within the group.
	ix, _ := BuildIndex([]model.ImageRef{
		img("b", "PROD001_back.jpg", "PROD001", 2),
		img("a", "PROD001.jpg", "PROD001", 0),
		img("s", "PROD001_side.jpg", "PROD001", 1),
	})

	group, ok := ix.Claim("PROD001")
	require.True(t, ok)
	require.Len(t, group, 3)
	assert.Equal(t, "PROD001.jpg", group[0].Filename)
	assert.Equal(t, "PROD001_side.jpg", group[1].Filename)
	assert.Equal(t, "PROD001_back.jpg", group[2].Filename)
}

func TestIndex_ClaimOnce(t *testing.T) {
	t.Parallel()

	ix, _ := BuildIndex([]model.ImageRef{img("1", "PROD001.jpg", "PROD001", 0)})

	_, ok := ix.Claim("PROD001")
	require.True(t, ok)
	_, ok = ix.Claim("PROD001")
	assert.False(t, ok)
	_, ok = ix.Claim("UNKNOWN")
	assert.False(t, ok)
}

func TestAssociate_AttachesGroupAndFlagsMain(t *testing.T) {
	t.Parallel()

	ix, _ := BuildIndex([]model.ImageRef{
		img("1", "PROD001.jpg", "PROD001", 0),
		img("2", "PROD001_side.jpg", "PROD001", 1),
		img("3", "PROD001_back.jpg", "PROD001", 2),
	})
	products := []model.ProductRecord{{
		ID:     "p1",
		Fields: model.Fields{DefaultCode: strPtr("PROD001")},
		Status: model.StatusRaw,
	}}

	result := Associate(ix, products)

	require.Len(t, result.Products, 1)
	p := result.Products[0]
	require.Len(t, p.Images, 3)
	assert.True(t, p.Images[0].IsMain)
	assert.Equal(t, "PROD001.jpg", p.Images[0].Filename)
	assert.False(t, p.Images[1].IsMain)
	assert.False(t, p.Images[2].IsMain)
	assert.Equal(t, model.StatusEnriched, p.Status)
	assert.Equal(t, 1, result.Matched)
	assert.Empty(t, result.Orphans)
}

func TestAssociate_ReplacesExistingImages(t *testing.T) {
	t.Parallel()

	ix, _ := BuildIndex([]model.ImageRef{
		img("n1", "PROD001.jpg", "PROD001", 0),
		img("n2", "PROD001_side.jpg", "PROD001", 1),
	})
	// The record already carries a main image from a previous run.
	products := []model.ProductRecord{{
		ID:     "p1",
		Fields: model.Fields{DefaultCode: strPtr("PROD001")},
		Images: []model.ImageRef{
			{ID: "old", Filename: "PROD001_old.jpg", Reference: "PROD001", IsMain: true},
		},
		Status: model.StatusEnriched,
	}}

	result := Associate(ix, products)

	p := result.Products[0]
	require.Len(t, p.Images, 2)
	assert.Equal(t, "PROD001.jpg", p.Images[0].Filename)

	mains := 0
	for _, im := range p.Images {
		if im.IsMain {
			mains++
		}
	}
	assert.Equal(t, 1, mains)
}

func TestAssociate_KeyPriorityOrder(t *testing.T) {
	t.Parallel()

	ix, _ := BuildIndex([]model.ImageRef{
		img("1", "3700123456789.jpg", "3700123456789", 0),
	})
	// No default_code; the barcode should claim the group.
	products := []model.ProductRecord{{
		ID: "p1",
		Fields: model.Fields{
			Barcode: strPtr("3700123456789"),
			EAN:     strPtr("3700123456789"),
		},
	}}

	result := Associate(ix, products)
	require.Len(t, result.Products[0].Images, 1)
	assert.Empty(t, result.Orphans)
}

func TestAssociate_NoMatchLeavesProductUntouched(t *testing.T) {
	t.Parallel()

	ix, _ := BuildIndex([]model.ImageRef{
		img("1", "OTHER99.jpg", "OTHER99", 0),
	})
	products := []model.ProductRecord{{
		ID:     "p1",
		Fields: model.Fields{DefaultCode: strPtr("PROD001")},
		Status: model.StatusRaw,
	}}

	result := Associate(ix, products)

	p := result.Products[0]
	assert.Empty(t, p.Images)
	assert.Equal(t, model.StatusRaw, p.Status)
	require.Len(t, result.Orphans, 1)
	assert.Equal(t, "OTHER99.jpg", result.Orphans[0].Filename)
}

func TestAssociate_AtMostOneConsumer(t *testing.T) {
	t.Parallel()

	ix, _ := BuildIndex([]model.ImageRef{
		img("1", "PROD001.jpg", "PROD001", 0),
	})
	products := []model.ProductRecord{
		{ID: "first", Fields: model.Fields{DefaultCode: strPtr("PROD001")}},
		{ID: "second", Fields: model.Fields{DefaultCode: strPtr("PROD001")}},
	}

	result := Associate(ix, products)

	require.Len(t, result.Products[0].Images, 1)
	assert.Empty(t, result.Products[1].Images)
	assert.Equal(t, 1, result.Matched)
}

func TestAssociate_Deterministic(t *testing.T) {
	t.Parallel()

	batch := []model.ImageRef{
		img("1", "PROD001.jpg", "PROD001", 0),
		img("2", "PROD002.jpg", "PROD002", 1),
		img("3", "PROD001_side.jpg", "PROD001", 2),
	}
	products := []model.ProductRecord{
		{ID: "a", Fields: model.Fields{DefaultCode: strPtr("PROD001")}},
		{ID: "b", Fields: model.Fields{DefaultCode: strPtr("PROD002")}},
	}

	ix1, _ := BuildIndex(batch)
	ix2, _ := BuildIndex(batch)
	r1 := Associate(ix1, products)
	r2 := Associate(ix2, products)

	assert.Equal(t, r1.Products, r2.Products)
	assert.Equal(t, r1.Orphans, r2.Orphans)
}

type fakeResizer struct{}

func (fakeResizer) Resize(_ context.Context, _, ref string) (map[string]string, error) {
	return map[string]string{"size_512": "images/512/" + ref + ".jpg"}, nil
}

func TestProcessBatch_TagsSequence(t *testing.T) {
	t.Parallel()

	paths := []string{
		"/in/PROD001.jpg",
		"/in/photo.jpg", // no digits → unresolvable
		"/in/PROD001_side.jpg",
	}

	result, err := ProcessBatch(context.Background(), paths, fakeResizer{}, 2)
	require.NoError(t, err)

	require.Len(t, result.Images, 2)
	assert.Equal(t, "PROD001.jpg", result.Images[0].Filename)
	assert.Equal(t, 0, result.Images[0].Seq)
	assert.Equal(t, 2, result.Images[1].Seq)
	assert.Equal(t, 1.0, result.Images[0].RefConfidence)
	assert.Equal(t, []string{"photo.jpg"}, result.Unresolved)
}

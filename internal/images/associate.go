package images

import (
	"go.uber.org/zap"

	"github.com/meridien-distribution/catalog-cli/internal/model"
)

// AssociationResult reports the outcome of one association run.
// Orphans are data, not errors: a batch job logs them and moves on.
type AssociationResult struct {
	Products []model.ProductRecord
	Orphans  []model.ImageRef
	Matched  int
}

// Associate attaches image groups to products. Products are visited in
// input order; for each one the identity keys are tried in priority
// order (default_code, barcode, ean) and the first key present in the
// index claims the entire group. The first image of a claimed group
// becomes the main image. A claimed reference is never handed to a
// second product.
//
// A claim replaces the product's existing image list: each batch is
// the current truth for its reference, so re-running association never
// stacks groups or leaves two main images on one record.
//
// The walk is deliberately sequential: claiming mutates index state,
// so the same inputs always produce the same mapping.
func Associate(ix *Index, products []model.ProductRecord) AssociationResult {
	result := AssociationResult{
		Products: make([]model.ProductRecord, len(products)),
	}
	copy(result.Products, products)

	for i := range result.Products {
		p := &result.Products[i]

		group, ref, ok := claimForProduct(ix, &p.Fields)
		if !ok {
			continue
		}

		attached := make([]model.ImageRef, len(group))
		copy(attached, group)
		attached[0].IsMain = true

		p.Images = attached
		if p.Status == model.StatusRaw {
			p.Status = model.StatusEnriched
		}
		result.Matched++

		zap.L().Debug("images: group attached",
			zap.String("product_id", p.ID),
			zap.String("reference", ref),
			zap.Int("count", len(attached)),
		)
	}

	result.Orphans = ix.Unclaimed()
	if len(result.Orphans) > 0 {
		zap.L().Warn("images: unmatched images after association",
			zap.Int("count", len(result.Orphans)),
		)
	}
	return result
}

// claimForProduct tries each identity key of the product in priority
// order and claims the first group found.
func claimForProduct(ix *Index, f *model.Fields) ([]model.ImageRef, string, bool) {
	for _, key := range model.KeyFields {
		a, _ := model.AccessorFor(key)
		p := *a.String(f)
		if p == nil || *p == "" {
			continue
		}
		if group, ok := ix.Claim(*p); ok {
			return group, *p, true
		}
	}
	return nil, "", false
}

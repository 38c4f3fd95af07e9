// Package merge reconciles extracted product fields into canonical
// records. The rule is confidence-wins: an incoming value replaces the
// stored one only when its confidence is strictly greater, and every
// extraction pass is recorded in the provenance list regardless of
// whether it changed anything.
package merge

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/meridien-distribution/catalog-cli/internal/model"
)

// ErrInvalidConfidence marks confidence scores outside [0,1]. The merge
// rejects the whole batch before touching the record.
var ErrInvalidConfidence = eris.New("merge: confidence out of range")

// Merge folds incoming fields into an existing record, or creates a new
// one when existing is nil. The input record is never mutated; the
// merged copy is returned.
//
// Replacement requires strictly greater confidence: on a tie the
// incumbent value stays. Empty strings are treated as absent. The
// source entry is appended unconditionally, so provenance grows even
// when the merge changes no field value.
func Merge(existing *model.ProductRecord, incoming model.Fields, conf model.Confidence, src model.Source, policy Policy, now time.Time) (*model.ProductRecord, error) {
	for key, c := range conf {
		if c < 0 || c > 1 {
			return nil, eris.Wrapf(ErrInvalidConfidence, "field %q: %.3f", key, c)
		}
	}

	rec := cloneOrCreate(existing, now)

	var changed []model.FieldKey
	for _, a := range model.Schema() {
		if !presentValue(a, &incoming) {
			continue
		}
		cs := policy.confidenceFor(a.Key, conf)

		if presentValue(a, &rec.Fields) {
			incumbent, ok := rec.Confidence[a.Key]
			if !ok {
				incumbent = policy.DefaultConfidence
			}
			if cs <= incumbent {
				continue
			}
		}

		a.Copy(&rec.Fields, &incoming)
		rec.Confidence[a.Key] = cs
		changed = append(changed, a.Key)
	}

	if src.Timestamp.IsZero() {
		src.Timestamp = now
	}
	if len(src.Fields) == 0 {
		src.Fields = incoming.PresentKeys()
	}
	rec.Sources = append(rec.Sources, src)
	rec.UpdatedAt = now

	if len(changed) > 0 && rec.Status == model.StatusRaw && existing != nil {
		rec.Status = model.StatusEnriched
	}

	zap.L().Debug("merge: record merged",
		zap.String("product_id", rec.ID),
		zap.String("source", src.OriginFile),
		zap.Int("changed", len(changed)),
		zap.Int("sources", len(rec.Sources)),
	)
	return rec, nil
}

// cloneOrCreate returns a fresh record when existing is nil, otherwise
// a deep copy the merge can mutate safely.
func cloneOrCreate(existing *model.ProductRecord, now time.Time) *model.ProductRecord {
	if existing == nil {
		return &model.ProductRecord{
			ID:         "prod_" + uuid.New().String()[:12],
			Confidence: make(model.Confidence),
			Status:     model.StatusRaw,
			CreatedAt:  now,
		}
	}

	rec := *existing
	for _, a := range model.Schema() {
		a.Copy(&rec.Fields, &existing.Fields)
	}
	rec.Confidence = make(model.Confidence, len(existing.Confidence))
	for k, v := range existing.Confidence {
		rec.Confidence[k] = v
	}
	rec.Sources = append([]model.Source(nil), existing.Sources...)
	rec.Images = append([]model.ImageRef(nil), existing.Images...)
	return &rec
}

// presentValue is Present with the empty-string rule applied: a blank
// string is not a value.
func presentValue(a model.FieldAccessor, f *model.Fields) bool {
	if !a.Present(f) {
		return false
	}
	if a.Kind == model.KindString {
		return strings.TrimSpace(**a.String(f)) != ""
	}
	return true
}

// Package match ranks stored catalog records against an external
// product descriptor. Each candidate is classified by the first rule it
// satisfies in a strict priority cascade; the engine is a pure query
// and never mutates its inputs.
package match

import (
	"sort"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/meridien-distribution/catalog-cli/internal/model"
	"github.com/meridien-distribution/catalog-cli/internal/similarity"
)

// MatchType classifies how a candidate matched the descriptor.
type MatchType string

// Match types in cascade priority order.
const (
	MatchExactBarcode    MatchType = "exact_barcode"
	MatchExactEAN        MatchType = "exact_ean"
	MatchExactCode       MatchType = "exact_code"
	MatchManufacturerRef MatchType = "manufacturer_ref"
	MatchFuzzyNameHigh   MatchType = "fuzzy_name_high"
	MatchFuzzyNameMedium MatchType = "fuzzy_name_medium"
	MatchPartialCode     MatchType = "partial_code"
)

// RankedMatch is one candidate that satisfied a cascade rule.
type RankedMatch struct {
	Product model.ProductRecord `json:"product"`
	Type    MatchType           `json:"match_type"`
	Score   float64             `json:"score"`
}

// Options tunes the cascade thresholds. Zero values fall back to the
// defaults from DefaultOptions.
type Options struct {
	MaxResults        int
	HighThreshold     float64 // fuzzy_name_high floor
	MediumThreshold   float64 // fuzzy_name_medium floor
	MinPartialCodeLen int     // shortest code eligible for the substring rule
}

// DefaultOptions returns the standard cascade tuning.
func DefaultOptions() Options {
	return Options{
		MaxResults:        10,
		HighThreshold:     0.90,
		MediumThreshold:   0.60,
		MinPartialCodeLen: 3,
	}
}

func (o Options) withDefaults() Options {
	def := DefaultOptions()
	if o.MaxResults <= 0 {
		o.MaxResults = def.MaxResults
	}
	if o.HighThreshold <= 0 {
		o.HighThreshold = def.HighThreshold
	}
	if o.MediumThreshold <= 0 {
		o.MediumThreshold = def.MediumThreshold
	}
	if o.MinPartialCodeLen <= 0 {
		o.MinPartialCodeLen = def.MinPartialCodeLen
	}
	return o
}

// ErrEmptyDescriptor marks a descriptor with no usable field.
var ErrEmptyDescriptor = eris.New("match: descriptor has no usable field")

// Match evaluates every candidate against the descriptor and returns
// the ranked results, sorted by score descending with ties broken by
// candidate creation time (oldest first), truncated to MaxResults.
func Match(desc model.ERPDescriptor, candidates []model.ProductRecord, opts Options) ([]RankedMatch, error) {
	if desc.Empty() {
		return nil, ErrEmptyDescriptor
	}
	opts = opts.withDefaults()

	var ranked []RankedMatch
	for _, cand := range candidates {
		if m, ok := classify(desc, cand, opts); ok {
			ranked = append(ranked, m)
		}
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Score != ranked[j].Score {
			return ranked[i].Score > ranked[j].Score
		}
		return ranked[i].Product.CreatedAt.Before(ranked[j].Product.CreatedAt)
	})

	if len(ranked) > opts.MaxResults {
		ranked = ranked[:opts.MaxResults]
	}
	return ranked, nil
}

// classify scores one candidate by the first cascade rule it satisfies.
func classify(desc model.ERPDescriptor, cand model.ProductRecord, opts Options) (RankedMatch, bool) {
	f := cand.Fields

	if equalNonEmpty(desc.Barcode, f.Barcode) {
		return RankedMatch{cand, MatchExactBarcode, 1.00}, true
	}
	if equalNonEmpty(desc.EAN, f.EAN) {
		return RankedMatch{cand, MatchExactEAN, 1.00}, true
	}
	if equalNonEmpty(desc.Code, f.DefaultCode) {
		return RankedMatch{cand, MatchExactCode, 0.97}, true
	}
	if equalNonEmpty(desc.ManufacturerRef, f.ManufacturerRef) {
		return RankedMatch{cand, MatchManufacturerRef, 0.85}, true
	}

	if f.Name != nil {
		sim := similarity.Score(desc.Name, *f.Name)
		if sim >= opts.HighThreshold {
			return RankedMatch{cand, MatchFuzzyNameHigh, sim}, true
		}
		if sim >= opts.MediumThreshold {
			return RankedMatch{cand, MatchFuzzyNameMedium, sim}, true
		}
	}

	if partialCode(desc.Code, f.DefaultCode, opts.MinPartialCodeLen) {
		return RankedMatch{cand, MatchPartialCode, 0.50}, true
	}
	return RankedMatch{}, false
}

func equalNonEmpty(a, b *string) bool {
	return a != nil && b != nil && *a != "" && strings.EqualFold(*a, *b)
}

// partialCode reports whether one code contains the other, with both
// at least minLen runes long. Short codes are excluded: substring hits
// on 2-character fragments are noise, not signal.
func partialCode(a, b *string, minLen int) bool {
	if a == nil || b == nil {
		return false
	}
	ca := strings.ToUpper(strings.TrimSpace(*a))
	cb := strings.ToUpper(strings.TrimSpace(*b))
	if len(ca) < minLen || len(cb) < minLen {
		return false
	}
	return strings.Contains(ca, cb) || strings.Contains(cb, ca)
}

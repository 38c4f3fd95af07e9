package model

import "time"

// Status is the lifecycle state of a product record. It only ever
// moves forward: raw → enriched → validated → exported.
type Status string

// Product lifecycle states.
const (
	StatusRaw       Status = "raw"
	StatusEnriched  Status = "enriched"
	StatusValidated Status = "validated"
	StatusExported  Status = "exported"
)

var statusRank = map[Status]int{
	StatusRaw:       0,
	StatusEnriched:  1,
	StatusValidated: 2,
	StatusExported:  3,
}

// Valid reports whether s is a known lifecycle state.
func (s Status) Valid() bool {
	_, ok := statusRank[s]
	return ok
}

// CanAdvanceTo reports whether moving from s to next respects the
// monotonic lifecycle.
func (s Status) CanAdvanceTo(next Status) bool {
	cur, ok := statusRank[s]
	if !ok {
		return false
	}
	nxt, ok := statusRank[next]
	if !ok {
		return false
	}
	return nxt >= cur
}

// ExtractionKind classifies how a source contributed its content.
type ExtractionKind string

// Extraction kinds.
const (
	ExtractionText   ExtractionKind = "text"
	ExtractionOCR    ExtractionKind = "ocr"
	ExtractionVision ExtractionKind = "vision"
	ExtractionManual ExtractionKind = "manual"
)

// Source records one extraction pass that contributed to a product
// record. The provenance list is append-only; re-processing the same
// file appends a new entry rather than replacing the old one.
type Source struct {
	SourceID   string         `json:"source_id"`
	OriginFile string         `json:"origin_file"`
	Kind       ExtractionKind `json:"kind"`
	Confidence float64        `json:"confidence"`
	Fields     []FieldKey     `json:"fields"`
	Timestamp  time.Time      `json:"timestamp"`
}

// ImageRef is one processed product image. Immutable after creation
// except for IsMain, which is set exactly once at association time.
type ImageRef struct {
	ID            string            `json:"id"`
	Filename      string            `json:"filename"`
	Reference     string            `json:"reference"`
	RefConfidence float64           `json:"ref_confidence"`
	Variants      map[string]string `json:"variants"` // size key → storage locator
	IsMain        bool              `json:"is_main"`
	Seq           int               `json:"seq"` // discovery order, tagged at enqueue time
}

// ProductRecord is one canonical catalog entry. Records are never
// deleted; a later dedup pass may tag two records with the same
// DuplicateGroupID instead.
type ProductRecord struct {
	ID               string     `json:"id"`
	Fields           Fields     `json:"fields"`
	Confidence       Confidence `json:"confidence"`
	Sources          []Source   `json:"sources"`
	Images           []ImageRef `json:"images"`
	Status           Status     `json:"status"`
	DuplicateGroupID string     `json:"duplicate_group_id,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// MainImage returns the image flagged as main, or nil.
func (p *ProductRecord) MainImage() *ImageRef {
	for i := range p.Images {
		if p.Images[i].IsMain {
			return &p.Images[i]
		}
	}
	return nil
}

// AverageConfidence returns the mean confidence across populated
// fields, or 0 when no field has been extracted.
func (p *ProductRecord) AverageConfidence() float64 {
	if len(p.Confidence) == 0 {
		return 0
	}
	var sum float64
	for _, c := range p.Confidence {
		sum += c
	}
	return sum / float64(len(p.Confidence))
}

// Package images groups processed product images by reference and
// associates the groups with catalog records.
package images

import (
	"sort"

	"github.com/meridien-distribution/catalog-cli/internal/model"
)

// Index is a reference → image-group multimap built fresh for each
// association run. Groups are claimed at most once; the claim state is
// owned by the index, never shared between runs.
type Index struct {
	groups  map[string][]model.ImageRef
	claimed map[string]bool
}

// BuildIndex groups images by their extracted reference. Group order
// follows discovery order (the Seq tag set at enqueue time), not the
// completion order of parallel variant workers. Images without a
// reference are excluded and returned as unresolvable.
func BuildIndex(images []model.ImageRef) (*Index, []model.ImageRef) {
	sorted := make([]model.ImageRef, len(images))
	copy(sorted, images)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Seq < sorted[j].Seq })

	ix := &Index{
		groups:  make(map[string][]model.ImageRef),
		claimed: make(map[string]bool),
	}
	var unresolved []model.ImageRef
	for _, img := range sorted {
		if img.Reference == "" {
			unresolved = append(unresolved, img)
			continue
		}
		ix.groups[img.Reference] = append(ix.groups[img.Reference], img)
	}
	return ix, unresolved
}

// Claim hands out the image group for ref exactly once. Subsequent
// claims for the same reference return false.
func (ix *Index) Claim(ref string) ([]model.ImageRef, bool) {
	if ref == "" || ix.claimed[ref] {
		return nil, false
	}
	group, ok := ix.groups[ref]
	if !ok {
		return nil, false
	}
	ix.claimed[ref] = true
	return group, true
}

// Len returns the number of references in the index.
func (ix *Index) Len() int {
	return len(ix.groups)
}

// Unclaimed returns every image group no product claimed, flattened in
// discovery order.
func (ix *Index) Unclaimed() []model.ImageRef {
	var refs []string
	for ref := range ix.groups {
		if !ix.claimed[ref] {
			refs = append(refs, ref)
		}
	}
	sort.Strings(refs)

	var orphans []model.ImageRef
	for _, ref := range refs {
		orphans = append(orphans, ix.groups[ref]...)
	}
	return orphans
}

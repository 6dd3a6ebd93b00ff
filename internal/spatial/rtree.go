// Package spatial indexes building footprints by bounding box so that a
// parcel is only intersected with the buildings that can touch it.
package spatial

import (
	"sort"

	"github.com/paulmach/orb"
	"github.com/tidwall/rtree"

	"parcelmap/internal/types"
)

// Index wraps tidwall/rtree over building bounds.
type Index struct {
	tree      rtree.RTreeG[int]
	buildings []types.Building
}

// NewIndex indexes every building with at least one coordinate.
func NewIndex(buildings []types.Building) *Index {
	idx := &Index{buildings: buildings}
	for i, b := range buildings {
		if len(b.Geometry) == 0 {
			continue
		}
		bound := b.Geometry.Bound()
		idx.tree.Insert(bound.Min, bound.Max, i)
	}
	return idx
}

// Candidates returns the buildings whose bbox intersects bound, in input order.
func (idx *Index) Candidates(bound orb.Bound) []types.Building {
	hits := make([]int, 0)
	idx.tree.Search(bound.Min, bound.Max, func(min, max [2]float64, i int) bool {
		hits = append(hits, i)
		return true // continue searching
	})
	sort.Ints(hits)

	out := make([]types.Building, 0, len(hits))
	for _, i := range hits {
		out = append(out, idx.buildings[i])
	}
	return out
}

// Size returns the number of indexed buildings.
func (idx *Index) Size() int {
	return idx.tree.Len()
}

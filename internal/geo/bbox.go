// Package geo holds the numeric core of a parcel report: bounding boxes,
// the geographic-to-page transform and the built-area computation.
//
// Everything here is pure and safe for concurrent use across parcels.
package geo

import (
	"errors"
	"math"

	"github.com/paulmach/orb"
)

// DefaultMargin is the fraction of the bbox extent added on each side of a
// display bbox.
const DefaultMargin = 0.1

// ErrEmptyGeometry is returned by CheckedBbox when the input has no points.
var ErrEmptyGeometry = errors.New("geometry has no coordinates")

// BoundingBox is (minLon, minLat, maxLon, maxLat).
type BoundingBox [4]float64

func (b BoundingBox) MinLon() float64 { return b[0] }
func (b BoundingBox) MinLat() float64 { return b[1] }
func (b BoundingBox) MaxLon() float64 { return b[2] }
func (b BoundingBox) MaxLat() float64 { return b[3] }

// Width is the longitude extent.
func (b BoundingBox) Width() float64 { return b[2] - b[0] }

// Height is the latitude extent.
func (b BoundingBox) Height() float64 { return b[3] - b[1] }

// Bound converts b to an orb.Bound.
func (b BoundingBox) Bound() orb.Bound {
	return orb.Bound{Min: orb.Point{b[0], b[1]}, Max: orb.Point{b[2], b[3]}}
}

// Contains reports whether p lies inside b, edges included.
func (b BoundingBox) Contains(p orb.Point) bool {
	return p[0] >= b[0] && p[0] <= b[2] && p[1] >= b[1] && p[1] <= b[3]
}

// ComputeBbox returns the bbox of every position of every ring, holes
// included, across all the given multipolygons.
//
// With no positions at all the result is the inverted infinite box
// (+Inf, +Inf, -Inf, -Inf); use CheckedBbox to get an error instead.
func ComputeBbox(mps ...orb.MultiPolygon) BoundingBox {
	minLon, minLat := math.Inf(1), math.Inf(1)
	maxLon, maxLat := math.Inf(-1), math.Inf(-1)

	for _, mp := range mps {
		for _, poly := range mp {
			for _, ring := range poly {
				for _, pt := range ring {
					minLon = math.Min(minLon, pt[0])
					minLat = math.Min(minLat, pt[1])
					maxLon = math.Max(maxLon, pt[0])
					maxLat = math.Max(maxLat, pt[1])
				}
			}
		}
	}
	return BoundingBox{minLon, minLat, maxLon, maxLat}
}

// CheckedBbox is ComputeBbox for callers that must not continue with an
// empty geometry.
func CheckedBbox(mps ...orb.MultiPolygon) (BoundingBox, error) {
	b := ComputeBbox(mps...)
	if b[0] > b[2] || b[1] > b[3] {
		return b, ErrEmptyGeometry
	}
	return b, nil
}

// ExpandBbox grows b by marginFraction of its extent on every side.
// A zero margin returns b unchanged; negative margins shrink it.
func ExpandBbox(b BoundingBox, marginFraction float64) BoundingBox {
	dLon := (b[2] - b[0]) * marginFraction
	dLat := (b[3] - b[1]) * marginFraction
	return BoundingBox{b[0] - dLon, b[1] - dLat, b[2] + dLon, b[3] + dLat}
}

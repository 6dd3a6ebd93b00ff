package geo

import (
	"errors"
	"fmt"
	"math"

	cgeom "github.com/ctessum/geom"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
	"github.com/paulmach/orb/planar"

	"parcelmap/internal/types"
)

// Reasons a building contributes nothing to a parcel.
var (
	ErrNoOverlap          = errors.New("building does not overlap parcel")
	ErrMalformedGeometry  = errors.New("malformed building geometry")
	ErrIntersectionFailed = errors.New("intersection computation failed")
)

// BuildingOutcome is the result of intersecting one building with a parcel.
// Err is nil when the building overlaps the parcel; otherwise the building is
// skipped and Area is 0.
type BuildingOutcome struct {
	Index        int
	Area         float64 // m²
	Intersection orb.MultiPolygon
	Err          error
}

// Skipped reports whether the building was left out of the built area.
func (o BuildingOutcome) Skipped() bool { return o.Err != nil }

// BuiltArea is the accumulated overlap of a set of buildings with one parcel.
type BuiltArea struct {
	Area          float64 // m², unclamped sum over buildings
	Intersections []orb.MultiPolygon
	Outcomes      []BuildingOutcome
}

// ComputeBuiltArea intersects parcel with every building independently and
// sums the overlap areas. A building that cannot be intersected is skipped
// and recorded in Outcomes; it never aborts the computation.
//
// Overlapping buildings are counted once each, so the same ground can be
// counted twice.
func ComputeBuiltArea(parcel orb.MultiPolygon, buildings []orb.MultiPolygon) BuiltArea {
	res := BuiltArea{Outcomes: make([]BuildingOutcome, 0, len(buildings))}
	if len(buildings) == 0 {
		return res
	}

	clip, parcelBound, err := toClipPolygon(parcel)
	for i, b := range buildings {
		var o BuildingOutcome
		if err != nil {
			o = BuildingOutcome{Err: fmt.Errorf("%w: parcel: %v", ErrMalformedGeometry, err)}
		} else {
			o = intersectBuilding(clip, parcelBound, b)
		}
		o.Index = i
		res.Outcomes = append(res.Outcomes, o)
		if o.Skipped() {
			continue
		}
		res.Area += o.Area
		res.Intersections = append(res.Intersections, o.Intersection)
	}
	return res
}

func intersectBuilding(parcel cgeom.Polygon, parcelBound orb.Bound, building orb.MultiPolygon) BuildingOutcome {
	subject, bound, err := toClipPolygon(building)
	if err != nil {
		return BuildingOutcome{Err: fmt.Errorf("%w: %v", ErrMalformedGeometry, err)}
	}
	if !bound.Intersects(parcelBound) {
		return BuildingOutcome{Err: ErrNoOverlap}
	}

	contours, err := safeIntersection(parcel, subject)
	if err != nil {
		return BuildingOutcome{Err: err}
	}
	mp := assemble(contours)
	area := geo.Area(mp)
	if len(mp) == 0 || !(area > 0) {
		return BuildingOutcome{Err: ErrNoOverlap}
	}
	return BuildingOutcome{Area: area, Intersection: mp}
}

// intersect is the clipping operation; tests replace it.
var intersect = func(a, b cgeom.Polygon) cgeom.Polygonal {
	return a.Intersection(b)
}

// safeIntersection turns a panic inside the clipping library into an error
// and flattens the result into one contour list.
func safeIntersection(a, b cgeom.Polygon) (out cgeom.Polygon, err error) {
	defer func() {
		if r := recover(); r != nil {
			out, err = nil, fmt.Errorf("%w: %v", ErrIntersectionFailed, r)
		}
	}()
	res := intersect(a, b)
	if res == nil {
		return nil, nil
	}
	if p, ok := res.(cgeom.Polygon); ok {
		return p, nil
	}
	for _, p := range res.Polygons() {
		out = append(out, p...)
	}
	return out, nil
}

// toClipPolygon flattens every ring of mp into one contour list (even-odd
// filling keeps holes and disjoint parts apart). Closing points are dropped
// and rings with fewer than three distinct points are ignored.
func toClipPolygon(mp orb.MultiPolygon) (cgeom.Polygon, orb.Bound, error) {
	var out cgeom.Polygon
	var bound orb.Bound
	first := true
	for _, poly := range mp {
		for _, ring := range poly {
			path := make(cgeom.Path, 0, len(ring))
			for i, pt := range ring {
				if math.IsNaN(pt[0]) || math.IsNaN(pt[1]) || math.IsInf(pt[0], 0) || math.IsInf(pt[1], 0) {
					return nil, bound, fmt.Errorf("non-finite coordinate %v", pt)
				}
				if i > 0 && pt == ring[i-1] {
					continue
				}
				path = append(path, cgeom.Point{X: pt[0], Y: pt[1]})
			}
			if len(path) > 1 && path[0] == path[len(path)-1] {
				path = path[:len(path)-1]
			}
			if len(path) < 3 {
				continue
			}
			out = append(out, path)
			if first {
				bound = ring.Bound()
				first = false
			} else {
				bound = bound.Union(ring.Bound())
			}
		}
	}
	if len(out) == 0 {
		return nil, bound, errors.New("no ring with at least three points")
	}
	return out, bound, nil
}

// assemble rebuilds polygons with holes from the flat contour list returned
// by the clipper: a contour nested inside an odd number of others is a hole
// of its innermost enclosing outer contour.
func assemble(contours cgeom.Polygon) orb.MultiPolygon {
	rings := make([]orb.Ring, 0, len(contours))
	for _, c := range contours {
		if len(c) < 3 {
			continue
		}
		r := make(orb.Ring, 0, len(c)+1)
		for _, p := range c {
			r = append(r, orb.Point{p.X, p.Y})
		}
		if !r.Closed() {
			r = append(r, r[0])
		}
		rings = append(rings, r)
	}

	depth := make([]int, len(rings))
	parent := make([]int, len(rings))
	for i := range rings {
		parent[i] = -1
		first := rings[i][0]
		for j := range rings {
			if i == j || !planar.RingContains(rings[j], first) {
				continue
			}
			depth[i]++
			if parent[i] < 0 || planar.RingContains(rings[parent[i]], rings[j][0]) {
				parent[i] = j
			}
		}
	}

	var mp orb.MultiPolygon
	index := make(map[int]int)
	for i, r := range rings {
		if depth[i]%2 == 0 {
			index[i] = len(mp)
			mp = append(mp, orb.Polygon{orient(r, orb.CCW)})
		}
	}
	for i, r := range rings {
		if depth[i]%2 == 1 {
			if k, ok := index[parent[i]]; ok {
				mp[k] = append(mp[k], orient(r, orb.CW))
			}
		}
	}
	return mp
}

func orient(r orb.Ring, o orb.Orientation) orb.Ring {
	if r.Orientation() != o {
		r.Reverse()
	}
	return r
}

// ParcelArea returns the spherical area of mp in m², holes subtracted.
func ParcelArea(mp orb.MultiPolygon) float64 {
	return geo.Area(mp)
}

// TotalArea prefers the declared cadastral surface and falls back to the
// geometry.
func TotalArea(p types.Parcel) float64 {
	if p.Contenance > 0 {
		return p.Contenance
	}
	return ParcelArea(p.Geometry)
}

// Surface derives the unbuilt area and occupancy rate from a built area.
// Unbuilt area is floored at zero; a parcel without area has a zero rate.
func Surface(id types.ParcelID, totalArea, builtArea float64) types.SurfaceRecord {
	rate := 0.0
	if totalArea > 0 {
		rate = builtArea / totalArea * 100
	}
	return types.SurfaceRecord{
		ID:            id,
		TotalArea:     totalArea,
		BuiltArea:     builtArea,
		UnbuiltArea:   math.Max(0, totalArea-builtArea),
		OccupancyRate: rate,
	}
}

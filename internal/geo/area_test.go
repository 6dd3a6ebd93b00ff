package geo

import (
	"errors"
	"math"
	"testing"

	cgeom "github.com/ctessum/geom"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"

	"parcelmap/internal/types"
)

func rect(minLon, minLat, maxLon, maxLat float64) orb.MultiPolygon {
	return orb.MultiPolygon{{square(minLon, minLat, maxLon, maxLat)}}
}

func relNear(got, want, tol float64) bool {
	return math.Abs(got-want) <= tol*math.Abs(want)
}

// a parcel of roughly 74m x 111m in Paris
var parcel = rect(2.3500, 48.8500, 2.3510, 48.8510)

func TestSurface(t *testing.T) {
	s := Surface("75056000AB0012", 1000, 250)
	if s.UnbuiltArea != 750 || s.OccupancyRate != 25.0 {
		t.Errorf("Surface = %+v, want unbuilt 750 and rate 25", s)
	}

	s = Surface("75056000AB0012", 0, 0)
	if s.OccupancyRate != 0 || s.UnbuiltArea != 0 {
		t.Errorf("zero total: %+v", s)
	}

	s = Surface("75056000AB0012", 100, 130) // double counted buildings
	if s.UnbuiltArea != 0 {
		t.Errorf("unbuilt area not floored: %+v", s)
	}
	if s.OccupancyRate != 130 {
		t.Errorf("rate = %g, want 130", s.OccupancyRate)
	}
}

func TestComputeBuiltAreaNoBuildings(t *testing.T) {
	got := ComputeBuiltArea(parcel, nil)
	if got.Area != 0 || len(got.Intersections) != 0 {
		t.Errorf("ComputeBuiltArea(nil) = %+v", got)
	}
	if s := Surface("75056000AB0012", 0, got.Area); s.OccupancyRate != 0 {
		t.Errorf("rate = %g", s.OccupancyRate)
	}
}

func TestComputeBuiltAreaFullyInside(t *testing.T) {
	b := rect(2.3502, 48.8502, 2.3504, 48.8504)
	got := ComputeBuiltArea(parcel, []orb.MultiPolygon{b})
	want := geo.Area(b)
	if !relNear(got.Area, want, 1e-6) {
		t.Errorf("built area = %f, want %f", got.Area, want)
	}
	if len(got.Intersections) != 1 {
		t.Fatalf("got %d intersections, want 1", len(got.Intersections))
	}
}

func TestComputeBuiltAreaPartialOverlap(t *testing.T) {
	// straddles the eastern edge of the parcel
	b := rect(2.3508, 48.8504, 2.3514, 48.8506)
	got := ComputeBuiltArea(parcel, []orb.MultiPolygon{b})
	want := geo.Area(rect(2.3508, 48.8504, 2.3510, 48.8506))
	if !relNear(got.Area, want, 1e-6) {
		t.Errorf("built area = %f, want %f", got.Area, want)
	}

	bound := got.Intersections[0].Bound()
	if bound.Max[0] > 2.3510+1e-12 {
		t.Errorf("intersection leaks outside parcel: %v", bound)
	}
}

func TestComputeBuiltAreaSkipsBadBuildings(t *testing.T) {
	good := rect(2.3502, 48.8502, 2.3504, 48.8504)
	far := rect(2.4000, 48.9000, 2.4001, 48.9001)
	degenerate := orb.MultiPolygon{{{{2.3503, 48.8503}, {2.3504, 48.8504}}}}
	broken := orb.MultiPolygon{{{{2.3503, math.NaN()}, {2.3504, 48.8504}, {2.3505, 48.8503}, {2.3503, math.NaN()}}}}

	got := ComputeBuiltArea(parcel, []orb.MultiPolygon{far, degenerate, good, broken})
	if !relNear(got.Area, geo.Area(good), 1e-6) {
		t.Errorf("built area = %f, want %f", got.Area, geo.Area(good))
	}
	if len(got.Intersections) != 1 {
		t.Errorf("got %d intersections, want 1", len(got.Intersections))
	}
	if len(got.Outcomes) != 4 {
		t.Fatalf("got %d outcomes, want 4", len(got.Outcomes))
	}

	wantErr := []error{ErrNoOverlap, ErrMalformedGeometry, nil, ErrMalformedGeometry}
	for i, o := range got.Outcomes {
		if o.Index != i {
			t.Errorf("outcome %d has index %d", i, o.Index)
		}
		if wantErr[i] == nil {
			if o.Skipped() {
				t.Errorf("outcome %d skipped: %v", i, o.Err)
			}
			continue
		}
		if !errors.Is(o.Err, wantErr[i]) {
			t.Errorf("outcome %d error = %v, want %v", i, o.Err, wantErr[i])
		}
		if o.Area != 0 || o.Intersection != nil {
			t.Errorf("skipped outcome %d carries a result: %+v", i, o)
		}
	}
}

func TestComputeBuiltAreaDoubleCounts(t *testing.T) {
	b := rect(2.3502, 48.8502, 2.3504, 48.8504)
	got := ComputeBuiltArea(parcel, []orb.MultiPolygon{b, b})
	if !relNear(got.Area, 2*geo.Area(b), 1e-6) {
		t.Errorf("built area = %f, want twice %f", got.Area, geo.Area(b))
	}
}

func TestComputeBuiltAreaHonoursHoles(t *testing.T) {
	holed := orb.MultiPolygon{{
		square(2.3500, 48.8500, 2.3510, 48.8510),
		square(2.3504, 48.8504, 2.3506, 48.8506),
	}}

	inHole := rect(2.35045, 48.85045, 2.35055, 48.85055)
	got := ComputeBuiltArea(holed, []orb.MultiPolygon{inHole})
	if got.Area != 0 || !errors.Is(got.Outcomes[0].Err, ErrNoOverlap) {
		t.Errorf("building inside the hole: %+v", got)
	}

	cover := rect(2.3499, 48.8499, 2.3511, 48.8511)
	got = ComputeBuiltArea(holed, []orb.MultiPolygon{cover})
	want := ParcelArea(holed)
	if !relNear(got.Area, want, 1e-6) {
		t.Errorf("covering building area = %f, want %f", got.Area, want)
	}
	if n := len(got.Intersections[0][0]); n != 2 {
		t.Errorf("intersection has %d rings, want shell and hole", n)
	}
}

func TestComputeBuiltAreaMultiPartParcel(t *testing.T) {
	twoParts := orb.MultiPolygon{
		{square(2.3500, 48.8500, 2.3502, 48.8502)},
		{square(2.3508, 48.8500, 2.3510, 48.8502)},
	}
	// spans both parts and the gap between them
	b := rect(2.3501, 48.85005, 2.3509, 48.8501)
	got := ComputeBuiltArea(twoParts, []orb.MultiPolygon{b})
	want := geo.Area(rect(2.3501, 48.85005, 2.3502, 48.8501)) + geo.Area(rect(2.3508, 48.85005, 2.3509, 48.8501))
	if !relNear(got.Area, want, 1e-6) {
		t.Errorf("built area = %f, want %f", got.Area, want)
	}
	if n := len(got.Intersections[0]); n != 2 {
		t.Errorf("intersection has %d polygons, want 2", n)
	}
}

func TestTotalArea(t *testing.T) {
	p := types.Parcel{Contenance: 1234, Geometry: parcel}
	if got := TotalArea(p); got != 1234 {
		t.Errorf("TotalArea with contenance = %f", got)
	}
	p.Contenance = 0
	if got := TotalArea(p); !relNear(got, geo.Area(parcel), 1e-12) {
		t.Errorf("TotalArea from geometry = %f", got)
	}
}

func TestAssembleNesting(t *testing.T) {
	outer := square(0, 0, 10, 10)
	hole := square(2, 2, 8, 8)
	island := square(4, 4, 6, 6)
	var contours cgeom.Polygon
	for _, r := range []orb.Ring{outer, hole, island} {
		var path cgeom.Path
		for _, p := range r[:len(r)-1] {
			path = append(path, cgeom.Point{X: p[0], Y: p[1]})
		}
		contours = append(contours, path)
	}

	mp := assemble(contours)
	if len(mp) != 2 {
		t.Fatalf("got %d polygons, want 2", len(mp))
	}
	if len(mp[0]) != 2 || len(mp[1]) != 1 {
		t.Errorf("ring counts = %d, %d; want 2, 1", len(mp[0]), len(mp[1]))
	}
	if mp[0][0].Orientation() != orb.CCW || mp[0][1].Orientation() != orb.CW {
		t.Errorf("unexpected orientation")
	}
}

func TestComputeBuiltAreaRecoversClipperPanic(t *testing.T) {
	orig := intersect
	t.Cleanup(func() { intersect = orig })

	bad := rect(2.3506, 48.8506, 2.3508, 48.8508)
	intersect = func(a, b cgeom.Polygon) cgeom.Polygonal {
		if b.Bounds().Min.X > 2.3505 {
			panic("sweep line out of order")
		}
		return orig(a, b)
	}

	good := rect(2.3502, 48.8502, 2.3504, 48.8504)
	got := ComputeBuiltArea(parcel, []orb.MultiPolygon{good, bad})
	if !relNear(got.Area, geo.Area(good), 1e-6) {
		t.Errorf("built area = %f, want %f", got.Area, geo.Area(good))
	}
	if len(got.Intersections) != 1 {
		t.Errorf("got %d intersections, want 1", len(got.Intersections))
	}
	o := got.Outcomes[1]
	if !errors.Is(o.Err, ErrIntersectionFailed) {
		t.Errorf("outcome error = %v, want ErrIntersectionFailed", o.Err)
	}
	if o.Index != 1 || o.Area != 0 || o.Intersection != nil {
		t.Errorf("failed outcome carries a result: %+v", o)
	}
}

func TestComputeBuiltAreaFlattensMultiPolygonResult(t *testing.T) {
	orig := intersect
	t.Cleanup(func() { intersect = orig })
	intersect = func(a, b cgeom.Polygon) cgeom.Polygonal {
		return cgeom.MultiPolygon{orig(a, b).(cgeom.Polygon)}
	}

	b := rect(2.3502, 48.8502, 2.3504, 48.8504)
	got := ComputeBuiltArea(parcel, []orb.MultiPolygon{b})
	if !relNear(got.Area, geo.Area(b), 1e-6) {
		t.Errorf("built area = %f, want %f", got.Area, geo.Area(b))
	}
}

// Package export writes report geometries as an ESRI shapefile so they can be
// opened in a GIS next to the PDF.
package export

import (
	"fmt"
	"strconv"
	"strings"

	shp "github.com/jonas-p/go-shp"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"

	"parcelmap/internal/types"
)

// Feature kinds stored in the KIND attribute.
const (
	KindParcel = "parcel"
	KindBuilt  = "built"
)

// Feature is one exported record.
type Feature struct {
	ID       types.ParcelID
	Kind     string
	Area     float64 // m²
	Geometry orb.MultiPolygon
}

var fields = []shp.Field{
	shp.StringField("IDU", 14),
	shp.StringField("KIND", 8),
	shp.FloatField("AREA_M2", 14, 2),
}

// Features flattens parcels and their built intersections into export
// records: one per parcel, then one per intersection. intersections[i]
// belongs to parcels[i].
func Features(parcels []types.Parcel, intersections [][]orb.MultiPolygon, surfaces []types.SurfaceRecord) []Feature {
	var out []Feature
	for i, p := range parcels {
		f := Feature{ID: p.ID, Kind: KindParcel, Geometry: p.Geometry}
		if i < len(surfaces) {
			f.Area = surfaces[i].TotalArea
		}
		out = append(out, f)
		if i >= len(intersections) {
			continue
		}
		for _, mp := range intersections[i] {
			if len(mp) == 0 {
				continue
			}
			out = append(out, Feature{ID: p.ID, Kind: KindBuilt, Area: geo.Area(mp), Geometry: mp})
		}
	}
	return out
}

// WriteShapefile writes features to path (.shp, with .shx and .dbf next to it).
// Features without a usable ring are skipped; the number written is returned.
func WriteShapefile(path string, features []Feature) (int, error) {
	w, err := shp.Create(path, shp.POLYGON)
	if err != nil {
		return 0, fmt.Errorf("create shapefile %s: %w", path, err)
	}
	defer w.Close()
	w.SetFields(fields)

	n := 0
	for _, f := range features {
		parts := toParts(f.Geometry)
		if len(parts) == 0 {
			continue
		}
		poly := shp.Polygon(*shp.NewPolyLine(parts))
		row := int(w.Write(&poly))
		attrs := []interface{}{f.ID.String(), f.Kind, f.Area}
		for i, v := range attrs {
			if err := w.WriteAttribute(row, i, v); err != nil {
				return n, fmt.Errorf("write attribute %s of %s: %w", fields[i].String(), f.ID, err)
			}
		}
		n++
	}
	return n, nil
}

// toParts converts every ring into a shapefile part. Shapefiles want outer
// rings clockwise and holes counter-clockwise, the reverse of GeoJSON.
func toParts(mp orb.MultiPolygon) [][]shp.Point {
	var parts [][]shp.Point
	for _, poly := range mp {
		for i, ring := range poly {
			if len(ring) < 3 {
				continue
			}
			want := orb.CW
			if i > 0 {
				want = orb.CCW
			}
			pts := make([]shp.Point, 0, len(ring)+1)
			for _, pt := range ring {
				pts = append(pts, shp.Point{X: pt[0], Y: pt[1]})
			}
			if pts[0] != pts[len(pts)-1] {
				pts = append(pts, pts[0])
			}
			if ring.Orientation() != want {
				for l, r := 0, len(pts)-1; l < r; l, r = l+1, r-1 {
					pts[l], pts[r] = pts[r], pts[l]
				}
			}
			parts = append(parts, pts)
		}
	}
	return parts
}

// ReadShapefile loads records written by WriteShapefile. Each part comes back
// as its own polygon; holes are not re-attached.
func ReadShapefile(path string) ([]Feature, error) {
	r, err := shp.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open shapefile %s: %w", path, err)
	}
	defer r.Close()

	col := make(map[string]int)
	for i, f := range r.Fields() {
		col[f.String()] = i
	}

	var out []Feature
	for r.Next() {
		idx, shape := r.Shape()
		poly, ok := shape.(*shp.Polygon)
		if !ok {
			continue
		}
		attr := func(name string) string {
			return strings.TrimRight(r.ReadAttribute(idx, col[name]), " \x00")
		}
		f := Feature{ID: types.ParcelID(attr("IDU")), Kind: attr("KIND")}
		f.Area, _ = strconv.ParseFloat(strings.TrimSpace(attr("AREA_M2")), 64)

		for p := 0; p < len(poly.Parts); p++ {
			start := poly.Parts[p]
			end := int32(len(poly.Points))
			if p+1 < len(poly.Parts) {
				end = poly.Parts[p+1]
			}
			ring := make(orb.Ring, 0, end-start)
			for i := start; i < end; i++ {
				ring = append(ring, orb.Point{poly.Points[i].X, poly.Points[i].Y})
			}
			f.Geometry = append(f.Geometry, orb.Polygon{ring})
		}
		out = append(out, f)
	}
	return out, nil
}

package main

import (
	"bytes"
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/paulmach/orb"

	"parcelmap/internal/cadastre"
	"parcelmap/internal/geo"
	"parcelmap/internal/projection"
	"parcelmap/internal/render"
	"parcelmap/internal/types"
)

func rect(minLon, minLat, maxLon, maxLat float64) orb.MultiPolygon {
	return orb.MultiPolygon{{{
		{minLon, minLat}, {maxLon, minLat}, {maxLon, maxLat}, {minLon, maxLat}, {minLon, minLat},
	}}}
}

func fixture() *cadastre.Lookup {
	return &cadastre.Lookup{
		Parcels: []types.Parcel{
			{ID: "75056000AB0012", Geometry: rect(2.3500, 48.8500, 2.3510, 48.8510)},
			{ID: "75056000AB0013", Contenance: 500, Geometry: rect(2.3520, 48.8500, 2.3530, 48.8510)},
		},
		Buildings: []types.Building{
			{Type: "01", Geometry: rect(2.3502, 48.8502, 2.3505, 48.8505)},
			{Type: "01", Geometry: rect(2.3508, 48.8508, 2.3515, 48.8515)}, // straddles the first parcel's corner
			{Type: "02", Geometry: rect(2.3600, 48.8600, 2.3601, 48.8601)}, // far away
			{Type: "01", Geometry: orb.MultiPolygon{{{{2.3521, 48.8501}, {2.3522, 48.8501}}}}},
		},
	}
}

func TestBuildReport(t *testing.T) {
	lk := fixture()
	frame := render.MapFrame(render.A4r, LevelDossier.renderOptions())
	rep, err := buildReport(context.Background(), lk, LevelDossier, projection.AnalyticLambert93, geo.DefaultMargin, frame)
	if err != nil {
		t.Fatalf("buildReport: %v", err)
	}

	if len(rep.Surfaces) != 2 || len(rep.Intersections) != 2 {
		t.Fatalf("got %d surfaces and %d intersection sets", len(rep.Surfaces), len(rep.Intersections))
	}
	if got := len(rep.Intersections[0]); got != 2 {
		t.Errorf("first parcel has %d intersections, want 2", got)
	}
	if got := len(rep.Intersections[1]); got != 0 {
		t.Errorf("second parcel has %d intersections, want 0", got)
	}
	// The degenerate footprint near the second parcel is malformed.
	if rep.Skipped != 1 {
		t.Errorf("Skipped = %d, want 1", rep.Skipped)
	}

	first := rep.Surfaces[0]
	want := geo.ComputeBuiltArea(lk.Parcels[0].Geometry, []orb.MultiPolygon{lk.Buildings[0].Geometry, lk.Buildings[1].Geometry}).Area
	if math.Abs(first.BuiltArea-want) > 1e-6 {
		t.Errorf("built area %.3f, want %.3f", first.BuiltArea, want)
	}
	if first.TotalArea != geo.ParcelArea(lk.Parcels[0].Geometry) {
		t.Errorf("first parcel total area should come from geometry, got %.3f", first.TotalArea)
	}

	second := rep.Surfaces[1]
	if diff := cmp.Diff(types.SurfaceRecord{ID: "75056000AB0013", TotalArea: 500, UnbuiltArea: 500}, second); diff != "" {
		t.Errorf("second surface mismatch (-want +got):\n%s", diff)
	}

	bbox := geo.ComputeBbox(lk.Parcels[0].Geometry, lk.Parcels[1].Geometry)
	if rep.Bbox != geo.ExpandBbox(bbox, geo.DefaultMargin) {
		t.Errorf("bbox %v is not the expanded parcel extent", rep.Bbox)
	}
	if w, h := rep.Transform.PageSize(); w != frame.W || h != frame.H {
		t.Errorf("transform page size %gx%g, want %gx%g", w, h, frame.W, frame.H)
	}
}

func TestBuildReportSituationSkipsBuildings(t *testing.T) {
	frame := render.MapFrame(render.A4, LevelSituation.renderOptions())
	rep, err := buildReport(context.Background(), fixture(), LevelSituation, projection.AnalyticLambert93, 0, frame)
	if err != nil {
		t.Fatalf("buildReport: %v", err)
	}
	if rep.Surfaces != nil || rep.Intersections != nil {
		t.Errorf("situation level computed surfaces: %+v", rep.Surfaces)
	}
}

func TestBuildReportEmptyGeometry(t *testing.T) {
	lk := &cadastre.Lookup{Parcels: []types.Parcel{{ID: "75056000AB0012"}}}
	_, err := buildReport(context.Background(), lk, LevelBuildings, projection.AnalyticLambert93, 0, render.Frame{W: 100, H: 100})
	if !errors.Is(err, geo.ErrEmptyGeometry) {
		t.Errorf("err = %v, want ErrEmptyGeometry", err)
	}
}

func TestRenderOptionsAreCumulative(t *testing.T) {
	tests := []struct {
		level Level
		want  render.Options
	}{
		{LevelSituation, render.Options{}},
		{LevelBuildings, render.Options{Buildings: true}},
		{LevelSurfaces, render.Options{Buildings: true, Table: true}},
		{LevelDossier, render.Options{Buildings: true, Table: true, Totals: true, Metadata: true}},
	}
	for _, tt := range tests {
		if diff := cmp.Diff(tt.want, tt.level.renderOptions()); diff != "" {
			t.Errorf("%s options mismatch (-want +got):\n%s", tt.level, diff)
		}
	}
	if got := Level(9).String(); got != "level(9)" {
		t.Errorf("Level(9).String() = %q", got)
	}
}

func TestParseIDs(t *testing.T) {
	ids, err := parseIDs([]string{"75056000ab0012", "75056 000 AB 0012", "2A004000B0102"})
	if err != nil {
		t.Fatalf("parseIDs: %v", err)
	}
	want := []types.ParcelID{"75056000AB0012", "2A0040000B0102"}
	if diff := cmp.Diff(want, ids); diff != "" {
		t.Errorf("ids mismatch (-want +got):\n%s", diff)
	}

	_, err = parseIDs([]string{"75056000AB0012", "nope", "75056000AB00XX"})
	if err == nil {
		t.Fatal("expected error")
	}
	if n := strings.Count(err.Error(), "\n  - "); n != 2 {
		t.Errorf("error lists %d problems, want 2: %v", n, err)
	}
}

func TestPrintSurfaces(t *testing.T) {
	rep := &report{
		Surfaces: []types.SurfaceRecord{
			geo.Surface("75056000AB0012", 1000, 700),
			geo.Surface("75056000AB0013", 500, 0),
		},
		Skipped: 2,
	}
	var buf bytes.Buffer
	printSurfaces(&buf, rep, false)
	out := buf.String()
	for _, s := range []string{"75056000AB0012", " 70.0 %", "TOTAL", " 46.7 %", "2 building(s)"} {
		if !strings.Contains(out, s) {
			t.Errorf("output missing %q:\n%s", s, out)
		}
	}
	if strings.Contains(out, "\033[") {
		t.Errorf("colour codes printed with color=false")
	}

	buf.Reset()
	printSurfaces(&buf, rep, true)
	if !strings.Contains(buf.String(), colorRed) || !strings.Contains(buf.String(), colorGreen) {
		t.Errorf("expected dense and empty parcels to be coloured:\n%s", buf.String())
	}
}

func TestWritePDFAndShapefile(t *testing.T) {
	lk := fixture()
	opt := LevelDossier.renderOptions()
	opt.Page = render.A4r
	rep, err := buildReport(context.Background(), lk, LevelDossier, projection.AnalyticLambert93, geo.DefaultMargin, render.MapFrame(render.A4r, opt))
	if err != nil {
		t.Fatal(err)
	}

	dir := t.TempDir()
	pdfPath := filepath.Join(dir, "out", "report.pdf")
	if err := writePDF(pdfPath, rep, opt); err != nil {
		t.Fatalf("writePDF: %v", err)
	}
	data, err := os.ReadFile(pdfPath)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.HasPrefix(data, []byte("%PDF-")) {
		t.Errorf("not a PDF")
	}
	leftovers, _ := filepath.Glob(filepath.Join(dir, "out", ".parcelmap-*"))
	if len(leftovers) != 0 {
		t.Errorf("temporary files left behind: %v", leftovers)
	}

	if err := writeShapefile(filepath.Join(dir, "report.shp"), rep); err != nil {
		t.Fatalf("writeShapefile: %v", err)
	}
	for _, ext := range []string{".shp", ".shx", ".dbf"} {
		if _, err := os.Stat(filepath.Join(dir, "report"+ext)); err != nil {
			t.Errorf("missing %s: %v", ext, err)
		}
	}
}

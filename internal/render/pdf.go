package render

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/paulmach/orb"
	"seehuhn.de/go/pdf"
	"seehuhn.de/go/pdf/document"
	"seehuhn.de/go/pdf/font/standard"
	"seehuhn.de/go/pdf/font/type1"
	"seehuhn.de/go/pdf/graphics/color"

	"parcelmap/internal/geo"
	"parcelmap/internal/types"
)

// Page sizes in PDF points; the "r" variants are landscape.
var (
	A4  = &pdf.Rectangle{URx: 595.276, URy: 841.890}
	A4r = &pdf.Rectangle{URx: 841.890, URy: 595.276}
	A3  = &pdf.Rectangle{URx: 841.890, URy: 1190.551}
	A3r = &pdf.Rectangle{URx: 1190.551, URy: 841.890}
)

// PageSize looks up a page size by name (a4, a4r, a3, a3r).
func PageSize(name string) (*pdf.Rectangle, error) {
	switch strings.ToLower(name) {
	case "a4":
		return A4, nil
	case "", "a4r":
		return A4r, nil
	case "a3":
		return A3, nil
	case "a3r":
		return A3r, nil
	}
	return nil, fmt.Errorf("unknown page size %q", name)
}

const (
	margin      = 36.0
	titleHeight = 28.0
	panelWidth  = 250.0
	footerSize  = 24.0
	rowHeight   = 12.0
)

var (
	colorParcel = color.DeviceRGB(0.80, 0.10, 0.10)
	colorBuilt  = color.DeviceRGB(0.45, 0.45, 0.50)
	colorFrame  = color.DeviceRGB(0.60, 0.60, 0.60)
	colorText   = color.DeviceRGB(0, 0, 0)
)

// Options selects what goes on the page.
type Options struct {
	Title     string
	Page      *pdf.Rectangle
	Buildings bool // fill built intersections
	Table     bool // surface table
	Totals    bool // totals row under the table
	Metadata  bool // Lambert-93 footer
	RunID     string
	Date      time.Time
}

// Report is the drawable content of one report.
type Report struct {
	Parcels       []types.Parcel
	Intersections []orb.MultiPolygon
	Surfaces      []types.SurfaceRecord
	Transform     geo.GeoToPageTransform
}

// MapFrame is the area of the page that receives the map. Callers build the
// GeoToPageTransform from its width and height.
func MapFrame(page *pdf.Rectangle, opt Options) Frame {
	bottom := margin
	if opt.Metadata {
		bottom += footerSize
	}
	f := Frame{
		X: page.LLx + margin,
		Y: page.LLy + bottom,
		W: page.URx - page.LLx - 3*margin - panelWidth,
		H: page.URy - page.LLy - bottom - margin - titleHeight,
	}
	return f
}

type fonts struct {
	regular *type1.Instance
	bold    *type1.Instance
}

// WritePDF renders r as a single-page PDF.
func WritePDF(w io.Writer, r Report, opt Options) error {
	if opt.Page == nil {
		opt.Page = A4r
	}
	page, err := document.WriteSinglePage(w, opt.Page, pdf.V1_7, nil)
	if err != nil {
		return fmt.Errorf("create page: %w", err)
	}

	drawReport(page, r, opt)
	if page.Err != nil {
		return fmt.Errorf("draw page: %w", page.Err)
	}
	return page.Close()
}

// drawReport writes the map, the side panel and the footer to page.
// Drawing errors are left in page.Err.
func drawReport(page *document.Page, r Report, opt Options) {
	f := fonts{
		regular: standard.Helvetica.New(),
		bold:    standard.HelveticaBold.New(),
	}

	frame := MapFrame(opt.Page, opt)
	drawMap(page, r, frame, opt)

	title := opt.Title
	if title == "" {
		title = "Parcelles " + parcelList(r.Parcels)
	}
	text(page, f.bold, 14, opt.Page.LLx+margin, opt.Page.URy-margin-14, title)

	panelX := frame.X + frame.W + margin
	y := frame.Y + frame.H
	y = drawLegend(page, f, panelX, y, opt)
	if opt.Table {
		drawTable(page, f, panelX, y-rowHeight, r.Surfaces, opt.Totals)
	}
	if opt.Metadata {
		drawFooter(page, f, opt.Page.LLx+margin, opt.Page.LLy+margin, r.Transform, opt)
	}

}

func drawMap(page *document.Page, r Report, frame Frame, opt Options) {
	page.SetLineWidth(0.5)
	page.SetStrokeColor(colorFrame)
	page.Rectangle(frame.X, frame.Y, frame.W, frame.H)
	page.Stroke()

	if opt.Buildings {
		page.SetFillColor(colorBuilt)
		n := 0
		for _, mp := range r.Intersections {
			n += tracePolygons(page, r.Transform, frame, mp)
		}
		if n > 0 {
			page.Fill()
		}
	}

	page.SetLineWidth(1.5)
	page.SetStrokeColor(colorParcel)
	n := 0
	for _, p := range r.Parcels {
		n += tracePolygons(page, r.Transform, frame, p.Geometry)
	}
	if n > 0 {
		page.Stroke()
	}
}

// drawLegend draws the swatches from the top of the panel down and returns
// the y coordinate below the legend.
func drawLegend(page *document.Page, f fonts, x, y float64, opt Options) float64 {
	y -= 12
	text(page, f.bold, 10, x, y, "Legende")

	y -= 18
	page.SetLineWidth(1.5)
	page.SetStrokeColor(colorParcel)
	page.Rectangle(x, y, 16, 10)
	page.Stroke()
	text(page, f.regular, 9, x+24, y+2, "Limite de parcelle")

	if opt.Buildings {
		y -= 16
		page.SetFillColor(colorBuilt)
		page.Rectangle(x, y, 16, 10)
		page.Fill()
		text(page, f.regular, 9, x+24, y+2, "Surface batie")
	}
	return y - 12
}

var tableColumns = []struct {
	title string
	dx    float64
}{
	{"Parcelle", 0},
	{"Totale m2", 74},
	{"Batie m2", 120},
	{"Non batie m2", 162},
	{"Occ. %", 218},
}

func drawTable(page *document.Page, f fonts, x, y float64, rows []types.SurfaceRecord, totals bool) {
	for _, c := range tableColumns {
		text(page, f.bold, 7, x+c.dx, y, c.title)
	}
	y -= 4
	page.SetLineWidth(0.5)
	page.SetStrokeColor(colorFrame)
	page.MoveTo(x, y)
	page.LineTo(x+panelWidth, y)
	page.Stroke()

	var sum types.SurfaceRecord
	for _, r := range rows {
		y -= rowHeight
		drawRow(page, f.regular, x, y, surfaceCells(r))
		sum.TotalArea += r.TotalArea
		sum.BuiltArea += r.BuiltArea
		sum.UnbuiltArea += r.UnbuiltArea
	}
	if totals && len(rows) > 0 {
		sum.ID = "Total"
		if sum.TotalArea > 0 {
			sum.OccupancyRate = sum.BuiltArea / sum.TotalArea * 100
		}
		y -= rowHeight
		drawRow(page, f.bold, x, y, surfaceCells(sum))
	}
}

func surfaceCells(r types.SurfaceRecord) []string {
	return []string{
		r.ID.String(),
		fmt.Sprintf("%.0f", r.TotalArea),
		fmt.Sprintf("%.0f", r.BuiltArea),
		fmt.Sprintf("%.0f", r.UnbuiltArea),
		fmt.Sprintf("%.1f", r.OccupancyRate),
	}
}

func drawRow(page *document.Page, font *type1.Instance, x, y float64, cells []string) {
	for i, c := range tableColumns {
		text(page, font, 7, x+c.dx, y, cells[i])
	}
}

func drawFooter(page *document.Page, f fonts, x, y float64, t geo.GeoToPageTransform, opt Options) {
	l := t.BboxLambert()
	line := fmt.Sprintf("Lambert-93 (EPSG:2154)  X %.0f - %.0f  Y %.0f - %.0f", l[0], l[2], l[1], l[3])
	text(page, f.regular, 8, x, y, line)

	var meta []string
	if !opt.Date.IsZero() {
		meta = append(meta, opt.Date.Format("2006-01-02"))
	}
	if opt.RunID != "" {
		meta = append(meta, "run "+opt.RunID)
	}
	if len(meta) > 0 {
		text(page, f.regular, 7, x, y+10, strings.Join(meta, "  "))
	}
}

// text writes a single line starting at (x, y).
func text(page *document.Page, font *type1.Instance, size, x, y float64, s string) {
	page.SetFillColor(colorText)
	page.TextBegin()
	page.TextSetFont(font, size)
	page.TextFirstLine(x, y)
	page.TextShow(s)
	page.TextEnd()
}

func parcelList(parcels []types.Parcel) string {
	ids := make([]string, 0, len(parcels))
	for _, p := range parcels {
		ids = append(ids, p.ID.String())
	}
	if len(ids) > 4 {
		return strings.Join(ids[:4], ", ") + fmt.Sprintf(" (+%d)", len(ids)-4)
	}
	return strings.Join(ids, ", ")
}

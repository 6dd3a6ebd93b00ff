package geo

import (
	"errors"
	"fmt"

	"parcelmap/internal/projection"
)

// ErrDegenerateBbox is returned by CheckedTransform for a bbox with zero width
// or height, or a page without area.
var ErrDegenerateBbox = errors.New("degenerate bounding box")

// GeoToPageTransform maps WGS84 lon/lat into page units for one drawing pass.
// Each axis is scaled independently: the aspect ratio of the bbox is not kept.
type GeoToPageTransform struct {
	bbox    BoundingBox
	width   float64
	height  float64
	lambert [4]float64
}

// CreateTransform builds the transform of bbox onto a pageWidth x pageHeight
// area, with the Lambert-93 bbox computed by the proj4 engine.
func CreateTransform(bbox BoundingBox, pageWidth, pageHeight float64) GeoToPageTransform {
	return CreateTransformWith(projection.WGS84ToLambert93, bbox, pageWidth, pageHeight)
}

// CreateTransformWith is CreateTransform with an explicit projector.
func CreateTransformWith(project projection.Projector, bbox BoundingBox, pageWidth, pageHeight float64) GeoToPageTransform {
	x0, y0 := project(bbox.MinLon(), bbox.MinLat())
	x1, y1 := project(bbox.MaxLon(), bbox.MaxLat())
	return GeoToPageTransform{
		bbox:    bbox,
		width:   pageWidth,
		height:  pageHeight,
		lambert: [4]float64{x0, y0, x1, y1},
	}
}

// CheckedTransform rejects the inputs CreateTransform would turn into
// non-finite page coordinates.
func CheckedTransform(project projection.Projector, bbox BoundingBox, pageWidth, pageHeight float64) (GeoToPageTransform, error) {
	if !(bbox.Width() > 0) || !(bbox.Height() > 0) {
		return GeoToPageTransform{}, fmt.Errorf("%w: %v", ErrDegenerateBbox, bbox)
	}
	if !(pageWidth > 0) || !(pageHeight > 0) {
		return GeoToPageTransform{}, fmt.Errorf("%w: page %gx%g", ErrDegenerateBbox, pageWidth, pageHeight)
	}
	return CreateTransformWith(project, bbox, pageWidth, pageHeight), nil
}

// ToPixel maps lon/lat to page coordinates. A zero-width or zero-height bbox
// yields non-finite values.
func (t GeoToPageTransform) ToPixel(lon, lat float64) (x, y float64) {
	x = (lon - t.bbox[0]) / (t.bbox[2] - t.bbox[0]) * t.width
	y = (lat - t.bbox[1]) / (t.bbox[3] - t.bbox[1]) * t.height
	return
}

// BboxLambert is [x(min), y(min), x(max), y(max)] of the geographic bbox
// corners in Lambert-93 metres.
func (t GeoToPageTransform) BboxLambert() [4]float64 { return t.lambert }

// Bbox returns the geographic bbox the transform was built from.
func (t GeoToPageTransform) Bbox() BoundingBox { return t.bbox }

// PageSize returns the target width and height.
func (t GeoToPageTransform) PageSize() (width, height float64) { return t.width, t.height }

// Package render draws parcel reports into PDF pages.
package render

import (
	"math"

	"github.com/paulmach/orb"

	"parcelmap/internal/geo"
)

// Frame is a rectangle on the page, in PDF points from the lower-left corner.
type Frame struct {
	X, Y, W, H float64
}

// Canvas is the subset of path operators the map drawing needs.
type Canvas interface {
	MoveTo(x, y float64)
	LineTo(x, y float64)
	ClosePath()
}

// tracePolygons adds the outer ring of every polygon of mp to the current
// path, mapped through t and offset into frame. Holes are not drawn and rings
// with fewer than three points are skipped. It returns the number of rings traced.
func tracePolygons(c Canvas, t geo.GeoToPageTransform, frame Frame, mp orb.MultiPolygon) int {
	n := 0
	for _, poly := range mp {
		if len(poly) == 0 || len(poly[0]) < 3 {
			continue
		}
		ring := poly[0]
		if !finiteRing(t, ring) {
			continue
		}
		for i, pt := range ring {
			x, y := t.ToPixel(pt[0], pt[1])
			x, y = frame.X+x, frame.Y+y
			if i == 0 {
				c.MoveTo(x, y)
			} else {
				c.LineTo(x, y)
			}
		}
		c.ClosePath()
		n++
	}
	return n
}

func finiteRing(t geo.GeoToPageTransform, ring orb.Ring) bool {
	for _, pt := range ring {
		x, y := t.ToPixel(pt[0], pt[1])
		if math.IsNaN(x) || math.IsNaN(y) || math.IsInf(x, 0) || math.IsInf(y, 0) {
			return false
		}
	}
	return true
}

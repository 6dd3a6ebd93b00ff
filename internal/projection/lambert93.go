// Package projection converts WGS84 coordinates to the French Lambert-93
// (EPSG:2154) projected reference frame.
package projection

import (
	"fmt"
	"math"
	"sync"

	"github.com/ctessum/geom/proj"
)

// Definitions holds the proj4 strings registered with the projection library.
var Definitions = map[string]string{
	"EPSG:4326": "+proj=longlat +datum=WGS84 +no_defs",
	"EPSG:2154": "+proj=lcc +lat_1=49 +lat_2=44 +lat_0=46.5 +lon_0=3 +x_0=700000 +y_0=6600000 +ellps=GRS80 +towgs84=0,0,0,0,0,0,0 +units=m +no_defs",
}

// Projector converts a longitude/latitude pair in degrees to projected metres.
type Projector func(lon, lat float64) (x, y float64)

const (
	EngineProj4    = "proj4"
	EngineAnalytic = "analytic"
)

var (
	registerOnce sync.Once
	registerErr  error
	toLambert93  proj.Transformer
	toWGS84      proj.Transformer
)

// register parses the definitions once per process. Later calls return the
// outcome of the first one.
func register() error {
	registerOnce.Do(func() {
		wgs84, err := proj.Parse(Definitions["EPSG:4326"])
		if err != nil {
			registerErr = fmt.Errorf("parse EPSG:4326: %w", err)
			return
		}
		l93, err := proj.Parse(Definitions["EPSG:2154"])
		if err != nil {
			registerErr = fmt.Errorf("parse EPSG:2154: %w", err)
			return
		}
		if toLambert93, err = wgs84.NewTransform(l93); err != nil {
			registerErr = fmt.Errorf("transform EPSG:4326 -> EPSG:2154: %w", err)
			return
		}
		if toWGS84, err = l93.NewTransform(wgs84); err != nil {
			registerErr = fmt.Errorf("transform EPSG:2154 -> EPSG:4326: %w", err)
		}
	})
	return registerErr
}

// Init registers the Lambert-93 definition eagerly so that a broken
// definition is reported at startup rather than on first use.
func Init() error {
	return register()
}

// WGS84ToLambert93 projects lon/lat degrees to Lambert-93 metres.
// Coordinates the library cannot project yield NaN.
func WGS84ToLambert93(lon, lat float64) (x, y float64) {
	if err := register(); err != nil {
		panic(err) // constant definitions, only reachable through a library regression
	}
	x, y, err := toLambert93(lon, lat)
	if err != nil {
		return math.NaN(), math.NaN()
	}
	return x, y
}

// Lambert93ToWGS84 is the inverse of WGS84ToLambert93.
func Lambert93ToWGS84(x, y float64) (lon, lat float64) {
	if err := register(); err != nil {
		panic(err)
	}
	lon, lat, err := toWGS84(x, y)
	if err != nil {
		return math.NaN(), math.NaN()
	}
	return lon, lat
}

// Engine returns the projector for the named engine ("proj4" or "analytic").
func Engine(name string) (Projector, error) {
	switch name {
	case "", EngineProj4:
		if err := register(); err != nil {
			return nil, err
		}
		return WGS84ToLambert93, nil
	case EngineAnalytic:
		return AnalyticLambert93, nil
	default:
		return nil, fmt.Errorf("unknown projection engine %q", name)
	}
}

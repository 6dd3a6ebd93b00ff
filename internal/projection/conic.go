package projection

// Closed-form Lambert Conformal Conic (two standard parallels) on an
// ellipsoid. Used by the "analytic" engine and as a cross-check of the
// proj4 engine.

import "math"

const (
	grs80SemiMajor = 6378137.0
	grs80E2        = 0.00669438002290 // GRS80 eccentricity squared

	l93Phi0Deg = 46.5 // latitude of origin
	l93Phi1Deg = 49.0 // standard parallel 1
	l93Phi2Deg = 44.0 // standard parallel 2
	l93Lon0Deg = 3.0  // central meridian

	l93FalseEasting  = 700000.0
	l93FalseNorthing = 6600000.0
)

type conformalConic struct {
	e    float64
	n    float64
	f    float64
	rho0 float64
	lon0 float64
	x0   float64
	y0   float64
}

var lambert93Conic = newConformalConic(l93Phi0Deg, l93Phi1Deg, l93Phi2Deg, l93Lon0Deg,
	l93FalseEasting, l93FalseNorthing, grs80SemiMajor, grs80E2)

func newConformalConic(phi0Deg, phi1Deg, phi2Deg, lon0Deg, x0, y0, a, e2 float64) conformalConic {
	e := math.Sqrt(e2)
	phi0 := phi0Deg * math.Pi / 180
	phi1 := phi1Deg * math.Pi / 180
	phi2 := phi2Deg * math.Pi / 180

	m := func(phi float64) float64 {
		return math.Cos(phi) / math.Sqrt(1-e2*math.Sin(phi)*math.Sin(phi))
	}

	m1 := m(phi1)
	m2 := m(phi2)
	t1 := isometricT(phi1, e)
	t2 := isometricT(phi2, e)
	t0 := isometricT(phi0, e)

	n := math.Log(m1/m2) / math.Log(t1/t2)
	f := a * m1 / (n * math.Pow(t1, n))

	return conformalConic{
		e:    e,
		n:    n,
		f:    f,
		rho0: f * math.Pow(t0, n),
		lon0: lon0Deg * math.Pi / 180,
		x0:   x0,
		y0:   y0,
	}
}

func isometricT(phi, e float64) float64 {
	es := e * math.Sin(phi)
	return math.Tan(math.Pi/4-phi/2) / math.Pow((1-es)/(1+es), e/2)
}

func (c conformalConic) forward(lonDeg, latDeg float64) (x, y float64) {
	phi := latDeg * math.Pi / 180
	lambda := lonDeg * math.Pi / 180

	rho := c.f * math.Pow(isometricT(phi, c.e), c.n)
	theta := c.n * (lambda - c.lon0)

	x = rho*math.Sin(theta) + c.x0
	y = c.rho0 - rho*math.Cos(theta) + c.y0
	return
}

func (c conformalConic) inverse(x, y float64) (lonDeg, latDeg float64) {
	dx := x - c.x0
	dy := c.rho0 - (y - c.y0)

	rho := math.Copysign(math.Hypot(dx, dy), c.n)
	theta := math.Atan2(dx, dy)
	if c.n < 0 {
		theta = math.Atan2(-dx, -dy)
	}
	t := math.Pow(rho/c.f, 1/c.n)

	phi := math.Pi/2 - 2*math.Atan(t)
	for i := 0; i < 15; i++ {
		es := c.e * math.Sin(phi)
		next := math.Pi/2 - 2*math.Atan(t*math.Pow((1-es)/(1+es), c.e/2))
		if math.Abs(next-phi) < 1e-12 {
			phi = next
			break
		}
		phi = next
	}

	lonDeg = (theta/c.n + c.lon0) * 180 / math.Pi
	latDeg = phi * 180 / math.Pi
	return
}

// AnalyticLambert93 projects WGS84 degrees to Lambert-93 metres without the
// projection library. WGS84 and RGF93 are treated as identical (zero datum shift).
func AnalyticLambert93(lon, lat float64) (x, y float64) {
	return lambert93Conic.forward(lon, lat)
}

// AnalyticWGS84 is the inverse of AnalyticLambert93.
func AnalyticWGS84(x, y float64) (lon, lat float64) {
	return lambert93Conic.inverse(x, y)
}

package types

import (
	"errors"
	"fmt"
	"strings"

	"github.com/paulmach/orb"
)

// ErrInvalidParcelID is returned when a cadastral identifier does not have the
// 14-character commune/prefix/section/number layout.
var ErrInvalidParcelID = errors.New("invalid parcel identifier")

// ParcelID is a normalized 14-character cadastral identifier, e.g. 75056000AB0012.
type ParcelID string

// ParseParcelID normalizes s and checks its layout: INSEE commune code (5),
// prefix (3 digits), section (2 alphanumerics), number (4 digits).
// A one-letter section is accepted when written with 13 characters and is
// left-padded with '0'.
func ParseParcelID(s string) (ParcelID, error) {
	id := strings.ToUpper(strings.Join(strings.Fields(s), ""))
	if len(id) == 13 {
		// e.g. 75056000A0012 -> 75056000 0A 0012
		id = id[:8] + "0" + id[8:]
	}
	if len(id) != 14 {
		return "", fmt.Errorf("%w: %q has %d characters", ErrInvalidParcelID, s, len(id))
	}
	if !isAlnum(id[:5]) {
		return "", fmt.Errorf("%w: %q: bad commune code", ErrInvalidParcelID, s)
	}
	if !isDigits(id[5:8]) {
		return "", fmt.Errorf("%w: %q: bad prefix", ErrInvalidParcelID, s)
	}
	if !isAlnum(id[8:10]) {
		return "", fmt.Errorf("%w: %q: bad section", ErrInvalidParcelID, s)
	}
	if !isDigits(id[10:]) {
		return "", fmt.Errorf("%w: %q: bad number", ErrInvalidParcelID, s)
	}
	return ParcelID(id), nil
}

// Commune returns the 5-character INSEE code.
func (id ParcelID) Commune() string { return string(id[:5]) }

// Department returns the department code; overseas departments (97x) use three characters.
func (id ParcelID) Department() string {
	if strings.HasPrefix(string(id), "97") {
		return string(id[:3])
	}
	return string(id[:2])
}

func (id ParcelID) Prefix() string  { return string(id[5:8]) }
func (id ParcelID) Section() string { return string(id[8:10]) }
func (id ParcelID) Number() string  { return string(id[10:]) }

func (id ParcelID) String() string { return string(id) }

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func isAlnum(s string) bool {
	for _, r := range s {
		if (r < '0' || r > '9') && (r < 'A' || r > 'Z') {
			return false
		}
	}
	return true
}

// Parcel is one cadastral land unit as published in the commune GeoJSON.
type Parcel struct {
	ID         ParcelID
	Commune    string
	Section    string
	Number     string
	Contenance float64 // declared surface in m², 0 when unknown
	Geometry   orb.MultiPolygon
}

// Building is a municipal building footprint.
type Building struct {
	Type     string // "01" hard building, "02" light construction
	Geometry orb.MultiPolygon
}

// SurfaceRecord holds the built/unbuilt breakdown of one parcel.
type SurfaceRecord struct {
	ID            ParcelID
	TotalArea     float64
	BuiltArea     float64
	UnbuiltArea   float64
	OccupancyRate float64 // percent
}

// Package geometry provides the geographic primitives used by the query
// engine: points with a nearest-neighbor tolerance, circles defined by a
// radius in kilometers, and simple polygon rings.
package geometry

import (
	"errors"
	"fmt"
	"math"
)

// Geometry validation errors.
var (
	ErrLatitudeOutOfRange  = errors.New("latitude must be between -90 and 90")
	ErrLongitudeOutOfRange = errors.New("longitude must be between -180 and 180")
)

const (
	// EarthRadiusKM is the mean Earth radius used for great-circle distances.
	EarthRadiusKM = 6371.0

	// KMPerDegreeLat is the fixed latitude-to-kilometers conversion used for
	// bounding-box pre-filters and pixel-area estimates.
	KMPerDegreeLat = 111.32
)

// Point is a query location with a hard nearest-neighbor tolerance.
type Point struct {
	Lat          float64
	Lon          float64
	ToleranceDeg float64
}

// NewPoint validates and constructs a Point. Tolerance is a hard cutoff in
// degrees applied independently to each axis; zero means exact-cell only.
func NewPoint(lat, lon, toleranceDeg float64) (Point, error) {
	if err := checkCoordinates(lat, lon); err != nil {
		return Point{}, err
	}
	if toleranceDeg < 0 {
		return Point{}, fmt.Errorf("tolerance must be >= 0, got %g", toleranceDeg)
	}
	return Point{Lat: lat, Lon: lon, ToleranceDeg: toleranceDeg}, nil
}

// Circle is a query area defined by a center and a great-circle radius.
type Circle struct {
	Lat      float64
	Lon      float64
	RadiusKM float64
}

// NewCircle validates and constructs a Circle.
func NewCircle(lat, lon, radiusKM float64) (Circle, error) {
	if err := checkCoordinates(lat, lon); err != nil {
		return Circle{}, err
	}
	if radiusKM <= 0 {
		return Circle{}, fmt.Errorf("radius must be > 0 km, got %g", radiusKM)
	}
	return Circle{Lat: lat, Lon: lon, RadiusKM: radiusKM}, nil
}

// Bounds is a latitude/longitude bounding box.
type Bounds struct {
	MinLat float64 `json:"min_lat"`
	MaxLat float64 `json:"max_lat"`
	MinLon float64 `json:"min_lon"`
	MaxLon float64 `json:"max_lon"`
}

// Contains reports whether the point lies inside the box (inclusive).
func (b Bounds) Contains(lat, lon float64) bool {
	return lat >= b.MinLat && lat <= b.MaxLat && lon >= b.MinLon && lon <= b.MaxLon
}

// Bounds returns the rectangular pre-filter box for the circle: ±radius
// converted to degrees at 111.32 km/degree on both axes. The box is not
// longitude-corrected, which only makes it too generous (cos(lat) <= 1);
// the exact haversine mask applied afterwards is authoritative.
func (c Circle) Bounds() Bounds {
	deg := c.RadiusKM / KMPerDegreeLat
	return Bounds{
		MinLat: c.Lat - deg,
		MaxLat: c.Lat + deg,
		MinLon: c.Lon - deg,
		MaxLon: c.Lon + deg,
	}
}

// Haversine returns the great-circle distance in kilometers between two
// points given in decimal degrees.
func Haversine(lat1, lon1, lat2, lon2 float64) float64 {
	lat1Rad := lat1 * math.Pi / 180
	lat2Rad := lat2 * math.Pi / 180
	deltaLat := (lat2 - lat1) * math.Pi / 180
	deltaLon := (lon2 - lon1) * math.Pi / 180

	a := math.Sin(deltaLat/2)*math.Sin(deltaLat/2) +
		math.Cos(lat1Rad)*math.Cos(lat2Rad)*
			math.Sin(deltaLon/2)*math.Sin(deltaLon/2)

	return 2 * EarthRadiusKM * math.Asin(math.Sqrt(a))
}

func checkCoordinates(lat, lon float64) error {
	if lat < -90 || lat > 90 || math.IsNaN(lat) {
		return fmt.Errorf("%w: %g", ErrLatitudeOutOfRange, lat)
	}
	if lon < -180 || lon > 180 || math.IsNaN(lon) {
		return fmt.Errorf("%w: %g", ErrLongitudeOutOfRange, lon)
	}
	return nil
}

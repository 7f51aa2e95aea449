package geometry

import (
	"errors"
	"fmt"
	"math"
)

// Polygon validation errors.
var (
	ErrTooFewVertices  = errors.New("polygon requires at least 3 vertices")
	ErrSelfIntersecting = errors.New("polygon ring is self-intersecting")
)

// Vertex is a polygon vertex in (lon, lat) order, matching the GeoJSON
// coordinate convention used by the query payloads.
type Vertex struct {
	Lon float64
	Lat float64
}

// Polygon is a validated simple (non-self-intersecting) ring. The ring is
// stored open; the closing edge back to the first vertex is implicit.
type Polygon struct {
	vertices []Vertex
}

// NewPolygon validates and constructs a Polygon. A ring whose last vertex
// repeats the first is accepted and normalized to the open form; rings with
// fewer than 3 distinct vertices or crossing edges are rejected.
func NewPolygon(vertices []Vertex) (*Polygon, error) {
	ring := make([]Vertex, len(vertices))
	copy(ring, vertices)

	// Drop an explicit closing vertex so the ring is stored open.
	if len(ring) >= 2 && ring[0] == ring[len(ring)-1] {
		ring = ring[:len(ring)-1]
	}

	if len(ring) < 3 {
		return nil, fmt.Errorf("%w, got %d", ErrTooFewVertices, len(ring))
	}
	for _, v := range ring {
		if err := checkCoordinates(v.Lat, v.Lon); err != nil {
			return nil, err
		}
	}
	if selfIntersects(ring) {
		return nil, ErrSelfIntersecting
	}

	return &Polygon{vertices: ring}, nil
}

// Vertices returns the open ring. The returned slice must not be modified.
func (p *Polygon) Vertices() []Vertex {
	return p.vertices
}

// Bounds returns the polygon's bounding box.
func (p *Polygon) Bounds() Bounds {
	b := Bounds{
		MinLat: math.Inf(1), MaxLat: math.Inf(-1),
		MinLon: math.Inf(1), MaxLon: math.Inf(-1),
	}
	for _, v := range p.vertices {
		b.MinLat = math.Min(b.MinLat, v.Lat)
		b.MaxLat = math.Max(b.MaxLat, v.Lat)
		b.MinLon = math.Min(b.MinLon, v.Lon)
		b.MaxLon = math.Max(b.MaxLon, v.Lon)
	}
	return b
}

// Contains reports whether the point lies inside the ring, using the
// even-odd ray casting rule. Points exactly on an edge may fall on either
// side; grid-cell centroids are never exactly on provider polygon edges in
// practice, and the result is independent of vertex winding order.
func (p *Polygon) Contains(lat, lon float64) bool {
	inside := false
	n := len(p.vertices)
	for i, j := 0, n-1; i < n; j, i = i, i+1 {
		vi, vj := p.vertices[i], p.vertices[j]
		if (vi.Lat > lat) != (vj.Lat > lat) &&
			lon < (vj.Lon-vi.Lon)*(lat-vi.Lat)/(vj.Lat-vi.Lat)+vi.Lon {
			inside = !inside
		}
	}
	return inside
}

// AreaKM2 returns the geodesic polygon area in square kilometers. Vertices
// are projected to a Lambert cylindrical equal-area plane (x = R·λ,
// y = R·sin(φ)) before applying the shoelace formula, so the result is an
// area on the sphere rather than in raw degree coordinates.
func (p *Polygon) AreaKM2() float64 {
	n := len(p.vertices)
	xs := make([]float64, n)
	ys := make([]float64, n)
	for i, v := range p.vertices {
		xs[i] = EarthRadiusKM * v.Lon * math.Pi / 180
		ys[i] = EarthRadiusKM * math.Sin(v.Lat*math.Pi/180)
	}

	var sum float64
	for i := 0; i < n; i++ {
		j := (i + 1) % n
		sum += xs[i]*ys[j] - xs[j]*ys[i]
	}
	return math.Abs(sum) / 2
}

// selfIntersects checks every pair of non-adjacent edges for a proper
// crossing. O(n²) over the ring, which is fine for request-sized polygons.
func selfIntersects(ring []Vertex) bool {
	n := len(ring)
	for i := 0; i < n; i++ {
		a1 := ring[i]
		a2 := ring[(i+1)%n]
		for j := i + 1; j < n; j++ {
			// Skip adjacent edges (they share a vertex by construction).
			if j == i || (j+1)%n == i || (i+1)%n == j {
				continue
			}
			b1 := ring[j]
			b2 := ring[(j+1)%n]
			if segmentsCross(a1, a2, b1, b2) {
				return true
			}
		}
	}
	return false
}

func segmentsCross(p1, p2, p3, p4 Vertex) bool {
	d1 := orientation(p3, p4, p1)
	d2 := orientation(p3, p4, p2)
	d3 := orientation(p1, p2, p3)
	d4 := orientation(p1, p2, p4)
	return ((d1 > 0 && d2 < 0) || (d1 < 0 && d2 > 0)) &&
		((d3 > 0 && d4 < 0) || (d3 < 0 && d4 > 0))
}

func orientation(a, b, c Vertex) float64 {
	return (b.Lon-a.Lon)*(c.Lat-a.Lat) - (b.Lat-a.Lat)*(c.Lon-a.Lon)
}

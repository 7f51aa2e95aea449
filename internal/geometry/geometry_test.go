package geometry_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/climabr/climabr/internal/geometry"
)

func TestHaversine_SaoPauloToRio(t *testing.T) {
	// São Paulo to Rio de Janeiro is roughly 357 km.
	d := geometry.Haversine(-23.5505, -46.6333, -22.9068, -43.1729)
	assert.InDelta(t, 357.4, d, 2.0)
}

func TestHaversine_SamePoint(t *testing.T) {
	assert.Zero(t, geometry.Haversine(-15.78, -47.93, -15.78, -47.93))
}

func TestHaversine_Symmetric(t *testing.T) {
	d1 := geometry.Haversine(-3.1, -60.0, -9.97, -67.8)
	d2 := geometry.Haversine(-9.97, -67.8, -3.1, -60.0)
	assert.InDelta(t, d1, d2, 1e-9)
}

func TestNewPoint_Validation(t *testing.T) {
	_, err := geometry.NewPoint(-95, -46, 0.1)
	assert.ErrorIs(t, err, geometry.ErrLatitudeOutOfRange)

	_, err = geometry.NewPoint(-23, -200, 0.1)
	assert.ErrorIs(t, err, geometry.ErrLongitudeOutOfRange)

	_, err = geometry.NewPoint(-23, -46, -0.1)
	assert.Error(t, err)

	p, err := geometry.NewPoint(-23, -46, 0)
	require.NoError(t, err)
	assert.Zero(t, p.ToleranceDeg)
}

func TestNewCircle_Validation(t *testing.T) {
	_, err := geometry.NewCircle(-23, -46, 0)
	assert.Error(t, err)

	_, err = geometry.NewCircle(-23, -46, -5)
	assert.Error(t, err)

	c, err := geometry.NewCircle(-23, -46, 25)
	require.NoError(t, err)
	assert.Equal(t, 25.0, c.RadiusKM)
}

func TestCircleBounds_SupersetOfCircle(t *testing.T) {
	c, err := geometry.NewCircle(-23.5, -46.6, 50)
	require.NoError(t, err)
	b := c.Bounds()

	// Every point within the radius must fall inside the pre-filter box.
	for _, dir := range []struct{ dLat, dLon float64 }{
		{0.4, 0}, {-0.4, 0}, {0, 0.4}, {0, -0.4}, {0.3, 0.3},
	} {
		lat := c.Lat + dir.dLat
		lon := c.Lon + dir.dLon
		if geometry.Haversine(c.Lat, c.Lon, lat, lon) <= c.RadiusKM {
			assert.True(t, b.Contains(lat, lon), "point %g,%g inside circle but outside box", lat, lon)
		}
	}
}

func square(lon0, lat0, size float64) []geometry.Vertex {
	return []geometry.Vertex{
		{Lon: lon0, Lat: lat0},
		{Lon: lon0 + size, Lat: lat0},
		{Lon: lon0 + size, Lat: lat0 + size},
		{Lon: lon0, Lat: lat0 + size},
	}
}

func TestNewPolygon_AutoClose(t *testing.T) {
	open := square(-47, -16, 1)
	closed := append(append([]geometry.Vertex{}, open...), open[0])

	p1, err := geometry.NewPolygon(open)
	require.NoError(t, err)
	p2, err := geometry.NewPolygon(closed)
	require.NoError(t, err)

	assert.Equal(t, p1.Vertices(), p2.Vertices())
}

func TestNewPolygon_TooFewVertices(t *testing.T) {
	_, err := geometry.NewPolygon([]geometry.Vertex{{Lon: 0, Lat: 0}, {Lon: 1, Lat: 1}})
	assert.ErrorIs(t, err, geometry.ErrTooFewVertices)

	// A "triangle" that closes on itself has only 2 distinct vertices.
	_, err = geometry.NewPolygon([]geometry.Vertex{{Lon: 0, Lat: 0}, {Lon: 1, Lat: 1}, {Lon: 0, Lat: 0}})
	assert.ErrorIs(t, err, geometry.ErrTooFewVertices)
}

func TestNewPolygon_SelfIntersecting(t *testing.T) {
	// Bowtie: edges (0)-(1) and (2)-(3) cross.
	_, err := geometry.NewPolygon([]geometry.Vertex{
		{Lon: 0, Lat: 0},
		{Lon: 2, Lat: 2},
		{Lon: 2, Lat: 0},
		{Lon: 0, Lat: 2},
	})
	assert.ErrorIs(t, err, geometry.ErrSelfIntersecting)
}

func TestPolygonContains_WindingInvariant(t *testing.T) {
	ccw := square(-47, -16, 2)
	cw := []geometry.Vertex{ccw[3], ccw[2], ccw[1], ccw[0]}

	p1, err := geometry.NewPolygon(ccw)
	require.NoError(t, err)
	p2, err := geometry.NewPolygon(cw)
	require.NoError(t, err)

	points := []struct {
		lat, lon float64
		inside   bool
	}{
		{-15, -46, true},
		{-15.5, -45.5, true},
		{-13.9, -46, false},
		{-15, -44.9, false},
		{-20, -50, false},
	}
	for _, pt := range points {
		assert.Equal(t, pt.inside, p1.Contains(pt.lat, pt.lon), "ccw %g,%g", pt.lat, pt.lon)
		assert.Equal(t, p1.Contains(pt.lat, pt.lon), p2.Contains(pt.lat, pt.lon), "winding %g,%g", pt.lat, pt.lon)
	}
}

func TestPolygonAreaKM2_EquatorialDegreeSquare(t *testing.T) {
	// A 1°×1° square centered on the equator spans about 111.19 km on each
	// side in the equal-area projection, ~12,360 km².
	p, err := geometry.NewPolygon(square(-60, -0.5, 1))
	require.NoError(t, err)
	assert.InDelta(t, 12364, p.AreaKM2(), 150)
}

func TestPolygonAreaKM2_ShrinksWithLatitude(t *testing.T) {
	equatorial, err := geometry.NewPolygon(square(-60, -0.5, 1))
	require.NoError(t, err)
	southern, err := geometry.NewPolygon(square(-60, -31, 1))
	require.NoError(t, err)

	assert.Less(t, southern.AreaKM2(), equatorial.AreaKM2())
}

func TestPolygonBounds(t *testing.T) {
	p, err := geometry.NewPolygon([]geometry.Vertex{
		{Lon: -48, Lat: -17},
		{Lon: -46, Lat: -17},
		{Lon: -47, Lat: -15},
	})
	require.NoError(t, err)

	b := p.Bounds()
	assert.Equal(t, -17.0, b.MinLat)
	assert.Equal(t, -15.0, b.MaxLat)
	assert.Equal(t, -48.0, b.MinLon)
	assert.Equal(t, -46.0, b.MaxLon)
}

package query

import (
	"fmt"
	"math"
	"time"

	"github.com/climabr/climabr/internal/dataset"
	"github.com/climabr/climabr/internal/geometry"
)

// PointSeries is the time series at a single grid cell.
type PointSeries struct {
	Times  []time.Time
	Values []float64

	// CellLat/CellLon are the coordinates of the selected grid cell, which
	// generally differ from the requested location by up to the tolerance.
	CellLat float64
	CellLon float64
}

// Selection is a cropped sub-cube with cells outside the query geometry set
// to NaN. It owns its values; mutating them never touches the dataset.
type Selection struct {
	Times  []time.Time
	Lats   []float64
	Lons   []float64
	values []float64
}

// At returns the value at (time, lat, lon) indices within the selection.
func (s *Selection) At(t, i, j int) float64 {
	return s.values[(t*len(s.Lats)+i)*len(s.Lons)+j]
}

func (s *Selection) set(t, i, j int, v float64) {
	s.values[(t*len(s.Lats)+i)*len(s.Lons)+j] = v
}

// Normalize applies fn to every cell in place. fn receives the raw value
// and the cell's latitude, which per-pixel-area conversions depend on.
func (s *Selection) Normalize(fn func(value, lat float64) float64) {
	for t := range s.Times {
		for i, lat := range s.Lats {
			for j := range s.Lons {
				s.set(t, i, j, fn(s.At(t, i, j), lat))
			}
		}
	}
}

// ExtractPoint selects the time series of the grid cell nearest to the
// point, treating the tolerance as a hard per-axis cutoff: when no cell is
// within tolerance the lookup fails rather than silently returning the
// nearest cell anyway.
func ExtractPoint(ds *dataset.Dataset, pt geometry.Point, w TimeWindow) (*PointSeries, error) {
	lo, hi, err := timeIndexRange(ds, w)
	if err != nil {
		return nil, err
	}

	i := nearestIndex(ds.NumLats(), ds.Lat, pt.Lat)
	j := nearestIndex(ds.NumLons(), ds.Lon, pt.Lon)
	dLat := math.Abs(ds.Lat(i) - pt.Lat)
	dLon := math.Abs(ds.Lon(j) - pt.Lon)
	if dLat > pt.ToleranceDeg || dLon > pt.ToleranceDeg {
		return nil, Validationf("location",
			"no grid cell within %g° of (%g, %g); nearest cell is (%g, %g), off by (%.4g°, %.4g°)",
			pt.ToleranceDeg, pt.Lat, pt.Lon, ds.Lat(i), ds.Lon(j), dLat, dLon)
	}

	series := &PointSeries{
		Times:   make([]time.Time, 0, hi-lo),
		Values:  make([]float64, 0, hi-lo),
		CellLat: ds.Lat(i),
		CellLon: ds.Lon(j),
	}
	for t := lo; t < hi; t++ {
		series.Times = append(series.Times, ds.Time(t))
		series.Values = append(series.Values, ds.At(t, i, j))
	}
	return series, nil
}

// ExtractCircle crops the dataset to the circle's rectangular pre-filter
// box, then masks out every cell whose haversine distance from the center
// exceeds the radius.
func ExtractCircle(ds *dataset.Dataset, c geometry.Circle, w TimeWindow) (*Selection, error) {
	sel, err := crop(ds, c.Bounds(), w, fmt.Sprintf("circle of %g km around (%g, %g)", c.RadiusKM, c.Lat, c.Lon))
	if err != nil {
		return nil, err
	}

	kept := sel.mask(func(lat, lon float64) bool {
		return geometry.Haversine(c.Lat, c.Lon, lat, lon) <= c.RadiusKM
	})
	if kept == 0 {
		return nil, &EmptySelectionError{
			Reason: fmt.Sprintf("no grid cell within %g km of (%g, %g)", c.RadiusKM, c.Lat, c.Lon),
		}
	}
	return sel, nil
}

// ExtractPolygon crops the dataset to the polygon's bounding box, then
// masks out every cell whose centroid falls outside the ring.
func ExtractPolygon(ds *dataset.Dataset, p *geometry.Polygon, w TimeWindow) (*Selection, error) {
	sel, err := crop(ds, p.Bounds(), w, "polygon bounding box")
	if err != nil {
		return nil, err
	}

	kept := sel.mask(func(lat, lon float64) bool {
		return p.Contains(lat, lon)
	})
	if kept == 0 {
		return nil, &EmptySelectionError{Reason: "no grid cell centroid inside the polygon"}
	}
	return sel, nil
}

// crop copies the sub-cube covered by the bounding box and time window.
// Latitude axis direction is inspected here, once, so callers never carry
// per-source slice-ordering logic; an inverted slice silently producing an
// empty selection is exactly the failure mode this guards against.
func crop(ds *dataset.Dataset, b geometry.Bounds, w TimeWindow, what string) (*Selection, error) {
	tLo, tHi, err := timeIndexRange(ds, w)
	if err != nil {
		return nil, err
	}

	iLo, iHi, ok := axisRange(ds.NumLats(), ds.Lat, b.MinLat, b.MaxLat)
	if !ok {
		return nil, &EmptySelectionError{Reason: what + " covers no latitude rows"}
	}
	jLo, jHi, ok := axisRange(ds.NumLons(), ds.Lon, b.MinLon, b.MaxLon)
	if !ok {
		return nil, &EmptySelectionError{Reason: what + " covers no longitude columns"}
	}

	sel := &Selection{
		Times:  make([]time.Time, 0, tHi-tLo),
		Lats:   make([]float64, 0, iHi-iLo+1),
		Lons:   make([]float64, 0, jHi-jLo+1),
		values: make([]float64, (tHi-tLo)*(iHi-iLo+1)*(jHi-jLo+1)),
	}
	for t := tLo; t < tHi; t++ {
		sel.Times = append(sel.Times, ds.Time(t))
	}
	for i := iLo; i <= iHi; i++ {
		sel.Lats = append(sel.Lats, ds.Lat(i))
	}
	for j := jLo; j <= jHi; j++ {
		sel.Lons = append(sel.Lons, ds.Lon(j))
	}

	idx := 0
	for t := tLo; t < tHi; t++ {
		for i := iLo; i <= iHi; i++ {
			for j := jLo; j <= jHi; j++ {
				sel.values[idx] = ds.At(t, i, j)
				idx++
			}
		}
	}
	return sel, nil
}

// mask sets cells failing the predicate to NaN across all time steps and
// returns the number of cells kept.
func (s *Selection) mask(keep func(lat, lon float64) bool) int {
	kept := 0
	for i, lat := range s.Lats {
		for j, lon := range s.Lons {
			if keep(lat, lon) {
				kept++
				continue
			}
			for t := range s.Times {
				s.set(t, i, j, math.NaN())
			}
		}
	}
	return kept
}

// nearestIndex returns the index of the axis value closest to target. The
// axis is monotonic in either direction, so the minimum is unique up to
// ties, which resolve to the lower index.
func nearestIndex(n int, at func(int) float64, target float64) int {
	best := 0
	bestDist := math.Abs(at(0) - target)
	for i := 1; i < n; i++ {
		if d := math.Abs(at(i) - target); d < bestDist {
			best, bestDist = i, d
		}
	}
	return best
}

// axisRange returns the inclusive index range of axis values inside
// [min, max], for an axis that may run in either direction. Values inside
// the interval always form one contiguous block.
func axisRange(n int, at func(int) float64, min, max float64) (int, int, bool) {
	lo, hi := -1, -1
	for i := 0; i < n; i++ {
		v := at(i)
		if v >= min && v <= max {
			if lo == -1 {
				lo = i
			}
			hi = i
		}
	}
	if lo == -1 {
		return 0, 0, false
	}
	return lo, hi, true
}

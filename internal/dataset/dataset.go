// Package dataset provides the gridded time-series data model, the yearly
// archive codec, and the process-wide dataset registry.
package dataset

import (
	"errors"
	"fmt"
	"time"
)

// Dataset model errors.
var (
	ErrShapeMismatch    = errors.New("value count does not match axis shape")
	ErrEmptyAxis        = errors.New("dataset axis is empty")
	ErrNonMonotonicAxis = errors.New("dataset axis is not monotonic")
)

// Dataset is an immutable multi-year gridded time series indexed
// [time, lat, lon]. The latitude axis may be ascending or descending
// depending on the source; the longitude axis is always ascending. Values
// are stored in a single flat slice in row-major order. Once constructed a
// Dataset is never mutated; refreshes build a new instance and swap the
// registry pointer.
type Dataset struct {
	Variable     string
	Units        string
	Source       string
	PixelSizeDeg float64

	times  []time.Time
	lats   []float64
	lons   []float64
	values []float64
}

// New validates axes and shape and constructs a Dataset. The time axis must
// be strictly increasing with unique timestamps; latitude must be monotonic
// in either direction and longitude ascending.
func New(variable, units, source string, times []time.Time, lats, lons, values []float64) (*Dataset, error) {
	if len(times) == 0 || len(lats) == 0 || len(lons) == 0 {
		return nil, ErrEmptyAxis
	}
	if len(values) != len(times)*len(lats)*len(lons) {
		return nil, fmt.Errorf("%w: %d values for shape (%d, %d, %d)",
			ErrShapeMismatch, len(values), len(times), len(lats), len(lons))
	}
	for i := 1; i < len(times); i++ {
		if !times[i].After(times[i-1]) {
			return nil, fmt.Errorf("%w: time axis not strictly increasing at index %d", ErrNonMonotonicAxis, i)
		}
	}
	if len(lats) > 1 {
		descending := lats[1] < lats[0]
		for i := 1; i < len(lats); i++ {
			if descending && lats[i] >= lats[i-1] || !descending && lats[i] <= lats[i-1] {
				return nil, fmt.Errorf("%w: latitude at index %d", ErrNonMonotonicAxis, i)
			}
		}
	}
	for i := 1; i < len(lons); i++ {
		if lons[i] <= lons[i-1] {
			return nil, fmt.Errorf("%w: longitude at index %d", ErrNonMonotonicAxis, i)
		}
	}

	return &Dataset{
		Variable: variable,
		Units:    units,
		Source:   source,
		times:    times,
		lats:     lats,
		lons:     lons,
		values:   values,
	}, nil
}

// NumTimes returns the length of the time axis.
func (d *Dataset) NumTimes() int { return len(d.times) }

// NumLats returns the length of the latitude axis.
func (d *Dataset) NumLats() int { return len(d.lats) }

// NumLons returns the length of the longitude axis.
func (d *Dataset) NumLons() int { return len(d.lons) }

// Time returns the timestamp at index t.
func (d *Dataset) Time(t int) time.Time { return d.times[t] }

// Lat returns the latitude at row i.
func (d *Dataset) Lat(i int) float64 { return d.lats[i] }

// Lon returns the longitude at column j.
func (d *Dataset) Lon(j int) float64 { return d.lons[j] }

// At returns the value at (time, lat, lon) indices.
func (d *Dataset) At(t, i, j int) float64 {
	return d.values[(t*len(d.lats)+i)*len(d.lons)+j]
}

// LatDescending reports whether the latitude axis runs north to south.
func (d *Dataset) LatDescending() bool {
	return len(d.lats) > 1 && d.lats[1] < d.lats[0]
}

// TimeRange returns the first and last timestamps of the dataset.
func (d *Dataset) TimeRange() (time.Time, time.Time) {
	return d.times[0], d.times[len(d.times)-1]
}

// LatBounds returns the minimum and maximum latitude regardless of axis
// direction.
func (d *Dataset) LatBounds() (float64, float64) {
	lo, hi := d.lats[0], d.lats[len(d.lats)-1]
	if lo > hi {
		lo, hi = hi, lo
	}
	return lo, hi
}

// LonBounds returns the minimum and maximum longitude.
func (d *Dataset) LonBounds() (float64, float64) {
	return d.lons[0], d.lons[len(d.lons)-1]
}

package dataset

import (
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"sort"
	"time"
)

// Loader errors.
var (
	ErrNoArchives      = errors.New("no archive files found")
	ErrVariableMissing = errors.New("archive does not contain the declared variable")
	ErrAxisMismatch    = errors.New("archive spatial axes differ between years")
)

// LoadSource discovers every yearly archive for the source under dir,
// concatenates them along the time axis, de-duplicates and sorts
// timestamps, and builds the dataset. Archives are matched by the
// {source}_{year}.grid.zst naming convention.
func LoadSource(dir string, src Source) (*Dataset, error) {
	pattern := filepath.Join(dir, src.Category, src.Name+"_*"+ArchiveExt)
	paths, err := filepath.Glob(pattern)
	if err != nil {
		return nil, fmt.Errorf("glob archives: %w", err)
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoArchives, pattern)
	}
	sort.Strings(paths)

	var (
		first *Grid
		times []time.Time
		steps []timeStep
	)
	for _, path := range paths {
		g, err := ReadArchive(path)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", filepath.Base(path), err)
		}
		if g.Variable != src.Variable.String() {
			return nil, fmt.Errorf("%w: want %q, %s has %q",
				ErrVariableMissing, src.Variable, filepath.Base(path), g.Variable)
		}
		if first == nil {
			first = g
		} else if !axesEqual(first, g) {
			return nil, fmt.Errorf("%w: %s", ErrAxisMismatch, filepath.Base(path))
		}

		cells := len(g.Lats) * len(g.Lons)
		for i, t := range g.Times {
			steps = append(steps, timeStep{when: t, values: g.Values[i*cells : (i+1)*cells]})
		}
	}

	// Sort by timestamp and drop duplicates, keeping the first occurrence.
	sort.SliceStable(steps, func(a, b int) bool { return steps[a].when.Before(steps[b].when) })
	deduped := steps[:0]
	for _, s := range steps {
		if len(deduped) > 0 && s.when.Equal(deduped[len(deduped)-1].when) {
			continue
		}
		deduped = append(deduped, s)
	}

	cells := len(first.Lats) * len(first.Lons)
	values := make([]float64, 0, len(deduped)*cells)
	times = make([]time.Time, 0, len(deduped))
	for _, s := range deduped {
		times = append(times, s.when)
		values = append(values, s.values...)
	}

	ds, err := New(src.Variable.String(), first.Units, src.Name, times, first.Lats, first.Lons, values)
	if err != nil {
		return nil, err
	}
	ds.PixelSizeDeg = src.PixelSizeDeg
	return ds, nil
}

type timeStep struct {
	when   time.Time
	values []float64
}

func axesEqual(a, b *Grid) bool {
	if len(a.Lats) != len(b.Lats) || len(a.Lons) != len(b.Lons) {
		return false
	}
	const eps = 1e-9
	for i := range a.Lats {
		if math.Abs(a.Lats[i]-b.Lats[i]) > eps {
			return false
		}
	}
	for i := range a.Lons {
		if math.Abs(a.Lons[i]-b.Lons[i]) > eps {
			return false
		}
	}
	return true
}

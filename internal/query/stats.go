package query

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// statNames are the supported spatial reducers, reported in validation
// errors alongside the pctl_NN form.
var statNames = []string{"mean", "sum", "max", "min", "std", "median"}

// Statistic is a parsed spatial reducer.
type Statistic struct {
	name       string
	percentile float64
}

// String returns the wire name of the statistic.
func (s Statistic) String() string { return s.name }

// ParseStatistic parses a reducer name: one of mean, sum, max, min, std,
// median, or pctl_NN with NN in [0, 100].
func ParseStatistic(name string) (Statistic, error) {
	for _, known := range statNames {
		if name == known {
			return Statistic{name: name}, nil
		}
	}
	if nn, ok := strings.CutPrefix(name, "pctl_"); ok {
		p, err := strconv.ParseFloat(nn, 64)
		if err == nil && p >= 0 && p <= 100 {
			return Statistic{name: name, percentile: p}, nil
		}
	}
	return Statistic{}, Validationf("statistic",
		"unknown statistic %q (valid: %s, pctl_NN for NN in [0, 100])",
		name, strings.Join(statNames, ", "))
}

// TimeValue is one reduced scalar per timestamp.
type TimeValue struct {
	Date  string  `json:"date"`
	Value float64 `json:"value"`
}

// Reduce collapses the selection's two spatial dimensions independently for
// each timestamp. Masked and non-finite cells are excluded from every
// reducer; timestamps where the whole spatial selection is masked are
// omitted from the result rather than reported as null. Values are rounded
// to 2 decimals at this output boundary.
func Reduce(sel *Selection, stat Statistic) ([]TimeValue, error) {
	series := make([]TimeValue, 0, len(sel.Times))
	buf := make([]float64, 0, len(sel.Lats)*len(sel.Lons))

	for t, when := range sel.Times {
		buf = buf[:0]
		for i := range sel.Lats {
			for j := range sel.Lons {
				v := sel.At(t, i, j)
				if math.IsNaN(v) || math.IsInf(v, 0) {
					continue
				}
				buf = append(buf, v)
			}
		}
		if len(buf) == 0 {
			continue
		}

		v, err := reduceCells(buf, stat)
		if err != nil {
			return nil, &ComputeError{Op: "reduce " + stat.name, Err: err}
		}
		series = append(series, TimeValue{Date: when.UTC().Format(dateFormat), Value: round2(v)})
	}
	return series, nil
}

func reduceCells(cells []float64, stat Statistic) (float64, error) {
	switch stat.name {
	case "mean":
		return mean(cells), nil
	case "sum":
		var sum float64
		for _, v := range cells {
			sum += v
		}
		return sum, nil
	case "max":
		max := cells[0]
		for _, v := range cells[1:] {
			if v > max {
				max = v
			}
		}
		return max, nil
	case "min":
		min := cells[0]
		for _, v := range cells[1:] {
			if v < min {
				min = v
			}
		}
		return min, nil
	case "std":
		m := mean(cells)
		var sq float64
		for _, v := range cells {
			sq += (v - m) * (v - m)
		}
		return math.Sqrt(sq / float64(len(cells))), nil
	case "median":
		return quantile(cells, 50), nil
	default:
		if strings.HasPrefix(stat.name, "pctl_") {
			return quantile(cells, stat.percentile), nil
		}
		return 0, fmt.Errorf("unhandled statistic %q", stat.name)
	}
}

func mean(cells []float64) float64 {
	var sum float64
	for _, v := range cells {
		sum += v
	}
	return sum / float64(len(cells))
}

// quantile computes the p-th percentile with linear interpolation between
// closest ranks. cells is copied before sorting so selections are never
// reordered in place.
func quantile(cells []float64, p float64) float64 {
	sorted := make([]float64, len(cells))
	copy(sorted, cells)
	sort.Float64s(sorted)

	if len(sorted) == 1 {
		return sorted[0]
	}
	rank := p / 100 * float64(len(sorted)-1)
	lo := int(math.Floor(rank))
	hi := int(math.Ceil(rank))
	if lo == hi {
		return sorted[lo]
	}
	frac := rank - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}

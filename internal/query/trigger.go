package query

import (
	"math"
	"sort"
	"time"

	"github.com/climabr/climabr/internal/variable"
)

// TriggerSpec describes a threshold-exceedance query. ConsecutiveDays <= 1
// means every qualifying time step counts; N > 1 requires the step's date
// to belong to a run of at least N consecutive qualifying days, and is only
// honored for variables where sustained conditions are meaningful.
type TriggerSpec struct {
	Threshold       float64
	Direction       variable.Direction
	ConsecutiveDays int
}

// qualifies applies the threshold with full floating-point precision.
// Non-finite values never satisfy either direction.
func (s TriggerSpec) qualifies(v float64) bool {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return false
	}
	if s.Direction == variable.Below {
		return v < s.Threshold
	}
	return v > s.Threshold
}

// Exceedance is one qualifying time step of a point query.
type Exceedance struct {
	Date  string  `json:"date"`
	Value float64 `json:"value"`
}

// EvaluateSeries evaluates the trigger over a point time series, returning
// qualifying steps in time order with values rounded to 2 decimals at this
// output boundary.
func EvaluateSeries(times []time.Time, values []float64, spec TriggerSpec) []Exceedance {
	type hit struct {
		date  string
		value float64
	}
	var hits []hit
	qualifyingDates := make(map[string]bool)
	for k, v := range values {
		if !spec.qualifies(v) {
			continue
		}
		date := times[k].UTC().Format(dateFormat)
		hits = append(hits, hit{date: date, value: v})
		qualifyingDates[date] = true
	}

	keep := qualifyingDates
	if spec.ConsecutiveDays > 1 {
		keep = datesInRuns(qualifyingDates, spec.ConsecutiveDays)
	}

	exceedances := make([]Exceedance, 0, len(hits))
	for _, h := range hits {
		if keep[h.date] {
			exceedances = append(exceedances, Exceedance{Date: h.date, Value: round2(h.value)})
		}
	}
	return exceedances
}

// CellExceedance is one qualifying grid cell on a given date.
type CellExceedance struct {
	Lat   float64 `json:"lat"`
	Lon   float64 `json:"lon"`
	Value float64 `json:"value"`
}

// AreaExceedances groups area-query exceedances by calendar date: a single
// date may exceed at many grid cells.
type AreaExceedances struct {
	// Dates lists the distinct qualifying dates in order.
	Dates []string

	// ByDate maps each date to its qualifying cells.
	ByDate map[string][]CellExceedance
}

// NTriggerDates returns the number of distinct dates with at least one
// exceedance.
func (a *AreaExceedances) NTriggerDates() int { return len(a.Dates) }

// EvaluateArea evaluates the trigger over every cell of a masked selection.
// Masked (NaN) cells never qualify. Consecutive-day filtering does not
// apply to areas; it is a point-query concept.
func EvaluateArea(sel *Selection, spec TriggerSpec) *AreaExceedances {
	result := &AreaExceedances{ByDate: make(map[string][]CellExceedance)}
	for t, when := range sel.Times {
		date := when.UTC().Format(dateFormat)
		for i, lat := range sel.Lats {
			for j, lon := range sel.Lons {
				v := sel.At(t, i, j)
				if !spec.qualifies(v) {
					continue
				}
				result.ByDate[date] = append(result.ByDate[date], CellExceedance{
					Lat:   lat,
					Lon:   lon,
					Value: round2(v),
				})
			}
		}
	}

	result.Dates = make([]string, 0, len(result.ByDate))
	for date := range result.ByDate {
		result.Dates = append(result.Dates, date)
	}
	sort.Strings(result.Dates)
	return result
}

// datesInRuns keeps only the dates belonging to a run of at least minRun
// consecutive calendar days.
func datesInRuns(dates map[string]bool, minRun int) map[string]bool {
	ordered := make([]time.Time, 0, len(dates))
	for d := range dates {
		t, err := time.Parse(dateFormat, d)
		if err != nil {
			continue
		}
		ordered = append(ordered, t)
	}
	sort.Slice(ordered, func(a, b int) bool { return ordered[a].Before(ordered[b]) })

	keep := make(map[string]bool, len(ordered))
	runStart := 0
	for i := 0; i <= len(ordered); i++ {
		endOfRun := i == len(ordered) || (i > 0 && !ordered[i].Equal(ordered[i-1].AddDate(0, 0, 1)))
		if !endOfRun {
			continue
		}
		if i-runStart >= minRun {
			for k := runStart; k < i; k++ {
				keep[ordered[k].Format(dateFormat)] = true
			}
		}
		runStart = i
	}
	return keep
}

// round2 rounds a reported value to 2 decimal places. Only applied at
// output boundaries; comparisons upstream use full precision.
func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

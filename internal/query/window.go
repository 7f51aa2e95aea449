package query

import (
	"time"

	"github.com/climabr/climabr/internal/dataset"
)

// dateFormat is the wire format for calendar dates in payloads.
const dateFormat = "2006-01-02"

// TimeWindow is an inclusive calendar-date range. Sub-daily timestamps on
// the window's end date are included.
type TimeWindow struct {
	Start time.Time
	End   time.Time
}

// NewTimeWindow validates and constructs a TimeWindow from calendar dates.
func NewTimeWindow(start, end time.Time) (TimeWindow, error) {
	start = truncateToDay(start)
	end = truncateToDay(end)
	if end.Before(start) {
		return TimeWindow{}, Validationf("time_window", "start date %s is after end date %s",
			start.Format(dateFormat), end.Format(dateFormat))
	}
	return TimeWindow{Start: start, End: end}, nil
}

func truncateToDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// contains reports whether the timestamp falls on a date inside the window.
func (w TimeWindow) contains(t time.Time) bool {
	return !t.Before(w.Start) && t.Before(w.End.AddDate(0, 0, 1))
}

// timeIndexRange resolves the window to a half-open [lo, hi) index range on
// the dataset's time axis. A window that lies entirely outside the
// dataset's coverage is a validation failure naming both ranges; a window
// that overlaps coverage but lands in a gap is an empty selection.
func timeIndexRange(ds *dataset.Dataset, w TimeWindow) (int, int, error) {
	first, last := ds.TimeRange()
	if w.End.AddDate(0, 0, 1).Add(-time.Nanosecond).Before(first) || w.Start.After(last) {
		return 0, 0, Validationf("time_window",
			"requested range %s..%s is outside available range %s..%s",
			w.Start.Format(dateFormat), w.End.Format(dateFormat),
			first.Format(dateFormat), last.Format(dateFormat))
	}

	lo := 0
	for lo < ds.NumTimes() && ds.Time(lo).Before(w.Start) {
		lo++
	}
	hi := lo
	for hi < ds.NumTimes() && w.contains(ds.Time(hi)) {
		hi++
	}
	if lo == hi {
		return 0, 0, &EmptySelectionError{Reason: "no timestamps inside the requested window"}
	}
	return lo, hi, nil
}

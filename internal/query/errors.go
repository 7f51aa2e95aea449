// Package query implements the spatial query engine: point, circle and
// polygon extraction over loaded datasets, threshold-exceedance evaluation,
// and per-timestamp spatial statistics.
package query

import "fmt"

// ValidationError reports a malformed request: bad geometry, unknown
// statistic, out-of-range time window, or a tolerance-exceeded point
// lookup. It always names the offending value and, where applicable, the
// valid range or set.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + ": " + e.Message
}

// Validationf builds a ValidationError with a formatted message.
func Validationf(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// UnavailableError reports that the backing dataset has not been loaded.
// The request may be perfectly well-formed; the data simply isn't ready.
type UnavailableError struct {
	Category string
	Source   string
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("dataset %s/%s is not loaded", e.Category, e.Source)
}

// EmptySelectionError reports that a geometry and time window combination
// addressed zero grid cells. Raised explicitly so downstream code never
// mistakes an empty selection for "no exceedances".
type EmptySelectionError struct {
	Reason string
}

func (e *EmptySelectionError) Error() string {
	return "selection matched no grid cells: " + e.Reason
}

// ComputeError wraps an unexpected failure during array reduction.
type ComputeError struct {
	Op  string
	Err error
}

func (e *ComputeError) Error() string {
	return "compute failed in " + e.Op + ": " + e.Err.Error()
}

func (e *ComputeError) Unwrap() error { return e.Err }

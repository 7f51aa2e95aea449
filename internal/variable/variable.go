// Package variable defines the closed set of climate variables served by the
// platform. Each variable carries its own unit normalization, default
// trigger direction, and consecutive-days policy, so the query path never
// branches on raw source strings.
package variable

import (
	"errors"
	"fmt"
)

// ErrUnknownVariable is returned when parsing an unrecognized variable name.
var ErrUnknownVariable = errors.New("unknown variable")

// Variable identifies a climate variable.
type Variable int

const (
	Precipitation Variable = iota
	TemperatureMax
	TemperatureMin
	TemperatureMean
	WindGust
	Lightning
	NDVI
	Solar
)

// All lists every supported variable.
func All() []Variable {
	return []Variable{
		Precipitation,
		TemperatureMax,
		TemperatureMin,
		TemperatureMean,
		WindGust,
		Lightning,
		NDVI,
		Solar,
	}
}

var names = map[Variable]string{
	Precipitation:   "precipitation",
	TemperatureMax:  "temperature_max",
	TemperatureMin:  "temperature_min",
	TemperatureMean: "temperature_mean",
	WindGust:        "wind_gust",
	Lightning:       "lightning",
	NDVI:            "ndvi",
	Solar:           "solar",
}

// String returns the canonical lowercase name.
func (v Variable) String() string {
	if name, ok := names[v]; ok {
		return name
	}
	return fmt.Sprintf("variable(%d)", int(v))
}

// Parse maps a canonical name back to its Variable.
func Parse(name string) (Variable, error) {
	for v, n := range names {
		if n == name {
			return v, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownVariable, name)
}

// Direction is the threshold comparison direction for trigger queries.
type Direction int

const (
	Above Direction = iota
	Below
)

// String returns the wire name of the direction.
func (d Direction) String() string {
	if d == Below {
		return "below"
	}
	return "above"
}

// ParseDirection maps a wire name to a Direction.
func ParseDirection(name string) (Direction, error) {
	switch name {
	case "above":
		return Above, nil
	case "below":
		return Below, nil
	default:
		return 0, fmt.Errorf("invalid trigger direction %q (valid: above, below)", name)
	}
}

// DefaultDirection returns the trigger direction most requests mean for the
// variable: hazards trigger above threshold, drought indicators below.
func (v Variable) DefaultDirection() Direction {
	switch v {
	case TemperatureMin, NDVI:
		return Below
	default:
		return Above
	}
}

// SupportsConsecutiveDays reports whether the minimum-consecutive-days
// trigger filter is meaningful for the variable. Wind gusts are
// point-in-time events, not sustained conditions, so runs never apply;
// NDVI and solar exceedances are likewise evaluated per time step.
func (v Variable) SupportsConsecutiveDays() bool {
	switch v {
	case Precipitation, TemperatureMax, TemperatureMin, TemperatureMean, Lightning:
		return true
	default:
		return false
	}
}

// Units returns the unit label of normalized values.
func (v Variable) Units() string {
	switch v {
	case Precipitation:
		return "mm"
	case TemperatureMax, TemperatureMin, TemperatureMean:
		return "°C"
	case WindGust:
		return "km/h"
	case Lightning:
		return "flashes/km²/30min"
	case NDVI:
		return ""
	case Solar:
		return "kWh/m²/day"
	default:
		return ""
	}
}

// Normalize converts a raw archive value to the variable's reporting unit.
// lat is the latitude of the source grid row and pixelSizeDeg the dataset's
// native pixel size; both matter only for lightning flash counts, whose
// pixel area shrinks with latitude. NaN and Inf inputs propagate unchanged.
func (v Variable) Normalize(value, lat, pixelSizeDeg float64) float64 {
	switch v {
	case Lightning:
		return FlashDensity(value, lat, pixelSizeDeg)
	case WindGust:
		return MetersPerSecondToKMH(value)
	case Solar:
		return JoulesPerM2ToKWhDay(value)
	default:
		return value
	}
}

package dataset

import (
	"fmt"

	"github.com/climabr/climabr/internal/variable"
)

// Source describes one known (category, source) archive set.
type Source struct {
	// Category groups sources by variable family, e.g. "precipitation".
	Category string

	// Name is the provider identifier used in archive file names.
	Name string

	// Variable is the data variable the archives must contain.
	Variable variable.Variable

	// Default marks the source used when a query does not name one.
	Default bool

	// PixelSizeDeg is the native grid spacing, used for per-pixel area
	// normalization. Zero for variables that do not need it.
	PixelSizeDeg float64
}

// Catalog lists every archive set the registry attempts to load at warm-up.
func Catalog() []Source {
	return []Source{
		{Category: "precipitation", Name: "chirps", Variable: variable.Precipitation, Default: true},
		{Category: "precipitation", Name: "merge", Variable: variable.Precipitation},
		{Category: "temperature", Name: "era5land_tmax", Variable: variable.TemperatureMax, Default: true},
		{Category: "temperature", Name: "era5land_tmin", Variable: variable.TemperatureMin, Default: true},
		{Category: "temperature", Name: "era5land_tmean", Variable: variable.TemperatureMean, Default: true},
		{Category: "wind", Name: "era5_wind_gust", Variable: variable.WindGust, Default: true},
		{Category: "lightning", Name: "glm_fed", Variable: variable.Lightning, Default: true,
			PixelSizeDeg: variable.DefaultLightningPixelSizeDeg},
		{Category: "vegetation", Name: "modis_ndvi", Variable: variable.NDVI, Default: true},
		{Category: "radiation", Name: "power_solar", Variable: variable.Solar, Default: true},
	}
}

// Lookup resolves a variable and optional source name to a catalog entry.
// An empty source selects the variable's default source.
func Lookup(v variable.Variable, source string) (Source, error) {
	var candidates []string
	for _, s := range Catalog() {
		if s.Variable != v {
			continue
		}
		if source == "" && s.Default {
			return s, nil
		}
		if s.Name == source {
			return s, nil
		}
		candidates = append(candidates, s.Name)
	}
	if source == "" {
		return Source{}, fmt.Errorf("no default source for variable %s", v)
	}
	return Source{}, fmt.Errorf("unknown source %q for variable %s (valid: %v)", source, v, candidates)
}

package variable_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/climabr/climabr/internal/variable"
)

func TestParse_RoundTrip(t *testing.T) {
	for _, v := range variable.All() {
		parsed, err := variable.Parse(v.String())
		require.NoError(t, err)
		assert.Equal(t, v, parsed)
	}
}

func TestParse_Unknown(t *testing.T) {
	_, err := variable.Parse("humidity")
	assert.ErrorIs(t, err, variable.ErrUnknownVariable)
}

func TestParseDirection(t *testing.T) {
	above, err := variable.ParseDirection("above")
	require.NoError(t, err)
	assert.Equal(t, variable.Above, above)

	below, err := variable.ParseDirection("below")
	require.NoError(t, err)
	assert.Equal(t, variable.Below, below)

	_, err = variable.ParseDirection("sideways")
	assert.Error(t, err)
}

func TestDefaultDirection(t *testing.T) {
	assert.Equal(t, variable.Above, variable.Precipitation.DefaultDirection())
	assert.Equal(t, variable.Above, variable.WindGust.DefaultDirection())
	assert.Equal(t, variable.Below, variable.TemperatureMin.DefaultDirection())
	assert.Equal(t, variable.Below, variable.NDVI.DefaultDirection())
}

func TestSupportsConsecutiveDays(t *testing.T) {
	assert.True(t, variable.Precipitation.SupportsConsecutiveDays())
	assert.True(t, variable.TemperatureMax.SupportsConsecutiveDays())
	assert.True(t, variable.Lightning.SupportsConsecutiveDays())
	assert.False(t, variable.WindGust.SupportsConsecutiveDays(), "gusts are instantaneous events")
	assert.False(t, variable.Solar.SupportsConsecutiveDays())
}

func TestFlashDensity_EquatorScenario(t *testing.T) {
	// 10 flashes at the equator on the native GLM grid: pixel area is
	// (0.029069·111.32)² ≈ 10.47 km², so ≈0.96 flashes/km²/30min.
	got := variable.FlashDensity(10, 0, 0.029069)
	assert.InDelta(t, 0.96, got, 0.01)
}

func TestFlashDensity_HigherAtHigherLatitude(t *testing.T) {
	// Smaller pixels away from the equator mean higher density for the
	// same raw count.
	equator := variable.FlashDensity(10, 0, 0.029069)
	south := variable.FlashDensity(10, -30, 0.029069)
	assert.Greater(t, south, equator)
}

func TestFlashDensity_DefaultPixelSize(t *testing.T) {
	assert.Equal(t,
		variable.FlashDensity(5, -10, variable.DefaultLightningPixelSizeDeg),
		variable.FlashDensity(5, -10, 0),
	)
}

func TestWindConversion_RoundTrip(t *testing.T) {
	for _, ms := range []float64{0, 1.5, 12.345, 60} {
		kmh := variable.MetersPerSecondToKMH(ms)
		assert.InDelta(t, ms, variable.KMHToMetersPerSecond(kmh), 1e-12)
	}
	assert.InDelta(t, 36.0, variable.MetersPerSecondToKMH(10), 1e-12)
}

func TestJoulesPerM2ToKWhDay(t *testing.T) {
	// 18 MJ/m²/day is 5 kWh/m²/day.
	assert.InDelta(t, 5.0, variable.JoulesPerM2ToKWhDay(18_000_000), 1e-9)
}

func TestNormalize_PropagatesNonFinite(t *testing.T) {
	for _, v := range []variable.Variable{variable.WindGust, variable.Lightning, variable.Solar, variable.Precipitation} {
		assert.True(t, math.IsNaN(v.Normalize(math.NaN(), -10, 0)), "%s NaN", v)
		assert.True(t, math.IsInf(v.Normalize(math.Inf(1), -10, 0), 1), "%s Inf", v)
	}
}

func TestNormalize_IdentityForUnscaledVariables(t *testing.T) {
	assert.Equal(t, 42.5, variable.Precipitation.Normalize(42.5, -10, 0))
	assert.Equal(t, 0.63, variable.NDVI.Normalize(0.63, -10, 0))
	assert.Equal(t, 31.2, variable.TemperatureMax.Normalize(31.2, -10, 0))
}

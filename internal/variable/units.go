package variable

import (
	"math"

	"github.com/climabr/climabr/internal/geometry"
)

// DefaultLightningPixelSizeDeg is the native GOES GLM flash-extent-density
// grid spacing. Datasets on other grids carry their own pixel size.
const DefaultLightningPixelSizeDeg = 0.029069

// FlashDensity converts a raw per-pixel flash count to flashes/km²/30min.
// Pixel area depends on the row latitude: a degree of longitude spans
// 111.32·cos(lat) km, so the divisor differs per output row.
func FlashDensity(count, lat, pixelSizeDeg float64) float64 {
	if pixelSizeDeg <= 0 {
		pixelSizeDeg = DefaultLightningPixelSizeDeg
	}
	kmPerDegLon := geometry.KMPerDegreeLat * math.Cos(lat*math.Pi/180)
	pixelAreaKM2 := (pixelSizeDeg * geometry.KMPerDegreeLat) * (pixelSizeDeg * kmPerDegLon)
	return count / pixelAreaKM2
}

// MetersPerSecondToKMH converts a wind speed from m/s to km/h.
func MetersPerSecondToKMH(ms float64) float64 {
	return ms * 3.6
}

// KMHToMetersPerSecond is the inverse of MetersPerSecondToKMH.
func KMHToMetersPerSecond(kmh float64) float64 {
	return kmh / 3.6
}

// JoulesPerM2ToKWhDay converts a daily radiation sum from J/m² to
// kWh/m²/day.
func JoulesPerM2ToKWhDay(jm2 float64) float64 {
	return jm2 / 3_600_000
}

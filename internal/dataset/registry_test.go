package dataset_test

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/climabr/climabr/internal/dataset"
	"github.com/climabr/climabr/internal/variable"
)

// writeYear writes one yearly archive under dir following the catalog
// layout: {dir}/{category}/{source}_{year}.grid.zst.
func writeYear(t *testing.T, dir, category string, g *dataset.Grid, year int) {
	t.Helper()
	subdir := filepath.Join(dir, category)
	require.NoError(t, os.MkdirAll(subdir, 0o755))
	path := filepath.Join(subdir, g.Source+"_"+time.Date(year, 1, 1, 0, 0, 0, 0, time.UTC).Format("2006")+dataset.ArchiveExt)
	require.NoError(t, dataset.WriteArchive(path, g))
}

func chirpsSource() dataset.Source {
	return dataset.Source{Category: "precipitation", Name: "chirps", Variable: variable.Precipitation, Default: true}
}

func TestLoadSource_ConcatenatesYears(t *testing.T) {
	dir := t.TempDir()
	writeYear(t, dir, "precipitation", testGrid(2023, 3), 2023)
	writeYear(t, dir, "precipitation", testGrid(2024, 2), 2024)

	ds, err := dataset.LoadSource(dir, chirpsSource())
	require.NoError(t, err)

	assert.Equal(t, 5, ds.NumTimes())
	first, last := ds.TimeRange()
	assert.Equal(t, time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC), first)
	assert.Equal(t, time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), last)
	// Values from the 2023 grid come first.
	assert.Equal(t, 2023.0, ds.At(0, 0, 0))
	assert.Equal(t, 2024.0, ds.At(3, 0, 0))
}

func TestLoadSource_SortsAndDeduplicates(t *testing.T) {
	dir := t.TempDir()
	// Write years out of order, with 2024 repeating the last 2023 day.
	g23 := testGrid(2023, 3)
	g24 := testGrid(2024, 2)
	g24.Times = []time.Time{g23.Times[2], g23.Times[2].AddDate(0, 0, 1)}
	writeYear(t, dir, "precipitation", g24, 2024)
	writeYear(t, dir, "precipitation", g23, 2023)

	ds, err := dataset.LoadSource(dir, chirpsSource())
	require.NoError(t, err)

	assert.Equal(t, 4, ds.NumTimes())
	for i := 1; i < ds.NumTimes(); i++ {
		assert.True(t, ds.Time(i).After(ds.Time(i-1)), "time axis strictly increasing")
	}
}

func TestLoadSource_NoArchives(t *testing.T) {
	_, err := dataset.LoadSource(t.TempDir(), chirpsSource())
	assert.ErrorIs(t, err, dataset.ErrNoArchives)
}

func TestLoadSource_WrongVariable(t *testing.T) {
	dir := t.TempDir()
	g := testGrid(2023, 2)
	g.Variable = "temperature_max"
	writeYear(t, dir, "precipitation", g, 2023)

	_, err := dataset.LoadSource(dir, chirpsSource())
	assert.ErrorIs(t, err, dataset.ErrVariableMissing)
}

func TestLoadSource_AxisMismatch(t *testing.T) {
	dir := t.TempDir()
	writeYear(t, dir, "precipitation", testGrid(2023, 2), 2023)
	shifted := testGrid(2024, 2)
	shifted.Lats = []float64{-20, -19.75, -19.5}
	writeYear(t, dir, "precipitation", shifted, 2024)

	_, err := dataset.LoadSource(dir, chirpsSource())
	assert.ErrorIs(t, err, dataset.ErrAxisMismatch)
}

func newTestRegistry(dir string, sources ...dataset.Source) *dataset.Registry {
	return dataset.NewRegistry(dataset.RegistryConfig{
		Dir:     dir,
		Sources: sources,
		Logger:  zerolog.New(io.Discard),
	})
}

func TestRegistry_GetBeforeLoadReturnsNil(t *testing.T) {
	r := newTestRegistry(t.TempDir(), chirpsSource())
	assert.Nil(t, r.Get("precipitation", "chirps"))
}

func TestRegistry_LoadAllIsolatesFailures(t *testing.T) {
	dir := t.TempDir()
	writeYear(t, dir, "precipitation", testGrid(2023, 3), 2023)

	missing := dataset.Source{Category: "wind", Name: "era5_wind_gust", Variable: variable.WindGust, Default: true}
	r := newTestRegistry(dir, chirpsSource(), missing)

	require.NoError(t, r.LoadAll(context.Background()))

	assert.NotNil(t, r.Get("precipitation", "chirps"), "good source loads")
	assert.Nil(t, r.Get("wind", "era5_wind_gust"), "bad source is skipped, not fatal")

	statuses := r.Status()
	require.Len(t, statuses, 2)
	assert.True(t, statuses[0].Loaded)
	assert.False(t, statuses[1].Loaded)
}

func TestRegistry_ReloadSwapsDataset(t *testing.T) {
	dir := t.TempDir()
	writeYear(t, dir, "precipitation", testGrid(2023, 3), 2023)

	r := newTestRegistry(dir, chirpsSource())
	require.NoError(t, r.LoadAll(context.Background()))

	before := r.Get("precipitation", "chirps")
	require.NotNil(t, before)
	assert.Equal(t, 3, before.NumTimes())

	// A new year appears on disk; reload publishes a new object.
	writeYear(t, dir, "precipitation", testGrid(2024, 2), 2024)
	require.NoError(t, r.Reload("precipitation", "chirps"))

	after := r.Get("precipitation", "chirps")
	require.NotNil(t, after)
	assert.Equal(t, 5, after.NumTimes())
	assert.NotSame(t, before, after, "reload swaps the pointer, never mutates in place")
	assert.Equal(t, 3, before.NumTimes(), "old object stays valid for in-flight queries")
}

func TestRegistry_ReloadUnknownSource(t *testing.T) {
	r := newTestRegistry(t.TempDir(), chirpsSource())
	err := r.Reload("vegetation", "modis_ndvi")
	var unknown *dataset.UnknownSourceError
	assert.ErrorAs(t, err, &unknown)
}

func TestRegistry_ComputeGate(t *testing.T) {
	r := newTestRegistry(t.TempDir(), chirpsSource())

	ran := false
	err := r.Compute(context.Background(), func() error {
		ran = true
		return nil
	})
	require.NoError(t, err)
	assert.True(t, ran)

	// A canceled context fails acquisition instead of running.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = r.Compute(ctx, func() error {
		t.Fatal("must not run")
		return nil
	})
	assert.Error(t, err)
}

func TestRegistry_CloseIdempotent(t *testing.T) {
	dir := t.TempDir()
	writeYear(t, dir, "precipitation", testGrid(2023, 2), 2023)

	r := newTestRegistry(dir, chirpsSource())
	require.NoError(t, r.LoadAll(context.Background()))
	require.NotNil(t, r.Get("precipitation", "chirps"))

	r.Close()
	assert.Nil(t, r.Get("precipitation", "chirps"))
	r.Close() // safe to call again

	never := newTestRegistry(t.TempDir())
	never.Close() // safe even if never loaded
}

func TestCatalogLookup(t *testing.T) {
	src, err := dataset.Lookup(variable.Precipitation, "")
	require.NoError(t, err)
	assert.Equal(t, "chirps", src.Name)

	src, err = dataset.Lookup(variable.Precipitation, "merge")
	require.NoError(t, err)
	assert.Equal(t, "merge", src.Name)

	_, err = dataset.Lookup(variable.Precipitation, "imaginary")
	assert.Error(t, err)

	glm, err := dataset.Lookup(variable.Lightning, "")
	require.NoError(t, err)
	assert.Equal(t, variable.DefaultLightningPixelSizeDeg, glm.PixelSizeDeg)
}

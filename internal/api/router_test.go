package api_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/climabr/climabr/internal/api"
	"github.com/climabr/climabr/internal/api/models"
	"github.com/climabr/climabr/internal/dataset"
	"github.com/climabr/climabr/internal/query"
	"github.com/climabr/climabr/internal/variable"
)

// newTestServer builds a router over a registry with one loaded
// precipitation source and one configured-but-missing wind source.
func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	times := make([]time.Time, 5)
	for i := range times {
		times[i] = time.Date(2024, 1, i+1, 0, 0, 0, 0, time.UTC)
	}
	lats := []float64{-20, -19.75, -19.5}
	lons := []float64{-50, -49.75, -49.5}
	values := make([]float64, len(times)*len(lats)*len(lons))
	for i := range values {
		values[i] = float64(i % 40)
	}
	g := &dataset.Grid{
		Variable: "precipitation",
		Units:    "mm",
		Source:   "chirps",
		Times:    times,
		Lats:     lats,
		Lons:     lons,
		Values:   values,
	}

	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "precipitation"), 0o755))
	require.NoError(t, dataset.WriteArchive(filepath.Join(dir, "precipitation", "chirps_2024"+dataset.ArchiveExt), g))

	registry := dataset.NewRegistry(dataset.RegistryConfig{
		Dir: dir,
		Sources: []dataset.Source{
			{Category: "precipitation", Name: "chirps", Variable: variable.Precipitation, Default: true},
			{Category: "wind", Name: "era5_wind_gust", Variable: variable.WindGust, Default: true},
		},
		Logger: zerolog.New(io.Discard),
	})
	require.NoError(t, registry.LoadAll(context.Background()))
	t.Cleanup(registry.Close)

	svc := query.NewService(query.ServiceConfig{
		Registry: registry,
		Logger:   zerolog.New(io.Discard),
	})

	router := api.NewRouter(api.RouterConfig{
		Version:      "test",
		BuildTime:    "now",
		Logger:       zerolog.New(io.Discard),
		Registry:     registry,
		QueryService: svc,
	})
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv
}

func getJSON(t *testing.T, srv *httptest.Server, path string, out interface{}) *http.Response {
	t.Helper()
	resp, err := http.Get(srv.URL + path)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp
}

func TestRouter_Health(t *testing.T) {
	srv := newTestServer(t)

	var health models.Health
	resp := getJSON(t, srv, "/v1/ops/health", &health)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, models.HealthStatusOK, health.Status)
	assert.Equal(t, "test", health.Details["version"])
	assert.NotEmpty(t, resp.Header.Get("X-Request-Id"))
}

func TestRouter_StatusReportsUnloadedSource(t *testing.T) {
	srv := newTestServer(t)

	var status models.SystemStatus
	resp := getJSON(t, srv, "/v1/ops/status", &status)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, models.HealthStatusDegraded, status.Status)
	require.Len(t, status.Datasets, 2)
	assert.Equal(t, models.HealthStatusOK, status.Datasets[0].Status)
	assert.Equal(t, 5, status.Datasets[0].TimeSteps)
	assert.Equal(t, models.HealthStatusFail, status.Datasets[1].Status)
}

func TestRouter_PointHistory(t *testing.T) {
	srv := newTestServer(t)

	var result struct {
		Location struct {
			Lat float64 `json:"lat"`
			Lon float64 `json:"lon"`
		} `json:"location"`
		Units   string             `json:"units"`
		History map[string]float64 `json:"history"`
	}
	resp := getJSON(t, srv,
		"/v1/query/precipitation/point/history?lat=-19.75&lon=-49.75&tolerance=0.1&start_date=2024-01-01&end_date=2024-01-05",
		&result)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, -19.75, result.Location.Lat)
	assert.Equal(t, "mm", result.Units)
	assert.Len(t, result.History, 5)
}

func TestRouter_PointHistory_MissingParams(t *testing.T) {
	srv := newTestServer(t)

	var p models.Problem
	resp := getJSON(t, srv, "/v1/query/precipitation/point/history?lat=-19.75", &p)

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, models.ProblemTypeValidation, p.Type)
	assert.NotEmpty(t, p.Errors)
}

func TestRouter_UnknownVariableIs404(t *testing.T) {
	srv := newTestServer(t)

	var p models.Problem
	resp := getJSON(t, srv,
		"/v1/query/humidity/point/history?lat=-19.75&lon=-49.75&start_date=2024-01-01&end_date=2024-01-05", &p)

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, models.ProblemTypeNotFound, p.Type)
}

func TestRouter_UnloadedDatasetIs503(t *testing.T) {
	srv := newTestServer(t)

	var p models.Problem
	resp := getJSON(t, srv,
		"/v1/query/wind_gust/point/history?lat=-19.75&lon=-49.75&tolerance=0.1&start_date=2024-01-01&end_date=2024-01-05", &p)

	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, models.ProblemTypeUnavailable, p.Type)
}

func TestRouter_AreaTriggerOutsideGridIs404(t *testing.T) {
	srv := newTestServer(t)

	var p models.Problem
	resp := getJSON(t, srv,
		"/v1/query/precipitation/area/trigger?lat=10&lon=10&radius_km=25&threshold=5&start_date=2024-01-01&end_date=2024-01-05", &p)

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, models.ProblemTypeEmptySelection, p.Type)
}

func TestRouter_PolygonStatistics(t *testing.T) {
	srv := newTestServer(t)

	body := `{
		"vertices": [
			{"lon": -50.1, "lat": -20.1},
			{"lon": -49.4, "lat": -20.1},
			{"lon": -49.4, "lat": -19.4},
			{"lon": -50.1, "lat": -19.4}
		],
		"statistic": "mean",
		"start_date": "2024-01-01",
		"end_date": "2024-01-05"
	}`
	resp, err := http.Post(
		srv.URL+"/v1/query/precipitation/polygon/statistics",
		"application/json",
		strings.NewReader(body),
	)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var result struct {
		Metadata struct {
			Statistic      string  `json:"statistic"`
			PolygonAreaKM2 float64 `json:"polygon_area_km2"`
		} `json:"metadata"`
		TimeSeries []struct {
			Date  string  `json:"date"`
			Value float64 `json:"value"`
		} `json:"time_series"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&result))
	assert.Equal(t, "mean", result.Metadata.Statistic)
	assert.Positive(t, result.Metadata.PolygonAreaKM2)
	assert.Len(t, result.TimeSeries, 5)
}

func TestRouter_PolygonStatistics_ValidationErrors(t *testing.T) {
	srv := newTestServer(t)

	// Two vertices cannot close a ring.
	body := `{
		"vertices": [{"lon": -50, "lat": -20}, {"lon": -49, "lat": -20}],
		"statistic": "mean",
		"start_date": "2024-01-01",
		"end_date": "2024-01-05"
	}`
	resp, err := http.Post(
		srv.URL+"/v1/query/precipitation/polygon/statistics",
		"application/json",
		strings.NewReader(body),
	)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var p models.Problem
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&p))
	assert.Equal(t, models.ProblemTypeValidation, p.Type)
}

func TestRouter_PolygonStatistics_RequiresJSON(t *testing.T) {
	srv := newTestServer(t)

	resp, err := http.Post(
		srv.URL+"/v1/query/precipitation/polygon/statistics",
		"text/plain",
		strings.NewReader("not json"),
	)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusUnsupportedMediaType, resp.StatusCode)
}

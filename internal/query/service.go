package query

import (
	"context"
	"encoding/json"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/climabr/climabr/internal/dataset"
	"github.com/climabr/climabr/internal/derived"
	"github.com/climabr/climabr/internal/geometry"
	"github.com/climabr/climabr/internal/resilience"
	"github.com/climabr/climabr/internal/variable"
)

// ServiceConfig holds configuration for the query service.
type ServiceConfig struct {
	// Registry supplies loaded datasets and the shared compute gate.
	Registry *dataset.Registry

	// Logger for service operations.
	Logger zerolog.Logger

	// Derived persists polygon statistics when set. Optional.
	Derived derived.Repository

	// Retry is applied to derived-store writes. Zero value uses defaults.
	Retry resilience.RetryPolicy
}

// Service answers point, circle, and polygon queries against the registry's
// datasets. All heavy array work runs under the registry's compute gate so
// concurrent requests cannot stampede memory.
type Service struct {
	registry *dataset.Registry
	logger   zerolog.Logger
	derived  derived.Repository
	retry    resilience.RetryPolicy
}

// NewService creates a new query service.
func NewService(cfg ServiceConfig) *Service {
	retry := cfg.Retry
	if retry.MaxRetries == 0 {
		retry = resilience.DefaultRetryPolicy()
	}
	return &Service{
		registry: cfg.Registry,
		logger:   cfg.Logger,
		derived:  cfg.Derived,
		retry:    retry,
	}
}

// Location is a lat/lon pair in result payloads.
type Location struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// PointRequest addresses a single grid cell over a date range.
type PointRequest struct {
	Variable     variable.Variable
	Source       string // empty selects the variable's default source
	Lat          float64
	Lon          float64
	ToleranceDeg float64
	Start        time.Time
	End          time.Time
}

// PointHistory is the point-history payload.
type PointHistory struct {
	Location  Location           `json:"location"`
	StartDate string             `json:"start_date"`
	EndDate   string             `json:"end_date"`
	Units     string             `json:"units"`
	History   map[string]float64 `json:"history"`
}

// PointHistory returns the normalized value series at the grid cell nearest
// the requested location. Missing (non-finite) steps are omitted.
func (s *Service) PointHistory(ctx context.Context, req PointRequest) (*PointHistory, error) {
	ds, src, err := s.resolve(req.Variable, req.Source)
	if err != nil {
		return nil, err
	}
	pt, win, err := pointInputs(req)
	if err != nil {
		return nil, err
	}

	var series *PointSeries
	err = s.registry.Compute(ctx, func() error {
		var extractErr error
		series, extractErr = ExtractPoint(ds, pt, win)
		return extractErr
	})
	if err != nil {
		return nil, err
	}

	history := make(map[string]float64, len(series.Values))
	for k, v := range series.Values {
		normalized := req.Variable.Normalize(v, series.CellLat, ds.PixelSizeDeg)
		if math.IsNaN(normalized) || math.IsInf(normalized, 0) {
			continue
		}
		history[timeKey(series.Times[k])] = round2(normalized)
	}

	s.logQuery("point_history", req.Variable, src, len(history))
	return &PointHistory{
		Location:  Location{Lat: series.CellLat, Lon: series.CellLon},
		StartDate: win.Start.Format(dateFormat),
		EndDate:   win.End.Format(dateFormat),
		Units:     req.Variable.Units(),
		History:   history,
	}, nil
}

// PointTriggerRequest is a point threshold query.
type PointTriggerRequest struct {
	PointRequest
	Threshold       float64
	Direction       *variable.Direction // nil uses the variable's default
	ConsecutiveDays int
}

// PointTriggerResult is the point trigger payload.
type PointTriggerResult struct {
	Location     Location     `json:"location"`
	Trigger      float64      `json:"trigger"`
	TriggerType  string       `json:"trigger_type"`
	NExceedances int          `json:"n_exceedances"`
	Exceedances  []Exceedance `json:"exceedances"`
}

// PointTrigger evaluates a threshold over the point series. The
// consecutive-days filter only applies to variables that support it; for
// wind it is always off, because gusts are instantaneous events.
func (s *Service) PointTrigger(ctx context.Context, req PointTriggerRequest) (*PointTriggerResult, error) {
	ds, src, err := s.resolve(req.Variable, req.Source)
	if err != nil {
		return nil, err
	}
	pt, win, err := pointInputs(req.PointRequest)
	if err != nil {
		return nil, err
	}
	spec, err := s.triggerSpec(req.Variable, req.Threshold, req.Direction, req.ConsecutiveDays)
	if err != nil {
		return nil, err
	}

	var exceedances []Exceedance
	var cell Location
	err = s.registry.Compute(ctx, func() error {
		series, extractErr := ExtractPoint(ds, pt, win)
		if extractErr != nil {
			return extractErr
		}
		cell = Location{Lat: series.CellLat, Lon: series.CellLon}
		normalized := make([]float64, len(series.Values))
		for k, v := range series.Values {
			normalized[k] = req.Variable.Normalize(v, series.CellLat, ds.PixelSizeDeg)
		}
		exceedances = EvaluateSeries(series.Times, normalized, spec)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logQuery("point_trigger", req.Variable, src, len(exceedances))
	return &PointTriggerResult{
		Location:     cell,
		Trigger:      spec.Threshold,
		TriggerType:  spec.Direction.String(),
		NExceedances: len(exceedances),
		Exceedances:  exceedances,
	}, nil
}

// CircleTriggerRequest is an area threshold query over a circular region.
type CircleTriggerRequest struct {
	Variable  variable.Variable
	Source    string
	Lat       float64
	Lon       float64
	RadiusKM  float64
	Threshold float64
	Direction *variable.Direction
	Start     time.Time
	End       time.Time
}

// AreaTriggerResult is the area trigger payload, grouped by date because a
// single date may exceed at many grid cells.
type AreaTriggerResult struct {
	Center            Location                    `json:"center"`
	RadiusKM          float64                     `json:"radius_km"`
	Trigger           float64                     `json:"trigger"`
	TriggerType       string                      `json:"trigger_type"`
	NTriggerDates     int                         `json:"n_trigger_dates"`
	ExceedancesByDate map[string][]CellExceedance `json:"exceedances_by_date"`
}

// CircleTrigger evaluates a threshold over every grid cell within the
// radius of the center.
func (s *Service) CircleTrigger(ctx context.Context, req CircleTriggerRequest) (*AreaTriggerResult, error) {
	ds, src, err := s.resolve(req.Variable, req.Source)
	if err != nil {
		return nil, err
	}
	circle, err := geometry.NewCircle(req.Lat, req.Lon, req.RadiusKM)
	if err != nil {
		return nil, Validationf("circle", "%v", err)
	}
	win, err := NewTimeWindow(req.Start, req.End)
	if err != nil {
		return nil, err
	}
	spec, err := s.triggerSpec(req.Variable, req.Threshold, req.Direction, 0)
	if err != nil {
		return nil, err
	}

	var area *AreaExceedances
	err = s.registry.Compute(ctx, func() error {
		sel, extractErr := ExtractCircle(ds, circle, win)
		if extractErr != nil {
			return extractErr
		}
		sel.Normalize(func(v, lat float64) float64 {
			return req.Variable.Normalize(v, lat, ds.PixelSizeDeg)
		})
		area = EvaluateArea(sel, spec)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logQuery("circle_trigger", req.Variable, src, area.NTriggerDates())
	return &AreaTriggerResult{
		Center:            Location{Lat: circle.Lat, Lon: circle.Lon},
		RadiusKM:          circle.RadiusKM,
		Trigger:           spec.Threshold,
		TriggerType:       spec.Direction.String(),
		NTriggerDates:     area.NTriggerDates(),
		ExceedancesByDate: area.ByDate,
	}, nil
}

// PolygonStatsRequest reduces a polygon region to one scalar per timestamp.
type PolygonStatsRequest struct {
	Variable  variable.Variable
	Source    string
	Vertices  []geometry.Vertex
	Statistic string
	Start     time.Time
	End       time.Time
}

// PolygonMetadata describes the reduced region.
type PolygonMetadata struct {
	Variable       string          `json:"variable"`
	Source         string          `json:"source"`
	Statistic      string          `json:"statistic"`
	Units          string          `json:"units"`
	PolygonAreaKM2 float64         `json:"polygon_area_km2"`
	Bounds         geometry.Bounds `json:"bounds"`
	RecordID       string          `json:"record_id,omitempty"`
}

// PolygonStatsResult is the polygon statistics payload.
type PolygonStatsResult struct {
	Metadata   PolygonMetadata `json:"metadata"`
	TimeSeries []TimeValue     `json:"time_series"`
}

// PolygonStats reduces the polygon's sub-cube per timestamp with the
// requested statistic. When a derived-statistics repository is configured
// the result is persisted (best effort, behind the shared retry policy) and
// the record ID is included in the metadata.
func (s *Service) PolygonStats(ctx context.Context, req PolygonStatsRequest) (*PolygonStatsResult, error) {
	ds, src, err := s.resolve(req.Variable, req.Source)
	if err != nil {
		return nil, err
	}
	polygon, err := geometry.NewPolygon(req.Vertices)
	if err != nil {
		return nil, Validationf("polygon", "%v", err)
	}
	win, err := NewTimeWindow(req.Start, req.End)
	if err != nil {
		return nil, err
	}
	stat, err := ParseStatistic(req.Statistic)
	if err != nil {
		return nil, err
	}

	var series []TimeValue
	err = s.registry.Compute(ctx, func() error {
		sel, extractErr := ExtractPolygon(ds, polygon, win)
		if extractErr != nil {
			return extractErr
		}
		sel.Normalize(func(v, lat float64) float64 {
			return req.Variable.Normalize(v, lat, ds.PixelSizeDeg)
		})
		series, extractErr = Reduce(sel, stat)
		return extractErr
	})
	if err != nil {
		return nil, err
	}

	result := &PolygonStatsResult{
		Metadata: PolygonMetadata{
			Variable:       req.Variable.String(),
			Source:         src.Name,
			Statistic:      stat.String(),
			Units:          req.Variable.Units(),
			PolygonAreaKM2: round2(polygon.AreaKM2()),
			Bounds:         polygon.Bounds(),
		},
		TimeSeries: series,
	}

	if s.derived != nil {
		if id := s.persist(ctx, req, win, result); id != "" {
			result.Metadata.RecordID = id
		}
	}

	s.logQuery("polygon_stats", req.Variable, src, len(series))
	return result, nil
}

// persist saves the polygon result to the derived store. Failures are
// logged, never surfaced: persistence is an optimization, not part of the
// query contract.
func (s *Service) persist(ctx context.Context, req PolygonStatsRequest, win TimeWindow, result *PolygonStatsResult) string {
	payload, err := json.Marshal(result.TimeSeries)
	if err != nil {
		s.logger.Error().Err(err).Msg("encode derived time series")
		return ""
	}

	rec := &derived.Record{
		ID:             uuid.New(),
		Variable:       req.Variable.String(),
		Source:         result.Metadata.Source,
		Statistic:      result.Metadata.Statistic,
		StartDate:      win.Start.Format(dateFormat),
		EndDate:        win.End.Format(dateFormat),
		PolygonAreaKM2: result.Metadata.PolygonAreaKM2,
		TimeSeries:     payload,
		CreatedAt:      time.Now().UTC(),
	}

	if err := s.retry.Do(ctx, func() error { return s.derived.Save(ctx, rec) }); err != nil {
		s.logger.Warn().Err(err).Str("variable", rec.Variable).Msg("derived record not persisted")
		return ""
	}
	return rec.ID.String()
}

// resolve maps a variable and optional source to its catalog entry and
// loaded dataset.
func (s *Service) resolve(v variable.Variable, source string) (*dataset.Dataset, dataset.Source, error) {
	src, err := dataset.Lookup(v, source)
	if err != nil {
		return nil, dataset.Source{}, Validationf("source", "%v", err)
	}
	ds := s.registry.Get(src.Category, src.Name)
	if ds == nil {
		return nil, dataset.Source{}, &UnavailableError{Category: src.Category, Source: src.Name}
	}
	return ds, src, nil
}

// triggerSpec validates trigger inputs, applying the variable's default
// direction and its consecutive-days policy.
func (s *Service) triggerSpec(v variable.Variable, threshold float64, dir *variable.Direction, consecutiveDays int) (TriggerSpec, error) {
	if math.IsNaN(threshold) || math.IsInf(threshold, 0) {
		return TriggerSpec{}, Validationf("threshold", "threshold must be finite, got %v", threshold)
	}
	if consecutiveDays < 0 {
		return TriggerSpec{}, Validationf("consecutive_days", "must be >= 0, got %d", consecutiveDays)
	}

	direction := v.DefaultDirection()
	if dir != nil {
		direction = *dir
	}
	if !v.SupportsConsecutiveDays() {
		consecutiveDays = 0
	}
	return TriggerSpec{Threshold: threshold, Direction: direction, ConsecutiveDays: consecutiveDays}, nil
}

func pointInputs(req PointRequest) (geometry.Point, TimeWindow, error) {
	pt, err := geometry.NewPoint(req.Lat, req.Lon, req.ToleranceDeg)
	if err != nil {
		return geometry.Point{}, TimeWindow{}, Validationf("location", "%v", err)
	}
	win, err := NewTimeWindow(req.Start, req.End)
	if err != nil {
		return geometry.Point{}, TimeWindow{}, err
	}
	return pt, win, nil
}

// timeKey formats a timestamp for history payload keys: a bare date for
// daily cadence, date plus time for sub-daily steps.
func timeKey(t time.Time) string {
	t = t.UTC()
	if t.Hour() == 0 && t.Minute() == 0 && t.Second() == 0 {
		return t.Format(dateFormat)
	}
	return t.Format("2006-01-02 15:04")
}

func (s *Service) logQuery(kind string, v variable.Variable, src dataset.Source, results int) {
	s.logger.Debug().
		Str("query", kind).
		Str("variable", v.String()).
		Str("source", src.Name).
		Int("results", results).
		Msg("query served")
}

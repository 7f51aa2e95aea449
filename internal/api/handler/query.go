package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/climabr/climabr/internal/api/middleware"
	"github.com/climabr/climabr/internal/api/models"
	"github.com/climabr/climabr/internal/api/response"
	"github.com/climabr/climabr/internal/geometry"
	"github.com/climabr/climabr/internal/query"
	"github.com/climabr/climabr/internal/variable"
)

const dateLayout = "2006-01-02"

// QueryHandler serves dataset query endpoints.
type QueryHandler struct {
	service  *query.Service
	validate *validator.Validate
	metrics  *middleware.QueryMetrics
}

// NewQueryHandler creates a new QueryHandler. metrics may be nil.
func NewQueryHandler(service *query.Service, metrics *middleware.QueryMetrics) *QueryHandler {
	return &QueryHandler{
		service:  service,
		validate: validator.New(),
		metrics:  metrics,
	}
}

// PointHistory handles GET /v1/query/{variable}/point/history.
func (h *QueryHandler) PointHistory(w http.ResponseWriter, r *http.Request) {
	v, ok := h.parseVariable(w, r)
	if !ok {
		return
	}
	req, ok := h.parsePointParams(w, r, v)
	if !ok {
		return
	}

	start := time.Now()
	result, err := h.service.PointHistory(r.Context(), req)
	h.record("point_history", v, start, err)
	if err != nil {
		writeQueryError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, result)
}

// PointTrigger handles GET /v1/query/{variable}/point/trigger.
func (h *QueryHandler) PointTrigger(w http.ResponseWriter, r *http.Request) {
	v, ok := h.parseVariable(w, r)
	if !ok {
		return
	}
	base, ok := h.parsePointParams(w, r, v)
	if !ok {
		return
	}
	threshold, ok := h.requireFloat(w, r, "threshold")
	if !ok {
		return
	}
	direction, ok := h.parseDirection(w, r)
	if !ok {
		return
	}
	consecutive, ok := h.optionalInt(w, r, "consecutive_days")
	if !ok {
		return
	}

	start := time.Now()
	result, err := h.service.PointTrigger(r.Context(), query.PointTriggerRequest{
		PointRequest:    base,
		Threshold:       threshold,
		Direction:       direction,
		ConsecutiveDays: consecutive,
	})
	h.record("point_trigger", v, start, err)
	if err != nil {
		writeQueryError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, result)
}

// AreaTrigger handles GET /v1/query/{variable}/area/trigger.
func (h *QueryHandler) AreaTrigger(w http.ResponseWriter, r *http.Request) {
	v, ok := h.parseVariable(w, r)
	if !ok {
		return
	}
	lat, ok := h.requireFloat(w, r, "lat")
	if !ok {
		return
	}
	lon, ok := h.requireFloat(w, r, "lon")
	if !ok {
		return
	}
	radius, ok := h.requireFloat(w, r, "radius_km")
	if !ok {
		return
	}
	threshold, ok := h.requireFloat(w, r, "threshold")
	if !ok {
		return
	}
	direction, ok := h.parseDirection(w, r)
	if !ok {
		return
	}
	window, ok := h.parseWindow(w, r)
	if !ok {
		return
	}

	start := time.Now()
	result, err := h.service.CircleTrigger(r.Context(), query.CircleTriggerRequest{
		Variable:  v,
		Source:    r.URL.Query().Get("source"),
		Lat:       lat,
		Lon:       lon,
		RadiusKM:  radius,
		Threshold: threshold,
		Direction: direction,
		Start:     window[0],
		End:       window[1],
	})
	h.record("area_trigger", v, start, err)
	if err != nil {
		writeQueryError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, result)
}

// PolygonStatistics handles POST /v1/query/{variable}/polygon/statistics.
func (h *QueryHandler) PolygonStatistics(w http.ResponseWriter, r *http.Request) {
	v, ok := h.parseVariable(w, r)
	if !ok {
		return
	}

	var body models.PolygonStatisticsRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		response.BadRequest(w, r, "invalid JSON body: "+err.Error(), nil)
		return
	}
	if err := h.validate.Struct(body); err != nil {
		response.BadRequest(w, r, "invalid request", validationErrors(err))
		return
	}

	startDate, _ := time.Parse(dateLayout, body.StartDate)
	endDate, _ := time.Parse(dateLayout, body.EndDate)

	vertices := make([]geometry.Vertex, len(body.Vertices))
	for i, vert := range body.Vertices {
		vertices[i] = geometry.Vertex{Lon: vert.Lon, Lat: vert.Lat}
	}

	start := time.Now()
	result, err := h.service.PolygonStats(r.Context(), query.PolygonStatsRequest{
		Variable:  v,
		Source:    body.Source,
		Vertices:  vertices,
		Statistic: body.Statistic,
		Start:     startDate,
		End:       endDate,
	})
	h.record("polygon_stats", v, start, err)
	if err != nil {
		writeQueryError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, result)
}

func (h *QueryHandler) parseVariable(w http.ResponseWriter, r *http.Request) (variable.Variable, bool) {
	name := chi.URLParam(r, "variable")
	v, err := variable.Parse(name)
	if err != nil {
		response.NotFound(w, r, fmt.Sprintf("unknown variable %q", name))
		return 0, false
	}
	return v, true
}

func (h *QueryHandler) parsePointParams(w http.ResponseWriter, r *http.Request, v variable.Variable) (query.PointRequest, bool) {
	lat, ok := h.requireFloat(w, r, "lat")
	if !ok {
		return query.PointRequest{}, false
	}
	lon, ok := h.requireFloat(w, r, "lon")
	if !ok {
		return query.PointRequest{}, false
	}
	window, ok := h.parseWindow(w, r)
	if !ok {
		return query.PointRequest{}, false
	}

	tolerance := 0.0
	if raw := r.URL.Query().Get("tolerance"); raw != "" {
		var err error
		tolerance, err = strconv.ParseFloat(raw, 64)
		if err != nil {
			response.BadRequest(w, r, "invalid query parameters", []models.FieldError{
				{Field: "tolerance", Message: "must be a number"},
			})
			return query.PointRequest{}, false
		}
	}

	return query.PointRequest{
		Variable:     v,
		Source:       r.URL.Query().Get("source"),
		Lat:          lat,
		Lon:          lon,
		ToleranceDeg: tolerance,
		Start:        window[0],
		End:          window[1],
	}, true
}

func (h *QueryHandler) parseWindow(w http.ResponseWriter, r *http.Request) ([2]time.Time, bool) {
	var window [2]time.Time
	var fieldErrs []models.FieldError
	for i, name := range []string{"start_date", "end_date"} {
		raw := r.URL.Query().Get(name)
		if raw == "" {
			fieldErrs = append(fieldErrs, models.FieldError{Field: name, Message: "required", Code: "REQUIRED"})
			continue
		}
		t, err := time.Parse(dateLayout, raw)
		if err != nil {
			fieldErrs = append(fieldErrs, models.FieldError{Field: name, Message: "must be YYYY-MM-DD"})
			continue
		}
		window[i] = t
	}
	if len(fieldErrs) > 0 {
		response.BadRequest(w, r, "invalid query parameters", fieldErrs)
		return window, false
	}
	return window, true
}

func (h *QueryHandler) requireFloat(w http.ResponseWriter, r *http.Request, name string) (float64, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		response.BadRequest(w, r, "invalid query parameters", []models.FieldError{
			{Field: name, Message: "required", Code: "REQUIRED"},
		})
		return 0, false
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		response.BadRequest(w, r, "invalid query parameters", []models.FieldError{
			{Field: name, Message: "must be a number"},
		})
		return 0, false
	}
	return f, true
}

func (h *QueryHandler) optionalInt(w http.ResponseWriter, r *http.Request, name string) (int, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		response.BadRequest(w, r, "invalid query parameters", []models.FieldError{
			{Field: name, Message: "must be an integer"},
		})
		return 0, false
	}
	return n, true
}

func (h *QueryHandler) parseDirection(w http.ResponseWriter, r *http.Request) (*variable.Direction, bool) {
	raw := r.URL.Query().Get("direction")
	if raw == "" {
		return nil, true
	}
	d, err := variable.ParseDirection(raw)
	if err != nil {
		response.BadRequest(w, r, "invalid query parameters", []models.FieldError{
			{Field: "direction", Message: "must be above or below"},
		})
		return nil, false
	}
	return &d, true
}

func (h *QueryHandler) record(kind string, v variable.Variable, start time.Time, err error) {
	if h.metrics == nil {
		return
	}
	h.metrics.RecordQuery(kind, v.String(), time.Since(start), err)
}

// writeQueryError maps the query package's error taxonomy onto problem
// responses: validation failures are 400, an unloaded dataset is 503, a
// geometry covering no grid cell is 404, everything else is 500.
func writeQueryError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *query.ValidationError
	if errors.As(err, &verr) {
		response.BadRequest(w, r, verr.Error(), []models.FieldError{
			{Field: verr.Field, Message: verr.Message},
		})
		return
	}

	var unavailable *query.UnavailableError
	if errors.As(err, &unavailable) {
		response.ServiceUnavailable(w, r, unavailable.Error())
		return
	}

	var empty *query.EmptySelectionError
	if errors.As(err, &empty) {
		response.EmptySelection(w, r, empty.Error())
		return
	}

	response.InternalError(w, r, "query failed")
}

// validationErrors flattens validator.ValidationErrors into field errors.
func validationErrors(err error) []models.FieldError {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []models.FieldError{{Field: "body", Message: err.Error()}}
	}
	out := make([]models.FieldError, 0, len(verrs))
	for _, fe := range verrs {
		out = append(out, models.FieldError{
			Field:   fe.Field(),
			Message: fmt.Sprintf("failed %s validation", fe.Tag()),
		})
	}
	return out
}

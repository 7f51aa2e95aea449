package models

// Point-based queries arrive as GET query parameters and are parsed by the
// handler; only the polygon statistics operation carries a JSON body.

// Vertex is one polygon corner in GeoJSON-style lon/lat order.
type Vertex struct {
	Lon float64 `json:"lon" validate:"gte=-180,lte=180"`
	Lat float64 `json:"lat" validate:"gte=-90,lte=90"`
}

// PolygonStatisticsRequest is the POST body for polygon statistics.
type PolygonStatisticsRequest struct {
	// Vertices is the polygon ring. Closing vertex is optional.
	Vertices []Vertex `json:"vertices" validate:"required,min=3,dive"`

	// Statistic is the spatial reducer: mean, sum, max, min, std, median,
	// or pctl_NN.
	Statistic string `json:"statistic" validate:"required"`

	// StartDate and EndDate bound the window, inclusive, as YYYY-MM-DD.
	StartDate string `json:"start_date" validate:"required,datetime=2006-01-02"`
	EndDate   string `json:"end_date" validate:"required,datetime=2006-01-02"`

	// Source selects a non-default dataset for the variable. Optional.
	Source string `json:"source,omitempty"`
}

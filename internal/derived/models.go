// Package derived persists computed area statistics so repeated polygon
// queries over the same region can be served from history instead of
// recomputed from the raster archives.
package derived

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("derived record not found")

// Record is one persisted polygon-statistics result.
type Record struct {
	ID             uuid.UUID
	Variable       string
	Source         string
	Statistic      string
	StartDate      string
	EndDate        string
	PolygonAreaKM2 float64

	// TimeSeries is the reduced {date, value} series as JSON.
	TimeSeries json.RawMessage

	CreatedAt time.Time
}

package derived_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/climabr/climabr/internal/derived"
)

func record(variable string, createdAt time.Time) *derived.Record {
	return &derived.Record{
		ID:             uuid.New(),
		Variable:       variable,
		Source:         "chirps",
		Statistic:      "mean",
		StartDate:      "2024-01-01",
		EndDate:        "2024-01-31",
		PolygonAreaKM2: 1234.56,
		TimeSeries:     json.RawMessage(`[{"date":"2024-01-01","value":4.2}]`),
		CreatedAt:      createdAt,
	}
}

func TestInMemoryRepository_SaveAndGet(t *testing.T) {
	repo := derived.NewInMemoryRepository()
	ctx := context.Background()

	rec := record("precipitation", time.Now())
	require.NoError(t, repo.Save(ctx, rec))

	got, err := repo.Get(ctx, rec.ID.String())
	require.NoError(t, err)
	assert.Equal(t, rec, got)

	_, err = repo.Get(ctx, uuid.NewString())
	assert.ErrorIs(t, err, derived.ErrNotFound)
}

func TestInMemoryRepository_ListByVariable(t *testing.T) {
	repo := derived.NewInMemoryRepository()
	ctx := context.Background()
	base := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	oldest := record("precipitation", base)
	newest := record("precipitation", base.Add(time.Hour))
	other := record("wind_gust", base)
	require.NoError(t, repo.Save(ctx, oldest))
	require.NoError(t, repo.Save(ctx, newest))
	require.NoError(t, repo.Save(ctx, other))

	records, err := repo.ListByVariable(ctx, "precipitation", 10)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, newest.ID, records[0].ID, "newest first")

	limited, err := repo.ListByVariable(ctx, "precipitation", 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

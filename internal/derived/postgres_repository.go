package derived

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresRepository is a PostgreSQL implementation of Repository.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a new PostgreSQL derived-statistics repository.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

// Save persists a record.
func (r *PostgresRepository) Save(ctx context.Context, rec *Record) error {
	query := `
		INSERT INTO derived_statistics
			(id, variable, source, statistic, start_date, end_date, polygon_area_km2, time_series, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err := r.pool.Exec(ctx, query,
		rec.ID,
		rec.Variable,
		rec.Source,
		rec.Statistic,
		rec.StartDate,
		rec.EndDate,
		rec.PolygonAreaKM2,
		rec.TimeSeries,
		rec.CreatedAt,
	)
	return err
}

// Get retrieves a record by ID.
func (r *PostgresRepository) Get(ctx context.Context, id string) (*Record, error) {
	query := `
		SELECT id, variable, source, statistic, start_date, end_date, polygon_area_km2, time_series, created_at
		FROM derived_statistics
		WHERE id = $1
	`

	var rec Record
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&rec.ID,
		&rec.Variable,
		&rec.Source,
		&rec.Statistic,
		&rec.StartDate,
		&rec.EndDate,
		&rec.PolygonAreaKM2,
		&rec.TimeSeries,
		&rec.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &rec, nil
}

// ListByVariable returns the most recent records for a variable.
func (r *PostgresRepository) ListByVariable(ctx context.Context, variable string, limit int) ([]*Record, error) {
	query := `
		SELECT id, variable, source, statistic, start_date, end_date, polygon_area_km2, time_series, created_at
		FROM derived_statistics
		WHERE variable = $1
		ORDER BY created_at DESC
		LIMIT $2
	`

	rows, err := r.pool.Query(ctx, query, variable, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*Record
	for rows.Next() {
		var rec Record
		err := rows.Scan(
			&rec.ID,
			&rec.Variable,
			&rec.Source,
			&rec.Statistic,
			&rec.StartDate,
			&rec.EndDate,
			&rec.PolygonAreaKM2,
			&rec.TimeSeries,
			&rec.CreatedAt,
		)
		if err != nil {
			return nil, err
		}
		records = append(records, &rec)
	}
	return records, rows.Err()
}

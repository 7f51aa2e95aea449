package derived

import "context"

// Repository stores and retrieves derived statistics records.
type Repository interface {
	// Save persists a record. The record's ID must be set by the caller.
	Save(ctx context.Context, rec *Record) error

	// Get retrieves a record by ID, or ErrNotFound.
	Get(ctx context.Context, id string) (*Record, error)

	// ListByVariable returns the most recent records for a variable,
	// newest first, up to limit.
	ListByVariable(ctx context.Context, variable string, limit int) ([]*Record, error)
}

package identify

import "context"

// Store is the persistence gateway for identification records. The concrete
// implementation lives in the datastore package; the service only depends on
// this interface so the storage backend stays swappable.
type Store interface {
	// InsertBatch writes all records atomically: either every record
	// persists or none do.
	InsertBatch(ctx context.Context, records []*Record) error

	// Get fetches a record by its public ID. A missing record surfaces as
	// a not-found categorized error.
	Get(ctx context.Context, id string) (*Record, error)

	// ListByStatus returns up to limit records with the given status,
	// newest first.
	ListByStatus(ctx context.Context, status Status, limit int) ([]*Record, error)

	// UpdateReview transitions a record from pending to the given terminal
	// status, recording the reviewer. The transition is atomic: if the
	// record is not pending at commit time the store must return a
	// conflict categorized error and write nothing.
	UpdateReview(ctx context.Context, id string, status Status, reviewerID string, notes *string) (*Record, error)
}

package scan

import "context"

// Repository is the narrow CRUD surface of the external record store for scans.
// Every call is keyed by an explicit user id; implementations reject an empty
// one with shared.ErrMissingUserID.
type Repository interface {
	// Insert persists a new scan and returns it with its assigned id.
	Insert(ctx context.Context, scan NewScan) (Record, error)

	// ListByUser returns all scans of userID ordered newest-first.
	ListByUser(ctx context.Context, userID string) ([]Record, error)

	// Delete removes a single scan owned by userID.
	Delete(ctx context.Context, userID string, id int64) error

	// DeleteAllByUser removes the whole scan history of userID.
	DeleteAllByUser(ctx context.Context, userID string) error
}

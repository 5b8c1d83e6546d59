package visit

import (
	"context"

	"github.com/google/uuid"
)

// Ledger is the append-only store of finalized visits.
type Ledger interface {
	// Append inserts the record and sets CreatedAt from the store. Appending
	// an id that is already stored succeeds and returns the stored CreatedAt.
	Append(ctx context.Context, r *Record) error
	// ListByUser returns the user's records newest first and the total count.
	ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*Record, int, error)
}

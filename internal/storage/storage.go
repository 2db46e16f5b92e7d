package storage

import (
	"context"
	"time"
)

// SeenStore records which item ids have already been processed and when.
// It is read once when opened and written once by Save.
type SeenStore interface {
	Has(id string) bool
	Mark(id string, at time.Time)
	Len() int
	// Save drops entries older than the retention window and persists the rest.
	Save(ctx context.Context) error
	Close() error
}

// Package persist defines the durable storage contract for order snapshots.
package persist

import (
	"context"

	"github.com/coachpo/orderdesk/internal/model"
)

// Repository stores and restores the complete order snapshot. Implementations
// replace the stored state wholesale on every write; the in-memory store is
// the source of truth and storage only mirrors it.
type Repository interface {
	// WriteSnapshot atomically replaces the stored snapshot.
	WriteSnapshot(ctx context.Context, orders []model.Order) error
	// ReadSnapshot loads the last stored snapshot. A missing snapshot is not
	// an error and yields an empty slice.
	ReadSnapshot(ctx context.Context) ([]model.Order, error)
	// Close releases storage resources.
	Close()
}

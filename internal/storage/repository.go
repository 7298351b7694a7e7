package storage

import (
	"context"

	"triagefm/internal/domain"
)

// QueueStore defines the per-user queue operations.
// Every operation is scoped to a single userID; no call can observe or modify
// another user's queue. Implementations return *domain.Error with
// domain.KindStore for unexpected persistence failures.
type QueueStore interface {
	// Append adds item to the end of the user's queue, creating the queue if
	// needed, and returns the new queue length.
	Append(ctx context.Context, userID int64, item domain.ContentItem) (int, error)

	// List returns a snapshot of the user's queue in insertion order.
	// A user without a queue gets an empty slice.
	List(ctx context.Context, userID int64) ([]domain.ContentItem, error)

	// Clear removes every item of the user's queue. Clearing an empty or
	// missing queue is not an error.
	Clear(ctx context.Context, userID int64) error

	// Size returns the number of queued items, 0 if there is no queue.
	Size(ctx context.Context, userID int64) (int, error)

	// Close gracefully shuts down the repository connection.
	Close() error
}

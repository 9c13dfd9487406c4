package calendar

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type Repository interface {
	// Upsert inserts the event or replaces an existing one by id.
	Upsert(ctx context.Context, e *BusyEvent) error
	GetByID(ctx context.Context, id uuid.UUID) (*BusyEvent, error)
	Delete(ctx context.Context, id uuid.UUID) error
	ListByOwner(ctx context.Context, ownerID uuid.UUID, from, to time.Time, limit, offset int) ([]*BusyEvent, int, error)
	// ListBlocking returns the blocking events intersecting [from, to),
	// unpaginated, for the overlay.
	ListBlocking(ctx context.Context, ownerID uuid.UUID, from, to time.Time) ([]*BusyEvent, error)
}

package slot

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Filters narrows slot listings.
type Filters struct {
	ServiceID *uuid.UUID
	Status    *Status
}

type Repository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*Slot, error)
	ListByOwner(ctx context.Context, ownerID uuid.UUID, from, to time.Time, f Filters, limit, offset int) ([]*Slot, int, error)
	ListByWindow(ctx context.Context, windowID uuid.UUID) ([]*Slot, error)
	// ListForOverlay returns every non-withdrawn slot of the owner in the
	// range, unpaginated, for reconciliation.
	ListForOverlay(ctx context.Context, ownerID uuid.UUID, from, to time.Time) ([]*Slot, error)
	// CreateBatch inserts slots, silently skipping (owner, service, start)
	// combinations that already exist. Returns the number actually created.
	CreateBatch(ctx context.Context, slots []*Slot) (int, error)
	// CompareAndSetStatus is the conditional-update primitive for overlay
	// and withdrawal: one UPDATE that matches id, expectedVersion, and
	// expectedStatus, sets the new status, booking count, and blocking
	// event, and increments the version. ErrConflict when the row exists
	// but did not match; ErrNotFound when it does not exist.
	CompareAndSetStatus(ctx context.Context, slotID uuid.UUID, expectedVersion int, expectedStatus, newStatus Status, newCurrentBookings int, blockingEventID *uuid.UUID) error
	// ClaimForBooking is the booking-claim variant of the primitive. The
	// owner-overlap predicate is folded into the same conditional UPDATE,
	// so "no other booked slot of this owner covers the time, buffer
	// included" and the claim itself are a single statement; the partial
	// exclusion constraint on booked slots backs the predicate against
	// concurrent claims of different rows. ErrConflict when the row did
	// not match, an overlapping booked slot exists, or the constraint
	// fires; ErrNotFound when the slot does not exist.
	ClaimForBooking(ctx context.Context, slotID uuid.UUID, expectedVersion int, newStatus Status, newCurrentBookings int) error
}

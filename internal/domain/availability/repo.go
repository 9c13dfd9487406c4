package availability

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, w *Window) error
	GetByID(ctx context.Context, id uuid.UUID) (*Window, error)
	ListByOwner(ctx context.Context, ownerID uuid.UUID, from, to time.Time, statuses []WindowStatus, limit, offset int) ([]*Window, int, error)
	// TransitionStatus performs a conditional status update. It returns
	// ErrConflict when the row exists but expectedVersion or expectedStatus
	// no longer match, ErrNotFound when the row does not exist.
	TransitionStatus(ctx context.Context, id uuid.UUID, expectedVersion int, expectedStatus, newStatus WindowStatus, reason *string) error
}

// Materializer turns an accepted window into stored slots and withdraws them
// on cancellation. Implemented by the slot service; an interface here keeps
// the dependency pointing one way.
type Materializer interface {
	// MaterializeWindow expands the window's recurrence, slices every
	// occurrence, and stores the resulting slots. Returns the number of
	// slots created; re-runs skip slots that already exist.
	MaterializeWindow(ctx context.Context, w *Window) (int, error)
	// WithdrawWindowSlots withdraws not-yet-booked slots of a window.
	// A non-nil from limits withdrawal to slots starting at or after it;
	// a non-nil at limits it to the single occurrence starting exactly then.
	WithdrawWindowSlots(ctx context.Context, windowID uuid.UUID, from, at *time.Time) (int, error)
}

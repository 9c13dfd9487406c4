package booking

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, b *Booking) error
	GetByID(ctx context.Context, id uuid.UUID) (*Booking, error)
	GetActiveBySlot(ctx context.Context, slotID uuid.UUID) (*Booking, error)
	ListByClient(ctx context.Context, clientID uuid.UUID, limit, offset int) ([]*Booking, int, error)
	// Transition performs a conditional status update keyed on the current
	// version. ErrConflict when the row exists but expectedVersion or
	// expectedStatus no longer match, ErrNotFound when it does not exist.
	Transition(ctx context.Context, id uuid.UUID, expectedVersion int, expectedStatus, newStatus Status) error
}

package booking

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/carebook/carebook/internal/domain/slot"
	"github.com/carebook/carebook/internal/platform/notification"
)

// TxRunner executes fn inside a durable transaction carried by the context.
// Wired to db.WithTx in production.
type TxRunner func(ctx context.Context, fn func(ctx context.Context) error) error

// Arbiter performs the atomic slot claim. Optimistic concurrency: any number
// of callers may read the same AVAILABLE slot; the single conditional write
// inside the claim transaction decides the winner. The arbiter never retries
// on its own.
type Arbiter struct {
	bookings Repository
	slots    slot.Repository
	inTx     TxRunner
	notify   notification.Sink
	logger   zerolog.Logger
}

func NewArbiter(bookings Repository, slots slot.Repository, inTx TxRunner, notify notification.Sink, logger zerolog.Logger) *Arbiter {
	return &Arbiter{bookings: bookings, slots: slots, inTx: inTx, notify: notify, logger: logger}
}

// AttemptBooking claims the slot at the expected version for the payload.
// Slot claim and booking row creation commit atomically; if the booking row
// cannot be created the claim rolls back.
//
// A Conflict outcome carries the freshly read slot so the caller may retry
// exactly once against the new version; a second conflict should surface to
// the user as "slot no longer available".
func (a *Arbiter) AttemptBooking(ctx context.Context, slotID uuid.UUID, expectedVersion int, p *Payload) (*Outcome, error) {
	s, err := a.slots.GetByID(ctx, slotID)
	if err != nil {
		return nil, err
	}
	if s.Status != slot.StatusAvailable || s.CurrentBookings >= s.MaxCapacity {
		// A retry after a timed-out attempt may be finding its own earlier
		// claim. Hand the existing booking back instead of reporting the
		// slot gone.
		if s.Status == slot.StatusBooked {
			if prev, err := a.bookings.GetActiveBySlot(ctx, s.ID); err == nil && matchesPayload(prev, p) {
				return &Outcome{Kind: OutcomeBooked, Booking: prev}, nil
			}
		}
		return &Outcome{Kind: OutcomeSlotUnavailable, Slot: s}, nil
	}
	if err := p.Validate(); err != nil {
		return &Outcome{Kind: OutcomeValidationFailed, Reason: err.Error()}, nil
	}
	if p.ServiceID != s.ServiceID {
		return &Outcome{Kind: OutcomeValidationFailed, Reason: "service_id does not match the slot"}, nil
	}
	if p.PriceCents != s.PriceCents {
		return &Outcome{Kind: OutcomeValidationFailed, Reason: "price does not match the slot"}, nil
	}
	if p.IsOnline && !s.IsOnline {
		return &Outcome{Kind: OutcomeValidationFailed, Reason: "slot is not available online"}, nil
	}

	b := &Booking{
		SlotID:     s.ID,
		ClientID:   p.ClientID,
		GuestName:  p.GuestName,
		GuestEmail: p.GuestEmail,
		GuestPhone: p.GuestPhone,
		ServiceID:  p.ServiceID,
		PriceCents: p.PriceCents,
		IsOnline:   p.IsOnline,
		Status:     StatusConfirmed,
	}
	if s.RequiresConfirmation {
		b.Status = StatusPending
	}

	err = a.inTx(ctx, func(ctx context.Context) error {
		newCount := s.CurrentBookings + 1
		newStatus := slot.StatusBooked
		if newCount < s.MaxCapacity {
			newStatus = slot.StatusAvailable
		}
		// The claim and the cross-service guard (no other booked slot of
		// this owner covers the time, buffer included) are one conditional
		// statement; both losing the version race and colliding with an
		// overlapping booked slot surface as ErrConflict.
		if err := a.slots.ClaimForBooking(ctx, s.ID, expectedVersion, newStatus, newCount); err != nil {
			return err
		}
		return a.bookings.Create(ctx, b)
	})
	if errors.Is(err, slot.ErrConflict) {
		fresh, readErr := a.slots.GetByID(ctx, slotID)
		if readErr != nil {
			return nil, readErr
		}
		return &Outcome{Kind: OutcomeConflict, Slot: fresh}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("claim slot %s: %w", slotID, err)
	}

	template := notification.TemplateBookingConfirmed
	if b.Status == StatusPending {
		template = notification.TemplateBookingPending
	}
	a.notify.Notify(ctx, b.Contact(), template, a.slotData(s))

	a.logger.Info().
		Str("booking_id", b.ID.String()).
		Str("slot_id", s.ID.String()).
		Str("status", string(b.Status)).
		Msg("slot claimed")
	return &Outcome{Kind: OutcomeBooked, Booking: b}, nil
}

// Cancel transitions a PENDING or CONFIRMED booking to CANCELLED and
// releases its slot in the same transaction.
func (a *Arbiter) Cancel(ctx context.Context, bookingID uuid.UUID, expectedVersion int) (*Booking, error) {
	b, err := a.bookings.GetByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if b.Status != StatusPending && b.Status != StatusConfirmed {
		return nil, fmt.Errorf("%w: cannot cancel booking in status %s", ErrInvalidTransition, b.Status)
	}
	if expectedVersion == 0 {
		expectedVersion = b.VersionID
	}

	var s *slot.Slot
	err = a.inTx(ctx, func(ctx context.Context) error {
		if err := a.bookings.Transition(ctx, bookingID, expectedVersion, b.Status, StatusCancelled); err != nil {
			return err
		}
		s, err = a.slots.GetByID(ctx, b.SlotID)
		if err != nil {
			return err
		}
		return a.slots.CompareAndSetStatus(ctx, s.ID, s.VersionID, s.Status, slot.StatusAvailable, s.CurrentBookings-1, nil)
	})
	if err != nil {
		return nil, err
	}
	b.Status = StatusCancelled
	b.VersionID = expectedVersion + 1

	a.notify.Notify(ctx, b.Contact(), notification.TemplateBookingCancelled, a.slotData(s))
	a.logger.Info().Str("booking_id", bookingID.String()).Str("slot_id", b.SlotID.String()).Msg("booking cancelled, slot released")
	return b, nil
}

// Confirm transitions a PENDING booking to CONFIRMED.
func (a *Arbiter) Confirm(ctx context.Context, bookingID uuid.UUID, expectedVersion int) (*Booking, error) {
	b, err := a.transition(ctx, bookingID, expectedVersion, StatusPending, StatusConfirmed)
	if err != nil {
		return nil, err
	}
	if s, err := a.slots.GetByID(ctx, b.SlotID); err == nil {
		a.notify.Notify(ctx, b.Contact(), notification.TemplateBookingConfirmed, a.slotData(s))
	}
	return b, nil
}

// Complete transitions a CONFIRMED booking to COMPLETED.
func (a *Arbiter) Complete(ctx context.Context, bookingID uuid.UUID, expectedVersion int) (*Booking, error) {
	return a.transition(ctx, bookingID, expectedVersion, StatusConfirmed, StatusCompleted)
}

// NoShow transitions a CONFIRMED booking to NO_SHOW.
func (a *Arbiter) NoShow(ctx context.Context, bookingID uuid.UUID, expectedVersion int) (*Booking, error) {
	return a.transition(ctx, bookingID, expectedVersion, StatusConfirmed, StatusNoShow)
}

func (a *Arbiter) transition(ctx context.Context, bookingID uuid.UUID, expectedVersion int, from, to Status) (*Booking, error) {
	b, err := a.bookings.GetByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if b.Status != from {
		return nil, fmt.Errorf("%w: cannot move booking from %s to %s", ErrInvalidTransition, b.Status, to)
	}
	if expectedVersion == 0 {
		expectedVersion = b.VersionID
	}
	if err := a.bookings.Transition(ctx, bookingID, expectedVersion, from, to); err != nil {
		return nil, err
	}
	b.Status = to
	b.VersionID = expectedVersion + 1
	return b, nil
}

func (a *Arbiter) Get(ctx context.Context, id uuid.UUID) (*Booking, error) {
	return a.bookings.GetByID(ctx, id)
}

func (a *Arbiter) ListByClient(ctx context.Context, clientID uuid.UUID, limit, offset int) ([]*Booking, int, error) {
	return a.bookings.ListByClient(ctx, clientID, limit, offset)
}

// matchesPayload reports whether the booking came from the same requester
// as the payload, identifying a duplicate submission of an already-won
// claim.
func matchesPayload(b *Booking, p *Payload) bool {
	if p.ClientID != nil {
		return b.ClientID != nil && *b.ClientID == *p.ClientID
	}
	if p.GuestEmail != nil {
		return b.GuestEmail != nil && *b.GuestEmail == *p.GuestEmail
	}
	return false
}

func (a *Arbiter) slotData(s *slot.Slot) map[string]string {
	if s == nil {
		return nil
	}
	return map[string]string{
		"date":     s.StartTime.UTC().Format("2006-01-02"),
		"time":     s.StartTime.UTC().Format("15:04"),
		"service":  s.ServiceID.String(),
		"provider": s.OwnerID.String(),
	}
}

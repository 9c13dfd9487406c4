package slot

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/carebook/carebook/internal/domain/availability"
	"github.com/carebook/carebook/internal/platform/notification"
)

// BusyEvent is the overlay's view of an external calendar event that blocks
// availability. Sourced read-only from the calendar feed.
type BusyEvent struct {
	ID    uuid.UUID
	Start time.Time
	End   time.Time
}

// BusyEventSource supplies blocking busy events per owner and range.
type BusyEventSource interface {
	ListBlocking(ctx context.Context, ownerID uuid.UUID, from, to time.Time) ([]BusyEvent, error)
}

type Service struct {
	slots   Repository
	busy    BusyEventSource
	notify  notification.Sink
	logger  zerolog.Logger
	horizon time.Duration
}

// NewService builds the slot service. horizon bounds how far into the future
// materialization reaches; zero means unbounded.
func NewService(slots Repository, busy BusyEventSource, notify notification.Sink, logger zerolog.Logger, horizon time.Duration) *Service {
	return &Service{slots: slots, busy: busy, notify: notify, logger: logger, horizon: horizon}
}

// MaterializeWindow expands the window's recurrence, slices every occurrence,
// and stores the resulting slots. Occurrences past the materialization
// horizon are skipped; existing (owner, service, start) combinations are
// skipped by the store, which makes re-materialization additive: slots with
// live bookings are never discarded.
func (s *Service) MaterializeWindow(ctx context.Context, w *availability.Window) (int, error) {
	if w.Status != availability.StatusAccepted {
		return 0, nil
	}
	occurrences := availability.ExpandRecurrence(w.StartTime, w.EndTime, w.Recurrence)

	var cutoff time.Time
	if s.horizon > 0 {
		cutoff = time.Now().UTC().Add(s.horizon)
	}

	created := 0
	for _, occ := range occurrences {
		if !cutoff.IsZero() && occ.Start.After(cutoff) {
			continue
		}
		batch := SliceOccurrence(w, occ)
		n, err := s.slots.CreateBatch(ctx, batch)
		if err != nil {
			return created, fmt.Errorf("store slots for window %s: %w", w.ID, err)
		}
		created += n
	}
	return created, nil
}

// WithdrawWindowSlots hides the not-yet-booked slots of a window. A non-nil
// from limits withdrawal to slots starting at or after it; a non-nil at
// limits it to the occurrence on that UTC day. Booked slots stay untouched.
// Every transition goes through the compare-and-set primitive; a conflicting
// slot is skipped and picked up by a later run.
func (s *Service) WithdrawWindowSlots(ctx context.Context, windowID uuid.UUID, from, at *time.Time) (int, error) {
	slots, err := s.slots.ListByWindow(ctx, windowID)
	if err != nil {
		return 0, err
	}
	withdrawn := 0
	for _, sl := range slots {
		if sl.Status != StatusAvailable && sl.Status != StatusBlocked {
			continue
		}
		if from != nil && sl.StartTime.Before(*from) {
			continue
		}
		if at != nil && !sameUTCDay(sl.StartTime, *at) {
			continue
		}
		err := s.slots.CompareAndSetStatus(ctx, sl.ID, sl.VersionID, sl.Status, StatusWithdrawn, sl.CurrentBookings, nil)
		switch err {
		case nil:
			withdrawn++
		case ErrConflict:
			s.logger.Debug().Str("slot_id", sl.ID.String()).Msg("withdraw skipped, slot changed underneath")
		default:
			return withdrawn, err
		}
	}
	return withdrawn, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Slot, error) {
	return s.slots.GetByID(ctx, id)
}

func (s *Service) ListByOwner(ctx context.Context, ownerID uuid.UUID, from, to time.Time, f Filters, limit, offset int) ([]*Slot, int, error) {
	return s.slots.ListByOwner(ctx, ownerID, from, to, f, limit, offset)
}

func sameUTCDay(a, b time.Time) bool {
	ay, am, ad := a.UTC().Date()
	by, bm, bd := b.UTC().Date()
	return ay == by && am == bm && ad == bd
}

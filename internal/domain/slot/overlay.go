package slot

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/carebook/carebook/internal/platform/notification"
)

// ReconcileResult summarizes one overlay run.
type ReconcileResult struct {
	OwnerID   uuid.UUID `json:"owner_id"`
	From      time.Time `json:"from"`
	To        time.Time `json:"to"`
	Blocked   int       `json:"blocked"`
	Released  int       `json:"released"`
	Conflicts int       `json:"conflicts"`
	Skipped   int       `json:"skipped"`
}

// Reconcile overlays the owner's blocking busy events onto the materialized
// slots in [from, to). AVAILABLE slots intersecting a blocking event become
// BLOCKED; BLOCKED slots whose event is gone or moved become AVAILABLE
// again. BOOKED slots are never touched; a booked slot newly covered by a
// busy event only produces an owner notification.
//
// The run is idempotent and safe to retry. A compare-and-set conflict on an
// individual slot is skipped; the next run corrects it.
func (s *Service) Reconcile(ctx context.Context, ownerID uuid.UUID, from, to time.Time) (*ReconcileResult, error) {
	events, err := s.busy.ListBlocking(ctx, ownerID, from, to)
	if err != nil {
		return nil, fmt.Errorf("list busy events: %w", err)
	}
	slots, err := s.slots.ListForOverlay(ctx, ownerID, from, to)
	if err != nil {
		return nil, fmt.Errorf("list slots: %w", err)
	}

	res := &ReconcileResult{OwnerID: ownerID, From: from, To: to}
	for _, sl := range slots {
		blocking := intersectingEvent(sl, events)

		switch sl.Status {
		case StatusAvailable:
			if blocking == nil {
				continue
			}
			err := s.slots.CompareAndSetStatus(ctx, sl.ID, sl.VersionID, StatusAvailable, StatusBlocked, sl.CurrentBookings, &blocking.ID)
			if err == ErrConflict {
				res.Skipped++
				continue
			}
			if err != nil {
				return res, err
			}
			res.Blocked++

		case StatusBlocked:
			if blocking != nil {
				if sl.BlockingEventID != nil && *sl.BlockingEventID == blocking.ID {
					continue
				}
				// Still blocked, but by a different event now.
				err := s.slots.CompareAndSetStatus(ctx, sl.ID, sl.VersionID, StatusBlocked, StatusBlocked, sl.CurrentBookings, &blocking.ID)
				if err == ErrConflict {
					res.Skipped++
					continue
				}
				if err != nil {
					return res, err
				}
				continue
			}
			err := s.slots.CompareAndSetStatus(ctx, sl.ID, sl.VersionID, StatusBlocked, StatusAvailable, sl.CurrentBookings, nil)
			if err == ErrConflict {
				res.Skipped++
				continue
			}
			if err != nil {
				return res, err
			}
			res.Released++

		case StatusBooked:
			if blocking == nil {
				continue
			}
			res.Conflicts++
			s.notify.Notify(ctx, ownerID.String(), notification.TemplateCalendarConflict, map[string]string{
				"date": sl.StartTime.UTC().Format("2006-01-02"),
				"time": sl.StartTime.UTC().Format("15:04"),
			})
		}
	}

	s.logger.Info().
		Str("owner_id", ownerID.String()).
		Int("blocked", res.Blocked).
		Int("released", res.Released).
		Int("conflicts", res.Conflicts).
		Int("skipped", res.Skipped).
		Msg("calendar overlay reconciled")
	return res, nil
}

func intersectingEvent(sl *Slot, events []BusyEvent) *BusyEvent {
	for i := range events {
		if sl.Intersects(events[i].Start, events[i].End) {
			return &events[i]
		}
	}
	return nil
}

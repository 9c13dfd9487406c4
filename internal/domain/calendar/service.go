package calendar

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/carebook/carebook/internal/domain/slot"
)

// OverlaySource adapts the event store to the overlay's read-only view.
type OverlaySource struct {
	events Repository
}

func NewOverlaySource(events Repository) *OverlaySource {
	return &OverlaySource{events: events}
}

func (o *OverlaySource) ListBlocking(ctx context.Context, ownerID uuid.UUID, from, to time.Time) ([]slot.BusyEvent, error) {
	events, err := o.events.ListBlocking(ctx, ownerID, from, to)
	if err != nil {
		return nil, err
	}
	out := make([]slot.BusyEvent, 0, len(events))
	for _, e := range events {
		out = append(out, slot.BusyEvent{ID: e.ID, Start: e.StartTime, End: e.EndTime})
	}
	return out, nil
}

// Reconciler re-derives slot block state for an owner and range.
type Reconciler interface {
	Reconcile(ctx context.Context, ownerID uuid.UUID, from, to time.Time) (*slot.ReconcileResult, error)
}

type Service struct {
	events  Repository
	overlay Reconciler
	logger  zerolog.Logger
}

func NewService(events Repository, overlay Reconciler, logger zerolog.Logger) *Service {
	return &Service{events: events, overlay: overlay, logger: logger}
}

// Upsert stores the event and reconciles the union of its previous and new
// range, so moving an event both blocks its new time and releases its old
// one.
func (s *Service) Upsert(ctx context.Context, e *BusyEvent) (*BusyEvent, error) {
	if err := e.Validate(); err != nil {
		return nil, err
	}

	from, to := e.StartTime, e.EndTime
	if e.ID != uuid.Nil {
		if prev, err := s.events.GetByID(ctx, e.ID); err == nil {
			from, to = unionRange(from, to, prev.StartTime, prev.EndTime)
		}
	}

	if err := s.events.Upsert(ctx, e); err != nil {
		return nil, err
	}
	if err := s.reconcile(ctx, e.OwnerID, from, to); err != nil {
		return nil, err
	}
	return e, nil
}

// Remove deletes the event and releases any slots it was blocking.
func (s *Service) Remove(ctx context.Context, id uuid.UUID) error {
	e, err := s.events.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if err := s.events.Delete(ctx, id); err != nil {
		return err
	}
	return s.reconcile(ctx, e.OwnerID, e.StartTime, e.EndTime)
}

// ReconcileRange runs the overlay for an arbitrary range, used after bulk
// feed imports.
func (s *Service) ReconcileRange(ctx context.Context, ownerID uuid.UUID, from, to time.Time) (*slot.ReconcileResult, error) {
	return s.overlay.Reconcile(ctx, ownerID, from, to)
}

func (s *Service) ListByOwner(ctx context.Context, ownerID uuid.UUID, from, to time.Time, limit, offset int) ([]*BusyEvent, int, error) {
	return s.events.ListByOwner(ctx, ownerID, from, to, limit, offset)
}

func (s *Service) reconcile(ctx context.Context, ownerID uuid.UUID, from, to time.Time) error {
	res, err := s.overlay.Reconcile(ctx, ownerID, from, to)
	if err != nil {
		return err
	}
	s.logger.Debug().
		Str("owner_id", ownerID.String()).
		Int("blocked", res.Blocked).
		Int("released", res.Released).
		Int("conflicts", res.Conflicts).
		Msg("calendar overlay reconciled")
	return nil
}

func unionRange(aFrom, aTo, bFrom, bTo time.Time) (time.Time, time.Time) {
	if bFrom.Before(aFrom) {
		aFrom = bFrom
	}
	if bTo.After(aTo) {
		aTo = bTo
	}
	return aFrom, aTo
}

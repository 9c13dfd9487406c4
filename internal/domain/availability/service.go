package availability

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/carebook/carebook/internal/platform/auth"
	"github.com/carebook/carebook/internal/platform/notification"
)

// ErrForbidden is returned when the principal may not manage the window's
// owner.
var ErrForbidden = errors.New("not permitted to manage availability for this owner")

type Service struct {
	windows      Repository
	materializer Materializer
	perms        auth.PermissionChecker
	notify       notification.Sink
	logger       zerolog.Logger
}

func NewService(windows Repository, materializer Materializer, perms auth.PermissionChecker, notify notification.Sink, logger zerolog.Logger) *Service {
	return &Service{
		windows:      windows,
		materializer: materializer,
		perms:        perms,
		notify:       notify,
		logger:       logger,
	}
}

// Create publishes a self-created window. It is auto-accepted and
// materializes immediately.
func (s *Service) Create(ctx context.Context, w *Window) error {
	if !s.perms.CanManageOwner(ctx, w.OwnerID.String()) {
		return ErrForbidden
	}
	if err := w.Validate(); err != nil {
		return err
	}
	w.Status = StatusAccepted
	if err := s.windows.Create(ctx, w); err != nil {
		return fmt.Errorf("create window: %w", err)
	}
	created, err := s.materializer.MaterializeWindow(ctx, w)
	if err != nil {
		return fmt.Errorf("materialize window %s: %w", w.ID, err)
	}
	s.logger.Info().Str("window_id", w.ID.String()).Int("slots", created).Msg("availability window created")
	return nil
}

// Propose submits a window on an owner's behalf. The window stays PENDING
// and produces no slots until the owner accepts it.
func (s *Service) Propose(ctx context.Context, w *Window, proposerID uuid.UUID) error {
	if err := w.Validate(); err != nil {
		return err
	}
	w.Status = StatusPending
	w.ProposedBy = &proposerID
	if err := s.windows.Create(ctx, w); err != nil {
		return fmt.Errorf("create proposal: %w", err)
	}
	s.notify.Notify(ctx, w.OwnerID.String(), notification.TemplateProposalSubmitted, map[string]string{
		"organization": proposerID.String(),
		"date":         w.StartTime.Format("2006-01-02"),
		"start":        w.StartTime.Format("15:04"),
		"end":          w.EndTime.Format("15:04"),
	})
	return nil
}

// Accept transitions a PENDING proposal to ACCEPTED and materializes its
// slots.
func (s *Service) Accept(ctx context.Context, id uuid.UUID) (*Window, error) {
	w, err := s.windows.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !s.perms.CanManageOwner(ctx, w.OwnerID.String()) {
		return nil, ErrForbidden
	}
	if w.Status != StatusPending {
		return nil, fmt.Errorf("%w: cannot accept window in status %s", ErrInvalidTransition, w.Status)
	}
	if err := s.windows.TransitionStatus(ctx, id, w.VersionID, StatusPending, StatusAccepted, nil); err != nil {
		return nil, err
	}
	w.Status = StatusAccepted
	w.VersionID++
	created, err := s.materializer.MaterializeWindow(ctx, w)
	if err != nil {
		return nil, fmt.Errorf("materialize window %s: %w", w.ID, err)
	}
	s.logger.Info().Str("window_id", id.String()).Int("slots", created).Msg("availability proposal accepted")
	s.notifyDecision(ctx, w, "accepted", "")
	return w, nil
}

// Reject transitions a PENDING proposal to REJECTED with an optional
// free-text reason, stored but not interpreted.
func (s *Service) Reject(ctx context.Context, id uuid.UUID, reason string) (*Window, error) {
	w, err := s.windows.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !s.perms.CanManageOwner(ctx, w.OwnerID.String()) {
		return nil, ErrForbidden
	}
	if w.Status != StatusPending {
		return nil, fmt.Errorf("%w: cannot reject window in status %s", ErrInvalidTransition, w.Status)
	}
	var reasonPtr *string
	if reason != "" {
		reasonPtr = &reason
	}
	if err := s.windows.TransitionStatus(ctx, id, w.VersionID, StatusPending, StatusRejected, reasonPtr); err != nil {
		return nil, err
	}
	w.Status = StatusRejected
	w.RejectReason = reasonPtr
	w.VersionID++
	s.notifyDecision(ctx, w, "rejected", reason)
	return w, nil
}

// Cancel transitions an ACCEPTED window to CANCELLED and withdraws its
// not-yet-booked slots. Booked history stays intact.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID) error {
	w, err := s.windows.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if !s.perms.CanManageOwner(ctx, w.OwnerID.String()) {
		return ErrForbidden
	}
	if w.Status != StatusAccepted {
		return fmt.Errorf("%w: cannot cancel window in status %s", ErrInvalidTransition, w.Status)
	}
	if err := s.windows.TransitionStatus(ctx, id, w.VersionID, StatusAccepted, StatusCancelled, nil); err != nil {
		return err
	}
	withdrawn, err := s.materializer.WithdrawWindowSlots(ctx, id, nil, nil)
	if err != nil {
		return fmt.Errorf("withdraw slots for window %s: %w", id, err)
	}
	s.logger.Info().Str("window_id", id.String()).Int("withdrawn", withdrawn).Msg("availability window cancelled")
	return nil
}

// ApplyCancelScope is the batch form of cancellation over a recurring
// window: a single occurrence, all future occurrences from a point, or the
// whole series. It reuses the single-window operations rather than adding a
// new primitive.
func (s *Service) ApplyCancelScope(ctx context.Context, id uuid.UUID, scope CancelScope, occurrenceStart time.Time) (int, error) {
	if !scope.Valid() {
		return 0, fmt.Errorf("%w: unknown cancel scope %q", ErrValidation, scope)
	}
	if scope == ScopeAll {
		if err := s.Cancel(ctx, id); err != nil {
			return 0, err
		}
		return 0, nil
	}
	w, err := s.windows.GetByID(ctx, id)
	if err != nil {
		return 0, err
	}
	if !s.perms.CanManageOwner(ctx, w.OwnerID.String()) {
		return 0, ErrForbidden
	}
	if occurrenceStart.IsZero() {
		return 0, fmt.Errorf("%w: occurrence_start is required for scope %s", ErrValidation, scope)
	}
	occurrenceStart = occurrenceStart.UTC()
	if scope == ScopeSingle {
		return s.materializer.WithdrawWindowSlots(ctx, id, nil, &occurrenceStart)
	}
	return s.materializer.WithdrawWindowSlots(ctx, id, &occurrenceStart, nil)
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Window, error) {
	return s.windows.GetByID(ctx, id)
}

func (s *Service) ListByOwner(ctx context.Context, ownerID uuid.UUID, from, to time.Time, statuses []WindowStatus, limit, offset int) ([]*Window, int, error) {
	return s.windows.ListByOwner(ctx, ownerID, from, to, statuses, limit, offset)
}

func (s *Service) notifyDecision(ctx context.Context, w *Window, decision, reason string) {
	recipient := w.OwnerID.String()
	if w.ProposedBy != nil {
		recipient = w.ProposedBy.String()
	}
	s.notify.Notify(ctx, recipient, notification.TemplateProposalDecided, map[string]string{
		"date":     w.StartTime.Format("2006-01-02"),
		"decision": decision,
		"reason":   reason,
	})
}

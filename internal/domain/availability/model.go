package availability

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotFound          = errors.New("availability window not found")
	ErrConflict          = errors.New("availability window was modified concurrently")
	ErrInvalidTransition = errors.New("invalid availability status transition")
	ErrValidation        = errors.New("availability validation failed")
)

// SchedulingRule controls how slot starts align inside a window.
type SchedulingRule string

const (
	RuleContinuous    SchedulingRule = "CONTINUOUS"
	RuleOnTheHour     SchedulingRule = "ON_THE_HOUR"
	RuleOnTheHalfHour SchedulingRule = "ON_THE_HALF_HOUR"
)

func (r SchedulingRule) Valid() bool {
	switch r {
	case RuleContinuous, RuleOnTheHour, RuleOnTheHalfHour:
		return true
	}
	return false
}

// WindowStatus is the proposal-workflow state of a window.
type WindowStatus string

const (
	StatusPending   WindowStatus = "PENDING"
	StatusAccepted  WindowStatus = "ACCEPTED"
	StatusRejected  WindowStatus = "REJECTED"
	StatusCancelled WindowStatus = "CANCELLED"
)

// RecurrenceOption selects how a window repeats.
type RecurrenceOption string

const (
	RecurNone   RecurrenceOption = "NONE"
	RecurDaily  RecurrenceOption = "DAILY"
	RecurWeekly RecurrenceOption = "WEEKLY"
	RecurCustom RecurrenceOption = "CUSTOM"
)

// RecurrencePattern describes how a window repeats up to an inclusive end
// date. CustomDays holds weekdays (time.Weekday values) for RecurCustom.
type RecurrencePattern struct {
	Option     RecurrenceOption `json:"option"`
	EndDate    time.Time        `json:"end_date"`
	CustomDays []time.Weekday   `json:"custom_days,omitempty"`
}

// Validate rejects malformed patterns up front so expansion never has to.
func (p *RecurrencePattern) Validate() error {
	switch p.Option {
	case RecurNone:
		return nil
	case RecurDaily, RecurWeekly:
	case RecurCustom:
		if len(p.CustomDays) == 0 {
			return fmt.Errorf("%w: custom recurrence requires at least one weekday", ErrValidation)
		}
		for _, d := range p.CustomDays {
			if d < time.Sunday || d > time.Saturday {
				return fmt.Errorf("%w: invalid weekday %d", ErrValidation, d)
			}
		}
	default:
		return fmt.Errorf("%w: unknown recurrence option %q", ErrValidation, p.Option)
	}
	if p.EndDate.IsZero() {
		return fmt.Errorf("%w: recurrence requires an end date", ErrValidation)
	}
	return nil
}

// ServiceConfig binds one service offering to a window with a concrete
// price, duration, and buffer. Immutable once a slot referencing it has been
// booked; a changed offering gets a new config row superseding the old one.
type ServiceConfig struct {
	ID                 uuid.UUID `db:"id" json:"id"`
	WindowID           uuid.UUID `db:"window_id" json:"window_id"`
	ServiceID          uuid.UUID `db:"service_id" json:"service_id"`
	PriceCents         int64     `db:"price_cents" json:"price_cents"`
	DurationMinutes    int       `db:"duration_minutes" json:"duration_minutes"`
	BufferAfterMinutes int       `db:"buffer_after_minutes" json:"buffer_after_minutes"`
	IsOnline           bool      `db:"is_online" json:"is_online"`
	Active             bool      `db:"active" json:"active"`
	CreatedAt          time.Time `db:"created_at" json:"created_at"`
}

// Window maps to the availability_window table.
type Window struct {
	ID                   uuid.UUID          `db:"id" json:"id"`
	OwnerID              uuid.UUID          `db:"owner_id" json:"owner_id"`
	LocationID           *uuid.UUID         `db:"location_id" json:"location_id,omitempty"`
	ProposedBy           *uuid.UUID         `db:"proposed_by" json:"proposed_by,omitempty"`
	StartTime            time.Time          `db:"start_time" json:"start_time"`
	EndTime              time.Time          `db:"end_time" json:"end_time"`
	SchedulingRule       SchedulingRule     `db:"scheduling_rule" json:"scheduling_rule"`
	IsOnlineAvailable    bool               `db:"is_online_available" json:"is_online_available"`
	Recurrence           *RecurrencePattern `db:"-" json:"recurrence,omitempty"`
	Status               WindowStatus       `db:"status" json:"status"`
	RequiresConfirmation bool               `db:"requires_confirmation" json:"requires_confirmation"`
	RejectReason         *string            `db:"reject_reason" json:"reject_reason,omitempty"`
	VersionID            int                `db:"version_id" json:"version_id"`
	CreatedAt            time.Time          `db:"created_at" json:"created_at"`
	UpdatedAt            time.Time          `db:"updated_at" json:"updated_at"`

	Services []*ServiceConfig `db:"-" json:"services,omitempty"`
}

// GetVersionID returns the current version.
func (w *Window) GetVersionID() int { return w.VersionID }

// SetVersionID sets the current version.
func (w *Window) SetVersionID(v int) { w.VersionID = v }

// Validate checks the window invariants before persistence. All instants are
// normalized to UTC.
func (w *Window) Validate() error {
	if w.OwnerID == uuid.Nil {
		return fmt.Errorf("%w: owner_id is required", ErrValidation)
	}
	if w.StartTime.IsZero() || w.EndTime.IsZero() {
		return fmt.Errorf("%w: start_time and end_time are required", ErrValidation)
	}
	w.StartTime = w.StartTime.UTC()
	w.EndTime = w.EndTime.UTC()
	if !w.EndTime.After(w.StartTime) {
		return fmt.Errorf("%w: end_time must be after start_time", ErrValidation)
	}
	if w.SchedulingRule == "" {
		w.SchedulingRule = RuleContinuous
	}
	if !w.SchedulingRule.Valid() {
		return fmt.Errorf("%w: unknown scheduling rule %q", ErrValidation, w.SchedulingRule)
	}
	if w.Recurrence != nil && w.Recurrence.Option != RecurNone {
		if err := w.Recurrence.Validate(); err != nil {
			return err
		}
		w.Recurrence.EndDate = w.Recurrence.EndDate.UTC()
	}
	if len(w.Services) == 0 {
		return fmt.Errorf("%w: at least one service config is required", ErrValidation)
	}
	for _, cfg := range w.Services {
		if cfg.ServiceID == uuid.Nil {
			return fmt.Errorf("%w: service_id is required on every service config", ErrValidation)
		}
		if cfg.DurationMinutes <= 0 {
			return fmt.Errorf("%w: service duration must be positive", ErrValidation)
		}
		if cfg.BufferAfterMinutes < 0 {
			return fmt.Errorf("%w: service buffer must not be negative", ErrValidation)
		}
		if cfg.PriceCents < 0 {
			return fmt.Errorf("%w: service price must not be negative", ErrValidation)
		}
	}
	return nil
}

// CancelScope selects which occurrences of a recurring window a batch
// cancellation covers.
type CancelScope string

const (
	ScopeSingle CancelScope = "single"
	ScopeFuture CancelScope = "future"
	ScopeAll    CancelScope = "all"
)

func (s CancelScope) Valid() bool {
	switch s {
	case ScopeSingle, ScopeFuture, ScopeAll:
		return true
	}
	return false
}

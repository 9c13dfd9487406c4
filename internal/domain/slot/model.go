// Package slot holds the materialized, versioned slot store. Slot status is
// mutated only through the conditional-update primitives on Repository:
// CompareAndSetStatus for the overlay and withdrawal, ClaimForBooking for
// the booking claim.
package slot

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotFound = errors.New("slot not found")
	ErrConflict = errors.New("slot was modified concurrently")
)

// Status of a materialized slot.
type Status string

const (
	StatusAvailable Status = "AVAILABLE"
	StatusBooked    Status = "BOOKED"
	StatusBlocked   Status = "BLOCKED"
	// StatusWithdrawn marks slots of a cancelled window. They are hidden
	// from listings rather than deleted so booked history keeps its
	// referential integrity.
	StatusWithdrawn Status = "WITHDRAWN"
)

// Slot maps to the calculated_slot table. Price and confirmation are
// denormalized from the window's service config so the booking path needs no
// join.
type Slot struct {
	ID                   uuid.UUID  `db:"id" json:"id"`
	WindowID             uuid.UUID  `db:"window_id" json:"window_id"`
	OwnerID              uuid.UUID  `db:"owner_id" json:"owner_id"`
	ServiceID            uuid.UUID  `db:"service_id" json:"service_id"`
	ServiceConfigID      uuid.UUID  `db:"service_config_id" json:"service_config_id"`
	StartTime            time.Time  `db:"start_time" json:"start_time"`
	EndTime              time.Time  `db:"end_time" json:"end_time"`
	Status               Status     `db:"status" json:"status"`
	MaxCapacity          int        `db:"max_capacity" json:"max_capacity"`
	CurrentBookings      int        `db:"current_bookings" json:"current_bookings"`
	BufferAfterMinutes   int        `db:"buffer_after_minutes" json:"buffer_after_minutes"`
	BlockingEventID      *uuid.UUID `db:"blocking_event_id" json:"blocking_event_id,omitempty"`
	PriceCents           int64      `db:"price_cents" json:"price_cents"`
	RequiresConfirmation bool       `db:"requires_confirmation" json:"requires_confirmation"`
	IsOnline             bool       `db:"is_online" json:"is_online"`
	VersionID            int        `db:"version_id" json:"version_id"`
	CreatedAt            time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt            time.Time  `db:"updated_at" json:"updated_at"`
}

// GetVersionID returns the current version.
func (s *Slot) GetVersionID() int { return s.VersionID }

// SetVersionID sets the current version.
func (s *Slot) SetVersionID(v int) { s.VersionID = v }

// BufferedEnd is the end of the slot plus its reserved buffer. No other slot
// for the same owner may start before it.
func (s *Slot) BufferedEnd() time.Time {
	return s.EndTime.Add(time.Duration(s.BufferAfterMinutes) * time.Minute)
}

// Intersects reports whether the slot's [start, end) overlaps the given
// interval.
func (s *Slot) Intersects(start, end time.Time) bool {
	return s.StartTime.Before(end) && start.Before(s.EndTime)
}

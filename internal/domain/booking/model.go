// Package booking arbitrates claims on slots. The arbiter is the sole
// writer of the AVAILABLE to BOOKED transition and of its release.
package booking

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/carebook/carebook/internal/domain/slot"
)

var (
	ErrNotFound          = errors.New("booking not found")
	ErrConflict          = errors.New("booking was modified concurrently")
	ErrInvalidTransition = errors.New("invalid booking status transition")
	ErrValidation        = errors.New("booking validation failed")
)

// Status of a booking. CANCELLED, COMPLETED, and NO_SHOW are terminal.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusConfirmed Status = "CONFIRMED"
	StatusCancelled Status = "CANCELLED"
	StatusCompleted Status = "COMPLETED"
	StatusNoShow    Status = "NO_SHOW"
)

// Booking maps to the booking table.
type Booking struct {
	ID          uuid.UUID  `db:"id" json:"id"`
	SlotID      uuid.UUID  `db:"slot_id" json:"slot_id"`
	ClientID    *uuid.UUID `db:"client_id" json:"client_id,omitempty"`
	GuestName   *string    `db:"guest_name" json:"guest_name,omitempty"`
	GuestEmail  *string    `db:"guest_email" json:"guest_email,omitempty"`
	GuestPhone  *string    `db:"guest_phone" json:"guest_phone,omitempty"`
	ServiceID   uuid.UUID  `db:"service_id" json:"service_id"`
	PriceCents  int64      `db:"price_cents" json:"price_cents"`
	IsOnline    bool       `db:"is_online" json:"is_online"`
	Status      Status     `db:"status" json:"status"`
	VersionID   int        `db:"version_id" json:"version_id"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time  `db:"updated_at" json:"updated_at"`
	CancelledAt *time.Time `db:"cancelled_at" json:"cancelled_at,omitempty"`
	CompletedAt *time.Time `db:"completed_at" json:"completed_at,omitempty"`
	NoShowAt    *time.Time `db:"no_show_at" json:"no_show_at,omitempty"`
}

// GetVersionID returns the current version.
func (b *Booking) GetVersionID() int { return b.VersionID }

// SetVersionID sets the current version.
func (b *Booking) SetVersionID(v int) { b.VersionID = v }

// Contact returns the address used for outbound notifications about this
// booking.
func (b *Booking) Contact() string {
	if b.GuestEmail != nil {
		return *b.GuestEmail
	}
	if b.ClientID != nil {
		return b.ClientID.String()
	}
	return ""
}

// Payload is a client's booking request against a slot.
type Payload struct {
	ClientID   *uuid.UUID `json:"client_id,omitempty"`
	GuestName  *string    `json:"guest_name,omitempty"`
	GuestEmail *string    `json:"guest_email,omitempty"`
	GuestPhone *string    `json:"guest_phone,omitempty"`
	ServiceID  uuid.UUID  `json:"service_id"`
	PriceCents int64      `json:"price_cents"`
	IsOnline   bool       `json:"is_online"`
}

// Validate checks payload consistency that does not depend on the slot.
// Guest bookings need the full contact triple.
func (p *Payload) Validate() error {
	if p.ClientID == nil {
		if p.GuestName == nil || *p.GuestName == "" ||
			p.GuestEmail == nil || *p.GuestEmail == "" ||
			p.GuestPhone == nil || *p.GuestPhone == "" {
			return fmt.Errorf("%w: guest bookings require name, email, and phone", ErrValidation)
		}
	}
	if p.ServiceID == uuid.Nil {
		return fmt.Errorf("%w: service_id is required", ErrValidation)
	}
	return nil
}

// OutcomeKind classifies the result of an attempt.
type OutcomeKind string

const (
	OutcomeBooked           OutcomeKind = "BOOKED"
	OutcomeConflict         OutcomeKind = "CONFLICT"
	OutcomeSlotUnavailable  OutcomeKind = "SLOT_UNAVAILABLE"
	OutcomeValidationFailed OutcomeKind = "VALIDATION_FAILED"
)

// Outcome is the explicit result of AttemptBooking. On Conflict, Slot holds
// the freshly read state so the caller can retry once against the new
// version.
type Outcome struct {
	Kind    OutcomeKind `json:"kind"`
	Booking *Booking    `json:"booking,omitempty"`
	Slot    *slot.Slot  `json:"slot,omitempty"`
	Reason  string      `json:"reason,omitempty"`
}

// Package calendar stores external busy events and feeds them to the slot
// overlay. Events are write-through: every mutation triggers reconciliation
// of the affected range so blocked slots track the calendar.
package calendar

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotFound   = errors.New("busy event not found")
	ErrValidation = errors.New("busy event validation failed")
)

// BusyEvent maps to the calendar_busy_event table. Events imported from an
// external feed carry their feed name in Source.
type BusyEvent struct {
	ID                 uuid.UUID `db:"id" json:"id"`
	OwnerID            uuid.UUID `db:"owner_id" json:"owner_id"`
	Title              *string   `db:"title" json:"title,omitempty"`
	StartTime          time.Time `db:"start_time" json:"start_time"`
	EndTime            time.Time `db:"end_time" json:"end_time"`
	BlocksAvailability bool      `db:"blocks_availability" json:"blocks_availability"`
	Source             *string   `db:"source" json:"source,omitempty"`
	CreatedAt          time.Time `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time `db:"updated_at" json:"updated_at"`
}

// Validate normalizes the event to UTC and checks its bounds.
func (e *BusyEvent) Validate() error {
	if e.OwnerID == uuid.Nil {
		return fmt.Errorf("%w: owner_id is required", ErrValidation)
	}
	e.StartTime = e.StartTime.UTC()
	e.EndTime = e.EndTime.UTC()
	if !e.EndTime.After(e.StartTime) {
		return fmt.Errorf("%w: end_time must be after start_time", ErrValidation)
	}
	return nil
}

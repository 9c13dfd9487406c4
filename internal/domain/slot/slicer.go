package slot

import (
	"time"

	"github.com/carebook/carebook/internal/domain/availability"
)

// SliceOccurrence tiles one concrete occurrence of a window into candidate
// slots, one run per active service config. Pure function; IDs and
// persistence are the caller's concern.
//
// For a service with duration D and buffer B the cursor starts at the
// occurrence start, emits [cursor, cursor+D), then advances by D+B. Under
// ON_THE_HOUR and ON_THE_HALF_HOUR the cursor additionally rounds forward to
// the next boundary, which never moves a slot earlier than the free-running
// cursor. Slicing stops as soon as a slot would end past the occurrence end.
//
// Services slice independently; their slots may overlap in time.
func SliceOccurrence(w *availability.Window, occ availability.Occurrence) []*Slot {
	var out []*Slot
	for _, cfg := range w.Services {
		if !cfg.Active {
			continue
		}
		d := time.Duration(cfg.DurationMinutes) * time.Minute
		b := time.Duration(cfg.BufferAfterMinutes) * time.Minute

		cursor := roundToBoundary(occ.Start, w.SchedulingRule)
		for !cursor.Add(d).After(occ.End) {
			out = append(out, &Slot{
				WindowID:             w.ID,
				OwnerID:              w.OwnerID,
				ServiceID:            cfg.ServiceID,
				ServiceConfigID:      cfg.ID,
				StartTime:            cursor,
				EndTime:              cursor.Add(d),
				Status:               StatusAvailable,
				MaxCapacity:          1,
				CurrentBookings:      0,
				BufferAfterMinutes:   cfg.BufferAfterMinutes,
				PriceCents:           cfg.PriceCents,
				RequiresConfirmation: w.RequiresConfirmation,
				IsOnline:             cfg.IsOnline && w.IsOnlineAvailable,
			})
			cursor = roundToBoundary(cursor.Add(d+b), w.SchedulingRule)
		}
	}
	return out
}

// roundToBoundary rounds t forward to the next valid slot start for the
// rule. A time already on a boundary is returned unchanged.
func roundToBoundary(t time.Time, rule availability.SchedulingRule) time.Time {
	var step time.Duration
	switch rule {
	case availability.RuleOnTheHour:
		step = time.Hour
	case availability.RuleOnTheHalfHour:
		step = 30 * time.Minute
	default:
		return t
	}
	rounded := t.Truncate(step)
	if rounded.Before(t) {
		rounded = rounded.Add(step)
	}
	return rounded
}

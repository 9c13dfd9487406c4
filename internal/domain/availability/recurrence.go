package availability

import "time"

// MaxOccurrences bounds expansion so a runaway pattern cannot materialize an
// unbounded number of slots. Hitting the cap truncates silently.
const MaxOccurrences = 365

// Occurrence is one concrete start/end pair produced by expansion.
type Occurrence struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// ExpandRecurrence turns a canonical window plus a recurrence pattern into an
// ordered sequence of concrete occurrences. The canonical pair is always
// first; every occurrence preserves its time-of-day and duration. Expansion
// stops at the pattern's end date (inclusive, end of day) or at
// MaxOccurrences, whichever comes first.
//
// A nil pattern or RecurNone yields only the canonical pair. The pattern is
// assumed validated; see RecurrencePattern.Validate.
func ExpandRecurrence(start, end time.Time, p *RecurrencePattern) []Occurrence {
	start = start.UTC()
	end = end.UTC()
	out := []Occurrence{{Start: start, End: end}}
	if p == nil || p.Option == RecurNone {
		return out
	}

	duration := end.Sub(start)
	horizon := endOfDay(p.EndDate.UTC())
	cursor := start

	for len(out) < MaxOccurrences {
		var next time.Time
		switch p.Option {
		case RecurDaily:
			next = cursor.AddDate(0, 0, 1)
		case RecurWeekly:
			next = cursor.AddDate(0, 0, 7)
		case RecurCustom:
			next = nextCustomDay(cursor, p.CustomDays)
		default:
			return out
		}
		if next.After(horizon) {
			break
		}
		out = append(out, Occurrence{Start: next, End: next.Add(duration)})
		cursor = next
	}
	return out
}

// nextCustomDay walks forward one day at a time until it lands on a selected
// weekday, wrapping into the following week when the current one is spent.
func nextCustomDay(from time.Time, days []time.Weekday) time.Time {
	selected := make(map[time.Weekday]bool, len(days))
	for _, d := range days {
		selected[d] = true
	}
	next := from.AddDate(0, 0, 1)
	for i := 0; i < 7; i++ {
		if selected[next.Weekday()] {
			return next
		}
		next = next.AddDate(0, 0, 1)
	}
	return next
}

func endOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 23, 59, 59, int(time.Second-time.Nanosecond), t.Location())
}

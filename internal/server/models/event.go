package models

import "time"

// Recurrence frequencies.
const (
	FrequencyDaily   = "daily"
	FrequencyWeekly  = "weekly"
	FrequencyMonthly = "monthly"
)

// RecurringEvent describes a repeating catering event, e.g. a weekly
// delivery. NextOccurrence is the first start not yet materialized;
// AnchorAt is the first start of the series.
type RecurringEvent struct {
	ID             string     `db:"id"`
	Title          string     `db:"title"`
	Frequency      string     `db:"frequency"`
	Interval       int        `db:"interval_count"`
	AnchorAt       time.Time  `db:"anchor_at"`
	NextOccurrence time.Time  `db:"next_occurrence"`
	Until          *time.Time `db:"until"`
}

// Advance returns the start that follows t for this event's recurrence.
//
// Monthly starts keep the anchor's day of month, clamped to the last day of
// shorter months: an event anchored on Jan 31 runs Feb 28, Mar 31, Apr 30.
func (e *RecurringEvent) Advance(t time.Time) time.Time {
	n := e.Interval
	if n < 1 {
		n = 1
	}
	switch e.Frequency {
	case FrequencyWeekly:
		return t.AddDate(0, 0, 7*n)
	case FrequencyMonthly:
		return e.nextMonthly(t, n)
	default:
		return t.AddDate(0, 0, n)
	}
}

func (e *RecurringEvent) nextMonthly(t time.Time, n int) time.Time {
	anchor := e.AnchorAt
	if anchor.IsZero() {
		anchor = t
	}
	anchor = anchor.In(t.Location())

	months := (t.Year()-anchor.Year())*12 + int(t.Month()-anchor.Month())
	step := months/n + 1

	// first of the target month, then clamp the anchor's day into it
	first := time.Date(anchor.Year(), anchor.Month()+time.Month(step*n), 1,
		anchor.Hour(), anchor.Minute(), anchor.Second(), anchor.Nanosecond(), anchor.Location())
	day := anchor.Day()
	if last := daysIn(first); day > last {
		day = last
	}
	return first.AddDate(0, 0, day-1)
}

func daysIn(firstOfMonth time.Time) int {
	return firstOfMonth.AddDate(0, 1, -1).Day()
}

// EventOccurrence is one materialized instance of a RecurringEvent.
type EventOccurrence struct {
	ID       string    `db:"id"`
	EventID  string    `db:"event_id"`
	StartsAt time.Time `db:"starts_at"`
}

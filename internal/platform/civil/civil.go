// Package civil converts instants to calendar days in the billing time zone.
//
// Date-only columns (validity periods, hospitalizations, invoice dates) are
// carried as time.Time values at midnight UTC, which is how pgx scans the
// PostgreSQL date type. Prestation timestamps are instants and are reduced to
// a day with Day before they are compared with those columns.
package civil

import "time"

// Day returns the calendar day of t in loc, as midnight UTC.
func Day(t time.Time, loc *time.Location) time.Time {
	if loc != nil {
		t = t.In(loc)
	}
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Date builds a day value.
func Date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// StartOf returns the first instant of day in loc.
func StartOf(day time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	y, m, d := day.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}

// EndOf returns the last instant of day in loc.
func EndOf(day time.Time, loc *time.Location) time.Time {
	return StartOf(day, loc).AddDate(0, 0, 1).Add(-time.Nanosecond)
}

// Before reports whether day a precedes day b, ignoring the clock.
func Before(a, b time.Time) bool {
	return Day(a, nil).Before(Day(b, nil))
}

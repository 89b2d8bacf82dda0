package service

import "time"

// Clock returns the current instant.
type Clock func() time.Time

// Calendar turns instants into civil dates of the configured timezone.
// Dates are returned as UTC midnight, the way DATE columns are scanned.
type Calendar struct {
	Now      Clock
	Location *time.Location
}

// NewCalendar uses time.Now when now is nil and UTC when loc is nil.
func NewCalendar(now Clock, loc *time.Location) Calendar {
	if now == nil {
		now = time.Now
	}
	if loc == nil {
		loc = time.UTC
	}
	return Calendar{Now: now, Location: loc}
}

// Today is the current civil date.
func (c Calendar) Today() time.Time {
	return civilDate(c.Now().In(c.Location))
}

func civilDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

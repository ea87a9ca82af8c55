// Package sprint maps calendar instants to sprint indexes and back.
// Sprints are fixed 7-day windows aligned to Monday 00:00:00 UTC, numbered
// from 1 starting at the organization's creation week. All math is done in
// UTC so sprint boundaries are identical for every caller.
package sprint

import "time"

const daysPerSprint = 7

// Anchor returns Monday 00:00:00 UTC of the week containing created.
func Anchor(created time.Time) time.Time {
	created = created.UTC()
	offset := int(created.Weekday()) - int(time.Monday)
	if offset < 0 {
		offset += 7 // Sunday
	}
	monday := created.AddDate(0, 0, -offset)
	return time.Date(monday.Year(), monday.Month(), monday.Day(), 0, 0, 0, 0, time.UTC)
}

// IndexFor returns the 1-based sprint index for an instant, anchored to the
// organization's creation time. Instants earlier than the anchor Monday are
// bucketed by the magnitude of the difference, so the result is always
// positive; a zero creation time yields sprint 1.
func IndexFor(at, created time.Time) int {
	if created.IsZero() {
		return 1
	}
	diff := at.UTC().Sub(Anchor(created))
	if diff < 0 {
		diff = -diff
	}
	days := int(diff / (24 * time.Hour))
	return days/daysPerSprint + 1
}

// RangeFor returns the inclusive [start, end] dates of a sprint. The start
// is always a Monday 00:00:00 UTC and the end is the following Sunday, six
// days later. Indexes below 1 are treated as sprint 1.
func RangeFor(index int, created time.Time) (time.Time, time.Time) {
	if index < 1 {
		index = 1
	}
	start := Anchor(created).AddDate(0, 0, (index-1)*daysPerSprint)
	return start, start.AddDate(0, 0, daysPerSprint-1)
}

// Window returns the half-open [start, end) bounds of a sprint, suitable for
// filtering time-log entries whose start falls inside the sprint.
func Window(index int, created time.Time) (time.Time, time.Time) {
	start, _ := RangeFor(index, created)
	return start, start.AddDate(0, 0, daysPerSprint)
}

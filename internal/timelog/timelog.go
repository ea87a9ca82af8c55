// Package timelog holds the pure time-ledger math: applying an immutable
// session entry to a running total and re-aggregating entries into a weekday
// histogram. Persistence and locking stay at the caller; every function here
// is a pure transform of its inputs.
package timelog

import (
	"errors"
	"time"

	"sprintline/internal/domain"
)

// ErrNegativeDuration rejects sessions with a negative duration. Totals are
// monotonically non-decreasing; a negative entry would break that.
var ErrNegativeDuration = errors.New("time entry duration must be non-negative")

// WeekdayKeys lists histogram keys in order, Monday first.
var WeekdayKeys = []string{"Mon", "Tue", "Wed", "Thu", "Fri", "Sat", "Sun"}

// ApplyEntry returns the new running total after appending entry. The caller
// owns the read-modify-write around it; this only validates and adds.
func ApplyEntry(total int64, entry domain.TimeLogEntry) (int64, error) {
	if entry.DurationSeconds < 0 {
		return total, ErrNegativeDuration
	}
	return total + entry.DurationSeconds, nil
}

// Total folds ApplyEntry over a full ledger. Useful for verifying the
// stored total against the entries it is derived from.
func Total(entries []domain.TimeLogEntry) (int64, error) {
	var total int64
	for _, e := range entries {
		var err error
		if total, err = ApplyEntry(total, e); err != nil {
			return 0, err
		}
	}
	return total, nil
}

// WeeklyHistogram buckets entries whose start instant falls in
// [weekStart, weekEnd) by the weekday of that start, in whole minutes
// rounded to nearest. A session crossing midnight counts entirely toward its
// start day. Every weekday key is present, zero when empty. Entries with an
// unparseable start timestamp are skipped.
func WeeklyHistogram(entries []domain.TimeLogEntry, weekStart, weekEnd time.Time) map[string]int64 {
	hist := make(map[string]int64, len(WeekdayKeys))
	for _, key := range WeekdayKeys {
		hist[key] = 0
	}
	for _, e := range entries {
		started, err := time.Parse(time.RFC3339, e.StartedAt)
		if err != nil {
			continue
		}
		started = started.UTC()
		if started.Before(weekStart) || !started.Before(weekEnd) {
			continue
		}
		if e.DurationSeconds < 0 {
			continue
		}
		hist[started.Format("Mon")] += (e.DurationSeconds + 30) / 60
	}
	return hist
}

package sprint_test

import (
	"testing"
	"time"

	"sprintline/internal/sprint"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestAnchorIsMondayOfCreationWeek(t *testing.T) {
	cases := []struct {
		created time.Time
		want    time.Time
	}{
		{date(2024, time.January, 3), date(2024, time.January, 1)},  // Wednesday
		{date(2024, time.January, 1), date(2024, time.January, 1)},  // Monday itself
		{date(2024, time.January, 7), date(2024, time.January, 1)},  // Sunday belongs to prior Monday
		{date(2024, time.March, 31), date(2024, time.March, 25)},    // Sunday, month boundary
		{time.Date(2024, time.January, 3, 23, 59, 59, 0, time.UTC), date(2024, time.January, 1)},
	}
	for _, c := range cases {
		if got := sprint.Anchor(c.created); !got.Equal(c.want) {
			t.Errorf("Anchor(%v) = %v, want %v", c.created, got, c.want)
		}
	}
}

func TestIndexForCreationInstantIsOne(t *testing.T) {
	for _, created := range []time.Time{
		date(2024, time.January, 1),
		date(2024, time.January, 3),
		date(2024, time.January, 7),
		time.Date(2023, time.June, 15, 14, 30, 0, 0, time.UTC),
	} {
		if got := sprint.IndexFor(created, created); got != 1 {
			t.Errorf("IndexFor(created, created) = %d for %v, want 1", got, created)
		}
	}
}

func TestIndexForWednesdayAnchorScenario(t *testing.T) {
	// Organization created Wednesday 2024-01-03; anchor Monday is 2024-01-01.
	created := date(2024, time.January, 3)
	cases := []struct {
		at   time.Time
		want int
	}{
		{date(2024, time.January, 1), 1},
		{date(2024, time.January, 7), 1}, // Sunday still sprint 1
		{date(2024, time.January, 8), 2},
		{date(2024, time.January, 14), 2},
		{date(2024, time.January, 15), 3},
	}
	for _, c := range cases {
		if got := sprint.IndexFor(c.at, created); got != c.want {
			t.Errorf("IndexFor(%v) = %d, want %d", c.at, got, c.want)
		}
	}
}

func TestIndexForIsStepFunctionOfSevenDays(t *testing.T) {
	created := date(2024, time.January, 3)
	prev := 0
	for day := 0; day < 70; day++ {
		at := date(2024, time.January, 1).AddDate(0, 0, day)
		got := sprint.IndexFor(at, created)
		if got < prev {
			t.Fatalf("index decreased at %v: %d after %d", at, got, prev)
		}
		if want := day/7 + 1; got != want {
			t.Fatalf("IndexFor(%v) = %d, want %d", at, got, want)
		}
		prev = got
	}
}

func TestIndexForSameWeekIsStable(t *testing.T) {
	created := date(2024, time.January, 3)
	monday := date(2024, time.January, 8)
	for hours := 0; hours < 7*24; hours += 5 {
		at := monday.Add(time.Duration(hours) * time.Hour)
		if got := sprint.IndexFor(at, created); got != 2 {
			t.Fatalf("IndexFor(%v) = %d, want 2", at, got)
		}
	}
}

func TestIndexForBeforeAnchorUsesMagnitude(t *testing.T) {
	created := date(2024, time.January, 3)
	// Ten days before the anchor Monday: |diff| is 10 days, so sprint 2.
	if got := sprint.IndexFor(date(2023, time.December, 22), created); got != 2 {
		t.Errorf("pre-anchor index = %d, want 2", got)
	}
	// One day before the anchor still lands in sprint 1.
	if got := sprint.IndexFor(date(2023, time.December, 31), created); got != 1 {
		t.Errorf("pre-anchor index = %d, want 1", got)
	}
}

func TestIndexForZeroCreationDefaultsToOne(t *testing.T) {
	if got := sprint.IndexFor(date(2024, time.May, 20), time.Time{}); got != 1 {
		t.Errorf("IndexFor with zero creation = %d, want 1", got)
	}
}

func TestRangeForSpansSixDays(t *testing.T) {
	created := date(2024, time.January, 3)
	for index := 1; index <= 10; index++ {
		start, end := sprint.RangeFor(index, created)
		if start.Weekday() != time.Monday {
			t.Fatalf("sprint %d starts on %v, want Monday", index, start.Weekday())
		}
		if got := end.Sub(start); got != 6*24*time.Hour {
			t.Fatalf("sprint %d spans %v, want 144h", index, got)
		}
	}
}

func TestRangeForInvertsIndexFor(t *testing.T) {
	created := date(2024, time.February, 16) // Friday
	for index := 1; index <= 8; index++ {
		start, end := sprint.RangeFor(index, created)
		if got := sprint.IndexFor(start, created); got != index {
			t.Fatalf("IndexFor(start of %d) = %d", index, got)
		}
		if got := sprint.IndexFor(end, created); got != index {
			t.Fatalf("IndexFor(end of %d) = %d", index, got)
		}
	}
}

func TestWindowIsHalfOpen(t *testing.T) {
	created := date(2024, time.January, 3)
	start, end := sprint.Window(2, created)
	if !start.Equal(date(2024, time.January, 8)) {
		t.Errorf("window start = %v", start)
	}
	if !end.Equal(date(2024, time.January, 15)) {
		t.Errorf("window end = %v", end)
	}
}

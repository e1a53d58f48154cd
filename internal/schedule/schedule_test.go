package schedule

import (
	"testing"
	"time"
)

func intptr(v int) *int { return &v }

func TestNextRunDailyIsNextDayAtRunHour(t *testing.T) {
	now := time.Date(2026, 3, 10, 15, 30, 0, 0, time.UTC)
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	got := NextRun(IntervalDaily, nil, nil, start, now)
	want := time.Date(2026, 3, 11, 1, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("daily: got %v, want %v", got, want)
	}
}

func TestNextRunIsStrictlyFuture(t *testing.T) {
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	intervals := []Interval{IntervalDaily, IntervalWeekly, IntervalMonthly, IntervalYearly, Interval("BOGUS")}

	// Includes a now exactly at the run hour; the result must still move
	// forward.
	nows := []time.Time{
		time.Date(2026, 2, 28, 1, 0, 0, 0, time.UTC),
		time.Date(2026, 12, 31, 23, 59, 59, 0, time.UTC),
		time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC),
	}

	for _, interval := range intervals {
		for _, now := range nows {
			got := NextRun(interval, nil, nil, start, now)
			if !got.After(now) {
				t.Fatalf("%s from %v: got %v, not in the future", interval, now, got)
			}
			if got.Hour() != 1 || got.Minute() != 0 {
				t.Fatalf("%s from %v: got %v, not at 01:00", interval, now, got)
			}
		}
	}
}

func TestNextRunWeeklyTargetsRequestedWeekday(t *testing.T) {
	// 2026-03-11 is a Wednesday.
	now := time.Date(2026, 3, 11, 9, 0, 0, 0, time.UTC)
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	got := NextRun(IntervalWeekly, nil, intptr(int(time.Friday)), start, now)
	want := time.Date(2026, 3, 13, 1, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("weekly friday: got %v, want %v", got, want)
	}

	// Same weekday as now rolls a full week forward.
	got = NextRun(IntervalWeekly, nil, intptr(int(time.Wednesday)), start, now)
	want = time.Date(2026, 3, 18, 1, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("weekly same-day: got %v, want %v", got, want)
	}

	// Missing day of week defaults to Monday.
	got = NextRun(IntervalWeekly, nil, nil, start, now)
	want = time.Date(2026, 3, 16, 1, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("weekly default: got %v, want %v", got, want)
	}
}

func TestNextRunMonthlyClampsShortMonths(t *testing.T) {
	start := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	// Anchor 31 out of January lands on the last day of February.
	now := time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)
	got := NextRun(IntervalMonthly, intptr(31), nil, start, now)
	want := time.Date(2026, 2, 28, 1, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("monthly clamp: got %v, want %v", got, want)
	}

	// Leap year February keeps the 29th.
	now = time.Date(2028, 1, 15, 12, 0, 0, 0, time.UTC)
	got = NextRun(IntervalMonthly, intptr(31), nil, start, now)
	want = time.Date(2028, 2, 29, 1, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("monthly leap clamp: got %v, want %v", got, want)
	}

	// Anchor within range passes through untouched.
	now = time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	got = NextRun(IntervalMonthly, intptr(15), nil, start, now)
	want = time.Date(2026, 4, 15, 1, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("monthly anchor: got %v, want %v", got, want)
	}
}

func TestNextRunYearlyAdvancesOneYear(t *testing.T) {
	start := time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC)
	now := time.Date(2026, 2, 10, 8, 0, 0, 0, time.UTC)

	got := NextRun(IntervalYearly, intptr(29), nil, start, now)
	want := time.Date(2027, 2, 28, 1, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("yearly clamp: got %v, want %v", got, want)
	}
}

func TestNextRunHonorsFutureStartDate(t *testing.T) {
	now := time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC)
	start := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)

	got := NextRun(IntervalDaily, nil, nil, start, now)
	want := time.Date(2026, 5, 2, 1, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("future start: got %v, want %v", got, want)
	}
}

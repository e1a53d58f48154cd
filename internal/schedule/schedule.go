// Package schedule computes the next run instant for recurring-template
// intervals. All arithmetic is in UTC and the result is always strictly in
// the future.
package schedule

import "time"

// Interval is the recurrence of a template.
type Interval string

const (
	IntervalDaily   Interval = "DAILY"
	IntervalWeekly  Interval = "WEEKLY"
	IntervalMonthly Interval = "MONTHLY"
	IntervalYearly  Interval = "YEARLY"
)

// runHour is the fixed UTC hour all scheduled runs fire at.
const runHour = 1

// NextRun computes the next run instant from the template's original start
// date, never from its last run. anchorDay (1-31) applies to MONTHLY and
// YEARLY; dayOfWeek (0=Sunday..6) applies to WEEKLY. An unrecognized interval
// falls back to the daily rule, so a template can never compute itself into
// the past.
func NextRun(interval Interval, anchorDay, dayOfWeek *int, startDate, now time.Time) time.Time {
	base := now.UTC()
	if startDate.After(base) {
		base = startDate.UTC()
	}

	switch interval {
	case IntervalWeekly:
		return nextWeekly(base, dayOfWeek)
	case IntervalMonthly:
		return nextMonthly(base, anchorDay)
	case IntervalYearly:
		return nextYearly(base, anchorDay)
	default:
		return at(base.AddDate(0, 0, 1))
	}
}

func nextWeekly(base time.Time, dayOfWeek *int) time.Time {
	target := int(time.Monday)
	if dayOfWeek != nil && *dayOfWeek >= 0 && *dayOfWeek <= 6 {
		target = *dayOfWeek
	}
	delta := target - int(base.Weekday())
	if delta <= 0 {
		delta += 7
	}
	return at(base.AddDate(0, 0, delta))
}

func nextMonthly(base time.Time, anchorDay *int) time.Time {
	day := 1
	if anchorDay != nil && *anchorDay >= 1 && *anchorDay <= 31 {
		day = *anchorDay
	}
	// Advance from the first of the month so a 31st anchor cannot skip
	// February via normalization.
	firstOfNext := time.Date(base.Year(), base.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, 1, 0)
	return at(clampDay(firstOfNext, day))
}

func nextYearly(base time.Time, anchorDay *int) time.Time {
	next := time.Date(base.Year()+1, base.Month(), 1, 0, 0, 0, 0, time.UTC)
	day := base.Day()
	if anchorDay != nil && *anchorDay >= 1 && *anchorDay <= 31 {
		day = *anchorDay
	}
	return at(clampDay(next, day))
}

// clampDay sets the day of month, clamping to the month's last day for short
// months (anchor 31 in February yields the 28th or 29th).
func clampDay(monthStart time.Time, day int) time.Time {
	last := monthStart.AddDate(0, 1, -monthStart.Day()).Day()
	if day > last {
		day = last
	}
	return time.Date(monthStart.Year(), monthStart.Month(), day, 0, 0, 0, 0, time.UTC)
}

func at(day time.Time) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day(), runHour, 0, 0, 0, time.UTC)
}

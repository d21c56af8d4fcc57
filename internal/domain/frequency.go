package domain

import "time"

// Frequency is a job cadence. The hosting platform only honors four
// scheduling granularities, so anything else is normalized to daily.
type Frequency string

const (
	FreqDaily   Frequency = "daily"
	FreqWeekly  Frequency = "weekly"
	FreqMonthly Frequency = "monthly"
	FreqYearly  Frequency = "yearly"
)

// Valid reports whether f is one of the four allowed cadences.
func (f Frequency) Valid() bool {
	switch f {
	case FreqDaily, FreqWeekly, FreqMonthly, FreqYearly:
		return true
	}
	return false
}

// NormalizeFrequency coerces f to an allowed cadence. The second return
// is false when f had to be downgraded to daily, so callers can surface
// a warning instead of coercing silently.
func NormalizeFrequency(f Frequency) (Frequency, bool) {
	if f.Valid() {
		return f, true
	}
	return FreqDaily, false
}

// CronExpr returns the cron expression for the cadence, used by the
// trigger loop. Unknown cadences map to the daily expression.
func (f Frequency) CronExpr() string {
	switch f {
	case FreqWeekly:
		return "0 0 * * 0"
	case FreqMonthly:
		return "0 0 1 * *"
	case FreqYearly:
		return "0 0 1 1 *"
	default:
		return "0 0 * * *"
	}
}

// NextRun computes the next due time from a reference instant. This is
// plain calendar arithmetic, not cron evaluation: daily and weekly add
// whole days, monthly snaps to the 1st of the next month, yearly to
// Jan 1 of the next year.
func (f Frequency) NextRun(from time.Time) time.Time {
	from = from.UTC()
	switch f {
	case FreqWeekly:
		return from.AddDate(0, 0, 7)
	case FreqMonthly:
		return time.Date(from.Year(), from.Month()+1, 1, 0, 0, 0, 0, time.UTC)
	case FreqYearly:
		return time.Date(from.Year()+1, time.January, 1, 0, 0, 0, 0, time.UTC)
	default:
		return from.AddDate(0, 0, 1)
	}
}

package finance

import "time"

// Frequency is how often a recurring template runs
type Frequency string

const (
	FrequencyDaily     Frequency = "DAILY"
	FrequencyWeekly    Frequency = "WEEKLY"
	FrequencyBiweekly  Frequency = "BIWEEKLY"
	FrequencyMonthly   Frequency = "MONTHLY"
	FrequencyQuarterly Frequency = "QUARTERLY"
	FrequencyAnnually  Frequency = "ANNUALLY"
)

// IsValid checks if the frequency is known
func (f Frequency) IsValid() bool {
	switch f {
	case FrequencyDaily, FrequencyWeekly, FrequencyBiweekly,
		FrequencyMonthly, FrequencyQuarterly, FrequencyAnnually:
		return true
	}
	return false
}

// months returns the month step for month-based frequencies, 0 otherwise
func (f Frequency) months() int {
	switch f {
	case FrequencyMonthly:
		return 1
	case FrequencyQuarterly:
		return 3
	case FrequencyAnnually:
		return 12
	}
	return 0
}

// NextRunDate computes the run after from.
//
// WEEKLY adds seven days and then moves forward to dayOfWeek (0 = Sunday), so
// the result lands 7 to 13 days after from. Month-based frequencies keep the
// day of month (dayOfMonth when set) and clamp it to the length of the target
// month.
func NextRunDate(from time.Time, f Frequency, dayOfMonth, dayOfWeek *int) time.Time {
	from = truncateDay(from)
	switch f {
	case FrequencyDaily:
		return from.AddDate(0, 0, 1)
	case FrequencyWeekly:
		next := from.AddDate(0, 0, 7)
		if dayOfWeek != nil {
			shift := (*dayOfWeek - int(next.Weekday()) + 7) % 7
			next = next.AddDate(0, 0, shift)
		}
		return next
	case FrequencyBiweekly:
		return from.AddDate(0, 0, 14)
	}

	step := f.months()
	if step == 0 {
		return from
	}
	day := from.Day()
	if dayOfMonth != nil {
		day = *dayOfMonth
	}
	return addMonthsClamped(from, step, day)
}

// addMonthsClamped moves to the first of the target month before applying day
// so that January 31 plus one month is February 28, not March 3
func addMonthsClamped(from time.Time, months, day int) time.Time {
	first := time.Date(from.Year(), from.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, months, 0)
	last := daysIn(first.Year(), first.Month())
	if day > last {
		day = last
	}
	if day < 1 {
		day = 1
	}
	return time.Date(first.Year(), first.Month(), day, 0, 0, 0, 0, time.UTC)
}

func daysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

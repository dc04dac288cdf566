package domain

import "time"

// DayLayout is the ISO calendar-day format used for timeline buckets and search qualifiers.
const DayLayout = "2006-01-02"

// TimeFilter names a query window ending today.
type TimeFilter string

const (
	FilterTwoWeeks    TimeFilter = "2w"
	FilterOneMonth    TimeFilter = "1m"
	FilterThreeMonths TimeFilter = "3m"
	FilterSixMonths   TimeFilter = "6m"
	FilterAll         TimeFilter = "all"

	DefaultTimeFilter = FilterOneMonth
)

var filterDays = map[TimeFilter]int{
	FilterTwoWeeks:    14,
	FilterOneMonth:    30,
	FilterThreeMonths: 90,
	FilterSixMonths:   180,
}

// ParseTimeFilter maps user input to a TimeFilter. Empty input selects DefaultTimeFilter.
func ParseTimeFilter(s string) (TimeFilter, error) {
	if s == "" {
		return DefaultTimeFilter, nil
	}
	f := TimeFilter(s)
	if f == FilterAll {
		return f, nil
	}
	if _, ok := filterDays[f]; !ok {
		return "", NewValidationError("time filter", s, "must be one of 2w, 1m, 3m, 6m, all")
	}
	return f, nil
}

// StartDate returns UTC midnight of the first day inside the window, relative to now.
// FilterAll starts at the Unix epoch.
func (f TimeFilter) StartDate(now time.Time) time.Time {
	days, ok := filterDays[f]
	if !ok {
		return time.Unix(0, 0).UTC()
	}
	return StartOfDay(now).AddDate(0, 0, -days)
}

// StartOfDay truncates t to UTC midnight.
func StartOfDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// DaysBetween counts whole calendar days from start to end (UTC).
func DaysBetween(start, end time.Time) int {
	return int(StartOfDay(end).Sub(StartOfDay(start)).Hours() / 24)
}

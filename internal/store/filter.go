package store

import "time"

// GasRange is an inclusive gas value range.
type GasRange struct {
	Min int
	Max int
}

// Filter selects log entries. Zero time bounds are open; a nil Gas matches
// every value. Both bounds are inclusive.
type Filter struct {
	From time.Time
	To   time.Time
	Gas  *GasRange
}

// Day returns a filter covering the calendar day of d in d's location.
func Day(d time.Time) Filter {
	start := time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, d.Location())
	return Filter{From: start, To: start.AddDate(0, 0, 1).Add(-time.Second)}
}

// Days returns a filter covering whole calendar days from the start of
// "from" to the end of "to".
func Days(from, to time.Time) Filter {
	return Filter{From: Day(from).From, To: Day(to).To}
}

// Match reports whether e satisfies the filter.
func (f Filter) Match(e Entry) bool {
	if !f.From.IsZero() && e.Timestamp.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && e.Timestamp.After(f.To) {
		return false
	}
	if f.Gas != nil && (e.Gas < f.Gas.Min || e.Gas > f.Gas.Max) {
		return false
	}
	return true
}

package core

import "time"

const (
	DefaultPageLimit = 50
	MaxPageLimit     = 99999
)

// Page selects a slice of an ordered result. Page is zero-based; nil fields are unset.
type Page struct {
	Page  *int
	Limit *int
}

// Resolve returns the rows to skip and the maximum rows to return.
// Without an explicit limit, a set page implies DefaultPageLimit and an unset one MaxPageLimit.
func (p Page) Resolve() (skip, limit int) {
	limit = MaxPageLimit
	if p.Page != nil {
		limit = DefaultPageLimit
	}
	if p.Limit != nil && *p.Limit > 0 {
		limit = *p.Limit
	}
	if limit > MaxPageLimit {
		limit = MaxPageLimit
	}
	if p.Page != nil && *p.Page > 0 {
		skip = *p.Page * limit
	}
	return skip, limit
}

// MonthRange returns [first instant of date's month, first instant of the next month) in date's location.
func MonthRange(date time.Time) (time.Time, time.Time) {
	start := time.Date(date.Year(), date.Month(), 1, 0, 0, 0, 0, date.Location())
	return start, start.AddDate(0, 1, 0)
}

// DayRange returns [midnight of date, midnight of the next day) in date's location.
func DayRange(date time.Time) (time.Time, time.Time) {
	start := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, date.Location())
	return start, start.AddDate(0, 0, 1)
}

package model

import (
	"fmt"
	"time"
)

// Date is a calendar date with no time component. The zero value is the
// zero date and sorts before every real date.
type Date struct {
	t time.Time
}

// NewDate builds a date from its components.
func NewDate(year int, month time.Month, day int) Date {
	return Date{t: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// DateOf truncates an instant to its calendar date.
func DateOf(t time.Time) Date {
	return NewDate(t.Year(), t.Month(), t.Day())
}

// ParseDate parses a YYYY-MM-DD string.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return Date{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return Date{t: t}, nil
}

func (d Date) String() string {
	return d.t.Format("2006-01-02")
}

// IsZero reports whether the date is the zero value.
func (d Date) IsZero() bool { return d.t.IsZero() }

// Time returns the date as a UTC midnight instant.
func (d Date) Time() time.Time { return d.t }

// Year returns the calendar year.
func (d Date) Year() int { return d.t.Year() }

// Month returns the calendar month.
func (d Date) Month() time.Month { return d.t.Month() }

// Before reports whether d is earlier than other.
func (d Date) Before(other Date) bool { return d.t.Before(other.t) }

// After reports whether d is later than other.
func (d Date) After(other Date) bool { return d.t.After(other.t) }

// Equal reports whether two dates are the same day.
func (d Date) Equal(other Date) bool { return d.t.Equal(other.t) }

// AddDays returns the date shifted by n days.
func (d Date) AddDays(n int) Date {
	return Date{t: d.t.AddDate(0, 0, n)}
}

// EpochDays returns the number of days since the Unix epoch.
func (d Date) EpochDays() int {
	return int(d.t.Unix() / 86400)
}

// DaysBetween returns the absolute difference between two dates in days.
func DaysBetween(a, b Date) int {
	diff := a.EpochDays() - b.EpochDays()
	if diff < 0 {
		diff = -diff
	}
	return diff
}

// DateWindow is an inclusive [From, To] date range. A zero boundary
// means unbounded on that side.
type DateWindow struct {
	From Date
	To   Date
}

// Contains reports whether the window includes the date. Both ends are
// inclusive, so From == To matches exactly one day.
func (w DateWindow) Contains(d Date) bool {
	if !w.From.IsZero() && d.Before(w.From) {
		return false
	}
	if !w.To.IsZero() && d.After(w.To) {
		return false
	}
	return true
}

// IsZero reports whether the window is unbounded on both sides.
func (w DateWindow) IsZero() bool {
	return w.From.IsZero() && w.To.IsZero()
}

package cli

import (
	"time"

	"github.com/beansync/beansync/internal/model"
)

// nowFunc is swapped in tests that pin the named windows.
var nowFunc = time.Now

// windowSpec is the parsed form of the window flags.
type windowSpec struct {
	from, to  string
	thisMonth bool
	lastMonth bool
	thisYear  bool
	lastYear  bool
}

func currentWindowSpec() windowSpec {
	return windowSpec{
		from: flagFrom, to: flagTo,
		thisMonth: flagThisMonth, lastMonth: flagLastMonth,
		thisYear: flagThisYear, lastYear: flagLastYear,
	}
}

// resolveWindow turns the window flags into a date window. The named
// shortcuts are mutually exclusive with each other and with explicit
// bounds, and --to without --from is rejected since an open start with
// a capped end has no sensible sync meaning.
func (w windowSpec) resolveWindow(now time.Time) (model.DateWindow, error) {
	shortcuts := 0
	for _, set := range []bool{w.thisMonth, w.lastMonth, w.thisYear, w.lastYear} {
		if set {
			shortcuts++
		}
	}
	if shortcuts > 1 {
		return model.DateWindow{}, usagef("at most one of --this-month, --last-month, --this-year, --last-year may be given")
	}
	if shortcuts == 1 && (w.from != "" || w.to != "") {
		return model.DateWindow{}, usagef("named windows cannot be combined with --from/--to")
	}
	if w.to != "" && w.from == "" {
		return model.DateWindow{}, usagef("--to requires --from")
	}

	year, month, _ := now.Date()
	switch {
	case w.thisMonth:
		return monthWindow(year, month), nil
	case w.lastMonth:
		prev := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC).AddDate(0, -1, 0)
		return monthWindow(prev.Year(), prev.Month()), nil
	case w.thisYear:
		return yearWindow(year), nil
	case w.lastYear:
		return yearWindow(year - 1), nil
	}

	var out model.DateWindow
	if w.from != "" {
		d, err := model.ParseDate(w.from)
		if err != nil {
			return model.DateWindow{}, usagef("--from: %v", err)
		}
		out.From = d
	}
	if w.to != "" {
		d, err := model.ParseDate(w.to)
		if err != nil {
			return model.DateWindow{}, usagef("--to: %v", err)
		}
		out.To = d
	}
	if !out.From.IsZero() && !out.To.IsZero() && out.To.Before(out.From) {
		return model.DateWindow{}, usagef("--to %s is before --from %s", w.to, w.from)
	}
	return out, nil
}

func monthWindow(year int, month time.Month) model.DateWindow {
	first := model.NewDate(year, month, 1)
	return model.DateWindow{From: first, To: first.AddDays(daysInMonth(year, month) - 1)}
}

func daysInMonth(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

func yearWindow(year int) model.DateWindow {
	return model.DateWindow{
		From: model.NewDate(year, time.January, 1),
		To:   model.NewDate(year, time.December, 31),
	}
}

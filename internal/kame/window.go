package kame

import "time"

// Window is an inclusive due-date range, at most one calendar month long.
type Window struct {
	Start time.Time
	End   time.Time
}

// Month returns the YYYY-MM label of the window.
func (w Window) Month() string {
	return w.Start.Format("2006-01")
}

// MonthWindows splits [from, to] into calendar-month windows. The first
// window starts at from and the last one ends at to.
func MonthWindows(from, to time.Time) []Window {
	start := dateOf(from)
	end := dateOf(to)
	var windows []Window
	for !start.After(end) {
		next := time.Date(start.Year(), start.Month()+1, 1, 0, 0, 0, 0, time.UTC)
		chunkEnd := next.AddDate(0, 0, -1)
		if chunkEnd.After(end) {
			chunkEnd = end
		}
		windows = append(windows, Window{Start: start, End: chunkEnd})
		start = next
	}
	return windows
}

func dateOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

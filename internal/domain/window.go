package domain

import (
	"fmt"
	"time"
)

// DateLayout is the calendar-date format used for record dates and checkpoints.
const DateLayout = "2006-01-02"

// Window is a half-open time range [Start, End).
type Window struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Day truncates t to midnight UTC of its calendar day.
func Day(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// DayWindow returns [day, day+1d).
func DayWindow(day time.Time) Window {
	return TrailingWindow(day, 1)
}

// TrailingWindow returns the window covering the given number of calendar
// days ending with day, i.e. [day-(days-1)d, day+1d).
func TrailingWindow(day time.Time, days int) Window {
	d := Day(day)
	return Window{
		Start: d.AddDate(0, 0, -(days - 1)),
		End:   d.AddDate(0, 0, 1),
	}
}

// Contains reports whether t falls inside the window.
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && t.Before(w.End)
}

// Valid reports whether the window is non-empty.
func (w Window) Valid() bool {
	return w.End.After(w.Start)
}

func (w Window) String() string {
	return fmt.Sprintf("[%s, %s)", w.Start.UTC().Format(time.RFC3339), w.End.UTC().Format(time.RFC3339))
}

// ParseDate parses a YYYY-MM-DD calendar date as midnight UTC.
func ParseDate(s string) (time.Time, error) {
	return time.ParseInLocation(DateLayout, s, time.UTC)
}

// Package calendar connects a user's external calendar and turns its events
// into day, week and month views.
package calendar

import (
	"fmt"
	"strings"
	"time"
)

// ViewMode selects the span of a calendar view.
type ViewMode string

const (
	ModeDay   ViewMode = "day"
	ModeWeek  ViewMode = "week"
	ModeMonth ViewMode = "month"
)

// ParseViewMode parses a mode name. The empty string means week.
func ParseViewMode(s string) (ViewMode, error) {
	switch ViewMode(strings.ToLower(strings.TrimSpace(s))) {
	case "", ModeWeek:
		return ModeWeek, nil
	case ModeDay:
		return ModeDay, nil
	case ModeMonth:
		return ModeMonth, nil
	}
	return "", fmt.Errorf("unknown view mode %q", s)
}

// Range is an inclusive time window. End is the last nanosecond of the
// final day.
type Range struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Contains reports whether t falls inside the range.
func (r Range) Contains(t time.Time) bool {
	return !t.Before(r.Start) && !t.After(r.End)
}

// Days returns the number of calendar days the range spans.
func (r Range) Days() int {
	n := 0
	for d := r.Start; !d.After(r.End); d = d.AddDate(0, 0, 1) {
		n++
	}
	return n
}

// StartOfDay returns midnight of t's day in t's location.
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// EndOfDay returns the last nanosecond of t's day.
func EndOfDay(t time.Time) time.Time {
	return StartOfDay(t).AddDate(0, 0, 1).Add(-time.Nanosecond)
}

// StartOfWeek returns midnight of the Sunday on or before t.
func StartOfWeek(t time.Time) time.Time {
	day := StartOfDay(t)
	return day.AddDate(0, 0, -int(day.Weekday()))
}

// EndOfWeek returns the last nanosecond of the Saturday on or after t.
func EndOfWeek(t time.Time) time.Time {
	return StartOfWeek(t).AddDate(0, 0, 7).Add(-time.Nanosecond)
}

func startOfMonth(t time.Time) time.Time {
	y, m, _ := t.Date()
	return time.Date(y, m, 1, 0, 0, 0, 0, t.Location())
}

func endOfMonth(t time.Time) time.Time {
	return startOfMonth(t).AddDate(0, 1, 0).Add(-time.Nanosecond)
}

// ComputeRange returns the window shown for ref in the given mode. Month
// views are padded to whole weeks.
func ComputeRange(ref time.Time, mode ViewMode) Range {
	switch mode {
	case ModeDay:
		return Range{Start: StartOfDay(ref), End: EndOfDay(ref)}
	case ModeMonth:
		return Range{Start: StartOfWeek(startOfMonth(ref)), End: EndOfWeek(endOfMonth(ref))}
	default:
		return Range{Start: StartOfWeek(ref), End: EndOfWeek(ref)}
	}
}

// Shift moves ref by n periods of mode. Month steps clamp the day of month,
// so Jan 31 plus one month is the last day of February.
func Shift(ref time.Time, mode ViewMode, n int) time.Time {
	switch mode {
	case ModeDay:
		return ref.AddDate(0, 0, n)
	case ModeMonth:
		y, m, d := ref.Date()
		first := time.Date(y, m+time.Month(n), 1, ref.Hour(), ref.Minute(), ref.Second(), ref.Nanosecond(), ref.Location())
		if last := daysIn(first); d > last {
			d = last
		}
		return first.AddDate(0, 0, d-1)
	default:
		return ref.AddDate(0, 0, 7*n)
	}
}

func daysIn(t time.Time) int {
	return endOfMonth(t).Day()
}

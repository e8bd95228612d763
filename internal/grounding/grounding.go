// Package grounding builds the explicit weekday-to-date table handed to the
// response interpreter. Free-text date reasoning produces systematic day/date
// mismatches ("Monday" resolved to the wrong week, December dates rolled into
// the wrong year); supplying a concrete mapping for a fixed lookahead window
// eliminates that failure mode by construction. The package is deterministic,
// dependency-free, and safe for concurrent use: a Table is immutable after
// construction.
package grounding

import (
	"fmt"
	"strings"
	"time"
)

// DefaultLookaheadDays is the window length used when a caller passes a
// non-positive lookahead. Three weeks guarantees every weekday name appears
// at least twice, which keeps "next Monday" unambiguous.
const DefaultLookaheadDays = 21

// Day is one dated entry of the grounding window.
type Day struct {
	Date    time.Time // midnight, in the table's location
	Weekday time.Weekday
}

// Table maps weekday names to concrete dates for a fixed window starting the
// day after Today. Today itself is excluded: a prospect writing "Monday" on a
// Monday invariably means the following week.
type Table struct {
	Today time.Time
	Days  []Day
}

// Build computes the grounding window from today's date in today's location.
// The time-of-day component of today is ignored.
func Build(today time.Time, lookaheadDays int) Table {
	if lookaheadDays <= 0 {
		lookaheadDays = DefaultLookaheadDays
	}
	base := midnight(today)
	days := make([]Day, 0, lookaheadDays)
	for i := 1; i <= lookaheadDays; i++ {
		d := base.AddDate(0, 0, i)
		days = append(days, Day{Date: d, Weekday: d.Weekday()})
	}
	return Table{Today: base, Days: days}
}

// Next returns the first date in the window falling on the given weekday.
// ok is false when the window is empty.
func (t Table) Next(w time.Weekday) (time.Time, bool) {
	for _, d := range t.Days {
		if d.Weekday == w {
			return d.Date, true
		}
	}
	return time.Time{}, false
}

// ResolveDayTime grounds a weekday plus wall-clock time to a concrete instant
// on the next occurrence of that weekday within the window.
func (t Table) ResolveDayTime(w time.Weekday, hour, minute int) (time.Time, bool) {
	d, ok := t.Next(w)
	if !ok {
		return time.Time{}, false
	}
	return time.Date(d.Year(), d.Month(), d.Day(), hour, minute, 0, 0, d.Location()), true
}

// Contains reports whether the instant's calendar date lies inside the window.
// Instants on Today itself are rejected along with anything already past.
func (t Table) Contains(instant time.Time) bool {
	day := midnight(instant.In(t.Today.Location()))
	if len(t.Days) == 0 {
		return false
	}
	first := t.Days[0].Date
	last := t.Days[len(t.Days)-1].Date
	return !day.Before(first) && !day.After(last)
}

// Filter returns the subset of instants whose dates fall inside the window,
// preserving order. Instants that fail grounding are simply dropped; the
// caller decides whether an empty result downgrades the interpretation.
func (t Table) Filter(instants []time.Time) []time.Time {
	out := make([]time.Time, 0, len(instants))
	for _, in := range instants {
		if t.Contains(in) {
			out = append(out, in)
		}
	}
	return out
}

// Render produces the prompt fragment: one "Weekday, Month Day -> YYYY-MM-DD"
// line per window day, followed by a year-disambiguation sentence whenever the
// window spans a calendar year boundary. The exact December/January mapping is
// spelled out so the interpreter never has to guess which year "Jan 5" means.
func (t Table) Render() string {
	var b strings.Builder
	b.WriteString("Calendar for the next ")
	fmt.Fprintf(&b, "%d days (today is %s, %s):\n", len(t.Days), t.Today.Weekday(), t.Today.Format("2006-01-02"))
	for _, d := range t.Days {
		fmt.Fprintf(&b, "  %s, %s %d -> %s\n", d.Weekday, d.Date.Month(), d.Date.Day(), d.Date.Format("2006-01-02"))
	}
	if note := t.yearNote(); note != "" {
		b.WriteString(note)
		b.WriteByte('\n')
	}
	return b.String()
}

// yearNote returns the year-disambiguation sentence, or "" when the window
// stays within one calendar year.
func (t Table) yearNote() string {
	if len(t.Days) == 0 {
		return ""
	}
	firstYear := t.Days[0].Date.Year()
	lastYear := t.Days[len(t.Days)-1].Date.Year()
	if firstYear == lastYear {
		return ""
	}
	var months []string
	seen := map[string]bool{}
	for _, d := range t.Days {
		key := fmt.Sprintf("%s dates are in %d", d.Date.Month(), d.Date.Year())
		if !seen[key] {
			seen[key] = true
			months = append(months, key)
		}
	}
	return "Year note: " + strings.Join(months, "; ") + "."
}

// ParseWeekday maps an English weekday name (full or common three-letter
// abbreviation, any case) to a time.Weekday.
func ParseWeekday(s string) (time.Weekday, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "sunday", "sun":
		return time.Sunday, true
	case "monday", "mon":
		return time.Monday, true
	case "tuesday", "tue", "tues":
		return time.Tuesday, true
	case "wednesday", "wed", "weds":
		return time.Wednesday, true
	case "thursday", "thu", "thur", "thurs":
		return time.Thursday, true
	case "friday", "fri":
		return time.Friday, true
	case "saturday", "sat":
		return time.Saturday, true
	}
	return 0, false
}

func midnight(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

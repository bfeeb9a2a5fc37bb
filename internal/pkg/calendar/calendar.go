// Package calendar derives period keys and reset boundaries from a single
// reference timezone. Server-local time is never consulted.
package calendar

import (
	"fmt"
	"math"
	"time"
	_ "time/tzdata"
)

const DefaultZone = "America/Sao_Paulo"

const dayLayout = "2006-01-02"

// fallbackZone is used when the tz database has no entry for DefaultZone.
var fallbackZone = time.FixedZone("UTC-03", -3*60*60)

// LoadZone resolves the reference timezone. An unknown DefaultZone degrades
// to a fixed UTC-03:00 offset and reports the lookup error alongside it.
func LoadZone(name string) (*time.Location, error) {
	if name == "" {
		name = DefaultZone
	}
	loc, err := time.LoadLocation(name)
	if err == nil {
		return loc, nil
	}
	if name == DefaultZone {
		return fallbackZone, fmt.Errorf("load zone %q, using fixed offset: %w", name, err)
	}
	return nil, fmt.Errorf("load zone %q: %w", name, err)
}

// NextMidnight returns the next local midnight in loc strictly after now.
func NextMidnight(now time.Time, loc *time.Location) time.Time {
	local := now.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day()+1, 0, 0, 0, 0, loc)
}

// NextMonth returns the first instant of the next calendar month in loc.
func NextMonth(now time.Time, loc *time.Location) time.Time {
	local := now.In(loc)
	return time.Date(local.Year(), local.Month()+1, 1, 0, 0, 0, 0, loc)
}

// SecondsUntilNextBoundary is the TTL for every calendar-aligned daily
// counter: whole seconds until the next midnight in loc, never less than 1.
func SecondsUntilNextBoundary(now time.Time, loc *time.Location) int {
	return ceilSeconds(NextMidnight(now, loc).Sub(now))
}

// SecondsUntilNextMonth is the monthly counterpart of SecondsUntilNextBoundary.
func SecondsUntilNextMonth(now time.Time, loc *time.Location) int {
	return ceilSeconds(NextMonth(now, loc).Sub(now))
}

func ceilSeconds(d time.Duration) int {
	s := int(math.Ceil(d.Seconds()))
	if s < 1 {
		return 1
	}
	return s
}

// Day is the daily period key for now: the reference-zone calendar date,
// stored as midnight UTC so it compares equal across drivers.
func Day(now time.Time, loc *time.Location) time.Time {
	local := now.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, time.UTC)
}

// Month is the monthly period key for now: the first day of the
// reference-zone month, stored as midnight UTC.
func Month(now time.Time, loc *time.Location) time.Time {
	local := now.In(loc)
	return time.Date(local.Year(), local.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// DayKey formats a daily period key.
func DayKey(t time.Time) string {
	return Date(t).Format(dayLayout)
}

// ParseDay parses a YYYY-MM-DD date into a daily period key.
func ParseDay(s string) (time.Time, error) {
	t, err := time.Parse(dayLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse day %q: %w", s, err)
	}
	return t, nil
}

// ParseMonth parses YYYY-MM into a monthly period key.
func ParseMonth(s string) (time.Time, error) {
	t, err := time.Parse("2006-01", s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse month %q: %w", s, err)
	}
	return t, nil
}

// Date drops the clock part of t, keeping t's own calendar fields.
func Date(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// Days lists every daily key from..to inclusive, ascending.
func Days(from, to time.Time) []time.Time {
	from, to = Date(from), Date(to)
	var out []time.Time
	for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
		out = append(out, d)
	}
	return out
}

// Months lists every monthly key from..to inclusive, ascending.
func Months(from, to time.Time) []time.Time {
	from = time.Date(from.Year(), from.Month(), 1, 0, 0, 0, 0, time.UTC)
	to = time.Date(to.Year(), to.Month(), 1, 0, 0, 0, 0, time.UTC)
	var out []time.Time
	for m := from; !m.After(to); m = m.AddDate(0, 1, 0) {
		out = append(out, m)
	}
	return out
}

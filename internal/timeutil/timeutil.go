package timeutil

import (
	"errors"
	"fmt"
	"time"
)

// SlotLength is the canonical appointment slot size.
const SlotLength = 30 * time.Minute

// ErrUnrecognizedDateTime is returned when an input matches none of the
// accepted date-time shapes.
var ErrUnrecognizedDateTime = errors.New("unrecognized date-time format")

// ErrUnrecognizedDate is returned for calendar-date inputs that are not YYYY-MM-DD.
var ErrUnrecognizedDate = errors.New("unrecognized date format")

// Zone anchors every human-facing time computation in the clinic's local
// timezone. Instants themselves are stored as absolute values.
type Zone struct {
	loc *time.Location
}

// LoadZone resolves an IANA timezone name, e.g. "Asia/Kolkata".
func LoadZone(name string) (*Zone, error) {
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("timeutil: load zone %q: %w", name, err)
	}
	return &Zone{loc: loc}, nil
}

// MustLoadZone is LoadZone for wiring code where the zone name is static.
func MustLoadZone(name string) *Zone {
	z, err := LoadZone(name)
	if err != nil {
		panic(err)
	}
	return z
}

// Location exposes the underlying *time.Location.
func (z *Zone) Location() *time.Location {
	return z.loc
}

// dateTimeLayouts are tried in priority order. Zoned ISO-8601 wins; bare
// shapes are interpreted in the local zone.
var zonedLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
}

var bareLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05.000",
	"2006-01-02T15:04",
}

// ParseDateTime parses a date-time input into an unambiguous instant.
// ISO-8601 with an explicit offset is honored as-is; bare ISO and the
// "YYYY-MM-DD HH:MM:SS" shape are interpreted in the clinic zone.
func (z *Zone) ParseDateTime(input string) (time.Time, error) {
	for _, layout := range zonedLayouts {
		if t, err := time.Parse(layout, input); err == nil {
			return t, nil
		}
	}
	for _, layout := range bareLayouts {
		if t, err := time.ParseInLocation(layout, input, z.loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("timeutil: %w: %q", ErrUnrecognizedDateTime, input)
}

// ParseDate parses a YYYY-MM-DD calendar date as local midnight.
func (z *Zone) ParseDate(input string) (time.Time, error) {
	t, err := time.ParseInLocation("2006-01-02", input, z.loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("timeutil: %w: %q", ErrUnrecognizedDate, input)
	}
	return t, nil
}

// DayBounds returns local midnight of t's day and of the following day.
func (z *Zone) DayBounds(t time.Time) (time.Time, time.Time) {
	local := t.In(z.loc)
	start := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, z.loc)
	return start, start.AddDate(0, 0, 1)
}

// WeekBounds returns the ISO week containing t: Monday 00:00 local through
// the following Monday.
func (z *Zone) WeekBounds(t time.Time) (time.Time, time.Time) {
	start, _ := z.DayBounds(t)
	// Weekday() is Sunday=0; shift so Monday=0.
	offset := (int(start.Weekday()) + 6) % 7
	start = start.AddDate(0, 0, -offset)
	return start, start.AddDate(0, 0, 7)
}

// MonthBounds returns the local calendar month containing t.
func (z *Zone) MonthBounds(t time.Time) (time.Time, time.Time) {
	local := t.In(z.loc)
	start := time.Date(local.Year(), local.Month(), 1, 0, 0, 0, 0, z.loc)
	return start, start.AddDate(0, 1, 0)
}

// IsWeekend reports whether t falls on a Saturday or Sunday in the local zone.
func (z *Zone) IsWeekend(t time.Time) bool {
	switch t.In(z.loc).Weekday() {
	case time.Saturday, time.Sunday:
		return true
	}
	return false
}

// SlotStart aligns t down to the enclosing 30-minute slot boundary
// (:00 or :30 of the local hour).
func (z *Zone) SlotStart(t time.Time) time.Time {
	local := t.In(z.loc)
	minute := (local.Minute() / 30) * 30
	return time.Date(local.Year(), local.Month(), local.Day(), local.Hour(), minute, 0, 0, z.loc)
}

// MinutesOfDay returns the local wall-clock minutes since midnight for t.
func (z *Zone) MinutesOfDay(t time.Time) int {
	local := t.In(z.loc)
	return local.Hour()*60 + local.Minute()
}

// At returns the instant at the given minutes-of-day on t's local calendar day.
func (z *Zone) At(day time.Time, minutes int) time.Time {
	start, _ := z.DayBounds(day)
	return start.Add(time.Duration(minutes) * time.Minute)
}

// SameDay reports whether a and b fall on the same local calendar day.
func (z *Zone) SameDay(a, b time.Time) bool {
	ay, am, ad := a.In(z.loc).Date()
	by, bm, bd := b.In(z.loc).Date()
	return ay == by && am == bm && ad == bd
}

// FormatClock renders the local wall-clock label for a slot, e.g. "10:30".
func (z *Zone) FormatClock(t time.Time) string {
	return t.In(z.loc).Format("15:04")
}

// ParseClock converts an "HH:MM" wall-clock string to minutes since midnight.
func ParseClock(v string) (int, error) {
	if v == "" {
		return 0, fmt.Errorf("timeutil: empty clock value")
	}
	t, err := time.Parse("15:04", v)
	if err != nil {
		return 0, fmt.Errorf("timeutil: parse clock %q: %w", v, err)
	}
	return t.Hour()*60 + t.Minute(), nil
}

package models

import (
	"fmt"
	"time"
)

const (
	// DayLayout is the wire format of a calendar day.
	DayLayout = "2006-01-02"
	// LongDateLayout is the human form used for paper dates.
	LongDateLayout = "January 02, 2006"

	// ordinalOfUnixEpoch is the proleptic Gregorian ordinal of 1970-01-01,
	// counting 0001-01-01 as day 1.
	ordinalOfUnixEpoch = 719163
)

// Day is a calendar date without time of day or zone.
type Day struct {
	t time.Time
}

// DayOf returns the calendar day of t in t's own location.
func DayOf(t time.Time) Day {
	y, m, d := t.Date()
	return NewDay(y, m, d)
}

// NewDay builds a Day from its parts.
func NewDay(year int, month time.Month, day int) Day {
	return Day{t: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// ParseDay parses a YYYY-MM-DD string.
func ParseDay(s string) (Day, error) {
	t, err := time.Parse(DayLayout, s)
	if err != nil {
		return Day{}, fmt.Errorf("parse day %q: %w", s, err)
	}
	return Day{t: t}, nil
}

// IsZero reports whether d is the zero Day.
func (d Day) IsZero() bool { return d.t.IsZero() }

// Before reports whether d is strictly before o.
func (d Day) Before(o Day) bool { return d.t.Before(o.t) }

// Equal reports whether d and o are the same day.
func (d Day) Equal(o Day) bool { return d.t.Equal(o.t) }

// Time returns midnight UTC of d.
func (d Day) Time() time.Time { return d.t }

// Ordinal returns the proleptic Gregorian day number, 0001-01-01 being 1.
func (d Day) Ordinal() int64 {
	return d.t.Unix()/86400 + ordinalOfUnixEpoch
}

func (d Day) String() string {
	if d.IsZero() {
		return ""
	}
	return d.t.Format(DayLayout)
}

// MarshalText implements encoding.TextMarshaler.
func (d Day) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Day) UnmarshalText(b []byte) error {
	if len(b) == 0 {
		*d = Day{}
		return nil
	}
	parsed, err := ParseDay(string(b))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// FormatLongDate reformats a YYYY-MM-DD date as "January 02, 2006".
// When the input does not parse it is returned unchanged with ok=false.
func FormatLongDate(s string) (string, bool) {
	t, err := time.Parse(DayLayout, s)
	if err != nil {
		return s, false
	}
	return t.Format(LongDateLayout), true
}

// ParseLongDate parses a date in LongDateLayout.
func ParseLongDate(s string) (time.Time, error) {
	return time.Parse(LongDateLayout, s)
}

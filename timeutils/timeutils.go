// Package timeutils turns user supplied times and timezone names into
// absolute UTC instants.
package timeutils

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"
)

// Formats accepted from and shown to users.
const (
	DateTimeLayout  = "2006-01-02 15:04"
	DateTimeFormat  = "YYYY-MM-DD HH:mm"
	DateTimeExample = "2024-03-20 18:00"
	TimeOnlyFormat  = "HH:mm"
	TimeOnlyExample = "15:30"
)

var (
	// ErrInvalidTimeFormat is returned when a time cannot be resolved.
	ErrInvalidTimeFormat = errors.New("invalid time format")
	// ErrInvalidTimezone is returned for timezone names the zone database
	// does not know.
	ErrInvalidTimezone = errors.New("invalid timezone")
)

var (
	timeOnlyPattern = regexp.MustCompile(`^(\d{1,2}):(\d{2})$`)
	offsetPattern   = regexp.MustCompile(`^(?i:UTC|GMT)([+-])(\d{1,2})(?::?(\d{2}))?$`)
)

// LoadZone resolves an IANA zone name such as "Europe/London". Fixed
// offsets written as "UTC+3" or "GMT-05:30" are accepted too.
func LoadZone(name string) (*time.Location, error) {
	name = strings.TrimSpace(name)
	if name == "" || name == "Local" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidTimezone, name)
	}

	if loc, err := time.LoadLocation(name); err == nil {
		return loc, nil
	}

	m := offsetPattern.FindStringSubmatch(name)
	if m == nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidTimezone, name)
	}
	hours, _ := strconv.Atoi(m[2])
	minutes := 0
	if m[3] != "" {
		minutes, _ = strconv.Atoi(m[3])
	}
	if hours > 14 || minutes > 59 {
		return nil, fmt.Errorf("%w: %q", ErrInvalidTimezone, name)
	}
	offset := hours*3600 + minutes*60
	if m[1] == "-" {
		offset = -offset
	}
	return time.FixedZone(name, offset), nil
}

// Resolve interprets raw in the given timezone and returns the instant in UTC.
//
// A bare "HH:mm" means the next occurrence of that wall clock time after now,
// which is either today or tomorrow. Anything else must be a full
// "YYYY-MM-DD HH:mm".
func Resolve(raw string, timezone string, now time.Time) (time.Time, error) {
	loc, err := LoadZone(timezone)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %v", ErrInvalidTimeFormat, err)
	}
	raw = strings.TrimSpace(raw)

	if m := timeOnlyPattern.FindStringSubmatch(raw); m != nil {
		hour, _ := strconv.Atoi(m[1])
		minute, _ := strconv.Atoi(m[2])
		if hour > 23 || minute > 59 {
			return time.Time{}, fmt.Errorf("%w: %q is not a time of day", ErrInvalidTimeFormat, raw)
		}
		return nextOccurrence(hour, minute, now.In(loc)).UTC(), nil
	}

	t, err := time.ParseInLocation(DateTimeLayout, raw, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidTimeFormat, raw)
	}
	return t.UTC(), nil
}

func nextOccurrence(hour, minute int, localNow time.Time) time.Time {
	y, m, d := localNow.Date()
	candidate := time.Date(y, m, d, hour, minute, 0, 0, localNow.Location())
	if !candidate.After(localNow) {
		candidate = time.Date(y, m, d+1, hour, minute, 0, 0, localNow.Location())
	}
	return candidate
}

// FormatLocal renders t as wall clock time in the given timezone, falling back
// to UTC when the timezone is unknown.
func FormatLocal(t time.Time, timezone string) string {
	loc, err := LoadZone(timezone)
	if err != nil {
		loc = time.UTC
	}
	return t.In(loc).Format(DateTimeLayout)
}

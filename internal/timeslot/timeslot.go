// Package timeslot converts between practice-local wall-clock values and
// absolute instants. Every schedule computation goes through here so that the
// UTC offset is always resolved for the specific local date, not assumed
// constant per timezone.
package timeslot

import (
	"fmt"
	"time"
)

// MinutesPerDay is the number of wall-clock minutes in a calendar day.
const MinutesPerDay = 24 * 60

// Date is a calendar date with no time-of-day or zone attached.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

// ParseDate parses a YYYY-MM-DD string.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return Date{}, fmt.Errorf("parse date %q: %w", s, err)
	}
	return Date{Year: t.Year(), Month: t.Month(), Day: t.Day()}, nil
}

func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, d.Month, d.Day)
}

// IsZero reports whether d is the zero date.
func (d Date) IsZero() bool {
	return d.Year == 0 && d.Month == 0 && d.Day == 0
}

// Before reports whether d is earlier than other.
func (d Date) Before(other Date) bool {
	if d.Year != other.Year {
		return d.Year < other.Year
	}
	if d.Month != other.Month {
		return d.Month < other.Month
	}
	return d.Day < other.Day
}

// AddDays returns the date n calendar days after d.
func (d Date) AddDays(n int) Date {
	t := time.Date(d.Year, d.Month, d.Day+n, 0, 0, 0, 0, time.UTC)
	return Date{Year: t.Year(), Month: t.Month(), Day: t.Day()}
}

// LoadLocation resolves an IANA timezone identifier.
func LoadLocation(tz string) (*time.Location, error) {
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", tz, err)
	}
	return loc, nil
}

// ToInstant combines a local date and minute-of-day into an absolute instant,
// using the UTC offset in effect at that local date/time.
//
// During a DST spring-forward gap the wall-clock value does not exist; the
// result is normalized forward by the transition delta (02:30 on a gap day in
// America/New_York resolves to 03:30 EDT). During a fall-back overlap the
// earlier of the two valid offsets wins. Both resolutions are deterministic
// for a given tzdata version.
func ToInstant(d Date, minuteOfDay int, loc *time.Location) time.Time {
	return time.Date(d.Year, d.Month, d.Day, minuteOfDay/60, minuteOfDay%60, 0, 0, loc)
}

// ToLocalParts is the inverse of ToInstant: it classifies an absolute instant
// into the local calendar date, minute-of-day, and weekday observed in loc.
func ToLocalParts(t time.Time, loc *time.Location) (Date, int, time.Weekday) {
	lt := t.In(loc)
	d := Date{Year: lt.Year(), Month: lt.Month(), Day: lt.Day()}
	return d, lt.Hour()*60 + lt.Minute(), lt.Weekday()
}

// TodayIn returns today's calendar date as observed in loc.
func TodayIn(loc *time.Location) Date {
	d, _, _ := ToLocalParts(time.Now(), loc)
	return d
}

// Weekday returns the day of week that d falls on.
func (d Date) Weekday() time.Weekday {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, time.UTC).Weekday()
}

// FormatMinute renders a minute-of-day as HH:MM.
func FormatMinute(m int) string {
	return fmt.Sprintf("%02d:%02d", m/60, m%60)
}

// ParseMinute parses an HH:MM string into a minute-of-day.
func ParseMinute(s string) (int, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("parse time of day %q: %w", s, err)
	}
	return t.Hour()*60 + t.Minute(), nil
}

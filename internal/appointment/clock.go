package appointment

import (
	"encoding/json"
	"fmt"
	"time"
)

// Clock is a time of day in whole minutes since local midnight. EndOfDay (24:00) is a
// valid end bound; nothing may start at it.
type Clock int

const EndOfDay Clock = 24 * 60

func NewClock(hour, minute int) Clock {
	return Clock(hour*60 + minute)
}

// ParseClock accepts "HH:MM" and "HH:MM:SS" (seconds must be zero).
func ParseClock(s string) (Clock, error) {
	if s == "24:00" || s == "24:00:00" {
		return EndOfDay, nil
	}
	for _, layout := range []string{"15:04", "15:04:05"} {
		t, err := time.Parse(layout, s)
		if err != nil {
			continue
		}
		if t.Second() != 0 {
			return 0, fmt.Errorf("time of day %q must be whole minutes", s)
		}
		return ClockOf(t), nil
	}
	return 0, fmt.Errorf("invalid time of day %q", s)
}

func (c Clock) Hour() int   { return int(c) / 60 }
func (c Clock) Minute() int { return int(c) % 60 }

func (c Clock) Add(minutes int) Clock {
	return c + Clock(minutes)
}

func (c Clock) Valid() bool {
	return c >= 0 && c <= EndOfDay
}

func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d", c.Hour(), c.Minute())
}

func (c Clock) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.String())
}

func (c *Clock) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	parsed, err := ParseClock(s)
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// ClockOf returns the minute of day of t in its own location.
func ClockOf(t time.Time) Clock {
	return NewClock(t.Hour(), t.Minute())
}

// Date is a civil calendar date in the clinic clock.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

const dateLayout = "2006-01-02"

func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return Date{Year: y, Month: m, Day: d}
}

func ParseDate(s string) (Date, error) {
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return Date{}, fmt.Errorf("invalid date %q", s)
	}
	return DateOf(t), nil
}

// Time returns midnight of d in UTC, the representation stored in DATE columns.
func (d Date) Time() time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, time.UTC)
}

// Weekday uses the 0=Sunday..6=Saturday convention shared with availability storage.
func (d Date) Weekday() time.Weekday {
	return d.Time().Weekday()
}

func (d Date) IsZero() bool {
	return d == Date{}
}

func (d Date) Before(o Date) bool {
	return d.Time().Before(o.Time())
}

func (d Date) String() string {
	return d.Time().Format(dateLayout)
}

func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Date) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

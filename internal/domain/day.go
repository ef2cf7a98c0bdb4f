package domain

import (
	"fmt"
	"time"
)

// DayLayout is the calendar date layout used for day keys.
const DayLayout = "2006-01-02"

// Day is a local calendar date in YYYY-MM-DD form. Day keys compare
// chronologically as plain strings.
type Day string

// DayOf returns the calendar date of t in t's location.
func DayOf(t time.Time) Day {
	return Day(t.Format(DayLayout))
}

// ParseDay validates s as a calendar date.
func ParseDay(s string) (Day, error) {
	t, err := time.ParseInLocation(DayLayout, s, time.Local)
	if err != nil {
		return "", fmt.Errorf("invalid day %q: %w", s, err)
	}
	return DayOf(t), nil
}

// Time returns local midnight of the day.
func (d Day) Time() time.Time {
	t, err := time.ParseInLocation(DayLayout, string(d), time.Local)
	if err != nil {
		return time.Time{}
	}
	return t
}

// AddDays returns the day n days later (earlier for negative n).
func (d Day) AddDays(n int) Day {
	return DayOf(d.Time().AddDate(0, 0, n))
}

// String implements fmt.Stringer.
func (d Day) String() string {
	return string(d)
}

// Ptr returns a pointer to a copy of d.
func (d Day) Ptr() *Day {
	return &d
}

// DateRange is an inclusive day interval. A zero To means the single day From.
type DateRange struct {
	From Day `json:"from" yaml:"from"`
	To   Day `json:"to,omitempty" yaml:"to,omitempty"`
}

// SingleDay returns the range covering only d.
func SingleDay(d Day) DateRange {
	return DateRange{From: d}
}

// End returns the last day covered by the range.
func (r DateRange) End() Day {
	if r.To == "" {
		return r.From
	}
	return r.To
}

// Contains reports whether d falls within the range, bounds included.
func (r DateRange) Contains(d Day) bool {
	return d >= r.From && d <= r.End()
}

// Validate rejects malformed bounds and inverted ranges.
func (r DateRange) Validate() error {
	if _, err := ParseDay(string(r.From)); err != nil {
		return err
	}
	if r.To == "" {
		return nil
	}
	if _, err := ParseDay(string(r.To)); err != nil {
		return err
	}
	if r.To < r.From {
		return fmt.Errorf("date range ends (%s) before it starts (%s)", r.To, r.From)
	}
	return nil
}

// MonthRange returns the range covering every day of the given month.
func MonthRange(year int, month time.Month) DateRange {
	first := time.Date(year, month, 1, 0, 0, 0, 0, time.Local)
	last := first.AddDate(0, 1, -1)
	return DateRange{From: DayOf(first), To: DayOf(last)}
}

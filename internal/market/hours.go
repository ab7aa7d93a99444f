// Package market decides whether the exchange is in its regular trading session.
package market

import (
	"fmt"
	"time"
	_ "time/tzdata"
)

// Clock is a time of day in minutes after midnight.
type Clock int

// ParseClock parses "HH:MM".
func ParseClock(s string) (Clock, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("invalid time of day %q: %w", s, err)
	}
	return Clock(t.Hour()*60 + t.Minute()), nil
}

func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d", int(c)/60, int(c)%60)
}

// Hours describes a weekday session in a fixed location. Open and Close are
// inclusive; Holidays holds dates formatted as YYYY-MM-DD.
type Hours struct {
	Location *time.Location
	Open     Clock
	Close    Clock
	Holidays map[string]bool
}

// NSE returns the regular NSE equity derivatives session, 09:15 to 15:30 IST.
func NSE(holidays []string) (Hours, error) {
	loc, err := time.LoadLocation("Asia/Kolkata")
	if err != nil {
		return Hours{}, fmt.Errorf("failed to load Asia/Kolkata: %w", err)
	}
	return New(loc, "09:15", "15:30", holidays)
}

// New builds Hours from textual open/close times and holiday dates.
func New(loc *time.Location, open, close string, holidays []string) (Hours, error) {
	o, err := ParseClock(open)
	if err != nil {
		return Hours{}, err
	}
	c, err := ParseClock(close)
	if err != nil {
		return Hours{}, err
	}
	if c <= o {
		return Hours{}, fmt.Errorf("session close %s must be after open %s", c, o)
	}
	h := Hours{Location: loc, Open: o, Close: c, Holidays: make(map[string]bool, len(holidays))}
	for _, d := range holidays {
		if _, err := time.Parse(time.DateOnly, d); err != nil {
			return Hours{}, fmt.Errorf("invalid holiday %q: %w", d, err)
		}
		h.Holidays[d] = true
	}
	return h, nil
}

// IsOpen reports whether t falls inside the session.
func (h Hours) IsOpen(t time.Time) bool {
	loc := h.Location
	if loc == nil {
		loc = time.UTC
	}
	local := t.In(loc)
	switch local.Weekday() {
	case time.Saturday, time.Sunday:
		return false
	}
	if h.Holidays[local.Format(time.DateOnly)] {
		return false
	}
	now := Clock(local.Hour()*60 + local.Minute())
	return now >= h.Open && now <= h.Close
}

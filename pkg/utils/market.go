// Package utils provides shared utility functions.
package utils

import (
	"fmt"
	"time"
)

// DateLayout is the canonical date format used in config files, CSV feeds and flags.
const DateLayout = "2006-01-02"

// IndiaLocation is the timezone for Indian markets.
var IndiaLocation *time.Location

func init() {
	var err error
	IndiaLocation, err = time.LoadLocation("Asia/Kolkata")
	if err != nil {
		// Fallback to UTC+5:30
		IndiaLocation = time.FixedZone("IST", 5*60*60+30*60)
	}
}

// DateOnly returns midnight UTC of t's calendar date.
// Dates are compared and used as map keys, so the location must be uniform.
func DateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Date builds a normalized calendar date.
func Date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// ParseDate parses a YYYY-MM-DD string into a normalized date.
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q (use YYYY-MM-DD): %w", s, err)
	}
	return DateOnly(t), nil
}

// DaysBetween returns the number of calendar days from a to b (negative if b is before a).
func DaysBetween(a, b time.Time) int {
	return int(DateOnly(b).Sub(DateOnly(a)).Hours() / 24)
}

// SameDay checks if two times fall on the same calendar date.
func SameDay(t1, t2 time.Time) bool {
	y1, m1, d1 := t1.Date()
	y2, m2, d2 := t2.Date()
	return y1 == y2 && m1 == m2 && d1 == d2
}

// IsWeekend reports whether t is a Saturday or Sunday.
func IsWeekend(t time.Time) bool {
	return t.Weekday() == time.Saturday || t.Weekday() == time.Sunday
}

// TradingDays returns every date in [start, end] in ascending order.
// Weekends are dropped when skipWeekends is set.
func TradingDays(start, end time.Time, skipWeekends bool) []time.Time {
	start, end = DateOnly(start), DateOnly(end)
	if end.Before(start) {
		return nil
	}

	var days []time.Time
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		if skipWeekends && IsWeekend(d) {
			continue
		}
		days = append(days, d)
	}
	return days
}

// PreviousTradingDay walks back from t until it finds a weekday not in holidays.
func PreviousTradingDay(t time.Time, holidays map[time.Time]bool) time.Time {
	d := DateOnly(t)
	for IsWeekend(d) || holidays[d] {
		d = d.AddDate(0, 0, -1)
	}
	return d
}

package trading

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	apperrors "options-backtester/internal/errors"
	"options-backtester/pkg/utils"
)

// ExpiryType represents types of expiry.
type ExpiryType string

const (
	ExpiryWeekly  ExpiryType = "WEEKLY"
	ExpiryMonthly ExpiryType = "MONTHLY"
)

// Valid reports whether t is a known interval.
func (t ExpiryType) Valid() bool {
	return t == ExpiryWeekly || t == ExpiryMonthly
}

// ParseExpiryType parses "weekly" or "monthly" in any case.
func ParseExpiryType(s string) (ExpiryType, error) {
	t := ExpiryType(strings.ToUpper(strings.TrimSpace(s)))
	if !t.Valid() {
		return "", apperrors.NewValidationError(apperrors.ErrInputValidation, "roll_interval", s, "must be WEEKLY or MONTHLY")
	}
	return t, nil
}

// DefaultExpiryWeekday is the NSE weekly index expiry day.
const DefaultExpiryWeekday = time.Thursday

// ExpiryInfo represents expiry information.
type ExpiryInfo struct {
	Date      time.Time  `json:"date"`
	Type      ExpiryType `json:"type"`
	Symbol    string     `json:"symbol"`
	DaysToExp int        `json:"days_to_expiry"`
	// Shifted is set when a holiday moved the expiry to an earlier day.
	Shifted bool `json:"shifted"`
}

// GetNextExpiry returns the next expiry strictly after current.
// WEEKLY is the next occurrence of weekday; MONTHLY is the last occurrence of
// weekday in the calendar month following current.
func GetNextExpiry(current time.Time, interval ExpiryType, weekday time.Weekday) time.Time {
	current = utils.DateOnly(current)

	if interval == ExpiryMonthly {
		return lastWeekdayOfMonth(current.Year(), current.Month()+1, weekday)
	}

	days := (int(weekday) - int(current.Weekday()) + 7) % 7
	if days == 0 {
		days = 7
	}
	return current.AddDate(0, 0, days)
}

// lastWeekdayOfMonth normalizes month overflow, so December+1 is next January.
func lastWeekdayOfMonth(year int, month time.Month, weekday time.Weekday) time.Time {
	// Day 0 of the next month is the last day of this one
	last := time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC)
	for last.Weekday() != weekday {
		last = last.AddDate(0, 0, -1)
	}
	return last
}

// IsMonthlyExpiry reports whether d is the last weekday-occurrence of its month.
func IsMonthlyExpiry(d time.Time, weekday time.Weekday) bool {
	d = utils.DateOnly(d)
	return utils.SameDay(d, lastWeekdayOfMonth(d.Year(), d.Month(), weekday))
}

// WeekdayCalendar generates expiries on a fixed weekday. An expiry falling on a
// holiday moves to the previous trading day.
type WeekdayCalendar struct {
	Weekday  time.Weekday
	holidays map[time.Time]bool
}

// NewWeekdayCalendar creates a calendar with the given expiry weekday and holidays.
func NewWeekdayCalendar(weekday time.Weekday, holidays []time.Time) *WeekdayCalendar {
	h := make(map[time.Time]bool, len(holidays))
	for _, d := range holidays {
		h[utils.DateOnly(d)] = true
	}
	return &WeekdayCalendar{Weekday: weekday, holidays: h}
}

// IsHoliday reports whether d is a configured holiday.
func (c *WeekdayCalendar) IsHoliday(d time.Time) bool {
	return c.holidays[utils.DateOnly(d)]
}

// NextExpiry returns the first holiday-adjusted expiry strictly after ref.
func (c *WeekdayCalendar) NextExpiry(symbol string, ref time.Time, interval ExpiryType) (time.Time, error) {
	if !interval.Valid() {
		return time.Time{}, apperrors.NewValidationError(apperrors.ErrInputValidation, "roll_interval", interval, "must be WEEKLY or MONTHLY")
	}
	ref = utils.DateOnly(ref)

	// A holiday shift can pull a candidate back onto or before ref; try the next one.
	candidate := ref
	for i := 0; i < 3; i++ {
		candidate = GetNextExpiry(candidate, interval, c.Weekday)
		adjusted := utils.PreviousTradingDay(candidate, c.holidays)
		if adjusted.After(ref) {
			return adjusted, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %s %s after %s", apperrors.ErrNoAvailableExpiry,
		symbol, interval, ref.Format(utils.DateLayout))
}

// ListedCalendar serves expiries from an explicit per-symbol listing, such as
// an exchange contract master. Running past the listing yields ErrNoAvailableExpiry.
type ListedCalendar struct {
	expiries map[string][]time.Time // symbol -> sorted expiry dates
	mu       sync.RWMutex
}

// NewListedCalendar creates an empty listing.
func NewListedCalendar() *ListedCalendar {
	return &ListedCalendar{expiries: make(map[string][]time.Time)}
}

// SetExpiries sets expiry dates for a symbol.
func (c *ListedCalendar) SetExpiries(symbol string, expiries []time.Time) {
	sorted := make([]time.Time, len(expiries))
	for i, e := range expiries {
		sorted[i] = utils.DateOnly(e)
	}
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Before(sorted[j])
	})

	c.mu.Lock()
	defer c.mu.Unlock()
	c.expiries[symbol] = sorted
}

// GetExpiries returns expiry dates for a symbol.
func (c *ListedCalendar) GetExpiries(symbol string) []time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()

	expiries, ok := c.expiries[symbol]
	if !ok {
		return nil
	}

	result := make([]time.Time, len(expiries))
	copy(result, expiries)
	return result
}

// NextExpiry returns the first listed expiry after ref. For MONTHLY it is the
// last listed expiry in the month following ref.
func (c *ListedCalendar) NextExpiry(symbol string, ref time.Time, interval ExpiryType) (time.Time, error) {
	ref = utils.DateOnly(ref)
	expiries := c.GetExpiries(symbol)

	switch interval {
	case ExpiryWeekly:
		for _, exp := range expiries {
			if exp.After(ref) {
				return exp, nil
			}
		}
	case ExpiryMonthly:
		target := time.Date(ref.Year(), ref.Month()+1, 1, 0, 0, 0, 0, time.UTC)
		var found time.Time
		for _, exp := range expiries {
			if exp.Year() == target.Year() && exp.Month() == target.Month() {
				found = exp
			}
		}
		if !found.IsZero() {
			return found, nil
		}
	default:
		return time.Time{}, apperrors.NewValidationError(apperrors.ErrInputValidation, "roll_interval", interval, "must be WEEKLY or MONTHLY")
	}

	return time.Time{}, fmt.Errorf("%w: no listed %s expiry for %s after %s", apperrors.ErrNoAvailableExpiry,
		interval, symbol, ref.Format(utils.DateLayout))
}

// UpcomingExpiries returns the next n expiries after from.
func UpcomingExpiries(cal ExpiryCalendar, symbol string, from time.Time, interval ExpiryType, n int) ([]ExpiryInfo, error) {
	if n <= 0 {
		return nil, nil
	}
	from = utils.DateOnly(from)
	wc, _ := cal.(*WeekdayCalendar)

	infos := make([]ExpiryInfo, 0, n)
	ref := from
	for len(infos) < n {
		exp, err := cal.NextExpiry(symbol, ref, interval)
		if err != nil {
			return infos, err
		}
		infos = append(infos, ExpiryInfo{
			Date:      exp,
			Type:      interval,
			Symbol:    symbol,
			DaysToExp: utils.DaysBetween(from, exp),
			Shifted:   wc != nil && exp.Weekday() != wc.Weekday,
		})
		ref = exp
	}
	return infos, nil
}

package options

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	apperrors "options-backtester/internal/errors"
	"options-backtester/internal/models"
	"options-backtester/pkg/utils"
)

// Strategy is an ordered set of leg slots on one underlying.
// Slots are stable: rolling replaces the content of a slot, never its position.
type Strategy struct {
	Type         models.StrategyType
	Symbol       string
	CreationDate time.Time
	legs         []OptionLeg
}

// LegWarning ties a pricing fallback to the leg slot that produced it.
type LegWarning struct {
	LegIndex int    `json:"leg_index"`
	Message  string `json:"message"`
}

// PortfolioGreeks is the sum of leg Greeks plus any fallback annotations.
type PortfolioGreeks struct {
	models.OptionGreeks
	Warnings []LegWarning `json:"warnings,omitempty"`
}

// NewStrategy validates legs and builds a strategy. Nothing is built on error.
func NewStrategy(typ models.StrategyType, symbol string, created time.Time, legs ...OptionLeg) (*Strategy, error) {
	if symbol == "" {
		return nil, apperrors.NewValidationError(apperrors.ErrInputValidation, "underlying_symbol", symbol, "is required")
	}
	if len(legs) == 0 {
		return nil, apperrors.NewValidationError(apperrors.ErrInputValidation, "legs", 0, "strategy needs at least one leg")
	}

	slots := make([]OptionLeg, len(legs))
	for i, leg := range legs {
		if err := leg.Validate(); err != nil {
			return nil, fmt.Errorf("leg %d: %w", i, err)
		}
		leg.Expiry = utils.DateOnly(leg.Expiry)
		if !leg.EntryDate.IsZero() {
			leg.EntryDate = utils.DateOnly(leg.EntryDate)
		}
		slots[i] = leg
	}

	return &Strategy{
		Type:         typ,
		Symbol:       symbol,
		CreationDate: utils.DateOnly(created),
		legs:         slots,
	}, nil
}

// Len returns the number of leg slots.
func (s *Strategy) Len() int {
	return len(s.legs)
}

// Leg returns the leg in slot i.
func (s *Strategy) Leg(i int) OptionLeg {
	return s.legs[i]
}

// Legs returns a copy of all legs in slot order.
func (s *Strategy) Legs() []OptionLeg {
	out := make([]OptionLeg, len(s.legs))
	copy(out, s.legs)
	return out
}

// ReplaceLeg swaps the content of slot i. Sibling slots are untouched.
func (s *Strategy) ReplaceLeg(i int, leg OptionLeg) error {
	if i < 0 || i >= len(s.legs) {
		return fmt.Errorf("leg index %d out of range [0,%d)", i, len(s.legs))
	}
	if err := leg.Validate(); err != nil {
		return fmt.Errorf("replacing leg %d: %w", i, err)
	}
	leg.Expiry = utils.DateOnly(leg.Expiry)
	s.legs[i] = leg
	return nil
}

// Clone returns a deep copy that shares no state with s.
func (s *Strategy) Clone() *Strategy {
	c := *s
	c.legs = s.Legs()
	return &c
}

// PortfolioGreeks sums every leg's Greeks on the same date.
func (s *Strategy) PortfolioGreeks(ms MarketState) PortfolioGreeks {
	var pg PortfolioGreeks
	for i, leg := range s.legs {
		lg := leg.Greeks(ms)
		pg.OptionGreeks = pg.OptionGreeks.Add(lg.Greeks)
		if lg.Warning != nil {
			pg.Warnings = append(pg.Warnings, LegWarning{LegIndex: i, Message: lg.Warning.Error()})
		}
	}
	return pg
}

// PnL sums every leg's mark-to-market P&L.
func (s *Strategy) PnL(ms MarketState) float64 {
	var total float64
	for _, leg := range s.legs {
		total += leg.PnL(ms)
	}
	return total
}

// NetPremium is the per-unit premium received (positive) or paid (negative) at entry.
func (s *Strategy) NetPremium() float64 {
	var net float64
	for _, leg := range s.legs {
		net -= leg.EntryPremium * float64(leg.Quantity) * leg.Side.Sign()
	}
	return net
}

// ExpiryBreakdown groups legs by expiry date.
func (s *Strategy) ExpiryBreakdown() map[time.Time][]OptionLeg {
	breakdown := make(map[time.Time][]OptionLeg)
	for _, leg := range s.legs {
		key := utils.DateOnly(leg.Expiry)
		breakdown[key] = append(breakdown[key], leg)
	}
	return breakdown
}

// Expiries returns the distinct expiry dates in ascending order.
func (s *Strategy) Expiries() []time.Time {
	breakdown := s.ExpiryBreakdown()
	expiries := make([]time.Time, 0, len(breakdown))
	for exp := range breakdown {
		expiries = append(expiries, exp)
	}
	sort.Slice(expiries, func(i, j int) bool {
		return expiries[i].Before(expiries[j])
	})
	return expiries
}

type strategyJSON struct {
	Type         models.StrategyType `json:"strategy_type"`
	Symbol       string              `json:"underlying_symbol"`
	CreationDate time.Time           `json:"creation_date"`
	Legs         []OptionLeg         `json:"legs"`
}

// MarshalJSON exposes the legs, which are otherwise private to keep slot swaps atomic.
func (s *Strategy) MarshalJSON() ([]byte, error) {
	return json.Marshal(strategyJSON{
		Type:         s.Type,
		Symbol:       s.Symbol,
		CreationDate: s.CreationDate,
		Legs:         s.legs,
	})
}

// UnmarshalJSON decodes and validates a strategy.
func (s *Strategy) UnmarshalJSON(data []byte) error {
	var raw strategyJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	built, err := NewStrategy(raw.Type, raw.Symbol, raw.CreationDate, raw.Legs...)
	if err != nil {
		return err
	}
	*s = *built
	return nil
}

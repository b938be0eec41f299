// Package options provides option legs, multi-expiry strategies and their factories.
package options

import (
	"fmt"
	"math"
	"time"

	apperrors "options-backtester/internal/errors"
	"options-backtester/internal/models"
	"options-backtester/internal/pricing"
	"options-backtester/pkg/utils"
)

// OptionLeg is a single option position. Legs are values: a roll produces a new
// leg and swaps it into the strategy slot, it never edits the old one.
type OptionLeg struct {
	Type         models.OptionType `json:"option_type"`
	Strike       float64           `json:"strike"`
	Expiry       time.Time         `json:"expiry"`
	Side         models.OrderSide  `json:"side"`
	Quantity     int               `json:"quantity"`
	EntryPremium float64           `json:"entry_premium"`
	EntryDate    time.Time         `json:"entry_date"`
	// ImpliedVol overrides the market default for this leg when positive.
	ImpliedVol float64 `json:"implied_vol,omitempty"`
}

// LegGreeks is a leg's position-scaled Greeks plus the fallback annotation, if any.
type LegGreeks struct {
	Greeks  models.OptionGreeks
	Status  pricing.Status
	Warning *apperrors.DegenerateInputWarning
}

// Validate checks strike, quantity, type, side and premium.
func (l OptionLeg) Validate() error {
	if !l.Type.Valid() {
		return apperrors.NewValidationError(apperrors.ErrInputValidation, "option_type", l.Type, "must be CALL or PUT")
	}
	if !l.Side.Valid() {
		return apperrors.NewValidationError(apperrors.ErrInputValidation, "side", l.Side, "must be BUY or SELL")
	}
	if l.Strike <= 0 || math.IsNaN(l.Strike) {
		return apperrors.InvalidStrike("strike", l.Strike, "must be positive")
	}
	if l.Quantity <= 0 {
		return apperrors.InvalidQuantity("quantity", l.Quantity)
	}
	if l.EntryPremium < 0 {
		return apperrors.NewValidationError(apperrors.ErrInputValidation, "entry_premium", l.EntryPremium, "must be non-negative")
	}
	if l.Expiry.IsZero() {
		return apperrors.NewValidationError(apperrors.ErrInputValidation, "expiry", l.Expiry, "is required")
	}
	return nil
}

// ContractKey identifies the contract (expiry, strike, type) independent of side and size.
func (l OptionLeg) ContractKey() string {
	return fmt.Sprintf("%s/%.2f/%s", utils.DateOnly(l.Expiry).Format(utils.DateLayout), l.Strike, l.Type.Short())
}

// String renders the leg as e.g. "SELL 50 x 06-Feb-2026 21800 CE @ 210.35".
func (l OptionLeg) String() string {
	return fmt.Sprintf("%s %d x %s %.0f %s @ %.2f",
		l.Side, l.Quantity, l.Expiry.Format("02-Jan-2006"), l.Strike, l.Type.Short(), l.EntryPremium)
}

// DaysToExpiry returns calendar days from date to the leg's expiry.
func (l OptionLeg) DaysToExpiry(date time.Time) int {
	return utils.DaysBetween(date, l.Expiry)
}

// IsExpired reports whether date is on or after the expiry date.
func (l OptionLeg) IsExpired(date time.Time) bool {
	return l.DaysToExpiry(date) <= 0
}

// Quote prices one unit of the leg's contract against the market.
func (l OptionLeg) Quote(ms MarketState) pricing.Result {
	return pricing.BlackScholes(pricing.Input{
		Spot:         ms.UnderlyingPrice,
		Strike:       l.Strike,
		TimeToExpiry: pricing.YearsToExpiry(ms.CurrentDate, l.Expiry),
		Volatility:   ms.VolatilityFor(l),
		RiskFreeRate: ms.RiskFreeRate,
		Type:         l.Type,
	})
}

// Theoretical returns the per-unit Black-Scholes price, ignoring expiry.
func (l OptionLeg) Theoretical(ms MarketState) float64 {
	return l.Quote(ms).Price
}

// Value returns the per-unit value used for P&L: theoretical price before
// expiry, intrinsic value on or after it.
func (l OptionLeg) Value(ms MarketState) float64 {
	if l.IsExpired(ms.CurrentDate) {
		return pricing.Intrinsic(ms.UnderlyingPrice, l.Strike, l.Type)
	}
	return l.Theoretical(ms)
}

// PnL returns (value - entry premium) x quantity x side sign x multiplier.
func (l OptionLeg) PnL(ms MarketState) float64 {
	return (l.Value(ms) - l.EntryPremium) * float64(l.Quantity) * l.Side.Sign() * ms.Multiplier()
}

// Greeks returns the primitive's Greeks scaled by quantity x side sign.
func (l OptionLeg) Greeks(ms MarketState) LegGreeks {
	res := l.Quote(ms)
	return LegGreeks{
		Greeks:  res.Greeks.Scale(float64(l.Quantity) * l.Side.Sign()),
		Status:  res.Status,
		Warning: res.Warning,
	}
}

// WithExpiry returns a copy of the leg opened at a new expiry and premium.
func (l OptionLeg) WithExpiry(expiry time.Time, premium float64, entryDate time.Time) OptionLeg {
	next := l
	next.Expiry = utils.DateOnly(expiry)
	next.EntryPremium = premium
	next.EntryDate = utils.DateOnly(entryDate)
	return next
}

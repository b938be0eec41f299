package options

import (
	"time"

	"options-backtester/pkg/utils"
)

// MarketState is a snapshot of the underlying on one date.
type MarketState struct {
	UnderlyingPrice float64
	CurrentDate     time.Time
	// Volatility is the default implied volatility used when a leg has none.
	Volatility   float64
	RiskFreeRate float64
	// LegVolatility holds per-contract overrides keyed by OptionLeg.ContractKey.
	LegVolatility map[string]float64
	// ContractMultiplier scales P&L; zero means 1.
	ContractMultiplier float64
}

// NewMarketState builds a snapshot with a normalized date.
func NewMarketState(price float64, date time.Time, vol, rate float64) MarketState {
	return MarketState{
		UnderlyingPrice: price,
		CurrentDate:     utils.DateOnly(date),
		Volatility:      vol,
		RiskFreeRate:    rate,
	}
}

// At returns a copy of the snapshot moved to another price and date.
func (ms MarketState) At(price float64, date time.Time) MarketState {
	ms.UnderlyingPrice = price
	ms.CurrentDate = utils.DateOnly(date)
	return ms
}

// VolatilityFor resolves the implied volatility for a leg: leg override,
// then per-contract market override, then the default.
func (ms MarketState) VolatilityFor(l OptionLeg) float64 {
	if l.ImpliedVol > 0 {
		return l.ImpliedVol
	}
	if v, ok := ms.LegVolatility[l.ContractKey()]; ok {
		return v
	}
	return ms.Volatility
}

// Multiplier returns the contract multiplier, defaulting to 1.
func (ms MarketState) Multiplier() float64 {
	if ms.ContractMultiplier <= 0 {
		return 1
	}
	return ms.ContractMultiplier
}

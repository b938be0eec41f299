package options

import (
	"fmt"
	"math"

	apperrors "options-backtester/internal/errors"
)

// PayoffPoint is the strategy P&L at one underlying price.
type PayoffPoint struct {
	Price float64 `json:"price"`
	PnL   float64 `json:"pnl"`
}

// PayoffAnalysis summarizes a sampled payoff curve.
// MaxLoss is the lowest sampled P&L, so it is negative when the strategy can lose.
type PayoffAnalysis struct {
	Points         []PayoffPoint `json:"points"`
	MaxProfit      float64       `json:"max_profit"`
	MaxProfitPrice float64       `json:"max_profit_price"`
	MaxLoss        float64       `json:"max_loss"`
	MaxLossPrice   float64       `json:"max_loss_price"`
	Breakevens     []float64     `json:"breakevens"`
}

// ValidatePriceRange requires at least two strictly increasing prices.
func ValidatePriceRange(prices []float64) error {
	if len(prices) < 2 {
		return apperrors.NewValidationError(apperrors.ErrInvalidRange, "price_range", len(prices), "need at least two prices")
	}
	for i := 1; i < len(prices); i++ {
		if !(prices[i] > prices[i-1]) {
			return apperrors.NewValidationError(apperrors.ErrInvalidRange, "price_range",
				fmt.Sprintf("[%d]=%g, [%d]=%g", i-1, prices[i-1], i, prices[i]), "prices must be strictly increasing")
		}
	}
	return nil
}

// PriceRange returns n evenly spaced prices from lo to hi inclusive.
func PriceRange(lo, hi float64, n int) []float64 {
	if n < 2 || hi <= lo {
		return []float64{lo}
	}
	step := (hi - lo) / float64(n-1)
	prices := make([]float64, n)
	for i := range prices {
		prices[i] = lo + step*float64(i)
	}
	prices[n-1] = hi
	return prices
}

// MaxProfitLoss evaluates every leg at its own expiry for each price and
// reports the extremes and the interpolated breakevens.
func (s *Strategy) MaxProfitLoss(priceRange []float64) (*PayoffAnalysis, error) {
	if err := ValidatePriceRange(priceRange); err != nil {
		return nil, err
	}

	values := make([]float64, len(priceRange))
	for i, price := range priceRange {
		for _, leg := range s.legs {
			values[i] += leg.PnL(MarketState{UnderlyingPrice: price, CurrentDate: leg.Expiry})
		}
	}
	return analyze(priceRange, values), nil
}

// ProjectedPnL evaluates the whole strategy on ms.CurrentDate for each price,
// e.g. the classic calendar tent at the near expiry.
func (s *Strategy) ProjectedPnL(priceRange []float64, ms MarketState) (*PayoffAnalysis, error) {
	if err := ValidatePriceRange(priceRange); err != nil {
		return nil, err
	}

	values := make([]float64, len(priceRange))
	for i, price := range priceRange {
		values[i] = s.PnL(ms.At(price, ms.CurrentDate))
	}
	return analyze(priceRange, values), nil
}

func analyze(prices, values []float64) *PayoffAnalysis {
	const zeroTolerance = 1e-9

	pa := &PayoffAnalysis{
		Points:    make([]PayoffPoint, len(prices)),
		MaxProfit: math.Inf(-1),
		MaxLoss:   math.Inf(1),
	}

	for i, price := range prices {
		v := values[i]
		pa.Points[i] = PayoffPoint{Price: price, PnL: v}
		if v > pa.MaxProfit {
			pa.MaxProfit, pa.MaxProfitPrice = v, price
		}
		if v < pa.MaxLoss {
			pa.MaxLoss, pa.MaxLossPrice = v, price
		}

		if math.Abs(v) <= zeroTolerance {
			pa.Breakevens = append(pa.Breakevens, price)
			continue
		}
		if i+1 < len(prices) {
			next := values[i+1]
			if math.Abs(next) > zeroTolerance && (v < 0) != (next < 0) {
				// linear interpolation between adjacent samples
				pa.Breakevens = append(pa.Breakevens, price+(0-v)*(prices[i+1]-price)/(next-v))
			}
		}
	}

	return pa
}

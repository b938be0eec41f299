// Package pricing provides the Black-Scholes pricing primitive used by every leg.
//
// Inputs that make the model undefined (non-positive spot, strike or volatility)
// never produce an error or NaN. They produce a Fallback result that carries a
// DegenerateInputWarning so callers can tell a substituted value from a computed one.
package pricing

import (
	"fmt"
	"math"
	"time"

	"gonum.org/v1/gonum/stat/distuv"

	apperrors "options-backtester/internal/errors"
	"options-backtester/internal/models"
	"options-backtester/pkg/utils"
)

// DaysPerYear is the calendar-day convention for time to expiry.
const DaysPerYear = 365.0

// Status tells a computed result apart from a substituted one.
type Status int

const (
	Computed Status = iota
	Fallback
)

func (s Status) String() string {
	if s == Fallback {
		return "FALLBACK"
	}
	return "COMPUTED"
}

// Input holds market and contract parameters for one option.
type Input struct {
	Spot         float64
	Strike       float64
	TimeToExpiry float64 // years
	Volatility   float64 // annualized, 0.15 = 15%
	RiskFreeRate float64 // annualized, continuously compounded
	Type         models.OptionType
}

// Result is the theoretical price and per-unit Greeks of one option.
type Result struct {
	Price   float64
	Greeks  models.OptionGreeks
	Status  Status
	Warning *apperrors.DegenerateInputWarning
}

// IsFallback reports whether the result was substituted for degenerate inputs.
func (r Result) IsFallback() bool {
	return r.Status == Fallback
}

// YearsToExpiry converts the calendar-day distance between two dates to years.
func YearsToExpiry(current, expiry time.Time) float64 {
	return float64(utils.DaysBetween(current, expiry)) / DaysPerYear
}

// Intrinsic returns max(S-K, 0) for calls and max(K-S, 0) for puts.
func Intrinsic(spot, strike float64, optType models.OptionType) float64 {
	if optType == models.OptionTypePut {
		return math.Max(strike-spot, 0)
	}
	return math.Max(spot-strike, 0)
}

// BlackScholes prices a European option.
//
// Expired options (T <= 0) return intrinsic value with zero Greeks.
// Non-positive or NaN spot, strike or volatility (and a NaN rate or time)
// return the deterministic-forward fallback: price max(S-K*e^(-rT), 0) for
// calls (mirrored for puts) with S floored at zero, a step delta, theta from
// discounting only, and zero gamma and vega. NaN inputs count as zero there.
func BlackScholes(in Input) Result {
	switch {
	case in.Spot <= 0 || math.IsNaN(in.Spot):
		return fallback(in, "spot", in.Spot)
	case in.Strike <= 0 || math.IsNaN(in.Strike):
		return fallback(in, "strike", in.Strike)
	case math.IsNaN(in.TimeToExpiry):
		return fallback(in, "time_to_expiry", in.TimeToExpiry)
	case math.IsNaN(in.RiskFreeRate):
		return fallback(in, "risk_free_rate", in.RiskFreeRate)
	case in.TimeToExpiry <= 0:
		return Result{Price: Intrinsic(in.Spot, in.Strike, in.Type), Status: Computed}
	case in.Volatility <= 0 || math.IsNaN(in.Volatility):
		return fallback(in, "volatility", in.Volatility)
	}

	S, K, T, sigma, r := in.Spot, in.Strike, in.TimeToExpiry, in.Volatility, in.RiskFreeRate
	sqrtT := math.Sqrt(T)
	d1 := (math.Log(S/K) + (r+0.5*sigma*sigma)*T) / (sigma * sqrtT)
	d2 := d1 - sigma*sqrtT
	discount := math.Exp(-r * T)
	pdf := normPDF(d1)

	var price, delta, theta float64
	if in.Type == models.OptionTypePut {
		price = K*discount*normCDF(-d2) - S*normCDF(-d1)
		delta = normCDF(d1) - 1
		theta = -(S*pdf*sigma)/(2*sqrtT) + r*K*discount*normCDF(-d2)
	} else {
		price = S*normCDF(d1) - K*discount*normCDF(d2)
		delta = normCDF(d1)
		theta = -(S*pdf*sigma)/(2*sqrtT) - r*K*discount*normCDF(d2)
	}

	return Result{
		Price: math.Max(price, 0),
		Greeks: models.OptionGreeks{
			Delta: delta,
			Gamma: pdf / (S * sigma * sqrtT),
			Theta: theta / DaysPerYear,
			Vega:  S * pdf * sqrtT / 100,
		},
		Status: Computed,
	}
}

func fallback(in Input, field string, value float64) Result {
	spot := math.Max(orZero(in.Spot), 0)
	T := math.Max(orZero(in.TimeToExpiry), 0)
	r := orZero(in.RiskFreeRate)
	discountedStrike := orZero(in.Strike) * math.Exp(-r*T)

	var price, delta, theta float64
	if in.Type == models.OptionTypePut {
		price = math.Max(discountedStrike-spot, 0)
		if spot > 0 && price > 0 {
			delta = -1
			theta = r * discountedStrike / DaysPerYear
		}
	} else {
		price = math.Max(spot-discountedStrike, 0)
		if spot > 0 && price > 0 {
			delta = 1
			theta = -r * discountedStrike / DaysPerYear
		}
	}
	if T == 0 {
		theta = 0
	}

	return Result{
		Price:  price,
		Greeks: models.OptionGreeks{Delta: delta, Theta: theta},
		Status: Fallback,
		Warning: &apperrors.DegenerateInputWarning{
			Field:    field,
			Value:    value,
			Fallback: "deterministic forward value",
		},
	}
}

func orZero(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return v
}

// ImpliedVolatility solves for the volatility that reproduces premium.
// Newton steps are used while vega is usable, bisection otherwise.
func ImpliedVolatility(premium float64, in Input) (float64, error) {
	if in.Spot <= 0 || in.Strike <= 0 || in.TimeToExpiry <= 0 {
		return 0, fmt.Errorf("implied volatility undefined for spot=%g strike=%g T=%g", in.Spot, in.Strike, in.TimeToExpiry)
	}
	if premium < Intrinsic(in.Spot, in.Strike*math.Exp(-in.RiskFreeRate*in.TimeToExpiry), in.Type) {
		return 0, fmt.Errorf("premium %.2f is below the no-arbitrage bound", premium)
	}

	const (
		epsilon       = 1e-6
		maxIterations = 100
	)

	lo, hi := 1e-4, 5.0
	sigma := 0.2
	for i := 0; i < maxIterations; i++ {
		in.Volatility = sigma
		res := BlackScholes(in)
		diff := res.Price - premium
		if math.Abs(diff) < epsilon {
			return sigma, nil
		}
		if diff > 0 {
			hi = sigma
		} else {
			lo = sigma
		}

		vega := res.Greeks.Vega * 100
		next := sigma - diff/vega
		if vega < 1e-8 || next <= lo || next >= hi {
			next = (lo + hi) / 2
		}
		sigma = next
	}
	return 0, fmt.Errorf("implied volatility did not converge for premium %.2f", premium)
}

func normCDF(x float64) float64 {
	return distuv.UnitNormal.CDF(x)
}

func normPDF(x float64) float64 {
	return distuv.UnitNormal.Prob(x)
}

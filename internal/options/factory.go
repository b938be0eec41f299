package options

import (
	"math"
	"time"

	apperrors "options-backtester/internal/errors"
	"options-backtester/internal/models"
	"options-backtester/pkg/utils"
)

const (
	// DefaultVolatility is used when a request carries no volatility.
	DefaultVolatility = 0.20
	// DefaultStrikeStep is the NIFTY strike interval used to round ATM strikes.
	DefaultStrikeStep = 50.0
)

// BuildRequest describes a strategy to construct.
// A zero Strike or FarStrike means at-the-money, rounded to StrikeStep.
type BuildRequest struct {
	Type            models.StrategyType
	Symbol          string
	UnderlyingPrice float64
	Strike          float64
	FarStrike       float64 // DIAGONAL far leg
	PutStrike       float64 // DOUBLE_CALENDAR put calendar, zero means Strike
	NearExpiry      time.Time
	FarExpiry       time.Time
	OptionType      models.OptionType
	Quantity        int
	NearSide        models.OrderSide // side of the near leg, SELL by default
	CreationDate    time.Time
	Volatility      float64
	RiskFreeRate    float64
	StrikeStep      float64
	Legs            []OptionLeg // CUSTOM only
}

// Build dispatches on the request's strategy type.
func Build(req BuildRequest) (*Strategy, error) {
	switch req.Type {
	case models.StrategyCalendar:
		return NewCalendar(req)
	case models.StrategyDiagonal:
		return NewDiagonal(req)
	case models.StrategyDoubleCalendar:
		return NewDoubleCalendar(req)
	case models.StrategyCustom:
		return NewCustom(req)
	}
	return nil, apperrors.NewValidationError(apperrors.ErrInputValidation, "strategy_type", req.Type, "unsupported strategy type")
}

// NewCalendar builds a two-leg calendar: same strike and type, near and far expiry on opposite sides.
func NewCalendar(req BuildRequest) (*Strategy, error) {
	req, err := normalize(req)
	if err != nil {
		return nil, err
	}
	strike, err := req.atmOr(req.Strike, "strike")
	if err != nil {
		return nil, err
	}

	near, far := req.pair(req.OptionType, strike, strike)
	return NewStrategy(models.StrategyCalendar, req.Symbol, req.CreationDate, near, far)
}

// NewDiagonal builds a two-leg diagonal: same type, different strikes and expiries.
func NewDiagonal(req BuildRequest) (*Strategy, error) {
	req, err := normalize(req)
	if err != nil {
		return nil, err
	}
	nearStrike, err := req.atmOr(req.Strike, "strike")
	if err != nil {
		return nil, err
	}
	farStrike, err := req.atmOr(req.FarStrike, "far_strike")
	if err != nil {
		return nil, err
	}
	if farStrike == nearStrike {
		return nil, apperrors.InvalidStrike("far_strike", farStrike, "diagonal strikes must differ")
	}

	near, far := req.pair(req.OptionType, nearStrike, farStrike)
	return NewStrategy(models.StrategyDiagonal, req.Symbol, req.CreationDate, near, far)
}

// NewDoubleCalendar builds a CALL calendar and a PUT calendar, four legs in total.
func NewDoubleCalendar(req BuildRequest) (*Strategy, error) {
	req, err := normalize(req)
	if err != nil {
		return nil, err
	}
	callStrike, err := req.atmOr(req.Strike, "strike")
	if err != nil {
		return nil, err
	}
	putStrike := callStrike
	if req.PutStrike != 0 {
		if req.PutStrike < 0 {
			return nil, apperrors.InvalidStrike("put_strike", req.PutStrike, "must be positive")
		}
		putStrike = req.PutStrike
	}

	callNear, callFar := req.pair(models.OptionTypeCall, callStrike, callStrike)
	putNear, putFar := req.pair(models.OptionTypePut, putStrike, putStrike)
	return NewStrategy(models.StrategyDoubleCalendar, req.Symbol, req.CreationDate, callNear, callFar, putNear, putFar)
}

// NewCustom builds a strategy from caller-supplied legs.
// Legs with a zero entry premium are priced at the creation date.
func NewCustom(req BuildRequest) (*Strategy, error) {
	if req.CreationDate.IsZero() {
		req.CreationDate = time.Now()
	}
	if req.Volatility <= 0 {
		req.Volatility = DefaultVolatility
	}
	req.CreationDate = utils.DateOnly(req.CreationDate)

	legs := make([]OptionLeg, len(req.Legs))
	for i, leg := range req.Legs {
		if leg.EntryDate.IsZero() {
			leg.EntryDate = req.CreationDate
		}
		if leg.EntryPremium == 0 && req.UnderlyingPrice > 0 {
			leg.EntryPremium = leg.Value(req.market())
		}
		legs[i] = leg
	}
	return NewStrategy(models.StrategyCustom, req.Symbol, req.CreationDate, legs...)
}

func normalize(req BuildRequest) (BuildRequest, error) {
	if req.CreationDate.IsZero() {
		req.CreationDate = time.Now()
	}
	req.CreationDate = utils.DateOnly(req.CreationDate)
	req.NearExpiry = utils.DateOnly(req.NearExpiry)
	req.FarExpiry = utils.DateOnly(req.FarExpiry)

	if req.NearExpiry.IsZero() || req.FarExpiry.IsZero() || !req.NearExpiry.Before(req.FarExpiry) {
		return req, apperrors.InvalidExpiryOrder(req.NearExpiry, req.FarExpiry)
	}
	if !req.CreationDate.Before(req.NearExpiry) {
		return req, apperrors.NewValidationError(apperrors.ErrInvalidExpiryOrder, "near_expiry",
			req.NearExpiry.Format(utils.DateLayout), "must be after the creation date")
	}
	if req.Strike < 0 || math.IsNaN(req.Strike) {
		return req, apperrors.InvalidStrike("strike", req.Strike, "must be positive")
	}
	if req.Quantity <= 0 {
		return req, apperrors.InvalidQuantity("quantity", req.Quantity)
	}
	if req.UnderlyingPrice <= 0 {
		return req, apperrors.NewValidationError(apperrors.ErrInputValidation, "underlying_price", req.UnderlyingPrice, "must be positive")
	}

	if req.OptionType == "" {
		req.OptionType = models.OptionTypeCall
	}
	if req.NearSide == "" {
		req.NearSide = models.OrderSideSell
	}
	if req.Volatility <= 0 {
		req.Volatility = DefaultVolatility
	}
	if req.StrikeStep <= 0 {
		req.StrikeStep = DefaultStrikeStep
	}
	return req, nil
}

// atmOr returns strike, or the ATM strike when strike is zero.
func (req BuildRequest) atmOr(strike float64, field string) (float64, error) {
	if strike == 0 {
		strike = math.Round(req.UnderlyingPrice/req.StrikeStep) * req.StrikeStep
	}
	if strike <= 0 {
		return 0, apperrors.InvalidStrike(field, strike, "must be positive")
	}
	return strike, nil
}

func (req BuildRequest) market() MarketState {
	return NewMarketState(req.UnderlyingPrice, req.CreationDate, req.Volatility, req.RiskFreeRate)
}

// pair builds the near and far legs priced at the creation date.
func (req BuildRequest) pair(optType models.OptionType, nearStrike, farStrike float64) (OptionLeg, OptionLeg) {
	ms := req.market()
	near := OptionLeg{
		Type:      optType,
		Strike:    nearStrike,
		Expiry:    req.NearExpiry,
		Side:      req.NearSide,
		Quantity:  req.Quantity,
		EntryDate: req.CreationDate,
	}
	far := near
	far.Strike = farStrike
	far.Expiry = req.FarExpiry
	far.Side = req.NearSide.Opposite()

	near.EntryPremium = near.Quote(ms).Price
	far.EntryPremium = far.Quote(ms).Price
	return near, far
}

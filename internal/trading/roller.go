package trading

import (
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"

	apperrors "options-backtester/internal/errors"
	"options-backtester/internal/logging"
	"options-backtester/internal/options"
	"options-backtester/pkg/utils"
)

// LegState is the lifecycle state of a leg slot.
type LegState string

const (
	LegOpen        LegState = "OPEN"
	LegPendingRoll LegState = "PENDING_ROLL"
	// LegRolled is terminal for the old leg; the slot holds a new OPEN leg.
	LegRolled LegState = "ROLLED"
	// LegExpired is a terminal close at intrinsic value, not a roll.
	LegExpired LegState = "EXPIRED"
)

// RollEvent records one leg replaced by a later-expiry leg.
type RollEvent struct {
	LegIndex  int               `json:"leg_index"`
	Date      time.Time         `json:"date"`
	OldLeg    options.OptionLeg `json:"old_leg"`
	NewLeg    options.OptionLeg `json:"new_leg"`
	OldExpiry time.Time         `json:"old_expiry"`
	NewExpiry time.Time         `json:"new_expiry"`
	// ExitPrice and EntryPrice are per-unit theoretical prices on Date.
	ExitPrice  float64 `json:"exit_price"`
	EntryPrice float64 `json:"entry_price"`
	ExitPnL    float64 `json:"exit_pnl"`
	Fee        float64 `json:"fee"`
	// RollCost is the net premium cash flow of the roll minus the fee.
	// Negative means money went out.
	RollCost float64 `json:"roll_cost"`
}

// TargetExpiryResolver picks the expiry a leg rolls into.
type TargetExpiryResolver func(leg options.OptionLeg, date time.Time) (time.Time, error)

// StrikePolicy picks the strike of the replacement leg.
type StrikePolicy func(leg options.OptionLeg, ms options.MarketState) float64

// KeepStrike rolls into the same strike.
func KeepStrike(leg options.OptionLeg, _ options.MarketState) float64 {
	return leg.Strike
}

// ATMStrike re-centers the rolled leg on the underlying, rounded to step.
func ATMStrike(step float64) StrikePolicy {
	if step <= 0 {
		step = options.DefaultStrikeStep
	}
	return func(leg options.OptionLeg, ms options.MarketState) float64 {
		strike := math.Round(ms.UnderlyingPrice/step) * step
		if strike <= 0 {
			return leg.Strike
		}
		return strike
	}
}

// RollerConfig holds roll parameters.
type RollerConfig struct {
	Symbol       string
	Interval     ExpiryType
	RollFee      float64
	StrikePolicy StrikePolicy
}

// Roller closes legs near expiry and reopens them at a later expiry.
type Roller struct {
	calendar ExpiryCalendar
	config   RollerConfig
	logger   zerolog.Logger
}

// NewRoller creates a roller. A nil calendar means weekly Thursday expiries with no holidays.
func NewRoller(calendar ExpiryCalendar, cfg RollerConfig) *Roller {
	if calendar == nil {
		calendar = NewWeekdayCalendar(DefaultExpiryWeekday, nil)
	}
	if cfg.Interval == "" {
		cfg.Interval = ExpiryWeekly
	}
	if cfg.StrikePolicy == nil {
		cfg.StrikePolicy = KeepStrike
	}
	return &Roller{
		calendar: calendar,
		config:   cfg,
		logger:   zerolog.Nop(),
	}
}

// WithLogger sets the roller's logger.
func (r *Roller) WithLogger(logger zerolog.Logger) *Roller {
	r.logger = logger
	return r
}

// Config returns the roller configuration.
func (r *Roller) Config() RollerConfig {
	return r.config
}

// ShouldRoll reports whether 0 < days to expiry <= rollDaysBefore.
func (r *Roller) ShouldRoll(leg options.OptionLeg, date time.Time, rollDaysBefore int) bool {
	dte := leg.DaysToExpiry(date)
	return dte > 0 && dte <= rollDaysBefore
}

// State returns the leg's state on date.
func (r *Roller) State(leg options.OptionLeg, date time.Time, rollDaysBefore int) LegState {
	switch {
	case leg.IsExpired(date):
		return LegExpired
	case r.ShouldRoll(leg, date, rollDaysBefore):
		return LegPendingRoll
	default:
		return LegOpen
	}
}

// Resolver returns the default target-expiry resolver: the calendar's next
// expiry after the later of the leg's expiry and the current date.
func (r *Roller) Resolver(symbol string) TargetExpiryResolver {
	return func(leg options.OptionLeg, date time.Time) (time.Time, error) {
		ref := utils.DateOnly(date)
		if leg.Expiry.After(ref) {
			ref = utils.DateOnly(leg.Expiry)
		}
		return r.calendar.NextExpiry(symbol, ref, r.config.Interval)
	}
}

// ExecuteRoll closes leg at its theoretical price on ms and opens the
// replacement. The input leg is not modified. A nil resolver uses Resolver.
func (r *Roller) ExecuteRoll(leg options.OptionLeg, ms options.MarketState, resolve TargetExpiryResolver) (options.OptionLeg, RollEvent, error) {
	date := utils.DateOnly(ms.CurrentDate)
	if leg.IsExpired(date) {
		return options.OptionLeg{}, RollEvent{}, apperrors.NewValidationError(apperrors.ErrInputValidation,
			"expiry", leg.Expiry.Format(utils.DateLayout), "expired legs are settled, not rolled")
	}
	if resolve == nil {
		resolve = r.Resolver(r.config.Symbol)
	}

	newExpiry, err := resolve(leg, date)
	if err != nil {
		if !apperrors.Is(err, apperrors.ErrNoAvailableExpiry) {
			err = fmt.Errorf("%w: %v", apperrors.ErrNoAvailableExpiry, err)
		}
		return options.OptionLeg{}, RollEvent{}, err
	}
	newExpiry = utils.DateOnly(newExpiry)
	if !newExpiry.After(leg.Expiry) || !newExpiry.After(date) {
		return options.OptionLeg{}, RollEvent{}, fmt.Errorf("%w: resolved %s is not after %s and %s",
			apperrors.ErrNoAvailableExpiry, newExpiry.Format(utils.DateLayout),
			leg.Expiry.Format(utils.DateLayout), date.Format(utils.DateLayout))
	}

	exitPrice := leg.Theoretical(ms)
	exitPnL := leg.PnL(ms)

	next := leg.WithExpiry(newExpiry, 0, date)
	next.Strike = r.config.StrikePolicy(leg, ms)
	entryPrice := next.Theoretical(ms)
	next.EntryPremium = entryPrice
	if err := next.Validate(); err != nil {
		return options.OptionLeg{}, RollEvent{}, err
	}

	// Closing receives the exit price on a long leg; opening pays the entry price.
	cash := leg.Side.Sign() * (exitPrice - entryPrice) * float64(leg.Quantity) * ms.Multiplier()

	return next, RollEvent{
		LegIndex:   -1,
		Date:       date,
		OldLeg:     leg,
		NewLeg:     next,
		OldExpiry:  leg.Expiry,
		NewExpiry:  newExpiry,
		ExitPrice:  exitPrice,
		EntryPrice: entryPrice,
		ExitPnL:    exitPnL,
		Fee:        r.config.RollFee,
		RollCost:   cash - r.config.RollFee,
	}, nil
}

// RollLeg rolls slot idx of the strategy with the default resolver.
func (r *Roller) RollLeg(s *options.Strategy, idx int, ms options.MarketState) (RollEvent, error) {
	return r.RollLegWith(s, idx, ms, nil)
}

// RollLegWith rolls slot idx of the strategy. Only that slot changes.
func (r *Roller) RollLegWith(s *options.Strategy, idx int, ms options.MarketState, resolve TargetExpiryResolver) (RollEvent, error) {
	date := utils.DateOnly(ms.CurrentDate)
	if idx < 0 || idx >= s.Len() {
		return RollEvent{}, apperrors.NewRollError(idx, date, "no such leg", apperrors.ErrInputValidation)
	}

	leg := s.Leg(idx)
	next, event, err := r.ExecuteRoll(leg, ms, resolve)
	if err != nil {
		return RollEvent{}, apperrors.NewRollError(idx, date, "cannot roll "+leg.ContractKey(), err)
	}
	if err := s.ReplaceLeg(idx, next); err != nil {
		return RollEvent{}, apperrors.NewRollError(idx, date, "cannot replace leg", err)
	}
	event.LegIndex = idx

	logging.LogRoll(r.logger, idx, date, event.OldExpiry, event.NewExpiry, event.ExitPnL, event.RollCost)
	return event, nil
}

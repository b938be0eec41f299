// Package trading provides expiry calendars, leg rolling and the multi-expiry
// backtester that replays option strategies over historical prices.
package trading

import (
	"context"
	"time"

	"options-backtester/internal/models"
	"options-backtester/internal/options"
)

// PriceFeed supplies daily underlying closes.
type PriceFeed interface {
	GetPrices(ctx context.Context, symbol string, from, to time.Time) ([]models.PricePoint, error)
}

// ExpiryCalendar resolves listed expiries for an underlying.
type ExpiryCalendar interface {
	// NextExpiry returns the first expiry of the given interval strictly after ref.
	NextExpiry(symbol string, ref time.Time, interval ExpiryType) (time.Time, error)
}

// Backtester replays a strategy over a price series.
type Backtester interface {
	Run(ctx context.Context, strategy *options.Strategy, prices PriceSeries, config BacktestConfig) (*BacktestResult, error)
}

// BacktestConfig represents backtesting configuration.
type BacktestConfig struct {
	Symbol         string
	StartDate      time.Time
	EndDate        time.Time
	AutoRoll       bool
	RollDaysBefore int
	// Volatility is the default implied volatility for legs without their own.
	Volatility   float64
	RiskFreeRate float64
	// ContractMultiplier scales leg P&L; zero means 1.
	ContractMultiplier float64
	// SkipWeekends drops Saturdays and Sundays from the trading calendar.
	SkipWeekends bool
}

// BacktestRequest describes a strategy to build and backtest in one call.
type BacktestRequest struct {
	StrategyType models.StrategyType
	Symbol       string
	// UnderlyingPrice prices the entry legs; zero means the close on StartDate.
	UnderlyingPrice float64
	Strike          float64
	FarStrike       float64
	PutStrike       float64
	OptionType      models.OptionType
	Quantity        int
	NearSide        models.OrderSide
	NearExpiry      time.Time
	FarExpiry       time.Time
	StrikeStep      float64
	Legs            []options.OptionLeg

	StartDate          time.Time
	EndDate            time.Time
	AutoRoll           bool
	RollDaysBefore     int
	Volatility         float64
	RiskFreeRate       float64
	ContractMultiplier float64
	SkipWeekends       bool
}

// Config returns the run parameters of the request.
func (r BacktestRequest) Config() BacktestConfig {
	return BacktestConfig{
		Symbol:             r.Symbol,
		StartDate:          r.StartDate,
		EndDate:            r.EndDate,
		AutoRoll:           r.AutoRoll,
		RollDaysBefore:     r.RollDaysBefore,
		Volatility:         r.Volatility,
		RiskFreeRate:       r.RiskFreeRate,
		ContractMultiplier: r.ContractMultiplier,
		SkipWeekends:       r.SkipWeekends,
	}
}

// DailySnapshot is the state of the strategy at one trading date's close.
type DailySnapshot struct {
	Date            time.Time            `json:"date"`
	UnderlyingPrice float64              `json:"underlying_price"`
	PnL             float64              `json:"pnl"`
	Delta           float64              `json:"delta"`
	Gamma           float64              `json:"gamma"`
	Vega            float64              `json:"vega"`
	Theta           float64              `json:"theta"`
	OpenLegs        int                  `json:"open_legs"`
	Warnings        []options.LegWarning `json:"warnings,omitempty"`
}

// Settlement records a leg reaching expiry without a roll. The leg stays in
// the daily P&L at intrinsic value on each later close.
type Settlement struct {
	LegIndex        int               `json:"leg_index"`
	Date            time.Time         `json:"date"`
	Leg             options.OptionLeg `json:"leg"`
	SettlementPrice float64           `json:"settlement_price"`
	PnL             float64           `json:"pnl"`
}

// BacktestSummary aggregates a run.
type BacktestSummary struct {
	TotalPnL      float64 `json:"total_pnl"`
	RealizedPnL   float64 `json:"realized_pnl"`
	NumRolls      int     `json:"num_rolls"`
	TotalRollCost float64 `json:"total_roll_cost"`
	TotalFees     float64 `json:"total_fees"`
	SharpeRatio   float64 `json:"sharpe_ratio"`
	MaxDrawdown   float64 `json:"max_drawdown"`
	TradingDays   int     `json:"trading_days"`
	SettledLegs   int     `json:"settled_legs"`
}

// BacktestResult represents backtesting results.
type BacktestResult struct {
	RunID        string              `json:"run_id"`
	Symbol       string              `json:"symbol"`
	StrategyType models.StrategyType `json:"strategy_type"`
	StartDate    time.Time           `json:"start_date"`
	EndDate      time.Time           `json:"end_date"`
	AutoRoll     bool                `json:"auto_roll"`
	// Strategy is the final state of the run's own copy of the strategy.
	Strategy    *options.Strategy `json:"strategy"`
	Snapshots   []DailySnapshot   `json:"daily_snapshots"`
	RollHistory []RollEvent       `json:"roll_history"`
	Settlements []Settlement      `json:"settlements"`
	Summary     BacktestSummary   `json:"summary"`
}

// PnLCurve returns the daily cumulative P&L values.
func (r *BacktestResult) PnLCurve() []float64 {
	curve := make([]float64, len(r.Snapshots))
	for i, s := range r.Snapshots {
		curve[i] = s.PnL
	}
	return curve
}

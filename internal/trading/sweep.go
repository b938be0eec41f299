package trading

import (
	"context"
	"fmt"
	"sort"

	apperrors "options-backtester/internal/errors"
	"options-backtester/internal/options"
	"options-backtester/internal/performance"
)

// SweepCase is one parameter set of a sweep.
type SweepCase struct {
	Name   string
	Config BacktestConfig
	// Roller overrides the backtester's roller for this case, e.g. a different interval.
	Roller *Roller
}

// SweepResult is the outcome of one case. Exactly one of Result and Err is set.
type SweepResult struct {
	Name   string
	Config BacktestConfig
	Result *BacktestResult
	Err    error
}

// Sweep backtests every case in parallel on its own copy of the strategy.
// Results keep the order of cases.
func (be *MultiExpiryBacktester) Sweep(ctx context.Context, strategy *options.Strategy, prices PriceSeries, cases []SweepCase, workers int) ([]SweepResult, error) {
	if strategy == nil {
		return nil, apperrors.NewValidationError(apperrors.ErrInputValidation, "strategy", nil, "is required")
	}

	results := make([]SweepResult, len(cases))
	err := performance.ForEach(ctx, workers, len(cases), func(i int) {
		c := cases[i]
		runner := be
		if c.Roller != nil {
			runner = NewMultiExpiryBacktester(c.Roller).WithLogger(be.logger)
		}
		res, err := runner.Run(ctx, strategy.Clone(), prices, c.Config)
		results[i] = SweepResult{Name: c.Name, Config: c.Config, Result: res, Err: err}
	})
	if err != nil {
		return nil, fmt.Errorf("sweep: %w", err)
	}
	return results, nil
}

// RollThresholdCases builds one case per roll_days_before value and interval.
func RollThresholdCases(base BacktestConfig, rollerCfg RollerConfig, calendar ExpiryCalendar, thresholds []int, intervals []ExpiryType) []SweepCase {
	if len(intervals) == 0 {
		intervals = []ExpiryType{rollerCfg.Interval}
	}

	cases := make([]SweepCase, 0, len(thresholds)*len(intervals))
	for _, interval := range intervals {
		rc := rollerCfg
		rc.Interval = interval
		roller := NewRoller(calendar, rc)
		for _, n := range thresholds {
			cfg := base
			cfg.AutoRoll = true
			cfg.RollDaysBefore = n
			cases = append(cases, SweepCase{
				Name:   fmt.Sprintf("%s/roll-%dd", roller.Config().Interval, n),
				Config: cfg,
				Roller: roller,
			})
		}
	}
	return cases
}

// StrategyComparison represents a comparison of sweep case performance.
type StrategyComparison struct {
	Name          string  `json:"name"`
	TotalPnL      float64 `json:"total_pnl"`
	NumRolls      int     `json:"num_rolls"`
	TotalRollCost float64 `json:"total_roll_cost"`
	SharpeRatio   float64 `json:"sharpe_ratio"`
	MaxDrawdown   float64 `json:"max_drawdown"`
	Error         string  `json:"error,omitempty"`
}

// CompareStrategies ranks sweep results by Sharpe ratio, then total P&L.
// Failed cases sort last.
func CompareStrategies(results []SweepResult) []StrategyComparison {
	comparisons := make([]StrategyComparison, 0, len(results))
	for _, r := range results {
		c := StrategyComparison{Name: r.Name}
		if r.Err != nil || r.Result == nil {
			c.Error = apperrors.Kind(r.Err)
			if r.Err != nil {
				c.Error += ": " + r.Err.Error()
			}
		} else {
			s := r.Result.Summary
			c.TotalPnL = s.TotalPnL
			c.NumRolls = s.NumRolls
			c.TotalRollCost = s.TotalRollCost
			c.SharpeRatio = s.SharpeRatio
			c.MaxDrawdown = s.MaxDrawdown
		}
		comparisons = append(comparisons, c)
	}

	sort.SliceStable(comparisons, func(i, j int) bool {
		a, b := comparisons[i], comparisons[j]
		if (a.Error == "") != (b.Error == "") {
			return a.Error == ""
		}
		if a.SharpeRatio != b.SharpeRatio {
			return a.SharpeRatio > b.SharpeRatio
		}
		return a.TotalPnL > b.TotalPnL
	})

	return comparisons
}

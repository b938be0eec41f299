package trading

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"gonum.org/v1/gonum/stat"

	apperrors "options-backtester/internal/errors"
	"options-backtester/internal/logging"
	"options-backtester/internal/models"
	"options-backtester/internal/options"
	"options-backtester/pkg/utils"
)

// TradingDaysPerYear annualizes the Sharpe ratio.
const TradingDaysPerYear = 252

// PriceSeries maps normalized dates to underlying closes.
type PriceSeries map[time.Time]float64

// NewPriceSeries indexes points by date. Duplicate dates and non-finite
// closes are rejected.
func NewPriceSeries(points []models.PricePoint) (PriceSeries, error) {
	series := make(PriceSeries, len(points))
	for _, p := range points {
		d := utils.DateOnly(p.Date)
		if _, dup := series[d]; dup {
			return nil, apperrors.NewValidationError(apperrors.ErrInputValidation, "price_series",
				d.Format(utils.DateLayout), "duplicate date")
		}
		if math.IsNaN(p.Close) || math.IsInf(p.Close, 0) {
			return nil, apperrors.NewValidationError(apperrors.ErrInputValidation, "price_series",
				d.Format(utils.DateLayout), "close must be finite")
		}
		series[d] = p.Close
	}
	return series, nil
}

// Close returns the close on d.
func (ps PriceSeries) Close(d time.Time) (float64, bool) {
	v, ok := ps[utils.DateOnly(d)]
	return v, ok
}

// Dates returns the series dates in ascending order.
func (ps PriceSeries) Dates() []time.Time {
	dates := make([]time.Time, 0, len(ps))
	for d := range ps {
		dates = append(dates, d)
	}
	sort.Slice(dates, func(i, j int) bool {
		return dates[i].Before(dates[j])
	})
	return dates
}

// MultiExpiryBacktester replays a multi-expiry strategy day by day, rolling
// and settling legs as their expiries approach.
type MultiExpiryBacktester struct {
	roller *Roller
	logger zerolog.Logger
}

// NewMultiExpiryBacktester creates a backtester. A nil roller uses the defaults of NewRoller.
func NewMultiExpiryBacktester(roller *Roller) *MultiExpiryBacktester {
	if roller == nil {
		roller = NewRoller(nil, RollerConfig{})
	}
	return &MultiExpiryBacktester{
		roller: roller,
		logger: zerolog.Nop(),
	}
}

// WithLogger sets the backtester's logger.
func (be *MultiExpiryBacktester) WithLogger(logger zerolog.Logger) *MultiExpiryBacktester {
	be.logger = logger
	return be
}

// runState is the cash ledger of one run.
type runState struct {
	settled  []bool
	realized decimal.Decimal
	rollCost decimal.Decimal
	fees     decimal.Decimal
	// expired is the intrinsic P&L of settled legs at the latest close.
	expired decimal.Decimal
	warned  bool
}

// Run executes a backtest. The strategy is cloned; the caller's copy is never
// modified. Any error aborts the run and no partial result is returned.
func (be *MultiExpiryBacktester) Run(ctx context.Context, strategy *options.Strategy, prices PriceSeries, config BacktestConfig) (*BacktestResult, error) {
	config, err := be.validateConfig(strategy, config)
	if err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	days := utils.TradingDays(config.StartDate, config.EndDate, config.SkipWeekends)
	if len(days) == 0 {
		return nil, apperrors.NewValidationError(apperrors.ErrInvalidRange, "end_date",
			config.EndDate.Format(utils.DateLayout), "no trading days in range")
	}

	started := time.Now()
	s := strategy.Clone()
	result := &BacktestResult{
		RunID:        uuid.NewString(),
		Symbol:       config.Symbol,
		StrategyType: s.Type,
		StartDate:    utils.DateOnly(config.StartDate),
		EndDate:      utils.DateOnly(config.EndDate),
		AutoRoll:     config.AutoRoll,
		Strategy:     s,
		Snapshots:    make([]DailySnapshot, 0, len(days)),
		RollHistory:  make([]RollEvent, 0),
		Settlements:  make([]Settlement, 0),
	}
	logger := logging.WithRunID(logging.WithSymbol(be.logger, config.Symbol), result.RunID)

	base := options.MarketState{
		Volatility:         config.Volatility,
		RiskFreeRate:       config.RiskFreeRate,
		ContractMultiplier: config.ContractMultiplier,
	}
	resolve := be.roller.Resolver(config.Symbol)
	state := &runState{settled: make([]bool, s.Len())}

	for di, d := range days {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("backtest cancelled at %s: %w", d.Format(utils.DateLayout), err)
		}

		price, ok := prices[d]
		if !ok {
			return nil, apperrors.MissingPrice(config.Symbol, d)
		}
		ms := base.At(price, d)

		if config.AutoRoll {
			for i := 0; i < s.Len(); i++ {
				if state.settled[i] || !be.rollDue(s.Leg(i), days, di, config.RollDaysBefore) {
					continue
				}
				event, err := be.roller.RollLegWith(s, i, ms, resolve)
				if err != nil {
					return nil, err
				}
				state.realized = state.realized.Add(dec(event.ExitPnL)).Sub(dec(event.Fee))
				state.rollCost = state.rollCost.Add(dec(event.RollCost))
				state.fees = state.fees.Add(dec(event.Fee))
				result.RollHistory = append(result.RollHistory, event)
			}
		}

		for i := 0; i < s.Len(); i++ {
			leg := s.Leg(i)
			if state.settled[i] || !leg.IsExpired(d) {
				continue
			}
			settlement := Settlement{
				LegIndex:        i,
				Date:            d,
				Leg:             leg,
				SettlementPrice: leg.Value(ms),
				PnL:             leg.PnL(ms),
			}
			state.settled[i] = true
			result.Settlements = append(result.Settlements, settlement)
			logging.LogSettlement(logger, i, d, settlement.SettlementPrice, settlement.PnL)
		}

		result.Snapshots = append(result.Snapshots, be.snapshot(s, state, ms, logger))
	}

	be.summarize(result, state)
	logging.LogBacktestSummary(logger, len(days), result.Summary.NumRolls,
		result.Summary.TotalPnL, result.Summary.SharpeRatio, time.Since(started))

	return result, nil
}

// rollDue reports whether the leg should roll on days[idx]. Besides the usual
// threshold, a leg rolls on the last trading day before its expiry when the
// next trading day would find it already expired, so calendar gaps cannot
// skip the roll window.
func (be *MultiExpiryBacktester) rollDue(leg options.OptionLeg, days []time.Time, idx, rollDaysBefore int) bool {
	d := days[idx]
	if be.roller.ShouldRoll(leg, d, rollDaysBefore) {
		return true
	}
	if rollDaysBefore <= 0 || idx+1 >= len(days) {
		return false
	}
	return leg.DaysToExpiry(d) > 0 && leg.IsExpired(days[idx+1])
}

// snapshot marks every leg to market: cumulative P&L is realized roll cash
// plus each leg's P&L, expired legs at intrinsic. Greeks cover open legs only.
func (be *MultiExpiryBacktester) snapshot(s *options.Strategy, state *runState, ms options.MarketState, logger zerolog.Logger) DailySnapshot {
	cumulative := state.realized
	state.expired = decimal.Zero
	var greeks options.PortfolioGreeks
	open := 0

	for i := 0; i < s.Len(); i++ {
		leg := s.Leg(i)
		pnl := dec(leg.PnL(ms))
		cumulative = cumulative.Add(pnl)
		if state.settled[i] {
			state.expired = state.expired.Add(pnl)
			continue
		}
		open++

		lg := leg.Greeks(ms)
		greeks.OptionGreeks = greeks.OptionGreeks.Add(lg.Greeks)
		if lg.Warning != nil {
			greeks.Warnings = append(greeks.Warnings, options.LegWarning{LegIndex: i, Message: lg.Warning.Error()})
		}
	}

	if len(greeks.Warnings) > 0 && !state.warned {
		state.warned = true
		w := greeks.Warnings[0]
		logging.LogDegenerateInput(logger, w.LegIndex, ms.CurrentDate, w.Message)
	}

	return DailySnapshot{
		Date:            ms.CurrentDate,
		UnderlyingPrice: ms.UnderlyingPrice,
		PnL:             cumulative.InexactFloat64(),
		Delta:           greeks.Delta,
		Gamma:           greeks.Gamma,
		Vega:            greeks.Vega,
		Theta:           greeks.Theta,
		OpenLegs:        open,
		Warnings:        greeks.Warnings,
	}
}

func (be *MultiExpiryBacktester) summarize(result *BacktestResult, state *runState) {
	curve := result.PnLCurve()

	summary := BacktestSummary{
		RealizedPnL:   state.realized.Add(state.expired).InexactFloat64(),
		NumRolls:      len(result.RollHistory),
		TotalRollCost: state.rollCost.InexactFloat64(),
		TotalFees:     state.fees.InexactFloat64(),
		SharpeRatio:   SharpeRatio(curve),
		MaxDrawdown:   MaxDrawdown(curve),
		TradingDays:   len(curve),
		SettledLegs:   len(result.Settlements),
	}
	if len(curve) > 0 {
		summary.TotalPnL = curve[len(curve)-1]
	}
	result.Summary = summary
}

// validateConfig validates the backtest configuration and fills defaults.
func (be *MultiExpiryBacktester) validateConfig(strategy *options.Strategy, config BacktestConfig) (BacktestConfig, error) {
	if strategy == nil || strategy.Len() == 0 {
		return config, apperrors.NewValidationError(apperrors.ErrInputValidation, "strategy", nil, "is required")
	}
	if config.Symbol == "" {
		config.Symbol = strategy.Symbol
	}
	if config.StartDate.IsZero() {
		return config, apperrors.NewValidationError(apperrors.ErrInputValidation, "start_date", "", "is required")
	}
	if config.EndDate.IsZero() {
		return config, apperrors.NewValidationError(apperrors.ErrInputValidation, "end_date", "", "is required")
	}
	config.StartDate = utils.DateOnly(config.StartDate)
	config.EndDate = utils.DateOnly(config.EndDate)
	if config.EndDate.Before(config.StartDate) {
		return config, apperrors.NewValidationError(apperrors.ErrInvalidRange, "end_date",
			config.EndDate.Format(utils.DateLayout), "must not be before start date")
	}
	if config.RollDaysBefore < 0 {
		return config, apperrors.NewValidationError(apperrors.ErrInputValidation, "roll_days_before",
			config.RollDaysBefore, "must be non-negative")
	}
	if config.Volatility <= 0 {
		config.Volatility = options.DefaultVolatility
	}
	return config, nil
}

// RunRequest builds the requested strategy at the start date and backtests it
// against prices from feed.
func (be *MultiExpiryBacktester) RunRequest(ctx context.Context, req BacktestRequest, feed PriceFeed) (*BacktestResult, error) {
	strategy, series, err := PrepareRequest(ctx, req, feed)
	if err != nil {
		return nil, err
	}
	return be.Run(ctx, strategy, series, req.Config())
}

// PrepareRequest loads the request's prices from feed and builds its strategy
// at the start date, pricing entry legs at UnderlyingPrice or the start close.
func PrepareRequest(ctx context.Context, req BacktestRequest, feed PriceFeed) (*options.Strategy, PriceSeries, error) {
	if feed == nil {
		return nil, nil, apperrors.NewValidationError(apperrors.ErrInputValidation, "price_feed", nil, "is required")
	}
	points, err := feed.GetPrices(ctx, req.Symbol, req.StartDate, req.EndDate)
	if err != nil {
		return nil, nil, fmt.Errorf("fetching prices: %w", err)
	}
	series, err := NewPriceSeries(points)
	if err != nil {
		return nil, nil, err
	}

	price := req.UnderlyingPrice
	if price == 0 {
		c, ok := series.Close(req.StartDate)
		if !ok {
			return nil, nil, apperrors.MissingPrice(req.Symbol, utils.DateOnly(req.StartDate))
		}
		price = c
	}

	strategy, err := options.Build(options.BuildRequest{
		Type:            req.StrategyType,
		Symbol:          req.Symbol,
		UnderlyingPrice: price,
		Strike:          req.Strike,
		FarStrike:       req.FarStrike,
		PutStrike:       req.PutStrike,
		NearExpiry:      req.NearExpiry,
		FarExpiry:       req.FarExpiry,
		OptionType:      req.OptionType,
		Quantity:        req.Quantity,
		NearSide:        req.NearSide,
		CreationDate:    req.StartDate,
		Volatility:      req.Volatility,
		RiskFreeRate:    req.RiskFreeRate,
		StrikeStep:      req.StrikeStep,
		Legs:            req.Legs,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("building strategy: %w", err)
	}
	return strategy, series, nil
}

// SharpeRatio annualizes mean/stdev of the day-over-day changes of a
// cumulative P&L curve. Fewer than two changes or zero variance yield 0.
func SharpeRatio(pnl []float64) float64 {
	if len(pnl) < 3 {
		return 0
	}

	changes := make([]float64, len(pnl)-1)
	for i := 1; i < len(pnl); i++ {
		changes[i-1] = pnl[i] - pnl[i-1]
	}

	mean, stdDev := stat.MeanStdDev(changes, nil)
	if math.IsNaN(stdDev) || stdDev <= 1e-12*math.Max(1, math.Abs(mean)) {
		return 0
	}
	return mean / stdDev * math.Sqrt(TradingDaysPerYear)
}

// MaxDrawdown returns the largest peak-to-trough fall of a cumulative P&L
// curve, measured from a starting peak of zero.
func MaxDrawdown(pnl []float64) float64 {
	var peak, maxDD float64
	for _, v := range pnl {
		if v > peak {
			peak = v
		}
		if dd := peak - v; dd > maxDD {
			maxDD = dd
		}
	}
	return maxDD
}

// GeneratePnLCurveASCII generates an ASCII chart of the cumulative P&L.
func GeneratePnLCurveASCII(result *BacktestResult, width, height int) string {
	if result == nil || len(result.Snapshots) == 0 || width <= 0 || height <= 1 {
		return "No data to display"
	}
	curve := result.PnLCurve()

	minPnL, maxPnL := curve[0], curve[0]
	for _, v := range curve {
		minPnL = math.Min(minPnL, v)
		maxPnL = math.Max(maxPnL, v)
	}

	// Add padding
	pnlRange := maxPnL - minPnL
	if pnlRange == 0 {
		pnlRange = 1
	}
	minPnL -= pnlRange * 0.05
	maxPnL += pnlRange * 0.05
	pnlRange = maxPnL - minPnL

	grid := make([][]rune, height)
	for i := range grid {
		grid[i] = []rune(strings.Repeat(" ", width))
	}

	// Zero line, when it is in view
	if minPnL < 0 && maxPnL > 0 {
		zy := int(-minPnL / pnlRange * float64(height-1))
		for x := range grid[height-1-zy] {
			grid[height-1-zy][x] = '·'
		}
	}

	// Sample points to fit width
	step := float64(len(curve)) / float64(width)
	if step < 1 {
		step = 1
	}
	for x := 0; x < width; x++ {
		idx := int(float64(x) * step)
		if idx >= len(curve) {
			break
		}
		y := int((curve[idx] - minPnL) / pnlRange * float64(height-1))
		if y >= 0 && y < height {
			grid[height-1-y][x] = '█'
		}
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("P&L Curve %s to %s (%.0f to %.0f)\n",
		result.StartDate.Format(utils.DateLayout), result.EndDate.Format(utils.DateLayout), minPnL, maxPnL))
	sb.WriteString(strings.Repeat("─", width+2) + "\n")
	for _, row := range grid {
		sb.WriteRune('│')
		sb.WriteString(string(row))
		sb.WriteRune('│')
		sb.WriteRune('\n')
	}
	sb.WriteString(strings.Repeat("─", width+2) + "\n")

	return sb.String()
}

// dec converts a float to the ledger type. Non-finite values count as zero.
func dec(v float64) decimal.Decimal {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return decimal.Zero
	}
	return decimal.NewFromFloat(v)
}

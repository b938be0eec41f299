package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"options-backtester/internal/models"
	"options-backtester/internal/options"
	"options-backtester/internal/trading"
	"options-backtester/pkg/utils"
)

// strategyFlags are the strategy-shape flags shared by options and backtest commands.
type strategyFlags struct {
	strategyType string
	symbol       string
	optionType   string
	nearSide     string
	spot         float64
	strike       float64
	farStrike    float64
	putStrike    float64
	strikeStep   float64
	quantity     int
	nearExpiry   string
	farExpiry    string
	legsFile     string
	volatility   float64
	rate         float64
}

func (f *strategyFlags) register(cmd *cobra.Command) {
	fl := cmd.Flags()
	fl.StringVarP(&f.strategyType, "type", "t", "calendar", "strategy: calendar, diagonal, double_calendar, custom")
	fl.StringVarP(&f.symbol, "symbol", "s", "", "underlying symbol (default from config)")
	fl.StringVar(&f.optionType, "option-type", "call", "option type for calendar/diagonal: call or put")
	fl.StringVar(&f.nearSide, "near-side", "sell", "side of the near leg: sell or buy")
	fl.Float64Var(&f.strike, "strike", 0, "strike (0 = ATM)")
	fl.Float64Var(&f.farStrike, "far-strike", 0, "far leg strike for diagonal (0 = ATM)")
	fl.Float64Var(&f.putStrike, "put-strike", 0, "put calendar strike for double_calendar (0 = --strike)")
	fl.Float64Var(&f.strikeStep, "strike-step", 0, "strike grid for ATM rounding (default from config)")
	fl.IntVarP(&f.quantity, "qty", "q", 0, "contracts per leg (default from config)")
	fl.StringVar(&f.nearExpiry, "near-expiry", "", "near expiry YYYY-MM-DD (default: next weekly expiry)")
	fl.StringVar(&f.farExpiry, "far-expiry", "", "far expiry YYYY-MM-DD (default: next monthly expiry)")
	fl.StringVar(&f.legsFile, "legs", "", "JSON file with the legs of a custom strategy")
	fl.Float64Var(&f.volatility, "vol", 0, "implied volatility, 0.18 = 18% (default from config)")
	fl.Float64Var(&f.rate, "rate", -1, "risk-free rate (default from config)")
}

func (f *strategyFlags) registerSpot(cmd *cobra.Command, usage string) {
	cmd.Flags().Float64Var(&f.spot, "spot", 0, usage)
}

func (f *strategyFlags) symbolOr(app *App) string {
	if f.symbol != "" {
		return strings.ToUpper(f.symbol)
	}
	return app.Config.Backtest.Symbol
}

func (f *strategyFlags) market(app *App) (vol, rate float64) {
	vol, rate = app.Config.Backtest.Volatility, app.Config.Backtest.RiskFreeRate
	if f.volatility > 0 {
		vol = f.volatility
	}
	if f.rate >= 0 {
		rate = f.rate
	}
	return vol, rate
}

// buildRequest resolves the flags into a factory request created on date.
// Missing expiries come from the configured expiry calendar.
func (f *strategyFlags) buildRequest(app *App, date time.Time) (options.BuildRequest, error) {
	typ, err := models.ParseStrategyType(f.strategyType)
	if err != nil {
		return options.BuildRequest{}, err
	}
	optType, err := models.ParseOptionType(f.optionType)
	if err != nil {
		return options.BuildRequest{}, err
	}
	side, err := models.ParseOrderSide(f.nearSide)
	if err != nil {
		return options.BuildRequest{}, err
	}

	vol, rate := f.market(app)
	req := options.BuildRequest{
		Type:            typ,
		Symbol:          f.symbolOr(app),
		UnderlyingPrice: f.spot,
		Strike:          f.strike,
		FarStrike:       f.farStrike,
		PutStrike:       f.putStrike,
		OptionType:      optType,
		Quantity:        f.quantity,
		NearSide:        side,
		CreationDate:    utils.DateOnly(date),
		Volatility:      vol,
		RiskFreeRate:    rate,
		StrikeStep:      f.strikeStep,
	}
	if req.Quantity == 0 {
		req.Quantity = app.Config.Backtest.Quantity
	}
	if req.StrikeStep == 0 {
		req.StrikeStep = app.Config.Backtest.StrikeStep
	}

	if typ == models.StrategyCustom {
		if f.legsFile == "" {
			return req, fmt.Errorf("custom strategies need --legs")
		}
		req.Legs, err = readLegsFile(f.legsFile)
		return req, err
	}

	if req.NearExpiry, req.FarExpiry, err = f.expiries(app, req.Symbol, req.CreationDate); err != nil {
		return req, err
	}
	return req, nil
}

func (f *strategyFlags) expiries(app *App, symbol string, date time.Time) (near, far time.Time, err error) {
	cal, err := app.Calendar()
	if err != nil {
		return near, far, err
	}

	if f.nearExpiry != "" {
		if near, err = utils.ParseDate(f.nearExpiry); err != nil {
			return near, far, err
		}
	} else if near, err = cal.NextExpiry(symbol, date, trading.ExpiryWeekly); err != nil {
		return near, far, err
	}

	if f.farExpiry != "" {
		far, err = utils.ParseDate(f.farExpiry)
		return near, far, err
	}
	far, err = cal.NextExpiry(symbol, date, trading.ExpiryMonthly)
	if err == nil && !far.After(near) {
		far, err = cal.NextExpiry(symbol, near, trading.ExpiryMonthly)
	}
	return near, far, err
}

func readLegsFile(path string) ([]options.OptionLeg, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading legs file: %w", err)
	}
	var legs []options.OptionLeg
	if err := json.Unmarshal(data, &legs); err != nil {
		return nil, fmt.Errorf("parsing legs file: %w", err)
	}
	return legs, nil
}

// parseDateFlag parses a YYYY-MM-DD flag value, returning def when empty.
func parseDateFlag(value string, def time.Time) (time.Time, error) {
	if value == "" {
		return utils.DateOnly(def), nil
	}
	return utils.ParseDate(value)
}

// today is the current calendar date in the exchange's time zone.
func today() time.Time {
	return utils.DateOnly(time.Now().In(utils.IndiaLocation))
}

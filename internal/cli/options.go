package cli

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"options-backtester/internal/models"
	"options-backtester/internal/options"
	"options-backtester/internal/pricing"
	"options-backtester/pkg/utils"
)

func newOptionsCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "options",
		Short: "Price options and build multi-expiry strategies",
		Long:  "Black-Scholes pricing, Greeks, implied volatility and strategy construction.",
	}

	cmd.AddCommand(newGreeksCmd(app))
	cmd.AddCommand(newIVCmd(app))
	cmd.AddCommand(newBuildCmd(app))
	cmd.AddCommand(newPayoffCmd(app))

	return cmd
}

// contractFlags describe a single option for the greeks and iv commands.
type contractFlags struct {
	spot       float64
	strike     float64
	optionType string
	expiry     string
	date       string
	days       int
	vol        float64
	rate       float64
}

func (f *contractFlags) register(cmd *cobra.Command) {
	cmd.Flags().Float64Var(&f.spot, "spot", 0, "underlying price")
	cmd.Flags().Float64Var(&f.strike, "strike", 0, "strike price")
	cmd.Flags().StringVar(&f.optionType, "option-type", "call", "call or put")
	cmd.Flags().StringVar(&f.expiry, "expiry", "", "expiry date YYYY-MM-DD")
	cmd.Flags().IntVar(&f.days, "days", 0, "days to expiry (instead of --expiry)")
	cmd.Flags().StringVar(&f.date, "date", "", "valuation date YYYY-MM-DD (default today)")
	cmd.Flags().Float64Var(&f.vol, "vol", 0, "implied volatility, 0.18 = 18% (default from config)")
	cmd.Flags().Float64Var(&f.rate, "rate", -1, "risk-free rate (default from config)")
	cmd.MarkFlagRequired("spot")
	cmd.MarkFlagRequired("strike")
}

func (f *contractFlags) input(app *App) (pricing.Input, error) {
	optType, err := models.ParseOptionType(f.optionType)
	if err != nil {
		return pricing.Input{}, err
	}
	date, err := parseDateFlag(f.date, today())
	if err != nil {
		return pricing.Input{}, err
	}

	expiry := date.AddDate(0, 0, f.days)
	if f.expiry != "" {
		if expiry, err = utils.ParseDate(f.expiry); err != nil {
			return pricing.Input{}, err
		}
	} else if f.days <= 0 {
		return pricing.Input{}, fmt.Errorf("either --expiry or --days is required")
	}

	in := pricing.Input{
		Spot:         f.spot,
		Strike:       f.strike,
		TimeToExpiry: pricing.YearsToExpiry(date, expiry),
		Volatility:   app.Config.Backtest.Volatility,
		RiskFreeRate: app.Config.Backtest.RiskFreeRate,
		Type:         optType,
	}
	if f.vol > 0 {
		in.Volatility = f.vol
	}
	if f.rate >= 0 {
		in.RiskFreeRate = f.rate
	}
	return in, nil
}

func newGreeksCmd(app *App) *cobra.Command {
	var flags contractFlags

	cmd := &cobra.Command{
		Use:   "greeks",
		Short: "Black-Scholes price and Greeks of one option",
		Example: `  backtester options greeks --spot 21800 --strike 22000 --days 14
  backtester options greeks --spot 21800 --strike 21500 --option-type put --expiry 2026-02-26 --vol 0.16`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			in, err := flags.input(app)
			if err != nil {
				return err
			}

			res := pricing.BlackScholes(in)
			if output.IsJSON() {
				payload := map[string]interface{}{
					"price":  res.Price,
					"greeks": res.Greeks,
					"status": res.Status.String(),
				}
				if res.Warning != nil {
					payload["warning"] = res.Warning.Error()
				}
				return output.JSON(payload)
			}

			output.Bold("%s %s  spot %s  T %.4fy  σ %s  r %s", in.Type, FormatStrike(in.Strike),
				FormatPrice(in.Spot), in.TimeToExpiry, FormatIV(in.Volatility), FormatIV(in.RiskFreeRate))
			output.Printf("  Price:  %s\n", FormatPrice(res.Price))
			output.Printf("  Greeks: %s\n", FormatGreeks(res.Greeks.Delta, res.Greeks.Gamma, res.Greeks.Theta, res.Greeks.Vega))
			if res.IsFallback() {
				output.Warning("  %v", res.Warning)
			}
			return nil
		},
	}

	flags.register(cmd)
	return cmd
}

func newIVCmd(app *App) *cobra.Command {
	var flags contractFlags
	var premium float64

	cmd := &cobra.Command{
		Use:     "iv",
		Short:   "Implied volatility from an option premium",
		Example: `  backtester options iv --spot 21800 --strike 22000 --days 14 --premium 95`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			in, err := flags.input(app)
			if err != nil {
				return err
			}

			iv, err := pricing.ImpliedVolatility(premium, in)
			if err != nil {
				return err
			}

			if output.IsJSON() {
				return output.JSON(map[string]float64{"premium": premium, "implied_volatility": iv})
			}
			output.Printf("Implied volatility: %s\n", output.Cyan(FormatIV(iv)))
			return nil
		},
	}

	flags.register(cmd)
	cmd.Flags().Float64Var(&premium, "premium", 0, "observed option premium")
	cmd.MarkFlagRequired("premium")
	return cmd
}

func newBuildCmd(app *App) *cobra.Command {
	var flags strategyFlags
	var date string

	cmd := &cobra.Command{
		Use:   "build",
		Short: "Build a strategy and show its legs, premium and Greeks",
		Example: `  backtester options build --spot 21837 --type calendar
  backtester options build --spot 21837 --type diagonal --strike 21800 --far-strike 22000
  backtester options build --spot 21837 --type double_calendar --strike 22100 --put-strike 21500`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			s, ms, err := buildStrategy(app, &flags, date)
			if err != nil {
				return err
			}

			greeks := s.PortfolioGreeks(ms)
			if output.IsJSON() {
				return output.JSON(map[string]interface{}{
					"strategy":    s,
					"net_premium": s.NetPremium(),
					"greeks":      greeks,
				})
			}

			printStrategy(output, s, ms)
			output.Println()
			output.Printf("Net premium: %s\n", output.FormatPnL(s.NetPremium()))
			output.Printf("Greeks:      %s\n", FormatGreeks(greeks.Delta, greeks.Gamma, greeks.Theta, greeks.Vega))
			for _, w := range greeks.Warnings {
				output.Warning("  leg %d: %s", w.LegIndex, w.Message)
			}

			output.Println()
			output.Bold("Expiry breakdown")
			for _, expiry := range s.Expiries() {
				legs := s.ExpiryBreakdown()[expiry]
				output.Printf("  %s  %d leg(s)  %s\n", FormatDate(expiry), len(legs), output.DimText(FormatDTE(expiry, ms.CurrentDate)))
			}
			return nil
		},
	}

	flags.register(cmd)
	flags.registerSpot(cmd, "underlying price used for ATM strikes and entry premiums")
	cmd.Flags().StringVar(&date, "date", "", "creation date YYYY-MM-DD (default today)")
	cmd.MarkFlagRequired("spot")
	return cmd
}

func newPayoffCmd(app *App) *cobra.Command {
	var flags strategyFlags
	var date, at string
	var lo, hi float64
	var points int

	cmd := &cobra.Command{
		Use:   "payoff",
		Short: "Payoff profile, max profit/loss and breakevens",
		Long: `Evaluate the strategy over a range of underlying prices.

By default every leg is settled at its own expiry. With --at, the whole
strategy is valued on that date instead, e.g. the calendar tent at the
near expiry.`,
		Example: `  backtester options payoff --spot 21837 --type calendar
  backtester options payoff --spot 21837 --type calendar --at 2026-01-29 --lo 20500 --hi 23000`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			s, ms, err := buildStrategy(app, &flags, date)
			if err != nil {
				return err
			}

			if lo == 0 {
				lo = ms.UnderlyingPrice * 0.9
			}
			if hi == 0 {
				hi = ms.UnderlyingPrice * 1.1
			}
			prices := options.PriceRange(lo, hi, points)

			var pa *options.PayoffAnalysis
			if at != "" {
				atDate, err := utils.ParseDate(at)
				if err != nil {
					return err
				}
				pa, err = s.ProjectedPnL(prices, ms.At(ms.UnderlyingPrice, atDate))
				if err != nil {
					return err
				}
			} else if pa, err = s.MaxProfitLoss(prices); err != nil {
				return err
			}

			if output.IsJSON() {
				return output.JSON(pa)
			}

			printStrategy(output, s, ms)
			output.Println()
			printPayoff(output, pa)
			return nil
		},
	}

	flags.register(cmd)
	flags.registerSpot(cmd, "underlying price used for ATM strikes and entry premiums")
	cmd.Flags().StringVar(&date, "date", "", "creation date YYYY-MM-DD (default today)")
	cmd.Flags().StringVar(&at, "at", "", "value all legs on this date instead of at each expiry")
	cmd.Flags().Float64Var(&lo, "lo", 0, "lowest underlying price (default spot -10%)")
	cmd.Flags().Float64Var(&hi, "hi", 0, "highest underlying price (default spot +10%)")
	cmd.Flags().IntVar(&points, "points", 21, "number of prices to sample")
	cmd.MarkFlagRequired("spot")
	return cmd
}

func buildStrategy(app *App, flags *strategyFlags, date string) (*options.Strategy, options.MarketState, error) {
	created, err := parseDateFlag(date, today())
	if err != nil {
		return nil, options.MarketState{}, err
	}
	req, err := flags.buildRequest(app, created)
	if err != nil {
		return nil, options.MarketState{}, err
	}
	s, err := options.Build(req)
	if err != nil {
		return nil, options.MarketState{}, err
	}
	ms := options.NewMarketState(req.UnderlyingPrice, created, req.Volatility, req.RiskFreeRate)
	app.Logger.Debug().Str("strategy", s.Type.String()).Int("legs", s.Len()).Msg("Strategy built")
	return s, ms, nil
}

func printStrategy(output *Output, s *options.Strategy, ms options.MarketState) {
	output.Bold("%s %s  (created %s, spot %s)", s.Type, s.Symbol, FormatDate(s.CreationDate), FormatPrice(ms.UnderlyingPrice))

	table := NewTable(output, "#", "Side", "Type", "Strike", "Expiry", "DTE", "Qty", "Premium", "Value")
	for i, leg := range s.Legs() {
		table.AddRow(
			fmt.Sprintf("%d", i),
			output.Side(string(leg.Side)),
			leg.Type.Short(),
			FormatStrike(leg.Strike),
			FormatDate(leg.Expiry),
			FormatDTE(leg.Expiry, ms.CurrentDate),
			fmt.Sprintf("%d", leg.Quantity),
			FormatPrice(leg.EntryPremium),
			FormatPrice(leg.Value(ms)),
		)
	}
	table.Render()
}

func printPayoff(output *Output, pa *options.PayoffAnalysis) {
	table := NewTable(output, "Underlying", "P&L")
	for _, p := range pa.Points {
		table.AddRow(FormatPrice(p.Price), output.FormatPnL(p.PnL))
	}
	table.Render()
	output.Println()

	output.Printf("Max profit: %s at %s\n", output.FormatPnL(pa.MaxProfit), FormatPrice(pa.MaxProfitPrice))
	output.Printf("Max loss:   %s at %s\n", output.FormatPnL(pa.MaxLoss), FormatPrice(pa.MaxLossPrice))

	breakevens := append([]float64(nil), pa.Breakevens...)
	sort.Float64s(breakevens)
	if len(breakevens) == 0 {
		output.Dim("No breakevens in range")
		return
	}
	output.Printf("Breakevens:")
	for _, b := range breakevens {
		output.Printf(" %s", FormatPrice(b))
	}
	output.Println()
}

package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"options-backtester/internal/models"
	"options-backtester/internal/store"
	"options-backtester/internal/trading"
	"options-backtester/pkg/utils"
)

func newBacktestCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backtest",
		Short: "Backtest multi-expiry strategies over historical closes",
		Long: `Run a strategy day by day over stored closes, rolling near legs as they
approach expiry, and archive the results.`,
	}

	cmd.AddCommand(newBacktestRunCmd(app))
	cmd.AddCommand(newBacktestSweepCmd(app))
	cmd.AddCommand(newBacktestListCmd(app))
	cmd.AddCommand(newBacktestShowCmd(app))
	cmd.AddCommand(newBacktestDeleteCmd(app))

	return cmd
}

// runFlags are the backtest window and roll settings.
type runFlags struct {
	start        string
	end          string
	pricesFile   string
	autoRoll     bool
	rollDays     int
	rollInterval string
	rollFee      float64
	atmRoll      bool
	skipWeekends bool
	multiplier   float64
}

func (f *runFlags) register(cmd *cobra.Command) {
	fl := cmd.Flags()
	fl.StringVar(&f.start, "start", "", "first backtest date YYYY-MM-DD")
	fl.StringVar(&f.end, "end", "", "last backtest date YYYY-MM-DD")
	fl.StringVar(&f.pricesFile, "prices", "", "read closes from a date,close CSV instead of the store")
	fl.BoolVar(&f.autoRoll, "auto-roll", false, "roll near legs automatically (default from config)")
	fl.IntVar(&f.rollDays, "roll-days", -1, "roll when 0 < DTE <= this (default from config)")
	fl.StringVar(&f.rollInterval, "roll-interval", "", "roll target: weekly or monthly (default from config)")
	fl.Float64Var(&f.rollFee, "roll-fee", -1, "flat fee per roll (default from config)")
	fl.BoolVar(&f.atmRoll, "atm-roll", false, "re-center rolled legs on the ATM strike")
	fl.BoolVar(&f.skipWeekends, "skip-weekends", false, "skip Saturdays and Sundays (default from config)")
	fl.Float64Var(&f.multiplier, "multiplier", 0, "contract multiplier (default from config)")
	cmd.MarkFlagRequired("start")
	cmd.MarkFlagRequired("end")
}

// setup holds everything a backtest command needs.
type setup struct {
	request  trading.BacktestRequest
	calendar trading.ExpiryCalendar
	roller   *trading.Roller
	feed     trading.PriceFeed
}

func (f *runFlags) setup(cmd *cobra.Command, app *App, sf *strategyFlags) (*setup, error) {
	start, err := utils.ParseDate(f.start)
	if err != nil {
		return nil, err
	}
	end, err := utils.ParseDate(f.end)
	if err != nil {
		return nil, err
	}

	b := app.Config.Backtest
	autoRoll := b.AutoRoll
	if cmd.Flags().Changed("auto-roll") {
		autoRoll = f.autoRoll
	}
	skipWeekends := b.SkipWeekends
	if cmd.Flags().Changed("skip-weekends") {
		skipWeekends = f.skipWeekends
	}
	rollDays := b.RollDaysBefore
	if f.rollDays >= 0 {
		rollDays = f.rollDays
	}
	rollFee := b.RollFee
	if f.rollFee >= 0 {
		rollFee = f.rollFee
	}
	multiplier := b.ContractMultiplier
	if f.multiplier > 0 {
		multiplier = f.multiplier
	}
	intervalName := b.RollInterval
	if f.rollInterval != "" {
		intervalName = f.rollInterval
	}
	interval, err := trading.ParseExpiryType(intervalName)
	if err != nil {
		return nil, err
	}

	build, err := sf.buildRequest(app, start)
	if err != nil {
		return nil, err
	}

	calendar, err := app.Calendar()
	if err != nil {
		return nil, err
	}
	rollerCfg := trading.RollerConfig{Symbol: build.Symbol, Interval: interval, RollFee: rollFee}
	if f.atmRoll {
		rollerCfg.StrikePolicy = trading.ATMStrike(build.StrikeStep)
	}

	var feed trading.PriceFeed
	if f.pricesFile != "" {
		if feed, err = newCSVFeed(f.pricesFile); err != nil {
			return nil, err
		}
	} else if feed, err = app.DataStore(); err != nil {
		return nil, err
	}

	return &setup{
		request: trading.BacktestRequest{
			StrategyType:       build.Type,
			Symbol:             build.Symbol,
			UnderlyingPrice:    build.UnderlyingPrice,
			Strike:             build.Strike,
			FarStrike:          build.FarStrike,
			PutStrike:          build.PutStrike,
			OptionType:         build.OptionType,
			Quantity:           build.Quantity,
			NearSide:           build.NearSide,
			NearExpiry:         build.NearExpiry,
			FarExpiry:          build.FarExpiry,
			StrikeStep:         build.StrikeStep,
			Legs:               build.Legs,
			StartDate:          start,
			EndDate:            end,
			AutoRoll:           autoRoll,
			RollDaysBefore:     rollDays,
			Volatility:         build.Volatility,
			RiskFreeRate:       build.RiskFreeRate,
			ContractMultiplier: multiplier,
			SkipWeekends:       skipWeekends,
		},
		calendar: calendar,
		roller:   trading.NewRoller(calendar, rollerCfg).WithLogger(app.Logger),
		feed:     feed,
	}, nil
}

func newBacktestRunCmd(app *App) *cobra.Command {
	var sf strategyFlags
	var rf runFlags
	var label string
	var noSave, chart bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Backtest one strategy",
		Example: `  backtester backtest run --type calendar --start 2026-01-01 --end 2026-03-31 --auto-roll
  backtester backtest run --type diagonal --strike 21800 --far-strike 22000 --start 2026-01-01 --end 2026-02-27 --roll-days 2
  backtester backtest run --type custom --legs legs.json --prices nifty.csv --start 2026-01-01 --end 2026-01-31`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			su, err := rf.setup(cmd, app, &sf)
			if err != nil {
				return err
			}

			be := trading.NewMultiExpiryBacktester(su.roller).WithLogger(app.Logger)
			result, err := be.RunRequest(cmd.Context(), su.request, su.feed)
			if err != nil {
				return err
			}

			if !noSave {
				if err := archiveResult(cmd.Context(), app, result, label); err != nil {
					app.Logger.Warn().Err(err).Msg("Failed to archive backtest run")
				}
			}

			if output.IsJSON() {
				return output.JSON(result)
			}
			printResult(output, app, result, chart)
			if !noSave {
				output.Dim("Saved as %s", result.RunID)
			}
			return nil
		},
	}

	sf.register(cmd)
	sf.registerSpot(cmd, "entry underlying price (default: close on --start)")
	rf.register(cmd)
	cmd.Flags().StringVar(&label, "label", "", "label stored with the archived run")
	cmd.Flags().BoolVar(&noSave, "no-save", false, "do not archive the run")
	cmd.Flags().BoolVar(&chart, "chart", true, "draw the P&L curve")
	return cmd
}

func newBacktestSweepCmd(app *App) *cobra.Command {
	var sf strategyFlags
	var rf runFlags
	var thresholds, intervals string
	var workers int

	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Backtest one strategy across roll thresholds and intervals in parallel",
		Example: `  backtester backtest sweep --type calendar --start 2026-01-01 --end 2026-06-30 --thresholds 1,2,3,5 --intervals weekly,monthly`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			su, err := rf.setup(cmd, app, &sf)
			if err != nil {
				return err
			}

			days, err := parseInts(thresholds)
			if err != nil {
				return err
			}
			var types []trading.ExpiryType
			for _, name := range strings.Split(intervals, ",") {
				t, err := trading.ParseExpiryType(name)
				if err != nil {
					return err
				}
				types = append(types, t)
			}

			strategy, series, err := trading.PrepareRequest(cmd.Context(), su.request, su.feed)
			if err != nil {
				return err
			}

			base := su.request.Config()
			base.AutoRoll = true
			cases := trading.RollThresholdCases(base, su.roller.Config(), su.calendar, days, types)
			for i := range cases {
				cases[i].Roller = cases[i].Roller.WithLogger(app.Logger)
			}

			if workers <= 0 {
				workers = app.Config.Backtest.Workers
			}
			be := trading.NewMultiExpiryBacktester(su.roller).WithLogger(app.Logger)
			results, err := be.Sweep(cmd.Context(), strategy, series, cases, workers)
			if err != nil {
				return err
			}

			ranked := trading.CompareStrategies(results)
			if output.IsJSON() {
				return output.JSON(ranked)
			}

			output.Bold("%s %s sweep, %s to %s (%d cases)", strategy.Type, strategy.Symbol,
				FormatDate(base.StartDate), FormatDate(base.EndDate), len(cases))
			table := NewTable(output, "Rank", "Case", "Total P&L", "Rolls", "Roll Cost", "Sharpe", "Max DD")
			for i, c := range ranked {
				if c.Error != "" {
					table.AddRow(fmt.Sprintf("%d", i+1), c.Name, output.Red(TruncateString(c.Error, 40)), "", "", "", "")
					continue
				}
				table.AddRow(
					fmt.Sprintf("%d", i+1),
					c.Name,
					output.FormatPnL(c.TotalPnL),
					fmt.Sprintf("%d", c.NumRolls),
					FormatPnL(c.TotalRollCost),
					FormatSharpe(c.SharpeRatio),
					FormatIndianCurrency(c.MaxDrawdown),
				)
			}
			table.Render()
			return nil
		},
	}

	sf.register(cmd)
	sf.registerSpot(cmd, "entry underlying price (default: close on --start)")
	rf.register(cmd)
	cmd.Flags().StringVar(&thresholds, "thresholds", "1,2,3,5", "comma separated roll-days-before values")
	cmd.Flags().StringVar(&intervals, "intervals", "weekly", "comma separated roll intervals")
	cmd.Flags().IntVar(&workers, "workers", 0, "parallel backtests (default from config)")
	return cmd
}

func newBacktestListCmd(app *App) *cobra.Command {
	var symbol, strategyType string
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List archived backtest runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ds, err := app.DataStore()
			if err != nil {
				return err
			}

			runs, err := ds.ListBacktestRuns(cmd.Context(), store.RunFilter{
				Symbol:       strings.ToUpper(symbol),
				StrategyType: strategyType,
				Limit:        limit,
			})
			if err != nil {
				return err
			}

			if output.IsJSON() {
				return output.JSON(runs)
			}
			if len(runs) == 0 {
				output.Dim("No archived runs")
				return nil
			}

			table := NewTable(output, "ID", "Label", "Strategy", "Symbol", "Period", "Total P&L", "Rolls", "Sharpe", "Created")
			for _, r := range runs {
				table.AddRow(
					shortID(r.ID),
					TruncateString(r.Label, 20),
					r.StrategyType,
					r.Symbol,
					r.StartDate.Format(utils.DateLayout)+" → "+r.EndDate.Format(utils.DateLayout),
					output.FormatPnL(r.TotalPnL),
					fmt.Sprintf("%d", r.NumRolls),
					FormatSharpe(r.SharpeRatio),
					r.CreatedAt.In(utils.IndiaLocation).Format("02-Jan 15:04"),
				)
			}
			table.Render()
			return nil
		},
	}

	cmd.Flags().StringVarP(&symbol, "symbol", "s", "", "filter by symbol")
	cmd.Flags().StringVarP(&strategyType, "type", "t", "", "filter by strategy type")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum runs to list")
	return cmd
}

func newBacktestShowCmd(app *App) *cobra.Command {
	var chart bool

	cmd := &cobra.Command{
		Use:   "show <run-id>",
		Short: "Show an archived backtest run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			result, err := loadResult(cmd.Context(), app, args[0])
			if err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(result)
			}
			printResult(output, app, result, chart)
			return nil
		},
	}

	cmd.Flags().BoolVar(&chart, "chart", true, "draw the P&L curve")
	return cmd
}

func newBacktestDeleteCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <run-id>",
		Short: "Delete an archived backtest run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ds, err := app.DataStore()
			if err != nil {
				return err
			}
			id, err := resolveRunID(cmd.Context(), ds, args[0])
			if err != nil {
				return err
			}
			if err := ds.DeleteBacktestRun(cmd.Context(), id); err != nil {
				return err
			}
			output.Success("✓ Deleted run %s", id)
			return nil
		},
	}
}

// runRecord converts a result into its archive row.
func runRecord(result *trading.BacktestResult, label string) (*store.BacktestRun, error) {
	payload, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("encoding result: %w", err)
	}
	return &store.BacktestRun{
		ID:            result.RunID,
		Label:         label,
		Symbol:        result.Symbol,
		StrategyType:  result.StrategyType.String(),
		StartDate:     result.StartDate,
		EndDate:       result.EndDate,
		AutoRoll:      result.AutoRoll,
		TotalPnL:      result.Summary.TotalPnL,
		NumRolls:      result.Summary.NumRolls,
		TotalRollCost: result.Summary.TotalRollCost,
		SharpeRatio:   result.Summary.SharpeRatio,
		MaxDrawdown:   result.Summary.MaxDrawdown,
		CreatedAt:     time.Now(),
		Result:        payload,
	}, nil
}

func archiveResult(ctx context.Context, app *App, result *trading.BacktestResult, label string) error {
	ds, err := app.DataStore()
	if err != nil {
		return err
	}
	run, err := runRecord(result, label)
	if err != nil {
		return err
	}
	return ds.SaveBacktestRun(ctx, run)
}

// resolveRunID expands a unique ID prefix, as printed by list, to the full ID.
func resolveRunID(ctx context.Context, ds store.DataStore, prefix string) (string, error) {
	if _, err := ds.GetBacktestRun(ctx, prefix); err == nil {
		return prefix, nil
	}
	runs, err := ds.ListBacktestRuns(ctx, store.RunFilter{})
	if err != nil {
		return "", err
	}
	var matches []string
	for _, r := range runs {
		if strings.HasPrefix(r.ID, prefix) {
			matches = append(matches, r.ID)
		}
	}
	switch len(matches) {
	case 1:
		return matches[0], nil
	case 0:
		return "", fmt.Errorf("no archived run matches %q", prefix)
	}
	return "", fmt.Errorf("run id %q is ambiguous (%d matches)", prefix, len(matches))
}

func loadResult(ctx context.Context, app *App, id string) (*trading.BacktestResult, error) {
	ds, err := app.DataStore()
	if err != nil {
		return nil, err
	}
	if id, err = resolveRunID(ctx, ds, id); err != nil {
		return nil, err
	}
	run, err := ds.GetBacktestRun(ctx, id)
	if err != nil {
		return nil, err
	}

	var result trading.BacktestResult
	if err := json.Unmarshal(run.Result, &result); err != nil {
		return nil, fmt.Errorf("decoding archived run %s: %w", id, err)
	}
	return &result, nil
}

func printResult(output *Output, app *App, result *trading.BacktestResult, chart bool) {
	sum := result.Summary
	roll := "off"
	if result.AutoRoll {
		roll = "on"
	}

	output.Box(fmt.Sprintf("%s %s backtest", result.StrategyType, result.Symbol), []string{
		fmt.Sprintf("Period:        %s to %s (%d days)", FormatDate(result.StartDate), FormatDate(result.EndDate), sum.TradingDays),
		fmt.Sprintf("Auto roll:     %s", roll),
		fmt.Sprintf("Total P&L:     %s", output.FormatPnL(sum.TotalPnL)),
		fmt.Sprintf("Realized P&L:  %s", output.FormatPnL(sum.RealizedPnL)),
		fmt.Sprintf("Rolls:         %d (cost %s, fees %s)", sum.NumRolls, FormatPnL(sum.TotalRollCost), FormatIndianCurrency(sum.TotalFees)),
		fmt.Sprintf("Settled legs:  %d", sum.SettledLegs),
		fmt.Sprintf("Sharpe ratio:  %s", FormatSharpe(sum.SharpeRatio)),
		fmt.Sprintf("Max drawdown:  %s", FormatIndianCurrency(sum.MaxDrawdown)),
	})

	if len(result.RollHistory) > 0 {
		output.Println()
		output.Bold("Rolls")
		table := NewTable(output, "Date", "Leg", "Strike", "Old Expiry", "New Expiry", "Exit", "Entry", "Exit P&L", "Roll Cost")
		for _, r := range result.RollHistory {
			table.AddRow(
				FormatDate(r.Date),
				fmt.Sprintf("%d", r.LegIndex),
				FormatStrike(r.NewLeg.Strike),
				FormatDate(r.OldExpiry),
				FormatDate(r.NewExpiry),
				FormatPrice(r.ExitPrice),
				FormatPrice(r.EntryPrice),
				output.FormatPnL(r.ExitPnL),
				output.FormatPnL(r.RollCost),
			)
		}
		table.Render()
	}

	if len(result.Settlements) > 0 {
		output.Println()
		output.Bold("Settlements")
		table := NewTable(output, "Date", "Leg", "Contract", "Settlement", "P&L")
		for _, st := range result.Settlements {
			table.AddRow(FormatDate(st.Date), fmt.Sprintf("%d", st.LegIndex), st.Leg.String(),
				FormatPrice(st.SettlementPrice), output.FormatPnL(st.PnL))
		}
		table.Render()
	}

	warned := 0
	for _, snap := range result.Snapshots {
		warned += len(snap.Warnings)
	}
	if warned > 0 {
		output.Println()
		output.Warning("%d leg valuation(s) fell back to intrinsic or forward value", warned)
	}

	if chart {
		output.Println()
		output.Println(trading.GeneratePnLCurveASCII(result, app.Config.UI.ChartWidth, app.Config.UI.ChartHeight))
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func parseInts(csv string) ([]int, error) {
	var out []int
	for _, part := range strings.Split(csv, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		n, err := strconv.Atoi(part)
		if err != nil {
			return nil, fmt.Errorf("invalid integer %q", part)
		}
		out = append(out, n)
	}
	return out, nil
}

// csvFeed serves closes read from a CSV file.
type csvFeed struct {
	points []models.PricePoint
}

func newCSVFeed(path string) (*csvFeed, error) {
	points, err := readPricesFile(path)
	if err != nil {
		return nil, err
	}
	return &csvFeed{points: points}, nil
}

func (f *csvFeed) GetPrices(_ context.Context, _ string, from, to time.Time) ([]models.PricePoint, error) {
	var out []models.PricePoint
	for _, p := range f.points {
		if !p.Date.Before(utils.DateOnly(from)) && !p.Date.After(utils.DateOnly(to)) {
			out = append(out, p)
		}
	}
	return out, nil
}

package cli

import (
	"strings"

	"github.com/spf13/cobra"

	"options-backtester/internal/trading"
)

func newExpiryCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "expiry",
		Short: "Expiry calendar lookups",
	}

	cmd.AddCommand(newExpiryNextCmd(app))
	return cmd
}

func newExpiryNextCmd(app *App) *cobra.Command {
	var symbol, from, interval string
	var count int

	cmd := &cobra.Command{
		Use:   "next",
		Short: "List the next expiries of an underlying",
		Long: `List upcoming expiries from the configured weekday calendar.
Expiries that fall on a configured holiday move to the previous trading day.`,
		Example: `  backtester expiry next
  backtester expiry next --interval monthly --count 6
  backtester expiry next --symbol BANKNIFTY --from 2026-03-01`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)

			typ, err := trading.ParseExpiryType(interval)
			if err != nil {
				return err
			}
			start, err := parseDateFlag(from, today())
			if err != nil {
				return err
			}
			cal, err := app.Calendar()
			if err != nil {
				return err
			}

			sym := app.Config.Backtest.Symbol
			if symbol != "" {
				sym = strings.ToUpper(symbol)
			}
			expiries, err := trading.UpcomingExpiries(cal, sym, start, typ, count)
			if err != nil {
				return err
			}

			if output.IsJSON() {
				return output.JSON(expiries)
			}

			output.Bold("%s %s expiries after %s", sym, typ, FormatDate(start))
			table := NewTable(output, "Expiry", "Day", "DTE", "")
			for _, e := range expiries {
				note := ""
				if e.Shifted {
					note = output.Yellow("holiday shift")
				}
				table.AddRow(FormatDate(e.Date), e.Date.Weekday().String()[:3], FormatDTE(e.Date, start), note)
			}
			table.Render()
			return nil
		},
	}

	cmd.Flags().StringVarP(&symbol, "symbol", "s", "", "underlying symbol (default from config)")
	cmd.Flags().StringVar(&from, "from", "", "reference date YYYY-MM-DD (default: today)")
	cmd.Flags().StringVarP(&interval, "interval", "i", "weekly", "weekly or monthly")
	cmd.Flags().IntVarP(&count, "count", "n", 4, "number of expiries")
	return cmd
}


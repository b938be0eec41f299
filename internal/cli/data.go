package cli

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"options-backtester/internal/models"
	"options-backtester/internal/store"
	"options-backtester/pkg/utils"
)

func newDataCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "data",
		Short: "Manage historical underlying closes",
		Long: `Import, inspect and export the daily closes that backtests replay.

Price files are CSV with a header row of date,close and dates as YYYY-MM-DD.`,
	}

	cmd.AddCommand(newDataImportCmd(app))
	cmd.AddCommand(newDataPricesCmd(app))
	cmd.AddCommand(newDataExportCmd(app))
	cmd.AddCommand(newDataSymbolsCmd(app))

	return cmd
}

func newDataImportCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:     "import <symbol> <file>",
		Short:   "Import daily closes from a CSV file",
		Example: `  backtester data import NIFTY nifty_2025.csv`,
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			symbol := strings.ToUpper(args[0])

			ds, err := app.DataStore()
			if err != nil {
				return err
			}

			n, err := store.ImportCSV(cmd.Context(), ds, symbol, args[1])
			if err != nil {
				output.Error("Import failed: %v", err)
				return err
			}
			app.Logger.Info().Str("symbol", symbol).Int("rows", n).Str("file", args[1]).Msg("Imported prices")

			if output.IsJSON() {
				return output.JSON(map[string]interface{}{"symbol": symbol, "rows": n})
			}
			output.Success("✓ Imported %d closes for %s", n, symbol)
			return nil
		},
	}
}

func newDataPricesCmd(app *App) *cobra.Command {
	var from, to string
	var limit int

	cmd := &cobra.Command{
		Use:   "prices <symbol>",
		Short: "Show stored closes and data freshness for a symbol",
		Example: `  backtester data prices NIFTY
  backtester data prices NIFTY --from 2026-01-01 --to 2026-01-31`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx := cmd.Context()
			symbol := strings.ToUpper(args[0])

			ds, err := app.DataStore()
			if err != nil {
				return err
			}

			coverage, err := ds.GetPriceCoverage(ctx, symbol)
			if err != nil {
				return err
			}
			freshness, err := store.GetDataFreshness(ctx, ds, symbol, store.DefaultStaleAfter, time.Now())
			if err != nil {
				return err
			}

			start, err := parseDateFlag(from, coverage.First)
			if err != nil {
				return err
			}
			end, err := parseDateFlag(to, coverage.Last)
			if err != nil {
				return err
			}
			points, err := ds.GetPrices(ctx, symbol, start, end)
			if err != nil {
				return err
			}
			if limit > 0 && len(points) > limit {
				points = points[len(points)-limit:]
			}

			if output.IsJSON() {
				return output.JSON(map[string]interface{}{
					"coverage":  coverage,
					"freshness": freshness,
					"prices":    points,
				})
			}

			output.Bold("%s", symbol)
			output.Printf("  %d closes from %s to %s\n", coverage.Count, FormatDate(coverage.First), FormatDate(coverage.Last))
			if freshness.IsFresh {
				output.Dim("  %s", store.FormatFreshness(freshness))
			} else {
				output.Warning("  %s", store.FormatFreshness(freshness))
			}
			output.Println()
			displayPrices(output, points)
			return nil
		},
	}

	cmd.Flags().StringVar(&from, "from", "", "first date YYYY-MM-DD (default: first stored)")
	cmd.Flags().StringVar(&to, "to", "", "last date YYYY-MM-DD (default: last stored)")
	cmd.Flags().IntVarP(&limit, "limit", "l", 20, "show only the last N closes (0 for all)")
	return cmd
}

func displayPrices(output *Output, points []models.PricePoint) {
	table := NewTable(output, "Date", "Close", "Change")
	for i, p := range points {
		change := "-"
		if i > 0 {
			pct := (p.Close - points[i-1].Close) / points[i-1].Close * 100
			change = FormatPercent(pct)
			if pct < 0 {
				change = output.Red(change)
			} else {
				change = output.Green(change)
			}
		}
		table.AddRow(FormatDate(p.Date), FormatPrice(p.Close), change)
	}
	table.Render()
}

func newDataExportCmd(app *App) *cobra.Command {
	var from, to string

	cmd := &cobra.Command{
		Use:   "export <symbol> <file>",
		Short: "Write stored closes to a CSV file",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			symbol := strings.ToUpper(args[0])

			ds, err := app.DataStore()
			if err != nil {
				return err
			}
			start, err := parseDateFlag(from, utils.Date(1970, 1, 1))
			if err != nil {
				return err
			}
			end, err := parseDateFlag(to, today())
			if err != nil {
				return err
			}

			points, err := ds.GetPrices(cmd.Context(), symbol, start, end)
			if err != nil {
				return err
			}

			f, err := os.Create(args[1])
			if err != nil {
				return fmt.Errorf("creating %s: %w", args[1], err)
			}
			defer f.Close()
			if err := store.WritePricesCSV(f, points); err != nil {
				return err
			}

			if output.IsJSON() {
				return output.JSON(map[string]interface{}{"symbol": symbol, "rows": len(points), "file": args[1]})
			}
			output.Success("✓ Wrote %d closes to %s", len(points), args[1])
			return nil
		},
	}

	cmd.Flags().StringVar(&from, "from", "", "first date YYYY-MM-DD")
	cmd.Flags().StringVar(&to, "to", "", "last date YYYY-MM-DD (default: today)")
	return cmd
}

func newDataSymbolsCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "symbols",
		Short: "List symbols with stored closes",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx := cmd.Context()
			ds, err := app.DataStore()
			if err != nil {
				return err
			}

			symbols, err := ds.ListSymbols(ctx)
			if err != nil {
				return err
			}

			var coverage []*store.PriceCoverage
			for _, s := range symbols {
				c, err := ds.GetPriceCoverage(ctx, s)
				if err != nil {
					return err
				}
				coverage = append(coverage, c)
			}

			if output.IsJSON() {
				return output.JSON(coverage)
			}
			if len(coverage) == 0 {
				output.Dim("No prices stored. Run 'backtester data import <symbol> <file>'.")
				return nil
			}

			table := NewTable(output, "Symbol", "First", "Last", "Closes")
			for _, c := range coverage {
				table.AddRow(c.Symbol, FormatDate(c.First), FormatDate(c.Last), fmt.Sprintf("%d", c.Count))
			}
			table.Render()
			return nil
		},
	}
}

// readPricesFile reads a date,close CSV from disk.
func readPricesFile(path string) ([]models.PricePoint, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()
	return store.ReadPricesCSV(f)
}

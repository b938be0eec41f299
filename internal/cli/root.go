package cli

import (
	"github.com/fatih/color"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"options-backtester/internal/config"
	"options-backtester/internal/logging"
	"options-backtester/internal/store"
	"options-backtester/internal/trading"
)

// Version information
const (
	Version   = "0.1.0"
	BuildDate = "2026-01-01"
)

// App holds the application dependencies.
type App struct {
	Config    *config.Config
	ConfigDir string
	Logger    zerolog.Logger
	Store     store.DataStore
}

// NewRootCmd creates the root command for the CLI. Configuration is loaded
// before each command runs so --config can point at another directory.
func NewRootCmd(logger zerolog.Logger) *cobra.Command {
	app := &App{
		Config: config.Default(),
		Logger: logger,
	}

	rootCmd := &cobra.Command{
		Use:   "backtester",
		Short: "Multi-expiry options strategy backtester",
		Long: `Build calendar, diagonal and double-calendar option strategies, price them
with Black-Scholes, and backtest them day by day over historical closes with
automatic rolling of near-expiry legs.

Import daily closes with 'backtester data import', then run
'backtester backtest run --help' to see the strategy flags.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return app.init(cmd)
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return app.Close()
		},
	}

	rootCmd.PersistentFlags().String("config", "", "config directory (default: ~/.config/options-backtester)")
	rootCmd.PersistentFlags().Bool("json", false, "output in JSON format")
	rootCmd.PersistentFlags().Bool("debug", false, "enable debug logging")

	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newConfigCmd(app))
	rootCmd.AddCommand(newOptionsCmd(app))
	rootCmd.AddCommand(newBacktestCmd(app))
	rootCmd.AddCommand(newDataCmd(app))
	rootCmd.AddCommand(newExpiryCmd(app))

	return rootCmd
}

func (app *App) init(cmd *cobra.Command) error {
	configDir, _ := cmd.Flags().GetString("config")
	if configDir == "" {
		configDir = config.DefaultConfigDir()
	}
	app.ConfigDir = configDir

	cfg, err := config.Load(configDir)
	if err != nil {
		return err
	}
	app.Config = cfg

	if !cfg.UI.ColorEnabled {
		color.NoColor = true
	}

	app.Logger = logging.NewLoggerWithConfig(cfg.LogConfig())
	if debug, _ := cmd.Flags().GetBool("debug"); debug {
		logging.SetDebugLevel()
		app.Logger = app.Logger.Level(zerolog.DebugLevel)
	}
	app.Logger = logging.WithOperation(app.Logger, cmd.CommandPath())
	return nil
}

// DataStore opens the SQLite store on first use.
func (app *App) DataStore() (store.DataStore, error) {
	if app.Store != nil {
		return app.Store, nil
	}
	ds, err := store.NewSQLiteStore(app.Config.Store.DBPath)
	if err != nil {
		return nil, err
	}
	app.Logger.Debug().Str("path", app.Config.Store.DBPath).Msg("SQLite store initialized")
	app.Store = ds
	return ds, nil
}

// Close releases the store if it was opened.
func (app *App) Close() error {
	if app.Store == nil {
		return nil
	}
	err := app.Store.Close()
	app.Store = nil
	return err
}

// Calendar returns the weekday expiry calendar from the config.
func (app *App) Calendar() (*trading.WeekdayCalendar, error) {
	holidays, err := app.Config.HolidayDates()
	if err != nil {
		return nil, err
	}
	return trading.NewWeekdayCalendar(app.Config.ExpiryWeekday(), holidays), nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			output := NewOutput(cmd)
			if output.IsJSON() {
				output.JSON(map[string]string{
					"version":    Version,
					"build_date": BuildDate,
				})
			} else {
				output.Printf("Options Backtester v%s\n", Version)
				output.Dim("Build date: %s", BuildDate)
			}
		},
	}
}

func newConfigCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management",
		Long:  "View and validate application configuration.",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if output.IsJSON() {
				return output.JSON(app.Config)
			}
			showConfig(output, app.Config)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Show configuration file path",
		Run: func(cmd *cobra.Command, args []string) {
			output := NewOutput(cmd)
			path := config.ConfigPath(app.ConfigDir)
			if output.IsJSON() {
				output.JSON(map[string]string{"path": path, "db_path": app.Config.Store.DBPath})
			} else {
				output.Println(path)
			}
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Validate configuration files",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if err := app.Config.Validate(); err != nil {
				output.Error("Configuration validation failed: %v", err)
				return err
			}
			if output.IsJSON() {
				return output.JSON(map[string]bool{"valid": true})
			}
			output.Success("✓ Configuration is valid")
			return nil
		},
	})

	return cmd
}

func showConfig(output *Output, cfg *config.Config) {
	b := cfg.Backtest
	output.Bold("Backtest Defaults")
	output.Printf("  Symbol:           %s\n", b.Symbol)
	output.Printf("  Volatility:       %s\n", FormatIV(b.Volatility))
	output.Printf("  Risk-free Rate:   %s\n", FormatIV(b.RiskFreeRate))
	output.Printf("  Multiplier:       %g\n", b.ContractMultiplier)
	output.Printf("  Quantity:         %d\n", b.Quantity)
	output.Printf("  Strike Step:      %g\n", b.StrikeStep)
	output.Println()

	output.Bold("Rolling")
	output.Printf("  Auto Roll:        %v\n", b.AutoRoll)
	output.Printf("  Roll Days Before: %d\n", b.RollDaysBefore)
	output.Printf("  Roll Interval:    %s\n", b.RollInterval)
	output.Printf("  Roll Fee:         %s\n", FormatIndianCurrency(b.RollFee))
	output.Printf("  Skip Weekends:    %v\n", b.SkipWeekends)
	output.Println()

	output.Bold("Expiry Calendar")
	output.Printf("  Weekday:          %s\n", cfg.ExpiryWeekday())
	output.Printf("  Holidays:         %d configured\n", len(cfg.Expiry.Holidays))
	output.Println()

	output.Bold("Storage & Logging")
	output.Printf("  Database:         %s\n", cfg.Store.DBPath)
	output.Printf("  Log Level:        %s\n", cfg.Logging.Level)
	output.Printf("  Log File:         %v\n", cfg.Logging.File)
}

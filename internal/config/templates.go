package config

import (
	"fmt"
	"os"
	"path/filepath"
)

const configTemplate = `# Options Backtester Configuration

[backtest]
# Default underlying symbol
symbol = "NIFTY"
# Annualized risk-free rate (0.05 = 5%)
risk_free_rate = 0.05
# Annualized implied volatility used for pricing (0.20 = 20%)
volatility = 0.20
# Contract multiplier applied to P&L and roll cost
contract_multiplier = 1.0
# Default contracts per leg
quantity = 50
# Strike grid used to round ATM strikes
strike_step = 50.0
# Roll near legs automatically
auto_roll = false
# Roll when 0 < days to expiry <= roll_days_before
roll_days_before = 3
# Roll target: WEEKLY or MONTHLY
roll_interval = "WEEKLY"
# Flat fee charged per roll
roll_fee = 0.0
# Skip Saturdays and Sundays in the daily loop
skip_weekends = false
# Parallel backtests in a sweep
workers = 4

[expiry]
# Weekday contracts expire on
weekday = "thursday"
# Exchange holidays (YYYY-MM-DD); an expiry on a holiday moves to the previous trading day
holidays = []

[logging]
# debug, info, warn, error
level = "info"
# Also write rotating log files
file = false
file_path = ""
# Rotation: megabytes per file, files kept, days kept
max_size = 50
max_backups = 5
max_age = 30

[store]
# SQLite database for prices and archived runs (default: <config dir>/backtester.db)
db_path = ""

[ui]
# Enable colored output
color_enabled = true
# P&L chart size in characters
chart_width = 60
chart_height = 12
`

const envTemplate = `# Options Backtester environment overrides
# BACKTEST_SYMBOL=NIFTY
# BACKTEST_VOLATILITY=0.18
# BACKTEST_RISK_FREE_RATE=0.065
# BACKTEST_ROLL_DAYS_BEFORE=2
# BACKTEST_ROLL_INTERVAL=WEEKLY
# BACKTEST_ROLL_FEE=40
# BACKTEST_DB_PATH=/path/to/backtester.db
# BACKTEST_LOG_LEVEL=debug
`

// ConfigPath returns the config.toml path inside configDir.
func ConfigPath(configDir string) string {
	if configDir == "" {
		configDir = DefaultConfigDir()
	}
	return filepath.Join(configDir, "config.toml")
}

func createTemplateConfig(configDir, name string) error {
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	path := filepath.Join(configDir, name+".toml")
	if err := os.WriteFile(path, []byte(configTemplate), 0644); err != nil {
		return fmt.Errorf("writing config template: %w", err)
	}

	envPath := filepath.Join(configDir, ".env.example")
	if _, err := os.Stat(envPath); os.IsNotExist(err) {
		if err := os.WriteFile(envPath, []byte(envTemplate), 0600); err != nil {
			return fmt.Errorf("writing env template: %w", err)
		}
	}

	return nil
}

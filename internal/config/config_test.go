package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	apperrors "options-backtester/internal/errors"
	"options-backtester/pkg/utils"
)

func TestLoad_CreatesTemplate(t *testing.T) {
	dir := t.TempDir()

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if _, err := os.Stat(ConfigPath(dir)); err != nil {
		t.Fatalf("Expected template at %s: %v", ConfigPath(dir), err)
	}

	if cfg.Backtest.Symbol != "NIFTY" || cfg.Backtest.Volatility != 0.20 || cfg.Backtest.RollDaysBefore != 3 {
		t.Errorf("Unexpected defaults %+v", cfg.Backtest)
	}
	if cfg.Store.DBPath != filepath.Join(dir, "backtester.db") {
		t.Errorf("Expected db under config dir, got %s", cfg.Store.DBPath)
	}

	// The written template must load back to the same values
	again, err := Load(dir)
	if err != nil {
		t.Fatalf("Load of template failed: %v", err)
	}
	if again.Backtest != cfg.Backtest || again.ExpiryWeekday() != time.Thursday {
		t.Errorf("Template does not match defaults: %+v vs %+v", again.Backtest, cfg.Backtest)
	}
}

func TestLoad_FileValues(t *testing.T) {
	dir := t.TempDir()
	content := `
[backtest]
symbol = "BANKNIFTY"
volatility = 0.15
roll_days_before = 2
roll_interval = "MONTHLY"
quantity = 15

[expiry]
weekday = "wed"
holidays = ["2026-01-26", "2026-03-03"]
`
	if err := os.WriteFile(ConfigPath(dir), []byte(content), 0644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Backtest.Symbol != "BANKNIFTY" || cfg.Backtest.Volatility != 0.15 || cfg.Backtest.Quantity != 15 {
		t.Errorf("Unexpected backtest section %+v", cfg.Backtest)
	}
	// Unset keys keep their defaults
	if cfg.Backtest.RiskFreeRate != 0.05 {
		t.Errorf("Expected default risk free rate, got %v", cfg.Backtest.RiskFreeRate)
	}
	if cfg.ExpiryWeekday() != time.Wednesday {
		t.Errorf("Expected Wednesday, got %s", cfg.ExpiryWeekday())
	}

	holidays, err := cfg.HolidayDates()
	if err != nil {
		t.Fatalf("HolidayDates failed: %v", err)
	}
	if len(holidays) != 2 || !holidays[0].Equal(utils.Date(2026, 1, 26)) {
		t.Errorf("Unexpected holidays %v", holidays)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("BACKTEST_SYMBOL", "finnifty")
	t.Setenv("BACKTEST_VOLATILITY", "0.31")
	t.Setenv("BACKTEST_ROLL_DAYS_BEFORE", "5")
	t.Setenv("BACKTEST_DB_PATH", filepath.Join(dir, "custom.db"))

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Backtest.Symbol != "FINNIFTY" || cfg.Backtest.Volatility != 0.31 || cfg.Backtest.RollDaysBefore != 5 {
		t.Errorf("Env overrides not applied: %+v", cfg.Backtest)
	}
	if cfg.Store.DBPath != filepath.Join(dir, "custom.db") {
		t.Errorf("Expected db path override, got %s", cfg.Store.DBPath)
	}

	t.Setenv("BACKTEST_VOLATILITY", "high")
	if _, err := Load(dir); !apperrors.Is(err, apperrors.ErrConfigInvalid) {
		t.Errorf("Expected ErrConfigInvalid for bad env value, got %v", err)
	}
}

func TestLoad_DotEnv(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("BACKTEST_ROLL_FEE=40\n"), 0600); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	t.Cleanup(func() { os.Unsetenv("BACKTEST_ROLL_FEE") })

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Backtest.RollFee != 40 {
		t.Errorf("Expected roll fee from .env, got %v", cfg.Backtest.RollFee)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{"zero volatility", func(c *Config) { c.Backtest.Volatility = 0 }},
		{"rate above one", func(c *Config) { c.Backtest.RiskFreeRate = 5 }},
		{"zero multiplier", func(c *Config) { c.Backtest.ContractMultiplier = 0 }},
		{"zero quantity", func(c *Config) { c.Backtest.Quantity = 0 }},
		{"negative roll days", func(c *Config) { c.Backtest.RollDaysBefore = -1 }},
		{"negative fee", func(c *Config) { c.Backtest.RollFee = -1 }},
		{"bad interval", func(c *Config) { c.Backtest.RollInterval = "DAILY" }},
		{"bad weekday", func(c *Config) { c.Expiry.Weekday = "someday" }},
		{"bad holiday", func(c *Config) { c.Expiry.Holidays = []string{"26/01/2026"} }},
	}

	if err := Default().Validate(); err != nil {
		t.Fatalf("Default config should validate, got %v", err)
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(cfg)
			if err := cfg.Validate(); !apperrors.Is(err, apperrors.ErrConfigInvalid) {
				t.Errorf("Expected ErrConfigInvalid, got %v", err)
			}
		})
	}
}

func TestLogConfig(t *testing.T) {
	cfg := Default()
	cfg.Logging.Level = "debug"
	cfg.Logging.File = true
	cfg.UI.ColorEnabled = false

	lc := cfg.LogConfig()
	if lc.Level != "debug" || !lc.File || !lc.NoColor || lc.FilePath == "" {
		t.Errorf("Unexpected log config %+v", lc)
	}
}

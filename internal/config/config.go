// Package config provides configuration management for the backtester.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	apperrors "options-backtester/internal/errors"
	"options-backtester/internal/logging"
	"options-backtester/pkg/utils"
)

// Config holds all application configuration.
type Config struct {
	Backtest BacktestConfig `mapstructure:"backtest" json:"backtest"`
	Expiry   ExpiryConfig   `mapstructure:"expiry" json:"expiry"`
	Logging  LoggingConfig  `mapstructure:"logging" json:"logging"`
	Store    StoreConfig    `mapstructure:"store" json:"store"`
	UI       UIConfig       `mapstructure:"ui" json:"ui"`
}

// BacktestConfig holds the default market and roll parameters for runs.
type BacktestConfig struct {
	Symbol             string  `mapstructure:"symbol" json:"symbol"`
	RiskFreeRate       float64 `mapstructure:"risk_free_rate" json:"risk_free_rate"`
	Volatility         float64 `mapstructure:"volatility" json:"volatility"`
	ContractMultiplier float64 `mapstructure:"contract_multiplier" json:"contract_multiplier"`
	Quantity           int     `mapstructure:"quantity" json:"quantity"`
	StrikeStep         float64 `mapstructure:"strike_step" json:"strike_step"`
	AutoRoll           bool    `mapstructure:"auto_roll" json:"auto_roll"`
	RollDaysBefore     int     `mapstructure:"roll_days_before" json:"roll_days_before"`
	RollInterval       string  `mapstructure:"roll_interval" json:"roll_interval"` // WEEKLY, MONTHLY
	RollFee            float64 `mapstructure:"roll_fee" json:"roll_fee"`
	SkipWeekends       bool    `mapstructure:"skip_weekends" json:"skip_weekends"`
	Workers            int     `mapstructure:"workers" json:"workers"`
}

// ExpiryConfig holds the exchange expiry calendar.
type ExpiryConfig struct {
	Weekday  string   `mapstructure:"weekday" json:"weekday"`
	Holidays []string `mapstructure:"holidays" json:"holidays"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `mapstructure:"level" json:"level"`
	File       bool   `mapstructure:"file" json:"file"`
	FilePath   string `mapstructure:"file_path" json:"file_path"`
	MaxSize    int    `mapstructure:"max_size" json:"max_size"`
	MaxBackups int    `mapstructure:"max_backups" json:"max_backups"`
	MaxAge     int    `mapstructure:"max_age" json:"max_age"`
}

// StoreConfig holds storage configuration.
type StoreConfig struct {
	DBPath string `mapstructure:"db_path" json:"db_path"`
}

// UIConfig holds UI-related configuration.
type UIConfig struct {
	ColorEnabled bool `mapstructure:"color_enabled" json:"color_enabled"`
	ChartWidth   int  `mapstructure:"chart_width" json:"chart_width"`
	ChartHeight  int  `mapstructure:"chart_height" json:"chart_height"`
}

// DefaultConfigDir returns the default configuration directory.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".config/options-backtester"
	}
	return filepath.Join(home, ".config", "options-backtester")
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("backtest.symbol", "NIFTY")
	v.SetDefault("backtest.risk_free_rate", 0.05)
	v.SetDefault("backtest.volatility", 0.20)
	v.SetDefault("backtest.contract_multiplier", 1.0)
	v.SetDefault("backtest.quantity", 50)
	v.SetDefault("backtest.strike_step", 50.0)
	v.SetDefault("backtest.auto_roll", false)
	v.SetDefault("backtest.roll_days_before", 3)
	v.SetDefault("backtest.roll_interval", "WEEKLY")
	v.SetDefault("backtest.roll_fee", 0.0)
	v.SetDefault("backtest.skip_weekends", false)
	v.SetDefault("backtest.workers", 4)

	v.SetDefault("expiry.weekday", "thursday")
	v.SetDefault("expiry.holidays", []string{})

	logDefaults := logging.DefaultLogConfig()
	v.SetDefault("logging.level", logDefaults.Level)
	v.SetDefault("logging.file", logDefaults.File)
	v.SetDefault("logging.file_path", logDefaults.FilePath)
	v.SetDefault("logging.max_size", logDefaults.MaxSize)
	v.SetDefault("logging.max_backups", logDefaults.MaxBackups)
	v.SetDefault("logging.max_age", logDefaults.MaxAge)

	v.SetDefault("store.db_path", "")

	v.SetDefault("ui.color_enabled", true)
	v.SetDefault("ui.chart_width", 60)
	v.SetDefault("ui.chart_height", 12)
}

// Default returns the built-in configuration without reading any file.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		panic(fmt.Sprintf("config defaults do not decode: %v", err))
	}
	cfg.Store.DBPath = filepath.Join(DefaultConfigDir(), "backtester.db")
	return cfg
}

// Load loads configuration from the specified directory.
// If configDir is empty, uses the default config directory. A missing
// config.toml is created from the template and the defaults are used.
func Load(configDir string) (*Config, error) {
	if configDir == "" {
		configDir = DefaultConfigDir()
	}

	// .env values never override variables already set in the environment
	_ = godotenv.Load(filepath.Join(configDir, ".env"))
	_ = godotenv.Load()

	cfg := &Config{}
	if err := loadConfigFile(configDir, "config", cfg); err != nil {
		return nil, fmt.Errorf("loading config.toml: %w", err)
	}

	if cfg.Store.DBPath == "" {
		cfg.Store.DBPath = filepath.Join(configDir, "backtester.db")
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

func loadConfigFile(configDir, name string, target interface{}) error {
	v := viper.New()
	v.SetConfigName(name)
	v.SetConfigType("toml")
	v.AddConfigPath(configDir)
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return err
		}
		if err := createTemplateConfig(configDir, name); err != nil {
			return err
		}
	}

	return v.Unmarshal(target)
}

func applyEnvOverrides(cfg *Config) error {
	if v := os.Getenv("BACKTEST_SYMBOL"); v != "" {
		cfg.Backtest.Symbol = strings.ToUpper(v)
	}
	if v := os.Getenv("BACKTEST_ROLL_INTERVAL"); v != "" {
		cfg.Backtest.RollInterval = strings.ToUpper(v)
	}
	if v := os.Getenv("BACKTEST_DB_PATH"); v != "" {
		cfg.Store.DBPath = v
	}
	if v := os.Getenv("BACKTEST_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}

	floats := []struct {
		env    string
		target *float64
	}{
		{"BACKTEST_VOLATILITY", &cfg.Backtest.Volatility},
		{"BACKTEST_RISK_FREE_RATE", &cfg.Backtest.RiskFreeRate},
		{"BACKTEST_ROLL_FEE", &cfg.Backtest.RollFee},
	}
	for _, f := range floats {
		v := os.Getenv(f.env)
		if v == "" {
			continue
		}
		parsed, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return apperrors.NewValidationError(apperrors.ErrConfigInvalid, f.env, v, "must be a number")
		}
		*f.target = parsed
	}

	if v := os.Getenv("BACKTEST_ROLL_DAYS_BEFORE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return apperrors.NewValidationError(apperrors.ErrConfigInvalid, "BACKTEST_ROLL_DAYS_BEFORE", v, "must be an integer")
		}
		cfg.Backtest.RollDaysBefore = n
	}

	return nil
}

func invalid(field string, value interface{}, message string) error {
	return apperrors.NewValidationError(apperrors.ErrConfigInvalid, field, value, message)
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	b := c.Backtest
	if b.Volatility <= 0 {
		return invalid("backtest.volatility", b.Volatility, "must be positive")
	}
	if b.RiskFreeRate < 0 || b.RiskFreeRate > 1 {
		return invalid("backtest.risk_free_rate", b.RiskFreeRate, "must be between 0 and 1")
	}
	if b.ContractMultiplier <= 0 {
		return invalid("backtest.contract_multiplier", b.ContractMultiplier, "must be positive")
	}
	if b.Quantity <= 0 {
		return invalid("backtest.quantity", b.Quantity, "must be positive")
	}
	if b.StrikeStep < 0 {
		return invalid("backtest.strike_step", b.StrikeStep, "must be non-negative")
	}
	if b.RollDaysBefore < 0 {
		return invalid("backtest.roll_days_before", b.RollDaysBefore, "must be non-negative")
	}
	if b.RollFee < 0 {
		return invalid("backtest.roll_fee", b.RollFee, "must be non-negative")
	}
	switch strings.ToUpper(b.RollInterval) {
	case "WEEKLY", "MONTHLY":
	default:
		return invalid("backtest.roll_interval", b.RollInterval, "must be WEEKLY or MONTHLY")
	}
	if b.Workers < 0 {
		return invalid("backtest.workers", b.Workers, "must be non-negative")
	}

	if _, err := ParseWeekday(c.Expiry.Weekday); err != nil {
		return err
	}
	if _, err := c.HolidayDates(); err != nil {
		return err
	}

	if c.UI.ChartWidth < 0 || c.UI.ChartHeight < 0 {
		return invalid("ui.chart_width", c.UI.ChartWidth, "chart size must be non-negative")
	}

	return nil
}

var weekdays = map[string]time.Weekday{
	"sunday": time.Sunday, "sun": time.Sunday,
	"monday": time.Monday, "mon": time.Monday,
	"tuesday": time.Tuesday, "tue": time.Tuesday,
	"wednesday": time.Wednesday, "wed": time.Wednesday,
	"thursday": time.Thursday, "thu": time.Thursday,
	"friday": time.Friday, "fri": time.Friday,
	"saturday": time.Saturday, "sat": time.Saturday,
}

// ParseWeekday parses a full or three-letter weekday name.
func ParseWeekday(s string) (time.Weekday, error) {
	d, ok := weekdays[strings.ToLower(strings.TrimSpace(s))]
	if !ok {
		return time.Thursday, invalid("expiry.weekday", s, "must be a weekday name")
	}
	return d, nil
}

// ExpiryWeekday returns the configured expiry weekday, Thursday if unparseable.
func (c *Config) ExpiryWeekday() time.Weekday {
	d, _ := ParseWeekday(c.Expiry.Weekday)
	return d
}

// HolidayDates parses the configured exchange holidays.
func (c *Config) HolidayDates() ([]time.Time, error) {
	dates := make([]time.Time, 0, len(c.Expiry.Holidays))
	for _, h := range c.Expiry.Holidays {
		d, err := utils.ParseDate(h)
		if err != nil {
			return nil, invalid("expiry.holidays", h, err.Error())
		}
		dates = append(dates, d)
	}
	return dates, nil
}

// LogConfig converts the logging section for the logging package.
func (c *Config) LogConfig() logging.LogConfig {
	lc := logging.DefaultLogConfig()
	lc.Level = c.Logging.Level
	lc.File = c.Logging.File
	if c.Logging.FilePath != "" {
		lc.FilePath = c.Logging.FilePath
	}
	if c.Logging.MaxSize > 0 {
		lc.MaxSize = c.Logging.MaxSize
	}
	if c.Logging.MaxBackups > 0 {
		lc.MaxBackups = c.Logging.MaxBackups
	}
	if c.Logging.MaxAge > 0 {
		lc.MaxAge = c.Logging.MaxAge
	}
	lc.NoColor = !c.UI.ColorEnabled
	return lc
}

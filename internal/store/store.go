// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"encoding/json"
	"time"

	"options-backtester/internal/models"
)

// DataStore defines the interface for data persistence.
type DataStore interface {
	// Prices
	SavePrices(ctx context.Context, symbol string, points []models.PricePoint) error
	GetPrices(ctx context.Context, symbol string, from, to time.Time) ([]models.PricePoint, error)
	GetPriceCoverage(ctx context.Context, symbol string) (*PriceCoverage, error)
	ListSymbols(ctx context.Context) ([]string, error)

	// Backtest runs
	SaveBacktestRun(ctx context.Context, run *BacktestRun) error
	GetBacktestRun(ctx context.Context, id string) (*BacktestRun, error)
	ListBacktestRuns(ctx context.Context, filter RunFilter) ([]BacktestRun, error)
	DeleteBacktestRun(ctx context.Context, id string) error

	// Sync
	GetLastSync(ctx context.Context, dataType string) (time.Time, error)
	SetLastSync(ctx context.Context, dataType string, t time.Time) error

	Close() error
}

// PriceCoverage describes the stored closes of one symbol.
type PriceCoverage struct {
	Symbol string    `json:"symbol"`
	First  time.Time `json:"first"`
	Last   time.Time `json:"last"`
	Count  int       `json:"count"`
}

// BacktestRun is an archived backtest. Result holds the full JSON-encoded
// result; the other fields are indexed copies for listing.
type BacktestRun struct {
	ID            string          `json:"id"`
	Label         string          `json:"label,omitempty"`
	Symbol        string          `json:"symbol"`
	StrategyType  string          `json:"strategy_type"`
	StartDate     time.Time       `json:"start_date"`
	EndDate       time.Time       `json:"end_date"`
	AutoRoll      bool            `json:"auto_roll"`
	TotalPnL      float64         `json:"total_pnl"`
	NumRolls      int             `json:"num_rolls"`
	TotalRollCost float64         `json:"total_roll_cost"`
	SharpeRatio   float64         `json:"sharpe_ratio"`
	MaxDrawdown   float64         `json:"max_drawdown"`
	CreatedAt     time.Time       `json:"created_at"`
	Result        json.RawMessage `json:"result,omitempty"`
}

// RunFilter represents filters for querying backtest runs.
type RunFilter struct {
	Symbol       string
	StrategyType string
	Limit        int
}

// Package store provides data persistence implementations.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	apperrors "options-backtester/internal/errors"
	"options-backtester/internal/models"
	"options-backtester/pkg/utils"
)

// SQLiteStore implements DataStore using SQLite.
// Dates are stored as YYYY-MM-DD text so range queries compare lexically.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite-based data store.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(time.Hour)

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

// initSchema creates all required tables and indexes.
func (s *SQLiteStore) initSchema() error {
	schema := `
	-- Daily underlying closes
	CREATE TABLE IF NOT EXISTS prices (
		symbol TEXT NOT NULL,
		date TEXT NOT NULL,
		close REAL NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (symbol, date)
	);

	-- Archived backtest runs
	CREATE TABLE IF NOT EXISTS backtest_runs (
		id TEXT PRIMARY KEY,
		label TEXT,
		symbol TEXT NOT NULL,
		strategy_type TEXT NOT NULL,
		start_date TEXT NOT NULL,
		end_date TEXT NOT NULL,
		auto_roll INTEGER DEFAULT 0,
		total_pnl REAL NOT NULL,
		num_rolls INTEGER NOT NULL,
		total_roll_cost REAL NOT NULL,
		sharpe_ratio REAL NOT NULL,
		max_drawdown REAL NOT NULL,
		result TEXT,
		created_at DATETIME NOT NULL
	);

	-- Last import time per data type
	CREATE TABLE IF NOT EXISTS sync_state (
		data_type TEXT PRIMARY KEY,
		synced_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_backtest_runs_symbol ON backtest_runs(symbol, created_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// ============================================================================
// Price Methods
// ============================================================================

// SavePrices upserts closes for a symbol in one transaction.
func (s *SQLiteStore) SavePrices(ctx context.Context, symbol string, points []models.PricePoint) error {
	if len(points) == 0 {
		return nil
	}
	if symbol == "" {
		return apperrors.NewValidationError(apperrors.ErrInputValidation, "symbol", symbol, "is required")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO prices (symbol, date, close)
		VALUES (?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, p := range points {
		if _, err := stmt.ExecContext(ctx, symbol, p.Date.Format(utils.DateLayout), p.Close); err != nil {
			return fmt.Errorf("failed to insert price: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// GetPrices retrieves closes in [from, to] in ascending date order.
func (s *SQLiteStore) GetPrices(ctx context.Context, symbol string, from, to time.Time) ([]models.PricePoint, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT date, close
		FROM prices
		WHERE symbol = ? AND date >= ? AND date <= ?
		ORDER BY date ASC
	`, symbol, from.Format(utils.DateLayout), to.Format(utils.DateLayout))
	if err != nil {
		return nil, fmt.Errorf("failed to query prices: %w", err)
	}
	defer rows.Close()

	var points []models.PricePoint
	for rows.Next() {
		var date string
		var p models.PricePoint
		if err := rows.Scan(&date, &p.Close); err != nil {
			return nil, fmt.Errorf("failed to scan price: %w", err)
		}
		if p.Date, err = utils.ParseDate(date); err != nil {
			return nil, fmt.Errorf("corrupt price row: %w", err)
		}
		points = append(points, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating prices: %w", err)
	}

	return points, nil
}

// GetPriceCoverage returns the stored date range of a symbol.
func (s *SQLiteStore) GetPriceCoverage(ctx context.Context, symbol string) (*PriceCoverage, error) {
	var first, last sql.NullString
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT MIN(date), MAX(date), COUNT(*) FROM prices WHERE symbol = ?
	`, symbol).Scan(&first, &last, &count)
	if err != nil {
		return nil, fmt.Errorf("failed to get price coverage: %w", err)
	}
	if count == 0 {
		return nil, apperrors.NewDataError("price", symbol, "no stored prices", apperrors.ErrDataNotFound)
	}

	cov := &PriceCoverage{Symbol: symbol, Count: count}
	if cov.First, err = utils.ParseDate(first.String); err != nil {
		return nil, err
	}
	if cov.Last, err = utils.ParseDate(last.String); err != nil {
		return nil, err
	}
	return cov, nil
}

// ListSymbols returns every symbol with stored prices.
func (s *SQLiteStore) ListSymbols(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT symbol FROM prices ORDER BY symbol`)
	if err != nil {
		return nil, fmt.Errorf("failed to query symbols: %w", err)
	}
	defer rows.Close()

	var symbols []string
	for rows.Next() {
		var symbol string
		if err := rows.Scan(&symbol); err != nil {
			return nil, fmt.Errorf("failed to scan symbol: %w", err)
		}
		symbols = append(symbols, symbol)
	}
	return symbols, rows.Err()
}

// ============================================================================
// Backtest Run Methods
// ============================================================================

// SaveBacktestRun archives a run. Saving an existing ID replaces it.
func (s *SQLiteStore) SaveBacktestRun(ctx context.Context, run *BacktestRun) error {
	if run.ID == "" {
		return apperrors.NewValidationError(apperrors.ErrInputValidation, "id", run.ID, "is required")
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now()
	}

	autoRoll := 0
	if run.AutoRoll {
		autoRoll = 1
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO backtest_runs (id, label, symbol, strategy_type, start_date, end_date, auto_roll,
			total_pnl, num_rolls, total_roll_cost, sharpe_ratio, max_drawdown, result, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, run.ID, run.Label, run.Symbol, run.StrategyType,
		run.StartDate.Format(utils.DateLayout), run.EndDate.Format(utils.DateLayout), autoRoll,
		run.TotalPnL, run.NumRolls, run.TotalRollCost, run.SharpeRatio, run.MaxDrawdown,
		string(run.Result), run.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to save backtest run: %w", err)
	}
	return nil
}

const runColumns = `id, label, symbol, strategy_type, start_date, end_date, auto_roll,
	total_pnl, num_rolls, total_roll_cost, sharpe_ratio, max_drawdown, created_at`

// GetBacktestRun retrieves an archived run including its full result.
func (s *SQLiteStore) GetBacktestRun(ctx context.Context, id string) (*BacktestRun, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+`, result FROM backtest_runs WHERE id = ?`, id)

	var result sql.NullString
	run, err := scanRun(row, &result)
	if err == sql.ErrNoRows {
		return nil, apperrors.NewDataError("backtest_run", id, "not found", apperrors.ErrDataNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get backtest run: %w", err)
	}
	if result.Valid && result.String != "" {
		run.Result = []byte(result.String)
	}
	return run, nil
}

// ListBacktestRuns returns archived runs, newest first, without their results.
func (s *SQLiteStore) ListBacktestRuns(ctx context.Context, filter RunFilter) ([]BacktestRun, error) {
	query := `SELECT ` + runColumns + ` FROM backtest_runs WHERE 1=1`
	var args []interface{}

	if filter.Symbol != "" {
		query += " AND symbol = ?"
		args = append(args, filter.Symbol)
	}
	if filter.StrategyType != "" {
		query += " AND strategy_type = ?"
		args = append(args, strings.ToUpper(filter.StrategyType))
	}

	query += " ORDER BY created_at DESC"

	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query backtest runs: %w", err)
	}
	defer rows.Close()

	var runs []BacktestRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan backtest run: %w", err)
		}
		runs = append(runs, *run)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating backtest runs: %w", err)
	}

	return runs, nil
}

// DeleteBacktestRun removes an archived run.
func (s *SQLiteStore) DeleteBacktestRun(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM backtest_runs WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete backtest run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperrors.NewDataError("backtest_run", id, "not found", apperrors.ErrDataNotFound)
	}
	return nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(sc scanner, extra ...interface{}) (*BacktestRun, error) {
	var run BacktestRun
	var label sql.NullString
	var start, end string
	var autoRoll int

	dest := []interface{}{&run.ID, &label, &run.Symbol, &run.StrategyType, &start, &end, &autoRoll,
		&run.TotalPnL, &run.NumRolls, &run.TotalRollCost, &run.SharpeRatio, &run.MaxDrawdown, &run.CreatedAt}
	if err := sc.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}

	var err error
	if run.StartDate, err = utils.ParseDate(start); err != nil {
		return nil, err
	}
	if run.EndDate, err = utils.ParseDate(end); err != nil {
		return nil, err
	}
	run.Label = label.String
	run.AutoRoll = autoRoll == 1
	return &run, nil
}

// ============================================================================
// Sync Methods
// ============================================================================

// GetLastSync returns when dataType was last synced, or the zero time.
func (s *SQLiteStore) GetLastSync(ctx context.Context, dataType string) (time.Time, error) {
	var t time.Time
	err := s.db.QueryRowContext(ctx, `SELECT synced_at FROM sync_state WHERE data_type = ?`, dataType).Scan(&t)
	if err == sql.ErrNoRows {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to get last sync: %w", err)
	}
	return t, nil
}

// SetLastSync records when dataType was synced.
func (s *SQLiteStore) SetLastSync(ctx context.Context, dataType string, t time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO sync_state (data_type, synced_at) VALUES (?, ?)
	`, dataType, t.UTC())
	if err != nil {
		return fmt.Errorf("failed to set last sync: %w", err)
	}
	return nil
}

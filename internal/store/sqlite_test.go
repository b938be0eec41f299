package store

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	apperrors "options-backtester/internal/errors"
	"options-backtester/internal/models"
	"options-backtester/pkg/utils"
)

func TestSavePrices_Upsert(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	day := utils.Date(2026, 1, 5)

	if err := store.SavePrices(ctx, "NIFTY", []models.PricePoint{{Date: day, Close: 21800}}); err != nil {
		t.Fatalf("SavePrices failed: %v", err)
	}
	if err := store.SavePrices(ctx, "NIFTY", []models.PricePoint{{Date: day, Close: 21850}}); err != nil {
		t.Fatalf("SavePrices failed: %v", err)
	}

	got, err := store.GetPrices(ctx, "NIFTY", day, day)
	if err != nil {
		t.Fatalf("GetPrices failed: %v", err)
	}
	if len(got) != 1 || got[0].Close != 21850 {
		t.Errorf("Expected one replaced close 21850, got %+v", got)
	}

	if err := store.SavePrices(ctx, "", []models.PricePoint{{Date: day, Close: 1}}); !apperrors.Is(err, apperrors.ErrInputValidation) {
		t.Errorf("Expected validation error for empty symbol, got %v", err)
	}
}

func TestPriceCoverageAndSymbols(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.SavePrices(ctx, "NIFTY", generateTestPrices(10, 21800, utils.Date(2026, 1, 1))); err != nil {
		t.Fatalf("SavePrices failed: %v", err)
	}
	if err := store.SavePrices(ctx, "BANKNIFTY", generateTestPrices(3, 48000, utils.Date(2026, 2, 1))); err != nil {
		t.Fatalf("SavePrices failed: %v", err)
	}

	cov, err := store.GetPriceCoverage(ctx, "NIFTY")
	if err != nil {
		t.Fatalf("GetPriceCoverage failed: %v", err)
	}
	if cov.Count != 10 || !cov.First.Equal(utils.Date(2026, 1, 1)) || !cov.Last.Equal(utils.Date(2026, 1, 10)) {
		t.Errorf("Unexpected coverage %+v", cov)
	}

	if _, err := store.GetPriceCoverage(ctx, "SENSEX"); !apperrors.Is(err, apperrors.ErrDataNotFound) {
		t.Errorf("Expected ErrDataNotFound, got %v", err)
	}

	symbols, err := store.ListSymbols(ctx)
	if err != nil {
		t.Fatalf("ListSymbols failed: %v", err)
	}
	if len(symbols) != 2 || symbols[0] != "BANKNIFTY" || symbols[1] != "NIFTY" {
		t.Errorf("Expected [BANKNIFTY NIFTY], got %v", symbols)
	}
}

func TestBacktestRunArchive(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	runs := []*BacktestRun{
		{ID: "run-a", Symbol: "NIFTY", StrategyType: "CALENDAR", TotalPnL: 1250.5, NumRolls: 3, SharpeRatio: 1.2, CreatedAt: base},
		{ID: "run-b", Symbol: "NIFTY", StrategyType: "STRADDLE", TotalPnL: -400, MaxDrawdown: 900, CreatedAt: base.Add(time.Hour)},
		{ID: "run-c", Symbol: "BANKNIFTY", StrategyType: "CALENDAR", AutoRoll: true, CreatedAt: base.Add(2 * time.Hour)},
	}
	for _, r := range runs {
		r.StartDate = utils.Date(2026, 1, 1)
		r.EndDate = utils.Date(2026, 1, 31)
		r.Result = json.RawMessage(`{"run_id":"` + r.ID + `"}`)
		if err := store.SaveBacktestRun(ctx, r); err != nil {
			t.Fatalf("SaveBacktestRun failed: %v", err)
		}
	}

	got, err := store.GetBacktestRun(ctx, "run-a")
	if err != nil {
		t.Fatalf("GetBacktestRun failed: %v", err)
	}
	if got.TotalPnL != 1250.5 || got.NumRolls != 3 || got.StrategyType != "CALENDAR" || !got.StartDate.Equal(utils.Date(2026, 1, 1)) {
		t.Errorf("Unexpected run %+v", got)
	}
	if !bytes.Contains(got.Result, []byte(`"run-a"`)) {
		t.Errorf("Expected stored result payload, got %s", got.Result)
	}

	all, err := store.ListBacktestRuns(ctx, RunFilter{})
	if err != nil {
		t.Fatalf("ListBacktestRuns failed: %v", err)
	}
	if len(all) != 3 || all[0].ID != "run-c" || all[2].ID != "run-a" {
		t.Errorf("Expected newest first, got %v", runIDs(all))
	}
	if all[0].Result != nil {
		t.Error("Expected listing without result payloads")
	}
	if !all[0].AutoRoll {
		t.Error("Expected auto_roll to round-trip")
	}

	nifty, err := store.ListBacktestRuns(ctx, RunFilter{Symbol: "NIFTY", Limit: 1})
	if err != nil {
		t.Fatalf("ListBacktestRuns failed: %v", err)
	}
	if len(nifty) != 1 || nifty[0].ID != "run-b" {
		t.Errorf("Expected [run-b], got %v", runIDs(nifty))
	}

	calendars, err := store.ListBacktestRuns(ctx, RunFilter{StrategyType: "calendar"})
	if err != nil {
		t.Fatalf("ListBacktestRuns failed: %v", err)
	}
	if len(calendars) != 2 {
		t.Errorf("Expected 2 calendar runs, got %v", runIDs(calendars))
	}

	if err := store.DeleteBacktestRun(ctx, "run-b"); err != nil {
		t.Fatalf("DeleteBacktestRun failed: %v", err)
	}
	if _, err := store.GetBacktestRun(ctx, "run-b"); !apperrors.Is(err, apperrors.ErrDataNotFound) {
		t.Errorf("Expected ErrDataNotFound after delete, got %v", err)
	}
	if err := store.DeleteBacktestRun(ctx, "run-b"); !apperrors.Is(err, apperrors.ErrDataNotFound) {
		t.Errorf("Expected ErrDataNotFound deleting twice, got %v", err)
	}

	if err := store.SaveBacktestRun(ctx, &BacktestRun{}); !apperrors.Is(err, apperrors.ErrInputValidation) {
		t.Errorf("Expected validation error for missing id, got %v", err)
	}
}

func runIDs(runs []BacktestRun) []string {
	ids := make([]string, len(runs))
	for i, r := range runs {
		ids[i] = r.ID
	}
	return ids
}

func TestLastSync(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	got, err := store.GetLastSync(ctx, "prices:NIFTY")
	if err != nil || !got.IsZero() {
		t.Fatalf("Expected zero time before any sync, got %v, %v", got, err)
	}

	now := time.Date(2026, 3, 2, 15, 30, 0, 0, time.UTC)
	if err := store.SetLastSync(ctx, "prices:NIFTY", now); err != nil {
		t.Fatalf("SetLastSync failed: %v", err)
	}
	got, err = store.GetLastSync(ctx, "prices:NIFTY")
	if err != nil {
		t.Fatalf("GetLastSync failed: %v", err)
	}
	if !got.Equal(now) {
		t.Errorf("Expected %v, got %v", now, got)
	}
}

func TestReadPricesCSV(t *testing.T) {
	input := "date,open,close\n2026-01-06,21700,21850.5\n2026-01-05,21650,21800\n"

	points, err := ReadPricesCSV(strings.NewReader(input))
	if err != nil {
		t.Fatalf("ReadPricesCSV failed: %v", err)
	}
	if len(points) != 2 {
		t.Fatalf("Expected 2 points, got %d", len(points))
	}
	if !points[0].Date.Equal(utils.Date(2026, 1, 5)) || points[0].Close != 21800 {
		t.Errorf("Expected sorted first point 2026-01-05 21800, got %+v", points[0])
	}
	if points[1].Close != 21850.5 {
		t.Errorf("Expected 21850.5, got %.2f", points[1].Close)
	}
}

func TestReadPricesCSV_Rejects(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"bad date", "date,close\n05/01/2026,21800\n"},
		{"zero close", "date,close\n2026-01-05,0\n"},
		{"negative close", "date,close\n2026-01-05,-5\n"},
		{"duplicate date", "date,close\n2026-01-05,21800\n2026-01-05,21810\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ReadPricesCSV(strings.NewReader(tt.input)); !apperrors.Is(err, apperrors.ErrInputValidation) {
				t.Errorf("Expected validation error, got %v", err)
			}
		})
	}
}

func TestImportCSV(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	var buf bytes.Buffer
	points := generateTestPrices(5, 21800, utils.Date(2026, 1, 1))
	if err := WritePricesCSV(&buf, points); err != nil {
		t.Fatalf("WritePricesCSV failed: %v", err)
	}

	path := filepath.Join(t.TempDir(), "nifty.csv")
	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	n, err := ImportCSV(ctx, store, "NIFTY", path)
	if err != nil {
		t.Fatalf("ImportCSV failed: %v", err)
	}
	if n != 5 {
		t.Errorf("Expected 5 rows imported, got %d", n)
	}

	got, err := store.GetPrices(ctx, "NIFTY", utils.Date(2026, 1, 1), utils.Date(2026, 1, 31))
	if err != nil || len(got) != 5 {
		t.Fatalf("Expected 5 stored prices, got %d (%v)", len(got), err)
	}

	synced, err := store.GetLastSync(ctx, "prices:NIFTY")
	if err != nil || synced.IsZero() {
		t.Errorf("Expected import to record a sync time, got %v (%v)", synced, err)
	}

	if _, err := ImportCSV(ctx, store, "NIFTY", filepath.Join(t.TempDir(), "missing.csv")); err == nil {
		t.Error("Expected error for missing file")
	}
}

func TestDataFreshness(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	f, err := GetDataFreshness(ctx, store, "NIFTY", 0, now)
	if err != nil {
		t.Fatalf("GetDataFreshness failed: %v", err)
	}
	if f.IsFresh || FormatFreshness(f) != "Never imported" {
		t.Errorf("Expected never imported, got %+v", f)
	}

	if err := store.SetLastSync(ctx, PriceSyncKey("NIFTY"), now.Add(-3*time.Hour)); err != nil {
		t.Fatalf("SetLastSync failed: %v", err)
	}
	f, _ = GetDataFreshness(ctx, store, "NIFTY", 0, now)
	if !f.IsFresh || FormatFreshness(f) != "Imported 3 hours ago" {
		t.Errorf("Expected fresh import 3 hours ago, got %q", FormatFreshness(f))
	}

	f, _ = GetDataFreshness(ctx, store, "NIFTY", time.Hour, now)
	if f.IsFresh || FormatFreshness(f) != "Stale data - imported 3 hours ago" {
		t.Errorf("Expected stale, got %q", FormatFreshness(f))
	}
}

package store

import (
	"context"
	"fmt"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"options-backtester/internal/models"
	"options-backtester/pkg/utils"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

// Property: For any series of daily closes, saving them and reading the same
// range back returns the same dates and closes in ascending order.
func TestProperty_PriceRoundTripConsistency(t *testing.T) {
	store := newTestStore(t)

	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)

	symbols := []string{"NIFTY", "BANKNIFTY", "FINNIFTY", "MIDCPNIFTY", "SENSEX"}
	run := 0

	properties.Property("price round-trip: save then retrieve produces equivalent data", prop.ForAll(
		func(symbolIdx int, count int, basePrice float64, startOffset int) bool {
			ctx := context.Background()
			run++
			symbol := fmt.Sprintf("%s_%d", symbols[symbolIdx%len(symbols)], run)

			points := generateTestPrices(count, basePrice, utils.Date(2025, 1, 1).AddDate(0, 0, startOffset))
			if err := store.SavePrices(ctx, symbol, points); err != nil {
				t.Logf("Failed to save prices: %v", err)
				return false
			}

			retrieved, err := store.GetPrices(ctx, symbol, points[0].Date, points[len(points)-1].Date)
			if err != nil {
				t.Logf("Failed to get prices: %v", err)
				return false
			}
			if len(retrieved) != len(points) {
				t.Logf("Count mismatch: expected %d, got %d", len(points), len(retrieved))
				return false
			}

			for i, orig := range points {
				if !orig.Date.Equal(retrieved[i].Date) || math.Abs(orig.Close-retrieved[i].Close) > 1e-9 {
					t.Logf("Price mismatch at index %d: original=%+v, retrieved=%+v", i, orig, retrieved[i])
					return false
				}
			}
			return true
		},
		gen.IntRange(0, len(symbols)-1),
		gen.IntRange(1, 40),
		gen.Float64Range(100, 50000),
		gen.IntRange(0, 365),
	))

	// Property: a sub-range query only returns dates inside the range
	properties.Property("price range query is inclusive and bounded", prop.ForAll(
		func(count int, lo int, width int) bool {
			ctx := context.Background()
			run++
			symbol := fmt.Sprintf("RANGE_%d", run)
			start := utils.Date(2026, 1, 1)

			points := generateTestPrices(count, 21800, start)
			if err := store.SavePrices(ctx, symbol, points); err != nil {
				return false
			}

			from := start.AddDate(0, 0, lo)
			to := from.AddDate(0, 0, width)
			got, err := store.GetPrices(ctx, symbol, from, to)
			if err != nil {
				return false
			}

			want := 0
			for _, p := range points {
				if !p.Date.Before(from) && !p.Date.After(to) {
					want++
				}
			}
			if len(got) != want {
				return false
			}
			for _, p := range got {
				if p.Date.Before(from) || p.Date.After(to) {
					return false
				}
			}
			return true
		},
		gen.IntRange(1, 30),
		gen.IntRange(0, 30),
		gen.IntRange(0, 20),
	))

	properties.Property("empty prices: saving empty slice should succeed", prop.ForAll(
		func(symbolIdx int) bool {
			return store.SavePrices(context.Background(), symbols[symbolIdx], nil) == nil
		},
		gen.IntRange(0, len(symbols)-1),
	))

	properties.TestingRun(t)
}

// generateTestPrices creates one close per calendar day starting at start.
func generateTestPrices(count int, basePrice float64, start time.Time) []models.PricePoint {
	points := make([]models.PricePoint, count)
	for i := range points {
		variation := float64(i%10) * 0.001 * basePrice
		points[i] = models.PricePoint{
			Date:  start.AddDate(0, 0, i),
			Close: math.Round((basePrice+variation)*100) / 100,
		}
	}
	return points
}

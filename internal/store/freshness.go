package store

import (
	"context"
	"fmt"
	"time"
)

// DefaultStaleAfter is how long imported prices count as fresh.
const DefaultStaleAfter = 7 * 24 * time.Hour

// PriceSyncKey is the sync_state key recorded by price imports.
func PriceSyncKey(symbol string) string {
	return "prices:" + symbol
}

// DataFreshness represents how recently a symbol's prices were imported.
type DataFreshness struct {
	Symbol       string
	LastImported time.Time
	IsFresh      bool
	Age          time.Duration
}

// GetDataFreshness returns the import freshness of symbol as of now.
func GetDataFreshness(ctx context.Context, ds DataStore, symbol string, staleAfter time.Duration, now time.Time) (*DataFreshness, error) {
	last, err := ds.GetLastSync(ctx, PriceSyncKey(symbol))
	if err != nil {
		return nil, err
	}
	if staleAfter <= 0 {
		staleAfter = DefaultStaleAfter
	}

	f := &DataFreshness{Symbol: symbol, LastImported: last}
	if last.IsZero() {
		return f, nil
	}
	f.Age = now.Sub(last)
	f.IsFresh = f.Age < staleAfter
	return f, nil
}

// FormatFreshness returns a human-readable freshness string.
func FormatFreshness(freshness *DataFreshness) string {
	if freshness.LastImported.IsZero() {
		return "Never imported"
	}

	age := freshness.Age
	var ageStr string

	switch {
	case age < time.Minute:
		ageStr = "just now"
	case age < time.Hour:
		ageStr = fmt.Sprintf("%d minutes ago", int(age.Minutes()))
	case age < 24*time.Hour:
		ageStr = fmt.Sprintf("%d hours ago", int(age.Hours()))
	default:
		ageStr = fmt.Sprintf("%d days ago", int(age.Hours()/24))
	}

	if freshness.IsFresh {
		return fmt.Sprintf("Imported %s", ageStr)
	}
	return fmt.Sprintf("Stale data - imported %s", ageStr)
}

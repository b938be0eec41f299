package store

import (
	"context"
	"fmt"
	"io"
	"math"
	"os"
	"sort"
	"time"

	"github.com/gocarina/gocsv"

	apperrors "options-backtester/internal/errors"
	"options-backtester/internal/models"
	"options-backtester/pkg/utils"
)

// priceRow is one line of a price file. Columns other than date and close
// (open, high, volume...) are ignored.
type priceRow struct {
	Date  string  `csv:"date"`
	Close float64 `csv:"close"`
}

// ReadPricesCSV parses a date,close file into points sorted by date.
// Duplicate dates and non-positive or non-finite closes are rejected.
func ReadPricesCSV(r io.Reader) ([]models.PricePoint, error) {
	var rows []*priceRow
	if err := gocsv.Unmarshal(r, &rows); err != nil {
		return nil, fmt.Errorf("failed to parse price csv: %w", err)
	}

	seen := make(map[time.Time]bool, len(rows))
	points := make([]models.PricePoint, 0, len(rows))
	for i, row := range rows {
		line := i + 2 // header is line 1
		date, err := utils.ParseDate(row.Date)
		if err != nil {
			return nil, apperrors.NewValidationError(apperrors.ErrInputValidation, "date", row.Date,
				fmt.Sprintf("line %d: %v", line, err))
		}
		if math.IsNaN(row.Close) || math.IsInf(row.Close, 0) || row.Close <= 0 {
			return nil, apperrors.NewValidationError(apperrors.ErrInputValidation, "close", row.Close,
				fmt.Sprintf("line %d: close must be positive", line))
		}
		if seen[date] {
			return nil, apperrors.NewValidationError(apperrors.ErrInputValidation, "date", row.Date,
				fmt.Sprintf("line %d: duplicate date", line))
		}
		seen[date] = true
		points = append(points, models.PricePoint{Date: date, Close: row.Close})
	}

	sort.Slice(points, func(i, j int) bool { return points[i].Date.Before(points[j].Date) })
	return points, nil
}

// WritePricesCSV writes points as a date,close file.
func WritePricesCSV(w io.Writer, points []models.PricePoint) error {
	rows := make([]*priceRow, len(points))
	for i, p := range points {
		rows[i] = &priceRow{Date: p.Date.Format(utils.DateLayout), Close: p.Close}
	}
	return gocsv.Marshal(rows, w)
}

// ImportCSV loads a price file into the store and returns the number of rows saved.
func ImportCSV(ctx context.Context, ds DataStore, symbol, path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	points, err := ReadPricesCSV(f)
	if err != nil {
		return 0, err
	}
	if len(points) == 0 {
		return 0, apperrors.NewDataError("price", symbol, "csv has no rows", apperrors.ErrMissingData)
	}

	if err := ds.SavePrices(ctx, symbol, points); err != nil {
		return 0, err
	}
	if err := ds.SetLastSync(ctx, PriceSyncKey(symbol), time.Now()); err != nil {
		return 0, err
	}
	return len(points), nil
}

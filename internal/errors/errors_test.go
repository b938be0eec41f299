package errors

import (
	"fmt"
	"strings"
	"testing"
	"time"
)

func TestKind(t *testing.T) {
	date := time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{"expiry order", InvalidExpiryOrder(date, date), "InvalidExpiryOrderError"},
		{"strike", InvalidStrike("strike", -1, "must be positive"), "InvalidStrikeError"},
		{"quantity", InvalidQuantity("quantity", 0), "InvalidQuantityError"},
		{"missing price wrapped", fmt.Errorf("running backtest: %w", MissingPrice("NIFTY", date)), "MissingDataError"},
		{"roll", NewRollError(1, date, "calendar exhausted", ErrNoAvailableExpiry), "NoAvailableExpiryError"},
		{"warning", &DegenerateInputWarning{Field: "volatility", Value: 0, Fallback: "deterministic forward"}, "DegenerateInputWarning"},
		{"unknown", fmt.Errorf("boom"), "InternalError"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Kind(tt.err); got != tt.want {
				t.Errorf("Kind() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestMissingPriceCarriesDate(t *testing.T) {
	err := MissingPrice("NIFTY", time.Date(2026, 1, 17, 0, 0, 0, 0, time.UTC))

	if !strings.Contains(err.Error(), "2026-01-17") {
		t.Errorf("error should name the offending date: %s", err)
	}

	var dataErr *DataError
	if !As(fmt.Errorf("wrapped: %w", err), &dataErr) {
		t.Fatal("expected DataError in chain")
	}
	if dataErr.Symbol != "NIFTY" {
		t.Errorf("symbol = %q", dataErr.Symbol)
	}
}

func TestRollErrorCarriesLegIndex(t *testing.T) {
	err := NewRollError(3, time.Date(2026, 2, 3, 0, 0, 0, 0, time.UTC), "no expiry after 2026-02-06", ErrNoAvailableExpiry)
	if !strings.Contains(err.Error(), "leg 3") {
		t.Errorf("error should name the leg index: %s", err)
	}
	if !Is(err, ErrNoAvailableExpiry) {
		t.Error("expected ErrNoAvailableExpiry in chain")
	}
}

func TestValidationErrorDefaultsToInputValidation(t *testing.T) {
	err := &ValidationError{Field: "symbol", Value: "", Message: "required"}
	if !Is(err, ErrInputValidation) {
		t.Error("validation error without kind should match ErrInputValidation")
	}
}

func TestWrapNil(t *testing.T) {
	if Wrap(nil, "context") != nil {
		t.Error("Wrap(nil) should be nil")
	}
	if Wrapf(nil, "context %d", 1) != nil {
		t.Error("Wrapf(nil) should be nil")
	}
}

// Package models provides domain models for the options backtesting engine.
package models

import (
	"fmt"
	"strings"
	"time"
)

// OrderSide represents the side of a position.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "BUY"
	OrderSideSell OrderSide = "SELL"
)

// Sign returns +1 for BUY and -1 for SELL.
// The same sign is applied to P&L and Greeks.
func (s OrderSide) Sign() float64 {
	if s == OrderSideSell {
		return -1
	}
	return 1
}

// Opposite returns the other side.
func (s OrderSide) Opposite() OrderSide {
	if s == OrderSideSell {
		return OrderSideBuy
	}
	return OrderSideSell
}

// Valid reports whether s is BUY or SELL.
func (s OrderSide) Valid() bool {
	return s == OrderSideBuy || s == OrderSideSell
}

// ParseOrderSide parses BUY/SELL case-insensitively.
func ParseOrderSide(s string) (OrderSide, error) {
	side := OrderSide(strings.ToUpper(strings.TrimSpace(s)))
	if !side.Valid() {
		return "", fmt.Errorf("invalid side %q (must be BUY or SELL)", s)
	}
	return side, nil
}

// PricePoint is one close of the underlying on a trading date.
type PricePoint struct {
	Date  time.Time
	Close float64
}

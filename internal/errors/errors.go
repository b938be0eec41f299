// Package errors provides custom error types for domain-specific errors.
package errors

import (
	"errors"
	"fmt"
	"time"
)

// Standard sentinel errors. Each one is a stable error kind callers can match with Is.
var (
	ErrInvalidExpiryOrder = errors.New("invalid expiry order")
	ErrInvalidStrike      = errors.New("invalid strike")
	ErrInvalidQuantity    = errors.New("invalid quantity")
	ErrInvalidRange       = errors.New("invalid price range")
	ErrMissingData        = errors.New("missing data")
	ErrNoAvailableExpiry  = errors.New("no available expiry")
	ErrDegenerateInput    = errors.New("degenerate pricing input")
	ErrConfigInvalid      = errors.New("invalid configuration")
	ErrDataNotFound       = errors.New("data not found")
	ErrDatabaseError      = errors.New("database error")
	ErrInputValidation    = errors.New("input validation failed")
)

var kinds = []struct {
	err  error
	name string
}{
	{ErrInvalidExpiryOrder, "InvalidExpiryOrderError"},
	{ErrInvalidStrike, "InvalidStrikeError"},
	{ErrInvalidQuantity, "InvalidQuantityError"},
	{ErrInvalidRange, "InvalidRangeError"},
	{ErrMissingData, "MissingDataError"},
	{ErrNoAvailableExpiry, "NoAvailableExpiryError"},
	{ErrDegenerateInput, "DegenerateInputWarning"},
	{ErrConfigInvalid, "ConfigError"},
	{ErrDataNotFound, "DataNotFoundError"},
	{ErrDatabaseError, "DatabaseError"},
	{ErrInputValidation, "ValidationError"},
}

// Kind returns the stable kind name for err, or "" when err is nil.
// Unknown errors report "InternalError".
func Kind(err error) string {
	if err == nil {
		return ""
	}
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.name
		}
	}
	return "InternalError"
}

// ValidationError represents a construction-time validation failure.
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
	Err     error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: %s (%v): %s", e.Field, e.Value, e.Message)
}

func (e *ValidationError) Unwrap() error {
	if e.Err == nil {
		return ErrInputValidation
	}
	return e.Err
}

// NewValidationError creates a new ValidationError of the given kind.
func NewValidationError(kind error, field string, value interface{}, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Value:   value,
		Message: message,
		Err:     kind,
	}
}

// InvalidExpiryOrder reports near >= far.
func InvalidExpiryOrder(near, far time.Time) *ValidationError {
	return NewValidationError(ErrInvalidExpiryOrder, "near_expiry",
		near.Format("2006-01-02"),
		fmt.Sprintf("must be before far expiry %s", far.Format("2006-01-02")))
}

// InvalidStrike reports a non-positive or inconsistent strike.
func InvalidStrike(field string, strike float64, message string) *ValidationError {
	return NewValidationError(ErrInvalidStrike, field, strike, message)
}

// InvalidQuantity reports a non-positive quantity.
func InvalidQuantity(field string, qty int) *ValidationError {
	return NewValidationError(ErrInvalidQuantity, field, qty, "must be a positive integer")
}

// DataError represents a data-related error.
type DataError struct {
	DataType string
	Symbol   string
	Date     time.Time
	Message  string
	Err      error
}

func (e *DataError) Error() string {
	date := ""
	if !e.Date.IsZero() {
		date = " " + e.Date.Format("2006-01-02")
	}
	if e.Err != nil {
		return fmt.Sprintf("data error [%s] %s%s: %s: %v", e.DataType, e.Symbol, date, e.Message, e.Err)
	}
	return fmt.Sprintf("data error [%s] %s%s: %s", e.DataType, e.Symbol, date, e.Message)
}

func (e *DataError) Unwrap() error {
	return e.Err
}

// NewDataError creates a new DataError.
func NewDataError(dataType, symbol, message string, err error) *DataError {
	return &DataError{
		DataType: dataType,
		Symbol:   symbol,
		Message:  message,
		Err:      err,
	}
}

// MissingPrice reports a trading date with no underlying close.
func MissingPrice(symbol string, date time.Time) *DataError {
	return &DataError{
		DataType: "price",
		Symbol:   symbol,
		Date:     date,
		Message:  "no underlying close for trading date",
		Err:      ErrMissingData,
	}
}

// RollError represents a failure to roll a leg.
type RollError struct {
	LegIndex int
	Date     time.Time
	Reason   string
	Err      error
}

func (e *RollError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("roll error [leg %d] %s: %s: %v", e.LegIndex, e.Date.Format("2006-01-02"), e.Reason, e.Err)
	}
	return fmt.Sprintf("roll error [leg %d] %s: %s", e.LegIndex, e.Date.Format("2006-01-02"), e.Reason)
}

func (e *RollError) Unwrap() error {
	return e.Err
}

// NewRollError creates a new RollError.
func NewRollError(legIndex int, date time.Time, reason string, err error) *RollError {
	return &RollError{
		LegIndex: legIndex,
		Date:     date,
		Reason:   reason,
		Err:      err,
	}
}

// DegenerateInputWarning annotates a pricing call that fell back to a documented value.
// It is never returned as a failure; it travels alongside the result.
type DegenerateInputWarning struct {
	Field    string
	Value    float64
	Fallback string
}

func (w *DegenerateInputWarning) Error() string {
	return fmt.Sprintf("degenerate input: %s=%g, using %s", w.Field, w.Value, w.Fallback)
}

func (w *DegenerateInputWarning) Unwrap() error {
	return ErrDegenerateInput
}

// Wrap wraps an error with additional context.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with formatted context.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

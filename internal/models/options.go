package models

import (
	"fmt"
	"strings"
)

// OptionType is CALL or PUT.
type OptionType string

const (
	OptionTypeCall OptionType = "CALL"
	OptionTypePut  OptionType = "PUT"
)

// Valid reports whether t is CALL or PUT.
func (t OptionType) Valid() bool {
	return t == OptionTypeCall || t == OptionTypePut
}

// Short returns the NSE instrument suffix (CE/PE).
func (t OptionType) Short() string {
	if t == OptionTypePut {
		return "PE"
	}
	return "CE"
}

// ParseOptionType accepts CALL/PUT as well as the exchange suffixes CE/PE.
func ParseOptionType(s string) (OptionType, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "CALL", "CE", "C":
		return OptionTypeCall, nil
	case "PUT", "PE", "P":
		return OptionTypePut, nil
	}
	return "", fmt.Errorf("invalid option type %q (must be CALL or PUT)", s)
}

// StrategyType is the closed set of strategy variants the factory can build.
type StrategyType int

const (
	StrategyCustom StrategyType = iota
	StrategyCalendar
	StrategyDiagonal
	StrategyDoubleCalendar
)

var strategyTypeNames = map[StrategyType]string{
	StrategyCustom:         "CUSTOM",
	StrategyCalendar:       "CALENDAR",
	StrategyDiagonal:       "DIAGONAL",
	StrategyDoubleCalendar: "DOUBLE_CALENDAR",
}

func (t StrategyType) String() string {
	if name, ok := strategyTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("StrategyType(%d)", int(t))
}

// MarshalText encodes the type by name so JSON output stays readable.
func (t StrategyType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText decodes a strategy type name.
func (t *StrategyType) UnmarshalText(b []byte) error {
	parsed, err := ParseStrategyType(string(b))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// ParseStrategyType parses a strategy type name. Dashes and case are ignored.
func ParseStrategyType(s string) (StrategyType, error) {
	name := strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(s), "-", "_"))
	for t, n := range strategyTypeNames {
		if n == name {
			return t, nil
		}
	}
	return StrategyCustom, fmt.Errorf("unknown strategy type %q (calendar, diagonal, double_calendar, custom)", s)
}

// OptionGreeks represents option Greeks.
// Theta is per calendar day and Vega per one volatility point.
type OptionGreeks struct {
	Delta float64 `json:"delta"`
	Gamma float64 `json:"gamma"`
	Theta float64 `json:"theta"`
	Vega  float64 `json:"vega"`
}

// Add returns the component-wise sum.
func (g OptionGreeks) Add(o OptionGreeks) OptionGreeks {
	return OptionGreeks{
		Delta: g.Delta + o.Delta,
		Gamma: g.Gamma + o.Gamma,
		Theta: g.Theta + o.Theta,
		Vega:  g.Vega + o.Vega,
	}
}

// Scale multiplies every Greek by f.
func (g OptionGreeks) Scale(f float64) OptionGreeks {
	return OptionGreeks{
		Delta: g.Delta * f,
		Gamma: g.Gamma * f,
		Theta: g.Theta * f,
		Vega:  g.Vega * f,
	}
}

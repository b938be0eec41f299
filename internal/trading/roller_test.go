package trading

import (
	"math"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	apperrors "options-backtester/internal/errors"
	"options-backtester/internal/models"
	"options-backtester/internal/options"
	"options-backtester/pkg/utils"
)

func shortCall(strike float64, expiry time.Time) options.OptionLeg {
	return options.OptionLeg{
		Type:         models.OptionTypeCall,
		Strike:       strike,
		Expiry:       expiry,
		Side:         models.OrderSideSell,
		Quantity:     50,
		EntryPremium: 200,
		EntryDate:    utils.Date(2026, 1, 1),
	}
}

func marketOn(price float64, date time.Time) options.MarketState {
	return options.NewMarketState(price, date, 0.20, 0.05)
}

func TestShouldRollBoundaries(t *testing.T) {
	r := NewRoller(nil, RollerConfig{})
	leg := shortCall(21800, utils.Date(2026, 2, 6))

	tests := []struct {
		date  time.Time
		want  bool
		state LegState
	}{
		{utils.Date(2026, 2, 2), false, LegOpen},       // dte 4
		{utils.Date(2026, 2, 3), true, LegPendingRoll}, // dte 3
		{utils.Date(2026, 2, 5), true, LegPendingRoll}, // dte 1
		{utils.Date(2026, 2, 6), false, LegExpired},    // dte 0
		{utils.Date(2026, 2, 7), false, LegExpired},    // dte -1
	}

	for _, tt := range tests {
		if got := r.ShouldRoll(leg, tt.date, 3); got != tt.want {
			t.Errorf("ShouldRoll on %s = %v, want %v", tt.date.Format(utils.DateLayout), got, tt.want)
		}
		if got := r.State(leg, tt.date, 3); got != tt.state {
			t.Errorf("State on %s = %s, want %s", tt.date.Format(utils.DateLayout), got, tt.state)
		}
	}

	if r.ShouldRoll(leg, utils.Date(2026, 2, 5), 0) {
		t.Error("Expected no roll with roll_days_before = 0")
	}
}

func TestExecuteRoll(t *testing.T) {
	r := NewRoller(nil, RollerConfig{RollFee: 40})
	leg := shortCall(21800, utils.Date(2026, 2, 5))
	ms := marketOn(21800, utils.Date(2026, 2, 3))

	next, event, err := r.ExecuteRoll(leg, ms, nil)
	if err != nil {
		t.Fatalf("ExecuteRoll failed: %v", err)
	}

	if !next.Expiry.Equal(utils.Date(2026, 2, 12)) {
		t.Errorf("Expected new expiry 2026-02-12, got %s", next.Expiry.Format(utils.DateLayout))
	}
	if next.Strike != leg.Strike || next.Type != leg.Type || next.Side != leg.Side || next.Quantity != leg.Quantity {
		t.Errorf("Expected same strike/type/side/qty, got %+v", next)
	}
	if !next.EntryDate.Equal(ms.CurrentDate) {
		t.Errorf("Expected entry date %s, got %s", ms.CurrentDate, next.EntryDate)
	}

	exitPrice := leg.Theoretical(ms)
	entryPrice := next.Theoretical(ms)
	if math.Abs(next.EntryPremium-entryPrice) > 1e-9 {
		t.Errorf("Expected entry premium %.4f, got %.4f", entryPrice, next.EntryPremium)
	}
	if entryPrice <= exitPrice {
		t.Errorf("Expected longer-dated premium %.2f above %.2f", entryPrice, exitPrice)
	}

	// Short leg: buy back at exit, sell the new leg at entry
	wantCost := (entryPrice-exitPrice)*50 - 40
	if math.Abs(event.RollCost-wantCost) > 1e-6 {
		t.Errorf("Expected roll cost %.4f, got %.4f", wantCost, event.RollCost)
	}
	if math.Abs(event.ExitPnL-leg.PnL(ms)) > 1e-9 {
		t.Errorf("Expected exit pnl %.4f, got %.4f", leg.PnL(ms), event.ExitPnL)
	}
	if event.Fee != 40 || event.LegIndex != -1 {
		t.Errorf("Unexpected event fields %+v", event)
	}
}

func TestExecuteRoll_LongLegCostsPremium(t *testing.T) {
	r := NewRoller(nil, RollerConfig{})
	leg := shortCall(21800, utils.Date(2026, 2, 5))
	leg.Side = models.OrderSideBuy
	ms := marketOn(21800, utils.Date(2026, 2, 3))

	_, event, err := r.ExecuteRoll(leg, ms, nil)
	if err != nil {
		t.Fatalf("ExecuteRoll failed: %v", err)
	}
	if event.RollCost >= 0 {
		t.Errorf("Expected net outflow for rolling a long leg out, got %.2f", event.RollCost)
	}
}

func TestExecuteRoll_Errors(t *testing.T) {
	r := NewRoller(nil, RollerConfig{})
	leg := shortCall(21800, utils.Date(2026, 2, 5))

	_, _, err := r.ExecuteRoll(leg, marketOn(21800, utils.Date(2026, 2, 5)), nil)
	if !apperrors.Is(err, apperrors.ErrInputValidation) {
		t.Errorf("Expected validation error for expired leg, got %v", err)
	}

	same := func(l options.OptionLeg, _ time.Time) (time.Time, error) { return l.Expiry, nil }
	_, _, err = r.ExecuteRoll(leg, marketOn(21800, utils.Date(2026, 2, 3)), same)
	if !apperrors.Is(err, apperrors.ErrNoAvailableExpiry) {
		t.Errorf("Expected ErrNoAvailableExpiry for unchanged expiry, got %v", err)
	}
}

func TestRollLeg_NoAvailableExpiry(t *testing.T) {
	cal := NewListedCalendar()
	cal.SetExpiries("NIFTY", []time.Time{utils.Date(2026, 2, 5)})
	r := NewRoller(cal, RollerConfig{Symbol: "NIFTY"})

	s, err := options.NewStrategy(models.StrategyCustom, "NIFTY", utils.Date(2026, 1, 1),
		shortCall(21800, utils.Date(2026, 2, 26)),
		shortCall(21800, utils.Date(2026, 2, 5)),
	)
	if err != nil {
		t.Fatalf("NewStrategy failed: %v", err)
	}
	before := s.Legs()

	_, err = r.RollLeg(s, 1, marketOn(21800, utils.Date(2026, 2, 3)))
	if apperrors.Kind(err) != "NoAvailableExpiryError" {
		t.Fatalf("Expected NoAvailableExpiryError, got %v", err)
	}
	var rollErr *apperrors.RollError
	if !apperrors.As(err, &rollErr) || rollErr.LegIndex != 1 {
		t.Errorf("Expected RollError for leg 1, got %v", err)
	}

	for i, leg := range s.Legs() {
		if leg != before[i] {
			t.Errorf("slot %d changed after failed roll", i)
		}
	}
}

func TestATMStrikePolicy(t *testing.T) {
	r := NewRoller(nil, RollerConfig{StrikePolicy: ATMStrike(50)})
	leg := shortCall(21800, utils.Date(2026, 2, 5))

	next, _, err := r.ExecuteRoll(leg, marketOn(21837, utils.Date(2026, 2, 3)), nil)
	if err != nil {
		t.Fatalf("ExecuteRoll failed: %v", err)
	}
	if next.Strike != 21850 {
		t.Errorf("Expected re-centered strike 21850, got %.0f", next.Strike)
	}
}

// TestProperty_RollReplacesOneSlot tests that rolling touches exactly one leg slot.
func TestProperty_RollReplacesOneSlot(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)
	r := NewRoller(nil, RollerConfig{RollFee: 20})
	date := utils.Date(2026, 2, 3)

	// Property: after RollLeg(i) slot i has a later expiry and every other slot is unchanged
	properties.Property("roll replaces exactly one slot", prop.ForAll(
		func(n int, pick int, price float64) bool {
			legs := make([]options.OptionLeg, n)
			for i := range legs {
				legs[i] = shortCall(21000+float64(i)*100, utils.Date(2026, 2, 5))
				if i%2 == 1 {
					legs[i].Type = models.OptionTypePut
					legs[i].Side = models.OrderSideBuy
				}
			}
			s, err := options.NewStrategy(models.StrategyCustom, "NIFTY", utils.Date(2026, 1, 1), legs...)
			if err != nil {
				return false
			}
			idx := pick % n
			before := s.Legs()

			event, err := r.RollLeg(s, idx, marketOn(price, date))
			if err != nil || event.LegIndex != idx {
				return false
			}

			after := s.Legs()
			if len(after) != n {
				return false
			}
			for i := range after {
				if i == idx {
					if !after[i].Expiry.After(before[i].Expiry) || after[i].Strike != before[i].Strike {
						return false
					}
					continue
				}
				if after[i] != before[i] {
					return false
				}
			}
			return true
		},
		gen.IntRange(2, 6),
		gen.IntRange(0, 100),
		gen.Float64Range(20000, 23000),
	))

	properties.TestingRun(t)
}

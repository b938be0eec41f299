package options

import (
	"math"
	"testing"
	"time"

	apperrors "options-backtester/internal/errors"
	"options-backtester/internal/models"
	"options-backtester/pkg/utils"
)

const (
	testVol  = 0.20
	testRate = 0.05
)

var (
	creation   = utils.Date(2026, 1, 1)
	nearExpiry = utils.Date(2026, 2, 6)
	farExpiry  = utils.Date(2026, 2, 27)
)

func calendarRequest() BuildRequest {
	return BuildRequest{
		Type:            models.StrategyCalendar,
		Symbol:          "NIFTY",
		UnderlyingPrice: 21800,
		Strike:          21800,
		NearExpiry:      nearExpiry,
		FarExpiry:       farExpiry,
		OptionType:      models.OptionTypeCall,
		Quantity:        50,
		CreationDate:    creation,
		Volatility:      testVol,
		RiskFreeRate:    testRate,
	}
}

func TestCalendar_ExpiryBreakdown(t *testing.T) {
	s, err := Build(calendarRequest())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	breakdown := s.ExpiryBreakdown()
	if len(breakdown) != 2 {
		t.Fatalf("expected 2 expiry keys, got %d", len(breakdown))
	}
	for _, exp := range []time.Time{nearExpiry, farExpiry} {
		legs, ok := breakdown[exp]
		if !ok {
			t.Fatalf("missing expiry %s", exp.Format(utils.DateLayout))
		}
		if len(legs) != 1 {
			t.Errorf("expiry %s: expected 1 leg, got %d", exp.Format(utils.DateLayout), len(legs))
		}
	}

	expiries := s.Expiries()
	if len(expiries) != 2 || !expiries[0].Equal(nearExpiry) || !expiries[1].Equal(farExpiry) {
		t.Errorf("Expiries() = %v", expiries)
	}
}

func TestCalendar_Shape(t *testing.T) {
	s, err := NewCalendar(calendarRequest())
	if err != nil {
		t.Fatalf("NewCalendar: %v", err)
	}

	if s.Type != models.StrategyCalendar || s.Len() != 2 {
		t.Fatalf("unexpected strategy %v with %d legs", s.Type, s.Len())
	}
	near, far := s.Leg(0), s.Leg(1)
	if near.Side != models.OrderSideSell || far.Side != models.OrderSideBuy {
		t.Errorf("default calendar should sell near and buy far, got %s/%s", near.Side, far.Side)
	}
	if near.Strike != far.Strike || near.Type != far.Type {
		t.Error("calendar legs must share strike and type")
	}
	if near.EntryPremium <= 0 || far.EntryPremium <= near.EntryPremium {
		t.Errorf("far premium should exceed near premium: near=%.2f far=%.2f", near.EntryPremium, far.EntryPremium)
	}
	if s.NetPremium() >= 0 {
		t.Errorf("long calendar is a net debit, got %.2f", s.NetPremium())
	}

	req := calendarRequest()
	req.NearSide = models.OrderSideBuy
	reversed, err := NewCalendar(req)
	if err != nil {
		t.Fatalf("reverse calendar: %v", err)
	}
	if reversed.Leg(0).Side != models.OrderSideBuy || reversed.Leg(1).Side != models.OrderSideSell {
		t.Error("reverse calendar should buy near and sell far")
	}
}

func TestCalendar_ATMStrike(t *testing.T) {
	req := calendarRequest()
	req.Strike = 0
	req.UnderlyingPrice = 21837

	s, err := NewCalendar(req)
	if err != nil {
		t.Fatalf("NewCalendar: %v", err)
	}
	if s.Leg(0).Strike != 21850 {
		t.Errorf("ATM strike = %.0f, want 21850", s.Leg(0).Strike)
	}
}

func TestDiagonal(t *testing.T) {
	req := calendarRequest()
	req.Type = models.StrategyDiagonal
	req.FarStrike = 22000

	s, err := Build(req)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if s.Leg(0).Strike == s.Leg(1).Strike {
		t.Error("diagonal strikes must differ")
	}
	if s.Leg(0).Expiry.Equal(s.Leg(1).Expiry) {
		t.Error("diagonal expiries must differ")
	}
	if s.Leg(0).Type != s.Leg(1).Type {
		t.Error("diagonal legs share option type")
	}

	req.FarStrike = 21800
	if _, err := Build(req); !apperrors.Is(err, apperrors.ErrInvalidStrike) {
		t.Errorf("equal strikes should be InvalidStrikeError, got %v", err)
	}
}

func TestDiagonal_ATMFarStrike(t *testing.T) {
	req := calendarRequest()
	req.Type = models.StrategyDiagonal
	req.UnderlyingPrice = 21837
	req.Strike = 21600
	req.FarStrike = 0

	s, err := Build(req)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if s.Leg(0).Strike != 21600 {
		t.Errorf("near strike = %.0f, want 21600", s.Leg(0).Strike)
	}
	if s.Leg(1).Strike != 21850 {
		t.Errorf("ATM far strike = %.0f, want 21850", s.Leg(1).Strike)
	}
}

func TestDoubleCalendar(t *testing.T) {
	req := calendarRequest()
	req.Type = models.StrategyDoubleCalendar

	s, err := Build(req)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if s.Len() != 4 {
		t.Fatalf("expected 4 legs, got %d", s.Len())
	}

	counts := map[models.OptionType]int{}
	for _, leg := range s.Legs() {
		counts[leg.Type]++
		if leg.Strike != 21800 {
			t.Errorf("ATM double calendar leg strike = %.0f", leg.Strike)
		}
	}
	if counts[models.OptionTypeCall] != 2 || counts[models.OptionTypePut] != 2 {
		t.Errorf("expected 2 calls and 2 puts, got %v", counts)
	}
	if len(s.ExpiryBreakdown()) != 2 {
		t.Error("double calendar spans two expiries")
	}
}

func TestFactory_Validation(t *testing.T) {
	tests := []struct {
		name string
		mod  func(*BuildRequest)
		kind error
	}{
		{"near after far", func(r *BuildRequest) { r.NearExpiry, r.FarExpiry = r.FarExpiry, r.NearExpiry }, apperrors.ErrInvalidExpiryOrder},
		{"same expiry", func(r *BuildRequest) { r.FarExpiry = r.NearExpiry }, apperrors.ErrInvalidExpiryOrder},
		{"expired at creation", func(r *BuildRequest) { r.CreationDate = r.NearExpiry }, apperrors.ErrInvalidExpiryOrder},
		{"negative strike", func(r *BuildRequest) { r.Strike = -100 }, apperrors.ErrInvalidStrike},
		{"zero quantity", func(r *BuildRequest) { r.Quantity = 0 }, apperrors.ErrInvalidQuantity},
		{"negative quantity", func(r *BuildRequest) { r.Quantity = -50 }, apperrors.ErrInvalidQuantity},
		{"diagonal ATM far strike equals near", func(r *BuildRequest) { r.Type = models.StrategyDiagonal }, apperrors.ErrInvalidStrike},
		{"diagonal negative far strike", func(r *BuildRequest) { r.Type, r.FarStrike = models.StrategyDiagonal, -100 }, apperrors.ErrInvalidStrike},
		{"custom negative strike", func(r *BuildRequest) {
			r.Type = models.StrategyCustom
			r.Legs = []OptionLeg{{Type: models.OptionTypeCall, Strike: -1, Expiry: nearExpiry, Side: models.OrderSideBuy, Quantity: 1}}
		}, apperrors.ErrInvalidStrike},
		{"custom zero quantity", func(r *BuildRequest) {
			r.Type = models.StrategyCustom
			r.Legs = []OptionLeg{{Type: models.OptionTypeCall, Strike: 21800, Expiry: nearExpiry, Side: models.OrderSideBuy}}
		}, apperrors.ErrInvalidQuantity},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := calendarRequest()
			tt.mod(&req)
			s, err := Build(req)
			if s != nil {
				t.Error("no strategy should be built on error")
			}
			if !apperrors.Is(err, tt.kind) {
				t.Errorf("expected %v, got %v", tt.kind, err)
			}
		})
	}
}

func TestLeg_PnLAtExpiryIsIntrinsic(t *testing.T) {
	tests := []struct {
		name   string
		strike float64
		want   float64
	}{
		{"ITM", 21600, 200},
		{"ATM", 21800, 0},
		{"OTM", 22000, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			leg := OptionLeg{
				Type: models.OptionTypeCall, Strike: tt.strike, Expiry: nearExpiry,
				Side: models.OrderSideBuy, Quantity: 1, EntryDate: creation,
			}
			ms := NewMarketState(21800, nearExpiry, testVol, testRate)

			if got := leg.PnL(ms); got != tt.want {
				t.Errorf("PnL at expiry = %g, want intrinsic %g", got, tt.want)
			}

			leg.EntryPremium = 75
			leg.Quantity = 50
			leg.Side = models.OrderSideSell
			want := (tt.want - 75) * 50 * -1
			if got := leg.PnL(ms); got != want {
				t.Errorf("short PnL at expiry = %g, want %g", got, want)
			}
		})
	}
}

func TestLeg_PnLBeforeExpiryUsesTheoretical(t *testing.T) {
	leg := OptionLeg{
		Type: models.OptionTypePut, Strike: 21800, Expiry: farExpiry,
		Side: models.OrderSideBuy, Quantity: 50, EntryPremium: 100, EntryDate: creation,
	}
	ms := NewMarketState(21800, creation, testVol, testRate)
	ms.ContractMultiplier = 2

	theo := leg.Quote(ms).Price
	if theo <= 0 {
		t.Fatalf("ATM put should have time value, got %g", theo)
	}
	want := (theo - 100) * 50 * 2
	if got := leg.PnL(ms); math.Abs(got-want) > 1e-9 {
		t.Errorf("PnL = %g, want %g", got, want)
	}
}

func TestLeg_GreeksScaledBySide(t *testing.T) {
	long := OptionLeg{Type: models.OptionTypeCall, Strike: 21800, Expiry: farExpiry, Side: models.OrderSideBuy, Quantity: 50}
	short := long
	short.Side = models.OrderSideSell
	ms := NewMarketState(21800, creation, testVol, testRate)

	unit := long.Quote(ms).Greeks
	lg, sg := long.Greeks(ms).Greeks, short.Greeks(ms).Greeks

	if math.Abs(lg.Delta-unit.Delta*50) > 1e-9 {
		t.Errorf("long delta = %g, want %g", lg.Delta, unit.Delta*50)
	}
	if lg.Add(sg) != (models.OptionGreeks{}) {
		t.Errorf("long + short should net to zero, got %+v", lg.Add(sg))
	}
}

func TestLeg_VolatilityResolution(t *testing.T) {
	leg := OptionLeg{Type: models.OptionTypeCall, Strike: 21800, Expiry: farExpiry, Side: models.OrderSideBuy, Quantity: 1}
	ms := NewMarketState(21800, creation, 0.15, testRate)

	if v := ms.VolatilityFor(leg); v != 0.15 {
		t.Errorf("default vol = %g", v)
	}
	ms.LegVolatility = map[string]float64{leg.ContractKey(): 0.18}
	if v := ms.VolatilityFor(leg); v != 0.18 {
		t.Errorf("market override vol = %g", v)
	}
	leg.ImpliedVol = 0.22
	if v := ms.VolatilityFor(leg); v != 0.22 {
		t.Errorf("leg override vol = %g", v)
	}
}

func TestLeg_DegenerateVolatilityAnnotated(t *testing.T) {
	leg := OptionLeg{Type: models.OptionTypeCall, Strike: 21800, Expiry: farExpiry, Side: models.OrderSideBuy, Quantity: 1}
	ms := NewMarketState(21800, creation, 0, testRate)

	s, err := NewStrategy(models.StrategyCustom, "NIFTY", creation, leg)
	if err != nil {
		t.Fatal(err)
	}
	pg := s.PortfolioGreeks(ms)
	if len(pg.Warnings) != 1 || pg.Warnings[0].LegIndex != 0 {
		t.Fatalf("expected one warning on leg 0, got %+v", pg.Warnings)
	}
	if math.IsNaN(pg.Delta) || math.IsNaN(s.PnL(ms)) {
		t.Error("fallback must never leak NaN")
	}
}

func TestStrategy_ReplaceLegTouchesOneSlot(t *testing.T) {
	req := calendarRequest()
	req.Type = models.StrategyDoubleCalendar
	s, err := Build(req)
	if err != nil {
		t.Fatal(err)
	}

	before := s.Legs()
	replacement := before[2].WithExpiry(utils.Date(2026, 3, 27), 180, creation)
	if err := s.ReplaceLeg(2, replacement); err != nil {
		t.Fatalf("ReplaceLeg: %v", err)
	}

	after := s.Legs()
	for i := range before {
		if i == 2 {
			if after[i] != replacement {
				t.Errorf("slot 2 = %+v, want replacement", after[i])
			}
			continue
		}
		if after[i] != before[i] {
			t.Errorf("sibling slot %d changed", i)
		}
	}

	if err := s.ReplaceLeg(4, replacement); err == nil {
		t.Error("out-of-range slot should fail")
	}
	bad := replacement
	bad.Quantity = 0
	if err := s.ReplaceLeg(1, bad); !apperrors.Is(err, apperrors.ErrInvalidQuantity) {
		t.Errorf("invalid replacement should fail validation, got %v", err)
	}
	if s.Leg(1) != before[1] {
		t.Error("failed replacement must leave the slot untouched")
	}
}

func TestStrategy_CloneIsIndependent(t *testing.T) {
	s, err := Build(calendarRequest())
	if err != nil {
		t.Fatal(err)
	}
	c := s.Clone()
	if err := c.ReplaceLeg(0, c.Leg(0).WithExpiry(utils.Date(2026, 2, 13), 90, creation)); err != nil {
		t.Fatal(err)
	}
	if !s.Leg(0).Expiry.Equal(nearExpiry) {
		t.Error("replacing a leg on the clone changed the original")
	}
}

func TestMaxProfitLoss_InvalidRange(t *testing.T) {
	s, err := Build(calendarRequest())
	if err != nil {
		t.Fatal(err)
	}

	for _, prices := range [][]float64{
		nil,
		{21800},
		{21800, 21800},
		{21900, 21800},
		{21700, 21800, 21750},
	} {
		if _, err := s.MaxProfitLoss(prices); !apperrors.Is(err, apperrors.ErrInvalidRange) {
			t.Errorf("%v: expected InvalidRangeError, got %v", prices, err)
		}
	}
}

func TestMaxProfitLoss_LongCall(t *testing.T) {
	leg := OptionLeg{
		Type: models.OptionTypeCall, Strike: 21800, Expiry: nearExpiry,
		Side: models.OrderSideBuy, Quantity: 1, EntryPremium: 100,
	}
	s, err := NewStrategy(models.StrategyCustom, "NIFTY", creation, leg)
	if err != nil {
		t.Fatal(err)
	}

	pa, err := s.MaxProfitLoss(PriceRange(21000, 23000, 51))
	if err != nil {
		t.Fatal(err)
	}

	if pa.MaxLoss != -100 {
		t.Errorf("max loss = %g, want -100", pa.MaxLoss)
	}
	if pa.MaxProfit != 1100 || pa.MaxProfitPrice != 23000 {
		t.Errorf("max profit = %g at %g, want 1100 at 23000", pa.MaxProfit, pa.MaxProfitPrice)
	}
	if len(pa.Breakevens) != 1 || math.Abs(pa.Breakevens[0]-21900) > 1e-6 {
		t.Errorf("breakevens = %v, want [21900]", pa.Breakevens)
	}
}

func TestMaxProfitLoss_ShortStraddleBreakevens(t *testing.T) {
	call := OptionLeg{Type: models.OptionTypeCall, Strike: 21800, Expiry: nearExpiry, Side: models.OrderSideSell, Quantity: 1, EntryPremium: 150}
	put := call
	put.Type = models.OptionTypePut
	s, err := NewStrategy(models.StrategyCustom, "NIFTY", creation, call, put)
	if err != nil {
		t.Fatal(err)
	}

	pa, err := s.MaxProfitLoss(PriceRange(21000, 22600, 41))
	if err != nil {
		t.Fatal(err)
	}
	if len(pa.Breakevens) != 2 {
		t.Fatalf("breakevens = %v, want two", pa.Breakevens)
	}
	if math.Abs(pa.Breakevens[0]-21500) > 1e-6 || math.Abs(pa.Breakevens[1]-22100) > 1e-6 {
		t.Errorf("breakevens = %v, want [21500 22100]", pa.Breakevens)
	}
	if pa.MaxProfit != 300 || pa.MaxProfitPrice != 21800 {
		t.Errorf("max profit = %g at %g", pa.MaxProfit, pa.MaxProfitPrice)
	}
}

func TestProjectedPnL_CalendarTent(t *testing.T) {
	s, err := Build(calendarRequest())
	if err != nil {
		t.Fatal(err)
	}

	ms := NewMarketState(21800, nearExpiry, testVol, testRate)
	pa, err := s.ProjectedPnL(PriceRange(20800, 22800, 41), ms)
	if err != nil {
		t.Fatal(err)
	}
	if pa.MaxProfitPrice != 21800 {
		t.Errorf("calendar peak should sit at the strike, got %g", pa.MaxProfitPrice)
	}
	if pa.MaxProfit <= 0 {
		t.Errorf("calendar should profit at the strike on near expiry, got %g", pa.MaxProfit)
	}
}

package riskrule

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/joripage/tradegate/pkg/ordmgmt"
	"github.com/joripage/tradegate/pkg/ordmgmt/model"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func buyOrder(symbol string) *model.Order {
	return &model.Order{Symbol: symbol, Side: model.OrderSideBuy, Type: model.OrderTypeLimit}
}

func TestMaxQtyRule(t *testing.T) {
	r := NewMaxQtyRule(d("100"))
	if err := r.Check(buyOrder("ABC"), d("10"), d("100")); err != nil {
		t.Errorf("qty at cap rejected: %v", err)
	}
	if err := r.Check(buyOrder("ABC"), d("10"), d("100.01")); err == nil {
		t.Error("qty above cap passed")
	}
	// zero cap disables the rule
	if err := NewMaxQtyRule(decimal.Zero).Check(buyOrder("ABC"), d("10"), d("1000000")); err != nil {
		t.Errorf("disabled cap rejected: %v", err)
	}
}

func TestLimitPriceRule(t *testing.T) {
	r := NewLimitPriceRule()
	r.SetBand("ABC", d("90"), d("110"))

	if err := r.Check(buyOrder("ABC"), d("110"), d("1")); err != nil {
		t.Errorf("price at ceil rejected: %v", err)
	}
	if err := r.Check(buyOrder("ABC"), d("110.5"), d("1")); err == nil {
		t.Error("price above ceil passed")
	}
	if err := r.Check(buyOrder("ABC"), d("89.99"), d("1")); err == nil {
		t.Error("price below floor passed")
	}
	// unbanded symbols pass
	if err := r.Check(buyOrder("XYZ"), d("1000"), d("1")); err != nil {
		t.Errorf("unbanded symbol rejected: %v", err)
	}
	// market orders have no price to band
	mkt := buyOrder("ABC")
	mkt.Type = model.OrderTypeMarket
	if err := r.Check(mkt, model.PxUnset, d("1")); err != nil {
		t.Errorf("market order rejected: %v", err)
	}
}

func TestTickSizeRuleBands(t *testing.T) {
	r := NewTickSizeRule(map[string][]TickBand{
		"ABC": {
			{MaxPrice: d("100"), Step: d("0.01")},
			{MaxPrice: decimal.Zero, Step: d("0.05")},
		},
	})

	if err := r.Check(buyOrder("ABC"), d("99.99"), d("1")); err != nil {
		t.Errorf("on-grid price rejected: %v", err)
	}
	if err := r.Check(buyOrder("ABC"), d("99.995"), d("1")); err == nil {
		t.Error("off-grid price passed")
	}
	// above 100 the coarser band applies
	if err := r.Check(buyOrder("ABC"), d("100.05"), d("1")); err != nil {
		t.Errorf("on-grid price rejected in upper band: %v", err)
	}
	if err := r.Check(buyOrder("ABC"), d("100.02"), d("1")); err == nil {
		t.Error("off-grid price passed in upper band")
	}
	if err := r.Check(buyOrder("XYZ"), d("1.2345"), d("1")); err != nil {
		t.Errorf("symbol without a grid rejected: %v", err)
	}
}

func TestManagerBooksExposure(t *testing.T) {
	m := NewManager()
	now := time.Now()

	buy := buyOrder("ABC")
	if err := m.OnOrder(buy, true, ordmgmt.QtyKindContracts, d("10"), d("100"), d("0"), d("0"), now); err != nil {
		t.Fatalf("OnOrder: %v", err)
	}
	if got := m.OpenQty("ABC"); !got.Equal(d("100")) {
		t.Errorf("open = %s, want 100", got)
	}

	// modify down to 60: delta -40
	if err := m.OnOrder(buy, true, ordmgmt.QtyKindContracts, d("10"), d("60"), d("10"), d("100"), now); err != nil {
		t.Fatalf("OnOrder modify: %v", err)
	}
	if got := m.OpenQty("ABC"); !got.Equal(d("60")) {
		t.Errorf("open = %s, want 60", got)
	}

	// a fill moves quantity from open into position
	m.OnTrade(&model.Execution{Symbol: "ABC", Side: model.OrderSideBuy, Qty: d("25")})
	if got := m.OpenQty("ABC"); !got.Equal(d("35")) {
		t.Errorf("open = %s, want 35", got)
	}
	if got := m.Position("ABC"); !got.Equal(d("25")) {
		t.Errorf("position = %s, want 25", got)
	}

	// sells book negative
	sell := &model.Order{Symbol: "ABC", Side: model.OrderSideSell, Type: model.OrderTypeLimit}
	if err := m.OnOrder(sell, true, ordmgmt.QtyKindContracts, d("10"), d("35"), d("0"), d("0"), now); err != nil {
		t.Fatalf("OnOrder sell: %v", err)
	}
	if got := m.OpenQty("ABC"); !got.IsZero() {
		t.Errorf("open = %s, want 0", got)
	}
}

func TestManagerVetoesPlacementOnly(t *testing.T) {
	m := NewManager(NewMaxQtyRule(d("50")))
	now := time.Now()
	buy := buyOrder("ABC")

	if err := m.OnOrder(buy, true, ordmgmt.QtyKindContracts, d("10"), d("100"), d("0"), d("0"), now); err == nil {
		t.Fatal("placement above cap passed")
	}
	// mid-flight bookings (old terms set) skip the pre-trade rules
	if err := m.OnOrder(buy, true, ordmgmt.QtyKindContracts, d("10"), d("100"), d("10"), d("80"), now); err != nil {
		t.Fatalf("mid-flight booking vetoed: %v", err)
	}
}

func TestBuildManagerFromConfig(t *testing.T) {
	tickFile := filepath.Join(t.TempDir(), "ticks.json")
	if err := os.WriteFile(tickFile, []byte(`{"ABC":[{"maxPrice":"0","step":"0.5"}]}`), 0o644); err != nil {
		t.Fatal(err)
	}
	m, err := BuildManager(&Config{
		MaxOrderQty:  d("100"),
		PriceBands:   map[string]BandConfig{"ABC": {Floor: d("90"), Ceil: d("110")}},
		TickSizeFile: tickFile,
	})
	if err != nil {
		t.Fatalf("BuildManager: %v", err)
	}
	now := time.Now()
	cases := []struct {
		name string
		px   string
		qty  string
		ok   bool
	}{
		{"clean", "100.5", "10", true},
		{"too big", "100.5", "101", false},
		{"outside band", "120", "10", false},
		{"off grid", "100.25", "10", false},
	}
	for _, tc := range cases {
		probe := buyOrder("ABC")
		err := m.OnOrder(probe, false, ordmgmt.QtyKindContracts, d(tc.px), d(tc.qty), d("0"), d("0"), now)
		if tc.ok && err != nil {
			t.Errorf("%s: rejected: %v", tc.name, err)
		}
		if !tc.ok && err == nil {
			t.Errorf("%s: passed", tc.name)
		}
	}
}

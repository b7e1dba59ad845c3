package riskrule

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/joripage/tradegate/pkg/ordmgmt"
	"github.com/joripage/tradegate/pkg/ordmgmt/model"
)

// Rule is one pre-trade check applied to the terms of a placement.
type Rule interface {
	Check(ord *model.Order, px, qty decimal.Decimal) error
}

// Manager is a rule-based risk manager: placements run through every rule,
// and exposure per symbol is tracked from the OnOrder/OnTrade flow. It
// satisfies the engine's RiskManager interface.
type Manager struct {
	mu    sync.Mutex
	rules []Rule
	log   *zap.Logger

	// openQty is the signed outstanding (live, unfilled) quantity per
	// symbol; position is the signed filled quantity.
	openQty  map[string]decimal.Decimal
	position map[string]decimal.Decimal
}

var _ ordmgmt.RiskManager = (*Manager)(nil)

func NewManager(rules ...Rule) *Manager {
	return &Manager{
		rules:    rules,
		log:      zap.L().Named("riskrule"),
		openQty:  make(map[string]decimal.Decimal),
		position: make(map[string]decimal.Decimal),
	}
}

func (m *Manager) AddRule(r Rule) { m.rules = append(m.rules, r) }

// OnOrder books the delta between the old and new outstanding terms. A
// placement (old terms zero) additionally runs the pre-trade rules and may
// veto the order.
func (m *Manager) OnOrder(ord *model.Order, isReal bool, _ ordmgmt.QtyKind,
	newPx, newQty, oldPx, oldQty decimal.Decimal, _ time.Time) error {

	m.mu.Lock()
	defer m.mu.Unlock()

	if oldQty.Sign() <= 0 {
		for _, r := range m.rules {
			if err := r.Check(ord, newPx, newQty); err != nil {
				return err
			}
		}
	}
	if !isReal {
		return nil
	}
	delta := newQty.Sub(maxZero(oldQty))
	if ord.Side == model.OrderSideSell {
		delta = delta.Neg()
	}
	m.openQty[ord.Symbol] = m.openQty[ord.Symbol].Add(delta)
	return nil
}

// OnTrade moves filled quantity from open exposure into position.
func (m *Manager) OnTrade(exec *model.Execution) {
	m.mu.Lock()
	defer m.mu.Unlock()

	qty := exec.Qty
	if exec.Side == model.OrderSideSell {
		qty = qty.Neg()
	}
	m.position[exec.Symbol] = m.position[exec.Symbol].Add(qty)
	m.openQty[exec.Symbol] = m.openQty[exec.Symbol].Sub(qty)
}

// Position returns the signed filled quantity for the symbol.
func (m *Manager) Position(symbol string) decimal.Decimal {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.position[symbol]
}

// OpenQty returns the signed live outstanding quantity for the symbol.
func (m *Manager) OpenQty(symbol string) decimal.Decimal {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.openQty[symbol]
}

func maxZero(d decimal.Decimal) decimal.Decimal {
	if d.Sign() < 0 {
		return decimal.Zero
	}
	return d
}

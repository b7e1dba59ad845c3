package riskrule

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/joripage/tradegate/pkg/ordmgmt/model"
)

type priceBand struct {
	Ceil  decimal.Decimal
	Floor decimal.Decimal
}

// LimitPriceRule rejects limit prices outside the configured band per symbol.
// Symbols without a band pass.
type LimitPriceRule struct {
	bands map[string]priceBand
}

func NewLimitPriceRule() *LimitPriceRule {
	return &LimitPriceRule{bands: make(map[string]priceBand)}
}

func (r *LimitPriceRule) SetBand(symbol string, floor, ceil decimal.Decimal) {
	r.bands[symbol] = priceBand{Ceil: ceil, Floor: floor}
}

func (r *LimitPriceRule) Check(ord *model.Order, px, _ decimal.Decimal) error {
	if ord.Type == model.OrderTypeMarket {
		return nil
	}
	band, ok := r.bands[ord.Symbol]
	if !ok {
		return nil
	}
	if px.GreaterThan(band.Ceil) || px.LessThan(band.Floor) {
		return fmt.Errorf("price limit violation: %s not in [%s, %s]",
			px, band.Floor, band.Ceil)
	}
	return nil
}

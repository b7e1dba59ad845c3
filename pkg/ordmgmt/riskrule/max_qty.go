package riskrule

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/joripage/tradegate/pkg/ordmgmt/model"
)

// MaxQtyRule caps the quantity of a single order.
type MaxQtyRule struct {
	maxQty decimal.Decimal
}

func NewMaxQtyRule(maxQty decimal.Decimal) *MaxQtyRule {
	return &MaxQtyRule{maxQty: maxQty}
}

func (r *MaxQtyRule) Check(_ *model.Order, _, qty decimal.Decimal) error {
	if r.maxQty.Sign() > 0 && qty.GreaterThan(r.maxQty) {
		return fmt.Errorf("qty %s exceeds per-order cap %s", qty, r.maxQty)
	}
	return nil
}

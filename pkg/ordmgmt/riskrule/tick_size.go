package riskrule

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/shopspring/decimal"

	"github.com/joripage/tradegate/pkg/ordmgmt/model"
)

type TickBand struct {
	MaxPrice decimal.Decimal `json:"maxPrice"` // zero = no upper bound
	Step     decimal.Decimal `json:"step"`
}

// TickSizeRule validates that a limit price sits on the venue's price grid;
// the grid may be banded (coarser ticks at higher prices).
type TickSizeRule struct {
	bands map[string][]TickBand
}

// NewTickSizeRuleFromFile loads the per-symbol bands from a JSON file.
func NewTickSizeRuleFromFile(path string) (*TickSizeRule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var bands map[string][]TickBand
	if err := json.Unmarshal(data, &bands); err != nil {
		return nil, err
	}
	return &TickSizeRule{bands: bands}, nil
}

func NewTickSizeRule(bands map[string][]TickBand) *TickSizeRule {
	return &TickSizeRule{bands: bands}
}

func (r *TickSizeRule) Check(ord *model.Order, px, _ decimal.Decimal) error {
	if ord.Type == model.OrderTypeMarket {
		return nil
	}
	bands, ok := r.bands[ord.Symbol]
	if !ok {
		return nil
	}
	for _, b := range bands {
		if b.MaxPrice.Sign() == 0 || px.LessThanOrEqual(b.MaxPrice) {
			if b.Step.Sign() <= 0 {
				return nil
			}
			if !px.Mod(b.Step).IsZero() {
				return fmt.Errorf("invalid tick size: %s not a multiple of %s", px, b.Step)
			}
			return nil
		}
	}
	return nil
}

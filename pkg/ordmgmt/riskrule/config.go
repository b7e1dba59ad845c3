package riskrule

import (
	"github.com/shopspring/decimal"
)

type BandConfig struct {
	Floor decimal.Decimal `yaml:"floor"`
	Ceil  decimal.Decimal `yaml:"ceil"`
}

type Config struct {
	// MaxOrderQty caps any single order; zero disables the cap.
	MaxOrderQty decimal.Decimal `yaml:"max_order_qty"`
	// PriceBands holds per-symbol limit-price bands.
	PriceBands map[string]BandConfig `yaml:"price_bands"`
	// TickSizeFile points at the per-symbol tick grid (JSON); empty skips
	// tick validation.
	TickSizeFile string `yaml:"tick_size_file"`
}

// BuildManager assembles a rule manager from config.
func BuildManager(cfg *Config) (*Manager, error) {
	m := NewManager()
	if cfg == nil {
		return m, nil
	}
	if cfg.MaxOrderQty.Sign() > 0 {
		m.AddRule(NewMaxQtyRule(cfg.MaxOrderQty))
	}
	if len(cfg.PriceBands) > 0 {
		lp := NewLimitPriceRule()
		for symbol, band := range cfg.PriceBands {
			lp.SetBand(symbol, band.Floor, band.Ceil)
		}
		m.AddRule(lp)
	}
	if cfg.TickSizeFile != "" {
		ts, err := NewTickSizeRuleFromFile(cfg.TickSizeFile)
		if err != nil {
			return nil, err
		}
		m.AddRule(ts)
	}
	return m, nil
}

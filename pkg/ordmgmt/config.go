package ordmgmt

import (
	"fmt"
	"time"

	"github.com/joripage/tradegate/pkg/ordmgmt/model"
)

// Config carries the venue-specific behaviour of the engine. The feature
// flags mirror what real venues differ in: whether a cancel-replace is a
// single wire message, whether part-filled orders can still be modified,
// whether exec ids are reliable for de-duplication, and so on.
type Config struct {
	Name string `yaml:"name"`

	// Arena capacities; exceeding them is a sizing error and panics.
	MaxOrders int `yaml:"max_orders"`
	MaxReqs   int `yaml:"max_reqs"`
	MaxExecs  int `yaml:"max_execs"`

	// Sliding-window request throttling.
	ThrottlingPeriodSec int `yaml:"throttling_period_sec"`
	MaxReqsPerPeriod    int `yaml:"max_reqs_per_period"`

	PipelineMode model.PipelineMode `yaml:"pipeline_mode"`

	// Venue capabilities.
	SendExchIDs         bool `yaml:"send_exch_ids"`
	UseExchIDMap        bool `yaml:"use_exch_id_map"`
	HasAtomicModify     bool `yaml:"has_atomic_modify"`
	HasPartFilledModify bool `yaml:"has_part_filled_modify"`
	HasExecIDs          bool `yaml:"has_exec_ids"`
	HasMktOrders        bool `yaml:"has_mkt_orders"`
	HasNativeMassCancel bool `yaml:"has_native_mass_cancel"`
	CancelsNotThrottled bool `yaml:"cancels_not_throttled"`

	// Relaxed downgrades protocol-inconsistency errors to warnings and
	// continues with the best available match.
	Relaxed bool `yaml:"relaxed"`

	// Period of the indication retry timer.
	IndicationRetryMs int64 `yaml:"indication_retry_ms"`
}

func (c *Config) Validate() error {
	if c.MaxOrders <= 0 || c.MaxReqs < c.MaxOrders || c.MaxExecs <= 0 {
		return fmt.Errorf("config %s: must have 0 < MaxOrders <= MaxReqs, 0 < MaxExecs", c.Name)
	}
	if c.ThrottlingPeriodSec <= 0 || c.MaxReqsPerPeriod < 0 {
		return fmt.Errorf("config %s: invalid throttling params: period=%ds, maxReqs=%d",
			c.Name, c.ThrottlingPeriodSec, c.MaxReqsPerPeriod)
	}
	if c.PipelineMode == model.PipelineWait0 && c.SendExchIDs {
		return fmt.Errorf("config %s: Wait0 pipelining incompatible with SendExchIDs", c.Name)
	}
	if c.PipelineMode == model.PipelineWait2 && c.HasAtomicModify {
		return fmt.Errorf("config %s: Wait2 pipelining incompatible with HasAtomicModify", c.Name)
	}
	if c.IndicationRetryMs <= 0 {
		c.IndicationRetryMs = 100
	}
	return nil
}

// IndicationRetry is the period of the retry timer that re-attempts parked
// indications.
func (c *Config) IndicationRetry() time.Duration {
	return time.Duration(c.IndicationRetryMs) * time.Millisecond
}

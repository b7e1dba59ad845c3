package main

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/shopspring/decimal"

	"github.com/joripage/tradegate/pkg/logging"
	"github.com/joripage/tradegate/pkg/ordmgmt"
	"github.com/joripage/tradegate/pkg/ordmgmt/model"
	"github.com/joripage/tradegate/pkg/ordmgmt/statestore"
)

const (
	numOrders = 1_000_000
	minPrice  = 100
	maxPrice  = 200
	minQty    = 1
	maxQty    = 100
)

// nullProto accepts every request instantly; the benchmark measures the
// engine itself, not a wire.
type nullProto struct{}

func (nullProto) NewOrder(_ context.Context, _ *model.Order, _ *model.Request) error { return nil }
func (nullProto) CancelOrder(_ context.Context, _ *model.Order, _, _ *model.Request) error {
	return nil
}
func (nullProto) ModifyOrder(_ context.Context, _ *model.Order, _, _ *model.Request) error {
	return nil
}
func (nullProto) CancelAllOrders(_ context.Context, _ model.OrderSide, _, _ string) error {
	return nil
}
func (nullProto) FlushOrders(_ context.Context) (time.Time, error) { return time.Now(), nil }
func (nullProto) IsActive() bool                                   { return true }

func randomOrder() *model.PlaceOrder {
	side := model.OrderSideBuy
	if rand.Intn(2) == 0 {
		side = model.OrderSideSell
	}
	px := minPrice + rand.Float64()*(maxPrice-minPrice)
	qty := int64(rand.Intn(maxQty-minQty+1) + minQty)

	return &model.PlaceOrder{
		Symbol:      "ABC",
		Side:        side,
		Type:        model.OrderTypeLimit,
		TimeInForce: model.OrderTimeInForceDAY,
		Px:          decimal.NewFromFloat(px).Round(2),
		Qty:         decimal.NewFromInt(qty),
		QtyShow:     decimal.Zero,
		QtyMin:      decimal.Zero,
	}
}

func main() {
	if _, err := logging.Init("warn"); err != nil {
		panic(err)
	}

	cfg := &ordmgmt.Config{
		Name:                "benchmark",
		MaxOrders:           numOrders + 1,
		MaxReqs:             2 * (numOrders + 1),
		MaxExecs:            numOrders + 1,
		ThrottlingPeriodSec: 1,
		MaxReqsPerPeriod:    0, // no throttling
		PipelineMode:        model.PipelineWait1,
		HasAtomicModify:     true,
		HasPartFilledModify: true,
		HasExecIDs:          true,
	}

	engine, err := ordmgmt.NewEngine(cfg, nullProto{})
	if err != nil {
		panic(err)
	}

	ctx := context.Background()
	if err := engine.Start(ctx, statestore.State{}); err != nil {
		panic(err)
	}
	defer engine.Stop()

	start := time.Now()
	var placed, cancelled int
	for i := 0; i < numOrders; i++ {
		ord, err := engine.Place(ctx, randomOrder())
		if err != nil {
			panic(err)
		}
		placed++
		if i%2 == 0 {
			if ok, _ := engine.Cancel(ctx, ord.ID); ok {
				cancelled++
			}
		}
	}
	elapsed := time.Since(start)

	fmt.Printf("placed %d orders (%d cancel attempts) in %v\n", placed, cancelled, elapsed)
	fmt.Printf("throughput: %.0f ops/sec\n", float64(placed+cancelled)/elapsed.Seconds())
}

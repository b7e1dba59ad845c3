package fixgateway

import (
	"context"
	"testing"
	"time"

	"github.com/quickfixgo/enum"
	"github.com/quickfixgo/field"
	"github.com/quickfixgo/fix44/executionreport"
	"github.com/quickfixgo/quickfix"
	"github.com/quickfixgo/tag"
	"github.com/shopspring/decimal"

	"github.com/joripage/tradegate/pkg/ordmgmt"
	"github.com/joripage/tradegate/pkg/ordmgmt/model"
	"github.com/joripage/tradegate/pkg/ordmgmt/statestore"
)

func TestClOrdIDRoundTrip(t *testing.T) {
	for _, id := range []model.ReqID{1, 42, 18_446_744_073_709_551_615} {
		if got := parseClOrdID(clOrdID(id)); got != id {
			t.Errorf("round trip %d -> %d", id, got)
		}
	}
	if got := parseClOrdID("not-a-number"); got != 0 {
		t.Errorf("parseClOrdID garbage = %d, want 0", got)
	}
	if got := parseClOrdID(""); got != 0 {
		t.Errorf("parseClOrdID empty = %d, want 0", got)
	}
}

func TestRejReasonCode(t *testing.T) {
	if got := rejReasonCode(enum.OrdRejReason_UNKNOWN_SYMBOL); got != 1 {
		t.Errorf("unknown symbol = %d, want 1", got)
	}
	if got := rejReasonCode(enum.OrdRejReason("")); got != 0 {
		t.Errorf("empty reason = %d, want 0", got)
	}
}

func TestEnumMappingsCoverModel(t *testing.T) {
	for _, s := range []model.OrderSide{model.OrderSideBuy, model.OrderSideSell} {
		if _, ok := sideMapping[s]; !ok {
			t.Errorf("side %q has no wire mapping", s)
		}
	}
	for _, typ := range []model.OrderType{model.OrderTypeLimit, model.OrderTypeMarket, model.OrderTypeStop} {
		if _, ok := ordTypeMapping[typ]; !ok {
			t.Errorf("order type %q has no wire mapping", typ)
		}
	}
	for _, tif := range []model.OrderTimeInForce{
		model.OrderTimeInForceDAY, model.OrderTimeInForceIOC, model.OrderTimeInForceFOK,
		model.OrderTimeInForceGTC, model.OrderTimeInForceGTD,
	} {
		if _, ok := tifMapping[tif]; !ok {
			t.Errorf("tif %q has no wire mapping", tif)
		}
	}
}

func TestTradeReportHints(t *testing.T) {
	leaves := decimal.RequireFromString("6")
	msg := executionreport.New(
		field.NewOrderID("X1"),
		field.NewExecID("E1"),
		field.NewExecType(enum.ExecType_TRADE),
		field.NewOrdStatus(enum.OrdStatus_PARTIALLY_FILLED),
		field.NewSide(enum.Side_BUY),
		field.NewLeavesQty(leaves, 2),
		field.NewCumQty(decimal.RequireFromString("4"), 2),
		field.NewAvgPx(decimal.RequireFromString("100"), 2),
	)
	msg.SetLastQty(decimal.RequireFromString("4"), 2)
	msg.SetLastPx(decimal.RequireFromString("100.5"), 2)

	now := time.Now()
	app := &Application{}
	rep := app.tradeReport(msg, 7, "X1", now, now)

	if rep.ReqID != 7 || rep.ExchID != "X1" || rep.ExecID != "E1" {
		t.Errorf("ids = %d/%q/%q", rep.ReqID, rep.ExchID, rep.ExecID)
	}
	if !rep.Qty.Equal(decimal.RequireFromString("4")) || !rep.Px.Equal(decimal.RequireFromString("100.5")) {
		t.Errorf("qty/px = %s/%s", rep.Qty, rep.Px)
	}
	if rep.LeavesHint == nil || !rep.LeavesHint.Equal(leaves) {
		t.Errorf("leaves hint = %v, want 6", rep.LeavesHint)
	}
	if rep.FilledHint != ordmgmt.TriFalse {
		t.Errorf("filled hint = %v, want TriFalse on a partial", rep.FilledHint)
	}
}

func TestTradeReportFilledStatus(t *testing.T) {
	msg := executionreport.New(
		field.NewOrderID("X1"),
		field.NewExecID("E2"),
		field.NewExecType(enum.ExecType_TRADE),
		field.NewOrdStatus(enum.OrdStatus_FILLED),
		field.NewSide(enum.Side_BUY),
		field.NewLeavesQty(decimal.Zero, 2),
		field.NewCumQty(decimal.RequireFromString("10"), 2),
		field.NewAvgPx(decimal.RequireFromString("100"), 2),
	)
	msg.SetLastQty(decimal.RequireFromString("6"), 2)
	msg.SetLastPx(decimal.RequireFromString("100"), 2)

	now := time.Now()
	rep := (&Application{}).tradeReport(msg, 8, "X1", now, now)
	if rep.FilledHint != ordmgmt.TriTrue {
		t.Errorf("filled hint = %v, want TriTrue", rep.FilledHint)
	}
	if rep.LeavesHint == nil || !rep.LeavesHint.IsZero() {
		t.Errorf("leaves hint = %v, want 0", rep.LeavesHint)
	}
}

type sinkProto struct{}

func (sinkProto) NewOrder(_ context.Context, _ *model.Order, _ *model.Request) error { return nil }
func (sinkProto) CancelOrder(_ context.Context, _ *model.Order, _, _ *model.Request) error {
	return nil
}
func (sinkProto) ModifyOrder(_ context.Context, _ *model.Order, _, _ *model.Request) error {
	return nil
}
func (sinkProto) CancelAllOrders(_ context.Context, _ model.OrderSide, _, _ string) error {
	return nil
}
func (sinkProto) FlushOrders(_ context.Context) (time.Time, error) { return time.Now(), nil }
func (sinkProto) IsActive() bool                                   { return true }

func TestRoutingKeyFollowsOrder(t *testing.T) {
	cfg := &ordmgmt.Config{
		Name:                "routing",
		MaxOrders:           8,
		MaxReqs:             32,
		MaxExecs:            32,
		ThrottlingPeriodSec: 1,
		PipelineMode:        model.PipelineWait0,
		HasAtomicModify:     true,
		HasPartFilledModify: true,
		HasExecIDs:          true,
	}
	eng, err := ordmgmt.NewEngine(cfg, sinkProto{})
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	ctx := context.Background()
	if err := eng.Start(ctx, statestore.State{}); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(eng.Stop)

	ord, err := eng.Place(ctx, &model.PlaceOrder{
		Symbol:      "ABC",
		Side:        model.OrderSideBuy,
		Type:        model.OrderTypeLimit,
		TimeInForce: model.OrderTimeInForceDAY,
		Px:          decimal.RequireFromString("100"),
		Qty:         decimal.RequireFromString("10"),
	})
	if err != nil {
		t.Fatalf("Place: %v", err)
	}
	if ok, err := eng.Modify(ctx, ord.ID,
		decimal.RequireFromString("101"), decimal.RequireFromString("12"),
		decimal.Zero, decimal.Zero); err != nil || !ok {
		t.Fatalf("Modify = %v, %v", ok, err)
	}

	app := &Application{gateway: &FixGateway{engine: eng}}
	sessionID := quickfix.SessionID{BeginString: "FIX.4.4", SenderCompID: "A", TargetCompID: "B"}

	report := func(mut func(*quickfix.Message)) string {
		msg := quickfix.NewMessage()
		msg.Header.SetString(tag.MsgType, "8")
		mut(msg)
		return app.getRoutingKey(msg, sessionID)
	}

	// every request of the order maps to one shard key
	first := report(func(m *quickfix.Message) { m.Body.SetString(tag.ClOrdID, clOrdID(ord.FirstReq)) })
	last := report(func(m *quickfix.Message) { m.Body.SetString(tag.ClOrdID, clOrdID(ord.LastReq)) })
	if first != last {
		t.Errorf("keys differ across requests of one order: %q vs %q", first, last)
	}

	// an unknown ClOrdID still resolves through OrigClOrdID
	viaOrig := report(func(m *quickfix.Message) {
		m.Body.SetString(tag.ClOrdID, "999999")
		m.Body.SetString(tag.OrigClOrdID, clOrdID(ord.FirstReq))
	})
	if viaOrig != first {
		t.Errorf("OrigClOrdID key = %q, want %q", viaOrig, first)
	}

	// no request of ours: fall back to the venue order id
	venue := report(func(m *quickfix.Message) {
		m.Body.SetString(tag.ClOrdID, "999999")
		m.Body.SetString(tag.OrderID, "X7")
	})
	if venue != "X7" {
		t.Errorf("key = %q, want venue OrderID fallback", venue)
	}

	if got := report(func(*quickfix.Message) {}); got != "MSGTYPE:8" {
		t.Errorf("key = %q, want msg type fallback", got)
	}

	msg := quickfix.NewMessage()
	if got := app.getRoutingKey(msg, sessionID); got != sessionID.String() {
		t.Errorf("key = %q, want session fallback", got)
	}
}

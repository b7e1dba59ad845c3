package fixgateway

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/quickfixgo/enum"
	"github.com/quickfixgo/field"
	"github.com/quickfixgo/fix44/newordersingle"
	"github.com/quickfixgo/fix44/ordercancelreplacerequest"
	"github.com/quickfixgo/fix44/ordercancelrequest"
	"github.com/quickfixgo/fix44/ordermasscancelrequest"
	"github.com/quickfixgo/quickfix"
	"go.uber.org/zap"

	"github.com/joripage/tradegate/pkg/ordmgmt"
	"github.com/joripage/tradegate/pkg/ordmgmt/model"
)

// FixGateway is the FIX 4.4 rendition of the ProtoEngine: it serializes the
// engine's requests into NewOrderSingle / OrderCancelRequest /
// OrderCancelReplaceRequest messages and feeds venue ExecutionReports back
// into the engine's reconciliation handlers.
type FixGateway struct {
	cfg       *FixGatewayConfig
	app       *Application
	engine    *ordmgmt.Engine
	initiator *quickfix.Initiator
	log       *zap.Logger

	sessionID quickfix.SessionID
	loggedOn  atomic.Bool
}

type FixGatewayConfig struct {
	ConfigFilepath string `yaml:"config_filepath"`
	// Account is stamped on every outbound order message.
	Account string `yaml:"account"`
}

func NewFixGateway(cfg *FixGatewayConfig) *FixGateway {
	return &FixGateway{
		cfg: cfg,
		log: zap.L().Named("fixgateway"),
	}
}

// AddEngineInstance wires the reconciliation target; must be called before
// Start.
func (g *FixGateway) AddEngineInstance(e *ordmgmt.Engine) {
	g.engine = e
}

func (g *FixGateway) Start(ctx context.Context) error {
	if g.engine == nil {
		return fmt.Errorf("fixgateway: no engine instance")
	}
	app, initiator, err := startApp(g.cfg.ConfigFilepath, g)
	if err != nil {
		g.log.Error("start initiator failed", zap.Error(err))
		return err
	}
	g.app = app
	g.initiator = initiator
	return nil
}

func (g *FixGateway) Stop() {
	if g.initiator != nil {
		g.initiator.Stop()
	}
	if g.app != nil {
		g.app.stop()
	}
}

var _ ordmgmt.ProtoEngine = (*FixGateway)(nil)

func (g *FixGateway) IsActive() bool { return g.loggedOn.Load() }

func (g *FixGateway) NewOrder(_ context.Context, ord *model.Order, req *model.Request) error {
	msg := newordersingle.New(
		field.NewClOrdID(clOrdID(req.ID)),
		field.NewSide(sideMapping[ord.Side]),
		field.NewTransactTime(time.Now().UTC()),
		field.NewOrdType(ordTypeMapping[ord.Type]),
	)
	msg.SetSymbol(ord.Symbol)
	msg.SetOrderQty(req.Qty, 0)
	if model.IsPxSet(req.Px) {
		msg.SetPrice(req.Px, 8)
	}
	if tif, ok := tifMapping[ord.TimeInForce]; ok {
		msg.SetTimeInForce(tif)
	}
	if ord.TimeInForce == model.OrderTimeInForceGTD && !ord.ExpireDate.IsZero() {
		msg.SetExpireDate(ord.ExpireDate.Format("20060102"))
	}
	if req.IsIceberg() {
		msg.SetMaxFloor(req.QtyShow, 0)
	}
	if req.QtyMin.Sign() > 0 {
		msg.SetMinQty(req.QtyMin, 0)
	}
	if g.cfg.Account != "" {
		msg.SetAccount(g.cfg.Account)
	}
	return quickfix.SendToTarget(msg, g.sessionID)
}

func (g *FixGateway) CancelOrder(_ context.Context, ord *model.Order, req, target *model.Request) error {
	origID := req.OrigID
	if target != nil {
		origID = target.ID
	}
	msg := ordercancelrequest.New(
		field.NewOrigClOrdID(clOrdID(origID)),
		field.NewClOrdID(clOrdID(req.ID)),
		field.NewSide(sideMapping[ord.Side]),
		field.NewTransactTime(time.Now().UTC()),
	)
	msg.SetSymbol(ord.Symbol)
	if target != nil && target.ExchID != "" {
		msg.SetOrderID(target.ExchID)
	}
	return quickfix.SendToTarget(msg, g.sessionID)
}

func (g *FixGateway) ModifyOrder(_ context.Context, ord *model.Order, req, target *model.Request) error {
	origID := req.OrigID
	if target != nil {
		origID = target.ID
	}
	msg := ordercancelreplacerequest.New(
		field.NewOrigClOrdID(clOrdID(origID)),
		field.NewClOrdID(clOrdID(req.ID)),
		field.NewSide(sideMapping[ord.Side]),
		field.NewTransactTime(time.Now().UTC()),
		field.NewOrdType(ordTypeMapping[ord.Type]),
	)
	msg.SetSymbol(ord.Symbol)
	msg.SetOrderQty(req.Qty, 0)
	if model.IsPxSet(req.Px) {
		msg.SetPrice(req.Px, 8)
	}
	if target != nil && target.ExchID != "" {
		msg.SetOrderID(target.ExchID)
	}
	return quickfix.SendToTarget(msg, g.sessionID)
}

func (g *FixGateway) CancelAllOrders(_ context.Context, _ model.OrderSide, symbol, _ string) error {
	typ := enum.MassCancelRequestType_CANCEL_ALL_ORDERS
	if symbol != "" {
		typ = enum.MassCancelRequestType_CANCEL_ORDERS_FOR_A_SECURITY
	}
	msg := ordermasscancelrequest.New(
		field.NewClOrdID(fmt.Sprintf("MC-%d", time.Now().UnixNano())),
		field.NewMassCancelRequestType(typ),
		field.NewTransactTime(time.Now().UTC()),
	)
	if symbol != "" {
		msg.SetSymbol(symbol)
	}
	return quickfix.SendToTarget(msg, g.sessionID)
}

// FlushOrders is a no-op for FIX: quickfix writes each message out as it is
// queued, so the send time is simply now.
func (g *FixGateway) FlushOrders(_ context.Context) (time.Time, error) {
	return time.Now(), nil
}

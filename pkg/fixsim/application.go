package fixsim

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strconv"
	"sync"

	"github.com/joripage/go_util/pkg/shardqueue"
	"github.com/quickfixgo/enum"
	"github.com/quickfixgo/field"
	"github.com/quickfixgo/fix44/executionreport"
	"github.com/quickfixgo/fix44/newordersingle"
	"github.com/quickfixgo/fix44/ordercancelreject"
	"github.com/quickfixgo/fix44/ordercancelreplacerequest"
	"github.com/quickfixgo/fix44/ordercancelrequest"
	"github.com/quickfixgo/quickfix"
	"github.com/quickfixgo/quickfix/log/file"
	"github.com/quickfixgo/tag"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	numShards = 16
	queueSize = 1_000_000

	qtyScale = 2
	pxScale  = 6
)

// simOrder is a resting order on the simulated venue.
type simOrder struct {
	orderID string
	clOrdID string
	symbol  string
	side    enum.Side
	px      decimal.Decimal
	qty     decimal.Decimal
	cumQty  decimal.Decimal
	done    bool
}

// Application implements quickfix.Application for the acceptor side.
// Inbound order flow is sharded by ClOrdID before handling.
type Application struct {
	*quickfix.MessageRouter
	behaviour  Behaviour
	acceptor   *quickfix.Acceptor
	shardQueue *shardqueue.Shardqueue

	mu       sync.Mutex
	orders   map[string]*simOrder // by ClOrdID, re-pointed on replace
	orderSeq uint64
	execSeq  uint64
	recvSeq  uint64
}

type inboundMsg struct {
	msg       *quickfix.Message
	sessionID quickfix.SessionID
}

func newApplication(behaviour Behaviour) *Application {
	app := &Application{
		MessageRouter: quickfix.NewMessageRouter(),
		behaviour:     behaviour,
		orders:        make(map[string]*simOrder),
	}

	app.AddRoute(newordersingle.Route(app.onNewOrderSingle))
	app.AddRoute(ordercancelrequest.Route(app.onOrderCancelRequest))
	app.AddRoute(ordercancelreplacerequest.Route(app.onOrderCancelReplaceRequest))

	app.shardQueue = shardqueue.NewShardQueue(numShards, queueSize)
	app.shardQueue.Start(func(msg interface{}) error {
		if v, ok := msg.(*inboundMsg); ok {
			if err := app.Route(v.msg, v.sessionID); err != nil {
				zap.S().Warnf("route inbound message fail: %v", err)
			}
		}
		return nil
	})

	return app
}

func startApp(configFilepath string, behaviour Behaviour) (*Application, error) {
	cfg, err := os.Open(configFilepath)
	if err != nil {
		return nil, fmt.Errorf("error opening %v, %v", configFilepath, err)
	}
	defer cfg.Close() // nolint

	stringData, readErr := io.ReadAll(cfg)
	if readErr != nil {
		return nil, fmt.Errorf("error reading cfg: %s,", readErr)
	}

	appSettings, err := quickfix.ParseSettings(bytes.NewReader(stringData))
	if err != nil {
		return nil, fmt.Errorf("error reading cfg: %s,", err)
	}

	app := newApplication(behaviour)

	logFactory, _ := file.NewLogFactory(appSettings)
	acceptor, err := quickfix.NewAcceptor(app, quickfix.NewMemoryStoreFactory(), appSettings, logFactory)
	if err != nil {
		return nil, fmt.Errorf("unable to create acceptor: %s", err)
	}
	if err := acceptor.Start(); err != nil {
		return nil, fmt.Errorf("unable to start FIX acceptor: %s", err)
	}
	app.acceptor = acceptor
	return app, nil
}

func stopApp(app *Application) {
	if app.acceptor != nil {
		app.acceptor.Stop()
	}
}

// OnCreate implemented as part of Application interface
func (a *Application) OnCreate(sessionID quickfix.SessionID) {}

// OnLogon implemented as part of Application interface
func (a *Application) OnLogon(sessionID quickfix.SessionID) {
	zap.S().Infof("logon session=%s", sessionID)
}

// OnLogout implemented as part of Application interface
func (a *Application) OnLogout(sessionID quickfix.SessionID) {
	zap.S().Infof("logout session=%s", sessionID)
}

// ToAdmin implemented as part of Application interface
func (a *Application) ToAdmin(msg *quickfix.Message, sessionID quickfix.SessionID) {}

// ToApp implemented as part of Application interface
func (a *Application) ToApp(msg *quickfix.Message, sessionID quickfix.SessionID) error {
	return nil
}

// FromAdmin implemented as part of Application interface
func (a *Application) FromAdmin(msg *quickfix.Message, sessionID quickfix.SessionID) quickfix.MessageRejectError {
	return nil
}

// FromApp implemented as part of Application interface, uses Router on incoming application messages
func (a *Application) FromApp(msg *quickfix.Message, sessionID quickfix.SessionID) (reject quickfix.MessageRejectError) {
	a.shardQueue.Shard(getRoutingKey(msg, sessionID), &inboundMsg{msg, sessionID})
	return nil
}

func getRoutingKey(msg *quickfix.Message, sessionID quickfix.SessionID) string {
	if clOrdID, err := msg.Body.GetString(tag.ClOrdID); err == nil && clOrdID != "" {
		return clOrdID
	}
	if msgType, err := msg.Header.GetString(tag.MsgType); err == nil {
		return "MSGTYPE:" + msgType
	}
	return sessionID.String()
}

func (a *Application) onNewOrderSingle(msg newordersingle.NewOrderSingle, sessionID quickfix.SessionID) quickfix.MessageRejectError {
	clOrdID, err := msg.GetClOrdID()
	if err != nil {
		return err
	}
	symbol, err := msg.GetSymbol()
	if err != nil {
		return err
	}
	side, err := msg.GetSide()
	if err != nil {
		return err
	}
	qty, err := msg.GetOrderQty()
	if err != nil {
		return err
	}
	px, _ := msg.GetPrice()

	a.mu.Lock()
	a.recvSeq++
	n := a.recvSeq
	a.orderSeq++
	ord := &simOrder{
		orderID: strconv.FormatUint(a.orderSeq, 10),
		clOrdID: clOrdID,
		symbol:  symbol,
		side:    side,
		px:      px,
		qty:     qty,
	}
	a.orders[clOrdID] = ord
	a.mu.Unlock()

	if a.behaviour.RejectEveryNth > 0 && n%uint64(a.behaviour.RejectEveryNth) == 0 {
		a.mu.Lock()
		ord.done = true
		a.mu.Unlock()
		a.sendReport(sessionID, ord, enum.ExecType_REJECTED, enum.OrdStatus_REJECTED, decimal.Zero, decimal.Zero)
		return nil
	}

	a.sendReport(sessionID, ord, enum.ExecType_PENDING_NEW, enum.OrdStatus_PENDING_NEW, decimal.Zero, decimal.Zero)
	a.sendReport(sessionID, ord, enum.ExecType_NEW, enum.OrdStatus_NEW, decimal.Zero, decimal.Zero)

	if a.behaviour.FillQty.Sign() > 0 {
		a.fill(sessionID, ord, decimal.Min(a.behaviour.FillQty, qty))
	}
	return nil
}

func (a *Application) onOrderCancelRequest(msg ordercancelrequest.OrderCancelRequest, sessionID quickfix.SessionID) quickfix.MessageRejectError {
	clOrdID, err := msg.GetClOrdID()
	if err != nil {
		return err
	}
	origClOrdID, err := msg.GetOrigClOrdID()
	if err != nil {
		return err
	}

	a.mu.Lock()
	ord, ok := a.orders[origClOrdID]
	if ok && !ord.done {
		ord.done = true
	} else {
		ok = false
	}
	a.mu.Unlock()

	if !ok {
		a.sendCancelReject(sessionID, clOrdID, origClOrdID, enum.CxlRejResponseTo_ORDER_CANCEL_REQUEST)
		return nil
	}
	a.sendCancelled(sessionID, ord, clOrdID)
	return nil
}

func (a *Application) onOrderCancelReplaceRequest(msg ordercancelreplacerequest.OrderCancelReplaceRequest, sessionID quickfix.SessionID) quickfix.MessageRejectError {
	clOrdID, err := msg.GetClOrdID()
	if err != nil {
		return err
	}
	origClOrdID, err := msg.GetOrigClOrdID()
	if err != nil {
		return err
	}
	qty, err := msg.GetOrderQty()
	if err != nil {
		return err
	}
	px, _ := msg.GetPrice()

	a.mu.Lock()
	orig, ok := a.orders[origClOrdID]
	if ok && !orig.done {
		orig.done = true
	} else {
		ok = false
	}
	var ord *simOrder
	if ok {
		a.orderSeq++
		ord = &simOrder{
			orderID: strconv.FormatUint(a.orderSeq, 10),
			clOrdID: clOrdID,
			symbol:  orig.symbol,
			side:    orig.side,
			px:      px,
			qty:     qty,
			cumQty:  orig.cumQty,
		}
		a.orders[clOrdID] = ord
	}
	a.mu.Unlock()

	if !ok {
		a.sendCancelReject(sessionID, clOrdID, origClOrdID, enum.CxlRejResponseTo_ORDER_CANCEL_REPLACE_REQUEST)
		return nil
	}
	a.sendReplaced(sessionID, ord, origClOrdID)
	return nil
}

func (a *Application) fill(sessionID quickfix.SessionID, ord *simOrder, lastQty decimal.Decimal) {
	a.mu.Lock()
	ord.cumQty = ord.cumQty.Add(lastQty)
	full := ord.cumQty.GreaterThanOrEqual(ord.qty)
	if full {
		ord.done = true
	}
	a.mu.Unlock()

	status := enum.OrdStatus_PARTIALLY_FILLED
	if full && !a.behaviour.PartialOnly {
		status = enum.OrdStatus_FILLED
	}
	a.sendReport(sessionID, ord, enum.ExecType_TRADE, status, lastQty, ord.px)
}

func (a *Application) sendReport(sessionID quickfix.SessionID, ord *simOrder, execType enum.ExecType, status enum.OrdStatus, lastQty, lastPx decimal.Decimal) {
	a.mu.Lock()
	a.execSeq++
	execID := "E" + strconv.FormatUint(a.execSeq, 10)
	leaves := ord.qty.Sub(ord.cumQty)
	if ord.done && status != enum.OrdStatus_PARTIALLY_FILLED {
		leaves = decimal.Zero
	}
	cum := ord.cumQty
	a.mu.Unlock()

	report := executionreport.New(
		field.NewOrderID(ord.orderID),
		field.NewExecID(execID),
		field.NewExecType(execType),
		field.NewOrdStatus(status),
		field.NewSide(ord.side),
		field.NewLeavesQty(leaves, qtyScale),
		field.NewCumQty(cum, qtyScale),
		field.NewAvgPx(ord.px, pxScale),
	)
	report.SetClOrdID(ord.clOrdID)
	report.SetSymbol(ord.symbol)
	report.SetOrderQty(ord.qty, qtyScale)
	if lastQty.Sign() > 0 {
		report.SetLastQty(lastQty, qtyScale)
		report.SetLastPx(lastPx, pxScale)
	}
	if err := quickfix.SendToTarget(report, sessionID); err != nil {
		zap.S().Warnf("send execution report fail: %v", err)
	}
}

func (a *Application) sendCancelled(sessionID quickfix.SessionID, ord *simOrder, cxlClOrdID string) {
	a.mu.Lock()
	a.execSeq++
	execID := "E" + strconv.FormatUint(a.execSeq, 10)
	cum := ord.cumQty
	a.mu.Unlock()

	report := executionreport.New(
		field.NewOrderID(ord.orderID),
		field.NewExecID(execID),
		field.NewExecType(enum.ExecType_CANCELED),
		field.NewOrdStatus(enum.OrdStatus_CANCELED),
		field.NewSide(ord.side),
		field.NewLeavesQty(decimal.Zero, qtyScale),
		field.NewCumQty(cum, qtyScale),
		field.NewAvgPx(ord.px, pxScale),
	)
	report.SetClOrdID(cxlClOrdID)
	report.SetOrigClOrdID(ord.clOrdID)
	report.SetSymbol(ord.symbol)
	report.SetOrderQty(ord.qty, qtyScale)
	if err := quickfix.SendToTarget(report, sessionID); err != nil {
		zap.S().Warnf("send cancel report fail: %v", err)
	}
}

func (a *Application) sendReplaced(sessionID quickfix.SessionID, ord *simOrder, origClOrdID string) {
	a.mu.Lock()
	a.execSeq++
	execID := "E" + strconv.FormatUint(a.execSeq, 10)
	leaves := ord.qty.Sub(ord.cumQty)
	cum := ord.cumQty
	a.mu.Unlock()

	report := executionreport.New(
		field.NewOrderID(ord.orderID),
		field.NewExecID(execID),
		field.NewExecType(enum.ExecType_REPLACED),
		field.NewOrdStatus(enum.OrdStatus_REPLACED),
		field.NewSide(ord.side),
		field.NewLeavesQty(leaves, qtyScale),
		field.NewCumQty(cum, qtyScale),
		field.NewAvgPx(ord.px, pxScale),
	)
	report.SetClOrdID(ord.clOrdID)
	report.SetOrigClOrdID(origClOrdID)
	report.SetSymbol(ord.symbol)
	report.SetOrderQty(ord.qty, qtyScale)
	report.SetPrice(ord.px, pxScale)
	if err := quickfix.SendToTarget(report, sessionID); err != nil {
		zap.S().Warnf("send replace report fail: %v", err)
	}
}

func (a *Application) sendCancelReject(sessionID quickfix.SessionID, clOrdID, origClOrdID string, responseTo enum.CxlRejResponseTo) {
	reject := ordercancelreject.New(
		field.NewOrderID("NONE"),
		field.NewClOrdID(clOrdID),
		field.NewOrigClOrdID(origClOrdID),
		field.NewOrdStatus(enum.OrdStatus_REJECTED),
		field.NewCxlRejResponseTo(responseTo),
	)
	reject.SetCxlRejReason(enum.CxlRejReason_UNKNOWN_ORDER)
	if err := quickfix.SendToTarget(reject, sessionID); err != nil {
		zap.S().Warnf("send cancel reject fail: %v", err)
	}
}

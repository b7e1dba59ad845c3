package ordmgmt

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/joripage/tradegate/pkg/ordmgmt/model"
	"github.com/joripage/tradegate/pkg/ordmgmt/statestore"
)

// EventPublisher receives a flattened event for every order-state change;
// a nil publisher is allowed and drops everything.
type EventPublisher interface {
	Publish(ctx context.Context, ev *model.OrderEvent) error
}

// Engine is the order-management core: it owns the arena, drives requests
// through the readiness gate onto the wire, and reconciles everything the
// venue reports back. All public methods serialize on one mutex; the
// collaborators (ProtoEngine, Strategy, RiskManager) are invoked while it is
// held and must not re-enter the engine.
type Engine struct {
	cfg *Config
	log *zap.Logger

	mu    sync.Mutex
	arena *Arena
	thr   *reqRateThrottler
	inds  *indicationQueue

	proto ProtoEngine
	strat Strategy
	risk  RiskManager
	bus   EventPublisher

	store    statestore.Store
	tradeLog *zap.Logger

	txSN int64
	rxSN int64

	// buffered holds the requests the ProtoEngine may still be batching;
	// Flush back-propagates the real wire time onto exactly these.
	buffered []model.ReqID

	cancelPusher context.CancelFunc
	pusherDone   chan struct{}
}

func NewEngine(cfg *Config, proto ProtoEngine) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if proto == nil {
		return nil, fmt.Errorf("ordmgmt: nil proto engine")
	}
	return &Engine{
		cfg:   cfg,
		log:   zap.L().Named("ordmgmt"),
		thr:   newReqRateThrottler(cfg.ThrottlingPeriodSec),
		inds:  newIndicationQueue(),
		proto: proto,
	}, nil
}

func (e *Engine) SetLogger(l *zap.Logger)          { e.log = l }
func (e *Engine) SetStrategy(s Strategy)           { e.strat = s }
func (e *Engine) SetRiskManager(r RiskManager)     { e.risk = r }
func (e *Engine) SetEventPublisher(p EventPublisher) { e.bus = p }
func (e *Engine) SetStateStore(s statestore.Store) { e.store = s }

// SetTradeLog installs the audit logger that gets one line per recorded
// execution.
func (e *Engine) SetTradeLog(l *zap.Logger) { e.tradeLog = l }

// Start restores the persistent counters, builds the arena and launches the
// indication retry timer.
func (e *Engine) Start(ctx context.Context, init statestore.State) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	st := init
	if e.store != nil {
		loaded, err := e.store.Load(ctx, e.cfg.Name)
		if err != nil {
			return fmt.Errorf("ordmgmt: restore state: %w", err)
		}
		loaded.Normalize(init)
		st = loaded
	}
	e.arena = NewArena(e.cfg, st)
	e.txSN = st.TxSN
	e.rxSN = st.RxSN

	pctx, cancel := context.WithCancel(context.Background())
	e.cancelPusher = cancel
	e.pusherDone = make(chan struct{})
	go e.runPusher(pctx)

	e.log.Info("engine started",
		zap.String("name", e.cfg.Name),
		zap.Uint64("next_ord_n", st.NextOrdN),
		zap.Uint64("next_req_n", st.NextReqN),
		zap.Int("max_reqs_per_period", e.cfg.MaxReqsPerPeriod),
		zap.Int("throttling_period_sec", e.cfg.ThrottlingPeriodSec))
	return nil
}

func (e *Engine) Stop() {
	if e.cancelPusher != nil {
		e.cancelPusher()
		<-e.pusherDone
	}
}

// Order and Req expose read access to the arena for connector front ends.
func (e *Engine) Order(id model.OrderID) *model.Order { return e.arena.Order(id) }
func (e *Engine) Req(id model.ReqID) *model.Request   { return e.arena.Req(id) }

// OrderIDOfReq resolves which order a request belongs to, 0 when the id is
// not ours. It takes the engine lock so connector receive threads may call
// it concurrently with the engine proper.
func (e *Engine) OrderIDOfReq(id model.ReqID) model.OrderID {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.arena == nil || !e.arena.HasReq(id) {
		return 0
	}
	return e.arena.Req(id).OrderID
}

// Place validates the terms, books the risk, allocates the order with its
// first request and attempts transmission. A request refused by the gate is
// parked as an indication, not an error.
func (e *Engine) Place(ctx context.Context, po *model.PlaceOrder) (*model.Order, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !model.IsQtySet(po.Qty) {
		return nil, ErrInvalidQty
	}
	if po.QtyShow.Sign() < 0 || po.QtyShow.GreaterThan(po.Qty) {
		return nil, ErrInvalidQtyShow
	}
	if po.QtyMin.Sign() < 0 || po.QtyMin.GreaterThan(po.Qty) {
		return nil, ErrInvalidQtyMin
	}

	px := po.Px
	tif := po.TimeInForce
	switch po.Type {
	case model.OrderTypeMarket:
		if !e.cfg.HasMktOrders {
			return nil, ErrMktNotAllowed
		}
		// market orders carry no price and cannot rest
		px = model.PxUnset
		tif = model.OrderTimeInForceIOC
	default:
		if !model.IsPxSet(px) {
			return nil, ErrInvalidPx
		}
		px = roundToTick(px, po.TickSize)
	}

	now := time.Now()
	if err := e.riskAdmit(po, px, now); err != nil {
		return nil, err
	}

	ord := e.arena.NewOrder(po.Symbol, po.Side, po.Type, tif, po.ExpireDate, po.StratID, po.Account)
	ord.TickSize = po.TickSize
	req := e.arena.NewRequest(ord, model.ReqKindNew, 0, px, po.Qty, po.QtyShow, po.QtyMin, now)

	e.trySend(ctx, ord, req, now)
	e.publish(ctx, &model.OrderEvent{
		EventID:  model.NewEventID(req.ID, model.OrderEventPlaced, ""),
		Type:     model.OrderEventPlaced,
		OrderID:  ord.ID,
		ReqID:    req.ID,
		Symbol:   ord.Symbol,
		Side:     ord.Side,
		Px:       px,
		Qty:      po.Qty,
		RecvTime: now,
	})
	e.checkpoint(ctx)
	return ord, nil
}

// Cancel requests cancellation of whatever is currently outstanding on the
// order. It returns false with no error for the expected non-events: the
// order is already inactive, or a cancel is already on its way.
func (e *Engine) Cancel(ctx context.Context, ordID model.OrderID) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.arena.HasOrder(ordID) {
		return false, fmt.Errorf("%w: %d", ErrUnknownOrder, ordID)
	}
	ok := e.cancelOrder(ctx, e.arena.Order(ordID), time.Now())
	if ok {
		e.checkpoint(ctx)
	}
	return ok, nil
}

func (e *Engine) cancelOrder(ctx context.Context, ord *model.Order, now time.Time) bool {
	if ord.Inactive {
		return false
	}
	last := e.arena.Req(ord.LastReq)

	// A second cancel is a no-op unless the outstanding work is an
	// unconfirmed emulated new-leg, which still needs cancelling in its own
	// right.
	if ord.HasCxlPending() &&
		!(last != nil && last.Kind == model.ReqKindModLegN && last.Status < model.ReqStatusConfirmed) {
		return false
	}

	if last != nil && last.Status == model.ReqStatusIndicated {
		switch last.Kind {
		case model.ReqKindModLegN:
			// The parent cancel supersedes the emulated pair: the new leg
			// dies in place, the cancel leg is promoted to a full cancel.
			last.Status = model.ReqStatusFailed
			last.EndedAt = now
			last.WillFail = false
			e.inds.prune(last.ID)
			clx := e.arena.Req(last.Prev)
			if clx != nil && clx.Kind == model.ReqKindModLegC && !clx.Status.IsTerminal() {
				clx.Kind = model.ReqKindCancel
				ord.CxlPending = clx.ID
				if clx.Status == model.ReqStatusIndicated {
					e.trySend(ctx, ord, clx, now)
				}
				return true
			}
			// no usable cancel leg; fall through to a fresh cancel

		case model.ReqKindNew:
			if ord.FirstReq == last.ID {
				// never reached the wire: cancel synchronously
				last.Status = model.ReqStatusCancelled
				last.EndedAt = now
				e.inds.prune(last.ID)
				e.makeOrderInactive(ctx, ord, now)
				e.riskBook(ord, last.Px, decimal.Zero, last.Px, last.Qty, now)
				e.safeStrat(func() { e.strat.OnCancel(ord, now, now) })
				return true
			}

		case model.ReqKindModify:
			// rewrite the unsent modify into a cancel of the same target
			e.redraftCancel(last)
			ord.CxlPending = last.ID
			e.trySend(ctx, ord, last, now)
			return true
		}
	}

	tgt := e.targetReq(ord)
	if tgt == nil {
		return false
	}
	req := e.arena.NewRequest(ord, model.ReqKindCancel, tgt.ID,
		model.PxUnset, model.QtyUnset, decimal.Zero, decimal.Zero, now)
	ord.CxlPending = req.ID
	e.trySend(ctx, ord, req, now)
	return true
}

// Modify rewrites the outstanding terms of the order. It returns false with
// no error when nothing would change or the order cannot currently be
// modified; argument problems are errors.
func (e *Engine) Modify(ctx context.Context, ordID model.OrderID,
	newPx, newQty, newQtyShow, newQtyMin decimal.Decimal) (bool, error) {

	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.arena.HasOrder(ordID) {
		return false, fmt.Errorf("%w: %d", ErrUnknownOrder, ordID)
	}
	ord := e.arena.Order(ordID)
	if ord.Inactive || ord.HasCxlPending() {
		return false, nil
	}
	if ord.Type != model.OrderTypeLimit && ord.Type != model.OrderTypeStop {
		return false, ErrNotModifiable
	}
	if !e.cfg.HasPartFilledModify && ord.CumQty.Sign() > 0 {
		return false, nil
	}
	if !model.IsQtySet(newQty) || !newQty.GreaterThan(ord.CumQty) {
		return false, ErrInvalidQty
	}
	if newQtyShow.Sign() < 0 || newQtyShow.GreaterThan(newQty) {
		return false, ErrInvalidQtyShow
	}
	if newQtyMin.Sign() < 0 || newQtyMin.GreaterThan(newQty) {
		return false, ErrInvalidQtyMin
	}
	if !model.IsPxSet(newPx) {
		return false, ErrInvalidPx
	}
	px := roundToTick(newPx, ord.TickSize)

	cur := e.currentTerms(ord)
	if cur == nil {
		return false, nil
	}
	if px.Equal(cur.Px) && newQty.Equal(cur.Qty) &&
		newQtyShow.Equal(cur.QtyShow) && newQtyMin.Equal(cur.QtyMin) {
		return false, nil
	}

	now := time.Now()
	last := e.arena.Req(ord.LastReq)

	if e.cfg.HasAtomicModify {
		if last != nil && last.Status == model.ReqStatusIndicated && !last.Kind.IsCancel() {
			// unsent: just rewrite the terms, the kind stays
			e.riskBook(ord, px, newQty, last.Px, last.Qty, now)
			e.redraftTerms(last, px, newQty, newQtyShow, newQtyMin)
			e.trySend(ctx, ord, last, now)
			e.checkpoint(ctx)
			return true, nil
		}
		tgt := e.targetReq(ord)
		if tgt == nil {
			return false, nil
		}
		e.riskBook(ord, px, newQty, cur.Px, cur.Qty, now)
		req := e.arena.NewRequest(ord, model.ReqKindModify, tgt.ID, px, newQty, newQtyShow, newQtyMin, now)
		e.trySend(ctx, ord, req, now)
		e.checkpoint(ctx)
		return true, nil
	}

	// tandem emulation: cancel-leg + new-leg
	if last != nil && last.Kind == model.ReqKindModLegN && last.Status == model.ReqStatusIndicated {
		e.riskBook(ord, px, newQty, last.Px, last.Qty, now)
		e.redraftTerms(last, px, newQty, newQtyShow, newQtyMin)
		e.trySend(ctx, ord, last, now)
		e.checkpoint(ctx)
		return true, nil
	}
	tgt := e.targetReq(ord)
	if tgt == nil {
		return false, nil
	}
	e.riskBook(ord, px, newQty, cur.Px, cur.Qty, now)
	clx := e.arena.NewRequest(ord, model.ReqKindModLegC, tgt.ID,
		model.PxUnset, model.QtyUnset, decimal.Zero, decimal.Zero, now)
	nleg := e.arena.NewRequest(ord, model.ReqKindModLegN, 0, px, newQty, newQtyShow, newQtyMin, now)
	e.trySend(ctx, ord, clx, now)
	e.trySend(ctx, ord, nleg, now)
	e.checkpoint(ctx)
	return true, nil
}

// CancelAll cancels every live order matching the optional side, symbol and
// account filters; natively when the venue supports it, otherwise by
// scanning orders newest-first and cancelling one by one.
func (e *Engine) CancelAll(ctx context.Context, side model.OrderSide, symbol, account string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.cfg.HasNativeMassCancel {
		return e.proto.CancelAllOrders(ctx, side, symbol, account)
	}
	now := time.Now()
	for i := e.arena.NumOrders() - 1; i >= 0; i-- {
		ord := e.arena.OrderAt(i)
		if ord.Inactive || ord.HasCxlPending() {
			continue
		}
		if side != "" && ord.Side != side {
			continue
		}
		if symbol != "" && ord.Symbol != symbol {
			continue
		}
		if account != "" && ord.Account != account {
			continue
		}
		e.cancelOrder(ctx, ord, now)
	}
	e.checkpoint(ctx)
	return nil
}

// Flush forces out anything the ProtoEngine buffered and back-propagates the
// actual wire time onto the batched requests.
func (e *Engine) Flush(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.flush(ctx)
}

func (e *Engine) flush(ctx context.Context) error {
	if len(e.buffered) == 0 {
		return nil
	}
	ts, err := e.proto.FlushOrders(ctx)
	if err != nil {
		return err
	}
	e.backPropagateSendTS(ts)
	return nil
}

func (e *Engine) backPropagateSendTS(ts time.Time) {
	for _, id := range e.buffered {
		if r := e.arena.Req(id); r != nil {
			r.SentAt = ts
		}
	}
	e.buffered = e.buffered[:0]
}

// trySend runs the readiness gate and either transmits the request or parks
// it on the indication queue.
func (e *Engine) trySend(ctx context.Context, ord *model.Order, req *model.Request, now time.Time) {
	ready := e.readiness(req, now)
	if ready != model.ReadyOK {
		e.inds.memoise(req.ID)
		e.log.Debug("indication parked",
			zap.Uint64("req", uint64(req.ID)),
			zap.String("kind", req.Kind.String()),
			zap.String("why", ready.String()))
		return
	}
	e.sendReq(ctx, ord, req, now)
}

func (e *Engine) sendReq(ctx context.Context, ord *model.Order, req *model.Request, now time.Time) {
	var err error
	switch {
	case req.Kind.IsCancel():
		err = e.proto.CancelOrder(ctx, ord, req, e.arena.Req(req.OrigID))
	case req.Kind == model.ReqKindModify:
		err = e.proto.ModifyOrder(ctx, ord, req, e.arena.Req(req.OrigID))
	default:
		err = e.proto.NewOrder(ctx, ord, req)
	}
	if err != nil {
		// transport hiccup: the request stays an indication and is retried
		e.inds.memoise(req.ID)
		e.log.Warn("send failed, request re-queued",
			zap.Uint64("req", uint64(req.ID)), zap.Error(err))
		return
	}
	req.Status = model.ReqStatusNew
	req.SentAt = now
	req.AttemptN++
	e.txSN++
	if req.SeqNum == 0 {
		req.SeqNum = e.txSN
	}
	if !(e.cfg.CancelsNotThrottled && req.Kind.IsCancel()) {
		e.thr.add(now, 1)
	}
	e.buffered = append(e.buffered, req.ID)
}

// targetReq finds the most recent request that can still be acted on by a
// cancel or modify: not itself a cancel, already on the wire, not terminal.
func (e *Engine) targetReq(ord *model.Order) *model.Request {
	for r := e.arena.Req(ord.LastReq); r != nil; r = e.arena.Req(r.Prev) {
		if r.Kind.IsCancel() || r.Status == model.ReqStatusIndicated {
			continue
		}
		// a failed modify in the chain does not retire the order: the
		// request behind it is still the one live at the venue
		if r.Status == model.ReqStatusFailed || r.WillFail {
			continue
		}
		if r.Status.IsTerminal() {
			return nil
		}
		return r
	}
	return nil
}

// currentTerms returns the latest value-bearing request: the terms a modify
// compares against.
func (e *Engine) currentTerms(ord *model.Order) *model.Request {
	for r := e.arena.Req(ord.LastReq); r != nil; r = e.arena.Req(r.Prev) {
		if r.Kind.IsCancel() || r.Status == model.ReqStatusFailed {
			continue
		}
		return r
	}
	return nil
}

// redraftCancel rebuilds an unsent request in its slot as a cancel of the
// same target.
func (e *Engine) redraftCancel(req *model.Request) {
	req.Kind = model.ReqKindCancel
	req.Px = model.PxUnset
	req.Qty = model.QtyUnset
	req.QtyShow = decimal.Zero
	req.QtyMin = decimal.Zero
	req.LeavesQty = decimal.Zero
}

// redraftTerms rebuilds an unsent request in its slot with new terms,
// keeping its kind and target.
func (e *Engine) redraftTerms(req *model.Request, px, qty, qtyShow, qtyMin decimal.Decimal) {
	req.Px = px
	req.Qty = qty
	req.QtyShow = qtyShow
	req.QtyMin = qtyMin
	req.LeavesQty = qty
}

func roundToTick(px, tick decimal.Decimal) decimal.Decimal {
	if tick.Sign() <= 0 {
		return px
	}
	return px.Div(tick).Round(0).Mul(tick)
}

// riskAdmit consults the risk manager before a placement; an error or panic
// vetoes the order.
func (e *Engine) riskAdmit(po *model.PlaceOrder, px decimal.Decimal, now time.Time) (err error) {
	if e.risk == nil {
		return nil
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: panic in risk manager: %v", ErrRiskRejected, r)
		}
	}()
	probe := model.Order{Symbol: po.Symbol, Side: po.Side, Type: po.Type}
	if rerr := e.risk.OnOrder(&probe, true, QtyKindContracts, px, po.Qty, decimal.Zero, decimal.Zero, now); rerr != nil {
		return fmt.Errorf("%w: %v", ErrRiskRejected, rerr)
	}
	return nil
}

// riskBook books or unwinds exposure mid-flight; failures here must never
// abort a reconciliation, they are logged and swallowed.
func (e *Engine) riskBook(ord *model.Order, newPx, newQty, oldPx, oldQty decimal.Decimal, now time.Time) {
	if e.risk == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			e.log.Error("risk manager panic", zap.Any("panic", r))
		}
	}()
	if err := e.risk.OnOrder(ord, true, QtyKindContracts, newPx, newQty, oldPx, oldQty, now); err != nil {
		e.log.Error("risk booking failed", zap.Uint64("order", uint64(ord.ID)), zap.Error(err))
	}
}

func (e *Engine) safeStrat(f func()) {
	if e.strat == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			e.log.Error("strategy callback panic", zap.Any("panic", r))
		}
	}()
	f()
}

func (e *Engine) publish(ctx context.Context, ev *model.OrderEvent) {
	if e.bus == nil {
		return
	}
	if err := e.bus.Publish(ctx, ev); err != nil {
		e.log.Warn("event publish failed", zap.String("event", ev.EventID), zap.Error(err))
	}
}

func (e *Engine) checkpoint(ctx context.Context) {
	if e.store == nil {
		return
	}
	st := e.arena.State()
	st.TxSN = e.txSN
	st.RxSN = e.rxSN
	if err := e.store.Save(ctx, e.cfg.Name, st); err != nil {
		e.log.Warn("state checkpoint failed", zap.Error(err))
	}
}

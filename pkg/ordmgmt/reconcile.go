package ordmgmt

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/joripage/tradegate/pkg/ordmgmt/model"
)

// The handlers in this file are the state machine's transition function:
// they are invoked by the ProtoEngine adapter for every inbound venue event.
// All of them are idempotent against stale re-deliveries: an event that
// references an already-terminal request is logged and otherwise ignored.

// TradeReport is everything a venue execution event can carry about a fill.
// LeavesHint and FilledHint are optional protocol signals fed to the fill
// classifier; nil / TriUnknown mean the venue did not say.
type TradeReport struct {
	ReqID  model.ReqID
	ExchID string
	ExecID string

	Px  decimal.Decimal
	Qty decimal.Decimal
	Fee decimal.Decimal

	LeavesHint *decimal.Decimal
	FilledHint TriState

	Aggr     bool
	ExchTime time.Time
	RecvTime time.Time
}

// resolveReq finds the request an inbound event refers to, by our id first
// and by the venue-assigned id second. Unknown ids are a protocol
// inconsistency: a hard error unless the engine runs relaxed.
func (e *Engine) resolveReq(id model.ReqID, exchID, where string) (*model.Request, error) {
	if id != 0 && e.arena.HasReq(id) {
		return e.arena.Req(id), nil
	}
	if r := e.arena.ReqByExchID(exchID); r != nil {
		return r, nil
	}
	if e.cfg.Relaxed {
		e.log.Warn("event for unknown request ignored",
			zap.Uint64("req", uint64(id)), zap.String("exch_id", exchID), zap.String("where", where))
		return nil, nil
	}
	return nil, fmt.Errorf("%w: req=%d exchID=%q in %s", ErrUnknownReq, id, exchID, where)
}

func (e *Engine) applyExchIDs(req *model.Request, exchID, mdEntryID string) {
	if exchID != "" {
		if req.ExchID == "" {
			req.ExchID = exchID
		}
		e.arena.MapExchID(exchID, req.ID)
	}
	if mdEntryID != "" && req.MDEntryID == "" {
		req.MDEntryID = mdEntryID
	}
}

// Acknowledged records the venue's receipt of a transmitted request.
func (e *Engine) Acknowledged(id model.ReqID) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	req, err := e.resolveReq(id, "", "Acknowledged")
	if req == nil {
		return err
	}
	if req.Status >= model.ReqStatusAcked {
		e.log.Debug("stale ack ignored", zap.Uint64("req", uint64(id)))
		return nil
	}
	if req.Status == model.ReqStatusNew {
		req.Status = model.ReqStatusAcked
	}
	return nil
}

// ConfirmedNew records that the order (or emulated new leg) is live at the
// venue. The first confirmation of a request fires the strategy callback and
// releases any dependents parked behind it.
func (e *Engine) ConfirmedNew(ctx context.Context, id model.ReqID, exchID, mdEntryID string,
	exchTime, recvTime time.Time) error {

	e.mu.Lock()
	defer e.mu.Unlock()
	req, err := e.resolveReq(id, exchID, "ConfirmedNew")
	if req == nil {
		return err
	}
	e.applyExchIDs(req, exchID, mdEntryID)
	if req.Status >= model.ReqStatusConfirmed {
		e.log.Warn("stale confirm ignored",
			zap.Uint64("req", uint64(id)), zap.String("status", req.Status.String()))
		return nil
	}
	e.confirmReq(ctx, req, recvTime)
	ord := e.arena.Order(req.OrderID)
	e.publish(ctx, &model.OrderEvent{
		EventID:  model.NewEventID(req.ID, model.OrderEventConfirmed, ""),
		Type:     model.OrderEventConfirmed,
		OrderID:  ord.ID,
		ReqID:    req.ID,
		Symbol:   ord.Symbol,
		Side:     ord.Side,
		Px:       req.Px,
		Qty:      req.Qty,
		ExchID:   req.ExchID,
		ExchTime: exchTime,
		RecvTime: recvTime,
	})
	e.sendIndicationsOnEvent(ctx, req, recvTime)
	return nil
}

func (e *Engine) confirmReq(ctx context.Context, req *model.Request, recvTime time.Time) {
	first := req.ConfAt.IsZero()
	req.Status = model.ReqStatusConfirmed
	req.ConfAt = recvTime
	if first {
		e.safeStrat(func() { e.strat.OnConfirm(req) })
	}
}

// Replaced records a successful native modify: the modifying request becomes
// the live one, its target retires as Replaced.
func (e *Engine) Replaced(ctx context.Context, id model.ReqID, exchID, mdEntryID string,
	exchTime, recvTime time.Time) error {

	e.mu.Lock()
	defer e.mu.Unlock()
	req, err := e.resolveReq(id, exchID, "Replaced")
	if req == nil {
		return err
	}
	e.applyExchIDs(req, exchID, mdEntryID)
	if req.Status >= model.ReqStatusConfirmed {
		e.log.Warn("stale replace ignored", zap.Uint64("req", uint64(id)))
		return nil
	}
	ord := e.arena.Order(req.OrderID)
	orig := e.arena.Req(req.OrigID)
	if orig != nil && !orig.Status.IsTerminal() {
		orig.Status = model.ReqStatusReplaced
		orig.EndedAt = recvTime
	}
	e.confirmReq(ctx, req, recvTime)
	// what already filled on the order counts against the new quantity
	req.LeavesQty = req.Qty.Sub(ord.CumQty)
	if req.LeavesQty.Sign() < 0 {
		e.log.Warn("replace qty below filled qty",
			zap.Uint64("req", uint64(req.ID)),
			zap.String("qty", req.Qty.String()),
			zap.String("cum_qty", ord.CumQty.String()))
		req.LeavesQty = decimal.Zero
	}
	e.publish(ctx, &model.OrderEvent{
		EventID:  model.NewEventID(req.ID, model.OrderEventReplaced, ""),
		Type:     model.OrderEventReplaced,
		OrderID:  ord.ID,
		ReqID:    req.ID,
		Symbol:   ord.Symbol,
		Side:     ord.Side,
		Px:       req.Px,
		Qty:      req.Qty,
		ExchID:   req.ExchID,
		ExchTime: exchTime,
		RecvTime: recvTime,
	})
	e.sendIndicationsOnEvent(ctx, req, recvTime)
	return nil
}

// Cancelled resolves the cancelling request (absent for a venue-side mass
// cancel) and its target. In the ordinary case the target retires as
// Cancelled and the whole order goes inactive; when the cancelling request
// is the cancel leg of an emulated modify, the target retires as Replaced
// and the order stays alive for the new leg.
func (e *Engine) Cancelled(ctx context.Context, clxID model.ReqID, exchID string,
	exchTime, recvTime time.Time) error {

	e.mu.Lock()
	defer e.mu.Unlock()

	var clx *model.Request
	if clxID != 0 {
		var err error
		clx, err = e.resolveReq(clxID, "", "Cancelled")
		if clx == nil && err != nil {
			return err
		}
	}
	var tgt *model.Request
	if clx != nil {
		tgt = e.arena.Req(clx.OrigID)
	}
	if tgt == nil {
		tgt = e.arena.ReqByExchID(exchID)
	}
	if tgt == nil {
		if e.cfg.Relaxed {
			e.log.Warn("cancel for unknown target ignored", zap.String("exch_id", exchID))
			return nil
		}
		return fmt.Errorf("%w: clx=%d exchID=%q in Cancelled", ErrUnknownReq, clxID, exchID)
	}

	// a target that has already Filled (cancel/fill race), Failed or been
	// cancelled before stays as it is
	if tgt.Status.IsTerminal() {
		e.log.Warn("stale cancel ignored",
			zap.Uint64("target", uint64(tgt.ID)), zap.String("status", tgt.Status.String()))
		return nil
	}

	ord := e.arena.Order(tgt.OrderID)
	tandem := clx != nil && clx.Kind == model.ReqKindModLegC

	if clx != nil {
		if !clx.Status.IsTerminal() {
			// the cancel achieved its purpose
			clx.Status = model.ReqStatusConfirmed
			clx.ConfAt = recvTime
		}
		if ord.CxlPending == clx.ID {
			ord.CxlPending = 0
		}
	}

	if tandem {
		tgt.Status = model.ReqStatusReplaced
		tgt.EndedAt = recvTime
		// the new leg may now proceed (this is exactly what Wait2 waits for)
		e.sendIndicationsOnEvent(ctx, tgt, recvTime)
		return nil
	}

	tgt.Status = model.ReqStatusCancelled
	tgt.EndedAt = recvTime
	e.riskBook(ord, tgt.Px, decimal.Zero, tgt.Px, tgt.LeavesQty, recvTime)
	e.makeOrderInactive(ctx, ord, recvTime)
	e.safeStrat(func() { e.strat.OnCancel(ord, exchTime, recvTime) })
	e.publish(ctx, &model.OrderEvent{
		EventID:  model.NewEventID(tgt.ID, model.OrderEventCancelled, ""),
		Type:     model.OrderEventCancelled,
		OrderID:  ord.ID,
		ReqID:    tgt.ID,
		Symbol:   ord.Symbol,
		Side:     ord.Side,
		ExchID:   tgt.ExchID,
		ExchTime: exchTime,
		RecvTime: recvTime,
	})
	return nil
}

// Rejected records a venue rejection. For a New it retires the whole order;
// a rejected cancel or modify is handed to CancelOrReplaceRejected instead.
func (e *Engine) Rejected(ctx context.Context, id model.ReqID, code int, text string,
	exchTime, recvTime time.Time) error {

	e.mu.Lock()
	defer e.mu.Unlock()
	return e.rejected(ctx, id, code, text, exchTime, recvTime)
}

func (e *Engine) rejected(ctx context.Context, id model.ReqID, code int, text string,
	exchTime, recvTime time.Time) error {

	req, err := e.resolveReq(id, "", "Rejected")
	if req == nil {
		return err
	}
	if req.Kind.IsCancel() || req.Kind == model.ReqKindModify {
		return e.cancelOrReplaceRejected(ctx, req, TriUnknown, code, text, exchTime, recvTime)
	}
	if req.Status.IsTerminal() {
		e.log.Warn("stale reject ignored", zap.Uint64("req", uint64(id)))
		return nil
	}
	ord := e.arena.Order(req.OrderID)
	e.failReq(req, recvTime)
	ord.NFails++
	e.riskBook(ord, req.Px, decimal.Zero, req.Px, req.LeavesQty, recvTime)
	e.makeOrderInactive(ctx, ord, recvTime)
	e.safeStrat(func() { e.strat.OnOrderError(req, code, text, false, exchTime, recvTime) })
	e.publish(ctx, &model.OrderEvent{
		EventID:  model.NewEventID(req.ID, model.OrderEventRejected, ""),
		Type:     model.OrderEventRejected,
		OrderID:  ord.ID,
		ReqID:    req.ID,
		Symbol:   ord.Symbol,
		Side:     ord.Side,
		ExchTime: exchTime,
		RecvTime: recvTime,
	})
	return nil
}

// CancelOrReplaceRejected records the venue declining a cancel or modify.
// targetGone is the venue's "unknown order" hint: when set, the target most
// likely filled before our request arrived, which is flagged (once) as a
// probable fill rather than asserted.
func (e *Engine) CancelOrReplaceRejected(ctx context.Context, id model.ReqID, targetGone TriState,
	code int, text string, exchTime, recvTime time.Time) error {

	e.mu.Lock()
	defer e.mu.Unlock()
	req, err := e.resolveReq(id, "", "CancelOrReplaceRejected")
	if req == nil {
		return err
	}
	return e.cancelOrReplaceRejected(ctx, req, targetGone, code, text, exchTime, recvTime)
}

func (e *Engine) cancelOrReplaceRejected(ctx context.Context, req *model.Request, targetGone TriState,
	code int, text string, exchTime, recvTime time.Time) error {

	if req.Status.IsTerminal() {
		e.log.Warn("stale cancel/replace reject ignored", zap.Uint64("req", uint64(req.ID)))
		return nil
	}
	ord := e.arena.Order(req.OrderID)
	e.failReq(req, recvTime)
	ord.NFails++

	probFilled := false
	tgt := e.arena.Req(req.OrigID)
	if targetGone == TriTrue && tgt != nil &&
		tgt.Status != model.ReqStatusCancelled && !tgt.ProbFilled {
		tgt.ProbFilled = true
		probFilled = true
	}
	if ord.CxlPending == req.ID {
		ord.CxlPending = 0
	}

	switch req.Kind {
	case model.ReqKindModify:
		if tgt != nil {
			// unwind the attempted delta back to the original terms
			e.riskBook(ord, tgt.Px, tgt.Qty, req.Px, req.Qty, recvTime)
		}
	case model.ReqKindModLegC:
		// the emulated modify died on its first leg: the new leg cannot
		// stand alone
		if nleg := e.arena.Req(req.Next); nleg != nil && nleg.Kind == model.ReqKindModLegN {
			e.failDependent(ctx, ord, nleg, recvTime)
			if tgt != nil {
				e.riskBook(ord, tgt.Px, tgt.Qty, nleg.Px, nleg.Qty, recvTime)
			}
		}
	}

	e.safeStrat(func() { e.strat.OnOrderError(req, code, text, probFilled, exchTime, recvTime) })
	e.publish(ctx, &model.OrderEvent{
		EventID:  model.NewEventID(req.ID, model.OrderEventRejected, ""),
		Type:     model.OrderEventRejected,
		OrderID:  ord.ID,
		ReqID:    req.ID,
		Symbol:   ord.Symbol,
		Side:     ord.Side,
		ExchTime: exchTime,
		RecvTime: recvTime,
	})
	return nil
}

// Traded records one venue execution. Everything flows through the fill
// classifier; only a newly recorded execution reaches the risk manager, the
// strategy and the audit log.
func (e *Engine) Traded(ctx context.Context, rep *TradeReport) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	req, err := e.resolveReq(rep.ReqID, rep.ExchID, "Traded")
	if req == nil {
		return err
	}
	ord := e.arena.Order(req.OrderID)
	e.applyExchIDs(req, rep.ExchID, "")

	if req.Status.IsTerminal() {
		e.log.Warn("trade on terminal request ignored",
			zap.Uint64("req", uint64(req.ID)), zap.String("status", req.Status.String()))
		return nil
	}

	// de-duplicate: one execution per exec id, and at most one with no id
	// at all (the inferred-fill case). Ids are recorded even on a venue
	// described as not sending them.
	execID := rep.ExecID
	if execID == "" && e.cfg.HasExecIDs {
		e.log.Warn("execution without exec id from a venue that sends them",
			zap.Uint64("req", uint64(req.ID)))
	}
	if e.arena.SeenExecID(ord.ID, execID) {
		e.log.Warn("duplicate execution ignored",
			zap.Uint64("req", uint64(req.ID)), zap.String("exec_id", execID))
		return nil
	}

	// a fill on a merely-sent request implies confirmation
	if req.Status < model.ReqStatusConfirmed {
		e.confirmReq(ctx, req, rep.RecvTime)
	}

	priorLeaves := req.LeavesQty
	complete, lastQty, leaves := classifyFill(rep.Qty, priorLeaves, rep.LeavesHint, rep.FilledHint)
	if complete && !rep.Qty.Equal(lastQty) {
		e.log.Warn("complete fill qty corrected to prior leaves",
			zap.Uint64("req", uint64(req.ID)),
			zap.String("reported", rep.Qty.String()),
			zap.String("corrected", lastQty.String()))
	}
	req.LeavesQty = leaves
	ord.CumQty = ord.CumQty.Add(lastQty)

	if complete {
		req.Status = model.ReqStatusFilled
		req.EndedAt = rep.RecvTime
		e.makeOrderInactive(ctx, ord, rep.RecvTime)
	} else {
		req.Status = model.ReqStatusPartFilled
		if !e.cfg.HasPartFilledModify {
			// modifies in flight can no longer succeed on this venue
			e.markPendingFailing(ctx, ord, req, rep.RecvTime)
		}
	}

	exec := e.arena.NewExecution(ord, req, execID, rep.Px, lastQty, rep.Fee, rep.Aggr,
		rep.ExchTime, rep.RecvTime)
	e.riskOnTrade(exec)
	e.safeStrat(func() { e.strat.OnOurTrade(exec) })
	e.logTrade(ord, req, exec)
	e.publish(ctx, &model.OrderEvent{
		EventID:  model.NewEventID(req.ID, model.OrderEventTraded, execID),
		Type:     model.OrderEventTraded,
		OrderID:  ord.ID,
		ReqID:    req.ID,
		Symbol:   ord.Symbol,
		Side:     ord.Side,
		Px:       exec.Px,
		Qty:      exec.Qty,
		ExecID:   execID,
		ExchID:   req.ExchID,
		ExchTime: rep.ExchTime,
		RecvTime: rep.RecvTime,
	})
	e.checkpoint(ctx)
	return nil
}

// RejectedBySession records a transport-level (not venue business-level)
// rejection: the session refused to carry the message at all.
func (e *Engine) RejectedBySession(ctx context.Context, id model.ReqID, text string,
	recvTime time.Time) error {

	e.mu.Lock()
	defer e.mu.Unlock()
	req, err := e.resolveReq(id, "", "RejectedBySession")
	if req == nil {
		return err
	}
	if req.Status.IsTerminal() {
		e.log.Warn("stale session reject ignored", zap.Uint64("req", uint64(id)))
		return nil
	}
	ord := e.arena.Order(req.OrderID)

	switch {
	case req.Kind == model.ReqKindModify:
		e.failReq(req, recvTime)
		ord.NFails++
		if tgt := e.arena.Req(req.OrigID); tgt != nil {
			e.riskBook(ord, tgt.Px, tgt.Qty, req.Px, req.Qty, recvTime)
		}
	case req.Kind.IsCancel():
		e.failReq(req, recvTime)
		if ord.CxlPending == req.ID {
			ord.CxlPending = 0
		}
	default: // New / new-leg: the order never made it
		return e.rejected(ctx, id, 0, text, recvTime, recvTime)
	}
	e.safeStrat(func() { e.strat.OnOrderError(req, 0, text, false, recvTime, recvTime) })
	return nil
}

// failDependent retires a request that can no longer succeed because the
// request it rode on has failed: unsent means dead in place, in flight means
// willFail plus an explicit cancel for an emulated new leg.
func (e *Engine) failDependent(ctx context.Context, ord *model.Order, req *model.Request, now time.Time) {
	if req.Status.IsTerminal() {
		return
	}
	if req.Status == model.ReqStatusIndicated {
		e.failReq(req, now)
		return
	}
	req.WillFail = true
	if req.Kind == model.ReqKindModLegN {
		e.cancelModLeg(ctx, ord, req, now)
	}
}

func (e *Engine) failReq(req *model.Request, now time.Time) {
	req.Status = model.ReqStatusFailed
	req.EndedAt = now
	req.WillFail = false
	e.inds.prune(req.ID)
}

// makeOrderInactive retires the order for good and propagates the failure
// onto everything still pending against it.
func (e *Engine) makeOrderInactive(ctx context.Context, ord *model.Order, now time.Time) {
	if ord.Inactive {
		return
	}
	ord.Inactive = true
	ord.CxlPending = 0
	e.markPendingFailing(ctx, ord, nil, now)
}

// markPendingFailing walks the request chain and deals with everything that
// is not yet terminal (except keep, the request being processed right now):
// unsent indications die in place, in-flight requests are annotated willFail,
// and an in-flight emulated new leg gets an explicit cancel because the
// venue knows it as an independent order.
func (e *Engine) markPendingFailing(ctx context.Context, ord *model.Order, keep *model.Request, now time.Time) {
	for r := e.arena.Req(ord.LastReq); r != nil; r = e.arena.Req(r.Prev) {
		if r == keep || r.Status.IsTerminal() {
			continue
		}
		if r.Status == model.ReqStatusIndicated {
			r.Status = model.ReqStatusFailed
			r.EndedAt = now
			e.inds.prune(r.ID)
			continue
		}
		if r.WillFail {
			continue
		}
		r.WillFail = true
		if r.Kind == model.ReqKindModLegN && ord.Inactive {
			e.cancelModLeg(ctx, ord, r, now)
		}
	}
}

// cancelModLeg issues a cancel of an in-flight emulated new leg; the venue
// sees that leg as its own order, so it does not die with its parent.
func (e *Engine) cancelModLeg(ctx context.Context, ord *model.Order, nleg *model.Request, now time.Time) {
	req := e.arena.NewRequest(ord, model.ReqKindCancel, nleg.ID,
		model.PxUnset, model.QtyUnset, decimal.Zero, decimal.Zero, now)
	e.trySend(ctx, ord, req, now)
}

func (e *Engine) riskOnTrade(exec *model.Execution) {
	if e.risk == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			e.log.Error("risk manager panic on trade", zap.Any("panic", r))
		}
	}()
	e.risk.OnTrade(exec)
}

func (e *Engine) logTrade(ord *model.Order, req *model.Request, exec *model.Execution) {
	if e.tradeLog == nil {
		return
	}
	e.tradeLog.Info("trade",
		zap.Uint64("exec_no", uint64(exec.No)),
		zap.String("exec_id", exec.ExecID),
		zap.Uint64("order", uint64(ord.ID)),
		zap.Uint64("req", uint64(req.ID)),
		zap.String("symbol", ord.Symbol),
		zap.String("side", string(ord.Side)),
		zap.String("px", exec.Px.String()),
		zap.String("qty", exec.Qty.String()),
		zap.String("fee", exec.Fee.String()),
		zap.String("leaves", req.LeavesQty.String()),
		zap.String("cum_qty", ord.CumQty.String()))
}

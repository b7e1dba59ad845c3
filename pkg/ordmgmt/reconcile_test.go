package ordmgmt

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/joripage/tradegate/pkg/ordmgmt/model"
)

func trade(reqID model.ReqID, execID, qty string) *TradeReport {
	now := time.Now()
	return &TradeReport{
		ReqID:    reqID,
		ExecID:   execID,
		Px:       d("100"),
		Qty:      d(qty),
		ExchTime: now,
		RecvTime: now,
	}
}

func TestAckThenConfirm(t *testing.T) {
	e, _, strat := newTestEngine(t, nil)
	ord := place(t, e, "100", "10")
	req := e.Req(ord.FirstReq)

	if err := e.Acknowledged(req.ID); err != nil {
		t.Fatalf("Acknowledged: %v", err)
	}
	if req.Status != model.ReqStatusAcked {
		t.Fatalf("status = %v, want Acked", req.Status)
	}

	confirm(t, e, req.ID, "X1")
	if req.Status != model.ReqStatusConfirmed {
		t.Fatalf("status = %v, want Confirmed", req.Status)
	}
	if req.ExchID != "X1" {
		t.Errorf("exch id = %q", req.ExchID)
	}
	if len(strat.confirms) != 1 || strat.confirms[0] != req.ID {
		t.Errorf("confirms = %v", strat.confirms)
	}

	// re-delivered confirm is stale: no second callback
	confirm(t, e, req.ID, "X1")
	if len(strat.confirms) != 1 {
		t.Errorf("duplicate confirm fired the callback again")
	}

	// a late ack must not regress a confirmed request
	if err := e.Acknowledged(req.ID); err != nil {
		t.Fatalf("late Acknowledged: %v", err)
	}
	if req.Status != model.ReqStatusConfirmed {
		t.Errorf("late ack regressed status to %v", req.Status)
	}
}

func TestResolveByExchID(t *testing.T) {
	e, _, _ := newTestEngine(t, nil)
	ord := place(t, e, "100", "10")
	confirm(t, e, ord.FirstReq, "X1")

	// venue events that only carry its own id still find the request
	if err := e.Traded(context.Background(), &TradeReport{
		ReqID: 0, ExchID: "X1", ExecID: "E1",
		Px: d("100"), Qty: d("4"),
		ExchTime: time.Now(), RecvTime: time.Now(),
	}); err != nil {
		t.Fatalf("Traded by exch id: %v", err)
	}
	if !ord.CumQty.Equal(d("4")) {
		t.Errorf("cum qty = %s, want 4", ord.CumQty)
	}
}

func TestUnknownRequestStrictVsRelaxed(t *testing.T) {
	e, _, _ := newTestEngine(t, nil)
	err := e.Traded(context.Background(), trade(9999, "E1", "1"))
	if !errors.Is(err, ErrUnknownReq) {
		t.Fatalf("strict: err = %v, want ErrUnknownReq", err)
	}

	e2, _, _ := newTestEngine(t, func(c *Config) { c.Relaxed = true })
	if err := e2.Traded(context.Background(), trade(9999, "E1", "1")); err != nil {
		t.Fatalf("relaxed: err = %v, want nil", err)
	}
}

func TestTradedPartialThenComplete(t *testing.T) {
	e, _, strat := newTestEngine(t, nil)
	ord := place(t, e, "100", "10")
	req := e.Req(ord.FirstReq)
	confirm(t, e, req.ID, "X1")

	if err := e.Traded(context.Background(), trade(req.ID, "E1", "4")); err != nil {
		t.Fatalf("Traded: %v", err)
	}
	if req.Status != model.ReqStatusPartFilled {
		t.Fatalf("status = %v, want PartFilled", req.Status)
	}
	if !req.LeavesQty.Equal(d("6")) || !ord.CumQty.Equal(d("4")) {
		t.Errorf("leaves/cum = %s/%s, want 6/4", req.LeavesQty, ord.CumQty)
	}

	if err := e.Traded(context.Background(), trade(req.ID, "E2", "6")); err != nil {
		t.Fatalf("Traded: %v", err)
	}
	if req.Status != model.ReqStatusFilled {
		t.Fatalf("status = %v, want Filled", req.Status)
	}
	if !ord.Inactive {
		t.Error("order must go inactive on a complete fill")
	}
	if len(strat.trades) != 2 {
		t.Fatalf("trades = %d, want 2", len(strat.trades))
	}
}

func TestTradedImpliesConfirm(t *testing.T) {
	e, _, strat := newTestEngine(t, nil)
	ord := place(t, e, "100", "10")
	req := e.Req(ord.FirstReq)

	// fill arrives before the confirmation
	if err := e.Traded(context.Background(), trade(req.ID, "E1", "3")); err != nil {
		t.Fatalf("Traded: %v", err)
	}
	if req.ConfAt.IsZero() {
		t.Error("fill on a sent request must imply confirmation")
	}
	if len(strat.confirms) != 1 {
		t.Errorf("confirms = %d, want 1", len(strat.confirms))
	}
}

func TestTradedDeduplicatesExecID(t *testing.T) {
	e, _, strat := newTestEngine(t, nil)
	ord := place(t, e, "100", "10")
	req := e.Req(ord.FirstReq)
	confirm(t, e, req.ID, "X1")

	if err := e.Traded(context.Background(), trade(req.ID, "E1", "4")); err != nil {
		t.Fatalf("Traded: %v", err)
	}
	if err := e.Traded(context.Background(), trade(req.ID, "E1", "4")); err != nil {
		t.Fatalf("redelivered Traded: %v", err)
	}
	if !ord.CumQty.Equal(d("4")) {
		t.Errorf("cum qty = %s after duplicate, want 4", ord.CumQty)
	}
	if len(strat.trades) != 1 {
		t.Errorf("trades = %d, want 1", len(strat.trades))
	}
}

func TestTradedAllowsOneEmptyExecID(t *testing.T) {
	e, _, _ := newTestEngine(t, func(c *Config) { c.HasExecIDs = false })
	ord := place(t, e, "100", "10")
	req := e.Req(ord.FirstReq)
	confirm(t, e, req.ID, "X1")

	if err := e.Traded(context.Background(), trade(req.ID, "", "4")); err != nil {
		t.Fatalf("Traded: %v", err)
	}
	if err := e.Traded(context.Background(), trade(req.ID, "", "4")); err != nil {
		t.Fatalf("second inferred Traded: %v", err)
	}
	// at most one execution with no exec id
	if !ord.CumQty.Equal(d("4")) {
		t.Errorf("cum qty = %s, want 4", ord.CumQty)
	}
}

func TestTradedCompleteCorrectsQty(t *testing.T) {
	e, _, strat := newTestEngine(t, nil)
	ord := place(t, e, "100", "10")
	req := e.Req(ord.FirstReq)
	confirm(t, e, req.ID, "X1")

	// the venue says filled and reports more than could be left
	rep := trade(req.ID, "E1", "12")
	rep.FilledHint = TriTrue
	if err := e.Traded(context.Background(), rep); err != nil {
		t.Fatalf("Traded: %v", err)
	}
	if req.Status != model.ReqStatusFilled {
		t.Fatalf("status = %v, want Filled", req.Status)
	}
	if !ord.CumQty.Equal(d("10")) {
		t.Errorf("cum qty = %s, want clamp to 10", ord.CumQty)
	}
	if !strat.trades[0].Qty.Equal(d("10")) {
		t.Errorf("exec qty = %s, want 10", strat.trades[0].Qty)
	}
}

func TestTradedLeavesHintForcesComplete(t *testing.T) {
	e, _, _ := newTestEngine(t, nil)
	ord := place(t, e, "100", "10")
	req := e.Req(ord.FirstReq)
	confirm(t, e, req.ID, "X1")

	// locally 4 of 10 looks partial, but the venue reports zero leaves
	// (the remainder was cancelled venue-side, e.g. an IOC residue)
	zero := decimal.Zero
	rep := trade(req.ID, "E1", "4")
	rep.LeavesHint = &zero
	if err := e.Traded(context.Background(), rep); err != nil {
		t.Fatalf("Traded: %v", err)
	}
	if req.Status != model.ReqStatusFilled {
		t.Fatalf("status = %v, want Filled on venue leaves=0", req.Status)
	}
	if !ord.Inactive {
		t.Error("order must go inactive")
	}
}

func TestReplacedRetiresTarget(t *testing.T) {
	e, _, _ := newTestEngine(t, nil)
	ord := place(t, e, "100", "10")
	confirm(t, e, ord.FirstReq, "X1")

	// fill part of the original, then modify up
	if err := e.Traded(context.Background(), trade(ord.FirstReq, "E1", "3")); err != nil {
		t.Fatalf("Traded: %v", err)
	}
	ok, err := e.Modify(context.Background(), ord.ID, d("101"), d("12"), d("12"), decimal.Zero)
	if err != nil || !ok {
		t.Fatalf("Modify = %v, %v", ok, err)
	}
	mod := e.Req(ord.LastReq)

	now := time.Now()
	if err := e.Replaced(context.Background(), mod.ID, "X2", "", now, now); err != nil {
		t.Fatalf("Replaced: %v", err)
	}
	if got := e.Req(ord.FirstReq).Status; got != model.ReqStatusReplaced {
		t.Errorf("orig status = %v, want Replaced", got)
	}
	if mod.Status != model.ReqStatusConfirmed {
		t.Errorf("modify status = %v, want Confirmed", mod.Status)
	}
	// 3 already filled count against the new quantity of 12
	if !mod.LeavesQty.Equal(d("9")) {
		t.Errorf("leaves = %s, want 9", mod.LeavesQty)
	}
}

func TestCancelledRetiresOrder(t *testing.T) {
	e, _, strat := newTestEngine(t, nil)
	ord := place(t, e, "100", "10")
	confirm(t, e, ord.FirstReq, "X1")
	ok, err := e.Cancel(context.Background(), ord.ID)
	if err != nil || !ok {
		t.Fatalf("Cancel = %v, %v", ok, err)
	}
	clx := e.Req(ord.CxlPending)

	now := time.Now()
	if err := e.Cancelled(context.Background(), clx.ID, "", now, now); err != nil {
		t.Fatalf("Cancelled: %v", err)
	}
	if got := e.Req(ord.FirstReq).Status; got != model.ReqStatusCancelled {
		t.Errorf("target status = %v, want Cancelled", got)
	}
	if !ord.Inactive || ord.HasCxlPending() {
		t.Errorf("inactive/cxlPending = %v/%v", ord.Inactive, ord.CxlPending)
	}
	if strat.cancels != 1 {
		t.Errorf("OnCancel fired %d times, want 1", strat.cancels)
	}

	// re-delivery is stale
	if err := e.Cancelled(context.Background(), clx.ID, "", now, now); err != nil {
		t.Fatalf("redelivered Cancelled: %v", err)
	}
	if strat.cancels != 1 {
		t.Errorf("stale cancel fired the callback again")
	}
}

func TestRejectedNewRetiresOrder(t *testing.T) {
	e, _, strat := newTestEngine(t, nil)
	ord := place(t, e, "100", "10")
	req := e.Req(ord.FirstReq)

	now := time.Now()
	if err := e.Rejected(context.Background(), req.ID, 11, "unknown symbol", now, now); err != nil {
		t.Fatalf("Rejected: %v", err)
	}
	if req.Status != model.ReqStatusFailed {
		t.Errorf("status = %v, want Failed", req.Status)
	}
	if !ord.Inactive || ord.NFails != 1 {
		t.Errorf("inactive/nfails = %v/%d", ord.Inactive, ord.NFails)
	}
	if len(strat.errors) != 1 || strat.errors[0].code != 11 {
		t.Errorf("errors = %+v", strat.errors)
	}
}

func TestCancelRejectProbFilledOneShot(t *testing.T) {
	e, _, strat := newTestEngine(t, nil)
	ord := place(t, e, "100", "10")
	confirm(t, e, ord.FirstReq, "X1")
	tgt := e.Req(ord.FirstReq)

	ok, err := e.Cancel(context.Background(), ord.ID)
	if err != nil || !ok {
		t.Fatalf("Cancel = %v, %v", ok, err)
	}
	clx1 := e.Req(ord.CxlPending)

	now := time.Now()
	if err := e.CancelOrReplaceRejected(context.Background(), clx1.ID, TriTrue, 0,
		"too late to cancel", now, now); err != nil {
		t.Fatalf("CancelOrReplaceRejected: %v", err)
	}
	if clx1.Status != model.ReqStatusFailed {
		t.Errorf("cancel status = %v, want Failed", clx1.Status)
	}
	if ord.HasCxlPending() {
		t.Error("CxlPending not cleared")
	}
	if !tgt.ProbFilled {
		t.Error("target not flagged probably-filled")
	}
	if len(strat.errors) != 1 || !strat.errors[0].probFilled {
		t.Fatalf("errors = %+v, want one with probFilled", strat.errors)
	}

	// the hint is one-shot: a second failed cancel reports it false
	ok, err = e.Cancel(context.Background(), ord.ID)
	if err != nil || !ok {
		t.Fatalf("second Cancel = %v, %v", ok, err)
	}
	clx2 := e.Req(ord.CxlPending)
	if err := e.CancelOrReplaceRejected(context.Background(), clx2.ID, TriTrue, 0,
		"too late to cancel", now, now); err != nil {
		t.Fatalf("CancelOrReplaceRejected: %v", err)
	}
	if len(strat.errors) != 2 || strat.errors[1].probFilled {
		t.Errorf("errors = %+v, second must not repeat probFilled", strat.errors)
	}
}

func TestModifyRejectUnwindsToOriginalTerms(t *testing.T) {
	e, _, strat := newTestEngine(t, nil)
	ord := place(t, e, "100", "10")
	confirm(t, e, ord.FirstReq, "X1")
	ok, err := e.Modify(context.Background(), ord.ID, d("101"), d("12"), d("12"), decimal.Zero)
	if err != nil || !ok {
		t.Fatalf("Modify = %v, %v", ok, err)
	}
	mod := e.Req(ord.LastReq)

	now := time.Now()
	if err := e.CancelOrReplaceRejected(context.Background(), mod.ID, TriFalse, 1,
		"price out of band", now, now); err != nil {
		t.Fatalf("CancelOrReplaceRejected: %v", err)
	}
	if mod.Status != model.ReqStatusFailed {
		t.Errorf("modify status = %v, want Failed", mod.Status)
	}
	if ord.Inactive {
		t.Error("a failed modify must leave the order live")
	}
	if len(strat.errors) != 1 {
		t.Fatalf("errors = %+v", strat.errors)
	}
	// the original request still carries the live terms
	if cur := e.Req(ord.FirstReq); cur.Status != model.ReqStatusConfirmed {
		t.Errorf("orig status = %v, want Confirmed", cur.Status)
	}
}

func TestTandemCancelLegRejectKillsNewLeg(t *testing.T) {
	e, _, _ := newTestEngine(t, func(c *Config) { c.HasAtomicModify = false })
	ord := place(t, e, "100", "10")
	confirm(t, e, ord.FirstReq, "X1")
	ok, err := e.Modify(context.Background(), ord.ID, d("101"), d("12"), d("12"), decimal.Zero)
	if err != nil || !ok {
		t.Fatalf("Modify = %v, %v", ok, err)
	}
	nleg := e.Req(ord.LastReq)
	clx := e.Req(nleg.Prev)

	now := time.Now()
	if err := e.CancelOrReplaceRejected(context.Background(), clx.ID, TriFalse, 2,
		"cannot cancel", now, now); err != nil {
		t.Fatalf("CancelOrReplaceRejected: %v", err)
	}
	if clx.Status != model.ReqStatusFailed {
		t.Errorf("cancel leg status = %v, want Failed", clx.Status)
	}
	// the new leg already reached the wire: it cannot die in place, it is
	// flagged and a cancel goes out for it
	if !nleg.WillFail {
		t.Error("in-flight new leg not flagged willFail")
	}
	last := e.Req(ord.LastReq)
	if last.Kind != model.ReqKindCancel || last.OrigID != nleg.ID {
		t.Errorf("expected explicit cancel of the new leg, got %v target %d", last.Kind, last.OrigID)
	}
}

func TestPartFillMarksPendingModifyFailing(t *testing.T) {
	e, _, _ := newTestEngine(t, func(c *Config) { c.HasPartFilledModify = false })
	ord := place(t, e, "100", "10")
	confirm(t, e, ord.FirstReq, "X1")
	ok, err := e.Modify(context.Background(), ord.ID, d("101"), d("12"), d("12"), decimal.Zero)
	if err != nil || !ok {
		t.Fatalf("Modify = %v, %v", ok, err)
	}
	mod := e.Req(ord.LastReq)

	// the target part-fills while the modify is in flight: on this venue the
	// modify can no longer succeed
	if err := e.Traded(context.Background(), trade(ord.FirstReq, "E1", "3")); err != nil {
		t.Fatalf("Traded: %v", err)
	}
	if !mod.WillFail {
		t.Error("in-flight modify not flagged willFail after part fill")
	}

	// and a further modify attempt on a part-filled order is refused
	ok, err = e.Modify(context.Background(), ord.ID, d("102"), d("12"), d("12"), decimal.Zero)
	if err != nil || ok {
		t.Errorf("Modify after part fill = %v, %v, want false, nil", ok, err)
	}
}

func TestSessionRejectOfCancelClearsPending(t *testing.T) {
	e, _, _ := newTestEngine(t, nil)
	ord := place(t, e, "100", "10")
	confirm(t, e, ord.FirstReq, "X1")
	ok, err := e.Cancel(context.Background(), ord.ID)
	if err != nil || !ok {
		t.Fatalf("Cancel = %v, %v", ok, err)
	}
	clx := e.Req(ord.CxlPending)

	if err := e.RejectedBySession(context.Background(), clx.ID, "session down", time.Now()); err != nil {
		t.Fatalf("RejectedBySession: %v", err)
	}
	if clx.Status != model.ReqStatusFailed {
		t.Errorf("status = %v, want Failed", clx.Status)
	}
	if ord.HasCxlPending() {
		t.Error("CxlPending not cleared")
	}
	if ord.Inactive {
		t.Error("a dropped cancel must not retire the order")
	}
}

func TestSessionRejectOfNewRetiresOrder(t *testing.T) {
	e, _, _ := newTestEngine(t, nil)
	ord := place(t, e, "100", "10")

	if err := e.RejectedBySession(context.Background(), ord.FirstReq, "session down", time.Now()); err != nil {
		t.Fatalf("RejectedBySession: %v", err)
	}
	if !ord.Inactive {
		t.Error("order must retire when its New never made it out")
	}
}

func TestCancelFillRaceLeavesFilled(t *testing.T) {
	e, _, strat := newTestEngine(t, nil)
	ord := place(t, e, "100", "10")
	confirm(t, e, ord.FirstReq, "X1")
	ok, err := e.Cancel(context.Background(), ord.ID)
	if err != nil || !ok {
		t.Fatalf("Cancel = %v, %v", ok, err)
	}
	clx := e.Req(ord.CxlPending)

	// the fill wins the race while the cancel is in flight
	rep := trade(ord.FirstReq, "E1", "10")
	rep.FilledHint = TriTrue
	if err := e.Traded(context.Background(), rep); err != nil {
		t.Fatalf("Traded: %v", err)
	}
	if got := e.Req(ord.FirstReq).Status; got != model.ReqStatusFilled {
		t.Fatalf("status = %v, want Filled", got)
	}

	// the venue then reports the cancel anyway; the terminal state stands
	now := time.Now()
	if err := e.Cancelled(context.Background(), clx.ID, "X1", now, now); err != nil {
		t.Fatalf("late Cancelled: %v", err)
	}
	if got := e.Req(ord.FirstReq).Status; got != model.ReqStatusFilled {
		t.Errorf("terminal status overwritten to %v", got)
	}
	if strat.cancels != 0 {
		t.Errorf("OnCancel fired %d times on a filled order", strat.cancels)
	}
}

func TestFailedModifyKeepsOrderCancellable(t *testing.T) {
	e, proto, _ := newTestEngine(t, nil)
	ord := place(t, e, "100", "10")
	confirm(t, e, ord.FirstReq, "X1")

	ok, err := e.Modify(context.Background(), ord.ID, d("101"), d("12"), d("12"), decimal.Zero)
	if err != nil || !ok {
		t.Fatalf("Modify = %v, %v", ok, err)
	}
	mod := e.Req(ord.LastReq)

	now := time.Now()
	if err := e.CancelOrReplaceRejected(context.Background(), mod.ID, TriFalse, 0, "too late", now, now); err != nil {
		t.Fatalf("CancelOrReplaceRejected: %v", err)
	}
	if mod.Status != model.ReqStatusFailed {
		t.Fatalf("modify status = %v, want Failed", mod.Status)
	}

	// the original request is still live at the venue and must stay reachable
	ok, err = e.Cancel(context.Background(), ord.ID)
	if err != nil || !ok {
		t.Fatalf("Cancel after failed modify = %v, %v", ok, err)
	}
	sends := proto.sent()
	last := sends[len(sends)-1]
	if last.op != "cancel" || last.origID != ord.FirstReq {
		t.Errorf("cancel = %+v, want the original request as target", last)
	}
}

func TestFailedModifyKeepsOrderModifiable(t *testing.T) {
	e, proto, _ := newTestEngine(t, nil)
	ord := place(t, e, "100", "10")
	confirm(t, e, ord.FirstReq, "X1")

	ok, err := e.Modify(context.Background(), ord.ID, d("101"), d("12"), d("12"), decimal.Zero)
	if err != nil || !ok {
		t.Fatalf("first Modify = %v, %v", ok, err)
	}
	mod := e.Req(ord.LastReq)
	now := time.Now()
	if err := e.CancelOrReplaceRejected(context.Background(), mod.ID, TriFalse, 0, "too late", now, now); err != nil {
		t.Fatalf("CancelOrReplaceRejected: %v", err)
	}

	ok, err = e.Modify(context.Background(), ord.ID, d("102"), d("15"), d("15"), decimal.Zero)
	if err != nil || !ok {
		t.Fatalf("Modify after failed modify = %v, %v", ok, err)
	}
	sends := proto.sent()
	last := sends[len(sends)-1]
	if last.op != "modify" || last.origID != ord.FirstReq {
		t.Errorf("modify = %+v, want the original request as target", last)
	}
}

func TestTradedDeduplicatesExecIDWithoutVenueSupport(t *testing.T) {
	e, _, strat := newTestEngine(t, func(c *Config) { c.HasExecIDs = false })
	ord := place(t, e, "100", "10")
	confirm(t, e, ord.FirstReq, "X1")

	// the venue is described as sending no exec ids but sends them anyway
	if err := e.Traded(context.Background(), trade(ord.FirstReq, "E1", "4")); err != nil {
		t.Fatalf("Traded: %v", err)
	}
	if err := e.Traded(context.Background(), trade(ord.FirstReq, "E1", "4")); err != nil {
		t.Fatalf("redelivered Traded: %v", err)
	}
	if !ord.CumQty.Equal(d("4")) {
		t.Errorf("cum qty = %s after duplicate, want 4", ord.CumQty)
	}
	if len(strat.trades) != 1 {
		t.Errorf("trades = %d, want 1", len(strat.trades))
	}
}

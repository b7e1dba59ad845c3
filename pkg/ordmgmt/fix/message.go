package fixgateway

import (
	"context"
	"strconv"
	"time"

	"github.com/quickfixgo/enum"
	"github.com/quickfixgo/fix44/executionreport"
	"github.com/quickfixgo/fix44/ordercancelreject"
	"github.com/quickfixgo/quickfix"
	"go.uber.org/zap"

	"github.com/joripage/tradegate/pkg/ordmgmt"
	"github.com/joripage/tradegate/pkg/ordmgmt/model"
)

// onExecutionReport translates one venue report into the matching
// reconciliation handler. The ExecType drives the dispatch; OrdStatus and
// LeavesQty ride along as classifier hints on fills.
func (a *Application) onExecutionReport(msg executionreport.ExecutionReport,
	_ quickfix.SessionID) quickfix.MessageRejectError {

	ctx := context.Background()
	recvTime := time.Now()

	execType, _ := msg.GetExecType()
	clOrd, _ := msg.GetClOrdID()
	exchID, _ := msg.GetOrderID()
	transactTime, _ := msg.GetTransactTime()
	reqID := parseClOrdID(clOrd)

	var err error
	switch execType {
	case enum.ExecType_PENDING_NEW:
		err = a.gateway.engine.Acknowledged(reqID)

	case enum.ExecType_NEW:
		err = a.gateway.engine.ConfirmedNew(ctx, reqID, exchID, "", transactTime, recvTime)

	case enum.ExecType_REPLACED:
		err = a.gateway.engine.Replaced(ctx, reqID, exchID, "", transactTime, recvTime)

	case enum.ExecType_CANCELED, enum.ExecType_EXPIRED, enum.ExecType_DONE_FOR_DAY:
		err = a.gateway.engine.Cancelled(ctx, reqID, exchID, transactTime, recvTime)

	case enum.ExecType_REJECTED:
		text, _ := msg.GetText()
		reason, _ := msg.GetOrdRejReason()
		err = a.gateway.engine.Rejected(ctx, reqID, rejReasonCode(reason), text, transactTime, recvTime)

	case enum.ExecType_TRADE, enum.ExecType_FILL, enum.ExecType_PARTIAL_FILL:
		err = a.gateway.engine.Traded(ctx, a.tradeReport(msg, reqID, exchID, transactTime, recvTime))

	default:
		zap.S().Debugf("execution report with exec type %v ignored", execType)
	}
	if err != nil {
		zap.S().Errorw("reconcile inbound report fail",
			"cl_ord_id", clOrd, "exec_type", execType, "err", err)
	}
	return nil
}

func (a *Application) tradeReport(msg executionreport.ExecutionReport, reqID model.ReqID,
	exchID string, exchTime, recvTime time.Time) *ordmgmt.TradeReport {

	lastQty, _ := msg.GetLastQty()
	lastPx, _ := msg.GetLastPx()
	execID, _ := msg.GetExecID()

	rep := &ordmgmt.TradeReport{
		ReqID:    reqID,
		ExchID:   exchID,
		ExecID:   execID,
		Px:       lastPx,
		Qty:      lastQty,
		ExchTime: exchTime,
		RecvTime: recvTime,
	}
	if leaves, err := msg.GetLeavesQty(); err == nil {
		l := leaves
		rep.LeavesHint = &l
	}
	if status, err := msg.GetOrdStatus(); err == nil {
		switch status {
		case enum.OrdStatus_FILLED:
			rep.FilledHint = ordmgmt.TriTrue
		case enum.OrdStatus_PARTIALLY_FILLED:
			rep.FilledHint = ordmgmt.TriFalse
		}
	}
	if fee, err := msg.GetCommission(); err == nil {
		rep.Fee = fee
	}
	return rep
}

// onOrderCancelReject is the venue declining a cancel or a cancel-replace.
// CxlRejReason=UNKNOWN_ORDER is the "target no longer exists" hint that
// feeds the probable-fill inference.
func (a *Application) onOrderCancelReject(msg ordercancelreject.OrderCancelReject,
	_ quickfix.SessionID) quickfix.MessageRejectError {

	clOrd, _ := msg.GetClOrdID()
	text, _ := msg.GetText()
	reason, _ := msg.GetCxlRejReason()

	targetGone := ordmgmt.TriUnknown
	switch reason {
	case enum.CxlRejReason_UNKNOWN_ORDER, enum.CxlRejReason_TOO_LATE_TO_CANCEL:
		targetGone = ordmgmt.TriTrue
	}

	recvTime := time.Now()
	err := a.gateway.engine.CancelOrReplaceRejected(context.Background(),
		parseClOrdID(clOrd), targetGone, 0, text, recvTime, recvTime)
	if err != nil {
		zap.S().Errorw("reconcile cancel reject fail", "cl_ord_id", clOrd, "err", err)
	}
	return nil
}

func rejReasonCode(reason enum.OrdRejReason) int {
	v, err := strconv.Atoi(string(reason))
	if err != nil {
		return 0
	}
	return v
}

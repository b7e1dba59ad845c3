package ordmgmt

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/joripage/tradegate/pkg/ordmgmt/model"
)

// ProtoEngine is the wire-facing collaborator: it serializes and transmits
// (or buffers) requests for a concrete venue protocol. A send fills in the
// request's SeqNum and, where known synchronously, its ExchID; the engine
// itself promotes the status and stamps the send time. Network-level
// reconnection is entirely the ProtoEngine's concern.
type ProtoEngine interface {
	// NewOrder transmits a New (or emulated new-leg) request.
	NewOrder(ctx context.Context, ord *model.Order, req *model.Request) error

	// CancelOrder transmits a Cancel (or emulated cancel-leg) of target.
	CancelOrder(ctx context.Context, ord *model.Order, req, target *model.Request) error

	// ModifyOrder transmits a native cancel-replace of target.
	ModifyOrder(ctx context.Context, ord *model.Order, req, target *model.Request) error

	// CancelAllOrders issues a native mass-cancel; side and symbol are
	// optional filters ("" / empty side = all).
	CancelAllOrders(ctx context.Context, side model.OrderSide, symbol, account string) error

	// FlushOrders forces out anything buffered and returns the send time.
	FlushOrders(ctx context.Context) (time.Time, error)

	IsActive() bool
}

// Strategy receives the order-lifecycle callbacks. Implementations must not
// re-enter the engine; panics are contained at the call site.
type Strategy interface {
	OnConfirm(req *model.Request)
	OnCancel(ord *model.Order, exchTime, recvTime time.Time)
	OnOurTrade(exec *model.Execution)
	OnOrderError(req *model.Request, code int, text string, probFilled bool, exchTime, recvTime time.Time)
}

// QtyKind tells the risk manager which quantity dimension an OnOrder call
// books against.
type QtyKind int

const (
	QtyKindContracts QtyKind = iota
	QtyKindCash
)

// RiskManager books and unwinds exposure. OnOrder is called on every
// placement, modification, cancellation and rejection with the new and old
// terms; OnTrade exactly once per newly recorded execution.
type RiskManager interface {
	OnOrder(ord *model.Order, isReal bool, qk QtyKind,
		newPx, newQty, oldPx, oldQty decimal.Decimal, ts time.Time) error
	OnTrade(exec *model.Execution)
}

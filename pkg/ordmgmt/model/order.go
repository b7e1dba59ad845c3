package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Order is the aggregate record of one client trading intent across its whole
// lifetime. It is created by Place and mutated only by the reconciliation
// engine afterwards; it is never destroyed within a run.
type Order struct {
	ID OrderID

	Symbol      string
	Side        OrderSide
	Type        OrderType
	TimeInForce OrderTimeInForce
	ExpireDate  time.Time
	TickSize    decimal.Decimal

	StratID string
	Account string

	// Inactive is write-once true: once the order is fully filled, cancelled
	// or failed it never becomes active again.
	Inactive bool

	// CxlPending holds the id of the outstanding cancel request, 0 if none.
	CxlPending ReqID

	// CumQty is the total filled quantity across all requests; monotonic.
	CumQty decimal.Decimal

	// NFails counts venue rejections of requests on this order.
	NFails int

	FirstReq ReqID
	LastReq  ReqID
	LastExec ExecNo

	UserData any
}

func (o *Order) IsBuy() bool { return o.Side == OrderSideBuy }

// HasCxlPending reports whether a cancel is already outstanding.
func (o *Order) HasCxlPending() bool { return o.CxlPending != 0 }

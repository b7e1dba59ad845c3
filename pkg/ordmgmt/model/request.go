package model

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

type (
	// OrderID and ReqID are process-unique, strictly increasing ordinals
	// handed out by the arena. 0 is "none".
	OrderID uint64
	ReqID   uint64
	ExecNo  uint64
)

// Price/quantity sentinels. Cancel and cancel-leg requests carry no price or
// quantity of their own; market orders carry no price.
var (
	PxUnset  = decimal.NewFromInt(-1)
	QtyUnset = decimal.NewFromInt(-1)
)

func IsPxSet(px decimal.Decimal) bool   { return px.Sign() >= 0 }
func IsQtySet(qty decimal.Decimal) bool { return qty.Sign() > 0 }

// Request is one discrete wire attempt (New / Modify / Cancel or one leg of
// an emulated modify) against an order. Requests are never recycled: once a
// request leaves Indicated its identity is fixed for the run.
type Request struct {
	ID      ReqID
	OrigID  ReqID // the request this one acts on; 0 for New
	OrderID OrderID
	Kind    ReqKind
	Status  ReqStatus

	Px      decimal.Decimal
	Qty     decimal.Decimal
	QtyShow decimal.Decimal
	QtyMin  decimal.Decimal

	// LeavesQty is maintained by the reconciliation engine: Qty minus the
	// sum of all executions recorded against this request.
	LeavesQty decimal.Decimal

	// ExchID is the venue-assigned order id, empty until first reported.
	// MDEntryID cross-links the request to market-data events.
	ExchID    string
	MDEntryID string

	SeqNum   int64
	AttemptN int

	// WillFail marks a still-unconfirmed dependent whose target has already
	// failed, been cancelled or become unmodifiable; it is consumed when the
	// dependent itself goes terminal.
	WillFail bool
	// ProbFilled is a one-shot hint that the target of a failed cancel or
	// modify may in fact have been filled already.
	ProbFilled bool

	// Chronological chain of requests within the owning order.
	Next ReqID
	Prev ReqID

	CreatedAt time.Time
	SentAt    time.Time
	ConfAt    time.Time
	EndedAt   time.Time
}

// Validate checks the construction-time invariants.
func (r *Request) Validate() error {
	if r.ID == 0 || r.OrderID == 0 {
		return fmt.Errorf("request %d: missing id or order id", r.ID)
	}
	if r.OrigID != 0 && r.ID <= r.OrigID {
		return fmt.Errorf("request %d: id must exceed target id %d", r.ID, r.OrigID)
	}
	switch {
	case r.Kind.IsCancel():
		// Cancels act on the target's terms, they carry none of their own.
		if IsPxSet(r.Px) || IsQtySet(r.Qty) {
			return fmt.Errorf("request %d: %s must carry unset px/qty", r.ID, r.Kind)
		}
	default:
		if !IsQtySet(r.Qty) {
			return fmt.Errorf("request %d: %s qty must be positive", r.ID, r.Kind)
		}
		if r.QtyShow.Sign() < 0 || r.QtyShow.GreaterThan(r.Qty) {
			return fmt.Errorf("request %d: qtyShow out of [0, qty]", r.ID)
		}
		if r.QtyMin.Sign() < 0 || r.QtyMin.GreaterThan(r.Qty) {
			return fmt.Errorf("request %d: qtyMin out of [0, qty]", r.ID)
		}
	}
	return nil
}

// IsIceberg reports whether the request displays less than its full quantity.
func (r *Request) IsIceberg() bool {
	return IsQtySet(r.Qty) && r.QtyShow.Sign() >= 0 && r.QtyShow.LessThan(r.Qty)
}

package model

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

type OrderEventType string

const (
	OrderEventPlaced    OrderEventType = "Placed"
	OrderEventConfirmed OrderEventType = "Confirmed"
	OrderEventReplaced  OrderEventType = "Replaced"
	OrderEventCancelled OrderEventType = "Cancelled"
	OrderEventRejected  OrderEventType = "Rejected"
	OrderEventTraded    OrderEventType = "Traded"
)

// OrderEvent is the flattened record published to the event bus for every
// order-state change; the worker persists these downstream.
type OrderEvent struct {
	EventID  string          `json:"event_id"`
	Type     OrderEventType  `json:"type"`
	OrderID  OrderID         `json:"order_id"`
	ReqID    ReqID           `json:"req_id"`
	Symbol   string          `json:"symbol"`
	Side     OrderSide       `json:"side"`
	Px       decimal.Decimal `json:"px"`
	Qty      decimal.Decimal `json:"qty"`
	ExecID   string          `json:"exec_id,omitempty"`
	ExchID   string          `json:"exch_id,omitempty"`
	ExchTime time.Time       `json:"exch_time"`
	RecvTime time.Time       `json:"recv_time"`
}

// NewEventID is unique per (request, event type, exec id) so re-publishes
// collapse on the consumer side.
func NewEventID(reqID ReqID, typ OrderEventType, execID string) string {
	if execID != "" {
		return fmt.Sprintf("%d-%s-%s", reqID, typ, execID)
	}
	return fmt.Sprintf("%d-%s", reqID, typ)
}

package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Execution is one venue-reported trade, tied to exactly one request.
// ExecID de-duplicates re-deliveries; at most one execution with an empty
// ExecID may exist per order (an inferred, never explicitly reported fill).
type Execution struct {
	No      ExecNo
	ExecID  string
	ReqID   ReqID
	OrderID OrderID

	Symbol string
	Side   OrderSide

	Px  decimal.Decimal
	Qty decimal.Decimal
	Fee decimal.Decimal

	// Aggr is true when our side was the aggressor, if the venue says.
	Aggr bool

	ExchTime time.Time
	RecvTime time.Time
}

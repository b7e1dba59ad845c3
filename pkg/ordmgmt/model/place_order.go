package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// PlaceOrder carries the client's terms for a new order. TickSize comes from
// the instrument reference data; 0 disables price rounding.
type PlaceOrder struct {
	Symbol      string
	Side        OrderSide
	Type        OrderType
	TimeInForce OrderTimeInForce
	ExpireDate  time.Time

	Px      decimal.Decimal
	Qty     decimal.Decimal
	QtyShow decimal.Decimal
	QtyMin  decimal.Decimal

	TickSize decimal.Decimal

	StratID string
	Account string
}

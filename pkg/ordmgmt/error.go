package ordmgmt

import "errors"

var (
	// Caller argument errors: surfaced synchronously, nothing mutated.
	ErrInvalidQty     = errors.New("qty must be positive")
	ErrInvalidQtyShow = errors.New("qtyShow must be within [0, qty]")
	ErrInvalidQtyMin  = errors.New("qtyMin must be within [0, qty]")
	ErrInvalidPx      = errors.New("px inconsistent with order type")
	ErrMktNotAllowed  = errors.New("market orders not supported by venue")
	ErrNotModifiable  = errors.New("order type cannot be modified")
	ErrRiskRejected   = errors.New("rejected by risk manager")

	// Protocol inconsistency: an inbound event references state we do not
	// have, or contradicts it. Hard errors unless the engine runs relaxed.
	ErrUnknownReq    = errors.New("unknown request id")
	ErrUnknownOrder  = errors.New("unknown order id")
	ErrUnknownExchID = errors.New("unknown exchange order id")
	ErrKindMismatch  = errors.New("request kind mismatch")
)

package model

type OrderSide string

const (
	OrderSideBuy  OrderSide = "BUY"
	OrderSideSell OrderSide = "SELL"
)

type OrderType string

const (
	OrderTypeLimit  OrderType = "LIMIT"
	OrderTypeMarket OrderType = "MARKET"
	OrderTypeStop   OrderType = "STOP"
)

type OrderTimeInForce string

const (
	OrderTimeInForceDAY OrderTimeInForce = "DAY"
	OrderTimeInForceIOC OrderTimeInForce = "IOC"
	OrderTimeInForceFOK OrderTimeInForce = "FOK"
	OrderTimeInForceGTC OrderTimeInForce = "GTC"
	OrderTimeInForceGTD OrderTimeInForce = "GTD"
)

// ReqKind is a bitmask: the two mod-leg kinds combine the base Cancel/New bit
// with a leg marker, so IsCancel/IsNew tests cover the emulated legs too.
type ReqKind int

const (
	ReqKindNew     ReqKind = 0x01
	ReqKindModify  ReqKind = 0x02
	ReqKindCancel  ReqKind = 0x04
	ReqKindModLegN ReqKind = 0x09 // "new" leg of an emulated cancel/new modify
	ReqKindModLegC ReqKind = 0x0C // "cancel" leg of an emulated cancel/new modify
)

func (k ReqKind) IsNew() bool    { return k&ReqKindNew != 0 }
func (k ReqKind) IsModify() bool { return k&ReqKindModify != 0 }
func (k ReqKind) IsCancel() bool { return k&ReqKindCancel != 0 }
func (k ReqKind) IsModLeg() bool { return k == ReqKindModLegN || k == ReqKindModLegC }

func (k ReqKind) String() string {
	switch k {
	case ReqKindNew:
		return "New"
	case ReqKindModify:
		return "Modify"
	case ReqKindCancel:
		return "Cancel"
	case ReqKindModLegN:
		return "ModLegN"
	case ReqKindModLegC:
		return "ModLegC"
	}
	return "UNDEFINED"
}

// ReqStatus values are ordered: a request only moves to a numerically larger
// status, with the single exception Cancelled -> Replaced used by the
// cancel/new-leg emulation of an atomic modify.
type ReqStatus int

const (
	ReqStatusIndicated ReqStatus = iota // created, not yet transmitted
	ReqStatusNew                        // transmitted to the venue
	ReqStatusAcked                      // venue acknowledged receipt
	ReqStatusConfirmed                  // venue confirmed the order/change is live
	ReqStatusPartFilled
	ReqStatusFilled
	ReqStatusCancelled
	ReqStatusReplaced
	ReqStatusFailed
)

// IsTerminal reports whether no further transition is legal from s
// (except Cancelled -> Replaced, handled explicitly by the engine).
func (s ReqStatus) IsTerminal() bool { return s >= ReqStatusFilled }

func (s ReqStatus) String() string {
	switch s {
	case ReqStatusIndicated:
		return "Indicated"
	case ReqStatusNew:
		return "New"
	case ReqStatusAcked:
		return "Acked"
	case ReqStatusConfirmed:
		return "Confirmed"
	case ReqStatusPartFilled:
		return "PartFilled"
	case ReqStatusFilled:
		return "Filled"
	case ReqStatusCancelled:
		return "Cancelled"
	case ReqStatusReplaced:
		return "Replaced"
	case ReqStatusFailed:
		return "Failed"
	}
	return "UNDEFINED"
}

// PipelineMode controls how eagerly a dependent request may be transmitted
// relative to the confirmation state of the request it targets.
type PipelineMode int

const (
	// PipelineWait0: full pipelining; a dependent may follow its target as
	// soon as the target has been transmitted. Incompatible with venues that
	// require a server-assigned id on the wire.
	PipelineWait0 PipelineMode = iota
	// PipelineWait1: a dependent waits until its target is confirmed live.
	PipelineWait1
	// PipelineWait2: strictest; the "new" leg of an emulated modify waits
	// until the "cancel" leg's target is confirmed cancelled. Incompatible
	// with native atomic modify.
	PipelineWait2
)

// Ready is the three-valued result of the readiness gate.
type Ready int

const (
	ReadyOK Ready = iota
	ReadyThrottled
	ReadyOrigBlock // blocked by the state of the targeted request
)

func (r Ready) String() string {
	switch r {
	case ReadyOK:
		return "OK"
	case ReadyThrottled:
		return "Throttled"
	case ReadyOrigBlock:
		return "OrigBlock"
	}
	return "UNDEFINED"
}

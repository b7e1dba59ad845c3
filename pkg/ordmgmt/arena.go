package ordmgmt

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/joripage/tradegate/pkg/ordmgmt/model"
	"github.com/joripage/tradegate/pkg/ordmgmt/statestore"
)

// Arena is the fixed-capacity, append-only home of all orders, requests and
// executions for one run. Records are addressed by their strictly increasing
// ids, so an id's ordinal position also orders it in time; records are never
// recycled and their addresses are stable for the process lifetime.
//
// Capacity exhaustion and out-of-range lookups panic: both indicate a sizing
// misconfiguration or state corruption, not a recoverable condition.
type Arena struct {
	ordBase  uint64
	reqBase  uint64
	execBase uint64

	orders []model.Order
	reqs   []model.Request
	execs  []model.Execution

	// reqsByExchID is maintained only when the venue supports lookup by its
	// own order id and keeps that id stable enough to be useful.
	reqsByExchID map[string]model.ReqID

	// execIDs de-duplicates venue executions per order. The empty exec id
	// is a valid key: exactly one inferred (never reported) fill is allowed.
	execIDs map[model.OrderID]map[string]struct{}

	useExchIDMap bool
}

func NewArena(cfg *Config, st statestore.State) *Arena {
	a := &Arena{
		ordBase:      max64(st.NextOrdN, 1),
		reqBase:      max64(st.NextReqN, 1),
		execBase:     max64(st.NextTrdN, 1),
		orders:       make([]model.Order, 0, cfg.MaxOrders),
		reqs:         make([]model.Request, 0, cfg.MaxReqs),
		execs:        make([]model.Execution, 0, cfg.MaxExecs),
		execIDs:      make(map[model.OrderID]map[string]struct{}),
		useExchIDMap: cfg.UseExchIDMap,
	}
	if a.useExchIDMap {
		a.reqsByExchID = make(map[string]model.ReqID, cfg.MaxReqs)
	}
	return a
}

func max64(a, b uint64) uint64 {
	if a > b {
		return a
	}
	return b
}

// State snapshots the next-id counters for checkpointing.
func (a *Arena) State() statestore.State {
	return statestore.State{
		NextOrdN: a.ordBase + uint64(len(a.orders)),
		NextReqN: a.reqBase + uint64(len(a.reqs)),
		NextTrdN: a.execBase + uint64(len(a.execs)),
	}
}

func (a *Arena) NewOrder(symbol string, side model.OrderSide, typ model.OrderType,
	tif model.OrderTimeInForce, expire time.Time, stratID, account string) *model.Order {

	if len(a.orders) == cap(a.orders) {
		panic(fmt.Sprintf("ordmgmt: arena: order capacity %d exhausted", cap(a.orders)))
	}
	a.orders = append(a.orders, model.Order{
		ID:          model.OrderID(a.ordBase + uint64(len(a.orders))),
		Symbol:      symbol,
		Side:        side,
		Type:        typ,
		TimeInForce: tif,
		ExpireDate:  expire,
		StratID:     stratID,
		Account:     account,
		CumQty:      decimal.Zero,
	})
	return &a.orders[len(a.orders)-1]
}

// NewRequest allocates the next request and links it onto the tail of the
// owning order's chain.
func (a *Arena) NewRequest(ord *model.Order, kind model.ReqKind, origID model.ReqID,
	px, qty, qtyShow, qtyMin decimal.Decimal, now time.Time) *model.Request {

	if len(a.reqs) == cap(a.reqs) {
		panic(fmt.Sprintf("ordmgmt: arena: request capacity %d exhausted", cap(a.reqs)))
	}
	req := model.Request{
		ID:        model.ReqID(a.reqBase + uint64(len(a.reqs))),
		OrigID:    origID,
		OrderID:   ord.ID,
		Kind:      kind,
		Status:    model.ReqStatusIndicated,
		Px:        px,
		Qty:       qty,
		QtyShow:   qtyShow,
		QtyMin:    qtyMin,
		LeavesQty: qty,
		CreatedAt: now,
	}
	if kind.IsCancel() {
		req.LeavesQty = decimal.Zero
	}
	if err := req.Validate(); err != nil {
		panic("ordmgmt: arena: " + err.Error())
	}
	a.reqs = append(a.reqs, req)
	r := &a.reqs[len(a.reqs)-1]

	if ord.LastReq != 0 {
		prev := a.Req(ord.LastReq)
		prev.Next = r.ID
		r.Prev = prev.ID
	} else {
		ord.FirstReq = r.ID
	}
	ord.LastReq = r.ID
	return r
}

func (a *Arena) NewExecution(ord *model.Order, req *model.Request, execID string,
	px, qty, fee decimal.Decimal, aggr bool, exchTime, recvTime time.Time) *model.Execution {

	if len(a.execs) == cap(a.execs) {
		panic(fmt.Sprintf("ordmgmt: arena: execution capacity %d exhausted", cap(a.execs)))
	}
	a.execs = append(a.execs, model.Execution{
		No:       model.ExecNo(a.execBase + uint64(len(a.execs))),
		ExecID:   execID,
		ReqID:    req.ID,
		OrderID:  ord.ID,
		Symbol:   ord.Symbol,
		Side:     ord.Side,
		Px:       px,
		Qty:      qty,
		Fee:      fee,
		Aggr:     aggr,
		ExchTime: exchTime,
		RecvTime: recvTime,
	})
	e := &a.execs[len(a.execs)-1]
	ord.LastExec = e.No
	return e
}

// Order returns the order with the given id; panics on an id this arena
// never allocated.
func (a *Arena) Order(id model.OrderID) *model.Order {
	idx := uint64(id) - a.ordBase
	if uint64(id) < a.ordBase || idx >= uint64(len(a.orders)) {
		panic(fmt.Sprintf("ordmgmt: arena: order id %d out of range", id))
	}
	return &a.orders[idx]
}

// Req returns the request with the given id, nil for id 0; panics on an id
// this arena never allocated.
func (a *Arena) Req(id model.ReqID) *model.Request {
	if id == 0 {
		return nil
	}
	idx := uint64(id) - a.reqBase
	if uint64(id) < a.reqBase || idx >= uint64(len(a.reqs)) {
		panic(fmt.Sprintf("ordmgmt: arena: request id %d out of range", id))
	}
	return &a.reqs[idx]
}

func (a *Arena) Exec(no model.ExecNo) *model.Execution {
	if no == 0 {
		return nil
	}
	idx := uint64(no) - a.execBase
	if uint64(no) < a.execBase || idx >= uint64(len(a.execs)) {
		panic(fmt.Sprintf("ordmgmt: arena: execution no %d out of range", no))
	}
	return &a.execs[idx]
}

// HasOrder reports whether the id belongs to this run without panicking.
func (a *Arena) HasOrder(id model.OrderID) bool {
	return uint64(id) >= a.ordBase && uint64(id)-a.ordBase < uint64(len(a.orders))
}

func (a *Arena) HasReq(id model.ReqID) bool {
	return uint64(id) >= a.reqBase && uint64(id)-a.reqBase < uint64(len(a.reqs))
}

// NumOrders returns the count of orders allocated in this run; together with
// OrderAt it supports the reverse scan of the mass-cancel emulation.
func (a *Arena) NumOrders() int { return len(a.orders) }

func (a *Arena) OrderAt(i int) *model.Order { return &a.orders[i] }

// MapExchID records the venue-assigned id of a request; first writer wins.
func (a *Arena) MapExchID(exchID string, id model.ReqID) {
	if !a.useExchIDMap || exchID == "" {
		return
	}
	if _, ok := a.reqsByExchID[exchID]; !ok {
		a.reqsByExchID[exchID] = id
	}
}

// ReqByExchID resolves a request by the venue-assigned id, nil if unknown.
func (a *Arena) ReqByExchID(exchID string) *model.Request {
	if !a.useExchIDMap || exchID == "" {
		return nil
	}
	id, ok := a.reqsByExchID[exchID]
	if !ok {
		return nil
	}
	return a.Req(id)
}

// SeenExecID records the exec id against the order, reporting whether it was
// already present.
func (a *Arena) SeenExecID(ordID model.OrderID, execID string) bool {
	set, ok := a.execIDs[ordID]
	if !ok {
		set = make(map[string]struct{})
		a.execIDs[ordID] = set
	}
	if _, dup := set[execID]; dup {
		return true
	}
	set[execID] = struct{}{}
	return false
}

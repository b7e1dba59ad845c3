package repo

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/joripage/tradegate/pkg/ordmgmt/model"
)

// OrderEventRecord mirrors model.OrderEvent for postgres. EventID is the
// primary key, so re-delivered events collapse on conflict.
type OrderEventRecord struct {
	EventID  string          `gorm:"primaryKey"`
	Type     string          `gorm:"index"`
	OrderID  uint64          `gorm:"index"`
	ReqID    uint64
	Symbol   string
	Side     string
	Px       decimal.Decimal `gorm:"type:numeric"`
	Qty      decimal.Decimal `gorm:"type:numeric"`
	ExecID   string
	ExchID   string
	ExchTime time.Time
	RecvTime time.Time
}

func (OrderEventRecord) TableName() string { return "order_events" }

func NewOrderEventRecord(ev *model.OrderEvent) *OrderEventRecord {
	return &OrderEventRecord{
		EventID:  ev.EventID,
		Type:     string(ev.Type),
		OrderID:  uint64(ev.OrderID),
		ReqID:    uint64(ev.ReqID),
		Symbol:   ev.Symbol,
		Side:     string(ev.Side),
		Px:       ev.Px,
		Qty:      ev.Qty,
		ExecID:   ev.ExecID,
		ExchID:   ev.ExchID,
		ExchTime: ev.ExchTime,
		RecvTime: ev.RecvTime,
	}
}

// ExecutionRecord is one venue-reported trade row. (req_id, exec_id) is
// unique so redelivered trade events insert nothing twice.
type ExecutionRecord struct {
	ExecNo   uint64          `gorm:"primaryKey;autoIncrement"`
	ExecID   string          `gorm:"uniqueIndex:uq_executions_req_exec"`
	ReqID    uint64          `gorm:"uniqueIndex:uq_executions_req_exec"`
	OrderID  uint64          `gorm:"index"`
	Symbol   string
	Side     string
	Px       decimal.Decimal `gorm:"type:numeric"`
	Qty      decimal.Decimal `gorm:"type:numeric"`
	Fee      decimal.Decimal `gorm:"type:numeric"`
	Aggr     bool
	ExchTime time.Time
	RecvTime time.Time
}

func (ExecutionRecord) TableName() string { return "executions" }

// NewExecutionRecordFromEvent materializes a Traded bus event as an
// execution row; fields the event does not carry stay zero.
func NewExecutionRecordFromEvent(ev *model.OrderEvent) *ExecutionRecord {
	return &ExecutionRecord{
		ExecID:   ev.ExecID,
		ReqID:    uint64(ev.ReqID),
		OrderID:  uint64(ev.OrderID),
		Symbol:   ev.Symbol,
		Side:     string(ev.Side),
		Px:       ev.Px,
		Qty:      ev.Qty,
		ExchTime: ev.ExchTime,
		RecvTime: ev.RecvTime,
	}
}

func NewExecutionRecord(exec *model.Execution) *ExecutionRecord {
	return &ExecutionRecord{
		ExecNo:   uint64(exec.No),
		ExecID:   exec.ExecID,
		ReqID:    uint64(exec.ReqID),
		OrderID:  uint64(exec.OrderID),
		Symbol:   exec.Symbol,
		Side:     string(exec.Side),
		Px:       exec.Px,
		Qty:      exec.Qty,
		Fee:      exec.Fee,
		Aggr:     exec.Aggr,
		ExchTime: exec.ExchTime,
		RecvTime: exec.RecvTime,
	}
}

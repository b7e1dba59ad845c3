package repo

import (
	"context"
)

type IOrderEvent interface {
	Create(ctx context.Context, record *OrderEventRecord) (*OrderEventRecord, error)
	BulkCreate(ctx context.Context, records []*OrderEventRecord) ([]*OrderEventRecord, error)
}

type IExecution interface {
	Create(ctx context.Context, record *ExecutionRecord) (*ExecutionRecord, error)
	BulkCreate(ctx context.Context, records []*ExecutionRecord) ([]*ExecutionRecord, error)
}

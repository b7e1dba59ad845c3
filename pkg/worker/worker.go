package worker

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/joripage/tradegate/pkg/ordmgmt/model"
	"github.com/joripage/tradegate/pkg/ordmgmt/repo"
)

const fetchBatch = 100

// Worker drains the order-event stream into postgres. Events are keyed by
// event_id so replays after a crash insert nothing twice.
type Worker struct {
	orderEvent repo.IOrderEvent
	execution  repo.IExecution
}

func NewWorker(r repo.IRepo) *Worker {
	return &Worker{
		orderEvent: r.OrderEvent(),
		execution:  r.Execution(),
	}
}

// Run consumes the durable pull subscription until ctx is cancelled.
func (w *Worker) Run(ctx context.Context, sub *nats.Subscription) error {
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		msgs, err := sub.Fetch(fetchBatch, nats.MaxWait(time.Second))
		if err != nil {
			if errors.Is(err, nats.ErrTimeout) {
				continue
			}
			if errors.Is(err, context.Canceled) {
				return nil
			}
			zap.S().Warnf("fetch events fail: %v", err)
			continue
		}

		records := make([]*repo.OrderEventRecord, 0, len(msgs))
		execs := make([]*repo.ExecutionRecord, 0, len(msgs))
		acked := make([]*nats.Msg, 0, len(msgs))
		for _, msg := range msgs {
			var ev model.OrderEvent
			if err := json.Unmarshal(msg.Data, &ev); err != nil {
				zap.S().Warnf("drop undecodable event: %v", err)
				_ = msg.Ack()
				continue
			}
			records = append(records, repo.NewOrderEventRecord(&ev))
			if ev.Type == model.OrderEventTraded {
				execs = append(execs, repo.NewExecutionRecordFromEvent(&ev))
			}
			acked = append(acked, msg)
		}
		if len(records) == 0 {
			continue
		}

		if _, err := w.orderEvent.BulkCreate(ctx, records); err != nil {
			zap.S().Errorf("persist events fail, will redeliver: %v", err)
			continue
		}
		if len(execs) > 0 {
			if _, err := w.execution.BulkCreate(ctx, execs); err != nil {
				zap.S().Errorf("persist executions fail, will redeliver: %v", err)
				continue
			}
		}
		for _, msg := range acked {
			_ = msg.Ack()
		}
	}
}

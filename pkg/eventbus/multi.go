package eventbus

import (
	"context"

	"github.com/joripage/tradegate/pkg/ordmgmt/model"
)

// Publisher matches ordmgmt.EventPublisher; redeclared here so the bus
// package does not import the engine.
type Publisher interface {
	Publish(ctx context.Context, ev *model.OrderEvent) error
}

// Multi fans one event out to several publishers; the first error wins but
// every publisher still sees the event.
type Multi []Publisher

func (m Multi) Publish(ctx context.Context, ev *model.OrderEvent) error {
	var firstErr error
	for _, p := range m {
		if err := p.Publish(ctx, ev); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

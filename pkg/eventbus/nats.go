package eventbus

import (
	"context"
	"encoding/json"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/joripage/tradegate/pkg/ordmgmt/model"
)

// JetStreamConfig configures the NATS JetStream event bus.
type JetStreamConfig struct {
	URL     string `yaml:"url"`
	Stream  string `yaml:"stream"`
	Subject string `yaml:"subject"`
}

// JetStreamBus publishes order events to a JetStream stream. Publishing is
// async; the engine never blocks on broker acks.
type JetStreamBus struct {
	nc      *nats.Conn
	js      nats.JetStreamContext
	subject string
}

func NewJetStreamBus(cfg JetStreamConfig) (*JetStreamBus, error) {
	nc, err := nats.Connect(cfg.URL)
	if err != nil {
		return nil, err
	}
	js, err := nc.JetStream(nats.PublishAsyncMaxPending(65536))
	if err != nil {
		nc.Close()
		return nil, err
	}
	if _, err := js.AddStream(&nats.StreamConfig{
		Name:     cfg.Stream,
		Subjects: []string{cfg.Stream + ".*"},
	}); err != nil {
		nc.Close()
		return nil, err
	}
	return &JetStreamBus{nc: nc, js: js, subject: cfg.Subject}, nil
}

func (b *JetStreamBus) Publish(ctx context.Context, ev *model.OrderEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	_, err = b.js.PublishAsync(b.subject, data)
	return err
}

// PullSubscribe creates a durable pull consumer on the event subject, for
// the persistence worker.
func (b *JetStreamBus) PullSubscribe(durable string) (*nats.Subscription, error) {
	return b.js.PullSubscribe(b.subject, durable)
}

func (b *JetStreamBus) Close() {
	select {
	case <-b.js.PublishAsyncComplete():
	case <-time.After(5 * time.Second):
	}
	b.nc.Close()
}

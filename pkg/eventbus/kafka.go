package eventbus

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/cenkalti/backoff"
	kafka "github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/joripage/tradegate/pkg/ordmgmt/model"
)

// KafkaConfig configures the Kafka mirror of the event stream. The mirror
// feeds downstream analytics; the durable store of record stays on
// JetStream plus postgres.
type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
	GroupID string   `yaml:"group_id"`
}

// KafkaBus publishes order events to a Kafka topic, keyed by order id so
// per-order event order is preserved within a partition.
type KafkaBus struct {
	w     *kafka.Writer
	topic string
}

func NewKafkaBus(cfg KafkaConfig) *KafkaBus {
	w := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Balancer:               &kafka.Hash{},
		BatchSize:              100,
		BatchBytes:             1 << 20,
		BatchTimeout:           50 * time.Millisecond,
		AllowAutoTopicCreation: true,
		RequiredAcks:           kafka.RequireNone,
		Async:                  true,
	}
	return &KafkaBus{w: w, topic: cfg.Topic}
}

func (b *KafkaBus) Publish(ctx context.Context, ev *model.OrderEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return b.w.WriteMessages(ctx, kafka.Message{
		Topic: b.topic,
		Key:   []byte(strconv.FormatUint(uint64(ev.OrderID), 10)),
		Value: data,
		Time:  time.Now(),
	})
}

func (b *KafkaBus) Close() error {
	return b.w.Close()
}

// KafkaEventConsumer reads mirrored order events from Kafka and hands them
// to a handler, retrying with exponential backoff before committing.
type KafkaEventConsumer struct {
	r          *kafka.Reader
	maxRetries uint64
}

func NewKafkaEventConsumer(cfg KafkaConfig) *KafkaEventConsumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     cfg.Brokers,
		GroupID:     cfg.GroupID,
		Topic:       cfg.Topic,
		StartOffset: kafka.FirstOffset,
		MaxWait:     500 * time.Millisecond,
		MinBytes:    1,
		MaxBytes:    10 << 20,
	})
	return &KafkaEventConsumer{r: r, maxRetries: 5}
}

func (c *KafkaEventConsumer) Run(ctx context.Context, handler func(context.Context, *model.OrderEvent) error) error {
	for {
		m, err := c.r.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil
			}
			return err
		}

		var ev model.OrderEvent
		if err := json.Unmarshal(m.Value, &ev); err != nil {
			zap.S().Warnf("drop undecodable event offset=%d err=%v", m.Offset, err)
			_ = c.r.CommitMessages(ctx, m)
			continue
		}

		op := func() error { return handler(ctx, &ev) }
		bo := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), c.maxRetries), ctx)
		if err := backoff.Retry(op, bo); err != nil {
			zap.S().Errorf("event handler gave up event=%s err=%v", ev.EventID, err)
		}
		_ = c.r.CommitMessages(ctx, m)
	}
}

func (c *KafkaEventConsumer) Close() error {
	return c.r.Close()
}

package changefeed

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// KafkaFeed writes change events to a topic keyed by order id, which keeps the events
// of one order in a single partition and therefore in write order.
type KafkaFeed struct {
	writer  *kafka.Writer
	brokers []string
	topic   string
	groupID string
	backoff Backoff
	logger  *zap.Logger
}

// NewKafkaFeed creates a feed on the given brokers and topic. Consumers join groupID.
func NewKafkaFeed(brokers []string, topic, groupID string, logger *zap.Logger) *KafkaFeed {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &KafkaFeed{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
			BatchTimeout: 50 * time.Millisecond,
		},
		brokers: brokers,
		topic:   topic,
		groupID: groupID,
		backoff: DefaultBackoff,
		logger:  logger,
	}
}

// Publish writes the event to the topic
func (f *KafkaFeed) Publish(ctx context.Context, event ChangeEvent) error {
	body, err := Encode(event)
	if err != nil {
		return err
	}
	err = f.writer.WriteMessages(ctx, kafka.Message{
		Key:     []byte(event.OrderID),
		Value:   body,
		Time:    event.At,
		Headers: []kafka.Header{{Key: "event_id", Value: []byte(event.EventID)}},
	})
	if err != nil {
		return fmt.Errorf("failed to write change event: %w", err)
	}
	return nil
}

// Subscribe reads the topic as part of the consumer group. The reader has already
// moved past a fetched message, so a failed handler is retried in place with backoff
// and the offset is committed only once it succeeds.
func (f *KafkaFeed) Subscribe(ctx context.Context, handler Handler) error {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  f.brokers,
		GroupID:  f.groupID,
		Topic:    f.topic,
		MinBytes: 1,
		MaxBytes: 10e6,
		MaxWait:  time.Second,
	})
	defer func() {
		if err := reader.Close(); err != nil {
			f.logger.Warn("failed to close kafka reader", zap.Error(err))
		}
	}()

	for {
		m, err := reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return ctx.Err()
			}
			f.logger.Error("failed to fetch change event", zap.Error(err))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(5 * time.Second):
			}
			continue
		}

		event, err := Decode(m.Value)
		if err != nil {
			f.logger.Error("skipping undecodable change event",
				zap.Int("partition", m.Partition),
				zap.Int64("offset", m.Offset),
				zap.Error(err))
			f.commit(ctx, reader, m)
			continue
		}
		if err := deliver(ctx, handler, event, f.backoff, f.logger); err != nil {
			return err
		}
		f.commit(ctx, reader, m)
	}
}

// Close flushes and closes the writer
func (f *KafkaFeed) Close() error {
	return f.writer.Close()
}

func (f *KafkaFeed) commit(ctx context.Context, reader *kafka.Reader, m kafka.Message) {
	if err := reader.CommitMessages(ctx, m); err != nil {
		f.logger.Warn("failed to commit change event offset", zap.Int64("offset", m.Offset), zap.Error(err))
	}
}

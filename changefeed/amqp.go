package changefeed

import (
	"context"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// AMQPFeed publishes change events to a RabbitMQ fanout exchange and consumes them
// from a queue bound to it. A named queue survives restarts and is shared by every
// replica; an empty queue name gives each process its own exclusive queue.
type AMQPFeed struct {
	conn     *amqp.Connection
	exchange string
	queue    string
	prefetch int
	logger   *zap.Logger
}

// DialAMQP connects to the broker
func DialAMQP(url, exchange, queue string, logger *zap.Logger) (*AMQPFeed, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to rabbitmq: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AMQPFeed{
		conn:     conn,
		exchange: exchange,
		queue:    queue,
		prefetch: 16,
		logger:   logger,
	}, nil
}

// Publish sends the event to the fanout exchange
func (f *AMQPFeed) Publish(ctx context.Context, event ChangeEvent) error {
	ch, err := f.conn.Channel()
	if err != nil {
		return fmt.Errorf("failed to open channel: %w", err)
	}
	defer ch.Close()

	if err := f.declareExchange(ch); err != nil {
		return err
	}

	body, err := Encode(event)
	if err != nil {
		return err
	}

	err = ch.PublishWithContext(ctx, f.exchange, "", false, false, amqp.Publishing{
		DeliveryMode: amqp.Persistent,
		ContentType:  "application/json",
		MessageId:    event.EventID,
		Timestamp:    event.At,
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("failed to publish change event: %w", err)
	}
	return nil
}

// Subscribe consumes the bound queue with manual acks. Handler failures are requeued,
// undecodable messages are dropped.
func (f *AMQPFeed) Subscribe(ctx context.Context, handler Handler) error {
	ch, err := f.conn.Channel()
	if err != nil {
		return fmt.Errorf("failed to open channel: %w", err)
	}
	defer ch.Close()

	if err := f.declareExchange(ch); err != nil {
		return err
	}

	shared := f.queue != ""
	q, err := ch.QueueDeclare(f.queue, shared, !shared, !shared, false, nil)
	if err != nil {
		return fmt.Errorf("failed to declare queue: %w", err)
	}
	if err := ch.QueueBind(q.Name, "", f.exchange, false, nil); err != nil {
		return fmt.Errorf("failed to bind queue: %w", err)
	}
	if err := ch.Qos(f.prefetch, 0, false); err != nil {
		return fmt.Errorf("failed to set qos: %w", err)
	}

	deliveries, err := ch.Consume(q.Name, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("failed to start consuming: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-deliveries:
			if !ok {
				return fmt.Errorf("rabbitmq delivery channel closed")
			}
			event, err := Decode(d.Body)
			if err != nil {
				f.logger.Error("dropping undecodable change event", zap.String("message_id", d.MessageId), zap.Error(err))
				_ = d.Nack(false, false)
				continue
			}
			if err := handler(ctx, event); err != nil {
				f.logger.Error("change event handler failed, requeueing",
					zap.String("order_id", event.OrderID),
					zap.String("event_id", event.EventID),
					zap.Error(err))
				_ = d.Nack(false, true)
				continue
			}
			if err := d.Ack(false); err != nil {
				f.logger.Warn("failed to ack change event", zap.String("event_id", event.EventID), zap.Error(err))
			}
		}
	}
}

// Close closes the broker connection
func (f *AMQPFeed) Close() error {
	return f.conn.Close()
}

func (f *AMQPFeed) declareExchange(ch *amqp.Channel) error {
	if err := ch.ExchangeDeclare(f.exchange, "fanout", true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare exchange: %w", err)
	}
	return nil
}

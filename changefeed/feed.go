package changefeed

import (
	"encoding/json"
	"fmt"

	"go.uber.org/zap"
)

// Supported transports
const (
	DriverMemory = "memory"
	DriverAMQP   = "amqp"
	DriverKafka  = "kafka"
)

// Options selects and configures a transport
type Options struct {
	Driver       string
	Buffer       int
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string
	KafkaBrokers []string
	KafkaTopic   string
	KafkaGroupID string
}

// Open builds the transport named by opts.Driver
func Open(opts Options, logger *zap.Logger) (Feed, error) {
	switch opts.Driver {
	case "", DriverMemory:
		return NewHub(opts.Buffer, logger), nil
	case DriverAMQP:
		if opts.AMQPURL == "" {
			return nil, fmt.Errorf("AMQP_URL is required for the amqp change feed")
		}
		return DialAMQP(opts.AMQPURL, opts.AMQPExchange, opts.AMQPQueue, logger)
	case DriverKafka:
		if len(opts.KafkaBrokers) == 0 {
			return nil, fmt.Errorf("KAFKA_BROKERS is required for the kafka change feed")
		}
		return NewKafkaFeed(opts.KafkaBrokers, opts.KafkaTopic, opts.KafkaGroupID, logger), nil
	default:
		return nil, fmt.Errorf("unknown change feed driver %q", opts.Driver)
	}
}

// Encode serializes an event for a broker
func Encode(event ChangeEvent) ([]byte, error) {
	body, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal change event: %w", err)
	}
	return body, nil
}

// Decode parses an event received from a broker
func Decode(body []byte) (ChangeEvent, error) {
	var event ChangeEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return ChangeEvent{}, fmt.Errorf("failed to unmarshal change event: %w", err)
	}
	if event.OrderID == "" {
		return ChangeEvent{}, fmt.Errorf("change event has no order id")
	}
	return event, nil
}

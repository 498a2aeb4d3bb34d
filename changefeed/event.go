// Package changefeed carries (before, after) snapshots of every order write to
// whoever watches the collection: the notifier and the admin panel caches.
package changefeed

import (
	"context"
	"time"

	"github.com/kendall-kelly/jersey-repair-api/models"
)

// ChangeEvent is one committed write. Before is nil on create, After is nil on delete.
// Redelivered copies of an event keep the same EventID.
type ChangeEvent struct {
	EventID string        `json:"eventId"`
	OrderID string        `json:"orderId"`
	Before  *models.Order `json:"before,omitempty"`
	After   *models.Order `json:"after,omitempty"`
	At      time.Time     `json:"at"`
}

// Handler consumes a change event. Returning an error gets the event delivered again:
// the hub and Kafka retry it in place with backoff, AMQP requeues it.
type Handler func(ctx context.Context, event ChangeEvent) error

// Publisher emits change events after a write has been committed
type Publisher interface {
	Publish(ctx context.Context, event ChangeEvent) error
}

// Subscriber delivers change events to handler until ctx is cancelled
type Subscriber interface {
	Subscribe(ctx context.Context, handler Handler) error
}

// Feed is a transport that both publishes and subscribes
type Feed interface {
	Publisher
	Subscriber
	Close() error
}

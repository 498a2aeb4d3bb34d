package changefeed

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Hub is the in-process feed. Subscribe never loses an event: each subscriber has an
// unbounded queue and a failed handler is retried with backoff before the next event.
// Subscribers that can rebuild their state from the store use Lossy instead, which
// bounds the queue and drops events once it is full.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*hubSubscriber
	buffer  int
	backoff Backoff
	closed  bool
	logger  *zap.Logger
}

// NewHub creates an in-memory change feed. buffer bounds the queue of lossy subscribers.
func NewHub(buffer int, logger *zap.Logger) *Hub {
	if buffer <= 0 {
		buffer = 256
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		clients: make(map[string]*hubSubscriber),
		buffer:  buffer,
		backoff: DefaultBackoff,
		logger:  logger,
	}
}

// WithBackoff sets the retry policy for failed handlers
func (h *Hub) WithBackoff(b Backoff) *Hub {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.backoff = b
	return h
}

// Publish fans the event out to every current subscriber. It never blocks on a slow one.
func (h *Hub) Publish(ctx context.Context, event ChangeEvent) error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for id, sub := range h.clients {
		if !sub.push(event) {
			h.logger.Warn("change feed subscriber is full, dropping event",
				zap.String("subscriber", id),
				zap.String("order_id", event.OrderID),
				zap.String("event_id", event.EventID))
		}
	}
	return nil
}

// Subscribe registers a lossless subscriber and runs handler for each event until ctx
// is done or the hub is closed.
func (h *Hub) Subscribe(ctx context.Context, handler Handler) error {
	return h.subscribe(ctx, handler, 0)
}

// Lossy returns a view of the hub whose subscribers keep at most buffer pending events
// and whose handler failures are only logged
func (h *Hub) Lossy() *LossyHub {
	return &LossyHub{hub: h}
}

// Subscribers returns the number of registered subscribers
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close ends every subscription. Events still queued are not delivered.
func (h *Hub) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil
	}
	h.closed = true
	for id, sub := range h.clients {
		sub.close()
		delete(h.clients, id)
	}
	return nil
}

func (h *Hub) subscribe(ctx context.Context, handler Handler, limit int) error {
	id := uuid.NewString()
	sub := newHubSubscriber(limit)

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.clients[id] = sub
	backoff := h.backoff
	h.mu.Unlock()

	defer h.unregister(id)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-sub.wake:
		}
		for {
			event, ok, closed := sub.pop()
			if closed {
				return nil
			}
			if !ok {
				break
			}
			if limit > 0 {
				if err := handler(ctx, event); err != nil {
					h.logger.Error("change feed handler failed",
						zap.String("order_id", event.OrderID),
						zap.String("event_id", event.EventID),
						zap.Error(err))
				}
				continue
			}
			if err := deliver(ctx, handler, event, backoff, h.logger); err != nil {
				return err
			}
		}
	}
}

func (h *Hub) unregister(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if sub, ok := h.clients[id]; ok {
		delete(h.clients, id)
		sub.close()
	}
}

// hubSubscriber is a FIFO of pending events. limit 0 means unbounded.
type hubSubscriber struct {
	mu     sync.Mutex
	queue  []ChangeEvent
	limit  int
	closed bool
	wake   chan struct{}
}

func newHubSubscriber(limit int) *hubSubscriber {
	return &hubSubscriber{limit: limit, wake: make(chan struct{}, 1)}
}

// push queues the event and reports false when a bounded queue is full
func (s *hubSubscriber) push(event ChangeEvent) bool {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return true
	}
	if s.limit > 0 && len(s.queue) >= s.limit {
		s.mu.Unlock()
		return false
	}
	s.queue = append(s.queue, event)
	s.mu.Unlock()
	s.signal()
	return true
}

func (s *hubSubscriber) pop() (event ChangeEvent, ok, closed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ChangeEvent{}, false, true
	}
	if len(s.queue) == 0 {
		return ChangeEvent{}, false, false
	}
	event = s.queue[0]
	s.queue[0] = ChangeEvent{}
	s.queue = s.queue[1:]
	return event, true, false
}

func (s *hubSubscriber) close() {
	s.mu.Lock()
	s.closed = true
	s.queue = nil
	s.mu.Unlock()
	s.signal()
}

func (s *hubSubscriber) signal() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// LossyHub subscribes to a Hub with bounded queues. Panel caches use it: a dropped
// event only delays a cache until its next refresh.
type LossyHub struct {
	hub *Hub
}

// Publish forwards to the hub
func (l *LossyHub) Publish(ctx context.Context, event ChangeEvent) error {
	return l.hub.Publish(ctx, event)
}

// Subscribe registers a bounded subscriber on the hub
func (l *LossyHub) Subscribe(ctx context.Context, handler Handler) error {
	return l.hub.subscribe(ctx, handler, l.hub.buffer)
}

// Close is a no-op; the hub is closed by whoever opened it
func (l *LossyHub) Close() error {
	return nil
}

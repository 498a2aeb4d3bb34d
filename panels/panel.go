// Package panels implements the admin back-office panels. Each panel caches the slice
// of orders its filter selects and mutates them only through lifecycle transitions.
package panels

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kendall-kelly/jersey-repair-api/lifecycle"
	"github.com/kendall-kelly/jersey-repair-api/metrics"
	"github.com/kendall-kelly/jersey-repair-api/models"
	"github.com/kendall-kelly/jersey-repair-api/store"
)

var (
	// ErrMutationInFlight rejects a second concurrent action on the same order
	ErrMutationInFlight = errors.New("a mutation for this order is already in flight")
	// ErrActionNotOffered is an invalid transition: the panel does not offer the action
	ErrActionNotOffered = fmt.Errorf("%w: action not offered by this panel", lifecycle.ErrInvalidTransition)
	// ErrUnknownPanel means no panel has the requested name
	ErrUnknownPanel = errors.New("unknown panel")
)

//go:generate mockgen -source=panel.go -destination=mocks/mock_panels.go

// OrderStore is the slice of the order store a panel needs
type OrderStore interface {
	Get(ctx context.Context, id string) (models.Order, error)
	Query(ctx context.Context, filter store.Filter) ([]models.Order, error)
	Update(ctx context.Context, id string, patch store.Patch) (models.Order, error)
}

// Panel is one admin view with its local cache
type Panel struct {
	def    Definition
	store  OrderStore
	logger *zap.Logger

	mu       sync.RWMutex
	cache    map[string]models.Order
	inflight map[string]struct{}
	loaded   bool
	// seen is the newest UpdatedAt applied per order, kept after the order leaves
	// the cache so a late snapshot cannot bring it back.
	seen map[string]time.Time
}

// NewPanel creates a panel for def
func NewPanel(def Definition, orders OrderStore, logger *zap.Logger) *Panel {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Panel{
		def:      def,
		store:    orders,
		logger:   logger.With(zap.String("panel", string(def.Name))),
		cache:    make(map[string]models.Order),
		inflight: make(map[string]struct{}),
		seen:     make(map[string]time.Time),
	}
}

func (p *Panel) Name() Name { return p.def.Name }
func (p *Panel) Title() string { return p.def.Title }
func (p *Panel) Filter() store.Filter { return p.def.Filter }
func (p *Panel) Actions() []lifecycle.ActionKind { return slices.Clone(p.def.Actions) }
func (p *Panel) Offers(kind lifecycle.ActionKind) bool { return slices.Contains(p.def.Actions, kind) }

// Refresh reloads the cache from the store
func (p *Panel) Refresh(ctx context.Context) ([]models.Order, error) {
	orders, err := p.store.Query(ctx, p.def.Filter)
	if err != nil {
		return nil, fmt.Errorf("refresh %s panel: %w", p.def.Name, err)
	}

	p.mu.Lock()
	cache := make(map[string]models.Order, len(orders))
	for _, o := range orders {
		if p.seen[o.ID].After(o.UpdatedAt) {
			// a newer write was applied while the query ran
			if cached, ok := p.cache[o.ID]; ok {
				cache[o.ID] = cached
			}
			continue
		}
		cache[o.ID] = o.Clone()
		p.seen[o.ID] = o.UpdatedAt
	}
	p.cache = cache
	p.loaded = true
	p.mu.Unlock()

	p.updateGauge()
	p.logger.Debug("panel refreshed", zap.Int("orders", len(orders)))
	return p.Cached(), nil
}

// List returns the cached orders, loading them first if the panel has never been refreshed
func (p *Panel) List(ctx context.Context) ([]models.Order, error) {
	p.mu.RLock()
	loaded := p.loaded
	p.mu.RUnlock()
	if !loaded {
		return p.Refresh(ctx)
	}
	return p.Cached(), nil
}

// Cached returns a snapshot of the cache, newest first
func (p *Panel) Cached() []models.Order {
	p.mu.RLock()
	orders := make([]models.Order, 0, len(p.cache))
	for _, o := range p.cache {
		orders = append(orders, o.Clone())
	}
	p.mu.RUnlock()

	slices.SortFunc(orders, func(a, b models.Order) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		if a.ID < b.ID {
			return -1
		}
		if a.ID > b.ID {
			return 1
		}
		return 0
	})
	return orders
}

// Get reads one order for the detail view. The read goes to the store and the cache
// is reconciled with the result.
func (p *Panel) Get(ctx context.Context, id string) (models.Order, error) {
	order, err := p.store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			p.Forget(id)
		}
		return models.Order{}, err
	}
	p.reconcile(order)
	return order, nil
}

// Apply runs one lifecycle action against an order. The cache changes only after the
// store accepted the write; on any failure it is left exactly as it was.
func (p *Panel) Apply(ctx context.Context, id string, action lifecycle.Action) (models.Order, error) {
	if !p.Offers(action.Kind) {
		return models.Order{}, &lifecycle.TransitionError{
			Action: action.Kind,
			Reason: fmt.Sprintf("the %s panel does not offer %s", p.def.Name, action.Kind),
			Err:    ErrActionNotOffered,
		}
	}
	if !p.begin(id) {
		return models.Order{}, ErrMutationInFlight
	}
	defer p.end(id)

	log := p.logger.With(zap.String("order_id", id), zap.String("action", string(action.Kind)))

	current, err := p.store.Get(ctx, id)
	if err != nil {
		return models.Order{}, err
	}

	res, err := lifecycle.Transition(current, action)
	if err != nil {
		metrics.TransitionsTotal.WithLabelValues(string(action.Kind), "rejected").Inc()
		log.Info("transition rejected", zap.Error(err))
		return models.Order{}, err
	}

	patch := store.Patch{
		Processing: store.DiffProcessing(current.Processing, res.Processing),
		Payment:    store.DiffPayment(current.Payment, res.Payment),
		UpdatedBy:  action.Actor,
	}
	updated, err := p.store.Update(ctx, id, patch)
	if err != nil {
		metrics.TransitionsTotal.WithLabelValues(string(action.Kind), "failed").Inc()
		log.Error("failed to write transition", zap.Error(err))
		return models.Order{}, err
	}

	metrics.TransitionsTotal.WithLabelValues(string(action.Kind), "applied").Inc()
	log.Info("transition applied",
		zap.String("status", string(updated.Processing.Status)),
		zap.String("repair_status", updated.Processing.RepairStatus))
	p.reconcile(updated)
	return updated, nil
}

// CanClose reports whether the detail view of an order may be dismissed
func (p *Panel) CanClose(id string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	_, busy := p.inflight[id]
	return !busy
}

// Observe reconciles the cache with a write made elsewhere. Snapshots older than the
// last one applied for the order are ignored, even when that one evicted it.
func (p *Panel) Observe(order models.Order) {
	p.reconcile(order)
}

// Forget drops an order from the cache. Its last seen UpdatedAt is kept.
func (p *Panel) Forget(id string) {
	p.mu.Lock()
	delete(p.cache, id)
	p.mu.Unlock()
	p.updateGauge()
}

// reconcile caches the order when it matches the panel filter and drops it otherwise.
// A snapshot older than the newest one seen for the order changes nothing.
func (p *Panel) reconcile(order models.Order) {
	p.mu.Lock()
	if p.seen[order.ID].After(order.UpdatedAt) {
		p.mu.Unlock()
		return
	}
	p.seen[order.ID] = order.UpdatedAt
	if p.def.Filter.Matches(order) {
		p.cache[order.ID] = order.Clone()
	} else {
		delete(p.cache, order.ID)
	}
	p.mu.Unlock()
	p.updateGauge()
}

func (p *Panel) begin(id string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, busy := p.inflight[id]; busy {
		return false
	}
	p.inflight[id] = struct{}{}
	return true
}

func (p *Panel) end(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.inflight, id)
}

func (p *Panel) updateGauge() {
	p.mu.RLock()
	n := len(p.cache)
	p.mu.RUnlock()
	metrics.PanelCacheItems.WithLabelValues(string(p.def.Name)).Set(float64(n))
}

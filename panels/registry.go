package panels

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kendall-kelly/jersey-repair-api/changefeed"
)

// Registry holds every panel and keeps their caches in step with the change feed
type Registry struct {
	panels map[Name]*Panel
	order  []Name
	logger *zap.Logger
}

// NewRegistry creates all panels from Definitions
func NewRegistry(orders OrderStore, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Registry{
		panels: make(map[Name]*Panel),
		logger: logger,
	}
	for _, def := range Definitions() {
		r.panels[def.Name] = NewPanel(def, orders, logger)
		r.order = append(r.order, def.Name)
	}
	return r
}

// Panel looks a panel up by name
func (r *Registry) Panel(name string) (*Panel, error) {
	p, ok := r.panels[Name(name)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownPanel, name)
	}
	return p, nil
}

// Panels returns every panel in display order
func (r *Registry) Panels() []*Panel {
	out := make([]*Panel, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.panels[name])
	}
	return out
}

// RefreshAll reloads every panel concurrently
func (r *Registry) RefreshAll(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, p := range r.Panels() {
		g.Go(func() error {
			_, err := p.Refresh(ctx)
			return err
		})
	}
	return g.Wait()
}

// Sync applies one change event to every panel cache
func (r *Registry) Sync(ctx context.Context, event changefeed.ChangeEvent) error {
	for _, p := range r.Panels() {
		if event.After == nil {
			p.Forget(event.OrderID)
			continue
		}
		p.Observe(*event.After)
	}
	return nil
}

// Run keeps the caches in sync until ctx is cancelled
func (r *Registry) Run(ctx context.Context, feed changefeed.Subscriber) error {
	r.logger.Info("panel cache sync started")
	err := feed.Subscribe(ctx, r.Sync)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

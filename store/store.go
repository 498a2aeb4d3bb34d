// Package store persists orders as documents and announces every committed write
// on the change feed.
package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/kendall-kelly/jersey-repair-api/changefeed"
	"github.com/kendall-kelly/jersey-repair-api/metrics"
	"github.com/kendall-kelly/jersey-repair-api/models"
)

var tracer = otel.Tracer("github.com/kendall-kelly/jersey-repair-api/store")

// Store is the order record adapter
type Store struct {
	db        *gorm.DB
	publisher changefeed.Publisher
	logger    *zap.Logger
	now       func() time.Time

	// serializes read-merge-write within this process
	mu sync.Mutex
}

// Option configures a Store
type Option func(*Store)

// WithClock overrides the time source used for timestamps
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// New creates a store. publisher may be nil, in which case no change events are emitted.
func New(db *gorm.DB, publisher changefeed.Publisher, logger *zap.Logger, opts ...Option) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Store{
		db:        db,
		publisher: publisher,
		logger:    logger,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) clock() time.Time {
	return s.now().UTC().Truncate(time.Microsecond)
}

// Get fetches one order by id
func (s *Store) Get(ctx context.Context, id string) (models.Order, error) {
	ctx, span := tracer.Start(ctx, "store.Get", trace.WithAttributes(attribute.String("order.id", id)))
	defer span.End()

	var rec orderRecord
	if err := s.db.WithContext(ctx).Where("id = ?", id).Take(&rec).Error; err != nil {
		return models.Order{}, s.fail(span, "get", id, err)
	}
	return rec.toOrder(), nil
}

// Query returns the orders matching the filter, newest first
func (s *Store) Query(ctx context.Context, filter Filter) ([]models.Order, error) {
	ctx, span := tracer.Start(ctx, "store.Query")
	defer span.End()

	var recs []orderRecord
	err := filter.apply(s.db.WithContext(ctx).Model(&orderRecord{})).
		Order("created_at DESC").
		Order("id").
		Find(&recs).Error
	if err != nil {
		return nil, s.fail(span, "query", "", err)
	}

	orders := make([]models.Order, 0, len(recs))
	for _, rec := range recs {
		orders = append(orders, rec.toOrder())
	}
	span.SetAttributes(attribute.Int("orders.count", len(orders)))
	return orders, nil
}

// Create inserts a new order. A missing id is generated, and missing lifecycle
// sub-records start as pending and unpaid.
func (s *Store) Create(ctx context.Context, order models.Order) (models.Order, error) {
	ctx, span := tracer.Start(ctx, "store.Create")
	defer span.End()

	created := order.Clone()
	if created.ID == "" {
		created.ID = uuid.NewString()
	}
	if created.Processing.Status == "" {
		created.Processing = models.NewProcessing()
	}
	if created.Payment.Status == "" {
		amount := created.Payment.Amount
		created.Payment = models.NewPayment()
		created.Payment.Amount = amount
	}
	now := s.clock()
	created.CreatedAt = now
	created.UpdatedAt = now
	span.SetAttributes(attribute.String("order.id", created.ID))

	rec := toRecord(created)
	if err := s.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return models.Order{}, s.fail(span, "create", created.ID, err)
	}

	metrics.OrdersCreatedTotal.Inc()
	s.publish(ctx, nil, &created)
	return created.Clone(), nil
}

// Update merges patch into the stored order and writes back only the changed
// columns. Disjoint patches applied concurrently both survive; two patches to the
// same field resolve last writer wins. updatedAt never decreases.
func (s *Store) Update(ctx context.Context, id string, patch Patch) (models.Order, error) {
	ctx, span := tracer.Start(ctx, "store.Update", trace.WithAttributes(attribute.String("order.id", id)))
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()

	var before, after models.Order
	changed := false
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		read := tx
		if tx.Dialector.Name() == "postgres" {
			read = tx.Clauses(clause.Locking{Strength: "UPDATE"})
		}
		var rec orderRecord
		if err := read.Where("id = ?", id).Take(&rec).Error; err != nil {
			return err
		}
		before = rec.toOrder()
		after = before

		if patch.ExpectedUpdatedAt != nil && !patch.ExpectedUpdatedAt.Equal(before.UpdatedAt) {
			return ErrPreconditionFailed
		}

		updates, merged := merge(before, patch)
		if len(updates) == 0 {
			return nil
		}

		merged.UpdatedAt = s.nextUpdatedAt(before.UpdatedAt)
		updates["updated_at"] = merged.UpdatedAt
		if patch.UpdatedBy != "" {
			merged.UpdatedBy = patch.UpdatedBy
			updates["updated_by"] = patch.UpdatedBy
		}

		res := tx.Model(&orderRecord{}).Where("id = ?", id).Updates(updates)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		after = merged
		changed = true
		return nil
	})
	if err != nil {
		return models.Order{}, s.fail(span, "update", id, err)
	}

	span.SetAttributes(attribute.Bool("order.changed", changed))
	if changed {
		s.publish(ctx, &before, &after)
	}
	return after.Clone(), nil
}

// Delete removes an order permanently
func (s *Store) Delete(ctx context.Context, id string) error {
	ctx, span := tracer.Start(ctx, "store.Delete", trace.WithAttributes(attribute.String("order.id", id)))
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()

	var before models.Order
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var rec orderRecord
		if err := tx.Where("id = ?", id).Take(&rec).Error; err != nil {
			return err
		}
		before = rec.toOrder()
		res := tx.Where("id = ?", id).Delete(&orderRecord{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
	if err != nil {
		return s.fail(span, "delete", id, err)
	}

	metrics.OrdersDeletedTotal.Inc()
	s.publish(ctx, &before, nil)
	return nil
}

func (s *Store) nextUpdatedAt(previous time.Time) time.Time {
	next := s.clock()
	if !next.After(previous) {
		next = previous.Add(time.Microsecond)
	}
	return next
}

// publish emits the change event for a committed write. A publish failure is logged;
// the write itself already happened.
func (s *Store) publish(ctx context.Context, before, after *models.Order) {
	if s.publisher == nil {
		return
	}

	event := changefeed.ChangeEvent{
		EventID: uuid.NewString(),
		At:      s.clock(),
	}
	if before != nil {
		b := before.Clone()
		event.Before = &b
		event.OrderID = b.ID
	}
	if after != nil {
		a := after.Clone()
		event.After = &a
		event.OrderID = a.ID
		event.At = a.UpdatedAt
	}

	if err := s.publisher.Publish(context.WithoutCancel(ctx), event); err != nil {
		metrics.ChangeEventsPublishedTotal.WithLabelValues("error").Inc()
		s.logger.Error("failed to publish change event",
			zap.String("order_id", event.OrderID),
			zap.String("event_id", event.EventID),
			zap.Error(err))
		return
	}
	metrics.ChangeEventsPublishedTotal.WithLabelValues("ok").Inc()
}

func (s *Store) fail(span trace.Span, op, id string, err error) error {
	err = classify(err)
	metrics.StoreErrorsTotal.WithLabelValues(op, errorClass(err)).Inc()
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())

	if !errors.Is(err, ErrNotFound) {
		s.logger.Error("order store operation failed",
			zap.String("operation", op),
			zap.String("order_id", id),
			zap.Error(err))
	}
	if id == "" {
		return fmt.Errorf("%s orders: %w", op, err)
	}
	return fmt.Errorf("%s order %s: %w", op, id, err)
}

// Package flow drives the customer side of an order: photos, quote, schedule and
// payment. Progress is keyed by a client session so an interrupted flow can be resumed.
package flow

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/kendall-kelly/jersey-repair-api/lifecycle"
	"github.com/kendall-kelly/jersey-repair-api/models"
	"github.com/kendall-kelly/jersey-repair-api/services"
	"github.com/kendall-kelly/jersey-repair-api/store"
)

// Customer flow steps, recorded in Order.StepCompleted
const (
	StepPhotos   = 1
	StepQuote    = 2
	StepSchedule = 3
	StepPayment  = 4
)

// MaxPhotos caps the number of photos on one order
const MaxPhotos = 10

// PaymentActor is recorded as updatedBy for payment callback writes
const PaymentActor = "payment-callback"

// OrderStore is the subset of the store the flow needs
type OrderStore interface {
	Get(ctx context.Context, id string) (models.Order, error)
	Query(ctx context.Context, filter store.Filter) ([]models.Order, error)
	Create(ctx context.Context, order models.Order) (models.Order, error)
	Update(ctx context.Context, id string, patch store.Patch) (models.Order, error)
	Delete(ctx context.Context, id string) error
}

// ProfileFetcher looks up the customer's identity provider profile
type ProfileFetcher interface {
	GetUserInfo(ctx context.Context, accessToken string) (*services.Auth0UserInfo, error)
}

// ImageRemover deletes stored photos when an order is abandoned
type ImageRemover interface {
	DeleteImage(ctx context.Context, imageKey string) error
}

// Session identifies the customer driving the flow
type Session struct {
	ID          string
	OwnerID     string
	AccessToken string
}

// QuoteRequest is the input of the quote step
type QuoteRequest struct {
	RepairType        string `json:"repairType" binding:"required"`
	RepairDescription string `json:"repairDescription"`
	Duration          string `json:"duration"`
}

// ScheduleRequest is the input of the schedule step
type ScheduleRequest struct {
	ContactInfo       models.ContactInfo       `json:"contactInfo"`
	DeliveryMethod    models.InboundMethod     `json:"deliveryMethod" binding:"required"`
	FulfillmentMethod models.FulfillmentMethod `json:"fulfillmentMethod"`
	PreferredDate     string                   `json:"preferredDate"`
}

// PaymentConfirmation is the body of the payment provider callback
type PaymentConfirmation struct {
	OrderID   string           `json:"orderId" binding:"required"`
	Reference string           `json:"reference" binding:"required"`
	Amount    *decimal.Decimal `json:"amount,omitempty"`
	Method    string           `json:"method,omitempty"`
}

// Progress is a resumed flow
type Progress struct {
	Order    models.Order `json:"order"`
	NextStep int          `json:"nextStep"` // 0 once the flow is finished
	Locked   bool         `json:"locked"`
}

// Flow runs the customer steps against the store
type Flow struct {
	store    OrderStore
	catalog  *Catalog
	profiles ProfileFetcher
	images   ImageRemover
	logger   *zap.Logger
	now      func() time.Time

	startMu   sync.Mutex
	paymentMu sync.Mutex
}

// Option configures a Flow
type Option func(*Flow)

// WithProfiles enables the contact info fallback to the identity provider
func WithProfiles(p ProfileFetcher) Option {
	return func(f *Flow) { f.profiles = p }
}

// WithImages lets Cancel clean up uploaded photos
func WithImages(r ImageRemover) Option {
	return func(f *Flow) { f.images = r }
}

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(f *Flow) { f.now = now }
}

// New creates a flow
func New(orders OrderStore, catalog *Catalog, logger *zap.Logger, opts ...Option) *Flow {
	if logger == nil {
		logger = zap.NewNop()
	}
	f := &Flow{
		store:   orders,
		catalog: catalog,
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Catalog returns the price list
func (f *Flow) Catalog() *Catalog {
	return f.catalog
}

// Start returns the session's order, creating it on first use
func (f *Flow) Start(ctx context.Context, sess Session) (models.Order, bool, error) {
	if sess.ID == "" {
		return models.Order{}, false, invalidInput("session", "session id is required")
	}

	f.startMu.Lock()
	defer f.startMu.Unlock()

	order, err := f.load(ctx, sess)
	if err == nil {
		return order, false, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return models.Order{}, false, err
	}

	order, err = f.store.Create(ctx, models.Order{
		SessionID:  sess.ID,
		OwnerID:    sess.OwnerID,
		Processing: models.NewProcessing(),
		Payment:    models.NewPayment(),
		UpdatedBy:  sess.OwnerID,
	})
	if err != nil {
		return models.Order{}, false, err
	}
	f.logger.Info("order started", zap.String("order_id", order.ID), zap.String("session_id", sess.ID))
	return order, true, nil
}

// Resume returns the session's order and the step the customer should see next
func (f *Flow) Resume(ctx context.Context, sess Session) (Progress, error) {
	order, err := f.load(ctx, sess)
	if err != nil {
		return Progress{}, err
	}
	return progressOf(order), nil
}

// AddPhotos appends uploaded photo keys to the order
func (f *Flow) AddPhotos(ctx context.Context, sess Session, keys []string) (models.Order, error) {
	if len(keys) == 0 {
		return models.Order{}, invalidInput("photos", "at least one photo is required")
	}
	order, err := f.editable(ctx, sess)
	if err != nil {
		return models.Order{}, err
	}
	if len(order.Photos)+len(keys) > MaxPhotos {
		return models.Order{}, invalidInput("photos", "an order can have at most %d photos", MaxPhotos)
	}

	return f.store.Update(ctx, order.ID, store.Patch{
		AppendPhotos:  keys,
		StepCompleted: stepAtLeast(order, StepPhotos),
		UpdatedBy:     sess.OwnerID,
	})
}

// SelectRepair prices the chosen repair and records it on the order
func (f *Flow) SelectRepair(ctx context.Context, sess Session, req QuoteRequest) (models.Order, error) {
	order, err := f.editable(ctx, sess)
	if err != nil {
		return models.Order{}, err
	}
	if order.StepCompleted < StepPhotos || len(order.Photos) == 0 {
		return models.Order{}, invalidInput("photos", "upload at least one photo before choosing a repair")
	}

	price, err := f.catalog.Quote(req.RepairType, req.Duration)
	if err != nil {
		return models.Order{}, err
	}
	duration := req.Duration
	if duration == "" {
		duration = "standard"
	}

	return f.store.Update(ctx, order.ID, store.Patch{
		RepairType:        store.Ptr(req.RepairType),
		RepairDescription: store.Ptr(strings.TrimSpace(req.RepairDescription)),
		Price:             store.Ptr(price),
		Processing:        &store.ProcessingPatch{Duration: store.Ptr(duration)},
		Payment:           &store.PaymentPatch{Amount: store.Ptr(price)},
		StepCompleted:     stepAtLeast(order, StepQuote),
		UpdatedBy:         sess.OwnerID,
	})
}

// Schedule records contact details, the inbound and outbound methods and the preferred date
func (f *Flow) Schedule(ctx context.Context, sess Session, req ScheduleRequest) (models.Order, error) {
	order, err := f.editable(ctx, sess)
	if err != nil {
		return models.Order{}, err
	}
	if order.StepCompleted < StepQuote {
		return models.Order{}, invalidInput("repairType", "choose a repair before scheduling")
	}

	contact, err := ValidContact(f.fillContact(ctx, sess, normalizeContact(req.ContactInfo)))
	if err != nil {
		return models.Order{}, err
	}

	if !req.DeliveryMethod.Valid() {
		return models.Order{}, invalidInput("deliveryMethod", "must be pickup or dropoff")
	}
	outbound, err := resolveOutbound(req.DeliveryMethod, req.FulfillmentMethod)
	if err != nil {
		return models.Order{}, err
	}
	if (req.DeliveryMethod == models.InboundPickup || outbound == models.FulfillmentDelivery) && contact.Address == "" {
		return models.Order{}, invalidInput("contactInfo.address", "an address is required for courier pickup or delivery")
	}

	if req.PreferredDate != "" {
		if err := f.checkDate(req.PreferredDate); err != nil {
			return models.Order{}, err
		}
	}

	return f.store.Update(ctx, order.ID, store.Patch{
		ContactInfo: &contact,
		Processing: &store.ProcessingPatch{
			DeliveryMethod:    store.Ptr(req.DeliveryMethod),
			FulfillmentMethod: store.Ptr(outbound),
			PreferredDate:     store.Ptr(req.PreferredDate),
		},
		StepCompleted: stepAtLeast(order, StepSchedule),
		UpdatedBy:     sess.OwnerID,
	})
}

// ConfirmPayment applies the payment callback. The first confirmation marks the order
// paid; replaying the same reference returns the order unchanged and a different
// reference is rejected.
func (f *Flow) ConfirmPayment(ctx context.Context, conf PaymentConfirmation) (models.Order, bool, error) {
	if conf.OrderID == "" {
		return models.Order{}, false, invalidInput("orderId", "order id is required")
	}
	if conf.Reference == "" {
		return models.Order{}, false, invalidInput("reference", "payment reference is required")
	}

	f.paymentMu.Lock()
	defer f.paymentMu.Unlock()

	const attempts = 3
	for i := 0; ; i++ {
		order, applied, err := f.confirmOnce(ctx, conf)
		if errors.Is(err, store.ErrPreconditionFailed) && i < attempts-1 {
			f.logger.Debug("order changed during payment confirmation, retrying", zap.String("order_id", conf.OrderID))
			continue
		}
		return order, applied, err
	}
}

func (f *Flow) confirmOnce(ctx context.Context, conf PaymentConfirmation) (models.Order, bool, error) {
	order, err := f.store.Get(ctx, conf.OrderID)
	if err != nil {
		return models.Order{}, false, err
	}

	if order.Payment.Status != models.PaymentUnpaid {
		if order.Payment.Reference == conf.Reference {
			return order, false, nil
		}
		return models.Order{}, false, ErrPaymentConflict
	}
	if order.StepCompleted < StepSchedule {
		return models.Order{}, false, invalidInput("orderId", "order is not ready for payment")
	}
	if conf.Amount != nil && !conf.Amount.Round(2).Equal(order.Payment.Amount.Round(2)) {
		return models.Order{}, false, invalidInput("amount", "paid amount %s does not match the quoted %s",
			conf.Amount.StringFixed(2), order.Payment.Amount.StringFixed(2))
	}

	res, err := lifecycle.Transition(order, lifecycle.Action{
		Kind:      lifecycle.ActionMarkPaid,
		Reference: conf.Reference,
		Amount:    conf.Amount,
		Method:    conf.Method,
		Actor:     PaymentActor,
		At:        f.now(),
	})
	if err != nil {
		return models.Order{}, false, err
	}

	updated, err := f.store.Update(ctx, order.ID, store.Patch{
		Payment:           store.DiffPayment(order.Payment, res.Payment),
		StepCompleted:     stepAtLeast(order, StepPayment),
		UpdatedBy:         PaymentActor,
		ExpectedUpdatedAt: &order.UpdatedAt,
	})
	if err != nil {
		return models.Order{}, false, err
	}
	f.logger.Info("payment confirmed",
		zap.String("order_id", updated.ID),
		zap.String("reference", conf.Reference),
		zap.String("amount", updated.Payment.Amount.StringFixed(2)))
	return updated, true, nil
}

// Cancel deletes the session's order. Paid orders can only be cancelled by an admin.
func (f *Flow) Cancel(ctx context.Context, sess Session) error {
	order, err := f.editable(ctx, sess)
	if err != nil {
		return err
	}
	if err := f.store.Delete(ctx, order.ID); err != nil {
		return err
	}

	if f.images != nil {
		for _, key := range order.Photos {
			if err := f.images.DeleteImage(ctx, key); err != nil {
				f.logger.Warn("failed to delete photo of cancelled order",
					zap.String("order_id", order.ID), zap.String("key", key), zap.Error(err))
			}
		}
	}
	f.logger.Info("order cancelled by customer", zap.String("order_id", order.ID))
	return nil
}

// load finds the session's order. Orders owned by someone else read as not found.
func (f *Flow) load(ctx context.Context, sess Session) (models.Order, error) {
	if sess.ID == "" {
		return models.Order{}, invalidInput("session", "session id is required")
	}
	orders, err := f.store.Query(ctx, store.Filter{SessionID: sess.ID, OwnerID: sess.OwnerID, IncludeCancelled: true, Limit: 1})
	if err != nil {
		return models.Order{}, err
	}
	if len(orders) == 0 {
		return models.Order{}, fmt.Errorf("session %s: %w", sess.ID, store.ErrNotFound)
	}
	order := orders[0]
	if order.OwnerID != "" && sess.OwnerID != "" && order.OwnerID != sess.OwnerID {
		return models.Order{}, fmt.Errorf("session %s: %w", sess.ID, store.ErrNotFound)
	}
	return order, nil
}

func (f *Flow) editable(ctx context.Context, sess Session) (models.Order, error) {
	order, err := f.load(ctx, sess)
	if err != nil {
		return models.Order{}, err
	}
	if locked(order) {
		return models.Order{}, fmt.Errorf("order %s: %w", order.ID, ErrOrderLocked)
	}
	return order, nil
}

// fillContact completes a missing name or email from the identity provider profile
func (f *Flow) fillContact(ctx context.Context, sess Session, c models.ContactInfo) models.ContactInfo {
	if (c.Name != "" && c.Email != "") || f.profiles == nil || sess.AccessToken == "" {
		return c
	}
	info, err := f.profiles.GetUserInfo(ctx, sess.AccessToken)
	if err != nil {
		f.logger.Warn("failed to fetch user profile for contact fallback", zap.Error(err))
		return c
	}
	if c.Name == "" {
		c.Name = strings.TrimSpace(info.Name)
	}
	if c.Email == "" {
		c.Email = strings.TrimSpace(info.Email)
	}
	return c
}

func (f *Flow) checkDate(value string) error {
	date, err := time.Parse(time.DateOnly, value)
	if err != nil {
		return invalidInput("preferredDate", "must be a date formatted YYYY-MM-DD")
	}
	today, _ := time.Parse(time.DateOnly, f.now().Format(time.DateOnly))
	if date.Before(today) {
		return invalidInput("preferredDate", "must not be in the past")
	}
	return nil
}

func resolveOutbound(inbound models.InboundMethod, requested models.FulfillmentMethod) (models.FulfillmentMethod, error) {
	if requested != "" && !requested.Valid() {
		return "", invalidInput("fulfillmentMethod", "must be pickup or delivery")
	}
	p := models.ProcessingInfo{DeliveryMethod: inbound, FulfillmentMethod: requested}
	return p.Outbound(), nil
}

// ValidContact trims the contact details and checks that they can be written to.
// The email must be a bare address: it is handed to the mail relay as the recipient.
func ValidContact(c models.ContactInfo) (models.ContactInfo, error) {
	c = normalizeContact(c)
	if c.Name == "" {
		return c, invalidInput("contactInfo.name", "name is required")
	}
	addr, err := mail.ParseAddress(c.Email)
	if err != nil || addr.Name != "" || addr.Address != c.Email {
		return c, invalidInput("contactInfo.email", "a plain email address such as name@example.com is required")
	}
	return c, nil
}

func normalizeContact(c models.ContactInfo) models.ContactInfo {
	return models.ContactInfo{
		Name:    strings.TrimSpace(c.Name),
		Email:   strings.TrimSpace(c.Email),
		Phone:   strings.TrimSpace(c.Phone),
		Address: strings.TrimSpace(c.Address),
	}
}

func locked(order models.Order) bool {
	return order.Payment.Status != models.PaymentUnpaid || order.Processing.Status == models.StatusCancelled
}

func stepAtLeast(order models.Order, step int) *int {
	return store.Ptr(max(order.StepCompleted, step))
}

func progressOf(order models.Order) Progress {
	p := Progress{Order: order, Locked: locked(order)}
	if !p.Locked {
		p.NextStep = min(order.StepCompleted+1, StepPayment)
	}
	return p
}

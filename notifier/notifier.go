// Package notifier sends customer and admin email when an order crosses one of the
// lifecycle edges in Rules. It watches the change feed, so it sees every write no
// matter which panel or flow made it.
package notifier

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/kendall-kelly/jersey-repair-api/changefeed"
	"github.com/kendall-kelly/jersey-repair-api/metrics"
	"github.com/kendall-kelly/jersey-repair-api/models"
	"github.com/kendall-kelly/jersey-repair-api/services"
)

// Notifier turns change events into email
type Notifier struct {
	ledger      *ledger
	mailer      services.Mailer
	adminEmail  string
	templates   templateSet
	sendTimeout time.Duration
	logger      *zap.Logger
}

// New creates a notifier. mailer may be nil and adminEmail may be empty: the affected
// notifications are recorded as skipped.
func New(db *gorm.DB, mailer services.Mailer, adminEmail string, logger *zap.Logger) (*Notifier, error) {
	templates, err := parseTemplates(templatesYAML)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Notifier{
		ledger:      &ledger{db: db},
		mailer:      mailer,
		adminEmail:  adminEmail,
		templates:   templates,
		sendTimeout: 15 * time.Second,
		logger:      logger,
	}, nil
}

// Run consumes the change feed until ctx is cancelled
func (n *Notifier) Run(ctx context.Context, feed changefeed.Subscriber) error {
	n.logger.Info("notifier started")
	err := feed.Subscribe(ctx, n.Handle)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Handle evaluates every rule for one change event. Send failures are logged and
// recorded; only ledger failures are returned, and the feed delivers the event again.
// Notifications already claimed on an earlier attempt are not sent twice.
func (n *Notifier) Handle(ctx context.Context, event changefeed.ChangeEvent) error {
	for _, firing := range Evaluate(event.Before, event.After) {
		if err := n.deliver(ctx, event, firing); err != nil {
			return err
		}
	}
	return nil
}

func (n *Notifier) deliver(ctx context.Context, event changefeed.ChangeEvent, firing Firing) error {
	order := *event.After
	log := n.logger.With(
		zap.String("order_id", order.ID),
		zap.String("event_id", event.EventID),
		zap.String("rule", firing.Rule),
		zap.String("audience", string(firing.Audience)))

	entry := &models.NotificationLog{
		OrderID:   order.ID,
		Rule:      firing.Rule,
		Audience:  string(firing.Audience),
		EventID:   event.EventID,
		Recipient: n.recipient(order, firing.Audience),
		Status:    models.NotificationPending,
	}

	subject, body, renderErr := n.templates.render(firing, order)
	entry.Subject = subject

	skip := ""
	switch {
	case entry.Recipient == "":
		skip = "no recipient"
	case n.mailer == nil:
		skip = "no mail transport configured"
	case renderErr != nil:
		skip = renderErr.Error()
	}
	if skip != "" {
		entry.Status = models.NotificationSkipped
		entry.Error = &skip
	}

	claimed, err := n.ledger.claim(ctx, entry)
	if err != nil {
		log.Error("notification ledger unavailable", zap.Error(err))
		return err
	}
	if !claimed {
		log.Debug("notification already handled")
		return nil
	}
	if skip != "" {
		metrics.NotificationsTotal.WithLabelValues(firing.Rule, models.NotificationSkipped).Inc()
		log.Info("notification skipped", zap.String("reason", skip))
		return nil
	}

	sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), n.sendTimeout)
	defer cancel()
	sendErr := n.mailer.Send(sendCtx, services.Email{To: entry.Recipient, Subject: subject, Body: body})

	status := models.NotificationSent
	if sendErr != nil {
		status = models.NotificationFailed
		log.Error("failed to send notification", zap.String("recipient", entry.Recipient), zap.Error(sendErr))
	} else {
		log.Info("notification sent", zap.String("recipient", entry.Recipient))
	}
	metrics.NotificationsTotal.WithLabelValues(firing.Rule, status).Inc()

	if err := n.ledger.finish(ctx, entry.ID, status, sendErr); err != nil {
		// The send outcome is final either way; a stale pending row only affects reporting.
		log.Warn("failed to update notification ledger", zap.Error(err))
	}
	return nil
}

func (n *Notifier) recipient(order models.Order, audience Audience) string {
	switch audience {
	case AudienceAdmin:
		return n.adminEmail
	default:
		return order.ContactInfo.Email
	}
}

package notifier

import (
	"github.com/kendall-kelly/jersey-repair-api/models"
)

// Rule names, also the keys of templates.yaml and of the notification ledger
const (
	RulePaymentConfirmed = "payment_confirmed"
	RuleInRepair         = "in_repair"
	RuleReady            = "ready"
	RuleDelivered        = "delivered"
	RuleCancelled        = "cancelled"
)

// Audience is who a notification is addressed to
type Audience string

const (
	AudienceCustomer Audience = "customer"
	AudienceAdmin    Audience = "admin"
)

// Rule fires when Holds turns from false on the previous snapshot to true on the next.
type Rule struct {
	Name      string
	Audiences []Audience
	Holds     func(o models.Order) bool
	// Variant picks alternative wording, e.g. by fulfillment method. Optional.
	Variant func(o models.Order) string
}

// Rules is the canonical notification table. Every rule is evaluated independently
// for every change event.
var Rules = []Rule{
	{
		Name:      RulePaymentConfirmed,
		Audiences: []Audience{AudienceCustomer, AudienceAdmin},
		Holds: func(o models.Order) bool {
			return o.Payment.Status == models.PaymentPaid
		},
	},
	{
		Name:      RuleInRepair,
		Audiences: []Audience{AudienceCustomer},
		Holds: func(o models.Order) bool {
			return o.Processing.Status == models.StatusInProgress && o.Processing.RepairStatus == models.LabelInRepair
		},
	},
	{
		Name:      RuleReady,
		Audiences: []Audience{AudienceCustomer},
		Holds: func(o models.Order) bool {
			return o.Processing.Status == models.StatusAwaitingFulfillment
		},
		Variant: func(o models.Order) string {
			return string(o.Processing.Outbound())
		},
	},
	{
		Name:      RuleDelivered,
		Audiences: []Audience{AudienceCustomer},
		Holds: func(o models.Order) bool {
			return o.Processing.FulfillmentMethod == models.FulfillmentDelivery &&
				o.Processing.DeliveryStatus == models.DeliveryDelivered
		},
	},
	{
		Name:      RuleCancelled,
		Audiences: []Audience{AudienceCustomer},
		Holds: func(o models.Order) bool {
			return o.Processing.Status == models.StatusCancelled
		},
	},
}

// Firing is one notification owed for a change
type Firing struct {
	Rule     string
	Audience Audience
	Variant  string
}

// Evaluate returns the notifications owed for the change from before to after. A rule
// fires only on its rising edge, so re-saving an order in the same state sends nothing.
// A nil before counts as "nothing held"; a nil after (deletion) fires nothing.
func Evaluate(before, after *models.Order) []Firing {
	if after == nil {
		return nil
	}
	var firings []Firing
	for _, rule := range Rules {
		if before != nil && rule.Holds(*before) {
			continue
		}
		if !rule.Holds(*after) {
			continue
		}
		variant := ""
		if rule.Variant != nil {
			variant = rule.Variant(*after)
		}
		for _, audience := range rule.Audiences {
			firings = append(firings, Firing{Rule: rule.Name, Audience: audience, Variant: variant})
		}
	}
	return firings
}

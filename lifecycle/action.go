package lifecycle

import (
	"time"

	"github.com/shopspring/decimal"
)

// ActionKind tags what an admin, the customer flow or the payment callback wants to do
type ActionKind string

const (
	ActionRoute             ActionKind = "route"
	ActionAdvancePickup     ActionKind = "advance-pickup"
	ActionAdvanceDropoff    ActionKind = "advance-dropoff"
	ActionAdvanceDelivery   ActionKind = "advance-delivery"
	ActionAdvanceCollection ActionKind = "advance-collection"
	ActionCompleteRepair    ActionKind = "complete-repair"
	ActionMarkPaid          ActionKind = "mark-paid"
	ActionRefund            ActionKind = "refund"
	ActionCancel            ActionKind = "cancel"
)

// AllActions lists every action kind in lattice order
var AllActions = []ActionKind{
	ActionMarkPaid,
	ActionRoute,
	ActionAdvancePickup,
	ActionAdvanceDropoff,
	ActionCompleteRepair,
	ActionAdvanceDelivery,
	ActionAdvanceCollection,
	ActionRefund,
	ActionCancel,
}

// Action is one requested lifecycle step
type Action struct {
	Kind ActionKind `json:"kind" binding:"required"`
	// To optionally names the expected next sub-status of an advance action.
	// A mismatch, including naming the current value again, is rejected.
	To        string           `json:"to,omitempty"`
	Reference string           `json:"reference,omitempty"`
	Amount    *decimal.Decimal `json:"amount,omitempty"`
	Method    string           `json:"method,omitempty"`
	Actor     string           `json:"-"`
	At        time.Time        `json:"-"`
}

// Valid reports whether the kind is one the machine knows
func (k ActionKind) Valid() bool {
	for _, known := range AllActions {
		if k == known {
			return true
		}
	}
	return false
}

// EffectKind names a side effect produced by a transition
type EffectKind string

const (
	EffectRouted            EffectKind = "routed"
	EffectSubStatusAdvanced EffectKind = "sub_status_advanced"
	EffectRepairStarted     EffectKind = "repair_started"
	EffectRepairCompleted   EffectKind = "repair_completed"
	EffectDeliverySeeded    EffectKind = "delivery_seeded"
	EffectCollectionSeeded  EffectKind = "collection_seeded"
	EffectFulfilled         EffectKind = "fulfilled"
	EffectCancelled         EffectKind = "cancelled"
	EffectPaid              EffectKind = "paid"
	EffectRefunded          EffectKind = "refunded"
)

// Effect records one field-level consequence of a transition
type Effect struct {
	Kind  EffectKind `json:"kind"`
	Field string     `json:"field,omitempty"`
	From  string     `json:"from,omitempty"`
	To    string     `json:"to,omitempty"`
}

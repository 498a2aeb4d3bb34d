// Package lifecycle holds the order state machine. It is pure: no I/O, no clock
// reads beyond a fallback when the caller leaves Action.At empty.
package lifecycle

import (
	"time"

	"github.com/kendall-kelly/jersey-repair-api/models"
)

// Per-method sub-status lattices, in order. The last element is terminal.
var (
	pickupLattice     = []models.PickupStatus{models.PickupAwaiting, models.PickupScheduled, models.PickupPicked}
	dropoffLattice    = []models.DropoffStatus{models.DropoffAwaiting, models.DropoffDroppedOff}
	deliveryLattice   = []models.DeliveryStatus{models.DeliveryAwaiting, models.DeliveryOutForDelivery, models.DeliveryDelivered}
	collectionLattice = []models.CollectionStatus{models.CollectionAwaiting, models.CollectionCollected}
)

// Result is the next state of an order's lifecycle sub-records
type Result struct {
	Processing models.ProcessingInfo
	Payment    models.PaymentInfo
	Effects    []Effect
}

// Has reports whether the transition produced an effect of the given kind
func (r Result) Has(kind EffectKind) bool {
	for _, effect := range r.Effects {
		if effect.Kind == kind {
			return true
		}
	}
	return false
}

func (r *Result) emit(kind EffectKind, field, from, to string) {
	r.Effects = append(r.Effects, Effect{Kind: kind, Field: field, From: from, To: to})
}

// Transition computes the processing and payment records that follow from applying
// action to order. On error the returned Result is empty and the order must not be written.
func Transition(order models.Order, action Action) (Result, error) {
	res := Result{
		Processing: order.Processing,
		Payment:    order.Payment,
	}

	var err error
	switch action.Kind {
	case ActionRoute:
		err = route(order, action, &res)
	case ActionAdvancePickup:
		err = advancePickup(action, &res)
	case ActionAdvanceDropoff:
		err = advanceDropoff(action, &res)
	case ActionCompleteRepair:
		err = completeRepair(action, &res)
	case ActionAdvanceDelivery:
		err = advanceDelivery(action, &res)
	case ActionAdvanceCollection:
		err = advanceCollection(action, &res)
	case ActionMarkPaid:
		err = markPaid(action, &res)
	case ActionRefund:
		err = refund(action, &res)
	case ActionCancel:
		err = cancel(action, &res)
	default:
		err = invalid(action.Kind, order.Processing.Status, "unknown action")
	}
	if err != nil {
		return Result{}, err
	}
	return res, nil
}

// Available lists the actions Transition would currently accept for the order.
// Payment actions that need caller input (mark-paid) are tried with a placeholder reference.
func Available(order models.Order) []ActionKind {
	var kinds []ActionKind
	for _, kind := range AllActions {
		trial := Action{Kind: kind}
		if kind == ActionMarkPaid {
			trial.Reference = "placeholder"
		}
		if _, err := Transition(order, trial); err == nil {
			kinds = append(kinds, kind)
		}
	}
	return kinds
}

func route(order models.Order, action Action, res *Result) error {
	p := &res.Processing
	if p.Status != models.StatusPending {
		return invalid(action.Kind, p.Status, "only pending orders can be routed")
	}
	if order.Payment.Status != models.PaymentPaid {
		return &TransitionError{Action: action.Kind, Status: p.Status, Reason: "payment has not been confirmed", Err: ErrNotPaid}
	}

	switch p.DeliveryMethod {
	case models.InboundPickup:
		p.PickupStatus = models.PickupAwaiting
		p.RepairStatus = models.LabelAwaitingPickup
		p.FulfillmentMethod = models.FulfillmentDelivery
		res.emit(EffectRouted, "pickupStatus", "", string(models.PickupAwaiting))
	case models.InboundDropoff:
		p.DropoffStatus = models.DropoffAwaiting
		p.RepairStatus = models.LabelAwaitingDropoff
		if !p.FulfillmentMethod.Valid() {
			p.FulfillmentMethod = models.FulfillmentPickup
		}
		res.emit(EffectRouted, "dropoffStatus", "", string(models.DropoffAwaiting))
	default:
		return &TransitionError{
			Action: action.Kind,
			Status: p.Status,
			Reason: "delivery method is absent or unrecognized: " + string(p.DeliveryMethod),
			Err:    ErrMissingDeliveryMethod,
		}
	}

	p.Status = models.StatusInProgress
	return nil
}

func advancePickup(action Action, res *Result) error {
	p := &res.Processing
	if p.DeliveryMethod != models.InboundPickup {
		return invalid(action.Kind, p.Status, "order is not a pickup order")
	}
	if p.Status != models.StatusInProgress {
		return invalid(action.Kind, p.Status, "pickup can only advance while the order is in progress")
	}
	next, err := step(action, p.Status, pickupLattice, p.PickupStatus)
	if err != nil {
		return err
	}

	from := p.PickupStatus
	p.PickupStatus = next
	res.emit(EffectSubStatusAdvanced, "pickupStatus", string(from), string(next))

	switch next {
	case models.PickupScheduled:
		p.RepairStatus = models.LabelPickupScheduled
	case models.PickupPicked:
		// The jersey is in the shop: repair starts and the outbound delivery leg is seeded
		// in the same update.
		p.RepairStatus = models.LabelInRepair
		res.emit(EffectRepairStarted, "repairStatus", "", models.LabelInRepair)
		if p.DeliveryStatus == "" {
			p.DeliveryStatus = models.DeliveryAwaiting
			res.emit(EffectDeliverySeeded, "deliveryStatus", "", string(models.DeliveryAwaiting))
		}
	}
	return nil
}

func advanceDropoff(action Action, res *Result) error {
	p := &res.Processing
	if p.DeliveryMethod != models.InboundDropoff {
		return invalid(action.Kind, p.Status, "order is not a dropoff order")
	}
	if p.Status != models.StatusInProgress {
		return invalid(action.Kind, p.Status, "dropoff can only advance while the order is in progress")
	}
	next, err := step(action, p.Status, dropoffLattice, p.DropoffStatus)
	if err != nil {
		return err
	}

	from := p.DropoffStatus
	p.DropoffStatus = next
	res.emit(EffectSubStatusAdvanced, "dropoffStatus", string(from), string(next))

	if next == models.DropoffDroppedOff {
		p.RepairStatus = models.LabelInRepair
		res.emit(EffectRepairStarted, "repairStatus", "", models.LabelInRepair)
	}
	return nil
}

func completeRepair(action Action, res *Result) error {
	p := &res.Processing
	if p.Status != models.StatusInProgress || p.RepairStatus != models.LabelInRepair {
		return invalid(action.Kind, p.Status, "order is not in repair")
	}

	outbound := p.Outbound()
	p.FulfillmentMethod = outbound
	p.Status = models.StatusAwaitingFulfillment
	res.emit(EffectRepairCompleted, "status", string(models.StatusInProgress), string(models.StatusAwaitingFulfillment))

	switch outbound {
	case models.FulfillmentDelivery:
		p.RepairStatus = models.LabelReadyToDeliver
		if p.DeliveryStatus == "" {
			p.DeliveryStatus = models.DeliveryAwaiting
			res.emit(EffectDeliverySeeded, "deliveryStatus", "", string(models.DeliveryAwaiting))
		}
	default:
		p.RepairStatus = models.LabelReadyForPickup
		if p.CollectionStatus == "" {
			p.CollectionStatus = models.CollectionAwaiting
			res.emit(EffectCollectionSeeded, "collectionStatus", "", string(models.CollectionAwaiting))
		}
	}
	return nil
}

func advanceDelivery(action Action, res *Result) error {
	p := &res.Processing
	if p.Outbound() != models.FulfillmentDelivery {
		return invalid(action.Kind, p.Status, "order is not returned by delivery")
	}
	switch p.Status {
	case models.StatusAwaitingFulfillment:
	case models.StatusInProgress:
		if p.RepairStatus != models.LabelInRepair {
			return invalid(action.Kind, p.Status, "jersey has not reached the shop yet")
		}
	default:
		return invalid(action.Kind, p.Status, "delivery can not advance in this state")
	}
	if p.DeliveryStatus == "" {
		return invalid(action.Kind, p.Status, "delivery has not been seeded")
	}
	next, err := step(action, p.Status, deliveryLattice, p.DeliveryStatus)
	if err != nil {
		return err
	}
	if next == models.DeliveryDelivered && p.Status != models.StatusAwaitingFulfillment {
		return invalid(action.Kind, p.Status, "delivery must be dispatched before it is delivered")
	}

	from := p.DeliveryStatus
	p.DeliveryStatus = next
	p.FulfillmentMethod = models.FulfillmentDelivery
	res.emit(EffectSubStatusAdvanced, "deliveryStatus", string(from), string(next))

	switch next {
	case models.DeliveryOutForDelivery:
		if p.Status == models.StatusInProgress {
			// Dispatching the courier implies the repair is done.
			p.Status = models.StatusAwaitingFulfillment
			res.emit(EffectRepairCompleted, "status", string(models.StatusInProgress), string(models.StatusAwaitingFulfillment))
		}
		p.RepairStatus = models.LabelOutForDelivery
	case models.DeliveryDelivered:
		p.Status = models.StatusFulfilled
		p.RepairStatus = models.LabelDelivered
		res.emit(EffectFulfilled, "status", string(models.StatusAwaitingFulfillment), string(models.StatusFulfilled))
	}
	return nil
}

func advanceCollection(action Action, res *Result) error {
	p := &res.Processing
	if p.Outbound() != models.FulfillmentPickup {
		return invalid(action.Kind, p.Status, "order is not collected at the counter")
	}
	if p.Status != models.StatusAwaitingFulfillment {
		return invalid(action.Kind, p.Status, "collection can only advance once the repair is complete")
	}
	next, err := step(action, p.Status, collectionLattice, p.CollectionStatus)
	if err != nil {
		return err
	}

	from := p.CollectionStatus
	p.CollectionStatus = next
	res.emit(EffectSubStatusAdvanced, "collectionStatus", string(from), string(next))

	if next == models.CollectionCollected {
		p.Status = models.StatusFulfilled
		p.RepairStatus = models.LabelCollected
		res.emit(EffectFulfilled, "status", string(models.StatusAwaitingFulfillment), string(models.StatusFulfilled))
	}
	return nil
}

func markPaid(action Action, res *Result) error {
	pay := &res.Payment
	if res.Processing.Status == models.StatusCancelled {
		return invalid(action.Kind, res.Processing.Status, "cancelled orders can not be paid")
	}
	if pay.Status != models.PaymentUnpaid {
		return invalid(action.Kind, res.Processing.Status, "payment is already %s", pay.Status)
	}
	if action.Reference == "" {
		return invalid(action.Kind, res.Processing.Status, "payment reference is required")
	}

	at := action.At
	if at.IsZero() {
		at = time.Now().UTC()
	}
	pay.Status = models.PaymentPaid
	pay.Reference = action.Reference
	if action.Method != "" {
		pay.Method = action.Method
	}
	if action.Amount != nil {
		pay.Amount = *action.Amount
	}
	pay.PaidAt = &at
	res.emit(EffectPaid, "payment.status", string(models.PaymentUnpaid), string(models.PaymentPaid))
	return nil
}

func refund(action Action, res *Result) error {
	if res.Payment.Status != models.PaymentPaid {
		return invalid(action.Kind, res.Processing.Status, "only paid orders can be refunded")
	}
	res.Payment.Status = models.PaymentRefunded
	res.emit(EffectRefunded, "payment.status", string(models.PaymentPaid), string(models.PaymentRefunded))
	return nil
}

func cancel(action Action, res *Result) error {
	p := &res.Processing
	if p.Status.IsTerminal() {
		return invalid(action.Kind, p.Status, "order is already %s", p.Status)
	}
	from := p.Status
	p.Status = models.StatusCancelled
	p.RepairStatus = models.LabelCancelled
	res.emit(EffectCancelled, "status", string(from), string(models.StatusCancelled))
	return nil
}

// step returns the lattice value following current. current must be on the lattice
// and not terminal; when the action names a target it must be exactly that value.
func step[T ~string](action Action, status models.OrderStatus, lattice []T, current T) (T, error) {
	var zero T
	for i, value := range lattice {
		if value != current {
			continue
		}
		if i == len(lattice)-1 {
			return zero, invalid(action.Kind, status, "%s is already final", current)
		}
		next := lattice[i+1]
		if action.To != "" && action.To != string(next) {
			return zero, invalid(action.Kind, status, "expected next status %s, got %s", next, action.To)
		}
		return next, nil
	}
	return zero, invalid(action.Kind, status, "sub-status %q is not on the lattice", current)
}

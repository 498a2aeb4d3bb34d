package lifecycle

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/kendall-kelly/jersey-repair-api/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedTime = time.Date(2026, 5, 4, 12, 0, 0, 0, time.UTC)

func newOrder(method models.InboundMethod, paid bool) models.Order {
	order := models.Order{
		ID:         "order-1",
		Price:      decimal.RequireFromString("45.00"),
		Processing: models.NewProcessing(),
		Payment:    models.NewPayment(),
	}
	order.Processing.DeliveryMethod = method
	if paid {
		order.Payment.Status = models.PaymentPaid
		order.Payment.Reference = "txn_1"
	}
	return order
}

// apply runs a sequence of actions and fails the test on the first rejection
func apply(t *testing.T, order models.Order, kinds ...ActionKind) models.Order {
	t.Helper()
	for _, kind := range kinds {
		res, err := Transition(order, Action{Kind: kind, Reference: "txn_1", At: fixedTime})
		require.NoError(t, err, "action %s should be accepted", kind)
		order.Processing = res.Processing
		order.Payment = res.Payment
	}
	return order
}

func TestRouteRequiresPayment(t *testing.T) {
	order := newOrder(models.InboundPickup, false)
	before, _ := json.Marshal(order.Processing)

	res, err := Transition(order, Action{Kind: ActionRoute})

	assert.ErrorIs(t, err, ErrNotPaid)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.Empty(t, res.Effects)
	after, _ := json.Marshal(order.Processing)
	assert.JSONEq(t, string(before), string(after), "processing must be left unchanged")
}

func TestRouteMissingDeliveryMethod(t *testing.T) {
	tests := []struct {
		name   string
		method models.InboundMethod
	}{
		{"absent", ""},
		{"unrecognized", "teleport"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			order := newOrder(tt.method, true)
			_, err := Transition(order, Action{Kind: ActionRoute})
			assert.ErrorIs(t, err, ErrMissingDeliveryMethod)
			assert.False(t, errors.Is(err, ErrInvalidTransition))
			assert.Equal(t, models.StatusPending, order.Processing.Status)
		})
	}
}

func TestRouteSeedsExactlyOneSubStatus(t *testing.T) {
	t.Run("pickup", func(t *testing.T) {
		res, err := Transition(newOrder(models.InboundPickup, true), Action{Kind: ActionRoute})
		require.NoError(t, err)
		p := res.Processing
		assert.Equal(t, models.StatusInProgress, p.Status)
		assert.Equal(t, models.PickupAwaiting, p.PickupStatus)
		assert.Empty(t, p.DropoffStatus)
		assert.Empty(t, p.DeliveryStatus)
		assert.Equal(t, models.LabelAwaitingPickup, p.RepairStatus)
		assert.Equal(t, models.FulfillmentDelivery, p.FulfillmentMethod)
		assert.True(t, res.Has(EffectRouted))
	})

	t.Run("dropoff never touches pickup or delivery", func(t *testing.T) {
		res, err := Transition(newOrder(models.InboundDropoff, true), Action{Kind: ActionRoute})
		require.NoError(t, err)
		p := res.Processing
		assert.Equal(t, models.StatusInProgress, p.Status)
		assert.Equal(t, models.DropoffAwaiting, p.DropoffStatus)
		assert.Empty(t, p.PickupStatus)
		assert.Empty(t, p.DeliveryStatus)
		assert.Equal(t, models.LabelAwaitingDropoff, p.RepairStatus)
		assert.Equal(t, models.FulfillmentPickup, p.FulfillmentMethod)
	})

	t.Run("dropoff keeps chosen delivery return", func(t *testing.T) {
		order := newOrder(models.InboundDropoff, true)
		order.Processing.FulfillmentMethod = models.FulfillmentDelivery
		res, err := Transition(order, Action{Kind: ActionRoute})
		require.NoError(t, err)
		assert.Equal(t, models.FulfillmentDelivery, res.Processing.FulfillmentMethod)
	})
}

func TestRouteTwiceIsRejected(t *testing.T) {
	order := apply(t, newOrder(models.InboundPickup, true), ActionRoute)
	_, err := Transition(order, Action{Kind: ActionRoute})
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestPickedSeedsDeliveryAtomically(t *testing.T) {
	order := apply(t, newOrder(models.InboundPickup, true), ActionRoute, ActionAdvancePickup)
	assert.Equal(t, models.PickupScheduled, order.Processing.PickupStatus)
	assert.Empty(t, order.Processing.DeliveryStatus)

	res, err := Transition(order, Action{Kind: ActionAdvancePickup, To: string(models.PickupPicked)})
	require.NoError(t, err)

	assert.Equal(t, models.PickupPicked, res.Processing.PickupStatus)
	assert.Equal(t, models.DeliveryAwaiting, res.Processing.DeliveryStatus)
	assert.Equal(t, models.LabelInRepair, res.Processing.RepairStatus)
	assert.Equal(t, models.StatusInProgress, res.Processing.Status)
	assert.True(t, res.Has(EffectDeliverySeeded))
	assert.True(t, res.Has(EffectRepairStarted))
}

func TestAdvanceWithExplicitTarget(t *testing.T) {
	order := apply(t, newOrder(models.InboundPickup, true), ActionRoute)

	t.Run("skipping a step is rejected", func(t *testing.T) {
		_, err := Transition(order, Action{Kind: ActionAdvancePickup, To: string(models.PickupPicked)})
		assert.ErrorIs(t, err, ErrInvalidTransition)
	})

	t.Run("reapplying the current value is rejected", func(t *testing.T) {
		scheduled := apply(t, order, ActionAdvancePickup)
		_, err := Transition(scheduled, Action{Kind: ActionAdvancePickup, To: string(models.PickupScheduled)})
		assert.ErrorIs(t, err, ErrInvalidTransition)
	})

	t.Run("terminal value can not advance", func(t *testing.T) {
		picked := apply(t, order, ActionAdvancePickup, ActionAdvancePickup)
		_, err := Transition(picked, Action{Kind: ActionAdvancePickup})
		assert.ErrorIs(t, err, ErrInvalidTransition)
	})
}

func TestAdvanceWrongMethodIsInvalid(t *testing.T) {
	pickup := apply(t, newOrder(models.InboundPickup, true), ActionRoute)
	dropoff := apply(t, newOrder(models.InboundDropoff, true), ActionRoute)

	tests := []struct {
		name  string
		order models.Order
		kind  ActionKind
	}{
		{"dropoff action on pickup order", pickup, ActionAdvanceDropoff},
		{"pickup action on dropoff order", dropoff, ActionAdvancePickup},
		{"collection on pickup order", pickup, ActionAdvanceCollection},
		{"delivery before dropoff order reached the shop", dropoff, ActionAdvanceDelivery},
		{"delivery before pickup happened", pickup, ActionAdvanceDelivery},
		{"complete repair before intake", pickup, ActionCompleteRepair},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Transition(tt.order, Action{Kind: tt.kind})
			assert.ErrorIs(t, err, ErrInvalidTransition)
		})
	}
}

func TestPickupOrderFullLifecycle(t *testing.T) {
	order := apply(t, newOrder(models.InboundPickup, true),
		ActionRoute, ActionAdvancePickup, ActionAdvancePickup, ActionAdvanceDelivery)

	assert.Equal(t, models.StatusAwaitingFulfillment, order.Processing.Status)
	assert.Equal(t, models.DeliveryOutForDelivery, order.Processing.DeliveryStatus)
	assert.Equal(t, models.LabelOutForDelivery, order.Processing.RepairStatus)

	res, err := Transition(order, Action{Kind: ActionAdvanceDelivery})
	require.NoError(t, err)
	assert.Equal(t, models.StatusFulfilled, res.Processing.Status)
	assert.Equal(t, models.DeliveryDelivered, res.Processing.DeliveryStatus)
	assert.True(t, res.Has(EffectFulfilled))

	order.Processing = res.Processing
	_, err = Transition(order, Action{Kind: ActionAdvanceDelivery})
	assert.ErrorIs(t, err, ErrInvalidTransition, "replaying the final step must be rejected")
	_, err = Transition(order, Action{Kind: ActionCancel})
	assert.ErrorIs(t, err, ErrInvalidTransition, "fulfilled orders can not be cancelled")
}

func TestDropoffOrderWithCollection(t *testing.T) {
	order := apply(t, newOrder(models.InboundDropoff, true), ActionRoute, ActionAdvanceDropoff)
	assert.Equal(t, models.LabelInRepair, order.Processing.RepairStatus)
	assert.Empty(t, order.Processing.CollectionStatus)

	res, err := Transition(order, Action{Kind: ActionCompleteRepair})
	require.NoError(t, err)
	assert.Equal(t, models.StatusAwaitingFulfillment, res.Processing.Status)
	assert.Equal(t, models.CollectionAwaiting, res.Processing.CollectionStatus)
	assert.Equal(t, models.LabelReadyForPickup, res.Processing.RepairStatus)
	assert.Empty(t, res.Processing.DeliveryStatus)
	assert.True(t, res.Has(EffectCollectionSeeded))

	order.Processing = res.Processing
	order = apply(t, order, ActionAdvanceCollection)
	assert.Equal(t, models.StatusFulfilled, order.Processing.Status)
	assert.Equal(t, models.LabelCollected, order.Processing.RepairStatus)
}

func TestDropoffOrderWithDeliveryReturn(t *testing.T) {
	order := newOrder(models.InboundDropoff, true)
	order.Processing.FulfillmentMethod = models.FulfillmentDelivery
	order = apply(t, order, ActionRoute, ActionAdvanceDropoff, ActionCompleteRepair)

	assert.Equal(t, models.DeliveryAwaiting, order.Processing.DeliveryStatus)
	assert.Equal(t, models.LabelReadyToDeliver, order.Processing.RepairStatus)

	order = apply(t, order, ActionAdvanceDelivery, ActionAdvanceDelivery)
	assert.Equal(t, models.StatusFulfilled, order.Processing.Status)
}

func TestCancel(t *testing.T) {
	order := apply(t, newOrder(models.InboundPickup, true), ActionRoute, ActionAdvancePickup)

	res, err := Transition(order, Action{Kind: ActionCancel})
	require.NoError(t, err)
	assert.Equal(t, models.StatusCancelled, res.Processing.Status)
	assert.Equal(t, models.PickupScheduled, res.Processing.PickupStatus, "sub-statuses stay as a historical record")

	order.Processing = res.Processing
	_, err = Transition(order, Action{Kind: ActionCancel})
	assert.ErrorIs(t, err, ErrInvalidTransition)
	_, err = Transition(order, Action{Kind: ActionAdvancePickup})
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestMarkPaid(t *testing.T) {
	order := newOrder(models.InboundPickup, false)
	amount := decimal.RequireFromString("45.00")

	res, err := Transition(order, Action{Kind: ActionMarkPaid, Reference: "txn_42", Method: "card", Amount: &amount, At: fixedTime})
	require.NoError(t, err)
	assert.Equal(t, models.PaymentPaid, res.Payment.Status)
	assert.Equal(t, "txn_42", res.Payment.Reference)
	assert.Equal(t, "card", res.Payment.Method)
	assert.True(t, amount.Equal(res.Payment.Amount))
	require.NotNil(t, res.Payment.PaidAt)
	assert.Equal(t, fixedTime, *res.Payment.PaidAt)
	assert.Equal(t, order.Processing, res.Processing, "mark-paid does not touch processing")

	order.Payment = res.Payment
	_, err = Transition(order, Action{Kind: ActionMarkPaid, Reference: "txn_43"})
	assert.ErrorIs(t, err, ErrInvalidTransition, "paid happens exactly once")

	_, err = Transition(newOrder(models.InboundPickup, false), Action{Kind: ActionMarkPaid})
	assert.ErrorIs(t, err, ErrInvalidTransition, "reference is required")
}

func TestRefund(t *testing.T) {
	_, err := Transition(newOrder(models.InboundPickup, false), Action{Kind: ActionRefund})
	assert.ErrorIs(t, err, ErrInvalidTransition)

	order := apply(t, newOrder(models.InboundPickup, true), ActionCancel, ActionRefund)
	assert.Equal(t, models.PaymentRefunded, order.Payment.Status)

	_, err = Transition(order, Action{Kind: ActionMarkPaid, Reference: "txn_2"})
	assert.ErrorIs(t, err, ErrInvalidTransition, "refunded orders never return to paid")
}

func TestUnknownAction(t *testing.T) {
	_, err := Transition(newOrder(models.InboundPickup, true), Action{Kind: "teleport"})
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.False(t, ActionKind("teleport").Valid())
	assert.True(t, ActionRoute.Valid())
}

// Every accepted transition moves status forward or sideways to cancelled.
func TestTransitionsNeverRegress(t *testing.T) {
	seeds := []models.Order{
		newOrder(models.InboundPickup, false),
		newOrder(models.InboundPickup, true),
		newOrder(models.InboundDropoff, true),
	}
	withDelivery := newOrder(models.InboundDropoff, true)
	withDelivery.Processing.FulfillmentMethod = models.FulfillmentDelivery
	seeds = append(seeds, withDelivery)

	visited := 0
	var walk func(order models.Order, depth int)
	walk = func(order models.Order, depth int) {
		if depth > 8 {
			return
		}
		for _, kind := range AllActions {
			res, err := Transition(order, Action{Kind: kind, Reference: "txn", At: fixedTime})
			if err != nil {
				continue
			}
			visited++
			from, to := order.Processing.Status, res.Processing.Status
			if to != models.StatusCancelled {
				assert.GreaterOrEqual(t, to.Rank(), from.Rank(), "%s moved %s -> %s", kind, from, to)
			} else {
				assert.NotEqual(t, models.StatusFulfilled, from)
			}
			next := order
			next.Processing = res.Processing
			next.Payment = res.Payment
			walk(next, depth+1)
		}
	}
	for _, seed := range seeds {
		walk(seed, 0)
	}
	assert.Greater(t, visited, 20)
}

func TestAvailable(t *testing.T) {
	unpaid := newOrder(models.InboundPickup, false)
	assert.ElementsMatch(t, []ActionKind{ActionMarkPaid, ActionCancel}, Available(unpaid))

	paid := newOrder(models.InboundPickup, true)
	assert.ElementsMatch(t, []ActionKind{ActionRoute, ActionRefund, ActionCancel}, Available(paid))

	routed := apply(t, paid, ActionRoute)
	assert.Contains(t, Available(routed), ActionAdvancePickup)
	assert.NotContains(t, Available(routed), ActionAdvanceDropoff)
}

func TestTransitionErrorMessage(t *testing.T) {
	_, err := Transition(newOrder(models.InboundPickup, true), Action{Kind: ActionAdvancePickup})
	var terr *TransitionError
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, ActionAdvancePickup, terr.Action)
	assert.Equal(t, models.StatusPending, terr.Status)
	assert.Contains(t, err.Error(), "advance-pickup from pending")
}

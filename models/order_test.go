package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNotificationLogTableName(t *testing.T) {
	log := NotificationLog{}
	assert.Equal(t, "notification_logs", log.TableName(), "Table name should be 'notification_logs'")
}

func TestOrderClone(t *testing.T) {
	paidAt := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	order := Order{
		ID:     "order-1",
		Photos: []string{"uploads/front.png"},
		Payment: PaymentInfo{
			Status: PaymentPaid,
			PaidAt: &paidAt,
		},
	}

	clone := order.Clone()
	clone.Photos[0] = "uploads/back.png"
	*clone.Payment.PaidAt = paidAt.Add(time.Hour)

	assert.Equal(t, "uploads/front.png", order.Photos[0], "Clone should not share the photos slice")
	assert.Equal(t, paidAt, *order.Payment.PaidAt, "Clone should not share paidAt")
	assert.True(t, order.IsPaid())
}

func TestProcessingOutbound(t *testing.T) {
	tests := []struct {
		name       string
		processing ProcessingInfo
		want       FulfillmentMethod
	}{
		{"pickup inbound always returns by delivery", ProcessingInfo{DeliveryMethod: InboundPickup, FulfillmentMethod: FulfillmentPickup}, FulfillmentDelivery},
		{"dropoff inbound defaults to collection", ProcessingInfo{DeliveryMethod: InboundDropoff}, FulfillmentPickup},
		{"dropoff inbound can choose delivery", ProcessingInfo{DeliveryMethod: InboundDropoff, FulfillmentMethod: FulfillmentDelivery}, FulfillmentDelivery},
		{"unknown inbound keeps declared method", ProcessingInfo{FulfillmentMethod: FulfillmentDelivery}, FulfillmentDelivery},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.processing.Outbound())
		})
	}
}

func TestProcessingActiveSubStatusIgnoresOtherMethods(t *testing.T) {
	processing := ProcessingInfo{
		DeliveryMethod: InboundDropoff,
		PickupStatus:   PickupPicked, // meaningless for a dropoff order
		DropoffStatus:  DropoffAwaiting,
		DeliveryStatus: DeliveryDelivered, // meaningless, outbound is collection
	}

	assert.Equal(t, PickupStatus(""), processing.ActivePickupStatus())
	assert.Equal(t, DropoffAwaiting, processing.ActiveDropoffStatus())
	assert.Equal(t, DeliveryStatus(""), processing.ActiveDeliveryStatus())
	assert.Equal(t, CollectionStatus(""), processing.ActiveCollectionStatus())
}

func TestOrderStatusRank(t *testing.T) {
	assert.Less(t, StatusPending.Rank(), StatusInProgress.Rank())
	assert.Less(t, StatusInProgress.Rank(), StatusAwaitingFulfillment.Rank())
	assert.Less(t, StatusAwaitingFulfillment.Rank(), StatusFulfilled.Rank())
	assert.Equal(t, -1, StatusCancelled.Rank())
	assert.True(t, StatusCancelled.IsTerminal())
	assert.False(t, StatusInProgress.IsTerminal())
}

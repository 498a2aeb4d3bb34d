package models

// OrderStatus is the coarse lifecycle stage of an order
type OrderStatus string

const (
	StatusPending             OrderStatus = "pending"
	StatusInProgress          OrderStatus = "in_progress"
	StatusAwaitingFulfillment OrderStatus = "awaiting_fulfillment"
	StatusFulfilled           OrderStatus = "fulfilled"
	StatusCancelled           OrderStatus = "cancelled"
)

// IsTerminal reports whether no further lifecycle movement is possible
func (s OrderStatus) IsTerminal() bool {
	return s == StatusFulfilled || s == StatusCancelled
}

// Rank orders the forward statuses; cancelled sits outside the forward chain and ranks -1.
func (s OrderStatus) Rank() int {
	switch s {
	case StatusPending:
		return 0
	case StatusInProgress:
		return 1
	case StatusAwaitingFulfillment:
		return 2
	case StatusFulfilled:
		return 3
	default:
		return -1
	}
}

// InboundMethod is how the jersey reaches the shop
type InboundMethod string

const (
	InboundPickup  InboundMethod = "pickup"  // courier collects from the customer
	InboundDropoff InboundMethod = "dropoff" // customer hands it over at the counter
)

// Valid reports whether the method is recognized
func (m InboundMethod) Valid() bool {
	return m == InboundPickup || m == InboundDropoff
}

// FulfillmentMethod is how the repaired jersey returns to the customer
type FulfillmentMethod string

const (
	FulfillmentPickup   FulfillmentMethod = "pickup"   // customer collects at the counter
	FulfillmentDelivery FulfillmentMethod = "delivery" // courier returns it
)

// Valid reports whether the method is recognized
func (m FulfillmentMethod) Valid() bool {
	return m == FulfillmentPickup || m == FulfillmentDelivery
}

// PickupStatus tracks a courier collecting the jersey from the customer
type PickupStatus string

const (
	PickupAwaiting  PickupStatus = "awaiting_pickup"
	PickupScheduled PickupStatus = "scheduled"
	PickupPicked    PickupStatus = "picked"
)

// DropoffStatus tracks the customer bringing the jersey to the shop
type DropoffStatus string

const (
	DropoffAwaiting   DropoffStatus = "awaiting_dropoff"
	DropoffDroppedOff DropoffStatus = "dropped_off"
)

// DeliveryStatus tracks a courier returning the repaired jersey
type DeliveryStatus string

const (
	DeliveryAwaiting       DeliveryStatus = "awaiting_delivery"
	DeliveryOutForDelivery DeliveryStatus = "out_for_delivery"
	DeliveryDelivered      DeliveryStatus = "delivered"
)

// CollectionStatus tracks the customer collecting the repaired jersey from the shop
type CollectionStatus string

const (
	CollectionAwaiting  CollectionStatus = "awaiting_collection"
	CollectionCollected CollectionStatus = "collected"
)

// Human readable workflow labels stored in ProcessingInfo.RepairStatus
const (
	LabelPendingRouting  = "Pending Routing"
	LabelAwaitingPickup  = "Awaiting Pickup"
	LabelPickupScheduled = "Pickup Scheduled"
	LabelAwaitingDropoff = "Awaiting Drop-off"
	LabelInRepair        = "In Repair"
	LabelReadyForPickup  = "Ready for Customer Pickup"
	LabelReadyToDeliver  = "Ready for Delivery"
	LabelOutForDelivery  = "Out for Delivery"
	LabelDelivered       = "Delivered"
	LabelCollected       = "Collected"
	LabelCancelled       = "Cancelled"
)

// ProcessingInfo is the lifecycle sub-record embedded in every order
type ProcessingInfo struct {
	Status            OrderStatus       `json:"status"`
	RepairStatus      string            `json:"repairStatus"`
	DeliveryMethod    InboundMethod     `json:"deliveryMethod,omitempty"`
	FulfillmentMethod FulfillmentMethod `json:"fulfillmentMethod,omitempty"`
	PickupStatus      PickupStatus      `json:"pickupStatus,omitempty"`
	DropoffStatus     DropoffStatus     `json:"dropoffStatus,omitempty"`
	DeliveryStatus    DeliveryStatus    `json:"deliveryStatus,omitempty"`
	CollectionStatus  CollectionStatus  `json:"collectionStatus,omitempty"`
	Duration          string            `json:"duration,omitempty"`
	PreferredDate     string            `json:"preferredDate,omitempty"`
}

// NewProcessing returns the processing record of a freshly created order
func NewProcessing() ProcessingInfo {
	return ProcessingInfo{
		Status:       StatusPending,
		RepairStatus: LabelPendingRouting,
	}
}

// Outbound returns the fulfillment method in effect. Pickup-inbound orders always
// return by courier; dropoff-inbound orders default to counter collection.
func (p ProcessingInfo) Outbound() FulfillmentMethod {
	switch p.DeliveryMethod {
	case InboundPickup:
		return FulfillmentDelivery
	case InboundDropoff:
		if p.FulfillmentMethod.Valid() {
			return p.FulfillmentMethod
		}
		return FulfillmentPickup
	}
	return p.FulfillmentMethod
}

// The accessors below return a sub-status only when its method is the one selected
// for the order. Any other sub-status field is meaningless and reads as empty.

func (p ProcessingInfo) ActivePickupStatus() PickupStatus {
	if p.DeliveryMethod != InboundPickup {
		return ""
	}
	return p.PickupStatus
}

func (p ProcessingInfo) ActiveDropoffStatus() DropoffStatus {
	if p.DeliveryMethod != InboundDropoff {
		return ""
	}
	return p.DropoffStatus
}

func (p ProcessingInfo) ActiveDeliveryStatus() DeliveryStatus {
	if p.Outbound() != FulfillmentDelivery {
		return ""
	}
	return p.DeliveryStatus
}

func (p ProcessingInfo) ActiveCollectionStatus() CollectionStatus {
	if p.Outbound() != FulfillmentPickup {
		return ""
	}
	return p.CollectionStatus
}

package panels

import (
	"github.com/kendall-kelly/jersey-repair-api/lifecycle"
	"github.com/kendall-kelly/jersey-repair-api/models"
	"github.com/kendall-kelly/jersey-repair-api/store"
)

// Name identifies a panel in URLs and metrics
type Name string

const (
	PanelOrders     Name = "orders"
	PanelPickup     Name = "pickup"
	PanelDropoff    Name = "dropoff"
	PanelRepair     Name = "repair"
	PanelDelivery   Name = "delivery"
	PanelCollection Name = "collection"
	PanelArchive    Name = "archive"
)

// Definition is the slice of orders a panel works on and what it may do to them
type Definition struct {
	Name    Name
	Title   string
	Filter  store.Filter
	Actions []lifecycle.ActionKind
}

// Definitions returns every panel in display order
func Definitions() []Definition {
	return []Definition{
		{
			Name:    PanelOrders,
			Title:   "Order Router",
			Filter:  store.Filter{Statuses: []models.OrderStatus{models.StatusPending}},
			Actions: []lifecycle.ActionKind{lifecycle.ActionRoute, lifecycle.ActionCancel, lifecycle.ActionRefund},
		},
		{
			Name:  PanelPickup,
			Title: "Pickup Scheduler",
			Filter: store.Filter{
				Statuses:       []models.OrderStatus{models.StatusInProgress},
				PickupStatuses: []models.PickupStatus{models.PickupAwaiting, models.PickupScheduled},
			},
			Actions: []lifecycle.ActionKind{lifecycle.ActionAdvancePickup, lifecycle.ActionCancel},
		},
		{
			Name:  PanelDropoff,
			Title: "Drop-off Manager",
			Filter: store.Filter{
				Statuses:        []models.OrderStatus{models.StatusInProgress},
				DropoffStatuses: []models.DropoffStatus{models.DropoffAwaiting},
			},
			Actions: []lifecycle.ActionKind{lifecycle.ActionAdvanceDropoff, lifecycle.ActionCancel},
		},
		{
			Name:  PanelRepair,
			Title: "Repair Manager",
			Filter: store.Filter{
				Statuses:       []models.OrderStatus{models.StatusInProgress},
				RepairStatuses: []string{models.LabelInRepair},
			},
			Actions: []lifecycle.ActionKind{lifecycle.ActionCompleteRepair, lifecycle.ActionAdvanceDelivery, lifecycle.ActionCancel},
		},
		{
			Name:  PanelDelivery,
			Title: "Delivery Manager",
			Filter: store.Filter{
				Statuses:         []models.OrderStatus{models.StatusInProgress, models.StatusAwaitingFulfillment},
				DeliveryStatuses: []models.DeliveryStatus{models.DeliveryAwaiting, models.DeliveryOutForDelivery},
			},
			Actions: []lifecycle.ActionKind{lifecycle.ActionAdvanceDelivery, lifecycle.ActionCancel},
		},
		{
			Name:  PanelCollection,
			Title: "Collection Desk",
			Filter: store.Filter{
				Statuses:           []models.OrderStatus{models.StatusAwaitingFulfillment},
				CollectionStatuses: []models.CollectionStatus{models.CollectionAwaiting},
			},
			Actions: []lifecycle.ActionKind{lifecycle.ActionAdvanceCollection, lifecycle.ActionCancel},
		},
		{
			Name:    PanelArchive,
			Title:   "Archive",
			Filter:  store.Filter{Statuses: []models.OrderStatus{models.StatusFulfilled, models.StatusCancelled}},
			Actions: []lifecycle.ActionKind{lifecycle.ActionRefund},
		},
	}
}

package store

import (
	"slices"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/kendall-kelly/jersey-repair-api/models"
)

// Filter is a conjunction of predicates over an order. Empty fields match anything.
// A sub-status set also requires the method that owns the sub-status, so a stale
// value left on another method's field never matches.
type Filter struct {
	Statuses           []models.OrderStatus
	IncludeCancelled   bool // only consulted when Statuses is empty
	DeliveryMethod     models.InboundMethod
	FulfillmentMethod  models.FulfillmentMethod
	RepairStatuses     []string
	PickupStatuses     []models.PickupStatus
	DropoffStatuses    []models.DropoffStatus
	DeliveryStatuses   []models.DeliveryStatus
	CollectionStatuses []models.CollectionStatus
	PaymentStatuses    []models.PaymentStatus
	SessionID          string
	OwnerID            string
	Limit              int
}

var liveStatuses = []models.OrderStatus{
	models.StatusPending,
	models.StatusInProgress,
	models.StatusAwaitingFulfillment,
	models.StatusFulfilled,
}

// Matches evaluates the filter against an order held in memory
func (f Filter) Matches(o models.Order) bool {
	p := o.Processing

	switch {
	case len(f.Statuses) > 0:
		if !slices.Contains(f.Statuses, p.Status) {
			return false
		}
	case !f.IncludeCancelled:
		if p.Status == models.StatusCancelled {
			return false
		}
	}
	if f.DeliveryMethod != "" && p.DeliveryMethod != f.DeliveryMethod {
		return false
	}
	if f.FulfillmentMethod != "" && p.Outbound() != f.FulfillmentMethod {
		return false
	}
	if len(f.RepairStatuses) > 0 && !slices.Contains(f.RepairStatuses, p.RepairStatus) {
		return false
	}
	if len(f.PickupStatuses) > 0 && !slices.Contains(f.PickupStatuses, p.ActivePickupStatus()) {
		return false
	}
	if len(f.DropoffStatuses) > 0 && !slices.Contains(f.DropoffStatuses, p.ActiveDropoffStatus()) {
		return false
	}
	if len(f.DeliveryStatuses) > 0 && !slices.Contains(f.DeliveryStatuses, p.ActiveDeliveryStatus()) {
		return false
	}
	if len(f.CollectionStatuses) > 0 && !slices.Contains(f.CollectionStatuses, p.ActiveCollectionStatus()) {
		return false
	}
	if len(f.PaymentStatuses) > 0 && !slices.Contains(f.PaymentStatuses, o.Payment.Status) {
		return false
	}
	if f.SessionID != "" && o.SessionID != f.SessionID {
		return false
	}
	if f.OwnerID != "" && o.OwnerID != f.OwnerID {
		return false
	}
	return true
}

// apply narrows a query with the filter's predicates. Nested fields are matched with
// JSON path expressions so the database does the filtering.
func (f Filter) apply(db *gorm.DB) *gorm.DB {
	statuses := f.Statuses
	if len(statuses) == 0 && !f.IncludeCancelled {
		statuses = liveStatuses
	}
	db = whereAny(db, "processing", "status", statuses)
	db = whereAny(db, "processing", "repairStatus", f.RepairStatuses)
	db = whereAny(db, "payment", "status", f.PaymentStatuses)

	inbound := f.DeliveryMethod
	if len(f.PickupStatuses) > 0 {
		inbound = models.InboundPickup
	}
	if len(f.DropoffStatuses) > 0 {
		inbound = models.InboundDropoff
	}
	if inbound != "" {
		db = db.Where(datatypes.JSONQuery("processing").Equals(string(inbound), "deliveryMethod"))
	}
	db = whereAny(db, "processing", "pickupStatus", f.PickupStatuses)
	db = whereAny(db, "processing", "dropoffStatus", f.DropoffStatuses)

	outbound := f.FulfillmentMethod
	if len(f.DeliveryStatuses) > 0 {
		outbound = models.FulfillmentDelivery
	}
	if len(f.CollectionStatuses) > 0 {
		outbound = models.FulfillmentPickup
	}
	if outbound != "" {
		db = db.Where(datatypes.JSONQuery("processing").Equals(string(outbound), "fulfillmentMethod"))
	}
	db = whereAny(db, "processing", "deliveryStatus", f.DeliveryStatuses)
	db = whereAny(db, "processing", "collectionStatus", f.CollectionStatuses)

	if f.SessionID != "" {
		db = db.Where("session_id = ?", f.SessionID)
	}
	if f.OwnerID != "" {
		db = db.Where("owner_id = ?", f.OwnerID)
	}
	if f.Limit > 0 {
		db = db.Limit(f.Limit)
	}
	return db
}

// whereAny adds "column.key IN values" as a disjunction of JSON equality checks
func whereAny[T ~string](db *gorm.DB, column, key string, values []T) *gorm.DB {
	if len(values) == 0 {
		return db
	}
	exprs := make([]clause.Expression, 0, len(values))
	for _, v := range values {
		exprs = append(exprs, datatypes.JSONQuery(column).Equals(string(v), key))
	}
	return db.Where(clause.Or(exprs...))
}

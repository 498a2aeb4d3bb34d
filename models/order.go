package models

import (
	"slices"
	"time"

	"github.com/shopspring/decimal"
)

// Order represents a single jersey repair request and its lifecycle record.
// Field names in the JSON tags are the wire contract shared with the store and the notifier.
type Order struct {
	ID                string          `json:"id"`
	SessionID         string          `json:"sessionId,omitempty"`
	OwnerID           string          `json:"ownerId,omitempty"`
	ContactInfo       ContactInfo     `json:"contactInfo"`
	RepairType        string          `json:"repairType"`
	RepairDescription string          `json:"repairDescription,omitempty"`
	Price             decimal.Decimal `json:"price"`
	Notes             string          `json:"notes,omitempty"`
	Photos            []string        `json:"photos,omitempty"` // ordered S3 keys, append-only for customers
	Processing        ProcessingInfo  `json:"processing"`
	Payment           PaymentInfo     `json:"payment"`
	StepCompleted     int             `json:"stepCompleted,omitempty"` // 0..4, customer flow progress
	UpdatedBy         string          `json:"updatedBy,omitempty"`     // identity of the last writer
	CreatedAt         time.Time       `json:"createdAt"`
	UpdatedAt         time.Time       `json:"updatedAt"`
}

// ContactInfo holds how to reach the customer
type ContactInfo struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Phone   string `json:"phone,omitempty"`
	Address string `json:"address,omitempty"`
}

// Clone returns a copy of the order that shares no mutable state with the receiver
func (o Order) Clone() Order {
	clone := o
	clone.Photos = slices.Clone(o.Photos)
	if o.Payment.PaidAt != nil {
		paidAt := *o.Payment.PaidAt
		clone.Payment.PaidAt = &paidAt
	}
	return clone
}

// IsPaid reports whether the payment callback has been applied
func (o Order) IsPaid() bool {
	return o.Payment.Status == PaymentPaid
}

package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// PaymentStatus tracks money movement for an order
type PaymentStatus string

const (
	PaymentUnpaid   PaymentStatus = "unpaid"
	PaymentPaid     PaymentStatus = "paid"
	PaymentRefunded PaymentStatus = "refunded"
)

// PaymentInfo is the payment sub-record embedded in every order
type PaymentInfo struct {
	Status    PaymentStatus   `json:"status"`
	Amount    decimal.Decimal `json:"amount"`
	Method    string          `json:"method,omitempty"`
	Reference string          `json:"reference,omitempty"` // transaction reference from the payment provider
	PaidAt    *time.Time      `json:"paidAt,omitempty"`
}

// NewPayment returns the payment record of a freshly created order
func NewPayment() PaymentInfo {
	return PaymentInfo{Status: PaymentUnpaid, Amount: decimal.Zero}
}

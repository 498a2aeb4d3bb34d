package models

import (
	"time"
)

// Notification ledger statuses
const (
	NotificationPending = "pending"
	NotificationSent    = "sent"
	NotificationSkipped = "skipped"
	NotificationFailed  = "failed"
)

// NotificationLog records one outbound email claimed for an order transition.
// The unique index on (order_id, rule, audience) is what keeps a notification at-most-once
// when the change feed redelivers an event.
type NotificationLog struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	OrderID   string    `gorm:"size:36;not null;uniqueIndex:idx_notification_once" json:"order_id"`
	Rule      string    `gorm:"size:64;not null;uniqueIndex:idx_notification_once" json:"rule"`
	Audience  string    `gorm:"size:16;not null;uniqueIndex:idx_notification_once" json:"audience"` // customer or admin
	EventID   string    `gorm:"size:36;index" json:"event_id"`                                   // change event that triggered it
	Recipient string    `json:"recipient"`
	Subject   string    `json:"subject"`
	Status    string    `gorm:"not null;default:'pending'" json:"status"` // pending, sent, skipped, failed
	Error     *string   `gorm:"type:text" json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName specifies the table name for the NotificationLog model
func (NotificationLog) TableName() string {
	return "notification_logs"
}

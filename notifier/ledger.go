package notifier

import (
	"context"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/kendall-kelly/jersey-repair-api/models"
)

// AutoMigrate creates or updates the notification ledger table
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&models.NotificationLog{})
}

// ledger persists which notifications have been claimed. The unique index on
// (order_id, rule, audience) turns a second claim of the same notification into a no-op.
type ledger struct {
	db *gorm.DB
}

// claim inserts entry and reports whether this caller owns it
func (l *ledger) claim(ctx context.Context, entry *models.NotificationLog) (bool, error) {
	res := l.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(entry)
	if res.Error != nil {
		return false, fmt.Errorf("failed to claim notification: %w", res.Error)
	}
	return res.RowsAffected == 1, nil
}

func (l *ledger) finish(ctx context.Context, id uint, status string, sendErr error) error {
	updates := map[string]any{"status": status}
	if sendErr != nil {
		updates["error"] = sendErr.Error()
	}
	if err := l.db.WithContext(ctx).Model(&models.NotificationLog{}).Where("id = ?", id).Updates(updates).Error; err != nil {
		return fmt.Errorf("failed to record notification status: %w", err)
	}
	return nil
}

// History returns the ledger entries of an order, oldest first
func (n *Notifier) History(ctx context.Context, orderID string) ([]models.NotificationLog, error) {
	var entries []models.NotificationLog
	err := n.ledger.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("id").
		Find(&entries).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load notification history: %w", err)
	}
	return entries, nil
}

package store

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/kendall-kelly/jersey-repair-api/models"
)

// orderRecord is the row layout of an order. The nested sub-records are stored as
// JSON documents so that Update can merge into them field by field.
type orderRecord struct {
	ID                string                                    `gorm:"primaryKey;size:36"`
	SessionID         string                                    `gorm:"size:128;index"`
	OwnerID           string                                    `gorm:"size:128;index"`
	ContactInfo       datatypes.JSONType[models.ContactInfo]    `gorm:"not null"`
	RepairType        string                                    `gorm:"size:64"`
	RepairDescription string                                    `gorm:"type:text"`
	Price             decimal.Decimal                           `gorm:"type:decimal(10,2);not null;default:0"`
	Notes             string                                    `gorm:"type:text"`
	Photos            datatypes.JSONSlice[string]               ``
	Processing        datatypes.JSONType[models.ProcessingInfo] `gorm:"not null"`
	Payment           datatypes.JSONType[models.PaymentInfo]    `gorm:"not null"`
	StepCompleted     int                                       `gorm:"not null;default:0"`
	UpdatedBy         string                                    `gorm:"size:128"`
	CreatedAt         time.Time                                 `gorm:"index;autoCreateTime:false"`
	UpdatedAt         time.Time                                 `gorm:"autoUpdateTime:false"`
}

// TableName specifies the table name for order rows
func (orderRecord) TableName() string {
	return "orders"
}

// AutoMigrate creates or updates the orders table
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&orderRecord{})
}

func toRecord(o models.Order) orderRecord {
	return orderRecord{
		ID:                o.ID,
		SessionID:         o.SessionID,
		OwnerID:           o.OwnerID,
		ContactInfo:       datatypes.NewJSONType(o.ContactInfo),
		RepairType:        o.RepairType,
		RepairDescription: o.RepairDescription,
		Price:             o.Price,
		Notes:             o.Notes,
		Photos:            datatypes.NewJSONSlice(o.Photos),
		Processing:        datatypes.NewJSONType(o.Processing),
		Payment:           datatypes.NewJSONType(o.Payment),
		StepCompleted:     o.StepCompleted,
		UpdatedBy:         o.UpdatedBy,
		CreatedAt:         o.CreatedAt,
		UpdatedAt:         o.UpdatedAt,
	}
}

func (r orderRecord) toOrder() models.Order {
	var photos []string
	if len(r.Photos) > 0 {
		photos = append(photos, r.Photos...)
	}
	return models.Order{
		ID:                r.ID,
		SessionID:         r.SessionID,
		OwnerID:           r.OwnerID,
		ContactInfo:       r.ContactInfo.Data(),
		RepairType:        r.RepairType,
		RepairDescription: r.RepairDescription,
		Price:             r.Price,
		Notes:             r.Notes,
		Photos:            photos,
		Processing:        r.Processing.Data(),
		Payment:           r.Payment.Data(),
		StepCompleted:     r.StepCompleted,
		UpdatedBy:         r.UpdatedBy,
		CreatedAt:         r.CreatedAt.UTC(),
		UpdatedAt:         r.UpdatedAt.UTC(),
	}
}

package store

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"

	"github.com/kendall-kelly/jersey-repair-api/models"
)

// Patch names the fields an update writes. Nil fields are left alone; the nested
// Processing and Payment patches are merged into the stored sub-records field by field.
type Patch struct {
	ContactInfo       *models.ContactInfo
	RepairType        *string
	RepairDescription *string
	Price             *decimal.Decimal
	Notes             *string
	AppendPhotos      []string
	Processing        *ProcessingPatch
	Payment           *PaymentPatch
	StepCompleted     *int
	UpdatedBy         string
	// ExpectedUpdatedAt, when set, fails the update with ErrPreconditionFailed
	// unless the stored order still carries this timestamp.
	ExpectedUpdatedAt *time.Time
}

// ProcessingPatch is a partial ProcessingInfo
type ProcessingPatch struct {
	Status            *models.OrderStatus
	RepairStatus      *string
	DeliveryMethod    *models.InboundMethod
	FulfillmentMethod *models.FulfillmentMethod
	PickupStatus      *models.PickupStatus
	DropoffStatus     *models.DropoffStatus
	DeliveryStatus    *models.DeliveryStatus
	CollectionStatus  *models.CollectionStatus
	Duration          *string
	PreferredDate     *string
}

// PaymentPatch is a partial PaymentInfo
type PaymentPatch struct {
	Status    *models.PaymentStatus
	Amount    *decimal.Decimal
	Method    *string
	Reference *string
	PaidAt    *time.Time
}

// Ptr returns a pointer to v
func Ptr[T any](v T) *T {
	return &v
}

// IsEmpty reports whether the patch writes nothing
func (p Patch) IsEmpty() bool {
	return p.ContactInfo == nil &&
		p.RepairType == nil &&
		p.RepairDescription == nil &&
		p.Price == nil &&
		p.Notes == nil &&
		len(p.AppendPhotos) == 0 &&
		p.Processing == nil &&
		p.Payment == nil &&
		p.StepCompleted == nil
}

func (p ProcessingPatch) apply(info *models.ProcessingInfo) {
	setIf(&info.Status, p.Status)
	setIf(&info.RepairStatus, p.RepairStatus)
	setIf(&info.DeliveryMethod, p.DeliveryMethod)
	setIf(&info.FulfillmentMethod, p.FulfillmentMethod)
	setIf(&info.PickupStatus, p.PickupStatus)
	setIf(&info.DropoffStatus, p.DropoffStatus)
	setIf(&info.DeliveryStatus, p.DeliveryStatus)
	setIf(&info.CollectionStatus, p.CollectionStatus)
	setIf(&info.Duration, p.Duration)
	setIf(&info.PreferredDate, p.PreferredDate)
}

func (p PaymentPatch) apply(info *models.PaymentInfo) {
	setIf(&info.Status, p.Status)
	setIf(&info.Amount, p.Amount)
	setIf(&info.Method, p.Method)
	setIf(&info.Reference, p.Reference)
	if p.PaidAt != nil {
		paidAt := *p.PaidAt
		info.PaidAt = &paidAt
	}
}

func setIf[T any](dst *T, src *T) {
	if src != nil {
		*dst = *src
	}
}

func diffField[T comparable](before, after T) *T {
	if before == after {
		return nil
	}
	return &after
}

// DiffProcessing returns a patch holding only the fields that differ, or nil
func DiffProcessing(before, after models.ProcessingInfo) *ProcessingPatch {
	if before == after {
		return nil
	}
	return &ProcessingPatch{
		Status:            diffField(before.Status, after.Status),
		RepairStatus:      diffField(before.RepairStatus, after.RepairStatus),
		DeliveryMethod:    diffField(before.DeliveryMethod, after.DeliveryMethod),
		FulfillmentMethod: diffField(before.FulfillmentMethod, after.FulfillmentMethod),
		PickupStatus:      diffField(before.PickupStatus, after.PickupStatus),
		DropoffStatus:     diffField(before.DropoffStatus, after.DropoffStatus),
		DeliveryStatus:    diffField(before.DeliveryStatus, after.DeliveryStatus),
		CollectionStatus:  diffField(before.CollectionStatus, after.CollectionStatus),
		Duration:          diffField(before.Duration, after.Duration),
		PreferredDate:     diffField(before.PreferredDate, after.PreferredDate),
	}
}

// DiffPayment returns a patch holding only the fields that differ, or nil
func DiffPayment(before, after models.PaymentInfo) *PaymentPatch {
	if paymentEqual(before, after) {
		return nil
	}
	patch := &PaymentPatch{
		Status:    diffField(before.Status, after.Status),
		Method:    diffField(before.Method, after.Method),
		Reference: diffField(before.Reference, after.Reference),
	}
	if !before.Amount.Equal(after.Amount) {
		patch.Amount = Ptr(after.Amount)
	}
	if !timePtrEqual(before.PaidAt, after.PaidAt) && after.PaidAt != nil {
		patch.PaidAt = Ptr(*after.PaidAt)
	}
	return patch
}

func paymentEqual(a, b models.PaymentInfo) bool {
	return a.Status == b.Status &&
		a.Amount.Equal(b.Amount) &&
		a.Method == b.Method &&
		a.Reference == b.Reference &&
		timePtrEqual(a.PaidAt, b.PaidAt)
}

func timePtrEqual(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}

// merge applies the patch to current and returns the changed columns with the merged order.
// Columns whose merged value equals the stored one are not written.
func merge(current models.Order, patch Patch) (map[string]any, models.Order) {
	next := current.Clone()
	updates := map[string]any{}

	if patch.ContactInfo != nil && *patch.ContactInfo != current.ContactInfo {
		next.ContactInfo = *patch.ContactInfo
		updates["contact_info"] = datatypes.NewJSONType(next.ContactInfo)
	}
	if patch.RepairType != nil && *patch.RepairType != current.RepairType {
		next.RepairType = *patch.RepairType
		updates["repair_type"] = next.RepairType
	}
	if patch.RepairDescription != nil && *patch.RepairDescription != current.RepairDescription {
		next.RepairDescription = *patch.RepairDescription
		updates["repair_description"] = next.RepairDescription
	}
	if patch.Price != nil && !patch.Price.Equal(current.Price) {
		next.Price = *patch.Price
		updates["price"] = next.Price
	}
	if patch.Notes != nil && *patch.Notes != current.Notes {
		next.Notes = *patch.Notes
		updates["notes"] = next.Notes
	}
	if len(patch.AppendPhotos) > 0 {
		next.Photos = append(next.Photos, patch.AppendPhotos...)
		updates["photos"] = datatypes.NewJSONSlice(next.Photos)
	}
	if patch.Processing != nil {
		merged := current.Processing
		patch.Processing.apply(&merged)
		if merged != current.Processing {
			next.Processing = merged
			updates["processing"] = datatypes.NewJSONType(merged)
		}
	}
	if patch.Payment != nil {
		merged := current.Clone().Payment
		patch.Payment.apply(&merged)
		if !paymentEqual(merged, current.Payment) {
			next.Payment = merged
			updates["payment"] = datatypes.NewJSONType(merged)
		}
	}
	if patch.StepCompleted != nil && *patch.StepCompleted != current.StepCompleted {
		next.StepCompleted = *patch.StepCompleted
		updates["step_completed"] = next.StepCompleted
	}
	return updates, next
}

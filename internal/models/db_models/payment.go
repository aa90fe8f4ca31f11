package db_models

import (
	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type PaymentStatus string

const (
	PaymentStatusPending           PaymentStatus = "pending"
	PaymentStatusSucceeded         PaymentStatus = "succeeded"
	PaymentStatusRefunded          PaymentStatus = "refunded"
	PaymentStatusPartiallyRefunded PaymentStatus = "partially_refunded"
)

type Payment struct {
	BaseModel
	UserID uuid.UUID `gorm:"type:uuid;index"`
	TierID uuid.UUID `gorm:"type:uuid;index"`

	AmountMinor       int64
	RefundAmountMinor int64  `gorm:"default:0"`
	Currency          string `gorm:"size:3"`
	PhotoCount        int    // snapshot of the tier at purchase time

	Status PaymentStatus `gorm:"size:24;index"`

	// Gateway fields
	Provider      string `gorm:"index"`
	OrderCode     int64  `gorm:"uniqueIndex"` // snowflake id sent to the provider
	ProviderTxnID string `gorm:"index"`

	// Consumption gate: flipped false->true exactly once when a generation
	// job is created off this payment.
	GenerationConsumed bool       `gorm:"default:false"`
	ConsumedAvatarID   *uuid.UUID `gorm:"type:uuid"`

	PaidAt     *int64
	RefundedAt *int64

	Metadata datatypes.JSON `gorm:"type:jsonb;default:'{}'"`
}

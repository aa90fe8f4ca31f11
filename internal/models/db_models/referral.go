package db_models

import (
	"github.com/google/uuid"
)

type EarningStatus string

const (
	EarningStatusPending   EarningStatus = "pending"
	EarningStatusCredited  EarningStatus = "credited"
	EarningStatusCancelled EarningStatus = "cancelled"
)

// ReferralBalance is the mutable projection of a referrer's earnings.
// Balance must never go negative; every mutation is an atomic conditional
// update in the repository layer.
type ReferralBalance struct {
	BaseModel
	UserID         uuid.UUID `gorm:"type:uuid;uniqueIndex"`
	Balance        int64     `gorm:"default:0"`
	TotalEarned    int64     `gorm:"default:0"`
	TotalWithdrawn int64     `gorm:"default:0"`
	ReferralCode   string    `gorm:"size:16;uniqueIndex"`
	IsPartner      bool      `gorm:"default:false"`
	// Commission rate in basis points; 0 means "use the settings default".
	CommissionRateBps int64 `gorm:"default:0"`
}

// ReferralEarning is append-only except for status transitions. The unique
// index on PaymentID prevents crediting the same payment twice under
// webhook redelivery.
type ReferralEarning struct {
	BaseModel
	ReferrerID  uuid.UUID `gorm:"type:uuid;index"`
	ReferredID  uuid.UUID `gorm:"type:uuid;index"`
	PaymentID   uuid.UUID `gorm:"type:uuid;uniqueIndex"`
	AmountMinor int64
	RateBps     int64
	Status      EarningStatus `gorm:"size:16;index"`
}

package db_models

import (
	"github.com/google/uuid"
)

type WithdrawalStatus string

const (
	WithdrawalStatusPending    WithdrawalStatus = "pending"
	WithdrawalStatusApproved   WithdrawalStatus = "approved"
	WithdrawalStatusRejected   WithdrawalStatus = "rejected"
	WithdrawalStatusProcessing WithdrawalStatus = "processing"
	WithdrawalStatusCompleted  WithdrawalStatus = "completed"
	WithdrawalStatusFailed     WithdrawalStatus = "failed"
)

func (s WithdrawalStatus) Terminal() bool {
	return s == WithdrawalStatusRejected ||
		s == WithdrawalStatusCompleted ||
		s == WithdrawalStatusFailed
}

type Withdrawal struct {
	BaseModel
	UserID uuid.UUID `gorm:"type:uuid;index"`

	AmountMinor int64 // debited from the referral balance at approval
	FeeMinor    int64
	PayoutMinor int64 // amount - fee, sent to the payout provider

	// Phone-linked SBP destination.
	Destination string `gorm:"size:32"`

	Status WithdrawalStatus `gorm:"size:16;index"`

	IdempotencyKey string `gorm:"size:64;uniqueIndex"`
	PayoutID       string `gorm:"index"` // provider-side id, set once processing
	RejectReason   string
	FailureReason  string
}

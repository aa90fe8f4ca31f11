package repositories

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"lumora/internal/models/db_models"
)

type IReferralRepository interface {
	WithTx(tx *gorm.DB) IReferralRepository

	GetBalance(ctx context.Context, userID uuid.UUID) (*db_models.ReferralBalance, error)
	GetBalanceByCode(ctx context.Context, code string) (*db_models.ReferralBalance, error)
	// EnsureBalance creates the balance row with a fresh referral code on
	// first touch.
	EnsureBalance(ctx context.Context, userID uuid.UUID) (*db_models.ReferralBalance, error)

	CreateEarning(ctx context.Context, earning *db_models.ReferralEarning) error
	GetEarningByPaymentID(ctx context.Context, paymentID uuid.UUID) (*db_models.ReferralEarning, error)
	// MarkEarningCancelled flips credited -> cancelled; already-cancelled
	// returns false.
	MarkEarningCancelled(ctx context.Context, paymentID uuid.UUID) (bool, error)

	// CreditBalance additively bumps balance and totalEarned.
	CreditBalance(ctx context.Context, userID uuid.UUID, amount int64) error
	// DeductCredited reverts a credit; guarded so balance never goes
	// negative.
	DeductCredited(ctx context.Context, userID uuid.UUID, amount int64) (bool, error)

	// DebitForWithdrawal is the single conditional statement serializing
	// competing approvals: balance and the funds check in one round trip.
	DebitForWithdrawal(ctx context.Context, userID uuid.UUID, amount, payout int64) (bool, error)
	// RestoreForFailedPayout credits a failed withdrawal back.
	RestoreForFailedPayout(ctx context.Context, userID uuid.UUID, amount, payout int64) error

	CountReferred(ctx context.Context, referrerID uuid.UUID) (int64, error)
}

type ReferralRepository struct {
	db *gorm.DB
}

func NewReferralRepository(db *gorm.DB) IReferralRepository {
	return &ReferralRepository{db: db}
}

func (r *ReferralRepository) WithTx(tx *gorm.DB) IReferralRepository {
	return &ReferralRepository{db: tx}
}

func (r *ReferralRepository) GetBalance(ctx context.Context, userID uuid.UUID) (*db_models.ReferralBalance, error) {
	var balance db_models.ReferralBalance
	err := r.db.WithContext(ctx).First(&balance, "user_id = ?", userID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &balance, nil
}

func (r *ReferralRepository) GetBalanceByCode(ctx context.Context, code string) (*db_models.ReferralBalance, error) {
	var balance db_models.ReferralBalance
	err := r.db.WithContext(ctx).First(&balance, "referral_code = ?", code).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &balance, nil
}

func (r *ReferralRepository) EnsureBalance(ctx context.Context, userID uuid.UUID) (*db_models.ReferralBalance, error) {
	if existing, err := r.GetBalance(ctx, userID); err != nil || existing != nil {
		return existing, err
	}

	balance := &db_models.ReferralBalance{
		UserID:       userID,
		ReferralCode: newReferralCode(),
	}
	if err := r.db.WithContext(ctx).Create(balance).Error; err != nil {
		// Lost a race with a concurrent first touch.
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return r.GetBalance(ctx, userID)
		}
		return nil, err
	}
	return balance, nil
}

func (r *ReferralRepository) CreateEarning(ctx context.Context, earning *db_models.ReferralEarning) error {
	return r.db.WithContext(ctx).Create(earning).Error
}

func (r *ReferralRepository) GetEarningByPaymentID(ctx context.Context, paymentID uuid.UUID) (*db_models.ReferralEarning, error) {
	var earning db_models.ReferralEarning
	err := r.db.WithContext(ctx).First(&earning, "payment_id = ?", paymentID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &earning, nil
}

func (r *ReferralRepository) MarkEarningCancelled(ctx context.Context, paymentID uuid.UUID) (bool, error) {
	res := r.db.WithContext(ctx).Model(&db_models.ReferralEarning{}).
		Where("payment_id = ? AND status = ?", paymentID, db_models.EarningStatusCredited).
		Update("status", db_models.EarningStatusCancelled)
	return res.RowsAffected > 0, res.Error
}

func (r *ReferralRepository) CreditBalance(ctx context.Context, userID uuid.UUID, amount int64) error {
	return r.db.WithContext(ctx).Model(&db_models.ReferralBalance{}).
		Where("user_id = ?", userID).
		Updates(map[string]interface{}{
			"balance":      gorm.Expr("balance + ?", amount),
			"total_earned": gorm.Expr("total_earned + ?", amount),
		}).Error
}

func (r *ReferralRepository) DeductCredited(ctx context.Context, userID uuid.UUID, amount int64) (bool, error) {
	res := r.db.WithContext(ctx).Model(&db_models.ReferralBalance{}).
		Where("user_id = ? AND balance >= ?", userID, amount).
		Updates(map[string]interface{}{
			"balance":      gorm.Expr("balance - ?", amount),
			"total_earned": gorm.Expr("total_earned - ?", amount),
		})
	return res.RowsAffected > 0, res.Error
}

func (r *ReferralRepository) DebitForWithdrawal(ctx context.Context, userID uuid.UUID, amount, payout int64) (bool, error) {
	res := r.db.WithContext(ctx).Model(&db_models.ReferralBalance{}).
		Where("user_id = ? AND balance >= ?", userID, amount).
		Updates(map[string]interface{}{
			"balance":         gorm.Expr("balance - ?", amount),
			"total_withdrawn": gorm.Expr("total_withdrawn + ?", payout),
		})
	return res.RowsAffected > 0, res.Error
}

func (r *ReferralRepository) RestoreForFailedPayout(ctx context.Context, userID uuid.UUID, amount, payout int64) error {
	return r.db.WithContext(ctx).Model(&db_models.ReferralBalance{}).
		Where("user_id = ?", userID).
		Updates(map[string]interface{}{
			"balance":         gorm.Expr("balance + ?", amount),
			"total_withdrawn": gorm.Expr("total_withdrawn - ?", payout),
		}).Error
}

func (r *ReferralRepository) CountReferred(ctx context.Context, referrerID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&db_models.User{}).
		Where("referred_by = ?", referrerID).
		Count(&count).Error
	return count, err
}

func newReferralCode() string {
	b := make([]byte, 4)
	_, _ = rand.Read(b)
	return strings.ToUpper(hex.EncodeToString(b))
}

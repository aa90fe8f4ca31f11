package repositories

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"lumora/internal/models/db_models"
)

type IWithdrawalRepository interface {
	WithTx(tx *gorm.DB) IWithdrawalRepository

	Create(ctx context.Context, withdrawal *db_models.Withdrawal) error
	GetByID(ctx context.Context, id uuid.UUID) (*db_models.Withdrawal, error)
	GetByIdempotencyKey(ctx context.Context, key string) (*db_models.Withdrawal, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]db_models.Withdrawal, error)

	// SumActiveAmount is the total reserved by this user's other
	// non-terminal withdrawals.
	SumActiveAmount(ctx context.Context, userID uuid.UUID) (int64, error)

	ApproveIfPending(ctx context.Context, id uuid.UUID) (bool, error)
	RejectIfPending(ctx context.Context, id uuid.UUID, reason string) (bool, error)
	MarkProcessing(ctx context.Context, id uuid.UUID, payoutID string) (bool, error)

	// Settlement transitions tolerate duplicate webhook delivery: a
	// withdrawal already terminal is left untouched and false is returned.
	CompleteIfActive(ctx context.Context, id uuid.UUID) (bool, error)
	FailIfActive(ctx context.Context, id uuid.UUID, reason string) (bool, error)
}

type WithdrawalRepository struct {
	db *gorm.DB
}

func NewWithdrawalRepository(db *gorm.DB) IWithdrawalRepository {
	return &WithdrawalRepository{db: db}
}

func (r *WithdrawalRepository) WithTx(tx *gorm.DB) IWithdrawalRepository {
	return &WithdrawalRepository{db: tx}
}

func (r *WithdrawalRepository) Create(ctx context.Context, withdrawal *db_models.Withdrawal) error {
	return r.db.WithContext(ctx).Create(withdrawal).Error
}

func (r *WithdrawalRepository) GetByID(ctx context.Context, id uuid.UUID) (*db_models.Withdrawal, error) {
	var withdrawal db_models.Withdrawal
	err := r.db.WithContext(ctx).First(&withdrawal, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &withdrawal, nil
}

func (r *WithdrawalRepository) GetByIdempotencyKey(ctx context.Context, key string) (*db_models.Withdrawal, error) {
	var withdrawal db_models.Withdrawal
	err := r.db.WithContext(ctx).First(&withdrawal, "idempotency_key = ?", key).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &withdrawal, nil
}

func (r *WithdrawalRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]db_models.Withdrawal, error) {
	var withdrawals []db_models.Withdrawal
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&withdrawals).Error
	return withdrawals, err
}

func (r *WithdrawalRepository) SumActiveAmount(ctx context.Context, userID uuid.UUID) (int64, error) {
	var sum *int64
	err := r.db.WithContext(ctx).Model(&db_models.Withdrawal{}).
		Select("SUM(amount_minor)").
		Where("user_id = ? AND status IN ?", userID, []db_models.WithdrawalStatus{
			db_models.WithdrawalStatusPending,
			db_models.WithdrawalStatusApproved,
			db_models.WithdrawalStatusProcessing,
		}).
		Scan(&sum).Error
	if err != nil || sum == nil {
		return 0, err
	}
	return *sum, nil
}

func (r *WithdrawalRepository) ApproveIfPending(ctx context.Context, id uuid.UUID) (bool, error) {
	res := r.db.WithContext(ctx).Model(&db_models.Withdrawal{}).
		Where("id = ? AND status = ?", id, db_models.WithdrawalStatusPending).
		Update("status", db_models.WithdrawalStatusApproved)
	return res.RowsAffected > 0, res.Error
}

func (r *WithdrawalRepository) RejectIfPending(ctx context.Context, id uuid.UUID, reason string) (bool, error) {
	res := r.db.WithContext(ctx).Model(&db_models.Withdrawal{}).
		Where("id = ? AND status = ?", id, db_models.WithdrawalStatusPending).
		Updates(map[string]interface{}{
			"status":        db_models.WithdrawalStatusRejected,
			"reject_reason": reason,
		})
	return res.RowsAffected > 0, res.Error
}

func (r *WithdrawalRepository) MarkProcessing(ctx context.Context, id uuid.UUID, payoutID string) (bool, error) {
	res := r.db.WithContext(ctx).Model(&db_models.Withdrawal{}).
		Where("id = ? AND status = ?", id, db_models.WithdrawalStatusApproved).
		Updates(map[string]interface{}{
			"status":    db_models.WithdrawalStatusProcessing,
			"payout_id": payoutID,
		})
	return res.RowsAffected > 0, res.Error
}

func (r *WithdrawalRepository) CompleteIfActive(ctx context.Context, id uuid.UUID) (bool, error) {
	res := r.db.WithContext(ctx).Model(&db_models.Withdrawal{}).
		Where("id = ? AND status IN ?", id, []db_models.WithdrawalStatus{
			db_models.WithdrawalStatusApproved,
			db_models.WithdrawalStatusProcessing,
		}).
		Update("status", db_models.WithdrawalStatusCompleted)
	return res.RowsAffected > 0, res.Error
}

func (r *WithdrawalRepository) FailIfActive(ctx context.Context, id uuid.UUID, reason string) (bool, error) {
	res := r.db.WithContext(ctx).Model(&db_models.Withdrawal{}).
		Where("id = ? AND status IN ?", id, []db_models.WithdrawalStatus{
			db_models.WithdrawalStatusApproved,
			db_models.WithdrawalStatusProcessing,
		}).
		Updates(map[string]interface{}{
			"status":         db_models.WithdrawalStatusFailed,
			"failure_reason": reason,
		})
	return res.RowsAffected > 0, res.Error
}

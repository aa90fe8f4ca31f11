package repositories

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"lumora/internal/models/db_models"
)

type IPaymentRepository interface {
	WithTx(tx *gorm.DB) IPaymentRepository

	Create(ctx context.Context, payment *db_models.Payment) error
	GetByID(ctx context.Context, id uuid.UUID) (*db_models.Payment, error)
	GetByOrderCode(ctx context.Context, orderCode int64) (*db_models.Payment, error)

	// MarkSucceeded flips pending -> succeeded. Returns false when the
	// payment was already succeeded (webhook redelivery).
	MarkSucceeded(ctx context.Context, id uuid.UUID, providerTxnID string) (bool, error)

	// Consume flips generationConsumed false -> true, gated on succeeded
	// status. Returns false when the gate does not pass.
	Consume(ctx context.Context, id uuid.UUID, avatarID uuid.UUID) (bool, error)

	// ApplyRefund records a confirmed provider refund. The prevRefund guard
	// makes concurrent refund attempts collapse to one winner.
	ApplyRefund(ctx context.Context, id uuid.UUID, prevRefund, newRefund int64, status db_models.PaymentStatus) (bool, error)
}

type PaymentRepository struct {
	db *gorm.DB
}

func NewPaymentRepository(db *gorm.DB) IPaymentRepository {
	return &PaymentRepository{db: db}
}

func (r *PaymentRepository) WithTx(tx *gorm.DB) IPaymentRepository {
	return &PaymentRepository{db: tx}
}

func (r *PaymentRepository) Create(ctx context.Context, payment *db_models.Payment) error {
	return r.db.WithContext(ctx).Create(payment).Error
}

func (r *PaymentRepository) GetByID(ctx context.Context, id uuid.UUID) (*db_models.Payment, error) {
	var payment db_models.Payment
	err := r.db.WithContext(ctx).First(&payment, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &payment, nil
}

func (r *PaymentRepository) GetByOrderCode(ctx context.Context, orderCode int64) (*db_models.Payment, error) {
	var payment db_models.Payment
	err := r.db.WithContext(ctx).First(&payment, "order_code = ?", orderCode).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &payment, nil
}

func (r *PaymentRepository) MarkSucceeded(ctx context.Context, id uuid.UUID, providerTxnID string) (bool, error) {
	now := time.Now().Unix()
	res := r.db.WithContext(ctx).Model(&db_models.Payment{}).
		Where("id = ? AND status = ?", id, db_models.PaymentStatusPending).
		Updates(map[string]interface{}{
			"status":          db_models.PaymentStatusSucceeded,
			"provider_txn_id": providerTxnID,
			"paid_at":         now,
		})
	return res.RowsAffected > 0, res.Error
}

func (r *PaymentRepository) Consume(ctx context.Context, id uuid.UUID, avatarID uuid.UUID) (bool, error) {
	res := r.db.WithContext(ctx).Model(&db_models.Payment{}).
		Where("id = ? AND status = ? AND generation_consumed = ?",
			id, db_models.PaymentStatusSucceeded, false).
		Updates(map[string]interface{}{
			"generation_consumed": true,
			"consumed_avatar_id":  avatarID,
		})
	return res.RowsAffected > 0, res.Error
}

func (r *PaymentRepository) ApplyRefund(ctx context.Context, id uuid.UUID, prevRefund, newRefund int64, status db_models.PaymentStatus) (bool, error) {
	now := time.Now().Unix()
	res := r.db.WithContext(ctx).Model(&db_models.Payment{}).
		Where("id = ? AND refund_amount_minor = ?", id, prevRefund).
		Updates(map[string]interface{}{
			"refund_amount_minor": newRefund,
			"status":              status,
			"refunded_at":         now,
		})
	return res.RowsAffected > 0, res.Error
}

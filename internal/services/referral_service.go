package services

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"lumora/internal/models/db_models"
	"lumora/internal/models/response_models"
	"lumora/internal/repositories"
	"lumora/pkg/utils"
)

type ReferralService interface {
	// Credit records a commission for one payment. Crediting the same
	// payment twice is an idempotent no-op (webhook redelivery); the
	// existing earning is returned.
	Credit(ctx context.Context, referrerID, referredID, paymentID uuid.UUID, rawAmount int64) (*db_models.ReferralEarning, error)

	// CancelEarning reverts a credited earning, returning the balance to
	// its pre-credit value exactly.
	CancelEarning(ctx context.Context, paymentID uuid.UUID) error

	EnsureBalance(ctx context.Context, userID uuid.UUID) (*db_models.ReferralBalance, error)
	Stats(ctx context.Context, userID uuid.UUID) (*response_models.ReferralStatsResponse, error)
}

type referralService struct {
	db       *gorm.DB
	repo     repositories.IReferralRepository
	settings SettingsService
}

func NewReferralService(db *gorm.DB, repo repositories.IReferralRepository, settings SettingsService) ReferralService {
	return &referralService{
		db:       db,
		repo:     repo,
		settings: settings,
	}
}

func (s *referralService) Credit(ctx context.Context, referrerID, referredID, paymentID uuid.UUID, rawAmount int64) (*db_models.ReferralEarning, error) {
	balance, err := s.repo.EnsureBalance(ctx, referrerID)
	if err != nil {
		return nil, err
	}

	rate := s.resolveRate(ctx, balance)
	amount := rawAmount * rate / 10000 // floor

	earning := &db_models.ReferralEarning{
		ReferrerID:  referrerID,
		ReferredID:  referredID,
		PaymentID:   paymentID,
		AmountMinor: amount,
		RateBps:     rate,
		Status:      db_models.EarningStatusCredited,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if err := repo.CreateEarning(ctx, earning); err != nil {
			return err
		}
		return repo.CreditBalance(ctx, referrerID, amount)
	})
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			zap.L().Info("payment already credited, skipping",
				zap.String("payment_id", paymentID.String()))
			return s.repo.GetEarningByPaymentID(ctx, paymentID)
		}
		return nil, err
	}

	zap.L().Info("referral commission credited",
		zap.String("referrer_id", referrerID.String()),
		zap.String("payment_id", paymentID.String()),
		zap.Int64("amount", amount),
		zap.Int64("rate_bps", rate))

	return earning, nil
}

func (s *referralService) CancelEarning(ctx context.Context, paymentID uuid.UUID) error {
	earning, err := s.repo.GetEarningByPaymentID(ctx, paymentID)
	if err != nil {
		return err
	}
	if earning == nil || earning.Status == db_models.EarningStatusCancelled {
		return nil
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		flipped, err := repo.MarkEarningCancelled(ctx, paymentID)
		if err != nil {
			return err
		}
		if !flipped {
			return nil
		}

		ok, err := repo.DeductCredited(ctx, earning.ReferrerID, earning.AmountMinor)
		if err != nil {
			return err
		}
		if !ok {
			// The referrer already spent the commission; rolling back the
			// status flip keeps the books consistent for a later retry.
			return utils.ErrInsufficientBalance
		}
		return nil
	})
}

func (s *referralService) EnsureBalance(ctx context.Context, userID uuid.UUID) (*db_models.ReferralBalance, error) {
	return s.repo.EnsureBalance(ctx, userID)
}

func (s *referralService) Stats(ctx context.Context, userID uuid.UUID) (*response_models.ReferralStatsResponse, error) {
	balance, err := s.repo.EnsureBalance(ctx, userID)
	if err != nil {
		return nil, err
	}

	invited, err := s.repo.CountReferred(ctx, userID)
	if err != nil {
		return nil, err
	}

	return &response_models.ReferralStatsResponse{
		ReferralCode:   balance.ReferralCode,
		Balance:        balance.Balance,
		TotalEarned:    balance.TotalEarned,
		TotalWithdrawn: balance.TotalWithdrawn,
		InvitedCount:   invited,
		IsPartner:      balance.IsPartner,
		RateBps:        s.resolveRate(ctx, balance),
	}, nil
}

func (s *referralService) resolveRate(ctx context.Context, balance *db_models.ReferralBalance) int64 {
	if balance.CommissionRateBps > 0 {
		return balance.CommissionRateBps
	}
	settings := s.settings.Get(ctx)
	if balance.IsPartner {
		return settings.PartnerRateBps
	}
	return settings.ReferralRateBps
}

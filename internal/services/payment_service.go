package services

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"lumora/internal/config"
	"lumora/internal/gateway/billing"
	"lumora/internal/models/db_models"
	"lumora/internal/models/request_models"
	"lumora/internal/models/response_models"
	"lumora/internal/repositories"
	"lumora/pkg/utils"
)

type PaymentService interface {
	CreateCheckout(ctx context.Context, userID uuid.UUID, req request_models.CreateCheckoutRequest) (*response_models.CreateCheckoutResponse, error)

	// HandleWebhook processes a raw billing-provider notification. Redelivered
	// events are absorbed without re-crediting referrals.
	HandleWebhook(ctx context.Context, body []byte, signature string) error

	// Refund reverses whatever part of the payment has not been refunded yet.
	// The provider call happens before any local mutation, so a crash in
	// between leaves the payment refundable again rather than half-settled.
	Refund(ctx context.Context, paymentID uuid.UUID, reason string) error

	GetByID(ctx context.Context, id uuid.UUID) (*db_models.Payment, error)
}

type paymentService struct {
	cfg      *config.Config
	payments repositories.IPaymentRepository
	tiers    repositories.ITierRepository
	users    repositories.IUserRepository
	referral ReferralService
	gateway  *billing.Client
	notifier Notifier
	node     *snowflake.Node
}

func NewPaymentService(
	cfg *config.Config,
	payments repositories.IPaymentRepository,
	tiers repositories.ITierRepository,
	users repositories.IUserRepository,
	referral ReferralService,
	gateway *billing.Client,
	notifier Notifier,
	node *snowflake.Node,
) PaymentService {
	return &paymentService{
		cfg:      cfg,
		payments: payments,
		tiers:    tiers,
		users:    users,
		referral: referral,
		gateway:  gateway,
		notifier: notifier,
		node:     node,
	}
}

func (s *paymentService) CreateCheckout(ctx context.Context, userID uuid.UUID, req request_models.CreateCheckoutRequest) (*response_models.CreateCheckoutResponse, error) {
	tier, err := s.tiers.GetByCode(ctx, req.TierCode)
	if err != nil {
		return nil, err
	}
	if tier == nil {
		return nil, utils.ErrTierNotFound
	}

	orderCode := s.node.Generate().Int64()

	payment := &db_models.Payment{
		UserID:      userID,
		TierID:      tier.ID,
		AmountMinor: tier.PriceMinor,
		Currency:    tier.Currency,
		PhotoCount:  tier.PhotoCount,
		Status:      db_models.PaymentStatusPending,
		Provider:    s.cfg.Billing.ProviderName,
		OrderCode:   orderCode,
	}
	if err := s.payments.Create(ctx, payment); err != nil {
		return nil, err
	}

	invoice, err := s.gateway.CreateInvoice(ctx, billing.CreateInvoiceRequest{
		OrderCode:   orderCode,
		AmountMinor: tier.PriceMinor,
		Currency:    tier.Currency,
		Description: fmt.Sprintf("Photo pack %s (%d photos)", tier.Code, tier.PhotoCount),
	})
	if err != nil {
		return nil, err
	}

	zap.L().Info("checkout created",
		zap.String("payment_id", payment.ID.String()),
		zap.Int64("order_code", orderCode),
		zap.Int64("amount", tier.PriceMinor))

	return &response_models.CreateCheckoutResponse{
		PaymentID:    payment.ID.String(),
		OrderCode:    orderCode,
		AmountMinor:  tier.PriceMinor,
		PaymentURL:   invoice.PaymentURL,
		ProviderName: s.cfg.Billing.ProviderName,
	}, nil
}

func (s *paymentService) HandleWebhook(ctx context.Context, body []byte, signature string) error {
	if !s.gateway.VerifySignature(body, signature) {
		return utils.ErrInvalidSignature
	}

	var event request_models.PaymentWebhookRequest
	if err := json.Unmarshal(body, &event); err != nil {
		return fmt.Errorf("failed to parse webhook payload: %w", err)
	}
	if event.Event != "payment.succeeded" {
		zap.L().Info("ignoring billing event", zap.String("event", event.Event))
		return nil
	}

	payment, err := s.payments.GetByOrderCode(ctx, event.OrderCode)
	if err != nil {
		return err
	}
	if payment == nil {
		return utils.ErrPaymentNotFound
	}

	flipped, err := s.payments.MarkSucceeded(ctx, payment.ID, event.ProviderTxnID)
	if err != nil {
		return err
	}
	if !flipped {
		zap.L().Info("payment already settled, dropping redelivery",
			zap.Int64("order_code", event.OrderCode))
		return nil
	}

	zap.L().Info("payment succeeded",
		zap.String("payment_id", payment.ID.String()),
		zap.Int64("order_code", event.OrderCode))

	if err := s.creditReferrer(ctx, payment); err != nil {
		// The payment itself is settled; a commission hiccup must not bounce
		// the webhook into provider retries.
		zap.L().Error("referral credit failed",
			zap.String("payment_id", payment.ID.String()), zap.Error(err))
	}

	s.notifier.Notify(ctx, payment.UserID,
		fmt.Sprintf("Payment received! Your %d photos are ready to generate.", payment.PhotoCount))

	return nil
}

func (s *paymentService) creditReferrer(ctx context.Context, payment *db_models.Payment) error {
	user, err := s.users.GetByID(ctx, payment.UserID)
	if err != nil {
		return err
	}
	if user == nil || user.ReferredBy == nil {
		return nil
	}
	_, err = s.referral.Credit(ctx, *user.ReferredBy, payment.UserID, payment.ID, payment.AmountMinor)
	return err
}

func (s *paymentService) Refund(ctx context.Context, paymentID uuid.UUID, reason string) error {
	payment, err := s.payments.GetByID(ctx, paymentID)
	if err != nil {
		return err
	}
	if payment == nil {
		return utils.ErrPaymentNotFound
	}

	remaining := payment.AmountMinor - payment.RefundAmountMinor
	if remaining <= 0 {
		return nil
	}

	if err := s.gateway.Refund(ctx, payment.ProviderTxnID, remaining); err != nil {
		return err
	}

	newRefund := payment.RefundAmountMinor + remaining
	status := db_models.PaymentStatusRefunded
	if newRefund < payment.AmountMinor {
		status = db_models.PaymentStatusPartiallyRefunded
	}
	applied, err := s.payments.ApplyRefund(ctx, payment.ID, payment.RefundAmountMinor, newRefund, status)
	if err != nil {
		return err
	}
	if !applied {
		// Another actor refunded concurrently; the provider side is
		// idempotent on over-refund so there is nothing to undo here.
		zap.L().Warn("concurrent refund detected",
			zap.String("payment_id", payment.ID.String()))
		return nil
	}

	zap.L().Info("payment refunded",
		zap.String("payment_id", payment.ID.String()),
		zap.Int64("amount", remaining),
		zap.String("reason", reason))

	// A refunded payment claws back the referral commission.
	if err := s.referral.CancelEarning(ctx, payment.ID); err != nil {
		zap.L().Error("earning clawback failed",
			zap.String("payment_id", payment.ID.String()), zap.Error(err))
	}

	s.notifier.Notify(ctx, payment.UserID,
		fmt.Sprintf("We could not complete your order and refunded %s. Reason: %s",
			formatMinor(remaining, payment.Currency), reason))

	return nil
}

func (s *paymentService) GetByID(ctx context.Context, id uuid.UUID) (*db_models.Payment, error) {
	payment, err := s.payments.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if payment == nil {
		return nil, utils.ErrPaymentNotFound
	}
	return payment, nil
}

func formatMinor(amount int64, currency string) string {
	return fmt.Sprintf("%d.%02d %s", amount/100, amount%100, currency)
}

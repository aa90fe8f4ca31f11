package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"lumora/internal/gateway/payout"
	"lumora/internal/models/db_models"
	"lumora/internal/models/request_models"
	"lumora/internal/repositories"
	"lumora/pkg/utils"
)

// destinationPattern matches phone-linked payout destinations.
var destinationPattern = regexp.MustCompile(`^\+?\d{10,15}$`)

type WithdrawalService interface {
	// Create places a withdrawal request. The idempotency key makes retries
	// return the original request instead of reserving funds twice.
	Create(ctx context.Context, userID uuid.UUID, req request_models.CreateWithdrawalRequest) (*db_models.Withdrawal, error)

	// Approve debits the referral balance and initiates the provider payout.
	// The status flip and the debit commit atomically, so two admins racing
	// on the same withdrawal produce exactly one debit.
	Approve(ctx context.Context, id uuid.UUID) (*db_models.Withdrawal, error)
	Reject(ctx context.Context, id uuid.UUID, reason string) (*db_models.Withdrawal, error)

	// HandlePayoutWebhook settles a processing withdrawal. Replayed events
	// are no-ops; a failed payout restores the reserved funds exactly once.
	HandlePayoutWebhook(ctx context.Context, body []byte, signature string) error

	ListByUser(ctx context.Context, userID uuid.UUID) ([]db_models.Withdrawal, error)
}

type withdrawalService struct {
	db          *gorm.DB
	withdrawals repositories.IWithdrawalRepository
	balances    repositories.IReferralRepository
	gateway     *payout.Client
	settings    SettingsService
	notifier    Notifier
	currency    string
}

func NewWithdrawalService(
	db *gorm.DB,
	withdrawals repositories.IWithdrawalRepository,
	balances repositories.IReferralRepository,
	gateway *payout.Client,
	settings SettingsService,
	notifier Notifier,
) WithdrawalService {
	return &withdrawalService{
		db:          db,
		withdrawals: withdrawals,
		balances:    balances,
		gateway:     gateway,
		settings:    settings,
		notifier:    notifier,
		currency:    "RUB",
	}
}

func (s *withdrawalService) Create(ctx context.Context, userID uuid.UUID, req request_models.CreateWithdrawalRequest) (*db_models.Withdrawal, error) {
	existing, err := s.withdrawals.GetByIdempotencyKey(ctx, req.IdempotencyKey)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	if !destinationPattern.MatchString(req.Destination) {
		return nil, utils.ErrInvalidDestination
	}

	cfg := s.settings.Get(ctx)
	if req.AmountMinor < cfg.WithdrawalMinMinor {
		return nil, utils.ErrBelowMinimum
	}

	balance, err := s.balances.EnsureBalance(ctx, userID)
	if err != nil {
		return nil, err
	}

	// Funds reserved by other in-flight withdrawals are not spendable.
	reserved, err := s.withdrawals.SumActiveAmount(ctx, userID)
	if err != nil {
		return nil, err
	}
	if req.AmountMinor > balance.Balance-reserved {
		return nil, utils.ErrInsufficientBalance
	}

	fee := (req.AmountMinor*cfg.WithdrawalFeeBps + 9999) / 10000 // ceil

	withdrawal := &db_models.Withdrawal{
		UserID:         userID,
		AmountMinor:    req.AmountMinor,
		FeeMinor:       fee,
		PayoutMinor:    req.AmountMinor - fee,
		Destination:    req.Destination,
		Status:         db_models.WithdrawalStatusPending,
		IdempotencyKey: req.IdempotencyKey,
	}
	if err := s.withdrawals.Create(ctx, withdrawal); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return s.withdrawals.GetByIdempotencyKey(ctx, req.IdempotencyKey)
		}
		return nil, err
	}

	zap.L().Info("withdrawal requested",
		zap.String("withdrawal_id", withdrawal.ID.String()),
		zap.String("user_id", userID.String()),
		zap.Int64("amount", req.AmountMinor))

	return withdrawal, nil
}

func (s *withdrawalService) Approve(ctx context.Context, id uuid.UUID) (*db_models.Withdrawal, error) {
	withdrawal, err := s.withdrawals.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if withdrawal == nil {
		return nil, utils.ErrWithdrawalNotFound
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		approved, err := s.withdrawals.WithTx(tx).ApproveIfPending(ctx, id)
		if err != nil {
			return err
		}
		if !approved {
			return utils.ErrWithdrawalNotPending
		}

		debited, err := s.balances.WithTx(tx).DebitForWithdrawal(ctx,
			withdrawal.UserID, withdrawal.AmountMinor, withdrawal.PayoutMinor)
		if err != nil {
			return err
		}
		if !debited {
			return utils.ErrBalanceConflict
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	withdrawal.Status = db_models.WithdrawalStatusApproved

	resp, err := s.gateway.CreatePayout(ctx, payout.CreatePayoutRequest{
		OrderID:     "WD-" + withdrawal.ID.String(),
		Destination: withdrawal.Destination,
		AmountMinor: withdrawal.PayoutMinor,
		Currency:    s.currency,
	})
	if err != nil {
		// Funds stay reserved in approved state; an operator re-triggers the
		// payout or rejects via the provider dashboard.
		zap.L().Error("payout initiation failed",
			zap.String("withdrawal_id", withdrawal.ID.String()), zap.Error(err))
		return withdrawal, nil
	}

	if _, err := s.withdrawals.MarkProcessing(ctx, withdrawal.ID, resp.PayoutID); err != nil {
		zap.L().Error("failed to mark withdrawal processing",
			zap.String("withdrawal_id", withdrawal.ID.String()), zap.Error(err))
		return withdrawal, nil
	}
	withdrawal.Status = db_models.WithdrawalStatusProcessing
	withdrawal.PayoutID = resp.PayoutID

	zap.L().Info("withdrawal approved",
		zap.String("withdrawal_id", withdrawal.ID.String()),
		zap.String("payout_id", resp.PayoutID),
		zap.Int64("payout_amount", withdrawal.PayoutMinor))

	return withdrawal, nil
}

func (s *withdrawalService) Reject(ctx context.Context, id uuid.UUID, reason string) (*db_models.Withdrawal, error) {
	withdrawal, err := s.withdrawals.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if withdrawal == nil {
		return nil, utils.ErrWithdrawalNotFound
	}

	flipped, err := s.withdrawals.RejectIfPending(ctx, id, reason)
	if err != nil {
		return nil, err
	}
	if !flipped {
		return nil, utils.ErrWithdrawalNotPending
	}
	withdrawal.Status = db_models.WithdrawalStatusRejected
	withdrawal.RejectReason = reason

	s.notifier.Notify(ctx, withdrawal.UserID,
		fmt.Sprintf("Your withdrawal was declined: %s", reason))
	return withdrawal, nil
}

func (s *withdrawalService) HandlePayoutWebhook(ctx context.Context, body []byte, signature string) error {
	if !s.gateway.VerifySignature(body, signature) {
		return utils.ErrInvalidSignature
	}

	var event request_models.PayoutWebhookRequest
	if err := json.Unmarshal(body, &event); err != nil {
		return fmt.Errorf("failed to parse webhook payload: %w", err)
	}

	withdrawalID, err := parsePayoutOrderID(event.OrderID)
	if err != nil {
		return err
	}

	withdrawal, err := s.withdrawals.GetByID(ctx, withdrawalID)
	if err != nil {
		return err
	}
	if withdrawal == nil {
		return utils.ErrWithdrawalNotFound
	}

	switch event.Event {
	case "payout.completed":
		flipped, err := s.withdrawals.CompleteIfActive(ctx, withdrawalID)
		if err != nil {
			return err
		}
		if !flipped {
			zap.L().Info("dropping replayed payout completion",
				zap.String("withdrawal_id", withdrawalID.String()))
			return nil
		}
		zap.L().Info("withdrawal completed",
			zap.String("withdrawal_id", withdrawalID.String()),
			zap.String("payout_id", event.PayoutID))
		s.notifier.Notify(ctx, withdrawal.UserID, "Your withdrawal has been paid out.")
		return nil

	case "payout.failed":
		// The terminal flip and the balance restore commit together: if the
		// restore cannot be applied, the withdrawal stays active so a replay
		// of this event still restores the funds.
		var flipped bool
		err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			var err error
			flipped, err = s.withdrawals.WithTx(tx).FailIfActive(ctx, withdrawalID, event.Error)
			if err != nil || !flipped {
				return err
			}
			return s.balances.WithTx(tx).RestoreForFailedPayout(ctx,
				withdrawal.UserID, withdrawal.AmountMinor, withdrawal.PayoutMinor)
		})
		if err != nil {
			return err
		}
		if !flipped {
			zap.L().Info("dropping replayed payout failure",
				zap.String("withdrawal_id", withdrawalID.String()))
			return nil
		}
		zap.L().Warn("withdrawal failed, funds restored",
			zap.String("withdrawal_id", withdrawalID.String()),
			zap.String("error", event.Error))
		s.notifier.Notify(ctx, withdrawal.UserID,
			"Your withdrawal could not be paid out. The funds are back on your balance.")
		return nil

	default:
		zap.L().Info("ignoring payout event", zap.String("event", event.Event))
		return nil
	}
}

func (s *withdrawalService) ListByUser(ctx context.Context, userID uuid.UUID) ([]db_models.Withdrawal, error) {
	return s.withdrawals.ListByUser(ctx, userID)
}

func parsePayoutOrderID(orderID string) (uuid.UUID, error) {
	raw, ok := strings.CutPrefix(orderID, "WD-")
	if !ok {
		return uuid.Nil, fmt.Errorf("unexpected payout order id %q", orderID)
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("unexpected payout order id %q: %w", orderID, err)
	}
	return id, nil
}

package services

import (
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"lumora/internal/config"
	"lumora/internal/gateway/billing"
	"lumora/internal/models/db_models"
	"lumora/internal/models/request_models"
	"lumora/internal/repositories"
	"lumora/internal/testutil"
	"lumora/pkg/utils"
)

const testBillingSecret = "billing-test-secret"

type paymentFixture struct {
	db       *gorm.DB
	payments repositories.IPaymentRepository
	balances repositories.IReferralRepository
	svc      PaymentService
}

func newPaymentFixture(t *testing.T) *paymentFixture {
	t.Helper()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"payment_url":"https://pay.example/x","transaction_id":"txn_1"}`))
	}))
	t.Cleanup(server.Close)

	cfg := &config.Config{
		Billing: config.BillingConfig{
			BaseURL:      server.URL,
			SecretKey:    testBillingSecret,
			ProviderName: "billing",
		},
	}

	db := testutil.NewTestDB(t,
		&db_models.User{},
		&db_models.Tier{},
		&db_models.Payment{},
		&db_models.ReferralBalance{},
		&db_models.ReferralEarning{},
	)

	payments := repositories.NewPaymentRepository(db)
	tiers := repositories.NewTierRepository(db)
	users := repositories.NewUserRepository(db)
	balances := repositories.NewReferralRepository(db)
	referral := NewReferralService(db, balances, fixedSettings{value: defaultWithdrawalSettings()})

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	svc := NewPaymentService(cfg, payments, tiers, users, referral,
		billing.NewClient(cfg), NewNoopNotifier(), node)

	return &paymentFixture{db: db, payments: payments, balances: balances, svc: svc}
}

func signBillingPayload(payload []byte) string {
	mac := hmac.New(sha512.New, []byte(testBillingSecret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

func TestCreateCheckoutSnapshotsTier(t *testing.T) {
	f := newPaymentFixture(t)
	ctx := context.Background()
	userID := uuid.New()

	require.NoError(t, f.db.Create(&db_models.Tier{
		Code:       "pro",
		Name:       "Pro",
		PhotoCount: 30,
		PriceMinor: 99900,
		Currency:   "RUB",
		IsActive:   true,
	}).Error)

	resp, err := f.svc.CreateCheckout(ctx, userID, request_models.CreateCheckoutRequest{TierCode: "pro"})
	require.NoError(t, err)
	require.Equal(t, int64(99900), resp.AmountMinor)
	require.NotZero(t, resp.OrderCode)
	require.Equal(t, "https://pay.example/x", resp.PaymentURL)

	payment, err := f.payments.GetByID(ctx, uuid.MustParse(resp.PaymentID))
	require.NoError(t, err)
	require.Equal(t, 30, payment.PhotoCount)
	require.Equal(t, db_models.PaymentStatusPending, payment.Status)
}

func TestCreateCheckoutUnknownTier(t *testing.T) {
	f := newPaymentFixture(t)
	_, err := f.svc.CreateCheckout(context.Background(), uuid.New(),
		request_models.CreateCheckoutRequest{TierCode: "nope"})
	require.ErrorIs(t, err, utils.ErrTierNotFound)
}

func TestWebhookRedeliveryCreditsReferrerOnce(t *testing.T) {
	f := newPaymentFixture(t)
	ctx := context.Background()

	referrer := uuid.New()
	buyer := uuid.New()
	require.NoError(t, f.db.Create(&db_models.User{
		BaseModel:  db_models.BaseModel{ID: buyer},
		ReferredBy: &referrer,
	}).Error)

	payment := &db_models.Payment{
		UserID:      buyer,
		AmountMinor: 100000,
		Currency:    "RUB",
		PhotoCount:  15,
		Status:      db_models.PaymentStatusPending,
		Provider:    "billing",
		OrderCode:   42,
	}
	require.NoError(t, f.db.Create(payment).Error)

	body, err := json.Marshal(request_models.PaymentWebhookRequest{
		Event:         "payment.succeeded",
		OrderCode:     42,
		ProviderTxnID: "txn_42",
		AmountMinor:   100000,
	})
	require.NoError(t, err)
	sig := signBillingPayload(body)

	require.NoError(t, f.svc.HandleWebhook(ctx, body, sig))
	require.NoError(t, f.svc.HandleWebhook(ctx, body, sig))

	reloaded, err := f.payments.GetByID(ctx, payment.ID)
	require.NoError(t, err)
	require.Equal(t, db_models.PaymentStatusSucceeded, reloaded.Status)
	require.Equal(t, "txn_42", reloaded.ProviderTxnID)

	// One commission entry, one balance credit.
	balance, err := f.balances.GetBalance(ctx, referrer)
	require.NoError(t, err)
	require.Equal(t, int64(10000), balance.Balance)
	require.Equal(t, int64(10000), balance.TotalEarned)

	var earnings int64
	require.NoError(t, f.db.Model(&db_models.ReferralEarning{}).Count(&earnings).Error)
	require.Equal(t, int64(1), earnings)
}

func TestWebhookRejectsBadSignature(t *testing.T) {
	f := newPaymentFixture(t)
	body := []byte(`{"event":"payment.succeeded","order_code":42}`)
	err := f.svc.HandleWebhook(context.Background(), body, "deadbeef")
	require.ErrorIs(t, err, utils.ErrInvalidSignature)
}

func TestWebhookIgnoresOtherEvents(t *testing.T) {
	f := newPaymentFixture(t)
	body := []byte(`{"event":"payment.created","order_code":42}`)
	require.NoError(t, f.svc.HandleWebhook(context.Background(), body, signBillingPayload(body)))
}

func TestRefundCancelsCommission(t *testing.T) {
	f := newPaymentFixture(t)
	ctx := context.Background()

	referrer := uuid.New()
	buyer := uuid.New()
	require.NoError(t, f.db.Create(&db_models.User{
		BaseModel:  db_models.BaseModel{ID: buyer},
		ReferredBy: &referrer,
	}).Error)

	payment := &db_models.Payment{
		UserID:      buyer,
		AmountMinor: 100000,
		Currency:    "RUB",
		Status:      db_models.PaymentStatusPending,
		Provider:    "billing",
		OrderCode:   7,
	}
	require.NoError(t, f.db.Create(payment).Error)

	body, _ := json.Marshal(request_models.PaymentWebhookRequest{
		Event: "payment.succeeded", OrderCode: 7, ProviderTxnID: "txn_7",
	})
	require.NoError(t, f.svc.HandleWebhook(ctx, body, signBillingPayload(body)))

	require.NoError(t, f.svc.Refund(ctx, payment.ID, "generation failed"))
	// A second refund attempt finds nothing left to reverse.
	require.NoError(t, f.svc.Refund(ctx, payment.ID, "generation failed"))

	reloaded, err := f.payments.GetByID(ctx, payment.ID)
	require.NoError(t, err)
	require.Equal(t, db_models.PaymentStatusRefunded, reloaded.Status)
	require.Equal(t, int64(100000), reloaded.RefundAmountMinor)

	balance, err := f.balances.GetBalance(ctx, referrer)
	require.NoError(t, err)
	require.Equal(t, int64(0), balance.Balance)
}

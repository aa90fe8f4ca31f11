package request_models

type CreateCheckoutRequest struct {
	TierCode string `json:"tier_code" binding:"required"`
}

// PaymentWebhookRequest is the billing provider's successful-payment
// notification. Delivery is at-least-once.
type PaymentWebhookRequest struct {
	Event         string `json:"event"`
	OrderCode     int64  `json:"order_code"`
	ProviderTxnID string `json:"transaction_id"`
	AmountMinor   int64  `json:"amount"`
}

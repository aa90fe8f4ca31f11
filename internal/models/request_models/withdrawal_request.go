package request_models

type CreateWithdrawalRequest struct {
	AmountMinor    int64  `json:"amount" binding:"required,gt=0"`
	Destination    string `json:"destination" binding:"required"`
	IdempotencyKey string `json:"idempotency_key" binding:"required"`
}

type AdminWithdrawalActionRequest struct {
	Action string `json:"action" binding:"required,oneof=approve reject"`
	Reason string `json:"reason"`
}

// PayoutWebhookRequest is the payout provider's settlement event.
// The order id carries the withdrawal id as "WD-{uuid}".
type PayoutWebhookRequest struct {
	Event       string `json:"event"` // payout.completed | payout.failed | payout.pending
	PayoutID    string `json:"payout_id"`
	OrderID     string `json:"order_id"`
	AmountMinor int64  `json:"amount"`
	Error       string `json:"error"`
}

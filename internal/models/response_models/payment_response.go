package response_models

type CreateCheckoutResponse struct {
	PaymentID    string `json:"payment_id"`
	OrderCode    int64  `json:"order_code"`
	AmountMinor  int64  `json:"amount"`
	PaymentURL   string `json:"payment_url"`
	ProviderName string `json:"provider"`
}

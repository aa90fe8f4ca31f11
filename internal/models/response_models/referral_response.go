package response_models

type ReferralStatsResponse struct {
	ReferralCode   string `json:"referral_code"`
	Balance        int64  `json:"balance"`
	TotalEarned    int64  `json:"total_earned"`
	TotalWithdrawn int64  `json:"total_withdrawn"`
	InvitedCount   int64  `json:"invited_count"`
	IsPartner      bool   `json:"is_partner"`
	RateBps        int64  `json:"rate_bps"`
}

type WithdrawalResponse struct {
	WithdrawalID string `json:"withdrawal_id"`
	AmountMinor  int64  `json:"amount"`
	FeeMinor     int64  `json:"fee"`
	PayoutMinor  int64  `json:"payout_amount"`
	Status       string `json:"status"`
}

package utils

import "errors"

var (
	// Conflict / already-done: idempotent no-ops, logged at info level.
	ErrWithdrawalNotPending = errors.New("withdrawal is not pending")
	// The balance moved between request and approval, usually a racing
	// withdrawal or clawback.
	ErrBalanceConflict = errors.New("balance changed, withdrawal cannot be approved")

	// Insufficient resource: surfaced to caller, nothing mutated.
	ErrInsufficientBalance = errors.New("insufficient balance")

	// Validation.
	ErrBelowMinimum       = errors.New("amount below minimum withdrawal")
	ErrInvalidDestination = errors.New("invalid payout destination")
	ErrInvalidSignature   = errors.New("invalid webhook signature")

	ErrPaymentNotEligible = errors.New("payment is not eligible for generation")

	ErrPaymentNotFound    = errors.New("payment not found")
	ErrJobNotFound        = errors.New("generation job not found")
	ErrWithdrawalNotFound = errors.New("withdrawal not found")
	ErrTierNotFound       = errors.New("tier not found")
	ErrStyleNotFound      = errors.New("style not found")
	ErrAvatarNotFound     = errors.New("avatar not found")
)

package gateway_fx

import (
	"go.uber.org/fx"

	"lumora/internal/gateway/billing"
	"lumora/internal/gateway/imagegen"
	"lumora/internal/gateway/payout"
)

var Module = fx.Provide(
	imagegen.NewClient,
	billing.NewClient,
	payout.NewClient,
)

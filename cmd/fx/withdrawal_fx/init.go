package withdrawal_fx

import (
	"go.uber.org/fx"

	"lumora/internal/api/controllers"
	"lumora/internal/repositories"
	"lumora/internal/services"
)

var Module = fx.Provide(
	repositories.NewWithdrawalRepository,
	services.NewWithdrawalService,
	controllers.NewWithdrawalController,
)

package referral_fx

import (
	"go.uber.org/fx"

	"lumora/internal/api/controllers"
	"lumora/internal/repositories"
	"lumora/internal/services"
)

var Module = fx.Provide(
	repositories.NewReferralRepository,
	services.NewReferralService,
	controllers.NewReferralController,
)

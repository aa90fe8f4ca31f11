package generation_fx

import (
	"go.uber.org/fx"

	"lumora/internal/api/controllers"
	"lumora/internal/repositories"
	"lumora/internal/services"
)

var Module = fx.Provide(
	repositories.NewGenerationRepository,
	repositories.NewAvatarRepository,
	repositories.NewStyleRepository,
	services.NewGenerationService,
	controllers.NewGenerationController,
)

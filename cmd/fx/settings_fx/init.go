package settings_fx

import (
	"time"

	"go.uber.org/fx"

	"lumora/internal/repositories"
	"lumora/internal/services"
)

var Module = fx.Provide(
	repositories.NewSettingRepository,
	provideSettingsService,
	services.NewTelegramNotifier,
)

func provideSettingsService(repo repositories.ISettingRepository) services.SettingsService {
	return services.NewSettingsService(repo, time.Minute)
}

package db_fx

import (
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"gorm.io/gorm"

	"lumora/internal/config"
	"lumora/internal/infra"
)

var Module = fx.Provide(
	provideDB,
	provideRedis,
)

func provideDB(lc fx.Lifecycle) *gorm.DB {
	db := infra.InitPostgresql()
	lc.Append(fx.StopHook(func() {
		infra.ClosePostgresql(db)
	}))
	return db
}

func provideRedis(cfg *config.Config) *redis.Client {
	return infra.InitRedis(cfg)
}

package payment_fx

import (
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"

	"lumora/internal/api/controllers"
	"lumora/internal/repositories"
	"lumora/internal/services"
)

var Module = fx.Provide(
	provideSnowflakeNode,
	repositories.NewPaymentRepository,
	repositories.NewTierRepository,
	repositories.NewUserRepository,
	services.NewPaymentService,
	controllers.NewPaymentController,
)

func provideSnowflakeNode() (*snowflake.Node, error) {
	return snowflake.NewNode(1)
}

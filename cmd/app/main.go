package main

import (
	"context"
	"log"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"lumora/cmd/fx/db_fx"
	"lumora/cmd/fx/gateway_fx"
	"lumora/cmd/fx/generation_fx"
	"lumora/cmd/fx/payment_fx"
	"lumora/cmd/fx/referral_fx"
	"lumora/cmd/fx/settings_fx"
	"lumora/cmd/fx/withdrawal_fx"
	"lumora/internal/api/controllers"
	"lumora/internal/config"
	"lumora/internal/workers"
	"lumora/pkg/middleware"
	"lumora/pkg/taskqueue"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("no .env file found, using environment")
	}

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	zap.ReplaceGlobals(logger)
	defer logger.Sync()

	app := fx.New(
		fx.Provide(config.Provide),
		db_fx.Module,
		gateway_fx.Module,
		settings_fx.Module,
		payment_fx.Module,
		generation_fx.Module,
		referral_fx.Module,
		withdrawal_fx.Module,
		taskqueue.Module,
		workers.Module,

		fx.Provide(ProvideRouter),
		fx.Invoke(StartServer),
		fx.WithLogger(func() fxevent.Logger { return fxevent.NopLogger }),
	)

	app.Run()
}

func StartServer(lc fx.Lifecycle, engine *gin.Engine, cfg *config.Config) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				zap.L().Info("starting HTTP server", zap.String("port", cfg.Server.Port))
				if err := engine.Run(":" + cfg.Server.Port); err != nil {
					zap.L().Fatal("failed to start server", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			zap.L().Info("stopping HTTP server")
			return nil
		},
	})
}

func ProvideRouter(
	cfg *config.Config,
	paymentController *controllers.PaymentController,
	generationController *controllers.GenerationController,
	referralController *controllers.ReferralController,
	withdrawalController *controllers.WithdrawalController) *gin.Engine {

	if cfg.Env != "local" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Logger())
	r.Use(gin.Recovery())
	r.Use(middleware.CORSMiddleware())
	r.Use(middleware.TraceIDMiddleware())

	RegisterRoutes(r, paymentController, generationController, referralController, withdrawalController)

	return r
}

func RegisterRoutes(r *gin.Engine,
	paymentController *controllers.PaymentController,
	generationController *controllers.GenerationController,
	referralController *controllers.ReferralController,
	withdrawalController *controllers.WithdrawalController) {

	// Provider-facing callbacks authenticate by signature, not JWT.
	webhooks := r.Group("/webhooks")
	webhooks.POST("/billing", paymentController.HandleWebhook)
	webhooks.POST("/generation", generationController.HandleProviderCallback)
	webhooks.POST("/generation/job-failed", generationController.HandleJobFailure)
	webhooks.POST("/payout", withdrawalController.HandlePayoutWebhook)

	authed := r.Group("/", middleware.JWTAuthMiddleware())

	payments := authed.Group("/payments")
	payments.POST("/checkout", paymentController.CreateCheckout)

	generations := authed.Group("/generations")
	generations.POST("", generationController.StartGeneration)
	generations.GET("/:id", generationController.GetJobStatus)

	referrals := authed.Group("/referrals")
	referrals.GET("/me", referralController.GetMyStats)

	withdrawals := authed.Group("/withdrawals")
	withdrawals.POST("", withdrawalController.CreateWithdrawal)
	withdrawals.GET("", withdrawalController.ListMyWithdrawals)

	admin := authed.Group("/admin", middleware.RoleMiddleware("admin"))
	admin.POST("/withdrawals/:id", withdrawalController.AdminAction)
}

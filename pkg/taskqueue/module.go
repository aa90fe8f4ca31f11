package taskqueue

import (
	"context"
	"os"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"lumora/internal/config"
)

var Module = fx.Module("taskqueue",
	fx.Provide(
		NewAsynqClient,
		NewEnqueuer,
		NewServeMux,
		NewAsynqServer,
		NewScheduler,
	),
	fx.Invoke(RunServer, RunScheduler),
)

func redisOpt(cfg *config.Config) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}
}

// NewAsynqClient shares the application's Redis connection pool.
func NewAsynqClient(redisClient *redis.Client) *asynq.Client {
	client := asynq.NewClientFromRedisClient(redisClient)

	if err := client.Ping(); err != nil {
		zap.L().Error("[Asynq] Failed to connect to Asynq", zap.Error(err))
		os.Exit(1)
	}
	zap.L().Info("[Asynq] Connected to Asynq")

	return client
}

func NewServeMux() *asynq.ServeMux {
	return asynq.NewServeMux()
}

func NewAsynqServer(cfg *config.Config) *asynq.Server {
	return asynq.NewServer(
		redisOpt(cfg),
		asynq.Config{
			Concurrency:    10,
			RetryDelayFunc: asynq.DefaultRetryDelayFunc,
			Queues: map[string]int{
				"critical": 10,
				"default":  5,
				"low":      3,
			},
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				zap.L().Error("asynq task permanently failed",
					zap.String("task_type", task.Type()), zap.Error(err))
			}),
		},
	)
}

// NewScheduler registers the periodic sweeps: polling stale dispatched tasks
// and timing out jobs whose callbacks never arrived.
func NewScheduler(cfg *config.Config) *asynq.Scheduler {
	scheduler := asynq.NewScheduler(redisOpt(cfg), &asynq.SchedulerOpts{})

	if _, err := scheduler.Register("@every 1m", asynq.NewTask(TypeGenerationStatusSweep, nil), asynq.Queue("low")); err != nil {
		zap.L().Error("[Asynq] Failed to register status sweep", zap.Error(err))
		os.Exit(1)
	}
	if _, err := scheduler.Register("@every 5m", asynq.NewTask(TypeGenerationTimeoutSweep, nil), asynq.Queue("low")); err != nil {
		zap.L().Error("[Asynq] Failed to register timeout sweep", zap.Error(err))
		os.Exit(1)
	}
	return scheduler
}

func RunServer(lc fx.Lifecycle, server *asynq.Server, mux *asynq.ServeMux) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := server.Start(mux); err != nil {
					zap.L().Error("[Asynq] Failed to start Asynq server", zap.Error(err))
					os.Exit(1)
				}
			}()
			zap.L().Info("[Asynq] Asynq server started")
			return nil
		},
		OnStop: func(ctx context.Context) error {
			server.Stop()
			server.Shutdown()
			return nil
		},
	})
}

func RunScheduler(lc fx.Lifecycle, scheduler *asynq.Scheduler) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := scheduler.Run(); err != nil {
					zap.L().Error("[Asynq] Failed to start scheduler", zap.Error(err))
					os.Exit(1)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			scheduler.Shutdown()
			return nil
		},
	})
}

package workers

import (
	"context"
	"encoding/json"

	"github.com/hibiken/asynq"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"lumora/internal/services"
	"lumora/pkg/taskqueue"
)

// GenerationWorker runs the queue-side half of generation: chunk dispatch
// and the periodic sweeps.
type GenerationWorker struct {
	generation services.GenerationService
}

func NewGenerationWorker(generation services.GenerationService) *GenerationWorker {
	return &GenerationWorker{generation: generation}
}

func (w *GenerationWorker) HandleDispatchChunk(ctx context.Context, t *asynq.Task) error {
	var payload taskqueue.DispatchChunkPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		zap.L().Error("invalid dispatch chunk payload", zap.Error(err))
		return err
	}

	zap.L().Info("dispatching chunk",
		zap.String("job_id", payload.JobID.String()),
		zap.Int("chunk", payload.ChunkIndex),
		zap.Int("tasks", len(payload.TaskIDs)))

	if err := w.generation.DispatchChunk(ctx, payload); err != nil {
		zap.L().Error("chunk dispatch failed",
			zap.String("job_id", payload.JobID.String()),
			zap.Int("chunk", payload.ChunkIndex),
			zap.Error(err))
		return err
	}
	return nil
}

func (w *GenerationWorker) HandleStatusSweep(ctx context.Context, t *asynq.Task) error {
	return w.generation.SweepDispatchedTasks(ctx)
}

func (w *GenerationWorker) HandleTimeoutSweep(ctx context.Context, t *asynq.Task) error {
	return w.generation.SweepStuckJobs(ctx)
}

func RegisterHandlers(mux *asynq.ServeMux, worker *GenerationWorker) {
	mux.HandleFunc(taskqueue.TypeGenerationDispatchChunk, worker.HandleDispatchChunk)
	mux.HandleFunc(taskqueue.TypeGenerationStatusSweep, worker.HandleStatusSweep)
	mux.HandleFunc(taskqueue.TypeGenerationTimeoutSweep, worker.HandleTimeoutSweep)
}

var Module = fx.Module("workers",
	fx.Provide(NewGenerationWorker),
	fx.Invoke(RegisterHandlers),
)

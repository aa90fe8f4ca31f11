package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"lumora/internal/config"
	"lumora/internal/gateway/imagegen"
	"lumora/internal/models/db_models"
	"lumora/internal/models/response_models"
	"lumora/internal/repositories"
	"lumora/pkg/taskqueue"
	"lumora/pkg/utils"
)

type GenerationService interface {
	// StartGeneration consumes a paid payment into exactly one job and
	// schedules its dispatch. Calling it again for the same payment returns
	// the existing job instead of creating a second one.
	StartGeneration(ctx context.Context, userID, paymentID, avatarID, styleID uuid.UUID) (*response_models.JobAcceptedResponse, error)

	// DispatchChunk submits one chunk of tasks to the image provider. Runs
	// on the worker side.
	DispatchChunk(ctx context.Context, payload taskqueue.DispatchChunkPayload) error

	// HandleProviderCallback processes a task result pushed by the provider.
	// Redelivered callbacks are absorbed.
	HandleProviderCallback(ctx context.Context, providerTaskID, state string, resultURLs []string, errMsg string) error

	// HandleJobFailure is the dead-letter path: the queue infrastructure gave
	// up on the job as a whole.
	HandleJobFailure(ctx context.Context, jobID uuid.UUID, errMsg string) error

	GetJobStatus(ctx context.Context, jobID uuid.UUID) (*response_models.JobStatusResponse, error)

	// SweepDispatchedTasks polls the provider for tasks whose callback never
	// arrived. SweepStuckJobs times out jobs stuck in processing.
	SweepDispatchedTasks(ctx context.Context) error
	SweepStuckJobs(ctx context.Context) error
}

// errPaymentConsumed aborts the start transaction when the consume gate
// loses; the caller resolves it to the winning job.
var errPaymentConsumed = errors.New("payment already consumed")

type generationService struct {
	db       *gorm.DB
	cfg      *config.Config
	jobs     repositories.IGenerationRepository
	payments repositories.IPaymentRepository
	avatars  repositories.IAvatarRepository
	styles   repositories.IStyleRepository
	gateway  *imagegen.Client
	payment  PaymentService
	enqueuer taskqueue.Enqueuer
	notifier Notifier
}

func NewGenerationService(
	db *gorm.DB,
	cfg *config.Config,
	jobs repositories.IGenerationRepository,
	payments repositories.IPaymentRepository,
	avatars repositories.IAvatarRepository,
	styles repositories.IStyleRepository,
	gateway *imagegen.Client,
	payment PaymentService,
	enqueuer taskqueue.Enqueuer,
	notifier Notifier,
) GenerationService {
	return &generationService{
		db:       db,
		cfg:      cfg,
		jobs:     jobs,
		payments: payments,
		avatars:  avatars,
		styles:   styles,
		gateway:  gateway,
		payment:  payment,
		enqueuer: enqueuer,
		notifier: notifier,
	}
}

func (s *generationService) StartGeneration(ctx context.Context, userID, paymentID, avatarID, styleID uuid.UUID) (*response_models.JobAcceptedResponse, error) {
	payment, err := s.payments.GetByID(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if payment == nil || payment.UserID != userID {
		return nil, utils.ErrPaymentNotFound
	}

	avatar, err := s.avatars.GetByID(ctx, avatarID)
	if err != nil {
		return nil, err
	}
	if avatar == nil {
		return nil, utils.ErrAvatarNotFound
	}

	style, err := s.styles.GetByID(ctx, styleID)
	if err != nil {
		return nil, err
	}
	if style == nil {
		return nil, utils.ErrStyleNotFound
	}

	prompts, err := buildPrompts(style, payment.PhotoCount)
	if err != nil {
		return nil, err
	}

	job := &db_models.GenerationJob{
		AvatarID:    avatarID,
		PaymentID:   &paymentID,
		StyleID:     styleID,
		UserID:      userID,
		TotalPhotos: len(prompts),
		Status:      db_models.JobStatusPending,
	}
	tasks := make([]db_models.GenerationTask, len(prompts))
	for i, prompt := range prompts {
		tasks[i] = db_models.GenerationTask{
			PromptIndex: i,
			Prompt:      prompt,
			Status:      db_models.TaskStatusPending,
		}
	}

	// The consume flip and the job insert commit together: a failure on
	// either side must not strand a consumed payment without a job.
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		consumed, err := s.payments.WithTx(tx).Consume(ctx, paymentID, avatarID)
		if err != nil {
			return err
		}
		if !consumed {
			return errPaymentConsumed
		}
		return s.jobs.WithTx(tx).CreateJobWithTasks(ctx, job, tasks)
	})
	if err != nil {
		if errors.Is(err, errPaymentConsumed) || errors.Is(err, gorm.ErrDuplicatedKey) {
			// Either the consume gate or the unique index on payment id turned
			// us away: a winner already holds this payment, so hand back its
			// job. The snapshot read above may predate the winner's commit,
			// which is why the lookup is unconditional.
			return s.existingJobResponse(ctx, paymentID)
		}
		return nil, err
	}

	for idx, chunk := range chunkTasks(tasks, s.cfg.Generation.ChunkSize) {
		ids := make([]uuid.UUID, len(chunk))
		for i, t := range chunk {
			ids[i] = t.ID
		}
		payload := taskqueue.DispatchChunkPayload{
			JobID:      job.ID,
			ChunkIndex: idx,
			TaskIDs:    ids,
		}
		delay := time.Duration(idx) * s.cfg.Generation.ChunkDelay
		if err := s.enqueuer.Enqueue(taskqueue.TypeGenerationDispatchChunk, payload,
			taskqueue.ProcessIn(delay), taskqueue.MaxRetry(5)); err != nil {
			// The enqueue failed but the job exists; the timeout sweep will
			// eventually fail-and-refund it if nothing is ever dispatched.
			zap.L().Error("failed to enqueue dispatch chunk",
				zap.String("job_id", job.ID.String()), zap.Int("chunk", idx), zap.Error(err))
		}
	}

	if _, err := s.jobs.MarkJobProcessing(ctx, job.ID); err != nil {
		zap.L().Error("failed to mark job processing",
			zap.String("job_id", job.ID.String()), zap.Error(err))
	}
	if err := s.avatars.SetStatus(ctx, avatarID, db_models.AvatarStatusGenerating); err != nil {
		zap.L().Error("failed to mark avatar generating",
			zap.String("avatar_id", avatarID.String()), zap.Error(err))
	}

	zap.L().Info("generation job accepted",
		zap.String("job_id", job.ID.String()),
		zap.String("payment_id", paymentID.String()),
		zap.Int("total_photos", len(prompts)))

	return &response_models.JobAcceptedResponse{
		JobID:       job.ID.String(),
		Status:      string(db_models.JobStatusProcessing),
		TotalPhotos: len(prompts),
	}, nil
}

func (s *generationService) existingJobResponse(ctx context.Context, paymentID uuid.UUID) (*response_models.JobAcceptedResponse, error) {
	existing, err := s.jobs.GetJobByPaymentID(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, utils.ErrPaymentNotEligible
	}
	return &response_models.JobAcceptedResponse{
		JobID:           existing.ID.String(),
		Status:          string(existing.Status),
		TotalPhotos:     existing.TotalPhotos,
		AlreadyExisting: true,
	}, nil
}

// buildPrompts cycles the style's prompt list to cover the purchased photo
// count.
func buildPrompts(style *db_models.Style, photoCount int) ([]string, error) {
	var templates []string
	if err := json.Unmarshal(style.Prompts, &templates); err != nil {
		return nil, fmt.Errorf("failed to parse style prompts: %w", err)
	}
	if len(templates) == 0 {
		return nil, fmt.Errorf("style %s has no prompts", style.Code)
	}

	prompts := make([]string, photoCount)
	for i := 0; i < photoCount; i++ {
		template := templates[i%len(templates)]
		cycle := i / len(templates)
		if cycle > 0 {
			// Keep cycled prompts distinct so the photo dedup index does not
			// collapse them.
			template = fmt.Sprintf("%s (variation %d)", template, cycle+1)
		}
		prompts[i] = template
	}
	return prompts, nil
}

func chunkTasks(tasks []db_models.GenerationTask, size int) [][]db_models.GenerationTask {
	if size <= 0 {
		size = 1
	}
	var chunks [][]db_models.GenerationTask
	for start := 0; start < len(tasks); start += size {
		end := start + size
		if end > len(tasks) {
			end = len(tasks)
		}
		chunks = append(chunks, tasks[start:end])
	}
	return chunks
}

func (s *generationService) DispatchChunk(ctx context.Context, payload taskqueue.DispatchChunkPayload) error {
	job, err := s.jobs.GetJob(ctx, payload.JobID)
	if err != nil {
		return err
	}
	if job == nil {
		return utils.ErrJobNotFound
	}
	if job.Status == db_models.JobStatusCompleted || job.Status == db_models.JobStatusFailed {
		zap.L().Info("skipping dispatch for terminal job",
			zap.String("job_id", job.ID.String()), zap.String("status", string(job.Status)))
		return nil
	}

	avatar, err := s.avatars.GetByID(ctx, job.AvatarID)
	if err != nil {
		return err
	}
	if avatar == nil {
		return utils.ErrAvatarNotFound
	}
	style, err := s.styles.GetByID(ctx, job.StyleID)
	if err != nil {
		return err
	}
	if style == nil {
		return utils.ErrStyleNotFound
	}

	var references []string
	if len(avatar.ReferenceImages) > 0 {
		if err := json.Unmarshal(avatar.ReferenceImages, &references); err != nil {
			zap.L().Warn("failed to parse avatar references",
				zap.String("avatar_id", avatar.ID.String()), zap.Error(err))
		}
	}

	tasks, err := s.jobs.ListTasksByIDs(ctx, payload.TaskIDs)
	if err != nil {
		return err
	}

	for i, task := range tasks {
		if task.Status != db_models.TaskStatusPending {
			continue
		}
		if i > 0 {
			time.Sleep(s.cfg.Generation.TaskDelay)
		}
		s.submitTask(ctx, job, task, style, references)
	}
	return nil
}

// submitTask retries the provider call up to the attempt cap, then fails the
// task permanently. The job keeps going either way.
func (s *generationService) submitTask(ctx context.Context, job *db_models.GenerationJob, task db_models.GenerationTask, style *db_models.Style, references []string) {
	var lastErr error
	for task.Attempts < s.cfg.Generation.MaxAttempts {
		if err := s.jobs.IncrementTaskAttempts(ctx, task.ID); err != nil {
			lastErr = err
			break
		}
		task.Attempts++

		providerTaskID, err := s.gateway.SubmitTask(ctx, imagegen.SubmitRequest{
			Prompt:          task.Prompt,
			ReferenceImages: references,
			AspectRatio:     style.AspectRatio,
			OutputFormat:    "png",
		})
		if err != nil {
			lastErr = err
			zap.L().Warn("task submit attempt failed",
				zap.String("task_id", task.ID.String()),
				zap.Int("attempt", task.Attempts),
				zap.Error(err))
			continue
		}

		if _, err := s.jobs.MarkTaskDispatched(ctx, task.ID, providerTaskID); err != nil {
			lastErr = err
			break
		}
		return
	}

	errMsg := "submit retries exhausted"
	if lastErr != nil {
		errMsg = lastErr.Error()
	}
	flipped, err := s.jobs.FailTask(ctx, task.ID, errMsg)
	if err != nil {
		zap.L().Error("failed to fail task",
			zap.String("task_id", task.ID.String()), zap.Error(err))
		return
	}
	if flipped {
		s.onTaskTerminal(ctx, job.ID)
	}
}

func (s *generationService) HandleProviderCallback(ctx context.Context, providerTaskID, state string, resultURLs []string, errMsg string) error {
	task, err := s.jobs.GetTaskByProviderID(ctx, providerTaskID)
	if err != nil {
		return err
	}
	if task == nil {
		zap.L().Warn("callback for unknown provider task",
			zap.String("provider_task_id", providerTaskID))
		return nil
	}

	switch state {
	case "success":
		if len(resultURLs) == 0 {
			return s.failTask(ctx, task, "provider reported success without results")
		}
		return s.completeTask(ctx, task, resultURLs[0])
	case "failed":
		if errMsg == "" {
			errMsg = "provider reported failure"
		}
		return s.failTask(ctx, task, errMsg)
	default:
		zap.L().Info("ignoring provider callback state",
			zap.String("provider_task_id", providerTaskID), zap.String("state", state))
		return nil
	}
}

// completeTask writes the photo before flipping the task, so a crash between
// the two leaves a replayable signal rather than a lost photo.
func (s *generationService) completeTask(ctx context.Context, task *db_models.GenerationTask, resultURL string) error {
	job, err := s.jobs.GetJob(ctx, task.JobID)
	if err != nil {
		return err
	}
	if job == nil {
		return utils.ErrJobNotFound
	}

	if _, err := s.jobs.CreatePhotoIfAbsent(ctx, &db_models.GeneratedPhoto{
		AvatarID: job.AvatarID,
		StyleID:  job.StyleID,
		Prompt:   task.Prompt,
		ImageURL: resultURL,
	}); err != nil {
		return err
	}

	flipped, err := s.jobs.CompleteTask(ctx, task.ID, resultURL)
	if err != nil {
		return err
	}
	if !flipped {
		zap.L().Info("dropping replayed completion",
			zap.String("task_id", task.ID.String()))
		return nil
	}

	s.onTaskTerminal(ctx, job.ID)
	return nil
}

func (s *generationService) failTask(ctx context.Context, task *db_models.GenerationTask, errMsg string) error {
	flipped, err := s.jobs.FailTask(ctx, task.ID, errMsg)
	if err != nil {
		return err
	}
	if !flipped {
		return nil
	}
	s.onTaskTerminal(ctx, task.JobID)
	return nil
}

// onTaskTerminal checks whether the job just reached its last terminal task
// and finalizes it. Safe to call more than once per job: finalization is a
// conditional flip.
func (s *generationService) onTaskTerminal(ctx context.Context, jobID uuid.UUID) {
	job, err := s.jobs.GetJob(ctx, jobID)
	if err != nil || job == nil {
		zap.L().Error("failed to reload job for finalization",
			zap.String("job_id", jobID.String()), zap.Error(err))
		return
	}

	if job.CompletedPhotos+job.FailedPhotos < job.TotalPhotos {
		return
	}

	if job.CompletedPhotos > 0 {
		flipped, err := s.jobs.FinalizeJob(ctx, job.ID, db_models.JobStatusCompleted, "")
		if err != nil {
			zap.L().Error("failed to complete job",
				zap.String("job_id", job.ID.String()), zap.Error(err))
			return
		}
		if !flipped {
			return
		}
		if err := s.avatars.SetStatus(ctx, job.AvatarID, db_models.AvatarStatusReady); err != nil {
			zap.L().Error("failed to mark avatar ready",
				zap.String("avatar_id", job.AvatarID.String()), zap.Error(err))
		}
		zap.L().Info("generation job completed",
			zap.String("job_id", job.ID.String()),
			zap.Int("completed", job.CompletedPhotos),
			zap.Int("failed", job.FailedPhotos))
		s.notifier.Notify(ctx, job.UserID,
			fmt.Sprintf("Your photos are ready! %d of %d generated.", job.CompletedPhotos, job.TotalPhotos))
		return
	}

	if err := s.failJobAndRefund(ctx, job, "all generation tasks failed"); err != nil {
		zap.L().Error("failed to settle failed job",
			zap.String("job_id", job.ID.String()), zap.Error(err))
	}
}

// failJobAndRefund runs the three settlement steps. Each is idempotent, so a
// partial run is completed by the next trigger (dead-letter, sweep, retry).
func (s *generationService) failJobAndRefund(ctx context.Context, job *db_models.GenerationJob, errMsg string) error {
	if _, err := s.jobs.FinalizeJob(ctx, job.ID, db_models.JobStatusFailed, errMsg); err != nil {
		return err
	}

	if err := s.avatars.SetStatus(ctx, job.AvatarID, db_models.AvatarStatusDraft); err != nil {
		return err
	}

	if job.PaymentID != nil {
		if err := s.payment.Refund(ctx, *job.PaymentID, errMsg); err != nil {
			return err
		}
	}

	zap.L().Info("generation job failed and refunded",
		zap.String("job_id", job.ID.String()),
		zap.String("error", errMsg))
	return nil
}

func (s *generationService) HandleJobFailure(ctx context.Context, jobID uuid.UUID, errMsg string) error {
	job, err := s.jobs.GetJob(ctx, jobID)
	if err != nil {
		return err
	}
	if job == nil {
		return utils.ErrJobNotFound
	}
	if job.Status == db_models.JobStatusCompleted {
		zap.L().Info("ignoring dead-letter for completed job",
			zap.String("job_id", jobID.String()))
		return nil
	}
	if errMsg == "" {
		errMsg = "task queue exhausted delivery retries"
	}
	return s.failJobAndRefund(ctx, job, errMsg)
}

func (s *generationService) GetJobStatus(ctx context.Context, jobID uuid.UUID) (*response_models.JobStatusResponse, error) {
	job, err := s.jobs.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, utils.ErrJobNotFound
	}

	resp := &response_models.JobStatusResponse{
		JobID:           job.ID.String(),
		Status:          string(job.Status),
		TotalPhotos:     job.TotalPhotos,
		CompletedPhotos: job.CompletedPhotos,
		FailedPhotos:    job.FailedPhotos,
		ErrorMessage:    job.ErrorMessage,
	}

	if job.CompletedPhotos > 0 {
		photos, err := s.jobs.ListPhotos(ctx, job.AvatarID, job.StyleID)
		if err != nil {
			return nil, err
		}
		for _, p := range photos {
			resp.PhotoURLs = append(resp.PhotoURLs, p.ImageURL)
		}
	}
	return resp, nil
}

// SweepDispatchedTasks polls the provider for tasks dispatched long enough
// ago that their callback is presumed lost.
func (s *generationService) SweepDispatchedTasks(ctx context.Context) error {
	cutoff := time.Now().Add(-s.cfg.Generation.PollAfter)
	tasks, err := s.jobs.ListDispatchedTasksBefore(ctx, cutoff, 50)
	if err != nil {
		return err
	}

	for _, task := range tasks {
		result, err := s.gateway.GetTask(ctx, task.ProviderTaskID)
		if err != nil {
			zap.L().Warn("status poll failed",
				zap.String("task_id", task.ID.String()), zap.Error(err))
			continue
		}

		t := task
		switch result.State {
		case imagegen.StateSuccess:
			if len(result.ResultURLs) == 0 {
				continue
			}
			if err := s.completeTask(ctx, &t, result.ResultURLs[0]); err != nil {
				zap.L().Error("failed to complete polled task",
					zap.String("task_id", task.ID.String()), zap.Error(err))
			}
		case imagegen.StateFailed:
			errMsg := result.Error
			if errMsg == "" {
				errMsg = "provider reported failure"
			}
			if err := s.failTask(ctx, &t, errMsg); err != nil {
				zap.L().Error("failed to fail polled task",
					zap.String("task_id", task.ID.String()), zap.Error(err))
			}
		}
	}
	return nil
}

// SweepStuckJobs declares jobs exhausted when they have been processing past
// the timeout with no terminal signal for every task. A stuck job with some
// completed photos settles as completed; one with none is failed and
// refunded.
func (s *generationService) SweepStuckJobs(ctx context.Context) error {
	cutoff := time.Now().Add(-s.cfg.Generation.JobTimeout)
	jobs, err := s.jobs.ListProcessingJobsBefore(ctx, cutoff, 20)
	if err != nil {
		return err
	}

	for _, job := range jobs {
		j := job
		zap.L().Warn("sweeping stuck job",
			zap.String("job_id", j.ID.String()),
			zap.Int("completed", j.CompletedPhotos),
			zap.Int("failed", j.FailedPhotos),
			zap.Int("total", j.TotalPhotos))

		if j.CompletedPhotos > 0 {
			flipped, err := s.jobs.FinalizeJob(ctx, j.ID, db_models.JobStatusCompleted, "timed out with partial results")
			if err != nil {
				zap.L().Error("failed to finalize stuck job",
					zap.String("job_id", j.ID.String()), zap.Error(err))
				continue
			}
			if flipped {
				if err := s.avatars.SetStatus(ctx, j.AvatarID, db_models.AvatarStatusReady); err != nil {
					zap.L().Error("failed to mark avatar ready",
						zap.String("avatar_id", j.AvatarID.String()), zap.Error(err))
				}
			}
			continue
		}

		if err := s.failJobAndRefund(ctx, &j, "generation timed out"); err != nil {
			zap.L().Error("failed to settle stuck job",
				zap.String("job_id", j.ID.String()), zap.Error(err))
		}
	}
	return nil
}

package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"lumora/internal/config"
	"lumora/internal/gateway/billing"
	"lumora/internal/gateway/imagegen"
	"lumora/internal/models/db_models"
	"lumora/internal/repositories"
	"lumora/internal/testutil"
	"lumora/pkg/taskqueue"
	"lumora/pkg/utils"
)

// captureEnqueuer records dispatch chunks instead of touching Redis.
type captureEnqueuer struct {
	chunks []taskqueue.DispatchChunkPayload
}

func (e *captureEnqueuer) Enqueue(taskType string, payload any, opts ...taskqueue.Option) error {
	if p, ok := payload.(taskqueue.DispatchChunkPayload); ok {
		e.chunks = append(e.chunks, p)
	}
	return nil
}

type generationFixture struct {
	db       *gorm.DB
	cfg      *config.Config
	jobs     repositories.IGenerationRepository
	payments repositories.IPaymentRepository
	avatars  repositories.IAvatarRepository
	styles   repositories.IStyleRepository
	payment  PaymentService
	svc      GenerationService
	enqueuer *captureEnqueuer

	submitFail atomic.Bool
	submits    atomic.Int32
	refunds    atomic.Int32
}

func newGenerationFixture(t *testing.T) *generationFixture {
	t.Helper()
	f := &generationFixture{}

	imageServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if f.submitFail.Load() {
			http.Error(w, `{"error":"overloaded"}`, http.StatusServiceUnavailable)
			return
		}
		n := f.submits.Add(1)
		_, _ = fmt.Fprintf(w, `{"task_id":"task_%d"}`, n)
	}))
	t.Cleanup(imageServer.Close)

	billingServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/refunds" {
			f.refunds.Add(1)
		}
		_, _ = w.Write([]byte(`{"refund_id":"rf_1","status":"completed"}`))
	}))
	t.Cleanup(billingServer.Close)

	cfg := &config.Config{
		Generation: config.GenerationConfig{
			ChunkSize:   5,
			ChunkDelay:  time.Millisecond,
			TaskDelay:   0,
			MaxAttempts: 3,
			PollAfter:   time.Minute,
			JobTimeout:  time.Hour,
		},
		ImageGen: config.ImageGenConfig{BaseURL: imageServer.URL},
		Billing:  config.BillingConfig{BaseURL: billingServer.URL, ProviderName: "billing"},
	}

	f.db = testutil.NewTestDB(t,
		&db_models.User{},
		&db_models.Tier{},
		&db_models.Style{},
		&db_models.Avatar{},
		&db_models.Payment{},
		&db_models.GenerationJob{},
		&db_models.GenerationTask{},
		&db_models.GeneratedPhoto{},
		&db_models.ReferralBalance{},
		&db_models.ReferralEarning{},
	)

	f.cfg = cfg
	f.jobs = repositories.NewGenerationRepository(f.db)
	f.payments = repositories.NewPaymentRepository(f.db)
	f.avatars = repositories.NewAvatarRepository(f.db)
	f.styles = repositories.NewStyleRepository(f.db)
	tiers := repositories.NewTierRepository(f.db)
	users := repositories.NewUserRepository(f.db)
	referralRepo := repositories.NewReferralRepository(f.db)

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	referral := NewReferralService(f.db, referralRepo, fixedSettings{value: defaultWithdrawalSettings()})
	f.payment = NewPaymentService(cfg, f.payments, tiers, users, referral,
		billing.NewClient(cfg), NewNoopNotifier(), node)

	f.enqueuer = &captureEnqueuer{}
	f.svc = f.serviceWith(f.jobs, f.payments)

	return f
}

// serviceWith builds a generation service sharing the fixture's state but
// going through the given repositories.
func (f *generationFixture) serviceWith(jobs repositories.IGenerationRepository, payments repositories.IPaymentRepository) GenerationService {
	return NewGenerationService(f.db, f.cfg, jobs, payments, f.avatars, f.styles,
		imagegen.NewClient(f.cfg), f.payment, f.enqueuer, NewNoopNotifier())
}

// seed creates a succeeded payment plus the avatar and style it will consume.
func (f *generationFixture) seed(t *testing.T, photoCount int) (userID, paymentID, avatarID, styleID uuid.UUID) {
	t.Helper()
	userID = uuid.New()
	require.NoError(t, f.db.Create(&db_models.User{BaseModel: db_models.BaseModel{ID: userID}}).Error)

	prompts, _ := json.Marshal([]string{
		"studio portrait", "golden hour", "noir street", "mountain hike", "cafe window",
	})
	style := &db_models.Style{
		Code:        "classic",
		Name:        "Classic",
		AspectRatio: "2:3",
		Prompts:     datatypes.JSON(prompts),
		IsActive:    true,
	}
	require.NoError(t, f.db.Create(style).Error)

	refs, _ := json.Marshal([]string{"https://cdn.example/ref1.jpg"})
	avatar := &db_models.Avatar{
		UserID:          userID,
		Name:            "me",
		Status:          db_models.AvatarStatusReady,
		ReferenceImages: datatypes.JSON(refs),
	}
	require.NoError(t, f.db.Create(avatar).Error)

	payment := &db_models.Payment{
		UserID:        userID,
		AmountMinor:   49900,
		Currency:      "RUB",
		PhotoCount:    photoCount,
		Status:        db_models.PaymentStatusSucceeded,
		Provider:      "billing",
		OrderCode:     time.Now().UnixNano(),
		ProviderTxnID: "txn_1",
	}
	require.NoError(t, f.db.Create(payment).Error)

	return userID, payment.ID, avatar.ID, style.ID
}

func (f *generationFixture) dispatchAll(t *testing.T, ctx context.Context) {
	t.Helper()
	for _, chunk := range f.enqueuer.chunks {
		require.NoError(t, f.svc.DispatchChunk(ctx, chunk))
	}
}

func (f *generationFixture) tasksByStatus(t *testing.T, jobID uuid.UUID, status db_models.TaskStatus) []db_models.GenerationTask {
	t.Helper()
	tasks, err := f.jobs.ListTasksByJob(context.Background(), jobID)
	require.NoError(t, err)
	var out []db_models.GenerationTask
	for _, task := range tasks {
		if task.Status == status {
			out = append(out, task)
		}
	}
	return out
}

func TestStartGenerationConsumesPaymentOnce(t *testing.T) {
	f := newGenerationFixture(t)
	ctx := context.Background()
	userID, paymentID, avatarID, styleID := f.seed(t, 15)

	first, err := f.svc.StartGeneration(ctx, userID, paymentID, avatarID, styleID)
	require.NoError(t, err)
	require.False(t, first.AlreadyExisting)
	require.Equal(t, 15, first.TotalPhotos)
	require.Len(t, f.enqueuer.chunks, 3)

	// A duplicate request hands back the same job instead of double-spending.
	second, err := f.svc.StartGeneration(ctx, userID, paymentID, avatarID, styleID)
	require.NoError(t, err)
	require.True(t, second.AlreadyExisting)
	require.Equal(t, first.JobID, second.JobID)

	var jobCount int64
	require.NoError(t, f.db.Model(&db_models.GenerationJob{}).Count(&jobCount).Error)
	require.Equal(t, int64(1), jobCount)

	payment, err := f.payments.GetByID(ctx, paymentID)
	require.NoError(t, err)
	require.True(t, payment.GenerationConsumed)

	avatar, err := f.avatars.GetByID(ctx, avatarID)
	require.NoError(t, err)
	require.Equal(t, db_models.AvatarStatusGenerating, avatar.Status)
}

func TestStartGenerationRejectsPendingPayment(t *testing.T) {
	f := newGenerationFixture(t)
	ctx := context.Background()
	userID, paymentID, avatarID, styleID := f.seed(t, 15)

	require.NoError(t, f.db.Model(&db_models.Payment{}).
		Where("id = ?", paymentID).
		Update("status", db_models.PaymentStatusPending).Error)

	_, err := f.svc.StartGeneration(ctx, userID, paymentID, avatarID, styleID)
	require.ErrorIs(t, err, utils.ErrPaymentNotEligible)
}

func TestStartGenerationBadStyleLeavesPaymentSpendable(t *testing.T) {
	f := newGenerationFixture(t)
	ctx := context.Background()
	userID, paymentID, avatarID, styleID := f.seed(t, 15)

	badPrompts, _ := json.Marshal(map[string]string{"not": "a list"})
	badStyle := &db_models.Style{
		Code:        "broken",
		Name:        "Broken",
		AspectRatio: "2:3",
		Prompts:     datatypes.JSON(badPrompts),
		IsActive:    true,
	}
	require.NoError(t, f.db.Create(badStyle).Error)

	_, err := f.svc.StartGeneration(ctx, userID, paymentID, avatarID, badStyle.ID)
	require.Error(t, err)

	payment, err := f.payments.GetByID(ctx, paymentID)
	require.NoError(t, err)
	require.False(t, payment.GenerationConsumed)

	var jobCount int64
	require.NoError(t, f.db.Model(&db_models.GenerationJob{}).Count(&jobCount).Error)
	require.Equal(t, int64(0), jobCount)

	// The same payment still buys a job on a valid style.
	resp, err := f.svc.StartGeneration(ctx, userID, paymentID, avatarID, styleID)
	require.NoError(t, err)
	require.False(t, resp.AlreadyExisting)
	require.Equal(t, 15, resp.TotalPhotos)
}

// failingJobsRepo drops the first job insert to simulate a transient
// database error between the consume flip and the job creation.
type failingJobsRepo struct {
	repositories.IGenerationRepository
	fail *atomic.Bool
}

func (r *failingJobsRepo) WithTx(tx *gorm.DB) repositories.IGenerationRepository {
	return &failingJobsRepo{IGenerationRepository: r.IGenerationRepository.WithTx(tx), fail: r.fail}
}

func (r *failingJobsRepo) CreateJobWithTasks(ctx context.Context, job *db_models.GenerationJob, tasks []db_models.GenerationTask) error {
	if r.fail.CompareAndSwap(true, false) {
		return errors.New("driver: bad connection")
	}
	return r.IGenerationRepository.CreateJobWithTasks(ctx, job, tasks)
}

func TestStartGenerationJobInsertFailureRollsBackConsume(t *testing.T) {
	f := newGenerationFixture(t)
	ctx := context.Background()
	userID, paymentID, avatarID, styleID := f.seed(t, 15)

	flaky := &failingJobsRepo{IGenerationRepository: f.jobs, fail: &atomic.Bool{}}
	flaky.fail.Store(true)
	svc := f.serviceWith(flaky, f.payments)

	_, err := svc.StartGeneration(ctx, userID, paymentID, avatarID, styleID)
	require.Error(t, err)

	// The consume flip rolled back with the insert, so a retry starts the
	// job instead of finding a consumed payment with nothing behind it.
	payment, err := f.payments.GetByID(ctx, paymentID)
	require.NoError(t, err)
	require.False(t, payment.GenerationConsumed)

	resp, err := svc.StartGeneration(ctx, userID, paymentID, avatarID, styleID)
	require.NoError(t, err)
	require.False(t, resp.AlreadyExisting)
	require.Equal(t, 15, resp.TotalPhotos)
}

// stalePaymentReads serves payment snapshots that predate the consume flip,
// the view a request racing a concurrent winner can observe.
type stalePaymentReads struct {
	repositories.IPaymentRepository
}

func (r stalePaymentReads) GetByID(ctx context.Context, id uuid.UUID) (*db_models.Payment, error) {
	payment, err := r.IPaymentRepository.GetByID(ctx, id)
	if payment != nil {
		stale := *payment
		stale.GenerationConsumed = false
		return &stale, err
	}
	return payment, err
}

func TestStartGenerationWithStaleSnapshotReturnsWinnersJob(t *testing.T) {
	f := newGenerationFixture(t)
	ctx := context.Background()
	userID, paymentID, avatarID, styleID := f.seed(t, 15)

	winner, err := f.svc.StartGeneration(ctx, userID, paymentID, avatarID, styleID)
	require.NoError(t, err)

	loser := f.serviceWith(f.jobs, stalePaymentReads{f.payments})
	resp, err := loser.StartGeneration(ctx, userID, paymentID, avatarID, styleID)
	require.NoError(t, err)
	require.True(t, resp.AlreadyExisting)
	require.Equal(t, winner.JobID, resp.JobID)
}

func TestAllTasksFailedRefundsExactlyOnce(t *testing.T) {
	f := newGenerationFixture(t)
	ctx := context.Background()
	userID, paymentID, avatarID, styleID := f.seed(t, 15)

	resp, err := f.svc.StartGeneration(ctx, userID, paymentID, avatarID, styleID)
	require.NoError(t, err)
	jobID := uuid.MustParse(resp.JobID)

	f.submitFail.Store(true)
	f.dispatchAll(t, ctx)

	job, err := f.jobs.GetJob(ctx, jobID)
	require.NoError(t, err)
	require.Equal(t, db_models.JobStatusFailed, job.Status)
	require.Equal(t, 0, job.CompletedPhotos)
	require.Equal(t, 15, job.FailedPhotos)

	require.Equal(t, int32(1), f.refunds.Load())

	payment, err := f.payments.GetByID(ctx, paymentID)
	require.NoError(t, err)
	require.Equal(t, db_models.PaymentStatusRefunded, payment.Status)
	require.Equal(t, payment.AmountMinor, payment.RefundAmountMinor)

	avatar, err := f.avatars.GetByID(ctx, avatarID)
	require.NoError(t, err)
	require.Equal(t, db_models.AvatarStatusDraft, avatar.Status)

	// Every submit attempt hit the retry cap.
	tasks, err := f.jobs.ListTasksByJob(ctx, jobID)
	require.NoError(t, err)
	for _, task := range tasks {
		require.Equal(t, db_models.TaskStatusFailed, task.Status)
		require.Equal(t, 3, task.Attempts)
	}
}

func TestPartialFailureCompletesWithoutRefund(t *testing.T) {
	f := newGenerationFixture(t)
	ctx := context.Background()
	userID, paymentID, avatarID, styleID := f.seed(t, 15)

	resp, err := f.svc.StartGeneration(ctx, userID, paymentID, avatarID, styleID)
	require.NoError(t, err)
	jobID := uuid.MustParse(resp.JobID)

	f.dispatchAll(t, ctx)
	dispatched := f.tasksByStatus(t, jobID, db_models.TaskStatusDispatched)
	require.Len(t, dispatched, 15)

	for i, task := range dispatched {
		if i < 10 {
			url := fmt.Sprintf("https://cdn.example/photo_%d.png", i)
			require.NoError(t, f.svc.HandleProviderCallback(ctx,
				task.ProviderTaskID, "success", []string{url}, ""))
		} else {
			require.NoError(t, f.svc.HandleProviderCallback(ctx,
				task.ProviderTaskID, "failed", nil, "nsfw filter"))
		}
	}

	job, err := f.jobs.GetJob(ctx, jobID)
	require.NoError(t, err)
	require.Equal(t, db_models.JobStatusCompleted, job.Status)
	require.Equal(t, 10, job.CompletedPhotos)
	require.Equal(t, 5, job.FailedPhotos)
	require.Equal(t, int32(0), f.refunds.Load())

	avatar, err := f.avatars.GetByID(ctx, avatarID)
	require.NoError(t, err)
	require.Equal(t, db_models.AvatarStatusReady, avatar.Status)

	status, err := f.svc.GetJobStatus(ctx, jobID)
	require.NoError(t, err)
	require.Len(t, status.PhotoURLs, 10)
}

func TestReplayedCompletionCallbackCountsOnce(t *testing.T) {
	f := newGenerationFixture(t)
	ctx := context.Background()
	userID, paymentID, avatarID, styleID := f.seed(t, 5)

	resp, err := f.svc.StartGeneration(ctx, userID, paymentID, avatarID, styleID)
	require.NoError(t, err)
	jobID := uuid.MustParse(resp.JobID)

	f.dispatchAll(t, ctx)
	dispatched := f.tasksByStatus(t, jobID, db_models.TaskStatusDispatched)
	require.Len(t, dispatched, 5)

	task := dispatched[0]
	url := "https://cdn.example/photo.png"
	require.NoError(t, f.svc.HandleProviderCallback(ctx, task.ProviderTaskID, "success", []string{url}, ""))
	require.NoError(t, f.svc.HandleProviderCallback(ctx, task.ProviderTaskID, "success", []string{url}, ""))

	job, err := f.jobs.GetJob(ctx, jobID)
	require.NoError(t, err)
	require.Equal(t, 1, job.CompletedPhotos)

	var photoCount int64
	require.NoError(t, f.db.Model(&db_models.GeneratedPhoto{}).Count(&photoCount).Error)
	require.Equal(t, int64(1), photoCount)
}

func TestDeadLetterFailsJobAndRefunds(t *testing.T) {
	f := newGenerationFixture(t)
	ctx := context.Background()
	userID, paymentID, avatarID, styleID := f.seed(t, 5)

	resp, err := f.svc.StartGeneration(ctx, userID, paymentID, avatarID, styleID)
	require.NoError(t, err)
	jobID := uuid.MustParse(resp.JobID)

	require.NoError(t, f.svc.HandleJobFailure(ctx, jobID, "queue exhausted retries"))
	// Redelivered dead-letter settles idempotently.
	require.NoError(t, f.svc.HandleJobFailure(ctx, jobID, "queue exhausted retries"))

	job, err := f.jobs.GetJob(ctx, jobID)
	require.NoError(t, err)
	require.Equal(t, db_models.JobStatusFailed, job.Status)
	require.Equal(t, int32(1), f.refunds.Load())

	avatar, err := f.avatars.GetByID(ctx, avatarID)
	require.NoError(t, err)
	require.Equal(t, db_models.AvatarStatusDraft, avatar.Status)
}

func TestSweepStuckJobWithoutResultsRefunds(t *testing.T) {
	f := newGenerationFixture(t)
	ctx := context.Background()
	userID, paymentID, avatarID, styleID := f.seed(t, 5)

	resp, err := f.svc.StartGeneration(ctx, userID, paymentID, avatarID, styleID)
	require.NoError(t, err)
	jobID := uuid.MustParse(resp.JobID)

	// Age the job past the timeout.
	require.NoError(t, f.db.Model(&db_models.GenerationJob{}).
		Where("id = ?", jobID).
		Update("created_at", time.Now().Add(-3*time.Hour).Unix()).Error)

	require.NoError(t, f.svc.SweepStuckJobs(ctx))

	job, err := f.jobs.GetJob(ctx, jobID)
	require.NoError(t, err)
	require.Equal(t, db_models.JobStatusFailed, job.Status)
	require.Equal(t, int32(1), f.refunds.Load())

	avatar, err := f.avatars.GetByID(ctx, avatarID)
	require.NoError(t, err)
	require.Equal(t, db_models.AvatarStatusDraft, avatar.Status)
}

func TestBuildPromptsCyclesDistinctly(t *testing.T) {
	prompts, _ := json.Marshal([]string{"a", "b"})
	style := &db_models.Style{Code: "s", Prompts: datatypes.JSON(prompts)}

	out, err := buildPrompts(style, 5)
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b", "a (variation 2)", "b (variation 2)", "a (variation 3)"}, out)

	seen := map[string]bool{}
	for _, p := range out {
		require.False(t, seen[p])
		seen[p] = true
	}
}

func TestChunkTasksSplitsEvenly(t *testing.T) {
	tasks := make([]db_models.GenerationTask, 12)
	chunks := chunkTasks(tasks, 5)
	require.Len(t, chunks, 3)
	require.Len(t, chunks[0], 5)
	require.Len(t, chunks[1], 5)
	require.Len(t, chunks[2], 2)

	require.Empty(t, chunkTasks(nil, 5))
}

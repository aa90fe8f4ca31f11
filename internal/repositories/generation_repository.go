package repositories

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"lumora/internal/models/db_models"
)

type IGenerationRepository interface {
	WithTx(tx *gorm.DB) IGenerationRepository

	CreateJobWithTasks(ctx context.Context, job *db_models.GenerationJob, tasks []db_models.GenerationTask) error
	GetJob(ctx context.Context, id uuid.UUID) (*db_models.GenerationJob, error)
	GetJobByPaymentID(ctx context.Context, paymentID uuid.UUID) (*db_models.GenerationJob, error)
	MarkJobProcessing(ctx context.Context, id uuid.UUID) (bool, error)

	// FinalizeJob moves a non-terminal job to completed/failed. Terminal
	// states are final; re-finalizing returns false.
	FinalizeJob(ctx context.Context, id uuid.UUID, status db_models.JobStatus, errMsg string) (bool, error)

	GetTask(ctx context.Context, id uuid.UUID) (*db_models.GenerationTask, error)
	GetTaskByProviderID(ctx context.Context, providerTaskID string) (*db_models.GenerationTask, error)
	ListTasksByJob(ctx context.Context, jobID uuid.UUID) ([]db_models.GenerationTask, error)
	ListTasksByIDs(ctx context.Context, ids []uuid.UUID) ([]db_models.GenerationTask, error)

	IncrementTaskAttempts(ctx context.Context, id uuid.UUID) error
	MarkTaskDispatched(ctx context.Context, id uuid.UUID, providerTaskID string) (bool, error)

	// CompleteTask flips dispatched -> completed and bumps the job's
	// completed counter in one transaction. Replayed signals return false.
	CompleteTask(ctx context.Context, id uuid.UUID, resultURL string) (bool, error)
	// FailTask is terminal from pending (submit retries exhausted) or
	// dispatched (provider reported failure).
	FailTask(ctx context.Context, id uuid.UUID, errMsg string) (bool, error)

	CreatePhotoIfAbsent(ctx context.Context, photo *db_models.GeneratedPhoto) (bool, error)
	ListPhotos(ctx context.Context, avatarID, styleID uuid.UUID) ([]db_models.GeneratedPhoto, error)

	ListDispatchedTasksBefore(ctx context.Context, cutoff time.Time, limit int) ([]db_models.GenerationTask, error)
	ListProcessingJobsBefore(ctx context.Context, cutoff time.Time, limit int) ([]db_models.GenerationJob, error)
}

type GenerationRepository struct {
	db *gorm.DB
}

func NewGenerationRepository(db *gorm.DB) IGenerationRepository {
	return &GenerationRepository{db: db}
}

func (r *GenerationRepository) WithTx(tx *gorm.DB) IGenerationRepository {
	return &GenerationRepository{db: tx}
}

func (r *GenerationRepository) CreateJobWithTasks(ctx context.Context, job *db_models.GenerationJob, tasks []db_models.GenerationTask) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(job).Error; err != nil {
			return err
		}
		for i := range tasks {
			tasks[i].JobID = job.ID
		}
		return tx.Create(&tasks).Error
	})
}

func (r *GenerationRepository) GetJob(ctx context.Context, id uuid.UUID) (*db_models.GenerationJob, error) {
	var job db_models.GenerationJob
	err := r.db.WithContext(ctx).First(&job, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &job, nil
}

func (r *GenerationRepository) GetJobByPaymentID(ctx context.Context, paymentID uuid.UUID) (*db_models.GenerationJob, error) {
	var job db_models.GenerationJob
	err := r.db.WithContext(ctx).First(&job, "payment_id = ?", paymentID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &job, nil
}

func (r *GenerationRepository) MarkJobProcessing(ctx context.Context, id uuid.UUID) (bool, error) {
	res := r.db.WithContext(ctx).Model(&db_models.GenerationJob{}).
		Where("id = ? AND status = ?", id, db_models.JobStatusPending).
		Update("status", db_models.JobStatusProcessing)
	return res.RowsAffected > 0, res.Error
}

func (r *GenerationRepository) FinalizeJob(ctx context.Context, id uuid.UUID, status db_models.JobStatus, errMsg string) (bool, error) {
	res := r.db.WithContext(ctx).Model(&db_models.GenerationJob{}).
		Where("id = ? AND status IN ?", id,
			[]db_models.JobStatus{db_models.JobStatusPending, db_models.JobStatusProcessing}).
		Updates(map[string]interface{}{
			"status":        status,
			"error_message": errMsg,
		})
	return res.RowsAffected > 0, res.Error
}

func (r *GenerationRepository) GetTask(ctx context.Context, id uuid.UUID) (*db_models.GenerationTask, error) {
	var task db_models.GenerationTask
	err := r.db.WithContext(ctx).First(&task, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &task, nil
}

func (r *GenerationRepository) GetTaskByProviderID(ctx context.Context, providerTaskID string) (*db_models.GenerationTask, error) {
	var task db_models.GenerationTask
	err := r.db.WithContext(ctx).First(&task, "provider_task_id = ?", providerTaskID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &task, nil
}

func (r *GenerationRepository) ListTasksByJob(ctx context.Context, jobID uuid.UUID) ([]db_models.GenerationTask, error) {
	var tasks []db_models.GenerationTask
	err := r.db.WithContext(ctx).
		Where("job_id = ?", jobID).
		Order("prompt_index ASC").
		Find(&tasks).Error
	return tasks, err
}

func (r *GenerationRepository) ListTasksByIDs(ctx context.Context, ids []uuid.UUID) ([]db_models.GenerationTask, error) {
	var tasks []db_models.GenerationTask
	err := r.db.WithContext(ctx).
		Where("id IN ?", ids).
		Order("prompt_index ASC").
		Find(&tasks).Error
	return tasks, err
}

func (r *GenerationRepository) IncrementTaskAttempts(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Model(&db_models.GenerationTask{}).
		Where("id = ?", id).
		UpdateColumn("attempts", gorm.Expr("attempts + 1")).Error
}

func (r *GenerationRepository) MarkTaskDispatched(ctx context.Context, id uuid.UUID, providerTaskID string) (bool, error) {
	res := r.db.WithContext(ctx).Model(&db_models.GenerationTask{}).
		Where("id = ? AND status = ?", id, db_models.TaskStatusPending).
		Updates(map[string]interface{}{
			"status":           db_models.TaskStatusDispatched,
			"provider_task_id": providerTaskID,
		})
	return res.RowsAffected > 0, res.Error
}

func (r *GenerationRepository) CompleteTask(ctx context.Context, id uuid.UUID, resultURL string) (bool, error) {
	var done bool
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&db_models.GenerationTask{}).
			Where("id = ? AND status = ?", id, db_models.TaskStatusDispatched).
			Updates(map[string]interface{}{
				"status":     db_models.TaskStatusCompleted,
				"result_url": resultURL,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}
		done = true

		var task db_models.GenerationTask
		if err := tx.Select("job_id").First(&task, "id = ?", id).Error; err != nil {
			return err
		}
		return tx.Model(&db_models.GenerationJob{}).
			Where("id = ?", task.JobID).
			UpdateColumn("completed_photos", gorm.Expr("completed_photos + 1")).Error
	})
	return done, err
}

func (r *GenerationRepository) FailTask(ctx context.Context, id uuid.UUID, errMsg string) (bool, error) {
	var done bool
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&db_models.GenerationTask{}).
			Where("id = ? AND status IN ?", id,
				[]db_models.TaskStatus{db_models.TaskStatusPending, db_models.TaskStatusDispatched}).
			Updates(map[string]interface{}{
				"status":        db_models.TaskStatusFailed,
				"error_message": errMsg,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}
		done = true

		var task db_models.GenerationTask
		if err := tx.Select("job_id").First(&task, "id = ?", id).Error; err != nil {
			return err
		}
		return tx.Model(&db_models.GenerationJob{}).
			Where("id = ?", task.JobID).
			UpdateColumn("failed_photos", gorm.Expr("failed_photos + 1")).Error
	})
	return done, err
}

func (r *GenerationRepository) CreatePhotoIfAbsent(ctx context.Context, photo *db_models.GeneratedPhoto) (bool, error) {
	var created bool
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&db_models.GeneratedPhoto{}).
			Where("avatar_id = ? AND style_id = ? AND prompt = ?",
				photo.AvatarID, photo.StyleID, photo.Prompt).
			Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return nil
		}
		if err := tx.Create(photo).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return nil
			}
			return err
		}
		created = true
		return nil
	})
	return created, err
}

func (r *GenerationRepository) ListPhotos(ctx context.Context, avatarID, styleID uuid.UUID) ([]db_models.GeneratedPhoto, error) {
	var photos []db_models.GeneratedPhoto
	err := r.db.WithContext(ctx).
		Where("avatar_id = ? AND style_id = ?", avatarID, styleID).
		Find(&photos).Error
	return photos, err
}

func (r *GenerationRepository) ListDispatchedTasksBefore(ctx context.Context, cutoff time.Time, limit int) ([]db_models.GenerationTask, error) {
	var tasks []db_models.GenerationTask
	err := r.db.WithContext(ctx).
		Where("status = ? AND updated_at < ?", db_models.TaskStatusDispatched, cutoff.Unix()).
		Limit(limit).
		Find(&tasks).Error
	return tasks, err
}

func (r *GenerationRepository) ListProcessingJobsBefore(ctx context.Context, cutoff time.Time, limit int) ([]db_models.GenerationJob, error) {
	var jobs []db_models.GenerationJob
	err := r.db.WithContext(ctx).
		Where("status = ? AND created_at < ?", db_models.JobStatusProcessing, cutoff.Unix()).
		Limit(limit).
		Find(&jobs).Error
	return jobs, err
}

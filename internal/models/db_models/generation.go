package db_models

import (
	"github.com/google/uuid"
)

type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

type TaskStatus string

const (
	TaskStatusPending    TaskStatus = "pending"
	TaskStatusDispatched TaskStatus = "dispatched"
	TaskStatusCompleted  TaskStatus = "completed"
	TaskStatusFailed     TaskStatus = "failed"
)

// GenerationJob is the batch produced by consuming one payment.
// The unique index on PaymentID is the consumption-gate backstop: at most
// one job can ever exist per payment, whatever the application code does.
type GenerationJob struct {
	BaseModel
	AvatarID  uuid.UUID  `gorm:"type:uuid;index"`
	PaymentID *uuid.UUID `gorm:"type:uuid;uniqueIndex"`
	StyleID   uuid.UUID  `gorm:"type:uuid;index"`
	UserID    uuid.UUID  `gorm:"type:uuid;index"`

	TotalPhotos     int
	CompletedPhotos int `gorm:"default:0"`
	FailedPhotos    int `gorm:"default:0"`

	Status       JobStatus `gorm:"size:16;index"`
	ErrorMessage string
}

// GenerationTask is one provider request for a single prompt.
type GenerationTask struct {
	BaseModel
	JobID       uuid.UUID `gorm:"type:uuid;index"`
	PromptIndex int
	Prompt      string

	ProviderTaskID string     `gorm:"index"`
	Status         TaskStatus `gorm:"size:16;index"`
	Attempts       int        `gorm:"default:0"`
	ResultURL      string
	ErrorMessage   string
}

// GeneratedPhoto rows are written once per completed task. The composite
// unique index makes replayed completion callbacks insert-idempotent.
type GeneratedPhoto struct {
	BaseModel
	AvatarID uuid.UUID `gorm:"type:uuid;index;uniqueIndex:idx_photo_dedup"`
	StyleID  uuid.UUID `gorm:"type:uuid;uniqueIndex:idx_photo_dedup"`
	Prompt   string    `gorm:"uniqueIndex:idx_photo_dedup"`
	ImageURL string
}

package db_models

import (
	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type AvatarStatus string

const (
	AvatarStatusDraft      AvatarStatus = "draft"
	AvatarStatusGenerating AvatarStatus = "generating"
	AvatarStatusReady      AvatarStatus = "ready"
)

type Avatar struct {
	BaseModel
	UserID uuid.UUID    `gorm:"type:uuid;index"`
	Name   string       `gorm:"size:64"`
	Status AvatarStatus `gorm:"size:16;index"`
	// Up to 4 user-uploaded reference image URLs passed to the provider.
	ReferenceImages datatypes.JSON `gorm:"type:jsonb;default:'[]'"`
}

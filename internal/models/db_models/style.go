package db_models

import (
	"gorm.io/datatypes"
)

type Style struct {
	BaseModel
	Code        string `gorm:"uniqueIndex"`
	Name        string
	AspectRatio string `gorm:"size:8"` // "2:3", "1:1"
	// Ordered prompt templates; cycled when a tier buys more photos than
	// the style has prompts.
	Prompts  datatypes.JSON `gorm:"type:jsonb;default:'[]'"`
	IsActive bool           `gorm:"default:true"`
}

package db_models

import "github.com/google/uuid"

type User struct {
	BaseModel
	TelegramChatID int64      `gorm:"index"`
	Username       string     `gorm:"size:64"`
	ReferredBy     *uuid.UUID `gorm:"type:uuid;index"` // referrer, set once at signup
}

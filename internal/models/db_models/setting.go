package db_models

import "gorm.io/datatypes"

type AppSetting struct {
	BaseModel
	Key   string         `gorm:"size:64;uniqueIndex"`
	Value datatypes.JSON `gorm:"type:jsonb;default:'{}'"`
}

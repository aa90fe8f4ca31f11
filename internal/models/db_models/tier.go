package db_models

type Tier struct {
	BaseModel
	Code       string `gorm:"uniqueIndex"` // e.g., "starter", "pro", "max"
	Name       string
	PhotoCount int    // photos generated per purchase
	PriceMinor int64  // 49900 = 499.00
	Currency   string `gorm:"size:3"`
	IsActive   bool   `gorm:"default:true"`
}

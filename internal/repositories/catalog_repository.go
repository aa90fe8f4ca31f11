package repositories

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"lumora/internal/models/db_models"
)

type ITierRepository interface {
	GetByCode(ctx context.Context, code string) (*db_models.Tier, error)
	GetByID(ctx context.Context, id uuid.UUID) (*db_models.Tier, error)
}

type TierRepository struct {
	db *gorm.DB
}

func NewTierRepository(db *gorm.DB) ITierRepository {
	return &TierRepository{db: db}
}

func (r *TierRepository) GetByCode(ctx context.Context, code string) (*db_models.Tier, error) {
	var tier db_models.Tier
	err := r.db.WithContext(ctx).First(&tier, "code = ? AND is_active = ?", code, true).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &tier, nil
}

func (r *TierRepository) GetByID(ctx context.Context, id uuid.UUID) (*db_models.Tier, error) {
	var tier db_models.Tier
	err := r.db.WithContext(ctx).First(&tier, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &tier, nil
}

type IStyleRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*db_models.Style, error)
}

type StyleRepository struct {
	db *gorm.DB
}

func NewStyleRepository(db *gorm.DB) IStyleRepository {
	return &StyleRepository{db: db}
}

func (r *StyleRepository) GetByID(ctx context.Context, id uuid.UUID) (*db_models.Style, error) {
	var style db_models.Style
	err := r.db.WithContext(ctx).First(&style, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &style, nil
}

type IAvatarRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*db_models.Avatar, error)
	SetStatus(ctx context.Context, id uuid.UUID, status db_models.AvatarStatus) error
}

type AvatarRepository struct {
	db *gorm.DB
}

func NewAvatarRepository(db *gorm.DB) IAvatarRepository {
	return &AvatarRepository{db: db}
}

func (r *AvatarRepository) GetByID(ctx context.Context, id uuid.UUID) (*db_models.Avatar, error) {
	var avatar db_models.Avatar
	err := r.db.WithContext(ctx).First(&avatar, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &avatar, nil
}

func (r *AvatarRepository) SetStatus(ctx context.Context, id uuid.UUID, status db_models.AvatarStatus) error {
	return r.db.WithContext(ctx).Model(&db_models.Avatar{}).
		Where("id = ?", id).
		Update("status", status).Error
}

type IUserRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*db_models.User, error)
}

type UserRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) IUserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) GetByID(ctx context.Context, id uuid.UUID) (*db_models.User, error) {
	var user db_models.User
	err := r.db.WithContext(ctx).First(&user, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &user, nil
}

type ISettingRepository interface {
	Get(ctx context.Context, key string) (*db_models.AppSetting, error)
}

type SettingRepository struct {
	db *gorm.DB
}

func NewSettingRepository(db *gorm.DB) ISettingRepository {
	return &SettingRepository{db: db}
}

func (r *SettingRepository) Get(ctx context.Context, key string) (*db_models.AppSetting, error) {
	var setting db_models.AppSetting
	err := r.db.WithContext(ctx).First(&setting, "key = ?", key).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &setting, nil
}

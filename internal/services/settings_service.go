package services

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"

	"lumora/internal/repositories"
)

const settingsKey = "core"

// Settings is the operator-tunable business configuration stored as one
// JSON blob in app_settings.
type Settings struct {
	ReferralRateBps    int64 `json:"referral_rate_bps"`
	PartnerRateBps     int64 `json:"partner_rate_bps"`
	WithdrawalMinMinor int64 `json:"withdrawal_min_minor"`
	WithdrawalFeeBps   int64 `json:"withdrawal_fee_bps"`
}

func defaultSettings() Settings {
	return Settings{
		ReferralRateBps:    1000, // 10%
		PartnerRateBps:     3000,
		WithdrawalMinMinor: 50000, // 500.00
		WithdrawalFeeBps:   0,
	}
}

type SettingsService interface {
	Get(ctx context.Context) Settings
}

// settingsService caches the settings row with a TTL so webhook-heavy
// paths do not hit the database on every read.
type settingsService struct {
	repo repositories.ISettingRepository
	ttl  time.Duration

	mu        sync.RWMutex
	value     Settings
	fetchedAt time.Time
}

func NewSettingsService(repo repositories.ISettingRepository, ttl time.Duration) SettingsService {
	return &settingsService{
		repo:  repo,
		ttl:   ttl,
		value: defaultSettings(),
	}
}

func (s *settingsService) Get(ctx context.Context) Settings {
	s.mu.RLock()
	if time.Since(s.fetchedAt) < s.ttl {
		defer s.mu.RUnlock()
		return s.value
	}
	s.mu.RUnlock()

	return s.refresh(ctx)
}

func (s *settingsService) refresh(ctx context.Context) Settings {
	s.mu.Lock()
	defer s.mu.Unlock()

	if time.Since(s.fetchedAt) < s.ttl {
		return s.value
	}

	row, err := s.repo.Get(ctx, settingsKey)
	if err != nil {
		zap.L().Warn("settings refresh failed, keeping cached value", zap.Error(err))
		return s.value
	}

	next := defaultSettings()
	if row != nil {
		if err := json.Unmarshal(row.Value, &next); err != nil {
			zap.L().Warn("settings row is malformed, using defaults", zap.Error(err))
			next = defaultSettings()
		}
	}

	s.value = next
	s.fetchedAt = time.Now()
	return s.value
}

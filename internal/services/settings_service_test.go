package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"

	"lumora/internal/models/db_models"
	"lumora/internal/repositories"
	"lumora/internal/testutil"
)

func TestSettingsDefaultsWhenRowMissing(t *testing.T) {
	db := testutil.NewTestDB(t, &db_models.AppSetting{})
	svc := NewSettingsService(repositories.NewSettingRepository(db), time.Minute)

	got := svc.Get(context.Background())
	require.Equal(t, int64(1000), got.ReferralRateBps)
	require.Equal(t, int64(3000), got.PartnerRateBps)
	require.Equal(t, int64(50000), got.WithdrawalMinMinor)
}

func TestSettingsReadsStoredRow(t *testing.T) {
	db := testutil.NewTestDB(t, &db_models.AppSetting{})
	require.NoError(t, db.Create(&db_models.AppSetting{
		Key:   "core",
		Value: datatypes.JSON(`{"referral_rate_bps":500,"partner_rate_bps":2000,"withdrawal_min_minor":10000,"withdrawal_fee_bps":100}`),
	}).Error)

	svc := NewSettingsService(repositories.NewSettingRepository(db), time.Minute)
	got := svc.Get(context.Background())
	require.Equal(t, int64(500), got.ReferralRateBps)
	require.Equal(t, int64(2000), got.PartnerRateBps)
	require.Equal(t, int64(10000), got.WithdrawalMinMinor)
	require.Equal(t, int64(100), got.WithdrawalFeeBps)
}

func TestSettingsCachesWithinTTL(t *testing.T) {
	db := testutil.NewTestDB(t, &db_models.AppSetting{})
	require.NoError(t, db.Create(&db_models.AppSetting{
		Key:   "core",
		Value: datatypes.JSON(`{"referral_rate_bps":500}`),
	}).Error)

	svc := NewSettingsService(repositories.NewSettingRepository(db), time.Hour)
	first := svc.Get(context.Background())
	require.Equal(t, int64(500), first.ReferralRateBps)

	// A write behind the cache's back is invisible until the TTL lapses.
	require.NoError(t, db.Model(&db_models.AppSetting{}).
		Where("key = ?", "core").
		Update("value", datatypes.JSON(`{"referral_rate_bps":900}`)).Error)

	second := svc.Get(context.Background())
	require.Equal(t, int64(500), second.ReferralRateBps)
}

package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 3*time.Second, cfg.DebounceInterval)
	assert.Equal(t, 30, cfg.MaxMediaGroups)
	assert.Equal(t, 72*time.Hour, cfg.RetentionPeriod)
	assert.Equal(t, time.Second, cfg.RateWindow)
	assert.Equal(t, 50, cfg.RatePermits)
	assert.Equal(t, time.Hour, cfg.ResolveCacheTTL)
	assert.Equal(t, 3, cfg.FetchMaxAttempts)
	assert.Equal(t, ":8080", cfg.ListenAddr)
	assert.Equal(t, "albums.db", cfg.DatabasePath)
	assert.Equal(t, "@hourly", cfg.RetentionSchedule)
	assert.Empty(t, cfg.AdminUserIDs)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("COLLECTION_DEBOUNCE_SECONDS", "1.5")
	t.Setenv("MAX_MEDIA_GROUPS", "10")
	t.Setenv("ADMIN_USER_IDS", "100, 200,300")
	t.Setenv("UPSTREAM_BASE_URL", "https://api.example.com/")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 1500*time.Millisecond, cfg.DebounceInterval)
	assert.Equal(t, 10, cfg.MaxMediaGroups)
	assert.Equal(t, []int64{100, 200, 300}, cfg.AdminUserIDs)
	assert.Equal(t, "https://api.example.com", cfg.UpstreamBaseURL)
}

func TestLoadRejectsBadAdminIDs(t *testing.T) {
	t.Setenv("ADMIN_USER_IDS", "abc")

	_, err := Load()
	require.Error(t, err)
}

func TestLoadRejectsNonPositiveDebounce(t *testing.T) {
	t.Setenv("COLLECTION_DEBOUNCE_SECONDS", "0")

	_, err := Load()
	require.Error(t, err)
}

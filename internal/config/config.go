// Package config loads service configuration from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds every tunable the service reads at startup.
type Config struct {
	// Collection engine.
	DebounceInterval time.Duration
	MaxMediaGroups   int
	RetentionPeriod  time.Duration

	// Media proxy.
	UpstreamBaseURL     string
	UpstreamFileBaseURL string
	RateWindow          time.Duration
	RatePermits         int
	ResolveCacheTTL     time.Duration
	FetchMaxAttempts    int

	// HTTP surface.
	ListenAddr        string
	PublicBaseURL     string
	HTTPRatePerSecond int
	HTTPRateBurst     int

	// Persistence.
	DatabasePath string
	RedisAddr    string

	// Housekeeping.
	RetentionSchedule string

	// Administration.
	AdminUserIDs []int64
}

// Load reads configuration from the environment, applying defaults for
// anything unset. It fails on values that parse but make no sense.
func Load() (Config, error) {
	cfg := Config{
		DebounceInterval:    envDuration("COLLECTION_DEBOUNCE_SECONDS", 3*time.Second),
		MaxMediaGroups:      envInt("MAX_MEDIA_GROUPS", 30),
		RetentionPeriod:     envDays("ALBUM_RETENTION_DAYS", 3),
		UpstreamBaseURL:     strings.TrimRight(os.Getenv("UPSTREAM_BASE_URL"), "/"),
		UpstreamFileBaseURL: strings.TrimRight(os.Getenv("UPSTREAM_FILE_BASE_URL"), "/"),
		RateWindow:          envDuration("UPSTREAM_RATE_WINDOW_SECONDS", time.Second),
		RatePermits:         envInt("UPSTREAM_RATE_PERMITS", 50),
		ResolveCacheTTL:     envDuration("RESOLVE_CACHE_TTL_SECONDS", time.Hour),
		FetchMaxAttempts:    envInt("FETCH_MAX_ATTEMPTS", 3),
		ListenAddr:          envString("LISTEN_ADDR", ":8080"),
		PublicBaseURL:       strings.TrimRight(envString("PUBLIC_BASE_URL", "http://localhost:8080"), "/"),
		HTTPRatePerSecond:   envInt("HTTP_RATE_PER_SECOND", 20),
		HTTPRateBurst:       envInt("HTTP_RATE_BURST", 40),
		DatabasePath:        envString("DATABASE_PATH", "albums.db"),
		RedisAddr:           strings.TrimSpace(os.Getenv("REDIS_ADDR")),
		RetentionSchedule:   envString("RETENTION_SCHEDULE", "@hourly"),
	}

	ids, err := parseIDList(os.Getenv("ADMIN_USER_IDS"))
	if err != nil {
		return Config{}, fmt.Errorf("parse ADMIN_USER_IDS: %w", err)
	}
	cfg.AdminUserIDs = ids

	if cfg.DebounceInterval <= 0 {
		return Config{}, fmt.Errorf("COLLECTION_DEBOUNCE_SECONDS must be positive")
	}
	if cfg.MaxMediaGroups <= 0 {
		return Config{}, fmt.Errorf("MAX_MEDIA_GROUPS must be positive")
	}
	if cfg.FetchMaxAttempts <= 0 {
		return Config{}, fmt.Errorf("FETCH_MAX_ATTEMPTS must be positive")
	}
	if cfg.RatePermits <= 0 {
		return Config{}, fmt.Errorf("UPSTREAM_RATE_PERMITS must be positive")
	}
	return cfg, nil
}

func envString(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return n
}

func envDuration(key string, fallback time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	secs, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return fallback
	}
	return time.Duration(secs * float64(time.Second))
}

func envDays(key string, fallback int) time.Duration {
	return time.Duration(envInt(key, fallback)) * 24 * time.Hour
}

func parseIDList(raw string) ([]int64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	parts := strings.Split(raw, ",")
	ids := make([]int64, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid user id %q", part)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

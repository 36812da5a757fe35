package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/albumforge/albumforge/internal/collector"
	"github.com/albumforge/albumforge/internal/config"
	"github.com/albumforge/albumforge/internal/httpapi"
	"github.com/albumforge/albumforge/internal/proxy"
	"github.com/albumforge/albumforge/internal/retention"
	"github.com/albumforge/albumforge/internal/storage/sqlite"
	"github.com/albumforge/albumforge/internal/system"
	"github.com/albumforge/albumforge/pkg/logger"
)

const shutdownTimeout = 15 * time.Second

func main() {
	log := logger.NewDefault("albumforge")

	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Error("configuration invalid")
		os.Exit(1)
	}

	store, err := sqlite.Open(cfg.DatabasePath)
	if err != nil {
		log.WithError(err).Error("storage unavailable")
		os.Exit(1)
	}
	defer store.Close()

	var cache proxy.ResolveCache
	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		cache = proxy.NewRedisCache(client, cfg.ResolveCacheTTL, logger.NewDefault("resolve-cache"))
		log.WithField("addr", cfg.RedisAddr).Info("using redis resolve cache")
	}

	proxySvc := proxy.New(proxy.Config{
		UpstreamBaseURL:     cfg.UpstreamBaseURL,
		UpstreamFileBaseURL: cfg.UpstreamFileBaseURL,
		RatePermits:         cfg.RatePermits,
		RateWindow:          cfg.RateWindow,
		ResolveCacheTTL:     cfg.ResolveCacheTTL,
		Retry: proxy.RetryConfig{
			MaxAttempts:       cfg.FetchMaxAttempts,
			InitialBackoff:    500 * time.Millisecond,
			MaxBackoff:        10 * time.Second,
			BackoffMultiplier: 2.0,
		},
	}, nil, cache, logger.NewDefault("proxy"))

	engine := collector.New(store, nil, collector.Config{
		DebounceInterval: cfg.DebounceInterval,
		MaxGroups:        cfg.MaxMediaGroups,
		RetentionPeriod:  cfg.RetentionPeriod,
	}, logger.NewDefault("collector"))

	sweeper := retention.New(store, cfg.RetentionSchedule, logger.NewDefault("retention"))

	api := httpapi.New(store, proxySvc, httpapi.Config{
		RatePerSecond: cfg.HTTPRatePerSecond,
		RateBurst:     cfg.HTTPRateBurst,
	}, logger.NewDefault("httpapi"))
	server := httpapi.NewServer(cfg.ListenAddr, api.Router(), logger.NewDefault("httpapi"))

	manager := system.NewManager(log)
	for _, svc := range []system.Service{engine, sweeper, server} {
		if err := manager.Register(svc); err != nil {
			log.WithError(err).Error("service registration failed")
			os.Exit(1)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := manager.Start(ctx); err != nil {
		log.WithError(err).Error("startup failed")
		os.Exit(1)
	}
	log.Info("albumforge running")

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := manager.Stop(shutdownCtx); err != nil {
		log.WithError(err).Error("shutdown incomplete")
		os.Exit(1)
	}
}

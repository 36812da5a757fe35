// Package retention prunes completed albums whose retention period elapsed.
package retention

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/albumforge/albumforge/internal/storage"
	"github.com/albumforge/albumforge/pkg/logger"
)

// sweepTimeout bounds one sweep pass.
const sweepTimeout = time.Minute

// Store is the slice of persistence the sweeper needs.
type Store interface {
	storage.RetentionStore
	DeleteAlbumCascade(ctx context.Context, id string) error
}

// Sweeper deletes expired completed albums on a cron schedule. Active albums
// are never touched regardless of age.
type Sweeper struct {
	store    Store
	log      *logger.Logger
	schedule string

	mu      sync.Mutex
	cron    *cron.Cron
	running bool
}

func New(store Store, schedule string, log *logger.Logger) *Sweeper {
	if schedule == "" {
		schedule = "@hourly"
	}
	if log == nil {
		log = logger.NewDefault("retention")
	}
	return &Sweeper{store: store, log: log, schedule: schedule}
}

// Name implements system.Service.
func (s *Sweeper) Name() string { return "retention" }

// Start implements system.Service. It runs one sweep immediately and then on
// the configured schedule.
func (s *Sweeper) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return errors.New("retention: already started")
	}

	c := cron.New()
	if _, err := c.AddFunc(s.schedule, s.runSweep); err != nil {
		return fmt.Errorf("retention: bad schedule %q: %w", s.schedule, err)
	}
	c.Start()
	s.cron = c
	s.running = true

	if _, err := s.Sweep(ctx); err != nil {
		s.log.WithError(err).Warn("initial retention sweep failed")
	}
	return nil
}

// Stop implements system.Service and waits for an in-flight sweep to finish.
func (s *Sweeper) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil
	}
	stopped := s.cron.Stop()
	s.cron = nil
	s.running = false

	select {
	case <-stopped.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Sweeper) runSweep() {
	ctx, cancel := context.WithTimeout(context.Background(), sweepTimeout)
	defer cancel()
	if _, err := s.Sweep(ctx); err != nil {
		s.log.WithError(err).Error("retention sweep failed")
	}
}

// Sweep deletes every expired completed album and returns how many went.
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	expired, err := s.store.ListExpiredAlbums(ctx, time.Now().UTC())
	if err != nil {
		return 0, err
	}

	deleted := 0
	for _, alb := range expired {
		if err := s.store.DeleteAlbumCascade(ctx, alb.ID); err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				continue
			}
			return deleted, err
		}
		deleted++
	}
	if deleted > 0 {
		s.log.WithField("deleted", fmt.Sprint(deleted)).Info("expired albums pruned")
	}
	return deleted, nil
}

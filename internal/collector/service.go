// Package collector implements the chat-driven collection session engine. It
// aggregates bursty media events into ordered committed groups, debouncing
// each burst and persisting every accepted event before acknowledging it.
package collector

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/albumforge/albumforge/internal/domain/album"
	"github.com/albumforge/albumforge/internal/metrics"
	"github.com/albumforge/albumforge/internal/storage"
	"github.com/albumforge/albumforge/pkg/logger"
)

// commitTimeout bounds storage work done from a debounce timer, which has no
// caller-supplied context.
const commitTimeout = 15 * time.Second

// Notifier receives progress events produced by debounce-triggered commits.
// Implementations deliver them over the chat transport.
type Notifier interface {
	GroupCommitted(ctx context.Context, userID int64, progress album.Progress)
	GroupLimitReached(ctx context.Context, userID int64, limit int)
}

// NopNotifier discards all notifications.
type NopNotifier struct{}

func (NopNotifier) GroupCommitted(context.Context, int64, album.Progress) {}
func (NopNotifier) GroupLimitReached(context.Context, int64, int)        {}

// Config tunes the collection engine.
type Config struct {
	DebounceInterval time.Duration
	MaxGroups        int
	RetentionPeriod  time.Duration
}

// Service manages collection sessions for all users.
type Service struct {
	store    storage.Store
	log      *logger.Logger
	notifier Notifier
	cfg      Config

	mu       sync.Mutex
	sessions map[int64]*session
}

// New creates the collection engine. A nil notifier disables notifications.
func New(store storage.Store, notifier Notifier, cfg Config, log *logger.Logger) *Service {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	if log == nil {
		log = logger.NewDefault("collector")
	}
	if cfg.DebounceInterval <= 0 {
		cfg.DebounceInterval = 3 * time.Second
	}
	if cfg.MaxGroups <= 0 {
		cfg.MaxGroups = 30
	}
	if cfg.RetentionPeriod <= 0 {
		cfg.RetentionPeriod = 72 * time.Hour
	}
	return &Service{
		store:    store,
		log:      log,
		notifier: notifier,
		cfg:      cfg,
		sessions: make(map[int64]*session),
	}
}

// Name implements system.Service.
func (s *Service) Name() string { return "collector" }

// Start implements system.Service. It rebuilds sessions left active by a
// previous run.
func (s *Service) Start(ctx context.Context) error {
	return s.Recover(ctx)
}

// Stop implements system.Service. Pending items stay in the durable queue and
// are picked up again by Recover on the next start.
func (s *Service) Stop(context.Context) error {
	s.mu.Lock()
	sessions := make([]*session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		sessions = append(sessions, sess)
	}
	s.sessions = make(map[int64]*session)
	s.mu.Unlock()

	for _, sess := range sessions {
		sess.mu.Lock()
		sess.stopTimers()
		sess.mu.Unlock()
	}
	return nil
}

// Recover rebuilds an in-memory session for every album the store reports as
// active. Leftover items in a durable queue become that session's buffer
// again: each burst gets a fresh debounce window and commits when it elapses.
func (s *Service) Recover(ctx context.Context) error {
	active, err := s.store.ListActiveAlbums(ctx)
	if err != nil {
		return fmt.Errorf("list active albums: %w", err)
	}

	for _, alb := range active {
		s.restoreSession(ctx, alb)
		s.log.WithField("album_id", alb.ID).WithField("user_id", fmt.Sprint(alb.UserID)).Info("session recovered")
	}
	return nil
}

// restoreSession registers a session for an already-active album and rearms a
// debounce window for every burst the durable queue still holds. If another
// session won the registration race, that one is returned instead.
func (s *Service) restoreSession(ctx context.Context, alb album.Album) *session {
	sess := newSession(alb.ID, alb.UserID)

	s.mu.Lock()
	if cur, ok := s.sessions[alb.UserID]; ok {
		s.mu.Unlock()
		return cur
	}
	s.sessions[alb.UserID] = sess
	s.mu.Unlock()

	pending, err := s.store.ListPending(ctx, alb.ID)
	if err != nil {
		s.log.WithError(err).WithField("album_id", alb.ID).Warn("pending queue read failed during restore")
		return sess
	}

	sess.mu.Lock()
	seen := make(map[string]bool)
	for _, p := range pending {
		if seen[p.BurstKey] {
			continue
		}
		seen[p.BurstKey] = true
		key := p.BurstKey
		sess.rearm(key, s.cfg.DebounceInterval, func(gen uint64) {
			s.fire(sess, key, gen)
		})
	}
	sess.mu.Unlock()
	return sess
}

// resume lazily reconstructs the user's session from a still-active album,
// for events that arrive when no in-memory session matches.
func (s *Service) resume(ctx context.Context, userID int64) (*session, error) {
	alb, err := s.store.GetActiveAlbum(ctx, userID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrNoActiveSession
	}
	if err != nil {
		return nil, err
	}
	return s.restoreSession(ctx, alb), nil
}

// RecoverSession rebuilds the user's in-memory session from their active
// album and durable pending queue, returning the album it resumed.
func (s *Service) RecoverSession(ctx context.Context, userID int64) (album.Album, error) {
	sess, err := s.resume(ctx, userID)
	if err != nil {
		return album.Album{}, err
	}
	return s.store.GetAlbum(ctx, sess.albumID)
}

// StartSession opens a new collection session for the user.
func (s *Service) StartSession(ctx context.Context, userID int64) (album.Album, error) {
	s.mu.Lock()
	if _, exists := s.sessions[userID]; exists {
		s.mu.Unlock()
		return album.Album{}, ErrSessionConflict
	}
	s.mu.Unlock()

	if _, err := s.store.GetActiveAlbum(ctx, userID); err == nil {
		return album.Album{}, ErrSessionConflict
	} else if !errors.Is(err, storage.ErrNotFound) {
		return album.Album{}, err
	}

	token, err := newAccessToken()
	if err != nil {
		return album.Album{}, err
	}
	alb, err := s.store.CreateAlbum(ctx, album.Album{
		UserID:      userID,
		AccessToken: token,
		Status:      album.StatusActive,
	})
	if err != nil {
		return album.Album{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.sessions[userID]; exists {
		// Lost the race to a concurrent start. Drop our album.
		if delErr := s.store.DeleteAlbumCascade(context.WithoutCancel(ctx), alb.ID); delErr != nil {
			s.log.WithError(delErr).WithField("album_id", alb.ID).Warn("orphan album cleanup failed")
		}
		return album.Album{}, ErrSessionConflict
	}
	s.sessions[userID] = newSession(alb.ID, userID)

	s.log.WithField("album_id", alb.ID).WithField("user_id", fmt.Sprint(userID)).Info("session started")
	return alb, nil
}

// SubmitMedia accepts one media event. The item is durably enqueued before
// this returns, and the burst's debounce timer restarts. When no in-memory
// session exists the user's active album, if any, is resumed first.
func (s *Service) SubmitMedia(ctx context.Context, userID int64, reference string, kind album.MediaKind, caption, burstKey string) error {
	if reference == "" {
		return errors.New("collector: empty media reference")
	}
	sess, ok := s.lookup(userID)
	if !ok {
		var err error
		sess, err = s.resume(ctx, userID)
		if err != nil {
			return err
		}
	}
	key := normalizeBurstKey(burstKey)

	alb, err := s.store.GetAlbum(ctx, sess.albumID)
	if errors.Is(err, storage.ErrNotFound) {
		s.remove(userID, sess)
		return ErrNoActiveSession
	}
	if err != nil {
		return err
	}
	if alb.Status != album.StatusActive {
		s.remove(userID, sess)
		return ErrAlbumClosed
	}

	count, err := s.store.CountGroups(ctx, sess.albumID)
	if err != nil {
		return err
	}
	if count >= s.cfg.MaxGroups {
		return ErrGroupLimitExceeded
	}

	sess.queueMu.Lock()
	if closed, reason := sess.closeState(); closed {
		sess.queueMu.Unlock()
		return reason
	}
	_, err = s.store.EnqueuePending(ctx, album.PendingItem{
		AlbumID:   sess.albumID,
		UserID:    userID,
		Reference: reference,
		Kind:      kind,
		Caption:   caption,
		BurstKey:  key,
	})
	sess.queueMu.Unlock()
	if err != nil {
		return err
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()
	if sess.closed {
		return sess.closedErr
	}
	sess.rearm(key, s.cfg.DebounceInterval, func(gen uint64) {
		s.fire(sess, key, gen)
	})
	return nil
}

// fire runs when a burst's debounce window elapses. Fires from superseded
// timers or replaced sessions are no-ops.
func (s *Service) fire(sess *session, key string, gen uint64) {
	if cur, ok := s.lookup(sess.userID); !ok || cur != sess {
		return
	}

	sess.mu.Lock()
	if sess.closed {
		sess.mu.Unlock()
		return
	}
	if cur, ok := sess.currentGen(key); !ok || cur != gen {
		sess.mu.Unlock()
		return
	}
	delete(sess.timers, key)
	sess.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), commitTimeout)
	defer cancel()

	sess.queueMu.Lock()
	defer sess.queueMu.Unlock()
	if closed, _ := sess.closeState(); closed {
		return
	}

	committed, err := s.commitBurst(ctx, sess, key)
	if err != nil {
		s.log.WithError(err).WithField("album_id", sess.albumID).Error("debounce commit failed")
		return
	}
	if committed {
		progress, err := s.progress(ctx, sess)
		if err != nil {
			s.log.WithError(err).WithField("album_id", sess.albumID).Warn("progress snapshot failed")
			return
		}
		s.notifier.GroupCommitted(ctx, sess.userID, progress)
	}
}

// commitBurst commits the named burst's pending items as one group. Callers
// must hold sess.queueMu. Returns false when there was nothing to commit.
func (s *Service) commitBurst(ctx context.Context, sess *session, key string) (bool, error) {
	pending, err := s.store.ListPending(ctx, sess.albumID)
	if err != nil {
		return false, err
	}
	var items []album.MediaItem
	for _, p := range pending {
		if p.BurstKey == key {
			items = append(items, album.MediaItem{Reference: p.Reference, Kind: p.Kind, Caption: p.Caption})
		}
	}
	if len(items) == 0 {
		return false, nil
	}

	count, err := s.store.CountGroups(ctx, sess.albumID)
	if err != nil {
		return false, err
	}
	if count >= s.cfg.MaxGroups {
		// The burst stays buffered in the durable queue; only a successful
		// group write may clear it.
		metrics.RecordGroupCommit(len(items), false)
		s.notifier.GroupLimitReached(ctx, sess.userID, s.cfg.MaxGroups)
		return false, nil
	}

	grp := album.Group{AlbumID: sess.albumID, Caption: firstCaption(items), Items: items}
	if _, err := s.store.AppendGroup(ctx, grp); err != nil {
		metrics.RecordGroupCommit(len(items), false)
		return false, err
	}
	if err := s.store.ClearPending(ctx, sess.albumID, key); err != nil {
		// The group is committed; a stale queue entry is repaired on the next
		// recovery pass rather than failing the commit.
		s.log.WithError(err).WithField("album_id", sess.albumID).Warn("pending queue clear failed")
	}
	metrics.RecordGroupCommit(len(items), true)
	return true, nil
}

// commitAllBursts commits every pending burst, one group per burst key, in
// first-arrival order. Callers must hold sess.queueMu.
func (s *Service) commitAllBursts(ctx context.Context, sess *session) error {
	pending, err := s.store.ListPending(ctx, sess.albumID)
	if err != nil {
		return err
	}
	var keys []string
	seen := make(map[string]bool)
	for _, p := range pending {
		if !seen[p.BurstKey] {
			seen[p.BurstKey] = true
			keys = append(keys, p.BurstKey)
		}
	}
	for _, key := range keys {
		if _, err := s.commitBurst(ctx, sess, key); err != nil {
			return err
		}
	}
	return nil
}

// firstCaption picks the group caption: the first item of the burst that
// carried one.
func firstCaption(items []album.MediaItem) string {
	for _, item := range items {
		if item.Caption != "" {
			return item.Caption
		}
	}
	return ""
}

// FinishSession flushes any pending media, completes the album and closes the
// session. Finishing a session that never collected anything fails with
// ErrEmptyAlbum and leaves the session active.
func (s *Service) FinishSession(ctx context.Context, userID int64) (album.Album, error) {
	sess, ok := s.lookup(userID)
	if !ok {
		return album.Album{}, ErrNoActiveSession
	}

	sess.queueMu.Lock()
	defer sess.queueMu.Unlock()
	if closed, reason := sess.closeState(); closed {
		return album.Album{}, reason
	}

	sess.mu.Lock()
	sess.stopTimers()
	sess.mu.Unlock()

	if err := s.commitAllBursts(ctx, sess); err != nil {
		return album.Album{}, err
	}

	count, err := s.store.CountGroups(ctx, sess.albumID)
	if err != nil {
		return album.Album{}, err
	}
	if count == 0 {
		return album.Album{}, ErrEmptyAlbum
	}

	now := time.Now().UTC()
	alb, err := s.store.CompleteAlbum(ctx, sess.albumID, now, now.Add(s.cfg.RetentionPeriod))
	if err != nil {
		return album.Album{}, err
	}

	sess.mu.Lock()
	sess.close(ErrAlbumClosed)
	sess.mu.Unlock()
	s.remove(userID, sess)

	s.log.WithField("album_id", alb.ID).WithField("groups", fmt.Sprint(count)).Info("session finished")
	return alb, nil
}

// CancelSession discards the session and everything it collected.
func (s *Service) CancelSession(ctx context.Context, userID int64) error {
	sess, ok := s.lookup(userID)
	if !ok {
		return ErrNoActiveSession
	}

	sess.queueMu.Lock()
	defer sess.queueMu.Unlock()
	if closed, _ := sess.closeState(); closed {
		return ErrNoActiveSession
	}

	sess.mu.Lock()
	sess.close(ErrNoActiveSession)
	sess.mu.Unlock()
	s.remove(userID, sess)

	if err := s.store.DeleteAlbumCascade(ctx, sess.albumID); err != nil && !errors.Is(err, storage.ErrNotFound) {
		return err
	}
	s.log.WithField("album_id", sess.albumID).Info("session cancelled")
	return nil
}

// Progress reports the committed and pending state of the user's session.
func (s *Service) Progress(ctx context.Context, userID int64) (album.Progress, error) {
	sess, ok := s.lookup(userID)
	if !ok {
		return album.Progress{}, ErrNoActiveSession
	}
	if closed, _ := sess.closeState(); closed {
		return album.Progress{}, ErrNoActiveSession
	}
	return s.progress(ctx, sess)
}

func (s *Service) progress(ctx context.Context, sess *session) (album.Progress, error) {
	groups, err := s.store.ListGroups(ctx, sess.albumID)
	if err != nil {
		return album.Progress{}, err
	}
	pending, err := s.store.ListPending(ctx, sess.albumID)
	if err != nil {
		return album.Progress{}, err
	}
	items := 0
	for _, grp := range groups {
		items += len(grp.Items)
	}
	return album.Progress{
		AlbumID:         sess.albumID,
		CommittedGroups: len(groups),
		CommittedItems:  items,
		PendingItems:    len(pending),
		GroupLimit:      s.cfg.MaxGroups,
	}, nil
}

func (s *Service) lookup(userID int64) (*session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[userID]
	return sess, ok
}

// remove unregisters the session if it is still the current one for the user.
func (s *Service) remove(userID int64, sess *session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.sessions[userID]; ok && cur == sess {
		delete(s.sessions, userID)
	}
}

func newAccessToken() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate access token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

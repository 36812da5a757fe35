package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/albumforge/albumforge/internal/domain/album"
	"github.com/albumforge/albumforge/internal/domain/authz"
	"github.com/albumforge/albumforge/internal/storage"
)

// Store is an in-memory implementation of the storage interfaces. It is safe
// for concurrent use and is primarily intended for tests and local development.
type Store struct {
	mu             sync.RWMutex
	albums         map[string]album.Album
	groups         map[string][]album.Group
	pending        map[string][]album.PendingItem
	authorizations map[int64]authz.Authorization
}

var _ storage.Store = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	return &Store{
		albums:         make(map[string]album.Album),
		groups:         make(map[string][]album.Group),
		pending:        make(map[string][]album.PendingItem),
		authorizations: make(map[int64]authz.Authorization),
	}
}

// AlbumStore implementation ---------------------------------------------------

func (s *Store) CreateAlbum(_ context.Context, alb album.Album) (album.Album, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if alb.ID == "" {
		alb.ID = uuid.NewString()
	} else if _, exists := s.albums[alb.ID]; exists {
		return album.Album{}, fmt.Errorf("album %s already exists", alb.ID)
	}
	if alb.CreatedAt.IsZero() {
		alb.CreatedAt = time.Now().UTC()
	}
	if alb.Status == "" {
		alb.Status = album.StatusActive
	}

	s.albums[alb.ID] = alb
	return alb, nil
}

func (s *Store) GetAlbum(_ context.Context, id string) (album.Album, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	alb, ok := s.albums[id]
	if !ok {
		return album.Album{}, storage.ErrNotFound
	}
	return alb, nil
}

func (s *Store) GetActiveAlbum(_ context.Context, userID int64) (album.Album, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, alb := range s.albums {
		if alb.UserID == userID && alb.Status == album.StatusActive {
			return alb, nil
		}
	}
	return album.Album{}, storage.ErrNotFound
}

func (s *Store) ListActiveAlbums(_ context.Context) ([]album.Album, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []album.Album
	for _, alb := range s.albums {
		if alb.Status == album.StatusActive {
			out = append(out, alb)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) ListAlbumsByUser(_ context.Context, userID int64) ([]album.Album, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []album.Album
	for _, alb := range s.albums {
		if alb.UserID == userID {
			out = append(out, alb)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) CompleteAlbum(_ context.Context, id string, completedAt, expiresAt time.Time) (album.Album, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	alb, ok := s.albums[id]
	if !ok {
		return album.Album{}, storage.ErrNotFound
	}
	alb.Status = album.StatusCompleted
	alb.CompletedAt = &completedAt
	alb.ExpiresAt = &expiresAt
	s.albums[id] = alb
	return alb, nil
}

func (s *Store) DeleteAlbumCascade(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.albums[id]; !ok {
		return storage.ErrNotFound
	}
	delete(s.albums, id)
	delete(s.groups, id)
	delete(s.pending, id)
	return nil
}

func (s *Store) CountGroups(_ context.Context, albumID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.groups[albumID]), nil
}

func (s *Store) ListGroups(_ context.Context, albumID string) ([]album.Group, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	groups := make([]album.Group, len(s.groups[albumID]))
	for i, grp := range s.groups[albumID] {
		grp.Items = append([]album.MediaItem(nil), grp.Items...)
		groups[i] = grp
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i].Sequence < groups[j].Sequence })
	return groups, nil
}

func (s *Store) AppendGroup(_ context.Context, grp album.Group) (album.Group, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	alb, ok := s.albums[grp.AlbumID]
	if !ok {
		return album.Group{}, storage.ErrNotFound
	}
	if alb.Status != album.StatusActive {
		return album.Group{}, fmt.Errorf("album %s is not active", grp.AlbumID)
	}

	if grp.ID == "" {
		grp.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if grp.CreatedAt.IsZero() {
		grp.CreatedAt = now
	}
	grp.Sequence = len(s.groups[grp.AlbumID]) + 1

	items := make([]album.MediaItem, len(grp.Items))
	for i, item := range grp.Items {
		if item.ID == "" {
			item.ID = uuid.NewString()
		}
		item.GroupID = grp.ID
		item.Position = i + 1
		if item.CreatedAt.IsZero() {
			item.CreatedAt = now
		}
		items[i] = item
	}
	grp.Items = items

	s.groups[grp.AlbumID] = append(s.groups[grp.AlbumID], grp)

	stored := grp
	stored.Items = append([]album.MediaItem(nil), items...)
	return stored, nil
}

// PendingStore implementation -------------------------------------------------

func (s *Store) EnqueuePending(_ context.Context, item album.PendingItem) (album.PendingItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.albums[item.AlbumID]; !ok {
		return album.PendingItem{}, storage.ErrNotFound
	}
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	if item.EnqueuedAt.IsZero() {
		item.EnqueuedAt = time.Now().UTC()
	}
	s.pending[item.AlbumID] = append(s.pending[item.AlbumID], item)
	return item, nil
}

func (s *Store) ListPending(_ context.Context, albumID string) ([]album.PendingItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return append([]album.PendingItem(nil), s.pending[albumID]...), nil
}

func (s *Store) ClearPending(_ context.Context, albumID string, burstKey string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if burstKey == "" {
		delete(s.pending, albumID)
		return nil
	}
	kept := s.pending[albumID][:0]
	for _, item := range s.pending[albumID] {
		if item.BurstKey != burstKey {
			kept = append(kept, item)
		}
	}
	s.pending[albumID] = kept
	return nil
}

// RetentionStore implementation -----------------------------------------------

func (s *Store) ListExpiredAlbums(_ context.Context, now time.Time) ([]album.Album, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []album.Album
	for _, alb := range s.albums {
		if alb.Status == album.StatusCompleted && alb.ExpiresAt != nil && alb.ExpiresAt.Before(now) {
			out = append(out, alb)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// AuthzStore implementation ---------------------------------------------------

func (s *Store) UpsertAuthorization(_ context.Context, auth authz.Authorization) (authz.Authorization, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if auth.ID == "" {
		auth.ID = uuid.NewString()
	}
	if auth.GrantedAt.IsZero() {
		auth.GrantedAt = time.Now().UTC()
	}
	s.authorizations[auth.UserID] = auth
	return auth, nil
}

func (s *Store) GetAuthorization(_ context.Context, userID int64) (authz.Authorization, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	auth, ok := s.authorizations[userID]
	if !ok {
		return authz.Authorization{}, storage.ErrNotFound
	}
	return auth, nil
}

func (s *Store) DeleteAuthorization(_ context.Context, userID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.authorizations[userID]; !ok {
		return storage.ErrNotFound
	}
	delete(s.authorizations, userID)
	return nil
}

func (s *Store) ListAuthorizations(_ context.Context) ([]authz.Authorization, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]authz.Authorization, 0, len(s.authorizations))
	for _, auth := range s.authorizations {
		out = append(out, auth)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

func (s *Store) ListExpiringAuthorizations(_ context.Context, within time.Duration, now time.Time) ([]authz.Authorization, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cutoff := now.Add(within)
	var out []authz.Authorization
	for _, auth := range s.authorizations {
		if auth.ReminderSent {
			continue
		}
		if auth.ExpiresAt.After(now) && auth.ExpiresAt.Before(cutoff) {
			out = append(out, auth)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

func (s *Store) MarkReminderSent(_ context.Context, userID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	auth, ok := s.authorizations[userID]
	if !ok {
		return storage.ErrNotFound
	}
	auth.ReminderSent = true
	s.authorizations[userID] = auth
	return nil
}

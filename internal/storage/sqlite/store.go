// Package sqlite implements the storage interfaces backed by SQLite.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/albumforge/albumforge/internal/domain/album"
	"github.com/albumforge/albumforge/internal/domain/authz"
	"github.com/albumforge/albumforge/internal/storage"
)

// Store implements the storage interfaces backed by SQLite.
type Store struct {
	db *sqlx.DB
}

var _ storage.Store = (*Store)(nil)

// Open connects to the SQLite database at path, applies the schema and
// returns a ready Store. Foreign keys are enforced so cascades work.
func Open(path string) (*Store, error) {
	db, err := sqlx.Open("sqlite", path+"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// SQLite supports one writer at a time; a single connection avoids
	// SQLITE_BUSY churn under concurrent commits.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

// New wraps an existing handle, for tests.
func New(db *sqlx.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Close() error {
	return s.db.Close()
}

// --- AlbumStore -------------------------------------------------------------

func (s *Store) CreateAlbum(ctx context.Context, alb album.Album) (album.Album, error) {
	if alb.ID == "" {
		alb.ID = uuid.NewString()
	}
	if alb.CreatedAt.IsZero() {
		alb.CreatedAt = time.Now().UTC()
	}
	if alb.Status == "" {
		alb.Status = album.StatusActive
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO albums (id, user_id, access_token, status, created_at, completed_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, alb.ID, alb.UserID, alb.AccessToken, alb.Status, alb.CreatedAt, alb.CompletedAt, alb.ExpiresAt)
	if err != nil {
		return album.Album{}, err
	}
	return alb, nil
}

func (s *Store) GetAlbum(ctx context.Context, id string) (album.Album, error) {
	var alb album.Album
	err := s.db.GetContext(ctx, &alb, `
		SELECT id, user_id, access_token, status, created_at, completed_at, expires_at
		FROM albums
		WHERE id = ?
	`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return album.Album{}, storage.ErrNotFound
	}
	if err != nil {
		return album.Album{}, err
	}
	return alb, nil
}

func (s *Store) GetActiveAlbum(ctx context.Context, userID int64) (album.Album, error) {
	var alb album.Album
	err := s.db.GetContext(ctx, &alb, `
		SELECT id, user_id, access_token, status, created_at, completed_at, expires_at
		FROM albums
		WHERE user_id = ? AND status = ?
		ORDER BY created_at DESC
		LIMIT 1
	`, userID, album.StatusActive)
	if errors.Is(err, sql.ErrNoRows) {
		return album.Album{}, storage.ErrNotFound
	}
	if err != nil {
		return album.Album{}, err
	}
	return alb, nil
}

func (s *Store) ListActiveAlbums(ctx context.Context) ([]album.Album, error) {
	var out []album.Album
	err := s.db.SelectContext(ctx, &out, `
		SELECT id, user_id, access_token, status, created_at, completed_at, expires_at
		FROM albums
		WHERE status = ?
		ORDER BY created_at
	`, album.StatusActive)
	return out, err
}

func (s *Store) ListAlbumsByUser(ctx context.Context, userID int64) ([]album.Album, error) {
	var out []album.Album
	err := s.db.SelectContext(ctx, &out, `
		SELECT id, user_id, access_token, status, created_at, completed_at, expires_at
		FROM albums
		WHERE user_id = ?
		ORDER BY created_at
	`, userID)
	return out, err
}

func (s *Store) CompleteAlbum(ctx context.Context, id string, completedAt, expiresAt time.Time) (album.Album, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE albums
		SET status = ?, completed_at = ?, expires_at = ?
		WHERE id = ?
	`, album.StatusCompleted, completedAt, expiresAt, id)
	if err != nil {
		return album.Album{}, err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return album.Album{}, storage.ErrNotFound
	}
	return s.GetAlbum(ctx, id)
}

func (s *Store) DeleteAlbumCascade(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM albums WHERE id = ?
	`, id)
	if err != nil {
		return err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (s *Store) CountGroups(ctx context.Context, albumID string) (int, error) {
	var count int
	err := s.db.GetContext(ctx, &count, `
		SELECT COUNT(*) FROM media_groups WHERE album_id = ?
	`, albumID)
	return count, err
}

func (s *Store) ListGroups(ctx context.Context, albumID string) ([]album.Group, error) {
	var groups []album.Group
	err := s.db.SelectContext(ctx, &groups, `
		SELECT id, album_id, sequence, caption, created_at
		FROM media_groups
		WHERE album_id = ?
		ORDER BY sequence
	`, albumID)
	if err != nil {
		return nil, err
	}

	for i := range groups {
		var items []album.MediaItem
		err := s.db.SelectContext(ctx, &items, `
			SELECT id, group_id, reference, kind, caption, position, created_at
			FROM media_items
			WHERE group_id = ?
			ORDER BY position
		`, groups[i].ID)
		if err != nil {
			return nil, err
		}
		groups[i].Items = items
	}
	return groups, nil
}

// AppendGroup commits a group and its items in one transaction and verifies
// the write landed before reporting success.
func (s *Store) AppendGroup(ctx context.Context, grp album.Group) (album.Group, error) {
	if len(grp.Items) == 0 {
		return album.Group{}, errors.New("group has no items")
	}
	if grp.ID == "" {
		grp.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if grp.CreatedAt.IsZero() {
		grp.CreatedAt = now
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return album.Group{}, err
	}
	defer tx.Rollback()

	var status album.Status
	err = tx.GetContext(ctx, &status, `SELECT status FROM albums WHERE id = ?`, grp.AlbumID)
	if errors.Is(err, sql.ErrNoRows) {
		return album.Group{}, storage.ErrNotFound
	}
	if err != nil {
		return album.Group{}, err
	}
	if status != album.StatusActive {
		return album.Group{}, fmt.Errorf("album %s is not active", grp.AlbumID)
	}

	err = tx.GetContext(ctx, &grp.Sequence, `
		SELECT COALESCE(MAX(sequence), 0) + 1 FROM media_groups WHERE album_id = ?
	`, grp.AlbumID)
	if err != nil {
		return album.Group{}, err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO media_groups (id, album_id, sequence, caption, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, grp.ID, grp.AlbumID, grp.Sequence, grp.Caption, grp.CreatedAt)
	if err != nil {
		return album.Group{}, err
	}

	for i := range grp.Items {
		item := &grp.Items[i]
		if item.ID == "" {
			item.ID = uuid.NewString()
		}
		item.GroupID = grp.ID
		item.Position = i + 1
		if item.CreatedAt.IsZero() {
			item.CreatedAt = now
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO media_items (id, group_id, reference, kind, caption, position, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, item.ID, item.GroupID, item.Reference, item.Kind, item.Caption, item.Position, item.CreatedAt)
		if err != nil {
			return album.Group{}, err
		}
	}

	var stored int
	err = tx.GetContext(ctx, &stored, `
		SELECT COUNT(*) FROM media_items WHERE group_id = ?
	`, grp.ID)
	if err != nil {
		return album.Group{}, err
	}
	if stored != len(grp.Items) {
		return album.Group{}, fmt.Errorf("group %s: wrote %d items, found %d", grp.ID, len(grp.Items), stored)
	}

	if err := tx.Commit(); err != nil {
		return album.Group{}, err
	}
	return grp, nil
}

// --- PendingStore -----------------------------------------------------------

func (s *Store) EnqueuePending(ctx context.Context, item album.PendingItem) (album.PendingItem, error) {
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	if item.EnqueuedAt.IsZero() {
		item.EnqueuedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO pending_media (id, album_id, user_id, reference, kind, caption, burst_key, enqueued_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, item.ID, item.AlbumID, item.UserID, item.Reference, item.Kind, item.Caption, item.BurstKey, item.EnqueuedAt)
	if err != nil {
		return album.PendingItem{}, err
	}
	return item, nil
}

// ListPending returns the album's queue in arrival order. rowid is the
// tie-break: enqueued_at has second resolution, so a burst of inserts within
// the same second would otherwise come back in random UUID order.
func (s *Store) ListPending(ctx context.Context, albumID string) ([]album.PendingItem, error) {
	var out []album.PendingItem
	err := s.db.SelectContext(ctx, &out, `
		SELECT id, album_id, user_id, reference, kind, caption, burst_key, enqueued_at
		FROM pending_media
		WHERE album_id = ?
		ORDER BY enqueued_at, rowid
	`, albumID)
	return out, err
}

func (s *Store) ClearPending(ctx context.Context, albumID string, burstKey string) error {
	if burstKey == "" {
		_, err := s.db.ExecContext(ctx, `DELETE FROM pending_media WHERE album_id = ?`, albumID)
		return err
	}
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM pending_media WHERE album_id = ? AND burst_key = ?
	`, albumID, burstKey)
	return err
}

// --- RetentionStore ---------------------------------------------------------

func (s *Store) ListExpiredAlbums(ctx context.Context, now time.Time) ([]album.Album, error) {
	var out []album.Album
	err := s.db.SelectContext(ctx, &out, `
		SELECT id, user_id, access_token, status, created_at, completed_at, expires_at
		FROM albums
		WHERE status = ? AND expires_at IS NOT NULL AND expires_at < ?
		ORDER BY created_at
	`, album.StatusCompleted, now)
	return out, err
}

// --- AuthzStore -------------------------------------------------------------

func (s *Store) UpsertAuthorization(ctx context.Context, auth authz.Authorization) (authz.Authorization, error) {
	if auth.ID == "" {
		auth.ID = uuid.NewString()
	}
	if auth.GrantedAt.IsZero() {
		auth.GrantedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO user_authorizations (id, user_id, plan, granted_at, expires_at, reminder_sent)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id) DO UPDATE SET
			plan = excluded.plan,
			granted_at = excluded.granted_at,
			expires_at = excluded.expires_at,
			reminder_sent = excluded.reminder_sent
	`, auth.ID, auth.UserID, auth.Plan, auth.GrantedAt, auth.ExpiresAt, auth.ReminderSent)
	if err != nil {
		return authz.Authorization{}, err
	}
	return s.GetAuthorization(ctx, auth.UserID)
}

func (s *Store) GetAuthorization(ctx context.Context, userID int64) (authz.Authorization, error) {
	var auth authz.Authorization
	err := s.db.GetContext(ctx, &auth, `
		SELECT id, user_id, plan, granted_at, expires_at, reminder_sent
		FROM user_authorizations
		WHERE user_id = ?
	`, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return authz.Authorization{}, storage.ErrNotFound
	}
	if err != nil {
		return authz.Authorization{}, err
	}
	return auth, nil
}

func (s *Store) DeleteAuthorization(ctx context.Context, userID int64) error {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM user_authorizations WHERE user_id = ?
	`, userID)
	if err != nil {
		return err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (s *Store) ListAuthorizations(ctx context.Context) ([]authz.Authorization, error) {
	var out []authz.Authorization
	err := s.db.SelectContext(ctx, &out, `
		SELECT id, user_id, plan, granted_at, expires_at, reminder_sent
		FROM user_authorizations
		ORDER BY user_id
	`)
	return out, err
}

func (s *Store) ListExpiringAuthorizations(ctx context.Context, within time.Duration, now time.Time) ([]authz.Authorization, error) {
	var out []authz.Authorization
	err := s.db.SelectContext(ctx, &out, `
		SELECT id, user_id, plan, granted_at, expires_at, reminder_sent
		FROM user_authorizations
		WHERE reminder_sent = 0 AND expires_at > ? AND expires_at < ?
		ORDER BY user_id
	`, now, now.Add(within))
	return out, err
}

func (s *Store) MarkReminderSent(ctx context.Context, userID int64) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE user_authorizations SET reminder_sent = 1 WHERE user_id = ?
	`, userID)
	if err != nil {
		return err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return storage.ErrNotFound
	}
	return nil
}

package storage

import (
	"context"
	"time"

	"github.com/albumforge/albumforge/internal/domain/album"
	"github.com/albumforge/albumforge/internal/domain/authz"
)

// AlbumStore persists albums and their committed media groups.
type AlbumStore interface {
	CreateAlbum(ctx context.Context, alb album.Album) (album.Album, error)
	GetAlbum(ctx context.Context, id string) (album.Album, error)
	GetActiveAlbum(ctx context.Context, userID int64) (album.Album, error)
	ListActiveAlbums(ctx context.Context) ([]album.Album, error)
	ListAlbumsByUser(ctx context.Context, userID int64) ([]album.Album, error)
	CompleteAlbum(ctx context.Context, id string, completedAt, expiresAt time.Time) (album.Album, error)
	DeleteAlbumCascade(ctx context.Context, id string) error

	CountGroups(ctx context.Context, albumID string) (int, error)
	ListGroups(ctx context.Context, albumID string) ([]album.Group, error)
	AppendGroup(ctx context.Context, grp album.Group) (album.Group, error)
}

// PendingStore is the durable write-through queue of uncommitted media.
type PendingStore interface {
	EnqueuePending(ctx context.Context, item album.PendingItem) (album.PendingItem, error)
	ListPending(ctx context.Context, albumID string) ([]album.PendingItem, error)
	ClearPending(ctx context.Context, albumID string, burstKey string) error
}

// RetentionStore surfaces expired completed albums for the sweeper.
type RetentionStore interface {
	ListExpiredAlbums(ctx context.Context, now time.Time) ([]album.Album, error)
}

// AuthzStore persists user authorization grants.
type AuthzStore interface {
	UpsertAuthorization(ctx context.Context, auth authz.Authorization) (authz.Authorization, error)
	GetAuthorization(ctx context.Context, userID int64) (authz.Authorization, error)
	DeleteAuthorization(ctx context.Context, userID int64) error
	ListAuthorizations(ctx context.Context) ([]authz.Authorization, error)
	ListExpiringAuthorizations(ctx context.Context, within time.Duration, now time.Time) ([]authz.Authorization, error)
	MarkReminderSent(ctx context.Context, userID int64) error
}

// Store bundles every persistence concern behind one gateway.
type Store interface {
	AlbumStore
	PendingStore
	RetentionStore
	AuthzStore
}

// Package album defines the core entities of the collection engine.
package album

import "time"

// Status tracks an album's lifecycle.
type Status string

const (
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
)

// Album is one collection session's output: an ordered series of media
// groups owned by a single user.
type Album struct {
	ID          string     `db:"id" json:"id"`
	UserID      int64      `db:"user_id" json:"user_id"`
	AccessToken string     `db:"access_token" json:"-"`
	Status      Status     `db:"status" json:"status"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
	CompletedAt *time.Time `db:"completed_at" json:"completed_at,omitempty"`
	ExpiresAt   *time.Time `db:"expires_at" json:"expires_at,omitempty"`
}

// MediaKind distinguishes the two media types the collector accepts.
type MediaKind string

const (
	KindPhoto MediaKind = "photo"
	KindVideo MediaKind = "video"
)

// MediaItem is one piece of media inside a committed group.
type MediaItem struct {
	ID        string    `db:"id" json:"id"`
	GroupID   string    `db:"group_id" json:"group_id"`
	Reference string    `db:"reference" json:"reference"`
	Kind      MediaKind `db:"kind" json:"kind"`
	Caption   string    `db:"caption" json:"caption,omitempty"`
	Position  int       `db:"position" json:"position"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Group is an ordered, committed batch of media items within an album. Its
// caption is the first non-empty item caption of the batch.
type Group struct {
	ID        string      `db:"id" json:"id"`
	AlbumID   string      `db:"album_id" json:"album_id"`
	Sequence  int         `db:"sequence" json:"sequence"`
	Caption   string      `db:"caption" json:"caption,omitempty"`
	CreatedAt time.Time   `db:"created_at" json:"created_at"`
	Items     []MediaItem `db:"-" json:"items"`
}

// PendingItem is a media event accepted but not yet committed into a group.
// Pending items survive restarts via the durable queue.
type PendingItem struct {
	ID         string    `db:"id" json:"id"`
	AlbumID    string    `db:"album_id" json:"album_id"`
	UserID     int64     `db:"user_id" json:"user_id"`
	Reference  string    `db:"reference" json:"reference"`
	Kind       MediaKind `db:"kind" json:"kind"`
	Caption    string    `db:"caption" json:"caption"`
	BurstKey   string    `db:"burst_key" json:"burst_key"`
	EnqueuedAt time.Time `db:"enqueued_at" json:"enqueued_at"`
}

// Progress summarizes the state of an active session for status reporting.
type Progress struct {
	AlbumID         string `json:"album_id"`
	CommittedGroups int    `json:"committed_groups"`
	CommittedItems  int    `json:"committed_items"`
	PendingItems    int    `json:"pending_items"`
	GroupLimit      int    `json:"group_limit"`
}

// ShareURL builds the public link for a completed album.
func (a *Album) ShareURL(baseURL string) string {
	return baseURL + "/album/" + a.ID + "?token=" + a.AccessToken
}

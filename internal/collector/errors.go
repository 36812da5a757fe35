package collector

import "errors"

var (
	// ErrSessionConflict is returned when the user already has an active session.
	ErrSessionConflict = errors.New("collector: session already active")

	// ErrNoActiveSession is returned when an operation needs a session the user
	// does not have and no active album exists to resume one from.
	ErrNoActiveSession = errors.New("collector: no active session")

	// ErrAlbumClosed is returned when a submission targets an album that is no
	// longer collecting.
	ErrAlbumClosed = errors.New("collector: album is closed")

	// ErrGroupLimitExceeded is returned when an album already holds the maximum
	// number of committed groups.
	ErrGroupLimitExceeded = errors.New("collector: group limit exceeded")

	// ErrEmptyAlbum is returned when a session is finished before any media was
	// committed. The session stays active.
	ErrEmptyAlbum = errors.New("collector: album has no media")
)

package collector

import (
	"context"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/albumforge/albumforge/internal/domain/album"
	"github.com/albumforge/albumforge/internal/storage"
	"github.com/albumforge/albumforge/internal/storage/memory"
	"github.com/albumforge/albumforge/pkg/logger"
)

type recordingNotifier struct {
	mu        sync.Mutex
	committed []album.Progress
	limited   []int
}

func (n *recordingNotifier) GroupCommitted(_ context.Context, _ int64, p album.Progress) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.committed = append(n.committed, p)
}

func (n *recordingNotifier) GroupLimitReached(_ context.Context, _ int64, limit int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.limited = append(n.limited, limit)
}

func (n *recordingNotifier) commits() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.committed)
}

func (n *recordingNotifier) limits() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.limited)
}

func newTestService(store storage.Store, notifier Notifier, debounce time.Duration) *Service {
	return New(store, notifier, Config{
		DebounceInterval: debounce,
		MaxGroups:        30,
		RetentionPeriod:  72 * time.Hour,
	}, logger.New("test", io.Discard, zerolog.Disabled))
}

func TestNewDefaultsNilCollaborators(t *testing.T) {
	svc := New(memory.New(), nil, Config{}, nil)

	// A nil logger must not blow up the first logging call.
	_, err := svc.StartSession(context.Background(), 1)
	require.NoError(t, err)
}

func TestStartSessionConflict(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(memory.New(), nil, time.Hour)

	_, err := svc.StartSession(ctx, 1)
	require.NoError(t, err)

	_, err = svc.StartSession(ctx, 1)
	assert.ErrorIs(t, err, ErrSessionConflict)

	_, err = svc.StartSession(ctx, 2)
	require.NoError(t, err)
}

func TestSubmitWithoutSession(t *testing.T) {
	svc := newTestService(memory.New(), nil, time.Hour)

	err := svc.SubmitMedia(context.Background(), 1, "ref", album.KindPhoto, "", "")
	assert.ErrorIs(t, err, ErrNoActiveSession)
}

func TestDebounceAggregatesBurstIntoOneOrderedGroup(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	notifier := &recordingNotifier{}
	svc := newTestService(store, notifier, 30*time.Millisecond)

	alb, err := svc.StartSession(ctx, 1)
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		require.NoError(t, svc.SubmitMedia(ctx, 1, fmt.Sprintf("ref-%d", i), album.KindPhoto, "", "burst-1"))
	}

	require.Eventually(t, func() bool { return notifier.commits() == 1 }, time.Second, 5*time.Millisecond)

	groups, err := store.ListGroups(ctx, alb.ID)
	require.NoError(t, err)
	require.Len(t, groups, 1)
	require.Len(t, groups[0].Items, 5)
	for i, item := range groups[0].Items {
		assert.Equal(t, fmt.Sprintf("ref-%d", i), item.Reference)
	}

	pending, err := store.ListPending(ctx, alb.ID)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestDebounceWindowExtendsOnNewSubmissions(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	notifier := &recordingNotifier{}
	svc := newTestService(store, notifier, 60*time.Millisecond)

	alb, err := svc.StartSession(ctx, 1)
	require.NoError(t, err)

	// Keep submitting inside the window; nothing may commit until it closes.
	for i := 0; i < 4; i++ {
		require.NoError(t, svc.SubmitMedia(ctx, 1, fmt.Sprintf("ref-%d", i), album.KindPhoto, "", ""))
		time.Sleep(25 * time.Millisecond)
		assert.Zero(t, notifier.commits())
	}

	require.Eventually(t, func() bool { return notifier.commits() == 1 }, time.Second, 5*time.Millisecond)

	groups, err := store.ListGroups(ctx, alb.ID)
	require.NoError(t, err)
	require.Len(t, groups, 1)
	assert.Len(t, groups[0].Items, 4)
}

func TestDistinctBurstKeysCommitSeparateGroups(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	notifier := &recordingNotifier{}
	svc := newTestService(store, notifier, 30*time.Millisecond)

	alb, err := svc.StartSession(ctx, 1)
	require.NoError(t, err)

	require.NoError(t, svc.SubmitMedia(ctx, 1, "a1", album.KindPhoto, "", "burst-a"))
	require.NoError(t, svc.SubmitMedia(ctx, 1, "b1", album.KindVideo, "", "burst-b"))
	require.NoError(t, svc.SubmitMedia(ctx, 1, "a2", album.KindPhoto, "", "burst-a"))

	require.Eventually(t, func() bool { return notifier.commits() == 2 }, time.Second, 5*time.Millisecond)

	groups, err := store.ListGroups(ctx, alb.ID)
	require.NoError(t, err)
	require.Len(t, groups, 2)

	sizes := map[int]bool{len(groups[0].Items): true, len(groups[1].Items): true}
	assert.True(t, sizes[1] && sizes[2])
}

func TestCaptionsCarryIntoCommittedGroup(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	notifier := &recordingNotifier{}
	svc := newTestService(store, notifier, 30*time.Millisecond)

	alb, err := svc.StartSession(ctx, 1)
	require.NoError(t, err)

	require.NoError(t, svc.SubmitMedia(ctx, 1, "a", album.KindPhoto, "", "burst-1"))
	require.NoError(t, svc.SubmitMedia(ctx, 1, "b", album.KindPhoto, "sunset over the pier", "burst-1"))
	require.NoError(t, svc.SubmitMedia(ctx, 1, "c", album.KindVideo, "last light", "burst-1"))

	require.Eventually(t, func() bool { return notifier.commits() == 1 }, time.Second, 5*time.Millisecond)

	groups, err := store.ListGroups(ctx, alb.ID)
	require.NoError(t, err)
	require.Len(t, groups, 1)

	// The group takes the first non-empty item caption; each item keeps its own.
	assert.Equal(t, "sunset over the pier", groups[0].Caption)
	require.Len(t, groups[0].Items, 3)
	assert.Empty(t, groups[0].Items[0].Caption)
	assert.Equal(t, "sunset over the pier", groups[0].Items[1].Caption)
	assert.Equal(t, "last light", groups[0].Items[2].Caption)
}

func TestPendingIsDurableBeforeCommit(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	svc := newTestService(store, nil, time.Hour)

	alb, err := svc.StartSession(ctx, 1)
	require.NoError(t, err)
	require.NoError(t, svc.SubmitMedia(ctx, 1, "ref-0", album.KindPhoto, "", ""))

	// SubmitMedia returned, so the item must already be in the durable queue
	// even though the debounce window is still open.
	pending, err := store.ListPending(ctx, alb.ID)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "ref-0", pending[0].Reference)
}

func TestRecoverRestoresPendingAsBuffer(t *testing.T) {
	ctx := context.Background()
	store := memory.New()

	// Simulate a previous run that crashed mid-window: active album with
	// durable pending items and no in-memory session.
	alb, err := store.CreateAlbum(ctx, album.Album{UserID: 1, AccessToken: "tok"})
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		_, err = store.EnqueuePending(ctx, album.PendingItem{
			AlbumID:   alb.ID,
			UserID:    1,
			Reference: fmt.Sprintf("ref-%d", i),
			Kind:      album.KindPhoto,
			BurstKey:  "burst-1",
		})
		require.NoError(t, err)
	}

	svc := newTestService(store, nil, 50*time.Millisecond)
	require.NoError(t, svc.Start(ctx))

	// Recovery rebuilds the buffer; nothing commits until the debounce window
	// for the restored burst elapses.
	groups, err := store.ListGroups(ctx, alb.ID)
	require.NoError(t, err)
	assert.Empty(t, groups)
	pending, err := store.ListPending(ctx, alb.ID)
	require.NoError(t, err)
	assert.Len(t, pending, 3)

	require.Eventually(t, func() bool {
		groups, err := store.ListGroups(ctx, alb.ID)
		return err == nil && len(groups) == 1
	}, time.Second, 5*time.Millisecond)

	groups, err = store.ListGroups(ctx, alb.ID)
	require.NoError(t, err)
	require.Len(t, groups, 1)
	assert.Len(t, groups[0].Items, 3)

	pending, err = store.ListPending(ctx, alb.ID)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestSubmitResumesSessionFromActiveAlbum(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	notifier := &recordingNotifier{}

	// An active album exists but no in-memory session does, as after a restart
	// where the first sign of life is a media event rather than a command.
	alb, err := store.CreateAlbum(ctx, album.Album{UserID: 1, AccessToken: "tok"})
	require.NoError(t, err)
	_, err = store.EnqueuePending(ctx, album.PendingItem{
		AlbumID:   alb.ID,
		UserID:    1,
		Reference: "ref-0",
		Kind:      album.KindPhoto,
		BurstKey:  "solo",
	})
	require.NoError(t, err)

	svc := newTestService(store, notifier, 30*time.Millisecond)
	require.NoError(t, svc.SubmitMedia(ctx, 1, "ref-1", album.KindPhoto, "", ""))

	require.Eventually(t, func() bool { return notifier.commits() == 1 }, time.Second, 5*time.Millisecond)

	groups, err := store.ListGroups(ctx, alb.ID)
	require.NoError(t, err)
	require.Len(t, groups, 1)
	require.Len(t, groups[0].Items, 2)
	assert.Equal(t, "ref-0", groups[0].Items[0].Reference)
	assert.Equal(t, "ref-1", groups[0].Items[1].Reference)
}

func TestRecoverSessionForSingleUser(t *testing.T) {
	ctx := context.Background()
	store := memory.New()

	alb, err := store.CreateAlbum(ctx, album.Album{UserID: 1, AccessToken: "tok"})
	require.NoError(t, err)

	svc := newTestService(store, nil, time.Hour)

	got, err := svc.RecoverSession(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, alb.ID, got.ID)

	// The rebuilt session blocks a second start like a live one would.
	_, err = svc.StartSession(ctx, 1)
	assert.ErrorIs(t, err, ErrSessionConflict)

	_, err = svc.RecoverSession(ctx, 2)
	assert.ErrorIs(t, err, ErrNoActiveSession)
}

func TestSubmitToCompletedAlbumFails(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	svc := newTestService(store, nil, time.Hour)

	alb, err := svc.StartSession(ctx, 1)
	require.NoError(t, err)

	// The album closes underneath the live session.
	now := time.Now().UTC()
	_, err = store.CompleteAlbum(ctx, alb.ID, now, now.Add(time.Hour))
	require.NoError(t, err)

	err = svc.SubmitMedia(ctx, 1, "a", album.KindPhoto, "", "")
	assert.ErrorIs(t, err, ErrAlbumClosed)

	// The dead session is gone; with no active album left, the next submit
	// reports no session rather than a closed album.
	err = svc.SubmitMedia(ctx, 1, "b", album.KindPhoto, "", "")
	assert.ErrorIs(t, err, ErrNoActiveSession)
}

func TestGroupLimitRejectsSubmissions(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	svc := New(store, nil, Config{
		DebounceInterval: time.Hour,
		MaxGroups:        1,
		RetentionPeriod:  72 * time.Hour,
	}, logger.New("test", io.Discard, zerolog.Disabled))

	alb, err := svc.StartSession(ctx, 1)
	require.NoError(t, err)
	_, err = store.AppendGroup(ctx, album.Group{
		AlbumID: alb.ID,
		Items:   []album.MediaItem{{Reference: "a", Kind: album.KindPhoto}},
	})
	require.NoError(t, err)

	err = svc.SubmitMedia(ctx, 1, "b", album.KindPhoto, "", "")
	assert.ErrorIs(t, err, ErrGroupLimitExceeded)
}

func TestGroupLimitLeavesBurstBuffered(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	notifier := &recordingNotifier{}
	svc := New(store, notifier, Config{
		DebounceInterval: 30 * time.Millisecond,
		MaxGroups:        1,
		RetentionPeriod:  72 * time.Hour,
	}, logger.New("test", io.Discard, zerolog.Disabled))

	alb, err := svc.StartSession(ctx, 1)
	require.NoError(t, err)

	// Two bursts accepted while the album still has room; only one can land.
	require.NoError(t, svc.SubmitMedia(ctx, 1, "a1", album.KindPhoto, "", "burst-a"))
	require.NoError(t, svc.SubmitMedia(ctx, 1, "a2", album.KindPhoto, "", "burst-a"))
	require.NoError(t, svc.SubmitMedia(ctx, 1, "b1", album.KindPhoto, "", "burst-b"))
	require.NoError(t, svc.SubmitMedia(ctx, 1, "b2", album.KindPhoto, "", "burst-b"))

	require.Eventually(t, func() bool { return notifier.commits() == 1 }, time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return notifier.limits() == 1 }, time.Second, 5*time.Millisecond)

	groups, err := store.ListGroups(ctx, alb.ID)
	require.NoError(t, err)
	require.Len(t, groups, 1)
	require.Len(t, groups[0].Items, 2)

	// The rejected burst stays in the durable queue, untouched.
	pending, err := store.ListPending(ctx, alb.ID)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, pending[0].BurstKey, pending[1].BurstKey)
	assert.NotEqual(t, groups[0].Items[0].Reference, pending[0].Reference)
}

func TestFinishFlushesPendingAndCompletes(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	svc := newTestService(store, nil, time.Hour)

	alb, err := svc.StartSession(ctx, 1)
	require.NoError(t, err)
	require.NoError(t, svc.SubmitMedia(ctx, 1, "a", album.KindPhoto, "", ""))
	require.NoError(t, svc.SubmitMedia(ctx, 1, "b", album.KindVideo, "", ""))

	done, err := svc.FinishSession(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, alb.ID, done.ID)
	assert.Equal(t, album.StatusCompleted, done.Status)
	require.NotNil(t, done.ExpiresAt)

	groups, err := store.ListGroups(ctx, alb.ID)
	require.NoError(t, err)
	require.Len(t, groups, 1)
	assert.Len(t, groups[0].Items, 2)

	_, err = svc.FinishSession(ctx, 1)
	assert.ErrorIs(t, err, ErrNoActiveSession)

	// A finished user can start over.
	_, err = svc.StartSession(ctx, 1)
	require.NoError(t, err)
}

func TestFinishEmptySessionKeepsItActive(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	svc := newTestService(store, nil, time.Hour)

	_, err := svc.StartSession(ctx, 1)
	require.NoError(t, err)

	_, err = svc.FinishSession(ctx, 1)
	assert.ErrorIs(t, err, ErrEmptyAlbum)

	// Session survived the failed finish.
	require.NoError(t, svc.SubmitMedia(ctx, 1, "a", album.KindPhoto, "", ""))
	_, err = svc.FinishSession(ctx, 1)
	require.NoError(t, err)
}

func TestCancelDiscardsEverything(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	svc := newTestService(store, nil, time.Hour)

	alb, err := svc.StartSession(ctx, 1)
	require.NoError(t, err)
	require.NoError(t, svc.SubmitMedia(ctx, 1, "a", album.KindPhoto, "", ""))

	require.NoError(t, svc.CancelSession(ctx, 1))

	_, err = store.GetAlbum(ctx, alb.ID)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	err = svc.SubmitMedia(ctx, 1, "b", album.KindPhoto, "", "")
	assert.ErrorIs(t, err, ErrNoActiveSession)
}

func TestProgressReportsCommittedAndPending(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	notifier := &recordingNotifier{}
	svc := newTestService(store, notifier, 30*time.Millisecond)

	_, err := svc.StartSession(ctx, 1)
	require.NoError(t, err)

	require.NoError(t, svc.SubmitMedia(ctx, 1, "a", album.KindPhoto, "", "burst-1"))
	require.NoError(t, svc.SubmitMedia(ctx, 1, "b", album.KindPhoto, "", "burst-1"))
	require.Eventually(t, func() bool { return notifier.commits() == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, svc.SubmitMedia(ctx, 1, "c", album.KindVideo, "", "burst-2"))

	progress, err := svc.Progress(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, progress.CommittedGroups)
	assert.Equal(t, 2, progress.CommittedItems)
	assert.Equal(t, 1, progress.PendingItems)
	assert.Equal(t, 30, progress.GroupLimit)
}

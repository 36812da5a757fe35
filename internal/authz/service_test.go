package authz

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domauthz "github.com/albumforge/albumforge/internal/domain/authz"
	"github.com/albumforge/albumforge/internal/storage/memory"
	"github.com/albumforge/albumforge/pkg/logger"
)

func newTestService(admins ...int64) *Service {
	return New(memory.New(), admins, logger.New("test", io.Discard, zerolog.Disabled))
}

func TestCheckWithoutGrant(t *testing.T) {
	svc := newTestService()
	err := svc.Check(context.Background(), 1)
	assert.ErrorIs(t, err, ErrNotAuthorized)
}

func TestAdminBypassesGrants(t *testing.T) {
	svc := newTestService(99)
	require.NoError(t, svc.Check(context.Background(), 99))
	assert.True(t, svc.IsAdmin(99))
	assert.False(t, svc.IsAdmin(1))
}

func TestGrantCheckRevoke(t *testing.T) {
	ctx := context.Background()
	svc := newTestService()

	auth, err := svc.Grant(ctx, 1, domauthz.PlanMonthly)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(30*24*time.Hour), auth.ExpiresAt, time.Minute)

	require.NoError(t, svc.Check(ctx, 1))

	active, err := svc.ListActive(ctx)
	require.NoError(t, err)
	assert.Len(t, active, 1)

	require.NoError(t, svc.Revoke(ctx, 1))
	assert.ErrorIs(t, svc.Check(ctx, 1), ErrNotAuthorized)
	assert.ErrorIs(t, svc.Revoke(ctx, 1), ErrNotAuthorized)
}

func TestGrantRejectsUnknownPlan(t *testing.T) {
	svc := newTestService()
	_, err := svc.Grant(context.Background(), 1, domauthz.Plan("forever"))
	require.Error(t, err)
}

func TestRenewalResetsReminder(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	svc := New(store, nil, logger.New("test", io.Discard, zerolog.Disabled))

	_, err := svc.Grant(ctx, 1, domauthz.PlanMonthly)
	require.NoError(t, err)
	require.NoError(t, svc.MarkReminderSent(ctx, 1))

	renewed, err := svc.Grant(ctx, 1, domauthz.PlanQuarterly)
	require.NoError(t, err)
	assert.False(t, renewed.ReminderSent)
	assert.Equal(t, domauthz.PlanQuarterly, renewed.Plan)
}

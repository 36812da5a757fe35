// Package authz manages time-bounded user access grants.
package authz

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/albumforge/albumforge/internal/domain/authz"
	"github.com/albumforge/albumforge/internal/storage"
	"github.com/albumforge/albumforge/pkg/logger"
)

// ErrNotAuthorized is returned when the user has no active grant.
var ErrNotAuthorized = errors.New("authz: user not authorized")

// Service answers authorization questions and manages grants. Administrators
// listed at construction bypass grant checks entirely.
type Service struct {
	store  storage.AuthzStore
	log    *logger.Logger
	admins map[int64]bool
}

func New(store storage.AuthzStore, adminIDs []int64, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("authz")
	}
	admins := make(map[int64]bool, len(adminIDs))
	for _, id := range adminIDs {
		admins[id] = true
	}
	return &Service{store: store, log: log, admins: admins}
}

// IsAdmin reports whether the user is a configured administrator.
func (s *Service) IsAdmin(userID int64) bool {
	return s.admins[userID]
}

// Check reports whether the user may use the collector right now.
func (s *Service) Check(ctx context.Context, userID int64) error {
	if s.IsAdmin(userID) {
		return nil
	}
	auth, err := s.store.GetAuthorization(ctx, userID)
	if errors.Is(err, storage.ErrNotFound) {
		return ErrNotAuthorized
	}
	if err != nil {
		return err
	}
	if !auth.Active(time.Now().UTC()) {
		return ErrNotAuthorized
	}
	return nil
}

// Grant gives the user access for the plan's duration, replacing any earlier
// grant. Renewing resets the expiry reminder.
func (s *Service) Grant(ctx context.Context, userID int64, plan authz.Plan) (authz.Authorization, error) {
	span, ok := plan.Duration()
	if !ok {
		return authz.Authorization{}, fmt.Errorf("authz: unknown plan %q", plan)
	}
	now := time.Now().UTC()
	auth, err := s.store.UpsertAuthorization(ctx, authz.Authorization{
		UserID:       userID,
		Plan:         plan,
		GrantedAt:    now,
		ExpiresAt:    now.Add(span),
		ReminderSent: false,
	})
	if err != nil {
		return authz.Authorization{}, err
	}
	s.log.WithField("user_id", fmt.Sprint(userID)).WithField("plan", string(plan)).Info("access granted")
	return auth, nil
}

// Revoke removes the user's grant immediately.
func (s *Service) Revoke(ctx context.Context, userID int64) error {
	err := s.store.DeleteAuthorization(ctx, userID)
	if errors.Is(err, storage.ErrNotFound) {
		return ErrNotAuthorized
	}
	if err != nil {
		return err
	}
	s.log.WithField("user_id", fmt.Sprint(userID)).Info("access revoked")
	return nil
}

// ListActive returns all grants that still cover the current instant.
func (s *Service) ListActive(ctx context.Context) ([]authz.Authorization, error) {
	all, err := s.store.ListAuthorizations(ctx)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	active := all[:0]
	for _, auth := range all {
		if auth.Active(now) {
			active = append(active, auth)
		}
	}
	return active, nil
}

// ListExpiring returns grants ending within the window that have not been
// reminded yet.
func (s *Service) ListExpiring(ctx context.Context, within time.Duration) ([]authz.Authorization, error) {
	return s.store.ListExpiringAuthorizations(ctx, within, time.Now().UTC())
}

// MarkReminderSent records that the user was warned about expiry.
func (s *Service) MarkReminderSent(ctx context.Context, userID int64) error {
	return s.store.MarkReminderSent(ctx, userID)
}

package transport

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/albumforge/albumforge/internal/authz"
	"github.com/albumforge/albumforge/internal/collector"
	"github.com/albumforge/albumforge/internal/domain/album"
	domauthz "github.com/albumforge/albumforge/internal/domain/authz"
	"github.com/albumforge/albumforge/pkg/logger"
)

// Router drives the collection engine from inbound chat events.
type Router struct {
	engine     *collector.Service
	access     *authz.Service
	dispatcher *Dispatcher
	gateway    Gateway
	log        *logger.Logger
}

func NewRouter(engine *collector.Service, access *authz.Service, dispatcher *Dispatcher, gateway Gateway, log *logger.Logger) *Router {
	if log == nil {
		log = logger.NewDefault("transport")
	}
	return &Router{
		engine:     engine,
		access:     access,
		dispatcher: dispatcher,
		gateway:    gateway,
		log:        log,
	}
}

// Handle processes one inbound event. The reply always goes back over the
// gateway; the returned error reports delivery-independent failures.
func (r *Router) Handle(ctx context.Context, ev Event) error {
	if err := r.access.Check(ctx, ev.UserID); err != nil {
		if errors.Is(err, authz.ErrNotAuthorized) {
			return r.reply(ctx, ev.UserID, "You are not authorized. Contact an administrator for access.")
		}
		return err
	}

	switch ev.Kind {
	case EventMedia:
		return r.handleMedia(ctx, ev)
	case EventCommand:
		return r.handleCommand(ctx, ev)
	default:
		return fmt.Errorf("transport: unknown event kind %q", ev.Kind)
	}
}

func (r *Router) handleMedia(ctx context.Context, ev Event) error {
	kind := album.KindPhoto
	if ev.MediaKind == string(album.KindVideo) {
		kind = album.KindVideo
	}
	err := r.engine.SubmitMedia(ctx, ev.UserID, ev.Reference, kind, ev.Caption, ev.BurstKey)
	switch {
	case errors.Is(err, collector.ErrNoActiveSession):
		return r.reply(ctx, ev.UserID, "No active album. Send /start first.")
	case errors.Is(err, collector.ErrAlbumClosed):
		return r.reply(ctx, ev.UserID, "That album is already published. Send /start for a new one.")
	case errors.Is(err, collector.ErrGroupLimitExceeded):
		return r.reply(ctx, ev.UserID, "This album is full. Use /finish to publish it.")
	case err != nil:
		r.log.WithError(err).WithField("user_id", fmt.Sprint(ev.UserID)).Error("media submit failed")
		return r.reply(ctx, ev.UserID, "Could not save that. Try again.")
	}
	return nil
}

func (r *Router) handleCommand(ctx context.Context, ev Event) error {
	switch ev.Command {
	case "start":
		_, err := r.engine.StartSession(ctx, ev.UserID)
		if errors.Is(err, collector.ErrSessionConflict) {
			return r.reply(ctx, ev.UserID, "You already have an album in progress. /finish or /cancel it first.")
		}
		if err != nil {
			return err
		}
		return r.reply(ctx, ev.UserID, "Album started. Send photos or videos, then /finish.")

	case "finish":
		alb, err := r.engine.FinishSession(ctx, ev.UserID)
		switch {
		case errors.Is(err, collector.ErrNoActiveSession):
			return r.reply(ctx, ev.UserID, "No active album. Send /start first.")
		case errors.Is(err, collector.ErrEmptyAlbum):
			return r.reply(ctx, ev.UserID, "Your album is empty. Send some media before finishing.")
		case err != nil:
			return err
		}
		r.dispatcher.SessionFinished(ctx, ev.UserID, alb)
		return nil

	case "cancel":
		err := r.engine.CancelSession(ctx, ev.UserID)
		if errors.Is(err, collector.ErrNoActiveSession) {
			return r.reply(ctx, ev.UserID, "Nothing to cancel.")
		}
		if err != nil {
			return err
		}
		return r.reply(ctx, ev.UserID, "Album discarded.")

	case "status":
		progress, err := r.engine.Progress(ctx, ev.UserID)
		if errors.Is(err, collector.ErrNoActiveSession) {
			return r.reply(ctx, ev.UserID, "No active album. Send /start first.")
		}
		if err != nil {
			return err
		}
		return r.reply(ctx, ev.UserID, fmt.Sprintf("Groups: %d/%d, items saved: %d, waiting: %d.",
			progress.CommittedGroups, progress.GroupLimit, progress.CommittedItems, progress.PendingItems))

	case "grant":
		return r.handleGrant(ctx, ev)

	default:
		return r.reply(ctx, ev.UserID, "Unknown command. Try /start, /status, /finish or /cancel.")
	}
}

func (r *Router) handleGrant(ctx context.Context, ev Event) error {
	if !r.access.IsAdmin(ev.UserID) {
		return r.reply(ctx, ev.UserID, "Unknown command. Try /start, /status, /finish or /cancel.")
	}
	if len(ev.Args) < 2 {
		return r.reply(ctx, ev.UserID, "Usage: /grant <user_id> <1month|3months>")
	}
	target, err := strconv.ParseInt(ev.Args[0], 10, 64)
	if err != nil {
		return r.reply(ctx, ev.UserID, "Usage: /grant <user_id> <1month|3months>")
	}
	auth, err := r.access.Grant(ctx, target, domauthz.Plan(ev.Args[1]))
	if err != nil {
		return r.reply(ctx, ev.UserID, "Usage: /grant <user_id> <1month|3months>")
	}
	return r.reply(ctx, ev.UserID, fmt.Sprintf("Granted %s access to user %d until %s.",
		auth.Plan, target, auth.ExpiresAt.Format("2006-01-02")))
}

func (r *Router) reply(ctx context.Context, userID int64, text string) error {
	return r.gateway.SendMessage(ctx, userID, text)
}

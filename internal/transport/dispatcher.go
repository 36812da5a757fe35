package transport

import (
	"context"
	"fmt"

	"github.com/albumforge/albumforge/internal/collector"
	"github.com/albumforge/albumforge/internal/domain/album"
	"github.com/albumforge/albumforge/pkg/logger"
)

// Dispatcher turns engine notifications into chat messages. Delivery failures
// are logged, never propagated: losing a progress message must not fail a
// commit.
type Dispatcher struct {
	gateway       Gateway
	qr            QREncoder
	publicBaseURL string
	log           *logger.Logger
}

var _ collector.Notifier = (*Dispatcher)(nil)

// NewDispatcher creates a Dispatcher. The QR encoder may be nil; share links
// are then sent as plain text only.
func NewDispatcher(gateway Gateway, qr QREncoder, publicBaseURL string, log *logger.Logger) *Dispatcher {
	if log == nil {
		log = logger.NewDefault("transport")
	}
	return &Dispatcher{gateway: gateway, qr: qr, publicBaseURL: publicBaseURL, log: log}
}

func (d *Dispatcher) GroupCommitted(ctx context.Context, userID int64, progress album.Progress) {
	text := fmt.Sprintf("Saved group %d of %d (%d items so far). Send more media or /finish.",
		progress.CommittedGroups, progress.GroupLimit, progress.CommittedItems)
	d.send(ctx, userID, text)
}

func (d *Dispatcher) GroupLimitReached(ctx context.Context, userID int64, limit int) {
	d.send(ctx, userID, fmt.Sprintf("This album is full (%d groups). Use /finish to publish it.", limit))
}

// SessionFinished sends the user their album's share link, as a QR photo when
// both the encoder and a photo-capable gateway are available.
func (d *Dispatcher) SessionFinished(ctx context.Context, userID int64, alb album.Album) {
	shareURL := alb.ShareURL(d.publicBaseURL)
	caption := "Your album is ready: " + shareURL

	if pg, ok := d.gateway.(PhotoGateway); ok && d.qr != nil {
		code, err := d.qr.Encode(shareURL, 256)
		if err == nil {
			if err := pg.SendPhoto(ctx, userID, caption, code); err == nil {
				return
			}
			d.log.WithField("user_id", fmt.Sprint(userID)).Warn("qr delivery failed, falling back to text")
		} else {
			d.log.WithError(err).Warn("qr encoding failed")
		}
	}
	d.send(ctx, userID, caption)
}

// ExpiryReminder warns the user their access ends soon.
func (d *Dispatcher) ExpiryReminder(ctx context.Context, userID int64) {
	d.send(ctx, userID, "Your access expires soon. Renew to keep creating albums.")
}

func (d *Dispatcher) send(ctx context.Context, userID int64, text string) {
	if err := d.gateway.SendMessage(ctx, userID, text); err != nil {
		d.log.WithError(err).WithField("user_id", fmt.Sprint(userID)).Warn("chat delivery failed")
	}
}

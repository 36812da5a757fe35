package transport

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"github.com/albumforge/albumforge/internal/domain/album"
	"github.com/albumforge/albumforge/pkg/logger"
)

type photoGateway struct {
	fakeGateway
	photos   int
	photoErr error
}

func (g *photoGateway) SendPhoto(_ context.Context, _ int64, caption string, _ []byte) error {
	if g.photoErr != nil {
		return g.photoErr
	}
	g.photos++
	g.messages = append(g.messages, caption)
	return nil
}

type fakeQR struct{ err error }

func (q *fakeQR) Encode(string, int) ([]byte, error) {
	if q.err != nil {
		return nil, q.err
	}
	return []byte("qr-bytes"), nil
}

func TestSessionFinishedSendsQRPhoto(t *testing.T) {
	log := logger.New("test", io.Discard, zerolog.Disabled)
	gateway := &photoGateway{}
	d := NewDispatcher(gateway, &fakeQR{}, "http://example.com", log)

	d.SessionFinished(context.Background(), 1, album.Album{ID: "alb-1", AccessToken: "tok"})

	assert.Equal(t, 1, gateway.photos)
	assert.Contains(t, gateway.last(), "http://example.com/album/alb-1?token=tok")
}

func TestSessionFinishedFallsBackToText(t *testing.T) {
	log := logger.New("test", io.Discard, zerolog.Disabled)

	// No QR encoder at all.
	plain := &fakeGateway{}
	NewDispatcher(plain, nil, "http://example.com", log).
		SessionFinished(context.Background(), 1, album.Album{ID: "a", AccessToken: "t"})
	assert.Contains(t, plain.last(), "/album/a?token=t")

	// Encoder fails.
	gateway := &photoGateway{}
	NewDispatcher(gateway, &fakeQR{err: errors.New("boom")}, "http://example.com", log).
		SessionFinished(context.Background(), 1, album.Album{ID: "b", AccessToken: "t"})
	assert.Zero(t, gateway.photos)
	assert.Contains(t, gateway.last(), "/album/b?token=t")
}

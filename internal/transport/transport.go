// Package transport connects the collection engine to a chat backend. The
// backend itself stays behind the Gateway interface; this package only deals
// in events and replies.
package transport

import "context"

// Gateway delivers outbound messages to chat users.
type Gateway interface {
	SendMessage(ctx context.Context, userID int64, text string) error
}

// PhotoGateway is implemented by backends that can deliver images. Gateways
// without it fall back to plain text.
type PhotoGateway interface {
	SendPhoto(ctx context.Context, userID int64, caption string, photo []byte) error
}

// QREncoder renders a URL as a QR code image.
type QREncoder interface {
	Encode(url string, size int) ([]byte, error)
}

// EventKind classifies inbound chat events.
type EventKind string

const (
	EventCommand EventKind = "command"
	EventMedia   EventKind = "media"
)

// Event is one inbound chat update, already stripped of backend specifics.
type Event struct {
	Kind    EventKind
	UserID  int64
	Command string
	Args    []string

	// Media fields, set when Kind is EventMedia.
	Reference string
	MediaKind string
	Caption   string
	BurstKey  string
}

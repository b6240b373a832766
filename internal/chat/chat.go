// Package chat defines the messaging-platform boundary. The platform
// client itself (transport, rate limiting, rich-text handling) lives
// outside this system; the orchestrator only sees these interfaces.
package chat

import (
	"context"
	"time"
)

// Message is one inbound message from the platform.
type Message struct {
	ID        string // platform-unique id, used for deduplication
	Author    string // stable identity of the sender
	Name      string // display name of the sender
	ChannelID string // reply target: thread or DM channel
	Text      string
	IsDM      bool
	CreatedAt time.Time
}

// Feed polls the platform for inbound messages. The cursor is an opaque
// platform marker; the returned cursor resumes after the last message.
type Feed interface {
	Poll(ctx context.Context, cursor string) ([]Message, string, error)
}

// Messenger delivers outbound notifications.
type Messenger interface {
	// Reply posts a public reply in the channel a message came from.
	Reply(ctx context.Context, channelID, text string) error
	// DM sends a private message to an identity.
	DM(ctx context.Context, identity, text string) error
}

// MapPoster is implemented by messengers whose platform can attach a
// rendered board image to a reply. Plain-text messengers just get the
// text.
type MapPoster interface {
	ReplyWithMap(ctx context.Context, channelID, text, svg string) error
}

// NoopMessenger discards all outbound messages. Used in tests and when
// running without a platform connection.
type NoopMessenger struct{}

func (NoopMessenger) Reply(context.Context, string, string) error { return nil }
func (NoopMessenger) DM(context.Context, string, string) error    { return nil }

// EmptyFeed never returns messages.
type EmptyFeed struct{}

func (EmptyFeed) Poll(_ context.Context, cursor string) ([]Message, string, error) {
	return nil, cursor, nil
}

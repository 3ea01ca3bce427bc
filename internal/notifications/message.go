// Package notifications routes fresh notifications to the configured
// delivery channels.
package notifications

import (
	"context"

	"moodle-herald/internal/domain"
)

// Message is the channel-agnostic payload handed to senders.
type Message struct {
	Subject string
	Body    string // Markdown
	Summary string // optional AI summary, empty when disabled or failed
	Sender  domain.SenderIdentity
}

// Sender delivers messages to one channel. Implementations must be
// independent of each other: a sender failure is isolated by the Dispatcher
// and must not leak shared state to sibling senders.
type Sender interface {
	Type() domain.ChannelType
	// Enabled reports whether this channel is configured for delivery.
	// Disabled senders are skipped entirely.
	Enabled() bool
	// RequiresSender reports whether the channel renders the sender
	// identity; only then is a Moodle user lookup worth the round trip.
	RequiresSender() bool
	Send(ctx context.Context, msg Message) error
}

// UserResolver resolves a Moodle user id to a display identity.
type UserResolver interface {
	ResolveUser(ctx context.Context, id int64) (*domain.SenderIdentity, error)
}

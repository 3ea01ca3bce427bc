package notifications

import (
	"context"
	"log/slog"
	"time"

	"moodle-herald/internal/domain"
)

// Dispatcher fans one notification out to every enabled sender. Sender
// failures are logged and isolated: one channel failing never prevents the
// others from running, and no error is returned to the poll loop.
type Dispatcher struct {
	senders       []Sender
	resolver      UserResolver
	defaultSender domain.SenderIdentity
}

// NewDispatcher creates a dispatcher. defaultSender is the placeholder
// identity used when a notification carries no sender id or the lookup
// fails; it comes from configuration, not from a hardcoded constant.
func NewDispatcher(resolver UserResolver, defaultSender domain.SenderIdentity, senders ...Sender) *Dispatcher {
	return &Dispatcher{
		senders:       senders,
		resolver:      resolver,
		defaultSender: defaultSender,
	}
}

// Dispatch delivers the notification to all enabled channels and returns the
// channels that accepted it. With no channel enabled the call is a logged
// no-op. The sender identity is resolved at most once per call and never
// cached across calls.
func (d *Dispatcher) Dispatch(ctx context.Context, n domain.Notification, body, summary string) []domain.ChannelType {
	var (
		enabled   int
		delivered []domain.ChannelType
		resolved  *domain.SenderIdentity
	)

	for _, sender := range d.senders {
		if !sender.Enabled() {
			continue
		}
		enabled++

		msg := Message{
			Subject: n.Subject,
			Body:    body,
			Summary: summary,
			Sender:  d.defaultSender,
		}
		if sender.RequiresSender() {
			if resolved == nil {
				identity := d.resolveSender(ctx, n.SenderID)
				resolved = &identity
			}
			msg.Sender = *resolved
		}

		start := time.Now()
		if err := sender.Send(ctx, msg); err != nil {
			slog.Error("failed to send notification",
				"channel_type", sender.Type(),
				"notification_id", n.ID,
				"error", err,
			)
			recordNotificationSent(string(sender.Type()), "failed")
			continue
		}

		recordNotificationSent(string(sender.Type()), "success")
		recordNotificationDuration(string(sender.Type()), time.Since(start))
		delivered = append(delivered, sender.Type())

		slog.Debug("notification sent",
			"channel_type", sender.Type(),
			"notification_id", n.ID,
		)
	}

	if enabled == 0 {
		slog.Info("no notification channel enabled, nothing delivered", "notification_id", n.ID)
	}

	return delivered
}

// resolveSender looks the sender up in Moodle, falling back to the
// configured default identity. Resolution failure must never suppress
// delivery.
func (d *Dispatcher) resolveSender(ctx context.Context, senderID *int64) domain.SenderIdentity {
	if senderID == nil || d.resolver == nil {
		return d.defaultSender
	}

	identity, err := d.resolver.ResolveUser(ctx, *senderID)
	if err != nil {
		slog.Warn("sender resolution failed, using default identity",
			"sender_id", *senderID,
			"error", err,
		)
		return d.defaultSender
	}

	return *identity
}

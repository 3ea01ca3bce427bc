// Package history provides the optional delivery journal: an append-only
// audit log of forwarded notifications. The journal is written after
// dispatch and is never read back during polling, so it does not change the
// in-memory cursor semantics or the at-least-once restart behavior.
package history

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Delivery is one journal entry.
type Delivery struct {
	ID             uuid.UUID
	NotificationID int64
	Subject        string
	Verdict        string
	Channels       []string
	CreatedAt      time.Time
}

// Repository defines journal data access.
type Repository interface {
	// RecordDelivery appends a delivery. The implementation assigns ID and
	// CreatedAt if unset.
	RecordDelivery(ctx context.Context, d *Delivery) error

	// ListRecent returns the newest deliveries, most recent first.
	ListRecent(ctx context.Context, limit int) ([]Delivery, error)
}

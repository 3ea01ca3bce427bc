package poller

import (
	"log/slog"

	"moodle-herald/internal/domain"
)

// Verdict classifies the outcome of one completed fetch against the cursor.
type Verdict string

const (
	// VerdictAbsent: the fetch returned nothing, or a notification that
	// cannot be ordered (missing id).
	VerdictAbsent Verdict = "absent"
	// VerdictFirst: first classifiable notification since startup.
	VerdictFirst Verdict = "first"
	// VerdictNew: the notification is newer than anything delivered so far.
	VerdictNew Verdict = "new"
	// VerdictStale: already delivered, or older than the cursor.
	VerdictStale Verdict = "stale"
)

// ShouldDispatch reports whether the verdict triggers delivery.
func (v Verdict) ShouldDispatch() bool {
	return v == VerdictFirst || v == VerdictNew
}

// Cursor tracks the highest notification id delivered so far for a single
// polling identity. It lives only in memory: after a restart the next fetch
// classifies as First again and the current latest notification is
// re-delivered. Delivery is at-least-once across restarts by design.
//
// Cursor is not safe for concurrent use; the poll loop serializes cycles.
type Cursor struct {
	lastSeen int64
	seen     bool
}

// NewCursor returns an empty cursor.
func NewCursor() *Cursor {
	return &Cursor{}
}

// Classify orders n against the cursor and advances it on First/New.
// The cursor never moves backwards and never moves on Stale or Absent.
func (c *Cursor) Classify(n *domain.Notification) Verdict {
	if n == nil {
		return VerdictAbsent
	}
	if n.ID <= 0 {
		slog.Warn("notification has no usable id, ignoring", "subject", n.Subject)
		return VerdictAbsent
	}

	switch {
	case !c.seen:
		c.lastSeen = n.ID
		c.seen = true
		return VerdictFirst
	case n.ID > c.lastSeen:
		c.lastSeen = n.ID
		return VerdictNew
	default:
		return VerdictStale
	}
}

// LastSeen returns the cursor position; ok is false before the first
// classified fetch.
func (c *Cursor) LastSeen() (id int64, ok bool) {
	return c.lastSeen, c.seen
}

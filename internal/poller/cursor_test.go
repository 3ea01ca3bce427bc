package poller

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"moodle-herald/internal/domain"
)

func TestCursor_Classify(t *testing.T) {
	c := NewCursor()

	// Nothing fetched yet.
	assert.Equal(t, VerdictAbsent, c.Classify(nil))
	_, ok := c.LastSeen()
	assert.False(t, ok)

	// First classifiable notification after startup.
	assert.Equal(t, VerdictFirst, c.Classify(&domain.Notification{ID: 5}))
	last, ok := c.LastSeen()
	assert.True(t, ok)
	assert.Equal(t, int64(5), last)

	// Same id again: already delivered.
	assert.Equal(t, VerdictStale, c.Classify(&domain.Notification{ID: 5}))

	// Older than the cursor: stale, cursor does not move backwards.
	assert.Equal(t, VerdictStale, c.Classify(&domain.Notification{ID: 3}))
	last, _ = c.LastSeen()
	assert.Equal(t, int64(5), last)

	// Newer: dispatch and advance.
	assert.Equal(t, VerdictNew, c.Classify(&domain.Notification{ID: 7}))
	last, _ = c.LastSeen()
	assert.Equal(t, int64(7), last)

	// An empty fetch never moves the cursor.
	assert.Equal(t, VerdictAbsent, c.Classify(nil))
	last, _ = c.LastSeen()
	assert.Equal(t, int64(7), last)
}

func TestCursor_UnusableID(t *testing.T) {
	c := NewCursor()

	assert.Equal(t, VerdictAbsent, c.Classify(&domain.Notification{ID: 0, Subject: "broken"}))
	assert.Equal(t, VerdictAbsent, c.Classify(&domain.Notification{ID: -1}))
	_, ok := c.LastSeen()
	assert.False(t, ok)

	// A later valid notification is still the first one.
	assert.Equal(t, VerdictFirst, c.Classify(&domain.Notification{ID: 9}))
}

func TestCursor_RestartRedelivers(t *testing.T) {
	c := NewCursor()
	assert.Equal(t, VerdictFirst, c.Classify(&domain.Notification{ID: 12}))

	// A fresh cursor after restart classifies the same notification as
	// First again: delivery is at-least-once across restarts.
	restarted := NewCursor()
	assert.Equal(t, VerdictFirst, restarted.Classify(&domain.Notification{ID: 12}))
}

func TestVerdict_ShouldDispatch(t *testing.T) {
	assert.True(t, VerdictFirst.ShouldDispatch())
	assert.True(t, VerdictNew.ShouldDispatch())
	assert.False(t, VerdictStale.ShouldDispatch())
	assert.False(t, VerdictAbsent.ShouldDispatch())
}

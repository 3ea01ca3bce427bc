// Package poller implements the fetch, classify and dispatch cycle against
// the Moodle notification stream.
package poller

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"moodle-herald/internal/domain"
	"moodle-herald/internal/history"
)

// NotificationSource fetches the most recent notification for the polling
// user. A nil notification with nil error means the stream is empty.
type NotificationSource interface {
	LatestNotification(ctx context.Context) (*domain.Notification, error)
}

// Dispatcher fans a fresh notification out to the configured channels and
// returns the channels that accepted delivery.
type Dispatcher interface {
	Dispatch(ctx context.Context, n domain.Notification, body, summary string) []domain.ChannelType
}

// Summarizer condenses a notification body. Optional.
type Summarizer interface {
	Summarize(ctx context.Context, text string) (string, error)
}

// Journal records completed deliveries. Optional.
type Journal interface {
	RecordDelivery(ctx context.Context, d *history.Delivery) error
}

// Config contains poll loop configuration.
type Config struct {
	Interval       time.Duration
	RetryBase      time.Duration
	RetryIncrement time.Duration
}

// DefaultConfig returns the default poll schedule: one cycle per minute,
// failed fetches retried after 60s with the delay growing by 2s per attempt.
func DefaultConfig() Config {
	return Config{
		Interval:       60 * time.Second,
		RetryBase:      60 * time.Second,
		RetryIncrement: 2 * time.Second,
	}
}

// Poller runs the polling pipeline on a single goroutine. Cycles are strictly
// serialized: a cycle finishes (or is cancelled) before the next one starts,
// which is what makes the unsynchronized Cursor safe.
type Poller struct {
	config     Config
	source     NotificationSource
	dispatcher Dispatcher
	convert    func(html string) (string, error)
	summarizer Summarizer
	journal    Journal

	cursor  *Cursor
	retrier Retrier

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// New creates a Poller. summarizer and journal may be nil; convert must not.
func New(config Config, source NotificationSource, dispatcher Dispatcher, convert func(string) (string, error), summarizer Summarizer, journal Journal) *Poller {
	return &Poller{
		config:     config,
		source:     source,
		dispatcher: dispatcher,
		convert:    convert,
		summarizer: summarizer,
		journal:    journal,
		cursor:     NewCursor(),
		retrier:    NewRetrier(config.RetryBase, config.RetryIncrement),
		stopCh:     make(chan struct{}),
	}
}

// Start launches the poll loop goroutine.
func (p *Poller) Start(ctx context.Context) {
	slog.Info("starting poller",
		"interval", p.config.Interval,
		"retry_base", p.config.RetryBase,
		"retry_increment", p.config.RetryIncrement,
	)

	p.wg.Add(1)
	go p.run(ctx)
}

// Stop waits for the in-flight cycle to finish and stops the loop.
func (p *Poller) Stop() {
	close(p.stopCh)
	p.wg.Wait()
	slog.Info("poller stopped")
}

func (p *Poller) run(ctx context.Context) {
	defer p.wg.Done()

	// First cycle immediately, then on the interval.
	p.cycle(ctx)

	ticker := time.NewTicker(p.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.stopCh:
			return
		case <-ticker.C:
			p.cycle(ctx)
		}
	}
}

// cycle runs one fetch → classify → dispatch pass. Fetch failures never
// reach the cursor: the retrier returns only a completed fetch or a
// cancellation, so the cursor cannot be corrupted by an aborted cycle.
func (p *Poller) cycle(ctx context.Context) {
	notification, err := Do(ctx, p.retrier, p.source.LatestNotification)
	if err != nil {
		// Only cancellation escapes the retrier.
		slog.Debug("fetch cancelled", "error", err)
		return
	}

	verdict := p.cursor.Classify(notification)
	recordPollCycle(string(verdict))

	if !verdict.ShouldDispatch() {
		slog.Debug("nothing to deliver", "verdict", verdict)
		return
	}

	slog.Info("new notification",
		"verdict", verdict,
		"id", notification.ID,
		"subject", notification.Subject,
	)

	p.deliver(ctx, *notification, verdict)
}

func (p *Poller) deliver(ctx context.Context, n domain.Notification, verdict Verdict) {
	body, err := p.convert(n.BodyHTML)
	if err != nil {
		slog.Warn("html conversion failed, falling back to plain message", "id", n.ID, "error", err)
		body = n.SmallBody
	}

	var summary string
	if p.summarizer != nil {
		summary, err = p.summarizer.Summarize(ctx, body)
		if err != nil {
			// Best effort: a failed summary never blocks delivery.
			slog.Warn("summarization failed", "id", n.ID, "error", err)
			summary = ""
		}
	}

	delivered := p.dispatcher.Dispatch(ctx, n, body, summary)

	if p.journal != nil {
		channels := make([]string, len(delivered))
		for i, ch := range delivered {
			channels[i] = string(ch)
		}
		d := &history.Delivery{
			NotificationID: n.ID,
			Subject:        n.Subject,
			Verdict:        string(verdict),
			Channels:       channels,
		}
		if err := p.journal.RecordDelivery(ctx, d); err != nil {
			slog.Error("failed to record delivery", "id", n.ID, "error", err)
		}
	}
}

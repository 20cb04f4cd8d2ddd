package notify

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"levelup-engine/internal/metrics"
)

// Dispatcher sends notifications in the background. Callers never wait for
// delivery and never see delivery errors.
type Dispatcher struct {
	notifier Notifier
	timeout  time.Duration
	metrics  *metrics.Metrics
	logger   zerolog.Logger

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// NewDispatcher creates a new Dispatcher instance.
func NewDispatcher(notifier Notifier, timeout time.Duration, m *metrics.Metrics, logger zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		notifier: notifier,
		timeout:  timeout,
		metrics:  m,
		logger:   logger.With().Str("component", "notifier").Logger(),
	}
}

// Notify queues n for delivery. The send outlives ctx cancellation but is
// bounded by the dispatcher timeout. After Close, notifications are dropped.
func (d *Dispatcher) Notify(ctx context.Context, n Notification) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		d.metrics.Notification(metrics.ResultDropped)
		return
	}
	d.wg.Add(1)
	d.mu.Unlock()

	go func() {
		defer d.wg.Done()

		sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.timeout)
		defer cancel()

		if err := d.notifier.Notify(sendCtx, n); err != nil {
			d.metrics.Notification(metrics.ResultError)
			d.logger.Warn().Err(err).Str("user_id", n.UserID).Str("title", n.Title).Msg("Notification failed")
			return
		}
		d.metrics.Notification(metrics.ResultSuccess)
	}()
}

// Close stops accepting notifications and waits for in-flight sends or ctx.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

package dahua

import (
	"context"
	"time"
)

const (
	// a stream that died within this window usually means the camera is
	// unreachable, retry on the slow schedule instead of hammering it
	watchFailFast  = time.Second * 10
	watchRetryCold = time.Minute
)

// EventWatcher keeps one event subscription alive on its own goroutine,
// resubscribing after failures, and delivers parsed events on a channel
// so the host gets cooperative cancellation and backpressure instead of
// a blocking callback.
type EventWatcher struct {
	client *Client
	events chan Event
	cancel context.CancelFunc
	done   chan struct{}
}

// Watch subscribes to the given event codes (none means all) and keeps
// the subscription alive until Stop. The channel closes after Stop.
func (c *Client) Watch(codes ...string) *EventWatcher {
	ctx, cancel := context.WithCancel(context.Background())

	w := &EventWatcher{
		client: c,
		events: make(chan Event, 16),
		cancel: cancel,
		done:   make(chan struct{}),
	}

	go w.run(ctx, codes)

	return w
}

// Events - parsed notifications, heartbeats already filtered out
func (w *EventWatcher) Events() <-chan Event {
	return w.events
}

// Stop cancels the subscription, releases the connection and closes the
// events channel. Safe to call more than once.
func (w *EventWatcher) Stop() {
	w.cancel()
	<-w.done
}

func (w *EventWatcher) run(ctx context.Context, codes []string) {
	defer close(w.events)
	defer close(w.done)

	for {
		start := time.Now()

		err := w.client.StreamEvents(ctx, codes, func(b []byte) {
			for _, ev := range ParseEvents(b) {
				select {
				case w.events <- ev:
				case <-ctx.Done():
					return
				}
			}
		})

		if ctx.Err() != nil {
			return
		}

		w.client.Log.Warn().Err(err).Msg("[dahua] event stream closed, resubscribing")

		var delay time.Duration
		if time.Since(start) < watchFailFast {
			delay = watchRetryCold
		}

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return
		}
	}
}

package config

import (
	"time"

	"github.com/edgekernel/core/pkg/metrics"
)

// PublishQueue serializes watcher notification dispatch onto a single
// goroutine, so those callbacks never run concurrently with each other and
// never run on the goroutine that triggered the write. Validators are not
// dispatched through it: they run synchronously inside the write. Modeled directly on
// pkg/events.Broker's buffered-channel run loop, generalized from posting
// *Event values to posting arbitrary thunks.
type PublishQueue struct {
	actionCh chan func()
	stopCh   chan struct{}
}

// NewPublishQueue creates a queue with the same buffer depth as the
// teacher's event broker.
func NewPublishQueue() *PublishQueue {
	return &PublishQueue{
		actionCh: make(chan func(), 100),
		stopCh:   make(chan struct{}),
	}
}

// Start begins draining the queue on its own goroutine.
func (q *PublishQueue) Start() {
	go q.run()
}

// Stop halts the drain loop. Actions already enqueued but not yet run are
// dropped.
func (q *PublishQueue) Stop() {
	close(q.stopCh)
}

// Publish enqueues action to run on the queue's goroutine, in submission
// order. If the queue has been stopped, Publish is a no-op.
func (q *PublishQueue) Publish(action func()) {
	enqueuedAt := time.Now()
	select {
	case q.actionCh <- func() {
		metrics.ConfigWatcherDispatchLatency.Observe(time.Since(enqueuedAt).Seconds())
		action()
	}:
	case <-q.stopCh:
	}
}

func (q *PublishQueue) run() {
	for {
		select {
		case action := <-q.actionCh:
			action()
		case <-q.stopCh:
			return
		}
	}
}

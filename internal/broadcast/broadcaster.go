// Package broadcast fans processing-status snapshots out to observers.
//
// Delivery is best effort: a slow or disconnected subscriber never blocks
// the publisher or other subscribers. Events delivered to a single
// subscriber arrive in publish order; no ordering is guaranteed across
// subscribers.
package broadcast

import (
	"log/slog"
	"sync"
	"time"

	"scribe/internal/logging"
)

// Snapshot is the aggregate processing status pushed to observers.
type Snapshot struct {
	Processing bool      `json:"processing"`
	QueueDepth int       `json:"queue_depth"`
	At         time.Time `json:"at"`
}

// subscriberBuffer bounds how many undelivered snapshots a subscriber may
// lag behind before publishes are dropped for it.
const subscriberBuffer = 16

// Broadcaster distributes status snapshots to any number of subscribers.
type Broadcaster struct {
	logger *slog.Logger

	mu     sync.Mutex
	nextID uint64
	subs   map[uint64]chan Snapshot
	last   *Snapshot
}

// New constructs a broadcaster with no subscribers.
func New(logger *slog.Logger) *Broadcaster {
	return &Broadcaster{
		logger: logging.NewComponentLogger(logger, "broadcast"),
		subs:   make(map[uint64]chan Snapshot),
	}
}

// Subscribe registers a new observer. The returned channel receives future
// snapshots; it is closed by Unsubscribe. The subscriber does not receive
// replayed history, only events published after registration.
func (b *Broadcaster) Subscribe() (uint64, <-chan Snapshot) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	id := b.nextID
	ch := make(chan Snapshot, subscriberBuffer)
	b.subs[id] = ch
	return id, ch
}

// Unsubscribe removes an observer and closes its channel. Unknown handles
// are ignored.
func (b *Broadcaster) Unsubscribe(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch, ok := b.subs[id]
	if !ok {
		return
	}
	delete(b.subs, id)
	close(ch)
}

// Publish fans a snapshot out to all current subscribers. A full subscriber
// buffer drops the event for that subscriber only; Publish never blocks and
// never returns an error to the caller.
func (b *Broadcaster) Publish(snapshot Snapshot) {
	if snapshot.At.IsZero() {
		snapshot.At = time.Now().UTC()
	}

	b.mu.Lock()
	b.last = &snapshot
	for id, ch := range b.subs {
		select {
		case ch <- snapshot:
		default:
			b.logger.Debug("dropped status event for slow subscriber",
				logging.Any("subscriber", id),
			)
		}
	}
	b.mu.Unlock()
}

// Last returns the most recently published snapshot, or a zero snapshot
// when nothing has been published yet. Reconnecting observers use this as
// their fresh starting point.
func (b *Broadcaster) Last() Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.last == nil {
		return Snapshot{At: time.Now().UTC()}
	}
	return *b.last
}

// SubscriberCount returns the number of registered observers.
func (b *Broadcaster) SubscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

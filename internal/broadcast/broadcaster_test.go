package broadcast_test

import (
	"testing"
	"time"

	"scribe/internal/broadcast"
	"scribe/internal/logging"
)

func TestPublishDeliversInOrder(t *testing.T) {
	bc := broadcast.New(logging.NewNop())
	id, events := bc.Subscribe()
	defer bc.Unsubscribe(id)

	for depth := 1; depth <= 3; depth++ {
		bc.Publish(broadcast.Snapshot{Processing: true, QueueDepth: depth})
	}

	for depth := 1; depth <= 3; depth++ {
		select {
		case snap := <-events:
			if snap.QueueDepth != depth {
				t.Fatalf("expected depth %d, got %d", depth, snap.QueueDepth)
			}
			if snap.At.IsZero() {
				t.Fatal("expected publish timestamp to be stamped")
			}
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for snapshot %d", depth)
		}
	}
}

func TestSlowSubscriberNeverBlocksPublish(t *testing.T) {
	bc := broadcast.New(logging.NewNop())
	slowID, slow := bc.Subscribe()
	defer bc.Unsubscribe(slowID)
	fastID, fast := bc.Subscribe()
	defer bc.Unsubscribe(fastID)

	// Overflow the slow subscriber's buffer without draining it.
	total := 40
	done := make(chan struct{})
	go func() {
		for depth := 1; depth <= total; depth++ {
			bc.Publish(broadcast.Snapshot{QueueDepth: depth})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on a slow subscriber")
	}

	// The fast subscriber drained nothing either, so it also capped at the
	// buffer size, but every buffered event is intact and ordered.
	received := 0
	lastDepth := 0
	for {
		select {
		case snap := <-fast:
			if snap.QueueDepth <= lastDepth {
				t.Fatalf("out of order delivery: %d after %d", snap.QueueDepth, lastDepth)
			}
			lastDepth = snap.QueueDepth
			received++
			continue
		default:
		}
		break
	}
	if received == 0 || received > total {
		t.Fatalf("unexpected delivery count %d", received)
	}
	_ = slow
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	bc := broadcast.New(logging.NewNop())
	id, events := bc.Subscribe()
	if bc.SubscriberCount() != 1 {
		t.Fatalf("expected 1 subscriber, got %d", bc.SubscriberCount())
	}

	bc.Unsubscribe(id)
	bc.Unsubscribe(id)
	if bc.SubscriberCount() != 0 {
		t.Fatalf("expected 0 subscribers, got %d", bc.SubscriberCount())
	}
	select {
	case _, ok := <-events:
		if ok {
			t.Fatal("expected closed channel")
		}
	case <-time.After(time.Second):
		t.Fatal("channel not closed after unsubscribe")
	}

	// Publishing after unsubscribe is a no-op for the removed observer.
	bc.Publish(broadcast.Snapshot{QueueDepth: 9})
}

func TestLastReturnsMostRecentSnapshot(t *testing.T) {
	bc := broadcast.New(logging.NewNop())

	initial := bc.Last()
	if initial.Processing || initial.QueueDepth != 0 {
		t.Fatalf("expected zero snapshot before any publish, got %#v", initial)
	}

	bc.Publish(broadcast.Snapshot{Processing: true, QueueDepth: 4})
	bc.Publish(broadcast.Snapshot{Processing: false, QueueDepth: 2})

	last := bc.Last()
	if last.Processing || last.QueueDepth != 2 {
		t.Fatalf("unexpected last snapshot: %#v", last)
	}
}

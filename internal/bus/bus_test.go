package bus_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kory-ai/workbench-core/internal/bus"
)

type fakeEvent struct {
	session string
	n       int
}

func (e fakeEvent) SessionID() string { return e.session }

func TestPublishDeliversToAllSubscribers(t *testing.T) {
	b := bus.New()
	s1 := b.Subscribe()
	s2 := b.Subscribe()
	defer s1.Close()
	defer s2.Close()

	b.Publish(fakeEvent{session: "sess-1", n: 1})

	select {
	case e := <-s1.Events():
		assert.Equal(t, "sess-1", e.SessionID())
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for s1")
	}
	select {
	case e := <-s2.Events():
		assert.Equal(t, "sess-1", e.SessionID())
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for s2")
	}
}

func TestPublishNeverBlocksOnFullQueue(t *testing.T) {
	b := bus.New()
	sub := b.SubscribeWithQueueSize(2)
	defer sub.Close()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			b.Publish(fakeEvent{session: "s", n: i})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Publish blocked on a full subscriber queue")
	}

	// Only the queue capacity's worth of events survive; the rest were
	// dropped for this subscriber by design.
	count := 0
	for {
		select {
		case _, ok := <-sub.Events():
			if !ok {
				goto done
			}
			count++
		default:
			goto done
		}
	}
done:
	assert.LessOrEqual(t, count, 2)
}

func TestCloseIsIdempotent(t *testing.T) {
	b := bus.New()
	sub := b.Subscribe()
	sub.Close()
	require.NotPanics(t, func() { sub.Close() })
}

func TestShutdownClosesAllSubscriptions(t *testing.T) {
	b := bus.New()
	sub := b.Subscribe()
	b.Shutdown()

	// Shutdown stops future delivery but must not close the event channel
	// out from under a concurrent Publish (see bus.go's closeLocal), so a
	// post-shutdown Publish should neither panic nor deliver anything.
	require.NotPanics(t, func() { b.Publish(fakeEvent{session: "s", n: 1}) })
	select {
	case _, ok := <-sub.Events():
		if ok {
			t.Fatal("expected no event delivered after shutdown")
		}
	default:
	}
}

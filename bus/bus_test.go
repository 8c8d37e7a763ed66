package bus

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met within %v", timeout)
}

func TestEventBus_PublishSubscribe(t *testing.T) {
	b := New(nil)
	defer b.Stop()

	var received atomic.Int64
	b.Subscribe(EventLeaderElected, func(e Event) {
		elected, ok := e.(LeaderElectedEvent)
		require.True(t, ok)
		assert.Equal(t, "node-1", elected.LeaderID)
		received.Add(1)
	})

	b.Publish(NewLeaderElected("node-1", 3, 10*time.Millisecond))

	waitFor(t, time.Second, func() bool { return received.Load() == 1 })
}

func TestEventBus_AtMostOncePerHandler(t *testing.T) {
	b := New(nil)
	defer b.Stop()

	var mu sync.Mutex
	counts := map[string]int{}
	for _, name := range []string{"a", "b"} {
		name := name
		b.Subscribe(EventNodeJoined, func(Event) {
			mu.Lock()
			counts[name]++
			mu.Unlock()
		})
	}

	b.Publish(NewNodeJoined("node-1", nil, 1, nil))

	waitFor(t, time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return counts["a"] == 1 && counts["b"] == 1
	})
}

func TestEventBus_Unsubscribe(t *testing.T) {
	b := New(nil)
	defer b.Stop()

	var received atomic.Int64
	id := b.Subscribe(EventNodeLeft, func(Event) { received.Add(1) })
	b.Unsubscribe(id)

	b.Publish(NewNodeLeft("node-1"))
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int64(0), received.Load())
}

func TestEventBus_HandlerPanicIsIsolated(t *testing.T) {
	b := New(nil)
	defer b.Stop()

	var received atomic.Int64
	b.Subscribe(EventShutdown, func(Event) { panic("boom") })
	b.Subscribe(EventShutdown, func(Event) { received.Add(1) })

	b.Publish(NewShutdown())

	waitFor(t, time.Second, func() bool { return received.Load() == 1 })
}

func TestEventBus_StopIsIdempotent(t *testing.T) {
	b := New(nil)
	b.Stop()
	b.Stop()

	// Publishing after stop must not block.
	done := make(chan struct{})
	go func() {
		b.Publish(NewShutdown())
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish after stop blocked")
	}
}

package worksteal

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mikkihugo/zenflow/bus"
	"github.com/mikkihugo/zenflow/coordination/transport"
	"github.com/mikkihugo/zenflow/types"
)

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.LoadBalancingInterval = 10 * time.Millisecond
	cfg.ProcessInterval = 5 * time.Millisecond
	cfg.ComplexityUnit = 100 * time.Microsecond
	cfg.ExecutionFailureRate = 0
	return cfg
}

func reliableSim() *transport.Sim {
	return transport.NewSim(transport.SimConfig{
		MinLatency:  time.Microsecond,
		MaxLatency:  10 * time.Microsecond,
		FailureRate: 0,
		Seed:        1,
	})
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("condition not met within %v", timeout)
}

func totals(s *Scheduler) (pending, processing int, completed, failed int64) {
	for _, q := range s.QueueStats() {
		pending += q.Pending
		processing += q.Processing
		completed += q.Completed
		failed += q.Failed
	}
	return
}

func TestSubmitWork_LeastLoadedQueue(t *testing.T) {
	t.Parallel()

	s := NewScheduler(testConfig(), reliableSim(), nil, nil)
	s.AddNode(types.NewNode("node-1", 1))
	s.AddNode(types.NewNode("node-2", 1))

	for i := 0; i < 4; i++ {
		id, err := s.SubmitWork(NewWorkItem(1, nil))
		require.NoError(t, err)
		assert.NotEmpty(t, id)
	}

	stats := s.QueueStats()
	require.Len(t, stats, 2)
	assert.Equal(t, 2, stats[0].Pending)
	assert.Equal(t, 2, stats[1].Pending)
}

func TestSubmitWork_NoNodes(t *testing.T) {
	t.Parallel()

	s := NewScheduler(testConfig(), reliableSim(), nil, nil)
	_, err := s.SubmitWork(NewWorkItem(1, nil))
	require.Error(t, err)
	assert.True(t, types.IsErrorCode(err, types.ErrNodeNotFound))
}

func TestSubmitWork_QueueFull(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.MaxQueueSize = 2
	s := NewScheduler(cfg, reliableSim(), nil, nil)
	s.AddNode(types.NewNode("node-1", 1))

	for i := 0; i < 2; i++ {
		_, err := s.SubmitWork(NewWorkItem(1, nil))
		require.NoError(t, err)
	}
	_, err := s.SubmitWork(NewWorkItem(1, nil))
	require.Error(t, err)
	assert.True(t, types.IsErrorCode(err, types.ErrQueueFull))
}

func TestProcessOnce_CompletesItem(t *testing.T) {
	t.Parallel()

	events := bus.New(nil)
	defer events.Stop()
	var completions atomic.Int64
	events.Subscribe(bus.EventWorkCompleted, func(e bus.Event) {
		done, ok := e.(bus.WorkCompletedEvent)
		require.True(t, ok)
		item := done.Item.(*WorkItem)
		assert.GreaterOrEqual(t, item.Attempts, 1)
		assert.LessOrEqual(t, item.Attempts, item.MaxAttempts)
		completions.Add(1)
	})

	s := NewScheduler(testConfig(), reliableSim(), events, nil)
	s.AddNode(types.NewNode("node-1", 1))

	_, err := s.SubmitWork(NewWorkItem(5, map[string]any{"complexity": 1}))
	require.NoError(t, err)

	s.ProcessOnce()
	waitFor(t, 2*time.Second, func() bool { return completions.Load() == 1 })

	_, _, completed, failed := totals(s)
	assert.Equal(t, int64(1), completed)
	assert.Equal(t, int64(0), failed)
}

func TestProcessOnce_RetriesUntilPermanentFailure(t *testing.T) {
	t.Parallel()

	events := bus.New(nil)
	defer events.Stop()
	var failures atomic.Int64
	events.Subscribe(bus.EventWorkFailed, func(e bus.Event) {
		failed, ok := e.(bus.WorkFailedEvent)
		require.True(t, ok)
		item := failed.Item.(*WorkItem)
		assert.Equal(t, item.MaxAttempts, item.Attempts)
		failures.Add(1)
	})

	cfg := testConfig()
	cfg.ExecutionFailureRate = 1
	cfg.MaxAttempts = 3
	s := NewScheduler(cfg, reliableSim(), events, nil)
	s.AddNode(types.NewNode("node-1", 1))

	_, err := s.SubmitWork(NewWorkItem(1, nil))
	require.NoError(t, err)

	deadline := time.Now().Add(2 * time.Second)
	for failures.Load() == 0 && time.Now().Before(deadline) {
		s.ProcessOnce()
		time.Sleep(2 * time.Millisecond)
	}
	assert.Equal(t, int64(1), failures.Load())

	_, _, _, failed := totals(s)
	assert.Equal(t, int64(1), failed)
}

func TestBalanceOnce_StealsFromOverloadedPeer(t *testing.T) {
	t.Parallel()

	events := bus.New(nil)
	defer events.Stop()
	var stolen atomic.Int64
	events.Subscribe(bus.EventWorkStolen, func(e bus.Event) {
		ev := e.(bus.WorkStolenEvent)
		assert.Equal(t, "node-1", ev.From)
		assert.Equal(t, "node-2", ev.To)
		stolen.Add(int64(ev.Count))
	})

	s := NewScheduler(testConfig(), reliableSim(), events, nil)
	s.AddNode(types.NewNode("node-1", 1))
	for i := 0; i < 10; i++ {
		_, err := s.SubmitWork(NewWorkItem(i, nil))
		require.NoError(t, err)
	}
	s.AddNode(types.NewNode("node-2", 1))

	s.BalanceOnce(context.Background())

	waitFor(t, time.Second, func() bool { return stolen.Load() == 5 })
	stats := s.QueueStats()
	assert.Equal(t, 5, stats[0].Pending)
	assert.Equal(t, 5, stats[1].Pending)

	// Migrated items are flagged and re-homed.
	migrated := 0
	s.mu.Lock()
	for _, item := range s.queues["node-2"].pending {
		if item.Stolen {
			migrated++
			assert.Equal(t, "node-2", item.Owner)
		}
	}
	s.mu.Unlock()
	assert.Equal(t, 5, migrated)
}

func TestBalanceOnce_RespectsThreshold(t *testing.T) {
	t.Parallel()

	s := NewScheduler(testConfig(), reliableSim(), nil, nil)
	s.AddNode(types.NewNode("node-1", 1))
	for i := 0; i < 3; i++ { // at, not above, the threshold
		_, err := s.SubmitWork(NewWorkItem(1, nil))
		require.NoError(t, err)
	}
	s.AddNode(types.NewNode("node-2", 1))

	s.BalanceOnce(context.Background())

	stats := s.QueueStats()
	assert.Equal(t, 3, stats[0].Pending)
	assert.Equal(t, 0, stats[1].Pending)
}

func TestRemoveNode_RedistributesPending(t *testing.T) {
	t.Parallel()

	s := NewScheduler(testConfig(), reliableSim(), nil, nil)
	s.AddNode(types.NewNode("node-1", 1))
	for i := 0; i < 6; i++ {
		_, err := s.SubmitWork(NewWorkItem(1, nil))
		require.NoError(t, err)
	}
	s.AddNode(types.NewNode("node-2", 1))
	s.AddNode(types.NewNode("node-3", 1))

	s.RemoveNode("node-1")

	stats := s.QueueStats()
	require.Len(t, stats, 2)
	assert.Equal(t, 3, stats[0].Pending)
	assert.Equal(t, 3, stats[1].Pending)
}

func TestStartStop_Idempotent(t *testing.T) {
	t.Parallel()

	s := NewScheduler(testConfig(), reliableSim(), nil, nil)
	s.Start()
	s.Start()
	s.Stop()
	s.Stop()
}

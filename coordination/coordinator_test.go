package coordination

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mikkihugo/zenflow/bus"
	"github.com/mikkihugo/zenflow/coordination/hierarchy"
	"github.com/mikkihugo/zenflow/coordination/transport"
	"github.com/mikkihugo/zenflow/coordination/worksteal"
	"github.com/mikkihugo/zenflow/types"
)

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) bool {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return cond()
}

func reliableTransport() *transport.Sim {
	return transport.NewSim(transport.SimConfig{
		MinLatency:  time.Millisecond,
		MaxLatency:  2 * time.Millisecond,
		FailureRate: 0,
		Seed:        1,
	})
}

func newTestManager(t *testing.T, pattern Pattern) *Manager {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Pattern = pattern
	m, err := New(cfg, WithTransport(reliableTransport()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Shutdown() })
	return m
}

func registerNodes(t *testing.T, m *Manager, ids ...string) {
	t.Helper()
	for i, id := range ids {
		require.NoError(t, m.RegisterNode(types.NewNode(id, len(ids)-i)))
	}
}

func TestNewRejectsUnknownPattern(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Pattern = Pattern("gossip")
	_, err := New(cfg)
	require.Error(t, err)
	assert.True(t, types.IsErrorCode(err, types.ErrInvalidConfig))
}

func TestRegisterAndUnregisterNode(t *testing.T) {
	m := newTestManager(t, PatternHybrid)
	registerNodes(t, m, "node-1", "node-2")

	status := m.GetCoordinationStatus()
	assert.Equal(t, 2, status.Nodes)
	assert.Len(t, status.WorkQueues, 2)

	require.NoError(t, m.UnregisterNode("node-2"))
	assert.Equal(t, 1, m.GetCoordinationStatus().Nodes)

	err := m.UnregisterNode("ghost")
	require.Error(t, err)
	assert.True(t, types.IsErrorCode(err, types.ErrNodeNotFound))
}

func TestOperationsGatedByPattern(t *testing.T) {
	m := newTestManager(t, PatternConsensus)
	registerNodes(t, m, "node-1")

	_, err := m.SubmitWork(worksteal.NewWorkItem(1, nil))
	require.Error(t, err)
	assert.True(t, types.IsErrorCode(err, types.ErrSubsystemDisabled))

	_, err = m.StartElection(context.Background())
	require.Error(t, err)
	assert.True(t, types.IsErrorCode(err, types.ErrSubsystemDisabled))

	_, err = m.DelegateTask(hierarchy.DelegationRequest{DelegatorID: "node-1", DelegateID: "node-1"})
	require.Error(t, err)
	assert.True(t, types.IsErrorCode(err, types.ErrSubsystemDisabled))
}

func TestStartElectionLeaderFollower(t *testing.T) {
	m := newTestManager(t, PatternLeaderFollower)
	registerNodes(t, m, "node-1", "node-2", "node-3")

	leader, err := m.StartElection(context.Background())
	require.NoError(t, err)
	assert.NotEmpty(t, leader)
	assert.Equal(t, leader, m.Leader())
}

func TestProposeConsensusElectsLazily(t *testing.T) {
	m := newTestManager(t, PatternConsensus)
	registerNodes(t, m, "node-1", "node-2", "node-3")

	accepted, err := m.ProposeConsensus(context.Background(), "set x=1")
	require.NoError(t, err)
	assert.True(t, accepted)

	state := m.GetCoordinationStatus().Consensus
	assert.NotEmpty(t, state.LeaderID)
	assert.Equal(t, 0, state.CommitIndex)
}

func TestDelegateAndEscalate(t *testing.T) {
	m := newTestManager(t, PatternHierarchical)
	registerNodes(t, m, "root", "child")

	accepted, err := m.DelegateTask(hierarchy.DelegationRequest{
		DelegatorID: "root",
		DelegateID:  "child",
		Task:        "compile",
	})
	require.NoError(t, err)
	assert.True(t, accepted)

	escalated, err := m.EscalateTask(hierarchy.EscalationRequest{
		EscalatorID: "child",
		Reason:      "stuck",
		Urgency:     "high",
	})
	require.NoError(t, err)
	assert.True(t, escalated)

	escalated, err = m.EscalateTask(hierarchy.EscalationRequest{EscalatorID: "root"})
	require.NoError(t, err)
	assert.False(t, escalated, "root has no supervisor")
}

func TestSwitchPatternPublishesEvent(t *testing.T) {
	m := newTestManager(t, PatternHybrid)

	var switched atomic.Bool
	sub := m.events.Subscribe(bus.EventPatternSwitched, func(event bus.Event) {
		e, ok := event.(bus.PatternSwitchedEvent)
		if ok && e.From == string(PatternHybrid) && e.To == string(PatternWorkStealing) {
			switched.Store(true)
		}
	})
	defer m.events.Unsubscribe(sub)

	require.NoError(t, m.SwitchPattern(PatternWorkStealing))
	assert.Equal(t, PatternWorkStealing, m.Pattern())
	assert.True(t, waitFor(t, time.Second, switched.Load))

	// Switching to the current pattern is a no-op.
	require.NoError(t, m.SwitchPattern(PatternWorkStealing))

	err := m.SwitchPattern(Pattern("gossip"))
	require.Error(t, err)
	assert.True(t, types.IsErrorCode(err, types.ErrInvalidConfig))
	assert.Equal(t, PatternWorkStealing, m.Pattern())
}

func TestSwitchPatternPreservesState(t *testing.T) {
	m := newTestManager(t, PatternLeaderFollower)
	registerNodes(t, m, "node-1", "node-2", "node-3")

	leader, err := m.StartElection(context.Background())
	require.NoError(t, err)

	// Disable election, then re-enable: leader and term survive the round trip.
	require.NoError(t, m.SwitchPattern(PatternWorkStealing))
	require.NoError(t, m.SwitchPattern(PatternLeaderFollower))
	assert.Equal(t, leader, m.Leader())
}

func TestMembershipRelayOverBus(t *testing.T) {
	m := newTestManager(t, PatternHybrid)
	require.NoError(t, m.Start())

	m.events.Publish(bus.NewNodeJoined("node-1", []string{"compute"}, 5, nil))
	require.True(t, waitFor(t, time.Second, func() bool {
		return m.GetCoordinationStatus().Nodes == 1
	}))

	m.events.Publish(bus.NewNodeLeft("node-1"))
	require.True(t, waitFor(t, time.Second, func() bool {
		return m.GetCoordinationStatus().Nodes == 0
	}))
}

func TestPartitionDegradesConsensusToLeaderFollower(t *testing.T) {
	m := newTestManager(t, PatternConsensus)
	registerNodes(t, m, "node-1", "node-2", "node-3")
	require.NoError(t, m.Start())

	var switched atomic.Bool
	sub := m.events.Subscribe(bus.EventPatternSwitched, func(bus.Event) {
		switched.Store(true)
	})
	defer m.events.Unsubscribe(sub)

	m.events.Publish(bus.NewNetworkPartition(map[string]any{"side": "minority"}))

	require.True(t, waitFor(t, time.Second, func() bool {
		return m.Pattern() == PatternLeaderFollower
	}))
	assert.True(t, waitFor(t, time.Second, switched.Load))

	enabled := m.GetCoordinationStatus().Enabled
	assert.True(t, enabled["election"])
	assert.False(t, enabled["consensus"])
}

func TestPartitionIgnoredOutsideConsensusPattern(t *testing.T) {
	m := newTestManager(t, PatternHybrid)
	require.NoError(t, m.Start())

	m.events.Publish(bus.NewNetworkPartition(nil))
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, PatternHybrid, m.Pattern())
}

func TestMetricsDefaults(t *testing.T) {
	m := newTestManager(t, PatternHybrid)

	snap := m.GetMetrics()
	assert.Zero(t, snap.Elections)
	assert.Zero(t, snap.ConsensusOps)
	assert.Zero(t, snap.WorkItemsProcessed)
	assert.Zero(t, snap.FailureRate)
	assert.Equal(t, 1.0, snap.Efficiency, "efficiency defaults to 1 with no operations")
}

func TestMetricsAggregateCountsOperations(t *testing.T) {
	m := newTestManager(t, PatternHybrid)
	registerNodes(t, m, "node-1", "node-2", "node-3")

	_, err := m.StartElection(context.Background())
	require.NoError(t, err)
	accepted, err := m.ProposeConsensus(context.Background(), "op")
	require.NoError(t, err)
	require.True(t, accepted)

	snap := m.GetMetrics()
	assert.Equal(t, int64(1), snap.Elections)
	assert.Equal(t, int64(1), snap.ConsensusOps)
	assert.Greater(t, snap.AvgLatency, time.Duration(0))
	assert.Equal(t, 1.0, snap.Efficiency)
}

func TestShutdownIsIdempotent(t *testing.T) {
	m := newTestManager(t, PatternHybrid)
	require.NoError(t, m.Start())

	var announced atomic.Bool
	m.events.Subscribe(bus.EventShutdown, func(bus.Event) {
		announced.Store(true)
	})

	require.NoError(t, m.Shutdown())
	require.NoError(t, m.Shutdown())
	assert.True(t, waitFor(t, time.Second, announced.Load))

	err := m.RegisterNode(types.NewNode("late", 1))
	require.Error(t, err)
	assert.True(t, types.IsErrorCode(err, types.ErrShutdown))

	err = m.Start()
	require.Error(t, err)
	assert.True(t, types.IsErrorCode(err, types.ErrShutdown))
}

func TestExternalBusSurvivesShutdown(t *testing.T) {
	external := bus.New(nil)
	defer external.Stop()

	cfg := DefaultConfig()
	m, err := New(cfg, WithBus(external), WithTransport(reliableTransport()))
	require.NoError(t, err)
	require.NoError(t, m.Start())
	require.NoError(t, m.Shutdown())

	var delivered atomic.Bool
	external.Subscribe(bus.EventNodeJoined, func(bus.Event) {
		delivered.Store(true)
	})
	external.Publish(bus.NewNodeJoined("node-1", nil, 1, nil))
	assert.True(t, waitFor(t, time.Second, delivered.Load))
}

func TestSwitchPattern_DuringRebalanceTicks(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.Hierarchy.RebalanceInterval = time.Millisecond
	cfg.Hierarchy.NodeCapacity = 1
	m, err := New(cfg, WithTransport(reliableTransport()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Shutdown() })

	require.NoError(t, m.Start())
	registerNodes(t, m, "node-1", "node-2", "node-3", "node-4", "node-5")

	// Load every child past its rebalance threshold so the hierarchy flags
	// them on each tick while patterns flip underneath.
	for _, id := range []string{"node-2", "node-3", "node-4", "node-5"} {
		accepted, err := m.DelegateTask(hierarchy.DelegationRequest{
			DelegatorID: "node-1",
			DelegateID:  id,
			Task:        "load",
			Priority:    1,
		})
		require.NoError(t, err)
		require.True(t, accepted)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 25; i++ {
			_ = m.SwitchPattern(PatternConsensus)
			time.Sleep(2 * time.Millisecond)
			_ = m.SwitchPattern(PatternHybrid)
			time.Sleep(2 * time.Millisecond)
		}
	}()

	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("pattern switching stalled against the rebalance loop")
	}
}

var metricsNamespaces atomic.Int64

func nextMetricsNamespace() string {
	return fmt.Sprintf("coordinator_test_%d", metricsNamespaces.Add(1))
}

func counterSum(t *testing.T, name string) float64 {
	t.Helper()
	families, err := prometheus.DefaultGatherer.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		sum := 0.0
		for _, metric := range mf.GetMetric() {
			sum += metric.GetCounter().GetValue()
		}
		return sum
	}
	return 0
}

func TestWorkEventsFeedCollector(t *testing.T) {
	t.Parallel()

	ns := nextMetricsNamespace()
	cfg := DefaultConfig()
	cfg.MetricsNamespace = ns
	m, err := New(cfg, WithTransport(reliableTransport()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Shutdown() })
	require.NoError(t, m.Start())

	m.events.Publish(bus.NewWorkCompleted(nil, 5*time.Millisecond))
	m.events.Publish(bus.NewWorkFailed(nil, "execution failed"))
	m.events.Publish(bus.NewWorkStolen("node-1", "node-2", 3))

	assert.True(t, waitFor(t, 2*time.Second, func() bool {
		return counterSum(t, ns+"_work_items_total") == 2 &&
			counterSum(t, ns+"_work_stolen_total") == 3
	}))
}

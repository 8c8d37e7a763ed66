package coordination

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/mikkihugo/zenflow/bus"
	"github.com/mikkihugo/zenflow/coordination/consensus"
	"github.com/mikkihugo/zenflow/coordination/election"
	"github.com/mikkihugo/zenflow/coordination/hierarchy"
	"github.com/mikkihugo/zenflow/coordination/transport"
	"github.com/mikkihugo/zenflow/coordination/worksteal"
	"github.com/mikkihugo/zenflow/internal/metrics"
	"github.com/mikkihugo/zenflow/types"
)

// Config holds the facade configuration plus the per-subsystem sections.
type Config struct {
	Pattern          Pattern             `json:"pattern" yaml:"pattern"`
	Election         election.Config     `json:"election" yaml:"election"`
	Consensus        consensus.Config    `json:"consensus" yaml:"consensus"`
	WorkStealing     worksteal.Config    `json:"work_stealing" yaml:"work_stealing"`
	Hierarchy        hierarchy.Config    `json:"hierarchy" yaml:"hierarchy"`
	Transport        transport.SimConfig `json:"transport" yaml:"transport"`
	MetricsNamespace string              `json:"metrics_namespace" yaml:"metrics_namespace"` // empty disables prometheus collection
	MetricsInterval  time.Duration       `json:"metrics_interval" yaml:"metrics_interval"`
}

// DefaultConfig returns a hybrid-pattern configuration with every subsystem
// at its defaults.
func DefaultConfig() Config {
	return Config{
		Pattern:         PatternHybrid,
		Election:        election.DefaultConfig(),
		Consensus:       consensus.DefaultConfig(),
		WorkStealing:    worksteal.DefaultConfig(),
		Hierarchy:       hierarchy.DefaultConfig(),
		Transport:       transport.DefaultSimConfig(),
		MetricsInterval: 5 * time.Second,
	}
}

// Status is a point-in-time view of the whole coordination layer.
type Status struct {
	Pattern        Pattern                `json:"pattern"`
	Leader         string                 `json:"leader,omitempty"`
	Consensus      consensus.State        `json:"consensus"`
	WorkQueues     []worksteal.QueueStats `json:"work_queues"`
	HierarchyDepth int                    `json:"hierarchy_depth"`
	Nodes          int                    `json:"nodes"`
	Enabled        map[string]bool        `json:"enabled"`
	Metrics        Metrics                `json:"metrics"`
}

// Option customizes a Manager.
type Option func(*Manager)

// WithLogger sets the logger shared with every subsystem.
func WithLogger(logger *zap.Logger) Option {
	return func(m *Manager) { m.logger = logger }
}

// WithBus injects an external event bus. The caller keeps ownership; Shutdown
// will not stop it.
func WithBus(b bus.Bus) Option {
	return func(m *Manager) {
		m.events = b
		m.ownBus = false
	}
}

// WithTransport injects an alternative transport.
func WithTransport(tp transport.Transport) Option {
	return func(m *Manager) { m.transport = tp }
}

// Manager is the coordination facade. It owns the election, consensus,
// work-stealing and hierarchy subsystems, relays membership events to each,
// and enables the subset of subsystems the active pattern calls for.
type Manager struct {
	cfg       Config
	logger    *zap.Logger
	events    bus.Bus
	ownBus    bool
	transport transport.Transport
	collector *metrics.Collector

	election  *election.Manager
	consensus *consensus.Manager
	worksteal *worksteal.Scheduler
	hierarchy *hierarchy.Manager

	stealScan atomic.Bool // work-steal scheduler running, readable without mu

	mu          sync.Mutex
	pattern     Pattern
	enabled     enablement
	nodes       map[string]*types.Node
	subs        []string
	started     time.Time
	running     bool
	shutdown    bool
	lastMetrics Metrics
	metricsDone chan struct{}
	wg          sync.WaitGroup
}

// New creates a coordination manager for the configured pattern. The pattern
// must be one of the known constants.
func New(cfg Config, opts ...Option) (*Manager, error) {
	if cfg.Pattern == "" {
		cfg.Pattern = PatternHybrid
	}
	enabled, err := cfg.Pattern.subsystems()
	if err != nil {
		return nil, err
	}
	if cfg.MetricsInterval <= 0 {
		cfg.MetricsInterval = DefaultConfig().MetricsInterval
	}

	m := &Manager{
		cfg:     cfg,
		ownBus:  true,
		pattern: cfg.Pattern,
		enabled: enabled,
		nodes:   make(map[string]*types.Node),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.logger == nil {
		m.logger = zap.NewNop()
	}
	m.logger = m.logger.With(zap.String("component", "coordinator"))
	if m.events == nil {
		m.events = bus.New(m.logger)
	}
	if m.transport == nil {
		m.transport = transport.NewSim(cfg.Transport)
	}
	if cfg.MetricsNamespace != "" {
		m.collector = metrics.NewCollector(cfg.MetricsNamespace, m.logger)
	}

	m.election = election.NewManager(cfg.Election, m.transport, m.events, m.logger)
	m.consensus = consensus.NewManager(cfg.Consensus, m.transport, m.events, m.logger)
	m.worksteal = worksteal.NewScheduler(cfg.WorkStealing, m.transport, m.events, m.logger)
	m.hierarchy = hierarchy.NewManager(cfg.Hierarchy, m.events, m.logger)

	// An overloaded hierarchy node is a hint that work distribution is skewed;
	// trigger a steal scan when the scheduler is running. The hook must not
	// touch the facade mutex: SwitchPattern stops the rebalance loop while
	// holding it and waits for in-flight ticks, so a blocking hook would
	// deadlock the switch.
	m.hierarchy.SetRebalanceHook(func(_ hierarchy.HNode) {
		if m.stealScan.Load() {
			m.worksteal.BalanceOnce(context.Background())
		}
	})

	return m, nil
}

// Start subscribes to membership events, brings the pattern's subsystems up
// and launches the metrics loop. Idempotent.
func (m *Manager) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.shutdown {
		return types.NewError(types.ErrShutdown, "coordinator is shut down").WithSubsystem("coordinator")
	}
	if m.running {
		return nil
	}
	m.running = true
	m.started = time.Now()

	m.subs = append(m.subs,
		m.events.Subscribe(bus.EventNodeJoined, m.onNodeJoined),
		m.events.Subscribe(bus.EventNodeLeft, m.onNodeLeft),
		m.events.Subscribe(bus.EventNetworkPartition, m.onPartition),
	)
	// Work settles asynchronously inside the scheduler; the prometheus
	// counters are fed from its bus announcements.
	if m.collector != nil {
		m.subs = append(m.subs,
			m.events.Subscribe(bus.EventWorkCompleted, m.onWorkSettled),
			m.events.Subscribe(bus.EventWorkFailed, m.onWorkSettled),
			m.events.Subscribe(bus.EventWorkStolen, m.onWorkStolen),
		)
	}

	m.applyEnablementLocked(m.enabled)

	m.metricsDone = make(chan struct{})
	m.wg.Add(1)
	go m.metricsLoop(m.metricsDone)

	m.logger.Info("coordinator started", zap.String("pattern", string(m.pattern)))
	return nil
}

// applyEnablementLocked starts and stops subsystems to match next. Stopping a
// subsystem halts its timers but leaves its state intact for a re-enable.
func (m *Manager) applyEnablementLocked(next enablement) {
	toggle := func(enabled bool, start, stop func()) {
		if enabled {
			start()
		} else {
			stop()
		}
	}
	// Flip the hook flag before stopping the scheduler so a rebalance tick
	// racing the switch skips its steal scan instead of hitting a stopping
	// scheduler.
	m.stealScan.Store(next.worksteal)
	toggle(next.election, m.election.Start, m.election.Stop)
	toggle(next.consensus, m.consensus.Start, m.consensus.Stop)
	toggle(next.worksteal, m.worksteal.Start, m.worksteal.Stop)
	toggle(next.hierarchy, m.hierarchy.Start, m.hierarchy.Stop)
	m.enabled = next
}

// RegisterNode adds a node to every subsystem's membership view. Disabled
// subsystems track membership too, so a later pattern switch sees the full
// swarm.
func (m *Manager) RegisterNode(node *types.Node) error {
	if node == nil || node.ID == "" {
		return types.NewError(types.ErrInvalidConfig, "node requires an ID").WithSubsystem("coordinator")
	}

	m.mu.Lock()
	if m.shutdown {
		m.mu.Unlock()
		return types.NewError(types.ErrShutdown, "coordinator is shut down").WithSubsystem("coordinator")
	}
	_, known := m.nodes[node.ID]
	m.nodes[node.ID] = node.Clone()
	count := len(m.nodes)
	m.mu.Unlock()

	m.election.AddNode(node)
	m.consensus.AddNode(node)
	m.worksteal.AddNode(node)
	m.hierarchy.AddNode(node)

	if m.collector != nil {
		m.collector.SetNodeCount(count)
	}
	if !known {
		m.events.Publish(bus.NewNodeRegistered(node.ID))
		m.logger.Info("node registered", zap.String("node_id", node.ID), zap.Int("nodes", count))
	}
	return nil
}

// UnregisterNode removes a node from every subsystem. Unknown nodes return a
// NODE_NOT_FOUND error.
func (m *Manager) UnregisterNode(nodeID string) error {
	m.mu.Lock()
	if _, ok := m.nodes[nodeID]; !ok {
		m.mu.Unlock()
		return types.NewNodeNotFoundError(nodeID).WithSubsystem("coordinator")
	}
	delete(m.nodes, nodeID)
	count := len(m.nodes)
	m.mu.Unlock()

	m.election.RemoveNode(nodeID)
	m.consensus.RemoveNode(nodeID)
	m.worksteal.RemoveNode(nodeID)
	m.hierarchy.RemoveNode(nodeID)

	if m.collector != nil {
		m.collector.SetNodeCount(count)
	}
	m.logger.Info("node unregistered", zap.String("node_id", nodeID), zap.Int("nodes", count))
	return nil
}

// StartElection runs one election round on the election subsystem.
func (m *Manager) StartElection(ctx context.Context) (string, error) {
	m.mu.Lock()
	enabled := m.enabled.election
	m.mu.Unlock()
	if !enabled {
		return "", types.NewSubsystemDisabledError("election")
	}

	started := time.Now()
	leader, err := m.election.StartElection(ctx)
	if m.collector != nil {
		m.collector.RecordElection(string(m.cfg.Election.Algorithm), err == nil, time.Since(started))
	}
	return leader, err
}

// ProposeConsensus submits a command to the replicated log and reports whether
// a majority committed it. When no consensus leader exists yet, one is elected
// first; failing that the proposal is rejected.
func (m *Manager) ProposeConsensus(ctx context.Context, command any) (bool, error) {
	m.mu.Lock()
	enabled := m.enabled.consensus
	m.mu.Unlock()
	if !enabled {
		return false, types.NewSubsystemDisabledError("consensus")
	}

	if m.consensus.GetState().LeaderID == "" {
		if _, err := m.consensus.ElectLeader(ctx); err != nil {
			m.logger.Debug("consensus leader election failed before proposal", zap.Error(err))
			return false, nil
		}
	}

	started := time.Now()
	accepted := m.consensus.Propose(ctx, command)
	if m.collector != nil {
		m.collector.RecordProposal(accepted, m.consensus.GetState().CommitIndex, time.Since(started))
	}
	return accepted, nil
}

// SubmitWork routes a work item into the work-stealing scheduler.
func (m *Manager) SubmitWork(item *worksteal.WorkItem) (string, error) {
	m.mu.Lock()
	enabled := m.enabled.worksteal
	m.mu.Unlock()
	if !enabled {
		return "", types.NewSubsystemDisabledError("work-stealing")
	}
	return m.worksteal.SubmitWork(item)
}

// DelegateTask pushes a task down the hierarchy. A false result means the
// delegation was declined (unknown node, capacity, overload), not an error.
func (m *Manager) DelegateTask(req hierarchy.DelegationRequest) (bool, error) {
	m.mu.Lock()
	enabled := m.enabled.hierarchy
	m.mu.Unlock()
	if !enabled {
		return false, types.NewSubsystemDisabledError("hierarchical")
	}

	started := time.Now()
	accepted := m.hierarchy.Delegate(req)
	if m.collector != nil {
		m.collector.RecordDelegation(accepted, time.Since(started))
	}
	return accepted, nil
}

// EscalateTask forwards a problem up the hierarchy. A false result means the
// escalator has no supervisor.
func (m *Manager) EscalateTask(req hierarchy.EscalationRequest) (bool, error) {
	m.mu.Lock()
	enabled := m.enabled.hierarchy
	m.mu.Unlock()
	if !enabled {
		return false, types.NewSubsystemDisabledError("hierarchical")
	}

	escalated := m.hierarchy.Escalate(req)
	if escalated && m.collector != nil {
		m.collector.RecordEscalation()
	}
	return escalated, nil
}

// SwitchPattern atomically changes the active coordination pattern: subsystems
// the new pattern does not use are stopped with their state preserved, newly
// required ones are started.
func (m *Manager) SwitchPattern(p Pattern) error {
	next, err := p.subsystems()
	if err != nil {
		return err
	}

	m.mu.Lock()
	if m.shutdown {
		m.mu.Unlock()
		return types.NewError(types.ErrShutdown, "coordinator is shut down").WithSubsystem("coordinator")
	}
	from := m.pattern
	if from == p {
		m.mu.Unlock()
		return nil
	}
	m.pattern = p
	if m.running {
		m.applyEnablementLocked(next)
	} else {
		m.enabled = next
	}
	m.mu.Unlock()

	if m.collector != nil {
		m.collector.RecordPatternSwitch(string(p))
	}
	m.events.Publish(bus.NewPatternSwitched(string(from), string(p)))
	m.logger.Info("pattern switched", zap.String("from", string(from)), zap.String("to", string(p)))
	return nil
}

// Pattern returns the active coordination pattern.
func (m *Manager) Pattern() Pattern {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pattern
}

// Leader returns the current election leader, empty if none.
func (m *Manager) Leader() string {
	return m.election.CurrentLeader()
}

// GetCoordinationStatus assembles a snapshot across every subsystem.
func (m *Manager) GetCoordinationStatus() Status {
	m.mu.Lock()
	pattern := m.pattern
	enabled := m.enabled
	nodes := len(m.nodes)
	m.mu.Unlock()

	return Status{
		Pattern:        pattern,
		Leader:         m.election.CurrentLeader(),
		Consensus:      m.consensus.GetState(),
		WorkQueues:     m.worksteal.QueueStats(),
		HierarchyDepth: m.hierarchy.Depth(),
		Nodes:          nodes,
		Enabled: map[string]bool{
			"election":      enabled.election,
			"consensus":     enabled.consensus,
			"work-stealing": enabled.worksteal,
			"hierarchical":  enabled.hierarchy,
		},
		Metrics: m.GetMetrics(),
	}
}

// GetMetrics computes a fresh aggregate snapshot across the subsystems.
func (m *Manager) GetMetrics() Metrics {
	m.mu.Lock()
	started := m.started
	m.mu.Unlock()
	if started.IsZero() {
		started = time.Now()
	}

	elect := m.election.Stats()
	cons := m.consensus.Stats()
	work := m.worksteal.Stats()
	hier := m.hierarchy.Stats()

	snapshot := aggregate(started, m.hierarchy.ActiveDelegations(), elect, cons, work, hier)
	snapshot.Elections = elect.Operations
	snapshot.ConsensusOps = cons.Operations
	snapshot.WorkItemsProcessed = work.Operations

	m.mu.Lock()
	m.lastMetrics = snapshot
	m.mu.Unlock()
	return snapshot
}

// Shutdown stops the metrics loop, every subsystem and, when owned, the event
// bus. Idempotent; a shutdown manager rejects further operations.
func (m *Manager) Shutdown() error {
	m.mu.Lock()
	if m.shutdown {
		m.mu.Unlock()
		return nil
	}
	m.shutdown = true
	wasRunning := m.running
	m.running = false
	m.stealScan.Store(false)
	subs := m.subs
	m.subs = nil
	done := m.metricsDone
	m.mu.Unlock()

	if wasRunning && done != nil {
		close(done)
		m.wg.Wait()
	}
	for _, id := range subs {
		m.events.Unsubscribe(id)
	}

	m.election.Stop()
	m.consensus.Stop()
	m.worksteal.Close()
	m.hierarchy.Stop()

	m.events.Publish(bus.NewShutdown())
	if m.ownBus {
		m.events.Stop()
	}
	m.logger.Info("coordinator shut down")
	return nil
}

func (m *Manager) metricsLoop(done <-chan struct{}) {
	defer m.wg.Done()
	ticker := time.NewTicker(m.cfg.MetricsInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			m.GetMetrics()
		case <-done:
			return
		}
	}
}

// onNodeJoined admits a bus-announced node into the swarm.
func (m *Manager) onNodeJoined(event bus.Event) {
	e, ok := event.(bus.NodeJoinedEvent)
	if !ok {
		return
	}
	node := types.NewNode(e.NodeID, e.Priority)
	node.Capabilities = e.Capabilities
	node.Metadata = e.Metadata
	if err := m.RegisterNode(node); err != nil {
		m.logger.Warn("node join rejected", zap.String("node_id", e.NodeID), zap.Error(err))
	}
}

// onNodeLeft evicts a bus-announced departure.
func (m *Manager) onNodeLeft(event bus.Event) {
	e, ok := event.(bus.NodeLeftEvent)
	if !ok {
		return
	}
	if err := m.UnregisterNode(e.NodeID); err != nil {
		m.logger.Debug("departure for unknown node", zap.String("node_id", e.NodeID))
	}
}

// onWorkSettled records a settled work item with the collector.
func (m *Manager) onWorkSettled(event bus.Event) {
	switch e := event.(type) {
	case bus.WorkCompletedEvent:
		m.collector.RecordWorkItem(true, e.Latency)
	case bus.WorkFailedEvent:
		m.collector.RecordWorkItem(false, 0)
	}
}

// onWorkStolen records migrated work items with the collector.
func (m *Manager) onWorkStolen(event bus.Event) {
	if e, ok := event.(bus.WorkStolenEvent); ok {
		m.collector.RecordSteal(e.Count)
	}
}

// onPartition degrades consensus coordination to leader-follower: a
// partitioned swarm cannot reach majority, but a single-side leader can still
// make progress.
func (m *Manager) onPartition(event bus.Event) {
	m.mu.Lock()
	current := m.pattern
	m.mu.Unlock()
	if current != PatternConsensus {
		return
	}

	m.logger.Warn("network partition detected, degrading to leader-follower coordination")
	if err := m.SwitchPattern(PatternLeaderFollower); err != nil {
		m.logger.Error("pattern degradation failed", zap.Error(err))
	}
}

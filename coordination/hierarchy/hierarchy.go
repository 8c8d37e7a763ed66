package hierarchy

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mikkihugo/zenflow/bus"
	"github.com/mikkihugo/zenflow/types"
)

// Role of a node inside the tree.
type Role string

const (
	RoleCoordinator Role = "coordinator"
	RoleLeaf        Role = "leaf"
)

// Thresholds are the per-metric utilization trip points of a node.
type Thresholds struct {
	Delegate  float64 `json:"delegate" yaml:"delegate"`
	Escalate  float64 `json:"escalate" yaml:"escalate"`
	Rebalance float64 `json:"rebalance" yaml:"rebalance"`
}

// Config holds hierarchical subsystem configuration.
type Config struct {
	FanOut              int           `json:"fan_out" yaml:"fan_out"`
	MaxDepth            int           `json:"max_depth" yaml:"max_depth"`
	DelegationThreshold float64       `json:"delegation_threshold" yaml:"delegation_threshold"` // max delegate utilization
	RebalanceInterval   time.Duration `json:"rebalance_interval" yaml:"rebalance_interval"`
	MaxDelegations      int           `json:"max_delegations" yaml:"max_delegations"`
	NodeCapacity        float64       `json:"node_capacity" yaml:"node_capacity"`
}

// DefaultConfig returns sensible hierarchy defaults.
func DefaultConfig() Config {
	return Config{
		FanOut:              3,
		MaxDepth:            4,
		DelegationThreshold: 0.8,
		RebalanceInterval:   time.Second,
		MaxDelegations:      5,
		NodeCapacity:        10,
	}
}

// HNode is one node's position and load inside the tree.
type HNode struct {
	ID                 string              `json:"id"`
	ParentID           string              `json:"parent_id,omitempty"`
	Children           map[string]struct{} `json:"-"`
	Level              int                 `json:"level"` // root = 0
	Role               Role                `json:"role"`
	MaxDelegations     int                 `json:"max_delegations"`
	CurrentDelegations int                 `json:"current_delegations"`
	Thresholds         Thresholds          `json:"thresholds"`
	Load               float64             `json:"load"`
	Capacity           float64             `json:"capacity"`
}

// Utilization is current load over capacity.
func (n *HNode) Utilization() float64 {
	if n.Capacity <= 0 {
		return 0
	}
	return n.Load / n.Capacity
}

// DelegationRequest asks a delegator to push a task down to a delegate.
type DelegationRequest struct {
	DelegatorID string `json:"delegator_id"`
	DelegateID  string `json:"delegate_id"`
	Task        any    `json:"task"`
	Priority    int    `json:"priority"`
}

// EscalationRequest forwards a problem from an escalator to its supervisor.
type EscalationRequest struct {
	EscalatorID string `json:"escalator_id"`
	Task        any    `json:"task"`
	Priority    int    `json:"priority"`
	Reason      string `json:"reason"`
	Urgency     string `json:"urgency"`
}

// RebalanceHook is invoked for every node flagged by the rebalance tick.
type RebalanceHook func(node HNode)

// Manager maintains the delegation tree.
type Manager struct {
	cfg    Config
	logger *zap.Logger
	events bus.Bus

	mu     sync.Mutex
	nodes  map[string]*HNode
	rootID string
	hook   RebalanceHook

	stats *types.OpStats

	running bool
	done    chan struct{}
	wg      sync.WaitGroup
}

// NewManager creates a hierarchy manager.
func NewManager(cfg Config, events bus.Bus, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	def := DefaultConfig()
	if cfg.FanOut <= 0 {
		cfg.FanOut = def.FanOut
	}
	if cfg.MaxDepth <= 0 {
		cfg.MaxDepth = def.MaxDepth
	}
	if cfg.DelegationThreshold <= 0 {
		cfg.DelegationThreshold = def.DelegationThreshold
	}
	if cfg.RebalanceInterval <= 0 {
		cfg.RebalanceInterval = def.RebalanceInterval
	}
	if cfg.MaxDelegations <= 0 {
		cfg.MaxDelegations = def.MaxDelegations
	}
	if cfg.NodeCapacity <= 0 {
		cfg.NodeCapacity = def.NodeCapacity
	}
	return &Manager{
		cfg:    cfg,
		logger: logger.With(zap.String("component", "hierarchy")),
		events: events,
		nodes:  make(map[string]*HNode),
		stats:  types.NewOpStats(100),
	}
}

// Start launches the rebalance ticker. Idempotent; a stopped manager can be
// started again with its tree intact.
func (m *Manager) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return
	}
	m.running = true
	m.done = make(chan struct{})
	m.wg.Add(1)
	go m.rebalanceLoop(m.done)
}

// Stop halts the ticker. Idempotent; the tree is preserved.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	close(m.done)
	m.mu.Unlock()
	m.wg.Wait()
}

// SetRebalanceHook installs the collaborator callback for flagged nodes.
func (m *Manager) SetRebalanceHook(hook RebalanceHook) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hook = hook
}

// AddNode places a node into the tree under the best-fit parent.
func (m *Manager) AddNode(node *types.Node) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.nodes[node.ID]; ok {
		return
	}

	h := &HNode{
		ID:             node.ID,
		Children:       make(map[string]struct{}),
		Role:           RoleLeaf,
		MaxDelegations: m.cfg.MaxDelegations,
		Thresholds: Thresholds{
			Delegate:  m.cfg.DelegationThreshold,
			Escalate:  0.9,
			Rebalance: 0.85,
		},
		Load:     node.Load * m.cfg.NodeCapacity,
		Capacity: m.cfg.NodeCapacity,
	}

	if m.rootID == "" {
		m.rootID = h.ID
		h.Level = 0
		m.nodes[h.ID] = h
		m.logger.Info("hierarchy root established", zap.String("node_id", h.ID))
		return
	}

	parent := m.bestFitParentLocked(nil)
	if parent == nil {
		parent = m.nodes[m.rootID]
	}
	m.attachLocked(h, parent)
	m.nodes[h.ID] = h
	m.logger.Debug("node placed",
		zap.String("node_id", h.ID),
		zap.String("parent_id", parent.ID),
		zap.Int("level", h.Level))
}

// bestFitParentLocked returns the lowest-utilization node with depth and
// fan-out headroom, skipping any IDs in exclude.
func (m *Manager) bestFitParentLocked(exclude map[string]struct{}) *HNode {
	var best *HNode
	for _, n := range m.nodes {
		if exclude != nil {
			if _, skip := exclude[n.ID]; skip {
				continue
			}
		}
		if n.Level >= m.cfg.MaxDepth {
			continue
		}
		if len(n.Children) >= m.cfg.FanOut {
			continue
		}
		if best == nil || n.Utilization() < best.Utilization() {
			best = n
		}
	}
	return best
}

func (m *Manager) attachLocked(child, parent *HNode) {
	child.ParentID = parent.ID
	child.Level = parent.Level + 1
	parent.Children[child.ID] = struct{}{}
	parent.Role = RoleCoordinator
	m.relevelLocked(child)
}

// relevelLocked fixes levels of the subtree rooted at n.
func (m *Manager) relevelLocked(n *HNode) {
	for childID := range n.Children {
		child := m.nodes[childID]
		child.Level = n.Level + 1
		m.relevelLocked(child)
	}
}

// RemoveNode drops a node and reparents its children by the placement rule.
func (m *Manager) RemoveNode(nodeID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	node, ok := m.nodes[nodeID]
	if !ok {
		return
	}
	delete(m.nodes, nodeID)

	if node.ParentID != "" {
		if parent, ok := m.nodes[node.ParentID]; ok {
			delete(parent.Children, nodeID)
			if len(parent.Children) == 0 {
				parent.Role = RoleLeaf
			}
		}
	}

	orphans := make([]*HNode, 0, len(node.Children))
	for childID := range node.Children {
		orphans = append(orphans, m.nodes[childID])
	}

	if m.rootID == nodeID {
		m.rootID = ""
		if len(orphans) > 0 {
			// Promote the least-utilized orphan to root.
			newRoot := orphans[0]
			for _, o := range orphans[1:] {
				if o.Utilization() < newRoot.Utilization() {
					newRoot = o
				}
			}
			m.rootID = newRoot.ID
			newRoot.ParentID = ""
			newRoot.Level = 0
			m.relevelLocked(newRoot)
			rest := orphans[:0]
			for _, o := range orphans {
				if o.ID != newRoot.ID {
					rest = append(rest, o)
				}
			}
			orphans = rest
		}
	}

	for _, orphan := range orphans {
		exclude := m.subtreeLocked(orphan)
		parent := m.bestFitParentLocked(exclude)
		if parent == nil {
			parent = m.nodes[m.rootID]
		}
		if parent == nil {
			// Orphan becomes the new root of an otherwise empty tree.
			m.rootID = orphan.ID
			orphan.ParentID = ""
			orphan.Level = 0
			m.relevelLocked(orphan)
			continue
		}
		m.attachLocked(orphan, parent)
	}
}

// subtreeLocked collects the IDs of n and all its descendants.
func (m *Manager) subtreeLocked(n *HNode) map[string]struct{} {
	ids := map[string]struct{}{n.ID: {}}
	var walk func(*HNode)
	walk = func(cur *HNode) {
		for childID := range cur.Children {
			ids[childID] = struct{}{}
			walk(m.nodes[childID])
		}
	}
	walk(n)
	return ids
}

// Delegate pushes a task from delegator to delegate. It returns false when
// either node is unknown, the delegator has no spare delegation capacity, or
// the delegate is running above the delegation threshold.
func (m *Manager) Delegate(req DelegationRequest) bool {
	started := time.Now()

	m.mu.Lock()
	delegator, ok := m.nodes[req.DelegatorID]
	if !ok {
		m.mu.Unlock()
		m.stats.Record(time.Since(started), false)
		m.logger.Debug("delegation rejected, unknown delegator", zap.String("node_id", req.DelegatorID))
		return false
	}
	delegate, ok := m.nodes[req.DelegateID]
	if !ok {
		m.mu.Unlock()
		m.stats.Record(time.Since(started), false)
		m.logger.Debug("delegation rejected, unknown delegate", zap.String("node_id", req.DelegateID))
		return false
	}
	if delegator.CurrentDelegations >= delegator.MaxDelegations {
		m.mu.Unlock()
		m.stats.Record(time.Since(started), false)
		m.logger.Debug("delegation rejected, delegator at capacity", zap.String("node_id", req.DelegatorID))
		return false
	}
	if delegate.Utilization() > delegate.Thresholds.Delegate {
		m.mu.Unlock()
		m.stats.Record(time.Since(started), false)
		m.logger.Debug("delegation rejected, delegate overloaded",
			zap.String("node_id", req.DelegateID),
			zap.Float64("utilization", delegate.Utilization()))
		return false
	}

	delegator.CurrentDelegations++
	delegate.Load++
	m.mu.Unlock()

	latency := time.Since(started)
	m.stats.Record(latency, true)
	m.publish(bus.NewDelegationCreated(req.DelegatorID, req.DelegateID, req.Task, latency))
	return true
}

// Escalate forwards a problem to the escalator's parent. It returns false
// only when the escalator is unknown or has no parent.
func (m *Manager) Escalate(req EscalationRequest) bool {
	started := time.Now()

	m.mu.Lock()
	escalator, ok := m.nodes[req.EscalatorID]
	if !ok || escalator.ParentID == "" {
		m.mu.Unlock()
		m.stats.Record(time.Since(started), false)
		return false
	}
	supervisorID := escalator.ParentID
	m.mu.Unlock()

	m.stats.Record(time.Since(started), true)
	m.publish(bus.NewEscalationTriggered(req.EscalatorID, supervisorID, req.Reason, req.Urgency))
	return true
}

// Node returns a copy of one tree node.
func (m *Manager) Node(id string) (HNode, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.nodes[id]
	if !ok {
		return HNode{}, false
	}
	return m.copyLocked(n), true
}

// Nodes returns copies of every tree node.
func (m *Manager) Nodes() []HNode {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]HNode, 0, len(m.nodes))
	for _, n := range m.nodes {
		out = append(out, m.copyLocked(n))
	}
	return out
}

func (m *Manager) copyLocked(n *HNode) HNode {
	c := *n
	c.Children = make(map[string]struct{}, len(n.Children))
	for id := range n.Children {
		c.Children[id] = struct{}{}
	}
	return c
}

// Depth returns the number of levels in the tree.
func (m *Manager) Depth() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	depth := 0
	for _, n := range m.nodes {
		if n.Level+1 > depth {
			depth = n.Level + 1
		}
	}
	return depth
}

// ActiveDelegations sums in-flight delegations across the tree.
func (m *Manager) ActiveDelegations() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	total := 0
	for _, n := range m.nodes {
		total += n.CurrentDelegations
	}
	return total
}

// Stats returns the subsystem's operation statistics.
func (m *Manager) Stats() types.OpStatsSnapshot {
	return m.stats.Snapshot()
}

func (m *Manager) rebalanceLoop(done <-chan struct{}) {
	defer m.wg.Done()
	ticker := time.NewTicker(m.cfg.RebalanceInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			m.RebalanceOnce()
		case <-done:
			return
		}
	}
}

// RebalanceOnce flags every node running above its rebalance threshold. The
// corrective action itself is the hook collaborator's concern.
func (m *Manager) RebalanceOnce() {
	m.mu.Lock()
	var flagged []HNode
	for _, n := range m.nodes {
		if n.Utilization() > n.Thresholds.Rebalance {
			flagged = append(flagged, m.copyLocked(n))
		}
	}
	hook := m.hook
	m.mu.Unlock()

	for _, n := range flagged {
		m.logger.Warn("node flagged for rebalance",
			zap.String("node_id", n.ID),
			zap.Float64("utilization", n.Utilization()))
		if hook != nil {
			hook(n)
		}
	}
}

func (m *Manager) publish(event bus.Event) {
	if m.events != nil {
		m.events.Publish(event)
	}
}

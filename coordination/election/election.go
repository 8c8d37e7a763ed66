package election

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mikkihugo/zenflow/bus"
	"github.com/mikkihugo/zenflow/coordination/transport"
	"github.com/mikkihugo/zenflow/types"
)

// Algorithm selects the election strategy.
type Algorithm string

const (
	AlgorithmBully     Algorithm = "bully"
	AlgorithmRing      Algorithm = "ring"
	AlgorithmRaftVote  Algorithm = "raft-vote"
	AlgorithmFastBully Algorithm = "fast-bully"
)

// Config holds election subsystem configuration.
type Config struct {
	Algorithm         Algorithm     `json:"algorithm" yaml:"algorithm"`
	HeartbeatInterval time.Duration `json:"heartbeat_interval" yaml:"heartbeat_interval"`
	Timeout           time.Duration `json:"timeout" yaml:"timeout"`
}

// DefaultConfig returns sensible election defaults.
func DefaultConfig() Config {
	return Config{
		Algorithm:         AlgorithmRaftVote,
		HeartbeatInterval: 50 * time.Millisecond,
		Timeout:           2 * time.Second,
	}
}

// Role is the local election role.
type Role string

const (
	RoleFollower  Role = "follower"
	RoleCandidate Role = "candidate"
	RoleLeader    Role = "leader"
)

// Manager runs leader elections over its node projection. It owns its own
// term counter, independent from the consensus subsystem's.
type Manager struct {
	cfg       Config
	logger    *zap.Logger
	events    bus.Bus
	transport transport.Transport

	mu            sync.Mutex
	nodes         map[string]*types.Node
	order         []string // insertion order, first active node initiates
	term          uint64
	role          Role
	votedFor      string
	votes         map[string]bool
	leaderID      string
	lastHeartbeat time.Time
	electing      bool

	rng   *rand.Rand
	stats *types.OpStats

	running bool
	done    chan struct{}
	wg      sync.WaitGroup
}

// NewManager creates an election manager. A nil logger falls back to
// zap.NewNop(); a nil bus disables event emission.
func NewManager(cfg Config, tp transport.Transport, events bus.Bus, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		cfg:       cfg,
		logger:    logger.With(zap.String("component", "election"), zap.String("algorithm", string(cfg.Algorithm))),
		events:    events,
		transport: tp,
		nodes:     make(map[string]*types.Node),
		role:      RoleFollower,
		votes:     make(map[string]bool),
		rng:       rand.New(rand.NewSource(time.Now().UnixNano())),
		stats:     types.NewOpStats(100),
	}
}

// Start launches the leader failure monitor. Idempotent; a stopped manager
// can be started again with its state intact.
func (m *Manager) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return
	}
	m.running = true
	m.done = make(chan struct{})
	m.wg.Add(1)
	go m.monitorLoop(m.done)
}

// Stop halts all timers. Idempotent; election state survives for a later
// re-enable.
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

// AddNode registers a node projection.
func (m *Manager) AddNode(node *types.Node) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.nodes[node.ID]; !ok {
		m.order = append(m.order, node.ID)
	}
	m.nodes[node.ID] = node.Clone()
	m.logger.Debug("node added", zap.String("node_id", node.ID), zap.Int("priority", node.Priority))
}

// RemoveNode evicts a node. Removing the current leader forces an immediate
// re-election while the manager is running; a stopped manager only records
// the vacancy.
func (m *Manager) RemoveNode(nodeID string) {
	m.mu.Lock()
	delete(m.nodes, nodeID)
	for i, id := range m.order {
		if id == nodeID {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	wasLeader := m.leaderID == nodeID
	if wasLeader {
		m.leaderID = ""
	}
	remaining := len(m.activeNodesLocked())
	running := m.running
	m.mu.Unlock()

	if wasLeader {
		m.publish(bus.NewLeaderFailed(nodeID))
		if running && remaining > 0 {
			ctx, cancel := context.WithTimeout(context.Background(), m.cfg.Timeout)
			defer cancel()
			if _, err := m.StartElection(ctx); err != nil {
				m.logger.Warn("re-election after leader removal failed", zap.Error(err))
			}
		}
	}
}

// CurrentLeader returns the last elected leader ID, empty if none.
func (m *Manager) CurrentLeader() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.leaderID
}

// Term returns the current term.
func (m *Manager) Term() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.term
}

// Stats returns the subsystem's operation statistics.
func (m *Manager) Stats() types.OpStatsSnapshot {
	return m.stats.Snapshot()
}

// NodeCount returns the number of known nodes.
func (m *Manager) NodeCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.nodes)
}

// StartElection runs one election round with the configured algorithm and
// returns the winner's ID. It returns an ELECTION_TIMEOUT error when the
// round cannot reach resolution within the configured timeout; retrying is
// the caller's choice.
func (m *Manager) StartElection(ctx context.Context) (string, error) {
	started := time.Now()

	m.mu.Lock()
	if m.electing {
		m.mu.Unlock()
		return "", types.NewElectionTimeoutError("election already in progress").WithSubsystem("election")
	}
	m.electing = true
	candidate := m.initiatorLocked()
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		m.electing = false
		m.mu.Unlock()
	}()

	if candidate == nil {
		return "", types.NewElectionTimeoutError("no active nodes").WithSubsystem("election")
	}

	if m.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.cfg.Timeout)
		defer cancel()
	}

	var (
		winner string
		err    error
	)
	switch m.cfg.Algorithm {
	case AlgorithmRing:
		winner, err = m.runRing(ctx)
	case AlgorithmRaftVote:
		winner, err = m.runRaftVote(ctx, candidate)
	case AlgorithmBully, AlgorithmFastBully:
		winner, err = m.runBully(ctx, candidate)
	default:
		winner, err = m.runBully(ctx, candidate)
	}
	if err != nil {
		m.stats.Record(time.Since(started), false)
		return "", err
	}

	term := m.becomeLeader(winner)
	latency := time.Since(started)
	m.stats.Record(latency, true)
	m.publish(bus.NewLeaderElected(winner, term, latency))
	m.logger.Info("leader elected",
		zap.String("leader_id", winner),
		zap.Uint64("term", term),
		zap.Duration("latency", latency))
	return winner, nil
}

// initiatorLocked picks the election initiator: the first active node in
// registration order.
func (m *Manager) initiatorLocked() *types.Node {
	for _, id := range m.order {
		if n := m.nodes[id]; n.IsActive() {
			return n
		}
	}
	return nil
}

func (m *Manager) activeNodesLocked() []*types.Node {
	active := make([]*types.Node, 0, len(m.nodes))
	for _, id := range m.order {
		if n := m.nodes[id]; n.IsActive() {
			active = append(active, n)
		}
	}
	return active
}

// becomeLeader installs the winner, updates roles and restarts heartbeats.
// Returns the term of the victory.
func (m *Manager) becomeLeader(winnerID string) uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.leaderID = winnerID
	m.lastHeartbeat = time.Now()
	for id, n := range m.nodes {
		if id == winnerID {
			n.Type = types.NodeTypeLeader
		} else {
			n.Type = types.NodeTypeFollower
		}
	}
	m.role = RoleFollower
	if winnerID != "" {
		m.role = RoleLeader
	}
	return m.term
}

// monitorLoop runs heartbeat fan-out for the current leader and watches for
// leader silence. Silence beyond 3x the heartbeat interval triggers an
// automatic re-election.
func (m *Manager) monitorLoop(done <-chan struct{}) {
	defer m.wg.Done()

	interval := m.cfg.HeartbeatInterval
	if interval <= 0 {
		interval = DefaultConfig().HeartbeatInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.tickHeartbeat(interval)
		case <-done:
			return
		}
	}
}

func (m *Manager) tickHeartbeat(interval time.Duration) {
	m.mu.Lock()
	leaderID := m.leaderID
	silence := time.Since(m.lastHeartbeat)
	peers := make([]string, 0, len(m.nodes))
	for _, n := range m.activeNodesLocked() {
		if n.ID != leaderID {
			peers = append(peers, n.ID)
		}
	}
	leaderAlive := leaderID != "" && m.nodes[leaderID].IsActive()
	m.mu.Unlock()

	if leaderID == "" {
		return
	}

	if leaderAlive {
		// Leader fan-out: any acknowledged heartbeat refreshes the lease.
		ctx, cancel := context.WithTimeout(context.Background(), interval)
		acked := m.fanOutHeartbeat(ctx, leaderID, peers)
		cancel()
		if acked || len(peers) == 0 {
			m.mu.Lock()
			m.lastHeartbeat = time.Now()
			m.mu.Unlock()
			return
		}
	}

	if silence > 3*interval {
		m.logger.Warn("leader heartbeat silence exceeded",
			zap.String("leader_id", leaderID),
			zap.Duration("silence", silence))
		m.publish(bus.NewLeaderFailed(leaderID))

		m.mu.Lock()
		m.leaderID = ""
		if n, ok := m.nodes[leaderID]; ok {
			n.Status = types.NodeStatusFailed
		}
		m.mu.Unlock()

		ctx, cancel := context.WithTimeout(context.Background(), m.cfg.Timeout)
		defer cancel()
		if _, err := m.StartElection(ctx); err != nil {
			m.logger.Warn("automatic re-election failed", zap.Error(err))
		}
	}
}

func (m *Manager) fanOutHeartbeat(ctx context.Context, leaderID string, peers []string) bool {
	m.mu.Lock()
	term := m.term
	m.mu.Unlock()

	acked := false
	for _, peer := range peers {
		resp, err := m.transport.Call(ctx, transport.Message{
			Kind: transport.KindHeartbeat,
			From: leaderID,
			To:   peer,
			Term: term,
		})
		if err != nil {
			continue
		}
		if resp.Granted {
			acked = true
		}
	}
	return acked
}

func (m *Manager) publish(event bus.Event) {
	if m.events != nil {
		m.events.Publish(event)
	}
}

// majority returns the quorum size for n nodes.
func majority(n int) int {
	return n/2 + 1
}

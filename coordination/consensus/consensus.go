package consensus

import (
	"context"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mikkihugo/zenflow/bus"
	"github.com/mikkihugo/zenflow/coordination/transport"
	"github.com/mikkihugo/zenflow/types"
)

// Role is the consensus role of this instance.
type Role string

const (
	RoleFollower  Role = "follower"
	RoleCandidate Role = "candidate"
	RoleLeader    Role = "leader"
)

// Config holds consensus subsystem configuration.
type Config struct {
	ElectionTimeoutMin time.Duration `json:"election_timeout_min" yaml:"election_timeout_min"`
	ElectionTimeoutMax time.Duration `json:"election_timeout_max" yaml:"election_timeout_max"`
	HeartbeatInterval  time.Duration `json:"heartbeat_interval" yaml:"heartbeat_interval"`
}

// DefaultConfig returns sensible consensus defaults.
func DefaultConfig() Config {
	return Config{
		ElectionTimeoutMin: 150 * time.Millisecond,
		ElectionTimeoutMax: 300 * time.Millisecond,
		HeartbeatInterval:  50 * time.Millisecond,
	}
}

// State is a snapshot of the consensus state machine.
type State struct {
	Term        uint64 `json:"term"`
	Role        Role   `json:"role"`
	LeaderID    string `json:"leader_id"`
	LogLength   int    `json:"log_length"`
	CommitIndex int    `json:"commit_index"` // -1 when nothing committed
	LastApplied int    `json:"last_applied"`
}

// appendEntriesArgs is the simulated append-entries RPC payload.
type appendEntriesArgs struct {
	PrevIndex    int
	PrevTerm     uint64
	Entries      []*LogEntry
	LeaderCommit int
}

// Manager is the replicated-log consensus engine.
type Manager struct {
	cfg       Config
	logger    *zap.Logger
	events    bus.Bus
	transport transport.Transport

	mu          sync.Mutex
	nodes       map[string]*types.Node
	order       []string
	term        uint64
	role        Role
	votedFor    string
	leaderID    string
	log         []*LogEntry
	commitIndex int
	lastApplied int
	nextIndex   map[string]int
	matchIndex  map[string]int
	lastContact time.Time

	rng   *rand.Rand
	stats *types.OpStats

	running bool
	done    chan struct{}
	wg      sync.WaitGroup
}

// NewManager creates a consensus manager.
func NewManager(cfg Config, tp transport.Transport, events bus.Bus, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ElectionTimeoutMin <= 0 || cfg.ElectionTimeoutMax < cfg.ElectionTimeoutMin {
		def := DefaultConfig()
		cfg.ElectionTimeoutMin = def.ElectionTimeoutMin
		cfg.ElectionTimeoutMax = def.ElectionTimeoutMax
	}
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = DefaultConfig().HeartbeatInterval
	}
	return &Manager{
		cfg:         cfg,
		logger:      logger.With(zap.String("component", "consensus")),
		events:      events,
		transport:   tp,
		nodes:       make(map[string]*types.Node),
		role:        RoleFollower,
		commitIndex: -1,
		lastApplied: -1,
		nextIndex:   make(map[string]int),
		matchIndex:  make(map[string]int),
		lastContact: time.Now(),
		rng:         rand.New(rand.NewSource(time.Now().UnixNano())),
		stats:       types.NewOpStats(100),
	}
}

// Start launches the heartbeat/election loop. Idempotent; a stopped manager
// can be started again with its log and term intact.
func (m *Manager) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return
	}
	m.running = true
	m.done = make(chan struct{})
	m.wg.Add(1)
	go m.run(m.done)
}

// Stop halts all timers. Idempotent; consensus state survives for a later
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

// AddNode registers a node projection and initializes its replication progress.
func (m *Manager) AddNode(node *types.Node) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.nodes[node.ID]; !ok {
		m.order = append(m.order, node.ID)
	}
	m.nodes[node.ID] = node.Clone()
	m.nextIndex[node.ID] = len(m.log)
	m.matchIndex[node.ID] = -1
}

// RemoveNode evicts a node and its replication progress.
func (m *Manager) RemoveNode(nodeID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.nodes, nodeID)
	delete(m.nextIndex, nodeID)
	delete(m.matchIndex, nodeID)
	for i, id := range m.order {
		if id == nodeID {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	if m.leaderID == nodeID {
		m.leaderID = ""
		if m.role == RoleLeader {
			m.role = RoleFollower
		}
	}
}

// GetState returns a snapshot of the state machine.
func (m *Manager) GetState() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return State{
		Term:        m.term,
		Role:        m.role,
		LeaderID:    m.leaderID,
		LogLength:   len(m.log),
		CommitIndex: m.commitIndex,
		LastApplied: m.lastApplied,
	}
}

// Entries returns a copy of the log.
func (m *Manager) Entries() []*LogEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*LogEntry, len(m.log))
	for i, e := range m.log {
		c := *e
		out[i] = &c
	}
	return out
}

// Stats returns the subsystem's operation statistics.
func (m *Manager) Stats() types.OpStatsSnapshot {
	return m.stats.Snapshot()
}

// Propose appends a command at the leader's log tail, replicates it and
// reports whether a strict majority acknowledged it. A false result leaves
// the entry appended but uncommitted; it may be committed by a later
// accepted proposal.
func (m *Manager) Propose(ctx context.Context, command any) bool {
	started := time.Now()

	m.mu.Lock()
	if m.role != RoleLeader {
		m.mu.Unlock()
		m.logger.Debug("proposal rejected, not leader")
		return false
	}

	entry := newLogEntry(m.term, len(m.log), command)
	m.log = append(m.log, entry)

	args := appendEntriesArgs{
		PrevIndex:    entry.Index - 1,
		PrevTerm:     0,
		Entries:      []*LogEntry{entry},
		LeaderCommit: m.commitIndex,
	}
	if args.PrevIndex >= 0 {
		args.PrevTerm = m.log[args.PrevIndex].Term
	}
	leaderID := m.leaderID
	term := m.term
	total := 0
	peers := make([]string, 0, len(m.nodes))
	for _, id := range m.order {
		if n := m.nodes[id]; n.IsActive() {
			total++
			if id != leaderID {
				peers = append(peers, id)
			}
		}
	}
	m.mu.Unlock()

	acks := m.replicate(ctx, leaderID, term, peers, args)
	acks++ // leader acknowledges its own append

	if acks < majority(total) {
		m.stats.Record(time.Since(started), false)
		m.logger.Debug("proposal missed majority",
			zap.Int("acks", acks),
			zap.Int("needed", majority(total)),
			zap.Int("index", entry.Index))
		return false
	}

	m.mu.Lock()
	// Majority reached: commit this entry and everything before it.
	for i := 0; i <= entry.Index && i < len(m.log); i++ {
		m.log[i].Committed = true
	}
	if entry.Index > m.commitIndex {
		m.commitIndex = entry.Index
	}
	m.lastApplied = m.commitIndex
	committed := *m.log[entry.Index]
	m.mu.Unlock()

	latency := time.Since(started)
	m.stats.Record(latency, true)
	m.publish(bus.NewConsensusReached(committed, latency))
	m.publish(bus.NewLogCommitted(committed))
	m.logger.Info("entry committed",
		zap.Int("index", committed.Index),
		zap.Uint64("term", committed.Term),
		zap.Duration("latency", latency))
	return true
}

// replicate fans append-entries out to all peers and returns the number of
// granted acknowledgments. Failures are counted, never escalated.
func (m *Manager) replicate(ctx context.Context, leaderID string, term uint64, peers []string, args appendEntriesArgs) int {
	var acked atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	for _, peer := range peers {
		peer := peer
		g.Go(func() error {
			resp, err := m.transport.Call(gctx, transport.Message{
				Kind:    transport.KindAppendEntries,
				From:    leaderID,
				To:      peer,
				Term:    term,
				Payload: args,
			})
			if err != nil {
				m.logger.Debug("append-entries failed", zap.String("peer", peer), zap.Error(err))
				return nil
			}
			if resp.Granted {
				acked.Add(1)
				m.mu.Lock()
				if len(args.Entries) > 0 {
					last := args.Entries[len(args.Entries)-1].Index
					m.matchIndex[peer] = last
					m.nextIndex[peer] = last + 1
				}
				m.mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return int(acked.Load())
}

// ElectLeader runs the internal candidate/vote/majority flow and installs the
// winner as consensus leader. The term counter here is independent from the
// election subsystem's.
func (m *Manager) ElectLeader(ctx context.Context) (string, error) {
	m.mu.Lock()
	var candidate *types.Node
	for _, id := range m.order {
		if n := m.nodes[id]; n.IsActive() {
			candidate = n
			break
		}
	}
	if candidate == nil {
		m.mu.Unlock()
		return "", types.NewElectionTimeoutError("no active nodes").WithSubsystem("consensus")
	}
	m.term++
	m.role = RoleCandidate
	m.votedFor = candidate.ID
	term := m.term
	total := 0
	peers := make([]string, 0, len(m.nodes))
	for _, id := range m.order {
		if n := m.nodes[id]; n.IsActive() {
			total++
			if id != candidate.ID {
				peers = append(peers, id)
			}
		}
	}
	m.mu.Unlock()

	var granted atomic.Int64
	granted.Store(1) // self-vote

	g, gctx := errgroup.WithContext(ctx)
	for _, peer := range peers {
		peer := peer
		g.Go(func() error {
			resp, err := m.transport.Call(gctx, transport.Message{
				Kind: transport.KindVoteRequest,
				From: candidate.ID,
				To:   peer,
				Term: term,
			})
			if err == nil && resp.Granted {
				granted.Add(1)
			}
			return nil
		})
	}
	_ = g.Wait()

	if int(granted.Load()) < majority(total) {
		m.mu.Lock()
		m.role = RoleFollower
		m.mu.Unlock()
		return "", types.NewElectionTimeoutError("vote majority not reached").WithSubsystem("consensus")
	}

	m.mu.Lock()
	m.role = RoleLeader
	m.leaderID = candidate.ID
	m.lastContact = time.Now()
	m.mu.Unlock()

	m.logger.Info("consensus leader elected",
		zap.String("leader_id", candidate.ID),
		zap.Uint64("term", term))
	return candidate.ID, nil
}

// run drives heartbeats while leading and election timeouts while following.
func (m *Manager) run(done <-chan struct{}) {
	defer m.wg.Done()

	ticker := time.NewTicker(m.cfg.HeartbeatInterval)
	defer ticker.Stop()

	timeout := m.randomElectionTimeout()
	for {
		select {
		case <-ticker.C:
			m.mu.Lock()
			role := m.role
			leaderID := m.leaderID
			silence := time.Since(m.lastContact)
			hasNodes := len(m.nodes) > 0
			m.mu.Unlock()

			if !hasNodes {
				continue
			}

			switch {
			case role == RoleLeader:
				m.heartbeat(leaderID)
			case silence > timeout:
				ctx, cancel := context.WithTimeout(context.Background(), m.cfg.ElectionTimeoutMax)
				if _, err := m.ElectLeader(ctx); err != nil {
					m.logger.Debug("consensus election attempt failed", zap.Error(err))
				}
				cancel()
				timeout = m.randomElectionTimeout()
				m.mu.Lock()
				m.lastContact = time.Now()
				m.mu.Unlock()
			}
		case <-done:
			return
		}
	}
}

// heartbeat sends empty append-entries to every follower.
func (m *Manager) heartbeat(leaderID string) {
	m.mu.Lock()
	term := m.term
	commit := m.commitIndex
	peers := make([]string, 0, len(m.nodes))
	for _, id := range m.order {
		if n := m.nodes[id]; n.IsActive() && id != leaderID {
			peers = append(peers, id)
		}
	}
	m.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), m.cfg.HeartbeatInterval)
	defer cancel()
	m.replicate(ctx, leaderID, term, peers, appendEntriesArgs{
		PrevIndex:    -1,
		LeaderCommit: commit,
	})

	m.mu.Lock()
	m.lastContact = time.Now()
	m.mu.Unlock()
}

func (m *Manager) randomElectionTimeout() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	spread := m.cfg.ElectionTimeoutMax - m.cfg.ElectionTimeoutMin
	if spread <= 0 {
		return m.cfg.ElectionTimeoutMin
	}
	return m.cfg.ElectionTimeoutMin + time.Duration(m.rng.Int63n(int64(spread)))
}

func (m *Manager) publish(event bus.Event) {
	if m.events != nil {
		m.events.Publish(event)
	}
}

func majority(n int) int {
	return n/2 + 1
}

package worksteal

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mikkihugo/zenflow/bus"
	"github.com/mikkihugo/zenflow/coordination/transport"
	"github.com/mikkihugo/zenflow/internal/pool"
	"github.com/mikkihugo/zenflow/types"
)

// Config holds work-stealing subsystem configuration.
type Config struct {
	MaxQueueSize          int           `json:"max_queue_size" yaml:"max_queue_size"`
	LoadBalancingInterval time.Duration `json:"load_balancing_interval" yaml:"load_balancing_interval"`
	ProcessInterval       time.Duration `json:"process_interval" yaml:"process_interval"`
	StealThreshold        int           `json:"steal_threshold" yaml:"steal_threshold"` // pending-count threshold
	StealRatio            float64       `json:"steal_ratio" yaml:"steal_ratio"`         // 0..1 slice of peer pending
	MaxAttempts           int           `json:"max_attempts" yaml:"max_attempts"`
	ExecutionFailureRate  float64       `json:"execution_failure_rate" yaml:"execution_failure_rate"`
	ComplexityUnit        time.Duration `json:"complexity_unit" yaml:"complexity_unit"` // simulated cost per complexity point
	Workers               int           `json:"workers" yaml:"workers"`
}

// DefaultConfig returns sensible work-stealing defaults.
func DefaultConfig() Config {
	return Config{
		MaxQueueSize:          100,
		LoadBalancingInterval: 200 * time.Millisecond,
		ProcessInterval:       50 * time.Millisecond,
		StealThreshold:        3,
		StealRatio:            0.5,
		MaxAttempts:           3,
		ExecutionFailureRate:  0.05,
		ComplexityUnit:        time.Millisecond,
		Workers:               8,
	}
}

// Scheduler owns one work queue per node, routes submissions to the least
// loaded queue and migrates surplus work between queues.
type Scheduler struct {
	cfg       Config
	logger    *zap.Logger
	events    bus.Bus
	transport transport.Transport
	executors *pool.WorkerPool

	mu     sync.Mutex
	queues map[string]*queue
	order  []string
	rr     int // round-robin cursor for redistribution
	rng    *rand.Rand

	stats *types.OpStats

	running bool
	done    chan struct{}
	wg      sync.WaitGroup
}

// NewScheduler creates a work-stealing scheduler.
func NewScheduler(cfg Config, tp transport.Transport, events bus.Bus, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	def := DefaultConfig()
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.StealRatio <= 0 {
		cfg.StealRatio = def.StealRatio
	}
	if cfg.LoadBalancingInterval <= 0 {
		cfg.LoadBalancingInterval = def.LoadBalancingInterval
	}
	if cfg.ProcessInterval <= 0 {
		cfg.ProcessInterval = def.ProcessInterval
	}
	if cfg.ComplexityUnit <= 0 {
		cfg.ComplexityUnit = def.ComplexityUnit
	}
	if cfg.Workers <= 0 {
		cfg.Workers = def.Workers
	}
	return &Scheduler{
		cfg:       cfg,
		logger:    logger.With(zap.String("component", "worksteal")),
		events:    events,
		transport: tp,
		executors: pool.New(cfg.Workers, cfg.Workers*16),
		queues:    make(map[string]*queue),
		rng:       rand.New(rand.NewSource(time.Now().UnixNano())),
		stats:     types.NewOpStats(100),
	}
}

// Start launches the balancing and processing tickers. Idempotent; a stopped
// scheduler can be started again with its queues intact.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.running = true
	s.done = make(chan struct{})
	s.wg.Add(2)
	go s.balanceLoop(s.done)
	go s.processLoop(s.done)
}

// Stop halts the tickers. Idempotent; queue state is preserved for a later
// re-enable.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.done)
	s.mu.Unlock()
	s.wg.Wait()
}

// Close stops the tickers and shuts the executor pool down for good.
func (s *Scheduler) Close() {
	s.Stop()
	s.executors.Close()
}

// AddNode creates a queue for the node.
func (s *Scheduler) AddNode(node *types.Node) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.queues[node.ID]; ok {
		return
	}
	s.queues[node.ID] = newQueue(node.ID, s.cfg.MaxQueueSize)
	s.order = append(s.order, node.ID)
}

// RemoveNode drops the node's queue and redistributes its work round-robin
// across the remaining queues. With no queues left the work is dropped.
func (s *Scheduler) RemoveNode(nodeID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	q, ok := s.queues[nodeID]
	if !ok {
		return
	}
	delete(s.queues, nodeID)
	for i, id := range s.order {
		if id == nodeID {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}

	orphans := q.pending
	for _, item := range q.processing {
		orphans = append(orphans, item)
	}
	if len(s.order) == 0 {
		if len(orphans) > 0 {
			s.logger.Warn("dropping orphaned work, no queues remain", zap.Int("count", len(orphans)))
		}
		return
	}
	for _, item := range orphans {
		target := s.queues[s.order[s.rr%len(s.order)]]
		s.rr++
		target.push(item)
	}
	s.logger.Info("redistributed orphaned work",
		zap.String("node_id", nodeID),
		zap.Int("count", len(orphans)))
}

// SubmitWork routes the item to the least-loaded queue and returns its ID.
func (s *Scheduler) SubmitWork(item *WorkItem) (string, error) {
	if item == nil {
		return "", types.NewError(types.ErrInvalidConfig, "nil work item").WithSubsystem("worksteal")
	}
	if item.ID == "" {
		item.ID = NewWorkItem(item.Priority, item.Payload).ID
	}
	if item.MaxAttempts <= 0 {
		item.MaxAttempts = s.cfg.MaxAttempts
	}
	if item.CreatedAt.IsZero() {
		item.CreatedAt = time.Now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var target *queue
	for _, id := range s.order {
		q := s.queues[id]
		if target == nil || q.load() < target.load() {
			target = q
		}
	}
	if target == nil {
		return "", types.NewNodeNotFoundError("no nodes registered").WithSubsystem("worksteal")
	}
	if target.full() {
		return "", types.NewError(types.ErrQueueFull, "all queues at capacity").
			WithSubsystem("worksteal").
			WithRetryable(true)
	}
	target.push(item)
	return item.ID, nil
}

// QueueCount returns the number of queues.
func (s *Scheduler) QueueCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queues)
}

// QueueStats returns a snapshot of every queue.
func (s *Scheduler) QueueStats() []QueueStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]QueueStats, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.queues[id].snapshot())
	}
	return out
}

// Stats returns the subsystem's operation statistics.
func (s *Scheduler) Stats() types.OpStatsSnapshot {
	return s.stats.Snapshot()
}

func (s *Scheduler) balanceLoop(done <-chan struct{}) {
	defer s.wg.Done()
	ticker := time.NewTicker(s.cfg.LoadBalancingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.BalanceOnce(context.Background())
		case <-done:
			return
		}
	}
}

func (s *Scheduler) processLoop(done <-chan struct{}) {
	defer s.wg.Done()
	ticker := time.NewTicker(s.cfg.ProcessInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.ProcessOnce()
		case <-done:
			return
		}
	}
}

// BalanceOnce runs a single steal scan: every queue under the steal threshold
// tries to pull a slice of pending work from the most loaded peer above it.
func (s *Scheduler) BalanceOnce(ctx context.Context) {
	s.mu.Lock()
	ids := append([]string(nil), s.order...)
	s.mu.Unlock()

	for _, id := range ids {
		s.mu.Lock()
		local, ok := s.queues[id]
		if !ok || len(local.pending) >= s.cfg.StealThreshold {
			s.mu.Unlock()
			continue
		}
		var victim *queue
		for _, peerID := range s.order {
			if peerID == id {
				continue
			}
			peer := s.queues[peerID]
			if len(peer.pending) > s.cfg.StealThreshold && (victim == nil || len(peer.pending) > len(victim.pending)) {
				victim = peer
			}
		}
		if victim == nil {
			s.mu.Unlock()
			continue
		}
		count := int(float64(len(victim.pending)) * s.cfg.StealRatio)
		victimID := victim.nodeID
		s.mu.Unlock()

		if count == 0 {
			continue
		}

		// Steal request travels over the transport so a real deployment can
		// veto or fail it.
		callCtx, cancel := context.WithTimeout(ctx, s.cfg.LoadBalancingInterval)
		resp, err := s.transport.Call(callCtx, transport.Message{
			Kind:    transport.KindStealRequest,
			From:    id,
			To:      victimID,
			Payload: count,
		})
		cancel()
		if err != nil || !resp.Granted {
			s.logger.Debug("steal request denied",
				zap.String("from", id),
				zap.String("victim", victimID),
				zap.Error(err))
			continue
		}

		s.mu.Lock()
		local, lok := s.queues[id]
		victim, vok := s.queues[victimID]
		if !lok || !vok {
			s.mu.Unlock()
			continue
		}
		stolen := victim.stealTail(count)
		for _, item := range stolen {
			item.Stolen = true
			local.push(item)
		}
		moved := len(stolen)
		s.mu.Unlock()

		if moved > 0 {
			s.publish(bus.NewWorkStolen(victimID, id, moved))
			s.logger.Info("work stolen",
				zap.String("from", victimID),
				zap.String("to", id),
				zap.Int("count", moved))
		}
	}
}

// ProcessOnce pops the highest-priority item from every queue and hands it to
// the executor pool.
func (s *Scheduler) ProcessOnce() {
	s.mu.Lock()
	ids := append([]string(nil), s.order...)
	s.mu.Unlock()

	for _, id := range ids {
		s.mu.Lock()
		q, ok := s.queues[id]
		if !ok {
			s.mu.Unlock()
			continue
		}
		item := q.pop()
		if item == nil {
			s.mu.Unlock()
			continue
		}
		item.Attempts++
		q.processing[item.ID] = item
		s.mu.Unlock()

		nodeID := id
		task := func(ctx context.Context) error {
			return s.execute(nodeID, item)
		}
		if err := s.executors.Submit(context.Background(), task); err != nil {
			// Pool saturated or closed: execute inline to keep the item moving.
			_ = s.execute(nodeID, item)
		}
	}
}

// execute simulates running one item and settles its outcome.
func (s *Scheduler) execute(nodeID string, item *WorkItem) error {
	time.Sleep(time.Duration(item.complexity()) * s.cfg.ComplexityUnit)

	s.mu.Lock()
	failed := s.rng.Float64() < s.cfg.ExecutionFailureRate
	q, ok := s.queues[nodeID]
	if !ok {
		// Queue vanished mid-flight; any orphan redistribution already took
		// the item from processing.
		s.mu.Unlock()
		return nil
	}
	delete(q.processing, item.ID)

	if !failed {
		q.completed++
		q.lastActivity = time.Now()
		s.mu.Unlock()
		latency := time.Since(item.CreatedAt)
		s.stats.Record(latency, true)
		s.publish(bus.NewWorkCompleted(item.clone(), latency))
		return nil
	}

	if item.Attempts < item.MaxAttempts {
		q.push(item)
		s.mu.Unlock()
		s.logger.Debug("work item failed, requeued",
			zap.String("item_id", item.ID),
			zap.Int("attempts", item.Attempts))
		return nil
	}

	q.failed++
	q.lastActivity = time.Now()
	s.mu.Unlock()
	s.stats.Record(time.Since(item.CreatedAt), false)
	s.publish(bus.NewWorkFailed(item.clone(), "max attempts exceeded"))
	s.logger.Warn("work item permanently failed",
		zap.String("item_id", item.ID),
		zap.Int("attempts", item.Attempts))
	return nil
}

func (s *Scheduler) publish(event bus.Event) {
	if s.events != nil {
		s.events.Publish(event)
	}
}

package transport

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/mikkihugo/zenflow/types"
)

// MessageKind discriminates peer-to-peer message types.
type MessageKind string

const (
	KindVoteRequest   MessageKind = "vote_request"
	KindAppendEntries MessageKind = "append_entries"
	KindStealRequest  MessageKind = "steal_request"
	KindCoordinator   MessageKind = "coordinator"
	KindChallenge     MessageKind = "challenge"
	KindHeartbeat     MessageKind = "heartbeat"
)

// Message is a single peer request.
type Message struct {
	Kind    MessageKind
	From    string
	To      string
	Term    uint64
	Payload any
}

// Response is a single peer reply.
type Response struct {
	From    string
	Term    uint64
	Granted bool
	Payload any
}

// Transport sends a message to a peer and waits for its reply. Call is the
// single suspension point of the coordination subsystems; implementations
// must honor ctx cancellation and deadlines.
type Transport interface {
	Call(ctx context.Context, msg Message) (Response, error)
}

// Handler answers simulated calls addressed to one peer.
type Handler func(msg Message) (Response, error)

// SimConfig configures the network simulator.
type SimConfig struct {
	MinLatency  time.Duration `json:"min_latency" yaml:"min_latency"`
	MaxLatency  time.Duration `json:"max_latency" yaml:"max_latency"`
	FailureRate float64       `json:"failure_rate" yaml:"failure_rate"` // 0..1
	Seed        int64         `json:"seed" yaml:"seed"`                 // 0 = time-based
}

// DefaultSimConfig returns the simulator defaults.
func DefaultSimConfig() SimConfig {
	return SimConfig{
		MinLatency:  2 * time.Millisecond,
		MaxLatency:  15 * time.Millisecond,
		FailureRate: 0.05,
	}
}

// Sim is an in-process Transport that simulates network latency and loss.
// Peers may register handlers to script their replies; unhandled destinations
// acknowledge with Granted=true, echoing the caller's term.
type Sim struct {
	cfg SimConfig

	mu       sync.Mutex
	rng      *rand.Rand
	handlers map[string]Handler
}

// NewSim creates a simulator with the given config.
func NewSim(cfg SimConfig) *Sim {
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Sim{
		cfg:      cfg,
		rng:      rand.New(rand.NewSource(seed)),
		handlers: make(map[string]Handler),
	}
}

// RegisterHandler scripts replies for a destination node. Passing nil removes
// the handler.
func (s *Sim) RegisterHandler(nodeID string, h Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if h == nil {
		delete(s.handlers, nodeID)
		return
	}
	s.handlers[nodeID] = h
}

// Call simulates a request/response round trip.
func (s *Sim) Call(ctx context.Context, msg Message) (Response, error) {
	latency, dropped := s.roll()

	select {
	case <-time.After(latency):
	case <-ctx.Done():
		return Response{}, types.NewError(types.ErrRPCTimeout, "call timed out").
			WithCause(ctx.Err()).
			WithRetryable(true)
	}

	if dropped {
		return Response{}, types.NewError(types.ErrTransport, "simulated network failure").
			WithRetryable(true)
	}

	s.mu.Lock()
	h := s.handlers[msg.To]
	s.mu.Unlock()

	if h != nil {
		return h(msg)
	}
	return Response{From: msg.To, Term: msg.Term, Granted: true}, nil
}

func (s *Sim) roll() (time.Duration, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	spread := s.cfg.MaxLatency - s.cfg.MinLatency
	latency := s.cfg.MinLatency
	if spread > 0 {
		latency += time.Duration(s.rng.Int63n(int64(spread)))
	}
	return latency, s.rng.Float64() < s.cfg.FailureRate
}

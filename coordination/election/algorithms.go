package election

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mikkihugo/zenflow/coordination/transport"
	"github.com/mikkihugo/zenflow/types"
)

// runRing scans the full ring: the active node with the globally highest
// priority always wins. Deterministic, no message round.
func (m *Manager) runRing(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var winner *types.Node
	for _, n := range m.activeNodesLocked() {
		if winner == nil || n.Priority > winner.Priority {
			winner = n
		}
	}
	if winner == nil {
		return "", types.NewElectionTimeoutError("no active nodes in ring").WithSubsystem("election")
	}
	m.term++
	return winner.ID, nil
}

// runRaftVote increments the term, votes for the candidate and requests votes
// from all peers in parallel. The candidate wins with a strict majority of
// known active nodes, itself included; otherwise it reverts to follower.
func (m *Manager) runRaftVote(ctx context.Context, candidate *types.Node) (string, error) {
	m.mu.Lock()
	m.term++
	m.role = RoleCandidate
	m.votedFor = candidate.ID
	m.votes = map[string]bool{candidate.ID: true}
	term := m.term
	active := m.activeNodesLocked()
	m.mu.Unlock()

	peers := make([]string, 0, len(active))
	for _, n := range active {
		if n.ID != candidate.ID {
			peers = append(peers, n.ID)
		}
	}

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
			if err != nil {
				m.logger.Debug("vote request failed", zap.String("peer", peer), zap.Error(err))
				return nil // collect every reply, never abort the group
			}
			if resp.Granted {
				granted.Add(1)
				m.mu.Lock()
				m.votes[peer] = true
				m.mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	need := majority(len(active))
	if int(granted.Load()) >= need {
		return candidate.ID, nil
	}

	m.mu.Lock()
	m.role = RoleFollower
	m.mu.Unlock()
	return "", types.NewElectionTimeoutError("vote majority not reached").WithSubsystem("election")
}

// runBully implements the bully protocol from the candidate's point of view.
// Fast-bully shares this path.
func (m *Manager) runBully(ctx context.Context, candidate *types.Node) (string, error) {
	m.mu.Lock()
	m.term++
	m.role = RoleCandidate
	term := m.term
	active := m.activeNodesLocked()

	var higher []*types.Node
	var highest *types.Node
	for _, n := range active {
		if n.Priority > candidate.Priority {
			higher = append(higher, n)
		}
		if highest == nil || n.Priority > highest.Priority {
			highest = n
		}
	}
	interval := m.cfg.HeartbeatInterval
	if interval <= 0 {
		interval = DefaultConfig().HeartbeatInterval
	}
	window := interval + time.Duration(m.rng.Int63n(int64(interval)+1))
	m.mu.Unlock()

	// No higher-priority node: immediate victory.
	if len(higher) == 0 {
		return candidate.ID, nil
	}

	// Challenge every higher-priority node within a randomized window.
	challengeCtx, cancel := context.WithTimeout(ctx, window)
	defer cancel()

	type challenge struct {
		node *types.Node
		ok   bool
	}
	results := make([]challenge, len(higher))
	g, gctx := errgroup.WithContext(challengeCtx)
	for i, n := range higher {
		i, n := i, n
		g.Go(func() error {
			resp, err := m.transport.Call(gctx, transport.Message{
				Kind: transport.KindChallenge,
				From: candidate.ID,
				To:   n.ID,
				Term: term,
			})
			results[i] = challenge{node: n, ok: err == nil && resp.Granted}
			return nil
		})
	}
	_ = g.Wait()

	var responder *types.Node
	for _, r := range results {
		if r.ok && (responder == nil || r.node.Priority > responder.Priority) {
			responder = r.node
		}
	}

	// Nobody higher answered inside the window: declare victory.
	if responder == nil {
		return candidate.ID, nil
	}

	// A higher node is alive; await its coordinator announcement under the
	// hard election timeout, then fall back to the highest-priority node.
	resp, err := m.transport.Call(ctx, transport.Message{
		Kind: transport.KindCoordinator,
		From: candidate.ID,
		To:   responder.ID,
		Term: term,
	})
	if err == nil && resp.Granted {
		return responder.ID, nil
	}
	if ctx.Err() != nil {
		return "", types.NewElectionTimeoutError("no coordinator announcement received").
			WithSubsystem("election").
			WithCause(ctx.Err())
	}
	if highest != nil {
		m.logger.Debug("coordinator announcement missing, falling back to highest priority",
			zap.String("node_id", highest.ID))
		return highest.ID, nil
	}
	return "", types.NewElectionTimeoutError("no election resolution").WithSubsystem("election")
}

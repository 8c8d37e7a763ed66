package consensus

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/mikkihugo/zenflow/coordination/transport"
	"github.com/mikkihugo/zenflow/types"
)

func fastSim(failureRate float64) *transport.Sim {
	return transport.NewSim(transport.SimConfig{
		MinLatency:  time.Microsecond,
		MaxLatency:  10 * time.Microsecond,
		FailureRate: failureRate,
		Seed:        1,
	})
}

// Log indices always form a gapless, strictly increasing sequence starting at
// zero, and committed entries never exceed the commit index, regardless of
// how many proposals miss their majority.
func TestProperty_LogContiguityUnderLossyReplication(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50

	properties := gopter.NewProperties(parameters)

	properties.Property("log stays gapless and commit index monotone", prop.ForAll(
		func(nodeCount int, proposals int, failureRate float64) bool {
			m := NewManager(testConfig(), fastSim(failureRate), nil, nil)
			for i := 0; i < nodeCount; i++ {
				m.AddNode(types.NewNode(fmt.Sprintf("node-%d", i), i))
			}
			if _, err := m.ElectLeader(context.Background()); err != nil {
				// A lossy vote round may fail; nothing to check then.
				return true
			}

			lastCommit := -1
			for p := 0; p < proposals; p++ {
				m.Propose(context.Background(), fmt.Sprintf("cmd-%d", p))

				state := m.GetState()
				if state.CommitIndex < lastCommit {
					return false
				}
				lastCommit = state.CommitIndex

				entries := m.Entries()
				for i, e := range entries {
					if e.Index != i {
						return false
					}
					if !e.Verify() {
						return false
					}
					if e.Committed && e.Index > state.CommitIndex {
						return false
					}
				}
			}
			return true
		},
		gen.IntRange(1, 5),
		gen.IntRange(1, 8),
		gen.Float64Range(0, 0.6),
	))

	properties.TestingRun(t)
}

// A committed entry always had at least a strict majority of acknowledgments:
// with every follower unreachable and more than two nodes, no proposal ever
// commits; with a fully reliable network, every proposal commits.
func TestProperty_MajorityCommit(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 30

	properties := gopter.NewProperties(parameters)

	properties.Property("commit requires majority acknowledgment", prop.ForAll(
		func(nodeCount int, proposals int) bool {
			sim := fastSim(0)
			m := NewManager(testConfig(), sim, nil, nil)
			ids := make([]string, nodeCount)
			for i := 0; i < nodeCount; i++ {
				ids[i] = fmt.Sprintf("node-%d", i)
				m.AddNode(types.NewNode(ids[i], i))
			}
			if _, err := m.ElectLeader(context.Background()); err != nil {
				return false
			}

			// Reliable network: everything commits.
			for p := 0; p < proposals; p++ {
				if !m.Propose(context.Background(), p) {
					return false
				}
			}

			// Cut off every follower: nothing further commits unless the
			// leader alone is the majority (n == 1).
			for _, id := range ids[1:] {
				sim.RegisterHandler(id, func(msg transport.Message) (transport.Response, error) {
					return transport.Response{}, types.NewError(types.ErrTransport, "unreachable")
				})
			}
			got := m.Propose(context.Background(), "after-partition")
			want := nodeCount == 1
			return got == want
		},
		gen.IntRange(1, 5),
		gen.IntRange(1, 5),
	))

	properties.TestingRun(t)
}

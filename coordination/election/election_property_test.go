package election

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

// Terms observed across any sequence of election rounds are non-decreasing,
// and every successful round advances the term by exactly one.
func TestProperty_TermMonotonicity(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50

	properties := gopter.NewProperties(parameters)

	properties.Property("terms never decrease across election rounds", prop.ForAll(
		func(nodeCount int, rounds int, algIdx int) bool {
			algorithms := []Algorithm{AlgorithmBully, AlgorithmRing, AlgorithmRaftVote, AlgorithmFastBully}
			cfg := Config{
				Algorithm:         algorithms[algIdx%len(algorithms)],
				HeartbeatInterval: 5 * time.Millisecond,
				Timeout:           500 * time.Millisecond,
			}
			sim := transport.NewSim(transport.SimConfig{
				MinLatency: time.Microsecond, MaxLatency: 10 * time.Microsecond, Seed: 1,
			})
			m := NewManager(cfg, sim, nil, nil)
			for i := 0; i < nodeCount; i++ {
				m.AddNode(types.NewNode(fmt.Sprintf("node-%d", i), i))
			}

			last := m.Term()
			for r := 0; r < rounds; r++ {
				before := m.Term()
				_, err := m.StartElection(context.Background())
				after := m.Term()
				if after < before || after < last {
					return false
				}
				if err == nil && after != before+1 {
					return false
				}
				last = after
			}
			return true
		},
		gen.IntRange(1, 6),
		gen.IntRange(1, 5),
		gen.IntRange(0, 3),
	))

	properties.TestingRun(t)
}

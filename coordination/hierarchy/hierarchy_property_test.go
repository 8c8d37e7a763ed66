package hierarchy

import (
	"fmt"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/mikkihugo/zenflow/types"
)

// After any interleaving of placements and removals, every surviving non-root
// node sits exactly one level below its parent and parent/child links agree.
func TestProperty_LevelInvariantUnderChurn(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	properties.Property("level equals parent level plus one", prop.ForAll(
		func(adds int, removeEvery int) bool {
			cfg := DefaultConfig()
			cfg.FanOut = 2
			cfg.MaxDepth = 3
			m := NewManager(cfg, nil, nil)

			for i := 0; i < adds; i++ {
				m.AddNode(types.NewNode(fmt.Sprintf("node-%d", i), i))
				if removeEvery > 0 && i%removeEvery == removeEvery-1 {
					m.RemoveNode(fmt.Sprintf("node-%d", i/2))
				}
			}

			nodes := m.Nodes()
			byID := make(map[string]HNode, len(nodes))
			roots := 0
			for _, n := range nodes {
				byID[n.ID] = n
				if n.ParentID == "" {
					roots++
					if n.Level != 0 {
						return false
					}
				}
			}
			if len(nodes) > 0 && roots != 1 {
				return false
			}
			for _, n := range nodes {
				if n.ParentID == "" {
					continue
				}
				parent, ok := byID[n.ParentID]
				if !ok || n.Level != parent.Level+1 {
					return false
				}
				if _, linked := parent.Children[n.ID]; !linked {
					return false
				}
			}
			return true
		},
		gen.IntRange(1, 16),
		gen.IntRange(0, 5),
	))

	properties.TestingRun(t)
}

// Delegate never succeeds once the delegator's delegation budget is spent.
func TestProperty_DelegationCapacityNeverExceeded(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	properties.Property("successful delegations never exceed max_delegations", prop.ForAll(
		func(maxDelegations int, attempts int) bool {
			cfg := DefaultConfig()
			cfg.MaxDelegations = maxDelegations
			cfg.NodeCapacity = 1000 // utilization never the limiting factor
			m := NewManager(cfg, nil, nil)
			m.AddNode(types.NewNode("delegator", 1))
			m.AddNode(types.NewNode("delegate", 1))

			succeeded := 0
			for i := 0; i < attempts; i++ {
				if m.Delegate(DelegationRequest{DelegatorID: "delegator", DelegateID: "delegate"}) {
					succeeded++
				}
			}
			n, _ := m.Node("delegator")
			return succeeded <= maxDelegations && n.CurrentDelegations == succeeded
		},
		gen.IntRange(1, 5),
		gen.IntRange(0, 12),
	))

	properties.TestingRun(t)
}

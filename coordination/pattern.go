package coordination

import (
	"github.com/mikkihugo/zenflow/types"
)

// Pattern names a coordination strategy.
type Pattern string

const (
	PatternLeaderFollower Pattern = "leader-follower"
	PatternConsensus      Pattern = "consensus"
	PatternWorkStealing   Pattern = "work-stealing"
	PatternHierarchical   Pattern = "hierarchical"
	PatternHybrid         Pattern = "hybrid"
)

// enablement is the per-subsystem on/off set a pattern implies.
type enablement struct {
	election  bool
	consensus bool
	worksteal bool
	hierarchy bool
}

// subsystems returns the enablement set for the pattern.
func (p Pattern) subsystems() (enablement, error) {
	switch p {
	case PatternLeaderFollower:
		return enablement{election: true}, nil
	case PatternConsensus:
		return enablement{consensus: true}, nil
	case PatternWorkStealing:
		return enablement{worksteal: true}, nil
	case PatternHierarchical:
		return enablement{hierarchy: true}, nil
	case PatternHybrid:
		return enablement{election: true, consensus: true, worksteal: true, hierarchy: true}, nil
	default:
		return enablement{}, types.NewError(types.ErrInvalidConfig, "unknown coordination pattern: "+string(p))
	}
}

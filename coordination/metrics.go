package coordination

import (
	"time"

	"github.com/mikkihugo/zenflow/types"
)

// Metrics is the aggregate snapshot across all four subsystems.
type Metrics struct {
	Elections          int64         `json:"elections"`
	ConsensusOps       int64         `json:"consensus_ops"`
	WorkItemsProcessed int64         `json:"work_items_processed"`
	ActiveDelegations  int           `json:"active_delegations"`
	AvgLatency         time.Duration `json:"avg_latency"`
	Throughput         float64       `json:"throughput"` // operations per second since start
	FailureRate        float64       `json:"failure_rate"`
	Efficiency         float64       `json:"efficiency"` // defaults to 1 with no operations
	CollectedAt        time.Time     `json:"collected_at"`
}

// aggregate folds subsystem stats into one snapshot. The average latency is
// the mean across the subsystems' own latency histories; subsystems without
// operations do not dilute it.
func aggregate(started time.Time, activeDelegations int, snaps ...types.OpStatsSnapshot) Metrics {
	m := Metrics{
		ActiveDelegations: activeDelegations,
		Efficiency:        1,
		CollectedAt:       time.Now(),
	}

	var totalOps, totalFailures int64
	var latencySum time.Duration
	latencyCount := 0
	for _, s := range snaps {
		totalOps += s.Operations
		totalFailures += s.Failures
		if s.Operations > 0 {
			latencySum += s.AvgLatency
			latencyCount++
		}
	}

	if latencyCount > 0 {
		m.AvgLatency = latencySum / time.Duration(latencyCount)
	}
	if totalOps > 0 {
		m.FailureRate = float64(totalFailures) / float64(totalOps)
		m.Efficiency = float64(totalOps-totalFailures) / float64(totalOps)
	}
	if elapsed := time.Since(started).Seconds(); elapsed > 0 {
		m.Throughput = float64(totalOps) / elapsed
	}
	return m
}

package config

import (
	"time"

	"github.com/mikkihugo/zenflow/coordination"
	"github.com/mikkihugo/zenflow/coordination/consensus"
	"github.com/mikkihugo/zenflow/coordination/election"
	"github.com/mikkihugo/zenflow/coordination/hierarchy"
	"github.com/mikkihugo/zenflow/coordination/transport"
	"github.com/mikkihugo/zenflow/coordination/worksteal"
)

// DefaultConfig returns the built-in defaults, mirroring each subsystem's own.
func DefaultConfig() *Config {
	e := election.DefaultConfig()
	c := consensus.DefaultConfig()
	w := worksteal.DefaultConfig()
	h := hierarchy.DefaultConfig()
	t := transport.DefaultSimConfig()

	return &Config{
		Pattern: string(coordination.PatternHybrid),
		Election: ElectionConfig{
			Algorithm:         string(e.Algorithm),
			HeartbeatInterval: e.HeartbeatInterval,
			Timeout:           e.Timeout,
		},
		Consensus: ConsensusConfig{
			ElectionTimeoutMin: c.ElectionTimeoutMin,
			ElectionTimeoutMax: c.ElectionTimeoutMax,
			HeartbeatInterval:  c.HeartbeatInterval,
		},
		WorkStealing: WorkStealingConfig{
			MaxQueueSize:          w.MaxQueueSize,
			LoadBalancingInterval: w.LoadBalancingInterval,
			ProcessInterval:       w.ProcessInterval,
			StealThreshold:        w.StealThreshold,
			StealRatio:            w.StealRatio,
			MaxAttempts:           w.MaxAttempts,
			ExecutionFailureRate:  w.ExecutionFailureRate,
			ComplexityUnit:        w.ComplexityUnit,
			Workers:               w.Workers,
		},
		Hierarchy: HierarchyConfig{
			FanOut:              h.FanOut,
			MaxDepth:            h.MaxDepth,
			DelegationThreshold: h.DelegationThreshold,
			RebalanceInterval:   h.RebalanceInterval,
			MaxDelegations:      h.MaxDelegations,
			NodeCapacity:        h.NodeCapacity,
		},
		Transport: TransportConfig{
			MinLatency:  t.MinLatency,
			MaxLatency:  t.MaxLatency,
			FailureRate: t.FailureRate,
			Seed:        t.Seed,
		},
		Metrics: MetricsConfig{
			Interval: 5 * time.Second,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

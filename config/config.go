package config

import (
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/mikkihugo/zenflow/coordination"
	"github.com/mikkihugo/zenflow/coordination/consensus"
	"github.com/mikkihugo/zenflow/coordination/election"
	"github.com/mikkihugo/zenflow/coordination/hierarchy"
	"github.com/mikkihugo/zenflow/coordination/transport"
	"github.com/mikkihugo/zenflow/coordination/worksteal"
)

// Config is the complete zenflow configuration.
type Config struct {
	// Pattern is the initial coordination pattern.
	Pattern string `yaml:"pattern" env:"PATTERN"`

	// Election configures the leader election subsystem.
	Election ElectionConfig `yaml:"election" env:"ELECTION"`

	// Consensus configures the replicated-log subsystem.
	Consensus ConsensusConfig `yaml:"consensus" env:"CONSENSUS"`

	// WorkStealing configures the work-stealing scheduler.
	WorkStealing WorkStealingConfig `yaml:"work_stealing" env:"WORK_STEALING"`

	// Hierarchy configures the delegation tree.
	Hierarchy HierarchyConfig `yaml:"hierarchy" env:"HIERARCHY"`

	// Transport configures the simulated RPC layer.
	Transport TransportConfig `yaml:"transport" env:"TRANSPORT"`

	// Metrics configures prometheus collection and snapshot cadence.
	Metrics MetricsConfig `yaml:"metrics" env:"METRICS"`

	// Log configures the zap logger.
	Log LogConfig `yaml:"log" env:"LOG"`
}

// ElectionConfig mirrors election.Config with env override support.
type ElectionConfig struct {
	Algorithm         string        `yaml:"algorithm" env:"ALGORITHM"`
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval" env:"HEARTBEAT_INTERVAL"`
	Timeout           time.Duration `yaml:"timeout" env:"TIMEOUT"`
}

// ConsensusConfig mirrors consensus.Config with env override support.
type ConsensusConfig struct {
	ElectionTimeoutMin time.Duration `yaml:"election_timeout_min" env:"ELECTION_TIMEOUT_MIN"`
	ElectionTimeoutMax time.Duration `yaml:"election_timeout_max" env:"ELECTION_TIMEOUT_MAX"`
	HeartbeatInterval  time.Duration `yaml:"heartbeat_interval" env:"HEARTBEAT_INTERVAL"`
}

// WorkStealingConfig mirrors worksteal.Config with env override support.
type WorkStealingConfig struct {
	MaxQueueSize          int           `yaml:"max_queue_size" env:"MAX_QUEUE_SIZE"`
	LoadBalancingInterval time.Duration `yaml:"load_balancing_interval" env:"LOAD_BALANCING_INTERVAL"`
	ProcessInterval       time.Duration `yaml:"process_interval" env:"PROCESS_INTERVAL"`
	StealThreshold        int           `yaml:"steal_threshold" env:"STEAL_THRESHOLD"`
	StealRatio            float64       `yaml:"steal_ratio" env:"STEAL_RATIO"`
	MaxAttempts           int           `yaml:"max_attempts" env:"MAX_ATTEMPTS"`
	ExecutionFailureRate  float64       `yaml:"execution_failure_rate" env:"EXECUTION_FAILURE_RATE"`
	ComplexityUnit        time.Duration `yaml:"complexity_unit" env:"COMPLEXITY_UNIT"`
	Workers               int           `yaml:"workers" env:"WORKERS"`
}

// HierarchyConfig mirrors hierarchy.Config with env override support.
type HierarchyConfig struct {
	FanOut              int           `yaml:"fan_out" env:"FAN_OUT"`
	MaxDepth            int           `yaml:"max_depth" env:"MAX_DEPTH"`
	DelegationThreshold float64       `yaml:"delegation_threshold" env:"DELEGATION_THRESHOLD"`
	RebalanceInterval   time.Duration `yaml:"rebalance_interval" env:"REBALANCE_INTERVAL"`
	MaxDelegations      int           `yaml:"max_delegations" env:"MAX_DELEGATIONS"`
	NodeCapacity        float64       `yaml:"node_capacity" env:"NODE_CAPACITY"`
}

// TransportConfig mirrors transport.SimConfig with env override support.
type TransportConfig struct {
	MinLatency  time.Duration `yaml:"min_latency" env:"MIN_LATENCY"`
	MaxLatency  time.Duration `yaml:"max_latency" env:"MAX_LATENCY"`
	FailureRate float64       `yaml:"failure_rate" env:"FAILURE_RATE"`
	Seed        int64         `yaml:"seed" env:"SEED"`
}

// MetricsConfig controls observability.
type MetricsConfig struct {
	// Namespace prefixes every prometheus metric; empty disables collection.
	Namespace string `yaml:"namespace" env:"NAMESPACE"`
	// Interval is the aggregate snapshot cadence.
	Interval time.Duration `yaml:"interval" env:"INTERVAL"`
}

// LogConfig controls the zap logger.
type LogConfig struct {
	// Level: debug, info, warn, error.
	Level string `yaml:"level" env:"LEVEL"`
	// Format: json or console.
	Format string `yaml:"format" env:"FORMAT"`
	// OutputPaths, defaults to stderr.
	OutputPaths []string `yaml:"output_paths" env:"OUTPUT_PATHS"`
	// EnableCaller annotates entries with the call site.
	EnableCaller bool `yaml:"enable_caller" env:"ENABLE_CALLER"`
	// EnableStacktrace attaches stack traces at error level.
	EnableStacktrace bool `yaml:"enable_stacktrace" env:"ENABLE_STACKTRACE"`
}

// Coordination converts the loaded sections into the coordinator's config.
func (c *Config) Coordination() coordination.Config {
	return coordination.Config{
		Pattern: coordination.Pattern(c.Pattern),
		Election: election.Config{
			Algorithm:         election.Algorithm(c.Election.Algorithm),
			HeartbeatInterval: c.Election.HeartbeatInterval,
			Timeout:           c.Election.Timeout,
		},
		Consensus: consensus.Config{
			ElectionTimeoutMin: c.Consensus.ElectionTimeoutMin,
			ElectionTimeoutMax: c.Consensus.ElectionTimeoutMax,
			HeartbeatInterval:  c.Consensus.HeartbeatInterval,
		},
		WorkStealing: worksteal.Config{
			MaxQueueSize:          c.WorkStealing.MaxQueueSize,
			LoadBalancingInterval: c.WorkStealing.LoadBalancingInterval,
			ProcessInterval:       c.WorkStealing.ProcessInterval,
			StealThreshold:        c.WorkStealing.StealThreshold,
			StealRatio:            c.WorkStealing.StealRatio,
			MaxAttempts:           c.WorkStealing.MaxAttempts,
			ExecutionFailureRate:  c.WorkStealing.ExecutionFailureRate,
			ComplexityUnit:        c.WorkStealing.ComplexityUnit,
			Workers:               c.WorkStealing.Workers,
		},
		Hierarchy: hierarchy.Config{
			FanOut:              c.Hierarchy.FanOut,
			MaxDepth:            c.Hierarchy.MaxDepth,
			DelegationThreshold: c.Hierarchy.DelegationThreshold,
			RebalanceInterval:   c.Hierarchy.RebalanceInterval,
			MaxDelegations:      c.Hierarchy.MaxDelegations,
			NodeCapacity:        c.Hierarchy.NodeCapacity,
		},
		Transport: transport.SimConfig{
			MinLatency:  c.Transport.MinLatency,
			MaxLatency:  c.Transport.MaxLatency,
			FailureRate: c.Transport.FailureRate,
			Seed:        c.Transport.Seed,
		},
		MetricsNamespace: c.Metrics.Namespace,
		MetricsInterval:  c.Metrics.Interval,
	}
}

// Validate checks ranges the subsystems cannot default their way out of.
func (c *Config) Validate() error {
	var errs []string

	switch coordination.Pattern(c.Pattern) {
	case coordination.PatternLeaderFollower, coordination.PatternConsensus,
		coordination.PatternWorkStealing, coordination.PatternHierarchical,
		coordination.PatternHybrid:
	default:
		errs = append(errs, fmt.Sprintf("unknown pattern %q", c.Pattern))
	}

	if c.WorkStealing.StealRatio < 0 || c.WorkStealing.StealRatio > 1 {
		errs = append(errs, "work_stealing.steal_ratio must be between 0 and 1")
	}
	if c.WorkStealing.ExecutionFailureRate < 0 || c.WorkStealing.ExecutionFailureRate > 1 {
		errs = append(errs, "work_stealing.execution_failure_rate must be between 0 and 1")
	}
	if c.Transport.FailureRate < 0 || c.Transport.FailureRate > 1 {
		errs = append(errs, "transport.failure_rate must be between 0 and 1")
	}
	if c.Transport.MaxLatency < c.Transport.MinLatency {
		errs = append(errs, "transport.max_latency must not be below min_latency")
	}
	if c.Consensus.ElectionTimeoutMax < c.Consensus.ElectionTimeoutMin {
		errs = append(errs, "consensus.election_timeout_max must not be below election_timeout_min")
	}
	if c.Hierarchy.DelegationThreshold < 0 || c.Hierarchy.DelegationThreshold > 1 {
		errs = append(errs, "hierarchy.delegation_threshold must be between 0 and 1")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors: %s", strings.Join(errs, "; "))
	}
	return nil
}

// BuildLogger constructs a zap logger from the log section.
func (c *LogConfig) BuildLogger() (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(c.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}

	zc := zap.NewProductionConfig()
	if c.Format == "console" {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	zc.DisableCaller = !c.EnableCaller
	zc.DisableStacktrace = !c.EnableStacktrace
	if len(c.OutputPaths) > 0 {
		zc.OutputPaths = c.OutputPaths
	}
	return zc.Build()
}

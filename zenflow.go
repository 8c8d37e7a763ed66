// Package zenflow provides a top-level convenience entry point for creating
// a swarm coordinator with minimal boilerplate.
//
// Usage:
//
//	import "github.com/mikkihugo/zenflow"
//
//	m, err := zenflow.New(zenflow.DefaultConfig())
//	m, err := zenflow.New(cfg, zenflow.WithLogger(logger))
//
// This is a thin wrapper around [coordination.New]; both produce identical
// results. Use this package when you prefer the shorter import path.
package zenflow

import (
	"github.com/mikkihugo/zenflow/coordination"
)

// Manager is the coordination facade.
type Manager = coordination.Manager

// Config is the coordinator configuration.
type Config = coordination.Config

// Pattern names a coordination strategy.
type Pattern = coordination.Pattern

// Coordination patterns.
const (
	PatternLeaderFollower = coordination.PatternLeaderFollower
	PatternConsensus      = coordination.PatternConsensus
	PatternWorkStealing   = coordination.PatternWorkStealing
	PatternHierarchical   = coordination.PatternHierarchical
	PatternHybrid         = coordination.PatternHybrid
)

// Option configures the coordinator created by [New].
type Option = coordination.Option

// New creates a coordination manager for the configured pattern.
func New(cfg Config, opts ...Option) (*Manager, error) {
	return coordination.New(cfg, opts...)
}

// DefaultConfig returns a hybrid-pattern configuration with every subsystem
// at its defaults.
var DefaultConfig = coordination.DefaultConfig

// Re-export facade options so callers never need to import coordination/.

// WithLogger sets the logger shared with every subsystem.
var WithLogger = coordination.WithLogger

// WithBus injects an external event bus.
var WithBus = coordination.WithBus

// WithTransport injects an alternative transport.
var WithTransport = coordination.WithTransport

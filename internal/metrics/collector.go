// Package metrics provides internal metrics collection.
// This package is internal and should not be imported by external projects.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// Collector exposes coordination engine metrics to Prometheus.
type Collector struct {
	electionsTotal   *prometheus.CounterVec
	electionDuration *prometheus.HistogramVec

	proposalsTotal *prometheus.CounterVec
	commitIndex    prometheus.Gauge

	workItemsTotal  *prometheus.CounterVec
	workStolenTotal prometheus.Counter

	delegationsTotal *prometheus.CounterVec
	escalationsTotal prometheus.Counter

	patternSwitches *prometheus.CounterVec
	nodesRegistered prometheus.Gauge

	operationLatency *prometheus.HistogramVec

	logger *zap.Logger
}

// NewCollector creates a collector registering under the given namespace.
func NewCollector(namespace string, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Collector{
		logger: logger.With(zap.String("component", "metrics")),
	}

	c.electionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "elections_total",
			Help:      "Total number of election rounds",
		},
		[]string{"algorithm", "outcome"},
	)

	c.electionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "election_duration_seconds",
			Help:      "Election round duration in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2},
		},
		[]string{"algorithm"},
	)

	c.proposalsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "consensus_proposals_total",
			Help:      "Total number of consensus proposals",
		},
		[]string{"result"},
	)

	c.commitIndex = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "consensus_commit_index",
			Help:      "Highest committed log index",
		},
	)

	c.workItemsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "work_items_total",
			Help:      "Total number of settled work items",
		},
		[]string{"outcome"},
	)

	c.workStolenTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "work_stolen_total",
			Help:      "Total number of work items migrated between queues",
		},
	)

	c.delegationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "delegations_total",
			Help:      "Total number of delegation attempts",
		},
		[]string{"result"},
	)

	c.escalationsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "escalations_total",
			Help:      "Total number of triggered escalations",
		},
	)

	c.patternSwitches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pattern_switches_total",
			Help:      "Total number of coordination pattern switches",
		},
		[]string{"to"},
	)

	c.nodesRegistered = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "nodes_registered",
			Help:      "Number of registered nodes",
		},
	)

	c.operationLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "operation_latency_seconds",
			Help:      "Coordination operation latency in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"subsystem"},
	)

	return c
}

// RecordElection records one election round.
func (c *Collector) RecordElection(algorithm string, success bool, duration time.Duration) {
	outcome := "won"
	if !success {
		outcome = "failed"
	}
	c.electionsTotal.WithLabelValues(algorithm, outcome).Inc()
	c.electionDuration.WithLabelValues(algorithm).Observe(duration.Seconds())
	c.operationLatency.WithLabelValues("election").Observe(duration.Seconds())
}

// RecordProposal records one consensus proposal.
func (c *Collector) RecordProposal(accepted bool, commitIndex int, duration time.Duration) {
	result := "committed"
	if !accepted {
		result = "rejected"
	}
	c.proposalsTotal.WithLabelValues(result).Inc()
	c.commitIndex.Set(float64(commitIndex))
	c.operationLatency.WithLabelValues("consensus").Observe(duration.Seconds())
}

// RecordWorkItem records one settled work item.
func (c *Collector) RecordWorkItem(completed bool, duration time.Duration) {
	outcome := "completed"
	if !completed {
		outcome = "failed"
	}
	c.workItemsTotal.WithLabelValues(outcome).Inc()
	c.operationLatency.WithLabelValues("worksteal").Observe(duration.Seconds())
}

// RecordSteal records migrated work items.
func (c *Collector) RecordSteal(count int) {
	c.workStolenTotal.Add(float64(count))
}

// RecordDelegation records one delegation attempt.
func (c *Collector) RecordDelegation(accepted bool, duration time.Duration) {
	result := "accepted"
	if !accepted {
		result = "rejected"
	}
	c.delegationsTotal.WithLabelValues(result).Inc()
	c.operationLatency.WithLabelValues("hierarchy").Observe(duration.Seconds())
}

// RecordEscalation records one triggered escalation.
func (c *Collector) RecordEscalation() {
	c.escalationsTotal.Inc()
}

// RecordPatternSwitch records one pattern change.
func (c *Collector) RecordPatternSwitch(to string) {
	c.patternSwitches.WithLabelValues(to).Inc()
}

// SetNodeCount updates the registered node gauge.
func (c *Collector) SetNodeCount(n int) {
	c.nodesRegistered.Set(float64(n))
}

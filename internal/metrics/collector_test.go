package metrics

import (
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

var collectorNamespaceSeq uint64

func nextTestNamespace() string {
	seq := atomic.AddUint64(&collectorNamespaceSeq, 1)
	return fmt.Sprintf("test_%d", seq)
}

func TestNewCollector(t *testing.T) {
	c := NewCollector(nextTestNamespace(), zap.NewNop())

	assert.NotNil(t, c)
	assert.NotNil(t, c.electionsTotal)
	assert.NotNil(t, c.proposalsTotal)
	assert.NotNil(t, c.workItemsTotal)
	assert.NotNil(t, c.delegationsTotal)
	assert.NotNil(t, c.operationLatency)
}

func TestCollector_RecordElection(t *testing.T) {
	c := NewCollector(nextTestNamespace(), zap.NewNop())

	c.RecordElection("raft-vote", true, 10*time.Millisecond)
	c.RecordElection("bully", false, 50*time.Millisecond)

	assert.Greater(t, testutil.CollectAndCount(c.electionsTotal), 0)
	assert.Greater(t, testutil.CollectAndCount(c.electionDuration), 0)
}

func TestCollector_RecordProposal(t *testing.T) {
	c := NewCollector(nextTestNamespace(), zap.NewNop())

	c.RecordProposal(true, 0, time.Millisecond)
	c.RecordProposal(false, 0, time.Millisecond)

	assert.Greater(t, testutil.CollectAndCount(c.proposalsTotal), 0)
	assert.Equal(t, float64(0), testutil.ToFloat64(c.commitIndex))
}

func TestCollector_RecordWorkAndSteals(t *testing.T) {
	c := NewCollector(nextTestNamespace(), zap.NewNop())

	c.RecordWorkItem(true, time.Millisecond)
	c.RecordWorkItem(false, time.Millisecond)
	c.RecordSteal(5)

	assert.Greater(t, testutil.CollectAndCount(c.workItemsTotal), 0)
	assert.Equal(t, float64(5), testutil.ToFloat64(c.workStolenTotal))
}

func TestCollector_RecordHierarchyAndPattern(t *testing.T) {
	c := NewCollector(nextTestNamespace(), zap.NewNop())

	c.RecordDelegation(true, time.Millisecond)
	c.RecordEscalation()
	c.RecordPatternSwitch("hybrid")
	c.SetNodeCount(3)

	assert.Equal(t, float64(1), testutil.ToFloat64(c.escalationsTotal))
	assert.Equal(t, float64(3), testutil.ToFloat64(c.nodesRegistered))
	assert.Greater(t, testutil.CollectAndCount(c.delegationsTotal), 0)
}

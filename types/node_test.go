package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNode_CloneIsolation(t *testing.T) {
	t.Parallel()

	n := NewNode("node-1", 5)
	n.Capabilities = []string{"compute"}
	n.Metadata["region"] = "eu-west"

	clone := n.Clone()
	clone.Capabilities[0] = "storage"
	clone.Metadata["region"] = "us-east"
	clone.Status = NodeStatusFailed

	assert.Equal(t, "compute", n.Capabilities[0])
	assert.Equal(t, "eu-west", n.Metadata["region"])
	assert.Equal(t, NodeStatusActive, n.Status)
	assert.True(t, n.IsActive())
	assert.False(t, clone.IsActive())
}

func TestNode_TouchAdvancesHeartbeat(t *testing.T) {
	t.Parallel()

	n := NewNode("node-1", 1)
	before := n.LastHeartbeat
	n.Touch()
	assert.False(t, n.LastHeartbeat.Before(before))
}

package types

import (
	"time"
)

// NodeType describes the coordination role a node currently plays.
type NodeType string

const (
	NodeTypeLeader    NodeType = "leader"
	NodeTypeFollower  NodeType = "follower"
	NodeTypeCandidate NodeType = "candidate"
)

// NodeStatus describes node liveness as observed by the registry.
type NodeStatus string

const (
	NodeStatusActive   NodeStatus = "active"
	NodeStatusInactive NodeStatus = "inactive"
	NodeStatusFailed   NodeStatus = "failed"
)

// Node is a swarm member descriptor. Every subsystem keeps its own projection
// keyed by node ID; the registry hands out copies so subsystems never share
// mutable state.
type Node struct {
	ID            string         `json:"id"`
	Type          NodeType       `json:"type"`
	Status        NodeStatus     `json:"status"`
	Capabilities  []string       `json:"capabilities,omitempty"`
	Load          float64        `json:"load"`     // 0..1
	Priority      int            `json:"priority"` // tie-break weight, higher wins
	LastHeartbeat time.Time      `json:"last_heartbeat"`
	Metadata      map[string]any `json:"metadata,omitempty"`
}

// NewNode creates an active follower node with the given identity and priority.
func NewNode(id string, priority int) *Node {
	return &Node{
		ID:            id,
		Type:          NodeTypeFollower,
		Status:        NodeStatusActive,
		Priority:      priority,
		LastHeartbeat: time.Now(),
		Metadata:      make(map[string]any),
	}
}

// Clone returns a deep copy of the node.
func (n *Node) Clone() *Node {
	if n == nil {
		return nil
	}
	clone := *n
	if n.Capabilities != nil {
		clone.Capabilities = append([]string(nil), n.Capabilities...)
	}
	if n.Metadata != nil {
		clone.Metadata = make(map[string]any, len(n.Metadata))
		for k, v := range n.Metadata {
			clone.Metadata[k] = v
		}
	}
	return &clone
}

// IsActive reports whether the node can participate in coordination.
func (n *Node) IsActive() bool {
	return n != nil && n.Status == NodeStatusActive
}

// Touch refreshes the heartbeat timestamp.
func (n *Node) Touch() {
	n.LastHeartbeat = time.Now()
}

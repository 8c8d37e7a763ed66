package bus

import (
	"time"
)

// EventType identifies an event on the bus.
type EventType string

// Inbound membership events consumed by the coordination facade.
const (
	EventNodeJoined       EventType = "node:joined"
	EventNodeLeft         EventType = "node:left"
	EventNetworkPartition EventType = "network:partition"
)

// Outbound events emitted by the coordination subsystems.
const (
	EventLeaderElected       EventType = "leader:elected"
	EventLeaderFailed        EventType = "leader:failed"
	EventConsensusReached    EventType = "consensus:reached"
	EventLogCommitted        EventType = "log:committed"
	EventWorkStolen          EventType = "work:stolen"
	EventWorkCompleted       EventType = "work:completed"
	EventWorkFailed          EventType = "work:failed"
	EventDelegationCreated   EventType = "delegation:created"
	EventEscalationTriggered EventType = "escalation:triggered"
	EventPatternSwitched     EventType = "pattern:switched"
	EventNodeRegistered      EventType = "node:registered"
	EventShutdown            EventType = "shutdown"
)

type baseEvent struct {
	eventType EventType
	at        time.Time
}

func (e baseEvent) Type() EventType      { return e.eventType }
func (e baseEvent) Timestamp() time.Time { return e.at }

func newBase(t EventType) baseEvent {
	return baseEvent{eventType: t, at: time.Now()}
}

// NodeJoinedEvent announces a new swarm member.
type NodeJoinedEvent struct {
	baseEvent
	NodeID       string
	Capabilities []string
	Priority     int
	Metadata     map[string]any
}

// NewNodeJoined creates a node:joined event.
func NewNodeJoined(nodeID string, capabilities []string, priority int, metadata map[string]any) NodeJoinedEvent {
	return NodeJoinedEvent{baseEvent: newBase(EventNodeJoined), NodeID: nodeID, Capabilities: capabilities, Priority: priority, Metadata: metadata}
}

// NodeLeftEvent announces a departed swarm member.
type NodeLeftEvent struct {
	baseEvent
	NodeID string
}

// NewNodeLeft creates a node:left event.
func NewNodeLeft(nodeID string) NodeLeftEvent {
	return NodeLeftEvent{baseEvent: newBase(EventNodeLeft), NodeID: nodeID}
}

// NetworkPartitionEvent signals a detected partition.
type NetworkPartitionEvent struct {
	baseEvent
	Details map[string]any
}

// NewNetworkPartition creates a network:partition event.
func NewNetworkPartition(details map[string]any) NetworkPartitionEvent {
	return NetworkPartitionEvent{baseEvent: newBase(EventNetworkPartition), Details: details}
}

// LeaderElectedEvent announces an election outcome.
type LeaderElectedEvent struct {
	baseEvent
	LeaderID string
	Term     uint64
	Latency  time.Duration
}

// NewLeaderElected creates a leader:elected event.
func NewLeaderElected(leaderID string, term uint64, latency time.Duration) LeaderElectedEvent {
	return LeaderElectedEvent{baseEvent: newBase(EventLeaderElected), LeaderID: leaderID, Term: term, Latency: latency}
}

// LeaderFailedEvent announces a leader missing its heartbeat window.
type LeaderFailedEvent struct {
	baseEvent
	LeaderID string
}

// NewLeaderFailed creates a leader:failed event.
func NewLeaderFailed(leaderID string) LeaderFailedEvent {
	return LeaderFailedEvent{baseEvent: newBase(EventLeaderFailed), LeaderID: leaderID}
}

// ConsensusReachedEvent announces a proposal committed by majority.
// Entry is the committed log entry; kept opaque here so the bus stays a
// leaf package.
type ConsensusReachedEvent struct {
	baseEvent
	Entry   any
	Latency time.Duration
}

// NewConsensusReached creates a consensus:reached event.
func NewConsensusReached(entry any, latency time.Duration) ConsensusReachedEvent {
	return ConsensusReachedEvent{baseEvent: newBase(EventConsensusReached), Entry: entry, Latency: latency}
}

// LogCommittedEvent announces a single committed log entry.
type LogCommittedEvent struct {
	baseEvent
	Entry any
}

// NewLogCommitted creates a log:committed event.
func NewLogCommitted(entry any) LogCommittedEvent {
	return LogCommittedEvent{baseEvent: newBase(EventLogCommitted), Entry: entry}
}

// WorkStolenEvent announces a batch of work migrated between queues.
type WorkStolenEvent struct {
	baseEvent
	From  string
	To    string
	Count int
}

// NewWorkStolen creates a work:stolen event.
func NewWorkStolen(from, to string, count int) WorkStolenEvent {
	return WorkStolenEvent{baseEvent: newBase(EventWorkStolen), From: from, To: to, Count: count}
}

// WorkCompletedEvent announces a successfully processed work item.
type WorkCompletedEvent struct {
	baseEvent
	Item    any
	Latency time.Duration
}

// NewWorkCompleted creates a work:completed event.
func NewWorkCompleted(item any, latency time.Duration) WorkCompletedEvent {
	return WorkCompletedEvent{baseEvent: newBase(EventWorkCompleted), Item: item, Latency: latency}
}

// WorkFailedEvent announces a permanently failed work item.
type WorkFailedEvent struct {
	baseEvent
	Item any
	Err  string
}

// NewWorkFailed creates a work:failed event.
func NewWorkFailed(item any, errMsg string) WorkFailedEvent {
	return WorkFailedEvent{baseEvent: newBase(EventWorkFailed), Item: item, Err: errMsg}
}

// DelegationCreatedEvent announces a task delegated down the hierarchy.
type DelegationCreatedEvent struct {
	baseEvent
	DelegatorID string
	DelegateID  string
	Task        any
	Latency     time.Duration
}

// NewDelegationCreated creates a delegation:created event.
func NewDelegationCreated(delegatorID, delegateID string, task any, latency time.Duration) DelegationCreatedEvent {
	return DelegationCreatedEvent{baseEvent: newBase(EventDelegationCreated), DelegatorID: delegatorID, DelegateID: delegateID, Task: task, Latency: latency}
}

// EscalationTriggeredEvent announces a problem escalated up the hierarchy.
type EscalationTriggeredEvent struct {
	baseEvent
	EscalatorID  string
	SupervisorID string
	Reason       string
	Urgency      string
}

// NewEscalationTriggered creates an escalation:triggered event.
func NewEscalationTriggered(escalatorID, supervisorID, reason, urgency string) EscalationTriggeredEvent {
	return EscalationTriggeredEvent{baseEvent: newBase(EventEscalationTriggered), EscalatorID: escalatorID, SupervisorID: supervisorID, Reason: reason, Urgency: urgency}
}

// PatternSwitchedEvent announces a coordination pattern change.
type PatternSwitchedEvent struct {
	baseEvent
	From string
	To   string
}

// NewPatternSwitched creates a pattern:switched event.
func NewPatternSwitched(from, to string) PatternSwitchedEvent {
	return PatternSwitchedEvent{baseEvent: newBase(EventPatternSwitched), From: from, To: to}
}

// NodeRegisteredEvent announces a node accepted by the facade.
type NodeRegisteredEvent struct {
	baseEvent
	NodeID string
}

// NewNodeRegistered creates a node:registered event.
func NewNodeRegistered(nodeID string) NodeRegisteredEvent {
	return NodeRegisteredEvent{baseEvent: newBase(EventNodeRegistered), NodeID: nodeID}
}

// ShutdownEvent announces completion of the facade shutdown sequence.
type ShutdownEvent struct {
	baseEvent
}

// NewShutdown creates a shutdown event.
func NewShutdown() ShutdownEvent {
	return ShutdownEvent{baseEvent: newBase(EventShutdown)}
}

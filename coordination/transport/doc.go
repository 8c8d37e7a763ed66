// Package transport defines the peer messaging layer used by the coordination
// subsystems. Every peer interaction (vote request, append-entries, steal
// request, coordinator announcement, heartbeat) goes through the Transport
// interface; the bundled simulator stands in for a real network with
// randomized latency and failures. A production deployment substitutes a real
// transport behind the same interface, keeping timeout and majority-counting
// semantics unchanged.
package transport

/*
Package types provides the global shared type definitions for the ZenFlow
coordination engine.

types is the lowest-level public package with no internal dependencies. It
supplies the type contracts shared by the coordination subsystems (election,
consensus, work stealing, hierarchy) and the facade:

  - Node / NodeType / NodeStatus — swarm member descriptor and lifecycle states
  - Error / ErrorCode            — structured error taxonomy for coordination ops
  - Event names and payloads     — the outbound event vocabulary on the bus

All cross-package shared structs, enums and error codes live here to avoid
circular imports between the subsystems and the facade.
*/
package types

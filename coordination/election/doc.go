/*
Package election implements leader election over a dynamic node set.

Four algorithms share the same StartElection contract, selected at
construction time:

  - bully: priority-ordered challenge rounds with coordinator announcement
  - ring: deterministic highest-priority scan
  - raft-vote: term increment, parallel vote requests, majority wins
  - fast-bully: alias of bully

A won election starts a periodic heartbeat fan-out; followers watch for
leader silence exceeding three heartbeat intervals and trigger an automatic
re-election. Removing the current leader forces an immediate re-election.
*/
package election

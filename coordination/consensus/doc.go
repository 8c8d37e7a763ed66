/*
Package consensus implements a replicated-log state machine with term-based
leadership, majority commit and simulated append-entries replication.

The package keeps its own term counter and leader election subroutine,
deliberately independent from the election package: hybrid coordination runs
both as separate protocols and they may transiently disagree about
leadership.

A proposal is committed only after a strict majority of known nodes
(including the leader) acknowledges it. A proposal that misses the majority
returns false and leaves the entry appended but uncommitted in the leader's
log; there is no rollback path, matching the engine's documented
simplification. Such entries may still be committed by a later accepted
proposal.
*/
package consensus

/*
Package worksteal implements decentralized load balancing over per-node work
queues.

Submission routes each item to the queue with the fewest pending plus
in-flight items. A periodic balancing tick lets under-loaded queues pull a
configurable slice of surplus work from the most loaded peer above the steal
threshold, and a faster processing tick drains each queue highest-priority
first, retrying failed items up to their attempt budget.
*/
package worksteal

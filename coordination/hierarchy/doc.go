/*
Package hierarchy implements capacity-bounded hierarchical delegation over
the node set.

Nodes auto-place under the lowest-utilization parent that still has fan-out
and depth headroom, falling back to the root. Tasks delegate down to children
within delegation capacity limits and escalate up to parents unconditionally.
Removal reparents orphaned children with the same placement rule; a periodic
rebalance tick flags nodes running above their rebalance threshold.
*/
package hierarchy

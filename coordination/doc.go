/*
Package coordination composes the election, consensus, work-stealing and
hierarchy subsystems behind a single facade.

The Manager owns the four subsystems, relays membership events from the bus
to each of them, switches coordination patterns atomically (disabling a
subsystem halts its timers but preserves its state), degrades from consensus
to leader-follower coordination when a network partition is detected, and
aggregates a periodic metrics snapshot across all subsystems.
*/
package coordination

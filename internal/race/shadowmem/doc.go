// Package shadowmem implements the access history store for hybrid race detection.
//
// Shadow memory is the foundation of dynamic race detection. It tracks the
// access history for every instrumented memory location, enabling the
// detector to identify conflicting accesses that constitute data races.
//
// # Overview
//
// For every (memory location, thread, access kind) the store keeps a Window:
// a bounded ring of recent Ticks, newest first. A Tick is one value of the
// thread's own vector-clock component; every access the thread made while
// that component stayed the same lands in the same tick. Inside a tick,
// accesses are bucketed by the lock set held at the time:
//
//	Window (newest first, at most W ticks)
//	  Tick{Clock: 7}
//	    {L1}     -> [10, 12]
//	    {}       -> [14]
//	  Tick{Clock: 5}
//	    {L1, L2} -> [10]
//
// # Invariants
//
//   - A window never holds more than W ticks; the oldest is evicted first.
//   - Tick clocks are strictly decreasing from newest to oldest. The race
//     scan relies on this to stop at the first tick that is ordered before
//     the current access.
//   - Stored lock sets are independent snapshots (Clone), never the caller's
//     live object.
//
// Window.Validate checks the first two invariants and is used by tests.
//
// # Thread Safety
//
// The store is NOT internally synchronized. Window ordering is load-bearing
// for correctness, so callers must serialize every check-then-record pair;
// race.Session does this with a single mutex.
package shadowmem

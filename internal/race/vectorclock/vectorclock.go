// Package vectorclock implements vector clocks for tracking happens-before relations.
//
// The hybrid detector core only reads one component of the accessing thread's
// clock (see access.VectorClock). This package is the reference implementation
// used by the trace replay driver and by tests: it owns the update rules
// (increment on release/fork/join, join on acquire) that the core treats as
// external.
//
// Key operations:
//   - Join: Synchronization (point-wise maximum) - used on lock acquire and join
//   - LessOrEqual: Happens-before check (partial order)
//   - ValueFor: Single-component query consumed by the detector
package vectorclock

import (
	"maps"
	"slices"
	"strconv"
	"strings"

	"github.com/kolkov/hybridrace/internal/race/access"
)

// VectorClock represents logical time across multiple threads.
//
// Components are stored sparsely, keyed by thread ID, so a clock costs one
// entry per thread it has heard of whatever the IDs are. Missing components
// read as 0, and a component set to 0 is dropped.
//
// Example: {0: 50, 1: 30, 2: 60} means Thread0@50, Thread1@30, Thread2@60.
type VectorClock struct {
	clocks map[access.ThreadID]access.Clock
}

// New creates a zero-initialized vector clock.
func New() *VectorClock {
	return &VectorClock{clocks: make(map[access.ThreadID]access.Clock)}
}

// Clone creates a deep copy of the vector clock.
//
// Used when a snapshot of logical time must outlive further updates, for
// example when a lock release stores the releasing thread's clock.
func (vc *VectorClock) Clone() *VectorClock {
	return &VectorClock{clocks: maps.Clone(vc.clocks)}
}

// Join performs point-wise maximum: vc = vc ⊔ other.
//
// Used when a thread acquires a lock (Ct := Ct ⊔ Lm) or joins another thread.
func (vc *VectorClock) Join(other *VectorClock) {
	if other == nil || other == vc {
		return
	}
	for tid, c := range other.clocks {
		if c > vc.clocks[tid] {
			vc.clocks[tid] = c
		}
	}
}

// LessOrEqual checks partial order: vc ⊑ other.
//
// Returns true if vc[i] <= other[i] for all threads i.
func (vc *VectorClock) LessOrEqual(other *VectorClock) bool {
	for tid, c := range vc.clocks {
		if c > other.Get(tid) {
			return false
		}
	}
	return true
}

// HappensBefore is an alias for LessOrEqual.
func (vc *VectorClock) HappensBefore(other *VectorClock) bool {
	return vc.LessOrEqual(other)
}

// Increment advances the clock for thread tid.
func (vc *VectorClock) Increment(tid access.ThreadID) {
	vc.clocks[tid]++
}

// Get returns the clock value for thread tid.
func (vc *VectorClock) Get(tid access.ThreadID) access.Clock {
	if vc == nil {
		return 0
	}
	return vc.clocks[tid]
}

// Set sets the clock value for thread tid.
func (vc *VectorClock) Set(tid access.ThreadID, clock access.Clock) {
	if clock == 0 {
		delete(vc.clocks, tid)
		return
	}
	vc.clocks[tid] = clock
}

// ValueFor implements access.VectorClock.
func (vc *VectorClock) ValueFor(tid access.ThreadID) access.Clock {
	return vc.Get(tid)
}

// Len returns the number of non-zero components.
func (vc *VectorClock) Len() int {
	return len(vc.clocks)
}

// String returns a debug representation of the vector clock.
//
// Format: "{tid1:clock1, tid2:clock2, ...}" in ascending thread order,
// showing only non-zero clocks.
func (vc *VectorClock) String() string {
	if len(vc.clocks) == 0 {
		return "{}"
	}
	parts := make([]string, 0, len(vc.clocks))
	for _, tid := range slices.Sorted(maps.Keys(vc.clocks)) {
		parts = append(parts, strconv.FormatUint(uint64(tid), 10)+":"+strconv.FormatUint(uint64(vc.clocks[tid]), 10))
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

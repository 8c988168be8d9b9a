// Package access defines the identifiers and collaborator contracts shared by
// the hybrid race detection packages.
//
// The detector core never computes vector clocks or lock sets itself. It only
// consumes them through the VectorClock and LockSet interfaces declared here,
// so instrumentation layers can plug in their own bookkeeping.
package access

// ThreadID identifies a logical execution thread.
type ThreadID uint32

// Location identifies a shared memory location (object field, array cell, ...).
type Location uint64

// ProgramPoint identifies a static access instruction (an "iid").
//
// It is opaque to the detector: it is only compared, ordered and reported.
type ProgramPoint uint32

// Clock is a single component of a vector clock.
type Clock uint64

// Kind is the kind of a memory access.
type Kind uint8

const (
	// Read is a load from a memory location.
	Read Kind = iota
	// Write is a store to a memory location.
	Write
)

// String returns "Read" or "Write".
func (k Kind) String() string {
	switch k {
	case Read:
		return "Read"
	case Write:
		return "Write"
	default:
		return "Unknown"
	}
}

// Valid reports whether k is Read or Write.
func (k Kind) Valid() bool {
	return k == Read || k == Write
}

// KindOf converts the isRead flag used by instrumentation callbacks.
func KindOf(isRead bool) Kind {
	if isRead {
		return Read
	}
	return Write
}

// VectorClock is the read-only view the detector needs of the accessing
// thread's vector clock.
//
// ValueFor returns the accessing thread's current knowledge of the logical
// time of thread tid. Implementations must reflect the live clock: the
// detector queries it again on every check and never caches the result.
type VectorClock interface {
	ValueFor(tid ThreadID) Clock
}

// LockSet is an immutable snapshot of the locks held during an access.
//
// The live lock set of a thread keeps changing after the access completes,
// so every LockSet stored by the detector is obtained through Clone.
type LockSet interface {
	// Intersects reports whether the two sets share at least one lock.
	Intersects(other LockSet) bool

	// Equal reports whether the two sets hold exactly the same locks.
	Equal(other LockSet) bool

	// Fingerprint is a hash of the set contents. Equal sets have equal
	// fingerprints; unequal sets may collide.
	Fingerprint() uint64

	// Clone returns an independent copy that shares no mutable state.
	Clone() LockSet
}

package syncshadow

import (
	"github.com/kolkov/hybridrace/internal/race/vectorclock"
)

// SyncVar holds the happens-before state of one synchronization object.
//
// A lock publishes the clock of its last release; acquirers join it. A signal
// object accumulates the clocks of every notify; awaiters join the union, the
// same way a WaitGroup accumulates Done calls for Wait.
//
// Example:
//
//	sv := &SyncVar{}
//	sv.SetReleaseClock(threadClock)   // release
//	other.Join(sv.GetReleaseClock())  // acquire
type SyncVar struct {
	// releaseClock is the clock at the last release. nil until the first
	// release.
	releaseClock *vectorclock.VectorClock

	// signalClock is the union of all notifier clocks. nil until the first
	// notify.
	signalClock *vectorclock.VectorClock

	// signals counts notify operations.
	signals int
}

// GetReleaseClock returns the clock of the last release, or nil.
func (sv *SyncVar) GetReleaseClock() *vectorclock.VectorClock {
	return sv.releaseClock
}

// SetReleaseClock stores a copy of clock as the release clock. Later changes
// to clock do not affect the stored value.
func (sv *SyncVar) SetReleaseClock(clock *vectorclock.VectorClock) {
	sv.releaseClock = clock.Clone()
}

// MergeSignalClock joins clock into the signal clock.
//
// Example:
//
//	sv.MergeSignalClock(child1.C)
//	sv.MergeSignalClock(child2.C)
//	parent.C.Join(sv.GetSignalClock())  // ordered after both
func (sv *SyncVar) MergeSignalClock(clock *vectorclock.VectorClock) {
	if sv.signalClock == nil {
		sv.signalClock = clock.Clone()
	} else {
		sv.signalClock.Join(clock)
	}
	sv.signals++
}

// GetSignalClock returns the accumulated signal clock, or nil.
func (sv *SyncVar) GetSignalClock() *vectorclock.VectorClock {
	return sv.signalClock
}

// Signals returns the number of notify operations merged so far.
func (sv *SyncVar) Signals() int {
	return sv.signals
}

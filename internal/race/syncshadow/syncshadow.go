package syncshadow

import (
	"sync"
)

// ObjectID identifies a synchronization object (a lock or a signal object).
type ObjectID uint64

// SyncShadow maps synchronization objects to their SyncVar.
//
// Implementation:
//   - Uses sync.Map; SyncVars are allocated on first use
//   - Never freed during a run
//
// Thread Safety: lookups are safe for concurrent calls; SyncVar methods are
// not, and rely on the caller's serialization.
//
// Example:
//
//	shadow := NewSyncShadow()
//	sv := shadow.GetOrCreate(lockID)
//	sv.SetReleaseClock(ctx.C)         // On release
//	ctx.C.Join(sv.GetReleaseClock())  // On acquire
type SyncShadow struct {
	vars sync.Map // ObjectID -> *SyncVar
}

// NewSyncShadow returns an empty SyncShadow.
func NewSyncShadow() *SyncShadow {
	return &SyncShadow{}
}

// GetOrCreate returns the SyncVar for id, creating it if needed.
func (s *SyncShadow) GetOrCreate(id ObjectID) *SyncVar {
	if val, ok := s.vars.Load(id); ok {
		return val.(*SyncVar)
	}
	val, _ := s.vars.LoadOrStore(id, &SyncVar{})
	return val.(*SyncVar)
}

// Get returns the SyncVar for id, or nil if it was never used.
func (s *SyncShadow) Get(id ObjectID) *SyncVar {
	val, ok := s.vars.Load(id)
	if !ok {
		return nil
	}
	return val.(*SyncVar)
}

// Len returns the number of tracked objects.
func (s *SyncShadow) Len() int {
	n := 0
	s.vars.Range(func(_, _ interface{}) bool {
		n++
		return true
	})
	return n
}

// Reset clears all sync variable state.
//
// Thread Safety: NOT safe for concurrent access.
func (s *SyncShadow) Reset() {
	s.vars = sync.Map{}
}
